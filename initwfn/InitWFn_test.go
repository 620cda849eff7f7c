package initwfn

import (
	"encoding/json"
	"testing"
)

func TestInitWFnJSONRoundTrip(t *testing.T) {
	inits := []func() (*InitWFn, error){
		func() (*InitWFn, error) { return NewGlorotU(1.0) },
		func() (*InitWFn, error) { return NewGlorotN(0.5) },
		func() (*InitWFn, error) { return NewHeU(1.0) },
		func() (*InitWFn, error) { return NewGaussian(0, 0.1) },
		func() (*InitWFn, error) { return NewUniform(-0.1, 0.1) },
		NewZeroes,
	}

	for _, newInit := range inits {
		init, err := newInit()
		if err != nil {
			t.Fatal(err)
		}

		data, err := json.Marshal(init)
		if err != nil {
			t.Fatalf("marshal %v: %v", init, err)
		}

		var decoded InitWFn
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if decoded.Type != init.Type || decoded.Config != init.Config {
			t.Errorf("round trip: have %v, want %v", &decoded, init)
		}
		if decoded.InitWFn() == nil {
			t.Errorf("%v: gorgonia InitWFn not created", init.Type)
		}
	}
}

func TestInitWFnValidation(t *testing.T) {
	if _, err := NewGlorotU(0); err == nil {
		t.Error("NewGlorotU: expected error for zero gain")
	}
	if _, err := NewUniform(1, -1); err == nil {
		t.Error("NewUniform: expected error for empty interval")
	}

	var i InitWFn
	if err := json.Unmarshal([]byte(`{"Type": "Orthogonal"}`), &i); err == nil {
		t.Error("Unmarshal: expected error for unknown type")
	}
}
