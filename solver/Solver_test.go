package solver

import (
	"encoding/json"
	"testing"
)

func TestSolverJSONRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		new  func() (*Solver, error)
		want Type
	}{
		{"adam", func() (*Solver, error) {
			return NewAdam(0.01, 1e-8, 0.9, 0.999, 64, 5.0)
		}, Adam},
		{"vanilla", func() (*Solver, error) {
			return NewVanilla(0.1, 32, -1)
		}, Vanilla},
		{"rmsprop", func() (*Solver, error) {
			return NewDefaultRMSProp(0.001, 16)
		}, RMSProp},
	}

	for _, test := range tests {
		s, err := test.new()
		if err != nil {
			t.Fatalf("%v: %v", test.name, err)
		}

		data, err := json.Marshal(s)
		if err != nil {
			t.Fatalf("%v: marshal: %v", test.name, err)
		}

		var decoded Solver
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("%v: unmarshal %s: %v", test.name, data, err)
		}
		if decoded.Type != test.want {
			t.Errorf("%v: type = %v, want %v", test.name, decoded.Type,
				test.want)
		}
		if decoded.Config != s.Config {
			t.Errorf("%v: config = %+v, want %+v", test.name, decoded.Config,
				s.Config)
		}
		if decoded.Solver == nil || decoded.Fresh() == nil {
			t.Errorf("%v: gorgonia solver not created", test.name)
		}
	}
}

func TestSolverValidation(t *testing.T) {
	if _, err := NewAdam(-1, 1e-8, 0.9, 0.999, 64, 0); err == nil {
		t.Error("NewAdam: expected error for negative step size")
	}
	if _, err := NewVanilla(0.1, 0, 0); err == nil {
		t.Error("NewVanilla: expected error for zero batch size")
	}

	bad := []string{
		`{"Type": "Momentum", "Config": {}}`,
		`{"Config": {"StepSize": 0.1}}`,
		`{"Type": "Adam", "Config": {"StepSize": 0, "Batch": 1}}`,
	}
	for _, data := range bad {
		var s Solver
		if err := json.Unmarshal([]byte(data), &s); err == nil {
			t.Errorf("Unmarshal(%v): expected error", data)
		}
	}
}
