package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/samuelfneumann/seqgan/solver"
)

func TestDefault(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("default configuration is illegal: %v", err)
	}

	if c.Vocab != 5000 || c.SeqLength != 20 || c.BatchSize != 64 ||
		c.Seed != 88 {
		t.Errorf("unexpected default sizes: %+v", c)
	}
	if c.Training.PreEpochs != 120 || c.Training.TotalBatch != 200 ||
		c.Training.GeneratedNum != 10000 || c.Rollout.Num != 16 {
		t.Errorf("unexpected default training lengths: %+v", c.Training)
	}
}

func TestParseCUE(t *testing.T) {
	src := `
vocab:     100
seqLength: 8
generator: {
	activation: "relu"
	pretrainSolver: {
		Type: "Vanilla"
		Config: {StepSize: 0.1, Batch: 1, Clip: 0}
	}
}
rollout: updateRate: 0.8
training: {
	preEpochs:  2
	totalBatch: 3
}
log: level: "debug"
`
	c, err := Parse([]byte(src), "test.cue")
	if err != nil {
		t.Fatal(err)
	}

	if c.Vocab != 100 || c.SeqLength != 8 {
		t.Errorf("sizes not overridden: vocab(%v) seqLength(%v)", c.Vocab,
			c.SeqLength)
	}
	if c.Generator.Activation.String() != "relu" {
		t.Errorf("activation not overridden: %v", c.Generator.Activation)
	}
	if c.Generator.PretrainSolver.Type != solver.Vanilla {
		t.Errorf("pretraining solver not overridden: %v",
			c.Generator.PretrainSolver.Type)
	}
	if c.Generator.AdversarialSolver.Type != solver.Adam {
		t.Errorf("adversarial solver changed: %v",
			c.Generator.AdversarialSolver.Type)
	}
	if c.Rollout.UpdateRate != 0.8 || c.Rollout.Num != 16 {
		t.Errorf("unexpected rollout configuration %+v", c.Rollout)
	}
	if c.Training.PreEpochs != 2 || c.Training.TotalBatch != 3 ||
		c.Training.DisPretrainRounds != 50 {
		t.Errorf("unexpected training configuration %+v", c.Training)
	}
	if c.Log.Level != "debug" {
		t.Errorf("log level not overridden: %v", c.Log.Level)
	}
	if c.BatchSize != 64 || c.Discriminator.L2 != 0.2 {
		t.Error("defaults not kept")
	}
}

func TestParseJSON(t *testing.T) {
	c := Default()
	c.Vocab = 30
	c.Discriminator.HiddenSizes = []int{16, 8}
	c.Discriminator.Activations = c.Discriminator.Activations[:0]
	c.Discriminator.Activations = append(c.Discriminator.Activations,
		Default().Discriminator.Activations[0],
		Default().Discriminator.Activations[0])

	data, err := json.Marshal(c)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("could not load %s: %v", data, err)
	}
	if loaded.Vocab != 30 || len(loaded.Discriminator.HiddenSizes) != 2 {
		t.Errorf("unexpected configuration %+v", loaded)
	}
}

func TestParseIllegal(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"vocab", "vocab: 1"},
		{"updateRate", "rollout: updateRate: 1.5"},
		{"activation", `generator: activation: "swish"`},
		{"mismatchedLayers", "discriminator: hiddenSizes: [8, 8]"},
		{"solver", `generator: pretrainSolver: {Type: "SGD", Config: {}}`},
		{"syntax", "vocab: "},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := Parse([]byte(test.src), "test.cue"); err == nil {
				t.Errorf("expected error parsing %q", test.src)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvSaveDir, "/tmp/run")
	t.Setenv(EnvLogLevel, "warn")

	c := Default()
	c.ApplyEnv()
	if c.SaveDir != "/tmp/run" || c.Log.Level != "warn" {
		t.Errorf("environment not applied: saveDir(%v) level(%v)", c.SaveDir,
			c.Log.Level)
	}
}

func TestForExperiment(t *testing.T) {
	c := Default()
	runID := uuid.New()
	e := c.ForExperiment(runID, nil)

	if err := e.Validate(); err != nil {
		t.Fatalf("default experiment is illegal: %v", err)
	}
	if e.RunID != runID || e.SaveDir != c.SaveDir {
		t.Errorf("run not identified: %+v", e)
	}
	if e.Data.BatchSize != c.BatchSize || e.RolloutNum != c.Rollout.Num ||
		e.EvalEvery != 5 || e.DisPretrainRounds != 50 {
		t.Errorf("unexpected experiment configuration: %+v", e)
	}
}

func TestSeedsDistinct(t *testing.T) {
	c := Default()
	o := c.ForOracle()
	seeds := map[string]uint64{
		"generator":     c.ForGenerator().Seed,
		"oracle":        o.Seed,
		"oracle params": o.ParamSeed(),
		"rollout":       c.ForRollout().Seed,
		"dataset":       c.ForDataset().Seed,
	}

	seen := make(map[uint64]string)
	for name, seed := range seeds {
		if other, ok := seen[seed]; ok {
			t.Errorf("%v and %v share seed %v", name, other, seed)
		}
		seen[seed] = name
	}
}
