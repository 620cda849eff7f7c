// Package config implements the configuration of a training run.
// Configurations are CUE (or JSON) files which are validated against
// a schema and overlaid onto the default hyperparameters.
package config

import (
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/samuelfneumann/seqgan/dataset"
	"github.com/samuelfneumann/seqgan/discriminator"
	"github.com/samuelfneumann/seqgan/experiment"
	"github.com/samuelfneumann/seqgan/generator"
	"github.com/samuelfneumann/seqgan/initwfn"
	"github.com/samuelfneumann/seqgan/network"
	"github.com/samuelfneumann/seqgan/oracle"
	"github.com/samuelfneumann/seqgan/rollout"
	"github.com/samuelfneumann/seqgan/solver"
	"github.com/samuelfneumann/seqgan/utils/logging"
)

// Environment variables which override configuration values
const (
	EnvConfig   = "SEQGAN_CONFIG"
	EnvSaveDir  = "SEQGAN_SAVE_DIR"
	EnvLogLevel = "SEQGAN_LOG_LEVEL"
)

// Config describes a complete training run
type Config struct {
	// SaveDir holds every corpus, checkpoint and log of the run
	SaveDir string `json:"saveDir"`
	Seed    uint64 `json:"seed"`

	Vocab      int `json:"vocab"`
	SeqLength  int `json:"seqLength"`
	StartToken int `json:"startToken"`
	BatchSize  int `json:"batchSize"`

	Generator     Generator      `json:"generator"`
	Discriminator Discriminator  `json:"discriminator"`
	Oracle        Oracle         `json:"oracle"`
	Rollout       Rollout        `json:"rollout"`
	Training      Training       `json:"training"`
	Log           logging.Config `json:"log"`
}

// Generator holds the hyperparameters of the generation policy
type Generator struct {
	EmbDim            int                 `json:"embDim"`
	HiddenDim         int                 `json:"hiddenDim"`
	Activation        *network.Activation `json:"activation"`
	Init              *initwfn.InitWFn    `json:"init"`
	PretrainSolver    *solver.Solver      `json:"pretrainSolver"`
	AdversarialSolver *solver.Solver      `json:"adversarialSolver"`
}

// Discriminator holds the hyperparameters of the discriminator
type Discriminator struct {
	Buckets     int                   `json:"buckets"`
	NGram       int                   `json:"ngram"`
	HiddenSizes []int                 `json:"hiddenSizes"`
	Activations []*network.Activation `json:"activations"`
	Init        *initwfn.InitWFn      `json:"init"`
	Solver      *solver.Solver        `json:"solver"`
	L2          float64               `json:"l2"`
}

// Oracle holds the size of the oracle model
type Oracle struct {
	EmbDim    int `json:"embDim"`
	HiddenDim int `json:"hiddenDim"`
}

// Rollout holds the hyperparameters of reward estimation
type Rollout struct {
	Num        int     `json:"num"`
	UpdateRate float64 `json:"updateRate"`
}

// Training holds the length of each phase of training
type Training struct {
	PreEpochs    int `json:"preEpochs"`
	TotalBatch   int `json:"totalBatch"`
	GeneratedNum int `json:"generatedNum"`

	// GeneratorSteps is the number of policy gradient steps in each
	// adversarial iteration
	GeneratorSteps int `json:"generatorSteps"`

	// EvalEvery is the number of epochs or iterations between
	// evaluations of the oracle negative log-likelihood
	EvalEvery int `json:"evalEvery"`

	// The discriminator is trained for DisEpochs epochs on each of
	// DisPretrainRounds freshly generated corpora when pretraining,
	// and DisRounds corpora in each adversarial iteration
	DisPretrainRounds int `json:"disPretrainRounds"`
	DisRounds         int `json:"disRounds"`
	DisEpochs         int `json:"disEpochs"`
}

// Default returns the default configuration
func Default() Config {
	return Config{
		SaveDir:    "save",
		Seed:       88,
		Vocab:      5000,
		SeqLength:  20,
		StartToken: 0,
		BatchSize:  64,

		Generator: Generator{
			EmbDim:            32,
			HiddenDim:         32,
			Activation:        network.TanH(),
			Init:              must(initwfn.NewGlorotU(1.0)),
			PretrainSolver:    must(solver.NewAdam(0.01, 1e-8, 0.9, 0.999, 1, 5.0)),
			AdversarialSolver: must(solver.NewAdam(0.01, 1e-8, 0.9, 0.999, 1, 5.0)),
		},
		Discriminator: Discriminator{
			Buckets:     2048,
			NGram:       3,
			HiddenSizes: []int{64},
			Activations: []*network.Activation{network.ReLU()},
			Init:        must(initwfn.NewGlorotU(1.0)),
			Solver:      must(solver.NewDefaultAdam(1e-4, 1)),
			L2:          0.2,
		},
		Oracle: Oracle{
			EmbDim:    32,
			HiddenDim: 32,
		},
		Rollout: Rollout{
			Num:        16,
			UpdateRate: 0,
		},
		Training: Training{
			PreEpochs:         120,
			TotalBatch:        200,
			GeneratedNum:      10000,
			GeneratorSteps:    1,
			EvalEvery:         5,
			DisPretrainRounds: 50,
			DisRounds:         5,
			DisEpochs:         3,
		},
		Log: logging.Config{
			Level:   "info",
			Journal: true,
		},
	}
}

// must panics if the default hyperparameters are illegal
func must[T any](v T, err error) T {
	if err != nil {
		panic(fmt.Sprintf("config: illegal default: %v", err))
	}
	return v
}

// ApplyEnv overrides configuration values with those set in the
// environment
func (c *Config) ApplyEnv() {
	if dir := os.Getenv(EnvSaveDir); dir != "" {
		c.SaveDir = dir
	}
	if level := os.Getenv(EnvLogLevel); level != "" {
		c.Log.Level = level
	}
}

// Validate checks a Config for errors
func (c Config) Validate() error {
	if c.SaveDir == "" {
		return fmt.Errorf("validate: no save directory")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("validate: %v", err)
	}

	t := c.Training
	if t.PreEpochs < 0 || t.TotalBatch < 0 {
		return fmt.Errorf("validate: number of epochs and iterations must " +
			"be non-negative")
	}
	if t.GeneratedNum < c.BatchSize {
		return fmt.Errorf("validate: generated corpora of %v sequences "+
			"contain no batch of %v", t.GeneratedNum, c.BatchSize)
	}
	if t.GeneratorSteps < 1 || t.EvalEvery < 1 || t.DisEpochs < 1 ||
		t.DisPretrainRounds < 0 || t.DisRounds < 0 {
		return fmt.Errorf("validate: illegal phase lengths %+v", t)
	}
	if c.Rollout.Num < 1 {
		return fmt.Errorf("validate: number of rollouts must be positive")
	}

	if err := c.ForGenerator().Validate(); err != nil {
		return fmt.Errorf("validate: generator: %v", err)
	}
	if err := c.ForDiscriminator().Validate(); err != nil {
		return fmt.Errorf("validate: discriminator: %v", err)
	}
	if err := c.ForOracle().Validate(); err != nil {
		return fmt.Errorf("validate: oracle: %v", err)
	}
	if err := c.ForRollout().Validate(); err != nil {
		return fmt.Errorf("validate: rollout: %v", err)
	}
	if err := c.ForExperiment(uuid.Nil, nil).Validate(); err != nil {
		return fmt.Errorf("validate: training: %v", err)
	}
	return nil
}

// ForGenerator returns the configuration of the generation policy
func (c Config) ForGenerator() generator.Config {
	return generator.Config{
		Vocab:             c.Vocab,
		SeqLength:         c.SeqLength,
		BatchSize:         c.BatchSize,
		StartToken:        c.StartToken,
		EmbDim:            c.Generator.EmbDim,
		HiddenDim:         c.Generator.HiddenDim,
		Activation:        c.Generator.Activation,
		Init:              c.Generator.Init,
		PretrainSolver:    c.Generator.PretrainSolver,
		AdversarialSolver: c.Generator.AdversarialSolver,
		Seed:              c.Seed,
	}
}

// ForDiscriminator returns the configuration of the discriminator
func (c Config) ForDiscriminator() discriminator.Config {
	return discriminator.Config{
		Vocab:       c.Vocab,
		SeqLength:   c.SeqLength,
		BatchSize:   c.BatchSize,
		Buckets:     c.Discriminator.Buckets,
		NGram:       c.Discriminator.NGram,
		HiddenSizes: c.Discriminator.HiddenSizes,
		Activations: c.Discriminator.Activations,
		Init:        c.Discriminator.Init,
		Solver:      c.Discriminator.Solver,
		L2:          c.Discriminator.L2,
	}
}

// ForOracle returns the configuration of the oracle. The oracle
// parameters are drawn from the seed after the oracle seed.
func (c Config) ForOracle() oracle.Config {
	return oracle.Config{
		Vocab:      c.Vocab,
		EmbDim:     c.Oracle.EmbDim,
		HiddenDim:  c.Oracle.HiddenDim,
		SeqLength:  c.SeqLength,
		BatchSize:  c.BatchSize,
		StartToken: c.StartToken,
		Seed:       c.Seed + 1,
	}
}

// ForRollout returns the configuration of the reward estimator.
// Rewards are discriminator probabilities, and so lie in [0, 1].
func (c Config) ForRollout() rollout.Config {
	return rollout.Config{
		UpdateRate: c.Rollout.UpdateRate,
		MinScore:   0,
		MaxScore:   1,
		Seed:       c.Seed + 3,
	}
}

// ForDataset returns the configuration of corpus batches
func (c Config) ForDataset() dataset.Config {
	return dataset.Config{
		BatchSize: c.BatchSize,
		SeqLength: c.SeqLength,
		Vocab:     c.Vocab,
		Seed:      c.Seed + 4,
	}
}

// ForExperiment returns the configuration of the training phases of
// the run identified by runID. Progress bars are written to progress,
// if not nil.
func (c Config) ForExperiment(runID uuid.UUID,
	progress io.Writer) experiment.Config {
	return experiment.Config{
		SaveDir:           c.SaveDir,
		Data:              c.ForDataset(),
		PreEpochs:         c.Training.PreEpochs,
		TotalBatch:        c.Training.TotalBatch,
		GeneratedNum:      c.Training.GeneratedNum,
		GeneratorSteps:    c.Training.GeneratorSteps,
		EvalEvery:         c.Training.EvalEvery,
		RolloutNum:        c.Rollout.Num,
		DisPretrainRounds: c.Training.DisPretrainRounds,
		DisRounds:         c.Training.DisRounds,
		DisEpochs:         c.Training.DisEpochs,
		RunID:             runID,
		Progress:          progress,
	}
}
