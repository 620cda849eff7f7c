// Package experiment implements functionality for running an
// adversarial training experiment
package experiment

import (
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/samuelfneumann/seqgan/agent"
	"github.com/samuelfneumann/seqgan/dataset"
	"github.com/samuelfneumann/seqgan/experiment/checkpointer"
	"github.com/samuelfneumann/seqgan/sequence"
)

// ErrDiverged is returned when a training loss becomes NaN or infinite
var ErrDiverged = agent.ErrDiverged

// Interface Experiment outlines structs that can run experiments. The
// Run() method runs every remaining phase of the experiment, returning
// the first error which prevents the experiment from continuing.
type Experiment interface {
	Run() error
}

// Phase is a phase of adversarial training. Phases always run in the
// order PretrainGenerator, PretrainDiscriminator, Adversarial, Done.
type Phase int

const (
	PretrainGenerator Phase = iota
	PretrainDiscriminator
	Adversarial
	Done
)

// String implements the fmt.Stringer interface
func (p Phase) String() string {
	switch p {
	case PretrainGenerator:
		return "pretrain-generator"
	case PretrainDiscriminator:
		return "pretrain-discriminator"
	case Adversarial:
		return "adversarial"
	case Done:
		return "done"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Next returns the phase following p
func (p Phase) Next() Phase {
	if p >= Done {
		return Done
	}
	return p + 1
}

// remaining returns p and every phase after it, excluding Done
func (p Phase) remaining() []string {
	var phases []string
	for ; p < Done; p = p.Next() {
		phases = append(phases, p.String())
	}
	return phases
}

// Generator is a generator policy which can be checkpointed
type Generator interface {
	agent.Generator
	checkpointer.Serializable
	SeqLength() int
	Vocab() int
}

// Discriminator is a discriminator which can be checkpointed
type Discriminator interface {
	agent.Discriminator
	checkpointer.Serializable
}

// RewardEstimator estimates the per-token rewards of generated
// sequences from a frozen copy of the generator
type RewardEstimator interface {
	Reward(batch sequence.Batch, rolloutNum int,
		scorer agent.Scorer) (*sequence.RewardMatrix, error)

	// UpdateParams refreshes the frozen copy of the generator
	UpdateParams() error
}

// EstimatorFactory constructs a RewardEstimator for a live policy. It
// is called once pretraining has finished, so that the estimator
// starts from the pretrained policy.
type EstimatorFactory func(live agent.Freezer) (RewardEstimator, error)

// Config represents a configuration of an experiment
type Config struct {
	// SaveDir holds the corpora, checkpoints, phase marker and log
	SaveDir string

	// Data describes the batches of every corpus
	Data dataset.Config

	PreEpochs    int // Epochs of generator pretraining
	TotalBatch   int // Adversarial iterations
	GeneratedNum int // Sequences written to each generated corpus

	// GeneratorSteps is the number of policy gradient steps taken in
	// each adversarial iteration
	GeneratorSteps int

	// EvalEvery is the number of epochs or iterations between
	// evaluations of the generator
	EvalEvery int

	// RolloutNum is the number of rollouts used to estimate rewards
	RolloutNum int

	DisPretrainRounds int // Discriminator rounds before adversarial training
	DisRounds         int // Discriminator rounds per adversarial iteration
	DisEpochs         int // Epochs per discriminator round

	// RunID identifies the run in the phase marker
	RunID uuid.UUID

	// Progress receives progress bars for each phase. If nil, no
	// progress is displayed.
	Progress io.Writer
}

// Validate checks a Config for errors
func (c Config) Validate() error {
	if c.SaveDir == "" {
		return fmt.Errorf("validate: no save directory")
	}
	if err := c.Data.Validate(); err != nil {
		return fmt.Errorf("validate: %v", err)
	}

	counts := []struct {
		name  string
		value int
		min   int
	}{
		{"PreEpochs", c.PreEpochs, 0},
		{"TotalBatch", c.TotalBatch, 0},
		{"GeneratedNum", c.GeneratedNum, c.Data.BatchSize},
		{"GeneratorSteps", c.GeneratorSteps, 1},
		{"EvalEvery", c.EvalEvery, 1},
		{"RolloutNum", c.RolloutNum, 1},
		{"DisPretrainRounds", c.DisPretrainRounds, 0},
		{"DisRounds", c.DisRounds, 0},
		{"DisEpochs", c.DisEpochs, 1},
	}
	for _, count := range counts {
		if count.value < count.min {
			return fmt.Errorf("validate: %v must be at least %v, got %v",
				count.name, count.min, count.value)
		}
	}
	return nil
}
