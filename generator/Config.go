package generator

import (
	"fmt"

	"github.com/samuelfneumann/seqgan/initwfn"
	"github.com/samuelfneumann/seqgan/network"
	"github.com/samuelfneumann/seqgan/solver"
)

// Config implements a configuration of a Generator
type Config struct {
	Vocab      int
	SeqLength  int
	BatchSize  int
	StartToken int

	// Network architecture. The previous token is embedded into EmbDim
	// features, which are passed through a single hidden layer of
	// HiddenDim units with activation Activation.
	EmbDim     int
	HiddenDim  int
	Activation *network.Activation
	Init       *initwfn.InitWFn

	// PretrainSolver is used for maximum likelihood updates, and
	// AdversarialSolver for policy gradient updates. Each keeps its
	// own state.
	PretrainSolver    *solver.Solver
	AdversarialSolver *solver.Solver

	Seed uint64
}

// Validate checks a Config for errors
func (c Config) Validate() error {
	if c.Vocab < 2 {
		return fmt.Errorf("validate: vocabulary must contain at least 2 "+
			"tokens (have %v)", c.Vocab)
	}
	if c.SeqLength < 1 || c.BatchSize < 1 {
		return fmt.Errorf("validate: sequence length (%v) and batch size "+
			"(%v) must be positive", c.SeqLength, c.BatchSize)
	}
	if c.StartToken < 0 || c.StartToken >= c.Vocab {
		return fmt.Errorf("validate: start token %v outside vocabulary",
			c.StartToken)
	}
	if c.EmbDim < 1 || c.HiddenDim < 1 {
		return fmt.Errorf("validate: embedding (%v) and hidden (%v) "+
			"dimensions must be positive", c.EmbDim, c.HiddenDim)
	}
	if c.Activation == nil {
		return fmt.Errorf("validate: no hidden activation")
	}
	if c.Init == nil {
		return fmt.Errorf("validate: no weight initializer")
	}
	if c.PretrainSolver == nil || c.AdversarialSolver == nil {
		return fmt.Errorf("validate: both a pretraining and an adversarial " +
			"solver are required")
	}
	return nil
}
