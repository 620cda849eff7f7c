package discriminator

import (
	"fmt"

	"github.com/samuelfneumann/seqgan/initwfn"
	"github.com/samuelfneumann/seqgan/network"
	"github.com/samuelfneumann/seqgan/solver"
)

// Config implements a configuration of a Discriminator
type Config struct {
	Vocab     int
	SeqLength int
	BatchSize int

	// Sequences are featurized as counts of their n-grams for n in
	// [1, NGram], hashed into Buckets features
	Buckets int
	NGram   int

	HiddenSizes []int
	Activations []*network.Activation
	Init        *initwfn.InitWFn
	Solver      *solver.Solver

	// L2 is the coefficient of the L2 penalty on the output layer
	L2 float64
}

// Validate checks a Config for errors
func (c Config) Validate() error {
	if c.Vocab < 1 || c.SeqLength < 1 || c.BatchSize < 1 {
		return fmt.Errorf("validate: vocabulary (%v), sequence length (%v) "+
			"and batch size (%v) must be positive", c.Vocab, c.SeqLength,
			c.BatchSize)
	}
	if c.Buckets < 1 {
		return fmt.Errorf("validate: buckets must be positive")
	}
	if c.NGram < 1 || c.NGram > c.SeqLength {
		return fmt.Errorf("validate: n-gram size %v outside [1, %v]", c.NGram,
			c.SeqLength)
	}
	if len(c.HiddenSizes) != len(c.Activations) {
		return fmt.Errorf("validate: %v hidden layers with %v activations",
			len(c.HiddenSizes), len(c.Activations))
	}
	if c.Init == nil || c.Solver == nil {
		return fmt.Errorf("validate: weight initializer and solver are " +
			"required")
	}
	if c.L2 < 0 {
		return fmt.Errorf("validate: l2 penalty must be non-negative")
	}
	return nil
}
