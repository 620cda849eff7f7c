// Package agent defines the interfaces of the models which take part
// in adversarial sequence training
package agent

import (
	"errors"

	"github.com/samuelfneumann/seqgan/sequence"
	"golang.org/x/exp/rand"
)

// ErrDiverged is returned by a training step whose loss is NaN or
// infinite
var ErrDiverged = errors.New("training diverged")

// Sampler generates batches of sequences
type Sampler interface {
	// Generate returns BatchSize() fresh sequences sampled from the
	// current parameters
	Generate() (sequence.Batch, error)
	BatchSize() int
}

// Generator is a stochastic autoregressive policy over a fixed
// vocabulary. The Generator is the policy being trained: each token it
// emits is an action, and the reward for those actions is estimated by
// completing partial sequences with a frozen Snapshot of the policy.
type Generator interface {
	Sampler
	Freezer

	// PretrainStep performs a single supervised (maximum likelihood)
	// update on a batch of reference sequences and returns the loss
	PretrainStep(sequence.Batch) (float64, error)

	// TrainStep performs a single policy gradient update, treating the
	// tokens of the batch as the sampled actions and the RewardMatrix
	// as the per-token reward
	TrainStep(sequence.Batch, *sequence.RewardMatrix) error
}

// Freezer is a policy which can produce frozen copies of itself
type Freezer interface {
	// Freeze returns a Snapshot holding a copy of the policy's
	// current parameters. Later updates to the policy are not
	// reflected in the returned Snapshot.
	Freeze() (Snapshot, error)
}

// Snapshot is a read-only copy of policy parameters used only for
// inference. A Snapshot is never used to compute gradients.
type Snapshot interface {
	// Shape returns the shapes of the parameters of the snapshot,
	// flattened in order
	Shape() []int

	// Complete fills in every token of partial at positions >= t by
	// sampling from the snapshot. Tokens at positions < t are fixed
	// and must not be modified.
	Complete(rng *rand.Rand, partial sequence.Batch, t int) error
}

// Blender is a Snapshot which can be mixed with a fresher Snapshot of
// the same policy.
type Blender interface {
	Snapshot

	// Blend returns a new Snapshot with parameters
	// rate * old + (1 - rate) * fresh, where old are the parameters
	// of the receiver. The receiver is not modified.
	Blend(fresh Snapshot, rate float64) (Snapshot, error)
}

// Scorer maps complete sequences to realism scores
type Scorer interface {
	// Score returns one score in the Scorer's output range for each
	// sequence in the batch
	Score(sequence.Batch) ([]float64, error)
}

// Discriminator is a binary classifier over complete sequences which
// distinguishes reference (label 1) from generated (label 0) sequences
type Discriminator interface {
	Scorer

	// Train performs a single supervised step on a batch of sequences
	// and labels, returning the loss and accuracy on the batch
	Train(x sequence.Batch, y []float64) (loss, accuracy float64, err error)
}

// Oracle is the fixed target distribution. It provides reference
// sequences and measures generated sequences, but never provides
// gradients for training.
type Oracle interface {
	Sampler

	// NLL returns the mean per-token negative log-likelihood of the
	// batch under the oracle
	NLL(sequence.Batch) (float64, error)
}
