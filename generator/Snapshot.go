package generator

import (
	"fmt"

	"github.com/samuelfneumann/seqgan/agent"
	"github.com/samuelfneumann/seqgan/network"
	"github.com/samuelfneumann/seqgan/sequence"
	"golang.org/x/exp/rand"
)

// snapshot is a frozen copy of a Generator's policy. Its network lives
// on its own computational graph, so training the Generator never
// changes the snapshot. A snapshot is not safe for concurrent use.
type snapshot struct {
	*sampler
}

func newSnapshot(net network.NeuralNet, seqLength, startToken int) *snapshot {
	return &snapshot{newSampler(net, seqLength, startToken)}
}

// Shape returns the flattened shapes of the snapshot's parameters
func (s *snapshot) Shape() []int {
	return s.net.Shapes()
}

// Complete samples every token of partial at positions >= t
func (s *snapshot) Complete(rng *rand.Rand, partial sequence.Batch, t int) error {
	if err := s.fill(rng, partial, t); err != nil {
		return fmt.Errorf("complete: %w", err)
	}
	return nil
}

// Blend returns a new snapshot with parameters
// rate * s + (1 - rate) * fresh
func (s *snapshot) Blend(fresh agent.Snapshot, rate float64) (agent.Snapshot, error) {
	if rate < 0 || rate > 1 {
		return nil, fmt.Errorf("blend: rate %v outside [0, 1]", rate)
	}
	f, ok := fresh.(*snapshot)
	if !ok {
		return nil, fmt.Errorf("blend: cannot blend with snapshot of type %T",
			fresh)
	}

	net, err := f.net.Clone()
	if err != nil {
		return nil, fmt.Errorf("blend: %v", err)
	}
	if err := net.Polyak(s.net, rate); err != nil {
		return nil, fmt.Errorf("blend: %w", err)
	}
	return newSnapshot(net, s.seqLength, s.startToken), nil
}
