package generator

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/seqgan/network"
	"github.com/samuelfneumann/seqgan/sequence"
	"github.com/samuelfneumann/seqgan/utils/matutils"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"
)

// sampler runs the forward pass of a policy network one token at a
// time to fill in sequences
type sampler struct {
	net        network.NeuralNet
	vm         G.VM
	vocab      int
	seqLength  int
	startToken int

	probs []float64
}

func newSampler(net network.NeuralNet, seqLength, startToken int) *sampler {
	return &sampler{
		net:        net,
		vm:         G.NewTapeMachine(net.Graph()),
		vocab:      net.Outputs(),
		seqLength:  seqLength,
		startToken: startToken,
		probs:      make([]float64, net.Outputs()),
	}
}

// fill samples every token of b at positions >= t. Tokens at
// positions < t are the conditioning prefix and are left untouched.
func (s *sampler) fill(rng *rand.Rand, b sequence.Batch, t int) error {
	if err := s.check(b, t); err != nil {
		return fmt.Errorf("fill: %w", err)
	}

	prev := make([]int, len(b))
	for i := range b {
		if t == 0 {
			prev[i] = s.startToken
		} else {
			prev[i] = b[i][t-1]
		}
	}

	for j := t; j < s.seqLength; j++ {
		if err := s.net.SetInput(matutils.OneHot(prev, s.vocab)); err != nil {
			return fmt.Errorf("fill: %v", err)
		}
		if err := s.vm.RunAll(); err != nil {
			return fmt.Errorf("fill: could not run policy: %v", err)
		}
		logits := s.net.Output()[0].Data().([]float64)

		for i := range b {
			tok := s.sample(rng, logits[i*s.vocab:(i+1)*s.vocab])
			b[i][j] = tok
			prev[i] = tok
		}
		s.vm.Reset()
	}
	return nil
}

// sample draws a token from the softmax distribution over logits
func (s *sampler) sample(rng *rand.Rand, logits []float64) int {
	lse := floats.LogSumExp(logits)
	for k, l := range logits {
		s.probs[k] = math.Exp(l - lse)
	}
	return int(distuv.NewCategorical(s.probs, rng).Rand())
}

// check returns an error if b cannot be filled from position t
func (s *sampler) check(b sequence.Batch, t int) error {
	if len(b) != s.net.BatchSize() {
		return fmt.Errorf("%w: batch of %v sequences for a policy with "+
			"batch size %v", sequence.ErrShape, len(b), s.net.BatchSize())
	}
	if t < 0 || t > s.seqLength {
		return fmt.Errorf("%w: prefix length %v for sequences of length %v",
			sequence.ErrShape, t, s.seqLength)
	}
	for i := range b {
		if len(b[i]) != s.seqLength {
			return fmt.Errorf("%w: sequence %v has length %v, want %v",
				sequence.ErrShape, i, len(b[i]), s.seqLength)
		}
		for j := 0; j < t; j++ {
			if b[i][j] < 0 || b[i][j] >= s.vocab {
				return fmt.Errorf("%w: token %v at position %v of sequence "+
					"%v", sequence.ErrToken, b[i][j], j, i)
			}
		}
	}
	return nil
}
