// Package generator implements a neural sequence generation policy
// which can be pretrained with maximum likelihood and trained with
// the policy gradient.
package generator

import (
	"encoding/gob"
	"fmt"

	"github.com/samuelfneumann/seqgan/agent"
	"github.com/samuelfneumann/seqgan/network"
	"github.com/samuelfneumann/seqgan/sequence"
	"github.com/samuelfneumann/seqgan/utils/floatutils"
	"github.com/samuelfneumann/seqgan/utils/matutils"
	"github.com/samuelfneumann/seqgan/utils/op"
	"golang.org/x/exp/rand"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Generator is an autoregressive policy over a fixed vocabulary. The
// distribution of each token is a softmax over the logits predicted
// by an MLP from the previous token, with the first token of every
// sequence conditioned on the start token.
//
// Two copies of the policy network are kept: one with batch size
// BatchSize() used to sample sequences, and one with batch size
// BatchSize() * SeqLength() which scores every token of a batch at
// once and is used to compute gradients.
type Generator struct {
	vocab      int
	seqLength  int
	batchSize  int
	startToken int
	rng        *rand.Rand

	behaviour *sampler

	trainNet       network.NeuralNet
	trainVM        G.VM
	actions        *G.Node // One-hot tokens whose log probability is taken
	tokenWeights   *G.Node // Per-token weighting of the log probabilities
	loss           *G.Node
	lossVal        G.Value
	pretrainSolver G.Solver
	advSolver      G.Solver
}

// New returns a new Generator
func New(c Config) (*Generator, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	tokens := c.BatchSize * c.SeqLength
	trainNet, err := network.NewMultiHeadMLP(
		c.Vocab,
		tokens,
		c.Vocab,
		G.NewGraph(),
		[]int{c.EmbDim, c.HiddenDim},
		[]bool{false, true},
		c.Init.InitWFn(),
		[]*network.Activation{network.Identity(), c.Activation},
	)
	if err != nil {
		return nil, fmt.Errorf("new: could not create policy network: %v", err)
	}

	logits := trainNet.Prediction()[0]
	actions := G.NewMatrix(
		trainNet.Graph(),
		tensor.Float64,
		G.WithShape(logits.Shape()...),
		G.WithName("actions"),
		G.WithInit(G.Zeroes()),
	)
	tokenWeights := G.NewVector(
		trainNet.Graph(),
		tensor.Float64,
		G.WithShape(tokens),
		G.WithName("tokenWeights"),
		G.WithInit(G.Zeroes()),
	)
	logProb := op.CategoricalLogProb(logits, actions)

	loss := G.Must(G.HadamardProd(logProb, tokenWeights))
	loss = G.Must(G.Mean(loss))
	loss = G.Must(G.Neg(loss))

	if _, err := G.Grad(loss, trainNet.Learnables()...); err != nil {
		return nil, fmt.Errorf("new: could not compute gradient: %v", err)
	}

	gen := &Generator{
		vocab:      c.Vocab,
		seqLength:  c.SeqLength,
		batchSize:  c.BatchSize,
		startToken: c.StartToken,
		rng:        rand.New(rand.NewSource(c.Seed)),

		trainNet:       trainNet,
		actions:        actions,
		tokenWeights:   tokenWeights,
		loss:           loss,
		pretrainSolver: c.PretrainSolver.Fresh(),
		advSolver:      c.AdversarialSolver.Fresh(),
	}
	G.Read(gen.loss, &gen.lossVal)
	gen.trainVM = G.NewTapeMachine(trainNet.Graph(),
		G.BindDualValues(trainNet.Learnables()...))

	behaviourNet, err := trainNet.CloneWithBatch(c.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("new: could not create sampling network: %v",
			err)
	}
	gen.behaviour = newSampler(behaviourNet, c.SeqLength, c.StartToken)

	return gen, nil
}

// BatchSize returns the number of sequences generated at once
func (g *Generator) BatchSize() int {
	return g.batchSize
}

// SeqLength returns the length of generated sequences
func (g *Generator) SeqLength() int {
	return g.seqLength
}

// Vocab returns the vocabulary size
func (g *Generator) Vocab() int {
	return g.vocab
}

// Generate samples a batch of sequences from the current policy
func (g *Generator) Generate() (sequence.Batch, error) {
	b := sequence.NewBatch(g.batchSize, g.seqLength)
	if err := g.behaviour.fill(g.rng, b, 0); err != nil {
		return nil, fmt.Errorf("generate: %v", err)
	}
	return b, nil
}

// PretrainStep performs one maximum likelihood update on a batch of
// reference sequences and returns the mean per-token negative
// log-likelihood of the batch before the update
func (g *Generator) PretrainStep(b sequence.Batch) (float64, error) {
	weights := make([]float64, g.batchSize*g.seqLength)
	for i := range weights {
		weights[i] = 1.0
	}

	loss, err := g.step(b, weights, g.pretrainSolver)
	if err != nil {
		return 0, fmt.Errorf("pretrainStep: %w", err)
	}
	return loss, nil
}

// TrainStep performs one policy gradient update. Each token of b is
// treated as an action taken by the policy, reinforced by the
// matching entry of rewards.
func (g *Generator) TrainStep(b sequence.Batch, rewards *sequence.RewardMatrix) error {
	if rewards == nil {
		return fmt.Errorf("trainStep: no rewards")
	}
	if err := rewards.Aligned(b); err != nil {
		return fmt.Errorf("trainStep: %w", err)
	}
	weights := rewards.Data()
	if !floatutils.AllFinite(weights...) {
		return fmt.Errorf("trainStep: rewards are not all finite")
	}

	if _, err := g.step(b, weights, g.advSolver); err != nil {
		return fmt.Errorf("trainStep: %w", err)
	}
	return nil
}

// step performs a single gradient step minimizing the negative mean
// of the weighted token log probabilities of b
func (g *Generator) step(b sequence.Batch, weights []float64,
	solver G.Solver) (float64, error) {
	if err := b.Validate(g.batchSize, g.seqLength, g.vocab); err != nil {
		return 0, err
	}

	tokens := b.Flatten()
	prev := make([]int, len(tokens))
	for i := range tokens {
		if i%g.seqLength == 0 {
			prev[i] = g.startToken
		} else {
			prev[i] = tokens[i-1]
		}
	}

	if err := g.trainNet.SetInput(matutils.OneHot(prev, g.vocab)); err != nil {
		return 0, err
	}
	actions := tensor.New(
		tensor.WithShape(g.actions.Shape()...),
		tensor.WithBacking(matutils.OneHot(tokens, g.vocab)),
	)
	if err := G.Let(g.actions, actions); err != nil {
		return 0, err
	}
	tokenWeights := tensor.New(
		tensor.WithShape(g.tokenWeights.Shape()...),
		tensor.WithBacking(weights),
	)
	if err := G.Let(g.tokenWeights, tokenWeights); err != nil {
		return 0, err
	}

	defer g.trainVM.Reset()
	if err := g.trainVM.RunAll(); err != nil {
		return 0, fmt.Errorf("could not compute gradient: %v", err)
	}
	loss, err := scalar(g.lossVal)
	if err != nil {
		return 0, err
	}
	if !floatutils.AllFinite(loss) {
		return loss, fmt.Errorf("%w: loss is %v", agent.ErrDiverged, loss)
	}
	if err := solver.Step(g.trainNet.Model()); err != nil {
		return 0, fmt.Errorf("could not step solver: %v", err)
	}

	// Sample with the updated policy from now on
	if err := g.behaviour.net.Set(g.trainNet); err != nil {
		return 0, fmt.Errorf("could not update sampling network: %v", err)
	}
	return loss, nil
}

// Freeze returns a Snapshot of the current policy
func (g *Generator) Freeze() (agent.Snapshot, error) {
	net, err := g.trainNet.CloneWithBatch(g.batchSize)
	if err != nil {
		return nil, fmt.Errorf("freeze: %v", err)
	}
	return newSnapshot(net, g.seqLength, g.startToken), nil
}

// GobEncode implements the gob.GobEncoder interface
func (g *Generator) GobEncode() ([]byte, error) {
	encoder, ok := g.trainNet.(gob.GobEncoder)
	if !ok {
		return nil, fmt.Errorf("gobEncode: policy network of type %T "+
			"cannot be encoded", g.trainNet)
	}
	return encoder.GobEncode()
}

// GobDecode implements the gob.GobDecoder interface. The receiver must
// have been created with the same architecture as the encoded
// Generator.
func (g *Generator) GobDecode(in []byte) error {
	decoder, ok := g.trainNet.(gob.GobDecoder)
	if !ok {
		return fmt.Errorf("gobDecode: policy network of type %T cannot be "+
			"decoded", g.trainNet)
	}
	if err := decoder.GobDecode(in); err != nil {
		return fmt.Errorf("gobDecode: %w", err)
	}
	if err := g.behaviour.net.Set(g.trainNet); err != nil {
		return fmt.Errorf("gobDecode: %w", err)
	}
	return nil
}

// Params returns a copy of the policy parameters
func (g *Generator) Params() [][]float64 {
	return g.trainNet.Params()
}

// scalar returns the float64 held by a scalar Gorgonia Value
func scalar(v G.Value) (float64, error) {
	if v == nil {
		return 0, fmt.Errorf("scalar: value not computed")
	}
	switch data := v.Data().(type) {
	case float64:
		return data, nil
	case []float64:
		if len(data) == 1 {
			return data[0], nil
		}
	}
	return 0, fmt.Errorf("scalar: value %v is not a scalar", v)
}
