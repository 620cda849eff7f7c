// Package discriminator implements a binary classifier which scores
// how likely a sequence is to have been drawn from the reference
// corpus rather than generated.
package discriminator

import (
	"encoding/gob"
	"fmt"

	"github.com/samuelfneumann/seqgan/agent"
	"github.com/samuelfneumann/seqgan/network"
	"github.com/samuelfneumann/seqgan/sequence"
	"github.com/samuelfneumann/seqgan/utils/floatutils"
	"github.com/samuelfneumann/seqgan/utils/op"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Discriminator is an MLP over hashed n-gram features of a sequence.
// The network predicts the logit of the probability that a sequence is
// real; Score returns that probability.
//
// As with other models, one network is trained and a second,
// synchronized after every training step, is used for prediction.
type Discriminator struct {
	vocab     int
	seqLength int
	batchSize int
	featurizer

	trainNet network.NeuralNet
	trainVM  G.VM
	labels   *G.Node
	loss     *G.Node
	lossVal  G.Value
	solver   G.Solver

	scoreNet network.NeuralNet
	scoreVM  G.VM
}

// New returns a new Discriminator
func New(c Config) (*Discriminator, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	biases := make([]bool, len(c.HiddenSizes))
	for i := range biases {
		biases[i] = true
	}
	trainNet, err := network.NewSingleHeadMLP(c.Buckets, c.BatchSize,
		G.NewGraph(), c.HiddenSizes, biases, c.Init.InitWFn(), c.Activations)
	if err != nil {
		return nil, fmt.Errorf("new: could not create network: %v", err)
	}

	logits := trainNet.Prediction()[0]
	labels := G.NewMatrix(
		trainNet.Graph(),
		tensor.Float64,
		G.WithShape(logits.Shape()...),
		G.WithName("labels"),
		G.WithInit(G.Zeroes()),
	)
	loss := G.Must(G.Mean(op.SigmoidCrossEntropy(logits, labels)))
	if c.L2 > 0 {
		loss = G.Must(G.Add(loss, op.L2(trainNet.OutputWeights(), c.L2)))
	}

	if _, err := G.Grad(loss, trainNet.Learnables()...); err != nil {
		return nil, fmt.Errorf("new: could not compute gradient: %v", err)
	}

	d := &Discriminator{
		vocab:      c.Vocab,
		seqLength:  c.SeqLength,
		batchSize:  c.BatchSize,
		featurizer: featurizer{buckets: c.Buckets, ngram: c.NGram},
		trainNet:   trainNet,
		labels:     labels,
		loss:       loss,
		solver:     c.Solver.Fresh(),
	}
	G.Read(d.loss, &d.lossVal)
	d.trainVM = G.NewTapeMachine(trainNet.Graph(),
		G.BindDualValues(trainNet.Learnables()...))

	if d.scoreNet, err = trainNet.Clone(); err != nil {
		return nil, fmt.Errorf("new: could not create scoring network: %v",
			err)
	}
	d.scoreVM = G.NewTapeMachine(d.scoreNet.Graph())

	return d, nil
}

// BatchSize returns the number of sequences in each training batch
func (d *Discriminator) BatchSize() int {
	return d.batchSize
}

// Train performs one gradient step on a batch of sequences x with
// labels y, where 1 denotes a reference sequence and 0 a generated
// sequence. The loss and accuracy on the batch before the update are
// returned.
func (d *Discriminator) Train(x sequence.Batch, y []float64) (float64,
	float64, error) {
	if err := x.Validate(d.batchSize, d.seqLength, d.vocab); err != nil {
		return 0, 0, fmt.Errorf("train: %w", err)
	}
	if len(y) != len(x) {
		return 0, 0, fmt.Errorf("train: %w: %v labels for %v sequences",
			sequence.ErrShape, len(y), len(x))
	}
	if !floatutils.InRange(0, 1, y...) {
		return 0, 0, fmt.Errorf("train: labels must be in [0, 1]")
	}

	if err := d.trainNet.SetInput(d.features(x)); err != nil {
		return 0, 0, fmt.Errorf("train: %v", err)
	}
	labels := tensor.New(
		tensor.WithShape(d.labels.Shape()...),
		tensor.WithBacking(append([]float64(nil), y...)),
	)
	if err := G.Let(d.labels, labels); err != nil {
		return 0, 0, fmt.Errorf("train: %v", err)
	}

	defer d.trainVM.Reset()
	if err := d.trainVM.RunAll(); err != nil {
		return 0, 0, fmt.Errorf("train: could not compute gradient: %v", err)
	}

	var loss float64
	switch v := d.lossVal.Data().(type) {
	case float64:
		loss = v
	case []float64:
		loss = v[0]
	}
	if !floatutils.AllFinite(loss) {
		return loss, 0, fmt.Errorf("train: %w: loss is %v", agent.ErrDiverged,
			loss)
	}

	logits := d.trainNet.Output()[0].Data().([]float64)
	correct := 0
	for i, z := range logits {
		if (z > 0) == (y[i] > 0.5) {
			correct++
		}
	}
	accuracy := float64(correct) / float64(len(y))

	if err := d.solver.Step(d.trainNet.Model()); err != nil {
		return 0, 0, fmt.Errorf("train: could not step solver: %v", err)
	}
	if err := d.scoreNet.Set(d.trainNet); err != nil {
		return 0, 0, fmt.Errorf("train: could not update scoring network: "+
			"%v", err)
	}
	return loss, accuracy, nil
}

// Score returns the probability that each sequence of b is a
// reference sequence. Batches of any size may be scored.
func (d *Discriminator) Score(b sequence.Batch) ([]float64, error) {
	if err := b.Validate(len(b), d.seqLength, d.vocab); err != nil {
		return nil, fmt.Errorf("score: %w", err)
	}

	scores := make([]float64, 0, len(b))
	for start := 0; start < len(b); start += d.batchSize {
		end := min(start+d.batchSize, len(b))

		// Pad the final chunk; padded rows are discarded
		input := make([]float64, d.batchSize*d.buckets)
		copy(input, d.features(b[start:end]))

		if err := d.scoreNet.SetInput(input); err != nil {
			return nil, fmt.Errorf("score: %v", err)
		}
		if err := d.scoreVM.RunAll(); err != nil {
			return nil, fmt.Errorf("score: %v", err)
		}
		logits := d.scoreNet.Output()[0].Data().([]float64)
		for _, z := range logits[:end-start] {
			scores = append(scores, floatutils.Sigmoid(z))
		}
		d.scoreVM.Reset()
	}
	return scores, nil
}

// GobEncode implements the gob.GobEncoder interface
func (d *Discriminator) GobEncode() ([]byte, error) {
	encoder, ok := d.trainNet.(gob.GobEncoder)
	if !ok {
		return nil, fmt.Errorf("gobEncode: network of type %T cannot be "+
			"encoded", d.trainNet)
	}
	return encoder.GobEncode()
}

// GobDecode implements the gob.GobDecoder interface. The receiver must
// have been created with the same architecture as the encoded
// Discriminator.
func (d *Discriminator) GobDecode(in []byte) error {
	decoder, ok := d.trainNet.(gob.GobDecoder)
	if !ok {
		return fmt.Errorf("gobDecode: network of type %T cannot be decoded",
			d.trainNet)
	}
	if err := decoder.GobDecode(in); err != nil {
		return fmt.Errorf("gobDecode: %w", err)
	}
	if err := d.scoreNet.Set(d.trainNet); err != nil {
		return fmt.Errorf("gobDecode: %w", err)
	}
	return nil
}

// Params returns a copy of the discriminator's parameters
func (d *Discriminator) Params() [][]float64 {
	return d.trainNet.Params()
}
