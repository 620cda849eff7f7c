// Package oracle implements the fixed target sequence distribution.
// The oracle produces the reference corpus and measures the negative
// log-likelihood of generated corpora; it is never trained.
package oracle

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"

	"github.com/samuelfneumann/seqgan/sequence"
	"github.com/samuelfneumann/seqgan/utils/matutils"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ErrMissingParams is returned when the oracle parameters cannot be
// found or do not describe an oracle of the configured size
var ErrMissingParams = errors.New("oracle parameters missing or malformed")

// Config describes an Oracle
type Config struct {
	Vocab      int
	EmbDim     int
	HiddenDim  int
	SeqLength  int
	BatchSize  int
	StartToken int
	Seed       uint64
}

// Validate checks a Config for errors
func (c Config) Validate() error {
	if c.Vocab < 1 || c.EmbDim < 1 || c.HiddenDim < 1 {
		return fmt.Errorf("validate: vocabulary (%v), embedding (%v) and "+
			"hidden (%v) sizes must be positive", c.Vocab, c.EmbDim,
			c.HiddenDim)
	}
	if c.SeqLength < 1 || c.BatchSize < 1 {
		return fmt.Errorf("validate: sequence length (%v) and batch size "+
			"(%v) must be positive", c.SeqLength, c.BatchSize)
	}
	if c.StartToken < 0 || c.StartToken >= c.Vocab {
		return fmt.Errorf("validate: start token %v outside vocabulary",
			c.StartToken)
	}
	return nil
}

// ParamSeed returns the seed from which NewRandom draws parameters.
// Sampling uses Seed itself.
func (c Config) ParamSeed() uint64 {
	return c.Seed + 1
}

// Params are the persisted parameters of an Oracle. Matrices are
// stored in row major order.
type Params struct {
	Vocab     int
	EmbDim    int
	HiddenDim int

	Embedding []float64 // Vocab x EmbDim
	Hidden    []float64 // EmbDim x HiddenDim
	Output    []float64 // HiddenDim x Vocab
	Bias      []float64 // Vocab
}

// check returns an error if the Params do not describe an oracle of
// the configured size
func (p Params) check(c Config) error {
	if p.Vocab != c.Vocab || p.EmbDim != c.EmbDim ||
		p.HiddenDim != c.HiddenDim {
		return fmt.Errorf("oracle of size (%v, %v, %v) does not match "+
			"configuration (%v, %v, %v)", p.Vocab, p.EmbDim, p.HiddenDim,
			c.Vocab, c.EmbDim, c.HiddenDim)
	}
	if len(p.Embedding) != p.Vocab*p.EmbDim ||
		len(p.Hidden) != p.EmbDim*p.HiddenDim ||
		len(p.Output) != p.HiddenDim*p.Vocab || len(p.Bias) != p.Vocab {
		return fmt.Errorf("parameter sizes do not match oracle size")
	}
	for _, w := range [][]float64{p.Embedding, p.Hidden, p.Output, p.Bias} {
		for _, v := range w {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("parameters are not all finite")
			}
		}
	}
	return nil
}

// Oracle is a first order Markov model over tokens. The distribution
// of each token given the previous token p is
//
//	softmax(tanh(Embedding[p] · Hidden) · Output + Bias)
//
// which factorizes the transition matrix so that large vocabularies
// can be used. The first token of every sequence is conditioned on
// the start token.
type Oracle struct {
	params     Params
	embedding  *mat.Dense
	hidden     *mat.Dense
	output     *mat.Dense
	seqLength  int
	batchSize  int
	startToken int

	rng *rand.Rand
}

// NewRandom returns a new Oracle with random parameters drawn from
// a standard normal distribution
func NewRandom(c Config) (*Oracle, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("newRandom: %v", err)
	}

	normal := distuv.Normal{
		Mu:    0,
		Sigma: 1,
		Src:   rand.NewSource(c.ParamSeed()),
	}
	draw := func(n int) []float64 {
		w := make([]float64, n)
		for i := range w {
			w[i] = normal.Rand()
		}
		return w
	}

	p := Params{
		Vocab:     c.Vocab,
		EmbDim:    c.EmbDim,
		HiddenDim: c.HiddenDim,
		Embedding: draw(c.Vocab * c.EmbDim),
		Hidden:    draw(c.EmbDim * c.HiddenDim),
		Output:    draw(c.HiddenDim * c.Vocab),
		Bias:      draw(c.Vocab),
	}
	return New(c, p)
}

// New returns a new Oracle with the given parameters
func New(c Config, p Params) (*Oracle, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	if err := p.check(c); err != nil {
		return nil, fmt.Errorf("new: %w: %v", ErrMissingParams, err)
	}

	return &Oracle{
		params:     p,
		embedding:  mat.NewDense(p.Vocab, p.EmbDim, p.Embedding),
		hidden:     mat.NewDense(p.EmbDim, p.HiddenDim, p.Hidden),
		output:     mat.NewDense(p.HiddenDim, p.Vocab, p.Output),
		seqLength:  c.SeqLength,
		batchSize:  c.BatchSize,
		startToken: c.StartToken,
		rng:        rand.New(rand.NewSource(c.Seed)),
	}, nil
}

// Load loads the Oracle parameters stored at path
func Load(path string, c Config) (*Oracle, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load: %w: %v", ErrMissingParams, err)
	} else if err != nil {
		return nil, fmt.Errorf("load: %v", err)
	}
	defer f.Close()

	var p Params
	if err := gob.NewDecoder(f).Decode(&p); err != nil {
		return nil, fmt.Errorf("load: %w: could not decode %v: %v",
			ErrMissingParams, path, err)
	}

	o, err := New(c, p)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	return o, nil
}

// Save stores the Oracle parameters at path. The file is replaced
// atomically.
func (o *Oracle) Save(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("save: %v", err)
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(o.params); err != nil {
		tmp.Close()
		return fmt.Errorf("save: could not encode parameters: %v", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save: %v", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("save: %v", err)
	}
	return nil
}

// BatchSize returns the number of sequences generated at once
func (o *Oracle) BatchSize() int {
	return o.batchSize
}

// logProbs returns the log probabilities of the next token for each
// previous token in prev, one row per element of prev
func (o *Oracle) logProbs(prev []int) *mat.Dense {
	x := mat.NewDense(len(prev), o.params.EmbDim, nil)
	for i, p := range prev {
		x.SetRow(i, o.embedding.RawRowView(p))
	}

	var h mat.Dense
	h.Mul(x, o.hidden)
	h.Apply(func(_, _ int, v float64) float64 { return math.Tanh(v) }, &h)

	logits := mat.NewDense(len(prev), o.params.Vocab, nil)
	logits.Mul(&h, o.output)
	for i := range prev {
		row := logits.RawRowView(i)
		for k := range row {
			row[k] += o.params.Bias[k]
		}
	}

	matutils.LogSoftmaxRows(logits)
	return logits
}

// Generate samples a batch of sequences from the Oracle
func (o *Oracle) Generate() (sequence.Batch, error) {
	b := sequence.NewBatch(o.batchSize, o.seqLength)

	prev := make([]int, o.batchSize)
	for i := range prev {
		prev[i] = o.startToken
	}
	probs := make([]float64, o.params.Vocab)

	for t := 0; t < o.seqLength; t++ {
		logProbs := o.logProbs(prev)
		for i := range b {
			for k, lp := range logProbs.RawRowView(i) {
				probs[k] = math.Exp(lp)
			}
			tok := int(distuv.NewCategorical(probs, o.rng).Rand())
			b[i][t] = tok
			prev[i] = tok
		}
	}
	return b, nil
}

// NLL returns the mean per-token negative log-likelihood of b under
// the Oracle
func (o *Oracle) NLL(b sequence.Batch) (float64, error) {
	if len(b) == 0 {
		return 0, fmt.Errorf("nll: %w: empty batch", sequence.ErrShape)
	}
	if err := b.Validate(len(b), o.seqLength, o.params.Vocab); err != nil {
		return 0, fmt.Errorf("nll: %w", err)
	}

	tokens := b.Flatten()
	prev := make([]int, len(tokens))
	for i := range tokens {
		if i%o.seqLength == 0 {
			prev[i] = o.startToken
		} else {
			prev[i] = tokens[i-1]
		}
	}

	logProbs := o.logProbs(prev)
	nll := 0.0
	for i, tok := range tokens {
		nll -= logProbs.At(i, tok)
	}
	return nll / float64(len(tokens)), nil
}
