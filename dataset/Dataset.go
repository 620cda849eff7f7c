// Package dataset implements corpus files of sequences and iterators
// over shuffled batches of them.
package dataset

import (
	"bufio"
	"fmt"
	"iter"
	"os"
	"path/filepath"

	"github.com/samuelfneumann/seqgan/agent"
	"github.com/samuelfneumann/seqgan/sequence"
	"golang.org/x/exp/rand"
)

// Config describes the batches produced from a corpus
type Config struct {
	BatchSize int
	SeqLength int
	Vocab     int
	Seed      uint64
}

// Validate checks a Config for errors
func (c Config) Validate() error {
	if c.BatchSize < 1 || c.SeqLength < 1 || c.Vocab < 1 {
		return fmt.Errorf("validate: batch size (%v), sequence length (%v) "+
			"and vocabulary (%v) must be positive", c.BatchSize, c.SeqLength,
			c.Vocab)
	}
	return nil
}

// WriteSamples writes n / s.BatchSize() batches of sequences sampled
// from s to path, one sequence per line. Any existing file at path is
// replaced once all samples have been written.
func WriteSamples(s agent.Sampler, n int, path string) error {
	if s.BatchSize() < 1 {
		return fmt.Errorf("writeSamples: sampler has batch size %v",
			s.BatchSize())
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("writeSamples: %v", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	for i := 0; i < n/s.BatchSize(); i++ {
		b, err := s.Generate()
		if err != nil {
			tmp.Close()
			return fmt.Errorf("writeSamples: could not generate batch %v: %w",
				i, err)
		}
		for _, seq := range b {
			if _, err := fmt.Fprintln(w, seq); err != nil {
				tmp.Close()
				return fmt.Errorf("writeSamples: %v", err)
			}
		}
	}

	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("writeSamples: %v", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writeSamples: %v", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("writeSamples: %v", err)
	}
	return nil
}

// Load reads the corpus file at path. Every sequence must have length
// seqLength and only contain tokens in [0, vocab). Blank lines are
// ignored.
func Load(path string, seqLength, vocab int) ([]sequence.Sequence, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	defer f.Close()

	var corpus []sequence.Sequence
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		s, err := sequence.Parse(scanner.Text())
		if err != nil {
			return nil, fmt.Errorf("load: %v:%v: %w", path, line, err)
		}
		if len(s) == 0 {
			continue
		}
		if err := s.Validate(seqLength, vocab); err != nil {
			return nil, fmt.Errorf("load: %v:%v: %w", path, line, err)
		}
		corpus = append(corpus, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("load: %v: %v", path, err)
	}
	return corpus, nil
}

// Generator provides epochs of shuffled batches of a single corpus.
// Sequences which do not fill a final batch are left out of the epoch.
type Generator struct {
	corpus    []sequence.Sequence
	batchSize int
	rng       *rand.Rand
}

// NewGenerator returns a new Generator dataset over the corpus at path
func NewGenerator(path string, c Config) (*Generator, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("newGenerator: %v", err)
	}
	corpus, err := Load(path, c.SeqLength, c.Vocab)
	if err != nil {
		return nil, fmt.Errorf("newGenerator: %w", err)
	}
	if len(corpus) < c.BatchSize {
		return nil, fmt.Errorf("newGenerator: %v contains %v sequences, "+
			"fewer than one batch of %v", path, len(corpus), c.BatchSize)
	}

	return &Generator{
		corpus:    corpus,
		batchSize: c.BatchSize,
		rng:       rand.New(rand.NewSource(c.Seed)),
	}, nil
}

// Len returns the number of batches in each epoch
func (g *Generator) Len() int {
	return len(g.corpus) / g.batchSize
}

// Batches returns an iterator over one epoch of batches. The corpus is
// reshuffled on every call.
func (g *Generator) Batches() iter.Seq[sequence.Batch] {
	order := g.rng.Perm(len(g.corpus))

	return func(yield func(sequence.Batch) bool) {
		for start := 0; start+g.batchSize <= len(order); start += g.batchSize {
			b := make(sequence.Batch, g.batchSize)
			for i, index := range order[start : start+g.batchSize] {
				b[i] = g.corpus[index].Clone()
			}
			if !yield(b) {
				return
			}
		}
	}
}

// Discriminator provides epochs of shuffled, labelled batches drawn
// from the union of a positive corpus (label 1) and a negative corpus
// (label 0).
type Discriminator struct {
	corpus    []sequence.Sequence
	labels    []float64
	batchSize int
	rng       *rand.Rand
}

// NewDiscriminator returns a new Discriminator dataset over the
// corpora at positive and negative
func NewDiscriminator(positive, negative string, c Config) (*Discriminator,
	error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("newDiscriminator: %v", err)
	}
	pos, err := Load(positive, c.SeqLength, c.Vocab)
	if err != nil {
		return nil, fmt.Errorf("newDiscriminator: %w", err)
	}
	neg, err := Load(negative, c.SeqLength, c.Vocab)
	if err != nil {
		return nil, fmt.Errorf("newDiscriminator: %w", err)
	}
	if len(pos)+len(neg) < c.BatchSize {
		return nil, fmt.Errorf("newDiscriminator: corpora contain %v "+
			"sequences, fewer than one batch of %v", len(pos)+len(neg),
			c.BatchSize)
	}

	labels := make([]float64, len(pos)+len(neg))
	for i := range pos {
		labels[i] = 1.0
	}

	return &Discriminator{
		corpus:    append(pos, neg...),
		labels:    labels,
		batchSize: c.BatchSize,
		rng:       rand.New(rand.NewSource(c.Seed)),
	}, nil
}

// Len returns the number of batches in each epoch
func (d *Discriminator) Len() int {
	return len(d.corpus) / d.batchSize
}

// Batches returns an iterator over one epoch of batches and their
// labels. The corpora are reshuffled on every call.
func (d *Discriminator) Batches() iter.Seq2[sequence.Batch, []float64] {
	order := d.rng.Perm(len(d.corpus))

	return func(yield func(sequence.Batch, []float64) bool) {
		for start := 0; start+d.batchSize <= len(order); start += d.batchSize {
			b := make(sequence.Batch, d.batchSize)
			y := make([]float64, d.batchSize)
			for i, index := range order[start : start+d.batchSize] {
				b[i] = d.corpus[index].Clone()
				y[i] = d.labels[index]
			}
			if !yield(b, y) {
				return
			}
		}
	}
}
