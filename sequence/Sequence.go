// Package sequence implements the token sequences that are generated,
// scored and rewarded during adversarial training
package sequence

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Placeholder marks a token of a partial sequence which has not yet
// been filled in by a rollout
const Placeholder = -1

var (
	// ErrShape is returned when a sequence or batch does not have the
	// expected length
	ErrShape = errors.New("illegal shape")

	// ErrToken is returned when a token lies outside the vocabulary
	ErrToken = errors.New("token outside vocabulary")
)

// Sequence is an ordered, fixed-length list of token ids.
type Sequence []int

// Clone returns a copy of the Sequence
func (s Sequence) Clone() Sequence {
	c := make(Sequence, len(s))
	copy(c, s)
	return c
}

// Validate returns an error if the Sequence does not have length
// seqLength or contains tokens outside [0, vocab)
func (s Sequence) Validate(seqLength, vocab int) error {
	if len(s) != seqLength {
		return fmt.Errorf("validate: %w \n\twant(%v)\n\thave(%v)", ErrShape,
			seqLength, len(s))
	}
	for i, tok := range s {
		if tok < 0 || tok >= vocab {
			return fmt.Errorf("validate: %w: token %v at position %v "+
				"(vocab size %v)", ErrToken, tok, i, vocab)
		}
	}
	return nil
}

// String returns the Sequence as space-separated integers, the line
// format of corpus files
func (s Sequence) String() string {
	var b strings.Builder
	for i, tok := range s {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.Itoa(tok))
	}
	return b.String()
}

// Parse parses a single corpus line into a Sequence
func Parse(line string) (Sequence, error) {
	fields := strings.Fields(line)
	s := make(Sequence, len(fields))
	for i, f := range fields {
		tok, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("parse: could not parse token %q: %v", f,
				err)
		}
		s[i] = tok
	}
	return s, nil
}

// Batch is a fixed-size set of Sequences. Row order is significant,
// rewards computed for a Batch align positionally with its rows.
type Batch []Sequence

// NewBatch returns a Batch of size sequences of length seqLength with
// every token set to Placeholder
func NewBatch(size, seqLength int) Batch {
	backing := make([]int, size*seqLength)
	for i := range backing {
		backing[i] = Placeholder
	}

	b := make(Batch, size)
	for i := range b {
		b[i] = backing[i*seqLength : (i+1)*seqLength : (i+1)*seqLength]
	}
	return b
}

// Validate returns an error if the Batch does not contain size
// Sequences, each of which is valid
func (b Batch) Validate(size, seqLength, vocab int) error {
	if len(b) != size {
		return fmt.Errorf("validate: batch %w \n\twant(%v)\n\thave(%v)",
			ErrShape, size, len(b))
	}
	for i, s := range b {
		if err := s.Validate(seqLength, vocab); err != nil {
			return fmt.Errorf("validate: sequence %v: %w", i, err)
		}
	}
	return nil
}

// Prefix returns a new Batch where the first t tokens of each
// Sequence are copied from b and the remaining tokens are set to
// Placeholder. Each row of the returned Batch is a partial sequence
// to be completed by a rollout.
func (b Batch) Prefix(t int) Batch {
	if len(b) == 0 {
		return Batch{}
	}
	seqLength := len(b[0])
	if t < 0 || t > seqLength {
		panic(fmt.Sprintf("prefix: illegal prefix length %v for sequences "+
			"of length %v", t, seqLength))
	}

	partial := NewBatch(len(b), seqLength)
	for i := range b {
		copy(partial[i][:t], b[i][:t])
	}
	return partial
}

// Flatten returns the tokens of the Batch in row major order
func (b Batch) Flatten() []int {
	if len(b) == 0 {
		return nil
	}
	out := make([]int, 0, len(b)*len(b[0]))
	for _, s := range b {
		out = append(out, s...)
	}
	return out
}
