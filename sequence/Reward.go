package sequence

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// RewardMatrix holds one estimated reward per (sequence, prefix
// length) pair of a Batch. Row i aligns with row i of the Batch and
// column t-1 holds the reward for having fixed the first t tokens.
type RewardMatrix struct {
	*mat.Dense
}

// NewRewardMatrix returns a zero RewardMatrix for batch sequences of
// length seqLength
func NewRewardMatrix(batch, seqLength int) *RewardMatrix {
	return &RewardMatrix{mat.NewDense(batch, seqLength, nil)}
}

// Reward returns the reward of sequence i given that its first t
// tokens are fixed, t in [1, SeqLength()]
func (r *RewardMatrix) Reward(i, t int) float64 {
	return r.At(i, t-1)
}

// SetReward sets the reward of sequence i for prefix length t
func (r *RewardMatrix) SetReward(i, t int, v float64) {
	r.Set(i, t-1, v)
}

// BatchSize returns the number of sequences the RewardMatrix covers
func (r *RewardMatrix) BatchSize() int {
	rows, _ := r.Dims()
	return rows
}

// SeqLength returns the number of timesteps per sequence
func (r *RewardMatrix) SeqLength() int {
	_, cols := r.Dims()
	return cols
}

// Data returns the rewards in row major order, aligned with
// Batch.Flatten()
func (r *RewardMatrix) Data() []float64 {
	rows, cols := r.Dims()
	raw := r.RawMatrix()
	if raw.Stride == cols {
		return raw.Data[:rows*cols]
	}

	out := make([]float64, 0, rows*cols)
	for i := 0; i < rows; i++ {
		out = append(out, r.RawRowView(i)...)
	}
	return out
}

// Aligned returns an error if the RewardMatrix cannot be used as the
// reward signal for b
func (r *RewardMatrix) Aligned(b Batch) error {
	if len(b) == 0 {
		return fmt.Errorf("aligned: empty batch: %w", ErrShape)
	}
	if r.BatchSize() != len(b) || r.SeqLength() != len(b[0]) {
		return fmt.Errorf("aligned: %w: rewards %vx%v for batch %vx%v",
			ErrShape, r.BatchSize(), r.SeqLength(), len(b), len(b[0]))
	}
	return nil
}
