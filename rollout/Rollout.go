// Package rollout estimates the reward of every prefix of generated
// sequences by Monte-Carlo completion with a frozen copy of the
// generation policy.
package rollout

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sync/atomic"

	"github.com/samuelfneumann/seqgan/agent"
	"github.com/samuelfneumann/seqgan/sequence"
	"golang.org/x/exp/rand"
)

var (
	// ErrShapeMismatch is returned when the live policy no longer has
	// the parameter shapes of the snapshot it would replace
	ErrShapeMismatch = errors.New("policy parameter shapes changed")

	// ErrNonFinite is returned when an estimated reward is NaN or
	// infinite
	ErrNonFinite = errors.New("reward is not finite")

	// ErrOutOfRange is returned when an estimated reward lies outside
	// the scorer's range
	ErrOutOfRange = errors.New("reward outside score range")
)

// Config describes an Estimator
type Config struct {
	// UpdateRate is the weight of the old snapshot when the snapshot
	// is refreshed: new = rate * old + (1 - rate) * live. A rate of 0
	// replaces the snapshot with a copy of the live policy.
	UpdateRate float64

	// MinScore and MaxScore bound the scores of the scorer, and so
	// bound every reward
	MinScore float64
	MaxScore float64

	Seed uint64
}

// Validate checks a Config for errors
func (c Config) Validate() error {
	if c.UpdateRate < 0 || c.UpdateRate >= 1 {
		return fmt.Errorf("validate: update rate %v outside [0, 1)",
			c.UpdateRate)
	}
	if !(c.MinScore < c.MaxScore) {
		return fmt.Errorf("validate: empty score range [%v, %v]", c.MinScore,
			c.MaxScore)
	}
	return nil
}

// frozen holds one snapshot buffer. Buffers are never modified after
// being stored, so a reader holding a buffer can keep using it while
// a newer one is swapped in.
type frozen struct {
	agent.Snapshot
}

// Estimator estimates per-token rewards for sequences generated by a
// live policy. It owns a snapshot of the policy which is used to
// complete partial sequences and which is only refreshed through
// UpdateParams.
type Estimator struct {
	live       agent.Freezer
	snapshot   atomic.Pointer[frozen]
	shape      []int
	updateRate float64
	minScore   float64
	maxScore   float64

	rng *rand.Rand
}

// New returns a new Estimator with a snapshot of the current
// parameters of live
func New(live agent.Freezer, c Config) (*Estimator, error) {
	if live == nil {
		return nil, fmt.Errorf("new: no policy to freeze")
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	s, err := live.Freeze()
	if err != nil {
		return nil, fmt.Errorf("new: could not freeze policy: %w", err)
	}
	if _, ok := s.(agent.Blender); c.UpdateRate > 0 && !ok {
		return nil, fmt.Errorf("new: update rate %v requires a snapshot "+
			"which can be blended, but %T cannot", c.UpdateRate, s)
	}

	e := &Estimator{
		live:       live,
		shape:      slices.Clone(s.Shape()),
		updateRate: c.UpdateRate,
		minScore:   c.MinScore,
		maxScore:   c.MaxScore,
		rng:        rand.New(rand.NewSource(c.Seed)),
	}
	e.snapshot.Store(&frozen{s})

	return e, nil
}

// Reward returns the estimated reward of each token of each sequence
// in batch.
//
// For prefix length t < T, where T is the sequence length, the reward
// of sequence i is the mean score, under scorer, of rolloutNum
// completions of the first t tokens of sequence i sampled from the
// snapshot. The reward for t = T is the score of sequence i itself.
//
// The snapshot is read once, so an UpdateParams during a call to
// Reward does not affect that call. Reward itself must not be called
// concurrently, since rollouts share the Estimator's source of
// randomness.
func (e *Estimator) Reward(batch sequence.Batch, rolloutNum int,
	scorer agent.Scorer) (*sequence.RewardMatrix, error) {
	if len(batch) == 0 || len(batch[0]) == 0 {
		return nil, fmt.Errorf("reward: %w: empty batch", sequence.ErrShape)
	}
	seqLength := len(batch[0])
	for i := range batch {
		if len(batch[i]) != seqLength {
			return nil, fmt.Errorf("reward: %w: sequence %v has length %v, "+
				"want %v", sequence.ErrShape, i, len(batch[i]), seqLength)
		}
	}
	if rolloutNum < 1 {
		return nil, fmt.Errorf("reward: number of rollouts must be "+
			"positive (have %v)", rolloutNum)
	}
	if scorer == nil {
		return nil, fmt.Errorf("reward: no scorer")
	}

	snapshot := e.snapshot.Load()
	rewards := sequence.NewRewardMatrix(len(batch), seqLength)

	for k := 1; k <= rolloutNum; k++ {
		for t := 1; t < seqLength; t++ {
			partial := batch.Prefix(t)
			if err := snapshot.Complete(e.rng, partial, t); err != nil {
				return nil, fmt.Errorf("reward: rollout of prefix %v: %w", t,
					err)
			}

			scores, err := e.score(scorer, partial)
			if err != nil {
				return nil, fmt.Errorf("reward: rollout of prefix %v: %w", t,
					err)
			}

			// Running mean, exact when every score is equal
			for i, score := range scores {
				mean := rewards.Reward(i, t)
				rewards.SetReward(i, t, mean+(score-mean)/float64(k))
			}
		}
	}

	scores, err := e.score(scorer, batch)
	if err != nil {
		return nil, fmt.Errorf("reward: %w", err)
	}
	for i, score := range scores {
		rewards.SetReward(i, seqLength, score)
	}

	if err := e.check(rewards); err != nil {
		return nil, fmt.Errorf("reward: %w", err)
	}
	return rewards, nil
}

// score scores b, ensuring exactly one score is returned per sequence
func (e *Estimator) score(scorer agent.Scorer, b sequence.Batch) ([]float64,
	error) {
	scores, err := scorer.Score(b)
	if err != nil {
		return nil, fmt.Errorf("could not score: %w", err)
	}
	if len(scores) != len(b) {
		return nil, fmt.Errorf("%w: %v scores for %v sequences",
			sequence.ErrShape, len(scores), len(b))
	}
	return scores, nil
}

// check returns an error if any reward is not finite or lies outside
// the score range
func (e *Estimator) check(rewards *sequence.RewardMatrix) error {
	for i := 0; i < rewards.BatchSize(); i++ {
		for t := 1; t <= rewards.SeqLength(); t++ {
			r := rewards.Reward(i, t)
			if math.IsNaN(r) || math.IsInf(r, 0) {
				return fmt.Errorf("%w: reward(%v, %v) = %v", ErrNonFinite, i,
					t, r)
			}
			if r < e.minScore || r > e.maxScore {
				return fmt.Errorf("%w: reward(%v, %v) = %v not in [%v, %v]",
					ErrOutOfRange, i, t, r, e.minScore, e.maxScore)
			}
		}
	}
	return nil
}

// UpdateParams refreshes the snapshot from the live policy. The new
// snapshot is built completely before it replaces the old one.
func (e *Estimator) UpdateParams() error {
	fresh, err := e.live.Freeze()
	if err != nil {
		return fmt.Errorf("updateParams: could not freeze policy: %w", err)
	}
	if shape := fresh.Shape(); !slices.Equal(shape, e.shape) {
		return fmt.Errorf("updateParams: %w: have %v, want %v",
			ErrShapeMismatch, shape, e.shape)
	}

	if e.updateRate > 0 {
		old, ok := e.snapshot.Load().Snapshot.(agent.Blender)
		if !ok {
			return fmt.Errorf("updateParams: snapshot of type %T cannot be "+
				"blended", e.snapshot.Load().Snapshot)
		}
		if fresh, err = old.Blend(fresh, e.updateRate); err != nil {
			return fmt.Errorf("updateParams: %w", err)
		}
	}

	e.snapshot.Store(&frozen{fresh})
	return nil
}
