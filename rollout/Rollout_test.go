package rollout

import (
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/samuelfneumann/seqgan/agent"
	"github.com/samuelfneumann/seqgan/sequence"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"
)

// stubPolicy is a policy whose snapshots fill the free positions of
// partial sequences either with a fixed token or with random bits
type stubPolicy struct {
	token  int
	random bool
	shape  []int
	params []float64
}

func (p *stubPolicy) Freeze() (agent.Snapshot, error) {
	return &stubSnapshot{
		token:  p.token,
		random: p.random,
		shape:  slices.Clone(p.shape),
		params: slices.Clone(p.params),
	}, nil
}

type stubSnapshot struct {
	token  int
	random bool
	shape  []int
	params []float64
}

func (s *stubSnapshot) Shape() []int {
	return s.shape
}

func (s *stubSnapshot) Complete(rng *rand.Rand, partial sequence.Batch,
	t int) error {
	for i := range partial {
		for j := t; j < len(partial[i]); j++ {
			if s.random {
				partial[i][j] = rng.Intn(2)
			} else {
				partial[i][j] = s.token
			}
		}
	}
	return nil
}

// scorerFunc scores each sequence independently
type scorerFunc func(sequence.Sequence) float64

func (f scorerFunc) Score(b sequence.Batch) ([]float64, error) {
	scores := make([]float64, len(b))
	for i := range b {
		scores[i] = f(b[i])
	}
	return scores, nil
}

// batchScorer scores whole batches
type batchScorer func(sequence.Batch) ([]float64, error)

func (f batchScorer) Score(b sequence.Batch) ([]float64, error) {
	return f(b)
}

func constant(v float64) scorerFunc {
	return func(sequence.Sequence) float64 { return v }
}

// fractionOfOnes scores a sequence by the fraction of its tokens
// which are 1
func fractionOfOnes(s sequence.Sequence) float64 {
	ones := 0
	for _, tok := range s {
		if tok == 1 {
			ones++
		}
	}
	return float64(ones) / float64(len(s))
}

func newTestEstimator(t *testing.T, p *stubPolicy) *Estimator {
	t.Helper()

	e, err := New(p, Config{MinScore: 0, MaxScore: 1, Seed: 88})
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestRewardConstantScore(t *testing.T) {
	e := newTestEstimator(t, &stubPolicy{random: true, shape: []int{2, 2}})
	batch := sequence.Batch{{0, 1, 1, 0}, {1, 1, 0, 0}}

	for _, rolloutNum := range []int{1, 3, 16} {
		rewards, err := e.Reward(batch, rolloutNum, constant(0.7))
		if err != nil {
			t.Fatal(err)
		}
		if rewards.BatchSize() != 2 || rewards.SeqLength() != 4 {
			t.Fatalf("rewards of shape %vx%v, want 2x4", rewards.BatchSize(),
				rewards.SeqLength())
		}
		for i := 0; i < 2; i++ {
			for step := 1; step <= 4; step++ {
				if r := rewards.Reward(i, step); r != 0.7 {
					t.Errorf("rollouts %v: reward(%v, %v) = %v, want 0.7",
						rolloutNum, i, step, r)
				}
			}
		}
	}
}

func TestRewardFixedPrefix(t *testing.T) {
	e := newTestEstimator(t, &stubPolicy{random: true, shape: []int{1}})
	batch := sequence.Batch{{0, 1, 0, 1}, {1, 0, 1, 0}}
	startsWithZero := func(s sequence.Sequence) float64 {
		if s[0] == 0 {
			return 1
		}
		return 0
	}

	for _, rolloutNum := range []int{1, 16} {
		rewards, err := e.Reward(batch, rolloutNum, scorerFunc(startsWithZero))
		if err != nil {
			t.Fatal(err)
		}
		for step := 1; step <= 4; step++ {
			if r := rewards.Reward(0, step); r != 1 {
				t.Errorf("reward(0, %v) = %v, want 1", step, r)
			}
			if r := rewards.Reward(1, step); r != 0 {
				t.Errorf("reward(1, %v) = %v, want 0", step, r)
			}
		}
	}
}

func TestRewardTerminalColumn(t *testing.T) {
	e := newTestEstimator(t, &stubPolicy{random: true, shape: []int{1}})
	batch := sequence.Batch{
		{0, 1, 1, 0, 1}, {1, 1, 1, 1, 1}, {0, 0, 0, 0, 0},
	}

	rewards, err := e.Reward(batch, 8, scorerFunc(fractionOfOnes))
	if err != nil {
		t.Fatal(err)
	}
	for i := range batch {
		if have, want := rewards.Reward(i, 5), fractionOfOnes(batch[i]); have != want {
			t.Errorf("terminal reward of sequence %v: have(%v) want(%v)", i,
				have, want)
		}
		for step := 1; step <= 5; step++ {
			if r := rewards.Reward(i, step); r < 0 || r > 1 {
				t.Errorf("reward(%v, %v) = %v outside [0, 1]", i, step, r)
			}
		}
	}
}

func TestRewardVarianceDecreases(t *testing.T) {
	e := newTestEstimator(t, &stubPolicy{random: true, shape: []int{1}})
	batch := sequence.Batch{{0, 0, 0, 0}}

	variance := func(rolloutNum int) float64 {
		const repeats = 300
		estimates := make([]float64, repeats)
		for i := range estimates {
			rewards, err := e.Reward(batch, rolloutNum,
				scorerFunc(fractionOfOnes))
			if err != nil {
				t.Fatal(err)
			}
			estimates[i] = rewards.Reward(0, 1)
		}
		return stat.Variance(estimates, nil)
	}

	few, many := variance(4), variance(64)
	if many >= few/4 {
		t.Errorf("variance with 64 rollouts (%v) not well below variance "+
			"with 4 rollouts (%v)", many, few)
	}
}

func TestRewardUsesUpdatedParams(t *testing.T) {
	policy := &stubPolicy{token: 0, shape: []int{3}}
	e := newTestEstimator(t, policy)
	batch := sequence.Batch{{0, 0, 0}, {1, 0, 0}}
	endsWithOne := func(s sequence.Sequence) float64 {
		return float64(s[len(s)-1])
	}

	expect := func(want float64) {
		t.Helper()
		rewards, err := e.Reward(batch, 4, scorerFunc(endsWithOne))
		if err != nil {
			t.Fatal(err)
		}
		for i := range batch {
			for step := 1; step < 3; step++ {
				if r := rewards.Reward(i, step); r != want {
					t.Errorf("reward(%v, %v) = %v, want %v", i, step, r, want)
				}
			}
			if r := rewards.Reward(i, 3); r != 0 {
				t.Errorf("terminal reward(%v) = %v, want 0", i, r)
			}
		}
	}

	expect(0)

	// The snapshot does not follow the live policy until updated
	policy.token = 1
	expect(0)

	if err := e.UpdateParams(); err != nil {
		t.Fatal(err)
	}
	expect(1)
}

func TestRewardReadsSnapshotOnce(t *testing.T) {
	policy := &stubPolicy{token: 0, shape: []int{3}}
	e := newTestEstimator(t, policy)
	batch := sequence.Batch{{0, 0, 0, 0}}

	updated := false
	scorer := batchScorer(func(b sequence.Batch) ([]float64, error) {
		if !updated {
			updated = true
			policy.token = 1
			if err := e.UpdateParams(); err != nil {
				return nil, err
			}
		}
		return scorerFunc(fractionOfOnes).Score(b)
	})

	rewards, err := e.Reward(batch, 2, scorer)
	if err != nil {
		t.Fatal(err)
	}
	for step := 1; step <= 4; step++ {
		if r := rewards.Reward(0, step); r != 0 {
			t.Errorf("reward(0, %v) = %v: snapshot changed during the call",
				step, r)
		}
	}

	rewards, err = e.Reward(batch, 2, scorerFunc(fractionOfOnes))
	if err != nil {
		t.Fatal(err)
	}
	if r := rewards.Reward(0, 1); r != 0.75 {
		t.Errorf("reward(0, 1) = %v after update, want 0.75", r)
	}
}

func TestUpdateParamsIdempotent(t *testing.T) {
	policy := &stubPolicy{shape: []int{2, 2}, params: []float64{0.1, -3, 7e-9,
		math.Pi}}
	e := newTestEstimator(t, policy)

	if err := e.UpdateParams(); err != nil {
		t.Fatal(err)
	}
	first := e.snapshot.Load().Snapshot.(*stubSnapshot).params
	if err := e.UpdateParams(); err != nil {
		t.Fatal(err)
	}
	second := e.snapshot.Load().Snapshot.(*stubSnapshot).params

	for i := range policy.params {
		if math.Float64bits(first[i]) != math.Float64bits(second[i]) ||
			math.Float64bits(second[i]) != math.Float64bits(policy.params[i]) {
			t.Errorf("parameter %v: policy(%v) first(%v) second(%v)", i,
				policy.params[i], first[i], second[i])
		}
	}
}

func TestUpdateParamsShapeMismatch(t *testing.T) {
	policy := &stubPolicy{shape: []int{2, 2}}
	e := newTestEstimator(t, policy)
	before := e.snapshot.Load()

	policy.shape = []int{2, 3}
	if err := e.UpdateParams(); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("expected %v, got %v", ErrShapeMismatch, err)
	}
	if e.snapshot.Load() != before {
		t.Error("snapshot replaced after failed update")
	}
}

func TestRewardErrors(t *testing.T) {
	e := newTestEstimator(t, &stubPolicy{random: true, shape: []int{1}})
	batch := sequence.Batch{{0, 1, 0}, {1, 1, 0}}
	errScore := errors.New("scorer failure")

	tests := []struct {
		name       string
		batch      sequence.Batch
		rolloutNum int
		scorer     agent.Scorer
		want       error
	}{
		{"nan", batch, 2, constant(math.NaN()), ErrNonFinite},
		{"inf", batch, 2, constant(math.Inf(-1)), ErrNonFinite},
		{"above", batch, 2, constant(1.5), ErrOutOfRange},
		{"below", batch, 2, constant(-0.1), ErrOutOfRange},
		{"emptyBatch", sequence.Batch{}, 2, constant(0.5), sequence.ErrShape},
		{"ragged", sequence.Batch{{0, 1, 0}, {1}}, 2, constant(0.5),
			sequence.ErrShape},
		{"scoreCount", batch, 2, batchScorer(
			func(sequence.Batch) ([]float64, error) {
				return []float64{0.5}, nil
			}), sequence.ErrShape},
		{"scorerError", batch, 2, batchScorer(
			func(sequence.Batch) ([]float64, error) {
				return nil, errScore
			}), errScore},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := e.Reward(test.batch, test.rolloutNum, test.scorer)
			if !errors.Is(err, test.want) {
				t.Errorf("expected %v, got %v", test.want, err)
			}
		})
	}

	if _, err := e.Reward(batch, 0, constant(0.5)); err == nil {
		t.Error("expected error for zero rollouts")
	}
}

func TestNew(t *testing.T) {
	policy := &stubPolicy{shape: []int{1}}

	if _, err := New(policy, Config{UpdateRate: 0.8, MaxScore: 1}); err == nil {
		t.Error("expected error for update rate with snapshots which " +
			"cannot be blended")
	}
	if _, err := New(policy, Config{UpdateRate: 1, MaxScore: 1}); err == nil {
		t.Error("expected error for update rate of 1")
	}
	if _, err := New(policy, Config{MinScore: 1, MaxScore: 1}); err == nil {
		t.Error("expected error for empty score range")
	}
	if _, err := New(nil, Config{MaxScore: 1}); err == nil {
		t.Error("expected error for missing policy")
	}
}
