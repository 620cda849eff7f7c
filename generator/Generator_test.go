package generator

import (
	"bytes"
	"encoding/gob"
	"errors"
	"math"
	"testing"

	"github.com/samuelfneumann/seqgan/agent"
	"github.com/samuelfneumann/seqgan/initwfn"
	"github.com/samuelfneumann/seqgan/network"
	"github.com/samuelfneumann/seqgan/sequence"
	"github.com/samuelfneumann/seqgan/solver"
	"golang.org/x/exp/rand"
)

const (
	vocab     = 5
	seqLength = 4
	batchSize = 4
)

func newTestGenerator(t *testing.T, seed uint64) *Generator {
	t.Helper()

	init, err := initwfn.NewGlorotU(1.0)
	if err != nil {
		t.Fatal(err)
	}
	pretrain, err := solver.NewDefaultAdam(0.05, 1)
	if err != nil {
		t.Fatal(err)
	}
	adversarial, err := solver.NewDefaultAdam(0.05, 1)
	if err != nil {
		t.Fatal(err)
	}

	g, err := New(Config{
		Vocab:             vocab,
		SeqLength:         seqLength,
		BatchSize:         batchSize,
		StartToken:        0,
		EmbDim:            3,
		HiddenDim:         8,
		Activation:        network.TanH(),
		Init:              init,
		PretrainSolver:    pretrain,
		AdversarialSolver: adversarial,
		Seed:              seed,
	})
	if err != nil {
		t.Fatalf("could not create generator: %v", err)
	}
	return g
}

func constantBatch(tok int) sequence.Batch {
	b := sequence.NewBatch(batchSize, seqLength)
	for i := range b {
		for j := range b[i] {
			b[i][j] = tok
		}
	}
	return b
}

func equalParams(a, b [][]float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if len(a[i]) != len(b[i]) {
			return false
		}
		for j := range a[i] {
			if a[i][j] != b[i][j] {
				return false
			}
		}
	}
	return true
}

func TestGenerate(t *testing.T) {
	g := newTestGenerator(t, 1)

	for i := 0; i < 5; i++ {
		b, err := g.Generate()
		if err != nil {
			t.Fatal(err)
		}
		if err := b.Validate(batchSize, seqLength, vocab); err != nil {
			t.Errorf("generated invalid batch %v: %v", b, err)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	if _, err := New(Config{Vocab: 1}); err == nil {
		t.Error("expected error for vocabulary of a single token")
	}
}

func TestPretrainStepReducesLoss(t *testing.T) {
	g := newTestGenerator(t, 2)
	target := sequence.Batch{
		{1, 2, 3, 4}, {1, 2, 3, 4}, {1, 2, 3, 4}, {1, 2, 3, 4},
	}

	first, err := g.PretrainStep(target)
	if err != nil {
		t.Fatal(err)
	}
	var last float64
	for i := 0; i < 300; i++ {
		if last, err = g.PretrainStep(target); err != nil {
			t.Fatal(err)
		}
	}

	if last >= first/2 {
		t.Errorf("loss did not decrease: first(%v) last(%v)", first, last)
	}
}

func TestTrainStepReinforces(t *testing.T) {
	g := newTestGenerator(t, 3)
	target := constantBatch(2)

	rewards := sequence.NewRewardMatrix(batchSize, seqLength)
	for i := 0; i < batchSize; i++ {
		for j := 1; j <= seqLength; j++ {
			rewards.SetReward(i, j, 1.0)
		}
	}

	for i := 0; i < 300; i++ {
		if err := g.TrainStep(target, rewards); err != nil {
			t.Fatal(err)
		}
	}

	b, err := g.Generate()
	if err != nil {
		t.Fatal(err)
	}
	count := 0
	for _, tok := range b.Flatten() {
		if tok == 2 {
			count++
		}
	}
	if count < batchSize*seqLength*8/10 {
		t.Errorf("reinforced token sampled %v/%v times", count,
			batchSize*seqLength)
	}
}

func TestTrainStepMisalignedRewards(t *testing.T) {
	g := newTestGenerator(t, 4)

	rewards := sequence.NewRewardMatrix(batchSize, seqLength-1)
	err := g.TrainStep(constantBatch(1), rewards)
	if !errors.Is(err, sequence.ErrShape) {
		t.Errorf("expected %v, got %v", sequence.ErrShape, err)
	}

	err = g.TrainStep(constantBatch(vocab), sequence.NewRewardMatrix(
		batchSize, seqLength))
	if !errors.Is(err, sequence.ErrToken) {
		t.Errorf("expected %v, got %v", sequence.ErrToken, err)
	}
}

func TestStepAfterDivergence(t *testing.T) {
	g := newTestGenerator(t, 6)
	before := g.Params()

	rewards := sequence.NewRewardMatrix(batchSize, seqLength)
	for i := 0; i < batchSize; i++ {
		for j := 1; j <= seqLength; j++ {
			rewards.SetReward(i, j, math.MaxFloat64)
		}
	}
	err := g.TrainStep(constantBatch(1), rewards)
	if !errors.Is(err, agent.ErrDiverged) {
		t.Fatalf("expected %v, got %v", agent.ErrDiverged, err)
	}
	if !equalParams(before, g.Params()) {
		t.Error("diverged step changed the policy")
	}

	// The training graph must be reusable after a failed step
	for i := 0; i < 3; i++ {
		loss, err := g.PretrainStep(constantBatch(1))
		if err != nil {
			t.Fatalf("step %v after divergence: %v", i, err)
		}
		if math.IsNaN(loss) || math.IsInf(loss, 0) {
			t.Fatalf("step %v after divergence: loss is %v", i, loss)
		}
	}
}

func TestFreezeIsIndependent(t *testing.T) {
	g := newTestGenerator(t, 5)

	s, err := g.Freeze()
	if err != nil {
		t.Fatal(err)
	}
	before := s.(*snapshot).net.Params()
	if !equalParams(before, g.Params()) {
		t.Fatal("snapshot parameters differ from policy parameters")
	}

	for i := 0; i < 3; i++ {
		if _, err := g.PretrainStep(constantBatch(3)); err != nil {
			t.Fatal(err)
		}
	}

	if !equalParams(before, s.(*snapshot).net.Params()) {
		t.Error("training the policy changed the snapshot")
	}
	if equalParams(before, g.Params()) {
		t.Error("training did not change the policy")
	}
}

func TestCompleteKeepsPrefix(t *testing.T) {
	g := newTestGenerator(t, 6)
	s, err := g.Freeze()
	if err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewSource(6))

	full := sequence.Batch{
		{4, 3, 2, 1}, {0, 1, 2, 3}, {2, 2, 2, 2}, {1, 0, 4, 0},
	}
	for prefix := 0; prefix <= seqLength; prefix++ {
		partial := full.Prefix(prefix)
		if err := s.Complete(rng, partial, prefix); err != nil {
			t.Fatal(err)
		}
		if err := partial.Validate(batchSize, seqLength, vocab); err != nil {
			t.Errorf("prefix %v: invalid completion: %v", prefix, err)
		}
		for i := range partial {
			for j := 0; j < prefix; j++ {
				if partial[i][j] != full[i][j] {
					t.Errorf("prefix %v: token (%v, %v) changed from %v to %v",
						prefix, i, j, full[i][j], partial[i][j])
				}
			}
		}
	}
}

func TestCompleteErrors(t *testing.T) {
	g := newTestGenerator(t, 7)
	s, err := g.Freeze()
	if err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewSource(7))

	small := sequence.NewBatch(batchSize-1, seqLength)
	if err := s.Complete(rng, small, 0); !errors.Is(err, sequence.ErrShape) {
		t.Errorf("wrong batch size: expected %v, got %v", sequence.ErrShape,
			err)
	}

	partial := constantBatch(1).Prefix(2)
	partial[0][1] = vocab
	if err := s.Complete(rng, partial, 2); !errors.Is(err, sequence.ErrToken) {
		t.Errorf("token outside vocabulary: expected %v, got %v",
			sequence.ErrToken, err)
	}

	if err := s.Complete(rng, constantBatch(1), seqLength+1); !errors.Is(err,
		sequence.ErrShape) {
		t.Errorf("prefix too long: expected %v, got %v", sequence.ErrShape,
			err)
	}
}

func TestBlend(t *testing.T) {
	g := newTestGenerator(t, 8)

	old, err := g.Freeze()
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, err := g.PretrainStep(constantBatch(3)); err != nil {
			t.Fatal(err)
		}
	}
	fresh, err := g.Freeze()
	if err != nil {
		t.Fatal(err)
	}
	oldParams := old.(*snapshot).net.Params()
	freshParams := fresh.(*snapshot).net.Params()

	blender := old.(*snapshot)
	full, err := blender.Blend(fresh, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !equalParams(full.(*snapshot).net.Params(), freshParams) {
		t.Error("blend with rate 0 is not a copy of the fresh snapshot")
	}

	none, err := blender.Blend(fresh, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !equalParams(none.(*snapshot).net.Params(), oldParams) {
		t.Error("blend with rate 1 is not a copy of the old snapshot")
	}

	half, err := blender.Blend(fresh, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	halfParams := half.(*snapshot).net.Params()
	for i := range halfParams {
		for j := range halfParams[i] {
			want := 0.5*oldParams[i][j] + 0.5*freshParams[i][j]
			if diff := halfParams[i][j] - want; diff > 1e-12 || diff < -1e-12 {
				t.Fatalf("blend with rate 0.5: have(%v) want(%v)",
					halfParams[i][j], want)
			}
		}
	}

	if !equalParams(old.(*snapshot).net.Params(), oldParams) {
		t.Error("blend modified the receiver")
	}
}

func TestGobRoundTrip(t *testing.T) {
	src := newTestGenerator(t, 9)
	if _, err := src.PretrainStep(constantBatch(1)); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(src); err != nil {
		t.Fatal(err)
	}

	dest := newTestGenerator(t, 10)
	if err := gob.NewDecoder(&buf).Decode(dest); err != nil {
		t.Fatal(err)
	}
	if !equalParams(src.Params(), dest.Params()) {
		t.Error("decoded parameters differ from encoded parameters")
	}
	if !equalParams(dest.behaviour.net.Params(), dest.Params()) {
		t.Error("sampling network not synchronised after decoding")
	}
}
