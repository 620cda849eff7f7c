package rollout

import (
	"testing"

	"github.com/samuelfneumann/seqgan/discriminator"
	"github.com/samuelfneumann/seqgan/generator"
	"github.com/samuelfneumann/seqgan/initwfn"
	"github.com/samuelfneumann/seqgan/network"
	"github.com/samuelfneumann/seqgan/solver"
)

func newModels(t *testing.T) (*generator.Generator,
	*discriminator.Discriminator) {
	t.Helper()

	init, err := initwfn.NewGlorotU(1.0)
	if err != nil {
		t.Fatal(err)
	}
	adam, err := solver.NewDefaultAdam(0.01, 1)
	if err != nil {
		t.Fatal(err)
	}

	g, err := generator.New(generator.Config{
		Vocab:             5,
		SeqLength:         4,
		BatchSize:         4,
		EmbDim:            3,
		HiddenDim:         8,
		Activation:        network.TanH(),
		Init:              init,
		PretrainSolver:    adam,
		AdversarialSolver: adam,
		Seed:              1,
	})
	if err != nil {
		t.Fatal(err)
	}

	d, err := discriminator.New(discriminator.Config{
		Vocab:       5,
		SeqLength:   4,
		BatchSize:   4,
		Buckets:     32,
		NGram:       2,
		HiddenSizes: []int{8},
		Activations: []*network.Activation{network.ReLU()},
		Init:        init,
		Solver:      adam,
		L2:          0.2,
	})
	if err != nil {
		t.Fatal(err)
	}
	return g, d
}

func TestRewardWithGenerator(t *testing.T) {
	for _, rate := range []float64{0, 0.8} {
		g, d := newModels(t)
		e, err := New(g, Config{UpdateRate: rate, MaxScore: 1, Seed: 2})
		if err != nil {
			t.Fatal(err)
		}

		for iter := 0; iter < 2; iter++ {
			batch, err := g.Generate()
			if err != nil {
				t.Fatal(err)
			}
			rewards, err := e.Reward(batch, 3, d)
			if err != nil {
				t.Fatal(err)
			}
			if err := rewards.Aligned(batch); err != nil {
				t.Fatal(err)
			}

			scores, err := d.Score(batch)
			if err != nil {
				t.Fatal(err)
			}
			for i := range batch {
				if have := rewards.Reward(i, 4); have != scores[i] {
					t.Errorf("rate %v: terminal reward %v, score %v", rate,
						have, scores[i])
				}
			}

			if err := g.TrainStep(batch, rewards); err != nil {
				t.Fatal(err)
			}
			if err := e.UpdateParams(); err != nil {
				t.Fatalf("rate %v: %v", rate, err)
			}
		}
	}
}
