package experiment

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/samuelfneumann/seqgan/agent"
	"github.com/samuelfneumann/seqgan/dataset"
	"github.com/samuelfneumann/seqgan/experiment/checkpointer"
	"github.com/samuelfneumann/seqgan/experiment/tracker"
	"github.com/samuelfneumann/seqgan/utils/logging"
	"github.com/samuelfneumann/seqgan/utils/matutils"
	"github.com/samuelfneumann/seqgan/utils/progressbar"
)

// Files stored in the save directory
const (
	RealData                 = "real_data.txt"
	GeneratorSample          = "generator_sample.txt"
	EvalFile                 = "eval_file.txt"
	GeneratorPretrained      = "generator_pretrained.gob"
	DiscriminatorPretrained  = "discriminator_pretrained.gob"
	GeneratorAdversarial     = "generator_adversarial.gob"
	DiscriminatorAdversarial = "discriminator_adversarial.gob"
	LogFile                  = "experiment-log.txt"
	MarkerFile               = "phases.json"
)

const (
	progressWidth      = 40
	pretrainSection    = "pre-training..."
	adversarialSection = "adversarial training..."
)

// SeqGAN is an Experiment which trains a Generator against a
// Discriminator, measuring the Generator against a fixed Oracle. The
// Generator is first pretrained with maximum likelihood on sequences
// sampled from the Oracle, the Discriminator is then pretrained to
// separate Oracle sequences from generated sequences, and finally the
// two are trained adversarially, with the Generator rewarded by the
// Discriminator through a RewardEstimator.
//
// Completed phases are recorded in a marker file in the save
// directory. When an experiment is rerun with the same save directory,
// each leading phase which the marker records as complete and whose
// checkpoints load is skipped. The first phase which runs, and every
// phase after it, is run again from scratch.
type SeqGAN struct {
	Config
	oracle       agent.Oracle
	generator    Generator
	disc         Discriminator
	newEstimator EstimatorFactory
	logger       *slog.Logger

	phase    Phase
	rounds   uint64
	marker   *checkpointer.Marker
	trackers []tracker.Tracker
}

// NewSeqGAN creates and returns a new SeqGAN experiment. The trackers
// t receive every evaluation, in addition to the log file kept in the
// save directory.
func NewSeqGAN(c Config, o agent.Oracle, g Generator, d Discriminator,
	newEstimator EstimatorFactory, logger *slog.Logger,
	t ...tracker.Tracker) (*SeqGAN, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("newSeqGAN: %v", err)
	}
	if o == nil || g == nil || d == nil || newEstimator == nil {
		return nil, fmt.Errorf("newSeqGAN: oracle, generator, " +
			"discriminator and estimator factory are required")
	}
	if g.SeqLength() != c.Data.SeqLength || g.Vocab() != c.Data.Vocab {
		return nil, fmt.Errorf("newSeqGAN: generator samples sequences of "+
			"length %v over %v tokens, data has length %v over %v tokens",
			g.SeqLength(), g.Vocab(), c.Data.SeqLength, c.Data.Vocab)
	}
	if logger == nil {
		logger = logging.Discard()
	}

	return &SeqGAN{
		Config:       c,
		oracle:       o,
		generator:    g,
		disc:         d,
		newEstimator: newEstimator,
		logger:       logger,
		phase:        PretrainGenerator,
		trackers:     t,
	}, nil
}

// Register registers a tracker.Tracker with the experiment so that
// evaluations made during the experiment are recorded by it
func (s *SeqGAN) Register(t tracker.Tracker) {
	s.trackers = append(s.trackers, t)
}

// Phase returns the phase the experiment is currently in
func (s *SeqGAN) Phase() Phase {
	return s.phase
}

// Run runs every remaining phase of the experiment. Run should only
// be called once.
func (s *SeqGAN) Run() error {
	if err := os.MkdirAll(s.SaveDir, 0o755); err != nil {
		return fmt.Errorf("run: %v", err)
	}
	if err := s.ensureCorpus(); err != nil {
		return fmt.Errorf("run: %w", err)
	}

	var err error
	s.marker, err = checkpointer.LoadMarker(s.path(MarkerFile), s.RunID)
	if err != nil {
		s.logger.Warn("ignoring phase marker", "err", err)
	}

	nllLog, err := tracker.Open(s.path(LogFile))
	if err != nil {
		return fmt.Errorf("run: %v", err)
	}
	s.Register(nllLog)
	defer func() {
		if s.phase != Done {
			s.close()
		}
	}()

	resuming := true
	for s.phase = PretrainGenerator; s.phase != Done; s.phase = s.phase.Next() {
		if resuming && s.restore(s.phase) {
			s.logger.Info("skipping completed phase", "phase", s.phase)
			continue
		}
		if resuming {
			resuming = false
			if err := s.marker.Reset(s.phase.remaining()...); err != nil {
				return fmt.Errorf("run: %v", err)
			}
		}

		s.logger.Info("starting phase", "phase", s.phase)
		if err := s.runPhase(s.phase); err != nil {
			return fmt.Errorf("run: %v: %w", s.phase, err)
		}
		if err := s.marker.Complete(s.phase.String()); err != nil {
			return fmt.Errorf("run: %v", err)
		}
	}

	s.close()
	s.logger.Info("experiment complete")
	return nil
}

// runPhase runs a single phase of the experiment
func (s *SeqGAN) runPhase(p Phase) error {
	switch p {
	case PretrainGenerator:
		return s.pretrainGenerator()
	case PretrainDiscriminator:
		return s.pretrainDiscriminator()
	case Adversarial:
		return s.adversarial()
	}
	return fmt.Errorf("runPhase: no such phase %v", p)
}

// restore loads the checkpoints of a completed phase, returning
// whether the phase can be skipped
func (s *SeqGAN) restore(p Phase) bool {
	if !s.marker.Done(p.String()) {
		return false
	}

	var err error
	switch p {
	case PretrainGenerator:
		err = checkpointer.Load(s.path(GeneratorPretrained), s.generator)
	case PretrainDiscriminator:
		err = checkpointer.Load(s.path(DiscriminatorPretrained), s.disc)
	case Adversarial:
		err = checkpointer.Load(s.path(GeneratorAdversarial), s.generator)
		if err == nil {
			err = checkpointer.Load(s.path(DiscriminatorAdversarial), s.disc)
		}
	default:
		return false
	}

	if err != nil {
		s.logger.Info("could not restore completed phase", "phase", p,
			"err", err)
		return false
	}
	return true
}

// ensureCorpus samples the reference corpus from the oracle if it
// does not exist
func (s *SeqGAN) ensureCorpus() error {
	_, err := os.Stat(s.path(RealData))
	if err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("ensureCorpus: %v", err)
	}

	s.logger.Info("generating reference corpus", "path", s.path(RealData),
		"sequences", s.GeneratedNum)
	if err := dataset.WriteSamples(s.oracle, s.GeneratedNum,
		s.path(RealData)); err != nil {
		return fmt.Errorf("ensureCorpus: %w", err)
	}
	return nil
}

// pretrainGenerator trains the generator with maximum likelihood on
// the reference corpus
func (s *SeqGAN) pretrainGenerator() error {
	data, err := dataset.NewGenerator(s.path(RealData), s.Data)
	if err != nil {
		return fmt.Errorf("pretrainGenerator: %w", err)
	}
	s.section(pretrainSection)

	bar := progressbar.NewManualProgressBar(s.Progress, "generator",
		progressWidth, s.PreEpochs)
	defer bar.Close()

	for epoch := 0; epoch < s.PreEpochs; epoch++ {
		var total float64
		batches := 0
		for b := range data.Batches() {
			loss, err := s.generator.PretrainStep(b)
			if err != nil {
				return fmt.Errorf("pretrainGenerator: epoch %v: %w", epoch,
					err)
			}
			total += loss
			batches++
		}
		s.logger.Info("pretrained generator", "epoch", epoch,
			"loss", total/float64(batches))

		if epoch%s.EvalEvery == 0 {
			if err := s.evaluate(epoch); err != nil {
				return fmt.Errorf("pretrainGenerator: %w", err)
			}
		}
		bar.Increment()
		bar.Display()
	}

	if err := checkpointer.Save(s.path(GeneratorPretrained),
		s.generator); err != nil {
		return fmt.Errorf("pretrainGenerator: %v", err)
	}
	return nil
}

// pretrainDiscriminator trains the discriminator to separate the
// reference corpus from the pretrained generator's samples
func (s *SeqGAN) pretrainDiscriminator() error {
	bar := progressbar.NewManualProgressBar(s.Progress, "discriminator",
		progressWidth, s.DisPretrainRounds)
	defer bar.Close()

	for round := 0; round < s.DisPretrainRounds; round++ {
		if err := s.trainDiscriminator(); err != nil {
			return fmt.Errorf("pretrainDiscriminator: round %v: %w", round,
				err)
		}
		bar.Increment()
		bar.Display()
	}

	if err := checkpointer.Save(s.path(DiscriminatorPretrained),
		s.disc); err != nil {
		return fmt.Errorf("pretrainDiscriminator: %v", err)
	}
	return nil
}

// adversarial trains the generator with the policy gradient, rewarded
// by the discriminator, alternating with training the discriminator
// on fresh generated samples
func (s *SeqGAN) adversarial() error {
	s.section(adversarialSection)

	estimator, err := s.newEstimator(s.generator)
	if err != nil {
		return fmt.Errorf("adversarial: could not create estimator: %w", err)
	}

	bar := progressbar.NewManualProgressBar(s.Progress, "adversarial",
		progressWidth, s.TotalBatch)
	defer bar.Close()

	for it := 0; it < s.TotalBatch; it++ {
		for step := 0; step < s.GeneratorSteps; step++ {
			b, err := s.generator.Generate()
			if err != nil {
				return fmt.Errorf("adversarial: iteration %v: %w", it, err)
			}
			rewards, err := estimator.Reward(b, s.RolloutNum, s.disc)
			if err != nil {
				return fmt.Errorf("adversarial: iteration %v: %w", it, err)
			}
			if s.logger.Enabled(context.Background(), slog.LevelDebug) {
				s.logger.Debug("estimated rewards", "iteration", it,
					"step", step, "rewards", matutils.Format(rewards))
			}
			if err := s.generator.TrainStep(b, rewards); err != nil {
				return fmt.Errorf("adversarial: iteration %v: %w", it, err)
			}
		}

		if it%s.EvalEvery == 0 || it == s.TotalBatch-1 {
			if err := s.evaluate(it); err != nil {
				return fmt.Errorf("adversarial: %w", err)
			}
		}

		if err := estimator.UpdateParams(); err != nil {
			return fmt.Errorf("adversarial: iteration %v: %w", it, err)
		}

		for round := 0; round < s.DisRounds; round++ {
			if err := s.trainDiscriminator(); err != nil {
				return fmt.Errorf("adversarial: iteration %v: round %v: %w",
					it, round, err)
			}
		}
		bar.Increment()
		bar.Display()
	}

	if err := checkpointer.Save(s.path(GeneratorAdversarial),
		s.generator); err != nil {
		return fmt.Errorf("adversarial: %v", err)
	}
	if err := checkpointer.Save(s.path(DiscriminatorAdversarial),
		s.disc); err != nil {
		return fmt.Errorf("adversarial: %v", err)
	}
	return nil
}

// trainDiscriminator runs one round of discriminator training: the
// negative corpus is regenerated from the current generator, then the
// discriminator is trained for DisEpochs epochs over the reference
// and negative corpora
func (s *SeqGAN) trainDiscriminator() error {
	if err := dataset.WriteSamples(s.generator, s.GeneratedNum,
		s.path(GeneratorSample)); err != nil {
		return fmt.Errorf("trainDiscriminator: %w", err)
	}

	// Shuffle differently in every round
	c := s.Data
	c.Seed += s.rounds
	s.rounds++

	data, err := dataset.NewDiscriminator(s.path(RealData),
		s.path(GeneratorSample), c)
	if err != nil {
		return fmt.Errorf("trainDiscriminator: %w", err)
	}

	var totalLoss, totalAcc float64
	batches := 0
	for epoch := 0; epoch < s.DisEpochs; epoch++ {
		for x, y := range data.Batches() {
			loss, acc, err := s.disc.Train(x, y)
			if err != nil {
				return fmt.Errorf("trainDiscriminator: epoch %v: %w", epoch,
					err)
			}
			totalLoss += loss
			totalAcc += acc
			batches++
		}
	}
	s.logger.Debug("trained discriminator", "phase", s.phase,
		"loss", totalLoss/float64(batches),
		"accuracy", totalAcc/float64(batches))
	return nil
}

// evaluate measures the oracle negative log-likelihood of sequences
// sampled from the generator and records it with each tracker. An
// error is returned only if the generator could not be sampled. A
// failure to score the samples is logged and does not stop the
// experiment.
func (s *SeqGAN) evaluate(epoch int) error {
	if err := dataset.WriteSamples(s.generator, s.GeneratedNum,
		s.path(EvalFile)); err != nil {
		return fmt.Errorf("evaluate: epoch %v: %w", epoch, err)
	}

	nll, err := s.nll()
	if err != nil {
		s.logger.Warn("evaluation failed", "phase", s.phase, "epoch", epoch,
			"err", err)
		return nil
	}

	s.logger.Info("evaluated generator", "phase", s.phase, "epoch", epoch,
		"nll", nll)
	for _, t := range s.trackers {
		if err := t.Track(epoch, nll); err != nil {
			s.logger.Warn("could not track evaluation", "epoch", epoch,
				"err", err)
		}
	}
	return nil
}

// nll returns the mean oracle negative log-likelihood of the
// evaluation corpus
func (s *SeqGAN) nll() (float64, error) {
	data, err := dataset.NewGenerator(s.path(EvalFile), s.Data)
	if err != nil {
		return 0, fmt.Errorf("nll: %w", err)
	}

	var total float64
	batches := 0
	for b := range data.Batches() {
		nll, err := s.oracle.NLL(b)
		if err != nil {
			return 0, fmt.Errorf("nll: %w", err)
		}
		total += nll
		batches++
	}
	return total / float64(batches), nil
}

// section starts a new section in each tracker
func (s *SeqGAN) section(header string) {
	for _, t := range s.trackers {
		if err := t.Section(header); err != nil {
			s.logger.Warn("could not start log section", "header", header,
				"err", err)
		}
	}
}

// close closes each tracker
func (s *SeqGAN) close() {
	for _, t := range s.trackers {
		if err := t.Close(); err != nil {
			s.logger.Warn("could not close tracker", "err", err)
		}
	}
}

// path returns the path of a file in the save directory
func (s *SeqGAN) path(file string) string {
	return filepath.Join(s.SaveDir, file)
}
