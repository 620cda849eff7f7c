package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/samuelfneumann/seqgan/agent"
	"github.com/samuelfneumann/seqgan/config"
	"github.com/samuelfneumann/seqgan/discriminator"
	"github.com/samuelfneumann/seqgan/experiment"
	"github.com/samuelfneumann/seqgan/generator"
	"github.com/samuelfneumann/seqgan/oracle"
	"github.com/samuelfneumann/seqgan/rollout"
	"github.com/samuelfneumann/seqgan/utils/logging"
)

// OracleParams is the file in the save directory holding the oracle
const OracleParams = "target_params.gob"

func main() {
	configPath := flag.String("config", "", "CUE or JSON configuration "+
		"file (default $"+config.EnvConfig+")")
	initOracle := flag.Bool("init-oracle", false, "create fresh random "+
		"oracle parameters, replacing any existing ones")
	progress := flag.Bool("progress", false, "display progress bars")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "could not load .env: %v\n", err)
		os.Exit(1)
	}

	c, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	runID := uuid.New()
	logger, closer, err := logging.New(os.Stderr, c.Log, runID)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var out io.Writer
	if *progress {
		out = os.Stdout
	}

	err = run(c, runID, *initOracle, out, logger)
	if err != nil {
		logger.Error("training failed", "err", err)
	}
	closer.Close()
	if err != nil {
		os.Exit(1)
	}
}

// loadConfig loads the configuration at path, or at $SEQGAN_CONFIG if
// path is empty. Without either, the default configuration is used.
func loadConfig(path string) (config.Config, error) {
	if path == "" {
		path = os.Getenv(config.EnvConfig)
	}

	c := config.Default()
	if path != "" {
		var err error
		if c, err = config.Load(path); err != nil {
			return config.Config{}, err
		}
	}

	c.ApplyEnv()
	if err := c.Validate(); err != nil {
		return config.Config{}, err
	}
	return c, nil
}

// run builds every model of the run and trains them
func run(c config.Config, runID uuid.UUID, initOracle bool, progress io.Writer,
	logger *slog.Logger) error {
	if err := os.MkdirAll(c.SaveDir, 0o755); err != nil {
		return err
	}

	o, err := newOracle(c, initOracle, logger)
	if err != nil {
		return err
	}
	g, err := generator.New(c.ForGenerator())
	if err != nil {
		return err
	}
	d, err := discriminator.New(c.ForDiscriminator())
	if err != nil {
		return err
	}

	newEstimator := func(live agent.Freezer) (experiment.RewardEstimator,
		error) {
		e, err := rollout.New(live, c.ForRollout())
		if err != nil {
			return nil, err
		}
		return e, nil
	}

	logger.Info("starting experiment", "saveDir", c.SaveDir,
		"vocab", c.Vocab, "seqLength", c.SeqLength, "batchSize", c.BatchSize)
	exp, err := experiment.NewSeqGAN(c.ForExperiment(runID, progress), o, g,
		d, newEstimator, logger)
	if err != nil {
		return err
	}
	return exp.Run()
}

// newOracle loads the oracle parameters of the run. Fresh parameters
// are only created when requested.
func newOracle(c config.Config, initOracle bool,
	logger *slog.Logger) (*oracle.Oracle, error) {
	path := filepath.Join(c.SaveDir, OracleParams)
	if !initOracle {
		o, err := oracle.Load(path, c.ForOracle())
		if errors.Is(err, oracle.ErrMissingParams) {
			return nil, fmt.Errorf("%w: run with -init-oracle to create %v",
				err, path)
		}
		return o, err
	}

	logger.Info("creating oracle parameters", "path", path)
	o, err := oracle.NewRandom(c.ForOracle())
	if err != nil {
		return nil, err
	}
	if err := o.Save(path); err != nil {
		return nil, err
	}
	return o, nil
}
