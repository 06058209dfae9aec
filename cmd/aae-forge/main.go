package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"aae-forge/internal/checkpoint"
	"aae-forge/internal/config"
	"aae-forge/internal/dataset"
	"aae-forge/internal/model"
	"aae-forge/internal/trainer"
	"aae-forge/internal/viz"
)

// updateFlags collects repeated -update name=bool values.
type updateFlags map[string]bool

func (u updateFlags) String() string {
	parts := make([]string, 0, len(u))
	for name, on := range u {
		if on {
			parts = append(parts, name+"=true")
		} else {
			parts = append(parts, name+"=false")
		}
	}
	return strings.Join(parts, ",")
}

func (u updateFlags) Set(v string) error {
	name, on, err := config.ParseUpdate(v)
	if err != nil {
		return err
	}
	u[name] = on
	return nil
}

func main() {
	cfgPath := flag.String("config", "configs/default.yaml", "Path to YAML config")
	epochs := flag.Int("epochs", 0, "Number of epochs")
	batchSize := flag.Int("batch-size", 0, "Batch size")
	seed := flag.Int64("seed", 0, "PRNG seed")
	dataDir := flag.String("data-dir", "", "Directory with MNIST IDX files")
	source := flag.String("source", "", "Data source: idx, shards or synthetic")
	outputDir := flag.String("output-dir", "", "Root of the output tree")
	experiment := flag.String("experiment", "", "Experiment name")
	resume := flag.String("resume", "", "Checkpoint to restore before training")
	updates := updateFlags{}
	flag.Var(updates, "update", "Toggle a sub-step update, name=bool (repeatable)")

	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	cfg.ApplyOverrides(config.Overrides{
		Experiment: *experiment,
		OutputDir:  *outputDir,
		Source:     *source,
		DataDir:    *dataDir,
		Epochs:     *epochs,
		BatchSize:  *batchSize,
		Seed:       *seed,
		Updates:    updates,
		Resume:     *resume,
	})

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	log.Printf("experiment=%s seed=%d epochs=%d batch_size=%d updates=%v",
		cfg.Experiment, cfg.Seed, cfg.Train.Epochs, cfg.Train.BatchSize, cfg.EnabledSteps())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	train, test, err := dataset.Open(ctx, dataset.OpenOptions{
		Source:        cfg.Data.Source,
		Dir:           cfg.Data.Dir,
		TrainRoot:     cfg.Data.TrainRoot,
		TestRoot:      cfg.Data.TestRoot,
		NumWorkers:    cfg.Data.NumWorkers,
		SyntheticSize: cfg.Data.SyntheticSize,
	})
	if err != nil {
		log.Fatalf("load dataset: %v", err)
	}
	provider, err := dataset.NewProvider(train, cfg.Train.BatchSize)
	if err != nil {
		log.Fatalf("batching: %v", err)
	}

	bank := model.NewBank(cfg.Model.LatentDim, cfg.Seed)
	for _, n := range bank.Nets() {
		log.Printf("net=%s params=%d", n.Name(), n.NumParams())
	}
	startEpoch := 0
	if cfg.Train.Resume != "" {
		saved, err := checkpoint.Load(cfg.Train.Resume, bank)
		if err != nil {
			log.Fatalf("resume from %s: %v", cfg.Train.Resume, err)
		}
		startEpoch = saved + 1
		log.Printf("resumed path=%s saved_epoch=%d start_epoch=%d (optimizer state restarts)", cfg.Train.Resume, saved, startEpoch)
	}

	steps := map[string]bool{}
	for _, name := range config.StepNames {
		steps[name] = cfg.UpdateEnabled(name)
	}
	stepper, err := trainer.NewStepper(bank, trainer.StepOptions{
		BatchSize:    provider.BatchSize(),
		LearningRate: cfg.Train.LearningRate,
		Weights: trainer.Weights{
			AE:  cfg.Train.AELossWeight,
			Gen: cfg.Train.GenLossWeight,
			DC:  cfg.Train.DCLossWeight,
		},
		Updates: steps,
		Seed:    cfg.Seed,
	})
	if err != nil {
		log.Fatalf("build trainer: %v", err)
	}
	defer stepper.Close()

	expDir := filepath.Join(cfg.OutputDir, cfg.Experiment)
	renderer, err := viz.NewRenderer(expDir, bank, test, provider.BatchSize())
	if err != nil {
		log.Fatalf("build renderer: %v", err)
	}
	defer renderer.Close()

	runCfg := trainer.RunConfig{
		Epochs:         cfg.Train.Epochs,
		StartEpoch:     startEpoch,
		VisualizeEvery: cfg.Train.VisualizeEvery,
		Seed:           cfg.Seed,
		Data:           provider,
		Step:           stepper,
		Render:         renderer,
		Progress:       os.Stdout,
	}
	if cfg.Checkpoint.Enabled {
		saver, err := checkpoint.NewSaver(filepath.Join(expDir, "checkpoints"), bank)
		if err != nil {
			log.Fatalf("checkpoints: %v", err)
		}
		runCfg.Checkpoint = saver
	}

	if _, err := trainer.Run(ctx, runCfg); err != nil {
		log.Fatalf("training failed: %v", err)
	}
}
