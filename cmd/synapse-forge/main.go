package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"synapse-forge/internal/config"
	"synapse-forge/internal/dataset"
	"synapse-forge/internal/trainer"
)

func main() {
	cfgPath := flag.String("config", "configs/demo.yaml", "Path to YAML config")
	trainRoot := flag.String("train-root", "", "Override training shard root")
	testRoot := flag.String("test-root", "", "Override test shard root")
	numSamples := flag.Int("samples", 0, "Training draws per epoch")
	numEpochs := flag.Int("epochs", 0, "Number of epochs")
	workers := flag.Int("workers", 0, "Workers per parallel region")
	seed := flag.Int64("seed", 0, "PRNG seed")
	logEvery := flag.Int("log-every", 0, "Log every N samples")

	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	cfg.ApplyOverrides(config.Overrides{
		TrainRoot:  *trainRoot,
		TestRoot:   *testRoot,
		NumSamples: *numSamples,
		NumEpochs:  *numEpochs,
		Workers:    *workers,
		Seed:       *seed,
		LogEvery:   *logEvery,
	})

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	spec := dataset.Spec{
		NumInput:      cfg.Network.NumInput,
		NumOutput:     cfg.Network.NumOutput,
		NumInputLevel: cfg.NumInputLevel(),
	}
	train, test, err := loadSets(ctx, cfg, spec)
	if err != nil {
		log.Fatalf("load data: %v", err)
	}
	log.Printf("train_samples=%d test_samples=%d device=%v hardware=%v", train.Len(), test.Len(), cfg.Device.Kind, cfg.UsesHardware())

	runCfg := trainer.RunConfig{
		Options: cfg.Options(),
		Hardware: trainer.Hardware{
			Device:          cfg.Device,
			Wires:           cfg.Wires,
			Tech:            cfg.Technology,
			CellsPerSynapse: cfg.Hardware.NumCellPerSynapse,
			NeuronHidden:    cfg.NeuronHidden,
			NeuronOutput:    cfg.NeuronOutput,
			Oracle:          cfg.Periphery,
		},
		Train:      train,
		Test:       test,
		NumSamples: cfg.Training.NumSamples,
		NumEpochs:  cfg.Training.NumEpochs,
		LogEvery:   cfg.LogEvery,
		Seed:       cfg.Seed,
	}

	if err := trainer.Run(ctx, runCfg); err != nil {
		log.Fatalf("training failed: %v", err)
	}
}

// loadSets reads shards under the configured roots. Without a training
// root both sets are drawn from one synthetic population and split, so they
// share class prototypes.
func loadSets(ctx context.Context, cfg *config.Config, spec dataset.Spec) (*dataset.Set, *dataset.Set, error) {
	if cfg.TrainRoot == "" {
		all, err := dataset.Synthetic(cfg.Synthetic.Train+cfg.Synthetic.Test, spec, cfg.Synthetic.Noise, cfg.Seed)
		if err != nil {
			return nil, nil, err
		}
		train := &dataset.Set{Spec: spec, Samples: all.Samples[:cfg.Synthetic.Train]}
		test := &dataset.Set{Spec: spec, Samples: all.Samples[cfg.Synthetic.Train:]}
		return train, test, nil
	}

	train, err := loadRoot(ctx, cfg.TrainRoot, spec, cfg.PendingCap)
	if err != nil {
		return nil, nil, err
	}
	if cfg.TestRoot == "" {
		return train, &dataset.Set{Spec: spec}, nil
	}
	test, err := loadRoot(ctx, cfg.TestRoot, spec, cfg.PendingCap)
	if err != nil {
		return nil, nil, err
	}
	return train, test, nil
}

func loadRoot(ctx context.Context, root string, spec dataset.Spec, pendingCap int) (*dataset.Set, error) {
	shards, err := dataset.DiscoverShards(root)
	if err != nil {
		return nil, err
	}
	log.Printf("root=%s shards=%d", root, len(shards))
	return dataset.Load(ctx, shards, spec, pendingCap)
}
