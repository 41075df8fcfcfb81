package trainer

import (
	"context"
	"log"
	"time"

	"github.com/pkg/errors"

	"synapse-forge/internal/dataset"
	"synapse-forge/internal/metrics"
)

// RunConfig captures the knobs required by the training loop.
type RunConfig struct {
	Options    Options
	Hardware   Hardware
	Train      *dataset.Set
	Test       *dataset.Set
	NumSamples int
	NumEpochs  int
	LogEvery   int
	Seed       int64
}

// Run trains on cfg.Train for the configured epochs, evaluates cfg.Test
// after each epoch and logs the energy and latency totals at the end.
func Run(ctx context.Context, cfg RunConfig) error {
	if cfg.NumSamples <= 0 {
		return errors.New("trainer: num samples must be > 0")
	}
	if cfg.NumEpochs <= 0 {
		return errors.New("trainer: num epochs must be > 0")
	}
	if cfg.LogEvery <= 0 {
		cfg.LogEvery = 50
	}

	sim, err := NewContext(cfg.Options, cfg.Hardware)
	if err != nil {
		return err
	}
	eng, err := NewEngine(cfg.Options, sim, cfg.Train, cfg.Seed)
	if err != nil {
		return err
	}

	ledger := metrics.NewLedger(sim.Hidden.Name, sim.Output.Name)
	var window metrics.Window

	for epoch := 1; epoch <= cfg.NumEpochs; epoch++ {
		maintained := 0
		for s := 0; s < cfg.NumSamples; s++ {
			if err := ctx.Err(); err != nil {
				return err
			}

			before := sim.TotalEnergy()
			start := time.Now()
			res := eng.Step()
			computeTime := time.Since(start)
			if res.Maintained {
				maintained++
			}

			window.Record(computeTime, res.Hit, sim.TotalEnergy()-before, res.SqErr)

			if (s+1)%cfg.LogEvery == 0 {
				snap := window.Snapshot()
				log.Printf("epoch=%d sample=%d samples_per_sec=%.1f compute_ms=%.3f train_acc=%.3f mse=%.4f energy_per_sample=%.3e",
					epoch,
					s+1,
					snap.SamplesPerSec,
					snap.AvgComputeMS,
					snap.Accuracy,
					snap.MeanSqErr,
					snap.EnergyPerSample,
				)
			}
		}

		for _, l := range sim.Layers() {
			if err := ledger.Observe(l.Name, l.Energy()); err != nil {
				return errors.Wrapf(err, "epoch %d", epoch)
			}
		}

		if cfg.Test != nil && cfg.Test.Len() > 0 {
			log.Printf("epoch=%d test_acc=%.4f maintenance_ticks=%d", epoch, eng.Evaluate(cfg.Test), maintained)
		} else {
			log.Printf("epoch=%d maintenance_ticks=%d", epoch, maintained)
		}
	}

	for _, name := range ledger.Layers() {
		log.Printf("layer=%s %s", name, ledger.Layer(name))
	}
	log.Printf("total_energy=%.4e", ledger.Total())
	return nil
}
