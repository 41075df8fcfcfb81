package metrics

import "time"

// Window accumulates per-sample stats between two log lines.
type Window struct {
	samples int
	correct int
	compute time.Duration
	energy  float64
	sqErr   float64
}

// Record adds one trained sample to the window. energy is the hardware
// energy spent on that sample and sqErr its summed squared output error.
func (w *Window) Record(computeTime time.Duration, hit bool, energy, sqErr float64) {
	w.samples++
	w.compute += computeTime
	w.energy += energy
	w.sqErr += sqErr
	if hit {
		w.correct++
	}
}

// Snapshot returns aggregated metrics and resets the window.
func (w *Window) Snapshot() Snapshot {
	snap := Snapshot{Samples: w.samples}
	if w.compute > 0 {
		snap.SamplesPerSec = float64(w.samples) / w.compute.Seconds()
	}
	if w.samples > 0 {
		n := float64(w.samples)
		snap.Accuracy = float64(w.correct) / n
		snap.EnergyPerSample = w.energy / n
		snap.MeanSqErr = w.sqErr / n
		snap.AvgComputeMS = w.compute.Seconds() * 1000 / n
	}

	*w = Window{}
	return snap
}

// Snapshot represents loggable metrics.
type Snapshot struct {
	Samples         int
	SamplesPerSec   float64
	AvgComputeMS    float64
	Accuracy        float64
	EnergyPerSample float64
	MeanSqErr       float64
}
