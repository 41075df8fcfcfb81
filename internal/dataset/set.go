package dataset

import (
	"context"
	"math"
	"math/rand"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Spec fixes the shape and input digitization of a set.
type Spec struct {
	NumInput      int
	NumOutput     int
	NumInputLevel int
}

// Validate rejects shapes that cannot be digitized.
func (s Spec) Validate() error {
	if s.NumInput <= 0 || s.NumOutput <= 0 {
		return errors.Errorf("dataset: shape %dx%d must be positive", s.NumInput, s.NumOutput)
	}
	if s.NumInputLevel < 2 {
		return errors.Errorf("dataset: num_input_level must be >= 2 (got %d)", s.NumInputLevel)
	}
	return nil
}

// Sample is one training example. DInput is Input quantized to
// NumInputLevel levels and never changes after load.
type Sample struct {
	Input  []float64
	DInput []int
	Target []float64
	Label  int
}

// Set is an in-memory, read-only collection of samples.
type Set struct {
	Spec    Spec
	Samples []Sample
}

// Len returns the number of samples.
func (s *Set) Len() int { return len(s.Samples) }

// Digitize builds a Sample from a record: inputs are clamped to [0,1] and
// quantized with round(input*(levels-1)); the target is one-hot.
func (s Spec) Digitize(rec Record) (Sample, error) {
	if len(rec.Vector) != s.NumInput {
		return Sample{}, errors.Errorf("dataset: %s has %d inputs, want %d", rec.Key, len(rec.Vector), s.NumInput)
	}
	if rec.Label < 0 || rec.Label >= s.NumOutput {
		return Sample{}, errors.Errorf("dataset: %s label %d out of range [0,%d)", rec.Key, rec.Label, s.NumOutput)
	}
	smp := Sample{
		Input:  make([]float64, s.NumInput),
		DInput: make([]int, s.NumInput),
		Target: make([]float64, s.NumOutput),
		Label:  rec.Label,
	}
	levels := float64(s.NumInputLevel - 1)
	for i, v := range rec.Vector {
		v = math.Max(0, math.Min(1, v))
		smp.Input[i] = v
		smp.DInput[i] = int(math.Round(v * levels))
	}
	smp.Target[rec.Label] = 1
	return smp, nil
}

// Load reads every shard concurrently and returns the samples in shard
// order.
func Load(ctx context.Context, shards []string, spec Spec, pendingCap int) (*Set, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if len(shards) == 0 {
		return nil, errors.New("dataset: no shards")
	}
	parts := make([][]Sample, len(shards))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, path := range shards {
		i, path := i, path
		g.Go(func() error {
			recs, err := ReadShard(gctx, path, pendingCap)
			if err != nil {
				return err
			}
			out := make([]Sample, 0, len(recs))
			for _, rec := range recs {
				smp, err := spec.Digitize(rec)
				if err != nil {
					return errors.Wrap(err, path)
				}
				out = append(out, smp)
			}
			parts[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	set := &Set{Spec: spec}
	for _, p := range parts {
		set.Samples = append(set.Samples, p...)
	}
	if set.Len() == 0 {
		return nil, errors.New("dataset: shards hold no samples")
	}
	return set, nil
}

// Synthetic draws n samples around one random prototype per class. noise
// is the half-width of the uniform jitter added to each input.
func Synthetic(n int, spec Spec, noise float64, seed int64) (*Set, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(seed))
	protos := make([][]float64, spec.NumOutput)
	for c := range protos {
		protos[c] = make([]float64, spec.NumInput)
		for i := range protos[c] {
			if rng.Float64() < 0.5 {
				protos[c][i] = 1
			}
		}
	}
	set := &Set{Spec: spec, Samples: make([]Sample, 0, n)}
	for s := 0; s < n; s++ {
		label := s % spec.NumOutput
		vec := make([]float64, spec.NumInput)
		for i, p := range protos[label] {
			vec[i] = p + (2*rng.Float64()-1)*noise
		}
		smp, err := spec.Digitize(Record{Vector: vec, Label: label})
		if err != nil {
			return nil, err
		}
		set.Samples = append(set.Samples, smp)
	}
	return set, nil
}
