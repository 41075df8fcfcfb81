package trainer

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"synapse-forge/internal/dataset"
	"synapse-forge/internal/model"
)

// ErrShapeMismatch is returned when the arrays, the options and the data
// set disagree on layer sizes or input levels.
var ErrShapeMismatch = errors.New("trainer: shape mismatch")

// Options is fixed for a run.
type Options struct {
	NumInput, NumHide, NumOutput int
	MaxWeight, MinWeight         float64
	Alpha1, Alpha2               float64

	NumBitInput      int
	NumBitPartialSum int
	NumColMuxed      int
	NumWriteColMuxed int
	// HThreshold is the rounding threshold used when the hidden activation
	// is re-digitized for the second layer.
	HThreshold float64

	UseHardwareInTrainingFF bool
	UseHardwareInTrainingWU bool
	UseHardwareInTestingFF  bool
	WriteEnergyReport       bool

	// Workers bounds the data-parallel regions; zero uses GOMAXPROCS.
	Workers int

	Maintenance Maintenance
}

// NumInputLevel is the number of digitized input levels.
func (o Options) NumInputLevel() int { return 1 << o.NumBitInput }

// UsesHardware reports whether any phase touches the emulated arrays.
func (o Options) UsesHardware() bool {
	return o.UseHardwareInTrainingFF || o.UseHardwareInTrainingWU || o.UseHardwareInTestingFF
}

// hardwareInTraining reports whether training touches the arrays.
func (o Options) hardwareInTraining() bool {
	return o.UseHardwareInTrainingFF || o.UseHardwareInTrainingWU
}

// Validate rejects options the engine cannot run.
func (o Options) Validate() error {
	if o.NumInput <= 0 || o.NumHide <= 0 || o.NumOutput <= 0 {
		return errors.Wrapf(ErrShapeMismatch, "sizes %d-%d-%d", o.NumInput, o.NumHide, o.NumOutput)
	}
	if o.MaxWeight <= o.MinWeight {
		return errors.Errorf("trainer: max weight %g must exceed min weight %g", o.MaxWeight, o.MinWeight)
	}
	if o.NumBitInput <= 0 {
		return errors.Errorf("trainer: num bit input must be > 0 (got %d)", o.NumBitInput)
	}
	if o.UsesHardware() && (o.NumBitPartialSum <= 0 || o.NumColMuxed <= 0 || o.NumWriteColMuxed <= 0) {
		return errors.New("trainer: hardware paths need partial-sum bits and mux factors")
	}
	m := o.Maintenance
	switch m.Policy {
	case PolicyLine, PolicySequential:
		if m.NumRefHidden < 0 || m.NumRefHidden > o.NumHide || m.NumRefOutput < 0 || m.NumRefOutput > o.NumOutput {
			return errors.Errorf("trainer: refresh line counts %d/%d exceed layer sizes %d/%d", m.NumRefHidden, m.NumRefOutput, o.NumHide, o.NumOutput)
		}
	}
	return nil
}

// StepResult describes one trained sample.
type StepResult struct {
	Index      int
	Output     []float64
	Hit        bool
	SqErr      float64
	Maintained bool
}

// Engine runs the per-sample forward, backward, update and maintenance
// cycle against a SimulationContext.
type Engine struct {
	opts    Options
	sim     *SimulationContext
	net     *model.Network
	set     *dataset.Set
	sampler *dataset.Sampler
	rng     *rand.Rand

	// processed counts trained samples over the whole run.
	processed int
}

// NewEngine checks that opts, sim and set agree, draws the initial weights
// and programs them into both arrays.
func NewEngine(opts Options, sim *SimulationContext, set *dataset.Set, seed int64) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if sim == nil || sim.Hidden == nil || sim.Output == nil {
		return nil, errors.New("trainer: simulation context is incomplete")
	}
	if set == nil || set.Len() == 0 {
		return nil, errors.New("trainer: empty training set")
	}
	h, o := sim.Hidden.Array, sim.Output.Array
	if h.Cols != opts.NumHide || h.Rows != opts.NumInput {
		return nil, errors.Wrapf(ErrShapeMismatch, "hidden array is %dx%d, want %dx%d", h.Cols, h.Rows, opts.NumHide, opts.NumInput)
	}
	if o.Cols != opts.NumOutput || o.Rows != opts.NumHide {
		return nil, errors.Wrapf(ErrShapeMismatch, "output array is %dx%d, want %dx%d", o.Cols, o.Rows, opts.NumOutput, opts.NumHide)
	}
	if set.Spec.NumInput != opts.NumInput || set.Spec.NumOutput != opts.NumOutput {
		return nil, errors.Wrapf(ErrShapeMismatch, "data set is %dx%d, network %dx%d", set.Spec.NumInput, set.Spec.NumOutput, opts.NumInput, opts.NumOutput)
	}
	if set.Spec.NumInputLevel != opts.NumInputLevel() {
		return nil, errors.Wrapf(ErrShapeMismatch, "data set has %d input levels, network %d", set.Spec.NumInputLevel, opts.NumInputLevel())
	}
	if opts.UsesHardware() {
		for _, l := range sim.Layers() {
			if err := l.Array.Params.Validate(); err != nil {
				return nil, errors.Wrapf(err, "trainer: %s layer", l.Name)
			}
		}
	}

	sampler, err := dataset.NewSampler(set.Len(), seed+1)
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(seed))
	e := &Engine{
		opts:    opts,
		sim:     sim,
		net:     model.NewNetwork(opts.NumInput, opts.NumHide, opts.NumOutput, opts.MinWeight, opts.MaxWeight, rng),
		set:     set,
		sampler: sampler,
		rng:     rng,
	}

	h.Initialize(func(col, row int) float64 { return e.net.Weight1.At(col, row) }, opts.MaxWeight, opts.MinWeight)
	o.Initialize(func(col, row int) float64 { return e.net.Weight2.At(col, row) }, opts.MaxWeight, opts.MinWeight)
	if opts.hardwareInTraining() {
		e.syncWeights()
	}
	return e, nil
}

// Network exposes the weight and delta matrices.
func (e *Engine) Network() *model.Network { return e.net }

// Processed returns the number of samples trained so far.
func (e *Engine) Processed() int { return e.processed }

// Context exposes the hardware state.
func (e *Engine) Context() *SimulationContext { return e.sim }

// syncWeights overwrites both weight matrices from device state.
func (e *Engine) syncWeights() {
	e.syncLayer(e.sim.Hidden, e.net.Weight1)
	e.syncLayer(e.sim.Output, e.net.Weight2)
}

func (e *Engine) syncLayer(l *Layer, w *mat.Dense) {
	arr := l.Array
	for c := 0; c < arr.Cols; c++ {
		for r := 0; r < arr.Rows; r++ {
			w.Set(c, r, arr.ConductanceToWeight(c, r, e.opts.MaxWeight, e.opts.MinWeight))
		}
	}
}

// Train runs numEpochs passes of numSamples uniformly drawn samples.
func (e *Engine) Train(numSamples, numEpochs int) {
	for epoch := 0; epoch < numEpochs; epoch++ {
		for s := 0; s < numSamples; s++ {
			e.Step()
		}
	}
}

// Step trains one randomly drawn sample and runs PCM maintenance when the
// run's sample count closes an interval.
func (e *Engine) Step() StepResult {
	idx := e.sampler.Next()
	smp := e.set.Samples[idx]

	a1, a2 := e.forward(smp, e.opts.UseHardwareInTrainingFF, true)

	s2 := model.OutputDeltas(a2, smp.Target)
	s1 := model.HiddenDeltas(a1, s2, e.net.Weight2)

	e.update(e.sim.Hidden, e.net.Weight1, e.net.Delta1, s1, smp.Input, e.opts.Alpha1)
	e.update(e.sim.Output, e.net.Weight2, e.net.Delta2, s2, a1, e.opts.Alpha2)

	e.processed++
	maintained := e.maintain()

	diff := make([]float64, len(a2))
	floats.SubTo(diff, a2, smp.Target)
	return StepResult{
		Index:      idx,
		Output:     a2,
		Hit:        model.Argmax(a2) == smp.Label,
		SqErr:      floats.Dot(diff, diff),
		Maintained: maintained,
	}
}

// forward returns the hidden and output activations. On hardware the
// hidden activation is re-digitized before it drives the second array.
func (e *Engine) forward(smp dataset.Sample, hardware, accumulate bool) (a1, a2 []float64) {
	if !hardware {
		_, a1 = model.Forward(e.net.Weight1, smp.Input)
		_, a2 = model.Forward(e.net.Weight2, a1)
		return a1, a2
	}
	a1 = e.hardwareForward(e.sim.Hidden, smp.DInput, accumulate)
	da1 := e.digitize(a1)
	a2 = e.hardwareForward(e.sim.Output, da1, accumulate)
	return a1, a2
}

// digitize maps activations in (0,1) onto the input levels of the next
// layer.
func (e *Engine) digitize(a []float64) []int {
	levels := float64(e.opts.NumInputLevel() - 1)
	d := make([]int, len(a))
	for j, v := range a {
		d[j] = model.RoundTh(v*levels, e.opts.HThreshold)
	}
	return d
}

// Evaluate classifies every sample of set and returns the accuracy. It
// reads the arrays when testing on hardware but charges no energy.
func (e *Engine) Evaluate(set *dataset.Set) float64 {
	if set == nil || set.Len() == 0 {
		return math.NaN()
	}
	hits := 0
	for _, smp := range set.Samples {
		_, a2 := e.forward(smp, e.opts.UseHardwareInTestingFF, false)
		if model.Argmax(a2) == smp.Label {
			hits++
		}
	}
	return float64(hits) / float64(set.Len())
}
