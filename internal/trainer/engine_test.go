package trainer

import (
	"math"
	"testing"

	"github.com/pkg/errors"

	"synapse-forge/internal/crossbar"
	"synapse-forge/internal/dataset"
	"synapse-forge/internal/device"
	"synapse-forge/internal/metrics"
	"synapse-forge/internal/model"
	"synapse-forge/internal/periphery"
)

func testOptions(hardware bool) Options {
	return Options{
		NumInput:                8,
		NumHide:                 10,
		NumOutput:               3,
		MaxWeight:               1,
		MinWeight:               0,
		Alpha1:                  0.4,
		Alpha2:                  0.2,
		NumBitInput:             1,
		NumBitPartialSum:        8,
		NumColMuxed:             4,
		NumWriteColMuxed:        4,
		HThreshold:              0.5,
		UseHardwareInTrainingFF: hardware,
		UseHardwareInTrainingWU: hardware,
		UseHardwareInTestingFF:  hardware,
		WriteEnergyReport:       hardware,
		Workers:                 3,
		Maintenance: Maintenance{
			Policy:            PolicyThreshold,
			NumImagesPerReset: 5,
		},
	}
}

func testNeuron() periphery.Neuron {
	return periphery.Neuron{
		Adder:      periphery.Adder{NumBit: 8, NumAdder: 2},
		Mux:        periphery.Mux{NumInput: 4},
		MuxDecoder: periphery.RowDecoder{NumAddrBit: 2},
		DFF:        periphery.DFF{NumBit: 16},
	}
}

func testHardware(p device.Params) Hardware {
	return Hardware{
		Device:          p,
		Wires:           crossbar.Wires{CapRow: 40e-15, CapCol: 160e-15, GateCapRow: 60e-15},
		Tech:            device.Technology{Vdd: 1.1},
		CellsPerSynapse: 5,
		NeuronHidden:    testNeuron(),
		NeuronOutput:    testNeuron(),
		Oracle:          periphery.DefaultModel(),
	}
}

func digitalDevice() device.Params {
	return device.Params{
		Kind:               device.KindDigitalNVM,
		MaxConductance:     1e-5,
		MinConductance:     1e-7,
		HalfSelectRatio:    0.1,
		WriteVoltageLTP:    2,
		WriteVoltageLTD:    2,
		WritePulseWidthLTP: 10e-9,
		WritePulseWidthLTD: 10e-9,
		ReadEnergy:         1e-15,
	}
}

func testSet(t *testing.T, opts Options, n int, seed int64) *dataset.Set {
	t.Helper()
	spec := dataset.Spec{NumInput: opts.NumInput, NumOutput: opts.NumOutput, NumInputLevel: opts.NumInputLevel()}
	set, err := dataset.Synthetic(n, spec, 0.2, seed)
	if err != nil {
		t.Fatalf("Synthetic: %v", err)
	}
	return set
}

func newTestEngine(t *testing.T, opts Options, p device.Params) *Engine {
	t.Helper()
	sim, err := NewContext(opts, testHardware(p))
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	eng, err := NewEngine(opts, sim, testSet(t, opts, 30, 7), 11)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return eng
}

func TestNewEngineRejectsShapeMismatch(t *testing.T) {
	opts := testOptions(false)
	sim, err := NewContext(opts, testHardware(device.DefaultPCM()))
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}

	wide := opts
	wide.NumInput = 9
	if _, err := NewEngine(opts, sim, testSet(t, wide, 10, 1), 1); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch for data set width, got %v", err)
	}

	other := opts
	other.NumHide = 12
	if _, err := NewEngine(other, sim, testSet(t, other, 10, 1), 1); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch for array size, got %v", err)
	}

	levels := opts
	levels.NumBitInput = 2
	if _, err := NewEngine(opts, sim, testSet(t, levels, 10, 1), 1); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch for input levels, got %v", err)
	}
}

func TestNewContextValidatesDeviceOnlyForHardware(t *testing.T) {
	bad := device.DefaultPCM()
	bad.MaxNumLevelLTP = 0
	if _, err := NewContext(testOptions(true), testHardware(bad)); !errors.Is(err, device.ErrMissingDeviceParam) {
		t.Fatalf("expected ErrMissingDeviceParam, got %v", err)
	}
	if _, err := NewContext(testOptions(false), testHardware(bad)); err != nil {
		t.Fatalf("algorithmic run should not validate the device: %v", err)
	}
}

func TestWeightsStayInBounds(t *testing.T) {
	for _, tc := range []struct {
		name     string
		hardware bool
		p        device.Params
	}{
		{"algorithmic", false, device.DefaultPCM()},
		{"pcm", true, device.DefaultPCM()},
		{"digital", true, digitalDevice()},
	} {
		t.Run(tc.name, func(t *testing.T) {
			opts := testOptions(tc.hardware)
			eng := newTestEngine(t, opts, tc.p)
			eng.Train(25, 2)
			net := eng.Network()
			if !model.InBounds(net.Weight1, opts.MinWeight, opts.MaxWeight) {
				t.Fatalf("hidden weights left [%g, %g]", opts.MinWeight, opts.MaxWeight)
			}
			if !model.InBounds(net.Weight2, opts.MinWeight, opts.MaxWeight) {
				t.Fatalf("output weights left [%g, %g]", opts.MinWeight, opts.MaxWeight)
			}
		})
	}
}

func TestHardwareWeightsTrackDevices(t *testing.T) {
	opts := testOptions(true)
	eng := newTestEngine(t, opts, device.DefaultPCM())
	eng.Train(12, 1)
	arr := eng.Context().Hidden.Array
	w := eng.Network().Weight1
	for c := 0; c < arr.Cols; c++ {
		for r := 0; r < arr.Rows; r++ {
			if got, want := w.At(c, r), arr.ConductanceToWeight(c, r, 1, 0); math.Abs(got-want) > 1e-12 {
				t.Fatalf("weight (%d,%d) = %f, device holds %f", c, r, got, want)
			}
		}
	}
}

func TestEnergyIsMonotone(t *testing.T) {
	opts := testOptions(true)
	eng := newTestEngine(t, opts, device.DefaultPCM())
	sim := eng.Context()
	ledger := metrics.NewLedger(sim.Hidden.Name, sim.Output.Name)
	for s := 0; s < 20; s++ {
		eng.Step()
		for _, l := range sim.Layers() {
			if err := ledger.Observe(l.Name, l.Energy()); err != nil {
				t.Fatalf("sample %d: %v", s, err)
			}
		}
	}
	if ledger.Total() <= 0 {
		t.Fatalf("hardware run should spend energy, got %g", ledger.Total())
	}
	for _, l := range sim.Layers() {
		e := l.Energy()
		if e.ArrayWrite <= 0 || e.WriteLatency <= 0 || e.ReadLatency <= 0 {
			t.Fatalf("layer %s missing write or latency totals: %s", l.Name, e)
		}
	}
}

func TestAlgorithmicRunSpendsNoEnergy(t *testing.T) {
	eng := newTestEngine(t, testOptions(false), device.DefaultPCM())
	eng.Train(10, 1)
	if got := eng.Context().TotalEnergy(); got != 0 {
		t.Fatalf("algorithmic run charged %g J", got)
	}
}

func TestIdleReadOnCrossPointCostsNothing(t *testing.T) {
	p := device.DefaultPCM()
	p.CMOSAccess = false
	opts := testOptions(true)
	eng := newTestEngine(t, opts, p)
	l := eng.Context().Hidden

	out := eng.hardwareForward(l, make([]int, opts.NumInput), true)
	if l.Array.ReadEnergy != 0 {
		t.Fatalf("array read energy %g, want 0", l.Array.ReadEnergy)
	}
	if l.Sub.ReadDynamicEnergy != 0 {
		t.Fatalf("peripheral read energy %g, want 0", l.Sub.ReadDynamicEnergy)
	}
	for j, v := range out {
		if math.IsNaN(v) || v != 0.5 {
			t.Fatalf("output %d = %f, want 0.5", j, v)
		}
	}
}

func TestEvaluateChargesNothing(t *testing.T) {
	opts := testOptions(true)
	eng := newTestEngine(t, opts, device.DefaultPCM())
	before := eng.Context().TotalEnergy()
	acc := eng.Evaluate(testSet(t, opts, 12, 3))
	if acc < 0 || acc > 1 {
		t.Fatalf("accuracy %f out of range", acc)
	}
	if after := eng.Context().TotalEnergy(); after != before {
		t.Fatalf("evaluation charged energy: %g -> %g", before, after)
	}
}

func TestTrainingImprovesAccuracy(t *testing.T) {
	opts := testOptions(false)
	opts.NumHide = 16
	sim, err := NewContext(opts, testHardware(device.DefaultPCM()))
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	set := testSet(t, opts, 60, 5)
	eng, err := NewEngine(opts, sim, set, 3)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	eng.Train(300, 3)
	if acc := eng.Evaluate(set); acc < 0.8 {
		t.Fatalf("accuracy after training = %f, want >= 0.8", acc)
	}
}

// updateOnce applies one hardware update with a fixed delta pattern to a
// fresh hidden layer and returns the layer.
func updateOnce(t *testing.T, p device.Params, s []float64) *Layer {
	t.Helper()
	opts := testOptions(true)
	eng := newTestEngine(t, opts, p)
	l := eng.Context().Hidden
	in := make([]float64, opts.NumInput)
	for k := range in {
		in[k] = 1
	}
	eng.hardwareUpdate(l, eng.Network().Weight1, eng.Network().Delta1, s, in, opts.Alpha1)
	return l
}

func deltaPattern(n int) []float64 {
	s := make([]float64, n)
	for j := range s {
		s[j] = 0.03 * float64(j%3)
	}
	return s
}

func TestHalfSelectLeakageOnlyOnCrossPoint(t *testing.T) {
	s := deltaPattern(testOptions(true).NumHide)
	energy := func(cmos bool, ratio float64) float64 {
		p := device.DefaultPCM()
		p.CMOSAccess = cmos
		p.HalfSelectRatio = ratio
		return updateOnce(t, p, s).Array.WriteEnergy
	}

	e0, e1, e2 := energy(false, 0), energy(false, 0.1), energy(false, 0.2)
	if e1 <= e0 {
		t.Fatalf("cross-point write energy %g should exceed %g once cells leak", e1, e0)
	}
	if d := (e2 - e0) - 2*(e1-e0); math.Abs(d) > 1e-9*e2 {
		t.Fatalf("half-select term is not linear in the leakage ratio: %g, %g, %g", e0, e1, e2)
	}
	if a, b := energy(true, 0), energy(true, 0.2); a != b {
		t.Fatalf("1T1R write energy depends on half-select ratio: %g vs %g", a, b)
	}
}

func TestBatchSharesSlowestLatency(t *testing.T) {
	opts := testOptions(true)
	l := updateOnce(t, device.DefaultPCM(), deltaPattern(opts.NumHide))
	arr := l.Array
	numBatch := (arr.Cols + opts.NumWriteColMuxed - 1) / opts.NumWriteColMuxed
	pw := arr.Params.WritePulseWidthLTD

	for k := 0; k < arr.Rows; k++ {
		for start := 0; start < arr.Cols; start += numBatch {
			end := start + numBatch
			if end > arr.Cols {
				end = arr.Cols
			}
			var slowest float64
			for j := start; j < end; j++ {
				if n := arr.Analog(j, k).NumPulse; n < 0 {
					slowest = math.Max(slowest, float64(-n)*pw)
				}
			}
			for j := start; j < end; j++ {
				c := arr.Analog(j, k)
				if c.WriteLatencyLTD != slowest || c.WriteLatencyLTP != 0 {
					t.Fatalf("cell (%d,%d) latency LTP=%g LTD=%g, want LTD=%g", j, k, c.WriteLatencyLTP, c.WriteLatencyLTD, slowest)
				}
			}
		}
	}
	if c := arr.Analog(0, 0); c.NumPulse != 0 || c.WriteLatencyLTD == 0 {
		t.Fatalf("unwritten cell in a written batch should take the batch latency: pulses=%d latency=%g", c.NumPulse, c.WriteLatencyLTD)
	}
}

func TestPulseStatsAverageWrittenCells(t *testing.T) {
	eng := newTestEngine(t, testOptions(true), device.DefaultPCM())
	l := eng.Context().Hidden
	arr := l.Array
	only := make([][]bool, arr.Cols)
	for j := range only {
		only[j] = make([]bool, arr.Rows)
		arr.Analog(j, 0).NumPulse = 0
	}
	only[2][0], only[5][0] = true, true
	arr.Analog(2, 0).NumPulse = 6
	arr.Analog(5, 0).NumPulse = -4
	arr.Analog(7, 0).NumPulse = 40

	var r rowWrite
	r.pulseStats(l, 0, false, only)
	if r.numWritePulse != 5 {
		t.Fatalf("average pulses %d, want 5", r.numWritePulse)
	}
}
