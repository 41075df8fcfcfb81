package trainer

import (
	"github.com/pkg/errors"

	"synapse-forge/internal/crossbar"
	"synapse-forge/internal/device"
	"synapse-forge/internal/metrics"
	"synapse-forge/internal/periphery"
)

// Layer is one weight layer as hardware: the crossbar holding its
// synapses, the peripheral state shared by its columns and the readout
// circuits. Array columns are the layer's output neurons and rows its
// inputs.
type Layer struct {
	Name   string
	Array  *crossbar.Array
	Sub    *periphery.SubArray
	Neuron periphery.Neuron
	Tech   device.Technology
}

// Energy returns the running totals of the layer.
func (l *Layer) Energy() metrics.Energy {
	return metrics.Energy{
		ArrayRead:      l.Array.ReadEnergy,
		ArrayWrite:     l.Array.WriteEnergy,
		PeripheryRead:  l.Sub.ReadDynamicEnergy,
		PeripheryWrite: l.Sub.WriteDynamicEnergy,
		ReadLatency:    l.Sub.ReadLatency,
		WriteLatency:   l.Sub.WriteLatency,
	}
}

// SimulationContext owns every piece of hardware state of a run. The
// engine is its only writer.
type SimulationContext struct {
	Hidden *Layer
	Output *Layer
	Oracle periphery.Oracle
}

// Layers returns both layers in forward order.
func (s *SimulationContext) Layers() []*Layer {
	return []*Layer{s.Hidden, s.Output}
}

// TotalEnergy sums the energy of both layers.
func (s *SimulationContext) TotalEnergy() float64 {
	return s.Hidden.Energy().Total() + s.Output.Energy().Total()
}

// Hardware bundles what NewContext needs besides the engine options.
type Hardware struct {
	Device          device.Params
	Wires           crossbar.Wires
	Tech            device.Technology
	CellsPerSynapse int
	NeuronHidden    periphery.Neuron
	NeuronOutput    periphery.Neuron
	Oracle          periphery.Oracle
}

// NewContext builds the two arrays sized by opts. When any phase runs on
// hardware the device parameters are validated here, before training.
func NewContext(opts Options, hw Hardware) (*SimulationContext, error) {
	if hw.Oracle == nil {
		return nil, errors.New("trainer: peripheral oracle is nil")
	}
	if opts.UsesHardware() {
		if err := hw.Device.Validate(); err != nil {
			return nil, errors.Wrap(err, "trainer: hardware path requested")
		}
		if hw.Tech.Vdd <= 0 {
			return nil, errors.Wrap(device.ErrMissingDeviceParam, "trainer: technology vdd must be > 0")
		}
	}

	hidden, err := newLayer("hidden", opts.NumHide, opts.NumInput, opts, hw, hw.NeuronHidden)
	if err != nil {
		return nil, err
	}
	output, err := newLayer("output", opts.NumOutput, opts.NumHide, opts, hw, hw.NeuronOutput)
	if err != nil {
		return nil, err
	}
	return &SimulationContext{Hidden: hidden, Output: output, Oracle: hw.Oracle}, nil
}

func newLayer(name string, cols, rows int, opts Options, hw Hardware, n periphery.Neuron) (*Layer, error) {
	arr, err := crossbar.New(cols, rows, hw.CellsPerSynapse, hw.Device, hw.Wires)
	if err != nil {
		return nil, errors.Wrapf(err, "trainer: %s layer", name)
	}
	return &Layer{
		Name:  name,
		Array: arr,
		Sub: &periphery.SubArray{
			Rows:             rows,
			Cols:             cols,
			NumColMuxed:      opts.NumColMuxed,
			NumWriteColMuxed: opts.NumWriteColMuxed,
			WriteVoltage:     hw.Device.WriteVoltageLTP,
		},
		Neuron: n,
		Tech:   hw.Tech,
	}, nil
}
