package periphery

import (
	"math"

	"github.com/pkg/errors"
)

// Model is a first-order Oracle: every cost is linear in the number of
// active rows, mux steps, bits or pulses. It is meant for design-space
// sweeps where relative trends matter more than absolute numbers.
type Model struct {
	WordlineEnergy   float64 `yaml:"wordline_energy"`    // J per driven row
	SenseEnergy      float64 `yaml:"sense_energy"`       // J per sensed column
	ReadCycle        float64 `yaml:"read_cycle"`         // s per mux step
	AdderEnergyBit   float64 `yaml:"adder_energy_bit"`   // J per adder bit
	MuxEnergy        float64 `yaml:"mux_energy"`         // J per mux input switched
	DecoderEnergyBit float64 `yaml:"decoder_energy_bit"` // J per address bit
	DFFEnergyBit     float64 `yaml:"dff_energy_bit"`     // J per register bit
	AdderLatencyBit  float64 `yaml:"adder_latency_bit"`  // s per adder bit (ripple)
	DFFLatency       float64 `yaml:"dff_latency"`        // s per register stage
	DriverCap        float64 `yaml:"driver_cap"`         // F switched per write pulse
	WriteCellEnergy  float64 `yaml:"write_cell_energy"`  // J per written digital cell
	WriteCycle       float64 `yaml:"write_cycle"`        // s per write operation
}

// DefaultModel returns coefficients in the range of a 65 nm process.
func DefaultModel() Model {
	return Model{
		WordlineEnergy:   2e-15,
		SenseEnergy:      40e-15,
		ReadCycle:        5e-9,
		AdderEnergyBit:   3e-15,
		MuxEnergy:        0.5e-15,
		DecoderEnergyBit: 1e-15,
		DFFEnergyBit:     1.5e-15,
		AdderLatencyBit:  50e-12,
		DFFLatency:       100e-12,
		DriverCap:        20e-15,
		WriteCellEnergy:  5e-15,
		WriteCycle:       10e-9,
	}
}

// Validate rejects negative coefficients.
func (m Model) Validate() error {
	for name, v := range map[string]float64{
		"wordline_energy":    m.WordlineEnergy,
		"sense_energy":       m.SenseEnergy,
		"read_cycle":         m.ReadCycle,
		"adder_energy_bit":   m.AdderEnergyBit,
		"mux_energy":         m.MuxEnergy,
		"decoder_energy_bit": m.DecoderEnergyBit,
		"dff_energy_bit":     m.DFFEnergyBit,
		"adder_latency_bit":  m.AdderLatencyBit,
		"dff_latency":        m.DFFLatency,
		"driver_cap":         m.DriverCap,
		"write_cell_energy":  m.WriteCellEnergy,
		"write_cycle":        m.WriteCycle,
	} {
		if v < 0 || math.IsNaN(v) {
			return errors.Errorf("periphery: %s must be >= 0 (got %g)", name, v)
		}
	}
	return nil
}

func muxSteps(n int) float64 {
	if n <= 0 {
		return 1
	}
	return float64(n)
}

// SubArrayReadEnergy charges the driven rows and the sensed columns. Both
// scale with activity: an idle batch senses nothing.
func (m Model) SubArrayReadEnergy(sa *SubArray) float64 {
	rows := sa.ActivityRowRead * float64(sa.Rows)
	return rows*m.WordlineEnergy + sa.ActivityRowRead*float64(sa.Cols)*m.SenseEnergy
}

// SubArrayReadLatency is one read cycle per mux step.
func (m Model) SubArrayReadLatency(sa *SubArray) float64 {
	return muxSteps(sa.NumColMuxed) * m.ReadCycle
}

// NeuronReadEnergy charges the adder, mux, decoder and register bits once
// per mux step, scaled by activity.
func (m Model) NeuronReadEnergy(sa *SubArray, n Neuron) float64 {
	perStep := float64(n.Adder.NumBit*n.Adder.NumAdder)*m.AdderEnergyBit +
		float64(n.Mux.NumInput)*m.MuxEnergy +
		float64(n.MuxDecoder.NumAddrBit)*m.DecoderEnergyBit +
		float64(n.DFF.NumBit)*m.DFFEnergyBit
	return sa.ActivityRowRead * muxSteps(sa.NumColMuxed) * perStep
}

// NeuronReadLatency is the ripple-adder and register delay per mux step.
func (m Model) NeuronReadLatency(sa *SubArray, n Neuron) float64 {
	return muxSteps(sa.NumColMuxed) * (float64(n.Adder.NumBit)*m.AdderLatencyBit + m.DFFLatency)
}

// SubArrayWriteEnergy prices the drivers of one row: every write operation
// switches the driver once per pulse at the row's write voltage, and every
// written digital cell adds a fixed cost.
func (m Model) SubArrayWriteEnergy(sa *SubArray, numWriteOperationPerRow int, numWriteCellPerOperation float64) float64 {
	if numWriteOperationPerRow <= 0 {
		return 0
	}
	ops := float64(numWriteOperationPerRow)
	v := sa.WriteVoltage
	return ops*float64(sa.NumWritePulse)*m.DriverCap*v*v + ops*numWriteCellPerOperation*m.WriteCellEnergy
}

// SubArrayWriteLatency adds the per-operation control overhead for every row
// to the device programming time accumulated by the caller.
func (m Model) SubArrayWriteLatency(sa *SubArray, numWriteOperation float64, analogWriteLatency float64) float64 {
	return analogWriteLatency + numWriteOperation*float64(sa.Rows)*m.WriteCycle
}
