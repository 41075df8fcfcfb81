// Package periphery holds the peripheral-circuit state of a sub-array and
// the cost oracle that turns it into energy and latency.
package periphery

// SubArray is the peripheral state shared by all columns of one array. The
// training engine mutates it once per batched operation and then asks the
// oracle for the cost; costs are non-linear in activity, so they are never
// computed per cell.
type SubArray struct {
	Rows             int
	Cols             int
	NumColMuxed      int
	NumWriteColMuxed int

	// Fraction of rows driven during the current read batch.
	ActivityRowRead float64
	// Average |pulse count| per cell of the row being written.
	NumWritePulse int
	// RMS write voltage of the row being written (non-identical pulses).
	WriteVoltage float64

	ReadDynamicEnergy  float64
	ReadLatency        float64
	WriteDynamicEnergy float64
	WriteLatency       float64
}

// Adder is the shift-add accumulator behind each column mux.
type Adder struct {
	NumBit   int `yaml:"num_bit"`
	NumAdder int `yaml:"num_adder"`
}

// Mux selects one of NumInput columns into the readout.
type Mux struct {
	NumInput int `yaml:"num_input"`
}

// RowDecoder drives the mux select lines.
type RowDecoder struct {
	NumAddrBit int `yaml:"num_addr_bit"`
}

// DFF is the output register bank.
type DFF struct {
	NumBit int `yaml:"num_bit"`
}

// Neuron groups the readout circuits of one layer.
type Neuron struct {
	Adder      Adder      `yaml:"adder"`
	Mux        Mux        `yaml:"mux"`
	MuxDecoder RowDecoder `yaml:"mux_decoder"`
	DFF        DFF        `yaml:"dff"`
}

// Oracle prices peripheral activity. Implementations must be pure: they
// read the SubArray and return a scalar, and the caller decides where to
// accumulate it.
type Oracle interface {
	SubArrayReadEnergy(sa *SubArray) float64
	SubArrayReadLatency(sa *SubArray) float64
	NeuronReadEnergy(sa *SubArray, n Neuron) float64
	NeuronReadLatency(sa *SubArray, n Neuron) float64
	SubArrayWriteEnergy(sa *SubArray, numWriteOperationPerRow int, numWriteCellPerOperation float64) float64
	SubArrayWriteLatency(sa *SubArray, numWriteOperation float64, analogWriteLatency float64) float64
}

// ReadBatch prices one batched read and adds the result to sa.
func ReadBatch(o Oracle, sa *SubArray, n Neuron) {
	sa.ReadDynamicEnergy += o.SubArrayReadEnergy(sa)
	sa.ReadDynamicEnergy += o.NeuronReadEnergy(sa, n)
	sa.ReadLatency += o.SubArrayReadLatency(sa)
	sa.ReadLatency += o.NeuronReadLatency(sa, n)
}
