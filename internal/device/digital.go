package device

// DigitalNVM is one binary cell of a multi-cell digital synapse.
type DigitalNVM struct {
	p *Params

	Bit, BitPrev int
	WriteEnergy  float64
}

// NewDigitalNVM returns a cell in the high-resistance state.
func NewDigitalNVM(p *Params) *DigitalNVM {
	return &DigitalNVM{p: p}
}

// Conductance returns the on or off conductance for the stored bit.
func (c *DigitalNVM) Conductance() float64 {
	if c.Bit != 0 {
		return c.p.MaxConductance
	}
	return c.p.MinConductance
}

// HalfSelectConductance is the conductance at half the write voltage.
func (c *DigitalNVM) HalfSelectConductance() float64 {
	return c.Conductance() * c.p.HalfSelectRatio
}

// ReadEnergy is the per-cell read energy.
func (c *DigitalNVM) ReadEnergy() float64 {
	return c.p.ReadEnergy
}

// Write stores bit. A SET (0->1) costs one LTP pulse, a RESET one LTD
// pulse, an unchanged bit nothing.
func (c *DigitalNVM) Write(bit int) {
	c.BitPrev = c.Bit
	c.Bit = bit
	c.WriteEnergy = 0
	if c.Bit == c.BitPrev {
		return
	}
	if c.Bit != 0 {
		v := c.p.WriteVoltageLTP
		c.WriteEnergy = v * v * c.p.MaxConductance * c.p.WritePulseWidthLTP
	} else {
		v := c.p.WriteVoltageLTD
		c.WriteEnergy = v * v * c.p.MaxConductance * c.p.WritePulseWidthLTD
	}
}

// SRAM is one 6T bit cell with constant read and write energy.
type SRAM struct {
	p *Params

	Bit, BitPrev int
	WriteEnergy  float64
}

// NewSRAM returns a cleared SRAM cell.
func NewSRAM(p *Params) *SRAM {
	return &SRAM{p: p}
}

// ReadEnergy is the per-cell read energy.
func (c *SRAM) ReadEnergy() float64 {
	return c.p.ReadEnergy
}

// Write stores bit; energy is only spent when the bit flips.
func (c *SRAM) Write(bit int) {
	c.BitPrev = c.Bit
	c.Bit = bit
	c.WriteEnergy = 0
	if c.Bit != c.BitPrev {
		c.WriteEnergy = c.p.WriteEnergy
	}
}
