package device

import "math"

const pulseEpsilon = 1e-9

// AnalogNVM is a differential synapse: Gp is potentiated on LTP and Gn on
// LTD, so the signed weight is carried by Gp-Gn. Both components only grow
// between erases, which is why PCM arrays need periodic maintenance.
type AnalogNVM struct {
	p *Params

	Gp, Gn         float64
	GpPrev, GnPrev float64

	// NumPulse is positive for LTP, negative for LTD, zero when untouched.
	NumPulse              int
	WriteVoltageSquareSum float64
	WriteLatencyLTP       float64
	WriteLatencyLTD       float64
	WriteEnergy           float64

	// Effective write voltages used by WriteEnergyCalculation. The training
	// engine rewrites them to RMS values under the non-identical scheme.
	WriteVoltageLTP float64
	WriteVoltageLTD float64

	Saturated bool
}

// NewAnalogNVM returns a cell with both components at minimum conductance,
// which encodes the mid-range weight.
func NewAnalogNVM(p *Params) *AnalogNVM {
	return &AnalogNVM{
		p:               p,
		Gp:              p.MinConductance,
		Gn:              p.MinConductance,
		GpPrev:          p.MinConductance,
		GnPrev:          p.MinConductance,
		WriteVoltageLTP: p.WriteVoltageLTP,
		WriteVoltageLTD: p.WriteVoltageLTD,
	}
}

func (c *AnalogNVM) span() float64 {
	return c.p.MaxConductance - c.p.MinConductance
}

// Normalized returns the stored weight mapped onto [0, 1].
func (c *AnalogNVM) Normalized() float64 {
	v := ((c.Gp-c.Gn)/c.span() + 1) / 2
	return math.Max(0, math.Min(1, v))
}

// Conductance is the single-ended conductance seen by a read.
func (c *AnalogNVM) Conductance() float64 {
	return c.p.MinConductance + c.Normalized()*c.span()
}

// HalfSelectConductance is the conductance at half the write voltage.
func (c *AnalogNVM) HalfSelectConductance() float64 {
	return c.Conductance() * c.p.HalfSelectRatio
}

// ReadCurrent returns the cell current at the read voltage.
func (c *AnalogNVM) ReadCurrent() float64 {
	return c.p.ReadVoltage * c.Conductance()
}

// MaxReadCurrent returns the current of a fully potentiated cell.
func (c *AnalogNVM) MaxReadCurrent() float64 {
	return c.p.ReadVoltage * c.p.MaxConductance
}

// SetNormalized programs the cell directly, without pulses or energy.
func (c *AnalogNVM) SetNormalized(w float64) {
	w = math.Max(0, math.Min(1, w))
	diff := (2*w - 1) * c.span()
	c.Gp, c.Gn = c.p.MinConductance, c.p.MinConductance
	if diff >= 0 {
		c.Gp += diff
	} else {
		c.Gn -= diff
	}
	c.GpPrev, c.GnPrev = c.Gp, c.Gn
}

// Write moves the weight by deltaNorm, a fraction of the full weight range.
// A regular write is quantized to whole pulses; otherwise the conductance
// moves by exactly the requested amount and the pulse count is only used
// for latency and energy. Both are clamped at the conductance bounds.
func (c *AnalogNVM) Write(deltaNorm float64, regular bool) {
	c.GpPrev, c.GnPrev = c.Gp, c.Gn
	c.NumPulse = 0
	c.WriteVoltageSquareSum = 0
	c.WriteLatencyLTP = 0
	c.WriteLatencyLTD = 0
	c.WriteEnergy = 0

	if deltaNorm == 0 {
		return
	}

	dG := 2 * math.Abs(deltaNorm) * c.span()
	ltp := deltaNorm > 0
	g := &c.Gn
	levels := c.p.MaxNumLevelLTD
	vinit, vstep := c.p.VinitLTD, c.p.VstepLTD
	if ltp {
		g = &c.Gp
		levels = c.p.MaxNumLevelLTP
		vinit, vstep = c.p.VinitLTP, c.p.VstepLTP
	}
	step := c.span() / float64(levels)
	headroom := c.p.MaxConductance - *g
	if headroom <= 0 {
		return
	}

	var n int
	if regular {
		n = int(math.Round(dG / step))
		if maxN := int(math.Ceil(headroom/step - pulseEpsilon)); n > maxN {
			n = maxN
		}
		if n == 0 {
			return
		}
		dG = float64(n) * step
	} else {
		dG = math.Min(dG, headroom)
		n = int(math.Ceil(dG/step - pulseEpsilon))
		if n == 0 {
			n = 1
		}
	}

	level := int(math.Round((*g - c.p.MinConductance) / step))
	if dG >= headroom-pulseEpsilon*step {
		*g = c.p.MaxConductance
	} else {
		*g += dG
	}

	if c.p.NonIdenticalPulse {
		for i := 0; i < n; i++ {
			v := vinit + vstep*float64(level+i)
			c.WriteVoltageSquareSum += v * v
		}
	} else {
		v := c.p.WriteVoltageLTD
		if ltp {
			v = c.p.WriteVoltageLTP
		}
		c.WriteVoltageSquareSum = v * v * float64(n)
	}

	if ltp {
		c.NumPulse = n
		c.WriteLatencyLTP = float64(n) * c.p.WritePulseWidthLTP
	} else {
		c.NumPulse = -n
		c.WriteLatencyLTD = float64(n) * c.p.WritePulseWidthLTD
	}
}

// WriteEnergyCalculation sets WriteEnergy for the last Write. For 1T1R the
// selected column line is charged once per pulse.
func (c *AnalogNVM) WriteEnergyCalculation(wireCapCol float64) {
	c.WriteEnergy = 0
	switch {
	case c.NumPulse > 0:
		g := (c.Gp + c.GpPrev) / 2
		v := c.WriteVoltageLTP
		c.WriteEnergy = v * v * g * c.p.WritePulseWidthLTP * float64(c.NumPulse)
		if c.p.CMOSAccess {
			c.WriteEnergy += wireCapCol * v * v * float64(c.NumPulse)
		}
	case c.NumPulse < 0:
		g := (c.Gn + c.GnPrev) / 2
		v := c.WriteVoltageLTD
		n := float64(-c.NumPulse)
		c.WriteEnergy = v * v * g * c.p.WritePulseWidthLTD * n
		if c.p.CMOSAccess {
			c.WriteEnergy += wireCapCol * v * v * n
		}
	}
}

// Erase RESETs both components to minimum conductance. The RESET pulse
// width is reported as the LTP latency so batch timing stays uniform.
func (c *AnalogNVM) Erase() {
	c.GpPrev, c.GnPrev = c.Gp, c.Gn
	c.Gp, c.Gn = c.p.MinConductance, c.p.MinConductance
	c.NumPulse = 0
	c.WriteVoltageSquareSum = 0
	c.WriteLatencyLTP = c.p.ResetPulseWidth
	c.WriteLatencyLTD = 0
	c.WriteEnergy = 0
}

// EraseEnergyCalculation sets WriteEnergy for the last Erase.
func (c *AnalogNVM) EraseEnergyCalculation(wireCapCol float64) {
	v := c.p.ResetVoltage
	c.WriteEnergy = v * v * (c.GpPrev + c.GnPrev) * c.p.ResetPulseWidth
	if c.p.CMOSAccess {
		c.WriteEnergy += wireCapCol * v * v
	}
}

// AboveThreshold reports whether either component crossed the PCM
// saturation threshold.
func (c *AnalogNVM) AboveThreshold() bool {
	return c.Gp > c.p.ThrConductance || c.Gn > c.p.ThrConductance
}
