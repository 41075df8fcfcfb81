package device

import (
	"math"
	"testing"

	"github.com/pkg/errors"
)

func TestAnalogZeroWriteKeepsWeight(t *testing.T) {
	p := DefaultPCM()
	c := NewAnalogNVM(&p)
	c.SetNormalized(0.73)
	before := c.Normalized()
	c.Write(0, true)
	if c.Normalized() != before {
		t.Fatalf("zero write changed weight: %f -> %f", before, c.Normalized())
	}
	if c.NumPulse != 0 || c.WriteLatencyLTP != 0 || c.WriteLatencyLTD != 0 {
		t.Fatalf("zero write reported pulses=%d ltp=%g ltd=%g", c.NumPulse, c.WriteLatencyLTP, c.WriteLatencyLTD)
	}
}

func TestAnalogLTPAndLTD(t *testing.T) {
	p := DefaultPCM()
	c := NewAnalogNVM(&p)
	c.Write(0.1, true)
	if c.NumPulse <= 0 {
		t.Fatalf("expected LTP pulses, got %d", c.NumPulse)
	}
	if c.WriteLatencyLTP != float64(c.NumPulse)*p.WritePulseWidthLTP {
		t.Fatalf("unexpected LTP latency %g", c.WriteLatencyLTP)
	}
	if math.Abs(c.Normalized()-0.6) > 1.0/float64(p.MaxNumLevelLTP) {
		t.Fatalf("expected ~0.6 after LTP, got %f", c.Normalized())
	}
	gp := c.Gp
	c.Write(-0.2, true)
	if c.NumPulse >= 0 {
		t.Fatalf("expected LTD pulses, got %d", c.NumPulse)
	}
	if c.Gp != gp {
		t.Fatalf("LTD must not touch Gp")
	}
	if c.Gn <= p.MinConductance {
		t.Fatalf("LTD must raise Gn")
	}
}

func TestAnalogClampsAtBounds(t *testing.T) {
	p := DefaultPCM()
	c := NewAnalogNVM(&p)
	c.Write(5, true)
	if c.Gp != p.MaxConductance {
		t.Fatalf("Gp not clamped: %g", c.Gp)
	}
	if c.Normalized() != 1 {
		t.Fatalf("expected saturated weight 1, got %f", c.Normalized())
	}
	c.Write(1, true)
	if c.NumPulse != 0 {
		t.Fatalf("write into saturated component must be a no-op, got %d pulses", c.NumPulse)
	}
	if !c.AboveThreshold() {
		t.Fatalf("saturated cell should cross the threshold")
	}
}

func TestAnalogEraseReturnsToMidpoint(t *testing.T) {
	p := DefaultPCM()
	c := NewAnalogNVM(&p)
	c.SetNormalized(0.9)
	c.Write(-0.1, false)
	c.Erase()
	if c.Normalized() != 0.5 {
		t.Fatalf("erased cell should hold mid weight, got %f", c.Normalized())
	}
	if c.WriteLatencyLTP != p.ResetPulseWidth {
		t.Fatalf("erase latency %g want %g", c.WriteLatencyLTP, p.ResetPulseWidth)
	}
	c.EraseEnergyCalculation(1e-15)
	if c.WriteEnergy <= 0 {
		t.Fatalf("erase energy must be positive")
	}
	c.Write(0.4, false)
	if math.Abs(c.Normalized()-0.9) > 1e-9 {
		t.Fatalf("proportional write should restore 0.9, got %f", c.Normalized())
	}
}

func TestAnalogNonIdenticalVoltageBookkeeping(t *testing.T) {
	p := DefaultPCM()
	c := NewAnalogNVM(&p)
	c.Write(3.0/float64(2*p.MaxNumLevelLTP), true)
	if c.NumPulse != 3 {
		t.Fatalf("expected 3 pulses, got %d", c.NumPulse)
	}
	want := 0.0
	for i := 0; i < 3; i++ {
		v := p.VinitLTP + p.VstepLTP*float64(i)
		want += v * v
	}
	if math.Abs(c.WriteVoltageSquareSum-want) > 1e-12 {
		t.Fatalf("square sum %g want %g", c.WriteVoltageSquareSum, want)
	}
}

func TestDigitalWriteEnergyOnlyOnFlip(t *testing.T) {
	p := Params{Kind: KindDigitalNVM, MaxConductance: 1e-5, MinConductance: 1e-7, WriteVoltageLTP: 2, WriteVoltageLTD: 2, WritePulseWidthLTP: 1e-8, WritePulseWidthLTD: 1e-8}
	c := NewDigitalNVM(&p)
	c.Write(1)
	if c.WriteEnergy <= 0 {
		t.Fatalf("SET must cost energy")
	}
	c.Write(1)
	if c.WriteEnergy != 0 {
		t.Fatalf("unchanged bit must cost nothing, got %g", c.WriteEnergy)
	}
	if c.Conductance() != p.MaxConductance {
		t.Fatalf("on cell conductance %g", c.Conductance())
	}
}

func TestValidateRejectsIncompleteAnalog(t *testing.T) {
	p := DefaultPCM()
	p.MaxNumLevelLTD = 0
	if err := p.Validate(); !errors.Is(err, ErrMissingDeviceParam) {
		t.Fatalf("expected ErrMissingDeviceParam, got %v", err)
	}
	if err := DefaultPCM().Validate(); err != nil {
		t.Fatalf("default PCM should validate: %v", err)
	}
}

func TestKindUnmarshalText(t *testing.T) {
	var k Kind
	if err := k.UnmarshalText([]byte("PCM")); err != nil || k != KindAnalogNVM {
		t.Fatalf("got %v, %v", k, err)
	}
	if err := k.UnmarshalText([]byte("flash")); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}
