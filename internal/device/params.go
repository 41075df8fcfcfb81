package device

import (
	"strings"

	"github.com/pkg/errors"
)

// Kind identifies the storage technology shared by every cell of an array.
type Kind int

const (
	KindSRAM Kind = iota
	KindDigitalNVM
	KindAnalogNVM
)

// ErrMissingDeviceParam is returned when a device lacks a parameter the
// hardware-emulated path depends on.
var ErrMissingDeviceParam = errors.New("device: missing required parameter")

func (k Kind) String() string {
	switch k {
	case KindSRAM:
		return "sram"
	case KindDigitalNVM:
		return "digital_nvm"
	case KindAnalogNVM:
		return "analog_nvm"
	default:
		return "unknown"
	}
}

// UnmarshalText lets a Kind be written by name in YAML configs.
func (k *Kind) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "sram":
		*k = KindSRAM
	case "digital_nvm", "digital":
		*k = KindDigitalNVM
	case "analog_nvm", "analog", "pcm":
		*k = KindAnalogNVM
	default:
		return errors.Errorf("device: unknown kind %q", string(text))
	}
	return nil
}

// MarshalText is the inverse of UnmarshalText.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Technology holds process-level constants for the peripheral supply.
type Technology struct {
	Vdd float64 `yaml:"vdd"` // V
}

// Params describes one synaptic device. All cells of an array share a
// single Params value.
type Params struct {
	Kind       Kind `yaml:"kind"`
	CMOSAccess bool `yaml:"cmos_access"` // true for 1T1R, false for cross-point

	ReadVoltage        float64 `yaml:"read_voltage"`          // V
	ReadPulseWidth     float64 `yaml:"read_pulse_width"`      // s
	WriteVoltageLTP    float64 `yaml:"write_voltage_ltp"`     // V
	WriteVoltageLTD    float64 `yaml:"write_voltage_ltd"`     // V
	WritePulseWidthLTP float64 `yaml:"write_pulse_width_ltp"` // s
	WritePulseWidthLTD float64 `yaml:"write_pulse_width_ltd"` // s

	MaxConductance float64 `yaml:"max_conductance"` // S
	MinConductance float64 `yaml:"min_conductance"` // S

	// HalfSelectRatio scales a cell's conductance to its conductance at half
	// the write voltage (non-linear I-V of cross-point selectors).
	HalfSelectRatio float64 `yaml:"half_select_ratio"`

	MaxNumLevelLTP    int     `yaml:"max_num_level_ltp"`
	MaxNumLevelLTD    int     `yaml:"max_num_level_ltd"`
	NonIdenticalPulse bool    `yaml:"non_identical_pulse"`
	VinitLTP          float64 `yaml:"vinit_ltp"`
	VstepLTP          float64 `yaml:"vstep_ltp"`
	VinitLTD          float64 `yaml:"vinit_ltd"`
	VstepLTD          float64 `yaml:"vstep_ltd"`

	PCM             bool    `yaml:"pcm"`
	ThrConductance  float64 `yaml:"thr_conductance"`   // S
	ResetVoltage    float64 `yaml:"reset_voltage"`     // V
	ResetPulseWidth float64 `yaml:"reset_pulse_width"` // s

	// ReadEnergy and WriteEnergy are per-cell constants used by SRAM, and
	// ReadEnergy also by digital NVM.
	ReadEnergy  float64 `yaml:"read_energy"`  // J
	WriteEnergy float64 `yaml:"write_energy"` // J
}

// DefaultPCM returns a 1T1R phase-change memory device with a
// non-identical SET pulse staircase.
func DefaultPCM() Params {
	return Params{
		Kind:               KindAnalogNVM,
		CMOSAccess:         true,
		ReadVoltage:        0.5,
		ReadPulseWidth:     5e-9,
		WriteVoltageLTP:    3.2,
		WriteVoltageLTD:    3.2,
		WritePulseWidthLTP: 100e-9,
		WritePulseWidthLTD: 100e-9,
		MaxConductance:     1.0 / 25e3,
		MinConductance:     1.0 / 250e3,
		HalfSelectRatio:    0.1,
		MaxNumLevelLTP:     97,
		MaxNumLevelLTD:     97,
		NonIdenticalPulse:  true,
		VinitLTP:           2.85,
		VstepLTP:           0.005,
		VinitLTD:           2.85,
		VstepLTD:           0.005,
		PCM:                true,
		ThrConductance:     0.9 / 25e3,
		ResetVoltage:       4.0,
		ResetPulseWidth:    50e-9,
	}
}

// Validate reports parameters that make the hardware-emulated path
// meaningless for this device kind.
func (p Params) Validate() error {
	switch p.Kind {
	case KindSRAM:
		if p.ReadEnergy < 0 || p.WriteEnergy < 0 {
			return errors.Wrap(ErrMissingDeviceParam, "sram energies must be >= 0")
		}
		return nil
	case KindDigitalNVM:
		if p.MaxConductance <= p.MinConductance {
			return errors.Wrapf(ErrMissingDeviceParam, "max_conductance (%g) must exceed min_conductance (%g)", p.MaxConductance, p.MinConductance)
		}
		return nil
	case KindAnalogNVM:
	default:
		return errors.Errorf("device: unknown kind %d", int(p.Kind))
	}

	if p.MaxConductance <= p.MinConductance {
		return errors.Wrapf(ErrMissingDeviceParam, "max_conductance (%g) must exceed min_conductance (%g)", p.MaxConductance, p.MinConductance)
	}
	if p.MinConductance < 0 {
		return errors.Wrap(ErrMissingDeviceParam, "min_conductance must be >= 0")
	}
	if p.MaxNumLevelLTP <= 0 || p.MaxNumLevelLTD <= 0 {
		return errors.Wrap(ErrMissingDeviceParam, "analog device needs max_num_level_ltp and max_num_level_ltd")
	}
	if p.ReadVoltage <= 0 || p.ReadPulseWidth <= 0 {
		return errors.Wrap(ErrMissingDeviceParam, "analog device needs read_voltage and read_pulse_width")
	}
	if p.NonIdenticalPulse && (p.VinitLTP <= 0 || p.VinitLTD <= 0) {
		return errors.Wrap(ErrMissingDeviceParam, "non-identical pulse scheme needs vinit_ltp and vinit_ltd")
	}
	if p.PCM {
		if p.ThrConductance <= p.MinConductance || p.ThrConductance > p.MaxConductance {
			return errors.Wrapf(ErrMissingDeviceParam, "thr_conductance (%g) must lie in (min, max] conductance", p.ThrConductance)
		}
		if p.ResetVoltage <= 0 || p.ResetPulseWidth <= 0 {
			return errors.Wrap(ErrMissingDeviceParam, "pcm device needs reset_voltage and reset_pulse_width")
		}
	}
	return nil
}

// AverageVoltageLTP is the mean of the LTP staircase, used wherever a single
// representative voltage is needed for a non-identical pulse scheme.
func (p Params) AverageVoltageLTP() float64 {
	return p.VinitLTP + 0.5*p.VstepLTP*float64(p.MaxNumLevelLTP)
}

// AverageVoltageLTD is the LTD counterpart of AverageVoltageLTP.
func (p Params) AverageVoltageLTD() float64 {
	return p.VinitLTD + 0.5*p.VstepLTD*float64(p.MaxNumLevelLTD)
}
