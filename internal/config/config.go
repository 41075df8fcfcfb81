package config

import (
	"bytes"
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"synapse-forge/internal/crossbar"
	"synapse-forge/internal/device"
	"synapse-forge/internal/periphery"
	"synapse-forge/internal/trainer"
)

// ErrUnsupportedMode is returned for flag combinations the simulator
// cannot run.
var ErrUnsupportedMode = errors.New("config: unsupported mode")

// Network fixes the layer sizes and the weight range.
type Network struct {
	NumInput  int     `yaml:"num_input"`
	NumHide   int     `yaml:"num_hide"`
	NumOutput int     `yaml:"num_output"`
	MaxWeight float64 `yaml:"max_weight"`
	MinWeight float64 `yaml:"min_weight"`
}

// Training holds the sample loop knobs.
type Training struct {
	NumSamples int     `yaml:"num_samples"` // draws per epoch
	NumEpochs  int     `yaml:"num_epochs"`
	Alpha1     float64 `yaml:"alpha1"`
	Alpha2     float64 `yaml:"alpha2"`
}

// Hardware selects the execution path of each phase and sizes the
// peripheral batching.
type Hardware struct {
	UseHardwareInTrainingFF bool    `yaml:"use_hardware_in_training_ff"`
	UseHardwareInTrainingWU bool    `yaml:"use_hardware_in_training_wu"`
	UseHardwareInTestingFF  bool    `yaml:"use_hardware_in_testing_ff"`
	WriteEnergyReport       bool    `yaml:"write_energy_report"`
	NumBitInput             int     `yaml:"num_bit_input"`
	NumBitPartialSum        int     `yaml:"num_bit_partial_sum"`
	NumCellPerSynapse       int     `yaml:"num_cell_per_synapse"`
	NumColMuxed             int     `yaml:"num_col_muxed"`
	NumWriteColMuxed        int     `yaml:"num_write_col_muxed"`
	HThreshold              float64 `yaml:"h_threshold"`
	Workers                 int     `yaml:"workers"`
}

// Synthetic sizes the generated data used when no training root is set.
type Synthetic struct {
	Train int     `yaml:"train"`
	Test  int     `yaml:"test"`
	Noise float64 `yaml:"noise"`
}

// Config captures the runtime knobs for a simulation run.
type Config struct {
	TrainRoot  string `yaml:"train_root"`
	TestRoot   string `yaml:"test_root"`
	Seed       int64  `yaml:"seed"`
	LogEvery   int    `yaml:"log_every"`
	PendingCap int    `yaml:"pending_cap"`

	Network      Network             `yaml:"network"`
	Training     Training            `yaml:"training"`
	Hardware     Hardware            `yaml:"hardware"`
	Device       device.Params       `yaml:"device"`
	Technology   device.Technology   `yaml:"technology"`
	Wires        crossbar.Wires      `yaml:"wires"`
	PCM          trainer.Maintenance `yaml:"pcm"`
	Periphery    periphery.Model     `yaml:"periphery"`
	NeuronHidden periphery.Neuron    `yaml:"neuron_hidden"`
	NeuronOutput periphery.Neuron    `yaml:"neuron_output"`
	Synthetic    Synthetic           `yaml:"synthetic"`
}

// Overrides captures CLI supplied values.
type Overrides struct {
	TrainRoot  string
	TestRoot   string
	NumSamples int
	NumEpochs  int
	Workers    int
	Seed       int64
	LogEvery   int
}

// Default returns a 400-100-10 network on 1T1R PCM with threshold-only
// maintenance and every hardware path enabled.
func Default() *Config {
	return &Config{
		Seed:     42,
		LogEvery: 50,
		Network: Network{
			NumInput:  400,
			NumHide:   100,
			NumOutput: 10,
			MaxWeight: 1,
			MinWeight: 0,
		},
		Training: Training{
			NumSamples: 8000,
			NumEpochs:  1,
			Alpha1:     0.4,
			Alpha2:     0.2,
		},
		Hardware: Hardware{
			UseHardwareInTrainingFF: true,
			UseHardwareInTrainingWU: true,
			UseHardwareInTestingFF:  true,
			WriteEnergyReport:       true,
			NumBitInput:             1,
			NumBitPartialSum:        8,
			NumCellPerSynapse:       5,
			NumColMuxed:             16,
			NumWriteColMuxed:        16,
			HThreshold:              0.5,
		},
		Device:     device.DefaultPCM(),
		Technology: device.Technology{Vdd: 1.1},
		Wires:      crossbar.Wires{CapRow: 40e-15, CapCol: 160e-15, GateCapRow: 60e-15},
		PCM: trainer.Maintenance{
			Policy:            trainer.PolicyThreshold,
			NumImagesPerReset: 1000,
			NumRefHidden:      3,
			NumRefOutput:      1,
			ActDeviceIH:       0.01,
			ActDeviceHO:       0.01,
		},
		Periphery:    periphery.DefaultModel(),
		NeuronHidden: defaultNeuron(),
		NeuronOutput: defaultNeuron(),
		Synthetic:    Synthetic{Train: 2000, Test: 500, Noise: 0.2},
	}
}

func defaultNeuron() periphery.Neuron {
	return periphery.Neuron{
		Adder:      periphery.Adder{NumBit: 8, NumAdder: 7},
		Mux:        periphery.Mux{NumInput: 16},
		MuxDecoder: periphery.RowDecoder{NumAddrBit: 4},
		DFF:        periphery.DFF{NumBit: 56},
	}
}

// Load reads a Config from YAML on top of Default and validates it.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open config")
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return nil, errors.Wrap(err, "parse config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse decodes YAML over Default. Unknown keys are rejected.
func Parse(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if len(bytes.TrimSpace(raw)) == 0 {
		return cfg, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyOverrides updates cfg using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.TrainRoot != "" {
		c.TrainRoot = o.TrainRoot
	}
	if o.TestRoot != "" {
		c.TestRoot = o.TestRoot
	}
	if o.NumSamples > 0 {
		c.Training.NumSamples = o.NumSamples
	}
	if o.NumEpochs > 0 {
		c.Training.NumEpochs = o.NumEpochs
	}
	if o.Workers > 0 {
		c.Hardware.Workers = o.Workers
	}
	if o.Seed != 0 {
		c.Seed = o.Seed
	}
	if o.LogEvery > 0 {
		c.LogEvery = o.LogEvery
	}
}

// UsesHardware reports whether any phase runs on the emulated arrays.
func (c *Config) UsesHardware() bool {
	h := c.Hardware
	return h.UseHardwareInTrainingFF || h.UseHardwareInTrainingWU || h.UseHardwareInTestingFF
}

// Validate verifies the config is runnable. Device parameters are only
// checked when a hardware path is enabled.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	n := c.Network
	if n.NumInput <= 0 || n.NumHide <= 0 || n.NumOutput <= 0 {
		return errors.Errorf("network sizes must be > 0 (got %d-%d-%d)", n.NumInput, n.NumHide, n.NumOutput)
	}
	if n.MaxWeight <= n.MinWeight {
		return errors.Errorf("max_weight (%g) must exceed min_weight (%g)", n.MaxWeight, n.MinWeight)
	}
	if c.Training.NumSamples <= 0 {
		return errors.Errorf("num_samples must be > 0 (got %d)", c.Training.NumSamples)
	}
	if c.Training.NumEpochs <= 0 {
		return errors.Errorf("num_epochs must be > 0 (got %d)", c.Training.NumEpochs)
	}
	if c.Training.Alpha1 <= 0 || c.Training.Alpha2 <= 0 {
		return errors.New("alpha1 and alpha2 must be > 0")
	}
	h := c.Hardware
	if h.NumBitInput <= 0 || h.NumBitInput > 16 {
		return errors.Errorf("num_bit_input must be in [1,16] (got %d)", h.NumBitInput)
	}
	if h.HThreshold <= 0 || h.HThreshold > 1 {
		return errors.Errorf("h_threshold must be in (0,1] (got %g)", h.HThreshold)
	}
	if h.Workers < 0 {
		return errors.Errorf("workers must be >= 0 (got %d)", h.Workers)
	}
	if c.TrainRoot == "" && c.Synthetic.Train <= 0 {
		return errors.New("either train_root or synthetic.train must be set")
	}
	if c.Synthetic.Test < 0 || c.Synthetic.Noise < 0 {
		return errors.New("synthetic.test and synthetic.noise must be >= 0")
	}

	if c.UsesHardware() {
		if h.NumBitPartialSum <= 0 || h.NumColMuxed <= 0 || h.NumWriteColMuxed <= 0 {
			return errors.Wrap(device.ErrMissingDeviceParam, "hardware paths need num_bit_partial_sum, num_col_muxed and num_write_col_muxed")
		}
		if c.Device.Kind != device.KindAnalogNVM && h.NumCellPerSynapse <= 0 {
			return errors.Wrap(device.ErrMissingDeviceParam, "digital synapses need num_cell_per_synapse")
		}
		if err := c.Device.Validate(); err != nil {
			return errors.Wrap(err, "device")
		}
		if c.Technology.Vdd <= 0 {
			return errors.Wrap(device.ErrMissingDeviceParam, "technology.vdd must be > 0")
		}
		if err := c.Periphery.Validate(); err != nil {
			return err
		}
	}

	if err := c.validateMaintenance(); err != nil {
		return err
	}

	if c.LogEvery <= 0 {
		c.LogEvery = 50
	}
	return nil
}

func (c *Config) validateMaintenance() error {
	m := c.PCM
	if !c.Device.PCM || c.Device.Kind != device.KindAnalogNVM {
		return nil
	}
	if m.NumImagesPerReset <= 0 {
		return errors.Wrapf(ErrUnsupportedMode, "pcm.num_images_per_reset must be > 0 (got %d)", m.NumImagesPerReset)
	}
	switch m.Policy {
	case trainer.PolicyLine, trainer.PolicySequential:
		if m.NumRefHidden < 0 || m.NumRefHidden > c.Network.NumHide {
			return errors.Wrapf(ErrUnsupportedMode, "pcm.num_ref_hidden must be in [0,%d]", c.Network.NumHide)
		}
		if m.NumRefOutput < 0 || m.NumRefOutput > c.Network.NumOutput {
			return errors.Wrapf(ErrUnsupportedMode, "pcm.num_ref_output must be in [0,%d]", c.Network.NumOutput)
		}
	case trainer.PolicySporadic:
		if m.ActDeviceIH < 0 || m.ActDeviceIH > 1 || m.ActDeviceHO < 0 || m.ActDeviceHO > 1 {
			return errors.Wrap(ErrUnsupportedMode, "pcm.act_device_ih and act_device_ho must be probabilities")
		}
	}
	return nil
}

// Options converts the config into engine options.
func (c *Config) Options() trainer.Options {
	return trainer.Options{
		NumInput:                c.Network.NumInput,
		NumHide:                 c.Network.NumHide,
		NumOutput:               c.Network.NumOutput,
		MaxWeight:               c.Network.MaxWeight,
		MinWeight:               c.Network.MinWeight,
		Alpha1:                  c.Training.Alpha1,
		Alpha2:                  c.Training.Alpha2,
		NumBitInput:             c.Hardware.NumBitInput,
		NumBitPartialSum:        c.Hardware.NumBitPartialSum,
		NumColMuxed:             c.Hardware.NumColMuxed,
		NumWriteColMuxed:        c.Hardware.NumWriteColMuxed,
		HThreshold:              c.Hardware.HThreshold,
		UseHardwareInTrainingFF: c.Hardware.UseHardwareInTrainingFF,
		UseHardwareInTrainingWU: c.Hardware.UseHardwareInTrainingWU,
		UseHardwareInTestingFF:  c.Hardware.UseHardwareInTestingFF,
		WriteEnergyReport:       c.Hardware.WriteEnergyReport,
		Workers:                 c.Hardware.Workers,
		Maintenance:             c.PCM,
	}
}

// NumInputLevel is the number of digitized input levels.
func (c *Config) NumInputLevel() int {
	return 1 << c.Hardware.NumBitInput
}
