package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"

	"synapse-forge/internal/device"
	"synapse-forge/internal/trainer"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
seed: 7
network:
  num_hide: 20
hardware:
  num_bit_input: 3
device:
  kind: digital
  cmos_access: false
pcm:
  policy: sequential
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Seed != 7 || cfg.Network.NumHide != 20 || cfg.Network.NumInput != 400 {
		t.Fatalf("unexpected overlay result: %+v", cfg.Network)
	}
	if cfg.Device.Kind != device.KindDigitalNVM || cfg.Device.CMOSAccess {
		t.Fatalf("device section not decoded: %+v", cfg.Device)
	}
	if cfg.PCM.Policy != trainer.PolicySequential {
		t.Fatalf("expected sequential policy, got %v", cfg.PCM.Policy)
	}
	if cfg.NumInputLevel() != 8 {
		t.Fatalf("expected 8 input levels, got %d", cfg.NumInputLevel())
	}
}

func TestLoadRejectsUnknownKey(t *testing.T) {
	path := writeConfig(t, "network:\n  num_layers: 3\n")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "num_layers") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestValidateRejectsIncompleteDevice(t *testing.T) {
	cfg := Default()
	cfg.Device.MaxNumLevelLTP = 0
	if err := cfg.Validate(); !errors.Is(err, device.ErrMissingDeviceParam) {
		t.Fatalf("expected ErrMissingDeviceParam, got %v", err)
	}
	cfg.Hardware.UseHardwareInTrainingFF = false
	cfg.Hardware.UseHardwareInTrainingWU = false
	cfg.Hardware.UseHardwareInTestingFF = false
	if err := cfg.Validate(); err != nil {
		t.Fatalf("algorithmic run should not need device params: %v", err)
	}
}

func TestValidateRejectsOversizedRefresh(t *testing.T) {
	cfg := Default()
	cfg.PCM.Policy = trainer.PolicyLine
	cfg.PCM.NumRefHidden = cfg.Network.NumHide + 1
	if err := cfg.Validate(); !errors.Is(err, ErrUnsupportedMode) {
		t.Fatalf("expected ErrUnsupportedMode, got %v", err)
	}
}

func TestApplyOverridesAndLogDefault(t *testing.T) {
	cfg := Default()
	cfg.LogEvery = 0
	cfg.ApplyOverrides(Overrides{NumEpochs: 3, Workers: 2, TrainRoot: "/data"})
	if cfg.Training.NumEpochs != 3 || cfg.Hardware.Workers != 2 || cfg.TrainRoot != "/data" {
		t.Fatalf("overrides not applied: %+v", cfg.Training)
	}
	if cfg.Training.NumSamples != 8000 {
		t.Fatalf("zero override must keep the loaded value")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.LogEvery != 50 {
		t.Fatalf("expected log_every default 50, got %d", cfg.LogEvery)
	}
}

func TestDemoConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "demo.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PCM.Policy != trainer.PolicySequential {
		t.Fatalf("expected sequential policy, got %v", cfg.PCM.Policy)
	}
	if cfg.Device.Kind != device.KindAnalogNVM || !cfg.Device.PCM {
		t.Fatalf("expected an analog PCM device, got %v", cfg.Device.Kind)
	}
	if got := cfg.Options().NumInputLevel(); got != 2 {
		t.Fatalf("expected 2 input levels, got %d", got)
	}
}
