package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestEmptyConfigDefaults(t *testing.T) {
	c := EmptyTuningConfig()
	if c.GetAveragingSlots() != 15 {
		t.Errorf("averaging slots = %d", c.GetAveragingSlots())
	}
	if c.GetMaxVariance() != 4 || c.GetHysteresis() != 0.5 || c.GetBigChange() != 10 {
		t.Errorf("threshold defaults wrong: %v %v %v", c.GetMaxVariance(), c.GetHysteresis(), c.GetBigChange())
	}
	if !c.GetRetainValids() || !c.GetSpatialFilter() || c.GetFollowBigChange() {
		t.Error("boolean defaults wrong")
	}
	if c.GetMinInitFrames() != 60 || c.GetGradientResolution() != 10 || c.GetMaxGradient() != 1000 {
		t.Error("stabilisation or gradient defaults wrong")
	}
	if c.GetStatsFlushInterval() != 30*time.Second {
		t.Errorf("flush interval = %v", c.GetStatsFlushInterval())
	}
	if c.GetROI() != nil {
		t.Error("default ROI should be nil (full frame)")
	}
}

func TestLoadTuningConfig(t *testing.T) {
	path := writeConfig(t, "tuning.json", `{
		"roi": {"min_x": 40, "min_y": 30, "max_x": 600, "max_y": 450},
		"averaging_slots": 9,
		"follow_big_change": true,
		"stats_flush_interval": "5s"
	}`)
	cfg, err := LoadTuningConfig(path)
	if err != nil {
		t.Fatalf("LoadTuningConfig: %v", err)
	}
	want := &ROIConfig{MinX: 40, MinY: 30, MaxX: 600, MaxY: 450}
	if diff := cmp.Diff(want, cfg.GetROI()); diff != "" {
		t.Errorf("ROI mismatch (-want +got):\n%s", diff)
	}
	if cfg.GetAveragingSlots() != 9 || !cfg.GetFollowBigChange() {
		t.Error("explicit values not applied")
	}
	if cfg.GetStatsFlushInterval() != 5*time.Second {
		t.Errorf("flush interval = %v", cfg.GetStatsFlushInterval())
	}
	// Omitted fields keep defaults.
	if cfg.GetHysteresis() != 0.5 {
		t.Errorf("hysteresis = %v", cfg.GetHysteresis())
	}
}

func TestLoadTuningConfigRejects(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{"extension", "tuning.yaml", `{}`, ".json extension"},
		{"syntax", "tuning.json", `{"averaging_slots": }`, "parse"},
		{"unknown field", "tuning.json", `{"averaging_slot": 3}`, "unknown field"},
		{"zero slots", "tuning.json", `{"averaging_slots": 0}`, "averaging_slots"},
		{"min samples above slots", "tuning.json", `{"averaging_slots": 4, "min_samples": 5}`, "min_samples"},
		{"empty roi", "tuning.json", `{"roi": {"min_x": 5, "max_x": 5, "max_y": 10}}`, "roi"},
		{"negative variance", "tuning.json", `{"max_variance": -1}`, "max_variance"},
		{"bad duration", "tuning.json", `{"stats_flush_interval": "soon"}`, "stats_flush_interval"},
		{"channel depth", "tuning.json", `{"channel_depth": 0}`, "channel_depth"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadTuningConfig(writeConfig(t, tt.file, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadTuningConfigMissing(t *testing.T) {
	if _, err := LoadTuningConfig(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadTuningConfigTooLarge(t *testing.T) {
	big := `{"calibration_path": "` + strings.Repeat("a", maxConfigSize) + `"}`
	_, err := LoadTuningConfig(writeConfig(t, "big.json", big))
	if err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("err = %v", err)
	}
}

func TestLoadDefaultConfigFile(t *testing.T) {
	cfg, err := LoadTuningConfig(filepath.Join("..", "..", DefaultConfigPath))
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	// The shipped file must agree with the compiled-in defaults.
	empty := EmptyTuningConfig()
	if cfg.GetAveragingSlots() != empty.GetAveragingSlots() ||
		cfg.GetMaxVariance() != empty.GetMaxVariance() ||
		cfg.GetMinInitFrames() != empty.GetMinInitFrames() ||
		cfg.GetStatsFlushInterval() != empty.GetStatsFlushInterval() ||
		cfg.GetCalibrationPath() != empty.GetCalibrationPath() {
		t.Error("config/sandtable.defaults.json drifted from the Get* defaults")
	}
}
