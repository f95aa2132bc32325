package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/castwork/deadair/internal/types"
)

func testConfigPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "deadair.json")
}

func TestLoad_CreatesDefaultFile(t *testing.T) {
	path := testConfigPath(t)
	cfg := New(path)

	if err := cfg.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not created: %v", err)
	}

	snap := cfg.Snapshot()
	if snap.WebPort != DefaultWebPort {
		t.Errorf("WebPort = %d, want %d", snap.WebPort, DefaultWebPort)
	}
	if snap.CalibrationMs != DefaultCalibrationMs {
		t.Errorf("CalibrationMs = %d, want %d", snap.CalibrationMs, DefaultCalibrationMs)
	}
	if snap.SilenceDebounceMs != DefaultSilenceDebounceMs {
		t.Errorf("SilenceDebounceMs = %d, want %d", snap.SilenceDebounceMs, DefaultSilenceDebounceMs)
	}
	if snap.ThresholdMultiplier != DefaultThresholdMultiplier {
		t.Errorf("ThresholdMultiplier = %g, want %g", snap.ThresholdMultiplier, DefaultThresholdMultiplier)
	}
	if snap.SpectrumWindow != DefaultSpectrumWindow {
		t.Errorf("SpectrumWindow = %d, want %d", snap.SpectrumWindow, DefaultSpectrumWindow)
	}
	if snap.Orientation != types.OrientationLandscape {
		t.Errorf("Orientation = %q, want landscape", snap.Orientation)
	}
}

func TestLoad_AppliesDefaultsToPartialFile(t *testing.T) {
	path := testConfigPath(t)
	partial := `{"recorder": {"name": "Studio B", "audio_input": "hw:1,0"}}`
	if err := os.WriteFile(path, []byte(partial), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := New(path)
	if err := cfg.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	snap := cfg.Snapshot()
	if snap.RecorderName != "Studio B" {
		t.Errorf("RecorderName = %q, want %q", snap.RecorderName, "Studio B")
	}
	if snap.AudioInput != "hw:1,0" {
		t.Errorf("AudioInput = %q, want %q", snap.AudioInput, "hw:1,0")
	}
	if snap.TickMs != DefaultTickMs {
		t.Errorf("TickMs = %d, want default %d", snap.TickMs, DefaultTickMs)
	}
	if snap.Codec != types.CodecH264 {
		t.Errorf("Codec = %q, want h264", snap.Codec)
	}
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty name", func(c *Config) { c.Recorder.Name = "" }},
		{"control chars in name", func(c *Config) { c.Recorder.Name = "bad\nname" }},
		{"unknown orientation", func(c *Config) { c.Recorder.Orientation = "diagonal" }},
		{"unknown codec", func(c *Config) { c.Recorder.Codec = "divx" }},
		{"calibration too short", func(c *Config) { c.Detection.CalibrationMs = 100 }},
		{"debounce too short", func(c *Config) { c.Detection.SilenceDebounceMs = 50 }},
		{"multiplier below one", func(c *Config) { c.Detection.ThresholdMultiplier = 0.5 }},
		{"window not power of two", func(c *Config) { c.Detection.SpectrumWindow = 300 }},
		{"tick too fast", func(c *Config) { c.Detection.TickMs = 1 }},
		{"unknown storage mode", func(c *Config) { c.Storage.Mode = "ftp" }},
		{"traversal in output dir", func(c *Config) { c.Storage.OutputDir = "/var/../../etc" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New(testConfigPath(t))
			tt.mutate(cfg)
			if err := cfg.validate(); err == nil {
				t.Error("validate() accepted invalid configuration")
			}
		})
	}
}

func TestSetDetection_RestoresOnInvalid(t *testing.T) {
	cfg := New(testConfigPath(t))
	if err := cfg.Load(); err != nil {
		t.Fatal(err)
	}

	bad := DetectionConfig{
		CalibrationMs:       3000,
		SilenceDebounceMs:   500,
		ThresholdMultiplier: 99.0, // out of range
		SpectrumWindow:      256,
		TickMs:              50,
	}
	if err := cfg.SetDetection(bad); err == nil {
		t.Fatal("SetDetection accepted invalid multiplier")
	}

	if got := cfg.Snapshot().ThresholdMultiplier; got != DefaultThresholdMultiplier {
		t.Errorf("ThresholdMultiplier after failed update = %g, want %g", got, DefaultThresholdMultiplier)
	}
}

func TestReload_PicksUpChanges(t *testing.T) {
	path := testConfigPath(t)
	cfg := New(path)
	if err := cfg.Load(); err != nil {
		t.Fatal(err)
	}

	updated := `{"recorder": {"name": "Night Desk"}, "detection": {"silence_debounce_ms": 750}}`
	if err := os.WriteFile(path, []byte(updated), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := cfg.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	snap := cfg.Snapshot()
	if snap.RecorderName != "Night Desk" {
		t.Errorf("RecorderName = %q, want %q", snap.RecorderName, "Night Desk")
	}
	if snap.SilenceDebounceMs != 750 {
		t.Errorf("SilenceDebounceMs = %d, want 750", snap.SilenceDebounceMs)
	}
}

func TestReload_KeepsCurrentOnInvalidFile(t *testing.T) {
	path := testConfigPath(t)
	cfg := New(path)
	if err := cfg.Load(); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, []byte(`{"detection": {"tick_ms": 5}}`), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := cfg.Reload(); err == nil {
		t.Fatal("Reload() accepted invalid file")
	}
	if got := cfg.Snapshot().TickMs; got != DefaultTickMs {
		t.Errorf("TickMs after failed reload = %d, want %d", got, DefaultTickMs)
	}
}

func TestLoad_RetentionZeroMeansKeepForever(t *testing.T) {
	path := testConfigPath(t)
	raw := `{"storage": {"retention_days": 0}}`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := New(path)
	if err := cfg.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got := cfg.Snapshot().RetentionDays; got != 0 {
		t.Errorf("RetentionDays = %d, want 0 (keep forever)", got)
	}
}

func TestGenerateAPIKey(t *testing.T) {
	key, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey() error = %v", err)
	}
	if len(key) != 32 {
		t.Errorf("key length = %d, want 32", len(key))
	}

	other, err := GenerateAPIKey()
	if err != nil {
		t.Fatal(err)
	}
	if key == other {
		t.Error("two generated keys are identical")
	}
}

func TestSnapshotDurationHelpers(t *testing.T) {
	cfg := New(testConfigPath(t))
	snap := cfg.Snapshot()

	if got := snap.CalibrationDuration().Milliseconds(); got != DefaultCalibrationMs {
		t.Errorf("CalibrationDuration = %dms, want %d", got, DefaultCalibrationMs)
	}
	if got := snap.SilenceDebounce().Milliseconds(); got != DefaultSilenceDebounceMs {
		t.Errorf("SilenceDebounce = %dms, want %d", got, DefaultSilenceDebounceMs)
	}
	if got := snap.TickInterval().Milliseconds(); got != DefaultTickMs {
		t.Errorf("TickInterval = %dms, want %d", got, DefaultTickMs)
	}
}
