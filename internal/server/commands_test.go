package server

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/castwork/deadair/internal/config"
	"github.com/castwork/deadair/internal/engine"
	"github.com/castwork/deadair/internal/types"
)

// newTestHandler builds a command handler backed by a real config file and
// an engine that has not been started, so no processes or timers run.
func newTestHandler(t *testing.T) (*CommandHandler, *config.Config) {
	t.Helper()

	cfg := config.New(filepath.Join(t.TempDir(), "config.json"))
	if err := cfg.Load(); err != nil {
		t.Fatalf("config load: %v", err)
	}

	eng, err := engine.New(cfg, "ffmpeg", nil)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}

	return NewCommandHandler(cfg, eng, nil, true), cfg
}

// dispatch routes a command through Handle and returns the first response.
func dispatch(t *testing.T, h *CommandHandler, cmdType, data string) map[string]any {
	t.Helper()

	send := make(chan any, 16)
	cmd := WSCommand{Type: cmdType}
	if data != "" {
		cmd.Data = json.RawMessage(data)
	}

	h.Handle(cmd, send, func() {})

	select {
	case msg := <-send:
		result, ok := msg.(map[string]any)
		if !ok {
			t.Fatalf("message type = %T, want map[string]any", msg)
		}
		return result
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for response")
		return nil
	}
}

func TestHandle_TriggersStatusUpdate(t *testing.T) {
	h, _ := newTestHandler(t)

	triggered := false
	h.Handle(WSCommand{Type: "status/get"}, make(chan any, 1), func() { triggered = true })

	if !triggered {
		t.Error("status update not triggered")
	}
}

func TestHandle_UnknownCommandSendsNothing(t *testing.T) {
	h, _ := newTestHandler(t)

	send := make(chan any, 1)
	h.Handle(WSCommand{Type: "bogus/thing"}, send, func() {})

	if len(send) != 0 {
		t.Error("unexpected response for unknown command")
	}
}

func TestDevicesUpdate_SetsInputs(t *testing.T) {
	h, cfg := newTestHandler(t)

	result := dispatch(t, h, "devices/update", `{"audio_input":"hw:1,0","video_input":"/dev/video2"}`)
	if result["success"] != true {
		t.Fatalf("success = %v, want true (error: %v)", result["success"], result["error"])
	}

	if got := cfg.AudioInput(); got != "hw:1,0" {
		t.Errorf("AudioInput = %q, want hw:1,0", got)
	}
	if got := cfg.VideoInput(); got != "/dev/video2" {
		t.Errorf("VideoInput = %q, want /dev/video2", got)
	}
}

func TestDevicesUpdate_PartialKeepsOthers(t *testing.T) {
	h, cfg := newTestHandler(t)

	if err := cfg.SetAudioInput("hw:0,0"); err != nil {
		t.Fatal(err)
	}

	result := dispatch(t, h, "devices/update", `{"codec":"vp9"}`)
	if result["success"] != true {
		t.Fatalf("success = %v, want true", result["success"])
	}

	snap := cfg.Snapshot()
	if snap.AudioInput != "hw:0,0" {
		t.Errorf("AudioInput = %q, want unchanged hw:0,0", snap.AudioInput)
	}
	if snap.Codec != types.CodecVP9 {
		t.Errorf("Codec = %q, want vp9", snap.Codec)
	}
}

func TestDevicesUpdate_RejectsBadOrientation(t *testing.T) {
	h, _ := newTestHandler(t)

	result := dispatch(t, h, "devices/update", `{"orientation":"diagonal"}`)
	if result["success"] != false {
		t.Error("success = true, want false for invalid orientation")
	}
}

func TestDetectionUpdate_Partial(t *testing.T) {
	h, cfg := newTestHandler(t)

	result := dispatch(t, h, "detection/update", `{"tick_ms":100}`)
	if result["success"] != true {
		t.Fatalf("success = %v, want true (error: %v)", result["success"], result["error"])
	}

	snap := cfg.Snapshot()
	if snap.TickMs != 100 {
		t.Errorf("TickMs = %d, want 100", snap.TickMs)
	}
	if snap.CalibrationMs != config.DefaultCalibrationMs {
		t.Errorf("CalibrationMs = %d, want unchanged default", snap.CalibrationMs)
	}
}

func TestDetectionUpdate_RejectsOutOfRange(t *testing.T) {
	h, cfg := newTestHandler(t)

	result := dispatch(t, h, "detection/update", `{"calibration_ms":100}`)
	if result["success"] != false {
		t.Error("success = true, want false for calibration below minimum")
	}

	if snap := cfg.Snapshot(); snap.CalibrationMs != config.DefaultCalibrationMs {
		t.Errorf("CalibrationMs = %d, want unchanged after rejected update", snap.CalibrationMs)
	}
}

func TestDetectionGet_ReturnsCurrentValues(t *testing.T) {
	h, _ := newTestHandler(t)

	result := dispatch(t, h, "detection/get", "")
	if result["success"] != true {
		t.Fatalf("success = %v, want true", result["success"])
	}

	data, ok := result["data"].(map[string]any)
	if !ok {
		t.Fatalf("data type = %T, want map", result["data"])
	}
	if data["calibration_ms"] != int64(config.DefaultCalibrationMs) {
		t.Errorf("calibration_ms = %v, want %d", data["calibration_ms"], config.DefaultCalibrationMs)
	}
}

func TestStorageUpdate_SwitchesToS3(t *testing.T) {
	h, cfg := newTestHandler(t)

	result := dispatch(t, h, "storage/update",
		`{"mode":"s3","s3_bucket":"recordings","s3_access_key_id":"AK","s3_secret_access_key":"SK"}`)
	if result["success"] != true {
		t.Fatalf("success = %v, want true (error: %v)", result["success"], result["error"])
	}

	snap := cfg.Snapshot()
	if snap.StorageMode != types.StorageS3 {
		t.Errorf("StorageMode = %q, want s3", snap.StorageMode)
	}
	if snap.S3Bucket != "recordings" {
		t.Errorf("S3Bucket = %q, want recordings", snap.S3Bucket)
	}
}

func TestStorageGet_MasksSecret(t *testing.T) {
	h, cfg := newTestHandler(t)

	if err := cfg.SetStorage(config.StorageConfig{
		OutputDir:         cfg.Snapshot().OutputDir,
		Mode:              types.StorageLocal,
		S3SecretAccessKey: "super-secret",
	}); err != nil {
		t.Fatal(err)
	}

	result := dispatch(t, h, "storage/get", "")
	data := result["data"].(map[string]any)

	if data["s3_secret_set"] != true {
		t.Error("s3_secret_set = false, want true")
	}
	for key, val := range data {
		if s, ok := val.(string); ok && s == "super-secret" {
			t.Errorf("secret leaked in %s", key)
		}
	}
}

func TestAuditUpdate_Enables(t *testing.T) {
	h, cfg := newTestHandler(t)

	result := dispatch(t, h, "audit/update", `{"enabled":true,"retention_days":14}`)
	if result["success"] != true {
		t.Fatalf("success = %v, want true", result["success"])
	}

	snap := cfg.Snapshot()
	if !snap.AuditClipsEnabled {
		t.Error("AuditClipsEnabled = false, want true")
	}
	if snap.AuditRetentionDays != 14 {
		t.Errorf("AuditRetentionDays = %d, want 14", snap.AuditRetentionDays)
	}
}

func TestWebhookUpdate_SavesURL(t *testing.T) {
	h, cfg := newTestHandler(t)

	result := dispatch(t, h, "notifications/webhook/update", `{"url":"https://hooks.example.com/alert"}`)
	if result["success"] != true {
		t.Fatalf("success = %v, want true", result["success"])
	}

	if snap := cfg.Snapshot(); snap.WebhookURL != "https://hooks.example.com/alert" {
		t.Errorf("WebhookURL = %q", snap.WebhookURL)
	}
}

func TestMQTTUpdate_RejectsBadQoS(t *testing.T) {
	h, _ := newTestHandler(t)

	result := dispatch(t, h, "notifications/mqtt/update", `{"broker":"tcp://broker:1883","qos":7}`)
	if result["success"] != false {
		t.Error("success = true, want false for QoS above 2")
	}
}

func TestEmailGet_MasksSecret(t *testing.T) {
	h, cfg := newTestHandler(t)

	if err := cfg.SetGraphConfig("tid", "cid", "top-secret", "rec@example.com", "ops@example.com"); err != nil {
		t.Fatal(err)
	}

	result := dispatch(t, h, "notifications/email/get", "")
	data := result["data"].(map[string]any)

	if data["client_secret_set"] != true {
		t.Error("client_secret_set = false, want true")
	}
	if data["tenant_id"] != "tid" {
		t.Errorf("tenant_id = %v, want tid", data["tenant_id"])
	}
	for key, val := range data {
		if s, ok := val.(string); ok && s == "top-secret" {
			t.Errorf("secret leaked in %s", key)
		}
	}
}

func TestEventsGet_WithoutLogger(t *testing.T) {
	h, _ := newTestHandler(t)

	result := dispatch(t, h, "events/get", `{"limit":10}`)
	if result["success"] != false {
		t.Error("success = true, want false without an event log")
	}
}

func TestRegenerateAPIKey_ReturnsNewKey(t *testing.T) {
	h, cfg := newTestHandler(t)

	result := dispatch(t, h, "system/regenerate-key", "")
	if result["success"] != true {
		t.Fatalf("success = %v, want true (error: %v)", result["success"], result["error"])
	}

	data, ok := result["data"].(map[string]string)
	if !ok {
		t.Fatalf("data type = %T, want map[string]string", result["data"])
	}
	key := data["api_key"]
	if len(key) != 32 {
		t.Errorf("api_key length = %d, want 32", len(key))
	}
	if cfg.APIKey() != key {
		t.Error("returned key does not match saved key")
	}
}

func TestSessionReset_FromIdleSucceeds(t *testing.T) {
	h, _ := newTestHandler(t)

	result := dispatch(t, h, "session/reset", "")
	if result["success"] != true {
		t.Errorf("success = %v, want true", result["success"])
	}
}

func TestSessionStart_WithoutFFmpeg(t *testing.T) {
	h, _ := newTestHandler(t)
	h.ffmpegAvailable = false

	result := dispatch(t, h, "session/start", "")
	if result["success"] != false {
		t.Error("success = true, want false without FFmpeg")
	}
}

func TestSessionStart_WithoutDevicesFails(t *testing.T) {
	h, _ := newTestHandler(t)

	result := dispatch(t, h, "session/start", "")
	if result["success"] != false {
		t.Fatal("success = true, want false with no input devices configured")
	}
	errMsg, _ := result["error"].(string)
	if !strings.Contains(errMsg, "audio") {
		t.Errorf("error = %q, want mention of the audio input", errMsg)
	}
}

func TestSessionStop_FromIdleReturnsInfo(t *testing.T) {
	h, _ := newTestHandler(t)

	result := dispatch(t, h, "session/stop", "")
	if result["success"] != true {
		t.Fatalf("success = %v, want true (error: %v)", result["success"], result["error"])
	}

	info, ok := result["data"].(types.SessionInfo)
	if !ok {
		t.Fatalf("data type = %T, want types.SessionInfo", result["data"])
	}
	if info.State != types.StateIdle {
		t.Errorf("state = %q, want idle", info.State)
	}
}

func TestConfigGet_MasksSecrets(t *testing.T) {
	h, cfg := newTestHandler(t)

	if err := cfg.SetAPIKey("abcd1234abcd1234abcd1234abcd1234"); err != nil {
		t.Fatal(err)
	}
	if err := cfg.SetGraphConfig("tid", "cid", "graph-secret", "a@b.c", "d@e.f"); err != nil {
		t.Fatal(err)
	}

	result := dispatch(t, h, "config/get", "")
	if result["success"] != true {
		t.Fatalf("success = %v, want true", result["success"])
	}

	raw, err := json.Marshal(result["data"])
	if err != nil {
		t.Fatal(err)
	}
	for _, secret := range []string{"graph-secret", "abcd1234abcd1234abcd1234abcd1234"} {
		if strings.Contains(string(raw), secret) {
			t.Errorf("config/get leaked secret %q", secret)
		}
	}
}
