package engine

import (
	"encoding/binary"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/castwork/deadair/internal/audio"
	"github.com/castwork/deadair/internal/capture"
	"github.com/castwork/deadair/internal/config"
	"github.com/castwork/deadair/internal/eventlog"
	"github.com/castwork/deadair/internal/session"
	"github.com/castwork/deadair/internal/types"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()

	cfg := config.New(filepath.Join(t.TempDir(), "config.json"))
	e, err := New(cfg, "ffmpeg", nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return e
}

func TestEngine_StartSessionWithoutDevices(t *testing.T) {
	e := newTestEngine(t)

	err := e.StartSession()
	if !errors.Is(err, capture.ErrNoAudioDevice) {
		t.Fatalf("StartSession() error = %v, want ErrNoAudioDevice", err)
	}
	if got := e.State(); got != types.StateIdle {
		t.Errorf("state after failed start = %q, want idle", got)
	}
	if e.SessionStatus().LastError == "" {
		t.Error("expected last error recorded after failed start")
	}
}

func TestEngine_StartSessionWithoutVideo(t *testing.T) {
	cfg := config.New(filepath.Join(t.TempDir(), "config.json"))
	if err := cfg.SetAudioInput("hw:0"); err != nil {
		t.Fatal(err)
	}
	e, err := New(cfg, "ffmpeg", nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := e.StartSession(); !errors.Is(err, capture.ErrNoVideoDevice) {
		t.Fatalf("StartSession() error = %v, want ErrNoVideoDevice", err)
	}
}

func TestEngine_StopSessionIdle(t *testing.T) {
	e := newTestEngine(t)

	info, err := e.StopSession()
	if err != nil {
		t.Fatalf("StopSession() on idle error = %v", err)
	}
	if info.State != types.StateIdle {
		t.Errorf("state = %q, want idle", info.State)
	}
}

func TestEngine_ResetFromIdle(t *testing.T) {
	e := newTestEngine(t)

	if err := e.ResetSession(); err != nil {
		t.Errorf("ResetSession() on idle error = %v", err)
	}
}

func TestEngine_AudioLevelsIdle(t *testing.T) {
	e := newTestEngine(t)

	levels := e.AudioLevels()
	if levels.Left != audio.MinDB || levels.Right != audio.MinDB {
		t.Errorf("idle levels = %+v, want %g dB floor", levels, audio.MinDB)
	}
	if levels.Silent {
		t.Error("idle levels should not be classified silent")
	}
}

// loudPCM builds n stereo S16LE frames of a full-scale square wave.
func loudPCM(frames int) []byte {
	buf := make([]byte, frames*4)
	for i := 0; i < len(buf); i += 4 {
		binary.LittleEndian.PutUint16(buf[i:], uint16(int16(20000)))
		binary.LittleEndian.PutUint16(buf[i+2:], uint16(int16(20000)))
	}
	return buf
}

func TestEngine_MeterPublishesLevels(t *testing.T) {
	e := newTestEngine(t)

	buf := loudPCM(levelUpdateFrames)
	e.meter(buf, len(buf))

	e.levelsMu.RLock()
	levels := e.levels
	accumulated := e.levelData.SampleCount
	e.levelsMu.RUnlock()

	if levels.Left <= audio.MinDB || levels.Right <= audio.MinDB {
		t.Errorf("levels after loud window = %+v, want above %g dB", levels, audio.MinDB)
	}
	if accumulated != 0 {
		t.Errorf("accumulator not reset after flush: %d frames", accumulated)
	}
}

func TestEngine_MeterAccumulatesBelowWindow(t *testing.T) {
	e := newTestEngine(t)

	buf := loudPCM(100)
	e.meter(buf, len(buf))

	e.levelsMu.RLock()
	defer e.levelsMu.RUnlock()
	if e.levelData.SampleCount != 100 {
		t.Errorf("accumulated frames = %d, want 100", e.levelData.SampleCount)
	}
	if e.levels.Left != 0 {
		t.Errorf("levels published before the window filled: %+v", e.levels)
	}
}

func TestEngine_HandleTransitionLogsEvent(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "events.jsonl")
	logger, err := eventlog.NewLogger(logPath)
	if err != nil {
		t.Fatal(err)
	}
	defer logger.Close()

	cfg := config.New(filepath.Join(t.TempDir(), "config.json"))
	e, err := New(cfg, "ffmpeg", logger)
	if err != nil {
		t.Fatal(err)
	}

	e.handleTransition(session.TransitionEvent{
		SessionID: "s-1",
		From:      types.StateIdle,
		To:        types.StateCalibrating,
		At:        time.Now(),
		Reason:    session.ReasonStart,
	})

	events, _, err := eventlog.ReadLast(logPath, 10, 0, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("logged events = %d, want 1", len(events))
	}
	if events[0].Type != eventlog.SessionStarted {
		t.Errorf("event type = %q, want %q", events[0].Type, eventlog.SessionStarted)
	}
	if events[0].SessionID != "s-1" {
		t.Errorf("session id = %q, want s-1", events[0].SessionID)
	}
}

func TestEngine_TriggerTestsUnconfigured(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		name    string
		trigger func() error
		want    string
	}{
		{"webhook", e.TriggerTestWebhook, "webhook"},
		{"email", e.TriggerTestEmail, "email"},
		{"mqtt", e.TriggerTestMQTT, "MQTT"},
		{"zabbix", e.TriggerTestZabbix, "Zabbix"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.trigger()
			if err == nil {
				t.Fatal("expected error for unconfigured channel")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestEngine_GraphSecretExpiryUnconfigured(t *testing.T) {
	e := newTestEngine(t)

	info := e.GraphSecretExpiry()
	if info.Error == "" {
		t.Error("expected error for unconfigured Graph credentials")
	}
}

func TestEngine_HandleConfigReload(t *testing.T) {
	e := newTestEngine(t)

	if err := e.cfg.SetGraphConfig("tenant", "client", "secret", "from@example.com", "to@example.com"); err != nil {
		t.Fatal(err)
	}

	// Picks up the new credentials without touching the network.
	e.HandleConfigReload()
}
