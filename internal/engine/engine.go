// Package engine assembles the recording pipeline behind a single facade:
// the analysis capture source, spectrum analysis, the session state machine,
// the segment sink, audit clips, notifications, metrics and the event log.
// The web layer talks only to the Engine.
package engine

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/castwork/deadair/internal/audio"
	"github.com/castwork/deadair/internal/audit"
	"github.com/castwork/deadair/internal/capture"
	"github.com/castwork/deadair/internal/config"
	"github.com/castwork/deadair/internal/eventlog"
	"github.com/castwork/deadair/internal/metrics"
	"github.com/castwork/deadair/internal/notify"
	"github.com/castwork/deadair/internal/recording"
	"github.com/castwork/deadair/internal/session"
	"github.com/castwork/deadair/internal/types"
)

// stopWait bounds how long a stop request may take to settle. It covers the
// final segment merge, which runs at stream-copy speed.
const stopWait = 30 * time.Second

// Engine wires the capture, detection, recording and notification components
// together and owns their lifecycles.
type Engine struct {
	cfg        *config.Config
	ffmpegPath string

	source     *capture.Source
	spectrum   *audio.Spectrum
	controller *session.Controller
	runner     *session.Runner
	recorder   *recording.Recorder
	audit      *audit.Manager
	notifier   *notify.Notifier
	eventLog   *eventlog.Logger
	expiry     *notify.SecretExpiryChecker
	cleaner    *recording.Cleaner

	levelsMu   sync.RWMutex
	levelData  audio.LevelData
	levels     types.AudioLevels
	peakHolder *audio.PeakHolder
}

// New assembles the engine from configuration. The event logger may be nil,
// which disables event logging without disturbing the rest of the pipeline.
func New(cfg *config.Config, ffmpegPath string, eventLog *eventlog.Logger) (*Engine, error) {
	snap := cfg.Snapshot()

	spectrum, err := audio.NewSpectrum(snap.SpectrumWindow)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:        cfg,
		ffmpegPath: ffmpegPath,
		spectrum:   spectrum,
		eventLog:   eventLog,
		notifier:   notify.NewNotifier(cfg),
		expiry:     notify.NewSecretExpiryChecker(notify.BuildGraphConfig(snap)),
		peakHolder: audio.NewPeakHolder(),
	}

	e.source = capture.NewSource(cfg.AudioInput, ffmpegPath)
	e.recorder = recording.New(cfg, eventLog)
	e.audit = audit.NewManager(cfg, eventLog)
	e.cleaner = recording.NewCleaner(cfg, eventLog)

	e.controller = session.New(cfg, media{e}, e.recorder, spectrum, session.Callbacks{
		OnTransition:  e.handleTransition,
		OnCalibration: e.handleCalibration,
	})
	e.runner = session.NewRunner(e.controller, func() time.Duration {
		s := cfg.Snapshot()
		return s.TickInterval()
	})

	// All analysis consumers share the capture process so detection keeps
	// running while the sink is paused.
	e.source.Attach("spectrum", spectrum.Feed)
	e.source.Attach("levels", e.meter)
	e.source.Attach("sink", e.recorder.WritePCM)
	e.source.Attach("audit", e.audit.WritePCM)
	e.source.SetOnFailure(e.controller.Fail)

	e.recorder.SetOnUploadAbandoned(e.notifier.HandleUploadAbandoned)

	return e, nil
}

// Start launches the background machinery: the session tick loop, the audit
// clip encoder and the retention scheduler. Capture devices are not touched
// until a session starts.
func (e *Engine) Start() {
	recording.CleanStaleSegments(cmp.Or(e.cfg.Snapshot().TempDir, recording.DefaultTempDir))
	e.runner.Start()
	e.audit.Start()
	e.cleaner.Start()
	metrics.SetState(e.controller.State())
}

// Close stops any active session and shuts down all background machinery.
func (e *Engine) Close() {
	if st := e.controller.State(); st != types.StateIdle && st != types.StateStopped {
		if _, err := e.controller.StopAndWait(stopWait); err != nil {
			slog.Warn("session did not settle during shutdown", "error", err)
		}
	}
	e.runner.Stop()
	e.cleaner.Stop()
	e.audit.Stop()
	e.notifier.Close()
	e.recorder.Close()
}

// StartSession begins a new recording session, entering calibration.
func (e *Engine) StartSession() error {
	return e.controller.Start()
}

// StopSession requests a stop and waits for the final segment merge.
func (e *Engine) StopSession() (types.SessionInfo, error) {
	return e.controller.StopAndWait(stopWait)
}

// ResetSession returns a stopped session to idle.
func (e *Engine) ResetSession() error {
	return e.controller.Reset()
}

// State returns the current recording state.
func (e *Engine) State() types.RecordingState {
	return e.controller.State()
}

// SessionStatus returns a snapshot of the current session.
func (e *Engine) SessionStatus() types.SessionInfo {
	return e.controller.Status()
}

// SourceStatus returns the analysis capture process status.
func (e *Engine) SourceStatus() types.ProcessStatus {
	return e.source.Status()
}

// SinkStatus returns the segment sink process status.
func (e *Engine) SinkStatus() types.ProcessStatus {
	return e.recorder.Status()
}

// UploadStatus summarizes the S3 upload pipeline.
func (e *Engine) UploadStatus() recording.UploadStatus {
	return e.recorder.UploadStatus()
}

// GraphSecretExpiry returns cached Graph client secret expiry information.
func (e *Engine) GraphSecretExpiry() types.SecretExpiryInfo {
	return e.expiry.GetInfo()
}

// RunCleanup triggers one retention pass over recordings and audit clips
// outside the nightly schedule.
func (e *Engine) RunCleanup() {
	e.cleaner.Run()
	e.audit.RunCleanup()
}

// UpdateGraphConfig pushes the current Graph credentials to the secret
// expiry checker, invalidating its cache.
func (e *Engine) UpdateGraphConfig() {
	e.expiry.UpdateConfig(notify.BuildGraphConfig(e.cfg.Snapshot()))
}

// HandleConfigReload applies externally edited configuration. The expiry
// checker gets the new credentials; everything else reads fresh snapshots on
// its next cycle.
func (e *Engine) HandleConfigReload() {
	e.UpdateGraphConfig()
	slog.Info("configuration reloaded", "tick_ms", e.cfg.Snapshot().TickMs)
}

// TriggerTestWebhook sends a test webhook to verify configuration.
func (e *Engine) TriggerTestWebhook() error {
	snap := e.cfg.Snapshot()
	if !snap.HasWebhook() {
		return errors.New("no webhook URL configured")
	}
	return notify.SendTestWebhook(snap.WebhookURL, snap.RecorderName)
}

// TriggerTestEmail sends a test email to verify configuration.
func (e *Engine) TriggerTestEmail() error {
	snap := e.cfg.Snapshot()
	if !snap.HasGraph() {
		return errors.New("email notifications not configured")
	}
	return notify.SendTestEmail(notify.BuildGraphConfig(snap), snap.RecorderName)
}

// TriggerTestMQTT publishes a test message to verify broker configuration.
func (e *Engine) TriggerTestMQTT() error {
	snap := e.cfg.Snapshot()
	if !snap.HasMQTT() {
		return errors.New("MQTT broker not configured")
	}
	return notify.SendTestMQTT(snap.MQTT)
}

// TriggerTestZabbix sends a test value to verify trapper configuration.
func (e *Engine) TriggerTestZabbix() error {
	snap := e.cfg.Snapshot()
	if !snap.HasZabbix() {
		return errors.New("Zabbix server not configured")
	}
	return notify.SendTestZabbix(snap.Zabbix)
}

// TriggerTestS3 verifies bucket access with a round-trip marker object.
func (e *Engine) TriggerTestS3() error {
	return e.recorder.TestS3()
}

// handleTransition fans a state machine transition out to the event log,
// notification channels, metrics and the audit clip manager.
func (e *Engine) handleTransition(ev session.TransitionEvent) {
	slog.Info("session transition",
		"session_id", ev.SessionID,
		"from", ev.From,
		"to", ev.To,
		"reason", ev.Reason)

	e.logTransition(ev)
	e.notifier.HandleTransition(ev)
	metrics.HandleTransition(ev)

	switch ev.Reason {
	case session.ReasonSilence:
		e.audit.OnPause()
	case session.ReasonSound:
		e.audit.OnResume(time.Duration(ev.SilenceMs) * time.Millisecond)
	case session.ReasonStop, session.ReasonAbort, session.ReasonError:
		e.audit.Reset()
	}

	metrics.SetSegments(e.recorder.SegmentCount())
}

func (e *Engine) logTransition(ev session.TransitionEvent) {
	if e.eventLog == nil {
		return
	}
	err := e.eventLog.LogSession(eventlog.SessionEventFor(string(ev.Reason)), ev.SessionID, &eventlog.SessionDetails{
		From:       string(ev.From),
		To:         string(ev.To),
		SilenceMs:  ev.SilenceMs,
		NoiseFloor: ev.NoiseFloor,
		Threshold:  ev.Threshold,
		Output:     ev.Output,
		Error:      ev.Error,
	})
	if err != nil {
		slog.Warn("failed to log session transition", "error", err)
	}
}

// handleCalibration reports calibration progress. Connected clients get the
// countdown from the status stream instead.
func (e *Engine) handleCalibration(remaining time.Duration) {
	slog.Debug("calibration in progress", "remaining", remaining)
}

// media adapts device acquisition to the controller contract: probe the video
// device, then hold the analysis capture open for the whole session.
type media struct {
	e *Engine
}

func (m media) Acquire() error {
	snap := m.e.cfg.Snapshot()
	if snap.AudioInput == "" {
		return capture.ErrNoAudioDevice
	}
	if snap.VideoInput == "" {
		return capture.ErrNoVideoDevice
	}

	if err := capture.ProbeVideo(context.Background(), m.e.ffmpegPath, snap.VideoInput, snap.Orientation, snap.Framerate); err != nil {
		return err
	}
	return m.e.source.Start()
}

func (m media) Release() {
	if err := m.e.source.Stop(); err != nil {
		slog.Warn("failed to stop analysis capture", "error", err)
	}
	m.e.spectrum.Reset()
	m.e.resetLevels()
}
