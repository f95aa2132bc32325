package audit

import (
	"cmp"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/castwork/deadair/internal/config"
	"github.com/castwork/deadair/internal/eventlog"
)

const clipExtension = ".mp3"

// ClipDir returns the clip directory for the given web port. Separate ports
// get separate directories so two instances on one host never mix clips.
func ClipDir(port int) string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("deadair-pause-clips-%d", port))
}

// Manager wires the clip capturer to the configuration and the event log. It
// gates capture on the audit_clips.enabled setting and expires old clips on a
// daily schedule.
type Manager struct {
	cfg      *config.Config
	logger   *eventlog.Logger
	capturer *Capturer
	clipDir  string

	mu          sync.Mutex
	onClipReady ClipCallback

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewManager creates an audit clip manager. The FFmpeg path and clip
// directory are fixed at construction; both come from settings that require a
// restart to change.
func NewManager(cfg *config.Config, logger *eventlog.Logger) *Manager {
	snap := cfg.Snapshot()
	m := &Manager{
		cfg:     cfg,
		logger:  logger,
		clipDir: ClipDir(snap.WebPort),
		stopCh:  make(chan struct{}),
	}
	m.capturer = NewCapturer(cmp.Or(snap.FFmpegPath, "ffmpeg"), m.clipDir, m.handleClip)
	return m
}

// SetOnClipReady registers a callback invoked after each clip is encoded, on
// top of the event log entry the manager writes itself.
func (m *Manager) SetOnClipReady(cb ClipCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onClipReady = cb
}

// Dir returns the directory clips are written to.
func (m *Manager) Dir() string {
	return m.clipDir
}

// WritePCM feeds analyzed audio into the clip ring buffer.
func (m *Manager) WritePCM(buf []byte, n int) {
	if !m.enabled() {
		return
	}
	m.capturer.WritePCM(buf, n)
}

// OnPause starts a clip for an automatic pause.
func (m *Manager) OnPause() {
	if !m.enabled() {
		return
	}
	snap := m.cfg.Snapshot()
	m.capturer.OnPause(snap.SilenceDebounce())
}

// OnResume marks the end of the pause on the in-progress clip.
func (m *Manager) OnResume(totalSilence time.Duration) {
	if !m.enabled() {
		return
	}
	m.capturer.OnResume(totalSilence)
}

// Reset discards buffered audio and any clip in progress. Called when a
// session ends so clips never span sessions.
func (m *Manager) Reset() {
	m.capturer.Reset()
}

// Start launches the daily clip cleanup scheduler.
func (m *Manager) Start() {
	go func() {
		for {
			// Run at 03:30, after the recording cleanup.
			now := time.Now()
			next := time.Date(now.Year(), now.Month(), now.Day(), 3, 30, 0, 0, now.Location())
			if !next.After(now) {
				next = next.Add(24 * time.Hour)
			}

			select {
			case <-time.After(time.Until(next)):
				m.RunCleanup()
			case <-m.stopCh:
				return
			}
		}
	}()
}

// Stop halts the cleanup scheduler.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// RunCleanup deletes clips older than the retention period.
func (m *Manager) RunCleanup() {
	retention := m.cfg.Snapshot().AuditRetentionDays
	if retention == 0 {
		// Retention 0 keeps clips forever.
		return
	}
	cutoff := time.Now().AddDate(0, 0, -retention)

	entries, err := os.ReadDir(m.clipDir)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("failed to read clip directory", "dir", m.clipDir, "error", err)
		}
		return
	}

	deleted := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		clipTime, ok := parseClipTime(entry.Name())
		if !ok || !clipTime.Before(cutoff) {
			continue
		}
		path := filepath.Join(m.clipDir, entry.Name())
		if err := os.Remove(path); err != nil {
			slog.Warn("failed to delete old clip", "file", entry.Name(), "error", err)
			continue
		}
		deleted++
	}

	if deleted > 0 {
		slog.Info("clip cleanup completed", "deleted", deleted, "retention_days", retention)
		if m.logger != nil {
			if err := m.logger.LogCleanup(deleted, "clips"); err != nil {
				slog.Warn("failed to log clip cleanup", "error", err)
			}
		}
	}
}

// handleClip records the encode result in the event log and forwards it to
// the registered callback.
func (m *Manager) handleClip(result *ClipResult) {
	var logErr error
	if result.Error != nil {
		slog.Warn("pause clip encoding failed", "error", result.Error)
		if m.logger != nil {
			logErr = m.logger.LogClip(eventlog.ClipFailed, result.Filename, 0, result.Error.Error())
		}
	} else if m.logger != nil {
		logErr = m.logger.LogClip(eventlog.ClipSaved, result.Filename, result.FileSize, "")
	}
	if logErr != nil {
		slog.Warn("failed to log clip event", "error", logErr)
	}

	m.mu.Lock()
	cb := m.onClipReady
	m.mu.Unlock()
	if cb != nil {
		cb(result)
	}
}

func (m *Manager) enabled() bool {
	return m.cfg.Snapshot().AuditClipsEnabled
}

// parseClipTime extracts the capture time from a clip filename such as
// 2026-01-15_14-32-05.mp3.
func parseClipTime(name string) (time.Time, bool) {
	if !strings.HasSuffix(name, clipExtension) {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02_15-04-05", strings.TrimSuffix(name, clipExtension))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
