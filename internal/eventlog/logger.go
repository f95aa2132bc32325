// Package eventlog provides unified event logging for the recorder.
// It captures session transitions (started, calibrated, paused, resumed,
// stopped), upload lifecycle events and maintenance events in a single
// JSON lines file.
package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

// EventType represents the type of event.
type EventType string

// Session event types.
const (
	SessionStarted    EventType = "session_started"
	SessionCalibrated EventType = "session_calibrated"
	SessionPaused     EventType = "session_paused"
	SessionResumed    EventType = "session_resumed"
	SessionStopped    EventType = "session_stopped"
	SessionAborted    EventType = "session_aborted"
	SessionReset      EventType = "session_reset"
	SessionError      EventType = "session_error"
)

// Upload event types.
const (
	UploadQueued    EventType = "upload_queued"
	UploadCompleted EventType = "upload_completed"
	UploadFailed    EventType = "upload_failed"
	UploadRetry     EventType = "upload_retry"
	UploadAbandoned EventType = "upload_abandoned"
)

// Maintenance event types.
const (
	CleanupCompleted EventType = "cleanup_completed"
	ClipSaved        EventType = "clip_saved"
	ClipFailed       EventType = "clip_failed"
)

// Event represents a single log entry with type-specific details.
type Event struct {
	Timestamp time.Time `json:"ts"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Message   string    `json:"msg,omitempty"`
	Details   any       `json:"details,omitempty"`
}

// SessionDetails contains session-transition event details.
type SessionDetails struct {
	From       string  `json:"from,omitempty"`
	To         string  `json:"to,omitempty"`
	SilenceMs  int64   `json:"silence_ms,omitempty"`
	NoiseFloor float64 `json:"noise_floor,omitempty"`
	Threshold  float64 `json:"threshold,omitempty"`
	Output     string  `json:"output,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// UploadDetails contains upload-specific event details.
type UploadDetails struct {
	Filename   string `json:"filename,omitempty"`
	S3Key      string `json:"s3_key,omitempty"`
	SizeBytes  int64  `json:"size_bytes,omitempty"`
	RetryCount int    `json:"retry,omitempty"`
	Error      string `json:"error,omitempty"`
}

// MaintenanceDetails contains cleanup and audit clip event details.
type MaintenanceDetails struct {
	Filename     string `json:"filename,omitempty"`
	SizeBytes    int64  `json:"size_bytes,omitempty"`
	FilesDeleted int    `json:"files_deleted,omitempty"`
	Storage      string `json:"storage,omitempty"` // "local" or "s3" for cleanup
	Error        string `json:"error,omitempty"`
}

// Logger writes events to a JSON lines file.
type Logger struct {
	mu       sync.Mutex
	filePath string
	file     *os.File
	encoder  *json.Encoder
}

// DefaultLogPath returns the platform-specific log file path.
func DefaultLogPath(port int) string {
	switch runtime.GOOS {
	case "windows":
		// %PROGRAMDATA% is typically C:\ProgramData
		programData := os.Getenv("PROGRAMDATA")
		if programData == "" {
			programData = `C:\ProgramData`
		}
		return filepath.Join(programData, "deadair", "logs", fmt.Sprintf("%d", port), "deadair.jsonl")
	default: // linux, darwin
		//nolint:gocritic // Intentional absolute path for Unix systems
		return filepath.Join("/var/log/deadair", fmt.Sprintf("%d", port), "deadair.jsonl")
	}
}

// NewLogger creates a new event logger at the specified path.
func NewLogger(filePath string) (*Logger, error) {
	// Ensure directory exists
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	// Open file for appending
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	return &Logger{
		filePath: filePath,
		file:     file,
		encoder:  json.NewEncoder(file),
	}, nil
}

// Log writes an event to the log file.
func (l *Logger) Log(event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	return l.encoder.Encode(event)
}

// LogSession logs a session transition event.
func (l *Logger) LogSession(eventType EventType, sessionID string, details *SessionDetails) error {
	return l.Log(&Event{
		Timestamp: time.Now(),
		Type:      eventType,
		SessionID: sessionID,
		Details:   details,
	})
}

// LogUpload logs an upload lifecycle event.
func (l *Logger) LogUpload(eventType EventType, filename, s3Key string, sizeBytes int64, retryCount int, errMsg string) error {
	return l.Log(&Event{
		Timestamp: time.Now(),
		Type:      eventType,
		Details: &UploadDetails{
			Filename:   filename,
			S3Key:      s3Key,
			SizeBytes:  sizeBytes,
			RetryCount: retryCount,
			Error:      errMsg,
		},
	})
}

// LogCleanup logs a retention cleanup run.
func (l *Logger) LogCleanup(filesDeleted int, storage string) error {
	return l.Log(&Event{
		Timestamp: time.Now(),
		Type:      CleanupCompleted,
		Details: &MaintenanceDetails{
			FilesDeleted: filesDeleted,
			Storage:      storage,
		},
	})
}

// LogClip logs an audit clip capture result.
func (l *Logger) LogClip(eventType EventType, filename string, sizeBytes int64, errMsg string) error {
	return l.Log(&Event{
		Timestamp: time.Now(),
		Type:      eventType,
		Details: &MaintenanceDetails{
			Filename:  filename,
			SizeBytes: sizeBytes,
			Error:     errMsg,
		},
	})
}

// Close closes the log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Reopen switches the logger to a new file path. The old file is closed
// only after the new one opens, so a bad path keeps the logger intact.
func (l *Logger) Reopen(filePath string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if filePath == l.filePath {
		return nil
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	if l.file != nil {
		if err := l.file.Close(); err != nil {
			slog.Warn("failed to close previous event log", "path", l.filePath, "error", err)
		}
	}

	l.filePath = filePath
	l.file = file
	l.encoder = json.NewEncoder(file)
	return nil
}

// Path returns the path to the log file.
func (l *Logger) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.filePath
}

// SessionEventFor maps a transition reason to its event type.
// Unknown reasons map to SessionError so they stay visible in the log.
func SessionEventFor(reason string) EventType {
	switch reason {
	case "start":
		return SessionStarted
	case "calibrated":
		return SessionCalibrated
	case "silence":
		return SessionPaused
	case "sound":
		return SessionResumed
	case "stop":
		return SessionStopped
	case "abort":
		return SessionAborted
	case "reset":
		return SessionReset
	default:
		return SessionError
	}
}

// TypeFilter specifies which event types to include when reading.
type TypeFilter string

// Filter constants for ReadLast.
const (
	FilterAll         TypeFilter = ""
	FilterSession     TypeFilter = "session"
	FilterUpload      TypeFilter = "upload"
	FilterMaintenance TypeFilter = "maintenance"
)

// MaxReadLimit is the maximum number of events that can be read at once.
// This prevents denial-of-service via excessive memory allocation.
const MaxReadLimit = 500

// ReadLast reads events from the log file with pagination support.
// Returns up to n events starting from offset, filtered by type.
// Events are returned in reverse chronological order (newest first).
// The n parameter is capped at MaxReadLimit to prevent excessive memory allocation.
func ReadLast(filePath string, n, offset int, filter TypeFilter) ([]Event, bool, error) {
	if n > MaxReadLimit {
		n = MaxReadLimit
	}
	if n <= 0 {
		return []Event{}, false, nil
	}
	if offset < 0 {
		offset = 0
	}

	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []Event{}, false, nil
		}
		return nil, false, err
	}
	defer file.Close() //nolint:errcheck // Read-only operation, close error not critical

	// Read all lines
	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, false, err
	}

	// Parse events in reverse order (newest first), applying filter
	events := make([]Event, 0, n)
	hasMore := false
	matched := 0
	for i := len(lines) - 1; i >= 0; i-- {
		var event Event
		if err := json.Unmarshal([]byte(lines[i]), &event); err != nil {
			continue // Skip malformed lines
		}

		if !matchesFilter(event.Type, filter) {
			continue
		}

		switch {
		case matched < offset:
			// Skip events until we reach the offset
		case len(events) < n:
			events = append(events, event)
		default:
			// One more match beyond the requested page
			hasMore = true
		}
		if hasMore {
			break
		}
		matched++
	}

	return events, hasMore, nil
}

// matchesFilter reports whether an event type passes the given filter.
func matchesFilter(t EventType, filter TypeFilter) bool {
	switch filter {
	case FilterSession:
		return IsSessionEvent(t)
	case FilterUpload:
		return IsUploadEvent(t)
	case FilterMaintenance:
		return IsMaintenanceEvent(t)
	default:
		return true
	}
}

// IsSessionEvent returns true if the event type is a session transition event.
func IsSessionEvent(t EventType) bool {
	return t == SessionStarted || t == SessionCalibrated || t == SessionPaused ||
		t == SessionResumed || t == SessionStopped || t == SessionAborted ||
		t == SessionReset || t == SessionError
}

// IsUploadEvent returns true if the event type is an upload lifecycle event.
func IsUploadEvent(t EventType) bool {
	return t == UploadQueued || t == UploadCompleted || t == UploadFailed ||
		t == UploadRetry || t == UploadAbandoned
}

// IsMaintenanceEvent returns true if the event type is a cleanup or clip event.
func IsMaintenanceEvent(t EventType) bool {
	return t == CleanupCompleted || t == ClipSaved || t == ClipFailed
}
