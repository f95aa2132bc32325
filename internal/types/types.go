// Package types provides shared type definitions used across the recorder.
package types

import (
	"time"
)

// RecordingState represents the lifecycle state of a recording session.
type RecordingState string

const (
	// StateIdle indicates no session is active.
	StateIdle RecordingState = "idle"
	// StateCalibrating indicates the noise-floor baseline is being collected.
	StateCalibrating RecordingState = "calibrating"
	// StateRecording indicates capture is running.
	StateRecording RecordingState = "recording"
	// StatePaused indicates capture is paused while the signal is silent.
	StatePaused RecordingState = "paused"
	// StateStopped indicates the session ended and the output is finalized.
	StateStopped RecordingState = "stopped"
)

// Active reports whether the sampling loop runs in this state.
// Classification only happens while recording or paused; it is meaningless
// before calibration completes and after the session stops.
func (s RecordingState) Active() bool {
	return s == StateRecording || s == StatePaused
}

// ProcessState represents the state of a managed capture or sink process.
type ProcessState string

const (
	// ProcessStopped indicates the process is not running.
	ProcessStopped ProcessState = "stopped"
	// ProcessStarting indicates the process is initializing.
	ProcessStarting ProcessState = "starting"
	// ProcessRunning indicates the process is active.
	ProcessRunning ProcessState = "running"
	// ProcessStopping indicates the process is shutting down.
	ProcessStopping ProcessState = "stopping"
	// ProcessError indicates the process failed.
	ProcessError ProcessState = "error"
)

// ProcessStatus contains runtime status for a managed process.
type ProcessStatus struct {
	State      ProcessState `json:"state"`                 // Current process state
	RetryCount int          `json:"retry_count,omitempty"` // Current retry attempt
	MaxRetries int          `json:"max_retries,omitempty"` // Max allowed retries
	Error      string       `json:"error,omitempty"`       // Error message
}

// Silence detection defaults. All four are configurable; these values apply
// when the configuration omits them.
const (
	// DefaultCalibrationDuration is the noise-floor collection window.
	DefaultCalibrationDuration = 3000 * time.Millisecond
	// DefaultSilenceDebounce is how long silence must persist uninterrupted
	// before capture pauses. Resume has no debounce.
	DefaultSilenceDebounce = 500 * time.Millisecond
	// DefaultThresholdMultiplier scales the noise floor into the silence threshold.
	DefaultThresholdMultiplier = 1.8
	// DefaultSpectrumWindow is the FFT window size in samples. Must be a power of two.
	DefaultSpectrumWindow = 256
)

// Fixed detection timing. These are not configuration surface.
const (
	// TickInterval is the cadence of the controller step loop.
	TickInterval = 50 * time.Millisecond
	// CalibrationSampleInterval is the cadence of baseline sub-samples.
	CalibrationSampleInterval = 50 * time.Millisecond
	// CalibrationProgressInterval is the cadence of remaining-time updates.
	// Purely observational; consumers display it, nothing acts on it.
	CalibrationProgressInterval = 100 * time.Millisecond
	// MinNoiseFloor is the lowest allowed noise floor. A zero floor would
	// derive a zero threshold and classify everything as sound.
	MinNoiseFloor = 1.0
)

const (
	// InitialRetryDelay is the starting delay between retry attempts.
	InitialRetryDelay = 3000 * time.Millisecond
	// MaxRetryDelay is the maximum delay between retry attempts.
	MaxRetryDelay = 60000 * time.Millisecond
	// MaxRetries is the maximum number of retry attempts for the audio source.
	MaxRetries = 10
	// SuccessThreshold is the duration after which retry count resets.
	SuccessThreshold = 30000 * time.Millisecond
)

const (
	// ShutdownTimeout is the duration to wait for graceful shutdown.
	ShutdownTimeout = 3000 * time.Millisecond
	// PollInterval is the interval for polling process state.
	PollInterval = 50 * time.Millisecond
)

// Audio format constants for PCM capture and analysis.
const (
	// SampleRate is the audio sample rate in Hz.
	SampleRate = 48000
	// Channels is the number of audio channels (stereo).
	Channels = 2
)

// Orientation determines the capture resolution hint.
type Orientation string

// Supported orientations.
const (
	OrientationLandscape Orientation = "landscape"
	OrientationPortrait  Orientation = "portrait"
)

// Resolution returns the width and height hint for this orientation.
func (o Orientation) Resolution() (width, height int) {
	if o == OrientationPortrait {
		return 720, 1280
	}
	return 1280, 720
}

// VideoCodec represents a video codec preset for capture encoding.
type VideoCodec string

// Supported video codecs.
const (
	CodecH264 VideoCodec = "h264" // H.264/AAC in MP4
	CodecHEVC VideoCodec = "hevc" // H.265/AAC in MP4
	CodecVP9  VideoCodec = "vp9"  // VP9/Opus in WebM
)

// VideoPreset defines FFmpeg encoding parameters for a codec.
type VideoPreset struct {
	Args      []string // FFmpeg video+audio codec arguments
	Container string   // FFmpeg container format for the final output
	Ext       string   // Final output file extension
}

// VideoPresets maps codec types to their FFmpeg configuration.
var VideoPresets = map[VideoCodec]VideoPreset{
	CodecH264: {[]string{"-c:v", "libx264", "-preset", "veryfast", "-crf", "23", "-c:a", "aac", "-b:a", "128k"}, "mp4", ".mp4"},
	CodecHEVC: {[]string{"-c:v", "libx265", "-preset", "fast", "-crf", "26", "-tag:v", "hvc1", "-c:a", "aac", "-b:a", "128k"}, "mp4", ".mp4"},
	CodecVP9:  {[]string{"-c:v", "libvpx-vp9", "-b:v", "0", "-crf", "32", "-c:a", "libopus", "-b:a", "96k"}, "webm", ".webm"},
}

// CodecArgsFor returns FFmpeg codec arguments for the given codec.
func CodecArgsFor(codec VideoCodec) []string {
	if preset, ok := VideoPresets[codec]; ok {
		return preset.Args
	}
	return VideoPresets[CodecH264].Args
}

// ContainerFor returns the FFmpeg container format for the given codec.
func ContainerFor(codec VideoCodec) string {
	if preset, ok := VideoPresets[codec]; ok {
		return preset.Container
	}
	return VideoPresets[CodecH264].Container
}

// ExtFor returns the final output file extension for the given codec.
func ExtFor(codec VideoCodec) string {
	if preset, ok := VideoPresets[codec]; ok {
		return preset.Ext
	}
	return VideoPresets[CodecH264].Ext
}

// StorageMode determines where finished recordings are saved.
type StorageMode string

// Supported storage modes.
const (
	StorageLocal StorageMode = "local" // Save only to local filesystem
	StorageS3    StorageMode = "s3"    // Upload only to S3
	StorageBoth  StorageMode = "both"  // Save locally AND upload to S3
)

// DefaultRetentionDays is the default number of days to keep recordings.
const DefaultRetentionDays = 90

// DefaultAuditClipRetentionDays is the default number of days to keep pause audit clips.
const DefaultAuditClipRetentionDays = 7

// AuditClipConfig contains configuration for pause audit clip capture.
type AuditClipConfig struct {
	Enabled       bool `json:"enabled"`        // Whether clip capture is active
	RetentionDays int  `json:"retention_days"` // Days to keep clip files (default 7)
}

// Device represents an available capture device.
type Device struct {
	ID   string `json:"id"`   // Device identifier
	Name string `json:"name"` // Device display name
}

// AudioLevels contains current audio level measurements.
type AudioLevels struct {
	Left      float64 `json:"left"`                 // RMS level in dB
	Right     float64 `json:"right"`                // RMS level in dB
	PeakLeft  float64 `json:"peak_left"`            // Peak level in dB
	PeakRight float64 `json:"peak_right"`           // Peak level in dB
	Energy    float64 `json:"energy"`               // Mean spectral energy (0-255 scale)
	Silent    bool    `json:"silent,omitzero"`      // True if energy below threshold
	ClipLeft  int     `json:"clip_left,omitzero"`   // Clipped samples on left channel
	ClipRight int     `json:"clip_right,omitzero"`  // Clipped samples on right channel
}

// SessionInfo summarizes the active recording session.
type SessionInfo struct {
	ID                     string         `json:"id,omitzero"`                       // Session identifier
	State                  RecordingState `json:"state"`                             // Current state
	StartedAt              string         `json:"started_at,omitzero"`               // RFC3339 session start
	CalibrationRemainingMs int64          `json:"calibration_remaining_ms,omitzero"` // Countdown during calibration
	NoiseFloor             float64        `json:"noise_floor,omitzero"`              // Calibrated baseline energy
	SilenceThreshold       float64        `json:"silence_threshold,omitzero"`        // Derived pause threshold
	SilenceDurationMs      int64          `json:"silence_duration_ms,omitzero"`      // Current silence run length
	Segments               int            `json:"segments,omitzero"`                 // Capture segments written
	PausedTotalMs          int64          `json:"paused_total_ms,omitzero"`          // Dead air removed so far
	OutputFile             string         `json:"output_file,omitzero"`              // Finalized output path
	LastError              string         `json:"last_error,omitzero"`               // Most recent session error
}

// MQTTConfig contains settings for publishing state transitions to an MQTT broker.
type MQTTConfig struct {
	Broker   string `json:"broker,omitempty"`    // Broker URL (tcp://host:1883)
	Topic    string `json:"topic,omitempty"`     // Topic prefix for state messages
	ClientID string `json:"client_id,omitempty"` // MQTT client identifier
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	QoS      int    `json:"qos,omitempty"` // Delivery QoS (0-2)
}

// GraphConfig contains Microsoft Graph API settings for email notifications.
type GraphConfig struct {
	TenantID     string `json:"tenant_id,omitempty"`     // Azure AD tenant ID
	ClientID     string `json:"client_id,omitempty"`     // App registration client ID
	ClientSecret string `json:"client_secret,omitempty"` // App registration client secret
	FromAddress  string `json:"from_address,omitempty"`  // Shared mailbox address (sender)
	Recipients   string `json:"recipients,omitempty"`    // Comma-separated recipients
}

// ZabbixConfig contains settings for sending trapper items to a Zabbix server.
type ZabbixConfig struct {
	Server    string `json:"server,omitempty"`
	Port      int    `json:"port,omitempty"`
	Host      string `json:"host,omitempty"`
	Key       string `json:"key,omitempty"`
	TimeoutMs int    `json:"timeout_ms,omitempty"`
}

// SecretExpiryInfo contains client secret expiration data.
type SecretExpiryInfo struct {
	ExpiresAt   string `json:"expires_at,omitempty"`   // RFC3339 expiration timestamp
	ExpiresSoon bool   `json:"expires_soon,omitempty"` // True if expires within 30 days
	DaysLeft    int    `json:"days_left,omitempty"`    // Days until expiration
	Error       string `json:"error,omitempty"`        // Error message if check failed
}

// VersionInfo contains version comparison data.
type VersionInfo struct {
	Current     string `json:"current"`              // Current version
	Latest      string `json:"latest,omitempty"`     // Latest available version
	UpdateAvail bool   `json:"update_available"`     // Update is available
	Commit      string `json:"commit,omitempty"`     // Git commit hash
	BuildTime   string `json:"build_time,omitempty"` // Build timestamp
}
