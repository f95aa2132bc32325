// Package config provides application configuration management.
package config

import (
	"cmp"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/castwork/deadair/internal/types"
	"github.com/castwork/deadair/internal/util"
)

// Configuration defaults are used when values are not specified.
const (
	DefaultWebPort             = 8080
	DefaultRecorderName        = "DeadAir Recorder"
	DefaultFramerate           = 30
	DefaultCalibrationMs       = 3000
	DefaultSilenceDebounceMs   = 500
	DefaultThresholdMultiplier = types.DefaultThresholdMultiplier
	DefaultSpectrumWindow      = types.DefaultSpectrumWindow
	DefaultTickMs              = 50
	DefaultOutputDir           = "/var/lib/deadair/recordings"
)

// Validation patterns define regular expressions for configuration value validation.
var (
	// Recorder name: any printable characters except control chars (blocks CRLF injection in emails)
	recorderNamePattern = regexp.MustCompile(`^[^\x00-\x1F\x7F]+$`)
)

// SystemConfig holds system-level settings that require restart.
type SystemConfig struct {
	FFmpegPath string `json:"ffmpeg_path"` // Path to FFmpeg binary (empty = use PATH)
	Port       int    `json:"port"`        // HTTP server port
	APIKey     string `json:"api_key"`     // API key for REST and WebSocket access
}

// RecorderConfig holds capture identity and device settings.
type RecorderConfig struct {
	Name        string            `json:"name"`        // Display name used in notifications
	AudioInput  string            `json:"audio_input"` // Audio input device identifier
	VideoInput  string            `json:"video_input"` // Video input device identifier
	Orientation types.Orientation `json:"orientation"` // Capture orientation (landscape/portrait)
	Framerate   int               `json:"framerate"`   // Capture framerate
	Codec       types.VideoCodec  `json:"codec"`       // Video codec preset
}

// DetectionConfig holds calibration and silence detection tunables.
type DetectionConfig struct {
	CalibrationMs       int64   `json:"calibration_ms"`       // Noise-floor collection window
	SilenceDebounceMs   int64   `json:"silence_debounce_ms"`  // Uninterrupted silence before pause
	ThresholdMultiplier float64 `json:"threshold_multiplier"` // Noise floor to threshold scale
	SpectrumWindow      int     `json:"spectrum_window"`      // FFT window size (power of two)
	TickMs              int64   `json:"tick_ms"`              // Controller step cadence
}

// StorageConfig holds recording output and retention settings.
type StorageConfig struct {
	OutputDir     string            `json:"output_dir"`     // Directory for finished recordings
	TempDir       string            `json:"temp_dir"`       // Directory for in-progress segments
	Mode          types.StorageMode `json:"mode"`           // local, s3, or both
	RetentionDays int               `json:"retention_days"` // Days to keep recordings (0 = keep forever)

	// S3 configuration (required for s3/both modes)
	S3Endpoint        string `json:"s3_endpoint"`          // S3-compatible endpoint URL
	S3Bucket          string `json:"s3_bucket"`            // S3 bucket name
	S3AccessKeyID     string `json:"s3_access_key_id"`     // S3 access key ID
	S3SecretAccessKey string `json:"s3_secret_access_key"` // S3 secret access key
}

// WebhookConfig holds webhook notification settings.
type WebhookConfig struct {
	URL string `json:"url"` // Webhook URL for pause/resume and session alerts
}

// EmailConfig holds Microsoft Graph email notification settings.
type EmailConfig struct {
	TenantID     string `json:"tenant_id"`     // Azure AD tenant ID
	ClientID     string `json:"client_id"`     // App registration client ID
	ClientSecret string `json:"client_secret"` // App registration client secret
	FromAddress  string `json:"from_address"`  // Shared mailbox sender address
	Recipients   string `json:"recipients"`    // Comma-separated recipient addresses
}

// MQTTNotifyConfig holds MQTT state publishing settings.
type MQTTNotifyConfig struct {
	Broker   string `json:"broker"`    // Broker URL (tcp://host:1883)
	Topic    string `json:"topic"`     // Topic prefix for state messages
	ClientID string `json:"client_id"` // MQTT client identifier
	Username string `json:"username"`
	Password string `json:"password"`
	QoS      int    `json:"qos"` // Delivery QoS (0-2)
}

// ZabbixNotifyConfig holds Zabbix trapper settings.
type ZabbixNotifyConfig struct {
	Server    string `json:"server"`
	Port      int    `json:"port"`
	Host      string `json:"host"`
	Key       string `json:"key"`
	TimeoutMs int    `json:"timeout_ms"`
}

// NotificationsConfig holds all notification channel settings.
type NotificationsConfig struct {
	Webhook WebhookConfig      `json:"webhook"` // Webhook settings
	Email   EmailConfig        `json:"email"`   // Email settings
	MQTT    MQTTNotifyConfig   `json:"mqtt"`    // MQTT settings
	Zabbix  ZabbixNotifyConfig `json:"zabbix"`  // Zabbix settings
}

// EventLogConfig holds event log file settings.
type EventLogConfig struct {
	Path string `json:"path"` // JSONL event log path (empty = default location)
}

// AuditClipsConfig holds pause audit clip settings.
type AuditClipsConfig struct {
	Enabled       bool `json:"enabled"`        // Capture MP3 clips around auto-pauses
	RetentionDays int  `json:"retention_days"` // Days to keep clips (0 = keep forever)
}

// Config holds all application configuration. It is safe for concurrent use.
type Config struct {
	System        SystemConfig        `json:"system"`
	Recorder      RecorderConfig      `json:"recorder"`
	Detection     DetectionConfig     `json:"detection"`
	Storage       StorageConfig       `json:"storage"`
	Notifications NotificationsConfig `json:"notifications"`
	EventLog      EventLogConfig      `json:"event_log"`
	AuditClips    AuditClipsConfig    `json:"audit_clips"`

	mu       sync.RWMutex
	filePath string
}

// New creates a new Config with default values.
func New(filePath string) *Config {
	return &Config{
		System: SystemConfig{
			Port: DefaultWebPort,
		},
		Recorder: RecorderConfig{
			Name:        DefaultRecorderName,
			Orientation: types.OrientationLandscape,
			Framerate:   DefaultFramerate,
			Codec:       types.CodecH264,
		},
		Detection: DetectionConfig{
			CalibrationMs:       DefaultCalibrationMs,
			SilenceDebounceMs:   DefaultSilenceDebounceMs,
			ThresholdMultiplier: DefaultThresholdMultiplier,
			SpectrumWindow:      DefaultSpectrumWindow,
			TickMs:              DefaultTickMs,
		},
		Storage: StorageConfig{
			OutputDir:     DefaultOutputDir,
			Mode:          types.StorageLocal,
			RetentionDays: types.DefaultRetentionDays,
		},
		AuditClips: AuditClipsConfig{
			RetentionDays: types.DefaultAuditClipRetentionDays,
		},
		filePath: filePath,
	}
}

// Load reads config from file, creating a default if none exists.
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.filePath)
	if os.IsNotExist(err) {
		return c.saveLocked()
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return util.WrapError("parse config", err)
	}

	c.applyDefaults()

	if err := c.validate(); err != nil {
		return err
	}

	return nil
}

// Reload re-reads the config file and swaps in the new values.
// Invalid or unreadable files leave the current configuration untouched.
func (c *Config) Reload() error {
	fresh := New(c.filePath)

	data, err := os.ReadFile(c.filePath)
	if err != nil {
		return util.WrapError("read config", err)
	}
	if err := json.Unmarshal(data, fresh); err != nil {
		return util.WrapError("parse config", err)
	}
	fresh.applyDefaults()
	if err := fresh.validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.System = fresh.System
	c.Recorder = fresh.Recorder
	c.Detection = fresh.Detection
	c.Storage = fresh.Storage
	c.Notifications = fresh.Notifications
	c.EventLog = fresh.EventLog
	c.AuditClips = fresh.AuditClips
	return nil
}

// validate checks all configuration fields for correctness.
func (c *Config) validate() error {
	name := c.Recorder.Name
	if name == "" || len(name) > 30 || !recorderNamePattern.MatchString(name) {
		return fmt.Errorf("invalid recorder name %q: must be 1-30 printable characters", name)
	}

	switch c.Recorder.Orientation {
	case types.OrientationLandscape, types.OrientationPortrait:
	default:
		return fmt.Errorf("invalid orientation %q: must be landscape or portrait", c.Recorder.Orientation)
	}

	if _, ok := types.VideoPresets[c.Recorder.Codec]; !ok {
		return fmt.Errorf("invalid codec %q: must be h264, hevc or vp9", c.Recorder.Codec)
	}

	d := c.Detection
	if d.CalibrationMs < 500 || d.CalibrationMs > 60000 {
		return fmt.Errorf("invalid calibration_ms %d: must be 500-60000", d.CalibrationMs)
	}
	if d.SilenceDebounceMs < 100 || d.SilenceDebounceMs > 10000 {
		return fmt.Errorf("invalid silence_debounce_ms %d: must be 100-10000", d.SilenceDebounceMs)
	}
	if d.ThresholdMultiplier < 1.0 || d.ThresholdMultiplier > 10.0 {
		return fmt.Errorf("invalid threshold_multiplier %g: must be 1.0-10.0", d.ThresholdMultiplier)
	}
	if !isPowerOfTwo(d.SpectrumWindow) || d.SpectrumWindow < 32 || d.SpectrumWindow > 32768 {
		return fmt.Errorf("invalid spectrum_window %d: must be a power of two between 32 and 32768", d.SpectrumWindow)
	}
	if d.TickMs < 10 || d.TickMs > 1000 {
		return fmt.Errorf("invalid tick_ms %d: must be 10-1000", d.TickMs)
	}

	switch c.Storage.Mode {
	case types.StorageLocal, types.StorageS3, types.StorageBoth:
	default:
		return fmt.Errorf("invalid storage mode %q: must be local, s3 or both", c.Storage.Mode)
	}
	if c.Storage.Mode != types.StorageS3 {
		if err := util.ValidatePath("output_dir", c.Storage.OutputDir); err != nil {
			return err
		}
	}
	if c.Storage.RetentionDays < 0 {
		return fmt.Errorf("invalid retention_days %d: must be >= 0", c.Storage.RetentionDays)
	}

	return nil
}

// isPowerOfTwo reports whether n is a positive power of two.
func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// applyDefaults sets default values for zero-value fields.
func (c *Config) applyDefaults() {
	if c.System.Port == 0 {
		c.System.Port = DefaultWebPort
	}
	if c.Recorder.Name == "" {
		c.Recorder.Name = DefaultRecorderName
	}
	if c.Recorder.Orientation == "" {
		c.Recorder.Orientation = types.OrientationLandscape
	}
	if c.Recorder.Framerate == 0 {
		c.Recorder.Framerate = DefaultFramerate
	}
	if c.Recorder.Codec == "" {
		c.Recorder.Codec = types.CodecH264
	}
	if c.Detection.CalibrationMs == 0 {
		c.Detection.CalibrationMs = DefaultCalibrationMs
	}
	if c.Detection.SilenceDebounceMs == 0 {
		c.Detection.SilenceDebounceMs = DefaultSilenceDebounceMs
	}
	if c.Detection.ThresholdMultiplier == 0 {
		c.Detection.ThresholdMultiplier = DefaultThresholdMultiplier
	}
	if c.Detection.SpectrumWindow == 0 {
		c.Detection.SpectrumWindow = DefaultSpectrumWindow
	}
	if c.Detection.TickMs == 0 {
		c.Detection.TickMs = DefaultTickMs
	}
	if c.Storage.OutputDir == "" {
		c.Storage.OutputDir = DefaultOutputDir
	}
	if c.Storage.Mode == "" {
		c.Storage.Mode = types.StorageLocal
	}
	// Retention days are not defaulted: an explicit 0 means keep forever.
	// Fresh configs get the defaults from New.
}

// saveLocked persists configuration. Caller must hold c.mu.
func (c *Config) saveLocked() error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return util.WrapError("marshal config", err)
	}

	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return util.WrapError("create config directory", err)
	}

	if err := os.WriteFile(c.filePath, data, 0o600); err != nil {
		return util.WrapError("write config", err)
	}

	return nil
}

// FilePath returns the path of the backing config file.
func (c *Config) FilePath() string {
	return c.filePath
}

// --- Getters for individual settings ---

// AudioInput returns the configured audio input device.
func (c *Config) AudioInput() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Recorder.AudioInput
}

// VideoInput returns the configured video input device.
func (c *Config) VideoInput() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Recorder.VideoInput
}

// GetFFmpegPath returns the configured FFmpeg binary path.
func (c *Config) GetFFmpegPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.System.FFmpegPath
}

// APIKey returns the configured API key.
func (c *Config) APIKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.System.APIKey
}

// EventLogPath returns the configured event log path.
func (c *Config) EventLogPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.EventLog.Path
}

// GraphConfig returns a copy of the current Graph/Email configuration.
func (c *Config) GraphConfig() types.GraphConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return types.GraphConfig{
		TenantID:     c.Notifications.Email.TenantID,
		ClientID:     c.Notifications.Email.ClientID,
		ClientSecret: c.Notifications.Email.ClientSecret,
		FromAddress:  c.Notifications.Email.FromAddress,
		Recipients:   c.Notifications.Email.Recipients,
	}
}

// --- Setters for individual settings ---

// SetAudioInput updates the audio input device and saves the configuration.
func (c *Config) SetAudioInput(input string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Recorder.AudioInput = input
	return c.saveLocked()
}

// SetVideoInput updates the video input device and saves the configuration.
func (c *Config) SetVideoInput(input string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Recorder.VideoInput = input
	return c.saveLocked()
}

// SetOrientation updates the capture orientation and saves the configuration.
func (c *Config) SetOrientation(o types.Orientation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Recorder.Orientation = o
	return c.saveLocked()
}

// SetCodec updates the video codec preset and saves the configuration.
func (c *Config) SetCodec(codec types.VideoCodec) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.Recorder.Codec
	c.Recorder.Codec = codec
	if err := c.validate(); err != nil {
		c.Recorder.Codec = old
		return err
	}
	return c.saveLocked()
}

// SetDetection updates all detection tunables at once and saves the configuration.
func (c *Config) SetDetection(d DetectionConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.Detection
	c.Detection = d
	if err := c.validate(); err != nil {
		c.Detection = old
		return err
	}
	return c.saveLocked()
}

// SetStorage updates output, retention and S3 settings at once and saves
// the configuration.
func (c *Config) SetStorage(s StorageConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.Storage
	c.Storage = s
	if err := c.validate(); err != nil {
		c.Storage = old
		return err
	}
	return c.saveLocked()
}

// SetWebhookURL updates the webhook URL and saves the configuration.
func (c *Config) SetWebhookURL(url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.Webhook.URL = url
	return c.saveLocked()
}

// SetEventLogPath updates the event log path and saves the configuration.
func (c *Config) SetEventLogPath(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.EventLog.Path = path
	return c.saveLocked()
}

// SetGraphConfig updates all Microsoft Graph/Email configuration fields and saves.
func (c *Config) SetGraphConfig(tenantID, clientID, clientSecret, fromAddress, recipients string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.Email.TenantID = tenantID
	c.Notifications.Email.ClientID = clientID
	c.Notifications.Email.ClientSecret = clientSecret
	c.Notifications.Email.FromAddress = fromAddress
	c.Notifications.Email.Recipients = recipients
	return c.saveLocked()
}

// SetMQTT updates the MQTT notification settings and saves the configuration.
func (c *Config) SetMQTT(m MQTTNotifyConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.MQTT = m
	return c.saveLocked()
}

// SetZabbix updates the Zabbix notification settings and saves the configuration.
func (c *Config) SetZabbix(z ZabbixNotifyConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.Zabbix = z
	return c.saveLocked()
}

// SetAuditClips updates the audit clip settings and saves the configuration.
func (c *Config) SetAuditClips(a AuditClipsConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.AuditClips = a
	return c.saveLocked()
}

// SetAPIKey updates the API key and saves the configuration.
func (c *Config) SetAPIKey(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.System.APIKey = key
	return c.saveLocked()
}

// OverridePort replaces the web port for this process without persisting it.
// Backs the DEADAIR_PORT environment variable.
func (c *Config) OverridePort(port int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.System.Port = port
}

// --- Snapshot for atomic reads ---

// Snapshot is a point-in-time copy of configuration values.
type Snapshot struct {
	// System
	WebPort    int
	APIKey     string
	FFmpegPath string

	// Recorder
	RecorderName string
	AudioInput   string
	VideoInput   string
	Orientation  types.Orientation
	Framerate    int
	Codec        types.VideoCodec

	// Detection
	CalibrationMs       int64
	SilenceDebounceMs   int64
	ThresholdMultiplier float64
	SpectrumWindow      int
	TickMs              int64

	// Storage
	OutputDir         string
	TempDir           string
	StorageMode       types.StorageMode
	RetentionDays     int
	S3Endpoint        string
	S3Bucket          string
	S3AccessKeyID     string
	S3SecretAccessKey string

	// Notifications
	WebhookURL        string
	GraphTenantID     string
	GraphClientID     string
	GraphClientSecret string
	GraphFromAddress  string
	GraphRecipients   string
	MQTT              MQTTNotifyConfig
	Zabbix            ZabbixNotifyConfig

	// Event log and audit clips
	EventLogPath       string
	AuditClipsEnabled  bool
	AuditRetentionDays int
}

// Snapshot returns a point-in-time copy of all configuration values.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		// System
		WebPort:    c.System.Port,
		APIKey:     c.System.APIKey,
		FFmpegPath: c.System.FFmpegPath,

		// Recorder
		RecorderName: c.Recorder.Name,
		AudioInput:   c.Recorder.AudioInput,
		VideoInput:   c.Recorder.VideoInput,
		Orientation:  c.Recorder.Orientation,
		Framerate:    cmp.Or(c.Recorder.Framerate, DefaultFramerate),
		Codec:        c.Recorder.Codec,

		// Detection (with defaults)
		CalibrationMs:       cmp.Or(c.Detection.CalibrationMs, DefaultCalibrationMs),
		SilenceDebounceMs:   cmp.Or(c.Detection.SilenceDebounceMs, DefaultSilenceDebounceMs),
		ThresholdMultiplier: cmp.Or(c.Detection.ThresholdMultiplier, DefaultThresholdMultiplier),
		SpectrumWindow:      cmp.Or(c.Detection.SpectrumWindow, DefaultSpectrumWindow),
		TickMs:              cmp.Or(c.Detection.TickMs, DefaultTickMs),

		// Storage
		OutputDir:         c.Storage.OutputDir,
		TempDir:           c.Storage.TempDir,
		StorageMode:       c.Storage.Mode,
		RetentionDays:     c.Storage.RetentionDays,
		S3Endpoint:        c.Storage.S3Endpoint,
		S3Bucket:          c.Storage.S3Bucket,
		S3AccessKeyID:     c.Storage.S3AccessKeyID,
		S3SecretAccessKey: c.Storage.S3SecretAccessKey,

		// Notifications
		WebhookURL:        c.Notifications.Webhook.URL,
		GraphTenantID:     c.Notifications.Email.TenantID,
		GraphClientID:     c.Notifications.Email.ClientID,
		GraphClientSecret: c.Notifications.Email.ClientSecret,
		GraphFromAddress:  c.Notifications.Email.FromAddress,
		GraphRecipients:   c.Notifications.Email.Recipients,
		MQTT:              c.Notifications.MQTT,
		Zabbix:            c.Notifications.Zabbix,

		// Event log and audit clips
		EventLogPath:       c.EventLog.Path,
		AuditClipsEnabled:  c.AuditClips.Enabled,
		AuditRetentionDays: c.AuditClips.RetentionDays,
	}
}

// CalibrationDuration returns the calibration window as a duration.
func (s *Snapshot) CalibrationDuration() time.Duration {
	return time.Duration(s.CalibrationMs) * time.Millisecond
}

// SilenceDebounce returns the pause debounce window as a duration.
func (s *Snapshot) SilenceDebounce() time.Duration {
	return time.Duration(s.SilenceDebounceMs) * time.Millisecond
}

// TickInterval returns the controller step cadence as a duration.
func (s *Snapshot) TickInterval() time.Duration {
	return time.Duration(s.TickMs) * time.Millisecond
}

// HasWebhook reports whether a webhook URL is configured.
func (s *Snapshot) HasWebhook() bool {
	return s.WebhookURL != ""
}

// HasGraph reports whether Microsoft Graph email notifications are configured.
func (s *Snapshot) HasGraph() bool {
	return s.GraphTenantID != "" && s.GraphClientID != "" && s.GraphClientSecret != "" &&
		s.GraphFromAddress != "" && s.GraphRecipients != ""
}

// HasMQTT reports whether an MQTT broker is configured.
func (s *Snapshot) HasMQTT() bool {
	return s.MQTT.Broker != "" && s.MQTT.Topic != ""
}

// HasZabbix reports whether a Zabbix server is configured.
func (s *Snapshot) HasZabbix() bool {
	return s.Zabbix.Server != "" && s.Zabbix.Host != "" && s.Zabbix.Key != ""
}

// HasS3 reports whether S3 credentials are configured.
func (s *Snapshot) HasS3() bool {
	return s.S3Bucket != "" && s.S3AccessKeyID != "" && s.S3SecretAccessKey != ""
}

// --- Utility functions ---

// GenerateAPIKey generates a new random 32-character alphanumeric API key.
func GenerateAPIKey() (string, error) {
	const chars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 32
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		if err != nil {
			return "", err
		}
		result[i] = chars[n.Int64()]
	}
	return string(result), nil
}
