package server

// Request types for WebSocket commands with validation tags.
// These types define the expected input for each command and use
// go-playground/validator struct tags for automatic validation.
// Pointer fields are partial: nil means keep the current value.

// --- Device settings ---

// DevicesUpdateRequest is the request body for devices/update.
// Device changes take effect when the next session starts.
type DevicesUpdateRequest struct {
	AudioInput  *string `json:"audio_input" validate:"omitempty,max=256"`
	VideoInput  *string `json:"video_input" validate:"omitempty,max=256"`
	Orientation *string `json:"orientation" validate:"omitempty,oneof=landscape portrait"`
	Codec       *string `json:"codec" validate:"omitempty,oneof=h264 hevc vp9"`
}

// --- Detection settings ---

// DetectionUpdateRequest is the request body for detection/update.
type DetectionUpdateRequest struct {
	CalibrationMs       *int64   `json:"calibration_ms" validate:"omitempty,gte=500,lte=60000"`
	SilenceDebounceMs   *int64   `json:"silence_debounce_ms" validate:"omitempty,gte=100,lte=10000"`
	ThresholdMultiplier *float64 `json:"threshold_multiplier" validate:"omitempty,gte=1,lte=10"`
	SpectrumWindow      *int     `json:"spectrum_window" validate:"omitempty,gte=32,lte=32768"`
	TickMs              *int64   `json:"tick_ms" validate:"omitempty,gte=10,lte=1000"`
}

// --- Storage settings ---

// StorageUpdateRequest is the request body for storage/update.
type StorageUpdateRequest struct {
	OutputDir         *string `json:"output_dir" validate:"omitempty,max=4096"`
	TempDir           *string `json:"temp_dir" validate:"omitempty,max=4096"`
	Mode              *string `json:"mode" validate:"omitempty,oneof=local s3 both"`
	RetentionDays     *int    `json:"retention_days" validate:"omitempty,gte=0,lte=3650"`
	S3Endpoint        *string `json:"s3_endpoint" validate:"omitempty,max=2048"`
	S3Bucket          *string `json:"s3_bucket" validate:"omitempty,max=63"`
	S3AccessKeyID     *string `json:"s3_access_key_id" validate:"omitempty,max=128"`
	S3SecretAccessKey *string `json:"s3_secret_access_key" validate:"omitempty,max=256"`
}

// S3TestRequest is the request body for storage/test-s3. Credentials may be
// supplied to probe an unsaved configuration; empty fields fall back to the
// saved storage settings.
type S3TestRequest struct {
	Endpoint  string `json:"s3_endpoint" validate:"omitempty,max=2048"`
	Bucket    string `json:"s3_bucket" validate:"omitempty,max=63"`
	AccessKey string `json:"s3_access_key_id" validate:"omitempty,max=128"`
	SecretKey string `json:"s3_secret_access_key" validate:"omitempty,max=256"`
}

// --- Audit clip settings ---

// AuditUpdateRequest is the request body for audit/update.
type AuditUpdateRequest struct {
	Enabled       *bool `json:"enabled"`
	RetentionDays *int  `json:"retention_days" validate:"omitempty,gte=0,lte=365"`
}

// --- Notification settings ---

// WebhookUpdateRequest is the request body for notifications/webhook/update.
type WebhookUpdateRequest struct {
	URL string `json:"url" validate:"omitempty,max=2048"`
}

// EmailUpdateRequest is the request body for notifications/email/update.
type EmailUpdateRequest struct {
	TenantID     string `json:"tenant_id" validate:"omitempty,max=100"`
	ClientID     string `json:"client_id" validate:"omitempty,max=100"`
	ClientSecret string `json:"client_secret" validate:"omitempty,max=500"`
	FromAddress  string `json:"from_address" validate:"omitempty,max=254"`
	Recipients   string `json:"recipients" validate:"omitempty,max=1000"`
}

// MQTTUpdateRequest is the request body for notifications/mqtt/update.
type MQTTUpdateRequest struct {
	Broker   string `json:"broker" validate:"omitempty,max=2048"`
	Topic    string `json:"topic" validate:"omitempty,max=256"`
	ClientID string `json:"client_id" validate:"omitempty,max=128"`
	Username string `json:"username" validate:"omitempty,max=256"`
	Password string `json:"password" validate:"omitempty,max=256"`
	QoS      int    `json:"qos" validate:"omitempty,gte=0,lte=2"`
}

// ZabbixUpdateRequest is the request body for notifications/zabbix/update.
type ZabbixUpdateRequest struct {
	Server    string `json:"server" validate:"omitempty,max=253"`
	Port      int    `json:"port" validate:"omitempty,gte=1,lte=65535"`
	Host      string `json:"host" validate:"omitempty,max=253"`
	Key       string `json:"key" validate:"omitempty,max=256"`
	TimeoutMs int    `json:"timeout_ms" validate:"omitempty,gte=100,lte=30000"`
}

// --- Event log ---

// EventsGetRequest is the request body for events/get.
type EventsGetRequest struct {
	Limit  int    `json:"limit" validate:"omitempty,gte=1,lte=500"`
	Offset int    `json:"offset" validate:"omitempty,gte=0"`
	Filter string `json:"filter" validate:"omitempty,oneof=session upload maintenance"`
}

// EventsUpdateRequest is the request body for events/update.
type EventsUpdateRequest struct {
	Path string `json:"path" validate:"omitempty,max=4096"`
}
