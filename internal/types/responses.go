package types

// WSStatusResponse is sent to clients with full recorder and session status.
type WSStatusResponse struct {
	Type              string           `json:"type"` // "status"
	FFmpegAvailable   bool             `json:"ffmpeg_available"`
	Session           SessionInfo      `json:"session"`             // Active session summary
	Source            ProcessStatus    `json:"source"`              // Audio analysis source
	Sink              ProcessStatus    `json:"sink"`                // Capture sink
	AudioDevices      []Device         `json:"audio_devices"`       // Available audio inputs
	VideoDevices      []Device         `json:"video_devices"`       // Available video inputs
	Settings          WSSettings       `json:"settings"`            // Current settings
	Webhook           string           `json:"webhook"`             // Webhook URL for alerts
	EventLogPath      string           `json:"event_log_path"`      // Event log file path
	Zabbix            ZabbixConfig     `json:"zabbix,omitzero"`     // Zabbix trapper target
	MQTTBroker        string           `json:"mqtt_broker"`         // MQTT broker URL
	MQTTTopic         string           `json:"mqtt_topic"`          // MQTT topic prefix
	GraphTenantID     string           `json:"graph_tenant_id"`     // Azure AD tenant ID
	GraphClientID     string           `json:"graph_client_id"`     // App registration client ID
	GraphFromAddress  string           `json:"graph_from_address"`  // Shared mailbox address
	GraphRecipients   string           `json:"graph_recipients"`    // Comma-separated recipients
	GraphSecretExpiry SecretExpiryInfo `json:"graph_secret_expiry"` // Client secret expiration info
	AuditClips        AuditClipConfig  `json:"audit_clips"`         // Pause audit clip configuration
	Version           VersionInfo      `json:"version"`             // Version information
}

// WSSettings contains the settings sub-object in status responses.
type WSSettings struct {
	AudioInput  string      `json:"audio_input"`  // Selected audio input device
	VideoInput  string      `json:"video_input"`  // Selected video input device
	Orientation Orientation `json:"orientation"`  // Capture orientation
	Codec       VideoCodec  `json:"codec"`        // Video codec preset
	StorageMode StorageMode `json:"storage_mode"` // Where finished recordings go
	Platform    string      `json:"platform"`     // Operating system platform
}

// WSLevelsResponse is sent to clients with audio level updates.
type WSLevelsResponse struct {
	Type   string      `json:"type"`   // Message type identifier
	Levels AudioLevels `json:"levels"` // Current audio levels
}

// WSCalibrationResponse is sent to clients while calibration is in progress.
type WSCalibrationResponse struct {
	Type        string `json:"type"`         // "calibration"
	RemainingMs int64  `json:"remaining_ms"` // Time left in the calibration window
}

// WSTestResult is sent to clients after a test operation completes.
type WSTestResult struct {
	Type     string `json:"type"`            // Message type identifier
	TestType string `json:"test_type"`       // Type of test performed
	Success  bool   `json:"success"`         // Test succeeded
	Error    string `json:"error,omitempty"` // Error message if failed
}

// WSConfigResponse is sent in response to config/get.
// Contains the full configuration without runtime state.
type WSConfigResponse struct {
	Type   string      `json:"type"` // "config"
	Config interface{} `json:"config"`
}

// WSCommandResult is the standard response for command execution.
// Used by slash-style commands (session/start, settings/update, etc.)
type WSCommandResult struct {
	Type    string           `json:"type"`            // "<command>_result"
	Success bool             `json:"success"`         // true if command succeeded
	Error   *ValidationError `json:"error,omitempty"` // Validation errors if failed
	Data    interface{}      `json:"data,omitempty"`  // Optional response data
}
