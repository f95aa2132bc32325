package main

import (
	"cmp"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/castwork/deadair/internal/capture"
	"github.com/castwork/deadair/internal/config"
	"github.com/castwork/deadair/internal/eventlog"
	"github.com/castwork/deadair/internal/recording"
	"github.com/castwork/deadair/internal/server"
	"github.com/castwork/deadair/internal/types"
)

// API response helpers

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) readJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// parseJSON reads and parses JSON from request body.
// Returns parsed value and true on success, zero value and false on failure.
func parseJSON[T any](s *Server, w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	if err := s.readJSON(r, &v); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return v, false
	}
	return v, true
}

// handleAPIStatus returns the full recorder and session status.
// GET /api/status
func (s *Server) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.writeJSON(w, http.StatusOK, s.buildWSStatus())
}

// handleAPIConfig returns the full configuration with secrets masked.
// GET /api/config
func (s *Server) handleAPIConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.writeJSON(w, http.StatusOK, server.ConfigPayload(s.config.Snapshot()))
}

// handleAPIDevices returns available capture devices.
// GET /api/devices
func (s *Server) handleAPIDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"audio_devices": capture.AudioDevices(),
		"video_devices": capture.VideoDevices(),
	})
}

// SettingsUpdateRequest is the request body for POST /api/settings.
// Only fields present in the request are applied.
type SettingsUpdateRequest struct {
	// Capture devices
	AudioInput  *string `json:"audio_input"`
	VideoInput  *string `json:"video_input"`
	Orientation *string `json:"orientation"`
	Codec       *string `json:"codec"`

	// Silence detection
	CalibrationMs       *int64   `json:"calibration_ms"`
	SilenceDebounceMs   *int64   `json:"silence_debounce_ms"`
	ThresholdMultiplier *float64 `json:"threshold_multiplier"`
	SpectrumWindow      *int     `json:"spectrum_window"`
	TickMs              *int64   `json:"tick_ms"`

	// Storage
	OutputDir         *string `json:"output_dir"`
	TempDir           *string `json:"temp_dir"`
	StorageMode       *string `json:"storage_mode"`
	RetentionDays     *int    `json:"retention_days"`
	S3Endpoint        *string `json:"s3_endpoint"`
	S3Bucket          *string `json:"s3_bucket"`
	S3AccessKeyID     *string `json:"s3_access_key_id"`
	S3SecretAccessKey *string `json:"s3_secret_access_key"`

	// Webhook
	WebhookURL *string `json:"webhook_url"`

	// Email (Graph)
	GraphTenantID     *string `json:"graph_tenant_id"`
	GraphClientID     *string `json:"graph_client_id"`
	GraphClientSecret *string `json:"graph_client_secret"`
	GraphFromAddress  *string `json:"graph_from_address"`
	GraphRecipients   *string `json:"graph_recipients"`

	// MQTT
	MQTTBroker   *string `json:"mqtt_broker"`
	MQTTTopic    *string `json:"mqtt_topic"`
	MQTTClientID *string `json:"mqtt_client_id"`
	MQTTUsername *string `json:"mqtt_username"`
	MQTTPassword *string `json:"mqtt_password"`
	MQTTQoS      *int    `json:"mqtt_qos"`

	// Zabbix
	ZabbixServer    *string `json:"zabbix_server"`
	ZabbixPort      *int    `json:"zabbix_port"`
	ZabbixHost      *string `json:"zabbix_host"`
	ZabbixKey       *string `json:"zabbix_key"`
	ZabbixTimeoutMs *int    `json:"zabbix_timeout_ms"`

	// Event log
	EventLogPath *string `json:"event_log_path"`

	// Audit clips
	AuditClipsEnabled  *bool `json:"audit_clips_enabled"`
	AuditRetentionDays *int  `json:"audit_retention_days"`
}

// handleAPISettings updates settings in groups. The config setters validate
// and revert on failure, so a rejected group leaves the file untouched.
// POST /api/settings
func (s *Server) handleAPISettings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	req, ok := parseJSON[SettingsUpdateRequest](s, w, r)
	if !ok {
		return
	}

	cfg := s.config.Snapshot()

	if err := s.applyDeviceSettings(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.applyDetectionSettings(&req, &cfg); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.applyStorageSettings(&req, &cfg); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.applyNotificationSettings(&req, &cfg); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.applyEventLogSettings(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.applyAuditSettings(&req, &cfg); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// applyDeviceSettings applies capture device settings from the request.
// Input changes are picked up when the next session acquires its devices.
func (s *Server) applyDeviceSettings(req *SettingsUpdateRequest) error {
	if req.AudioInput != nil {
		if err := s.config.SetAudioInput(*req.AudioInput); err != nil {
			return err
		}
	}

	if req.VideoInput != nil {
		if err := s.config.SetVideoInput(*req.VideoInput); err != nil {
			return err
		}
	}

	if req.Orientation != nil {
		if err := s.config.SetOrientation(types.Orientation(*req.Orientation)); err != nil {
			return err
		}
	}

	if req.Codec != nil {
		if err := s.config.SetCodec(types.VideoCodec(*req.Codec)); err != nil {
			return err
		}
	}

	return nil
}

// applyDetectionSettings applies silence detection settings from the request.
func (s *Server) applyDetectionSettings(req *SettingsUpdateRequest, cfg *config.Snapshot) error {
	if req.CalibrationMs == nil && req.SilenceDebounceMs == nil && req.ThresholdMultiplier == nil &&
		req.SpectrumWindow == nil && req.TickMs == nil {
		return nil
	}

	d := config.DetectionConfig{
		CalibrationMs:       cfg.CalibrationMs,
		SilenceDebounceMs:   cfg.SilenceDebounceMs,
		ThresholdMultiplier: cfg.ThresholdMultiplier,
		SpectrumWindow:      cfg.SpectrumWindow,
		TickMs:              cfg.TickMs,
	}
	if req.CalibrationMs != nil {
		d.CalibrationMs = *req.CalibrationMs
	}
	if req.SilenceDebounceMs != nil {
		d.SilenceDebounceMs = *req.SilenceDebounceMs
	}
	if req.ThresholdMultiplier != nil {
		d.ThresholdMultiplier = *req.ThresholdMultiplier
	}
	if req.SpectrumWindow != nil {
		d.SpectrumWindow = *req.SpectrumWindow
	}
	if req.TickMs != nil {
		d.TickMs = *req.TickMs
	}
	return s.config.SetDetection(d)
}

// applyStorageSettings applies storage settings from the request.
func (s *Server) applyStorageSettings(req *SettingsUpdateRequest, cfg *config.Snapshot) error {
	if req.OutputDir == nil && req.TempDir == nil && req.StorageMode == nil &&
		req.RetentionDays == nil && req.S3Endpoint == nil && req.S3Bucket == nil &&
		req.S3AccessKeyID == nil && req.S3SecretAccessKey == nil {
		return nil
	}

	st := config.StorageConfig{
		OutputDir:         cfg.OutputDir,
		TempDir:           cfg.TempDir,
		Mode:              cfg.StorageMode,
		RetentionDays:     cfg.RetentionDays,
		S3Endpoint:        cfg.S3Endpoint,
		S3Bucket:          cfg.S3Bucket,
		S3AccessKeyID:     cfg.S3AccessKeyID,
		S3SecretAccessKey: cfg.S3SecretAccessKey,
	}
	if req.OutputDir != nil {
		st.OutputDir = *req.OutputDir
	}
	if req.TempDir != nil {
		st.TempDir = *req.TempDir
	}
	if req.StorageMode != nil {
		st.Mode = types.StorageMode(*req.StorageMode)
	}
	if req.RetentionDays != nil {
		st.RetentionDays = *req.RetentionDays
	}
	if req.S3Endpoint != nil {
		st.S3Endpoint = *req.S3Endpoint
	}
	if req.S3Bucket != nil {
		st.S3Bucket = *req.S3Bucket
	}
	if req.S3AccessKeyID != nil {
		st.S3AccessKeyID = *req.S3AccessKeyID
	}
	if req.S3SecretAccessKey != nil {
		st.S3SecretAccessKey = *req.S3SecretAccessKey
	}
	return s.config.SetStorage(st)
}

// applyNotificationSettings applies notification settings from the request.
func (s *Server) applyNotificationSettings(req *SettingsUpdateRequest, cfg *config.Snapshot) error {
	if req.WebhookURL != nil {
		if err := s.config.SetWebhookURL(*req.WebhookURL); err != nil {
			return err
		}
	}

	if err := s.applyGraphSettings(req, cfg); err != nil {
		return err
	}

	if err := s.applyMQTTSettings(req, cfg); err != nil {
		return err
	}

	return s.applyZabbixSettings(req, cfg)
}

// applyGraphSettings applies Microsoft Graph email settings.
func (s *Server) applyGraphSettings(req *SettingsUpdateRequest, cfg *config.Snapshot) error {
	if req.GraphTenantID == nil && req.GraphClientID == nil && req.GraphClientSecret == nil &&
		req.GraphFromAddress == nil && req.GraphRecipients == nil {
		return nil
	}

	tenantID := cfg.GraphTenantID
	clientID := cfg.GraphClientID
	clientSecret := cfg.GraphClientSecret
	fromAddr := cfg.GraphFromAddress
	recipients := cfg.GraphRecipients
	if req.GraphTenantID != nil {
		tenantID = *req.GraphTenantID
	}
	if req.GraphClientID != nil {
		clientID = *req.GraphClientID
	}
	if req.GraphClientSecret != nil {
		clientSecret = *req.GraphClientSecret
	}
	if req.GraphFromAddress != nil {
		fromAddr = *req.GraphFromAddress
	}
	if req.GraphRecipients != nil {
		recipients = *req.GraphRecipients
	}
	if err := s.config.SetGraphConfig(tenantID, clientID, clientSecret, fromAddr, recipients); err != nil {
		return err
	}

	// New credentials invalidate the cached secret expiry
	s.engine.UpdateGraphConfig()
	return nil
}

// applyMQTTSettings applies MQTT notification settings.
func (s *Server) applyMQTTSettings(req *SettingsUpdateRequest, cfg *config.Snapshot) error {
	if req.MQTTBroker == nil && req.MQTTTopic == nil && req.MQTTClientID == nil &&
		req.MQTTUsername == nil && req.MQTTPassword == nil && req.MQTTQoS == nil {
		return nil
	}

	m := cfg.MQTT
	if req.MQTTBroker != nil {
		m.Broker = *req.MQTTBroker
	}
	if req.MQTTTopic != nil {
		m.Topic = *req.MQTTTopic
	}
	if req.MQTTClientID != nil {
		m.ClientID = *req.MQTTClientID
	}
	if req.MQTTUsername != nil {
		m.Username = *req.MQTTUsername
	}
	if req.MQTTPassword != nil {
		m.Password = *req.MQTTPassword
	}
	if req.MQTTQoS != nil {
		m.QoS = *req.MQTTQoS
	}
	return s.config.SetMQTT(m)
}

// applyZabbixSettings applies Zabbix notification settings.
func (s *Server) applyZabbixSettings(req *SettingsUpdateRequest, cfg *config.Snapshot) error {
	if req.ZabbixServer == nil && req.ZabbixPort == nil && req.ZabbixHost == nil &&
		req.ZabbixKey == nil && req.ZabbixTimeoutMs == nil {
		return nil
	}

	z := cfg.Zabbix
	if req.ZabbixServer != nil {
		z.Server = *req.ZabbixServer
	}
	if req.ZabbixPort != nil {
		z.Port = *req.ZabbixPort
	}
	if req.ZabbixHost != nil {
		z.Host = *req.ZabbixHost
	}
	if req.ZabbixKey != nil {
		z.Key = *req.ZabbixKey
	}
	if req.ZabbixTimeoutMs != nil {
		z.TimeoutMs = *req.ZabbixTimeoutMs
	}
	return s.config.SetZabbix(z)
}

// applyEventLogSettings applies the event log path and switches the logger.
// An empty path selects the default location.
func (s *Server) applyEventLogSettings(req *SettingsUpdateRequest) error {
	if req.EventLogPath == nil {
		return nil
	}

	if err := s.config.SetEventLogPath(*req.EventLogPath); err != nil {
		return err
	}
	if s.eventLog == nil {
		return nil
	}

	path := cmp.Or(*req.EventLogPath, eventlog.DefaultLogPath(s.config.Snapshot().WebPort))
	return s.eventLog.Reopen(path)
}

// applyAuditSettings applies audit clip settings from the request.
func (s *Server) applyAuditSettings(req *SettingsUpdateRequest, cfg *config.Snapshot) error {
	if req.AuditClipsEnabled == nil && req.AuditRetentionDays == nil {
		return nil
	}

	a := config.AuditClipsConfig{
		Enabled:       cfg.AuditClipsEnabled,
		RetentionDays: cfg.AuditRetentionDays,
	}
	if req.AuditClipsEnabled != nil {
		a.Enabled = *req.AuditClipsEnabled
	}
	if req.AuditRetentionDays != nil {
		a.RetentionDays = *req.AuditRetentionDays
	}
	return s.config.SetAuditClips(a)
}

// handleAPISessionStart begins a recording session, entering calibration.
// POST /api/session/start
func (s *Server) handleAPISessionStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if !s.ffmpegAvailable {
		s.writeError(w, http.StatusServiceUnavailable, "FFmpeg not found: install it or set ffmpeg_path")
		return
	}

	if err := s.engine.StartSession(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "session_started",
		"session": s.engine.SessionStatus(),
	})
}

// handleAPISessionStop stops the session and waits for the final merge.
// POST /api/session/stop
func (s *Server) handleAPISessionStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	info, err := s.engine.StopSession()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "session_stopped",
		"session": info,
	})
}

// handleAPISessionReset returns a stopped session to idle.
// POST /api/session/reset
func (s *Server) handleAPISessionReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if err := s.engine.ResetSession(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "session_reset"})
}

// handleAPIEvents returns event log entries, newest first.
// GET /api/events?limit=50&offset=0&filter=session
func (s *Server) handleAPIEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if s.eventLog == nil {
		s.writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"error":   "event log not available",
		})
		return
	}

	limit := server.DefaultPageSize
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > eventlog.MaxReadLimit {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("limit must be 1-%d", eventlog.MaxReadLimit))
			return
		}
		limit = n
	}

	offset := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "offset must be 0 or greater")
			return
		}
		offset = n
	}

	filter := eventlog.TypeFilter(r.URL.Query().Get("filter"))
	switch filter {
	case eventlog.FilterAll, eventlog.FilterSession, eventlog.FilterUpload, eventlog.FilterMaintenance:
	default:
		s.writeError(w, http.StatusBadRequest, "filter must be session, upload or maintenance")
		return
	}

	events, hasMore, err := eventlog.ReadLast(s.eventLog.Path(), limit, offset, filter)
	if err != nil {
		s.writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"events":   events,
		"has_more": hasMore,
		"path":     s.eventLog.Path(),
	})
}

// handleAPIRecordings lists finished recordings in the output directory.
// GET /api/recordings
func (s *Server) handleAPIRecordings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	cfg := s.config.Snapshot()
	files, err := recording.ListRecordings(cfg.OutputDir, cfg.RecorderName)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"recordings": files,
		"output_dir": cfg.OutputDir,
	})
}

// Notification and storage test endpoints

// runConnectionTest runs a channel test against the saved configuration and
// reports the outcome. A failed test is part of the result, not an HTTP error.
func (s *Server) runConnectionTest(w http.ResponseWriter, r *http.Request, test func() error) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if err := test(); err != nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": err.Error()})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleAPITestWebhook(w http.ResponseWriter, r *http.Request) {
	s.runConnectionTest(w, r, s.engine.TriggerTestWebhook)
}

func (s *Server) handleAPITestEmail(w http.ResponseWriter, r *http.Request) {
	s.runConnectionTest(w, r, s.engine.TriggerTestEmail)
}

func (s *Server) handleAPITestMQTT(w http.ResponseWriter, r *http.Request) {
	s.runConnectionTest(w, r, s.engine.TriggerTestMQTT)
}

func (s *Server) handleAPITestZabbix(w http.ResponseWriter, r *http.Request) {
	s.runConnectionTest(w, r, s.engine.TriggerTestZabbix)
}

func (s *Server) handleAPITestS3(w http.ResponseWriter, r *http.Request) {
	s.runConnectionTest(w, r, s.engine.TriggerTestS3)
}

// handleAPIRegenerateKey generates a new API key. The response is the only
// place the new key appears; subsequent requests must use it.
// POST /api/system/regenerate-key
func (s *Server) handleAPIRegenerateKey(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	newKey, err := config.GenerateAPIKey()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := s.config.SetAPIKey(newKey); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	slog.Info("API key regenerated")

	s.writeJSON(w, http.StatusOK, map[string]string{
		"api_key": newKey,
	})
}

// handleAPICleanup triggers one retention pass outside the nightly schedule.
// POST /api/system/cleanup
func (s *Server) handleAPICleanup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	// S3 listing can take minutes on large buckets, so run it off-request
	go s.engine.RunCleanup()

	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "cleanup_started"})
}
