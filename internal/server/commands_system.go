package server

import (
	"cmp"
	"errors"
	"log/slog"
	"runtime"

	"github.com/castwork/deadair/internal/config"
	"github.com/castwork/deadair/internal/eventlog"
)

// --- Event log handlers ---

// handleEventsGet processes an events/get command. Events are returned
// newest first with pagination.
func (h *CommandHandler) handleEventsGet(cmd WSCommand, send chan<- any) {
	var req EventsGetRequest
	if !DecodeAndValidate(cmd, send, &req) {
		return
	}

	if h.eventLog == nil {
		SendError(send, cmd.Type, errors.New("event log not available"))
		return
	}

	HandleActionAsync(cmd, send, func() (any, error) {
		limit := cmp.Or(req.Limit, DefaultPageSize)
		events, hasMore, err := eventlog.ReadLast(h.eventLog.Path(), limit, req.Offset, eventlog.TypeFilter(req.Filter))
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"events":   events,
			"has_more": hasMore,
			"path":     h.eventLog.Path(),
		}, nil
	})
}

// handleEventsUpdate processes an events/update command. The logger switches
// to the new path immediately; an empty path selects the default location.
func (h *CommandHandler) handleEventsUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(req *EventsUpdateRequest) error {
		if err := h.cfg.SetEventLogPath(req.Path); err != nil {
			return err
		}
		if h.eventLog == nil {
			return nil
		}

		snap := h.cfg.Snapshot()
		path := cmp.Or(req.Path, eventlog.DefaultLogPath(snap.WebPort))
		return h.eventLog.Reopen(path)
	})
}

// --- System handlers ---

// handleRegenerateAPIKey processes a system/regenerate-key command.
// The new key is returned once; clients must store it because subsequent
// requests with the old key are rejected.
func (h *CommandHandler) handleRegenerateAPIKey(send chan<- any) {
	HandleActionAsync(WSCommand{Type: "system/regenerate-key"}, send, func() (any, error) {
		newKey, err := config.GenerateAPIKey()
		if err != nil {
			return nil, err
		}

		if err := h.cfg.SetAPIKey(newKey); err != nil {
			return nil, err
		}

		slog.Info("API key regenerated")

		return map[string]string{"api_key": newKey}, nil
	})
}

// handleCleanup processes a system/cleanup command, running one retention
// pass outside the nightly schedule.
func (h *CommandHandler) handleCleanup(cmd WSCommand, send chan<- any) {
	HandleActionAsync(cmd, send, func() (any, error) {
		slog.Info("system/cleanup: manual retention pass requested")
		h.engine.RunCleanup()
		return nil, nil
	})
}

// --- Config handlers ---

// handleConfigGet processes a config/get command.
func (h *CommandHandler) handleConfigGet(send chan<- any) {
	SendSuccess(send, "config/get", ConfigPayload(h.cfg.Snapshot()))
}

// ConfigPayload assembles the full configuration for clients, with secrets
// masked to a set/unset flag. Shared by the config/get command and the REST
// config endpoint. The API key is never included.
func ConfigPayload(snap config.Snapshot) map[string]any {
	return map[string]any{
		"system": map[string]any{
			"port":        snap.WebPort,
			"ffmpeg_path": snap.FFmpegPath,
			"platform":    runtime.GOOS,
		},
		"recorder": map[string]any{
			"name":        snap.RecorderName,
			"audio_input": snap.AudioInput,
			"video_input": snap.VideoInput,
			"orientation": snap.Orientation,
			"framerate":   snap.Framerate,
			"codec":       snap.Codec,
		},
		"detection": map[string]any{
			"calibration_ms":       snap.CalibrationMs,
			"silence_debounce_ms":  snap.SilenceDebounceMs,
			"threshold_multiplier": snap.ThresholdMultiplier,
			"spectrum_window":      snap.SpectrumWindow,
			"tick_ms":              snap.TickMs,
		},
		"storage": map[string]any{
			"output_dir":       snap.OutputDir,
			"temp_dir":         snap.TempDir,
			"mode":             snap.StorageMode,
			"retention_days":   snap.RetentionDays,
			"s3_endpoint":      snap.S3Endpoint,
			"s3_bucket":        snap.S3Bucket,
			"s3_access_key_id": snap.S3AccessKeyID,
			"s3_secret_set":    snap.S3SecretAccessKey != "",
		},
		"notifications": map[string]any{
			"webhook_url":      snap.WebhookURL,
			"graph_tenant_id":  snap.GraphTenantID,
			"graph_client_id":  snap.GraphClientID,
			"graph_secret_set": snap.GraphClientSecret != "",
			"graph_from":       snap.GraphFromAddress,
			"graph_recipients": snap.GraphRecipients,
			"mqtt_broker":      snap.MQTT.Broker,
			"mqtt_topic":       snap.MQTT.Topic,
			"mqtt_qos":         snap.MQTT.QoS,
			"zabbix_server":    snap.Zabbix.Server,
			"zabbix_port":      snap.Zabbix.Port,
			"zabbix_host":      snap.Zabbix.Host,
			"zabbix_key":       snap.Zabbix.Key,
		},
		"event_log": map[string]any{
			"path": snap.EventLogPath,
		},
		"audit_clips": map[string]any{
			"enabled":        snap.AuditClipsEnabled,
			"retention_days": snap.AuditRetentionDays,
		},
	}
}
