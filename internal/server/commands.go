package server

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/castwork/deadair/internal/config"
	"github.com/castwork/deadair/internal/engine"
	"github.com/castwork/deadair/internal/eventlog"
)

// Validation limits for command payloads.
const (
	MaxPathLength   = 4096 // Upper bound for filesystem path fields
	MaxURLLength    = 2048 // Upper bound for webhook and endpoint URLs
	MaxEventsPage   = 500  // Maximum event log entries per page
	DefaultPageSize = 50   // Event log page size when the client omits one
)

// WSCommand is a command received from a WebSocket client.
type WSCommand struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// CommandHandler processes WebSocket commands.
type CommandHandler struct {
	cfg             *config.Config
	engine          *engine.Engine
	eventLog        *eventlog.Logger
	ffmpegAvailable bool
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(cfg *config.Config, eng *engine.Engine, eventLog *eventlog.Logger, ffmpegAvailable bool) *CommandHandler {
	return &CommandHandler{
		cfg:             cfg,
		engine:          eng,
		eventLog:        eventLog,
		ffmpegAvailable: ffmpegAvailable,
	}
}

// Handle processes a WebSocket command and performs the requested action.
// Commands use slash-style format: namespace/action (e.g., "session/start",
// "detection/update", "notifications/webhook/test").
func (h *CommandHandler) Handle(cmd WSCommand, send chan<- any, triggerStatusUpdate func()) {
	// Parse command into namespace and action
	parts := strings.SplitN(cmd.Type, "/", 3)
	namespace := parts[0]
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}
	subaction := ""
	if len(parts) > 2 {
		subaction = parts[2]
	}

	switch namespace {
	case "session":
		h.handleSession(action, cmd, send)
	case "devices":
		h.handleDevices(action, cmd, send)
	case "detection":
		h.handleDetection(action, cmd, send)
	case "storage":
		h.handleStorage(action, cmd, send)
	case "audit":
		h.handleAudit(action, cmd, send)
	case "notifications":
		h.handleNotifications(action, subaction, cmd, send)
	case "events":
		h.handleEvents(action, cmd, send)
	case "system":
		h.handleSystem(action, cmd, send)
	case "config":
		h.handleConfig(action, send)
	case "status":
		h.handleStatus(action)
	default:
		slog.Warn("unknown WebSocket command", "type", cmd.Type)
	}

	triggerStatusUpdate()
}

// --- Namespace handlers ---

// handleSession routes session/* commands
func (h *CommandHandler) handleSession(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "start":
		h.handleSessionStart(cmd, send)
	case "stop":
		h.handleSessionStop(cmd, send)
	case "reset":
		h.handleSessionReset(cmd, send)
	default:
		slog.Warn("unknown session action", "action", action)
	}
}

// handleDevices routes devices/* commands
func (h *CommandHandler) handleDevices(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "update":
		h.handleDevicesUpdate(cmd, send)
	case "get":
		h.handleDevicesGet(cmd, send)
	default:
		slog.Warn("unknown devices action", "action", action)
	}
}

// handleDetection routes detection/* commands
func (h *CommandHandler) handleDetection(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "update":
		h.handleDetectionUpdate(cmd, send)
	case "get":
		h.handleDetectionGet(cmd, send)
	default:
		slog.Warn("unknown detection action", "action", action)
	}
}

// handleStorage routes storage/* commands
func (h *CommandHandler) handleStorage(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "update":
		h.handleStorageUpdate(cmd, send)
	case "get":
		h.handleStorageGet(cmd, send)
	case "test-s3":
		h.handleStorageTestS3(cmd, send)
	default:
		slog.Warn("unknown storage action", "action", action)
	}
}

// handleAudit routes audit/* commands
func (h *CommandHandler) handleAudit(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "update":
		h.handleAuditUpdate(cmd, send)
	case "get":
		h.handleAuditGet(cmd, send)
	default:
		slog.Warn("unknown audit action", "action", action)
	}
}

// handleNotifications routes notifications/*/* commands
func (h *CommandHandler) handleNotifications(action, subaction string, cmd WSCommand, send chan<- any) {
	switch action {
	case "webhook":
		switch subaction {
		case "update":
			h.handleWebhookUpdate(cmd, send)
		case "test":
			h.handleTest(send, "test_webhook")
		case "get":
			h.handleWebhookGet(cmd, send)
		default:
			slog.Warn("unknown webhook action", "subaction", subaction)
		}
	case "email":
		switch subaction {
		case "update":
			h.handleEmailUpdate(cmd, send)
		case "test":
			h.handleTest(send, "test_email")
		case "get":
			h.handleEmailGet(cmd, send)
		default:
			slog.Warn("unknown email action", "subaction", subaction)
		}
	case "mqtt":
		switch subaction {
		case "update":
			h.handleMQTTUpdate(cmd, send)
		case "test":
			h.handleTest(send, "test_mqtt")
		case "get":
			h.handleMQTTGet(cmd, send)
		default:
			slog.Warn("unknown mqtt action", "subaction", subaction)
		}
	case "zabbix":
		switch subaction {
		case "update":
			h.handleZabbixUpdate(cmd, send)
		case "test":
			h.handleTest(send, "test_zabbix")
		case "get":
			h.handleZabbixGet(cmd, send)
		default:
			slog.Warn("unknown zabbix action", "subaction", subaction)
		}
	default:
		slog.Warn("unknown notifications action", "action", action)
	}
}

// handleEvents routes events/* commands
func (h *CommandHandler) handleEvents(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "get":
		h.handleEventsGet(cmd, send)
	case "update":
		h.handleEventsUpdate(cmd, send)
	default:
		slog.Warn("unknown events action", "action", action)
	}
}

// handleSystem routes system/* commands
func (h *CommandHandler) handleSystem(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "regenerate-key":
		h.handleRegenerateAPIKey(send)
	case "cleanup":
		h.handleCleanup(cmd, send)
	default:
		slog.Warn("unknown system action", "action", action)
	}
}

// handleConfig routes config/* commands
func (h *CommandHandler) handleConfig(action string, send chan<- any) {
	switch action {
	case "get":
		h.handleConfigGet(send)
	default:
		slog.Warn("unknown config action", "action", action)
	}
}

// handleStatus routes status/* commands
func (h *CommandHandler) handleStatus(action string) {
	switch action {
	case "get":
		// Status is sent automatically, but explicit get triggers immediate update
		slog.Debug("status/get received, status update will be triggered")
	default:
		slog.Warn("unknown status action", "action", action)
	}
}
