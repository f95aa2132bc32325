package server

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/castwork/deadair/internal/config"
	"github.com/castwork/deadair/internal/types"
)

// --- Update handlers ---

// handleWebhookUpdate processes a notifications/webhook/update command.
func (h *CommandHandler) handleWebhookUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(req *WebhookUpdateRequest) error {
		return h.cfg.SetWebhookURL(req.URL)
	})
}

// handleEmailUpdate processes a notifications/email/update command.
func (h *CommandHandler) handleEmailUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(req *EmailUpdateRequest) error {
		if err := h.cfg.SetGraphConfig(
			req.TenantID,
			req.ClientID,
			req.ClientSecret,
			req.FromAddress,
			req.Recipients,
		); err != nil {
			return err
		}
		h.engine.UpdateGraphConfig()
		return nil
	})
}

// handleMQTTUpdate processes a notifications/mqtt/update command.
func (h *CommandHandler) handleMQTTUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(req *MQTTUpdateRequest) error {
		return h.cfg.SetMQTT(config.MQTTNotifyConfig{
			Broker:   req.Broker,
			Topic:    req.Topic,
			ClientID: req.ClientID,
			Username: req.Username,
			Password: req.Password,
			QoS:      req.QoS,
		})
	})
}

// handleZabbixUpdate processes a notifications/zabbix/update command.
func (h *CommandHandler) handleZabbixUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(req *ZabbixUpdateRequest) error {
		return h.cfg.SetZabbix(config.ZabbixNotifyConfig{
			Server:    req.Server,
			Port:      req.Port,
			Host:      req.Host,
			Key:       req.Key,
			TimeoutMs: req.TimeoutMs,
		})
	})
}

// --- Get handlers ---

// handleWebhookGet processes a notifications/webhook/get command.
func (h *CommandHandler) handleWebhookGet(cmd WSCommand, send chan<- any) {
	SendSuccess(send, cmd.Type, map[string]any{
		"url": h.cfg.Snapshot().WebhookURL,
	})
}

// handleEmailGet processes a notifications/email/get command. The client
// secret is not echoed back; clients only learn whether one is set.
func (h *CommandHandler) handleEmailGet(cmd WSCommand, send chan<- any) {
	snap := h.cfg.Snapshot()
	SendSuccess(send, cmd.Type, map[string]any{
		"tenant_id":         snap.GraphTenantID,
		"client_id":         snap.GraphClientID,
		"client_secret_set": snap.GraphClientSecret != "",
		"from_address":      snap.GraphFromAddress,
		"recipients":        snap.GraphRecipients,
	})
}

// handleMQTTGet processes a notifications/mqtt/get command.
func (h *CommandHandler) handleMQTTGet(cmd WSCommand, send chan<- any) {
	snap := h.cfg.Snapshot()
	SendSuccess(send, cmd.Type, map[string]any{
		"broker":       snap.MQTT.Broker,
		"topic":        snap.MQTT.Topic,
		"client_id":    snap.MQTT.ClientID,
		"username":     snap.MQTT.Username,
		"password_set": snap.MQTT.Password != "",
		"qos":          snap.MQTT.QoS,
	})
}

// handleZabbixGet processes a notifications/zabbix/get command.
func (h *CommandHandler) handleZabbixGet(cmd WSCommand, send chan<- any) {
	snap := h.cfg.Snapshot()
	SendSuccess(send, cmd.Type, map[string]any{
		"server":     snap.Zabbix.Server,
		"port":       snap.Zabbix.Port,
		"host":       snap.Zabbix.Host,
		"key":        snap.Zabbix.Key,
		"timeout_ms": snap.Zabbix.TimeoutMs,
	})
}

// --- Test handlers ---

// runTest dispatches to the appropriate test method on the engine.
func (h *CommandHandler) runTest(testType string) error {
	switch testType {
	case "webhook":
		return h.engine.TriggerTestWebhook()
	case "email":
		return h.engine.TriggerTestEmail()
	case "mqtt":
		return h.engine.TriggerTestMQTT()
	case "zabbix":
		return h.engine.TriggerTestZabbix()
	default:
		return fmt.Errorf("unknown test type: %s", testType)
	}
}

// handleTest executes a notification test and sends the result to the client.
// testCmd should be in format "test_<type>" (e.g., "test_email", "test_webhook").
func (h *CommandHandler) handleTest(send chan<- any, testCmd string) {
	testType := strings.TrimPrefix(testCmd, "test_")

	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in test handler", "command", testCmd, "panic", r)
			}
		}()

		result := types.WSTestResult{
			Type:     "test_result",
			TestType: testType,
			Success:  true,
		}

		if err := h.runTest(testType); err != nil {
			slog.Error("test failed", "command", testCmd, "error", err)
			result.Success = false
			result.Error = err.Error()
		} else {
			slog.Info("test succeeded", "command", testCmd)
		}

		// Send via channel (non-blocking to prevent goroutine leak if channel is closed)
		SendData(send, result)
	}()
}
