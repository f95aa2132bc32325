package notify

import (
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/castwork/deadair/internal/config"
	"github.com/castwork/deadair/internal/session"
	"github.com/castwork/deadair/internal/util"
)

// Notifier fans session transitions out to the configured notification
// channels. The webhook gets pause and resume alerts plus the end-of-session
// report, MQTT and Zabbix get every state change, and email is reserved for
// upload abandonment alerts.
type Notifier struct {
	cfg *config.Config

	// mu protects the notification state fields below
	mu sync.Mutex

	// Track whether the pause alert went out for the current pause period
	pauseWebhookSent bool

	// Session counters for the end-of-session report
	pauseCount       int
	deadAirRemovedMs int64

	// Calibration results included in pause and resume payloads
	noiseFloor float64
	threshold  float64

	// clientMu protects the cached MQTT client. Separate from mu because
	// connecting can block for seconds.
	clientMu   sync.Mutex
	mqttClient mqtt.Client
	mqttKey    string
}

// NewNotifier returns a Notifier configured with the given config.
func NewNotifier(cfg *config.Config) *Notifier {
	return &Notifier{cfg: cfg}
}

// HandleTransition processes a state machine transition and triggers the
// matching notifications. Senders run in their own goroutines so a slow
// channel never delays the session.
func (n *Notifier) HandleTransition(e session.TransitionEvent) {
	cfg := n.cfg.Snapshot()

	// Every transition goes to the state channels.
	if cfg.HasMQTT() {
		go n.publishMQTT(cfg.MQTT, e)
	}
	if cfg.HasZabbix() {
		go n.sendZabbixState(cfg.Zabbix, e)
	}

	switch e.Reason {
	case session.ReasonStart:
		n.resetSession()
	case session.ReasonCalibrated:
		n.mu.Lock()
		n.noiseFloor = e.NoiseFloor
		n.threshold = e.Threshold
		n.mu.Unlock()
	case session.ReasonSilence:
		n.handlePause(cfg, e)
	case session.ReasonSound:
		n.handleResume(cfg, e)
	case session.ReasonStop:
		n.handleStop(cfg, e)
	case session.ReasonError:
		if cfg.HasWebhook() {
			go n.sendErrorWebhook(cfg, e)
		}
		n.resetSession()
	case session.ReasonAbort, session.ReasonReset:
		n.resetSession()
	}
}

// HandleUploadAbandoned sends the upload abandonment email alert.
func (n *Notifier) HandleUploadAbandoned(filename, lastError string) {
	cfg := n.cfg.Snapshot()
	if !cfg.HasGraph() {
		return
	}
	go func() {
		util.LogNotifyResult(
			func() error {
				return sendUploadAbandonedEmail(BuildGraphConfig(cfg), cfg.RecorderName, filename, lastError)
			},
			"Upload abandoned email",
		)
	}()
}

// Reset clears the per-session notification state.
func (n *Notifier) Reset() {
	n.resetSession()
}

// Close disconnects cached channel clients.
func (n *Notifier) Close() {
	n.clientMu.Lock()
	if n.mqttClient != nil {
		n.mqttClient.Disconnect(250)
		n.mqttClient = nil
		n.mqttKey = ""
	}
	n.clientMu.Unlock()
}

// handlePause sends the pause alert once per pause period.
func (n *Notifier) handlePause(cfg config.Snapshot, e session.TransitionEvent) {
	n.mu.Lock()
	n.pauseCount++
	floor, threshold := n.noiseFloor, n.threshold
	shouldSend := !n.pauseWebhookSent && cfg.HasWebhook()
	if shouldSend {
		n.pauseWebhookSent = true
	}
	n.mu.Unlock()

	if shouldSend {
		go n.sendPauseWebhook(cfg, e, floor, threshold)
	}
}

// handleResume sends the resume alert if the matching pause alert went out,
// and accounts the removed dead air for the session report.
func (n *Notifier) handleResume(cfg config.Snapshot, e session.TransitionEvent) {
	n.mu.Lock()
	n.deadAirRemovedMs += e.SilenceMs
	floor, threshold := n.noiseFloor, n.threshold
	shouldSend := n.pauseWebhookSent
	n.pauseWebhookSent = false
	n.mu.Unlock()

	if shouldSend {
		go n.sendResumeWebhook(cfg, e, floor, threshold)
	}
}

// handleStop sends the end-of-session report and clears the counters.
func (n *Notifier) handleStop(cfg config.Snapshot, e session.TransitionEvent) {
	n.mu.Lock()
	pauses := n.pauseCount
	removed := n.deadAirRemovedMs
	n.mu.Unlock()
	n.resetSession()

	if cfg.HasWebhook() {
		go n.sendSessionReport(cfg, e, pauses, removed)
	}
}

// resetSession clears pause tracking and session counters.
func (n *Notifier) resetSession() {
	n.mu.Lock()
	n.pauseWebhookSent = false
	n.pauseCount = 0
	n.deadAirRemovedMs = 0
	n.noiseFloor = 0
	n.threshold = 0
	n.mu.Unlock()
}

//nolint:gocritic // hugeParam: copy is acceptable for infrequent notification events
func (n *Notifier) sendPauseWebhook(cfg config.Snapshot, e session.TransitionEvent, floor, threshold float64) {
	util.LogNotifyResult(
		func() error { return SendPauseWebhook(cfg.WebhookURL, e.SessionID, e.SilenceMs, floor, threshold) },
		"Pause webhook",
	)
}

//nolint:gocritic // hugeParam: copy is acceptable for infrequent notification events
func (n *Notifier) sendResumeWebhook(cfg config.Snapshot, e session.TransitionEvent, floor, threshold float64) {
	util.LogNotifyResult(
		func() error { return SendResumeWebhook(cfg.WebhookURL, e.SessionID, e.SilenceMs, floor, threshold) },
		"Resume webhook",
	)
}

//nolint:gocritic // hugeParam: copy is acceptable for infrequent notification events
func (n *Notifier) sendSessionReport(cfg config.Snapshot, e session.TransitionEvent, pauses int, removedMs int64) {
	util.LogNotifyResult(
		func() error {
			return SendSessionReportWebhook(cfg.WebhookURL, e.SessionID, e.Output, pauses, removedMs)
		},
		"Session report webhook",
	)
}

//nolint:gocritic // hugeParam: copy is acceptable for infrequent notification events
func (n *Notifier) sendErrorWebhook(cfg config.Snapshot, e session.TransitionEvent) {
	util.LogNotifyResult(
		func() error { return SendErrorWebhook(cfg.WebhookURL, e.SessionID, e.Error) },
		"Error webhook",
	)
}

func (n *Notifier) publishMQTT(cfg config.MQTTNotifyConfig, e session.TransitionEvent) {
	util.LogNotifyResult(
		func() error {
			client, err := n.getOrCreateMQTTClient(cfg)
			if err != nil {
				return err
			}
			return publishMQTTState(client, cfg, e.To, string(e.Reason), e.SessionID)
		},
		"MQTT state",
	)
}

func (n *Notifier) sendZabbixState(cfg config.ZabbixNotifyConfig, e session.TransitionEvent) {
	util.LogNotifyResult(
		func() error {
			if e.Reason == session.ReasonSilence {
				n.mu.Lock()
				threshold := n.threshold
				n.mu.Unlock()
				return SendPauseZabbix(cfg, e.SilenceMs, threshold)
			}
			return SendStateZabbix(cfg, e.To, string(e.Reason))
		},
		"Zabbix state",
	)
}

// getOrCreateMQTTClient returns the cached MQTT client, reconnecting when the
// broker settings changed since it was built.
func (n *Notifier) getOrCreateMQTTClient(cfg config.MQTTNotifyConfig) (mqtt.Client, error) {
	key := mqttClientKey(cfg)

	n.clientMu.Lock()
	defer n.clientMu.Unlock()

	if n.mqttClient != nil && n.mqttKey == key {
		return n.mqttClient, nil
	}
	if n.mqttClient != nil {
		n.mqttClient.Disconnect(250)
		n.mqttClient = nil
	}

	client, err := newMQTTClient(cfg)
	if err != nil {
		return nil, err
	}
	n.mqttClient = client
	n.mqttKey = key
	return client, nil
}

// BuildGraphConfig creates a GraphConfig from the config snapshot.
//
//nolint:gocritic // hugeParam: copy is acceptable for infrequent notification events
func BuildGraphConfig(cfg config.Snapshot) *GraphConfig {
	return &GraphConfig{
		TenantID:     cfg.GraphTenantID,
		ClientID:     cfg.GraphClientID,
		ClientSecret: cfg.GraphClientSecret,
		FromAddress:  cfg.GraphFromAddress,
		Recipients:   cfg.GraphRecipients,
	}
}
