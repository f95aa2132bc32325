package notify

import (
	"cmp"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/castwork/deadair/internal/config"
	"github.com/castwork/deadair/internal/types"
	"github.com/castwork/deadair/internal/util"
)

const (
	defaultMQTTClientID = "deadair-recorder"
	mqttConnectTimeout  = 5 * time.Second
	mqttPublishTimeout  = 5 * time.Second
	mqttKeepAlive       = 60 * time.Second
)

// mqttStatePayload is the JSON message published on every state transition.
type mqttStatePayload struct {
	State     string `json:"state"`
	Reason    string `json:"reason,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

// stateTopic builds the state topic from the configured prefix.
func stateTopic(prefix string) string {
	return strings.TrimSuffix(prefix, "/") + "/state"
}

// mqttClientKey identifies the connection settings a cached client was built
// with, so a config change forces a reconnect.
func mqttClientKey(cfg config.MQTTNotifyConfig) string {
	return strings.Join([]string{cfg.Broker, cfg.ClientID, cfg.Username, cfg.Password}, "\x00")
}

// mqttQoS clamps the configured QoS to the valid 0-2 range.
func mqttQoS(cfg config.MQTTNotifyConfig) byte {
	return byte(min(max(cfg.QoS, 0), 2))
}

// newMQTTClient connects a new client to the configured broker.
func newMQTTClient(cfg config.MQTTNotifyConfig) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cmp.Or(cfg.ClientID, defaultMQTTClientID))
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(mqttKeepAlive)
	opts.SetConnectTimeout(mqttConnectTimeout)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		slog.Warn("mqtt connection lost", "broker", cfg.Broker, "error", err)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("connect to %s timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		client.Disconnect(0)
		return nil, util.WrapError("connect to mqtt broker", err)
	}
	return client, nil
}

// publishMQTTState publishes a state transition. State messages are retained
// so subscribers see the current state immediately after connecting.
func publishMQTTState(client mqtt.Client, cfg config.MQTTNotifyConfig, state types.RecordingState, reason, sessionID string) error {
	payload, err := json.Marshal(mqttStatePayload{
		State:     string(state),
		Reason:    reason,
		SessionID: sessionID,
		Timestamp: timestampUTC(),
	})
	if err != nil {
		return util.WrapError("marshal mqtt payload", err)
	}

	token := client.Publish(stateTopic(cfg.Topic), mqttQoS(cfg), true, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("publish to %s timed out", stateTopic(cfg.Topic))
	}
	return token.Error()
}

// SendTestMQTT connects to the broker, publishes a test message, and
// disconnects. Used to verify MQTT configuration.
func SendTestMQTT(cfg config.MQTTNotifyConfig) error {
	if cfg.Broker == "" || cfg.Topic == "" {
		return fmt.Errorf("mqtt broker or topic not configured")
	}

	client, err := newMQTTClient(cfg)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	payload, err := json.Marshal(mqttStatePayload{
		State:     "TEST",
		Timestamp: timestampUTC(),
	})
	if err != nil {
		return util.WrapError("marshal mqtt payload", err)
	}

	token := client.Publish(stateTopic(cfg.Topic), mqttQoS(cfg), false, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("publish to %s timed out", stateTopic(cfg.Topic))
	}
	return token.Error()
}
