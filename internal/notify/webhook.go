package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/castwork/deadair/internal/util"
)

// WebhookPayload represents the data sent to webhook endpoints.
type WebhookPayload struct {
	Event             string  `json:"event"`
	SessionID         string  `json:"session_id,omitempty"`
	SilenceDurationMs int64   `json:"silence_duration_ms,omitempty"`
	NoiseFloor        float64 `json:"noise_floor,omitempty"`
	Threshold         float64 `json:"threshold,omitempty"`
	OutputFile        string  `json:"output_file,omitempty"`
	PauseCount        int     `json:"pause_count,omitempty"`
	DeadAirRemovedMs  int64   `json:"dead_air_removed_ms,omitempty"`
	Message           string  `json:"message,omitempty"`
	Timestamp         string  `json:"timestamp"`
}

// SendPauseWebhook notifies the configured webhook that the recording paused
// on silence.
func SendPauseWebhook(webhookURL, sessionID string, silenceMs int64, noiseFloor, threshold float64) error {
	return sendWebhook(webhookURL, &WebhookPayload{
		Event:             "recording_paused",
		SessionID:         sessionID,
		SilenceDurationMs: silenceMs,
		NoiseFloor:        noiseFloor,
		Threshold:         threshold,
		Timestamp:         timestampUTC(),
	})
}

// SendResumeWebhook notifies the configured webhook that sound returned and
// the recording resumed.
func SendResumeWebhook(webhookURL, sessionID string, totalSilenceMs int64, noiseFloor, threshold float64) error {
	return sendWebhook(webhookURL, &WebhookPayload{
		Event:             "recording_resumed",
		SessionID:         sessionID,
		SilenceDurationMs: totalSilenceMs,
		NoiseFloor:        noiseFloor,
		Threshold:         threshold,
		Timestamp:         timestampUTC(),
	})
}

// SendSessionReportWebhook sends the end-of-session summary.
func SendSessionReportWebhook(webhookURL, sessionID, outputFile string, pauseCount int, deadAirRemovedMs int64) error {
	return sendWebhook(webhookURL, &WebhookPayload{
		Event:            "session_stopped",
		SessionID:        sessionID,
		OutputFile:       outputFile,
		PauseCount:       pauseCount,
		DeadAirRemovedMs: deadAirRemovedMs,
		Timestamp:        timestampUTC(),
	})
}

// SendErrorWebhook notifies the configured webhook that a session failed.
func SendErrorWebhook(webhookURL, sessionID, message string) error {
	return sendWebhook(webhookURL, &WebhookPayload{
		Event:     "session_error",
		SessionID: sessionID,
		Message:   message,
		Timestamp: timestampUTC(),
	})
}

// SendTestWebhook sends a test webhook notification.
func SendTestWebhook(webhookURL, recorderName string) error {
	if webhookURL == "" {
		return fmt.Errorf("webhook URL not configured")
	}

	return sendWebhook(webhookURL, &WebhookPayload{
		Event:     "test",
		Message:   "This is a test notification from " + recorderName,
		Timestamp: timestampUTC(),
	})
}

// sendWebhook delivers a notification to the configured webhook endpoint.
func sendWebhook(webhookURL string, payload *WebhookPayload) error {
	if !util.IsConfigured(webhookURL) {
		return nil // Silently skip if not configured
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return util.WrapError("marshal payload", err)
	}

	client := &http.Client{Timeout: 10000 * time.Millisecond}
	resp, err := client.Post(webhookURL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return util.WrapError("send webhook request", err)
	}
	defer util.SafeCloseFunc(resp.Body, "webhook response body")()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}
