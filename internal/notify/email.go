package notify

import (
	"fmt"

	"github.com/castwork/deadair/internal/types"
	"github.com/castwork/deadair/internal/util"
)

// GraphConfig is the configuration for email notifications.
type GraphConfig = types.GraphConfig

// uploadAbandonedBody composes the alert body for an abandoned upload.
func uploadAbandonedBody(recorderName, filename, lastError string) string {
	return fmt.Sprintf(
		"A recording upload was abandoned at %s.\n\n"+
			"Recorder: %s\n"+
			"File: %s\n"+
			"Last error: %s\n\n"+
			"The file could not be uploaded to S3 after exhausting all retries. "+
			"It remains on local disk until the problem is resolved.",
		util.HumanTime(), recorderName, filename, lastError,
	)
}

// sendUploadAbandonedEmail sends an upload abandonment alert via Microsoft Graph.
func sendUploadAbandonedEmail(cfg *GraphConfig, recorderName, filename, lastError string) error {
	if !IsConfigured(cfg) {
		return nil
	}

	client, err := NewGraphClient(cfg)
	if err != nil {
		return util.WrapError("create Graph client", err)
	}

	recipients := ParseRecipients(cfg.Recipients)
	if len(recipients) == 0 {
		return fmt.Errorf("no valid recipients")
	}

	subject := "[ALERT] Upload Abandoned - " + recorderName
	if err := client.SendMail(recipients, subject, uploadAbandonedBody(recorderName, filename, lastError)); err != nil {
		return util.WrapError("send email via Graph", err)
	}

	return nil
}

// SendTestEmail sends a test email to verify email configuration.
func SendTestEmail(cfg *GraphConfig, recorderName string) error {
	if err := ValidateConfig(cfg); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	client, err := NewGraphClient(cfg)
	if err != nil {
		return fmt.Errorf("create Graph client: %w", err)
	}

	// Validate authentication first
	if err := client.ValidateAuth(); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	subject := "[TEST] " + recorderName
	body := fmt.Sprintf(
		"Test email from %s.\n\n"+
			"Time: %s\n\n"+
			"Microsoft Graph configuration is working correctly.",
		AppName, util.HumanTime(),
	)

	recipients := ParseRecipients(cfg.Recipients)
	if err := client.SendMail(recipients, subject, body); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	return nil
}
