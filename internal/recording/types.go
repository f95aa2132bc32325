// Package recording writes the session output. The sink encodes video and
// analyzed PCM audio into numbered segment files: pausing closes the current
// segment, resuming opens the next one, and stopping merges the segments into
// a single seamless recording with no dead air. Finished recordings are
// uploaded to S3-compatible storage and pruned by retention cleanup.
package recording

import (
	"errors"
	"fmt"
	"time"

	"github.com/castwork/deadair/internal/config"
)

// Sentinel errors for sink operations.
var (
	// ErrSinkRunning is returned when starting a sink that is already running.
	ErrSinkRunning = errors.New("sink is already running")

	// ErrSinkNotRunning is returned when operating on a sink that is not running.
	ErrSinkNotRunning = errors.New("sink is not running")

	// ErrNoSegments is returned when stopping a sink that wrote no segments.
	ErrNoSegments = errors.New("no segments recorded")
)

// DefaultTempDir is the default directory for in-progress segments.
const DefaultTempDir = "/tmp/deadair-segments"

// timestampLayout names recordings down to the second so quick
// start/stop cycles never collide.
const timestampLayout = "2006-01-02-15-04-05"

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint        string `json:"endpoint,omitempty"`          // Custom S3 endpoint (empty for AWS)
	Bucket          string `json:"bucket,omitempty"`            // S3 bucket name
	AccessKeyID     string `json:"access_key_id,omitempty"`     // AWS access key ID
	SecretAccessKey string `json:"secret_access_key,omitempty"` // AWS secret access key
}

// IsConfigured returns true if S3 settings are configured.
func (c *S3Config) IsConfigured() bool {
	return c.Bucket != "" && c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// SnapshotToS3Config extracts S3 configuration from a config snapshot.
func SnapshotToS3Config(s *config.Snapshot) *S3Config {
	return &S3Config{
		Endpoint:        s.S3Endpoint,
		Bucket:          s.S3Bucket,
		AccessKeyID:     s.S3AccessKeyID,
		SecretAccessKey: s.S3SecretAccessKey,
	}
}

// UploadStatus summarizes the state of the S3 upload pipeline.
type UploadStatus struct {
	LastUploadAt string `json:"last_upload_at,omitempty"` // RFC3339 time of last successful upload
	LastError    string `json:"last_error,omitempty"`     // Most recent upload error
	QueueDepth   int    `json:"queue_depth,omitempty"`    // Uploads waiting in the queue
	PendingRetry int    `json:"pending_retry,omitempty"`  // Failed uploads awaiting retry
}

// sanitizeFilename removes or replaces characters that are invalid in filenames.
func sanitizeFilename(name string) string {
	result := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '-' || c == '_' {
			result = append(result, c)
		} else if c == ' ' {
			result = append(result, '-')
		}
	}
	if len(result) == 0 {
		return "recording"
	}
	return string(result)
}

// recordingBaseName builds the output name for a session started at t,
// without extension: "My-Recorder-2026-01-15-14-00-30".
func recordingBaseName(recorderName string, t time.Time) string {
	return fmt.Sprintf("%s-%s", sanitizeFilename(recorderName), t.Format(timestampLayout))
}

// generateS3Key creates the S3 object key for a finished recording.
func generateS3Key(filename string) string {
	// Flat path with prefix: recordings/my-recorder-2026-01-15-14-00-30.mp4
	return fmt.Sprintf("recordings/%s", filename)
}

// contentTypeFor returns the MIME type for a recording file extension.
func contentTypeFor(ext string) string {
	switch ext {
	case ".webm":
		return "video/webm"
	default:
		return "video/mp4"
	}
}
