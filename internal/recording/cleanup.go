package recording

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/castwork/deadair/internal/config"
	"github.com/castwork/deadair/internal/eventlog"
	"github.com/castwork/deadair/internal/types"
	"github.com/castwork/deadair/internal/util"
)

// Cleaner prunes recordings past the configured retention window. It runs
// daily at 03:00 and can also be triggered manually.
type Cleaner struct {
	cfg    *config.Config
	logger *eventlog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCleaner creates a retention cleaner.
func NewCleaner(cfg *config.Config, logger *eventlog.Logger) *Cleaner {
	return &Cleaner{
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// Start launches the daily cleanup scheduler.
func (c *Cleaner) Start() {
	go func() {
		for {
			// Calculate duration until next 03:00
			now := time.Now()
			next := time.Date(now.Year(), now.Month(), now.Day(), 3, 0, 0, 0, now.Location())
			if now.After(next) {
				next = next.Add(24 * time.Hour)
			}
			duration := next.Sub(now)

			slog.Info("cleanup scheduler: next run scheduled", "at", next.Format(time.DateTime))

			select {
			case <-time.After(duration):
				c.Run()
			case <-c.stopCh:
				slog.Info("cleanup scheduler stopped")
				return
			}
		}
	}()
}

// Stop halts the scheduler.
func (c *Cleaner) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
}

// Run performs one cleanup pass over local and S3 storage.
func (c *Cleaner) Run() {
	snap := c.cfg.Snapshot()

	// Retention 0 keeps recordings forever
	if snap.RetentionDays == 0 {
		return
	}

	slog.Info("cleanup: starting retention cleanup", "retention_days", snap.RetentionDays)

	if snap.StorageMode == types.StorageLocal || snap.StorageMode == types.StorageBoth {
		c.cleanupLocal(&snap)
	}
	if snap.StorageMode == types.StorageS3 || snap.StorageMode == types.StorageBoth {
		c.cleanupS3(&snap)
	}

	slog.Info("cleanup: retention cleanup completed")
}

// cleanupLocal removes local recordings older than the retention window.
func (c *Cleaner) cleanupLocal(snap *config.Snapshot) {
	if snap.OutputDir == "" {
		return
	}

	cutoff := time.Now().AddDate(0, 0, -snap.RetentionDays)
	safeName := sanitizeFilename(snap.RecorderName)

	entries, err := os.ReadDir(snap.OutputDir)
	if err != nil {
		slog.Warn("cleanup: failed to read output directory", "path", snap.OutputDir, "error", err)
		return
	}

	var deleted int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		// Only touch files this recorder wrote
		if !strings.HasPrefix(name, safeName+"-") {
			continue
		}

		fileDate, ok := util.ExtractDateFromFilename(name)
		if !ok {
			continue
		}

		if fileDate.Before(cutoff) {
			filePath := filepath.Join(snap.OutputDir, name)
			if err := os.Remove(filePath); err != nil {
				slog.Warn("cleanup: failed to delete local file", "path", filePath, "error", err)
			} else {
				deleted++
				slog.Debug("cleanup: deleted local file", "file", name)
			}
		}
	}

	if deleted > 0 {
		slog.Info("cleanup: deleted local files", "count", deleted)
		c.logCleanup(deleted, "local")
	}
}

// cleanupS3 removes S3 objects older than the retention window.
func (c *Cleaner) cleanupS3(snap *config.Snapshot) {
	if !snap.HasS3() {
		return
	}

	client, err := newS3Client(SnapshotToS3Config(snap))
	if err != nil {
		slog.Warn("cleanup: failed to create S3 client", "error", err)
		return
	}

	cutoff := time.Now().AddDate(0, 0, -snap.RetentionDays)

	ctx, cancel := context.WithTimeoutCause(
		context.Background(),
		5*time.Minute,
		errors.New("s3 cleanup timeout"),
	)
	defer cancel()

	var deleted int
	var continuationToken *string

	for {
		input := &s3.ListObjectsV2Input{
			Bucket: aws.String(snap.S3Bucket),
			Prefix: aws.String("recordings/"),
		}
		if continuationToken != nil {
			input.ContinuationToken = continuationToken
		}

		output, err := client.ListObjectsV2(ctx, input)
		if err != nil {
			slog.Warn("cleanup: failed to list S3 objects", "bucket", snap.S3Bucket, "error", err)
			return
		}

		for _, obj := range output.Contents {
			key := aws.ToString(obj.Key)

			fileDate, ok := util.ExtractDateFromFilename(filepath.Base(key))
			if !ok {
				continue
			}

			if fileDate.Before(cutoff) {
				_, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
					Bucket: aws.String(snap.S3Bucket),
					Key:    obj.Key,
				})
				if err != nil {
					slog.Warn("cleanup: failed to delete S3 object", "key", key, "error", err)
				} else {
					deleted++
					slog.Debug("cleanup: deleted S3 object", "key", key)
				}
			}
		}

		if !aws.ToBool(output.IsTruncated) {
			break
		}
		continuationToken = output.NextContinuationToken
	}

	if deleted > 0 {
		slog.Info("cleanup: deleted S3 objects", "count", deleted)
		c.logCleanup(deleted, "s3")
	}
}

func (c *Cleaner) logCleanup(deleted int, storage string) {
	if c.logger == nil {
		return
	}
	if err := c.logger.LogCleanup(deleted, storage); err != nil {
		slog.Warn("cleanup: failed to log event", "error", err)
	}
}

// CleanStaleSegments removes leftover segment directories from sessions that
// never finalized, such as after a crash.
func CleanStaleSegments(tempDir string) {
	entries, err := os.ReadDir(tempDir)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("cleanup: failed to read segment directory", "path", tempDir, "error", err)
		}
		return
	}

	cutoff := time.Now().Add(-24 * time.Hour)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(tempDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			slog.Warn("cleanup: failed to remove stale segments", "path", path, "error", err)
		} else {
			slog.Info("cleanup: removed stale segments", "path", path)
		}
	}
}
