package recording

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/castwork/deadair/internal/eventlog"
	"github.com/castwork/deadair/internal/metrics"
	"github.com/castwork/deadair/internal/types"
	"github.com/castwork/deadair/internal/util"
)

// uploadQueueSize bounds the number of finished recordings waiting for upload.
const uploadQueueSize = 100

// uploadTimeout bounds a single S3 PutObject call.
const uploadTimeout = 5 * time.Minute

// uploadRetryInterval is how often parked upload failures are retried.
const uploadRetryInterval = 15 * time.Minute

// MaxUploadRetryAge is the maximum age for retrying uploads.
const MaxUploadRetryAge = 24 * time.Hour

// uploadRequest represents a file to be uploaded to S3.
type uploadRequest struct {
	localPath string
	s3Key     string
	fileSize  int64
}

// pendingUpload tracks a failed upload for retry.
type pendingUpload struct {
	request      uploadRequest
	firstAttempt time.Time
	retryCount   int
	lastError    string
}

// queueForUpload hands a finished recording to the upload worker when the
// storage mode requires S3.
func (r *Recorder) queueForUpload(filePath string) {
	snap := r.cfg.Snapshot()

	// Local-only mode: no upload needed
	if snap.StorageMode == types.StorageLocal {
		slog.Info("local storage mode, file saved", "path", filePath)
		return
	}

	if !snap.HasS3() {
		slog.Warn("S3 not configured but storage mode requires it", "mode", snap.StorageMode)
		return
	}

	info, err := os.Stat(filePath)
	if err != nil {
		slog.Warn("failed to stat recording file", "error", err)
		return
	}

	s3Key := generateS3Key(filepath.Base(filePath))

	select {
	case r.uploadQueue <- uploadRequest{
		localPath: filePath,
		s3Key:     s3Key,
		fileSize:  info.Size(),
	}:
		slog.Info("queued file for upload", "file", filepath.Base(filePath))
		r.logUpload(eventlog.UploadQueued, filePath, s3Key, info.Size(), 0, "")
		metrics.RecordUpload("queued")
	default:
		slog.Warn("upload queue full", "file", filepath.Base(filePath))
	}
}

// uploadWorker processes the upload queue, retrying parked failures
// periodically and draining remaining items on shutdown.
func (r *Recorder) uploadWorker() {
	defer r.uploadWg.Done()

	retry := time.NewTicker(uploadRetryInterval)
	defer retry.Stop()

	for {
		select {
		case <-r.uploadStopCh:
			// Drain remaining items before exiting
			for {
				select {
				case req := <-r.uploadQueue:
					r.uploadFile(req)
				default:
					return
				}
			}
		case req := <-r.uploadQueue:
			r.uploadFile(req)
		case <-retry.C:
			r.processRetryQueue()
		}
	}
}

// uploadFile uploads a queued recording, parking it for retry on failure.
func (r *Recorder) uploadFile(req uploadRequest) {
	err := r.putObject(req)
	if err == nil {
		r.recordUploadSuccess()
		slog.Info("upload completed", "s3_key", req.s3Key)
		r.logUpload(eventlog.UploadCompleted, req.localPath, req.s3Key, req.fileSize, 0, "")
		metrics.RecordUpload("completed")
		r.removeAfterUpload(req.localPath)
		return
	}

	if errors.Is(err, os.ErrNotExist) {
		slog.Warn("upload file no longer exists", "path", req.localPath)
		return
	}

	r.recordUploadError(err.Error())
	slog.Error("upload failed", "s3_key", req.s3Key, "error", err)
	r.logUpload(eventlog.UploadFailed, req.localPath, req.s3Key, req.fileSize, 0, err.Error())
	metrics.RecordUpload("failed")
	r.addToRetryQueue(req, err.Error())
}

// putObject uploads one file to the configured bucket.
func (r *Recorder) putObject(req uploadRequest) error {
	ctx, cancel := context.WithTimeoutCause(
		context.Background(),
		uploadTimeout,
		errors.New("s3 upload timeout"),
	)
	defer cancel()

	file, err := os.Open(req.localPath)
	if err != nil {
		return err
	}
	defer util.SafeCloseFunc(file, "upload file")()

	client, bucket, err := r.getOrCreateS3Client()
	if err != nil {
		return err
	}
	if client == nil {
		return errors.New("no S3 client available")
	}

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(req.s3Key),
		Body:          file,
		ContentLength: aws.Int64(req.fileSize),
		ContentType:   aws.String(contentTypeFor(filepath.Ext(req.localPath))),
	})
	return err
}

// removeAfterUpload deletes the local copy in S3-only mode. In "both" mode
// the file stays until retention cleanup.
func (r *Recorder) removeAfterUpload(localPath string) {
	if r.cfg.Snapshot().StorageMode != types.StorageS3 {
		return
	}
	if err := os.Remove(localPath); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to delete local file after upload", "path", localPath, "error", err)
	}
}

// addToRetryQueue parks a failed upload for the next retry pass.
func (r *Recorder) addToRetryQueue(req uploadRequest, errMsg string) {
	r.retryMu.Lock()
	defer r.retryMu.Unlock()

	// Prevent duplicates
	for _, p := range r.retryQueue {
		if p.request.localPath == req.localPath {
			return
		}
	}

	r.retryQueue = append(r.retryQueue, pendingUpload{
		request:      req,
		firstAttempt: time.Now(),
		lastError:    errMsg,
	})
	metrics.SetUploadRetryDepth(len(r.retryQueue))

	slog.Info("upload queued for retry", "file", filepath.Base(req.localPath))
}

// processRetryQueue attempts to upload all parked files, abandoning entries
// older than MaxUploadRetryAge.
func (r *Recorder) processRetryQueue() {
	r.retryMu.Lock()
	if len(r.retryQueue) == 0 {
		r.retryMu.Unlock()
		return
	}

	// Copy and clear queue
	pending := make([]pendingUpload, len(r.retryQueue))
	copy(pending, r.retryQueue)
	r.retryQueue = nil
	r.retryMu.Unlock()

	now := time.Now()

	for i := range pending {
		p := &pending[i]

		if now.Sub(p.firstAttempt) > MaxUploadRetryAge {
			slog.Warn("upload abandoned after 24h",
				"file", filepath.Base(p.request.localPath),
				"attempts", p.retryCount+1)
			r.logUpload(eventlog.UploadAbandoned, p.request.localPath, p.request.s3Key,
				p.request.fileSize, p.retryCount, "exceeded 24h retry limit")
			metrics.RecordUpload("abandoned")
			if r.onUploadAbandoned != nil {
				r.onUploadAbandoned(filepath.Base(p.request.localPath), p.lastError)
			}
			continue
		}

		p.retryCount++
		slog.Info("retrying upload",
			"file", filepath.Base(p.request.localPath),
			"attempt", p.retryCount)
		r.logUpload(eventlog.UploadRetry, p.request.localPath, p.request.s3Key,
			p.request.fileSize, p.retryCount, "")

		if !r.retryUpload(p) {
			r.retryMu.Lock()
			r.retryQueue = append(r.retryQueue, *p)
			r.retryMu.Unlock()
		}
	}

	r.retryMu.Lock()
	metrics.SetUploadRetryDepth(len(r.retryQueue))
	r.retryMu.Unlock()
}

// retryUpload performs the upload and reports whether the entry is settled.
// A missing local file counts as settled; there is nothing left to upload.
func (r *Recorder) retryUpload(p *pendingUpload) bool {
	err := r.putObject(p.request)
	if err == nil {
		r.recordUploadSuccess()
		slog.Info("retry upload completed", "s3_key", p.request.s3Key)
		r.logUpload(eventlog.UploadCompleted, p.request.localPath, p.request.s3Key,
			p.request.fileSize, p.retryCount, "")
		metrics.RecordUpload("completed")
		r.removeAfterUpload(p.request.localPath)
		return true
	}

	if errors.Is(err, os.ErrNotExist) {
		slog.Warn("retry file no longer exists", "path", p.request.localPath)
		return true
	}

	p.lastError = err.Error()
	r.recordUploadError(err.Error())
	slog.Error("retry upload failed", "s3_key", p.request.s3Key, "error", err)
	r.logUpload(eventlog.UploadFailed, p.request.localPath, p.request.s3Key,
		p.request.fileSize, p.retryCount, err.Error())
	metrics.RecordUpload("failed")
	return false
}

// getOrCreateS3Client returns the cached S3 client and bucket, rebuilding the
// client when the credentials in configuration have changed.
func (r *Recorder) getOrCreateS3Client() (*s3.Client, string, error) {
	snap := r.cfg.Snapshot()
	if !snap.HasS3() {
		return nil, "", nil
	}

	key := strings.Join([]string{snap.S3Endpoint, snap.S3Bucket, snap.S3AccessKeyID, snap.S3SecretAccessKey}, "\x00")

	r.s3Mu.Lock()
	defer r.s3Mu.Unlock()

	if r.s3Client != nil && r.s3ClientKey == key {
		return r.s3Client, snap.S3Bucket, nil
	}

	client, err := newS3Client(SnapshotToS3Config(&snap))
	if err != nil {
		return nil, "", err
	}

	r.s3Client = client
	r.s3ClientKey = key
	return client, snap.S3Bucket, nil
}

func (r *Recorder) recordUploadSuccess() {
	now := time.Now()
	r.mu.Lock()
	r.lastUploadTime = &now
	r.lastUploadErr = ""
	r.mu.Unlock()
}

func (r *Recorder) recordUploadError(msg string) {
	r.mu.Lock()
	r.lastUploadErr = msg
	r.mu.Unlock()
}

// UploadStatus summarizes the upload pipeline for the status API.
func (r *Recorder) UploadStatus() UploadStatus {
	r.retryMu.Lock()
	pending := len(r.retryQueue)
	r.retryMu.Unlock()

	r.mu.RLock()
	defer r.mu.RUnlock()

	status := UploadStatus{
		LastError:    r.lastUploadErr,
		QueueDepth:   len(r.uploadQueue),
		PendingRetry: pending,
	}
	if r.lastUploadTime != nil {
		status.LastUploadAt = r.lastUploadTime.Format(time.RFC3339)
	}
	return status
}

// logUpload writes an upload lifecycle event to the event log.
func (r *Recorder) logUpload(eventType eventlog.EventType, localPath, s3Key string, size int64, retryCount int, errMsg string) {
	if r.logger == nil {
		return
	}
	if err := r.logger.LogUpload(eventType, filepath.Base(localPath), s3Key, size, retryCount, errMsg); err != nil {
		slog.Warn("failed to log upload event", "error", err)
	}
}
