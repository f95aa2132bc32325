package recording

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/castwork/deadair/internal/capture"
	"github.com/castwork/deadair/internal/config"
	"github.com/castwork/deadair/internal/eventlog"
	"github.com/castwork/deadair/internal/ffmpeg"
	"github.com/castwork/deadair/internal/types"
	"github.com/castwork/deadair/internal/util"
)

// segmentCloseTimeout bounds how long a closing segment may take to flush.
const segmentCloseTimeout = 10 * time.Second

// mergeTimeout bounds the concat merge of a finished session.
const mergeTimeout = 2 * time.Minute

// Recorder is the segmented capture sink. Each segment is one FFmpeg process
// encoding the video device and the analyzed PCM audio into a file; pause
// closes the current segment and resume opens the next, so the merged output
// contains only the time the signal carried sound.
type Recorder struct {
	cfg    *config.Config
	logger *eventlog.Logger

	mu           sync.RWMutex
	running      bool
	paused       bool
	ffmpegPath   string
	sessionDir   string
	baseName     string
	container    string
	ext          string
	videoArgs    []string
	codecArgs    []string
	segments     []string
	proc         *ffmpeg.Process
	startTime    time.Time
	bytesWritten int64
	lastError    string

	// S3 client, recreated when credentials change
	s3Mu        sync.Mutex
	s3Client    *s3.Client
	s3ClientKey string

	// Upload queue
	uploadQueue    chan uploadRequest
	uploadStopCh   chan struct{}
	uploadWg       sync.WaitGroup
	closeOnce      sync.Once
	lastUploadTime *time.Time
	lastUploadErr  string

	retryMu    sync.Mutex
	retryQueue []pendingUpload

	onUploadAbandoned func(filename, reason string)
}

// New creates a recorder and starts its upload worker. The worker runs for
// the recorder's whole lifetime so retries survive across sessions.
func New(cfg *config.Config, logger *eventlog.Logger) *Recorder {
	r := &Recorder{
		cfg:          cfg,
		logger:       logger,
		uploadQueue:  make(chan uploadRequest, uploadQueueSize),
		uploadStopCh: make(chan struct{}),
	}

	r.uploadWg.Add(1)
	go r.uploadWorker()

	return r
}

// SetOnUploadAbandoned registers a callback fired when an upload is dropped
// after exhausting its retry window. Must be set before the first session.
func (r *Recorder) SetOnUploadAbandoned(fn func(filename, reason string)) {
	r.onUploadAbandoned = fn
}

// Start opens the session's first segment.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return ErrSinkRunning
	}

	snap := r.cfg.Snapshot()

	videoArgs, err := capture.VideoInputArgs(snap.VideoInput, snap.Orientation, snap.Framerate)
	if err != nil {
		return err
	}

	now := time.Now()
	baseName := recordingBaseName(snap.RecorderName, now)
	sessionDir := filepath.Join(cmp.Or(snap.TempDir, DefaultTempDir), baseName)
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		return util.WrapError("create segment directory", err)
	}

	r.ffmpegPath = cmp.Or(snap.FFmpegPath, "ffmpeg")
	r.sessionDir = sessionDir
	r.baseName = baseName
	r.container = types.ContainerFor(snap.Codec)
	r.ext = types.ExtFor(snap.Codec)
	r.videoArgs = videoArgs
	r.codecArgs = types.CodecArgsFor(snap.Codec)
	r.segments = nil
	r.startTime = now
	r.bytesWritten = 0
	r.lastError = ""

	if err := r.startSegmentLocked(); err != nil {
		if rmErr := os.Remove(sessionDir); rmErr != nil {
			slog.Warn("failed to remove segment directory", "path", sessionDir, "error", rmErr)
		}
		return err
	}

	r.running = true
	r.paused = false

	slog.Info("sink started", "file", baseName+r.ext, "codec", snap.Codec)
	return nil
}

// Pause closes the current segment. The video device is released until the
// next segment opens on resume.
func (r *Recorder) Pause() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return ErrSinkNotRunning
	}
	if r.paused {
		r.mu.Unlock()
		return nil
	}
	proc := r.proc
	r.proc = nil
	r.paused = true
	r.mu.Unlock()

	r.finishSegment(proc)

	slog.Info("segment closed for pause", "segments", r.SegmentCount())
	return nil
}

// Resume opens the next segment. On failure the sink stays paused so the
// caller can retry.
func (r *Recorder) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return ErrSinkNotRunning
	}
	if !r.paused {
		return nil
	}

	if err := r.startSegmentLocked(); err != nil {
		r.lastError = err.Error()
		return err
	}

	r.paused = false
	return nil
}

// Stop closes the open segment, merges all segments into the final output
// under the configured output directory and queues it for upload. It returns
// the path of the merged recording.
func (r *Recorder) Stop() (string, error) {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return "", ErrSinkNotRunning
	}
	proc := r.proc
	r.proc = nil
	r.running = false
	r.paused = false
	segments := slices.Clone(r.segments)
	sessionDir := r.sessionDir
	outputName := r.baseName + r.ext
	container := r.container
	ffmpegPath := r.ffmpegPath
	r.mu.Unlock()

	r.finishSegment(proc)

	if len(segments) == 0 {
		return "", ErrNoSegments
	}

	snap := r.cfg.Snapshot()
	if err := os.MkdirAll(snap.OutputDir, 0o755); err != nil {
		return "", util.WrapError("create output directory", err)
	}
	outPath := filepath.Join(snap.OutputDir, outputName)

	if err := mergeSegments(ffmpegPath, sessionDir, segments, container, outPath); err != nil {
		return "", err
	}

	if err := os.RemoveAll(sessionDir); err != nil {
		slog.Warn("failed to remove segment directory", "path", sessionDir, "error", err)
	}

	r.queueForUpload(outPath)

	slog.Info("recording finalized", "file", outputName, "segments", len(segments))
	return outPath, nil
}

// WritePCM feeds analyzed PCM into the current segment encoder. It is
// attached as a consumer on the capture source and discards audio while no
// segment is open.
func (r *Recorder) WritePCM(buf []byte, n int) {
	r.mu.RLock()
	proc := r.proc
	r.mu.RUnlock()

	if proc == nil {
		return
	}

	written, err := proc.Stdin.Write(buf[:n])
	if err != nil {
		// A segment closing mid-write surfaces as a closed pipe
		if !errors.Is(err, os.ErrClosed) && !errors.Is(err, io.ErrClosedPipe) {
			r.setError(err.Error())
		}
		return
	}

	r.mu.Lock()
	r.bytesWritten += int64(written)
	r.mu.Unlock()
}

// Running reports whether a session is active.
func (r *Recorder) Running() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// SegmentCount returns the number of segments in the active session.
func (r *Recorder) SegmentCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.segments)
}

// BytesWritten returns the PCM bytes fed into the active session.
func (r *Recorder) BytesWritten() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bytesWritten
}

// Status returns the sink's process status.
func (r *Recorder) Status() types.ProcessStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status := types.ProcessStatus{
		State: types.ProcessStopped,
		Error: r.lastError,
	}
	if r.running {
		status.State = types.ProcessRunning
	}
	return status
}

// TestS3 tests the current S3 configuration by uploading a probe object.
func (r *Recorder) TestS3() error {
	snap := r.cfg.Snapshot()
	return TestS3Connection(SnapshotToS3Config(&snap))
}

// Close stops the sink if needed and shuts down the upload worker after
// draining queued uploads.
func (r *Recorder) Close() {
	if r.Running() {
		if _, err := r.Stop(); err != nil {
			slog.Warn("failed to stop sink during close", "error", err)
		}
	}

	r.closeOnce.Do(func() {
		close(r.uploadStopCh)
	})
	r.uploadWg.Wait()
}

// startSegmentLocked opens the encoder for the next segment. Caller must
// hold r.mu.
func (r *Recorder) startSegmentLocked() error {
	seg := filepath.Join(r.sessionDir, fmt.Sprintf("segment-%04d%s", len(r.segments)+1, r.ext))

	proc, err := ffmpeg.StartProcess(r.ffmpegPath, segmentArgs(r.videoArgs, r.codecArgs, r.container, seg))
	if err != nil {
		return err
	}

	r.proc = proc
	r.segments = append(r.segments, seg)

	slog.Info("segment opened", "file", filepath.Base(seg))
	return nil
}

// finishSegment closes the encoder's stdin and waits for it to flush the
// segment. The video device stays busy until the process is reaped, so the
// wait must complete before the next segment can open.
func (r *Recorder) finishSegment(proc *ffmpeg.Process) {
	if proc == nil {
		return
	}
	defer proc.Cancel()

	if err := proc.Stdin.Close(); err != nil {
		slog.Warn("failed to close segment stdin", "error", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- proc.Cmd.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			if msg := util.ExtractLastError(proc.Stderr.String()); msg != "" {
				r.setError(msg)
			}
		}
	case <-time.After(segmentCloseTimeout):
		slog.Warn("segment encoder did not stop in time")
		proc.Cancel()
		<-done
	}
}

func (r *Recorder) setError(msg string) {
	r.mu.Lock()
	r.lastError = msg
	r.mu.Unlock()
}

// segmentArgs builds the FFmpeg command for one segment: the video device as
// input 0 and analyzed PCM on stdin as input 1, mapped explicitly so the
// recording's audio is exactly what detection heard.
func segmentArgs(videoArgs, codecArgs []string, container, outPath string) []string {
	args := []string{"-hide_banner", "-loglevel", "warning"}
	args = append(args, videoArgs...)
	args = append(args, ffmpeg.PCMInputArgs()...)
	args = append(args, "-map", "0:v", "-map", "1:a")
	args = append(args, codecArgs...)
	args = append(args, "-f", container, "-y", outPath)
	return args
}

// concatListContent renders the FFmpeg concat demuxer list for the segments.
// Entries are relative to the list file so the paths stay protocol-safe.
func concatListContent(segments []string) string {
	var b strings.Builder
	for _, seg := range segments {
		fmt.Fprintf(&b, "file '%s'\n", filepath.Base(seg))
	}
	return b.String()
}

// mergeArgs builds the FFmpeg command that joins segments without re-encoding.
func mergeArgs(listPath, container, outPath string) []string {
	return []string{
		"-hide_banner", "-loglevel", "warning",
		"-f", "concat",
		"-i", listPath,
		"-c", "copy",
		"-f", container,
		"-y", outPath,
	}
}

// mergeSegments concatenates the session's segments into the final output.
func mergeSegments(ffmpegPath, sessionDir string, segments []string, container, outPath string) error {
	listPath := filepath.Join(sessionDir, "segments.txt")
	if err := os.WriteFile(listPath, []byte(concatListContent(segments)), 0o644); err != nil {
		return util.WrapError("write concat list", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), mergeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, ffmpegPath, mergeArgs(listPath, container, outPath)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := util.ExtractLastError(stderr.String()); msg != "" {
			return fmt.Errorf("merge segments: %s", msg)
		}
		return util.WrapError("merge segments", err)
	}

	return nil
}
