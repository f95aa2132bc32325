// Package audit captures short MP3 clips around automatic pauses so operators
// can verify the detector paused on real dead air and not on quiet program
// material.
package audit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/castwork/deadair/internal/ffmpeg"
	"github.com/castwork/deadair/internal/types"
)

const (
	// bytesPerSecond matches the analysis PCM format: 48kHz, stereo, 16-bit.
	bytesPerSecond = types.SampleRate * types.Channels * 2

	// Clip timing. A clip is the last program audio before the silence,
	// the first seconds of the silence itself, and the audio after resume.
	beforeSeconds     = 15
	maxSilenceSeconds = 5
	afterSeconds      = 15
	bufferSeconds     = beforeSeconds + maxSilenceSeconds + afterSeconds // 35 seconds

	// Buffer capacity in bytes (~6.7 MB).
	bufferCapacity = bufferSeconds * bytesPerSecond

	maxSilenceBytes = maxSilenceSeconds * bytesPerSecond
	afterBytes      = afterSeconds * bytesPerSecond

	// MP3 encoding settings.
	mp3Bitrate    = "64k"
	encodeTimeout = 30 * time.Second
)

// ClipResult contains the result of encoding a pause clip.
type ClipResult struct {
	// FilePath is the full path to the MP3 file.
	FilePath string
	// Filename is the base name of the MP3 file.
	Filename string
	// FileSize is the MP3 size in bytes.
	FileSize int64
	// SilenceDuration is how long the pause lasted.
	SilenceDuration time.Duration
	// PausedAt is when the silence that triggered the pause began.
	PausedAt time.Time
	// Error is non-nil if encoding failed.
	Error error
}

// ClipCallback is called when a clip is ready.
type ClipCallback func(result *ClipResult)

// Capturer keeps a ring buffer of recent PCM and assembles pause clips from
// it. Sections are snapshotted as soon as they are complete so a pause longer
// than the ring never aliases the clip audio.
type Capturer struct {
	mu sync.Mutex

	// Ring buffer for continuous audio capture.
	buffer       []byte
	writePos     int
	totalWritten int64

	// Pause event tracking.
	capturing       bool
	silenceStartPos int64 // Byte position where silence began (backdated by the debounce)
	endPos          int64 // Byte position where sound returned, 0 while still silent
	pausedAt        time.Time
	silenceDuration time.Duration

	// Snapshotted sections.
	savedBefore  []byte
	savedSilence []byte

	// Configuration.
	ffmpegPath  string
	outputDir   string
	onClipReady ClipCallback
	encodeFn    func(ffmpegPath, outputDir string, pcm []byte, pausedAt time.Time, duration time.Duration) *ClipResult
}

// NewCapturer creates a pause clip capturer writing MP3s into outputDir.
func NewCapturer(ffmpegPath, outputDir string, onClipReady ClipCallback) *Capturer {
	return &Capturer{
		buffer:      make([]byte, bufferCapacity),
		ffmpegPath:  ffmpegPath,
		outputDir:   outputDir,
		onClipReady: onClipReady,
		encodeFn:    encodeToMP3,
	}
}

// WritePCM buffers incoming PCM data for potential clip capture.
func (c *Capturer) WritePCM(buf []byte, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n <= 0 {
		return
	}

	pcm := buf[:n]
	for len(pcm) > 0 {
		w := copy(c.buffer[c.writePos:], pcm)
		c.writePos = (c.writePos + w) % bufferCapacity
		c.totalWritten += int64(w)
		pcm = pcm[w:]
	}

	c.snapshotSilenceLocked()
	c.finalizeIfReadyLocked()
}

// OnPause begins capturing a clip. The silence was confirmed after the given
// debounce, so its actual start is backdated by that amount.
func (c *Capturer) OnPause(debounce time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// A pause arriving while the previous clip still collects its
	// after-audio finalizes that clip with what it has.
	if c.capturing && c.endPos > 0 {
		c.extractAndEncodeLocked()
	}

	debounceBytes := min(int64(debounce.Seconds()*float64(bytesPerSecond)), c.totalWritten)
	startPos := c.totalWritten - debounceBytes

	beforeBytes := min(startPos, int64(beforeSeconds*bytesPerSecond))
	if beforeBytes > 0 {
		c.savedBefore = make([]byte, beforeBytes)
		c.copyFromRingLocked(c.savedBefore, startPos-beforeBytes)
	} else {
		c.savedBefore = nil
	}

	c.capturing = true
	c.silenceStartPos = startPos
	c.endPos = 0
	c.pausedAt = time.Now().Add(-debounce)
	c.silenceDuration = 0
	c.savedSilence = nil

	slog.Debug("pause clip capture started", "position", startPos, "saved_before_bytes", len(c.savedBefore))
}

// OnResume marks where sound returned. totalSilence is the full length of the
// pause as measured by the detector.
func (c *Capturer) OnResume(totalSilence time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.capturing {
		return
	}

	c.endPos = c.totalWritten
	c.silenceDuration = totalSilence
	c.snapshotSilenceLocked()

	slog.Debug("pause clip resume detected",
		"start_pos", c.silenceStartPos,
		"end_pos", c.endPos,
		"duration", totalSilence)
}

// Reset clears all capture state, discarding any clip in progress.
func (c *Capturer) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.writePos = 0
	c.totalWritten = 0
	c.capturing = false
	c.silenceStartPos = 0
	c.endPos = 0
	c.pausedAt = time.Time{}
	c.silenceDuration = 0
	c.savedBefore = nil
	c.savedSilence = nil
}

// snapshotSilenceLocked copies the silence section out of the ring once it is
// complete. Waiting any longer risks the ring wrapping over it during a long
// pause. Caller must hold c.mu.
func (c *Capturer) snapshotSilenceLocked() {
	if !c.capturing || c.savedSilence != nil {
		return
	}

	var silenceEnd int64
	switch {
	case c.endPos > 0:
		silenceEnd = min(c.endPos, c.silenceStartPos+maxSilenceBytes)
	case c.totalWritten >= c.silenceStartPos+maxSilenceBytes:
		silenceEnd = c.silenceStartPos + maxSilenceBytes
	default:
		return
	}

	c.savedSilence = make([]byte, silenceEnd-c.silenceStartPos)
	c.copyFromRingLocked(c.savedSilence, c.silenceStartPos)
}

// finalizeIfReadyLocked completes the clip once enough after-audio arrived.
// Caller must hold c.mu.
func (c *Capturer) finalizeIfReadyLocked() {
	if !c.capturing || c.endPos == 0 {
		return
	}
	if c.totalWritten < c.endPos+afterBytes {
		return
	}

	c.extractAndEncodeLocked()

	c.capturing = false
	c.silenceStartPos = 0
	c.endPos = 0
	c.pausedAt = time.Time{}
}

// extractAndEncodeLocked assembles the clip PCM and encodes it in the
// background. Caller must hold c.mu.
func (c *Capturer) extractAndEncodeLocked() {
	available := int64(0)
	if c.endPos > 0 {
		available = min(c.totalWritten-c.endPos, int64(afterBytes))
	}

	pcm := make([]byte, 0, int64(len(c.savedBefore))+int64(len(c.savedSilence))+available)
	pcm = append(pcm, c.savedBefore...)
	pcm = append(pcm, c.savedSilence...)
	if available > 0 {
		after := make([]byte, available)
		c.copyFromRingLocked(after, c.endPos)
		pcm = append(pcm, after...)
	}

	pausedAt := c.pausedAt
	duration := c.silenceDuration
	ffmpegPath := c.ffmpegPath
	outputDir := c.outputDir
	callback := c.onClipReady
	encode := c.encodeFn

	c.savedBefore = nil
	c.savedSilence = nil

	// Encode in background; all values are captured above so the goroutine
	// never touches Capturer fields.
	go func() {
		result := encode(ffmpegPath, outputDir, pcm, pausedAt, duration)
		if callback != nil {
			callback(result)
		}
	}()
}

// copyFromRingLocked copies buffered audio into dst starting at the absolute
// byte position startPos. Caller must hold c.mu.
func (c *Capturer) copyFromRingLocked(dst []byte, startPos int64) {
	pos := int(startPos % int64(bufferCapacity))
	for len(dst) > 0 {
		n := copy(dst, c.buffer[pos:])
		pos = (pos + n) % bufferCapacity
		dst = dst[n:]
	}
}

// encodeToMP3 encodes PCM audio to an MP3 file.
func encodeToMP3(ffmpegPath, outputDir string, pcm []byte, pausedAt time.Time, duration time.Duration) *ClipResult {
	result := &ClipResult{
		SilenceDuration: duration,
		PausedAt:        pausedAt,
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		result.Error = fmt.Errorf("create output dir: %w", err)
		return result
	}

	// Filename: 2026-01-15_14-32-05.mp3 (local time)
	result.Filename = pausedAt.Local().Format("2006-01-02_15-04-05") + ".mp3"
	result.FilePath = filepath.Join(outputDir, result.Filename)

	ctx, cancel := context.WithTimeoutCause(
		context.Background(),
		encodeTimeout,
		errors.New("ffmpeg encode timeout"),
	)
	defer cancel()

	args := ffmpeg.PCMInputArgs()
	args = append(args,
		"-c:a", "libmp3lame",
		"-b:a", mp3Bitrate,
		"-f", "mp3",
		"-y",
		result.FilePath,
	)

	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	cmd.Stdin = bytes.NewReader(pcm)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		result.Error = fmt.Errorf("ffmpeg encoding failed: %w, stderr: %s", err, stderr.String())
		return result
	}

	info, err := os.Stat(result.FilePath)
	if err != nil {
		result.Error = fmt.Errorf("stat output file: %w", err)
		return result
	}
	result.FileSize = info.Size()

	slog.Info("pause clip encoded",
		"file", result.Filename,
		"size", result.FileSize,
		"duration", duration)

	return result
}
