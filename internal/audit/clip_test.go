package audit

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/castwork/deadair/internal/config"
)

// patternBytes generates a deterministic byte pattern for an absolute
// position range, so tests can verify exactly which audio ended up in a clip.
func patternBytes(start int64, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte((start + int64(i)) % 251)
	}
	return b
}

// feeder streams pattern audio into a capturer in 50ms chunks.
type feeder struct {
	c   *Capturer
	pos int64
}

func (f *feeder) write(seconds float64) {
	remaining := int(seconds * bytesPerSecond)
	const chunk = 9600
	for remaining > 0 {
		n := min(chunk, remaining)
		f.c.WritePCM(patternBytes(f.pos, n), n)
		f.pos += int64(n)
		remaining -= n
	}
}

// newTestCapturer returns a capturer whose encode step is replaced by a stub
// that delivers the assembled PCM on a channel.
func newTestCapturer(t *testing.T) (*Capturer, chan []byte) {
	t.Helper()
	clips := make(chan []byte, 4)
	c := NewCapturer("ffmpeg", t.TempDir(), nil)
	c.encodeFn = func(_, _ string, pcm []byte, _ time.Time, _ time.Duration) *ClipResult {
		clips <- pcm
		return &ClipResult{}
	}
	return c, clips
}

func receiveClip(t *testing.T, clips chan []byte) []byte {
	t.Helper()
	select {
	case pcm := <-clips:
		return pcm
	case <-time.After(2 * time.Second):
		t.Fatal("no clip produced")
		return nil
	}
}

func TestCapturer_ShortPauseClip(t *testing.T) {
	c, clips := newTestCapturer(t)
	f := &feeder{c: c}

	// 20s of program audio, then silence confirmed after a 500ms debounce.
	f.write(20)
	c.OnPause(500 * time.Millisecond)

	// The rest of a 2s silence, then sound returns.
	f.write(1.5)
	c.OnResume(2 * time.Second)

	// Enough audio after the resume to complete the clip.
	f.write(16)

	pcm := receiveClip(t, clips)

	startPos := int64(20*bytesPerSecond - bytesPerSecond/2) // backdated by the debounce
	endPos := startPos + 2*bytesPerSecond

	var want []byte
	want = append(want, patternBytes(startPos-15*bytesPerSecond, 15*bytesPerSecond)...)
	want = append(want, patternBytes(startPos, 2*bytesPerSecond)...)
	want = append(want, patternBytes(endPos, afterBytes)...)

	if len(pcm) != len(want) {
		t.Fatalf("clip length = %d, want %d", len(pcm), len(want))
	}
	if !bytes.Equal(pcm, want) {
		t.Error("clip audio does not match the positions around the pause")
	}
}

func TestCapturer_LongPauseKeepsOriginalAudio(t *testing.T) {
	c, clips := newTestCapturer(t)
	f := &feeder{c: c}

	// A 60s pause wraps the 35s ring several times. The before and silence
	// sections must still hold the audio from when the pause began.
	f.write(20)
	c.OnPause(500 * time.Millisecond)
	f.write(60)
	c.OnResume(60500 * time.Millisecond)
	f.write(16)

	pcm := receiveClip(t, clips)

	startPos := int64(20*bytesPerSecond - bytesPerSecond/2)
	endPos := int64((20 + 60) * bytesPerSecond)

	var want []byte
	want = append(want, patternBytes(startPos-15*bytesPerSecond, 15*bytesPerSecond)...)
	want = append(want, patternBytes(startPos, maxSilenceBytes)...) // capped at 5s
	want = append(want, patternBytes(endPos, afterBytes)...)

	if len(pcm) != len(want) {
		t.Fatalf("clip length = %d, want %d", len(pcm), len(want))
	}
	if !bytes.Equal(pcm, want) {
		t.Error("clip audio was overwritten by the ring during the long pause")
	}
}

func TestCapturer_EarlySessionShortensBeforeSection(t *testing.T) {
	c, clips := newTestCapturer(t)
	f := &feeder{c: c}

	// Only 2s of audio exists when the pause hits.
	f.write(2)
	c.OnPause(500 * time.Millisecond)
	f.write(0.5)
	c.OnResume(time.Second)
	f.write(16)

	pcm := receiveClip(t, clips)

	startPos := int64(2*bytesPerSecond - bytesPerSecond/2)
	want := int(startPos) + 1*bytesPerSecond + afterBytes
	if len(pcm) != want {
		t.Fatalf("clip length = %d, want %d", len(pcm), want)
	}
}

func TestCapturer_SecondPauseFinalizesFirstEarly(t *testing.T) {
	c, clips := newTestCapturer(t)
	f := &feeder{c: c}

	f.write(20)
	c.OnPause(500 * time.Millisecond)
	f.write(1)
	c.OnResume(1500 * time.Millisecond)

	// Only 5s of after-audio arrives before the next pause begins.
	f.write(5)
	c.OnPause(500 * time.Millisecond)

	pcm := receiveClip(t, clips)

	want := 15*bytesPerSecond + 3*bytesPerSecond/2 + 5*bytesPerSecond
	if len(pcm) != want {
		t.Fatalf("first clip length = %d, want %d", len(pcm), want)
	}
}

func TestCapturer_ResetDiscardsClipInProgress(t *testing.T) {
	c, clips := newTestCapturer(t)
	f := &feeder{c: c}

	f.write(10)
	c.OnPause(500 * time.Millisecond)
	f.write(1)
	c.OnResume(1500 * time.Millisecond)
	c.Reset()
	f.write(30)

	select {
	case <-clips:
		t.Fatal("clip produced after reset")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCapturer_ResumeWithoutPauseIsIgnored(t *testing.T) {
	c, clips := newTestCapturer(t)
	f := &feeder{c: c}

	c.OnResume(time.Second)
	f.write(40)

	select {
	case <-clips:
		t.Fatal("clip produced without a pause")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestParseClipTime(t *testing.T) {
	tests := []struct {
		name   string
		wantOK bool
	}{
		{"2026-01-15_14-32-05.mp3", true},
		{"2026-01-15_14-32-05.wav", false},
		{"notes.mp3", false},
		{"recording.txt", false},
	}
	for _, tt := range tests {
		got, ok := parseClipTime(tt.name)
		if ok != tt.wantOK {
			t.Errorf("parseClipTime(%q) ok = %v, want %v", tt.name, ok, tt.wantOK)
		}
		if ok && got.Year() != 2026 {
			t.Errorf("parseClipTime(%q) year = %d, want 2026", tt.name, got.Year())
		}
	}
}

func TestManager_DisabledSkipsCapture(t *testing.T) {
	cfg := config.New(filepath.Join(t.TempDir(), "config.json"))
	m := NewManager(cfg, nil)

	buf := make([]byte, 9600)
	m.WritePCM(buf, len(buf))
	m.OnPause()

	if m.capturer.totalWritten != 0 {
		t.Errorf("totalWritten = %d, want 0 while disabled", m.capturer.totalWritten)
	}
	if m.capturer.capturing {
		t.Error("capturing = true while disabled")
	}
}

func TestManager_RunCleanupHonorsRetention(t *testing.T) {
	cfg := config.New(filepath.Join(t.TempDir(), "config.json"))
	if err := cfg.SetAuditClips(config.AuditClipsConfig{Enabled: true, RetentionDays: 30}); err != nil {
		t.Fatalf("SetAuditClips: %v", err)
	}

	m := NewManager(cfg, nil)
	m.clipDir = t.TempDir()

	old := filepath.Join(m.clipDir, "2020-01-01_12-00-00.mp3")
	recent := filepath.Join(m.clipDir, time.Now().Format("2006-01-02_15-04-05")+".mp3")
	other := filepath.Join(m.clipDir, "notes.txt")
	for _, path := range []string{old, recent, other} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}

	m.RunCleanup()

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("expired clip still exists")
	}
	for _, path := range []string{recent, other} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("%s should survive cleanup: %v", filepath.Base(path), err)
		}
	}
}

func TestManager_RetentionZeroKeepsClips(t *testing.T) {
	cfg := config.New(filepath.Join(t.TempDir(), "config.json"))
	if err := cfg.SetAuditClips(config.AuditClipsConfig{Enabled: true, RetentionDays: 0}); err != nil {
		t.Fatalf("SetAuditClips: %v", err)
	}

	m := NewManager(cfg, nil)
	m.clipDir = t.TempDir()

	old := filepath.Join(m.clipDir, "1999-01-01_00-00-00.mp3")
	if err := os.WriteFile(old, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	m.RunCleanup()

	if _, err := os.Stat(old); err != nil {
		t.Errorf("clip deleted despite retention 0: %v", err)
	}
}

func TestClipDir_IncludesPort(t *testing.T) {
	if !strings.HasSuffix(ClipDir(8080), "deadair-pause-clips-8080") {
		t.Errorf("ClipDir(8080) = %q", ClipDir(8080))
	}
}
