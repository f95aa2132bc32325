package recording

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/castwork/deadair/internal/config"
)

func writeFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestCleaner_RemovesOnlyExpiredOwnedFiles(t *testing.T) {
	outDir := t.TempDir()

	cfg := config.New(filepath.Join(t.TempDir(), "config.json"))
	cfg.Recorder.Name = "My Recorder"
	cfg.Storage.OutputDir = outDir
	cfg.Storage.RetentionDays = 90

	expired := writeFile(t, outDir, "My-Recorder-2020-01-01-00-00-00.mp4")
	fresh := writeFile(t, outDir, "My-Recorder-2099-01-01-00-00-00.mp4")
	foreign := writeFile(t, outDir, "Other-2020-01-01-00-00-00.mp4")
	dateless := writeFile(t, outDir, "My-Recorder-notes.txt")

	cleaner := NewCleaner(cfg, nil)
	cleaner.Run()

	if _, err := os.Stat(expired); !os.IsNotExist(err) {
		t.Error("expected expired recording to be deleted")
	}
	for _, path := range []string{fresh, foreign, dateless} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("expected %s to survive cleanup: %v", filepath.Base(path), err)
		}
	}
}

func TestCleaner_RetentionZeroKeepsEverything(t *testing.T) {
	outDir := t.TempDir()

	cfg := config.New(filepath.Join(t.TempDir(), "config.json"))
	cfg.Recorder.Name = "My Recorder"
	cfg.Storage.OutputDir = outDir
	cfg.Storage.RetentionDays = 0

	ancient := writeFile(t, outDir, "My-Recorder-1999-01-01-00-00-00.mp4")

	cleaner := NewCleaner(cfg, nil)
	cleaner.Run()

	if _, err := os.Stat(ancient); err != nil {
		t.Errorf("expected ancient recording kept with retention 0: %v", err)
	}
}

func TestCleaner_StartStop(t *testing.T) {
	cfg := config.New(filepath.Join(t.TempDir(), "config.json"))

	cleaner := NewCleaner(cfg, nil)
	cleaner.Start()
	cleaner.Stop()
	cleaner.Stop() // idempotent
}

func TestCleanStaleSegments(t *testing.T) {
	tempDir := t.TempDir()

	staleDir := filepath.Join(tempDir, "My-Recorder-2026-01-01-00-00-00")
	if err := os.MkdirAll(staleDir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, staleDir, "segment-0001.mp4")
	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(staleDir, old, old); err != nil {
		t.Fatal(err)
	}

	activeDir := filepath.Join(tempDir, "My-Recorder-2026-08-23-10-00-00")
	if err := os.MkdirAll(activeDir, 0o755); err != nil {
		t.Fatal(err)
	}

	looseFile := writeFile(t, tempDir, "stray.mp4")

	CleanStaleSegments(tempDir)

	if _, err := os.Stat(staleDir); !os.IsNotExist(err) {
		t.Error("expected stale segment directory removed")
	}
	if _, err := os.Stat(activeDir); err != nil {
		t.Errorf("expected recent segment directory kept: %v", err)
	}
	if _, err := os.Stat(looseFile); err != nil {
		t.Errorf("expected loose file untouched: %v", err)
	}
}

func TestCleanStaleSegments_MissingDirIsNoop(t *testing.T) {
	CleanStaleSegments(filepath.Join(t.TempDir(), "absent"))
}
