package recording

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestListRecordings(t *testing.T) {
	dir := t.TempDir()

	write := func(name string, modTime time.Time) {
		t.Helper()
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.Chtimes(path, modTime, modTime); err != nil {
			t.Fatal(err)
		}
	}

	now := time.Now()
	write("Studio-2026-01-14-09-00-00.mp4", now.Add(-48*time.Hour))
	write("Studio-2026-01-15-14-00-30.mp4", now.Add(-1*time.Hour))
	write("Other-2026-01-15-10-00-00.mp4", now)
	write("notes.txt", now)

	if err := os.Mkdir(filepath.Join(dir, "Studio-subdir"), 0o755); err != nil {
		t.Fatal(err)
	}

	files, err := ListRecordings(dir, "Studio")
	if err != nil {
		t.Fatalf("ListRecordings: %v", err)
	}

	if len(files) != 2 {
		t.Fatalf("got %d recordings, want 2: %+v", len(files), files)
	}
	if files[0].Name != "Studio-2026-01-15-14-00-30.mp4" {
		t.Errorf("newest recording = %q, want the most recently modified", files[0].Name)
	}
	if files[1].Name != "Studio-2026-01-14-09-00-00.mp4" {
		t.Errorf("oldest recording = %q", files[1].Name)
	}
	if files[0].SizeBytes != 1 {
		t.Errorf("size = %d, want 1", files[0].SizeBytes)
	}
	if _, err := time.Parse(time.RFC3339, files[0].ModifiedAt); err != nil {
		t.Errorf("modified_at %q is not RFC3339: %v", files[0].ModifiedAt, err)
	}
}

func TestListRecordings_MissingDir(t *testing.T) {
	files, err := ListRecordings(filepath.Join(t.TempDir(), "absent"), "Studio")
	if err != nil {
		t.Fatalf("missing directory should not error: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("got %d recordings from missing directory", len(files))
	}
}

func TestListRecordings_SanitizesRecorderName(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "My-Studio-2026-01-15-14-00-30.mp4"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	files, err := ListRecordings(dir, "My Studio")
	if err != nil {
		t.Fatalf("ListRecordings: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("got %d recordings, want 1", len(files))
	}
}
