package recording

import (
	"os"
	"slices"
	"strings"
	"time"
)

// RecordingFile describes one finished recording in the output directory.
type RecordingFile struct {
	Name       string `json:"name"`        // File name without directory
	SizeBytes  int64  `json:"size_bytes"`  // File size
	ModifiedAt string `json:"modified_at"` // RFC3339 modification time
}

// ListRecordings returns the finished recordings in outputDir, newest first.
// Only files this recorder wrote are listed; a missing directory yields an
// empty list rather than an error.
func ListRecordings(outputDir, recorderName string) ([]RecordingFile, error) {
	entries, err := os.ReadDir(outputDir)
	if os.IsNotExist(err) {
		return []RecordingFile{}, nil
	}
	if err != nil {
		return nil, err
	}

	safeName := sanitizeFilename(recorderName)

	files := make([]RecordingFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), safeName+"-") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, RecordingFile{
			Name:       entry.Name(),
			SizeBytes:  info.Size(),
			ModifiedAt: info.ModTime().UTC().Format(time.RFC3339),
		})
	}

	// Newest first
	slices.SortFunc(files, func(a, b RecordingFile) int {
		return strings.Compare(b.ModifiedAt, a.ModifiedAt)
	})

	return files, nil
}
