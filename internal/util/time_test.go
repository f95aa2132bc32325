package util

import (
	"testing"
	"time"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		ms   int64
		want string
	}{
		{0, "0s"},
		{45_000, "45s"},
		{59_999, "59s"},
		{60_000, "1m 0s"},
		{154_000, "2m 34s"},
		{3_600_000, "1h 0m"},
		{4_980_000, "1h 23m"},
	}

	for _, tt := range tests {
		if got := FormatDuration(tt.ms); got != tt.want {
			t.Errorf("FormatDuration(%d) = %q, want %q", tt.ms, got, tt.want)
		}
	}
}

func TestExtractDateFromFilename(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		wantDate string
		wantOK   bool
	}{
		{"segment file", "studio-2025-01-15-14-00.mp4", "2025-01-15", true},
		{"audit clip", "pause-2024-12-31_23-59-59.mp3", "2024-12-31", true},
		{"no date", "recording.mp4", "", false},
		{"malformed date", "take-2025-13-99.mp4", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractDateFromFilename(tt.filename)
			if ok != tt.wantOK {
				t.Fatalf("ExtractDateFromFilename(%q) ok = %v, want %v", tt.filename, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			want, err := time.Parse(time.DateOnly, tt.wantDate)
			if err != nil {
				t.Fatalf("bad test date: %v", err)
			}
			if !got.Equal(want) {
				t.Errorf("ExtractDateFromFilename(%q) = %v, want %v", tt.filename, got, want)
			}
		})
	}
}
