package util

import (
	"errors"
	"strings"
	"testing"
)

func TestWrapError(t *testing.T) {
	base := errors.New("pipe closed")

	wrapped := WrapError("write segment", base)
	if wrapped == nil {
		t.Fatal("expected non-nil error")
	}
	if got, want := wrapped.Error(), "failed to write segment: pipe closed"; got != want {
		t.Errorf("WrapError message = %q, want %q", got, want)
	}
	if !errors.Is(wrapped, base) {
		t.Error("wrapped error should match base via errors.Is")
	}

	if WrapError("anything", nil) != nil {
		t.Error("WrapError(nil) should return nil")
	}
}

func TestExtractLastError(t *testing.T) {
	tests := []struct {
		name   string
		stderr string
		want   string
	}{
		{"empty", "", ""},
		{"whitespace only", "  \n\t\n  ", ""},
		{"single line", "device busy", "device busy"},
		{"multiple lines", "opening device\nnegotiating format\nInput/output error", "Input/output error"},
		{"trailing blank lines", "real error\n\n\n", "real error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractLastError(tt.stderr); got != tt.want {
				t.Errorf("ExtractLastError(%q) = %q, want %q", tt.stderr, got, tt.want)
			}
		})
	}
}

func TestExtractLastError_TruncatesLongLines(t *testing.T) {
	long := strings.Repeat("x", 300)
	got := ExtractLastError(long)
	if len(got) != maxErrorLineLength+3 {
		t.Errorf("truncated length = %d, want %d", len(got), maxErrorLineLength+3)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("truncated message should end with ellipsis, got %q", got[len(got)-10:])
	}
}
