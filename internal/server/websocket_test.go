package server

import (
	"net/http/httptest"
	"testing"
)

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name   string
		origin string
		host   string
		want   bool
	}{
		{"no origin header", "", "recorder.local:8080", true},
		{"localhost", "http://localhost:8080", "recorder.local:8080", true},
		{"loopback v4", "http://127.0.0.1:8080", "recorder.local:8080", true},
		{"loopback v6", "http://[::1]:8080", "recorder.local:8080", true},
		{"same host", "http://recorder.local:8080", "recorder.local:8080", true},
		{"same host different port", "http://recorder.local:9000", "recorder.local:8080", true},
		{"private range", "http://192.168.1.50:8080", "recorder.local:8080", true},
		{"private 10 range", "http://10.0.0.7", "recorder.local:8080", true},
		{"public host", "http://evil.example.com", "recorder.local:8080", false},
		{"public ip", "http://203.0.113.9:8080", "recorder.local:8080", false},
		{"malformed origin", "http://[bad", "recorder.local:8080", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/ws", nil)
			r.Host = tt.host
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}

			if got := checkOrigin(r); got != tt.want {
				t.Errorf("checkOrigin(origin=%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}
