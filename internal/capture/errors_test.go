package capture

import (
	"errors"
	"strings"
	"testing"
)

func TestClassifyStartError(t *testing.T) {
	tests := []struct {
		name   string
		stderr string
		err    error
		want   error
	}{
		{
			name:   "device busy",
			stderr: "/dev/video0: Device or resource busy",
			want:   ErrDeviceUnavailable,
		},
		{
			name:   "device missing",
			stderr: "Cannot open video device /dev/video9: No such file or directory",
			want:   ErrDeviceUnavailable,
		},
		{
			name:   "permission denied",
			stderr: "/dev/video0: Permission denied",
			want:   ErrDeviceUnavailable,
		},
		{
			name:   "alsa device missing",
			stderr: "arecord: main:831: audio open error: No such device",
			want:   ErrDeviceUnavailable,
		},
		{
			name:   "unsupported resolution",
			stderr: "Selected video size (1280x720) is not supported by the device",
			want:   ErrConstraintUnsupported,
		},
		{
			name:   "unsupported framerate",
			stderr: "Selected framerate (30.000000) is not supported by the device. Supported modes:",
			want:   ErrConstraintUnsupported,
		},
		{
			name:   "driver rejects format",
			stderr: "ioctl(VIDIOC_S_FMT): Invalid argument",
			want:   ErrConstraintUnsupported,
		},
		{
			name:   "dshow rejects options",
			stderr: "Could not set video options",
			want:   ErrConstraintUnsupported,
		},
		{
			name:   "no stderr falls back to process error",
			stderr: "",
			err:    errors.New("exec: \"ffmpeg\": executable file not found in $PATH"),
			want:   ErrDeviceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyStartError(tt.stderr, tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("ClassifyStartError(%q) = %v, want %v", tt.stderr, got, tt.want)
			}
		})
	}
}

func TestClassifyStartError_KeepsDetail(t *testing.T) {
	got := ClassifyStartError("/dev/video0: Device or resource busy", errors.New("exit status 1"))
	if want := "Device or resource busy"; !strings.Contains(got.Error(), want) {
		t.Errorf("classified error %q does not contain %q", got.Error(), want)
	}
}
