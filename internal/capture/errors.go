package capture

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for capture operations.
var (
	// ErrDeviceUnavailable indicates a configured device is missing, busy or
	// cannot be opened.
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	// ErrConstraintUnsupported indicates the device opened but rejected the
	// requested format, resolution or framerate.
	ErrConstraintUnsupported = errors.New("capture constraints not supported by device")
	// ErrNoAudioDevice is returned when no audio input device can be found.
	ErrNoAudioDevice = errors.New("no audio input device found")
	// ErrNoVideoDevice is returned when no video input device can be found.
	ErrNoVideoDevice = errors.New("no video input device found")
	// ErrAlreadyAcquired is returned when the analysis source is started twice.
	ErrAlreadyAcquired = errors.New("analysis source already running")
)

// constraintPatterns are stderr fragments that indicate the device exists but
// rejected the requested capture parameters. Checked before the generic
// availability patterns because driver wording overlaps.
var constraintPatterns = []string{
	"not supported",
	"supported modes",
	"cannot set",
	"could not set",
	"invalid argument",
	"incompatible pixel format",
}

// ClassifyStartError maps a failed capture process start onto the sentinel
// errors. The stderr tail takes precedence over the process error because
// FFmpeg and ALSA report the usable detail there.
func ClassifyStartError(stderr string, err error) error {
	detail := stderr
	if detail == "" && err != nil {
		detail = err.Error()
	}

	lower := strings.ToLower(detail)
	for _, p := range constraintPatterns {
		if strings.Contains(lower, p) {
			return fmt.Errorf("%w: %s", ErrConstraintUnsupported, detail)
		}
	}
	return fmt.Errorf("%w: %s", ErrDeviceUnavailable, detail)
}
