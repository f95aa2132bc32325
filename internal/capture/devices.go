package capture

import (
	"log/slog"
	"os/exec"
	"regexp"
	"strings"

	"github.com/castwork/deadair/internal/types"
)

// AudioDevices returns the available audio input devices for this platform.
func AudioDevices() []types.Device {
	return listAudioDevices()
}

// VideoDevices returns the available video input devices for this platform.
func VideoDevices() []types.Device {
	return listVideoDevices()
}

// DeviceListConfig defines how to discover devices from a listing command.
type DeviceListConfig struct {
	// Command and args to list devices.
	Command []string

	// StartMarker indicates the start of the relevant device section.
	StartMarker string

	// StopMarker indicates the end of the relevant device section (optional).
	StopMarker string

	// Pattern is the regex that extracts device info from a line.
	Pattern *regexp.Regexp

	// Parse converts regex matches to a Device.
	Parse func(matches []string) *types.Device

	// Fallback devices are returned if detection fails.
	Fallback []types.Device
}

// runDeviceList executes the listing command and parses its output.
//
//nolint:gocritic // hugeParam: 96 bytes is acceptable, no performance impact
func runDeviceList(cfg DeviceListConfig) []types.Device {
	if len(cfg.Command) == 0 {
		return cfg.Fallback
	}

	cmd := exec.Command(cfg.Command[0], cfg.Command[1:]...)
	output, err := cmd.CombinedOutput()
	// FFmpeg's -list_devices exits nonzero while still printing the list, so
	// only a failure without any output counts as an error.
	if err != nil && len(output) == 0 {
		slog.Error("failed to list capture devices", "command", cfg.Command[0], "error", err)
		return cfg.Fallback
	}

	return parseDeviceOutput(cfg, string(output))
}

// parseDeviceOutput extracts device entries from listing command output.
//
//nolint:gocritic // hugeParam: 96 bytes is acceptable, no performance impact
func parseDeviceOutput(cfg DeviceListConfig, output string) []types.Device {
	var devices []types.Device
	lines := strings.Split(output, "\n")
	inSection := cfg.StartMarker == "" // If no marker, always in section

	for _, line := range lines {
		if cfg.StartMarker != "" && strings.Contains(line, cfg.StartMarker) {
			inSection = true
			continue
		}
		if cfg.StopMarker != "" && strings.Contains(line, cfg.StopMarker) {
			inSection = false
			continue
		}

		if !inSection {
			continue
		}

		// Skip alternative name lines (Windows DirectShow).
		if strings.Contains(line, "Alternative name") {
			continue
		}

		if cfg.Pattern == nil {
			continue
		}

		matches := cfg.Pattern.FindStringSubmatch(line)
		if len(matches) > 0 && cfg.Parse != nil {
			if dev := cfg.Parse(matches); dev != nil {
				devices = append(devices, *dev)
			}
		}
	}

	if len(devices) == 0 {
		return cfg.Fallback
	}

	return devices
}
