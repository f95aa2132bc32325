//go:build windows

package capture

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/castwork/deadair/internal/types"
)

func getPlatformConfig() PlatformConfig {
	return PlatformConfig{
		AnalysisCommand:    "ffmpeg",
		DefaultAudioDevice: "", // Auto-detect, no safe default on Windows
		DefaultVideoDevice: "",
		UsesFFmpeg:         true,
		BuildAnalysisArgs:  buildWindowsAnalysisArgs,
		BuildVideoArgs:     buildWindowsVideoArgs,
	}
}

// buildWindowsAnalysisArgs omits -nostdin so the process can be shut down
// gracefully via the 'q' command.
func buildWindowsAnalysisArgs(device string) []string {
	return []string{
		"-f", "dshow",
		"-i", device,
		"-hide_banner",
		"-loglevel", "warning",
		"-vn",
		"-f", "s16le",
		"-ac", "2",
		"-ar", "48000",
		"pipe:1",
	}
}

func buildWindowsVideoArgs(device string, width, height, framerate int) []string {
	return []string{
		"-f", "dshow",
		"-framerate", strconv.Itoa(framerate),
		"-video_size", fmt.Sprintf("%dx%d", width, height),
		"-i", device,
	}
}

func listAudioDevices() []types.Device {
	return runDeviceList(DeviceListConfig{
		Command: []string{"ffmpeg", "-hide_banner", "-f", "dshow", "-list_devices", "true", "-i", "dummy"},
		// No section markers - FFmpeg versions vary in output format.
		// Instead, we filter by lines ending with "(audio)".
		StartMarker: "",
		StopMarker:  "",
		// Match lines like: [dshow @ addr] "Device Name" (audio)
		Pattern: regexp.MustCompile(`\[dshow[^\]]*\]\s*"([^"]+)"\s*\(audio\)`),
		Parse: func(matches []string) *types.Device {
			if len(matches) < 2 {
				return nil
			}
			name := strings.TrimSpace(matches[1])
			return &types.Device{
				ID:   "audio=" + name,
				Name: name,
			}
		},
		Fallback: nil,
	})
}

func listVideoDevices() []types.Device {
	return runDeviceList(DeviceListConfig{
		Command:     []string{"ffmpeg", "-hide_banner", "-f", "dshow", "-list_devices", "true", "-i", "dummy"},
		StartMarker: "",
		StopMarker:  "",
		Pattern:     regexp.MustCompile(`\[dshow[^\]]*\]\s*"([^"]+)"\s*\(video\)`),
		Parse: func(matches []string) *types.Device {
			if len(matches) < 2 {
				return nil
			}
			name := strings.TrimSpace(matches[1])
			return &types.Device{
				ID:   "video=" + name,
				Name: name,
			}
		},
		Fallback: nil,
	})
}
