//go:build darwin

package capture

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/castwork/deadair/internal/types"
)

func getPlatformConfig() PlatformConfig {
	return PlatformConfig{
		AnalysisCommand:    "ffmpeg",
		DefaultAudioDevice: ":0",
		DefaultVideoDevice: "0",
		UsesFFmpeg:         true,
		BuildAnalysisArgs:  buildDarwinAnalysisArgs,
		BuildVideoArgs:     buildDarwinVideoArgs,
	}
}

func buildDarwinAnalysisArgs(device string) []string {
	return []string{
		"-f", "avfoundation",
		"-i", device,
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-vn",
		"-f", "s16le",
		"-ac", "2",
		"-ar", "48000",
		"pipe:1",
	}
}

func buildDarwinVideoArgs(device string, width, height, framerate int) []string {
	return []string{
		"-f", "avfoundation",
		"-framerate", strconv.Itoa(framerate),
		"-video_size", fmt.Sprintf("%dx%d", width, height),
		"-i", device,
	}
}

var avfoundationPattern = regexp.MustCompile(`\[AVFoundation[^\]]*\]\s*\[(\d+)\]\s*(.+)`)

func listAudioDevices() []types.Device {
	return runDeviceList(DeviceListConfig{
		Command:     []string{"ffmpeg", "-hide_banner", "-f", "avfoundation", "-list_devices", "true", "-i", ""},
		StartMarker: "AVFoundation audio devices:",
		StopMarker:  "AVFoundation video devices:",
		Pattern:     avfoundationPattern,
		Parse: func(matches []string) *types.Device {
			if len(matches) < 3 {
				return nil
			}
			return &types.Device{
				ID:   ":" + matches[1],
				Name: matches[2],
			}
		},
		Fallback: nil,
	})
}

func listVideoDevices() []types.Device {
	return runDeviceList(DeviceListConfig{
		Command:     []string{"ffmpeg", "-hide_banner", "-f", "avfoundation", "-list_devices", "true", "-i", ""},
		StartMarker: "AVFoundation video devices:",
		StopMarker:  "AVFoundation audio devices:",
		Pattern:     avfoundationPattern,
		Parse: func(matches []string) *types.Device {
			if len(matches) < 3 {
				return nil
			}
			return &types.Device{
				ID:   matches[1],
				Name: matches[2],
			}
		},
		Fallback: nil,
	})
}
