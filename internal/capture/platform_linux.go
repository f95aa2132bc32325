//go:build linux

package capture

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/castwork/deadair/internal/types"
)

func getPlatformConfig() PlatformConfig {
	return PlatformConfig{
		AnalysisCommand:    "arecord",
		DefaultAudioDevice: "default",
		DefaultVideoDevice: "/dev/video0",
		BuildAnalysisArgs:  buildLinuxAnalysisArgs,
		BuildVideoArgs:     buildLinuxVideoArgs,
	}
}

func buildLinuxAnalysisArgs(device string) []string {
	return []string{
		"-D", device,
		"-f", "S16_LE",
		"-r", "48000",
		"-c", "2",
		"-t", "raw",
		"-q",
		"-",
	}
}

func buildLinuxVideoArgs(device string, width, height, framerate int) []string {
	return []string{
		"-f", "v4l2",
		"-framerate", strconv.Itoa(framerate),
		"-video_size", fmt.Sprintf("%dx%d", width, height),
		"-i", device,
	}
}

func listAudioDevices() []types.Device {
	return runDeviceList(DeviceListConfig{
		Command:     []string{"arecord", "-l"},
		StartMarker: "", // No marker, parse all lines
		Pattern:     regexp.MustCompile(`card\s+(\d+):\s+(\w+)\s+\[([^\]]+)\]`),
		Parse: func(matches []string) *types.Device {
			if len(matches) < 4 {
				return nil
			}
			return &types.Device{
				ID:   "default:CARD=" + matches[2],
				Name: matches[3],
			}
		},
		Fallback: []types.Device{
			{ID: "default", Name: "Default ALSA device"},
		},
	})
}

// listVideoDevices reads V4L2 device names from sysfs, which works without
// spawning a process and covers hotplugged cameras.
func listVideoDevices() []types.Device {
	nodes, err := filepath.Glob("/sys/class/video4linux/video*")
	if err != nil || len(nodes) == 0 {
		return []types.Device{{ID: "/dev/video0", Name: "Default camera"}}
	}
	sort.Strings(nodes)

	var devices []types.Device
	for _, node := range nodes {
		name := filepath.Base(node)
		display := name
		if raw, err := os.ReadFile(filepath.Join(node, "name")); err == nil {
			display = strings.TrimSpace(string(raw))
		}
		devices = append(devices, types.Device{
			ID:   "/dev/" + name,
			Name: display,
		})
	}
	return devices
}
