// Package capture manages the audio and video input devices: enumeration,
// constraint probing and the long-lived analysis process that feeds PCM audio
// to the detection pipeline.
package capture

import "github.com/castwork/deadair/internal/types"

// PlatformConfig defines platform-specific capture commands.
type PlatformConfig struct {
	// AnalysisCommand is the executable for audio analysis capture
	// (e.g., "arecord", "ffmpeg").
	AnalysisCommand string

	// DefaultAudioDevice is used when no audio input is configured.
	DefaultAudioDevice string

	// DefaultVideoDevice is used when no video input is configured.
	DefaultVideoDevice string

	// UsesFFmpeg indicates the analysis capture runs through FFmpeg.
	UsesFFmpeg bool

	// BuildAnalysisArgs returns arguments producing S16LE PCM on stdout
	// for the given audio device.
	BuildAnalysisArgs func(device string) []string

	// BuildVideoArgs returns FFmpeg input arguments for the given video
	// device at the requested resolution and framerate.
	BuildVideoArgs func(device string, width, height, framerate int) []string
}

// BuildAnalysisCommand returns the command and arguments for the audio
// analysis capture. An empty device falls back to the platform default, then
// to the first detected device. The ffmpegPath parameter is used on platforms
// that capture through FFmpeg.
func BuildAnalysisCommand(device, ffmpegPath string) (cmd string, args []string, err error) {
	cfg := getPlatformConfig()

	if device == "" {
		device = cfg.DefaultAudioDevice
	}
	if device == "" {
		devices := AudioDevices()
		if len(devices) == 0 {
			return "", nil, ErrNoAudioDevice
		}
		device = devices[0].ID
	}

	command := cfg.AnalysisCommand
	if cfg.UsesFFmpeg && ffmpegPath != "" {
		command = ffmpegPath
	}

	return command, cfg.BuildAnalysisArgs(device), nil
}

// VideoInputArgs returns FFmpeg input arguments for the configured video
// device at the resolution implied by the orientation. An empty device falls
// back to the platform default, then to the first detected device.
func VideoInputArgs(device string, o types.Orientation, framerate int) ([]string, error) {
	cfg := getPlatformConfig()

	if device == "" {
		device = cfg.DefaultVideoDevice
	}
	if device == "" {
		devices := VideoDevices()
		if len(devices) == 0 {
			return nil, ErrNoVideoDevice
		}
		device = devices[0].ID
	}

	width, height := o.Resolution()
	return cfg.BuildVideoArgs(device, width, height, framerate), nil
}
