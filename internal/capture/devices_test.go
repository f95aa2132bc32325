package capture

import (
	"regexp"
	"testing"

	"github.com/castwork/deadair/internal/types"
)

// dshowStyleConfig mirrors the DirectShow listing shape without depending on
// the platform build.
func dshowStyleConfig(kind string) DeviceListConfig {
	return DeviceListConfig{
		Pattern: regexp.MustCompile(`\[dshow[^\]]*\]\s*"([^"]+)"\s*\(` + kind + `\)`),
		Parse: func(matches []string) *types.Device {
			if len(matches) < 2 {
				return nil
			}
			return &types.Device{ID: kind + "=" + matches[1], Name: matches[1]}
		},
	}
}

func TestParseDeviceOutput_FiltersByKind(t *testing.T) {
	output := `[dshow @ 0x1234] "Integrated Webcam" (video)
[dshow @ 0x1234] Alternative name "@device_pnp_\\?\usb#vid"
[dshow @ 0x1234] "USB Microphone" (audio)
[dshow @ 0x1234] "Stereo Mix" (audio)
`

	audio := parseDeviceOutput(dshowStyleConfig("audio"), output)
	if len(audio) != 2 {
		t.Fatalf("parsed %d audio devices, want 2", len(audio))
	}
	if audio[0].ID != "audio=USB Microphone" || audio[0].Name != "USB Microphone" {
		t.Errorf("first audio device = %+v", audio[0])
	}

	video := parseDeviceOutput(dshowStyleConfig("video"), output)
	if len(video) != 1 {
		t.Fatalf("parsed %d video devices, want 1", len(video))
	}
	if video[0].ID != "video=Integrated Webcam" {
		t.Errorf("video device = %+v", video[0])
	}
}

func TestParseDeviceOutput_SectionMarkers(t *testing.T) {
	cfg := DeviceListConfig{
		StartMarker: "video devices:",
		StopMarker:  "audio devices:",
		Pattern:     regexp.MustCompile(`\[(\d+)\]\s*(.+)`),
		Parse: func(matches []string) *types.Device {
			return &types.Device{ID: matches[1], Name: matches[2]}
		},
	}
	output := `header noise
video devices:
[0] FaceTime HD Camera
[1] Capture Card
audio devices:
[0] Built-in Microphone
`

	devices := parseDeviceOutput(cfg, output)
	if len(devices) != 2 {
		t.Fatalf("parsed %d devices, want 2", len(devices))
	}
	if devices[1].Name != "Capture Card" {
		t.Errorf("second device = %+v", devices[1])
	}
}

func TestParseDeviceOutput_FallbackWhenEmpty(t *testing.T) {
	fallback := []types.Device{{ID: "default", Name: "Default"}}
	cfg := DeviceListConfig{
		Pattern:  regexp.MustCompile(`never matches \d+`),
		Parse:    func([]string) *types.Device { return nil },
		Fallback: fallback,
	}

	devices := parseDeviceOutput(cfg, "no devices here\n")
	if len(devices) != 1 || devices[0].ID != "default" {
		t.Errorf("devices = %+v, want fallback", devices)
	}
}
