package capture

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"time"

	"github.com/castwork/deadair/internal/types"
	"github.com/castwork/deadair/internal/util"
)

// ProbeTimeout bounds a single device probe.
const ProbeTimeout = 10 * time.Second

// ProbeVideo verifies the video device opens at the resolution implied by the
// orientation by grabbing a single frame and discarding it. Failures are
// classified as device or constraint errors.
func ProbeVideo(ctx context.Context, ffmpegPath, device string, o types.Orientation, framerate int) error {
	inputArgs, err := VideoInputArgs(device, o, framerate)
	if err != nil {
		return err
	}

	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	args = append(args, inputArgs...)
	args = append(args, "-frames:v", "1", "-f", "null", "-")

	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		cerr := ClassifyStartError(util.ExtractLastError(stderr.String()), err)
		slog.Error("video device probe failed", "device", device, "error", cerr)
		return cerr
	}

	slog.Debug("video device probe succeeded", "device", device, "orientation", o)
	return nil
}
