package server

import (
	"cmp"
	"log/slog"

	"github.com/castwork/deadair/internal/capture"
	"github.com/castwork/deadair/internal/config"
	"github.com/castwork/deadair/internal/recording"
	"github.com/castwork/deadair/internal/types"
)

// --- Device handlers ---

// handleDevicesUpdate processes a devices/update command. Input changes are
// picked up when the next session acquires its devices.
func (h *CommandHandler) handleDevicesUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(req *DevicesUpdateRequest) error {
		if req.AudioInput != nil {
			slog.Info("devices/update: changing audio input", "input", *req.AudioInput)
			if err := h.cfg.SetAudioInput(*req.AudioInput); err != nil {
				return err
			}
		}
		if req.VideoInput != nil {
			slog.Info("devices/update: changing video input", "input", *req.VideoInput)
			if err := h.cfg.SetVideoInput(*req.VideoInput); err != nil {
				return err
			}
		}
		if req.Orientation != nil {
			if err := h.cfg.SetOrientation(types.Orientation(*req.Orientation)); err != nil {
				return err
			}
		}
		if req.Codec != nil {
			if err := h.cfg.SetCodec(types.VideoCodec(*req.Codec)); err != nil {
				return err
			}
		}
		return nil
	})
}

// handleDevicesGet processes a devices/get command.
func (h *CommandHandler) handleDevicesGet(cmd WSCommand, send chan<- any) {
	snap := h.cfg.Snapshot()
	SendSuccess(send, cmd.Type, map[string]any{
		"audio_input":   snap.AudioInput,
		"video_input":   snap.VideoInput,
		"orientation":   snap.Orientation,
		"codec":         snap.Codec,
		"audio_devices": capture.AudioDevices(),
		"video_devices": capture.VideoDevices(),
	})
}

// --- Detection handlers ---

// handleDetectionUpdate processes a detection/update command. All tunables
// except the spectrum window apply live; the window needs a restart because
// the FFT buffers are sized once.
func (h *CommandHandler) handleDetectionUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(req *DetectionUpdateRequest) error {
		snap := h.cfg.Snapshot()

		// Use current values as defaults if not provided
		d := config.DetectionConfig{
			CalibrationMs:       snap.CalibrationMs,
			SilenceDebounceMs:   snap.SilenceDebounceMs,
			ThresholdMultiplier: snap.ThresholdMultiplier,
			SpectrumWindow:      snap.SpectrumWindow,
			TickMs:              snap.TickMs,
		}

		if req.CalibrationMs != nil {
			d.CalibrationMs = *req.CalibrationMs
		}
		if req.SilenceDebounceMs != nil {
			d.SilenceDebounceMs = *req.SilenceDebounceMs
		}
		if req.ThresholdMultiplier != nil {
			d.ThresholdMultiplier = *req.ThresholdMultiplier
		}
		if req.SpectrumWindow != nil {
			d.SpectrumWindow = *req.SpectrumWindow
		}
		if req.TickMs != nil {
			d.TickMs = *req.TickMs
		}

		return h.cfg.SetDetection(d)
	})
}

// handleDetectionGet processes a detection/get command.
func (h *CommandHandler) handleDetectionGet(cmd WSCommand, send chan<- any) {
	snap := h.cfg.Snapshot()
	SendSuccess(send, cmd.Type, map[string]any{
		"calibration_ms":       snap.CalibrationMs,
		"silence_debounce_ms":  snap.SilenceDebounceMs,
		"threshold_multiplier": snap.ThresholdMultiplier,
		"spectrum_window":      snap.SpectrumWindow,
		"tick_ms":              snap.TickMs,
	})
}

// --- Storage handlers ---

// handleStorageUpdate processes a storage/update command.
func (h *CommandHandler) handleStorageUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(req *StorageUpdateRequest) error {
		snap := h.cfg.Snapshot()

		s := config.StorageConfig{
			OutputDir:         snap.OutputDir,
			TempDir:           snap.TempDir,
			Mode:              snap.StorageMode,
			RetentionDays:     snap.RetentionDays,
			S3Endpoint:        snap.S3Endpoint,
			S3Bucket:          snap.S3Bucket,
			S3AccessKeyID:     snap.S3AccessKeyID,
			S3SecretAccessKey: snap.S3SecretAccessKey,
		}

		if req.OutputDir != nil {
			s.OutputDir = *req.OutputDir
		}
		if req.TempDir != nil {
			s.TempDir = *req.TempDir
		}
		if req.Mode != nil {
			s.Mode = types.StorageMode(*req.Mode)
		}
		if req.RetentionDays != nil {
			s.RetentionDays = *req.RetentionDays
		}
		if req.S3Endpoint != nil {
			s.S3Endpoint = *req.S3Endpoint
		}
		if req.S3Bucket != nil {
			s.S3Bucket = *req.S3Bucket
		}
		if req.S3AccessKeyID != nil {
			s.S3AccessKeyID = *req.S3AccessKeyID
		}
		if req.S3SecretAccessKey != nil {
			s.S3SecretAccessKey = *req.S3SecretAccessKey
		}

		return h.cfg.SetStorage(s)
	})
}

// handleStorageGet processes a storage/get command. The S3 secret is not
// echoed back; clients only learn whether one is set.
func (h *CommandHandler) handleStorageGet(cmd WSCommand, send chan<- any) {
	snap := h.cfg.Snapshot()
	SendSuccess(send, cmd.Type, map[string]any{
		"output_dir":       snap.OutputDir,
		"temp_dir":         snap.TempDir,
		"mode":             snap.StorageMode,
		"retention_days":   snap.RetentionDays,
		"s3_endpoint":      snap.S3Endpoint,
		"s3_bucket":        snap.S3Bucket,
		"s3_access_key_id": snap.S3AccessKeyID,
		"s3_secret_set":    snap.S3SecretAccessKey != "",
	})
}

// handleStorageTestS3 processes a storage/test-s3 command. Request fields
// override the saved configuration so unsaved credentials can be probed
// before committing them.
func (h *CommandHandler) handleStorageTestS3(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(req *S3TestRequest) error {
		snap := h.cfg.Snapshot()
		s3cfg := &recording.S3Config{
			Endpoint:        cmp.Or(req.Endpoint, snap.S3Endpoint),
			Bucket:          cmp.Or(req.Bucket, snap.S3Bucket),
			AccessKeyID:     cmp.Or(req.AccessKey, snap.S3AccessKeyID),
			SecretAccessKey: cmp.Or(req.SecretKey, snap.S3SecretAccessKey),
		}

		// Run S3 test async
		go func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("panic in storage/test-s3 handler", "panic", r)
				}
			}()

			result := types.WSTestResult{
				Type:     "test_result",
				TestType: "s3",
				Success:  true,
			}

			if err := recording.TestS3Connection(s3cfg); err != nil {
				slog.Error("storage/test-s3: connection test failed", "error", err)
				result.Success = false
				result.Error = err.Error()
			} else {
				slog.Info("storage/test-s3: connection test succeeded")
			}

			SendData(send, result)
		}()

		return nil
	})
}

// --- Audit clip handlers ---

// handleAuditUpdate processes an audit/update command.
func (h *CommandHandler) handleAuditUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(req *AuditUpdateRequest) error {
		snap := h.cfg.Snapshot()

		// Use current values as defaults if not provided
		enabled := snap.AuditClipsEnabled
		retentionDays := snap.AuditRetentionDays

		if req.Enabled != nil {
			enabled = *req.Enabled
		}
		if req.RetentionDays != nil {
			retentionDays = *req.RetentionDays
		}

		return h.cfg.SetAuditClips(config.AuditClipsConfig{
			Enabled:       enabled,
			RetentionDays: retentionDays,
		})
	})
}

// handleAuditGet processes an audit/get command.
func (h *CommandHandler) handleAuditGet(cmd WSCommand, send chan<- any) {
	snap := h.cfg.Snapshot()
	SendSuccess(send, cmd.Type, map[string]any{
		"enabled":        snap.AuditClipsEnabled,
		"retention_days": snap.AuditRetentionDays,
	})
}
