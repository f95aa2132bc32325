package server

import (
	"errors"
	"log/slog"
)

// --- Session lifecycle handlers ---

// handleSessionStart processes a session/start command. Runs async because
// device acquisition probes the video input and waits for the analysis
// process to settle.
func (h *CommandHandler) handleSessionStart(cmd WSCommand, send chan<- any) {
	if !h.ffmpegAvailable {
		SendError(send, cmd.Type, errors.New("FFmpeg not found: install it or set ffmpeg_path"))
		return
	}

	HandleActionAsync(cmd, send, func() (any, error) {
		slog.Info("session/start: starting recording session")
		if err := h.engine.StartSession(); err != nil {
			return nil, err
		}
		return h.engine.SessionStatus(), nil
	})
}

// handleSessionStop processes a session/stop command. Runs async because the
// stop waits for the final segment merge to complete.
func (h *CommandHandler) handleSessionStop(cmd WSCommand, send chan<- any) {
	HandleActionAsync(cmd, send, func() (any, error) {
		slog.Info("session/stop: stopping recording session")
		info, err := h.engine.StopSession()
		if err != nil {
			return nil, err
		}
		return info, nil
	})
}

// handleSessionReset processes a session/reset command.
func (h *CommandHandler) handleSessionReset(cmd WSCommand, send chan<- any) {
	if err := h.engine.ResetSession(); err != nil {
		SendError(send, cmd.Type, err)
		return
	}
	SendSuccess(send, cmd.Type, nil)
}
