package engine

import (
	"time"

	"github.com/castwork/deadair/internal/audio"
	"github.com/castwork/deadair/internal/metrics"
	"github.com/castwork/deadair/internal/types"
)

// levelUpdateFrames is the number of stereo frames between level meter
// flushes, about a quarter second at 48kHz.
const levelUpdateFrames = 12000

// meter accumulates level data from the analysis capture and publishes dB
// readings on a fixed sample cadence.
func (e *Engine) meter(buf []byte, n int) {
	e.levelsMu.Lock()
	audio.ProcessSamples(buf, n, &e.levelData)
	flushed := e.levelData.SampleCount >= levelUpdateFrames
	if flushed {
		e.publishLevelsLocked(time.Now())
	}
	e.levelsMu.Unlock()

	if flushed {
		e.observeSample()
	}
}

// publishLevelsLocked converts the accumulated window into dB readings with
// held peaks. Callers must hold levelsMu.
func (e *Engine) publishLevelsLocked(now time.Time) {
	calculated := audio.CalculateLevels(&e.levelData)
	heldL, heldR := e.peakHolder.Update(calculated.PeakLeft, calculated.PeakRight, now)
	e.levels = types.AudioLevels{
		Left:      calculated.RMSLeft,
		Right:     calculated.RMSRight,
		PeakLeft:  heldL,
		PeakRight: heldR,
		ClipLeft:  calculated.ClipLeft,
		ClipRight: calculated.ClipRight,
	}
	e.levelData.Reset()
}

// observeSample records one detection reading for metrics while a session is
// live.
func (e *Engine) observeSample() {
	info := e.controller.Status()
	if !info.State.Active() {
		return
	}
	energy := e.spectrum.Energy()
	metrics.ObserveSample(energy, audio.Classify(energy, info.SilenceThreshold) == audio.Silent)
}

// AudioLevels returns the current level meter readings together with the
// spectrum energy driving silence detection.
func (e *Engine) AudioLevels() types.AudioLevels {
	if !e.source.Running() {
		return types.AudioLevels{
			Left:      audio.MinDB,
			Right:     audio.MinDB,
			PeakLeft:  audio.MinDB,
			PeakRight: audio.MinDB,
		}
	}

	e.levelsMu.RLock()
	levels := e.levels
	e.levelsMu.RUnlock()

	levels.Energy = e.spectrum.Energy()

	info := e.controller.Status()
	if info.State.Active() && info.SilenceThreshold > 0 {
		levels.Silent = audio.Classify(levels.Energy, info.SilenceThreshold) == audio.Silent
	}
	return levels
}

// resetLevels clears the meters after the analysis capture is released.
func (e *Engine) resetLevels() {
	e.levelsMu.Lock()
	e.levelData.Reset()
	e.levels = types.AudioLevels{}
	e.levelsMu.Unlock()
	e.peakHolder.Reset()
}
