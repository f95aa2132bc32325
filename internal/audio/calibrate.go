package audio

import (
	"sync"
	"time"

	"github.com/castwork/deadair/internal/types"
)

// Calibrator measures the ambient noise floor by sampling spectrum energy
// over a fixed window. Stepping is deadline-based so the caller's tick
// cadence does not affect the measurement schedule. It is safe for
// concurrent use.
type Calibrator struct {
	mu           sync.Mutex
	deadline     time.Time
	samples      []float64
	nextSample   time.Time
	nextProgress time.Time
	done         bool
}

// NewCalibrator starts a calibration window at the given time.
func NewCalibrator(start time.Time, duration time.Duration) *Calibrator {
	return &Calibrator{
		deadline:     start.Add(duration),
		nextSample:   start.Add(types.CalibrationSampleInterval),
		nextProgress: start.Add(types.CalibrationProgressInterval),
	}
}

// Step advances the calibration schedule to now. Energy is sampled on its own
// cadence, and onProgress fires periodically with the remaining time. Step
// reports whether the calibration window has elapsed.
func (c *Calibrator) Step(now time.Time, energy float64, onProgress func(remaining time.Duration)) bool {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return true
	}

	if !now.Before(c.nextSample) {
		c.samples = append(c.samples, energy)
		c.nextSample = now.Add(types.CalibrationSampleInterval)
	}

	var remaining time.Duration
	fireProgress := false
	if !now.Before(c.nextProgress) && now.Before(c.deadline) {
		remaining = c.deadline.Sub(now)
		fireProgress = true
		c.nextProgress = now.Add(types.CalibrationProgressInterval)
	}

	if !now.Before(c.deadline) {
		c.done = true
	}
	done := c.done
	c.mu.Unlock()

	if fireProgress && onProgress != nil {
		onProgress(remaining)
	}
	return done
}

// NoiseFloor returns the mean of the collected energy samples, floored to
// types.MinNoiseFloor. A window that collected no samples yields the minimum.
func (c *Calibrator) NoiseFloor() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.samples) == 0 {
		return types.MinNoiseFloor
	}
	sum := 0.0
	for _, v := range c.samples {
		sum += v
	}
	return max(sum/float64(len(c.samples)), types.MinNoiseFloor)
}

// SampleCount returns how many energy samples have been collected.
func (c *Calibrator) SampleCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.samples)
}

// Remaining returns how much of the calibration window is left at now.
func (c *Calibrator) Remaining(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return max(c.deadline.Sub(now), 0)
}
