package audio

import (
	"testing"
	"time"

	"github.com/castwork/deadair/internal/types"
)

func TestCalibrator_NoiseFloorIsMeanOfSamples(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cal := NewCalibrator(start, 200*time.Millisecond)

	energies := []float64{10, 20, 30, 40}
	now := start
	for _, e := range energies {
		now = now.Add(types.CalibrationSampleInterval)
		cal.Step(now, e, nil)
	}

	if got := cal.SampleCount(); got != len(energies) {
		t.Fatalf("SampleCount = %d, want %d", got, len(energies))
	}
	if got := cal.NoiseFloor(); got != 25 {
		t.Errorf("NoiseFloor = %g, want 25", got)
	}
}

func TestCalibrator_FloorNeverBelowMinimum(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cal := NewCalibrator(start, 200*time.Millisecond)

	now := start
	for range 4 {
		now = now.Add(types.CalibrationSampleInterval)
		cal.Step(now, 0.05, nil)
	}

	if got := cal.NoiseFloor(); got != types.MinNoiseFloor {
		t.Errorf("NoiseFloor = %g, want minimum %g", got, types.MinNoiseFloor)
	}
}

func TestCalibrator_EmptyWindowYieldsMinimum(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cal := NewCalibrator(start, 200*time.Millisecond)

	if got := cal.NoiseFloor(); got != types.MinNoiseFloor {
		t.Errorf("NoiseFloor with no samples = %g, want %g", got, types.MinNoiseFloor)
	}
}

func TestCalibrator_CompletesAtDeadline(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	duration := types.DefaultCalibrationDuration
	cal := NewCalibrator(start, duration)

	now := start
	ticks := 0
	for {
		now = now.Add(types.TickInterval)
		ticks++
		if cal.Step(now, 5, nil) {
			break
		}
		if ticks > 100 {
			t.Fatal("calibration never completed")
		}
	}

	if elapsed := now.Sub(start); elapsed != duration {
		t.Errorf("completed after %v, want %v", elapsed, duration)
	}
	// One sample per 50ms tick across the 3 second window.
	if got := cal.SampleCount(); got != 60 {
		t.Errorf("SampleCount = %d, want 60", got)
	}
}

func TestCalibrator_ProgressCadence(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cal := NewCalibrator(start, types.DefaultCalibrationDuration)

	var reported []time.Duration
	now := start
	for {
		now = now.Add(types.TickInterval)
		done := cal.Step(now, 5, func(remaining time.Duration) {
			reported = append(reported, remaining)
		})
		if done {
			break
		}
	}

	// Progress fires every 100ms while the window is still open.
	if len(reported) != 29 {
		t.Fatalf("progress fired %d times, want 29", len(reported))
	}
	if reported[0] != 2900*time.Millisecond {
		t.Errorf("first remaining = %v, want 2.9s", reported[0])
	}
	for i := 1; i < len(reported); i++ {
		if reported[i] >= reported[i-1] {
			t.Fatalf("remaining not decreasing: %v then %v", reported[i-1], reported[i])
		}
	}
}

func TestCalibrator_StepAfterCompletionIsInert(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cal := NewCalibrator(start, 100*time.Millisecond)

	now := start.Add(150 * time.Millisecond)
	if !cal.Step(now, 5, nil) {
		t.Fatal("Step past deadline did not report completion")
	}
	count := cal.SampleCount()

	if !cal.Step(now.Add(time.Second), 99, nil) {
		t.Fatal("Step after completion did not report completion")
	}
	if got := cal.SampleCount(); got != count {
		t.Errorf("sample collected after completion: %d, want %d", got, count)
	}
}

func TestCalibrator_Remaining(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cal := NewCalibrator(start, time.Second)

	if got := cal.Remaining(start.Add(400 * time.Millisecond)); got != 600*time.Millisecond {
		t.Errorf("Remaining = %v, want 600ms", got)
	}
	if got := cal.Remaining(start.Add(2 * time.Second)); got != 0 {
		t.Errorf("Remaining past deadline = %v, want 0", got)
	}
}
