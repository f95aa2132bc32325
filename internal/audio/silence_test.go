package audio

import (
	"testing"
	"time"

	"github.com/castwork/deadair/internal/types"
)

func TestTracker_ConfirmsAfterDebounceWindow(t *testing.T) {
	tr := NewTracker()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	debounce := types.DefaultSilenceDebounce

	// Eleven consecutive silent ticks at 50ms. The stretch begins at the
	// first tick, so the 500ms mark lands on the eleventh.
	var confirmedAt int
	for i := 1; i <= 11; i++ {
		now := start.Add(time.Duration(i) * types.TickInterval)
		event := tr.Update(Silent, debounce, now)
		if event.JustEntered {
			confirmedAt = i
		}
		if i < 11 && event.Silent {
			t.Fatalf("silence confirmed early at tick %d (%v elapsed)", i, time.Duration(i-1)*types.TickInterval)
		}
	}

	if confirmedAt != 11 {
		t.Fatalf("silence confirmed at tick %d, want 11", confirmedAt)
	}
	if !tr.InSilence() {
		t.Error("InSilence = false after confirmation")
	}
	if got := tr.DurationMs(); got != 500 {
		t.Errorf("DurationMs = %d, want 500", got)
	}
}

func TestTracker_AlternationNeverConfirms(t *testing.T) {
	tr := NewTracker()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	debounce := types.DefaultSilenceDebounce

	// Audio flips between silent and sound every 400ms. No silent stretch
	// ever reaches the 500ms debounce, so silence is never confirmed.
	phaseSilent := true
	phaseStart := now
	for range 600 {
		now = now.Add(types.TickInterval)
		if now.Sub(phaseStart) >= 400*time.Millisecond {
			phaseSilent = !phaseSilent
			phaseStart = now
		}

		c := Sound
		if phaseSilent {
			c = Silent
		}
		event := tr.Update(c, debounce, now)
		if event.Silent || event.JustEntered {
			t.Fatalf("silence confirmed at %v despite 400ms alternation", now)
		}
	}
}

func TestTracker_SingleSoundSampleEndsSilence(t *testing.T) {
	tr := NewTracker()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	debounce := types.DefaultSilenceDebounce

	for range 15 {
		now = now.Add(types.TickInterval)
		tr.Update(Silent, debounce, now)
	}
	if !tr.InSilence() {
		t.Fatal("silence not confirmed after 750ms")
	}

	now = now.Add(types.TickInterval)
	event := tr.Update(Sound, debounce, now)
	if !event.JustEnded {
		t.Fatal("JustEnded = false on first sound sample")
	}
	if event.Silent {
		t.Error("Silent = true on recovery sample")
	}
	if event.TotalMs != 700 {
		t.Errorf("TotalMs = %d, want 700", event.TotalMs)
	}
	if tr.InSilence() {
		t.Error("InSilence = true after recovery")
	}
}

func TestTracker_SoundBeforeConfirmationClearsStretch(t *testing.T) {
	tr := NewTracker()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	debounce := types.DefaultSilenceDebounce

	for range 5 {
		now = now.Add(types.TickInterval)
		tr.Update(Silent, debounce, now)
	}
	now = now.Add(types.TickInterval)
	event := tr.Update(Sound, debounce, now)
	if event.JustEnded {
		t.Error("JustEnded = true for silence that was never confirmed")
	}

	// The interrupted stretch must not count toward the next one.
	for i := 1; i <= 9; i++ {
		now = now.Add(types.TickInterval)
		event = tr.Update(Silent, debounce, now)
		if event.Silent {
			t.Fatalf("silence confirmed after only %dms of the new stretch", (i-1)*50)
		}
	}
}

func TestTracker_Reset(t *testing.T) {
	tr := NewTracker()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for range 12 {
		now = now.Add(types.TickInterval)
		tr.Update(Silent, types.DefaultSilenceDebounce, now)
	}
	tr.Reset()

	if tr.InSilence() {
		t.Error("InSilence = true after Reset")
	}
	if got := tr.DurationMs(); got != 0 {
		t.Errorf("DurationMs = %d after Reset, want 0", got)
	}
}
