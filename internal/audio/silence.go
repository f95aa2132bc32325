package audio

import (
	"sync"
	"time"
)

// TrackerEvent is the result of advancing the silence tracker by one
// classified sample.
type TrackerEvent struct {
	// Silent reports whether the debounce window has been satisfied.
	Silent bool
	// DurationMs is how long the current silent stretch has lasted, confirmed
	// or not. Zero when the latest sample was sound.
	DurationMs int64
	// JustEntered is true on the step where silence is first confirmed.
	JustEntered bool
	// JustEnded is true on the first sound sample after confirmed silence.
	JustEnded bool
	// TotalMs is the length of the ended stretch, set with JustEnded.
	TotalMs int64
}

// Tracker debounces silence onsets against a configurable window while
// treating any single sound sample as an immediate recovery. It is safe for
// concurrent use.
type Tracker struct {
	mu           sync.Mutex
	silenceSince time.Time
	inSilence    bool
	durationMs   int64
}

// NewTracker creates a silence tracker with no accumulated state.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Update advances the tracker with one classified sample and returns the
// resulting state. Silence is confirmed only after it has lasted at least
// the debounce window without interruption; sound takes effect immediately.
func (t *Tracker) Update(c Classification, debounce time.Duration, now time.Time) TrackerEvent {
	t.mu.Lock()
	defer t.mu.Unlock()

	var event TrackerEvent

	if c == Silent {
		if t.silenceSince.IsZero() {
			t.silenceSince = now
		}
		t.durationMs = now.Sub(t.silenceSince).Milliseconds()
		event.DurationMs = t.durationMs

		if t.inSilence {
			event.Silent = true
		} else if now.Sub(t.silenceSince) >= debounce {
			t.inSilence = true
			event.Silent = true
			event.JustEntered = true
		}
		return event
	}

	// A single sound sample ends the stretch, no recovery window.
	if t.inSilence {
		event.JustEnded = true
		event.TotalMs = t.durationMs
	}
	t.silenceSince = time.Time{}
	t.inSilence = false
	t.durationMs = 0
	return event
}

// InSilence reports whether silence is currently confirmed.
func (t *Tracker) InSilence() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inSilence
}

// DurationMs returns how long the current silent stretch has lasted.
func (t *Tracker) DurationMs() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.durationMs
}

// Reset clears any accumulated silence state.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.silenceSince = time.Time{}
	t.inSilence = false
	t.durationMs = 0
}
