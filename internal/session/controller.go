// Package session implements the debounced recording state machine. A single
// controller owns the authoritative RecordingState and sequences the capture
// sink through start/pause/resume/stop based on calibrated silence detection.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/castwork/deadair/internal/audio"
	"github.com/castwork/deadair/internal/config"
	"github.com/castwork/deadair/internal/types"
)

// Sentinel errors for session operations.
var (
	ErrSessionActive  = errors.New("session already active")
	ErrSessionStopped = errors.New("session is stopped, reset required")
	ErrNotStopped     = errors.New("session is not stopped")
	ErrStopTimeout    = errors.New("timed out waiting for session to stop")
)

// Sampler supplies the most recent spectrum energy reading. Must not block.
type Sampler interface {
	Energy() float64
}

// Media acquires and releases the capture devices backing a session: the
// video device probe and the long-lived audio analysis process.
type Media interface {
	// Acquire opens the devices. Failures are classified as
	// capture.ErrDeviceUnavailable or capture.ErrConstraintUnsupported.
	Acquire() error
	// Release closes everything Acquire opened. Safe to call when nothing
	// is held.
	Release()
}

// Sink is the capture pipeline the controller drives. The controller never
// inspects the sink beyond these calls and never invokes Pause, Resume or
// Stop on a sink it has not started.
type Sink interface {
	Start() error
	Pause() error
	Resume() error
	// Stop finalizes the recording and returns the output file path.
	Stop() (output string, err error)
}

// TransitionReason explains why a state transition happened.
type TransitionReason string

const (
	// ReasonStart is an accepted external start request.
	ReasonStart TransitionReason = "start"
	// ReasonCalibrated is the calibration window elapsing.
	ReasonCalibrated TransitionReason = "calibrated"
	// ReasonSilence is a silence stretch outlasting the debounce window.
	ReasonSilence TransitionReason = "silence"
	// ReasonSound is a sound sample observed while paused.
	ReasonSound TransitionReason = "sound"
	// ReasonStop is an external stop request.
	ReasonStop TransitionReason = "stop"
	// ReasonAbort is a stop request observed during calibration.
	ReasonAbort TransitionReason = "abort"
	// ReasonReset is an external reset request.
	ReasonReset TransitionReason = "reset"
	// ReasonError is a failure that forced the session down.
	ReasonError TransitionReason = "error"
)

// TransitionEvent describes one state machine transition.
type TransitionEvent struct {
	SessionID  string                `json:"session_id"`
	From       types.RecordingState  `json:"from"`
	To         types.RecordingState  `json:"to"`
	At         time.Time             `json:"at"`
	Reason     TransitionReason      `json:"reason"`
	SilenceMs  int64                 `json:"silence_ms,omitzero"`
	NoiseFloor float64               `json:"noise_floor,omitzero"`
	Threshold  float64               `json:"threshold,omitzero"`
	Output     string                `json:"output,omitzero"`
	Error      string                `json:"error,omitzero"`
}

// Callbacks receive controller signals. Nil fields are skipped. Transition
// callbacks fire outside the controller lock, in tick order.
type Callbacks struct {
	OnTransition  func(e TransitionEvent)
	OnCalibration func(remaining time.Duration)
}

// Controller is the debounced state machine driving a recording session.
// Step must be called from a single goroutine; Start, Stop, Reset and Status
// may be called from any goroutine.
type Controller struct {
	cfg       *config.Config
	media     Media
	sink      Sink
	sampler   Sampler
	callbacks Callbacks
	clock     func() time.Time

	mu             sync.RWMutex
	state          types.RecordingState
	sessionID      string
	startedAt      time.Time
	calibrator     *audio.Calibrator
	tracker        *audio.Tracker
	noiseFloor     float64
	threshold      float64
	lastEnergy     float64
	sinkStarted    bool
	stopRequested  bool
	resetRequested bool
	failed         bool
	pauseCount     int
	pausedTotal    time.Duration
	pausedSince    time.Time
	outputFile     string
	lastError      string
}

// New creates a controller in the idle state.
func New(cfg *config.Config, media Media, sink Sink, sampler Sampler, cb Callbacks) *Controller {
	return &Controller{
		cfg:       cfg,
		media:     media,
		sink:      sink,
		sampler:   sampler,
		callbacks: cb,
		clock:     time.Now,
		state:     types.StateIdle,
		tracker:   audio.NewTracker(),
	}
}

// State returns the current recording state.
func (c *Controller) State() types.RecordingState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Status returns a snapshot of the current session.
func (c *Controller) Status() types.SessionInfo {
	now := c.clock()

	c.mu.RLock()
	defer c.mu.RUnlock()

	info := types.SessionInfo{
		ID:               c.sessionID,
		State:            c.state,
		NoiseFloor:       c.noiseFloor,
		SilenceThreshold: c.threshold,
		OutputFile:       c.outputFile,
		LastError:        c.lastError,
	}
	if !c.startedAt.IsZero() {
		info.StartedAt = c.startedAt.Format(time.RFC3339)
	}
	if c.calibrator != nil {
		info.CalibrationRemainingMs = c.calibrator.Remaining(now).Milliseconds()
	}
	if c.state == types.StateRecording || c.state == types.StatePaused {
		info.SilenceDurationMs = c.tracker.DurationMs()
		info.Segments = c.pauseCount + 1
	}
	paused := c.pausedTotal
	if c.state == types.StatePaused && !c.pausedSince.IsZero() {
		paused += now.Sub(c.pausedSince)
	}
	info.PausedTotalMs = paused.Milliseconds()
	return info
}

// Energy returns the most recently classified energy reading.
func (c *Controller) Energy() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastEnergy
}

// Start begins a new session: it acquires the capture devices and enters the
// calibration phase. Acquisition failures revert to idle with everything
// released and are returned to the caller classified.
func (c *Controller) Start() error {
	c.mu.Lock()
	switch c.state {
	case types.StateIdle:
	case types.StateStopped:
		c.mu.Unlock()
		return ErrSessionStopped
	default:
		c.mu.Unlock()
		return ErrSessionActive
	}

	// Mark the transition before the slow acquisition so a concurrent Start
	// is rejected.
	c.state = types.StateCalibrating
	c.mu.Unlock()

	if err := c.media.Acquire(); err != nil {
		c.media.Release()
		c.mu.Lock()
		c.state = types.StateIdle
		c.lastError = err.Error()
		c.mu.Unlock()
		return err
	}

	now := c.clock()
	snap := c.cfg.Snapshot()

	c.mu.Lock()
	c.sessionID = uuid.NewString()
	c.startedAt = now
	c.calibrator = audio.NewCalibrator(now, snap.CalibrationDuration())
	c.tracker.Reset()
	c.noiseFloor = 0
	c.threshold = 0
	c.sinkStarted = false
	c.stopRequested = false
	c.resetRequested = false
	c.failed = false
	c.pauseCount = 0
	c.pausedTotal = 0
	c.pausedSince = time.Time{}
	c.outputFile = ""
	c.lastError = ""
	id := c.sessionID
	c.mu.Unlock()

	c.emit(TransitionEvent{
		SessionID: id,
		From:      types.StateIdle,
		To:        types.StateCalibrating,
		At:        now,
		Reason:    ReasonStart,
	})
	return nil
}

// Stop requests a stop. The request is observed on the next tick; it aborts
// calibration or finalizes an active recording.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == types.StateIdle || c.state == types.StateStopped {
		return
	}
	c.stopRequested = true
}

// Fail requests an emergency stop recorded with the given reason, used when a
// collaborator such as the analysis source dies permanently.
func (c *Controller) Fail(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == types.StateIdle || c.state == types.StateStopped {
		return
	}
	c.lastError = reason
	c.failed = true
	c.stopRequested = true
}

// Reset requests a return to idle after a stop, clearing session results so a
// new session can start. Only valid in the stopped state.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case types.StateStopped:
		c.resetRequested = true
		return nil
	case types.StateIdle:
		return nil
	default:
		return ErrNotStopped
	}
}

// StopAndWait requests a stop and blocks until the controller reaches a
// resting state or the timeout elapses.
func (c *Controller) StopAndWait(timeout time.Duration) (types.SessionInfo, error) {
	c.Stop()

	settled := c.pollUntil(func() bool {
		s := c.State()
		return s == types.StateStopped || s == types.StateIdle
	})

	select {
	case <-settled:
		return c.Status(), nil
	case <-time.After(timeout):
		return c.Status(), ErrStopTimeout
	}
}

// Step advances the state machine to now. Stop and reset flags are handled
// before anything else so a stop always wins over a pause or resume decision
// pending in the same tick.
func (c *Controller) Step(now time.Time) {
	c.mu.Lock()

	if c.stopRequested {
		c.stopRequested = false
		c.stepStop(now)
		return
	}
	if c.resetRequested {
		c.resetRequested = false
		c.stepReset(now)
		return
	}

	switch c.state {
	case types.StateCalibrating:
		c.stepCalibration(now)
	case types.StateRecording, types.StatePaused:
		c.stepDetection(now)
	default:
		c.mu.Unlock()
	}
}

// stepStop handles a pending stop request. Called with the lock held;
// releases it.
func (c *Controller) stepStop(now time.Time) {
	switch c.state {
	case types.StateCalibrating:
		// Abort: discard the partial baseline, never touch the sink.
		c.calibrator = nil
		c.tracker.Reset()
		c.state = types.StateIdle
		id := c.sessionID
		c.mu.Unlock()

		c.media.Release()
		c.emit(TransitionEvent{
			SessionID: id,
			From:      types.StateCalibrating,
			To:        types.StateIdle,
			At:        now,
			Reason:    ReasonAbort,
		})

	case types.StateRecording, types.StatePaused:
		from := c.state
		if c.state == types.StatePaused && !c.pausedSince.IsZero() {
			c.pausedTotal += now.Sub(c.pausedSince)
			c.pausedSince = time.Time{}
		}
		c.tracker.Reset()
		c.state = types.StateStopped
		started := c.sinkStarted
		c.sinkStarted = false
		id := c.sessionID
		reason := ReasonStop
		if c.failed {
			reason = ReasonError
			c.failed = false
		}
		c.mu.Unlock()

		var output string
		var stopErr error
		if started {
			output, stopErr = c.sink.Stop()
		}
		c.media.Release()

		c.mu.Lock()
		c.outputFile = output
		if stopErr != nil {
			c.lastError = stopErr.Error()
			reason = ReasonError
		}
		errMsg := c.lastError
		c.mu.Unlock()

		c.emit(TransitionEvent{
			SessionID: id,
			From:      from,
			To:        types.StateStopped,
			At:        now,
			Reason:    reason,
			Output:    output,
			Error:     errMsg,
		})

	default:
		c.mu.Unlock()
	}
}

// stepReset handles a pending reset request. Called with the lock held;
// releases it.
func (c *Controller) stepReset(now time.Time) {
	if c.state != types.StateStopped {
		c.mu.Unlock()
		return
	}

	id := c.sessionID
	c.state = types.StateIdle
	c.sessionID = ""
	c.startedAt = time.Time{}
	c.noiseFloor = 0
	c.threshold = 0
	c.lastEnergy = 0
	c.pauseCount = 0
	c.pausedTotal = 0
	c.pausedSince = time.Time{}
	c.outputFile = ""
	c.lastError = ""
	c.tracker.Reset()
	c.mu.Unlock()

	c.emit(TransitionEvent{
		SessionID: id,
		From:      types.StateStopped,
		To:        types.StateIdle,
		At:        now,
		Reason:    ReasonReset,
	})
}

// stepCalibration advances the calibration window. Called with the lock held;
// releases it.
func (c *Controller) stepCalibration(now time.Time) {
	if c.calibrator == nil {
		c.mu.Unlock()
		return
	}

	energy := c.sampler.Energy()
	c.lastEnergy = energy

	var remaining time.Duration
	progressFired := false
	done := c.calibrator.Step(now, energy, func(r time.Duration) {
		remaining = r
		progressFired = true
	})

	if !done {
		c.mu.Unlock()
		if progressFired && c.callbacks.OnCalibration != nil {
			c.callbacks.OnCalibration(remaining)
		}
		return
	}

	snap := c.cfg.Snapshot()
	floor := c.calibrator.NoiseFloor()
	threshold := audio.Threshold(floor, snap.ThresholdMultiplier)
	c.calibrator = nil
	c.noiseFloor = floor
	c.threshold = threshold
	c.tracker.Reset()
	id := c.sessionID
	c.mu.Unlock()

	if err := c.sink.Start(); err != nil {
		// The session cannot record; tear it down like an acquisition failure.
		c.media.Release()
		c.mu.Lock()
		c.state = types.StateIdle
		c.lastError = err.Error()
		errMsg := c.lastError
		c.mu.Unlock()

		c.emit(TransitionEvent{
			SessionID: id,
			From:      types.StateCalibrating,
			To:        types.StateIdle,
			At:        now,
			Reason:    ReasonError,
			Error:     errMsg,
		})
		return
	}

	c.mu.Lock()
	c.state = types.StateRecording
	c.sinkStarted = true
	c.mu.Unlock()

	c.emit(TransitionEvent{
		SessionID:  id,
		From:       types.StateCalibrating,
		To:         types.StateRecording,
		At:         now,
		Reason:     ReasonCalibrated,
		NoiseFloor: floor,
		Threshold:  threshold,
	})
}

// stepDetection classifies the latest sample and applies the debounce policy:
// pause after an uninterrupted silent stretch, resume on a single sound
// sample. Called with the lock held; releases it.
func (c *Controller) stepDetection(now time.Time) {
	snap := c.cfg.Snapshot()
	energy := c.sampler.Energy()
	c.lastEnergy = energy

	class := audio.Classify(energy, c.threshold)
	ev := c.tracker.Update(class, snap.SilenceDebounce(), now)

	switch {
	case c.state == types.StateRecording && ev.JustEntered:
		id := c.sessionID
		c.mu.Unlock()

		if err := c.sink.Pause(); err != nil {
			c.mu.Lock()
			c.lastError = err.Error()
			// Restart the debounce so a continuing silence retries the pause.
			c.tracker.Reset()
			c.mu.Unlock()
			return
		}

		c.mu.Lock()
		c.state = types.StatePaused
		c.pauseCount++
		c.pausedSince = now
		c.mu.Unlock()

		c.emit(TransitionEvent{
			SessionID: id,
			From:      types.StateRecording,
			To:        types.StatePaused,
			At:        now,
			Reason:    ReasonSilence,
			SilenceMs: ev.DurationMs,
		})

	case c.state == types.StatePaused && class == audio.Sound:
		id := c.sessionID
		c.mu.Unlock()

		if err := c.sink.Resume(); err != nil {
			c.mu.Lock()
			c.lastError = err.Error()
			c.mu.Unlock()
			return
		}

		c.mu.Lock()
		c.state = types.StateRecording
		if !c.pausedSince.IsZero() {
			c.pausedTotal += now.Sub(c.pausedSince)
			c.pausedSince = time.Time{}
		}
		c.mu.Unlock()

		c.emit(TransitionEvent{
			SessionID: id,
			From:      types.StatePaused,
			To:        types.StateRecording,
			At:        now,
			Reason:    ReasonSound,
			SilenceMs: ev.TotalMs,
		})

	default:
		c.mu.Unlock()
	}
}

// emit delivers a transition event to the registered callback.
func (c *Controller) emit(e TransitionEvent) {
	if c.callbacks.OnTransition != nil {
		c.callbacks.OnTransition(e)
	}
}

// pollUntil signals when the given condition becomes true.
func (c *Controller) pollUntil(condition func() bool) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		for !condition() {
			time.Sleep(types.PollInterval)
		}
		close(done)
	}()
	return done
}
