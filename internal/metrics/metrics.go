// Package metrics exposes Prometheus metrics for the recorder: session state,
// detection readings, pause accounting and upload health.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/castwork/deadair/internal/session"
	"github.com/castwork/deadair/internal/types"
)

var (
	// Session state, one-hot per state label
	sessionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "deadair_session_state",
		Help: "Current session state (1 for the active state, 0 otherwise)",
	}, []string{"state"})

	sessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deadair_sessions_started_total",
		Help: "Total number of sessions started",
	})

	sessionsEnded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deadair_sessions_ended_total",
		Help: "Total number of sessions ended, by reason",
	}, []string{"reason"})

	// Detection readings
	noiseFloor = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "deadair_noise_floor",
		Help: "Calibrated noise floor energy (0-255 scale)",
	})

	silenceThreshold = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "deadair_silence_threshold",
		Help: "Derived silence threshold energy (0-255 scale)",
	})

	audioEnergy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "deadair_audio_energy",
		Help: "Most recent mean spectral energy (0-255 scale)",
	})

	samplesAnalyzed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deadair_samples_analyzed_total",
		Help: "Total analyzed audio samples, by classification",
	}, []string{"class"})

	// Pause accounting
	pausesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deadair_pauses_total",
		Help: "Total number of automatic pauses",
	})

	resumesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deadair_resumes_total",
		Help: "Total number of automatic resumes",
	})

	pauseDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "deadair_pause_duration_seconds",
		Help:    "Length of automatic pauses in seconds",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4 minutes
	})

	deadAirRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deadair_dead_air_removed_seconds_total",
		Help: "Total seconds of dead air kept out of recordings",
	})

	// Recording output
	sessionSegments = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "deadair_session_segments",
		Help: "Segments written by the active session",
	})

	// Upload pipeline
	uploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deadair_uploads_total",
		Help: "Total recording uploads, by result",
	}, []string{"result"})

	uploadRetryDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "deadair_upload_retry_depth",
		Help: "Uploads parked in the retry queue",
	})

	// Web interface
	websocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "deadair_websocket_clients",
		Help: "Connected WebSocket clients",
	})
)

// knownStates drives the one-hot state gauge.
var knownStates = []types.RecordingState{
	types.StateIdle,
	types.StateCalibrating,
	types.StateRecording,
	types.StatePaused,
	types.StateStopped,
}

// SetState sets the one-hot session state gauge.
func SetState(state types.RecordingState) {
	for _, s := range knownStates {
		v := 0.0
		if s == state {
			v = 1
		}
		sessionState.WithLabelValues(string(s)).Set(v)
	}
}

// SetCalibration records the calibration result.
func SetCalibration(floor, threshold float64) {
	noiseFloor.Set(floor)
	silenceThreshold.Set(threshold)
}

// ObserveSample records one analyzed audio sample.
func ObserveSample(energy float64, silent bool) {
	audioEnergy.Set(energy)
	class := "sound"
	if silent {
		class = "silent"
	}
	samplesAnalyzed.WithLabelValues(class).Inc()
}

// SetSegments updates the active session's segment count.
func SetSegments(n int) {
	sessionSegments.Set(float64(n))
}

// RecordUpload counts an upload pipeline outcome: queued, completed, failed
// or abandoned.
func RecordUpload(result string) {
	uploads.WithLabelValues(result).Inc()
}

// SetUploadRetryDepth updates the parked upload gauge.
func SetUploadRetryDepth(n int) {
	uploadRetryDepth.Set(float64(n))
}

// SetWebsocketClients updates the connected client gauge.
func SetWebsocketClients(n int) {
	websocketClients.Set(float64(n))
}

// HandleTransition updates metrics from a state machine transition.
func HandleTransition(e session.TransitionEvent) {
	SetState(e.To)

	switch e.Reason {
	case session.ReasonStart:
		sessionsStarted.Inc()
	case session.ReasonCalibrated:
		SetCalibration(e.NoiseFloor, e.Threshold)
	case session.ReasonSilence:
		pausesTotal.Inc()
	case session.ReasonSound:
		resumesTotal.Inc()
		seconds := float64(e.SilenceMs) / 1000
		pauseDuration.Observe(seconds)
		deadAirRemoved.Add(seconds)
	case session.ReasonStop, session.ReasonAbort, session.ReasonError:
		sessionsEnded.WithLabelValues(string(e.Reason)).Inc()
	}
}
