package main

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/castwork/deadair/internal/capture"
	"github.com/castwork/deadair/internal/config"
	"github.com/castwork/deadair/internal/engine"
	"github.com/castwork/deadair/internal/eventlog"
	"github.com/castwork/deadair/internal/metrics"
	"github.com/castwork/deadair/internal/server"
	"github.com/castwork/deadair/internal/types"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is an HTTP server exposing the WebSocket control surface and the
// recorder REST API.
type Server struct {
	config          *config.Config
	engine          *engine.Engine
	eventLog        *eventlog.Logger
	commands        *server.CommandHandler
	version         *VersionChecker
	ffmpegAvailable bool
	wsClients       atomic.Int64
}

// NewServer returns a new Server configured with the provided config and engine.
func NewServer(cfg *config.Config, eng *engine.Engine, eventLog *eventlog.Logger, ffmpegAvailable bool) *Server {
	return &Server{
		config:          cfg,
		engine:          eng,
		eventLog:        eventLog,
		commands:        server.NewCommandHandler(cfg, eng, eventLog, ffmpegAvailable),
		version:         NewVersionChecker(),
		ffmpegAvailable: ffmpegAvailable,
	}
}

// handleWebSocket handles bidirectional WebSocket communication for real-time updates.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := server.UpgradeConnection(w, r)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	metrics.SetWebsocketClients(int(s.wsClients.Add(1)))
	defer func() {
		metrics.SetWebsocketClients(int(s.wsClients.Add(-1)))
	}()

	// Create buffered send channel for thread-safe writes.
	// Only the writer goroutine writes to the connection, preventing race conditions.
	send := make(chan any, 16)
	done := make(chan struct{})
	statusUpdate := make(chan struct{}, 1)

	// Writer goroutine - sole writer to the connection
	go s.runWebSocketWriter(conn, send)

	// Reader goroutine - handles incoming commands
	go s.runWebSocketReader(conn, send, done, statusUpdate)

	s.runWebSocketEventLoop(send, done, statusUpdate)
}

// runWebSocketWriter writes messages from the send channel to the connection.
func (s *Server) runWebSocketWriter(conn server.WebSocketConn, send <-chan any) {
	defer func() {
		if err := conn.Close(); err != nil {
			slog.Debug("WebSocket close error", "error", err)
		}
	}()
	for msg := range send {
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// runWebSocketReader reads commands from the connection and dispatches them.
func (s *Server) runWebSocketReader(conn server.WebSocketConn, send chan<- any, done, statusUpdate chan<- struct{}) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in WebSocket reader", "panic", r)
		}
		close(done)
	}()

	for {
		var cmd server.WSCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		s.commands.Handle(cmd, send, func() {
			select {
			case statusUpdate <- struct{}{}:
			default:
			}
		})
	}
}

// runWebSocketEventLoop handles periodic status and level updates.
func (s *Server) runWebSocketEventLoop(send chan any, done, statusUpdate <-chan struct{}) {
	levelsTicker := time.NewTicker(100 * time.Millisecond)  // 10 fps for VU meters
	statusTicker := time.NewTicker(3000 * time.Millisecond) // Status updates every 3s
	defer levelsTicker.Stop()
	defer statusTicker.Stop()

	// trySend attempts to send a message, returning false if done is closed
	trySend := func(msg any) bool {
		select {
		case send <- msg:
			return true
		case <-done:
			return false
		}
	}

	// Send initial status
	if !trySend(s.buildWSStatus()) {
		close(send)
		return
	}

	for {
		select {
		case <-done:
			close(send)
			return
		case <-statusUpdate:
			if !trySend(s.buildWSStatus()) {
				close(send)
				return
			}
		case <-levelsTicker.C:
			if !trySend(types.WSLevelsResponse{Type: "levels", Levels: s.engine.AudioLevels()}) {
				close(send)
				return
			}
			// The calibration countdown rides the levels cadence
			if info := s.engine.SessionStatus(); info.State == types.StateCalibrating {
				if !trySend(types.WSCalibrationResponse{Type: "calibration", RemainingMs: info.CalibrationRemainingMs}) {
					close(send)
					return
				}
			}
		case <-statusTicker.C:
			if !trySend(s.buildWSStatus()) {
				close(send)
				return
			}
		}
	}
}

// buildWSStatus returns the current WebSocket status response.
func (s *Server) buildWSStatus() types.WSStatusResponse {
	cfg := s.config.Snapshot()

	eventLogPath := cfg.EventLogPath
	if s.eventLog != nil {
		eventLogPath = s.eventLog.Path()
	}

	return types.WSStatusResponse{
		Type:            "status",
		FFmpegAvailable: s.ffmpegAvailable,
		Session:         s.engine.SessionStatus(),
		Source:          s.engine.SourceStatus(),
		Sink:            s.engine.SinkStatus(),
		AudioDevices:    capture.AudioDevices(),
		VideoDevices:    capture.VideoDevices(),
		Settings: types.WSSettings{
			AudioInput:  cfg.AudioInput,
			VideoInput:  cfg.VideoInput,
			Orientation: cfg.Orientation,
			Codec:       cfg.Codec,
			StorageMode: cfg.StorageMode,
			Platform:    runtime.GOOS,
		},
		Webhook:      cfg.WebhookURL,
		EventLogPath: eventLogPath,
		Zabbix: types.ZabbixConfig{
			Server:    cfg.Zabbix.Server,
			Port:      cfg.Zabbix.Port,
			Host:      cfg.Zabbix.Host,
			Key:       cfg.Zabbix.Key,
			TimeoutMs: cfg.Zabbix.TimeoutMs,
		},
		MQTTBroker:        cfg.MQTT.Broker,
		MQTTTopic:         cfg.MQTT.Topic,
		GraphTenantID:     cfg.GraphTenantID,
		GraphClientID:     cfg.GraphClientID,
		GraphFromAddress:  cfg.GraphFromAddress,
		GraphRecipients:   cfg.GraphRecipients,
		GraphSecretExpiry: s.engine.GraphSecretExpiry(),
		AuditClips: types.AuditClipConfig{
			Enabled:       cfg.AuditClipsEnabled,
			RetentionDays: cfg.AuditRetentionDays,
		},
		Version: s.version.Info(),
	}
}

// SetupRoutes returns an [http.Handler] configured with all application routes.
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()
	auth := s.apiKeyAuth

	// Prometheus scrape endpoint (no auth)
	mux.Handle("/metrics", promhttp.Handler())

	// WebSocket control surface
	mux.HandleFunc("/ws", auth(s.handleWebSocket))

	// REST API
	mux.HandleFunc("/api/status", auth(s.handleAPIStatus))
	mux.HandleFunc("/api/config", auth(s.handleAPIConfig))
	mux.HandleFunc("/api/devices", auth(s.handleAPIDevices))
	mux.HandleFunc("/api/events", auth(s.handleAPIEvents))
	mux.HandleFunc("/api/settings", auth(s.handleAPISettings))
	mux.HandleFunc("/api/recordings", auth(s.handleAPIRecordings))
	mux.HandleFunc("/api/session/start", auth(s.handleAPISessionStart))
	mux.HandleFunc("/api/session/stop", auth(s.handleAPISessionStop))
	mux.HandleFunc("/api/session/reset", auth(s.handleAPISessionReset))
	mux.HandleFunc("/api/test/webhook", auth(s.handleAPITestWebhook))
	mux.HandleFunc("/api/test/email", auth(s.handleAPITestEmail))
	mux.HandleFunc("/api/test/mqtt", auth(s.handleAPITestMQTT))
	mux.HandleFunc("/api/test/zabbix", auth(s.handleAPITestZabbix))
	mux.HandleFunc("/api/test/s3", auth(s.handleAPITestS3))
	mux.HandleFunc("/api/system/regenerate-key", auth(s.handleAPIRegenerateKey))
	mux.HandleFunc("/api/system/cleanup", auth(s.handleAPICleanup))

	return securityHeaders(mux)
}

// securityHeaders returns middleware that wraps handlers with security headers.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// apiKeyAuth returns middleware for API key authentication. Browsers cannot
// set headers on WebSocket dials, so the key is also accepted as a query
// parameter.
func (s *Server) apiKeyAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apiKey := s.config.APIKey()
		if apiKey == "" {
			http.Error(w, "API key not configured", http.StatusServiceUnavailable)
			return
		}

		providedKey := r.Header.Get("X-API-Key")
		if providedKey == "" {
			providedKey = r.URL.Query().Get("api_key")
		}
		if subtle.ConstantTimeCompare([]byte(providedKey), []byte(apiKey)) != 1 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// Start begins the HTTP server.
// Returns an *http.Server that can be used for graceful shutdown.
func (s *Server) Start() *http.Server {
	addr := fmt.Sprintf(":%d", s.config.Snapshot().WebPort)
	slog.Info("starting web server", "addr", addr)

	srv := &http.Server{
		Addr:    addr,
		Handler: s.SetupRoutes(),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	return srv
}
