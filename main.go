// Package main runs the deadair recorder: a headless audio/video recorder
// that calibrates against ambient noise and pauses capture during silence,
// so finished recordings contain no dead air.
//
// Usage:
//
//	deadair [-config path/to/config.json]
//
// If -config is not specified, the recorder looks for config.json in the same
// directory as the binary. DEADAIR_* environment variables, optionally from a
// .env file, override the config path, port, log level and FFmpeg binary.
package main

import (
	"cmp"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/castwork/deadair/internal/config"
	"github.com/castwork/deadair/internal/engine"
	"github.com/castwork/deadair/internal/eventlog"
	"github.com/castwork/deadair/internal/util"
)

// Build metadata, injected via -ldflags at release time.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: config.json next to binary)")
	showVersion := flag.Bool("version", false, "Print version information and exit")
	flag.Parse()

	if *showVersion {
		slog.Info("version info", "version", Version, "commit", Commit, "build_time", BuildTime)
		return
	}

	env, err := config.LoadEnv()
	if err != nil {
		slog.Error("failed to read environment", "error", err)
		os.Exit(1)
	}
	setLogLevel(env.LogLevel)

	path := cmp.Or(*configPath, env.Config)
	if path == "" {
		execPath, err := os.Executable()
		if err != nil {
			slog.Error("failed to get executable path", "error", err)
			os.Exit(1)
		}
		path = filepath.Join(filepath.Dir(execPath), "config.json")
	}

	slog.Info("using config file", "path", path)

	cfg := config.New(path)
	if err := cfg.Load(); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if env.Port != 0 {
		cfg.OverridePort(env.Port)
	}

	// First boot has no API key; generate one so the API is reachable.
	if cfg.APIKey() == "" {
		key, err := config.GenerateAPIKey()
		if err != nil {
			slog.Error("failed to generate API key", "error", err)
			os.Exit(1)
		}
		if err := cfg.SetAPIKey(key); err != nil {
			slog.Error("failed to save API key", "error", err)
			os.Exit(1)
		}
		slog.Info("generated API key", "config", cfg.FilePath())
	}

	// Check FFmpeg availability
	ffmpegPath := util.ResolveFFmpegPath(cmp.Or(env.FFmpeg, cfg.GetFFmpegPath()))
	ffmpegAvailable := ffmpegPath != ""
	if !ffmpegAvailable {
		slog.Warn("FFmpeg not found - running in degraded mode",
			"configured_path", cfg.GetFFmpegPath())
	} else {
		slog.Info("FFmpeg found", "path", ffmpegPath)
	}

	snap := cfg.Snapshot()
	logPath := cmp.Or(snap.EventLogPath, eventlog.DefaultLogPath(snap.WebPort))
	eventLog, err := eventlog.NewLogger(logPath)
	if err != nil {
		slog.Warn("event logging disabled", "path", logPath, "error", err)
		eventLog = nil
	}

	eng, err := engine.New(cfg, ffmpegPath, eventLog)
	if err != nil {
		slog.Error("failed to assemble engine", "error", err)
		os.Exit(1)
	}

	srv := NewServer(cfg, eng, eventLog, ffmpegAvailable)

	eng.Start()

	// Pick up external edits to the config file
	watchStop := make(chan struct{})
	if err := cfg.Watch(watchStop, eng.HandleConfigReload); err != nil {
		slog.Warn("config file watching disabled", "error", err)
	}

	// Start web server.
	httpServer := srv.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, util.ShutdownSignals()...)
	<-sigChan

	slog.Info("shutting down")

	close(watchStop)

	// Stop version checker goroutine
	srv.version.Stop()

	// Shut down HTTP server.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	eng.Close()

	if eventLog != nil {
		if err := eventLog.Close(); err != nil {
			slog.Error("failed to close event log", "error", err)
		}
	}

	slog.Info("shutdown complete")
}

// setLogLevel applies the configured level to the default logger.
func setLogLevel(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		slog.Warn("unknown log level, keeping info", "level", level)
		return
	}
	slog.SetLogLoggerLevel(lvl)
}
