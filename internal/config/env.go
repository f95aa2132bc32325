package config

import (
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Env holds process-environment settings resolved before the config file is
// read. All variables carry the DEADAIR_ prefix (DEADAIR_CONFIG, DEADAIR_PORT,
// DEADAIR_LOG_LEVEL, DEADAIR_FFMPEG).
type Env struct {
	Config   string `envconfig:"CONFIG" default:""`         // Config file path override
	Port     int    `envconfig:"PORT" default:"0"`          // HTTP port override (0 = use config)
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`  // debug, info, warn, error
	FFmpeg   string `envconfig:"FFMPEG" default:""`         // FFmpeg binary override
}

// LoadEnv reads a .env file when present and resolves DEADAIR_* variables.
func LoadEnv() (Env, error) {
	// Missing .env files are fine; real environments set variables directly.
	_ = godotenv.Load()

	var e Env
	if err := envconfig.Process("deadair", &e); err != nil {
		return Env{}, err
	}
	return e, nil
}
