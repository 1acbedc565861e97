// Package logger configures the global zerolog logger.
package logger

import (
	"os"
	"strings"
	"time"

	"github.com/ieraasyl/PingService/pkg/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup applies the level and output format to the global logger. An
// unknown level falls back to info.
//
// Format "console" writes human-readable lines to stderr; anything else
// writes one JSON object per line.
func Setup(cfg config.LogConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
		return
	}
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}
