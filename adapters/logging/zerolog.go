package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Zerolog adapts a zerolog.Logger to the field-map logger interface.
type Zerolog struct {
	log zerolog.Logger
}

// Options configure the logger.
type Options struct {
	Level  string
	Pretty bool
	Output io.Writer
}

// New builds a logger writing JSON lines, or console output when Pretty is set.
func New(opt Options) *Zerolog {
	out := opt.Output
	if out == nil {
		out = os.Stdout
	}
	if opt.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	l := zerolog.New(out).Level(ParseLevel(opt.Level)).With().Timestamp().Logger()
	return &Zerolog{log: l}
}

// ParseLevel maps debug|info|warn|error to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Zero returns the underlying zerolog logger.
func (z *Zerolog) Zero() zerolog.Logger {
	return z.log
}

func (z *Zerolog) Debug(msg string, fields map[string]any) {
	z.log.Debug().Fields(fields).Msg(msg)
}

func (z *Zerolog) Info(msg string, fields map[string]any) {
	z.log.Info().Fields(fields).Msg(msg)
}

func (z *Zerolog) Warn(msg string, fields map[string]any) {
	z.log.Warn().Fields(fields).Msg(msg)
}

func (z *Zerolog) Error(msg string, fields map[string]any) {
	z.log.Error().Fields(fields).Msg(msg)
}
