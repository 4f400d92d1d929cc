package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/dkn-cloud-bridge/internal/infrastructure/config"
)

// Logger is the bridge's structured logger, a thin wrapper over slog
// carrying the service name and version as default attributes.
//
// Safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New builds a Logger from the logging section of the configuration.
//
// Parameters:
//   - cfg: logging configuration (level, format, output)
//   - version: application version attached to every record
//
// Returns:
//   - *Logger: configured logger
func New(cfg config.LoggingConfig, version string) *Logger {
	handler := newHandler(cfg, destination(cfg.Output)).WithAttrs([]slog.Attr{
		slog.String("service", "dknbridge"),
		slog.String("version", version),
	})
	return &Logger{Logger: slog.New(handler)}
}

// destination maps the configured output name to a writer. Anything
// other than "stderr" goes to stdout.
func destination(output string) io.Writer {
	if strings.ToLower(output) == "stderr" {
		return os.Stderr
	}
	return os.Stdout
}

// newHandler selects text or JSON encoding. JSON is the default; text
// is the development convenience.
func newHandler(cfg config.LoggingConfig, w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.ToLower(cfg.Format) == "text" {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// parseLevel converts a config level string to a slog.Level.
// Unrecognised values fall back to info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a child logger with extra default attributes, typically
// a component name:
//
//	pollLogger := logger.With("component", "poller")
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default returns a JSON logger at info level for use before the
// configuration has been loaded.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}

// Redact masks a sensitive value (email, token) for logging.
// Empty input stays empty so absent fields remain distinguishable.
func Redact(value string) string {
	if value == "" {
		return ""
	}
	return "***"
}
