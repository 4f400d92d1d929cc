// Package logging provides structured logging for the DKN cloud bridge.
//
// It is a thin layer over log/slog: one configured root logger, child
// loggers per component via With, and a service/version pair stamped on
// every record.
//
// # Output
//
// JSON is the default and what production runs; text output exists for
// reading logs during development. Level, format, and destination come
// from the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	pollLogger := logger.With("component", "poller")
//	pollLogger.Info("snapshot fetched", "devices", n)
//
// Before configuration is available, Default() gives a sane JSON logger
// for early startup errors.
//
// # Credentials
//
// Cloud credentials must never reach a log line in full. Use Redact for
// emails and tokens; the cloud client applies it to request parameters
// automatically.
package logging
