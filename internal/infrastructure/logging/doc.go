// Package logging provides structured logging for the sesame server.
//
// It wraps log/slog: JSON output by default, text for development, level
// filtering, and service/version attributes on every record.
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Component loggers are derived with With:
//
//	logger := logging.New(cfg.Logging, version)
//	srv.SetLogger(logger.With("component", "sesame"))
//
// Never log pairing secrets or tokens.
package logging
