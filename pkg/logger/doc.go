// Package logger provides a structured logging interface for heliodata.
//
// It wraps zerolog with a small API:
//   - Levels: Debug, Info, Warn, Error
//   - Structured fields via WithField, WithFields, WithError and the
//     *WithFields variants
//   - Pretty console output on stderr, plus JSON lines to a file when
//     LoggingConfig.File is set
//
// Usage:
//
//	log, err := logger.New(&cfg.Logging)
//	log.WithField("mission", "sdo-aia").Info("download started")
//	log.ErrorWithFields("fetch failed", map[string]interface{}{
//	    "key":   "sdo-aia/0171@2020-01-01T00:00:00",
//	    "error": err,
//	})
//
// Packages below cmd/ receive a Logger as a dependency; TestLogger
// captures entries for assertions.
package logger
