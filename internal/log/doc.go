// Package log builds the slog loggers used by webaudit.
//
// Scans routinely handle session cookies, Authorization headers and form
// credentials taken from cookie jars. The RedactingHandler masks those
// values before they reach any output, so verbose and debug logs can be
// shared in bug reports.
//
// # Usage
//
//	logger := log.New(os.Stderr, log.LevelFor(verbose, debug), false)
//	logger.Debug("fetched", "url", u, "set-cookie", resp.Header.Get("Set-Cookie"))
//	// set-cookie=***REDACTED***
//
// Attribute values of type http.Header and []*http.Cookie are redacted
// field by field: header names stay visible, sensitive header values and
// every cookie value are masked.
package log
