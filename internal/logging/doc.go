// Package logging provides structured logging for espcore.
//
// Logging is silent by default so that crash reports printed to stdout
// stay clean. Set ESPCORE_LOG_LEVEL=debug (or info/warn/error) to see
// diagnostic output on stderr, including hex dumps of raw note payloads.
package logging
