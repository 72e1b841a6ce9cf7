package testutil

import (
	"log/slog"
)

// DiscardLogger returns a slog.Logger that drops everything, for tests
// that take a *slog.Logger directly. Components built on internal/log
// should use log.NewNop instead.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
