// Package logx holds the slog conventions shared by the backplane packages.
package logx

import (
	"context"
	"log/slog"
)

// LevelCritical marks capacity and configuration errors: conditions that
// indicate the module code and table layout disagree at build time.
const LevelCritical = slog.LevelError + 4

// Named returns log tagged with a component attribute. nil means slog.Default().
func Named(log *slog.Logger, component string) *slog.Logger {
	if log == nil {
		log = slog.Default()
	}
	return log.With(slog.String("component", component))
}

// Critical logs at LevelCritical.
func Critical(log *slog.Logger, msg string, args ...any) {
	log.Log(context.Background(), LevelCritical, msg, args...)
}

// ReplaceLevel renders LevelCritical as "CRITICAL" in text/json handlers.
func ReplaceLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if lvl, ok := a.Value.Any().(slog.Level); ok && lvl >= LevelCritical {
		a.Value = slog.StringValue("CRITICAL")
	}
	return a
}
