package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Install builds the JSON logger for a service and makes it the slog default.
func Install(service, level string) *slog.Logger {
	logger := NewJSONLogger(os.Stdout, service, level)
	slog.SetDefault(logger)
	return logger
}

func NewJSONLogger(w io.Writer, service, level string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       parseLevel(level),
		ReplaceAttr: redactSecrets,
	})
	return slog.New(handler).With("service", service)
}

var secretKeys = map[string]bool{
	"authorization":  true,
	"password":       true,
	"secret":         true,
	"token":          true,
	"svix-signature": true,
}

func redactSecrets(_ []string, attr slog.Attr) slog.Attr {
	if secretKeys[strings.ToLower(attr.Key)] {
		return slog.String(attr.Key, "[redacted]")
	}
	return attr
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
