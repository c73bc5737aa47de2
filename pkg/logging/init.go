package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
)

const (
	JSON = "json"
	Text = "text"
	Tint = "tint"

	redacted = "[redacted]"
)

var sensitiveKeys = []string{"secret", "password", "token"}

// Initialize installs the default slog logger writing to stdout.
func Initialize(loggingType string, logLevelName string) error {
	logHandler, err := NewHandler(os.Stdout, loggingType, logLevelName)
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(logHandler))
	slog.Info("logging initialized", "logType", loggingType, "logLevel", logLevelName)
	return nil
}

// NewHandler builds a json, text or tint handler that redacts secrets.
func NewHandler(w io.Writer, loggingType string, logLevelName string) (slog.Handler, error) {
	var logLevel slog.Level
	err := logLevel.UnmarshalText([]byte(logLevelName))
	if err != nil {
		return nil, fmt.Errorf("could not parse log level: %v", err)
	}

	logHandlerOptions := slog.HandlerOptions{
		AddSource:   true,
		Level:       logLevel,
		ReplaceAttr: redact,
	}

	switch loggingType {
	case JSON:
		return slog.NewJSONHandler(w, &logHandlerOptions), nil
	case Text:
		return slog.NewTextHandler(w, &logHandlerOptions), nil
	case Tint:
		return tint.NewHandler(w, &tint.Options{
			AddSource:   logHandlerOptions.AddSource,
			Level:       logHandlerOptions.Level,
			ReplaceAttr: redact,
		}), nil
	default:
		return nil, fmt.Errorf("unknown logging type: %s", loggingType)
	}
}

// redact hides values whose key names a credential ("secret", "erpPassword").
// Keys that merely mention one, such as "secretEnv", are kept.
func redact(_ []string, a slog.Attr) slog.Attr {
	key := strings.ToLower(a.Key)
	for _, s := range sensitiveKeys {
		if strings.HasSuffix(key, s) {
			return slog.String(a.Key, redacted)
		}
	}
	return a
}
