package logger

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
)

// Attribute keys whose values never reach the output
var redactedKeys = map[string]bool{
	"api_key":           true,
	"secret_access_key": true,
	"password":          true,
	"dsn":               true,
}

const redacted = "[redacted]"

func createHandler(config Config) (slog.Handler, error) {
	level := parseLogLevel(config.Env, config.Level)

	switch strings.ToLower(config.Env) {
	case "prod":
		return slog.NewJSONHandler(config.Output, &slog.HandlerOptions{
			Level:       level,
			AddSource:   config.AddSource,
			ReplaceAttr: replaceAttr("", config.SourcePathLength),
		}), nil

	case "dev":
		return slog.NewTextHandler(config.Output, &slog.HandlerOptions{
			Level:       level,
			AddSource:   config.AddSource,
			ReplaceAttr: replaceAttr(config.TimeFormat, config.SourcePathLength),
		}), nil

	case "test":
		return slog.NewTextHandler(config.Output, &slog.HandlerOptions{
			Level:       level,
			ReplaceAttr: replaceAttr("", 0),
		}), nil

	default:
		return nil, fmt.Errorf("unknown environment: %s (use 'dev', 'prod', or 'test')", config.Env)
	}
}

func parseLogLevel(env, explicitLevel string) slog.Level {
	switch strings.ToLower(explicitLevel) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}

	switch strings.ToLower(env) {
	case "dev":
		return slog.LevelDebug
	case "test":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// replaceAttr redacts secrets, renders durations in milliseconds, and
// optionally reformats the time and shortens source paths. An empty
// timeFormat keeps the handler's own time encoding.
func replaceAttr(timeFormat string, pathLength int) func([]string, slog.Attr) slog.Attr {
	return func(groups []string, a slog.Attr) slog.Attr {
		if redactedKeys[a.Key] {
			return slog.String(a.Key, redacted)
		}

		if a.Value.Kind() == slog.KindDuration {
			a.Value = slog.Float64Value(float64(a.Value.Duration()) / float64(time.Millisecond))
			a.Key += "_ms"
			return a
		}

		if len(groups) > 0 {
			return a
		}

		switch a.Key {
		case slog.TimeKey:
			if timeFormat == "" {
				return a
			}
			if t, ok := a.Value.Any().(time.Time); ok {
				a.Value = slog.StringValue(t.Format(timeFormat))
			}

		case slog.SourceKey:
			if pathLength == 0 {
				return a
			}
			if source, ok := a.Value.Any().(*slog.Source); ok && source != nil {
				source.File = shortenPath(source.File, pathLength)
			}
		}
		return a
	}
}

// shortenPath keeps the last segments of a source path
func shortenPath(path string, segments int) string {
	if segments <= 0 {
		return path
	}

	parts := strings.Split(filepath.ToSlash(path), "/")
	if len(parts) <= segments {
		return path
	}

	return strings.Join(parts[len(parts)-segments:], "/")
}
