// Package observability builds recast's slog loggers: leveled JSON or text
// output, trace support below debug, trimmed source positions, and
// credential redaction that also serves the in-memory log buffer.
package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/m-mizutani/masq"

	"github.com/jmylchreest/recast/internal/config"
)

// LevelTrace sits below slog.LevelDebug for very chatty output such as
// per-chunk stream copies and individual ECP keypresses.
const LevelTrace = slog.Level(-8)

type ctxKey string

const (
	requestIDKey ctxKey = "request_id"
	loggerKey    ctxKey = "logger"
)

// levelNames maps configured level strings to slog levels.
var levelNames = map[string]slog.Level{
	"trace": LevelTrace,
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// NewLoggerWithWriter builds a logger writing to w. Unknown level names
// fall back to info.
func NewLoggerWithWriter(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	lvl, ok := levelNames[cfg.Level]
	if !ok {
		lvl = slog.LevelInfo
	}
	opts := slog.HandlerOptions{
		Level:       lvl,
		AddSource:   cfg.AddSource,
		ReplaceAttr: rewriteAttr(cfg),
	}

	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, &opts))
	}
	return slog.New(slog.NewJSONHandler(w, &opts))
}

// rewriteAttr returns the handler's ReplaceAttr hook: custom time format,
// a TRACE label for the level below debug, trimmed source positions, and
// redaction for everything else.
func rewriteAttr(cfg config.LoggingConfig) func([]string, slog.Attr) slog.Attr {
	return func(groups []string, a slog.Attr) slog.Attr {
		if len(groups) == 0 {
			switch a.Key {
			case slog.TimeKey:
				if cfg.TimeFormat != "" {
					if t, ok := a.Value.Any().(time.Time); ok {
						return slog.String(slog.TimeKey, t.Format(cfg.TimeFormat))
					}
				}
				return a
			case slog.LevelKey:
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					return slog.String(slog.LevelKey, "TRACE")
				}
				return a
			case slog.SourceKey:
				if src, ok := a.Value.Any().(*slog.Source); ok {
					return slog.String("logpos", fmt.Sprintf("%s:%d", trimSourcePath(src.File), src.Line))
				}
				return a
			}
		}
		return RedactAttr(groups, a)
	}
}

// trimSourcePath shortens an absolute source path to its module-relative
// form so log positions read the same regardless of the build machine.
func trimSourcePath(file string) string {
	parts := strings.Split(file, "/")
	for i := len(parts) - 1; i >= 0; i-- {
		switch parts[i] {
		case "internal", "pkg", "cmd":
			return strings.Join(parts[i:], "/")
		}
	}
	if len(parts) > 2 {
		parts = parts[len(parts)-2:]
	}
	return strings.Join(parts, "/")
}

const redactedValue = "[REDACTED]"

// sensitiveKeys are attribute names whose string values are never logged,
// matched case-insensitively.
var sensitiveKeys = map[string]bool{
	"password":      true,
	"secret":        true,
	"token":         true,
	"apikey":        true,
	"api_key":       true,
	"credential":    true,
	"authorization": true,
}

// sensitiveParams scrubs credential-bearing query parameters out of
// URL-shaped values. Encoder source URLs in particular may embed passwords
// or tokens.
var sensitiveParams = regexp.MustCompile(`(?i)([?&](?:password|secret|token|apikey|api_key|credential|authorization)=)[^&\s"']*`)

// maskAttr redacts struct fields tagged `masq:"secret"` when whole values
// are logged via slog.Any.
var maskAttr = masq.New(masq.WithTag("secret"))

// RedactAttr masks credentials in a single attribute. Anything that
// captures log records outside the configured handler (the in-memory log
// buffer in particular) must run attributes through this before storing
// them.
func RedactAttr(groups []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindString {
		if sensitiveKeys[strings.ToLower(a.Key)] {
			return slog.String(a.Key, redactedValue)
		}
		if s := a.Value.String(); strings.ContainsAny(s, "?&") {
			if scrubbed := sensitiveParams.ReplaceAllString(s, "${1}"+redactedValue); scrubbed != s {
				return slog.String(a.Key, scrubbed)
			}
		}
	}
	return maskAttr(groups, a)
}

// WithRequestID derives a logger whose lines all carry the request ID.
func WithRequestID(logger *slog.Logger, requestID string) *slog.Logger {
	return logger.With("request_id", requestID)
}

// WithComponent derives a logger scoped to one subsystem. The log buffer
// groups its statistics by this attribute.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With("component", component)
}

// ContextWithLogger stashes a request-scoped logger in the context.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// LoggerFromContext returns the logger stashed by ContextWithLogger, or
// the default logger when the context carries none.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// ContextWithRequestID stashes a request ID in the context.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request ID stashed in the context, or
// "" when there is none.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// TimedOperation logs the start of an operation and returns a func that
// logs its completion with the elapsed time. Wrap long steps with it:
//
//	done := observability.TimedOperation(ctx, logger, "migrate catalog")
//	// ... the slow part ...
//	done()
func TimedOperation(ctx context.Context, logger *slog.Logger, operation string) func() {
	logger.InfoContext(ctx, "operation started", "operation", operation)
	start := time.Now()
	return func() {
		logger.InfoContext(ctx, "operation completed", "operation", operation, "duration", time.Since(start))
	}
}
