package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// slowQuery marks the elapsed time past which a query is logged at WARN.
const slowQuery = time.Second

// maxLoggedSQL caps the SQL text in log lines; batch inserts interpolate
// into enormous strings otherwise.
const maxLoggedSQL = 200

// queryLogger adapts GORM's logger.Interface onto slog. Failed and slow
// queries carry the clipped SQL at ERROR and WARN; routine queries log at
// DEBUG so they stay out of production output.
type queryLogger struct {
	log   *slog.Logger
	level logger.LogLevel
}

func newQueryLogger(log *slog.Logger, level string) *queryLogger {
	return &queryLogger{log: log, level: queryLogLevel(level)}
}

// queryLogLevel maps the config's level names onto GORM's. Unknown names
// fall back to warn.
func queryLogLevel(name string) logger.LogLevel {
	switch name {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "warn":
		return logger.Warn
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

func (l *queryLogger) LogMode(level logger.LogLevel) logger.Interface {
	return &queryLogger{log: l.log, level: level}
}

func (l *queryLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Info {
		l.log.InfoContext(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *queryLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Warn {
		l.log.WarnContext(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *queryLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Error {
		l.log.ErrorContext(ctx, fmt.Sprintf(msg, args...))
	}
}

// Trace logs one line per finished query. The slog level is chosen before
// fc runs, because fc renders the full SQL with interpolated values and is
// too expensive to call for lines that will be discarded anyway.
func (l *queryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	// A missing row is an answer, not a failure.
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound)

	var level slog.Level
	switch {
	case failed && l.level >= logger.Error:
		level = slog.LevelError
	case elapsed >= slowQuery && l.level >= logger.Warn:
		level = slog.LevelWarn
	case l.level >= logger.Info:
		level = slog.LevelDebug
	default:
		return
	}
	if !l.log.Enabled(ctx, level) {
		return
	}

	sql, rows := fc()
	attrs := []slog.Attr{
		slog.String("sql", clip(sql)),
		slog.Int64("rows", rows),
		slog.Duration("elapsed", elapsed),
	}

	switch level {
	case slog.LevelError:
		attrs = append(attrs, slog.String("error", err.Error()))
		l.log.LogAttrs(ctx, level, "query failed", attrs...)
	case slog.LevelWarn:
		l.log.LogAttrs(ctx, level, "slow query", attrs...)
	default:
		l.log.LogAttrs(ctx, level, "query", attrs...)
	}
}

func clip(sql string) string {
	if len(sql) <= maxLoggedSQL {
		return sql
	}
	return sql[:maxLoggedSQL] + "..."
}
