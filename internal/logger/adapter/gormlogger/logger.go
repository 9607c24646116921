// Package gormlogger routes gorm log output through the global zerolog logger.
package gormlogger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DefaultSlowThreshold marks queries slower than this as warnings.
const DefaultSlowThreshold = 200 * time.Millisecond

// Logger implements gorm's logger.Interface on top of zerolog.
type Logger struct {
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

var _ gormlogger.Interface = Logger{}

// New creates a gorm logger writing at warn level.
func New() Logger {
	return Logger{
		level:         gormlogger.Warn,
		slowThreshold: DefaultSlowThreshold,
	}
}

// LogMode returns a copy of the logger with the given level.
func (l Logger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	l.level = level

	return l
}

// Info logs at info level.
func (l Logger) Info(_ context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Info {
		l.event(zerolog.InfoLevel).Msg(fmt.Sprintf(msg, data...))
	}
}

// Warn logs at warn level.
func (l Logger) Warn(_ context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Warn {
		l.event(zerolog.WarnLevel).Msg(fmt.Sprintf(msg, data...))
	}
}

// Error logs at error level.
func (l Logger) Error(_ context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Error {
		l.event(zerolog.ErrorLevel).Msg(fmt.Sprintf(msg, data...))
	}
}

// Trace logs a finished statement. Not-found errors are not reported.
func (l Logger) Trace(_ context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)

	switch {
	case err != nil && l.level >= gormlogger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		l.event(zerolog.ErrorLevel).Err(err).Dur("elapsed", elapsed).Int64("rows", rows).Str("sql", sql).
			Msg("query failed")
	case l.slowThreshold != 0 && elapsed > l.slowThreshold && l.level >= gormlogger.Warn:
		sql, rows := fc()
		l.event(zerolog.WarnLevel).Dur("elapsed", elapsed).Int64("rows", rows).Str("sql", sql).
			Msg("slow query")
	case l.level >= gormlogger.Info:
		sql, rows := fc()
		l.event(zerolog.DebugLevel).Dur("elapsed", elapsed).Int64("rows", rows).Str("sql", sql).Msg("query")
	}
}

func (l Logger) event(level zerolog.Level) *zerolog.Event {
	return log.WithLevel(level).Str("component", "gorm")
}
