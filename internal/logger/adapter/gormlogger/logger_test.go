package gormlogger_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
	gormlog "gorm.io/gorm/logger"

	"github.com/adminshell/adminshell/internal/logger/adapter/gormlogger"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer

	prev := log.Logger
	log.Logger = zerolog.New(&buf)

	t.Cleanup(func() { log.Logger = prev })

	return &buf
}

func TestLogger_LevelFiltering(t *testing.T) {
	buf := captureLog(t)
	l := gormlogger.New()

	l.Info(context.Background(), "hidden %s", "info")
	assert.Empty(t, buf.String())

	l.Warn(context.Background(), "visible %s", "warn")
	assert.Contains(t, buf.String(), "visible warn")
	assert.Contains(t, buf.String(), `"component":"gorm"`)

	buf.Reset()
	l.LogMode(gormlog.Info).Info(context.Background(), "now %s", "shown")
	assert.Contains(t, buf.String(), "now shown")
}

func TestLogger_Trace(t *testing.T) {
	buf := captureLog(t)
	l := gormlogger.New()
	fc := func() (string, int64) { return "SELECT 1", 1 }

	l.Trace(context.Background(), time.Now(), fc, gorm.ErrRecordNotFound)
	assert.Empty(t, buf.String(), "record not found is not an error worth logging")

	l.Trace(context.Background(), time.Now(), fc, errors.New("boom"))
	assert.Contains(t, buf.String(), "query failed")
	assert.Contains(t, buf.String(), "SELECT 1")

	buf.Reset()
	l.Trace(context.Background(), time.Now().Add(-time.Second), fc, nil)
	assert.Contains(t, buf.String(), "slow query")

	buf.Reset()
	l.LogMode(gormlog.Silent).Trace(context.Background(), time.Now(), fc, errors.New("boom"))
	assert.Empty(t, buf.String())
}
