package logging

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/ashare-data/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"":        slog.LevelInfo,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNewWritesConsoleAndFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "log")
	now := time.Date(2024, 6, 10, 18, 0, 0, 0, time.UTC)

	var console bytes.Buffer
	logger, err := NewWithWriter(config.LogConfig{Dir: dir, Level: "info"}, func() time.Time { return now }, &console)
	require.NoError(t, err)
	defer logger.Close()

	assert.Equal(t, filepath.Join(dir, "20240610.log"), logger.Path())

	logger.Debug("hidden")
	logger.Info("download started", "table", "asharedailyprices")
	logger.Error("store failed", "table", "asharedailyprices")
	logger.With("run_id", "abc").Error("second failure")

	assert.Equal(t, int64(2), logger.Errors.Count())
	assert.NotContains(t, console.String(), "hidden")
	assert.Contains(t, console.String(), "table=asharedailyprices")
	assert.Contains(t, console.String(), "run_id=abc")

	data, err := os.ReadFile(logger.Path())
	require.NoError(t, err)
	assert.Equal(t, console.String(), string(data))

	logger.Errors.Reset()
	assert.Zero(t, logger.Errors.Count())
}

func TestLoggerRotatesDaily(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 3, 1, 23, 59, 0, 0, time.UTC)
	logger, err := NewWithWriter(config.LogConfig{Dir: dir}, func() time.Time { return now }, io.Discard)
	require.NoError(t, err)
	defer logger.Close()

	logger.Info("before midnight")
	now = now.Add(2 * time.Minute)
	logger.Info("after midnight")

	assert.Equal(t, filepath.Join(dir, "20240302.log"), logger.Path())
	first, err := os.ReadFile(filepath.Join(dir, "20240301.log"))
	require.NoError(t, err)
	second, err := os.ReadFile(filepath.Join(dir, "20240302.log"))
	require.NoError(t, err)
	assert.Contains(t, string(first), "before midnight")
	assert.NotContains(t, string(first), "after midnight")
	assert.Contains(t, string(second), "after midnight")
}

func TestClearOldKeepsActiveLog(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	logger, err := NewWithWriter(config.LogConfig{Dir: dir}, func() time.Time { return start }, io.Discard)
	require.NoError(t, err)
	defer logger.Close()
	logger.Info("started")

	// a daemon still on its first file keepDays later
	removed, err := ClearOld(dir, 7, start.AddDate(0, 0, 7), logger.Path())
	require.NoError(t, err)
	assert.Empty(t, removed)

	logger.Error("scheduled run failed")
	data, err := os.ReadFile(filepath.Join(dir, "20240301.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "scheduled run failed")
}

func TestErrorCounterCountsBelowHandlerLevel(t *testing.T) {
	var buf bytes.Buffer
	// handler filters everything below a level above ERROR
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelError + 4})
	counter := NewErrorCounter(h)
	slog.New(counter).Error("counted but not written")

	assert.Equal(t, int64(1), counter.Count())
	assert.Empty(t, buf.String())
}

func TestClearOld(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		"20240601.log", // 9 days old
		"20240603.log", // 7 days old
		"20240604.log", // 6 days old
		"20240610.log", // today
		"19800101.log", // before the first trade date
		"notes.log",
		"20240601.txt",
	}
	for _, f := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "20240501.log"), 0o755))

	now := time.Date(2024, 6, 10, 9, 30, 0, 0, time.UTC)
	removed, err := ClearOld(dir, 7, now)
	require.NoError(t, err)
	sort.Strings(removed)
	assert.Equal(t, []string{"20240601.log", "20240603.log"}, removed)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var left []string
	for _, e := range entries {
		left = append(left, e.Name())
	}
	assert.ElementsMatch(t, []string{"20240604.log", "20240610.log", "19800101.log", "notes.log", "20240601.txt", "20240501.log"}, left)
}

func TestClearOldMissingDir(t *testing.T) {
	_, err := ClearOld(filepath.Join(t.TempDir(), "absent"), 7, time.Now())
	assert.Error(t, err)
}
