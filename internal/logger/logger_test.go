package logger

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColorTextHandlerLevels(t *testing.T) {
	var buf bytes.Buffer
	h := NewColorTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	l := slog.New(h)

	l.Info("hello")
	l.Error("boom")

	out := buf.String()
	assert.Contains(t, out, "\033[32mINFO\033[0m  hello")
	assert.Contains(t, out, "\033[31mERROR\033[0m  boom")
}

func TestMultiHandlerFansOut(t *testing.T) {
	var a, b bytes.Buffer
	m := multiHandler{
		slog.NewTextHandler(&a, nil),
		slog.NewTextHandler(&b, nil),
	}
	rec := slog.NewRecord(time.Now(), slog.LevelInfo, "msg", 0)
	require.NoError(t, m.Handle(context.Background(), rec))

	assert.Contains(t, a.String(), "msg")
	assert.Contains(t, b.String(), "msg")
}

func TestSetupCreatesLogDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	closer, err := Setup(Config{Level: "info", Dir: dir})
	require.NoError(t, err)
	defer closer.Close()

	slog.Info("file sink check")

	_, err = os.Stat(filepath.Join(dir, "scriptmgr.log"))
	assert.NoError(t, err)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
	assert.Equal(t, slog.LevelInfo, parseLevel("bogus"))
}
