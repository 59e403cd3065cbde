package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/pktcraft/internal/config"
)

func testConfig(format string) config.LogConfig {
	return config.LogConfig{
		Level:   "info",
		Format:  format,
		Pattern: "[%level] %field %msg%n",
		Time:    time.RFC3339,
	}
}

func newTestLogger(t *testing.T, cfg config.LogConfig) (Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	l, err := newLogrus(cfg, &buf)
	require.NoError(t, err)
	return &logrusAdapter{entry: logrus.NewEntry(l)}, &buf
}

func TestGetLoggerBeforeInit(t *testing.T) {
	l := GetLogger()
	require.NotNil(t, l)
	assert.True(t, l.IsInfoEnabled())
	assert.False(t, l.IsDebugEnabled())
}

func TestInit(t *testing.T) {
	old := GetLogger()
	t.Cleanup(func() { setLogger(old) })

	cfg := testConfig("text")
	cfg.Level = "trace"
	require.NoError(t, Init(cfg))
	assert.True(t, GetLogger().IsTraceEnabled())
}

func TestInitInvalid(t *testing.T) {
	old := GetLogger()

	cfg := testConfig("text")
	cfg.Level = "loud"
	err := Init(cfg)
	assert.ErrorContains(t, err, "invalid log level")

	cfg = testConfig("xml")
	err = Init(cfg)
	assert.ErrorContains(t, err, "unsupported log format")

	cfg = testConfig("text")
	cfg.Outputs.File.Enabled = true
	err = Init(cfg)
	assert.ErrorContains(t, err, "requires 'path'")

	assert.Same(t, old, GetLogger(), "a failed Init keeps the previous logger")
}

func TestPatternFormat(t *testing.T) {
	l, buf := newTestLogger(t, testConfig("text"))

	l.WithFields(map[string]interface{}{"layer": 2, "kind": "UDP"}).Info("decoded")
	assert.Equal(t, "[info] kind=UDP,layer=2 decoded\n", buf.String())
}

func TestLevelFiltering(t *testing.T) {
	cfg := testConfig("text")
	cfg.Level = "warn"
	l, buf := newTestLogger(t, cfg)

	l.Debug("debug message")
	l.Info("info message")
	l.Warn("warn message")
	l.WithError(errors.New("boom")).Error("error message")

	out := buf.String()
	assert.NotContains(t, out, "debug message")
	assert.NotContains(t, out, "info message")
	assert.Contains(t, out, "warn message")
	assert.Contains(t, out, "error=boom")
}

func TestJSONFormat(t *testing.T) {
	l, buf := newTestLogger(t, testConfig("json"))

	l.WithField("layers", 4).Info("test message")

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "test message", got["msg"])
	assert.Equal(t, "info", got["level"])
	assert.Equal(t, float64(4), got["layers"])
}

func TestFileAppender(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pktcraft.log")
	cfg := testConfig("text")
	cfg.Outputs.File = config.FileOutputConfig{
		Enabled:  true,
		Path:     path,
		Rotation: config.RotationConfig{MaxSizeMB: 1, MaxBackups: 1},
	}
	l, buf := newTestLogger(t, cfg)

	l.Info("to both")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, buf.String(), string(data))
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("closed") }

func TestMultiWriterContinuesAfterFailure(t *testing.T) {
	var buf bytes.Buffer
	w := NewMultiWriter().Add(failingWriter{}).Add(&buf)

	n, err := w.Write([]byte("x"))
	assert.Equal(t, 1, n)
	assert.Error(t, err)
	assert.Equal(t, "x", buf.String())
}
