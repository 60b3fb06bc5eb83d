package logging

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithPrefix_PrependsPrefix(t *testing.T) {
	var lines []string
	parent := NewLogger("", LogFuncs{
		Infof: func(format string, args ...interface{}) {
			lines = append(lines, fmt.Sprintf(format, args...))
		},
	})

	child := WithPrefix(parent, "engine: ")
	child.Infof("Started monitoring, services: %d", 2)
	child.Debugf("dropped, no debug func")

	require.Len(t, lines, 1)
	assert.Equal(t, "engine: Started monitoring, services: 2", lines[0])
}

func TestNewNopLogger_DoesNotPanic(t *testing.T) {
	l := NewNopLogger()
	l.Debugf("x")
	l.Infof("x")
	l.Warnf("x")
	l.Errorf("x")
	l.LogLevelf(LogLevelError, "x")

	assert.NotNil(t, WithPrefix(nil, "p: "))
}

func TestZapLogger_ForwardsLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewZapLoggerFrom(zap.New(core))

	l.Debugf("debug %d", 1)
	l.Infof("info %d", 2)
	l.Warnf("warn %d", 3)
	l.Errorf("error %d", 4)
	l.LogLevelf(LogLevelWarn, "leveled %s", "warn")

	entries := logs.AllUntimed()
	require.Len(t, entries, 5)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "info 2", entries[1].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
	assert.Equal(t, "leveled warn", entries[4].Message)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input     string
		expected  zapcore.Level
		shouldErr bool
	}{
		{"debug", zapcore.DebugLevel, false},
		{"INFO", zapcore.InfoLevel, false},
		{"", zapcore.InfoLevel, false},
		{"warning", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"verbose", zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, err := ParseLevel(tt.input)
			if tt.shouldErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, level)
		})
	}
}

func TestNewZapLogger_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "watcher.log")

	l, err := NewZapLogger(ZapConfig{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)
	l.Infof("hello")
	require.NoError(t, l.Sync())

	assert.FileExists(t, path)
}

func TestNewZapLogger_RejectsUnknownFormat(t *testing.T) {
	_, err := NewZapLogger(ZapConfig{Level: "info", Format: "xml"})
	assert.Error(t, err)
}
