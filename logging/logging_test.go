package logging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"debug", zapcore.DebugLevel, false},
		{"DEBUG", zapcore.DebugLevel, false},
		{"info", zapcore.InfoLevel, false},
		{"", zapcore.InfoLevel, false},
		{"WARNING", zapcore.WarnLevel, false},
		{"warn", zapcore.WarnLevel, false},
		{"Error", zapcore.ErrorLevel, false},
		{"verbose", zapcore.InfoLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew(t *testing.T) {
	for _, format := range []string{FormatJSON, FormatConsole, ""} {
		logger, err := New("warning", format)
		require.NoError(t, err, format)
		assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
		assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	}

	_, err := New("info", "xml")
	assert.Error(t, err)
	_, err = New("loud", FormatJSON)
	assert.Error(t, err)
}

func TestLevelEncoder(t *testing.T) {
	enc := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		LevelKey:    "level",
		MessageKey:  "msg",
		EncodeLevel: levelEncoder(false),
	})
	buf, err := enc.EncodeEntry(zapcore.Entry{Level: zapcore.WarnLevel, Message: "hi", Time: time.Now()}, nil)
	require.NoError(t, err)
	assert.Equal(t, "WARN\thi\n", buf.String())
	assert.NotContains(t, buf.String(), "\x1b[")

	enc = zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		LevelKey:    "level",
		MessageKey:  "msg",
		EncodeLevel: levelEncoder(true),
	})
	buf, err = enc.EncodeEntry(zapcore.Entry{Level: zapcore.WarnLevel, Message: "hi"}, nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "\x1b[")
}
