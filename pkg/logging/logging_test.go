package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{" error ", LevelError, false},
		{"verbose", LevelInfo, true},
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

func TestLogLevel_SlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, LevelDebug.SlogLevel())
	assert.Equal(t, slog.LevelError, LevelError.SlogLevel())
	assert.Equal(t, slog.LevelInfo, LogLevel(42).SlogLevel())
	assert.Equal(t, "UNKNOWN", LogLevel(42).String())
}

func TestInitForCLI_FiltersAndTags(t *testing.T) {
	var buf bytes.Buffer
	InitForCLI(LevelInfo, &buf)
	defer InitForCLI(LevelInfo, os.Stderr)

	Debug("Supervisor", "hidden %d", 1)
	Info("Supervisor", "backend started on %s", "http://localhost:5085")
	Error("DBReset", errors.New("connection refused"), "reset failed")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "backend started on http://localhost:5085")
	assert.Contains(t, out, "subsystem=Supervisor")
	assert.Contains(t, out, "subsystem=DBReset")
	assert.Contains(t, out, `error="connection refused"`)
}
