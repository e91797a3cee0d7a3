package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestInit(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{name: "debug console", opts: Options{Level: "debug"}},
		{name: "info json", opts: Options{Level: "info", Format: "json"}},
		{name: "upper case level", opts: Options{Level: "WARN"}},
		{name: "invalid level defaults to info", opts: Options{Level: "invalid"}},
		{name: "unknown format", opts: Options{Format: "logfmt"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Log = zap.NewNop()

			err := Init(tt.opts)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, Log)
			_ = Sync()
		})
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("Warn"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel(""))
}

func TestInit_FileIsJSONWithService(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "app.log")

	require.NoError(t, Init(Options{Level: "info", File: logFile, Service: "timetable-syncer"}))
	Log.Info("sync pass finished", zap.Int("accounts", 2))
	_ = Sync()

	raw, err := os.ReadFile(logFile)
	require.NoError(t, err)
	line := strings.TrimSpace(strings.Split(string(raw), "\n")[0])

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "sync pass finished", entry["msg"])
	assert.Equal(t, "timetable-syncer", entry["service"])
	assert.EqualValues(t, 2, entry["accounts"])
}

func TestSync_NilLogger(t *testing.T) {
	Log = nil
	assert.NoError(t, Sync())
	Log = zap.NewNop()
}
