package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leadbridge/backend/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHonorsJSONEncoding(t *testing.T) {
	out := filepath.Join(t.TempDir(), "app.log")
	log, err := New(config.LoggerConfig{
		Level:            "info",
		Encoding:         "json",
		OutputPaths:      []string{out},
		ErrorOutputPaths: []string{out},
	})
	require.NoError(t, err)

	log.Infow("server_listening", "addr", ":8090")
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	line := strings.TrimSpace(string(data))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(line), &entry), "expected a JSON log line, got %q", line)
	assert.Equal(t, "server_listening", entry["message"])
	assert.Equal(t, ":8090", entry["addr"])
}

func TestNewFallsBackToConsoleAndInfoLevel(t *testing.T) {
	log, err := New(config.LoggerConfig{
		Level:            "not-a-level",
		Encoding:         "yaml",
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	})
	require.NoError(t, err)
	require.NotNil(t, log)
}
