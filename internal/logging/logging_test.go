package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(Config{Level: "warn"}, &buf)

	logger.Info().Msg("hidden")
	logger.Warn().Str("source", "yahoo_chart").Msg("source failed")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "应只输出一行 JSON")
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "yahoo_chart", entry["source"])
	assert.Equal(t, "streakwatch", entry["service"])
}

func TestNewLoggerConsole(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(Config{Format: "console"}, &buf)

	logger.Info().Msg("hello")
	assert.Contains(t, buf.String(), "hello")
	assert.NotContains(t, buf.String(), `"message"`)
}

func TestUnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(Config{Level: "loud"}, &buf)

	logger.Debug().Msg("debug")
	assert.Empty(t, buf.String())
	logger.Info().Msg("info")
	assert.NotEmpty(t, buf.String())
}
