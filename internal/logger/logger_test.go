package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, parseLevel(""))
	assert.Equal(t, zerolog.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("chatty"))
}

func TestProductionLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, "production", "info")
	l.Info().Str("component", "authclient").Msg("refresh started")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "refresh started", line["message"])
	assert.Equal(t, "authclient", line["component"])
	assert.Equal(t, "info", line["level"])
}

func TestDevelopmentLoggerIsConsole(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, "", "info")
	l.Info().Msg("hello")

	assert.Contains(t, buf.String(), "hello")
	assert.False(t, json.Valid(buf.Bytes()))
}

func TestLevelAppliesToProcessLoggerOnly(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, "production", "warn")
	l.Info().Msg("dropped")
	assert.Empty(t, buf.String())

	var other bytes.Buffer
	injected := zerolog.New(&other).Level(zerolog.DebugLevel)
	injected.Debug().Msg("kept")
	assert.Contains(t, other.String(), "kept")
}
