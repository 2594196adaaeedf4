package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel(" warn "))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("loud"))
}

func TestComponentLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(New("debug", false, &buf), "cache")

	logger.Info().Str("key", "darbhanga/weather").Msg("refreshed")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "cache", line["component"])
	assert.Equal(t, "environmental-data-aggregation", line["service"])
	assert.Equal(t, "refreshed", line["message"])
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := New("info", false, &buf)

	logger.Debug().Msg("hidden")
	assert.Zero(t, buf.Len())
}
