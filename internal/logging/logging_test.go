package logging_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cipherelay/internal/logging"
)

func TestNew_JSONLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New("warn", logging.FormatJSON, &buf)
	require.NoError(t, err)

	logger.Info().Msg("hidden")
	logger.Warn().Str("component", "test").Msg("shown")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "shown", line["message"])
	assert.Equal(t, "test", line["component"])
	assert.Contains(t, line, "time")
}

func TestNew_ConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New("debug", logging.FormatConsole, &buf)
	require.NoError(t, err)
	logger.Debug().Msg("hello")
	assert.Contains(t, buf.String(), "hello")
}

func TestNew_Rejects(t *testing.T) {
	_, err := logging.New("loud", logging.FormatJSON, &bytes.Buffer{})
	assert.Error(t, err)
	_, err = logging.New("info", "xml", &bytes.Buffer{})
	assert.Error(t, err)
}
