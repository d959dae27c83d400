package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriterLevels(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(&buf, false).Debug("hidden")
	assert.Empty(t, buf.String())

	NewWithWriter(&buf, true).Debug("shown", "primary_id", 7)
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, "DEBUG", line["level"])
	assert.Equal(t, "identity-reconciliation", line["service"])
	assert.Equal(t, float64(7), line["primary_id"])
}
