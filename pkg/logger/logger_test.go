package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_JSONRespectsLevel(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer

	l, err := New(&buf, "warn", "json")
	req.NoError(err)

	l.Info("dropped %d", 1)
	req.Zero(buf.Len())

	l.With("presence").Warn("kept %s", "line")

	var line map[string]any
	req.NoError(json.Unmarshal(buf.Bytes(), &line))
	req.Equal("warn", line["level"])
	req.Equal("kept line", line["message"])
	req.Equal("presence", line["component"])
}

func TestNew_RejectsUnknownLevel(t *testing.T) {
	_, err := New(&bytes.Buffer{}, "loud", "json")
	require.Error(t, err)
}
