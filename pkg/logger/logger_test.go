package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLevel(t *testing.T) {
	defer SetLevel("info")

	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"release": zerolog.InfoLevel,
		"":        zerolog.InfoLevel,
		"warn":    zerolog.WarnLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range cases {
		SetLevel(in)
		assert.Equal(t, want, zerolog.GlobalLevel(), "level %q", in)
	}
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	saved := Log
	defer func() { Log = saved }()

	Log = newLogger(&buf)
	l := Component("optimizer")
	l.Info().Str("sku", "A-1").Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "optimizer", entry["component"])
	assert.Equal(t, "A-1", entry["sku"])
	assert.Equal(t, "hello", entry["message"])
	assert.Contains(t, entry, "caller")
}
