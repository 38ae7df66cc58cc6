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
	tests := []struct {
		name    string
		input   string
		env     string
		want    zerolog.Level
		wantErr bool
	}{
		{name: "default", want: zerolog.InfoLevel},
		{name: "debug", input: "debug", want: zerolog.DebugLevel},
		{name: "upper case", input: "WARN", want: zerolog.WarnLevel},
		{name: "from env", env: "error", want: zerolog.ErrorLevel},
		{name: "flag wins over env", input: "trace", env: "error", want: zerolog.TraceLevel},
		{name: "invalid", input: "loud", want: zerolog.InfoLevel, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LOG_LEVEL", tt.env)

			got, err := ParseLevel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, Options{Level: "info", Format: FormatJSON})
	require.NoError(t, err)

	log.Debug().Msg("hidden")
	log.Info().Str("bucket", "media").Msg("visible")

	var event map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &event))
	assert.Equal(t, "visible", event["message"])
	assert.Equal(t, "media", event["bucket"])
	assert.Equal(t, "info", event["level"])
	assert.Contains(t, event, "time")
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, Options{Format: FormatConsole})
	require.NoError(t, err)

	log.Info().Msg("hello")
	assert.Contains(t, buf.String(), "hello")
}

func TestNew_InvalidOptions(t *testing.T) {
	_, err := New(&bytes.Buffer{}, Options{Format: "xml"})
	assert.ErrorContains(t, err, "xml")

	_, err = New(&bytes.Buffer{}, Options{Level: "loud"})
	assert.ErrorContains(t, err, "loud")
}
