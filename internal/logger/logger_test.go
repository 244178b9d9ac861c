package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerCarriesContextFields(t *testing.T) {
	var buf bytes.Buffer
	logg := New(Options{ServiceName: "arcano-test", Output: &buf})

	ctx := logg.WithRequestID(context.Background(), "req-1")
	ctx = logg.WithUserID(ctx, "user-9")
	logg.Info(ctx, "hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "arcano-test", entry["service"])
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "user-9", entry["user_id"])
	assert.Equal(t, "hello", entry["message"])
}

func TestLoggerErrorIncludesCause(t *testing.T) {
	var buf bytes.Buffer
	logg := New(Options{ServiceName: "arcano-test", Output: &buf})

	logg.Error(context.Background(), "boom", errors.New("gateway down"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "gateway down", entry["error"])
	assert.Equal(t, "error", entry["level"])
	assert.NotEmpty(t, entry["stack"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel(" DEBUG "))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("nonsense"))
}

func TestWithConsultationTagsLaterLines(t *testing.T) {
	var buf bytes.Buffer
	logg := New(Options{ServiceName: "arcano-test", Output: &buf, Level: zerolog.DebugLevel})

	ctx := logg.WithConsultation(logg.WithRequestID(context.Background(), "req-2"), "tarot", "c-7")
	logg.Debug(ctx, "generating")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "req-2", entry["request_id"])
	assert.Equal(t, "tarot", entry["kind"])
	assert.Equal(t, "c-7", entry["consultation_id"])
	assert.Equal(t, "debug", entry["level"])
}

func TestLevelFiltersAndNop(t *testing.T) {
	var buf bytes.Buffer
	logg := New(Options{ServiceName: "arcano-test", Output: &buf, Level: zerolog.WarnLevel})
	logg.Info(context.Background(), "hidden")
	assert.Zero(t, buf.Len())

	nop := Nop()
	ctx := nop.WithFields(context.Background(), map[string]any{"a": 1})
	nop.Error(ctx, "discarded", errors.New("x"))
}
