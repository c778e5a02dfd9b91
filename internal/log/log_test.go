package log

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel(" debug "))
	assert.Equal(t, LevelError, ParseLevel("ERROR"))
	assert.Equal(t, LevelInfo, ParseLevel("loud"))
}

func TestSetLoggerCapturesFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := SetLogger(zap.New(core))
	defer restore()

	Info("data loaded", "events", 4)
	Error("refresh failed", errors.New("upstream down"), "feed", "events.json")

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)
	assert.Equal(t, "data loaded", entries[0].Message)
	assert.Equal(t, int64(4), entries[0].ContextMap()["events"])
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "upstream down", entries[1].ContextMap()["err"])
	assert.Equal(t, "events.json", entries[1].ContextMap()["feed"])

	restore()
	Info("after restore")
	assert.Equal(t, 2, logs.Len())
}
