package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLevels(t *testing.T) {
	l, err := New("trace", "json")
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(TraceLevel))

	l, err = New("info", "console")
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zap.DebugLevel))
	assert.True(t, l.Core().Enabled(zap.InfoLevel))
}

func TestTrace(t *testing.T) {
	core, logs := observer.New(TraceLevel)
	Trace(zap.New(core), "inserting versions", zap.Uint64("start_version", 1))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, TraceLevel, logs.All()[0].Level)

	quiet, quietLogs := observer.New(zap.DebugLevel)
	Trace(zap.New(quiet), "dropped")
	assert.Equal(t, 0, quietLogs.Len())
}
