package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInitLoggerRejectsUnknownLevel(t *testing.T) {
	err := InitLogger(LoggerOptions{Env: "development", Service: "test", Level: "loud"})
	assert.Error(t, err)
}

func TestInitLoggerAppliesLevel(t *testing.T) {
	require.NoError(t, InitLogger(LoggerOptions{Env: "production", Service: "test", Level: "warn"}))
	defer SyncLogger()

	assert.False(t, GetLogger().Core().Enabled(-1))
	assert.True(t, GetLogger().Core().Enabled(1))
}

func TestSamplerFor(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), samplerFor("development", 0.5).Description())
	assert.Contains(t, samplerFor("production", 0.5).Description(), "TraceIDRatioBased{0.5}")
	assert.Contains(t, samplerFor("production", 0).Description(), "TraceIDRatioBased{0.2}")
}
