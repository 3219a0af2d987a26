package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestNew_Defaults(t *testing.T) {
	l, err := New(Config{})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
}

func TestWithContext(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	Set(zap.New(core))
	t.Cleanup(func() { Set(nil) })

	ctx := WithStream(WithRequestID(context.Background(), "req-1"), "clicks")
	assert.Equal(t, "req-1", RequestID(ctx))
	WithContext(ctx).Info("observed")
	WithContext(context.Background()).Info("plain")

	entries := logs.All()
	require.Len(t, entries, 2)
	fields := entries[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "clicks", fields["stream"])
	assert.Empty(t, entries[1].ContextMap())
}

func TestGet_LazyDefault(t *testing.T) {
	Set(nil)
	assert.NotNil(t, Get())
	assert.NoError(t, Init(Config{Level: "debug", Encoding: "console"}))
	assert.True(t, Get().Core().Enabled(zapcore.DebugLevel))
	Set(nil)
}
