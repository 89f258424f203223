package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/guildturn/internal/config"
)

func TestSetupTracing_DisabledIsNoop(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), config.TracingConfig{Enabled: false})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	_, span := Tracer().Start(context.Background(), "noop")
	span.End()
	assert.False(t, span.SpanContext().IsSampled())
}

func TestSetupTracing_Enabled(t *testing.T) {
	cfg := config.TracingConfig{Enabled: true, Endpoint: "127.0.0.1:4318", ServiceName: "guildturn-test", SampleRatio: 1}
	shutdown, err := SetupTracing(context.Background(), cfg)
	require.NoError(t, err)

	_, span := Tracer().Start(context.Background(), "sampled")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = shutdown(ctx)
}
