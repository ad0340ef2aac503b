package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_DisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{ServiceName: "pdf-gateway-api"})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSampler(t *testing.T) {
	assert.Contains(t, sampler(0).Description(), "AlwaysOnSampler")
	assert.Contains(t, sampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}
