package tracing_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/adminshell/adminshell/internal/config"
	"github.com/adminshell/adminshell/internal/tracing"
)

func TestSetupDisabled(t *testing.T) {
	for _, cfg := range []config.Tracing{
		{Enabled: false, Endpoint: "localhost:4318"},
		{Enabled: true, Endpoint: ""},
	} {
		shutdown, err := tracing.Setup(context.Background(), cfg, "test-service")
		require.NoError(t, err)
		require.NoError(t, shutdown(context.Background()))
	}
}

func TestSetupEnabled(t *testing.T) {
	// a non-routable address, nothing is exported without spans
	shutdown, err := tracing.Setup(context.Background(), config.Tracing{
		Enabled:  true,
		Endpoint: "192.0.2.1:4318",
		Insecure: true,
	}, "test-service")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
