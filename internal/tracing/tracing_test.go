package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("recipe-tool")
	assert.Equal(t, "recipe-tool", cfg.ServiceName)
	assert.Equal(t, ExporterOTLP, cfg.Exporter)
	assert.Equal(t, 1.0, cfg.SampleRatio)
	assert.NotEmpty(t, cfg.OTLPEndpoint)
}

func TestSetupStdoutExporter(t *testing.T) {
	cfg := DefaultConfig("recipe-tool-test")
	cfg.Exporter = ExporterStdout

	shutdown, err := Setup(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupRejectsUnknownExporter(t *testing.T) {
	cfg := DefaultConfig("recipe-tool-test")
	cfg.Exporter = "carrier-pigeon"

	_, err := Setup(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carrier-pigeon")
}

func TestShutdownToleratesNil(t *testing.T) {
	assert.NoError(t, Shutdown(nil, nil))
}
