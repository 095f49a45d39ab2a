package telemetry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitOTELLocal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fba.log")
	tracer, meter, logger, shutdown, err := InitOTEL(Config{
		ServiceName: "fba-boxes",
		Exporter:    "none",
		LogFile:     path,
		LogLevel:    "info",
	})
	require.NoError(t, err)
	require.NotNil(t, tracer)
	require.NotNil(t, meter)

	_, span := tracer.Start(context.Background(), "test")
	span.End()
	logger.Infow("ready", "component", "telemetry")
	require.NoError(t, shutdown(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"ready"`)
}

func TestInitOTELRequiresEndpoint(t *testing.T) {
	_, _, _, _, err := InitOTEL(Config{Exporter: "otlp"})
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zap.DebugLevel, parseLevel("DEBUG").Level())
	assert.Equal(t, zap.InfoLevel, parseLevel("").Level())
	assert.Equal(t, zap.InfoLevel, parseLevel("chatty").Level())
}
