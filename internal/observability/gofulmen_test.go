package observability_test

import (
	"testing"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/fulmenhq/gofulmen/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/weatherproxy/weatherproxy/internal/observability"
)

func TestLoggers(t *testing.T) {
	originalCLI, originalServer := observability.CLILogger, observability.ServerLogger
	t.Cleanup(func() {
		observability.CLILogger = originalCLI
		observability.ServerLogger = originalServer
	})

	t.Run("CLI logger creation", func(t *testing.T) {
		observability.InitCLILogger("weatherproxy-test", true)
		require.NotNil(t, observability.CLILogger)

		observability.CLILogger.Debug("Verbose CLI message", zap.String("test", "value"))
	})

	t.Run("Structured logger creation", func(t *testing.T) {
		observability.InitServerLogger("weatherproxy-test", "debug", "weatherproxy")
		require.NotNil(t, observability.ServerLogger)

		observability.ServerLogger.Info("Structured message",
			zap.String("component", "test"),
			zap.Int("key", 1))
	})

	t.Run("Logger prefers server logger", func(t *testing.T) {
		observability.InitCLILogger("weatherproxy-test", false)
		observability.InitServerLogger("weatherproxy-test", "info")
		assert.Same(t, observability.ServerLogger, observability.Logger())

		observability.ServerLogger = nil
		assert.Same(t, observability.CLILogger, observability.Logger())

		observability.CLILogger = nil
		assert.Nil(t, observability.Logger())
	})

	t.Run("Structured profile with correlation middleware", func(t *testing.T) {
		logger, err := logging.New(&logging.LoggerConfig{
			Profile:      logging.ProfileStructured,
			DefaultLevel: "INFO",
			Service:      "correlation-test",
			Environment:  "test",
			Middleware: []logging.MiddlewareConfig{
				{Name: "correlation", Enabled: true, Order: 100, Config: make(map[string]any)},
			},
			Sinks: []logging.SinkConfig{
				{
					Type:    "console",
					Format:  "json",
					Console: &logging.ConsoleSinkConfig{Stream: "stderr"},
				},
			},
		})
		require.NoError(t, err)

		logger.Info("Message with correlation", zap.String("feature", "correlation"))
	})
}

func TestEmbeddedCrucibleVersion(t *testing.T) {
	version := crucible.GetVersion()
	assert.NotEmpty(t, version.Gofulmen)
	assert.NotEmpty(t, version.Crucible)
}
