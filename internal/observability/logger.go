package observability

import (
	"fmt"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"
)

var (
	// CLILogger is used by one-shot commands (SIMPLE profile).
	CLILogger *logging.Logger

	// ServerLogger is used by the proxy server (STRUCTURED profile).
	ServerLogger *logging.Logger

	// Environment is stamped on every structured log line.
	Environment = "production"
)

// InitCLILogger initializes the CLI logger; verbose enables DEBUG.
func InitCLILogger(serviceName string, verbose bool) {
	logger, err := logging.NewCLI(serviceName)
	if err != nil {
		fatal("Failed to initialize CLI logger", err)
	}
	if verbose {
		logger.SetLevel(logging.DEBUG)
	}
	CLILogger = logger
}

// InitServerLogger initializes the JSON logger used while serving. The
// optional namespace is added as a static field so log lines line up with
// the telemetry namespace.
func InitServerLogger(serviceName string, logLevel string, namespace ...string) {
	ns := ""
	if len(namespace) > 0 {
		ns = namespace[0]
	}

	logger, err := logging.New(ServerLoggerConfig(serviceName, logLevel, ns))
	if err != nil {
		fatal("Failed to initialize server logger", err)
	}
	ServerLogger = logger
}

// ServerLoggerConfig builds the STRUCTURED profile config: JSON to stderr
// with the correlation middleware, which picks up request IDs.
func ServerLoggerConfig(serviceName, logLevel, namespace string) *logging.LoggerConfig {
	staticFields := make(map[string]any)
	if namespace != "" {
		staticFields["namespace"] = namespace
	}

	return &logging.LoggerConfig{
		Profile:      logging.ProfileStructured,
		DefaultLevel: NormalizeLevel(logLevel),
		Service:      serviceName,
		Environment:  Environment,
		StaticFields: staticFields,
		Middleware: []logging.MiddlewareConfig{
			{Name: "correlation", Enabled: true, Order: 100, Config: make(map[string]any)},
		},
		Sinks: []logging.SinkConfig{
			{
				Type:    "console",
				Format:  "json",
				Console: &logging.ConsoleSinkConfig{Stream: "stderr", Colorize: false},
			},
		},
		EnableCaller:     true,
		EnableStacktrace: true,
	}
}

// Logger returns the server logger when the HTTP service is running and the
// CLI logger otherwise. It returns nil before either is initialized.
func Logger() *logging.Logger {
	if ServerLogger != nil {
		return ServerLogger
	}
	return CLILogger
}

// NormalizeLevel maps a config level (any case) to a gofulmen severity name.
// Unknown levels become INFO.
func NormalizeLevel(level string) string {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return "TRACE"
	case "debug":
		return "DEBUG"
	case "warn", "warning":
		return "WARN"
	case "error":
		return "ERROR"
	default:
		return "INFO"
	}
}

// fatal reports a logger initialization failure. No logger exists yet, so it
// writes to stderr directly.
func fatal(msg string, err error) {
	code := int(foundry.ExitConfigInvalid)
	fmt.Fprintf(os.Stderr, "FATAL: %s: %v\n", msg, err)
	if info, ok := foundry.GetExitCodeInfo(foundry.ExitConfigInvalid); ok {
		code = info.Code
		fmt.Fprintf(os.Stderr, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)
	}
	os.Exit(code)
}
