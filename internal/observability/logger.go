package observability

import (
	"fmt"
	"strings"

	"github.com/fulmenhq/gofulmen/logging"
)

var (
	// CLILogger prints human-facing progress for commands (SIMPLE profile).
	CLILogger *logging.Logger

	// ServerLogger emits JSON lines for the HTTP server (STRUCTURED profile).
	ServerLogger *logging.Logger
)

// ServerLogOptions configures ServerLogger.
type ServerLogOptions struct {
	Service   string
	Level     string
	Namespace string

	// Fields are attached to every line, e.g. the listen address and the
	// upstream provider id.
	Fields map[string]any
}

// InitCLILogger initializes CLILogger. verbose lowers the level to DEBUG.
func InitCLILogger(serviceName string, verbose bool) error {
	logger, err := logging.NewCLI(serviceName)
	if err != nil {
		return fmt.Errorf("init CLI logger: %w", err)
	}
	if verbose {
		logger.SetLevel(logging.DEBUG)
	}
	CLILogger = logger
	return nil
}

// InitServerLogger initializes ServerLogger with the correlation middleware so
// request ids flow into every line.
func InitServerLogger(opts ServerLogOptions) error {
	static := make(map[string]any, len(opts.Fields)+1)
	for k, v := range opts.Fields {
		static[k] = v
	}
	if opts.Namespace != "" {
		static["namespace"] = opts.Namespace
	}

	logger, err := logging.New(&logging.LoggerConfig{
		Profile:      logging.ProfileStructured,
		DefaultLevel: severity(opts.Level),
		Service:      opts.Service,
		Environment:  "production",
		StaticFields: static,
		Middleware: []logging.MiddlewareConfig{
			{Name: "correlation", Enabled: true, Order: 100, Config: map[string]any{}},
		},
		Sinks: []logging.SinkConfig{
			{
				Type:    "console",
				Format:  "json",
				Console: &logging.ConsoleSinkConfig{Stream: "stderr"},
			},
		},
		EnableCaller:     true,
		EnableStacktrace: true,
	})
	if err != nil {
		return fmt.Errorf("init server logger: %w", err)
	}
	ServerLogger = logger
	return nil
}

// severity maps config level names onto gofulmen severities.
func severity(level string) string {
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
