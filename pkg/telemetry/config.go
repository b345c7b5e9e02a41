package telemetry

import "fmt"

// Config selects where hydra reports its frames. The root command fills it
// from the global flags.
type Config struct {
	ServiceName    string
	ServiceVersion string

	Logging LoggingConfig
	Tracing TracingConfig
	Metrics MetricsConfig
	Events  EventsConfig
}

// LoggingConfig configures the frame logger.
type LoggingConfig struct {
	// Level is one of trace, debug, info, warn or error.
	Level string
	// Format is console or json.
	Format string
	// Output is stdout, stderr, discard or a file path. Empty discards.
	Output string
}

// TracingConfig selects where frame and phase spans are exported.
type TracingConfig struct {
	// Exporter is none, stdout or otlp. With none, spans are still
	// recorded so trace IDs reach the logs.
	Exporter string
	// Endpoint is the OTLP collector. A bare host:port is dialed without
	// TLS; an http:// or https:// URL decides by its scheme.
	Endpoint string
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled       bool
	ListenAddress string
}

// EventsConfig controls frame event delivery.
type EventsConfig struct {
	// Async delivers events from a background goroutine in publish order.
	// When false, Publish runs the subscribers before it returns.
	Async bool
	// BufferSize bounds the async queue. Events past it are dropped.
	BufferSize int
}

var (
	logLevels      = map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	logFormats     = map[string]bool{"console": true, "json": true}
	traceExporters = map[string]bool{"none": true, "stdout": true, "otlp": true}
)

// DefaultConfig logs at info to stderr, records spans without exporting
// them, serves metrics on :9090 and delivers events asynchronously.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "hydra",
		ServiceVersion: "dev",
		Logging:        LoggingConfig{Level: "info", Format: "console", Output: "stderr"},
		Tracing:        TracingConfig{Exporter: "none"},
		Metrics:        MetricsConfig{Enabled: true, ListenAddress: ":9090"},
		Events:         EventsConfig{Async: true, BufferSize: 1000},
	}
}

// Validate reports the first setting NewTelemetry could not honor.
func (c *Config) Validate() error {
	switch {
	case c.ServiceName == "":
		return fmt.Errorf("service name is required")
	case !logLevels[c.Logging.Level]:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	case !logFormats[c.Logging.Format]:
		return fmt.Errorf("invalid log format: %s (must be 'console' or 'json')", c.Logging.Format)
	case !traceExporters[c.Tracing.Exporter]:
		return fmt.Errorf("invalid trace exporter: %s", c.Tracing.Exporter)
	case c.Tracing.Exporter == "otlp" && c.Tracing.Endpoint == "":
		return fmt.Errorf("otlp exporter requires an endpoint")
	case c.Metrics.Enabled && c.Metrics.ListenAddress == "":
		return fmt.Errorf("metrics listen address is required when metrics are enabled")
	case c.Events.Async && c.Events.BufferSize <= 0:
		return fmt.Errorf("event buffer size must be positive, got: %d", c.Events.BufferSize)
	}
	return nil
}
