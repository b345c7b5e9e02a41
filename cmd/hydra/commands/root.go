package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/openfroyo/hydra/pkg/telemetry"
)

var (
	// Global flags
	logLevel      string
	logFormat     string
	traceExporter string
	otlpEndpoint  string
	jsonOutput    bool

	buildVersion = "dev"
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	buildVersion = version

	rootCmd := &cobra.Command{
		Use:   "hydra",
		Short: "Hydra - phased render task engine",
		Long: `Hydra runs render pipelines frame by frame. Every frame moves all tasks
through the same phases:

  seed     the drivers entry is refreshed on the blackboard
  sync     tasks and renderable prims pull scene changes
  prepare  tasks publish state and request resources
  commit   the render delegate resolves resource requests once
  execute  tasks record their work

Pipelines are described in YAML, CUE or Starlark.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultLevel := os.Getenv("LOG_LEVEL")
	if defaultLevel == "" {
		defaultLevel = "info"
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", defaultLevel, "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().StringVar(&traceExporter, "trace-exporter", "none", "trace exporter (none, stdout, otlp)")
	rootCmd.PersistentFlags().StringVar(&otlpEndpoint, "otlp-endpoint", "", "OTLP collector endpoint for --trace-exporter=otlp")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newWatchCommand())
	rootCmd.AddCommand(newFramesCommand())

	return rootCmd
}

// setupTelemetry builds telemetry from the global flags. Metrics are only
// served when metricsAddr is set.
func setupTelemetry(metricsAddr string) (*telemetry.Telemetry, error) {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = buildVersion
	cfg.Logging.Level = logLevel
	cfg.Logging.Format = logFormat
	cfg.Logging.Output = "stderr"
	cfg.Tracing.Exporter = traceExporter
	cfg.Tracing.Endpoint = otlpEndpoint
	cfg.Metrics.Enabled = metricsAddr != ""
	cfg.Metrics.ListenAddress = metricsAddr
	cfg.Events.Async = false

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		return nil, err
	}

	// The telemetry logger carries its own level.
	zerolog.SetGlobalLevel(zerolog.TraceLevel)

	if err := tel.StartMetricsServer(); err != nil {
		_ = tel.Shutdown(context.Background())
		return nil, fmt.Errorf("failed to start metrics server: %w", err)
	}
	return tel, nil
}
