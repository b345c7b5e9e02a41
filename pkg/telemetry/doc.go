// Package telemetry provides observability instrumentation for hydra.
//
// The package integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry), metrics (Prometheus) and event publishing behind one
// Telemetry value, and adapts them to the engine's frame notifications.
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceVersion = version
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	if err := tel.StartMetricsServer(); err != nil {
//	    return err
//	}
//
// # Wiring the Engine
//
// The engine takes a zerolog.Logger, a trace.Tracer and an engine.Observer.
// Telemetry supplies all three:
//
//	obs := tel.Observer(pipeline.Name)
//	eng := engine.New(
//	    engine.WithLogger(tel.Logger.Zerolog()),
//	    engine.WithTracer(tel.Tracer.Tracer()),
//	    engine.WithObserver(obs),
//	)
//	d := delegate.NewMemoryDelegate(delegate.WithCommitHook(obs.CommitHook))
//
// EngineObserver counts frames, times every phase, and publishes frame and
// usage error events. Its CommitHook records resource commit statistics.
//
// # Structured Logging
//
//	logger := tel.Logger.Component("scene").Pipeline(p.Name)
//	logger.Frame(frame).Phase(engine.PhaseSynced).Debug("synced rprims")
//
// Log levels: trace, debug, info, warn, error
//
// # Tracing
//
// The engine opens one span per frame and one per phase. Callers running
// several frames can group them under a pipeline span:
//
//	ctx, span := tel.Tracer.StartPipelineSpan(ctx, "preview", 4)
//	defer span.End()
//
// Supported exporters: "otlp" (gRPC, needs an endpoint), "stdout" and
// "none", which samples spans but exports nothing.
//
// # Metrics
//
// Metrics live on a private registry and are served at
// MetricsConfig.Path (default :9090/metrics):
//
//   - hydra_frames_started_total{pipeline}
//   - hydra_frames_completed_total{pipeline}
//   - hydra_frame_duration_seconds{pipeline}
//   - hydra_frame_tasks{pipeline}
//   - hydra_phase_duration_seconds{pipeline,phase}
//   - hydra_commits_total{status}
//   - hydra_commit_buffers_total{result}
//   - hydra_commit_bytes_total
//   - hydra_buffers_collected_total
//   - hydra_usage_errors_total{code}
//   - hydra_policy_violations_total{policy,severity}
//   - hydra_active_frames
//
// # Event Publishing
//
// Events are queued and delivered to subscribers in publish order, or
// synchronously when EventsConfig.Async is false:
//
//	tel.Events.Subscribe(func(e telemetry.Event) {
//	    fmt.Println(e.Type, e.Message)
//	}, telemetry.FilterByLevel(telemetry.EventLevelWarning))
//
// Shutdown delivers every buffered event before returning.
package telemetry
