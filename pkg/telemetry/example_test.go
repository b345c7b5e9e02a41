package telemetry_test

import (
	"context"
	"fmt"
	"time"

	"github.com/openfroyo/hydra/pkg/engine"
	"github.com/openfroyo/hydra/pkg/telemetry"
)

// Example_basicSetup demonstrates basic telemetry setup.
func Example_basicSetup() {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = "1.0.0"
	cfg.Logging.Output = "discard"
	cfg.Metrics.ListenAddress = "127.0.0.1:0"

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		panic(err)
	}
	defer tel.Shutdown(context.Background())

	if err := tel.StartMetricsServer(); err != nil {
		panic(err)
	}

	ctx := tel.WithContext(context.Background())
	telemetry.FromContext(ctx).Info("hydra started")

	fmt.Println("telemetry ready")
	// Output: telemetry ready
}

// Example_structuredLogging demonstrates the frame-aware logger helpers.
func Example_structuredLogging() {
	logger, _ := telemetry.NewLogger(telemetry.LoggingConfig{
		Level:  "debug",
		Format: "json",
		Output: "discard",
	})

	logger = logger.Component("scene").Pipeline("preview")
	frame := engine.FrameInfo{ID: "f-1", Sequence: 1}
	logger.Frame(frame).Phase(engine.PhaseSynced).Debug("synced 3 rprims")
	logger.Task("/Tasks/Render").Warn("collection names an unknown rprim")
	logger.WithError(fmt.Errorf("source failed")).Error("commit incomplete")

	// Output varies, no output specified
}

// Example_engineObserver wires telemetry into the engine's frame
// notifications and reads back the published events.
func Example_engineObserver() {
	cfg := telemetry.DefaultConfig()
	cfg.Logging.Output = "discard"
	cfg.Events.Async = false

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		panic(err)
	}
	defer tel.Shutdown(context.Background())

	tel.Events.Subscribe(func(e telemetry.Event) {
		fmt.Println(e.Type)
	}, telemetry.FilterByType(telemetry.EventTypeFrameStarted, telemetry.EventTypeFrameCompleted))

	obs := tel.Observer("preview")
	ctx := context.Background()

	frame := engine.FrameInfo{ID: "f-1", Sequence: 1, TaskCount: 2, StartedAt: time.Now()}
	obs.FrameStarted(ctx, frame)
	for _, p := range engine.Phases() {
		obs.PhaseStarted(ctx, frame, p)
		obs.PhaseCompleted(ctx, frame, p, time.Millisecond)
	}
	obs.FrameCompleted(ctx, engine.FrameReport{FrameInfo: frame, CompletedAt: time.Now()})

	// Output:
	// frame.started
	// frame.completed
}

// Example_pipelineSpan groups frames under a pipeline span.
func Example_pipelineSpan() {
	cfg := telemetry.DefaultConfig()
	cfg.Logging.Output = "discard"

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		panic(err)
	}
	defer tel.Shutdown(context.Background())

	ctx, span := tel.Tracer.StartPipelineSpan(context.Background(), "preview", 2)
	defer span.End()

	for i := uint64(1); i <= 2; i++ {
		_, frame := tel.Tracer.StartFrameSpan(ctx, fmt.Sprintf("f-%d", i), i)
		frame.End()
	}

	fmt.Println(telemetry.TraceID(ctx) != "")
	// Output: true
}
