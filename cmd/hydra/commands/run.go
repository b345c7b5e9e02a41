package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfroyo/hydra/pkg/config"
	"github.com/openfroyo/hydra/pkg/delegate"
	"github.com/openfroyo/hydra/pkg/engine"
	"github.com/openfroyo/hydra/pkg/stores"
	"github.com/openfroyo/hydra/pkg/telemetry"
)

// frameSummary is printed after every frame.
type frameSummary struct {
	Frame     uint64        `json:"frame"`
	ID        string        `json:"id"`
	Tasks     int           `json:"tasks"`
	Duration  time.Duration `json:"duration"`
	Draws     int           `json:"draws"`
	Points    int           `json:"points"`
	Driver    string        `json:"driver,omitempty"`
	Committed int           `json:"buffers_committed"`
	Failed    int           `json:"buffers_failed"`
}

func (s frameSummary) String() string {
	return fmt.Sprintf("frame %d  tasks=%d  draws=%d  points=%d  buffers=%d/%d  %s",
		s.Frame, s.Tasks, s.Draws, s.Points, s.Committed, s.Committed+s.Failed, s.Duration)
}

type runOptions struct {
	frames      int
	journal     string
	metricsAddr string
	events      bool
}

func newRunCommand() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run <pipeline>",
		Short: "Run a pipeline for its frames",
		Long: `Load a pipeline, check it against the admission policies, build its
scene and run its frames.

Pipelines with an execute list run in path form: every entry is resolved
through the render index each frame, and entries that are empty or name
no task are reported and skipped.`,
		Example: `  # Run a pipeline
  hydra run scene.yaml

  # Run 100 frames and journal them
  hydra run scene.yaml --frames 100 --journal frames.db

  # Serve metrics while running
  hydra run scene.cue --metrics-addr :9090`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, args[0], opts)
		},
	}

	cmd.Flags().IntVarP(&opts.frames, "frames", "n", 0, "number of frames, overriding the pipeline")
	cmd.Flags().StringVar(&opts.journal, "journal", "", "SQLite file to journal frames to")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on")
	cmd.Flags().BoolVar(&opts.events, "events", false, "print telemetry events as JSON lines")

	return cmd
}

func runPipeline(cmd *cobra.Command, path string, opts runOptions) error {
	ctx := cmd.Context()

	tel, err := setupTelemetry(opts.metricsAddr)
	if err != nil {
		return err
	}
	defer shutdownTelemetry(tel)

	logger := tel.Logger.Zerolog()
	out := newOutput(cmd.OutOrStdout())

	p, err := loadPipeline(ctx, cmd.ErrOrStderr(), path, logger)
	if err != nil {
		return err
	}
	if opts.frames > 0 {
		p.Frames = opts.frames
	}

	if opts.events {
		tel.Events.Subscribe(func(e telemetry.Event) {
			_ = out.line(e)
		}, nil)
	}

	obs := tel.Observer(p.Name)
	result, err := admit(ctx, p, "run", logger, obs)
	if err != nil {
		printPolicyResult(cmd.ErrOrStderr(), result)
		return err
	}

	observers := []engine.Observer{obs}
	hooks := []delegate.CommitHook{obs.CommitHook}

	var journal *stores.Journal
	if opts.journal != "" {
		store, err := stores.Open(ctx, opts.journal)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		defer store.Close()

		journal = stores.NewJournal(store, p.Name, logger)
		observers = append(observers, journal)
		hooks = append(hooks, journal.CommitHook)
	}

	b, err := buildScene(ctx, p, logger, hooks...)
	if err != nil {
		return err
	}
	defer b.Close(context.Background())

	eng := newEngine(p, logger, engine.WithTracer(tel.Tracer.Tracer()), observers...)

	ctx, span := tel.Tracer.StartPipelineSpan(ctx, p.Name, p.FrameCount())
	defer span.End()

	ran, err := runFrames(ctx, p, b, eng, out)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	telemetry.RecordSuccess(span)

	logger.Info().
		Str("pipeline", p.Name).
		Int("frames", ran).
		Msg("Pipeline run completed")

	if journal != nil {
		if err := journal.Err(); err != nil {
			return fmt.Errorf("journal write failed: %w", err)
		}
		logger.Debug().Int("saved", journal.Saved()).Str("journal", opts.journal).Msg("Frames journaled")
	}
	return nil
}

// runFrames runs the pipeline's frames, printing a summary after each. It
// stops early, between frames, when ctx is done.
func runFrames(ctx context.Context, p *config.Pipeline, b *sceneBuild, eng *engine.Engine, out *output) (int, error) {
	ran := 0
	for i := 0; i < p.FrameCount(); i++ {
		if ctx.Err() != nil {
			break
		}
		if err := b.runFrame(ctx, eng); err != nil {
			return ran, err
		}
		ran++

		s := summarize(eng, b)
		if out.jsonMode {
			if err := out.line(s); err != nil {
				return ran, err
			}
			continue
		}
		fmt.Fprintln(out.w, s.String())
	}
	return ran, nil
}

func summarize(eng *engine.Engine, b *sceneBuild) frameSummary {
	var s frameSummary
	if report, ok := eng.LastFrame(); ok {
		s.Frame = report.Sequence
		s.ID = report.ID
		s.Tasks = report.TaskCount
		s.Duration = report.Duration()
	}
	if present, ok := b.lastPresent(); ok {
		s.Draws = present.Draws
		s.Points = present.Points
		s.Driver = present.Driver
	}
	if rec, ok := b.delegate.LastCommit(); ok {
		s.Committed = rec.Stats.Committed
		s.Failed = rec.Stats.Failed
	}
	return s
}

func shutdownTelemetry(tel *telemetry.Telemetry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tel.Shutdown(ctx); err != nil {
		tel.Logger.WithError(err).Warn("telemetry shutdown failed")
	}
}
