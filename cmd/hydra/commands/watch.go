package commands

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/openfroyo/hydra/pkg/config"
	"github.com/openfroyo/hydra/pkg/engine"
	"github.com/openfroyo/hydra/pkg/policy"
	"github.com/openfroyo/hydra/pkg/telemetry"
)

func newWatchCommand() *cobra.Command {
	var (
		delay       time.Duration
		frames      int
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "watch <pipeline>",
		Short: "Re-run a pipeline whenever it changes",
		Long: `Run a pipeline, then watch its file and re-run it after every change.

Each reload rebuilds the scene from scratch and runs --frames frames. A
reload that fails to load or is rejected by policy is logged and the
previous scene is kept. Policy files named by the pipeline are watched too;
their changes apply to the next reload.`,
		Example: `  # Watch a pipeline
  hydra watch scene.yaml

  # Run three frames per reload
  hydra watch scene.cue --frames 3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			tel, err := setupTelemetry(metricsAddr)
			if err != nil {
				return err
			}
			defer shutdownTelemetry(tel)
			logger := tel.Logger.Zerolog()

			p, err := loadPipeline(ctx, cmd.ErrOrStderr(), args[0], logger)
			if err != nil {
				return err
			}

			pe, err := policy.NewEngine(logger)
			if err != nil {
				return err
			}
			if p.Policy != nil && len(p.Policy.Paths) > 0 {
				paths := make([]string, 0, len(p.Policy.Paths))
				for _, path := range p.Policy.Paths {
					paths = append(paths, p.Resolve(path))
				}
				if err := pe.Watch(ctx, paths); err != nil {
					return fmt.Errorf("failed to watch policies: %w", err)
				}
				defer pe.StopWatching()
			}

			w := &sceneWatcher{
				tel:    tel,
				policy: pe,
				logger: logger,
				out:    newOutput(cmd.OutOrStdout()),
				frames: frames,
			}
			defer w.close()

			if err := w.apply(ctx, p); err != nil {
				return err
			}

			watcher := config.NewWatcher(config.NewLoader(logger), logger, delay)
			if err := watcher.Watch(ctx, args[0], w.reload); err != nil {
				return err
			}
			defer watcher.Stop()

			<-ctx.Done()
			logger.Info().Msg("Stopped watching")
			return nil
		},
	}

	cmd.Flags().DurationVar(&delay, "delay", 500*time.Millisecond, "debounce delay between a change and the reload")
	cmd.Flags().IntVarP(&frames, "frames", "n", 1, "frames to run after every reload")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on")

	return cmd
}

// sceneWatcher rebuilds and runs a pipeline's scene on every reload.
type sceneWatcher struct {
	tel    *telemetry.Telemetry
	policy *policy.Engine
	logger zerolog.Logger
	out    *output
	frames int

	mu      sync.Mutex
	current *sceneBuild
}

// reload is the config.ReloadFunc of the pipeline watcher.
func (w *sceneWatcher) reload(ctx context.Context, p *config.Pipeline) error {
	if err := w.apply(ctx, p); err != nil {
		return err
	}
	if err := w.tel.Events.PublishPipelineReloaded(p.Name, p.Source); err != nil {
		w.logger.Warn().Err(err).Msg("Reload event dropped")
	}
	return nil
}

// apply admits p, swaps in its scene and runs its frames.
func (w *sceneWatcher) apply(ctx context.Context, p *config.Pipeline) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	obs := w.tel.Observer(p.Name)
	if !policyDisabled(p) {
		if _, err := admitWith(ctx, w.policy, p, "watch", obs); err != nil {
			return err
		}
	}

	b, err := buildScene(ctx, p, w.logger, obs.CommitHook)
	if err != nil {
		return err
	}
	if w.current != nil {
		if err := w.current.Close(context.Background()); err != nil {
			w.logger.Warn().Err(err).Msg("Failed to release previous scene")
		}
	}
	w.current = b

	eng := newEngine(p, w.logger, engine.WithTracer(w.tel.Tracer.Tracer()), obs)

	frames := w.frames
	if frames <= 0 {
		frames = 1
	}
	run := *p
	run.Frames = frames

	_, err = runFrames(ctx, &run, b, eng, w.out)
	return err
}

func (w *sceneWatcher) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current != nil {
		_ = w.current.Close(context.Background())
		w.current = nil
	}
}
