package commands

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/hydra/pkg/config"
	"github.com/openfroyo/hydra/pkg/policy"
	"github.com/openfroyo/hydra/pkg/telemetry"
)

// The script does not parse, so the scene cannot be built.
const unbuildablePipeline = `
name: unbuildable
tasks:
  - path: /Tasks/Setup
    type: render_setup
  - path: /Tasks/Script
    type: script
    script: "def prepare(:"
`

const secondPipeline = `
name: second
tasks:
  - path: /Tasks/Setup
    type: render_setup
  - path: /Tasks/Render
    type: render
`

func newTestWatcher(t *testing.T, out io.Writer) *sceneWatcher {
	t.Helper()

	cfg := telemetry.DefaultConfig()
	cfg.Logging.Output = "discard"
	cfg.Metrics.Enabled = false
	cfg.Events.Async = false
	tel, err := telemetry.NewTelemetry(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	pe, err := policy.NewEngine(zerolog.Nop())
	require.NoError(t, err)

	w := &sceneWatcher{
		tel:    tel,
		policy: pe,
		logger: zerolog.Nop(),
		out:    &output{w: out},
		frames: 1,
	}
	t.Cleanup(w.close)
	return w
}

func mustLoad(t *testing.T, name, content string) *config.Pipeline {
	t.Helper()
	p, err := loadPipeline(context.Background(), io.Discard, writePipeline(t, name, content), zerolog.Nop())
	require.NoError(t, err)
	return p
}

func TestSceneWatcher_FailedReloadKeepsScene(t *testing.T) {
	ctx := context.Background()
	var out bytes.Buffer
	w := newTestWatcher(t, &out)

	var reloaded []string
	w.tel.Events.Subscribe(func(e telemetry.Event) {
		reloaded = append(reloaded, e.Pipeline)
	}, telemetry.FilterByType(telemetry.EventTypePipelineReloaded))

	quad := mustLoad(t, "quad.yaml", scenePipeline)
	require.NoError(t, w.apply(ctx, quad))
	first := w.current
	require.NotNil(t, first)

	t.Run("rejected by policy", func(t *testing.T) {
		err := w.reload(ctx, mustLoad(t, "bad.yaml", misorderedPipeline))
		var rejected *policy.RejectedError
		require.ErrorAs(t, err, &rejected)
		assert.False(t, rejected.Result.Allowed)
		assert.Same(t, first, w.current)
	})

	t.Run("scene fails to build", func(t *testing.T) {
		err := w.reload(ctx, mustLoad(t, "unbuildable.yaml", unbuildablePipeline))
		require.Error(t, err)
		assert.Same(t, first, w.current)
	})

	assert.Empty(t, reloaded)
	assert.Equal(t, 1, strings.Count(out.String(), "\n"), "failed reloads run no frames")

	// The kept scene still renders.
	require.NoError(t, first.runFrame(ctx, newEngine(quad, zerolog.Nop(), nil)))
	_, ok := first.index.Task("/Tasks/Render")
	assert.True(t, ok)

	require.NoError(t, w.reload(ctx, mustLoad(t, "second.yaml", secondPipeline)))
	assert.NotSame(t, first, w.current)
	assert.Equal(t, []string{"second"}, reloaded)
	assert.Equal(t, 2, strings.Count(out.String(), "\n"))
}
