package stores

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/openfroyo/hydra/pkg/delegate"
	"github.com/openfroyo/hydra/pkg/engine"
	"github.com/openfroyo/hydra/pkg/scene"
)

type requestTask struct{}

func (requestTask) Sync(_ context.Context, _ *engine.TaskContext, dirty *engine.DirtyBits) {
	*dirty = engine.Clean
}

func (requestTask) Prepare(_ context.Context, _ *engine.TaskContext, index engine.SceneIndex) {
	if req, ok := index.RenderDelegate().(delegate.Requester); ok {
		req.RequestBuffer("scratch", 32, nil)
	}
}

func (requestTask) Execute(context.Context, *engine.TaskContext) {}

func TestJournal_RecordsFrames(t *testing.T) {
	store := setupTestStore(t)
	journal := NewJournal(store, "preview", zerolog.Nop())

	d := delegate.NewMemoryDelegate(
		delegate.WithLogger(zerolog.Nop()),
		delegate.WithCommitHook(journal.CommitHook))
	index := scene.NewRenderIndex(d, nil, scene.WithLogger(zerolog.Nop()))
	if err := index.InsertTask("/Tasks/Request", requestTask{}); err != nil {
		t.Fatalf("failed to insert task: %v", err)
	}

	eng := engine.New(
		engine.WithLogger(zerolog.Nop()),
		engine.WithObserver(journal))

	ctx := context.Background()
	if err := eng.ExecutePaths(ctx, index, []engine.Path{"/Tasks/Request", "/Tasks/Missing"}); err != nil {
		t.Fatalf("frame failed: %v", err)
	}
	_ = eng.Execute(ctx, nil, nil)

	if journal.Saved() != 1 {
		t.Fatalf("expected 1 saved frame, got %d", journal.Saved())
	}
	if err := journal.Err(); err != nil {
		t.Fatalf("unexpected journal error: %v", err)
	}

	report, _ := eng.LastFrame()
	frame, err := store.GetFrame(ctx, report.ID)
	if err != nil {
		t.Fatalf("frame not journaled: %v", err)
	}
	if frame.Pipeline != "preview" || frame.TaskCount != 1 {
		t.Errorf("unexpected frame %+v", frame)
	}
	if frame.BuffersCommitted != 1 || frame.CommitBytes != 32 {
		t.Errorf("commit stats not journaled: %+v", frame)
	}
	if frame.SceneStateVersion != index.Tracker().SceneStateVersion() {
		t.Errorf("expected scene state version %d, got %d",
			index.Tracker().SceneStateVersion(), frame.SceneStateVersion)
	}
	steps := []string{"seed", "sync", "prepare", "commit", "execute"}
	if len(frame.Phases) != len(steps) {
		t.Fatalf("expected %d phases, got %d", len(steps), len(frame.Phases))
	}
	for i, step := range steps {
		if frame.Phases[i].Phase != step {
			t.Errorf("phase %d: expected %s, got %s", i, step, frame.Phases[i].Phase)
		}
	}

	errs, err := store.UsageErrors(ctx, "")
	if err != nil {
		t.Fatalf("failed to list usage errors: %v", err)
	}
	if len(errs) != 2 {
		t.Fatalf("expected 2 usage errors, got %d", len(errs))
	}
	if errs[0].Code != engine.ErrCodeTaskNotFound || errs[1].Code != engine.ErrCodeNilArgument {
		t.Errorf("unexpected codes %s, %s", errs[0].Code, errs[1].Code)
	}
	if errs[0].FrameID != report.ID {
		t.Errorf("path error should name frame %s, got %q", report.ID, errs[0].FrameID)
	}
	if errs[1].FrameID != "" {
		t.Error("an error that kept a frame from starting should not name a frame")
	}

	linked, err := store.UsageErrors(ctx, report.ID)
	if err != nil {
		t.Fatalf("failed to list frame usage errors: %v", err)
	}
	if len(linked) != 1 || linked[0].Code != engine.ErrCodeTaskNotFound {
		t.Errorf("expected the frame's path error, got %+v", linked)
	}
}

func TestJournal_LinksEveryPathErrorToItsFrame(t *testing.T) {
	store := setupTestStore(t)
	journal := NewJournal(store, "preview", zerolog.Nop())

	index := scene.NewRenderIndex(delegate.NewMemoryDelegate(delegate.WithLogger(zerolog.Nop())), nil, scene.WithLogger(zerolog.Nop()))
	eng := engine.New(
		engine.WithLogger(zerolog.Nop()),
		engine.WithObserver(journal))

	ctx := context.Background()
	if err := eng.ExecutePaths(ctx, index, []engine.Path{"", "/Missing"}); err != nil {
		t.Fatalf("frame failed: %v", err)
	}
	first, _ := eng.LastFrame()
	if err := eng.ExecutePaths(ctx, index, []engine.Path{"/Missing"}); err != nil {
		t.Fatalf("frame failed: %v", err)
	}
	second, _ := eng.LastFrame()

	linked, err := store.UsageErrors(ctx, first.ID)
	if err != nil {
		t.Fatalf("failed to list usage errors: %v", err)
	}
	if len(linked) != 2 {
		t.Fatalf("expected 2 errors linked to the first frame, got %d", len(linked))
	}
	if linked[0].Code != engine.ErrCodeEmptyPath || linked[1].Code != engine.ErrCodeTaskNotFound {
		t.Errorf("unexpected codes %s, %s", linked[0].Code, linked[1].Code)
	}

	linked, err = store.UsageErrors(ctx, second.ID)
	if err != nil {
		t.Fatalf("failed to list usage errors: %v", err)
	}
	if len(linked) != 1 {
		t.Errorf("expected 1 error linked to the second frame, got %d", len(linked))
	}
}

type failingStore struct {
	Store
}

func (failingStore) SaveFrame(context.Context, *FrameRecord) error {
	return errors.New("disk full")
}

func TestJournal_KeepsWriteErrors(t *testing.T) {
	journal := NewJournal(failingStore{}, "preview", zerolog.Nop())
	journal.FrameCompleted(context.Background(), engine.FrameReport{
		FrameInfo: engine.FrameInfo{ID: "frame-1"},
	})

	if journal.Err() == nil || journal.Err().Error() != "disk full" {
		t.Fatalf("expected write error, got %v", journal.Err())
	}
	if journal.Saved() != 0 {
		t.Errorf("expected no saved frames, got %d", journal.Saved())
	}
}
