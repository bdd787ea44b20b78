package store

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nancy-30/LTrail/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testDetail(id string) model.TraceDetail {
	return model.TraceDetail{
		Trace: model.Trace{
			TraceID:   id,
			Name:      "pipeline",
			Status:    model.StatusInProgress,
			CreatedAt: "2026-08-29T10:00:00Z",
			Metadata:  map[string]any{},
		},
		Steps: []model.Step{{Name: "retrieve", Status: model.StepStatusSuccess}},
	}
}

func TestArchiveWriteAndLoad(t *testing.T) {
	a, err := OpenArchive(":memory:", 16, testLogger())
	require.NoError(t, err)
	defer a.db.Close()

	a.write(testDetail("t1"))

	got, err := a.Load(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", got.TraceID)
	assert.Equal(t, "pipeline", got.Name)
	require.Len(t, got.Steps, 1)
	assert.Equal(t, "retrieve", got.Steps[0].Name)
}

func TestArchiveUpsertOverwrites(t *testing.T) {
	a, err := OpenArchive(":memory:", 16, testLogger())
	require.NoError(t, err)
	defer a.db.Close()

	a.write(testDetail("t1"))

	updated := testDetail("t1")
	updated.Status = model.StatusCompleted
	updated.Steps = append(updated.Steps, model.Step{Name: "rank", Status: model.StepStatusSuccess})
	a.write(updated)

	got, err := a.Load(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.Len(t, got.Steps, 2)
}

func TestArchiveLoadNotFound(t *testing.T) {
	a, err := OpenArchive(":memory:", 16, testLogger())
	require.NoError(t, err)
	defer a.db.Close()

	_, err = a.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestArchiveDrainFlushesQueue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")

	a, err := OpenArchive(path, 16, testLogger())
	require.NoError(t, err)

	a.Start()
	a.Enqueue(testDetail("t1"))
	a.Enqueue(testDetail("t2"))

	drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.Drain(drainCtx)

	// Reopen and verify both snapshots survived the drain.
	reopened, err := OpenArchive(path, 16, testLogger())
	require.NoError(t, err)
	defer reopened.db.Close()

	for _, id := range []string{"t1", "t2"} {
		got, err := reopened.Load(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, id, got.TraceID)
	}
}

func TestArchiveWorkerOutlivesCallerContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")

	a, err := OpenArchive(path, 16, testLogger())
	require.NoError(t, err)

	// Shutdown ordering: in-flight requests keep enqueueing after the
	// shutdown signal, while the HTTP server drains. The worker must keep
	// accepting snapshots until Drain, not stop on its own.
	a.Start()
	time.Sleep(50 * time.Millisecond)
	a.Enqueue(testDetail("late"))

	drainCtx, drainCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer drainCancel()
	a.Drain(drainCtx)

	reopened, err := OpenArchive(path, 16, testLogger())
	require.NoError(t, err)
	defer reopened.db.Close()

	got, err := reopened.Load(context.Background(), "late")
	require.NoError(t, err)
	assert.Equal(t, "late", got.TraceID)
}

func TestArchiveEnqueueNeverBlocks(t *testing.T) {
	a, err := OpenArchive(":memory:", 1, testLogger())
	require.NoError(t, err)
	defer a.db.Close()

	// No worker running: the second enqueue overflows and is dropped.
	a.Enqueue(testDetail("t1"))
	a.Enqueue(testDetail("t2"))

	assert.Equal(t, int64(1), a.Dropped())
	assert.Equal(t, 1, a.QueueDepth())
}
