package batch

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civitas-chicago/civitas/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func lastBatch(t *testing.T, st store.Store) store.Batch {
	t.Helper()
	batches, err := st.ListBatches(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, batches)
	return batches[0]
}

func TestTrackerComplete(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	tr, err := Open(ctx, st, testLogger(), "building_violations", "data/violations.csv")
	require.NoError(t, err)
	defer tr.Close(ctx)

	tr.Add(100)
	tr.Add(50)
	require.NoError(t, tr.Complete(ctx))

	b := lastBatch(t, st)
	assert.Equal(t, store.BatchComplete, b.Status)
	assert.Equal(t, 150, b.RowsLoaded)
	assert.Equal(t, "building_violations", b.SourceDataset)
}

func TestTrackerCloseWithoutComplete(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	tr, err := Open(ctx, st, testLogger(), "food_inspections", "")
	require.NoError(t, err)
	tr.Add(30)
	tr.Close(ctx)

	b := lastBatch(t, st)
	assert.Equal(t, store.BatchFailed, b.Status)
	assert.Equal(t, 30, b.RowsLoaded)
}

func TestTrackerCloseAfterCompleteIsNoop(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	tr, err := Open(ctx, st, testLogger(), "building_permits", "")
	require.NoError(t, err)
	tr.Add(10)
	require.NoError(t, tr.Complete(ctx))
	tr.Close(ctx)

	b := lastBatch(t, st)
	assert.Equal(t, store.BatchComplete, b.Status)
	assert.Equal(t, 10, b.RowsLoaded)
}

func TestTrackerFinalizesOnPanic(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	func() {
		defer func() { recover() }()

		tr, err := Open(ctx, st, testLogger(), "311_service_requests", "")
		require.NoError(t, err)
		defer tr.Close(ctx)

		tr.Add(5)
		panic("mid-run failure")
	}()

	b := lastBatch(t, st)
	assert.Equal(t, store.BatchFailed, b.Status)
	assert.Equal(t, 5, b.RowsLoaded)
}

func TestTrackerFinalizesOnCancelledContext(t *testing.T) {
	st := store.NewMemory()

	ctx, cancel := context.WithCancel(context.Background())
	tr, err := Open(ctx, st, testLogger(), "cook_county_tax_liens", "")
	require.NoError(t, err)

	cancel()
	tr.Close(ctx)

	b := lastBatch(t, st)
	assert.Equal(t, store.BatchFailed, b.Status)
}
