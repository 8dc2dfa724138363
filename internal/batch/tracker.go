// Package batch tracks the lifecycle of one ingestion run. A batch opens
// in status running and is guaranteed to reach exactly one terminal state
// (complete or failed), including when the run unwinds via error or panic.
package batch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/civitas-chicago/civitas/internal/store"
)

// Tracker manages a single ingestion_batch row. Open it at run start,
// defer Close, and call Complete on the success path:
//
//	t, err := batch.Open(ctx, st, log, source, path)
//	if err != nil { return err }
//	defer t.Close(ctx)
//	...
//	t.Add(flushed)
//	...
//	return t.Complete(ctx)
//
// Close finalizes the batch as failed when Complete was never reached, so
// the terminal write happens on every exit path.
type Tracker struct {
	store     store.Store
	log       *slog.Logger
	batchID   int64
	source    string
	committed int
	finished  bool
}

// Open creates a running batch for one dataset run.
func Open(ctx context.Context, st store.Store, log *slog.Logger, sourceDataset, filePath string) (*Tracker, error) {
	id, err := st.CreateBatch(ctx, sourceDataset, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open batch for %s: %w", sourceDataset, err)
	}
	log.Info("opened batch", "batch_id", id, "source", sourceDataset)
	return &Tracker{store: st, log: log, batchID: id, source: sourceDataset}, nil
}

// BatchID returns the batch's surrogate key for tagging fact rows.
func (t *Tracker) BatchID() int64 { return t.batchID }

// Add records n rows as durably committed. Call it after each successful
// flush so a failed run still reports the rows that made it in.
func (t *Tracker) Add(n int) { t.committed += n }

// Committed returns the rows committed so far.
func (t *Tracker) Committed() int { return t.committed }

// Complete transitions the batch to its complete terminal state with the
// accumulated row count.
func (t *Tracker) Complete(ctx context.Context) error {
	if t.finished {
		return nil
	}
	if err := t.store.FinishBatch(ctx, t.batchID, store.BatchComplete, t.committed); err != nil {
		return err
	}
	t.finished = true
	t.log.Info("batch complete", "batch_id", t.batchID, "source", t.source, "rows_loaded", t.committed)
	return nil
}

// Close finalizes the batch as failed if it has not already reached a
// terminal state. It runs the write on an uncancelable context so a
// cancelled run still records its terminal status.
func (t *Tracker) Close(ctx context.Context) {
	if t.finished {
		return
	}
	t.finished = true
	if err := t.store.FinishBatch(context.WithoutCancel(ctx), t.batchID, store.BatchFailed, t.committed); err != nil {
		t.log.Error("failed to finalize batch", "batch_id", t.batchID, "error", err)
		return
	}
	t.log.Warn("batch failed", "batch_id", t.batchID, "source", t.source, "rows_loaded", t.committed)
}
