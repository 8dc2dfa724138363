// Package ingest streams the municipal source datasets into the canonical
// store. Each dataset has one pipeline; all of them share the standardize →
// upsert → buffer → flush loop, skip-and-count row handling, and batch
// lifecycle tracking.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/civitas-chicago/civitas/internal/address"
	"github.com/civitas-chicago/civitas/internal/batch"
	"github.com/civitas-chicago/civitas/internal/store"
)

// Default buffer bound for fact flushes. Individual pipelines override it
// where the original feeds justify a different size.
const defaultBatchSize = 5000

// Pipeline bundles the dependencies every dataset run needs. Pipelines are
// internally single-threaded; independent datasets run as separate
// Pipeline calls whose only shared resource is the store.
type Pipeline struct {
	Store     store.Store
	Std       *address.Standardizer
	Socrata   *SocrataClient
	Log       *slog.Logger
	BatchSize int
}

// New returns a Pipeline over st with the default buffer bound.
func New(st store.Store, std *address.Standardizer, soc *SocrataClient, log *slog.Logger) *Pipeline {
	return &Pipeline{Store: st, Std: std, Socrata: soc, Log: log, BatchSize: defaultBatchSize}
}

func (p *Pipeline) batchSize() int {
	if p.BatchSize > 0 {
		return p.BatchSize
	}
	return defaultBatchSize
}

// flushFacts commits one buffer as a single transaction. A failed flush
// drops only that buffer's rows: the error is logged and counted, and the
// run continues with the next block.
func flushFacts[T any](ctx context.Context, log *slog.Logger, t *batch.Tracker, rows []T,
	insert func(context.Context, []T) error) bool {

	if len(rows) == 0 {
		return true
	}
	if err := insert(ctx, rows); err != nil {
		log.Warn("batch flush failed, rows dropped", "rows", len(rows), "error", err)
		return false
	}
	t.Add(len(rows))
	return true
}

// Field parsing helpers. Except for coordinates, all of them treat
// unparseable input as absent rather than failing the row.

var dateFormats = []string{"01/02/2006", "2006-01-02"}

var timestampFormats = []string{
	"01/02/2006 03:04:05 PM",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseDate(val string) *time.Time {
	val = strings.TrimSpace(val)
	for _, f := range dateFormats {
		if t, err := time.Parse(f, val); err == nil {
			return &t
		}
	}
	return nil
}

func parseTimestamp(val string) *time.Time {
	val = strings.TrimSpace(val)
	for _, f := range timestampFormats {
		if t, err := time.Parse(f, val); err == nil {
			return &t
		}
	}
	return nil
}

// parseISODate handles Socrata JSON dates such as "2015-06-23T00:00:00.000".
func parseISODate(val string) *time.Time {
	val = strings.TrimSpace(val)
	if i := strings.IndexByte(val, 'T'); i >= 0 {
		val = val[:i]
	}
	if t, err := time.Parse("2006-01-02", val); err == nil {
		return &t
	}
	return nil
}

func parseBoolFlag(val string) *bool {
	v := strings.ToUpper(strings.TrimSpace(val))
	var b bool
	switch v {
	case "Y", "YES", "TRUE", "1":
		b = true
	case "N", "NO", "FALSE", "0":
		b = false
	default:
		return nil
	}
	return &b
}

func parseFloatPtr(val string) *float64 {
	v := strings.TrimSpace(val)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil
	}
	return &f
}

func parseIntPtr(val string) *int {
	v := strings.TrimSpace(val)
	if v == "" {
		return nil
	}
	// Columns such as PROCESSING_TIME arrive as "14.0".
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil
	}
	i := int(f)
	return &i
}

// parseCoord returns 0 for a blank coordinate; zero is the store's
// "no point" sentinel. A non-blank value that does not parse is a row
// error so the caller skips the whole row.
func parseCoord(val string) (float64, error) {
	v := strings.TrimSpace(val)
	if v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid coordinate %q", val)
	}
	return f, nil
}

func parseCoords(latVal, lonVal string) (lat, lon float64, err error) {
	if lat, err = parseCoord(latVal); err != nil {
		return 0, 0, err
	}
	if lon, err = parseCoord(lonVal); err != nil {
		return 0, 0, err
	}
	return lat, lon, nil
}
