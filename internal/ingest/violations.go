package ingest

import (
	"context"
	"errors"
	"io"

	"github.com/civitas-chicago/civitas/internal/address"
	"github.com/civitas-chicago/civitas/internal/batch"
	"github.com/civitas-chicago/civitas/internal/store"
)

const sourceViolations = "building_violations"

// RunViolations ingests the building-violations CSV. Structured street
// columns are preferred; the free-form ADDRESS column is the fallback.
func (p *Pipeline) RunViolations(ctx context.Context, csvPath string) error {
	t, err := batch.Open(ctx, p.Store, p.Log, sourceViolations, csvPath)
	if err != nil {
		return err
	}
	defer t.Close(ctx)

	file, err := OpenCSV(csvPath)
	if err != nil {
		return err
	}
	defer file.Close()

	skipped := 0
	buf := make([]store.ViolationFact, 0, p.batchSize())

	for {
		row, err := file.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			p.Log.Warn("row skipped", "source", sourceViolations, "error", err)
			skipped++
			continue
		}

		parsed := p.Std.Parse(address.Input{
			RawAddress:      row.Get("ADDRESS"),
			StreetNumber:    row.Get("STREET NUMBER"),
			StreetDirection: row.Get("STREET DIRECTION"),
			StreetName:      row.Get("STREET NAME"),
			StreetType:      row.Get("STREET TYPE"),
		})

		lat, lon, err := parseCoords(row.Get("LATITUDE"), row.Get("LONGITUDE"))
		if err != nil {
			p.Log.Warn("row skipped", "source", sourceViolations, "error", err)
			skipped++
			continue
		}

		locSK, err := p.Store.UpsertLocation(ctx, parsed, lat, lon)
		if err != nil {
			return err
		}
		if locSK == 0 {
			skipped++
			continue
		}

		buf = append(buf, store.ViolationFact{
			LocationSK:         locSK,
			SourceID:           row.Get("ID"),
			ViolationDate:      parseDate(row.Get("VIOLATION DATE")),
			LastModifiedDate:   parseDate(row.Get("VIOLATION LAST MODIFIED DATE")),
			ViolationCode:      row.Get("VIOLATION CODE"),
			ViolationStatus:    row.Get("VIOLATION STATUS"),
			StatusDate:         parseDate(row.Get("VIOLATION STATUS DATE")),
			Description:        row.Get("VIOLATION DESCRIPTION"),
			Ordinance:          row.Get("VIOLATION ORDINANCE"),
			InspectorComments:  row.Get("VIOLATION INSPECTOR COMMENTS"),
			InspectionNumber:   row.Get("INSPECTION NUMBER"),
			InspectionStatus:   row.Get("INSPECTION STATUS"),
			InspectionCategory: row.Get("INSPECTION CATEGORY"),
			DepartmentBureau:   row.Get("DEPARTMENT BUREAU"),
			SourceDataset:      sourceViolations,
			BatchID:            t.BatchID(),
		})

		if len(buf) >= p.batchSize() {
			flushFacts(ctx, p.Log, t, buf, p.Store.InsertViolations)
			buf = buf[:0]
			p.Log.Info("violations progress", "loaded", t.Committed())
		}
	}

	flushFacts(ctx, p.Log, t, buf, p.Store.InsertViolations)

	if err := t.Complete(ctx); err != nil {
		return err
	}
	p.Log.Info("violations complete", "loaded", t.Committed(), "skipped", skipped)
	return nil
}
