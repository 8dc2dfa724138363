package ingest

import (
	"context"
	"errors"
	"io"

	"github.com/civitas-chicago/civitas/internal/address"
	"github.com/civitas-chicago/civitas/internal/batch"
	"github.com/civitas-chicago/civitas/internal/store"
)

const sourceInspections = "food_inspections"

// RunInspections ingests the food-inspections CSV. The feed has free-form
// addresses only, with a separate zip column as a hint.
func (p *Pipeline) RunInspections(ctx context.Context, csvPath string) error {
	t, err := batch.Open(ctx, p.Store, p.Log, sourceInspections, csvPath)
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
	buf := make([]store.InspectionFact, 0, p.batchSize())

	for {
		row, err := file.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			p.Log.Warn("row skipped", "source", sourceInspections, "error", err)
			skipped++
			continue
		}

		parsed := p.Std.Parse(address.Input{
			RawAddress: row.Get("Address"),
			Zip:        row.Get("Zip"),
		})

		lat, lon, err := parseCoords(row.Get("Latitude"), row.Get("Longitude"))
		if err != nil {
			p.Log.Warn("row skipped", "source", sourceInspections, "error", err)
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

		buf = append(buf, store.InspectionFact{
			LocationSK:     locSK,
			SourceID:       row.Get("Inspection ID"),
			DBAName:        row.Get("DBA Name"),
			FacilityType:   row.Get("Facility Type"),
			RiskLevel:      row.Get("Risk"),
			InspectionDate: parseDate(row.Get("Inspection Date")),
			InspectionType: row.Get("Inspection Type"),
			Results:        row.Get("Results"),
			ViolationsText: row.Get("Violations"),
			SourceDataset:  sourceInspections,
			BatchID:        t.BatchID(),
		})

		if len(buf) >= p.batchSize() {
			flushFacts(ctx, p.Log, t, buf, p.Store.InsertInspections)
			buf = buf[:0]
			p.Log.Info("inspections progress", "loaded", t.Committed())
		}
	}

	flushFacts(ctx, p.Log, t, buf, p.Store.InsertInspections)

	if err := t.Complete(ctx); err != nil {
		return err
	}
	p.Log.Info("inspections complete", "loaded", t.Committed(), "skipped", skipped)
	return nil
}
