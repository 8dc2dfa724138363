package ingest

import (
	"context"

	"github.com/civitas-chicago/civitas/internal/address"
	"github.com/civitas-chicago/civitas/internal/batch"
	"github.com/civitas-chicago/civitas/internal/store"
)

const sourceVacant = "vacant_building_violations"

// Package-level so tests can point the pipeline at a stub portal.
var endpointVacant = "https://data.cityofchicago.org/resource/kc9i-wq85.json"

// RunVacantBuildings ingests the vacant-building dockets from the Chicago
// data portal's JSON API. The feed only publishes a free-form
// property_address, so every row goes through the free-form parser.
func (p *Pipeline) RunVacantBuildings(ctx context.Context) error {
	t, err := batch.Open(ctx, p.Store, p.Log, sourceVacant, endpointVacant)
	if err != nil {
		return err
	}
	defer t.Close(ctx)

	skipped := 0
	buf := make([]store.VacantBuildingFact, 0, p.batchSize())

	err = p.Socrata.FetchJSON(ctx, endpointVacant, func(rows []map[string]any) error {
		for _, row := range rows {
			parsed := p.Std.Parse(address.Input{
				RawAddress: jsonStr(row, "property_address"),
			})

			lat, lon, err := parseCoords(jsonStr(row, "latitude"), jsonStr(row, "longitude"))
			if err != nil {
				p.Log.Warn("row skipped", "source", sourceVacant, "error", err)
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

			docket := jsonStr(row, "docket_number")
			violationNum := jsonStr(row, "violation_number")
			sourceID := docket
			if sourceID == "" {
				sourceID = violationNum
			}

			buf = append(buf, store.VacantBuildingFact{
				LocationSK:       locSK,
				SourceID:         sourceID,
				DocketNumber:     docket,
				ViolationNumber:  violationNum,
				IssuedDate:       parseISODate(jsonStr(row, "issued_date")),
				LastHearingDate:  parseISODate(jsonStr(row, "last_hearing_date")),
				ViolationType:    jsonStr(row, "violation_type"),
				EntityOrPerson:   jsonStr(row, "entity_or_person_s_"),
				Disposition:      jsonStr(row, "disposition_description"),
				TotalFines:       parseFloatPtr(jsonStr(row, "total_fines")),
				CurrentAmountDue: parseFloatPtr(jsonStr(row, "current_amount_due")),
				TotalPaid:        parseFloatPtr(jsonStr(row, "total_paid")),
				SourceDataset:    sourceVacant,
				BatchID:          t.BatchID(),
			})

			if len(buf) >= p.batchSize() {
				flushFacts(ctx, p.Log, t, buf, p.Store.InsertVacantBuildings)
				buf = buf[:0]
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	flushFacts(ctx, p.Log, t, buf, p.Store.InsertVacantBuildings)

	if err := t.Complete(ctx); err != nil {
		return err
	}
	p.Log.Info("vacant buildings complete", "loaded", t.Committed(), "skipped", skipped)
	return nil
}
