package ingest

import (
	"context"
	"errors"
	"io"
	"regexp"

	"github.com/civitas-chicago/civitas/internal/address"
	"github.com/civitas-chicago/civitas/internal/batch"
	"github.com/civitas-chicago/civitas/internal/store"
)

const sourcePermits = "building_permits"

// PIN_LIST is free text that may hold several PINs.
var rePinSplit = regexp.MustCompile(`[;,\s]+`)

// RunPermits ingests the building-permits CSV. Permits carry PINs, so this
// pipeline also maintains the parcel dimension: the first valid 14-digit
// PIN in PIN_LIST is upserted against the row's location.
func (p *Pipeline) RunPermits(ctx context.Context, csvPath string) error {
	t, err := batch.Open(ctx, p.Store, p.Log, sourcePermits, csvPath)
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
	buf := make([]store.PermitFact, 0, p.batchSize())

	for {
		row, err := file.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			p.Log.Warn("row skipped", "source", sourcePermits, "error", err)
			skipped++
			continue
		}

		parsed := p.Std.Parse(address.Input{
			StreetNumber:    row.Get("STREET_NUMBER"),
			StreetDirection: row.Get("STREET_DIRECTION"),
			StreetName:      row.Get("STREET_NAME"),
		})

		lat, lon, err := parseCoords(row.Get("LATITUDE"), row.Get("LONGITUDE"))
		if err != nil {
			p.Log.Warn("row skipped", "source", sourcePermits, "error", err)
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

		var parcelSK int64
		for _, candidate := range rePinSplit.Split(row.Get("PIN_LIST"), -1) {
			pin := address.NormalizePin(candidate)
			if pin == "" {
				continue
			}
			parcelSK, err = p.Store.UpsertParcel(ctx, pin, locSK)
			if err != nil {
				return err
			}
			break
		}

		buf = append(buf, store.PermitFact{
			LocationSK:           locSK,
			ParcelSK:             parcelSK,
			SourceID:             row.Get("ID"),
			PermitNumber:         row.Get("PERMIT#"),
			PermitStatus:         row.Get("PERMIT_STATUS"),
			PermitType:           row.Get("PERMIT_TYPE"),
			ApplicationStartDate: parseDate(row.Get("APPLICATION_START_DATE")),
			IssueDate:            parseDate(row.Get("ISSUE_DATE")),
			ProcessingDays:       parseIntPtr(row.Get("PROCESSING_TIME")),
			TotalFee:             parseFloatPtr(row.Get("TOTAL_FEE")),
			WorkDescription:      row.Get("WORK_DESCRIPTION"),
			SourceDataset:        sourcePermits,
			BatchID:              t.BatchID(),
		})

		if len(buf) >= p.batchSize() {
			flushFacts(ctx, p.Log, t, buf, p.Store.InsertPermits)
			buf = buf[:0]
			p.Log.Info("permits progress", "loaded", t.Committed())
		}
	}

	flushFacts(ctx, p.Log, t, buf, p.Store.InsertPermits)

	if err := t.Complete(ctx); err != nil {
		return err
	}
	p.Log.Info("permits complete", "loaded", t.Committed(), "skipped", skipped)
	return nil
}
