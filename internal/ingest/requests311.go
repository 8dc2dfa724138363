package ingest

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/civitas-chicago/civitas/internal/address"
	"github.com/civitas-chicago/civitas/internal/batch"
	"github.com/civitas-chicago/civitas/internal/store"
)

const (
	source311        = "311_service_requests"
	batchSize311     = 10000
	progressEvery311 = 100000
)

// Run311 ingests the 311 service-requests CSV. The feed is by far the
// largest source, so it uses a bigger flush buffer and coarser progress
// logging. Rows flagged as duplicates by the city are skipped outright.
func (p *Pipeline) Run311(ctx context.Context, csvPath string) error {
	t, err := batch.Open(ctx, p.Store, p.Log, source311, csvPath)
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
	seen := 0
	nextProgress := progressEvery311
	buf := make([]store.Request311Fact, 0, batchSize311)

	for {
		row, err := file.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			p.Log.Warn("row skipped", "source", source311, "error", err)
			skipped++
			continue
		}
		seen++

		switch strings.ToUpper(strings.TrimSpace(row.Get("DUPLICATE"))) {
		case "TRUE", "1", "YES":
			skipped++
			continue
		}
		if row.Get("STREET_NAME") == "" && row.Get("STREET_ADDRESS") == "" {
			skipped++
			continue
		}

		parsed := p.Std.Parse(address.Input{
			StreetNumber:    row.Get("STREET_NUMBER"),
			StreetDirection: row.Get("STREET_DIRECTION"),
			StreetName:      row.Get("STREET_NAME"),
			StreetType:      row.Get("STREET_TYPE"),
			RawAddress:      row.Get("STREET_ADDRESS"),
			Zip:             row.Get("ZIP_CODE"),
		})

		lat, lon, err := parseCoords(row.Get("LATITUDE"), row.Get("LONGITUDE"))
		if err != nil {
			p.Log.Warn("row skipped", "source", source311, "error", err)
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

		buf = append(buf, store.Request311Fact{
			LocationSK:    locSK,
			SourceID:      row.Get("SR_NUMBER"),
			SRType:        row.Get("SR_TYPE"),
			SRShortCode:   row.Get("SR_SHORT_CODE"),
			Status:        row.Get("STATUS"),
			CreatedDate:   parseTimestamp(row.Get("CREATED_DATE")),
			ClosedDate:    parseTimestamp(row.Get("CLOSED_DATE")),
			SourceDataset: source311,
			BatchID:       t.BatchID(),
		})

		if len(buf) >= batchSize311 {
			flushFacts(ctx, p.Log, t, buf, p.Store.Insert311Requests)
			buf = buf[:0]
		}
		if seen >= nextProgress {
			p.Log.Info("311 progress", "read", seen, "loaded", t.Committed())
			nextProgress += progressEvery311
		}
	}

	flushFacts(ctx, p.Log, t, buf, p.Store.Insert311Requests)

	if err := t.Complete(ctx); err != nil {
		return err
	}
	p.Log.Info("311 complete", "loaded", t.Committed(), "skipped", skipped)
	return nil
}
