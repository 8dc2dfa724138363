package store

import (
	"context"
	"sync"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civitas-chicago/civitas/internal/address"
)

func parsedAddr(t *testing.T, raw string) address.Parsed {
	t.Helper()
	p := address.NewStandardizer().Parse(address.Input{RawAddress: raw})
	require.NotEmpty(t, p.FullAddress)
	return p
}

func TestUpsertLocationIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	p := parsedAddr(t, "123 N Main St, Chicago IL 60601")

	sk1, err := m.UpsertLocation(ctx, p, 0, 0)
	require.NoError(t, err)
	sk2, err := m.UpsertLocation(ctx, p, 0, 0)
	require.NoError(t, err)

	assert.Equal(t, sk1, sk2)
	assert.Equal(t, 1, m.LocationCount())
}

func TestUpsertLocationEmptyCanonical(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	sk, err := m.UpsertLocation(ctx, address.Parsed{Confidence: address.ConfidenceFailed}, 0, 0)
	require.NoError(t, err)
	assert.Zero(t, sk)
	assert.Zero(t, m.LocationCount())
}

func TestUpsertLocationConcurrent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	p := parsedAddr(t, "456 W Division St, Chicago IL 60622")

	const workers = 32
	sks := make([]int64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sk, err := m.UpsertLocation(ctx, p, 41.9, -87.6)
			assert.NoError(t, err)
			sks[i] = sk
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, m.LocationCount())
	for _, sk := range sks {
		assert.Equal(t, sks[0], sk)
	}
}

func TestUpsertLocationFirstWriterKeepsCoordinates(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	p := parsedAddr(t, "789 S State St, Chicago IL 60605")

	_, err := m.UpsertLocation(ctx, p, 41.87, -87.63)
	require.NoError(t, err)
	_, err = m.UpsertLocation(ctx, p, 12.34, -56.78)
	require.NoError(t, err)

	loc, err := m.LocationByAddress(ctx, p.FullAddress)
	require.NoError(t, err)
	assert.Equal(t, 41.87, loc.Lat)
	assert.Equal(t, -87.63, loc.Lon)
}

func TestUpsertParcelLastWriterWins(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	loc1, err := m.UpsertLocation(ctx, parsedAddr(t, "100 N Clark St, Chicago IL 60602"), 0, 0)
	require.NoError(t, err)
	loc2, err := m.UpsertLocation(ctx, parsedAddr(t, "200 N Clark St, Chicago IL 60602"), 0, 0)
	require.NoError(t, err)

	const pin = "14081200180000"
	sk1, err := m.UpsertParcel(ctx, pin, loc1)
	require.NoError(t, err)
	sk2, err := m.UpsertParcel(ctx, pin, loc2)
	require.NoError(t, err)

	assert.Equal(t, sk1, sk2)
	parcel, loc, err := m.ParcelByPIN(ctx, pin)
	require.NoError(t, err)
	assert.Equal(t, pin, parcel.ParcelID)
	assert.Equal(t, loc2, loc.LocationSK)
}

func TestParcelByPINNotFound(t *testing.T) {
	m := NewMemory()
	_, _, err := m.ParcelByPIN(context.Background(), "14081200180000")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocationByStreetZip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	sk, err := m.UpsertLocation(ctx, parsedAddr(t, "123 N Main St, Chicago IL 60601"), 0, 0)
	require.NoError(t, err)

	loc, err := m.LocationByStreetZip(ctx, "123", "MAIN", "60601")
	require.NoError(t, err)
	assert.Equal(t, sk, loc.LocationSK)

	_, err = m.LocationByStreetZip(ctx, "123", "MAIN", "60602")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNearestLocation(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	near, err := m.UpsertLocation(ctx, parsedAddr(t, "100 N State St, Chicago IL 60602"), 41.8838, -87.6278)
	require.NoError(t, err)
	_, err = m.UpsertLocation(ctx, parsedAddr(t, "4801 W Madison St, Chicago IL 60644"), 41.8808, -87.7450)
	require.NoError(t, err)
	// No coordinates, never a geospatial candidate.
	_, err = m.UpsertLocation(ctx, parsedAddr(t, "200 N Clark St, Chicago IL 60601"), 0, 0)
	require.NoError(t, err)

	loc, err := m.NearestLocation(ctx, 41.8840, -87.6280, 150)
	require.NoError(t, err)
	assert.Equal(t, near, loc.LocationSK)

	_, err = m.NearestLocation(ctx, 42.5, -88.5, 150)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBatchLifecycle(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	m := NewMemoryWithClock(clock)

	id1, err := m.CreateBatch(ctx, "building_violations", "data/violations.csv")
	require.NoError(t, err)
	id2, err := m.CreateBatch(ctx, "food_inspections", "data/inspections.csv")
	require.NoError(t, err)

	require.NoError(t, m.FinishBatch(ctx, id1, BatchComplete, 42))
	require.NoError(t, m.FinishBatch(ctx, id2, BatchFailed, 7))

	batches, err := m.ListBatches(ctx)
	require.NoError(t, err)
	require.Len(t, batches, 2)

	// Equal start times order by id descending.
	assert.Equal(t, id2, batches[0].BatchID)
	assert.Equal(t, BatchFailed, batches[0].Status)
	assert.Equal(t, 7, batches[0].RowsLoaded)
	assert.Equal(t, id1, batches[1].BatchID)
	assert.Equal(t, BatchComplete, batches[1].Status)
	assert.Equal(t, 42, batches[1].RowsLoaded)

	assert.ErrorIs(t, m.FinishBatch(ctx, 9999, BatchComplete, 0), ErrNotFound)
}

func TestFactInsertDeduplicates(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	rows := []ViolationFact{
		{LocationSK: 1, SourceID: "V-1"},
		{LocationSK: 1, SourceID: "V-2"},
	}
	require.NoError(t, m.InsertViolations(ctx, rows))
	require.NoError(t, m.InsertViolations(ctx, rows))
	require.NoError(t, m.InsertViolations(ctx, []ViolationFact{{LocationSK: 2, SourceID: "V-3"}}))

	assert.Len(t, m.Violations(), 3)
}

func TestTaxLienNaturalKey(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	year := 2019
	lien := TaxLienFact{PIN: "14081200180000", LienType: "ANNUAL", TaxSaleYear: &year}
	require.NoError(t, m.InsertTaxLiens(ctx, []TaxLienFact{lien}))
	require.NoError(t, m.InsertTaxLiens(ctx, []TaxLienFact{lien}))

	other := lien
	other.LienType = "SCAVENGER"
	require.NoError(t, m.InsertTaxLiens(ctx, []TaxLienFact{other}))

	assert.Len(t, m.TaxLiens(), 2)
}
