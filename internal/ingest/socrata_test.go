package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civitas-chicago/civitas/internal/address"
	"github.com/civitas-chicago/civitas/internal/store"
)

// storeWithParcel seeds a memory store with one location and one parcel
// for PIN 14081200180000.
func storeWithParcel(t *testing.T) *store.Memory {
	t.Helper()
	ctx := context.Background()
	m := store.NewMemory()
	std := address.NewStandardizer()

	locSK, err := m.UpsertLocation(ctx,
		std.Parse(address.Input{RawAddress: "4801 W Madison St, Chicago IL 60644"}), 0, 0)
	require.NoError(t, err)
	_, err = m.UpsertParcel(ctx, "14081200180000", locSK)
	require.NoError(t, err)
	return m
}

func testSocrataClient(pageSize int) *SocrataClient {
	c := NewSocrataClient("secret-token", testLogger())
	c.PageSize = pageSize
	return c
}

func TestFetchCSVPaging(t *testing.T) {
	var offsets []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret-token", r.Header.Get("X-App-Token"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("$offset"))
		offsets = append(offsets, offset)

		w.Header().Set("Content-Type", "text/csv")
		// Two full pages, then a short page.
		switch offset {
		case 0, 2:
			fmt.Fprintf(w, "pin,amount\n%d-A,10\n%d-B,20\n", offset, offset)
		default:
			fmt.Fprint(w, "pin,amount\nlast,30\n")
		}
	}))
	defer srv.Close()

	var pins []string
	err := testSocrataClient(2).FetchCSV(context.Background(), srv.URL, func(rows []Record) error {
		for _, row := range rows {
			pins = append(pins, row.Get("pin"))
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []int{0, 2, 4}, offsets)
	assert.Equal(t, []string{"0-A", "0-B", "2-A", "2-B", "last"}, pins)
}

func TestFetchCSVRetriesServerErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "upstream busy", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, "pin\n123\n")
	}))
	defer srv.Close()

	var rowsSeen int
	err := testSocrataClient(50).FetchCSV(context.Background(), srv.URL, func(rows []Record) error {
		rowsSeen += len(rows)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, rowsSeen)
}

func TestFetchCSVClientErrorIsPermanent(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "no such dataset", http.StatusNotFound)
	}))
	defer srv.Close()

	err := testSocrataClient(50).FetchCSV(context.Background(), srv.URL, func(rows []Record) error {
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestFetchJSONPaging(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.Atoi(r.URL.Query().Get("$offset"))
		w.Header().Set("Content-Type", "application/json")
		if offset == 0 {
			fmt.Fprint(w, `[{"docket_number":"25-1","total_fines":500},{"docket_number":"25-2"}]`)
			return
		}
		fmt.Fprint(w, `[{"docket_number":"25-3"}]`)
	}))
	defer srv.Close()

	var dockets []string
	err := testSocrataClient(2).FetchJSON(context.Background(), srv.URL, func(rows []map[string]any) error {
		for _, row := range rows {
			dockets = append(dockets, jsonStr(row, "docket_number"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"25-1", "25-2", "25-3"}, dockets)
}

func TestJSONStr(t *testing.T) {
	row := map[string]any{"a": " text ", "b": 42.5, "c": nil}
	assert.Equal(t, "text", jsonStr(row, "a"))
	assert.Equal(t, "42.5", jsonStr(row, "b"))
	assert.Equal(t, "", jsonStr(row, "c"))
	assert.Equal(t, "", jsonStr(row, "missing"))
}

func TestRunTaxLiensAgainstStubPortal(t *testing.T) {
	annual := "pin,tax_sale_year,sold_at_sale,tax_amount_offered,penalty_amount_offered,total_tax_and_penalty_amount_offered,total_amount_forfeited\n" +
		"14-08-120-018-0000,2019,Y,1200.50,90.25,1290.75,0\n" +
		"bad-pin,2019,N,,,,\n"
	scavenger := "pin,tax_sale_year,sold_at_sale,total_amount_paid,buyer_name,from_year,to_year\n" +
		"14081200180000,2020,N,300,ACME HOLDINGS,2015,2019\n"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		if r.URL.Path == "/annual" {
			fmt.Fprint(w, annual)
			return
		}
		fmt.Fprint(w, scavenger)
	}))
	defer srv.Close()

	orig := taxLienFeeds
	taxLienFeeds = []taxLienFeed{
		{lienType: "ANNUAL", endpoint: srv.URL + "/annual", cols: orig[0].cols},
		{lienType: "SCAVENGER", endpoint: srv.URL + "/scavenger", cols: orig[1].cols},
	}
	defer func() { taxLienFeeds = orig }()

	m := storeWithParcel(t)
	p := testPipeline(m)
	p.Socrata = testSocrataClient(50)

	require.NoError(t, p.RunTaxLiens(context.Background()))

	liens := m.TaxLiens()
	require.Len(t, liens, 2)

	assert.Equal(t, "ANNUAL", liens[0].LienType)
	assert.Equal(t, "14081200180000", liens[0].PIN)
	assert.NotZero(t, liens[0].ParcelSK)
	require.NotNil(t, liens[0].SoldAtSale)
	assert.True(t, *liens[0].SoldAtSale)
	require.NotNil(t, liens[0].TotalAmount)
	assert.Equal(t, 1290.75, *liens[0].TotalAmount)
	assert.Nil(t, liens[0].FromYear)

	assert.Equal(t, "SCAVENGER", liens[1].LienType)
	assert.Equal(t, "ACME HOLDINGS", liens[1].BuyerName)
	require.NotNil(t, liens[1].FromYear)
	assert.Equal(t, 2015, *liens[1].FromYear)
	assert.Nil(t, liens[1].TaxAmount)
}

func TestRunAllContinuesAfterPipelineFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/vacant" {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, "[]")
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		fmt.Fprint(w, "pin\n")
	}))
	defer srv.Close()

	origFeeds, origVacant := taxLienFeeds, endpointVacant
	taxLienFeeds = []taxLienFeed{
		{lienType: "ANNUAL", endpoint: srv.URL + "/annual", cols: origFeeds[0].cols},
		{lienType: "SCAVENGER", endpoint: srv.URL + "/scavenger", cols: origFeeds[1].cols},
	}
	endpointVacant = srv.URL + "/vacant"
	defer func() { taxLienFeeds, endpointVacant = origFeeds, origVacant }()

	m := store.NewMemory()
	p := testPipeline(m)
	p.Socrata = testSocrataClient(50)

	src := Sources{
		ViolationsCSV:  filepath.Join(t.TempDir(), "missing.csv"),
		InspectionsCSV: writeTempCSV(t, "Address\n"),
		PermitsCSV:     writeTempCSV(t, "ID\n"),
		Requests311CSV: writeTempCSV(t, "SR_NUMBER\n"),
	}

	err := p.RunAll(context.Background(), src)
	require.Error(t, err)

	// One dataset failing still lets the tax-lien pass run and finish.
	batches, err := m.ListBatches(context.Background())
	require.NoError(t, err)

	status := map[string]store.BatchStatus{}
	for _, b := range batches {
		status[b.SourceDataset] = b.Status
	}
	assert.Equal(t, store.BatchFailed, status[sourceViolations])
	assert.Equal(t, store.BatchComplete, status[sourceTaxLiens])
}
