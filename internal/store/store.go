// Package store defines the canonical location/parcel store contract shared
// by the ingestion pipelines and the runtime resolution service, together
// with its Postgres and in-memory implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/civitas-chicago/civitas/internal/address"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("store: not found")

// CityChicago is the city_id assigned to every location; all ingested
// datasets are City of Chicago sources.
const CityChicago = 1

// Location is a canonical address entity. It is created exactly once per
// distinct canonical string and never deleted. Zero Lat/Lon means no
// geographic point is attached.
type Location struct {
	LocationSK       int64
	FullAddress      string
	HouseNumber      string
	StreetDirection  string
	StreetName       string
	StreetType       string
	Unit             string
	Zip              string
	Lat              float64
	Lon              float64
	SourceAddressRaw string
	CityID           int
}

// Parcel associates a 14-digit Cook County PIN with a location. The
// association is last-writer-wins on re-ingestion.
type Parcel struct {
	ParcelSK   int64
	ParcelID   string
	LocationSK int64
	UpdatedAt  time.Time
}

// BatchStatus is the lifecycle state of an ingestion batch.
type BatchStatus string

const (
	BatchRunning  BatchStatus = "running"
	BatchComplete BatchStatus = "complete"
	BatchFailed   BatchStatus = "failed"
)

// Batch records the provenance of one ingestion run. Status is terminal
// once complete or failed; RowsLoaded is meaningful only then.
type Batch struct {
	BatchID       int64
	SourceDataset string
	FilePath      string
	Status        BatchStatus
	RowsLoaded    int
	StartedAt     time.Time
	CompletedAt   time.Time
}

// Store is the canonical location/parcel store. Implementations must make
// UpsertLocation race-safe: any number of concurrent callers presenting the
// same new canonical address create exactly one row and all receive its key.
type Store interface {
	// UpsertLocation resolves a parsed address to a location key, creating
	// the row if absent. Returns 0 without touching the store when the
	// canonical string is empty. Coordinates are attached only when both
	// are non-zero and only by the writer that creates the row.
	UpsertLocation(ctx context.Context, parsed address.Parsed, lat, lon float64) (int64, error)

	// UpsertParcel inserts or updates the parcel for a normalized PIN,
	// overwriting the location association on conflict (last-writer-wins)
	// and refreshing its timestamp.
	UpsertParcel(ctx context.Context, pin string, locationSK int64) (int64, error)

	// ParcelByPIN returns the parcel for a normalized PIN joined to its
	// location. Returns ErrNotFound when the PIN is unknown.
	ParcelByPIN(ctx context.Context, pin string) (Parcel, Location, error)

	// ParcelForLocation returns any parcel associated with a location, or
	// ErrNotFound.
	ParcelForLocation(ctx context.Context, locationSK int64) (Parcel, error)

	// LocationByAddress returns the location keyed by a canonical string,
	// or ErrNotFound.
	LocationByAddress(ctx context.Context, fullAddress string) (Location, error)

	// LocationByStreetZip matches on the house number, street name and zip
	// triple, or ErrNotFound.
	LocationByStreetZip(ctx context.Context, houseNumber, streetName, zip string) (Location, error)

	// NearestLocation returns the closest coordinate-bearing location
	// within radiusMeters, ties broken by lowest surrogate key, or
	// ErrNotFound.
	NearestLocation(ctx context.Context, lat, lon, radiusMeters float64) (Location, error)

	// CreateBatch opens an ingestion batch in status running.
	CreateBatch(ctx context.Context, sourceDataset, filePath string) (int64, error)

	// FinishBatch writes a batch's terminal status, row count and
	// completion timestamp.
	FinishBatch(ctx context.Context, batchID int64, status BatchStatus, rowsLoaded int) error

	// ListBatches returns all batches, most recently started first.
	ListBatches(ctx context.Context) ([]Batch, error)

	// Fact inserts are transactional bulk writes deduplicated on each
	// table's natural key; conflicting rows are silently ignored.
	InsertViolations(ctx context.Context, rows []ViolationFact) error
	InsertInspections(ctx context.Context, rows []InspectionFact) error
	InsertPermits(ctx context.Context, rows []PermitFact) error
	Insert311Requests(ctx context.Context, rows []Request311Fact) error
	InsertTaxLiens(ctx context.Context, rows []TaxLienFact) error
	InsertVacantBuildings(ctx context.Context, rows []VacantBuildingFact) error

	Close() error
}
