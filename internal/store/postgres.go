package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	_ "github.com/lib/pq"

	"github.com/civitas-chicago/civitas/internal/address"
)

// metersPerDegreeLat is the approximate ground distance of one degree of
// latitude, used for the PostGIS-free bounding-box search.
const metersPerDegreeLat = 111320.0

// Postgres is the production Store backed by a Postgres database. All
// cross-pipeline concurrency control rides on the unique constraint over
// full_address_standardized.
type Postgres struct {
	db *sql.DB
}

var _ Store = (*Postgres)(nil)

// OpenPostgres connects to the database behind dsn and verifies the
// connection.
func OpenPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	return &Postgres{db: db}, nil
}

// DB exposes the underlying handle for health checks.
func (p *Postgres) DB() *sql.DB { return p.db }

// Close closes the database connection.
func (p *Postgres) Close() error { return p.db.Close() }

// EnsureSchema creates the store's tables and indexes if they are absent.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaDDL {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}

// UpsertLocation performs the optimistic insert-or-lookup: a conditional
// insert with conflict-ignore, then a read-after-write lookup when a
// concurrent writer already created the row. No duplicate-key error ever
// surfaces to the caller.
func (p *Postgres) UpsertLocation(ctx context.Context, parsed address.Parsed, lat, lon float64) (int64, error) {
	if parsed.FullAddress == "" {
		return 0, nil
	}

	var latArg, lonArg any
	if lat != 0 && lon != 0 {
		latArg, lonArg = lat, lon
	}

	var sk int64
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO dim_location
			(full_address_standardized, house_number, street_direction,
			 street_name, street_type, unit, zip, lat, lon,
			 source_address_raw, city_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (full_address_standardized) DO NOTHING
		RETURNING location_sk
	`,
		parsed.FullAddress,
		nullStr(parsed.HouseNumber), nullStr(parsed.StreetDirection),
		nullStr(parsed.StreetName), nullStr(parsed.StreetType),
		nullStr(parsed.Unit), nullStr(parsed.Zip),
		latArg, lonArg,
		parsed.FullAddress, CityChicago,
	).Scan(&sk)
	if err == nil {
		return sk, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to insert location: %w", err)
	}

	// Another writer created the row concurrently; fetch its key.
	err = p.db.QueryRowContext(ctx,
		`SELECT location_sk FROM dim_location WHERE full_address_standardized = $1`,
		parsed.FullAddress,
	).Scan(&sk)
	if err != nil {
		return 0, fmt.Errorf("failed to look up location after conflict: %w", err)
	}
	return sk, nil
}

// UpsertParcel inserts or updates the parcel for a PIN. Re-ingestion of a
// known PIN overwrites the location association and refreshes updated_at.
func (p *Postgres) UpsertParcel(ctx context.Context, pin string, locationSK int64) (int64, error) {
	var sk int64
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO dim_parcel (parcel_id, location_sk)
		VALUES ($1, $2)
		ON CONFLICT (parcel_id) DO UPDATE
			SET location_sk = EXCLUDED.location_sk, updated_at = NOW()
		RETURNING parcel_sk
	`, pin, locationSK).Scan(&sk)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert parcel %s: %w", pin, err)
	}
	return sk, nil
}

const locationColumns = `
	l.location_sk, l.full_address_standardized,
	COALESCE(l.house_number, ''), COALESCE(l.street_direction, ''),
	COALESCE(l.street_name, ''), COALESCE(l.street_type, ''),
	COALESCE(l.unit, ''), COALESCE(l.zip, ''),
	COALESCE(l.lat, 0), COALESCE(l.lon, 0),
	COALESCE(l.source_address_raw, ''), l.city_id`

func scanLocation(row *sql.Row) (Location, error) {
	var l Location
	err := row.Scan(
		&l.LocationSK, &l.FullAddress,
		&l.HouseNumber, &l.StreetDirection,
		&l.StreetName, &l.StreetType,
		&l.Unit, &l.Zip,
		&l.Lat, &l.Lon,
		&l.SourceAddressRaw, &l.CityID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Location{}, ErrNotFound
	}
	if err != nil {
		return Location{}, fmt.Errorf("failed to scan location: %w", err)
	}
	return l, nil
}

// ParcelByPIN joins the parcel for a PIN to its location.
func (p *Postgres) ParcelByPIN(ctx context.Context, pin string) (Parcel, Location, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT pa.parcel_sk, pa.parcel_id, pa.location_sk, pa.updated_at,
		       `+locationColumns+`
		FROM dim_parcel pa
		JOIN dim_location l ON l.location_sk = pa.location_sk
		WHERE pa.parcel_id = $1
	`, pin)

	var pr Parcel
	var l Location
	err := row.Scan(
		&pr.ParcelSK, &pr.ParcelID, &pr.LocationSK, &pr.UpdatedAt,
		&l.LocationSK, &l.FullAddress,
		&l.HouseNumber, &l.StreetDirection,
		&l.StreetName, &l.StreetType,
		&l.Unit, &l.Zip,
		&l.Lat, &l.Lon,
		&l.SourceAddressRaw, &l.CityID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Parcel{}, Location{}, ErrNotFound
	}
	if err != nil {
		return Parcel{}, Location{}, fmt.Errorf("failed to look up parcel %s: %w", pin, err)
	}
	return pr, l, nil
}

// ParcelForLocation returns any parcel tied to a location.
func (p *Postgres) ParcelForLocation(ctx context.Context, locationSK int64) (Parcel, error) {
	var pr Parcel
	err := p.db.QueryRowContext(ctx, `
		SELECT parcel_sk, parcel_id, location_sk, updated_at
		FROM dim_parcel
		WHERE location_sk = $1
		ORDER BY parcel_sk
		LIMIT 1
	`, locationSK).Scan(&pr.ParcelSK, &pr.ParcelID, &pr.LocationSK, &pr.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Parcel{}, ErrNotFound
	}
	if err != nil {
		return Parcel{}, fmt.Errorf("failed to look up parcel for location %d: %w", locationSK, err)
	}
	return pr, nil
}

// LocationByAddress matches a canonical string exactly.
func (p *Postgres) LocationByAddress(ctx context.Context, fullAddress string) (Location, error) {
	return scanLocation(p.db.QueryRowContext(ctx, `
		SELECT `+locationColumns+`
		FROM dim_location l
		WHERE l.full_address_standardized = $1
		LIMIT 1
	`, fullAddress))
}

// LocationByStreetZip matches the house number + street name + zip triple.
func (p *Postgres) LocationByStreetZip(ctx context.Context, houseNumber, streetName, zip string) (Location, error) {
	return scanLocation(p.db.QueryRowContext(ctx, `
		SELECT `+locationColumns+`
		FROM dim_location l
		WHERE l.house_number = $1
		  AND l.street_name  = $2
		  AND l.zip          = $3
		ORDER BY l.location_sk
		LIMIT 1
	`, houseNumber, streetName, zip))
}

// NearestLocation finds the closest coordinate-bearing location within
// radiusMeters via a lat/lon bounding box ordered by squared-degree
// distance. Ties break on the lowest surrogate key.
func (p *Postgres) NearestLocation(ctx context.Context, lat, lon, radiusMeters float64) (Location, error) {
	dLat := radiusMeters / metersPerDegreeLat
	cosLat := math.Cos(lat * math.Pi / 180)
	if cosLat < 0.01 {
		cosLat = 0.01
	}
	dLon := radiusMeters / (metersPerDegreeLat * cosLat)

	return scanLocation(p.db.QueryRowContext(ctx, `
		SELECT `+locationColumns+`
		FROM dim_location l
		WHERE l.lat IS NOT NULL AND l.lon IS NOT NULL
		  AND l.lat <> 0 AND l.lon <> 0
		  AND l.lat BETWEEN $1 - $3 AND $1 + $3
		  AND l.lon BETWEEN $2 - $4 AND $2 + $4
		ORDER BY (l.lat - $1) * (l.lat - $1) + (l.lon - $2) * (l.lon - $2) * $5,
		         l.location_sk
		LIMIT 1
	`, lat, lon, dLat, dLon, cosLat*cosLat))
}

// CreateBatch opens an ingestion batch in status running.
func (p *Postgres) CreateBatch(ctx context.Context, sourceDataset, filePath string) (int64, error) {
	var id int64
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO ingestion_batch (source_dataset, file_path, status)
		VALUES ($1, $2, 'running')
		RETURNING ingestion_batch_id
	`, sourceDataset, filePath).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create batch for %s: %w", sourceDataset, err)
	}
	return id, nil
}

// FinishBatch writes the terminal status for a batch.
func (p *Postgres) FinishBatch(ctx context.Context, batchID int64, status BatchStatus, rowsLoaded int) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE ingestion_batch
		   SET status = $2, rows_loaded = $3, completed_at = NOW()
		 WHERE ingestion_batch_id = $1
	`, batchID, string(status), rowsLoaded)
	if err != nil {
		return fmt.Errorf("failed to finish batch %d: %w", batchID, err)
	}
	return nil
}

// ListBatches returns all batches, most recently started first.
func (p *Postgres) ListBatches(ctx context.Context) ([]Batch, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT ingestion_batch_id, source_dataset, file_path, status,
		       rows_loaded, started_at, completed_at
		FROM ingestion_batch
		ORDER BY started_at DESC, ingestion_batch_id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	defer rows.Close()

	var out []Batch
	for rows.Next() {
		var b Batch
		var status string
		var completed sql.NullTime
		if err := rows.Scan(&b.BatchID, &b.SourceDataset, &b.FilePath, &status,
			&b.RowsLoaded, &b.StartedAt, &completed); err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		b.Status = BatchStatus(status)
		if completed.Valid {
			b.CompletedAt = completed.Time
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullInt(i *int) any {
	if i == nil {
		return nil
	}
	return *i
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func nullBool(b *bool) any {
	if b == nil {
		return nil
	}
	return *b
}

func nullSK(sk int64) any {
	if sk == 0 {
		return nil
	}
	return sk
}
