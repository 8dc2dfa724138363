package store

// schemaDDL bootstraps the canonical store. Statements are idempotent so
// EnsureSchema can run on every start. Geographic points are plain lat/lon
// columns; geospatial lookup uses a bounding-box approximation rather than
// PostGIS.
var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS dim_location (
		location_sk               BIGSERIAL PRIMARY KEY,
		full_address_standardized TEXT NOT NULL UNIQUE,
		house_number              TEXT,
		street_direction          TEXT,
		street_name               TEXT,
		street_type               TEXT,
		unit                      TEXT,
		zip                       TEXT,
		lat                       DOUBLE PRECISION,
		lon                       DOUBLE PRECISION,
		source_address_raw        TEXT,
		city_id                   INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE INDEX IF NOT EXISTS dim_location_street_zip_idx
		ON dim_location (house_number, street_name, zip)`,
	`CREATE INDEX IF NOT EXISTS dim_location_lat_lon_idx
		ON dim_location (lat, lon)`,

	`CREATE TABLE IF NOT EXISTS dim_parcel (
		parcel_sk   BIGSERIAL PRIMARY KEY,
		parcel_id   TEXT NOT NULL UNIQUE,
		location_sk BIGINT NOT NULL REFERENCES dim_location (location_sk),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS ingestion_batch (
		ingestion_batch_id BIGSERIAL PRIMARY KEY,
		source_dataset     TEXT NOT NULL,
		file_path          TEXT NOT NULL DEFAULT '',
		status             TEXT NOT NULL DEFAULT 'running',
		rows_loaded        INTEGER NOT NULL DEFAULT 0,
		started_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		completed_at       TIMESTAMPTZ
	)`,

	`CREATE TABLE IF NOT EXISTS fact_violation (
		fact_id                 BIGSERIAL PRIMARY KEY,
		location_sk             BIGINT NOT NULL REFERENCES dim_location (location_sk),
		source_id               TEXT UNIQUE,
		violation_date          DATE,
		violation_last_modified DATE,
		violation_code          TEXT,
		violation_status        TEXT,
		violation_status_date   DATE,
		violation_description   TEXT,
		violation_ordinance     TEXT,
		inspector_comments      TEXT,
		inspection_number       TEXT,
		inspection_status       TEXT,
		inspection_category     TEXT,
		department_bureau       TEXT,
		source_dataset          TEXT NOT NULL,
		ingestion_batch_id      BIGINT NOT NULL REFERENCES ingestion_batch (ingestion_batch_id)
	)`,

	`CREATE TABLE IF NOT EXISTS fact_inspection (
		fact_id            BIGSERIAL PRIMARY KEY,
		location_sk        BIGINT NOT NULL REFERENCES dim_location (location_sk),
		source_id          TEXT UNIQUE,
		dba_name           TEXT,
		facility_type      TEXT,
		risk_level         TEXT,
		inspection_date    DATE,
		inspection_type    TEXT,
		results            TEXT,
		violations_text    TEXT,
		source_dataset     TEXT NOT NULL,
		ingestion_batch_id BIGINT NOT NULL REFERENCES ingestion_batch (ingestion_batch_id)
	)`,

	`CREATE TABLE IF NOT EXISTS fact_permit (
		fact_id                BIGSERIAL PRIMARY KEY,
		location_sk            BIGINT NOT NULL REFERENCES dim_location (location_sk),
		parcel_sk              BIGINT REFERENCES dim_parcel (parcel_sk),
		source_id              TEXT UNIQUE,
		permit_number          TEXT,
		permit_status          TEXT,
		permit_type            TEXT,
		application_start_date DATE,
		issue_date             DATE,
		processing_time        INTEGER,
		total_fee              DOUBLE PRECISION,
		work_description       TEXT,
		source_dataset         TEXT NOT NULL,
		ingestion_batch_id     BIGINT NOT NULL REFERENCES ingestion_batch (ingestion_batch_id)
	)`,

	`CREATE TABLE IF NOT EXISTS fact_311 (
		fact_id            BIGSERIAL PRIMARY KEY,
		location_sk        BIGINT NOT NULL REFERENCES dim_location (location_sk),
		source_id          TEXT UNIQUE,
		sr_type            TEXT,
		sr_short_code      TEXT,
		status             TEXT,
		created_date       TIMESTAMPTZ,
		closed_date        TIMESTAMPTZ,
		source_dataset     TEXT NOT NULL,
		ingestion_batch_id BIGINT NOT NULL REFERENCES ingestion_batch (ingestion_batch_id)
	)`,

	`CREATE TABLE IF NOT EXISTS fact_tax_lien (
		fact_id                BIGSERIAL PRIMARY KEY,
		parcel_sk              BIGINT REFERENCES dim_parcel (parcel_sk),
		location_sk            BIGINT REFERENCES dim_location (location_sk),
		pin                    TEXT,
		tax_sale_year          INTEGER,
		lien_type              TEXT,
		from_year              INTEGER,
		to_year                INTEGER,
		sold_at_sale           BOOLEAN,
		tax_amount_offered     DOUBLE PRECISION,
		penalty_amount_offered DOUBLE PRECISION,
		total_amount_offered   DOUBLE PRECISION,
		total_amount_forfeited DOUBLE PRECISION,
		buyer_name             TEXT,
		source_dataset         TEXT NOT NULL,
		ingestion_batch_id     BIGINT NOT NULL REFERENCES ingestion_batch (ingestion_batch_id),
		UNIQUE (pin, lien_type, tax_sale_year, from_year, to_year)
	)`,

	`CREATE TABLE IF NOT EXISTS fact_vacant_building (
		fact_id                 BIGSERIAL PRIMARY KEY,
		location_sk             BIGINT NOT NULL REFERENCES dim_location (location_sk),
		source_id               TEXT UNIQUE,
		docket_number           TEXT,
		violation_number        TEXT,
		issued_date             DATE,
		last_hearing_date       DATE,
		violation_type          TEXT,
		entity_or_person        TEXT,
		disposition_description TEXT,
		total_fines             DOUBLE PRECISION,
		current_amount_due      DOUBLE PRECISION,
		total_paid              DOUBLE PRECISION,
		source_dataset          TEXT NOT NULL,
		ingestion_batch_id      BIGINT NOT NULL REFERENCES ingestion_batch (ingestion_batch_id)
	)`,
}
