package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Fact flushes run as one transaction per buffer: a failed flush rolls back
// only its own rows. Natural-key conflicts are ignored so re-ingesting a
// dataset never duplicates facts.

func (p *Postgres) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// InsertViolations bulk-inserts building-violation facts.
func (p *Postgres) InsertViolations(ctx context.Context, rows []ViolationFact) error {
	return p.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO fact_violation
				(location_sk, source_id,
				 violation_date, violation_last_modified,
				 violation_code, violation_status, violation_status_date,
				 violation_description, violation_ordinance, inspector_comments,
				 inspection_number, inspection_status, inspection_category,
				 department_bureau, source_dataset, ingestion_batch_id)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
			ON CONFLICT DO NOTHING
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare violation insert: %w", err)
		}
		defer stmt.Close()

		for _, r := range rows {
			_, err := stmt.ExecContext(ctx,
				r.LocationSK, nullStr(r.SourceID),
				nullTime(r.ViolationDate), nullTime(r.LastModifiedDate),
				nullStr(r.ViolationCode), nullStr(r.ViolationStatus), nullTime(r.StatusDate),
				nullStr(r.Description), nullStr(r.Ordinance), nullStr(r.InspectorComments),
				nullStr(r.InspectionNumber), nullStr(r.InspectionStatus), nullStr(r.InspectionCategory),
				nullStr(r.DepartmentBureau), r.SourceDataset, r.BatchID,
			)
			if err != nil {
				return fmt.Errorf("failed to insert violation fact: %w", err)
			}
		}
		return nil
	})
}

// InsertInspections bulk-inserts food-inspection facts.
func (p *Postgres) InsertInspections(ctx context.Context, rows []InspectionFact) error {
	return p.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO fact_inspection
				(location_sk, source_id, dba_name, facility_type, risk_level,
				 inspection_date, inspection_type, results, violations_text,
				 source_dataset, ingestion_batch_id)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
			ON CONFLICT DO NOTHING
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare inspection insert: %w", err)
		}
		defer stmt.Close()

		for _, r := range rows {
			_, err := stmt.ExecContext(ctx,
				r.LocationSK, nullStr(r.SourceID),
				nullStr(r.DBAName), nullStr(r.FacilityType), nullStr(r.RiskLevel),
				nullTime(r.InspectionDate), nullStr(r.InspectionType),
				nullStr(r.Results), nullStr(r.ViolationsText),
				r.SourceDataset, r.BatchID,
			)
			if err != nil {
				return fmt.Errorf("failed to insert inspection fact: %w", err)
			}
		}
		return nil
	})
}

// InsertPermits bulk-inserts building-permit facts.
func (p *Postgres) InsertPermits(ctx context.Context, rows []PermitFact) error {
	return p.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO fact_permit
				(location_sk, parcel_sk, source_id, permit_number,
				 permit_status, permit_type,
				 application_start_date, issue_date, processing_time,
				 total_fee, work_description,
				 source_dataset, ingestion_batch_id)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
			ON CONFLICT DO NOTHING
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare permit insert: %w", err)
		}
		defer stmt.Close()

		for _, r := range rows {
			_, err := stmt.ExecContext(ctx,
				r.LocationSK, nullSK(r.ParcelSK), nullStr(r.SourceID), nullStr(r.PermitNumber),
				nullStr(r.PermitStatus), nullStr(r.PermitType),
				nullTime(r.ApplicationStartDate), nullTime(r.IssueDate), nullInt(r.ProcessingDays),
				nullFloat(r.TotalFee), nullStr(r.WorkDescription),
				r.SourceDataset, r.BatchID,
			)
			if err != nil {
				return fmt.Errorf("failed to insert permit fact: %w", err)
			}
		}
		return nil
	})
}

// Insert311Requests bulk-inserts 311 service-request facts.
func (p *Postgres) Insert311Requests(ctx context.Context, rows []Request311Fact) error {
	return p.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO fact_311
				(location_sk, source_id, sr_type, sr_short_code, status,
				 created_date, closed_date, source_dataset, ingestion_batch_id)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			ON CONFLICT DO NOTHING
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare 311 insert: %w", err)
		}
		defer stmt.Close()

		for _, r := range rows {
			_, err := stmt.ExecContext(ctx,
				r.LocationSK, nullStr(r.SourceID),
				nullStr(r.SRType), nullStr(r.SRShortCode), nullStr(r.Status),
				nullTime(r.CreatedDate), nullTime(r.ClosedDate),
				r.SourceDataset, r.BatchID,
			)
			if err != nil {
				return fmt.Errorf("failed to insert 311 fact: %w", err)
			}
		}
		return nil
	})
}

// InsertTaxLiens bulk-inserts tax-lien facts.
func (p *Postgres) InsertTaxLiens(ctx context.Context, rows []TaxLienFact) error {
	return p.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO fact_tax_lien
				(parcel_sk, location_sk, pin,
				 tax_sale_year, lien_type, from_year, to_year,
				 sold_at_sale,
				 tax_amount_offered, penalty_amount_offered,
				 total_amount_offered, total_amount_forfeited,
				 buyer_name, source_dataset, ingestion_batch_id)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
			ON CONFLICT DO NOTHING
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare tax lien insert: %w", err)
		}
		defer stmt.Close()

		for _, r := range rows {
			_, err := stmt.ExecContext(ctx,
				nullSK(r.ParcelSK), nullSK(r.LocationSK), nullStr(r.PIN),
				nullInt(r.TaxSaleYear), nullStr(r.LienType), nullInt(r.FromYear), nullInt(r.ToYear),
				nullBool(r.SoldAtSale),
				nullFloat(r.TaxAmount), nullFloat(r.PenaltyAmount),
				nullFloat(r.TotalAmount), nullFloat(r.ForfeitedAmount),
				nullStr(r.BuyerName), r.SourceDataset, r.BatchID,
			)
			if err != nil {
				return fmt.Errorf("failed to insert tax lien fact: %w", err)
			}
		}
		return nil
	})
}

// InsertVacantBuildings bulk-inserts vacant-building docket facts.
func (p *Postgres) InsertVacantBuildings(ctx context.Context, rows []VacantBuildingFact) error {
	return p.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO fact_vacant_building
				(location_sk, source_id, docket_number, violation_number,
				 issued_date, last_hearing_date, violation_type,
				 entity_or_person, disposition_description,
				 total_fines, current_amount_due, total_paid,
				 source_dataset, ingestion_batch_id)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
			ON CONFLICT DO NOTHING
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare vacant building insert: %w", err)
		}
		defer stmt.Close()

		for _, r := range rows {
			_, err := stmt.ExecContext(ctx,
				r.LocationSK, nullStr(r.SourceID), nullStr(r.DocketNumber), nullStr(r.ViolationNumber),
				nullTime(r.IssuedDate), nullTime(r.LastHearingDate), nullStr(r.ViolationType),
				nullStr(r.EntityOrPerson), nullStr(r.Disposition),
				nullFloat(r.TotalFines), nullFloat(r.CurrentAmountDue), nullFloat(r.TotalPaid),
				r.SourceDataset, r.BatchID,
			)
			if err != nil {
				return fmt.Errorf("failed to insert vacant building fact: %w", err)
			}
		}
		return nil
	})
}
