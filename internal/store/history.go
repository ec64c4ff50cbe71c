package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/acr-platform/catalog-api/internal/catalog"
	"github.com/acr-platform/catalog-api/internal/importer"
)

const importColumns = `id, created_at, file_name, file_size_bytes, rows_imported, import_summary, imported_by, rolled_back_at`

func (s *Store) GetImport(ctx context.Context, id uuid.UUID) (*importer.ImportRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+importColumns+` FROM import_history WHERE id = $1`, id)
	rec, err := scanImport(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, importer.ErrImportNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// topActiveImport returns the newest import that has not been rolled back,
// or nil when the stack is empty. It runs inside the restore transaction so
// the answer cannot go stale before the restore acts on it.
func topActiveImport(ctx context.Context, tx pgx.Tx) (*importer.ImportRecord, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+importColumns+`
		FROM import_history
		WHERE rolled_back_at IS NULL
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`)
	rec, err := scanImport(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) ListActiveImports(ctx context.Context) ([]importer.ImportRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+importColumns+`
		FROM import_history
		WHERE rolled_back_at IS NULL
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []importer.ImportRecord{}
	for rows.Next() {
		rec, err := scanImport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func scanImport(row pgx.Row) (*importer.ImportRecord, error) {
	var rec importer.ImportRecord
	var summaryJSON []byte
	err := row.Scan(&rec.ID, &rec.CreatedAt, &rec.FileName, &rec.FileSizeBytes,
		&rec.RowsImported, &summaryJSON, &rec.ImportedBy, &rec.RolledBackAt)
	if err != nil {
		return nil, err
	}
	if len(summaryJSON) > 0 {
		if err := json.Unmarshal(summaryJSON, &rec.Summary); err != nil {
			return nil, fmt.Errorf("decode import summary: %w", err)
		}
	}
	return &rec, nil
}

// manualEditsSince lists rows whose last mutation came from a non-import
// actor after the given instant. The business key is the human-facing
// identifier shown to the operator resolving the conflict.
func manualEditsSince(ctx context.Context, tx pgx.Tx, since time.Time) ([]importer.Conflict, error) {
	out := []importer.Conflict{}

	rows, err := tx.Query(ctx, `
		SELECT acr_sku FROM parts
		WHERE last_modified_by = $1 AND updated_at > $2
		ORDER BY acr_sku
	`, ModifierManual, since)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var sku string
		if err := rows.Scan(&sku); err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, importer.Conflict{Table: "parts", BusinessKey: sku})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = tx.Query(ctx, `
		SELECT p.acr_sku, va.make, va.model, va.start_year
		FROM vehicle_applications va
		JOIN parts p ON p.id = va.part_id
		WHERE va.last_modified_by = $1 AND va.updated_at > $2
		ORDER BY p.acr_sku, va.make, va.model, va.start_year
	`, ModifierManual, since)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var sku, mk, model string
		var startYear int
		if err := rows.Scan(&sku, &mk, &model, &startYear); err != nil {
			rows.Close()
			return nil, err
		}
		key := catalog.VehicleApplicationKey(catalog.VehicleApplicationRow{
			ACRSku: sku, Make: mk, Model: model, StartYear: startYear,
		})
		out = append(out, importer.Conflict{Table: "vehicle_applications", BusinessKey: key})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = tx.Query(ctx, `
		SELECT p.acr_sku, cr.competitor_sku
		FROM cross_references cr
		JOIN parts p ON p.id = cr.part_id
		WHERE cr.last_modified_by = $1 AND cr.updated_at > $2
		ORDER BY p.acr_sku, cr.competitor_sku
	`, ModifierManual, since)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var sku, compSku string
		if err := rows.Scan(&sku, &compSku); err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, importer.Conflict{Table: "cross_references", BusinessKey: sku + " -> " + compSku})
	}
	rows.Close()
	return out, rows.Err()
}

// RestoreImport replaces the live catalog with the snapshot captured by the
// given import, preserving original identities, provenance and timestamps.
// The stack-order and manual-edit checks run inside the transaction, after
// a lock that holds off catalog writers: an edit or import racing the
// rollback either commits before the checks and is seen, or waits until the
// restore is done. A concurrent rollback of the same import loses the race
// on the guard UPDATE.
func (s *Store) RestoreImport(ctx context.Context, rec *importer.ImportRecord) (importer.RestoredCounts, error) {
	var counts importer.RestoredCounts

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return counts, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	// SHARE ROW EXCLUSIVE lets concurrent reads through but blocks writes
	// until commit.
	if _, err := tx.Exec(ctx, `
		LOCK TABLE parts, vehicle_applications, cross_references IN SHARE ROW EXCLUSIVE MODE
	`); err != nil {
		return counts, fmt.Errorf("lock catalog: %w", err)
	}

	top, err := topActiveImport(ctx, tx)
	if err != nil {
		return counts, err
	}
	if top == nil {
		return counts, importer.ErrAlreadyRolledBack
	}
	if top.ID != rec.ID {
		return counts, &importer.SequentialRollbackError{RequestedID: rec.ID, NewestID: top.ID}
	}

	ct, err := tx.Exec(ctx, `
		UPDATE import_history SET rolled_back_at = now()
		WHERE id = $1 AND rolled_back_at IS NULL
	`, rec.ID)
	if err != nil {
		return counts, fmt.Errorf("mark rolled back: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return counts, importer.ErrAlreadyRolledBack
	}

	conflicts, err := manualEditsSince(ctx, tx, rec.CreatedAt)
	if err != nil {
		return counts, err
	}
	if len(conflicts) > 0 {
		return counts, &importer.ConflictError{Conflicts: conflicts}
	}

	var snapJSON []byte
	if err := tx.QueryRow(ctx, `SELECT snapshot_data FROM import_history WHERE id = $1`, rec.ID).Scan(&snapJSON); err != nil {
		return counts, fmt.Errorf("load snapshot: %w", err)
	}
	var snap catalog.Snapshot
	if err := json.Unmarshal(snapJSON, &snap); err != nil {
		return counts, fmt.Errorf("decode snapshot: %w", err)
	}

	for _, table := range []string{"cross_references", "vehicle_applications", "parts"} {
		if _, err := tx.Exec(ctx, `DELETE FROM `+table); err != nil {
			return counts, fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for _, p := range snap.Parts {
		_, err := tx.Exec(ctx, `
			INSERT INTO parts (id, acr_sku, part_type, position_type, abs_type, bolt_pattern,
			                   drive_type, specifications, workflow_status, last_modified_by,
			                   created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`, p.ID, p.ACRSku, p.PartType, p.PositionType, p.ABSType, p.BoltPattern,
			p.DriveType, p.Specifications, p.WorkflowStatus, p.LastModifiedBy,
			p.CreatedAt, p.UpdatedAt)
		if err != nil {
			return counts, fmt.Errorf("restore part %s: %w", p.ACRSku, err)
		}
	}
	for _, v := range snap.VehicleApplications {
		_, err := tx.Exec(ctx, `
			INSERT INTO vehicle_applications (id, part_id, make, model, start_year, end_year,
			                                  last_modified_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, v.ID, v.PartID, v.Make, v.Model, v.StartYear, v.EndYear,
			v.LastModifiedBy, v.CreatedAt, v.UpdatedAt)
		if err != nil {
			return counts, fmt.Errorf("restore vehicle application %s %s: %w", v.Make, v.Model, err)
		}
	}
	for _, c := range snap.CrossReferences {
		_, err := tx.Exec(ctx, `
			INSERT INTO cross_references (id, part_id, competitor_sku, competitor_brand,
			                              last_modified_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, c.ID, c.PartID, c.CompetitorSku, c.CompetitorBrand,
			c.LastModifiedBy, c.CreatedAt, c.UpdatedAt)
		if err != nil {
			return counts, fmt.Errorf("restore cross reference %s: %w", c.CompetitorSku, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return counts, fmt.Errorf("commit: %w", err)
	}

	counts.Parts = len(snap.Parts)
	counts.VehicleApplications = len(snap.VehicleApplications)
	counts.CrossReferences = len(snap.CrossReferences)
	return counts, nil
}
