package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/acr-platform/catalog-api/internal/catalog"
	"github.com/acr-platform/catalog-api/internal/diff"
	"github.com/acr-platform/catalog-api/internal/importer"
)

// ExecuteImport applies the plan in one transaction: capture the full
// pre-image, record the history row, then mutate children-first on delete
// and parents-first on insert. Any failure rolls the whole thing back,
// snapshot included.
func (s *Store) ExecuteImport(ctx context.Context, plan importer.Plan) (uuid.UUID, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	snap, err := readSnapshot(ctx, tx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("capture snapshot: %w", err)
	}
	snapJSON, err := json.Marshal(snap)
	if err != nil {
		return uuid.Nil, fmt.Errorf("encode snapshot: %w", err)
	}
	summaryJSON, err := json.Marshal(plan.Diff.Summary)
	if err != nil {
		return uuid.Nil, fmt.Errorf("encode summary: %w", err)
	}

	var importID uuid.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO import_history (file_name, file_size_bytes, rows_imported, import_summary, snapshot_data, imported_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, plan.Meta.FileName, plan.Meta.FileSizeBytes, plan.Diff.Summary.RowsAffected(),
		summaryJSON, snapJSON, plan.Meta.ImportedBy).Scan(&importID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert history: %w", err)
	}
	tag := ImportModifier(importID)

	if err := applyDeletes(ctx, tx, plan.Diff); err != nil {
		return uuid.Nil, err
	}
	if err := applyParts(ctx, tx, plan.Diff, tag); err != nil {
		return uuid.Nil, err
	}

	// Part inserts and SKU renames both shift the sku->id mapping, so the
	// child phases resolve parents from a fresh read.
	partIDs, err := partIDsBySKU(ctx, tx)
	if err != nil {
		return uuid.Nil, err
	}
	if err := applyVehicleApplications(ctx, tx, plan.Diff, partIDs, tag); err != nil {
		return uuid.Nil, err
	}
	if err := applyCrossReferences(ctx, tx, plan.Diff, partIDs, tag); err != nil {
		return uuid.Nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("commit: %w", err)
	}
	return importID, nil
}

func applyDeletes(ctx context.Context, tx pgx.Tx, d *diff.Result) error {
	for _, cr := range d.CrossReferences.Deletes {
		if _, err := tx.Exec(ctx, `DELETE FROM cross_references WHERE id = $1`, cr.ID); err != nil {
			return fmt.Errorf("delete cross reference: %w", err)
		}
	}
	for _, va := range d.VehicleApplications.Deletes {
		if _, err := tx.Exec(ctx, `DELETE FROM vehicle_applications WHERE id = $1`, va.ID); err != nil {
			return fmt.Errorf("delete vehicle application: %w", err)
		}
	}
	for _, p := range d.Parts.Deletes {
		if _, err := tx.Exec(ctx, `DELETE FROM parts WHERE id = $1`, p.ID); err != nil {
			return fmt.Errorf("delete part: %w", err)
		}
	}
	return nil
}

func applyParts(ctx context.Context, tx pgx.Tx, d *diff.Result, tag string) error {
	for _, p := range d.Parts.Adds {
		_, err := tx.Exec(ctx, `
			INSERT INTO parts (acr_sku, part_type, position_type, abs_type, bolt_pattern, drive_type, specifications, workflow_status, last_modified_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, p.ACRSku, p.PartType, p.PositionType, p.ABSType, p.BoltPattern, p.DriveType, p.Specifications, p.WorkflowStatus, tag)
		if err != nil {
			return fmt.Errorf("insert part %s: %w", p.ACRSku, err)
		}
	}
	for _, u := range d.Parts.Updates {
		_, err := tx.Exec(ctx, `
			UPDATE parts
			SET acr_sku = $2, part_type = $3, position_type = $4, abs_type = $5,
			    bolt_pattern = $6, drive_type = $7, specifications = $8,
			    workflow_status = $9, last_modified_by = $10, updated_at = now()
			WHERE id = $1
		`, u.ID, u.Row.ACRSku, u.Row.PartType, u.Row.PositionType, u.Row.ABSType,
			u.Row.BoltPattern, u.Row.DriveType, u.Row.Specifications, u.Row.WorkflowStatus, tag)
		if err != nil {
			return fmt.Errorf("update part %s: %w", u.Row.ACRSku, err)
		}
	}
	return nil
}

func applyVehicleApplications(ctx context.Context, tx pgx.Tx, d *diff.Result, partIDs map[string]uuid.UUID, tag string) error {
	for _, va := range d.VehicleApplications.Adds {
		partID, ok := partIDs[catalog.NormalizeSKU(va.ACRSku)]
		if !ok {
			return fmt.Errorf("vehicle application row %d: no part with sku %s", va.SourceRow, va.ACRSku)
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO vehicle_applications (part_id, make, model, start_year, end_year, last_modified_by)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, partID, va.Make, va.Model, va.StartYear, va.EndYear, tag)
		if err != nil {
			return fmt.Errorf("insert vehicle application %s %s %s: %w", va.ACRSku, va.Make, va.Model, err)
		}
	}
	for _, u := range d.VehicleApplications.Updates {
		partID, ok := partIDs[catalog.NormalizeSKU(u.Row.ACRSku)]
		if !ok {
			return fmt.Errorf("vehicle application row %d: no part with sku %s", u.Row.SourceRow, u.Row.ACRSku)
		}
		_, err := tx.Exec(ctx, `
			UPDATE vehicle_applications
			SET part_id = $2, make = $3, model = $4, start_year = $5, end_year = $6,
			    last_modified_by = $7, updated_at = now()
			WHERE id = $1
		`, u.ID, partID, u.Row.Make, u.Row.Model, u.Row.StartYear, u.Row.EndYear, tag)
		if err != nil {
			return fmt.Errorf("update vehicle application %s %s %s: %w", u.Row.ACRSku, u.Row.Make, u.Row.Model, err)
		}
	}
	return nil
}

func applyCrossReferences(ctx context.Context, tx pgx.Tx, d *diff.Result, partIDs map[string]uuid.UUID, tag string) error {
	for _, cr := range d.CrossReferences.Adds {
		partID, ok := partIDs[catalog.NormalizeSKU(cr.ACRSku)]
		if !ok {
			return fmt.Errorf("cross reference row %d: no part with sku %s", cr.SourceRow, cr.ACRSku)
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO cross_references (part_id, competitor_sku, competitor_brand, last_modified_by)
			VALUES ($1, $2, $3, $4)
		`, partID, cr.CompetitorSku, cr.CompetitorBrand, tag)
		if err != nil {
			return fmt.Errorf("insert cross reference %s -> %s: %w", cr.ACRSku, cr.CompetitorSku, err)
		}
	}
	for _, u := range d.CrossReferences.Updates {
		partID, ok := partIDs[catalog.NormalizeSKU(u.Row.ACRSku)]
		if !ok {
			return fmt.Errorf("cross reference row %d: no part with sku %s", u.Row.SourceRow, u.Row.ACRSku)
		}
		_, err := tx.Exec(ctx, `
			UPDATE cross_references
			SET part_id = $2, competitor_sku = $3, competitor_brand = $4,
			    last_modified_by = $5, updated_at = now()
			WHERE id = $1
		`, u.ID, partID, u.Row.CompetitorSku, u.Row.CompetitorBrand, tag)
		if err != nil {
			return fmt.Errorf("update cross reference %s -> %s: %w", u.Row.ACRSku, u.Row.CompetitorSku, err)
		}
	}
	return nil
}

func partIDsBySKU(ctx context.Context, tx pgx.Tx) (map[string]uuid.UUID, error) {
	rows, err := tx.Query(ctx, `SELECT id, acr_sku FROM parts`)
	if err != nil {
		return nil, fmt.Errorf("read part ids: %w", err)
	}
	defer rows.Close()

	out := make(map[string]uuid.UUID)
	for rows.Next() {
		var id uuid.UUID
		var sku string
		if err := rows.Scan(&id, &sku); err != nil {
			return nil, err
		}
		out[catalog.NormalizeSKU(sku)] = id
	}
	return out, rows.Err()
}

func readSnapshot(ctx context.Context, tx pgx.Tx) (*catalog.Snapshot, error) {
	snap := &catalog.Snapshot{
		Parts:               []catalog.SnapshotPart{},
		VehicleApplications: []catalog.SnapshotVehicleApplication{},
		CrossReferences:     []catalog.SnapshotCrossReference{},
	}

	rows, err := tx.Query(ctx, `
		SELECT id, acr_sku, part_type, position_type, abs_type, bolt_pattern, drive_type,
		       specifications, workflow_status, last_modified_by, created_at, updated_at
		FROM parts ORDER BY created_at, id
	`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var p catalog.SnapshotPart
		if err := rows.Scan(&p.ID, &p.ACRSku, &p.PartType, &p.PositionType, &p.ABSType,
			&p.BoltPattern, &p.DriveType, &p.Specifications, &p.WorkflowStatus,
			&p.LastModifiedBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		snap.Parts = append(snap.Parts, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = tx.Query(ctx, `
		SELECT id, part_id, make, model, start_year, end_year, last_modified_by, created_at, updated_at
		FROM vehicle_applications ORDER BY created_at, id
	`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var v catalog.SnapshotVehicleApplication
		if err := rows.Scan(&v.ID, &v.PartID, &v.Make, &v.Model, &v.StartYear, &v.EndYear,
			&v.LastModifiedBy, &v.CreatedAt, &v.UpdatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		snap.VehicleApplications = append(snap.VehicleApplications, v)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = tx.Query(ctx, `
		SELECT id, part_id, competitor_sku, competitor_brand, last_modified_by, created_at, updated_at
		FROM cross_references ORDER BY created_at, id
	`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var c catalog.SnapshotCrossReference
		if err := rows.Scan(&c.ID, &c.PartID, &c.CompetitorSku, &c.CompetitorBrand,
			&c.LastModifiedBy, &c.CreatedAt, &c.UpdatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		snap.CrossReferences = append(snap.CrossReferences, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return snap, nil
}
