// Package store is the pgx-backed persistence layer: paginated reads of the
// current catalog, the transactional import/rollback execution paths, the
// import-history stack and the audit log.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/acr-platform/catalog-api/internal/catalog"
)

// Modification provenance values for last_modified_by. Every mutation sets
// one; rollback conflict detection is a direct comparison on this field.
const ModifierManual = "manual"

func ImportModifier(importID uuid.UUID) string {
	return "import:" + importID.String()
}

const fetchBatchSize = 1000

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// FetchExisting materializes the full current catalog, keyed for the
// pipeline. Reads are keyset-paginated so a large catalog never needs one
// oversized result set; the pipeline itself always receives the complete
// mapping.
func (s *Store) FetchExisting(ctx context.Context) (*catalog.ExistingData, error) {
	parts, err := s.fetchParts(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch parts: %w", err)
	}
	vas, err := s.fetchVehicleApplications(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch vehicle applications: %w", err)
	}
	crs, err := s.fetchCrossReferences(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch cross references: %w", err)
	}
	return catalog.NewExistingData(parts, vas, crs), nil
}

func (s *Store) fetchParts(ctx context.Context) ([]catalog.PartRow, error) {
	var out []catalog.PartRow
	lastCreated := time.Time{}
	lastID := uuid.Nil

	for {
		rows, err := s.pool.Query(ctx, `
			SELECT id, acr_sku, part_type, position_type, abs_type, bolt_pattern,
			       drive_type, specifications, workflow_status, created_at
			FROM parts
			WHERE (created_at, id) > ($1, $2)
			ORDER BY created_at, id
			LIMIT $3
		`, lastCreated, lastID, fetchBatchSize)
		if err != nil {
			return nil, err
		}

		batch := 0
		for rows.Next() {
			var p catalog.PartRow
			var id uuid.UUID
			var createdAt time.Time
			if err := rows.Scan(&id, &p.ACRSku, &p.PartType, &p.PositionType, &p.ABSType,
				&p.BoltPattern, &p.DriveType, &p.Specifications, &p.WorkflowStatus, &createdAt); err != nil {
				rows.Close()
				return nil, err
			}
			p.ID = &id
			out = append(out, p)
			lastCreated, lastID = createdAt, id
			batch++
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
		if batch < fetchBatchSize {
			return out, nil
		}
	}
}

func (s *Store) fetchVehicleApplications(ctx context.Context) ([]catalog.VehicleApplicationRow, error) {
	var out []catalog.VehicleApplicationRow
	lastCreated := time.Time{}
	lastID := uuid.Nil

	for {
		rows, err := s.pool.Query(ctx, `
			SELECT id, part_id, make, model, start_year, end_year, created_at
			FROM vehicle_applications
			WHERE (created_at, id) > ($1, $2)
			ORDER BY created_at, id
			LIMIT $3
		`, lastCreated, lastID, fetchBatchSize)
		if err != nil {
			return nil, err
		}

		batch := 0
		for rows.Next() {
			var v catalog.VehicleApplicationRow
			var id, partID uuid.UUID
			var createdAt time.Time
			if err := rows.Scan(&id, &partID, &v.Make, &v.Model, &v.StartYear, &v.EndYear, &createdAt); err != nil {
				rows.Close()
				return nil, err
			}
			v.ID = &id
			v.PartID = &partID
			out = append(out, v)
			lastCreated, lastID = createdAt, id
			batch++
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
		if batch < fetchBatchSize {
			return out, nil
		}
	}
}

func (s *Store) fetchCrossReferences(ctx context.Context) ([]catalog.CrossReferenceRow, error) {
	var out []catalog.CrossReferenceRow
	lastCreated := time.Time{}
	lastID := uuid.Nil

	for {
		rows, err := s.pool.Query(ctx, `
			SELECT id, part_id, competitor_sku, competitor_brand, created_at
			FROM cross_references
			WHERE (created_at, id) > ($1, $2)
			ORDER BY created_at, id
			LIMIT $3
		`, lastCreated, lastID, fetchBatchSize)
		if err != nil {
			return nil, err
		}

		batch := 0
		for rows.Next() {
			var c catalog.CrossReferenceRow
			var id, partID uuid.UUID
			var createdAt time.Time
			if err := rows.Scan(&id, &partID, &c.CompetitorSku, &c.CompetitorBrand, &createdAt); err != nil {
				rows.Close()
				return nil, err
			}
			c.ID = &id
			c.PartID = &partID
			out = append(out, c)
			lastCreated, lastID = createdAt, id
			batch++
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
		if batch < fetchBatchSize {
			return out, nil
		}
	}
}
