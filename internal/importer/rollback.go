package importer

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type RollbackResult struct {
	ImportID        uuid.UUID      `json:"importId"`
	RestoredCounts  RestoredCounts `json:"restoredCounts"`
	ExecutionTimeMs int64          `json:"executionTimeMs"`
}

// Rollback restores the catalog to the pre-image captured by the given
// import. Imports form a strict stack: only the newest still-active import
// may be rolled back, and rows manually edited since that import abort the
// restore rather than being silently overwritten. The store runs both
// checks inside the restore transaction, so a write racing the rollback
// either lands before the checks or waits for the restore to finish.
func (s *Service) Rollback(ctx context.Context, importID uuid.UUID) (*RollbackResult, error) {
	start := time.Now()

	rec, err := s.store.GetImport(ctx, importID)
	if err != nil {
		return nil, err
	}
	if rec.RolledBackAt != nil {
		return nil, ErrAlreadyRolledBack
	}

	counts, err := s.store.RestoreImport(ctx, rec)
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	s.logger.Info("import_rolled_back",
		"import_id", importID,
		"restored_parts", counts.Parts,
		"restored_vehicle_applications", counts.VehicleApplications,
		"restored_cross_references", counts.CrossReferences,
		"duration_ms", elapsed.Milliseconds(),
	)
	return &RollbackResult{
		ImportID:        importID,
		RestoredCounts:  counts,
		ExecutionTimeMs: elapsed.Milliseconds(),
	}, nil
}
