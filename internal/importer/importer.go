// Package importer applies a computed diff to the catalog inside one
// transaction, capturing a restorable pre-image first, and reverses imports
// in strict reverse-chronological order with manual-edit conflict detection.
package importer

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/acr-platform/catalog-api/internal/catalog"
	"github.com/acr-platform/catalog-api/internal/diff"
)

// Metadata describes the uploaded file for the import-history record.
type Metadata struct {
	FileName      string
	FileSizeBytes int64
	UploadedAt    time.Time
	ImportedBy    string
}

// Plan is everything ExecuteImport needs: the parsed rows, the diff to
// apply, and the upload metadata. Validation must already have passed;
// Execute trusts its input.
type Plan struct {
	Parsed *catalog.ParsedWorkbook
	Diff   *diff.Result
	Meta   Metadata
}

// ImportRecord is one import-history row. Snapshot payloads are loaded
// separately by the store; listings carry metadata only.
type ImportRecord struct {
	ID            uuid.UUID    `json:"id"`
	CreatedAt     time.Time    `json:"createdAt"`
	FileName      string       `json:"fileName"`
	FileSizeBytes int64        `json:"fileSizeBytes"`
	RowsImported  int          `json:"rowsImported"`
	Summary       diff.Summary `json:"summary"`
	ImportedBy    string       `json:"importedBy"`
	RolledBackAt  *time.Time   `json:"rolledBackAt,omitempty"`
}

type RestoredCounts struct {
	Parts               int `json:"parts"`
	VehicleApplications int `json:"vehicleApplications"`
	CrossReferences     int `json:"crossReferences"`
}

// Store is the persistence boundary. ExecuteImport and RestoreImport must
// each run as one atomic unit: snapshot-write and data-mutation commit
// together or not at all, with the storage engine's transaction isolation
// serializing concurrent executes. RestoreImport verifies the stack order
// and the absence of manual edits inside its own transaction, returning
// SequentialRollbackError, ConflictError or ErrAlreadyRolledBack when a
// check fails; a check done any earlier could go stale before the restore
// mutates anything.
type Store interface {
	FetchExisting(ctx context.Context) (*catalog.ExistingData, error)
	ExecuteImport(ctx context.Context, plan Plan) (uuid.UUID, error)
	GetImport(ctx context.Context, id uuid.UUID) (*ImportRecord, error)
	ListActiveImports(ctx context.Context) ([]ImportRecord, error)
	RestoreImport(ctx context.Context, rec *ImportRecord) (RestoredCounts, error)
}

type Service struct {
	store  Store
	logger *slog.Logger
}

func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

type ExecuteResult struct {
	ImportID        uuid.UUID    `json:"importId"`
	Summary         diff.Summary `json:"summary"`
	ExecutionTimeMs int64        `json:"executionTimeMs"`
}

// Execute applies the plan. The caller is responsible for having validated
// the workbook; this method does not re-check.
func (s *Service) Execute(ctx context.Context, plan Plan) (*ExecuteResult, error) {
	start := time.Now()

	importID, err := s.store.ExecuteImport(ctx, plan)
	if err != nil {
		return nil, &ExecutionError{Err: err}
	}

	elapsed := time.Since(start)
	s.logger.Info("import_executed",
		"import_id", importID,
		"file_name", plan.Meta.FileName,
		"rows_imported", plan.Diff.Summary.RowsAffected(),
		"duration_ms", elapsed.Milliseconds(),
	)
	return &ExecuteResult{
		ImportID:        importID,
		Summary:         plan.Diff.Summary,
		ExecutionTimeMs: elapsed.Milliseconds(),
	}, nil
}

// ListSnapshots returns not-yet-rolled-back imports newest first, with
// enough metadata to render a rollback view. It does not enforce the
// sequential constraint; Rollback does, at execute time.
func (s *Service) ListSnapshots(ctx context.Context) ([]ImportRecord, error) {
	return s.store.ListActiveImports(ctx)
}

// GetSnapshot returns one history record by id.
func (s *Service) GetSnapshot(ctx context.Context, id uuid.UUID) (*ImportRecord, error) {
	return s.store.GetImport(ctx, id)
}
