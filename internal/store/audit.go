package store

import (
	"context"

	"github.com/acr-platform/catalog-api/internal/audit"
)

func (s *Store) InsertAuditLog(ctx context.Context, rec audit.Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_log (action, entity_type, entity_id, request_id, metadata)
		VALUES ($1, $2, $3, $4, $5)
	`, rec.Action, rec.EntityType, rec.EntityID, rec.RequestID, rec.Metadata)
	return err
}
