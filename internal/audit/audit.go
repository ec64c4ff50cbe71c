package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Record is the persisted shape of one audit event.
type Record struct {
	Action     string
	EntityType string
	EntityID   *uuid.UUID
	RequestID  *string
	Metadata   []byte
}

// Recorder persists audit records; the pgx store implements it.
type Recorder interface {
	InsertAuditLog(ctx context.Context, rec Record) error
}

type Logger struct {
	rec Recorder
}

func NewLogger(rec Recorder) *Logger {
	return &Logger{rec: rec}
}

type Entry struct {
	Action     string
	EntityType string
	EntityID   *uuid.UUID
	RequestID  string
	Metadata   map[string]any
}

func (l *Logger) Log(ctx context.Context, entry Entry) error {
	metadata := []byte("{}")
	if len(entry.Metadata) > 0 {
		encoded, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		metadata = encoded
	}

	rec := Record{
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Metadata:   metadata,
	}
	if entry.RequestID != "" {
		rec.RequestID = &entry.RequestID
	}

	if err := l.rec.InsertAuditLog(ctx, rec); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}
