package importer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrImportNotFound    = errors.New("import not found")
	ErrAlreadyRolledBack = errors.New("import already rolled back")
)

// ExecutionError wraps a storage failure during execute. The transaction
// guarantees nothing was partially applied; the cause is surfaced verbatim
// for operator investigation and never retried automatically.
type ExecutionError struct {
	Err error
}

func (e *ExecutionError) Error() string { return fmt.Sprintf("import execution failed: %v", e.Err) }
func (e *ExecutionError) Unwrap() error { return e.Err }

// SequentialRollbackError means the requested import is not the top of the
// rollback stack. NewestID names the import that must be rolled back first.
type SequentialRollbackError struct {
	RequestedID uuid.UUID
	NewestID    uuid.UUID
}

func (e *SequentialRollbackError) Error() string {
	return fmt.Sprintf("import %s is not the most recent import; roll back %s first", e.RequestedID, e.NewestID)
}

// Conflict is a row that was modified by a non-import actor after the
// import being rolled back ran.
type Conflict struct {
	Table       string `json:"table"`
	BusinessKey string `json:"businessKey"`
}

// ConflictError aborts a rollback that would silently overwrite manual
// edits. Resolution requires a human decision.
type ConflictError struct {
	Conflicts []Conflict
}

func (e *ConflictError) Error() string {
	keys := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		keys = append(keys, c.BusinessKey)
	}
	return fmt.Sprintf("%d rows modified since import: %s", len(e.Conflicts), strings.Join(keys, ", "))
}
