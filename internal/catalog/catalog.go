// Package catalog holds the canonical in-memory model shared by the
// spreadsheet parser, the validation engine, the diff engine and the
// import/rollback services. Rows are immutable value objects for the
// duration of a pipeline invocation.
package catalog

import (
	"time"

	"github.com/google/uuid"
)

type WorkflowStatus string

const (
	StatusActive   WorkflowStatus = "ACTIVE"
	StatusInactive WorkflowStatus = "INACTIVE"
	StatusPending  WorkflowStatus = "PENDING"
)

func ValidWorkflowStatus(s WorkflowStatus) bool {
	switch s {
	case StatusActive, StatusInactive, StatusPending:
		return true
	}
	return false
}

// MatchingStrategy is resolved once at parse time and threaded through
// validation and diff. A workbook previously exported by this system carries
// hidden identity columns and is matched by identity; a fresh supplier file
// is matched by business key only.
type MatchingStrategy string

const (
	MatchByBusinessKey MatchingStrategy = "business_key"
	MatchByIdentity    MatchingStrategy = "identity"
)

// PartRow is one row of the Parts sheet or one row of the parts table.
// ID is nil for rows that have never been persisted. SourceRow is the
// 1-based spreadsheet row for user navigation; zero for storage rows.
type PartRow struct {
	ID             *uuid.UUID     `json:"id,omitempty"`
	ACRSku         string         `json:"acr_sku"`
	PartType       string         `json:"part_type,omitempty"`
	PositionType   string         `json:"position_type,omitempty"`
	ABSType        string         `json:"abs_type,omitempty"`
	BoltPattern    string         `json:"bolt_pattern,omitempty"`
	DriveType      string         `json:"drive_type,omitempty"`
	Specifications string         `json:"specifications,omitempty"`
	WorkflowStatus WorkflowStatus `json:"workflow_status"`
	SourceRow      int            `json:"-"`
}

// VehicleApplicationRow links a part to a make/model/year-range fitment.
// The spreadsheet carries the human SKU; storage carries the parent's opaque
// identity. Both representations are populated once resolved.
type VehicleApplicationRow struct {
	ID        *uuid.UUID `json:"id,omitempty"`
	PartID    *uuid.UUID `json:"part_id,omitempty"`
	ACRSku    string     `json:"acr_sku"`
	Make      string     `json:"make"`
	Model     string     `json:"model"`
	StartYear int        `json:"start_year"`
	EndYear   int        `json:"end_year"`
	SourceRow int        `json:"-"`
}

type CrossReferenceRow struct {
	ID              *uuid.UUID `json:"id,omitempty"`
	PartID          *uuid.UUID `json:"part_id,omitempty"`
	ACRSku          string     `json:"acr_sku"`
	CompetitorSku   string     `json:"competitor_sku"`
	CompetitorBrand string     `json:"competitor_brand,omitempty"`
	SourceRow       int        `json:"-"`
}

type RowCounts struct {
	Parts               int `json:"parts"`
	VehicleApplications int `json:"vehicleApplications"`
	CrossReferences     int `json:"crossReferences"`
}

// CellIssueKind classifies a cell the parser could read but not interpret.
// The parser never fails on these; the validation engine turns them into
// blocking issues with stable codes.
type CellIssueKind string

const (
	CellMalformedIdentity CellIssueKind = "malformed_identity"
	CellMalformedNumber   CellIssueKind = "malformed_number"
	CellMalformedStatus   CellIssueKind = "malformed_status"
)

type CellIssue struct {
	Sheet string
	Row   int
	Field string
	Raw   string
	Kind  CellIssueKind
}

// ParsedWorkbook is the parser's output: three typed row collections in
// spreadsheet order plus the matching strategy resolved from the header set.
type ParsedWorkbook struct {
	Parts               []PartRow
	VehicleApplications []VehicleApplicationRow
	CrossReferences     []CrossReferenceRow
	Strategy            MatchingStrategy
	RowCounts           RowCounts
	CellIssues          []CellIssue
}

// Snapshot is the serialized pre-image of all three catalog tables captured
// before an import mutates anything. It carries enough to restore rows
// byte-for-byte, including modification provenance and timestamps.
type Snapshot struct {
	Parts               []SnapshotPart               `json:"parts"`
	VehicleApplications []SnapshotVehicleApplication `json:"vehicle_applications"`
	CrossReferences     []SnapshotCrossReference     `json:"cross_references"`
}

type SnapshotPart struct {
	ID             uuid.UUID      `json:"id"`
	ACRSku         string         `json:"acr_sku"`
	PartType       string         `json:"part_type,omitempty"`
	PositionType   string         `json:"position_type,omitempty"`
	ABSType        string         `json:"abs_type,omitempty"`
	BoltPattern    string         `json:"bolt_pattern,omitempty"`
	DriveType      string         `json:"drive_type,omitempty"`
	Specifications string         `json:"specifications,omitempty"`
	WorkflowStatus WorkflowStatus `json:"workflow_status"`
	LastModifiedBy string         `json:"last_modified_by"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

type SnapshotVehicleApplication struct {
	ID             uuid.UUID `json:"id"`
	PartID         uuid.UUID `json:"part_id"`
	Make           string    `json:"make"`
	Model          string    `json:"model"`
	StartYear      int       `json:"start_year"`
	EndYear        int       `json:"end_year"`
	LastModifiedBy string    `json:"last_modified_by"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type SnapshotCrossReference struct {
	ID              uuid.UUID `json:"id"`
	PartID          uuid.UUID `json:"part_id"`
	CompetitorSku   string    `json:"competitor_sku"`
	CompetitorBrand string    `json:"competitor_brand,omitempty"`
	LastModifiedBy  string    `json:"last_modified_by"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
