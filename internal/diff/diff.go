// Package diff computes the add/update/delete/unchanged partition between a
// parsed workbook and the current catalog. Generate is a pure function: no
// I/O, and deterministic output because rows are walked in spreadsheet and
// storage order, never in map order.
package diff

import (
	"github.com/google/uuid"

	"github.com/acr-platform/catalog-api/internal/catalog"
)

// An uploaded sheet is the complete replacement set for its table, so rows
// absent from the file become deletes. Two deliberate exceptions:
//   - an entirely empty sheet suppresses deletes, so a partial-update file
//     cannot wipe a table by omission;
//   - cross references parsed without identity columns never infer deletes
//     at all, because a fresh supplier file routinely carries only a subset
//     of competitor mappings.

type PartUpdate struct {
	ID            uuid.UUID       `json:"id"`
	Row           catalog.PartRow `json:"row"`
	ChangedFields []string        `json:"changedFields"`
}

type VehicleApplicationUpdate struct {
	ID            uuid.UUID                     `json:"id"`
	Row           catalog.VehicleApplicationRow `json:"row"`
	ChangedFields []string                      `json:"changedFields"`
}

type CrossReferenceUpdate struct {
	ID            uuid.UUID                 `json:"id"`
	Row           catalog.CrossReferenceRow `json:"row"`
	ChangedFields []string                  `json:"changedFields"`
}

type PartChanges struct {
	Adds      []catalog.PartRow `json:"adds"`
	Updates   []PartUpdate      `json:"updates"`
	Deletes   []catalog.PartRow `json:"deletes"`
	Unchanged int               `json:"unchanged"`
}

type VehicleApplicationChanges struct {
	Adds      []catalog.VehicleApplicationRow `json:"adds"`
	Updates   []VehicleApplicationUpdate      `json:"updates"`
	Deletes   []catalog.VehicleApplicationRow `json:"deletes"`
	Unchanged int                             `json:"unchanged"`
}

type CrossReferenceChanges struct {
	Adds      []catalog.CrossReferenceRow `json:"adds"`
	Updates   []CrossReferenceUpdate      `json:"updates"`
	Deletes   []catalog.CrossReferenceRow `json:"deletes"`
	Unchanged int                         `json:"unchanged"`
}

type SheetCounts struct {
	Adds      int `json:"adds"`
	Updates   int `json:"updates"`
	Deletes   int `json:"deletes"`
	Unchanged int `json:"unchanged"`
}

type Summary struct {
	Parts               SheetCounts `json:"parts"`
	VehicleApplications SheetCounts `json:"vehicleApplications"`
	CrossReferences     SheetCounts `json:"crossReferences"`
	Total               SheetCounts `json:"total"`
}

type Result struct {
	Parts               PartChanges               `json:"parts"`
	VehicleApplications VehicleApplicationChanges `json:"vehicleApplications"`
	CrossReferences     CrossReferenceChanges     `json:"crossReferences"`
	Summary             Summary                   `json:"summary"`
}

// RowsAffected is the adds+updates total persisted as rows_imported.
func (s Summary) RowsAffected() int {
	return s.Total.Adds + s.Total.Updates
}

func Generate(parsed *catalog.ParsedWorkbook, existing *catalog.ExistingData) *Result {
	r := &Result{}
	r.Parts = diffParts(parsed, existing)
	r.VehicleApplications = diffVehicleApplications(parsed, existing)
	r.CrossReferences = diffCrossReferences(parsed, existing)

	r.Summary.Parts = counts(len(r.Parts.Adds), len(r.Parts.Updates), len(r.Parts.Deletes), r.Parts.Unchanged)
	r.Summary.VehicleApplications = counts(len(r.VehicleApplications.Adds), len(r.VehicleApplications.Updates), len(r.VehicleApplications.Deletes), r.VehicleApplications.Unchanged)
	r.Summary.CrossReferences = counts(len(r.CrossReferences.Adds), len(r.CrossReferences.Updates), len(r.CrossReferences.Deletes), r.CrossReferences.Unchanged)
	r.Summary.Total = counts(
		r.Summary.Parts.Adds+r.Summary.VehicleApplications.Adds+r.Summary.CrossReferences.Adds,
		r.Summary.Parts.Updates+r.Summary.VehicleApplications.Updates+r.Summary.CrossReferences.Updates,
		r.Summary.Parts.Deletes+r.Summary.VehicleApplications.Deletes+r.Summary.CrossReferences.Deletes,
		r.Summary.Parts.Unchanged+r.Summary.VehicleApplications.Unchanged+r.Summary.CrossReferences.Unchanged,
	)
	return r
}

func counts(adds, updates, deletes, unchanged int) SheetCounts {
	return SheetCounts{Adds: adds, Updates: updates, Deletes: deletes, Unchanged: unchanged}
}

func diffParts(parsed *catalog.ParsedWorkbook, existing *catalog.ExistingData) PartChanges {
	var out PartChanges
	matched := make(map[string]bool, len(existing.Parts))

	for _, p := range parsed.Parts {
		prev, ok := matchPart(p, parsed.Strategy, existing)
		if !ok {
			out.Adds = append(out.Adds, p)
			continue
		}
		matched[prev.ACRSku] = true
		fields := changedPartFields(prev, p)
		if len(fields) == 0 {
			out.Unchanged++
			continue
		}
		row := p
		row.ID = prev.ID
		out.Updates = append(out.Updates, PartUpdate{ID: *prev.ID, Row: row, ChangedFields: fields})
	}

	if len(parsed.Parts) > 0 {
		for _, prev := range existing.Parts {
			if !matched[prev.ACRSku] {
				out.Deletes = append(out.Deletes, prev)
			}
		}
	}
	return out
}

func matchPart(p catalog.PartRow, strategy catalog.MatchingStrategy, existing *catalog.ExistingData) (catalog.PartRow, bool) {
	if strategy == catalog.MatchByIdentity && p.ID != nil {
		if prev, ok := existing.PartByID(*p.ID); ok {
			return prev, true
		}
	}
	return existing.PartBySKU(p.ACRSku)
}

func changedPartFields(prev, next catalog.PartRow) []string {
	var fields []string
	if prev.ACRSku != next.ACRSku {
		fields = append(fields, "acr_sku")
	}
	if prev.PartType != next.PartType {
		fields = append(fields, "part_type")
	}
	if prev.PositionType != next.PositionType {
		fields = append(fields, "position_type")
	}
	if prev.ABSType != next.ABSType {
		fields = append(fields, "abs_type")
	}
	if prev.BoltPattern != next.BoltPattern {
		fields = append(fields, "bolt_pattern")
	}
	if prev.DriveType != next.DriveType {
		fields = append(fields, "drive_type")
	}
	if prev.Specifications != next.Specifications {
		fields = append(fields, "specifications")
	}
	if prev.WorkflowStatus != next.WorkflowStatus {
		fields = append(fields, "workflow_status")
	}
	return fields
}

func diffVehicleApplications(parsed *catalog.ParsedWorkbook, existing *catalog.ExistingData) VehicleApplicationChanges {
	var out VehicleApplicationChanges
	matched := make(map[string]bool, len(existing.VehicleApplications))

	for _, va := range parsed.VehicleApplications {
		prev, ok := matchVehicleApplication(va, parsed.Strategy, existing)
		if !ok {
			out.Adds = append(out.Adds, va)
			continue
		}
		matched[catalog.VehicleApplicationKey(prev)] = true
		fields := changedVehicleApplicationFields(prev, va)
		if len(fields) == 0 {
			out.Unchanged++
			continue
		}
		row := va
		row.ID = prev.ID
		out.Updates = append(out.Updates, VehicleApplicationUpdate{ID: *prev.ID, Row: row, ChangedFields: fields})
	}

	if len(parsed.VehicleApplications) > 0 {
		for _, prev := range existing.VehicleApplications {
			if !matched[catalog.VehicleApplicationKey(prev)] {
				out.Deletes = append(out.Deletes, prev)
			}
		}
	}
	return out
}

func matchVehicleApplication(va catalog.VehicleApplicationRow, strategy catalog.MatchingStrategy, existing *catalog.ExistingData) (catalog.VehicleApplicationRow, bool) {
	if strategy == catalog.MatchByIdentity && va.ID != nil {
		if prev, ok := existing.VehicleApplicationByID(*va.ID); ok {
			return prev, true
		}
	}
	return existing.VehicleApplicationByKey(catalog.VehicleApplicationKey(va))
}

func changedVehicleApplicationFields(prev, next catalog.VehicleApplicationRow) []string {
	var fields []string
	if prev.ACRSku != next.ACRSku {
		fields = append(fields, "acr_sku")
	}
	if prev.Make != next.Make {
		fields = append(fields, "make")
	}
	if prev.Model != next.Model {
		fields = append(fields, "model")
	}
	if prev.StartYear != next.StartYear {
		fields = append(fields, "start_year")
	}
	if prev.EndYear != next.EndYear {
		fields = append(fields, "end_year")
	}
	return fields
}

func diffCrossReferences(parsed *catalog.ParsedWorkbook, existing *catalog.ExistingData) CrossReferenceChanges {
	var out CrossReferenceChanges
	matched := make(map[uuid.UUID]bool, len(existing.CrossReferences))
	identityMode := parsed.Strategy == catalog.MatchByIdentity

	for _, cr := range parsed.CrossReferences {
		if !identityMode || cr.ID == nil {
			out.Adds = append(out.Adds, cr)
			continue
		}
		prev, ok := existing.CrossReferenceByID(*cr.ID)
		if !ok {
			out.Adds = append(out.Adds, cr)
			continue
		}
		matched[*prev.ID] = true
		fields := changedCrossReferenceFields(prev, cr)
		if len(fields) == 0 {
			out.Unchanged++
			continue
		}
		row := cr
		row.ID = prev.ID
		out.Updates = append(out.Updates, CrossReferenceUpdate{ID: *prev.ID, Row: row, ChangedFields: fields})
	}

	// Delete inference only for identity-bearing (previously exported)
	// files; see the package note on the asymmetry.
	if identityMode && len(parsed.CrossReferences) > 0 {
		for _, prev := range existing.CrossReferences {
			if prev.ID != nil && !matched[*prev.ID] {
				out.Deletes = append(out.Deletes, prev)
			}
		}
	}
	return out
}

func changedCrossReferenceFields(prev, next catalog.CrossReferenceRow) []string {
	var fields []string
	if prev.ACRSku != next.ACRSku {
		fields = append(fields, "acr_sku")
	}
	if prev.CompetitorSku != next.CompetitorSku {
		fields = append(fields, "competitor_sku")
	}
	if prev.CompetitorBrand != next.CompetitorBrand {
		fields = append(fields, "competitor_brand")
	}
	return fields
}
