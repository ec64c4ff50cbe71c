package validate

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/acr-platform/catalog-api/internal/catalog"
	"github.com/acr-platform/catalog-api/internal/spreadsheet"
)

const testYear = 2026

func emptyExisting() *catalog.ExistingData {
	return catalog.NewExistingData(nil, nil, nil)
}

func issuesByCode(issues []Issue) map[string][]Issue {
	m := map[string][]Issue{}
	for _, is := range issues {
		m[is.Code] = append(m[is.Code], is)
	}
	return m
}

func mustValidate(t *testing.T, parsed *catalog.ParsedWorkbook, existing *catalog.ExistingData) *Result {
	t.Helper()
	res, err := Validate(parsed, existing, testYear)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	return res
}

func TestValidateNilInputs(t *testing.T) {
	if _, err := Validate(nil, emptyExisting(), testYear); err == nil {
		t.Fatal("expected error for nil workbook")
	}
	if _, err := Validate(&catalog.ParsedWorkbook{}, nil, testYear); err == nil {
		t.Fatal("expected error for nil existing data")
	}
}

func TestValidateCleanWorkbook(t *testing.T) {
	parsed := &catalog.ParsedWorkbook{
		Strategy: catalog.MatchByBusinessKey,
		Parts: []catalog.PartRow{
			{ACRSku: "ACR-HB-001", PartType: "Hub Bearing", WorkflowStatus: catalog.StatusActive, SourceRow: 2},
		},
		VehicleApplications: []catalog.VehicleApplicationRow{
			{ACRSku: "ACR-HB-001", Make: "Honda", Model: "Accord", StartYear: 2008, EndYear: 2012, SourceRow: 2},
		},
		CrossReferences: []catalog.CrossReferenceRow{
			{ACRSku: "ACR-HB-001", CompetitorSku: "513121", CompetitorBrand: "Timken", SourceRow: 2},
		},
		RowCounts: catalog.RowCounts{Parts: 1, VehicleApplications: 1, CrossReferences: 1},
	}

	res := mustValidate(t, parsed, emptyExisting())
	if !res.Valid {
		t.Fatalf("expected valid, errors: %+v", res.Errors)
	}
	if len(res.Errors) != 0 || len(res.Warnings) != 0 {
		t.Fatalf("expected no issues, got errors=%d warnings=%d", len(res.Errors), len(res.Warnings))
	}
	if res.Summary.RowCounts != parsed.RowCounts {
		t.Fatalf("summary row counts = %+v", res.Summary.RowCounts)
	}
}

func TestValidateMissingRequiredFields(t *testing.T) {
	parsed := &catalog.ParsedWorkbook{
		Strategy: catalog.MatchByBusinessKey,
		Parts:    []catalog.PartRow{{ACRSku: "", SourceRow: 2, WorkflowStatus: catalog.StatusActive}},
		VehicleApplications: []catalog.VehicleApplicationRow{
			{ACRSku: "", Make: "", Model: "", StartYear: 0, EndYear: 0, SourceRow: 3},
		},
		CrossReferences: []catalog.CrossReferenceRow{
			{ACRSku: "", CompetitorSku: "", SourceRow: 4},
		},
	}

	res := mustValidate(t, parsed, emptyExisting())
	if res.Valid {
		t.Fatal("expected invalid result")
	}
	byCode := issuesByCode(res.Errors)
	// parts: acr_sku; va: acr_sku, make, model, start_year; cr: acr_sku, competitor_sku
	if got := len(byCode[CodeMissingField]); got != 7 {
		t.Fatalf("missing-field issues = %d: %+v", got, byCode[CodeMissingField])
	}
	if res.Summary.ErrorCount != len(res.Errors) {
		t.Fatalf("summary error count %d != %d", res.Summary.ErrorCount, len(res.Errors))
	}
}

func TestValidateDuplicateSKUReportedOnce(t *testing.T) {
	parsed := &catalog.ParsedWorkbook{
		Strategy: catalog.MatchByBusinessKey,
		Parts: []catalog.PartRow{
			{ACRSku: "ACR-HB-001", WorkflowStatus: catalog.StatusActive, SourceRow: 2},
			{ACRSku: "ACR-HB-001", WorkflowStatus: catalog.StatusActive, SourceRow: 5},
			{ACRSku: "ACR-HB-001", WorkflowStatus: catalog.StatusActive, SourceRow: 9},
		},
	}

	res := mustValidate(t, parsed, emptyExisting())
	dups := issuesByCode(res.Errors)[CodeDuplicateSKU]
	if len(dups) != 1 {
		t.Fatalf("duplicate reported %d times, want once: %+v", len(dups), dups)
	}
	if !strings.Contains(dups[0].Message, "rows 2 and 5") {
		t.Fatalf("message should name the first two rows: %q", dups[0].Message)
	}
}

func TestValidateOrphanRows(t *testing.T) {
	existing := catalog.NewExistingData(
		[]catalog.PartRow{{ACRSku: "ACR-HB-001", WorkflowStatus: catalog.StatusActive}},
		nil, nil,
	)
	parsed := &catalog.ParsedWorkbook{
		Strategy: catalog.MatchByBusinessKey,
		Parts: []catalog.PartRow{
			{ACRSku: "ACR-NEW-001", WorkflowStatus: catalog.StatusActive, SourceRow: 2},
		},
		VehicleApplications: []catalog.VehicleApplicationRow{
			// In this file, in the catalog, and nowhere.
			{ACRSku: "ACR-NEW-001", Make: "Honda", Model: "Civic", StartYear: 2010, EndYear: 2014, SourceRow: 2},
			{ACRSku: "ACR-HB-001", Make: "Honda", Model: "Accord", StartYear: 2008, EndYear: 2012, SourceRow: 3},
			{ACRSku: "ACR-GHOST", Make: "Honda", Model: "Fit", StartYear: 2010, EndYear: 2014, SourceRow: 4},
		},
		CrossReferences: []catalog.CrossReferenceRow{
			{ACRSku: "ACR-GHOST", CompetitorSku: "X1", SourceRow: 2},
		},
	}

	res := mustValidate(t, parsed, existing)
	byCode := issuesByCode(res.Errors)
	if len(byCode[CodeOrphanApplication]) != 1 {
		t.Fatalf("orphan applications = %+v", byCode[CodeOrphanApplication])
	}
	if byCode[CodeOrphanApplication][0].Row != 4 {
		t.Fatalf("orphan application row = %d", byCode[CodeOrphanApplication][0].Row)
	}
	if len(byCode[CodeOrphanReference]) != 1 {
		t.Fatalf("orphan references = %+v", byCode[CodeOrphanReference])
	}
}

func TestValidateYearChecks(t *testing.T) {
	mkVA := func(row, start, end int) catalog.VehicleApplicationRow {
		return catalog.VehicleApplicationRow{
			ACRSku: "ACR-HB-001", Make: "Honda", Model: "Accord",
			StartYear: start, EndYear: end, SourceRow: row,
		}
	}
	parsed := &catalog.ParsedWorkbook{
		Strategy: catalog.MatchByBusinessKey,
		Parts:    []catalog.PartRow{{ACRSku: "ACR-HB-001", WorkflowStatus: catalog.StatusActive, SourceRow: 2}},
		VehicleApplications: []catalog.VehicleApplicationRow{
			mkVA(2, 2012, 2008),           // reversed
			mkVA(3, 1850, 1900),           // below floor
			mkVA(4, 2020, testYear+3),     // beyond next model year
			mkVA(5, 2020, testYear+2),     // at the ceiling, fine
			mkVA(6, 1900, 1905),           // at the floor, fine
		},
	}

	res := mustValidate(t, parsed, emptyExisting())
	byCode := issuesByCode(res.Errors)
	if len(byCode[CodeYearOrder]) != 1 || byCode[CodeYearOrder][0].Row != 2 {
		t.Fatalf("year order issues = %+v", byCode[CodeYearOrder])
	}
	rangeRows := map[int]bool{}
	for _, is := range byCode[CodeYearRange] {
		rangeRows[is.Row] = true
	}
	if len(rangeRows) != 2 || !rangeRows[3] || !rangeRows[4] {
		t.Fatalf("year range issues = %+v", byCode[CodeYearRange])
	}
}

func TestValidateFieldLengthLimits(t *testing.T) {
	long := strings.Repeat("x", MaxShortLen+1)
	parsed := &catalog.ParsedWorkbook{
		Strategy: catalog.MatchByBusinessKey,
		Parts: []catalog.PartRow{{
			ACRSku:         "ACR-" + strings.Repeat("9", MaxSKULen),
			PartType:       long,
			Specifications: strings.Repeat("s", MaxSpecLen+1),
			WorkflowStatus: catalog.StatusActive,
			SourceRow:      2,
		}},
	}

	res := mustValidate(t, parsed, emptyExisting())
	tooLong := issuesByCode(res.Errors)[CodeFieldTooLong]
	fields := map[string]bool{}
	for _, is := range tooLong {
		fields[is.Field] = true
	}
	for _, f := range []string{"acr_sku", "part_type", "specifications"} {
		if !fields[f] {
			t.Fatalf("expected too-long issue for %s, got %+v", f, tooLong)
		}
	}
}

func TestValidatePromotesCellIssues(t *testing.T) {
	parsed := &catalog.ParsedWorkbook{
		Strategy: catalog.MatchByBusinessKey,
		CellIssues: []catalog.CellIssue{
			{Sheet: spreadsheet.SheetParts, Row: 2, Field: "_id", Raw: "nope", Kind: catalog.CellMalformedIdentity},
			{Sheet: spreadsheet.SheetVehicleApplications, Row: 3, Field: "start_year", Raw: "soon", Kind: catalog.CellMalformedNumber},
			{Sheet: spreadsheet.SheetParts, Row: 4, Field: "workflow_status", Raw: "SHIPPED", Kind: catalog.CellMalformedStatus},
		},
	}

	res := mustValidate(t, parsed, emptyExisting())
	byCode := issuesByCode(res.Errors)
	if len(byCode[CodeBadIdentity]) != 1 || len(byCode[CodeBadNumber]) != 1 || len(byCode[CodeBadStatus]) != 1 {
		t.Fatalf("promoted issues = %+v", res.Errors)
	}
	if res.Valid {
		t.Fatal("cell issues must block execution")
	}
}

func TestValidateMalformedYearNotAlsoReportedMissing(t *testing.T) {
	parsed := &catalog.ParsedWorkbook{
		Strategy: catalog.MatchByBusinessKey,
		Parts:    []catalog.PartRow{{ACRSku: "ACR-HB-001", SourceRow: 2}},
		VehicleApplications: []catalog.VehicleApplicationRow{
			// The parser turned an unparseable start_year into 0 and left
			// a note; that cell is broken, not absent.
			{ACRSku: "ACR-HB-001", Make: "Honda", Model: "Civic", StartYear: 0, EndYear: 2024, SourceRow: 2},
		},
		CellIssues: []catalog.CellIssue{
			{Sheet: spreadsheet.SheetVehicleApplications, Row: 2, Field: "start_year", Raw: "soon", Kind: catalog.CellMalformedNumber},
		},
	}

	res := mustValidate(t, parsed, emptyExisting())
	byCode := issuesByCode(res.Errors)
	if len(byCode[CodeBadNumber]) != 1 {
		t.Fatalf("bad-number issues = %+v", byCode[CodeBadNumber])
	}
	if len(byCode[CodeMissingField]) != 0 {
		t.Fatalf("missing-field issues = %+v", byCode[CodeMissingField])
	}
	if res.Valid {
		t.Fatal("malformed year must still block execution")
	}
}

func TestValidateWarnsOnSuspiciousChanges(t *testing.T) {
	partID := uuid.New()
	vaID := uuid.New()
	crID := uuid.New()
	existing := catalog.NewExistingData(
		[]catalog.PartRow{{
			ID: &partID, ACRSku: "ACR-HB-001", PartType: "Hub Bearing", PositionType: "Front",
			Specifications: "a long original specification text", WorkflowStatus: catalog.StatusActive,
		}},
		[]catalog.VehicleApplicationRow{{
			ID: &vaID, PartID: &partID, Make: "Honda", Model: "Accord", StartYear: 2008, EndYear: 2012,
		}},
		[]catalog.CrossReferenceRow{{
			ID: &crID, PartID: &partID, CompetitorSku: "513121", CompetitorBrand: "Timken",
		}},
	)

	parsed := &catalog.ParsedWorkbook{
		Strategy: catalog.MatchByIdentity,
		Parts: []catalog.PartRow{{
			ID: &partID, ACRSku: "ACR-HB-001-V2", PartType: "Wheel Bearing", PositionType: "Rear",
			Specifications: "short", WorkflowStatus: catalog.StatusActive, SourceRow: 2,
		}},
		VehicleApplications: []catalog.VehicleApplicationRow{{
			ID: &vaID, ACRSku: "ACR-HB-001-V2", Make: "Honda", Model: "Civic",
			StartYear: 2010, EndYear: 2011, SourceRow: 2,
		}},
		CrossReferences: []catalog.CrossReferenceRow{{
			ID: &crID, ACRSku: "ACR-HB-001-V2", CompetitorSku: "513121", CompetitorBrand: "SKF", SourceRow: 2,
		}},
	}

	res := mustValidate(t, parsed, existing)
	if !res.Valid {
		t.Fatalf("warnings must not block: %+v", res.Errors)
	}
	byCode := issuesByCode(res.Warnings)
	for _, code := range []string{
		CodeSKURenamed, CodePartTypeChanged, CodePositionChanged, CodeSpecsShortened,
		CodeYearNarrowed, CodeVehicleChanged, CodeBrandChanged,
	} {
		if len(byCode[code]) != 1 {
			t.Fatalf("expected exactly one %s warning, got %+v", code, byCode[code])
		}
	}
	if res.Summary.WarningCount != len(res.Warnings) {
		t.Fatalf("summary warning count %d != %d", res.Summary.WarningCount, len(res.Warnings))
	}
}

func TestValidateBusinessKeyMatchSkipsIdentityOnlyWarnings(t *testing.T) {
	existing := catalog.NewExistingData(
		[]catalog.PartRow{{ACRSku: "ACR-HB-001", PartType: "Hub Bearing", WorkflowStatus: catalog.StatusActive}},
		nil, nil,
	)
	parsed := &catalog.ParsedWorkbook{
		Strategy: catalog.MatchByBusinessKey,
		Parts: []catalog.PartRow{{
			ACRSku: "ACR-HB-001", PartType: "Wheel Bearing", WorkflowStatus: catalog.StatusActive, SourceRow: 2,
		}},
	}

	res := mustValidate(t, parsed, existing)
	byCode := issuesByCode(res.Warnings)
	if len(byCode[CodePartTypeChanged]) != 1 {
		t.Fatalf("expected part-type warning from business-key match: %+v", res.Warnings)
	}
	// A business-key match can never observe a rename: the key is the SKU.
	if len(byCode[CodeSKURenamed]) != 0 {
		t.Fatalf("unexpected rename warning: %+v", byCode[CodeSKURenamed])
	}
}
