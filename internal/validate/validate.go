// Package validate checks a parsed workbook against structural rules and
// against business rules derived from the current database state. Data
// quality problems are never returned as Go errors: everything is
// accumulated into structured issues so the whole file can be reported in
// one pass. Errors block execution; warnings never do.
package validate

import (
	"errors"
	"fmt"

	"github.com/acr-platform/catalog-api/internal/catalog"
	"github.com/acr-platform/catalog-api/internal/spreadsheet"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue codes are stable and machine readable: E-prefixed issues block
// execution, W-prefixed issues are advisory.
const (
	CodeMissingField      = "E001"
	CodeDuplicateSKU      = "E002"
	CodeOrphanApplication = "E003"
	CodeOrphanReference   = "E004"
	CodeBadIdentity       = "E005"
	CodeFieldTooLong      = "E006"
	CodeYearOrder         = "E007"
	CodeYearRange         = "E008"
	CodeBadNumber         = "E009"
	CodeBadStatus         = "E010"

	CodeSKURenamed      = "W001"
	CodeYearNarrowed    = "W002"
	CodePartTypeChanged = "W003"
	CodePositionChanged = "W004"
	CodeSpecsShortened  = "W005"
	CodeVehicleChanged  = "W006"
	CodeBrandChanged    = "W007"
)

// Field length limits. Exceeding a limit is a blocking error, never a
// silent truncation.
const (
	MaxSKULen   = 50
	MaxShortLen = 100
	MaxSpecLen  = 2000

	MinYear = 1900
)

// MaxYear bounds end_year to the near future; model years run ahead of the
// calendar by one.
func MaxYear(currentYear int) int { return currentYear + 2 }

type Issue struct {
	Sheet    string   `json:"sheet"`
	Row      int      `json:"row"`
	Code     string   `json:"code"`
	Severity Severity `json:"severity"`
	Field    string   `json:"field,omitempty"`
	Message  string   `json:"message"`
}

type Summary struct {
	ErrorCount   int               `json:"errorCount"`
	WarningCount int               `json:"warningCount"`
	RowCounts    catalog.RowCounts `json:"rowCounts"`
}

type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
	Summary  Summary `json:"summary"`
}

// Validate runs every structural and business check over the parsed
// workbook. The only hard failure is malformed input; a workbook full of
// broken rows still validates cleanly into a Result with Valid=false.
func Validate(parsed *catalog.ParsedWorkbook, existing *catalog.ExistingData, currentYear int) (*Result, error) {
	if parsed == nil {
		return nil, errors.New("validate: parsed workbook is nil")
	}
	if existing == nil {
		return nil, errors.New("validate: existing data is nil")
	}

	v := &validator{
		parsed:   parsed,
		existing: existing,
		maxYear:  MaxYear(currentYear),
	}
	v.cellIssues()
	v.parts()
	v.vehicleApplications()
	v.crossReferences()

	res := &Result{
		Valid:    len(v.errs) == 0,
		Errors:   v.errs,
		Warnings: v.warns,
		Summary: Summary{
			ErrorCount:   len(v.errs),
			WarningCount: len(v.warns),
			RowCounts:    parsed.RowCounts,
		},
	}
	if res.Errors == nil {
		res.Errors = []Issue{}
	}
	if res.Warnings == nil {
		res.Warnings = []Issue{}
	}
	return res, nil
}

type validator struct {
	parsed   *catalog.ParsedWorkbook
	existing *catalog.ExistingData
	maxYear  int
	flagged  map[cellRef]bool
	errs     []Issue
	warns    []Issue
}

// cellRef identifies one cell the parser could not interpret.
type cellRef struct {
	sheet string
	row   int
	field string
}

func (v *validator) errorf(sheet string, row int, code, field, format string, args ...any) {
	v.errs = append(v.errs, Issue{
		Sheet: sheet, Row: row, Code: code, Severity: SeverityError,
		Field: field, Message: fmt.Sprintf(format, args...),
	})
}

func (v *validator) warnf(sheet string, row int, code, field, format string, args ...any) {
	v.warns = append(v.warns, Issue{
		Sheet: sheet, Row: row, Code: code, Severity: SeverityWarning,
		Field: field, Message: fmt.Sprintf(format, args...),
	})
}

// cellIssues promotes the parser's uninterpretable-cell notes into blocking
// issues.
func (v *validator) cellIssues() {
	v.flagged = make(map[cellRef]bool, len(v.parsed.CellIssues))
	for _, ci := range v.parsed.CellIssues {
		v.flagged[cellRef{ci.Sheet, ci.Row, ci.Field}] = true
		switch ci.Kind {
		case catalog.CellMalformedIdentity:
			v.errorf(ci.Sheet, ci.Row, CodeBadIdentity, ci.Field, "%s value %q is not a valid identity", ci.Field, ci.Raw)
		case catalog.CellMalformedNumber:
			v.errorf(ci.Sheet, ci.Row, CodeBadNumber, ci.Field, "%s value %q is not a number", ci.Field, ci.Raw)
		case catalog.CellMalformedStatus:
			v.errorf(ci.Sheet, ci.Row, CodeBadStatus, ci.Field, "workflow_status %q is not one of ACTIVE, INACTIVE, PENDING", ci.Raw)
		}
	}
}

func (v *validator) parts() {
	// batchSKUs also serves the orphan checks for the other two sheets.
	firstRowBySKU := make(map[string]int, len(v.parsed.Parts))
	duplicateReported := map[string]bool{}

	for _, p := range v.parsed.Parts {
		if p.ACRSku == "" {
			v.errorf(spreadsheet.SheetParts, p.SourceRow, CodeMissingField, "acr_sku", "acr_sku is required")
		} else if first, seen := firstRowBySKU[p.ACRSku]; seen {
			if !duplicateReported[p.ACRSku] {
				v.errorf(spreadsheet.SheetParts, p.SourceRow, CodeDuplicateSKU, "acr_sku",
					"duplicate acr_sku %q (rows %d and %d)", p.ACRSku, first, p.SourceRow)
				duplicateReported[p.ACRSku] = true
			}
		} else {
			firstRowBySKU[p.ACRSku] = p.SourceRow
		}

		v.checkLen(spreadsheet.SheetParts, p.SourceRow, "acr_sku", p.ACRSku, MaxSKULen)
		v.checkLen(spreadsheet.SheetParts, p.SourceRow, "part_type", p.PartType, MaxShortLen)
		v.checkLen(spreadsheet.SheetParts, p.SourceRow, "position_type", p.PositionType, MaxShortLen)
		v.checkLen(spreadsheet.SheetParts, p.SourceRow, "abs_type", p.ABSType, MaxShortLen)
		v.checkLen(spreadsheet.SheetParts, p.SourceRow, "bolt_pattern", p.BoltPattern, MaxShortLen)
		v.checkLen(spreadsheet.SheetParts, p.SourceRow, "drive_type", p.DriveType, MaxShortLen)
		v.checkLen(spreadsheet.SheetParts, p.SourceRow, "specifications", p.Specifications, MaxSpecLen)

		v.partBusinessChecks(p)
	}
}

// partBusinessChecks compares an incoming part against its previous state
// and warns on suspicious changes. Advisory only.
func (v *validator) partBusinessChecks(p catalog.PartRow) {
	prev, ok := v.previousPart(p)
	if !ok {
		return
	}

	if p.ACRSku != "" && p.ACRSku != prev.ACRSku {
		v.warnf(spreadsheet.SheetParts, p.SourceRow, CodeSKURenamed, "acr_sku",
			"acr_sku renamed from %q to %q", prev.ACRSku, p.ACRSku)
	}
	if p.PartType != prev.PartType {
		v.warnf(spreadsheet.SheetParts, p.SourceRow, CodePartTypeChanged, "part_type",
			"part_type changed from %q to %q", prev.PartType, p.PartType)
	}
	if p.PositionType != prev.PositionType {
		v.warnf(spreadsheet.SheetParts, p.SourceRow, CodePositionChanged, "position_type",
			"position_type changed from %q to %q", prev.PositionType, p.PositionType)
	}
	if prev.Specifications != "" && len(p.Specifications) < len(prev.Specifications) {
		v.warnf(spreadsheet.SheetParts, p.SourceRow, CodeSpecsShortened, "specifications",
			"specifications shortened from %d to %d characters", len(prev.Specifications), len(p.Specifications))
	}
}

// previousPart finds the stored row an incoming part row will update:
// by identity when the file carries one, by business key otherwise.
func (v *validator) previousPart(p catalog.PartRow) (catalog.PartRow, bool) {
	if v.parsed.Strategy == catalog.MatchByIdentity && p.ID != nil {
		return v.existing.PartByID(*p.ID)
	}
	return v.existing.PartBySKU(p.ACRSku)
}

func (v *validator) vehicleApplications() {
	batch := batchSKUSet(v.parsed.Parts)

	for _, va := range v.parsed.VehicleApplications {
		sheet := spreadsheet.SheetVehicleApplications
		if va.ACRSku == "" {
			v.errorf(sheet, va.SourceRow, CodeMissingField, "acr_sku", "acr_sku is required")
		} else if !batch[va.ACRSku] && !v.existing.HasPart(va.ACRSku) {
			v.errorf(sheet, va.SourceRow, CodeOrphanApplication, "acr_sku",
				"acr_sku %q does not match any part in this file or the catalog", va.ACRSku)
		}
		if va.Make == "" {
			v.errorf(sheet, va.SourceRow, CodeMissingField, "make", "make is required")
		}
		if va.Model == "" {
			v.errorf(sheet, va.SourceRow, CodeMissingField, "model", "model is required")
		}
		v.checkLen(sheet, va.SourceRow, "make", va.Make, MaxShortLen)
		v.checkLen(sheet, va.SourceRow, "model", va.Model, MaxShortLen)

		v.checkYears(va)
		v.vehicleApplicationBusinessChecks(va)
	}
}

func (v *validator) checkYears(va catalog.VehicleApplicationRow) {
	sheet := spreadsheet.SheetVehicleApplications
	// A malformed year cell already carries a blocking issue from the
	// parser; reporting it missing as well would be misleading.
	if va.StartYear == 0 {
		if !v.flagged[cellRef{sheet, va.SourceRow, "start_year"}] {
			v.errorf(sheet, va.SourceRow, CodeMissingField, "start_year", "start_year is required")
		}
		return
	}
	if va.EndYear == 0 {
		if !v.flagged[cellRef{sheet, va.SourceRow, "end_year"}] {
			v.errorf(sheet, va.SourceRow, CodeMissingField, "end_year", "end_year is required")
		}
		return
	}
	if va.StartYear > va.EndYear {
		v.errorf(sheet, va.SourceRow, CodeYearOrder, "start_year",
			"start_year %d is after end_year %d", va.StartYear, va.EndYear)
		return
	}
	if va.StartYear < MinYear || va.EndYear > v.maxYear {
		v.errorf(sheet, va.SourceRow, CodeYearRange, "start_year",
			"year range %d-%d is outside the plausible range %d-%d", va.StartYear, va.EndYear, MinYear, v.maxYear)
	}
}

func (v *validator) vehicleApplicationBusinessChecks(va catalog.VehicleApplicationRow) {
	sheet := spreadsheet.SheetVehicleApplications

	var prev catalog.VehicleApplicationRow
	var ok bool
	identityMatched := false
	if v.parsed.Strategy == catalog.MatchByIdentity && va.ID != nil {
		prev, ok = v.existing.VehicleApplicationByID(*va.ID)
		identityMatched = ok
	}
	if !ok {
		prev, ok = v.existing.VehicleApplicationByKey(catalog.VehicleApplicationKey(va))
	}
	if !ok {
		return
	}

	if va.StartYear > prev.StartYear || (va.EndYear != 0 && va.EndYear < prev.EndYear) {
		v.warnf(sheet, va.SourceRow, CodeYearNarrowed, "start_year",
			"year range narrowed from %d-%d to %d-%d", prev.StartYear, prev.EndYear, va.StartYear, va.EndYear)
	}
	if identityMatched && (va.Make != prev.Make || va.Model != prev.Model) {
		v.warnf(sheet, va.SourceRow, CodeVehicleChanged, "make",
			"vehicle changed from %s %s to %s %s", prev.Make, prev.Model, va.Make, va.Model)
	}
}

func (v *validator) crossReferences() {
	batch := batchSKUSet(v.parsed.Parts)

	for _, cr := range v.parsed.CrossReferences {
		sheet := spreadsheet.SheetCrossReferences
		if cr.ACRSku == "" {
			v.errorf(sheet, cr.SourceRow, CodeMissingField, "acr_sku", "acr_sku is required")
		} else if !batch[cr.ACRSku] && !v.existing.HasPart(cr.ACRSku) {
			v.errorf(sheet, cr.SourceRow, CodeOrphanReference, "acr_sku",
				"acr_sku %q does not match any part in this file or the catalog", cr.ACRSku)
		}
		if cr.CompetitorSku == "" {
			v.errorf(sheet, cr.SourceRow, CodeMissingField, "competitor_sku", "competitor_sku is required")
		}
		v.checkLen(sheet, cr.SourceRow, "competitor_sku", cr.CompetitorSku, MaxShortLen)
		v.checkLen(sheet, cr.SourceRow, "competitor_brand", cr.CompetitorBrand, MaxShortLen)

		if v.parsed.Strategy == catalog.MatchByIdentity && cr.ID != nil {
			if prev, ok := v.existing.CrossReferenceByID(*cr.ID); ok && prev.CompetitorBrand != cr.CompetitorBrand {
				v.warnf(sheet, cr.SourceRow, CodeBrandChanged, "competitor_brand",
					"competitor_brand changed from %q to %q", prev.CompetitorBrand, cr.CompetitorBrand)
			}
		}
	}
}

func (v *validator) checkLen(sheet string, row int, field, value string, max int) {
	if len(value) > max {
		v.errorf(sheet, row, CodeFieldTooLong, field,
			"%s is %d characters, maximum is %d", field, len(value), max)
	}
}

func batchSKUSet(parts []catalog.PartRow) map[string]bool {
	set := make(map[string]bool, len(parts))
	for _, p := range parts {
		if p.ACRSku != "" {
			set[p.ACRSku] = true
		}
	}
	return set
}
