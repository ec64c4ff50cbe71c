// Package spreadsheet reads supplier workbooks into the canonical catalog
// model and writes the catalog back out in the same layout. The workbook
// format is fixed: three named sheets with a known column set per sheet.
// Files previously exported by this system additionally carry hidden
// identity columns (headers prefixed with "_") which switch the pipeline to
// identity-based matching.
package spreadsheet

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/acr-platform/catalog-api/internal/catalog"
)

const (
	SheetParts               = "Parts"
	SheetVehicleApplications = "Vehicle Applications"
	SheetCrossReferences     = "Cross References"
)

var partColumns = []string{"acr_sku", "part_type", "position_type", "abs_type", "bolt_pattern", "drive_type", "specifications", "workflow_status"}
var vehicleApplicationColumns = []string{"acr_sku", "make", "model", "start_year", "end_year"}
var crossReferenceColumns = []string{"acr_sku", "competitor_sku", "competitor_brand"}

// identityColumns are written only by this system's own export and are
// hidden in the workbook. Their presence marks a previously exported file.
var identityColumns = map[string][]string{
	SheetParts:               {"_id"},
	SheetVehicleApplications: {"_id", "_part_id"},
	SheetCrossReferences:     {"_id", "_part_id"},
}

// ParseError means the file is not a workbook this pipeline can read at all:
// unreadable bytes, a missing required sheet, or an unrecognized header set.
// Data-quality problems inside a readable workbook are not parse errors.
type ParseError struct {
	Msg string
	Err error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse workbook: %s: %v", e.Msg, e.Err)
	}
	return "parse workbook: " + e.Msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse reads an uploaded .xlsx into the canonical row collections. Empty
// sheets produce zero-row results, not errors; whether zero rows is
// acceptable is the validation engine's call.
func Parse(data []byte) (*catalog.ParsedWorkbook, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &ParseError{Msg: "not a valid spreadsheet", Err: err}
	}
	defer f.Close()

	parts, partCols, err := sheetRows(f, SheetParts, partColumns)
	if err != nil {
		return nil, err
	}
	vas, vaCols, err := sheetRows(f, SheetVehicleApplications, vehicleApplicationColumns)
	if err != nil {
		return nil, err
	}
	crs, crCols, err := sheetRows(f, SheetCrossReferences, crossReferenceColumns)
	if err != nil {
		return nil, err
	}

	// The strategy is resolved once, here, from the Parts sheet header set.
	strategy := catalog.MatchByBusinessKey
	if partCols.has("_id") {
		strategy = catalog.MatchByIdentity
	}

	wb := &catalog.ParsedWorkbook{Strategy: strategy}
	for _, row := range parts {
		p, issues := parsePartRow(row, partCols)
		if p == nil {
			continue
		}
		wb.Parts = append(wb.Parts, *p)
		wb.CellIssues = append(wb.CellIssues, issues...)
	}
	for _, row := range vas {
		v, issues := parseVehicleApplicationRow(row, vaCols)
		if v == nil {
			continue
		}
		wb.VehicleApplications = append(wb.VehicleApplications, *v)
		wb.CellIssues = append(wb.CellIssues, issues...)
	}
	for _, row := range crs {
		c, issues := parseCrossReferenceRow(row, crCols)
		if c == nil {
			continue
		}
		wb.CrossReferences = append(wb.CrossReferences, *c)
		wb.CellIssues = append(wb.CellIssues, issues...)
	}

	wb.RowCounts = catalog.RowCounts{
		Parts:               len(wb.Parts),
		VehicleApplications: len(wb.VehicleApplications),
		CrossReferences:     len(wb.CrossReferences),
	}
	return wb, nil
}

// sheetRow is one data row with its 1-based spreadsheet row number.
type sheetRow struct {
	number int
	cells  []string
}

// columnIndex maps normalized header names to cell positions.
type columnIndex map[string]int

func (c columnIndex) has(name string) bool {
	_, ok := c[name]
	return ok
}

func (c columnIndex) cell(row sheetRow, name string) string {
	idx, ok := c[name]
	if !ok || idx >= len(row.cells) {
		return ""
	}
	return strings.TrimSpace(row.cells[idx])
}

func sheetRows(f *excelize.File, sheet string, required []string) ([]sheetRow, columnIndex, error) {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, &ParseError{Msg: fmt.Sprintf("missing required sheet %q", sheet), Err: err}
	}
	if len(rows) == 0 {
		// Header row absent entirely: treat as an empty sheet with the
		// default column order so zero rows flow through.
		return nil, defaultColumns(sheet), nil
	}

	cols := columnIndex{}
	for idx, header := range rows[0] {
		name := normalizeHeader(header)
		if name == "" {
			continue
		}
		cols[name] = idx
	}

	allowed := map[string]struct{}{}
	for _, name := range required {
		allowed[name] = struct{}{}
	}
	for _, name := range identityColumns[sheet] {
		allowed[name] = struct{}{}
	}
	for name := range cols {
		if _, ok := allowed[name]; !ok {
			return nil, nil, &ParseError{Msg: fmt.Sprintf("sheet %q has unrecognized column %q", sheet, name)}
		}
	}
	for _, name := range required {
		if !cols.has(name) {
			return nil, nil, &ParseError{Msg: fmt.Sprintf("sheet %q is missing column %q", sheet, name)}
		}
	}

	out := make([]sheetRow, 0, len(rows)-1)
	for i, cells := range rows[1:] {
		if emptyRow(cells) {
			continue
		}
		out = append(out, sheetRow{number: i + 2, cells: cells})
	}
	return out, cols, nil
}

func defaultColumns(sheet string) columnIndex {
	var names []string
	switch sheet {
	case SheetParts:
		names = partColumns
	case SheetVehicleApplications:
		names = vehicleApplicationColumns
	case SheetCrossReferences:
		names = crossReferenceColumns
	}
	cols := columnIndex{}
	for i, name := range names {
		cols[name] = i
	}
	return cols
}

func normalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
}

func emptyRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func parsePartRow(row sheetRow, cols columnIndex) (*catalog.PartRow, []catalog.CellIssue) {
	var issues []catalog.CellIssue

	p := catalog.PartRow{
		ACRSku:         catalog.NormalizeSKU(cols.cell(row, "acr_sku")),
		PartType:       cols.cell(row, "part_type"),
		PositionType:   cols.cell(row, "position_type"),
		ABSType:        cols.cell(row, "abs_type"),
		BoltPattern:    cols.cell(row, "bolt_pattern"),
		DriveType:      cols.cell(row, "drive_type"),
		Specifications: cols.cell(row, "specifications"),
		SourceRow:      row.number,
	}
	p.ID, issues = parseIdentity(cols.cell(row, "_id"), SheetParts, row.number, "_id", issues)

	status := catalog.WorkflowStatus(strings.ToUpper(cols.cell(row, "workflow_status")))
	if status == "" {
		status = catalog.StatusActive
	} else if !catalog.ValidWorkflowStatus(status) {
		issues = append(issues, catalog.CellIssue{
			Sheet: SheetParts, Row: row.number, Field: "workflow_status",
			Raw: string(status), Kind: catalog.CellMalformedStatus,
		})
	}
	p.WorkflowStatus = status

	return &p, issues
}

func parseVehicleApplicationRow(row sheetRow, cols columnIndex) (*catalog.VehicleApplicationRow, []catalog.CellIssue) {
	var issues []catalog.CellIssue

	v := catalog.VehicleApplicationRow{
		ACRSku:    catalog.NormalizeSKU(cols.cell(row, "acr_sku")),
		Make:      cols.cell(row, "make"),
		Model:     cols.cell(row, "model"),
		SourceRow: row.number,
	}
	v.ID, issues = parseIdentity(cols.cell(row, "_id"), SheetVehicleApplications, row.number, "_id", issues)
	v.PartID, issues = parseIdentity(cols.cell(row, "_part_id"), SheetVehicleApplications, row.number, "_part_id", issues)
	v.StartYear, issues = parseYear(cols.cell(row, "start_year"), SheetVehicleApplications, row.number, "start_year", issues)
	v.EndYear, issues = parseYear(cols.cell(row, "end_year"), SheetVehicleApplications, row.number, "end_year", issues)

	return &v, issues
}

func parseCrossReferenceRow(row sheetRow, cols columnIndex) (*catalog.CrossReferenceRow, []catalog.CellIssue) {
	var issues []catalog.CellIssue

	c := catalog.CrossReferenceRow{
		ACRSku:          catalog.NormalizeSKU(cols.cell(row, "acr_sku")),
		CompetitorSku:   cols.cell(row, "competitor_sku"),
		CompetitorBrand: cols.cell(row, "competitor_brand"),
		SourceRow:       row.number,
	}
	c.ID, issues = parseIdentity(cols.cell(row, "_id"), SheetCrossReferences, row.number, "_id", issues)
	c.PartID, issues = parseIdentity(cols.cell(row, "_part_id"), SheetCrossReferences, row.number, "_part_id", issues)

	return &c, issues
}

func parseIdentity(raw, sheet string, rowNumber int, field string, issues []catalog.CellIssue) (*uuid.UUID, []catalog.CellIssue) {
	if raw == "" {
		return nil, issues
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, append(issues, catalog.CellIssue{
			Sheet: sheet, Row: rowNumber, Field: field, Raw: raw, Kind: catalog.CellMalformedIdentity,
		})
	}
	return &id, issues
}

func parseYear(raw, sheet string, rowNumber int, field string, issues []catalog.CellIssue) (int, []catalog.CellIssue) {
	if raw == "" {
		return 0, issues
	}
	year, err := strconv.Atoi(raw)
	if err != nil {
		return 0, append(issues, catalog.CellIssue{
			Sheet: sheet, Row: rowNumber, Field: field, Raw: raw, Kind: catalog.CellMalformedNumber,
		})
	}
	return year, issues
}
