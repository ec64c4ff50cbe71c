package spreadsheet

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/acr-platform/catalog-api/internal/catalog"
)

// Export writes the current catalog as a workbook in exactly the layout
// Parse expects, with the identity columns populated and hidden. Re-uploading
// the result switches the pipeline to identity-based matching, which is what
// makes SKU renames and brand edits on existing rows representable.
func Export(existing *catalog.ExistingData) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := writePartsSheet(f, existing.Parts); err != nil {
		return nil, err
	}
	if err := writeVehicleApplicationsSheet(f, existing.VehicleApplications); err != nil {
		return nil, err
	}
	if err := writeCrossReferencesSheet(f, existing.CrossReferences); err != nil {
		return nil, err
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("delete default sheet: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf, nil
}

// Template writes an empty workbook with the three sheets and the visible
// business headers only, matching the layout a fresh supplier file uses.
func Template() (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheets := []struct {
		name    string
		headers []string
	}{
		{SheetParts, partColumns},
		{SheetVehicleApplications, vehicleApplicationColumns},
		{SheetCrossReferences, crossReferenceColumns},
	}
	for _, sheet := range sheets {
		if _, err := f.NewSheet(sheet.name); err != nil {
			return nil, fmt.Errorf("create sheet %s: %w", sheet.name, err)
		}
		if err := writeRow(f, sheet.name, 1, sheet.headers); err != nil {
			return nil, err
		}
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("delete default sheet: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf, nil
}

func writePartsSheet(f *excelize.File, parts []catalog.PartRow) error {
	headers := append([]string{"_id"}, partColumns...)
	if err := newSheetWithHeaders(f, SheetParts, headers, 1); err != nil {
		return err
	}
	for i, p := range parts {
		cells := []string{
			idCell(p.ID),
			p.ACRSku,
			p.PartType,
			p.PositionType,
			p.ABSType,
			p.BoltPattern,
			p.DriveType,
			p.Specifications,
			string(p.WorkflowStatus),
		}
		if err := writeRow(f, SheetParts, i+2, cells); err != nil {
			return err
		}
	}
	return nil
}

func writeVehicleApplicationsSheet(f *excelize.File, vas []catalog.VehicleApplicationRow) error {
	headers := append([]string{"_id", "_part_id"}, vehicleApplicationColumns...)
	if err := newSheetWithHeaders(f, SheetVehicleApplications, headers, 2); err != nil {
		return err
	}
	for i, v := range vas {
		cells := []string{
			idCell(v.ID),
			idCell(v.PartID),
			v.ACRSku,
			v.Make,
			v.Model,
			strconv.Itoa(v.StartYear),
			strconv.Itoa(v.EndYear),
		}
		if err := writeRow(f, SheetVehicleApplications, i+2, cells); err != nil {
			return err
		}
	}
	return nil
}

func writeCrossReferencesSheet(f *excelize.File, crs []catalog.CrossReferenceRow) error {
	headers := append([]string{"_id", "_part_id"}, crossReferenceColumns...)
	if err := newSheetWithHeaders(f, SheetCrossReferences, headers, 2); err != nil {
		return err
	}
	for i, c := range crs {
		cells := []string{
			idCell(c.ID),
			idCell(c.PartID),
			c.ACRSku,
			c.CompetitorSku,
			c.CompetitorBrand,
		}
		if err := writeRow(f, SheetCrossReferences, i+2, cells); err != nil {
			return err
		}
	}
	return nil
}

func newSheetWithHeaders(f *excelize.File, sheet string, headers []string, hiddenCols int) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("create sheet %s: %w", sheet, err)
	}
	if err := writeRow(f, sheet, 1, headers); err != nil {
		return err
	}
	for i := 0; i < hiddenCols; i++ {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return fmt.Errorf("column name: %w", err)
		}
		if err := f.SetColVisible(sheet, col, false); err != nil {
			return fmt.Errorf("hide column %s!%s: %w", sheet, col, err)
		}
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, rowNumber int, cells []string) error {
	for i, value := range cells {
		cell, err := excelize.CoordinatesToCellName(i+1, rowNumber)
		if err != nil {
			return fmt.Errorf("cell coordinates: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, value); err != nil {
			return fmt.Errorf("set cell %s!%s: %w", sheet, cell, err)
		}
	}
	return nil
}

func idCell(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
