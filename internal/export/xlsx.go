package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kanjideck/kanjideck/internal/study"
)

// SheetName is the worksheet WriteXLSX fills: the default sheet of a new
// workbook.
const SheetName = "Sheet1"

var columns = []string{"ID", "Characters", "Kind", "Level", "Readings", "Meanings", "Next review", "Started"}

// WriteXLSX writes items as a single-sheet workbook with a header row.
func WriteXLSX(w io.Writer, items []study.Item) error {
	f := excelize.NewFile()
	defer f.Close()

	header := make([]interface{}, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	if err := f.SetRowStyle(SheetName, 1, 1, bold); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	for i, r := range Rows(items) {
		next := ""
		if r.AvailableAt != nil {
			next = r.AvailableAt.UTC().Format("2006-01-02 15:04")
		}
		row := []interface{}{
			r.ID,
			r.Characters,
			string(r.Kind),
			r.Level,
			strings.Join(r.Readings, ", "),
			strings.Join(r.Meanings, ", "),
			next,
			r.Started,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := f.SetColWidth(SheetName, "B", "B", 14); err != nil {
		return err
	}
	if err := f.SetColWidth(SheetName, "E", "F", 30); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
