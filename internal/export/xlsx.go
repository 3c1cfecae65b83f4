package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const defaultSheet = "Sheet1"

// WriteXLSX writes a single-sheet workbook. Currency columns keep numeric cells
// and carry a currency number format.
func WriteXLSX[T any](w io.Writer, sheet string, cols []Column[T], rows []T, f Formatter) (err error) {
	book := excelize.NewFile()
	defer func() {
		if cerr := book.Close(); err == nil {
			err = cerr
		}
	}()

	if sheet == "" {
		sheet = defaultSheet
	}
	if sheet != defaultSheet {
		if err := book.SetSheetName(defaultSheet, sheet); err != nil {
			return fmt.Errorf("export: sheet name: %w", err)
		}
	}

	headerStyle, err := book.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("export: header style: %w", err)
	}
	currencyFormat := fmt.Sprintf(`"%s" #,##0.00`, f.Symbol())
	currencyStyle, err := book.NewStyle(&excelize.Style{CustomNumFmt: &currencyFormat})
	if err != nil {
		return fmt.Errorf("export: currency style: %w", err)
	}

	header := make([]any, len(cols))
	for i, c := range cols {
		header[i] = c.Header
	}
	if err := book.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("export: header: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(max(len(cols), 1), 1)
	if err != nil {
		return err
	}
	if err := book.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return err
	}

	values := make([]any, len(cols))
	for r, row := range rows {
		for i, c := range cols {
			values[i] = c.Value(row)
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := book.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("export: row %d: %w", r+1, err)
		}
	}

	for i, c := range cols {
		if !c.Currency || len(rows) == 0 {
			continue
		}
		top, err := excelize.CoordinatesToCellName(i+1, 2)
		if err != nil {
			return err
		}
		bottom, err := excelize.CoordinatesToCellName(i+1, len(rows)+1)
		if err != nil {
			return err
		}
		if err := book.SetCellStyle(sheet, top, bottom, currencyStyle); err != nil {
			return err
		}
	}

	if err := book.Write(w); err != nil {
		return fmt.Errorf("export: write workbook: %w", err)
	}
	return nil
}
