package openainode

import (
	"errors"
	"fmt"

	"github.com/xuri/excelize/v2"
)

var ErrSheetNotFound = errors.New("worksheet does not exist")

// WriteColumn writes values into column, one row each starting at startRow,
// and saves the workbook once. Other cells are left untouched.
func WriteColumn(path, sheet, column string, startRow int, values []string) error {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	index, err := f.GetSheetIndex(sheet)
	if err != nil {
		return err
	}
	if index == -1 {
		return fmt.Errorf("%w: %q", ErrSheetNotFound, sheet)
	}

	for i, value := range values {
		cell, err := excelize.JoinCellName(column, startRow+i)
		if err != nil {
			return fmt.Errorf("invalid cell %s%d: %w", column, startRow+i, err)
		}

		if err := f.SetCellValue(sheet, cell, value); err != nil {
			return err
		}
	}

	if err := f.Save(); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}

	return nil
}
