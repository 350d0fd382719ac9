package core

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// Sheet is one worksheet read as a grid of raw cell strings.
type Sheet struct {
	Index int
	Name  string
	Rows  [][]string
}

// ReadWorkbook loads every worksheet of an xlsx workbook. Cells are read raw
// so date cells keep their serial value. Any failure to open or read the
// workbook is reported as ErrUnreadableWorkbook.
func ReadWorkbook(r io.Reader) ([]Sheet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableWorkbook, err)
	}
	defer f.Close()

	names := f.GetSheetList()
	sheets := make([]Sheet, 0, len(names))
	for i, name := range names {
		rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("%w: sheet %q: %v", ErrUnreadableWorkbook, name, err)
		}
		sheets = append(sheets, Sheet{Index: i, Name: name, Rows: rows})
	}
	return sheets, nil
}
