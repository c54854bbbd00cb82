package sheet

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// XLSXDecoder reads the first worksheet of an Office Open XML workbook.
// Cell kinds follow the stored cell type: numeric cells become numbers,
// boolean cells booleans, and everything else text.
type XLSXDecoder struct{}

func (XLSXDecoder) Decode(ctx context.Context, r io.Reader) (Grid, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return Grid{}, fmt.Errorf("%w: open workbook: %v", ErrDecode, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return normalize(nil), nil
	}
	name := sheets[0]

	rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
	if err != nil {
		return Grid{}, fmt.Errorf("%w: read sheet %q: %v", ErrDecode, name, err)
	}

	raw := make([][]Value, 0, len(rows))
	for ri, cols := range rows {
		if err := ctx.Err(); err != nil {
			return Grid{}, err
		}
		row := make([]Value, len(cols))
		for ci, text := range cols {
			if text == "" {
				continue
			}
			axis, err := excelize.CoordinatesToCellName(ci+1, ri+1)
			if err != nil {
				return Grid{}, fmt.Errorf("%w: %v", ErrDecode, err)
			}
			typ, err := f.GetCellType(name, axis)
			if err != nil {
				return Grid{}, fmt.Errorf("%w: cell %s: %v", ErrDecode, axis, err)
			}
			row[ci] = typedValue(typ, text)
		}
		raw = append(raw, row)
	}
	return normalize(raw), nil
}

func typedValue(typ excelize.CellType, text string) Value {
	switch typ {
	case excelize.CellTypeBool:
		switch strings.ToUpper(text) {
		case "1", "TRUE":
			return Bool(true)
		case "0", "FALSE":
			return Bool(false)
		}
		return String(text)
	case excelize.CellTypeUnset, excelize.CellTypeNumber, excelize.CellTypeFormula:
		if f, err := strconv.ParseFloat(text, 64); err == nil {
			return Number(f)
		}
		return String(text)
	default:
		return String(text)
	}
}
