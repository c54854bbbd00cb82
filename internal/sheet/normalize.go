package sheet

import "github.com/xuri/excelize/v2"

// normalize builds a Grid from raw decoded rows.
//
// Leading and trailing empty rows are dropped and the first non-empty row is
// the header. Empty rows between data rows stay as all-null rows. Blank
// header cells and columns that only appear in data rows are named by
// their spreadsheet column letter. Every data row is padded with nulls to the
// header width.
func normalize(raw [][]Value) Grid {
	g := Grid{Headers: []string{}, Rows: []Row{}}

	var headerRow []Value
	seenHeader := false
	width := 0
	kept := 0
	for _, r := range raw {
		if !seenHeader {
			if blank(r) {
				continue
			}
			headerRow = r
			seenHeader = true
			width = len(r)
			continue
		}
		g.Rows = append(g.Rows, Row(r))
		if blank(r) {
			continue
		}
		kept = len(g.Rows)
		if len(r) > width {
			width = len(r)
		}
	}
	if !seenHeader {
		return g
	}
	g.Rows = g.Rows[:kept]

	g.Headers = make([]string, width)
	for i := range width {
		if i < len(headerRow) && !headerRow[i].IsNull() && headerRow[i].Text() != "" {
			g.Headers[i] = headerRow[i].Text()
			continue
		}
		g.Headers[i] = columnName(i)
	}

	for i, r := range g.Rows {
		if len(r) == width {
			continue
		}
		padded := make(Row, width)
		copy(padded, r)
		g.Rows[i] = padded
	}
	return g
}

func blank(r []Value) bool {
	for _, v := range r {
		if !v.IsNull() {
			return false
		}
	}
	return true
}

// columnName returns the spreadsheet letter for a zero-based column index.
func columnName(i int) string {
	name, err := excelize.ColumnNumberToName(i + 1)
	if err != nil {
		return ""
	}
	return name
}
