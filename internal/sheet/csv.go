package sheet

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// CSVDecoder reads comma-separated text. CSV carries no cell types, so every
// non-empty cell is text.
type CSVDecoder struct{}

func (CSVDecoder) Decode(ctx context.Context, r io.Reader) (Grid, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var raw [][]Value
	for {
		if err := ctx.Err(); err != nil {
			return Grid{}, err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Grid{}, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		if len(raw) == 0 && len(rec) > 0 {
			rec[0] = strings.TrimPrefix(rec[0], "\ufeff")
		}
		row := make([]Value, len(rec))
		for i, s := range rec {
			if s != "" {
				row[i] = String(s)
			}
		}
		raw = append(raw, row)
	}
	return normalize(raw), nil
}
