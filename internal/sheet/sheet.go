// Package sheet turns uploaded spreadsheet bytes into a rectangular grid of
// typed cells: one header row followed by data rows in file order.
package sheet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
)

// ErrDecode is returned when an upload cannot be interpreted as a spreadsheet.
var ErrDecode = errors.New("decode spreadsheet")

// Row is one data row, positionally aligned with Grid.Headers.
type Row []Value

// Grid is the decoded content of the first worksheet.
type Grid struct {
	Headers []string `json:"headers"`
	Rows    []Row    `json:"rows"`
}

// RowCount returns the number of data rows.
func (g Grid) RowCount() int { return len(g.Rows) }

// Decoder converts a spreadsheet byte stream into a Grid.
type Decoder interface {
	Decode(ctx context.Context, r io.Reader) (Grid, error)
}

const (
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	mimeCSV  = "text/csv"
)

// ForFile picks a decoder from the file extension, falling back to the
// declared content type when the name has no extension.
func ForFile(name, contentType string) (Decoder, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		return XLSXDecoder{}, nil
	case ".csv":
		return CSVDecoder{}, nil
	case "":
		mt, _, _ := mime.ParseMediaType(contentType)
		switch mt {
		case mimeXLSX:
			return XLSXDecoder{}, nil
		case mimeCSV:
			return CSVDecoder{}, nil
		}
	}
	return nil, fmt.Errorf("%w: unsupported file type %q", ErrDecode, name)
}
