package upload

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/google/uuid"
	"github.com/ryanbastic/go-sheetviz/internal/sheet"
)

// ExportCSV renders an upload's grid as CSV: the header row, then one line
// per data row. Null cells are empty fields.
func (s *Service) ExportCSV(ctx context.Context, id uuid.UUID) ([]byte, string, error) {
	rec, err := s.uploads.GetUpload(ctx, id)
	if err != nil {
		return nil, "", storeErr("get upload", err)
	}

	data, err := gridCSV(normalizedGrid(rec))
	if err != nil {
		return nil, "", err
	}
	return data, rec.FileName + ".csv", nil
}

func gridCSV(g sheet.Grid) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(g.Headers); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	line := make([]string, 0, len(g.Headers))
	for _, row := range g.Rows {
		line = line[:0]
		for _, v := range row {
			line = append(line, v.Text())
		}
		if err := w.Write(line); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// FailedUploadsCSV renders the error log as CSV with columns
// File Name, Upload Date (RFC 3339, UTC) and Status.
func (s *Service) FailedUploadsCSV(ctx context.Context) ([]byte, error) {
	items, err := s.FailedUploads(ctx)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Write([]string{"File Name", "Upload Date", "Status"})
	for _, it := range items {
		w.Write([]string{it.FileName, it.UploadDate.UTC().Format(time.RFC3339), string(it.Status)})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("write error log csv: %w", err)
	}
	return buf.Bytes(), nil
}

const (
	pdfRowHeight   = 6.0
	pdfMinColWidth = 18.0
)

// ExportPDF renders an upload's grid as a landscape A4 table titled with the
// file name. The header row repeats on every page; cell text that does not
// fit its column is cut with an ellipsis.
func (s *Service) ExportPDF(ctx context.Context, id uuid.UUID) ([]byte, string, error) {
	rec, err := s.uploads.GetUpload(ctx, id)
	if err != nil {
		return nil, "", storeErr("get upload", err)
	}

	data, err := gridPDF(rec.FileName, normalizedGrid(rec), rec.UploadDate)
	if err != nil {
		return nil, "", err
	}
	return data, rec.FileName + ".pdf", nil
}

func gridPDF(title string, g sheet.Grid, uploaded time.Time) ([]byte, error) {
	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetCreationDate(uploaded)
	pdf.SetAutoPageBreak(false, 0)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pageW, pageH := pdf.GetPageSize()
	left, _, right, bottom := pdf.GetMargins()
	usable := pageW - left - right

	colW := usable
	if n := len(g.Headers); n > 0 {
		colW = max(usable/float64(n), pdfMinColWidth)
	}
	perPage := max(int(usable/colW), 1)

	header := func() {
		pdf.SetFont("Helvetica", "B", 9)
		pdf.SetFillColor(230, 230, 230)
		for _, h := range g.Headers[:min(perPage, len(g.Headers))] {
			pdf.CellFormat(colW, pdfRowHeight, fitText(pdf, tr(h), colW), "1", 0, "L", true, 0, "")
		}
		pdf.Ln(pdfRowHeight)
		pdf.SetFont("Helvetica", "", 9)
	}

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(usable, 10, fitText(pdf, tr(title), usable), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(usable, pdfRowHeight, fmt.Sprintf("%d rows, uploaded %s", len(g.Rows), uploaded.UTC().Format(time.RFC3339)), "", 1, "L", false, 0, "")
	pdf.Ln(2)
	if len(g.Headers) == 0 {
		return writePDF(pdf)
	}
	if perPage < len(g.Headers) {
		pdf.CellFormat(usable, pdfRowHeight, fmt.Sprintf("showing the first %d of %d columns", perPage, len(g.Headers)), "", 1, "L", false, 0, "")
	}
	header()

	for _, row := range g.Rows {
		if pdf.GetY()+pdfRowHeight > pageH-bottom {
			pdf.AddPage()
			header()
		}
		for _, v := range row[:min(perPage, len(row))] {
			pdf.CellFormat(colW, pdfRowHeight, fitText(pdf, tr(v.Text()), colW), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(pdfRowHeight)
	}
	return writePDF(pdf)
}

func writePDF(pdf *fpdf.Fpdf) ([]byte, error) {
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// fitText cuts s so it fits a cell of width w at the current font.
func fitText(pdf *fpdf.Fpdf, s string, w float64) string {
	limit := w - 2*pdf.GetCellMargin()
	if pdf.GetStringWidth(s) <= limit {
		return s
	}
	r := []rune(s)
	for len(r) > 0 && pdf.GetStringWidth(string(r)+"...") > limit {
		r = r[:len(r)-1]
	}
	return string(r) + "..."
}
