package record

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ryanbastic/go-sheetviz/internal/sheet"
)

// Status is the processing state of an upload.
type Status string

const (
	StatusPending   Status = "pending"
	StatusProcessed Status = "processed"
	StatusFailed    Status = "failed"
)

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusProcessed, StatusFailed:
		return st, nil
	}
	return "", fmt.Errorf("invalid status %q (pending, processed, failed)", s)
}

// Upload is one parsed spreadsheet. Headers, Rows and RowCount are written
// once at creation; only Status changes afterwards.
type Upload struct {
	ID          uuid.UUID   `json:"id"`
	OwnerID     uuid.UUID   `json:"owner_id"`
	FileName    string      `json:"file_name"`
	FilePath    string      `json:"file_path"`
	FileSize    int64       `json:"file_size"`
	ContentType string      `json:"content_type"`
	Headers     []string    `json:"headers"`
	Rows        []sheet.Row `json:"rows"`
	RowCount    int         `json:"row_count"`
	Status      Status      `json:"status"`
	UploadDate  time.Time   `json:"upload_date"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Grid returns the stored header/row grid.
func (u *Upload) Grid() sheet.Grid {
	return sheet.Grid{Headers: u.Headers, Rows: u.Rows}
}

// NewUpload is what the ingestion path hands to the store.
type NewUpload struct {
	OwnerID     uuid.UUID
	FileName    string
	FilePath    string
	FileSize    int64
	ContentType string
	Grid        sheet.Grid
	Status      Status
}

// Owner is the public profile of the user who uploaded a file.
type Owner struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
}

// Summary is an upload without its grid, joined with its owner.
type Summary struct {
	ID         uuid.UUID `json:"id"`
	FileName   string    `json:"file_name"`
	FileSize   int64     `json:"file_size"`
	RowCount   int       `json:"row_count"`
	Status     Status    `json:"status"`
	UploadDate time.Time `json:"upload_date"`
	Owner      Owner     `json:"owner"`
}

// Totals are fleet-wide upload aggregates.
type Totals struct {
	Files      int64
	Rows       int64
	LastUpload *time.Time
}
