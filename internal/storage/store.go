package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/ryanbastic/go-sheetviz/internal/record"
)

var (
	// ErrNotFound is returned when a lookup finds no matching row.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when an insert violates a uniqueness constraint.
	ErrConflict = errors.New("already exists")
	// ErrInvalidCursor is returned when a pagination cursor cannot be decoded.
	ErrInvalidCursor = errors.New("invalid cursor")
)

// ListFilter narrows ListUploads. Zero fields match everything.
type ListFilter struct {
	Status  record.Status
	OwnerID uuid.UUID
}

// Page is one page of upload summaries, newest first.
type Page struct {
	Items      []record.Summary `json:"items"`
	NextCursor string           `json:"next_cursor,omitempty"`
	HasMore    bool             `json:"has_more"`
}

// UploadStore persists upload records. Aggregations run inside the database.
type UploadStore interface {
	// CreateUpload inserts a record; id and upload date are assigned by the store.
	CreateUpload(ctx context.Context, u record.NewUpload) (*record.Upload, error)

	// GetUpload returns the full record including its grid.
	GetUpload(ctx context.Context, id uuid.UUID) (*record.Upload, error)

	// ListUploads returns summaries ordered by upload date descending.
	ListUploads(ctx context.Context, filter ListFilter, cursor string, limit int) (*Page, error)

	// ListFailedUploads returns every record with status failed, newest first.
	ListFailedUploads(ctx context.Context) ([]record.Summary, error)

	// SetUploadStatus overwrites the status. Last write wins.
	SetUploadStatus(ctx context.Context, id uuid.UUID, status record.Status) error

	// DeleteUpload removes the record. Returns ErrNotFound if it does not exist.
	DeleteUpload(ctx context.Context, id uuid.UUID) error

	// UploadTotals returns the record count, summed row counts and latest upload date.
	UploadTotals(ctx context.Context) (record.Totals, error)

	// UploadsByBucket counts records per calendar bucket, ascending by label.
	UploadsByBucket(ctx context.Context, bucket record.Bucket) ([]record.BucketCount, error)
}

// UserStore persists accounts.
type UserStore interface {
	CreateUser(ctx context.Context, u record.NewUser) (*record.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*record.User, error)
	GetUserByUsername(ctx context.Context, username string) (*record.User, error)
	ListUsers(ctx context.Context) ([]record.User, error)
	// ToggleUserActive flips the active flag and returns the updated user.
	ToggleUserActive(ctx context.Context, id uuid.UUID) (*record.User, error)
	CountUsers(ctx context.Context) (int64, error)
}
