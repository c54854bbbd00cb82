package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/ryanbastic/go-sheetviz/internal/artifact"
	"github.com/ryanbastic/go-sheetviz/internal/record"
	"github.com/ryanbastic/go-sheetviz/internal/storage"
	"github.com/ryanbastic/go-sheetviz/internal/trigger"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// ListOptions filters and pages the admin upload listing.
type ListOptions struct {
	Status  string
	OwnerID uuid.UUID
	Cursor  string
	Limit   int
}

// ListUploads returns upload summaries with owner profiles, newest first.
func (s *Service) ListUploads(ctx context.Context, opts ListOptions) (*storage.Page, error) {
	var filter storage.ListFilter
	if opts.Status != "" {
		st, err := record.ParseStatus(opts.Status)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrValidation, err)
		}
		filter.Status = st
	}
	filter.OwnerID = opts.OwnerID

	limit := opts.Limit
	switch {
	case limit <= 0:
		limit = defaultPageSize
	case limit > maxPageSize:
		limit = maxPageSize
	}

	page, err := s.uploads.ListUploads(ctx, filter, opts.Cursor, limit)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidCursor) {
			return nil, fmt.Errorf("%w: %w", ErrValidation, err)
		}
		return nil, storeErr("list uploads", err)
	}
	return page, nil
}

// SetStatus overwrites a record's status. Concurrent updates are last-write-wins.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, status string) (record.Status, error) {
	st, err := record.ParseStatus(status)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if err := s.uploads.SetUploadStatus(ctx, id, st); err != nil {
		return "", storeErr("set status", err)
	}
	s.logger.Info("upload status changed", "upload_id", id, "status", st)
	return st, nil
}

// Delete removes the stored artifact and then the record. Artifact removal
// is idempotent, so a retry after a partial failure completes; deleting an
// already deleted record returns ErrNotFound.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	rec, err := s.uploads.GetUpload(ctx, id)
	if err != nil {
		return storeErr("get upload", err)
	}

	if rec.FilePath != "" {
		if err := s.artifacts.Delete(ctx, rec.FilePath); err != nil {
			return fmt.Errorf("%w: delete artifact: %w", ErrStorage, err)
		}
	}
	if err := s.uploads.DeleteUpload(ctx, id); err != nil {
		return storeErr("delete upload", err)
	}
	s.evict(id)

	s.logger.Info("upload deleted", "upload_id", id, "file_name", rec.FileName)
	s.publish(trigger.EventUploadDeleted, rec.ID, rec.OwnerID, rec.FileName, rec.RowCount, string(rec.Status))
	return nil
}

// Download is an open handle on an upload's original file.
type Download struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.ReadCloser
}

// OpenArtifact opens the original uploaded bytes. The caller closes Body.
func (s *Service) OpenArtifact(ctx context.Context, id uuid.UUID) (*Download, error) {
	rec, err := s.uploads.GetUpload(ctx, id)
	if err != nil {
		return nil, storeErr("get upload", err)
	}
	if rec.FilePath == "" {
		return nil, ErrNotFound
	}

	body, err := s.artifacts.Open(ctx, rec.FilePath)
	if err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: open artifact: %w", ErrStorage, err)
	}

	ct := rec.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	return &Download{FileName: rec.FileName, ContentType: ct, Size: rec.FileSize, Body: body}, nil
}

// FailedUploads is the error log: every record with status failed.
func (s *Service) FailedUploads(ctx context.Context) ([]record.Summary, error) {
	items, err := s.uploads.ListFailedUploads(ctx)
	if err != nil {
		return nil, storeErr("list failed uploads", err)
	}
	return items, nil
}

// DashboardStats is the admin overview.
type DashboardStats struct {
	TotalUsers          int64      `json:"totalUsers"`
	TotalFilesUploaded  int64      `json:"totalFilesUploaded"`
	TotalRowsAnalyzed   int64      `json:"totalRowsAnalyzed"`
	LastUploadTimestamp *time.Time `json:"lastUploadTimestamp"`
}

// DashboardStats aggregates inside the database. An empty store yields
// zero counts and a nil timestamp.
func (s *Service) DashboardStats(ctx context.Context) (*DashboardStats, error) {
	users, err := s.users.CountUsers(ctx)
	if err != nil {
		return nil, storeErr("count users", err)
	}
	totals, err := s.uploads.UploadTotals(ctx)
	if err != nil {
		return nil, storeErr("upload totals", err)
	}
	return &DashboardStats{
		TotalUsers:          users,
		TotalFilesUploaded:  totals.Files,
		TotalRowsAnalyzed:   totals.Rows,
		LastUploadTimestamp: totals.LastUpload,
	}, nil
}

// UploadStats counts uploads per calendar bucket, ascending by label.
func (s *Service) UploadStats(ctx context.Context, bucket string) ([]record.BucketCount, error) {
	b, err := record.ParseBucket(bucket)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	counts, err := s.uploads.UploadsByBucket(ctx, b)
	if err != nil {
		return nil, storeErr("uploads by bucket", err)
	}
	return counts, nil
}

// ListUsers returns every account.
func (s *Service) ListUsers(ctx context.Context) ([]record.User, error) {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, storeErr("list users", err)
	}
	return users, nil
}

// ErrUserNotFound is returned by ToggleUserActive for an unknown user.
var ErrUserNotFound = errors.New("user not found")

// ToggleUserActive flips a user's active flag. Inactive users cannot log in.
func (s *Service) ToggleUserActive(ctx context.Context, id uuid.UUID) (*record.User, error) {
	u, err := s.users.ToggleUserActive(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, storeErr("toggle user", err)
	}
	s.logger.Info("user active flag toggled", "user_id", id, "active", u.Active)
	return u, nil
}
