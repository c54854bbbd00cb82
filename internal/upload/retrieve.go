package upload

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/ryanbastic/go-sheetviz/internal/auth"
	"github.com/ryanbastic/go-sheetviz/internal/metrics"
	"github.com/ryanbastic/go-sheetviz/internal/record"
	"github.com/ryanbastic/go-sheetviz/internal/sheet"
	"github.com/ryanbastic/go-sheetviz/internal/storage"
)

// ChartData returns the grid of an upload to its owner or to an admin.
// A foreign record yields ErrUnauthorized, which callers present as
// ErrNotFound.
func (s *Service) ChartData(ctx context.Context, id uuid.UUID, caller *auth.Identity) (sheet.Grid, error) {
	if caller == nil {
		return sheet.Grid{}, ErrUnauthorized
	}

	entry, err := s.loadGrid(ctx, id)
	if err != nil {
		return sheet.Grid{}, err
	}
	if entry.owner != caller.UserID && !caller.IsAdmin() {
		s.logger.Debug("chart data denied", "upload_id", id, "caller", caller.UserID)
		return sheet.Grid{}, ErrUnauthorized
	}
	return entry.grid, nil
}

func (s *Service) loadGrid(ctx context.Context, id uuid.UUID) (cachedGrid, error) {
	var gen uint64
	if s.cache != nil {
		gen = s.cacheGeneration()
		if entry, ok := s.cache.Get(id); ok {
			metrics.ObserveChartCache(true)
			return entry, nil
		}
		metrics.ObserveChartCache(false)
	}

	rec, err := s.uploads.GetUpload(ctx, id)
	if err != nil {
		return cachedGrid{}, storeErr("get upload", err)
	}
	entry := cachedGrid{owner: rec.OwnerID, grid: normalizedGrid(rec)}
	if s.cache != nil {
		s.fillCache(id, entry, gen)
	}
	return entry, nil
}

func normalizedGrid(rec *record.Upload) sheet.Grid {
	g := rec.Grid()
	if g.Headers == nil {
		g.Headers = []string{}
	}
	if g.Rows == nil {
		g.Rows = []sheet.Row{}
	}
	return g
}

// Detail is the admin view of one record: its grid plus owner and status.
type Detail struct {
	ID         uuid.UUID     `json:"id"`
	FileName   string        `json:"file_name"`
	FileSize   int64         `json:"file_size"`
	Status     record.Status `json:"status"`
	UploadDate time.Time     `json:"upload_date"`
	RowCount   int           `json:"row_count"`
	Owner      record.Owner  `json:"owner"`
	Headers    []string      `json:"headers"`
	Rows       []sheet.Row   `json:"rows"`
}

// Analytics returns the full record for administrators.
func (s *Service) Analytics(ctx context.Context, id uuid.UUID) (*Detail, error) {
	rec, err := s.uploads.GetUpload(ctx, id)
	if err != nil {
		return nil, storeErr("get upload", err)
	}

	owner := record.Owner{ID: rec.OwnerID}
	u, err := s.users.GetUser(ctx, rec.OwnerID)
	switch {
	case err == nil:
		owner.Username = u.Username
		owner.Email = u.Email
	case !errors.Is(err, storage.ErrNotFound):
		return nil, storeErr("get owner", err)
	}

	g := normalizedGrid(rec)
	return &Detail{
		ID:         rec.ID,
		FileName:   rec.FileName,
		FileSize:   rec.FileSize,
		Status:     rec.Status,
		UploadDate: rec.UploadDate,
		RowCount:   rec.RowCount,
		Owner:      owner,
		Headers:    g.Headers,
		Rows:       g.Rows,
	}, nil
}
