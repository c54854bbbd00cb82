package upload

import (
	"bytes"
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/ryanbastic/go-sheetviz/internal/artifact"
	"github.com/ryanbastic/go-sheetviz/internal/metrics"
	"github.com/ryanbastic/go-sheetviz/internal/record"
	"github.com/ryanbastic/go-sheetviz/internal/sheet"
	"github.com/ryanbastic/go-sheetviz/internal/trigger"
)

// IngestRequest is one uploaded file.
type IngestRequest struct {
	OwnerID     uuid.UUID
	FileName    string
	ContentType string
	Data        []byte
}

// Ingest decodes the file, stores the original bytes and persists the grid
// as a processed record. Nothing is written when decoding fails.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (uuid.UUID, error) {
	if len(req.Data) == 0 {
		metrics.ObserveIngest(metrics.OutcomeDecodeError, 0)
		return uuid.Nil, fmt.Errorf("%w: empty file", ErrDecode)
	}

	dec, err := sheet.ForFile(req.FileName, req.ContentType)
	if err != nil {
		metrics.ObserveIngest(metrics.OutcomeDecodeError, 0)
		return uuid.Nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	grid, err := dec.Decode(ctx, bytes.NewReader(req.Data))
	if err != nil {
		metrics.ObserveIngest(metrics.OutcomeDecodeError, 0)
		return uuid.Nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	key := artifact.NewKey(req.OwnerID, req.FileName)
	if err := s.artifacts.Put(ctx, key, bytes.NewReader(req.Data)); err != nil {
		metrics.ObserveIngest(metrics.OutcomeStoreError, 0)
		return uuid.Nil, fmt.Errorf("%w: store artifact: %w", ErrStorage, err)
	}

	rec, err := s.uploads.CreateUpload(ctx, record.NewUpload{
		OwnerID:     req.OwnerID,
		FileName:    req.FileName,
		FilePath:    key,
		FileSize:    int64(len(req.Data)),
		ContentType: req.ContentType,
		Grid:        grid,
		Status:      record.StatusProcessed,
	})
	if err != nil {
		metrics.ObserveIngest(metrics.OutcomeStoreError, 0)
		s.recordFailure(ctx, req, key, err)
		return uuid.Nil, fmt.Errorf("%w: create record: %w", ErrStorage, err)
	}

	metrics.ObserveIngest(metrics.OutcomeProcessed, rec.RowCount)
	s.logger.Info("upload processed",
		"upload_id", rec.ID,
		"owner_id", rec.OwnerID,
		"file_name", rec.FileName,
		"rows", rec.RowCount,
	)
	s.publish(trigger.EventUploadProcessed, rec.ID, rec.OwnerID, rec.FileName, rec.RowCount, string(rec.Status))
	return rec.ID, nil
}

// recordFailure removes the orphaned artifact and leaves a failed stub
// record so the admin error log shows the attempt.
func (s *Service) recordFailure(ctx context.Context, req IngestRequest, key string, cause error) {
	if err := s.artifacts.Delete(ctx, key); err != nil {
		s.logger.Error("remove orphaned artifact", "key", key, "error", err)
	}

	stub, err := s.uploads.CreateUpload(ctx, record.NewUpload{
		OwnerID:     req.OwnerID,
		FileName:    req.FileName,
		FileSize:    int64(len(req.Data)),
		ContentType: req.ContentType,
		Status:      record.StatusFailed,
	})
	if err != nil {
		s.logger.Error("persist upload failed",
			"owner_id", req.OwnerID,
			"file_name", req.FileName,
			"error", cause,
			"stub_error", err,
		)
		return
	}
	s.logger.Error("persist upload failed",
		"owner_id", req.OwnerID,
		"file_name", req.FileName,
		"stub_id", stub.ID,
		"error", cause,
	)
	s.publish(trigger.EventUploadFailed, stub.ID, stub.OwnerID, stub.FileName, 0, string(stub.Status))
}
