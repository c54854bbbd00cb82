package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
	"github.com/ryanbastic/go-sheetviz/internal/auth"
	"github.com/ryanbastic/go-sheetviz/internal/sheet"
	"github.com/ryanbastic/go-sheetviz/internal/upload"
)

// multipartOverhead leaves room for part headers and boundaries around the file.
const multipartOverhead = 64 << 10

// --- Huma Input/Output types ---

type UploadForm struct {
	File huma.FormFile `form:"file" doc:"Spreadsheet to ingest (.xlsx or .csv)"`
}

type CreateUploadInput struct {
	RawBody huma.MultipartFormFiles[UploadForm]
}

type CreateUploadResponse struct {
	UploadID uuid.UUID `json:"uploadId" doc:"Identifier of the new record"`
}

type CreateUploadOutput struct {
	Body CreateUploadResponse
}

type UploadIDInput struct {
	ID string `path:"id" doc:"Upload UUID"`
}

type ChartDataOutput struct {
	Body sheet.Grid
}

// --- Handler ---

type UploadHandler struct {
	uploads  *upload.Service
	maxBytes int64
	logger   *slog.Logger
}

func NewUploadHandler(uploads *upload.Service, maxBytes int64, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{uploads: uploads, maxBytes: maxBytes, logger: logger}
}

func registerUploadRoutes(api huma.API, h *UploadHandler) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-upload",
		Method:        http.MethodPost,
		Path:          "/uploads",
		Summary:       "Upload a spreadsheet",
		Tags:          []string{"uploads"},
		DefaultStatus: http.StatusCreated,
		MaxBodyBytes:  h.maxBytes + multipartOverhead,
	}, h.CreateUpload)

	huma.Register(api, huma.Operation{
		OperationID: "get-chart-data",
		Method:      http.MethodGet,
		Path:        "/uploads/{id}/chart-data",
		Summary:     "Headers and rows of an upload",
		Tags:        []string{"uploads"},
	}, h.ChartData)
}

func (h *UploadHandler) CreateUpload(ctx context.Context, input *CreateUploadInput) (*CreateUploadOutput, error) {
	caller, err := auth.Require(ctx, auth.CapUploadWrite)
	if err != nil {
		return nil, httpError(h.logger, "create upload", err)
	}

	form := input.RawBody.Data()
	f := form.File
	if !f.IsSet {
		return nil, huma.Error400BadRequest("no file uploaded")
	}
	defer f.Close()

	if f.Size > h.maxBytes {
		return nil, tooLarge(h.maxBytes)
	}
	data, err := io.ReadAll(io.LimitReader(f, h.maxBytes+1))
	if err != nil {
		return nil, huma.Error400BadRequest("read upload", err)
	}
	if int64(len(data)) > h.maxBytes {
		return nil, tooLarge(h.maxBytes)
	}

	id, err := h.uploads.Ingest(ctx, upload.IngestRequest{
		OwnerID:     caller.UserID,
		FileName:    f.Filename,
		ContentType: f.ContentType,
		Data:        data,
	})
	if err != nil {
		return nil, httpError(h.logger, "create upload", err)
	}
	return &CreateUploadOutput{Body: CreateUploadResponse{UploadID: id}}, nil
}

func tooLarge(limit int64) error {
	return huma.NewError(http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds %d bytes", limit))
}

func (h *UploadHandler) ChartData(ctx context.Context, input *UploadIDInput) (*ChartDataOutput, error) {
	caller, err := auth.Require(ctx, auth.CapUploadReadOwn)
	if err != nil {
		return nil, httpError(h.logger, "chart data", err)
	}
	// A malformed id names no record the caller owns.
	id, err := uuid.Parse(input.ID)
	if err != nil {
		return nil, httpError(h.logger, "chart data", upload.ErrNotFound)
	}

	grid, err := h.uploads.ChartData(ctx, id, caller)
	if err != nil {
		return nil, httpError(h.logger, "chart data", err)
	}
	return &ChartDataOutput{Body: grid}, nil
}
