package api

import (
	"context"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
	"github.com/ryanbastic/go-sheetviz/internal/auth"
	"github.com/ryanbastic/go-sheetviz/internal/record"
	"github.com/ryanbastic/go-sheetviz/internal/storage"
	"github.com/ryanbastic/go-sheetviz/internal/upload"
)

// --- Huma Input/Output types ---

type ListUsersInput struct{}

type ListUsersOutput struct {
	Body []record.User
}

type UserIDInput struct {
	ID string `path:"id" doc:"User UUID"`
}

type ListUploadsInput struct {
	Status  string `query:"status" doc:"pending, processed or failed" required:"false"`
	OwnerID string `query:"owner_id" doc:"Only uploads of this user" required:"false"`
	Cursor  string `query:"cursor" doc:"Opaque cursor from a previous page" required:"false"`
	Limit   int    `query:"limit" doc:"Page size, at most 200" required:"false"`
}

type ListUploadsOutput struct {
	Body storage.Page
}

type SetStatusBody struct {
	Status string `json:"status" doc:"pending, processed or failed" required:"true"`
}

type SetStatusInput struct {
	ID   string `path:"id" doc:"Upload UUID"`
	Body SetStatusBody
}

type StatusResponse struct {
	ID     uuid.UUID     `json:"id"`
	Status record.Status `json:"status"`
}

type SetStatusOutput struct {
	Body StatusResponse
}

type DeleteUploadResponse struct {
	ID      uuid.UUID `json:"id"`
	Deleted bool      `json:"deleted"`
}

type DeleteUploadOutput struct {
	Body DeleteUploadResponse
}

type AnalyticsOutput struct {
	Body upload.Detail
}

type FileOutput struct {
	ContentType        string `header:"Content-Type"`
	ContentDisposition string `header:"Content-Disposition"`
	Body               []byte
}

type ErrorLogsInput struct{}

type ErrorLogsOutput struct {
	Body []record.Summary
}

type StatsInput struct{}

type StatsOutput struct {
	Body upload.DashboardStats
}

type GraphInput struct {
	Bucket string `path:"bucket" doc:"daily, weekly or monthly"`
}

type GraphOutput struct {
	Body []record.BucketCount
}

// --- Handler ---

type AdminHandler struct {
	uploads *upload.Service
	logger  *slog.Logger
}

func NewAdminHandler(uploads *upload.Service, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{uploads: uploads, logger: logger}
}

func registerAdminRoutes(api huma.API, h *AdminHandler) {
	tags := []string{"admin"}

	huma.Register(api, huma.Operation{
		OperationID: "admin-list-users",
		Method:      http.MethodGet,
		Path:        "/admin/users",
		Summary:     "List accounts",
		Tags:        tags,
	}, h.ListUsers)

	huma.Register(api, huma.Operation{
		OperationID: "admin-toggle-user",
		Method:      http.MethodPut,
		Path:        "/admin/users/{id}/toggle",
		Summary:     "Activate or deactivate an account",
		Tags:        tags,
	}, h.ToggleUser)

	huma.Register(api, huma.Operation{
		OperationID: "admin-list-uploads",
		Method:      http.MethodGet,
		Path:        "/admin/uploads",
		Summary:     "List uploads, newest first",
		Tags:        tags,
	}, h.ListUploads)

	huma.Register(api, huma.Operation{
		OperationID: "admin-upload-graph",
		Method:      http.MethodGet,
		Path:        "/admin/uploads/graph/{bucket}",
		Summary:     "Upload counts per calendar bucket",
		Tags:        tags,
	}, h.Graph)

	huma.Register(api, huma.Operation{
		OperationID: "admin-set-upload-status",
		Method:      http.MethodPut,
		Path:        "/admin/uploads/{id}/status",
		Summary:     "Overwrite the status of an upload",
		Tags:        tags,
	}, h.SetStatus)

	huma.Register(api, huma.Operation{
		OperationID: "admin-download-upload",
		Method:      http.MethodGet,
		Path:        "/admin/uploads/{id}/download",
		Summary:     "Download the original file",
		Tags:        tags,
	}, h.Download)

	huma.Register(api, huma.Operation{
		OperationID: "admin-delete-upload",
		Method:      http.MethodDelete,
		Path:        "/admin/uploads/{id}",
		Summary:     "Delete an upload and its file",
		Tags:        tags,
	}, h.DeleteUpload)

	huma.Register(api, huma.Operation{
		OperationID: "admin-upload-analytics",
		Method:      http.MethodGet,
		Path:        "/admin/uploads/{id}/analytics",
		Summary:     "Full record with owner",
		Tags:        tags,
	}, h.Analytics)

	huma.Register(api, huma.Operation{
		OperationID: "admin-export-csv",
		Method:      http.MethodGet,
		Path:        "/admin/uploads/{id}/export/csv",
		Summary:     "Export the grid as CSV",
		Tags:        tags,
	}, h.ExportCSV)

	huma.Register(api, huma.Operation{
		OperationID: "admin-export-pdf",
		Method:      http.MethodGet,
		Path:        "/admin/uploads/{id}/export/pdf",
		Summary:     "Export the grid as a PDF table",
		Tags:        tags,
	}, h.ExportPDF)

	huma.Register(api, huma.Operation{
		OperationID: "admin-error-logs",
		Method:      http.MethodGet,
		Path:        "/admin/error-logs",
		Summary:     "Failed uploads",
		Tags:        tags,
	}, h.ErrorLogs)

	huma.Register(api, huma.Operation{
		OperationID: "admin-error-logs-csv",
		Method:      http.MethodGet,
		Path:        "/admin/error-logs/download",
		Summary:     "Failed uploads as CSV",
		Tags:        tags,
	}, h.ErrorLogsCSV)

	huma.Register(api, huma.Operation{
		OperationID: "admin-stats",
		Method:      http.MethodGet,
		Path:        "/admin/stats",
		Summary:     "Dashboard totals",
		Tags:        tags,
	}, h.Stats)
}

func (h *AdminHandler) requireAdmin(ctx context.Context, op string) error {
	if _, err := auth.Require(ctx, auth.CapAdmin); err != nil {
		return httpError(h.logger, op, err)
	}
	return nil
}

func (h *AdminHandler) ListUsers(ctx context.Context, _ *ListUsersInput) (*ListUsersOutput, error) {
	if err := h.requireAdmin(ctx, "list users"); err != nil {
		return nil, err
	}
	users, err := h.uploads.ListUsers(ctx)
	if err != nil {
		return nil, httpError(h.logger, "list users", err)
	}
	return &ListUsersOutput{Body: users}, nil
}

func (h *AdminHandler) ToggleUser(ctx context.Context, input *UserIDInput) (*UserOutput, error) {
	if err := h.requireAdmin(ctx, "toggle user"); err != nil {
		return nil, err
	}
	id, err := parseID(input.ID, "user id")
	if err != nil {
		return nil, err
	}
	u, err := h.uploads.ToggleUserActive(ctx, id)
	if err != nil {
		return nil, httpError(h.logger, "toggle user", err)
	}
	return &UserOutput{Body: *u}, nil
}

func (h *AdminHandler) ListUploads(ctx context.Context, input *ListUploadsInput) (*ListUploadsOutput, error) {
	if err := h.requireAdmin(ctx, "list uploads"); err != nil {
		return nil, err
	}
	opts := upload.ListOptions{Status: input.Status, Cursor: input.Cursor, Limit: input.Limit}
	if input.OwnerID != "" {
		owner, err := parseID(input.OwnerID, "owner_id")
		if err != nil {
			return nil, err
		}
		opts.OwnerID = owner
	}

	page, err := h.uploads.ListUploads(ctx, opts)
	if err != nil {
		return nil, httpError(h.logger, "list uploads", err)
	}
	if page.Items == nil {
		page.Items = []record.Summary{}
	}
	return &ListUploadsOutput{Body: *page}, nil
}

func (h *AdminHandler) Graph(ctx context.Context, input *GraphInput) (*GraphOutput, error) {
	if err := h.requireAdmin(ctx, "upload graph"); err != nil {
		return nil, err
	}
	counts, err := h.uploads.UploadStats(ctx, input.Bucket)
	if err != nil {
		return nil, httpError(h.logger, "upload graph", err)
	}
	return &GraphOutput{Body: counts}, nil
}

func (h *AdminHandler) SetStatus(ctx context.Context, input *SetStatusInput) (*SetStatusOutput, error) {
	if err := h.requireAdmin(ctx, "set status"); err != nil {
		return nil, err
	}
	id, err := parseID(input.ID, "upload id")
	if err != nil {
		return nil, err
	}
	st, err := h.uploads.SetStatus(ctx, id, input.Body.Status)
	if err != nil {
		return nil, httpError(h.logger, "set status", err)
	}
	return &SetStatusOutput{Body: StatusResponse{ID: id, Status: st}}, nil
}

func (h *AdminHandler) Download(ctx context.Context, input *UploadIDInput) (*huma.StreamResponse, error) {
	if err := h.requireAdmin(ctx, "download upload"); err != nil {
		return nil, err
	}
	id, err := parseID(input.ID, "upload id")
	if err != nil {
		return nil, err
	}
	dl, err := h.uploads.OpenArtifact(ctx, id)
	if err != nil {
		return nil, httpError(h.logger, "download upload", err)
	}

	return &huma.StreamResponse{
		Body: func(hctx huma.Context) {
			defer dl.Body.Close()
			hctx.SetHeader("Content-Type", dl.ContentType)
			hctx.SetHeader("Content-Disposition", attachment(dl.FileName))
			if dl.Size > 0 {
				hctx.SetHeader("Content-Length", strconv.FormatInt(dl.Size, 10))
			}
			hctx.SetStatus(http.StatusOK)
			if _, err := io.Copy(hctx.BodyWriter(), dl.Body); err != nil {
				h.logger.Warn("download interrupted", "upload_id", id, "error", err)
			}
		},
	}, nil
}

func (h *AdminHandler) DeleteUpload(ctx context.Context, input *UploadIDInput) (*DeleteUploadOutput, error) {
	if err := h.requireAdmin(ctx, "delete upload"); err != nil {
		return nil, err
	}
	id, err := parseID(input.ID, "upload id")
	if err != nil {
		return nil, err
	}
	if err := h.uploads.Delete(ctx, id); err != nil {
		return nil, httpError(h.logger, "delete upload", err)
	}
	return &DeleteUploadOutput{Body: DeleteUploadResponse{ID: id, Deleted: true}}, nil
}

func (h *AdminHandler) Analytics(ctx context.Context, input *UploadIDInput) (*AnalyticsOutput, error) {
	if err := h.requireAdmin(ctx, "upload analytics"); err != nil {
		return nil, err
	}
	id, err := parseID(input.ID, "upload id")
	if err != nil {
		return nil, err
	}
	d, err := h.uploads.Analytics(ctx, id)
	if err != nil {
		return nil, httpError(h.logger, "upload analytics", err)
	}
	return &AnalyticsOutput{Body: *d}, nil
}

func (h *AdminHandler) ExportCSV(ctx context.Context, input *UploadIDInput) (*FileOutput, error) {
	if err := h.requireAdmin(ctx, "export csv"); err != nil {
		return nil, err
	}
	id, err := parseID(input.ID, "upload id")
	if err != nil {
		return nil, err
	}
	data, name, err := h.uploads.ExportCSV(ctx, id)
	if err != nil {
		return nil, httpError(h.logger, "export csv", err)
	}
	return &FileOutput{ContentType: "text/csv; charset=utf-8", ContentDisposition: attachment(name), Body: data}, nil
}

func (h *AdminHandler) ExportPDF(ctx context.Context, input *UploadIDInput) (*FileOutput, error) {
	if err := h.requireAdmin(ctx, "export pdf"); err != nil {
		return nil, err
	}
	id, err := parseID(input.ID, "upload id")
	if err != nil {
		return nil, err
	}
	data, name, err := h.uploads.ExportPDF(ctx, id)
	if err != nil {
		return nil, httpError(h.logger, "export pdf", err)
	}
	return &FileOutput{ContentType: "application/pdf", ContentDisposition: attachment(name), Body: data}, nil
}

func (h *AdminHandler) ErrorLogs(ctx context.Context, _ *ErrorLogsInput) (*ErrorLogsOutput, error) {
	if err := h.requireAdmin(ctx, "error logs"); err != nil {
		return nil, err
	}
	items, err := h.uploads.FailedUploads(ctx)
	if err != nil {
		return nil, httpError(h.logger, "error logs", err)
	}
	if items == nil {
		items = []record.Summary{}
	}
	return &ErrorLogsOutput{Body: items}, nil
}

func (h *AdminHandler) ErrorLogsCSV(ctx context.Context, _ *ErrorLogsInput) (*FileOutput, error) {
	if err := h.requireAdmin(ctx, "error logs csv"); err != nil {
		return nil, err
	}
	data, err := h.uploads.FailedUploadsCSV(ctx)
	if err != nil {
		return nil, httpError(h.logger, "error logs csv", err)
	}
	return &FileOutput{ContentType: "text/csv; charset=utf-8", ContentDisposition: attachment("error-logs.csv"), Body: data}, nil
}

func (h *AdminHandler) Stats(ctx context.Context, _ *StatsInput) (*StatsOutput, error) {
	if err := h.requireAdmin(ctx, "dashboard stats"); err != nil {
		return nil, err
	}
	stats, err := h.uploads.DashboardStats(ctx)
	if err != nil {
		return nil, httpError(h.logger, "dashboard stats", err)
	}
	return &StatsOutput{Body: *stats}, nil
}

func attachment(name string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": name}); v != "" {
		return v
	}
	return "attachment"
}
