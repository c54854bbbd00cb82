package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/ryanbastic/go-sheetviz/internal/auth"
	"github.com/ryanbastic/go-sheetviz/internal/insights"
	"github.com/ryanbastic/go-sheetviz/internal/upload"
)

// --- Huma Input/Output types ---

type InsightsBody struct {
	UploadID  string          `json:"uploadId,omitempty" doc:"Summarize a stored upload" required:"false"`
	TableData json.RawMessage `json:"tableData,omitempty" doc:"Summarize inline table data" required:"false"`
}

type InsightsInput struct {
	Body InsightsBody
}

type InsightsResponse struct {
	Summary string `json:"summary"`
}

type InsightsOutput struct {
	Body InsightsResponse
}

// --- Handler ---

type InsightsHandler struct {
	client  *insights.Client
	uploads *upload.Service
	logger  *slog.Logger
}

func NewInsightsHandler(client *insights.Client, uploads *upload.Service, logger *slog.Logger) *InsightsHandler {
	return &InsightsHandler{client: client, uploads: uploads, logger: logger}
}

func registerInsightsRoutes(api huma.API, h *InsightsHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "generate-insights",
		Method:      http.MethodPost,
		Path:        "/ai/generate-insights",
		Summary:     "Summarize spreadsheet data with a language model",
		Tags:        []string{"insights"},
	}, h.Generate)
}

func (h *InsightsHandler) Generate(ctx context.Context, input *InsightsInput) (*InsightsOutput, error) {
	caller, err := auth.Require(ctx, auth.CapUploadReadOwn)
	if err != nil {
		return nil, httpError(h.logger, "generate insights", err)
	}

	var summary string
	switch {
	case input.Body.UploadID != "":
		id, err := parseID(input.Body.UploadID, "uploadId")
		if err != nil {
			return nil, err
		}
		grid, err := h.uploads.ChartData(ctx, id, caller)
		if err != nil {
			return nil, httpError(h.logger, "generate insights", err)
		}
		summary, err = h.client.SummarizeGrid(ctx, grid)
		if err != nil {
			return nil, httpError(h.logger, "generate insights", err)
		}
	case len(input.Body.TableData) > 0 && string(input.Body.TableData) != "null":
		summary, err = h.client.Summarize(ctx, input.Body.TableData)
		if err != nil {
			return nil, httpError(h.logger, "generate insights", err)
		}
	default:
		return nil, huma.Error400BadRequest("uploadId or tableData is required")
	}

	return &InsightsOutput{Body: InsightsResponse{Summary: summary}}, nil
}
