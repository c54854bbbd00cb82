// Package insights asks an OpenAI-compatible chat completion endpoint for a
// short written summary of tabular data.
package insights

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ryanbastic/go-sheetviz/internal/circuitbreaker"
	"github.com/ryanbastic/go-sheetviz/internal/sheet"
)

const promptPrefix = "Analyze the following spreadsheet data and provide key insights, trends, and recommendations in a concise summary:\n"

// ErrUnavailable wraps every failure to obtain a summary from upstream,
// including an open circuit.
var ErrUnavailable = errors.New("insights unavailable")

// Options configures a Client.
type Options struct {
	URL     string
	APIKey  string
	Model   string
	Timeout time.Duration
	// MaxRows caps the number of grid rows sent upstream.
	MaxRows int
}

// Client calls the completion endpoint through a circuit breaker.
type Client struct {
	httpClient *http.Client
	breaker    *circuitbreaker.Breaker
	opts       Options
}

func NewClient(opts Options, breaker *circuitbreaker.Breaker) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		breaker:    breaker,
		opts:       opts,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// SummarizeGrid summarizes a decoded grid, truncated to MaxRows rows.
func (c *Client) SummarizeGrid(ctx context.Context, g sheet.Grid) (string, error) {
	if c.opts.MaxRows > 0 && len(g.Rows) > c.opts.MaxRows {
		g.Rows = g.Rows[:c.opts.MaxRows]
	}
	data, err := json.Marshal(g)
	if err != nil {
		return "", fmt.Errorf("marshal grid: %w", err)
	}
	return c.Summarize(ctx, data)
}

// Summarize sends arbitrary JSON table data upstream and returns the
// first completion.
func (c *Client) Summarize(ctx context.Context, table json.RawMessage) (string, error) {
	if c.opts.APIKey == "" {
		return "", fmt.Errorf("%w: no api key configured", ErrUnavailable)
	}

	var summary string
	err := c.breaker.Execute(func() error {
		s, err := c.complete(ctx, promptPrefix+string(table))
		if err != nil {
			return err
		}
		summary = s
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return summary, nil
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:    c.opts.Model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out chatResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("upstream error: %s", out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("upstream returned no choices")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}
