// Package client talks to the roast HTTP API.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/roastpage/internal/domain"
	"github.com/timmy/roastpage/internal/logger"
)

// ErrNotFound is returned when the server does not know the roast.
var ErrNotFound = errors.New("roast not found")

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("roast api: HTTP %d", e.Status)
	}
	return fmt.Sprintf("roast api: HTTP %d: %s", e.Status, e.Message)
}

// Created is the answer to Create.
type Created struct {
	Success              bool     `json:"success"`
	ID                   string   `json:"id"`
	LimitedFunctionality bool     `json:"limitedFunctionality"`
	MissingOptionalVars  []string `json:"missingOptionalVars"`
}

// Result is a roast with its feedback, as served by GET /api/v1/roasts/:id.
type Result struct {
	Success              bool                  `json:"success"`
	Roast                *domain.Roast         `json:"roast"`
	FeedbackItems        []domain.FeedbackItem `json:"feedbackItems"`
	LimitedFunctionality bool                  `json:"limitedFunctionality"`
	MissingOptionalVars  []string              `json:"missingOptionalVars"`
	Error                string                `json:"error"`
}

type listResponse struct {
	Success bool           `json:"success"`
	Roasts  []domain.Roast `json:"roasts"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Client is a small resty wrapper around the roast API.
type Client struct {
	http *resty.Client
}

// New creates a Client for the server at baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json").
			SetError(&errorResponse{}),
	}
}

// Create submits targetURL for roasting.
func (c *Client) Create(ctx context.Context, targetURL string) (*Created, error) {
	var out Created
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"url": targetURL}).
		SetResult(&out).
		Post("/api/v1/roasts")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// Get fetches a roast and its feedback.
func (c *Client) Get(ctx context.Context, id string) (*Result, error) {
	var out Result
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetResult(&out).
		Get("/api/v1/roasts/{id}")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// Retry restarts a roast.
func (c *Client) Retry(ctx context.Context, id string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", id).
		Post("/api/v1/roasts/{id}/retry")
	return check(resp, err)
}

// List returns roasts newest first.
func (c *Client) List(ctx context.Context, limit, offset int) ([]domain.Roast, error) {
	var out listResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"limit":  fmt.Sprint(limit),
			"offset": fmt.Sprint(offset),
		}).
		SetResult(&out).
		Get("/api/v1/roasts")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return out.Roasts, nil
}

// Wait polls Get every interval until the roast leaves processing or ctx
// ends. Transient errors other than ErrNotFound are logged and retried.
func (c *Client) Wait(ctx context.Context, id string, interval time.Duration) (*Result, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		result, err := c.Get(ctx, id)
		switch {
		case err == nil:
			if result.Roast != nil && result.Roast.Status.IsTerminal() {
				return result, nil
			}
		case errors.Is(err, ErrNotFound):
			return nil, err
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			logger.CtxWarn(ctx, "Polling roast %s failed: %v", id, err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if resp.IsSuccess() {
		return nil
	}
	if resp.StatusCode() == http.StatusNotFound {
		return ErrNotFound
	}
	apiErr := &APIError{Status: resp.StatusCode()}
	if body, ok := resp.Error().(*errorResponse); ok && body != nil {
		apiErr.Message = body.Error
	}
	return apiErr
}
