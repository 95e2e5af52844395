// Package client talks to the reelscraper HTTP API.
package client

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/kiranshivaraju/reelscraper/pkg/models"
)

// ErrNotFound is returned for unknown jobs and unavailable results.
var ErrNotFound = errors.New("not found")

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("%s: %s (%d)", e.Code, e.Message, e.Status)
}

// Is makes every 404 match ErrNotFound.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

type errorEnvelope struct {
	Error APIError `json:"error"`
}

// SubmitRequest is the body of POST /api/v1/jobs. A zero MaxItems lets the
// server apply its default.
type SubmitRequest struct {
	Usernames []string `json:"usernames,omitempty"`
	Hashtags  []string `json:"hashtags,omitempty"`
	MaxItems  int      `json:"max_items,omitempty"`
	Columns   []string `json:"columns,omitempty"`
}

// Download is a fetched result table.
type Download struct {
	Filename string
	Data     []byte
}

// Client is a thin API client.
type Client struct {
	http *resty.Client
}

// New returns a Client for baseURL. apiKey may be empty when the server runs
// without authentication.
func New(baseURL, apiKey string) *Client {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(30*time.Second).
		SetHeader("Accept", "application/json").
		SetError(&errorEnvelope{})
	if apiKey != "" {
		c.SetAuthToken(apiKey)
	}
	instrument(c, "reelscraper/client/http")
	return &Client{http: c}
}

// Submit starts a job and returns its ID.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	var out struct {
		Data struct {
			JobID string `json:"job_id"`
		} `json:"data"`
	}
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/api/v1/jobs")
	if err := check(res, err); err != nil {
		return "", err
	}
	return out.Data.JobID, nil
}

// Status returns the job's progress record.
func (c *Client) Status(ctx context.Context, jobID string) (models.Progress, error) {
	var out struct {
		Data models.Progress `json:"data"`
	}
	res, err := c.http.R().
		SetContext(ctx).
		SetPathParam("jobID", jobID).
		SetResult(&out).
		Get("/api/v1/jobs/{jobID}")
	if err := check(res, err); err != nil {
		return models.Progress{}, err
	}
	return out.Data, nil
}

// Cancel asks the server to stop a queued or running job.
func (c *Client) Cancel(ctx context.Context, jobID string) error {
	res, err := c.http.R().
		SetContext(ctx).
		SetPathParam("jobID", jobID).
		Delete("/api/v1/jobs/{jobID}")
	return check(res, err)
}

// Download fetches the job's result table.
func (c *Client) Download(ctx context.Context, jobID string) (*Download, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetPathParam("jobID", jobID).
		SetHeader("Accept", "text/csv").
		Get("/api/v1/jobs/{jobID}/download")
	if err := check(res, err); err != nil {
		return nil, err
	}

	name := jobID + ".csv"
	if _, params, err := mime.ParseMediaType(res.Header().Get("Content-Disposition")); err == nil && params["filename"] != "" {
		name = params["filename"]
	}
	return &Download{Filename: name, Data: res.Body()}, nil
}

// Wait polls Status every interval until the job is terminal or ctx ends.
// onProgress, if set, sees every polled record.
func (c *Client) Wait(ctx context.Context, jobID string, interval time.Duration, onProgress func(models.Progress)) (models.Progress, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		p, err := c.Status(ctx, jobID)
		if err != nil {
			return p, err
		}
		if onProgress != nil {
			onProgress(p)
		}
		if p.State.Terminal() {
			return p, nil
		}
		select {
		case <-ctx.Done():
			return p, ctx.Err()
		case <-ticker.C:
		}
	}
}

func check(res *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if !res.IsError() {
		return nil
	}
	apiErr := &APIError{Status: res.StatusCode()}
	if env, ok := res.Error().(*errorEnvelope); ok && env != nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
	}
	return apiErr
}
