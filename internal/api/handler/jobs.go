package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kiranshivaraju/reelscraper/internal/api/response"
	"github.com/kiranshivaraju/reelscraper/internal/jobs"
	"github.com/kiranshivaraju/reelscraper/internal/sink"
	"github.com/kiranshivaraju/reelscraper/pkg/models"
)

// JobSubmitter starts and cancels jobs.
type JobSubmitter interface {
	Submit(ctx context.Context, req jobs.Request) (*models.Job, error)
	Cancel(id uuid.UUID) error
}

// JobReader answers progress and result queries.
type JobReader interface {
	Progress(ctx context.Context, id uuid.UUID) (models.Progress, error)
	Result(ctx context.Context, id uuid.UUID) (*sink.Artifact, error)
}

type submitJobRequest struct {
	Usernames []string `json:"usernames"`
	Hashtags  []string `json:"hashtags"`
	MaxItems  *int     `json:"max_items"`
	Columns   []string `json:"columns"`
}

type submitJobResponse struct {
	JobID string `json:"job_id"`
}

// NewSubmitJobHandler returns an http.HandlerFunc for POST /api/v1/jobs.
// max_items falls back to defaultLimit when omitted.
func NewSubmitJobHandler(svc JobSubmitter, defaultLimit int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req submitJobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "Invalid JSON body", nil)
			return
		}

		limit := defaultLimit
		if req.MaxItems != nil {
			limit = *req.MaxItems
		}

		job, err := svc.Submit(r.Context(), jobs.Request{
			Targets:   models.TargetsFrom(req.Usernames, req.Hashtags),
			ItemLimit: limit,
			Columns:   req.Columns,
		})
		if err != nil {
			switch {
			case errors.Is(err, jobs.ErrInvalidRequest):
				response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, err.Error(), nil)
			case errors.Is(err, jobs.ErrShuttingDown):
				response.Error(w, http.StatusServiceUnavailable, response.CodeShuttingDown,
					"The server is shutting down", nil)
			default:
				slog.Error("failed to submit job", "error", err)
				response.Error(w, http.StatusInternalServerError, response.CodeInternal,
					"An unexpected error occurred", nil)
			}
			return
		}

		response.Accepted(w, submitJobResponse{JobID: job.ID.String()})
	}
}

// NewGetJobHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
func NewGetJobHandler(svc JobReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseJobID(w, r)
		if !ok {
			return
		}

		p, err := svc.Progress(r.Context(), id)
		if err != nil {
			writeJobError(w, err)
			return
		}
		response.JSON(w, p)
	}
}

// NewCancelJobHandler returns an http.HandlerFunc for DELETE /api/v1/jobs/{jobID}.
// Jobs that already finished answer 409.
func NewCancelJobHandler(svc JobSubmitter, reader JobReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseJobID(w, r)
		if !ok {
			return
		}

		err := svc.Cancel(id)
		if errors.Is(err, jobs.ErrJobNotFound) {
			p, perr := reader.Progress(r.Context(), id)
			if perr != nil {
				writeJobError(w, perr)
				return
			}
			response.Error(w, http.StatusConflict, response.CodeJobFinished,
				"Job has already finished", map[string]any{"status": p.State})
			return
		}
		if err != nil {
			writeJobError(w, err)
			return
		}
		response.NoContent(w)
	}
}

// NewDownloadHandler returns an http.HandlerFunc for
// GET /api/v1/jobs/{jobID}/download.
func NewDownloadHandler(svc JobReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseJobID(w, r)
		if !ok {
			return
		}

		art, err := svc.Result(r.Context(), id)
		if err != nil {
			writeJobError(w, err)
			return
		}

		response.Attachment(w, art.Filename(), "text/csv", art.Data)
	}
}

func parseJobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "jobID must be a valid UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}

func writeJobError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		response.Error(w, http.StatusNotFound, response.CodeJobNotFound, "Job not found", nil)
	case errors.Is(err, jobs.ErrNotReady):
		response.Error(w, http.StatusNotFound, response.CodeNotReady, "Job result is not ready", nil)
	case errors.Is(err, sink.ErrResultMissing):
		response.Error(w, http.StatusNotFound, response.CodeResultMissing, "Job result could not be found", nil)
	default:
		slog.Error("job request failed", "error", err)
		response.Error(w, http.StatusInternalServerError, response.CodeInternal,
			"An unexpected error occurred", nil)
	}
}
