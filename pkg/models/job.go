package models

import (
	"time"

	"github.com/google/uuid"
)

// JobState is the lifecycle state of a scrape job.
type JobState string

const (
	JobStateQueued  JobState = "queued"
	JobStateRunning JobState = "running"
	JobStateDone    JobState = "done"
	JobStateError   JobState = "error"
)

// Terminal reports whether no further transitions are allowed from s.
func (s JobState) Terminal() bool {
	return s == JobStateDone || s == JobStateError
}

// Job tracks one scrape job. The API returns the job_id on POST /api/v1/jobs;
// the client polls GET /api/v1/jobs/{job_id} until status is done or error.
type Job struct {
	ID             uuid.UUID  `db:"id"              json:"id"`
	Targets        []Target   `db:"targets"         json:"targets"`
	ItemLimit      int        `db:"item_limit"      json:"item_limit"`
	Columns        []string   `db:"columns"         json:"columns"`
	State          JobState   `db:"state"           json:"state"`
	Progress       int        `db:"progress"        json:"progress"`
	RecordCount    int        `db:"record_count"    json:"record_count"`
	ResultLocation string     `db:"result_location" json:"result_location,omitempty"`
	ErrorMessage   string     `db:"error_message"   json:"error_message,omitempty"`
	StartedAt      *time.Time `db:"started_at"      json:"started_at,omitempty"`
	CompletedAt    *time.Time `db:"completed_at"    json:"completed_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at"      json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"      json:"updated_at"`
}

// Progress is the externally visible snapshot of a job. It is always written
// as a whole record so readers never observe a half-updated entry.
type Progress struct {
	JobID          uuid.UUID `json:"job_id"`
	Percent        int       `json:"progress"`
	State          JobState  `json:"status"`
	Reason         string    `json:"reason,omitempty"`
	ResultLocation string    `json:"result_location,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Snapshot returns the job's current progress record.
func (j *Job) Snapshot() Progress {
	return Progress{
		JobID:          j.ID,
		Percent:        j.Progress,
		State:          j.State,
		Reason:         j.ErrorMessage,
		ResultLocation: j.ResultLocation,
		UpdatedAt:      j.UpdatedAt,
	}
}
