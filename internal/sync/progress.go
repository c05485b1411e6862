package sync

import (
	"slices"
	"time"

	"github.com/stacklok/catalog-cache/internal/catalog"
)

// Status is the state of a sync run.
type Status string

const (
	// StatusIdle means no run is active or recently finished
	StatusIdle Status = "idle"
	// StatusPending means the run is registered but has not fetched yet
	StatusPending Status = "pending"
	// StatusFetching means a page request is in flight
	StatusFetching Status = "fetching"
	// StatusProcessing means a fetched page is being prepared
	StatusProcessing Status = "processing"
	// StatusSaving means a batch is being written
	StatusSaving Status = "saving"
	// StatusCompleted means the run finished, possibly with non-fatal errors
	StatusCompleted Status = "completed"
	// StatusError means the run aborted
	StatusError Status = "error"
	// StatusCancelled means the run was cancelled
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status ends a run.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError || s == StatusCancelled
}

// Progress is a snapshot of a sync run.
type Progress struct {
	ProfileID      string              `json:"profile_id"`
	RunID          string              `json:"run_id,omitempty"`
	Full           bool                `json:"full"`
	Status         Status              `json:"status"`
	ContentType    catalog.ContentType `json:"content_type,omitempty"`
	Fraction       float64             `json:"fraction_complete"`
	ItemsProcessed int                 `json:"items_processed"`
	Errors         []string            `json:"errors"`
	StartedAt      time.Time           `json:"started_at,omitzero"`
	FinishedAt     *time.Time          `json:"finished_at,omitempty"`
}

// IdleProgress is the progress of a profile without a visible run.
func IdleProgress(profileID string) Progress {
	return Progress{ProfileID: profileID, Status: StatusIdle, Errors: []string{}}
}

func (p *Progress) clone() Progress {
	cp := *p
	cp.Errors = slices.Clone(p.Errors)
	if cp.Errors == nil {
		cp.Errors = []string{}
	}
	if p.FinishedAt != nil {
		t := *p.FinishedAt
		cp.FinishedAt = &t
	}
	return cp
}
