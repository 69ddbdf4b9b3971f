package ensure

import (
	"time"

	"github.com/google/uuid"

	"github.com/aboutus/listsync/internal/apply"
)

// Report describes one Ensure run. It is returned even when Ensure fails, so
// callers can record how far the run got.
type Report struct {
	RunID           string
	List            string
	ListID          string
	TemplateVersion string
	// Created is set when this run created the list.
	Created    bool
	Results    []apply.Result
	StartedAt  time.Time
	FinishedAt time.Time
	// SnapshotErr is set when the snapshot refresh after applying failed.
	// The changes themselves were made.
	SnapshotErr error
}

func newReport(list, version string, now time.Time) *Report {
	return &Report{
		RunID:           uuid.NewString(),
		List:            list,
		TemplateVersion: version,
		StartedAt:       now,
	}
}

// Complete reports whether every entity converged.
func (r *Report) Complete() bool {
	return len(r.Failed()) == 0
}

// Failed returns the results that left an entity unconverged.
func (r *Report) Failed() []apply.Result {
	var out []apply.Result
	for _, res := range r.Results {
		if res.Failed() {
			out = append(out, res)
		}
	}
	return out
}

// Counts tallies results by action.
func (r *Report) Counts() map[apply.Action]int {
	counts := make(map[apply.Action]int)
	for _, res := range r.Results {
		counts[res.Action]++
	}
	return counts
}

// Duration is how long the run took.
func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
