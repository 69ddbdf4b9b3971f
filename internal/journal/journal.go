// Package journal records every ensure run in SQLite so that drift and
// failures can be reviewed later with `listsync history`.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aboutus/listsync/internal/apply"
	"github.com/aboutus/listsync/internal/db"
	"github.com/aboutus/listsync/internal/ensure"
	"github.com/aboutus/listsync/internal/schema"
)

// Run statuses.
const (
	StatusComplete = "complete"
	StatusPartial  = "partial"
	StatusFailed   = "failed"
)

// Triggers.
const (
	TriggerManual = "manual"
	TriggerWatch  = "watch"
)

// timeFormat has fixed-width fractions so stored timestamps sort as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// ErrRunNotFound is returned when no run matches an id.
var ErrRunNotFound = errors.New("run not found")

// Run is one recorded ensure run.
type Run struct {
	ID              string     `json:"id"`
	List            string     `json:"list"`
	ListID          string     `json:"list_id,omitempty"`
	TemplateVersion string     `json:"template_version"`
	Trigger         string     `json:"trigger"`
	Created         bool       `json:"created"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	ChangedCount    int        `json:"changed_count"`
	UnchangedCount  int        `json:"unchanged_count"`
	FailedCount     int        `json:"failed_count"`
	Status          string     `json:"status"`
	Error           string     `json:"error,omitempty"`
}

// Item is one entity outcome within a run.
type Item struct {
	ID      int64    `json:"id"`
	RunID   string   `json:"run_id"`
	Entity  string   `json:"entity"`
	Name    string   `json:"name"`
	Action  string   `json:"action"`
	Changed []string `json:"changed,omitempty"`
	Error   string   `json:"error,omitempty"`
}

const ddl = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	list TEXT NOT NULL,
	list_id TEXT NOT NULL DEFAULT '',
	template_version TEXT NOT NULL,
	trigger_type TEXT NOT NULL,
	created INTEGER NOT NULL DEFAULT 0,
	started_at TEXT NOT NULL,
	finished_at TEXT,
	changed_count INTEGER NOT NULL DEFAULT 0,
	unchanged_count INTEGER NOT NULL DEFAULT 0,
	failed_count INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS run_items (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	entity TEXT NOT NULL,
	name TEXT NOT NULL,
	action TEXT NOT NULL,
	changed TEXT NOT NULL DEFAULT '[]',
	error TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_runs_list ON runs(list, started_at);
CREATE INDEX IF NOT EXISTS idx_run_items_run ON run_items(run_id);
`

// Journal is the run log.
type Journal struct {
	db *db.DB
}

// Open opens or creates the journal at path.
func Open(ctx context.Context, path string) (*Journal, error) {
	d, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	if err := d.InitSchema(ctx, ddl); err != nil {
		_ = d.Close()
		return nil, err
	}
	return &Journal{db: d}, nil
}

// Close closes the journal.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record stores a finished run. runErr is the error Ensure returned, if any.
func (j *Journal) Record(ctx context.Context, trigger string, rep *ensure.Report, runErr error) (Run, error) {
	run := Run{
		ID:              rep.RunID,
		List:            rep.List,
		ListID:          rep.ListID,
		TemplateVersion: rep.TemplateVersion,
		Trigger:         trigger,
		Created:         rep.Created,
		StartedAt:       rep.StartedAt.UTC(),
		Status:          StatusComplete,
	}
	if !rep.FinishedAt.IsZero() {
		finished := rep.FinishedAt.UTC()
		run.FinishedAt = &finished
	}
	for _, r := range rep.Results {
		switch {
		case r.Failed():
			run.FailedCount++
		case r.Action == apply.ActionUnchanged:
			run.UnchangedCount++
		default:
			run.ChangedCount++
		}
	}
	switch {
	case runErr != nil:
		run.Status = StatusFailed
		run.Error = runErr.Error()
	case run.FailedCount > 0:
		run.Status = StatusPartial
	}

	err := j.db.Tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO runs (id, list, list_id, template_version, trigger_type, created,
				started_at, finished_at, changed_count, unchanged_count, failed_count, status, error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, run.List, run.ListID, run.TemplateVersion, run.Trigger, run.Created,
			run.StartedAt.Format(timeFormat), timeToNullString(run.FinishedAt),
			run.ChangedCount, run.UnchangedCount, run.FailedCount, run.Status, run.Error)
		if err != nil {
			return fmt.Errorf("failed to insert run: %w", err)
		}

		for _, r := range rep.Results {
			changed, err := json.Marshal(r.Changed)
			if err != nil {
				return fmt.Errorf("failed to marshal changed attributes: %w", err)
			}
			var errText string
			if r.Err != nil {
				errText = r.Err.Error()
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO run_items (run_id, entity, name, action, changed, error)
				VALUES (?, ?, ?, ?, ?, ?)`,
				run.ID, string(r.Entity), r.Name, string(r.Action), string(changed), errText)
			if err != nil {
				return fmt.Errorf("failed to insert run item %s: %w", r.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		return Run{}, err
	}
	return run, nil
}

// Filter selects runs.
type Filter struct {
	// List matches case-insensitively; empty means every list.
	List string
	// Since drops runs started before it.
	Since time.Time
	// Limit caps the result (0 = no limit).
	Limit int
}

const runColumns = `id, list, list_id, template_version, trigger_type, created, started_at, finished_at,
	changed_count, unchanged_count, failed_count, status, error`

// Runs returns matching runs, newest first.
func (j *Journal) Runs(ctx context.Context, f Filter) ([]Run, error) {
	var conditions []string
	var args []any

	if f.List != "" {
		conditions = append(conditions, "list = ? COLLATE NOCASE")
		args = append(args, f.List)
	}
	if !f.Since.IsZero() {
		conditions = append(conditions, "started_at >= ?")
		args = append(args, f.Since.UTC().Format(timeFormat))
	}

	query := `SELECT ` + runColumns + ` FROM runs`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY started_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := j.db.RawDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// Run returns one run and its items. id may be a unique prefix.
func (j *Journal) Run(ctx context.Context, id string) (Run, []Item, error) {
	rows, err := j.db.RawDB().QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id LIKE ? || '%' LIMIT 2`, id)
	if err != nil {
		return Run{}, nil, fmt.Errorf("failed to query run: %w", err)
	}
	var matches []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			rows.Close()
			return Run{}, nil, err
		}
		matches = append(matches, run)
	}
	rows.Close()

	switch len(matches) {
	case 0:
		return Run{}, nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	case 2:
		return Run{}, nil, fmt.Errorf("run id %q is ambiguous", id)
	}
	run := matches[0]

	items, err := j.items(ctx, run.ID)
	if err != nil {
		return Run{}, nil, err
	}
	return run, items, nil
}

func (j *Journal) items(ctx context.Context, runID string) ([]Item, error) {
	rows, err := j.db.RawDB().QueryContext(ctx, `
		SELECT id, run_id, entity, name, action, changed, error
		FROM run_items WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		var changed string
		if err := rows.Scan(&it.ID, &it.RunID, &it.Entity, &it.Name, &it.Action, &changed, &it.Error); err != nil {
			return nil, fmt.Errorf("failed to scan run item: %w", err)
		}
		if changed != "" && changed != "null" {
			if err := json.Unmarshal([]byte(changed), &it.Changed); err != nil {
				return nil, fmt.Errorf("failed to unmarshal changed attributes: %w", err)
			}
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// LastAppliedVersion returns the template version of the newest run on list
// that did not fail outright, or "" when there is none.
func (j *Journal) LastAppliedVersion(ctx context.Context, list string) (string, error) {
	var version string
	err := j.db.RawDB().QueryRowContext(ctx, `
		SELECT template_version FROM runs
		WHERE list = ? COLLATE NOCASE AND status != ?
		ORDER BY started_at DESC LIMIT 1`, list, StatusFailed).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query last version: %w", err)
	}
	return version, nil
}

// CheckDowngrade reports whether applying version to list would go back to
// an older template than the last one applied. It returns that version.
func (j *Journal) CheckDowngrade(ctx context.Context, list, version string) (string, bool, error) {
	last, err := j.LastAppliedVersion(ctx, list)
	if err != nil || last == "" {
		return last, false, err
	}
	return last, schema.CompareVersions(version, last) < 0, nil
}

func scanRun(rows *sql.Rows) (Run, error) {
	var run Run
	var startedAt string
	var finishedAt sql.NullString
	err := rows.Scan(&run.ID, &run.List, &run.ListID, &run.TemplateVersion, &run.Trigger, &run.Created,
		&startedAt, &finishedAt, &run.ChangedCount, &run.UnchangedCount, &run.FailedCount, &run.Status, &run.Error)
	if err != nil {
		return Run{}, fmt.Errorf("failed to scan run: %w", err)
	}
	if t, err := time.Parse(timeFormat, startedAt); err == nil {
		run.StartedAt = t
	}
	run.FinishedAt = nullStringToTime(finishedAt)
	return run, nil
}

// timeToNullString converts a time pointer to a nullable string for SQL.
func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: t.Format(timeFormat), Valid: true}
}

// nullStringToTime converts a nullable SQL string to a time pointer.
func nullStringToTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(timeFormat, ns.String)
	if err != nil {
		return nil
	}
	return &t
}
