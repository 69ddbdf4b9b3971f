package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/aboutus/listsync/internal/apply"
	"github.com/aboutus/listsync/internal/ensure"
	"github.com/aboutus/listsync/internal/remote"
)

// setupTestJournal opens a journal in a temp dir.
func setupTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(context.Background(), filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func report(id, list, version string, started time.Time, results ...apply.Result) *ensure.Report {
	return &ensure.Report{
		RunID:           id,
		List:            list,
		ListID:          "list-1",
		TemplateVersion: version,
		StartedAt:       started,
		FinishedAt:      started.Add(2 * time.Second),
		Results:         results,
	}
}

func TestRecordAndLoad(t *testing.T) {
	ctx := context.Background()
	j := setupTestJournal(t)
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	rep := report("run-abc", "About Us", "1.2.0", start,
		apply.Result{Entity: apply.EntityField, Name: "Mission", Action: apply.ActionCreated, Changed: []string{"Title"}},
		apply.Result{Entity: apply.EntityField, Name: "Manager", Action: apply.ActionUnchanged},
		apply.Result{Entity: apply.EntityView, Name: "Org Chart", Action: apply.ActionFailed, Err: remote.ErrForbidden},
	)
	run, err := j.Record(ctx, TriggerManual, rep, nil)
	if err != nil {
		t.Fatalf("Record() failed: %v", err)
	}
	if run.Status != StatusPartial {
		t.Errorf("Status = %q, want %q", run.Status, StatusPartial)
	}
	if run.ChangedCount != 1 || run.UnchangedCount != 1 || run.FailedCount != 1 {
		t.Errorf("unexpected counts: %+v", run)
	}

	got, items, err := j.Run(ctx, "run-a")
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if !got.StartedAt.Equal(start) || got.FinishedAt == nil || !got.FinishedAt.Equal(start.Add(2*time.Second)) {
		t.Errorf("times not preserved: %+v", got)
	}

	want := []Item{
		{Entity: "field", Name: "Mission", Action: "created", Changed: []string{"Title"}},
		{Entity: "field", Name: "Manager", Action: "unchanged"},
		{Entity: "view", Name: "Org Chart", Action: "failed", Error: remote.ErrForbidden.Error()},
	}
	for i := range items {
		items[i].ID = 0
		items[i].RunID = ""
	}
	if d := cmp.Diff(want, items); d != "" {
		t.Errorf("items mismatch (-want +got):\n%s", d)
	}
}

func TestRecordFailedRun(t *testing.T) {
	ctx := context.Background()
	j := setupTestJournal(t)

	rep := report("run-1", "About Us", "1.0.0", time.Now())
	run, err := j.Record(ctx, TriggerWatch, rep, errors.New("failed to create list"))
	if err != nil {
		t.Fatalf("Record() failed: %v", err)
	}
	if run.Status != StatusFailed || run.Error == "" {
		t.Errorf("expected failed run with error, got %+v", run)
	}
}

func TestRunsFilter(t *testing.T) {
	ctx := context.Background()
	j := setupTestJournal(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i, list := range []string{"About Us", "Other", "About Us"} {
		id := string(rune('a' + i))
		if _, err := j.Record(ctx, TriggerManual, report(id, list, "1.0.0", base.Add(time.Duration(i)*time.Hour)), nil); err != nil {
			t.Fatalf("Record() failed: %v", err)
		}
	}

	runs, err := j.Runs(ctx, Filter{List: "about us"})
	if err != nil {
		t.Fatalf("Runs() failed: %v", err)
	}
	var ids []string
	for _, r := range runs {
		ids = append(ids, r.ID)
	}
	if d := cmp.Diff([]string{"c", "a"}, ids); d != "" {
		t.Errorf("runs mismatch (-want +got):\n%s", d)
	}

	runs, err = j.Runs(ctx, Filter{Since: base.Add(30 * time.Minute), Limit: 1})
	if err != nil {
		t.Fatalf("Runs() failed: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "c" {
		t.Errorf("expected newest run c, got %+v", runs)
	}
}

func TestRunNotFound(t *testing.T) {
	j := setupTestJournal(t)
	if _, _, err := j.Run(context.Background(), "nope"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

func TestCheckDowngrade(t *testing.T) {
	ctx := context.Background()
	j := setupTestJournal(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	if _, down, err := j.CheckDowngrade(ctx, "About Us", "1.0.0"); err != nil || down {
		t.Fatalf("empty journal: down=%v err=%v", down, err)
	}

	if _, err := j.Record(ctx, TriggerManual, report("r1", "About Us", "1.2.0", base), nil); err != nil {
		t.Fatalf("Record() failed: %v", err)
	}
	// A failed run never counts as applied.
	if _, err := j.Record(ctx, TriggerManual, report("r2", "About Us", "2.0.0", base.Add(time.Hour)), errors.New("boom")); err != nil {
		t.Fatalf("Record() failed: %v", err)
	}

	tests := []struct {
		version string
		down    bool
	}{
		{"1.1.9", true},
		{"1.2.0", false},
		{"1.3.0", false},
	}
	for _, tt := range tests {
		last, down, err := j.CheckDowngrade(ctx, "About Us", tt.version)
		if err != nil {
			t.Fatalf("CheckDowngrade() failed: %v", err)
		}
		if last != "1.2.0" || down != tt.down {
			t.Errorf("CheckDowngrade(%s) = %s, %v; want 1.2.0, %v", tt.version, last, down, tt.down)
		}
	}
}
