package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aboutus/listsync/internal/apply"
	"github.com/aboutus/listsync/internal/ensure"
	"github.com/aboutus/listsync/internal/ui"
)

type resultJSON struct {
	Entity  string   `json:"entity"`
	Name    string   `json:"name"`
	Action  string   `json:"action"`
	Changed []string `json:"changed,omitempty"`
	Error   string   `json:"error,omitempty"`
}

type reportJSON struct {
	RunID           string         `json:"run_id"`
	List            string         `json:"list"`
	ListID          string         `json:"list_id,omitempty"`
	TemplateVersion string         `json:"template_version"`
	Created         bool           `json:"created"`
	Complete        bool           `json:"complete"`
	StartedAt       time.Time      `json:"started_at"`
	FinishedAt      time.Time      `json:"finished_at"`
	Counts          map[string]int `json:"counts"`
	Results         []resultJSON   `json:"results"`
	SnapshotError   string         `json:"snapshot_error,omitempty"`
}

func toReportJSON(rep *ensure.Report) reportJSON {
	out := reportJSON{
		RunID:           rep.RunID,
		List:            rep.List,
		ListID:          rep.ListID,
		TemplateVersion: rep.TemplateVersion,
		Created:         rep.Created,
		Complete:        rep.Complete(),
		StartedAt:       rep.StartedAt,
		FinishedAt:      rep.FinishedAt,
		Counts:          make(map[string]int),
		Results:         make([]resultJSON, 0, len(rep.Results)),
	}
	for action, n := range rep.Counts() {
		out.Counts[string(action)] = n
	}
	for _, r := range rep.Results {
		rj := resultJSON{Entity: string(r.Entity), Name: r.Name, Action: string(r.Action), Changed: r.Changed}
		if r.Err != nil {
			rj.Error = r.Err.Error()
		}
		out.Results = append(out.Results, rj)
	}
	if rep.SnapshotErr != nil {
		out.SnapshotError = rep.SnapshotErr.Error()
	}
	return out
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printResults prints one row per result. Unchanged entities are left out
// unless all is set.
func printResults(w io.Writer, results []apply.Result, all bool) {
	rows := [][]string{{"ENTITY", "NAME", "ACTION", "DETAIL"}}
	for _, r := range results {
		if r.Action == apply.ActionUnchanged && !all {
			continue
		}
		detail := strings.Join(r.Changed, ", ")
		if r.Err != nil {
			detail = r.Err.Error()
		}
		rows = append(rows, []string{string(r.Entity), r.Name, ui.RenderAction(string(r.Action)), detail})
	}
	if len(rows) > 1 {
		ui.Table(w, rows)
	}
}

func formatCounts(counts map[apply.Action]int) string {
	actions := make([]string, 0, len(counts))
	for a := range counts {
		actions = append(actions, string(a))
	}
	sort.Strings(actions)

	parts := make([]string, 0, len(actions))
	for _, a := range actions {
		parts = append(parts, fmt.Sprintf("%d %s", counts[apply.Action(a)], a))
	}
	return strings.Join(parts, ", ")
}

func printReport(w io.Writer, rep *ensure.Report, all bool) {
	printResults(w, rep.Results, all)

	marker := ui.RenderPass("✓")
	if !rep.Complete() {
		marker = ui.RenderFail("✗")
	}
	verb := "converged"
	if rep.Created {
		verb = "created"
	}
	fmt.Fprintf(w, "%s %q %s in %v (%s)\n", marker, rep.List, verb,
		rep.Duration().Round(time.Millisecond), formatCounts(rep.Counts()))
	if rep.SnapshotErr != nil {
		fmt.Fprintf(w, "%s snapshot refresh failed: %v\n", ui.RenderWarn("⚠"), rep.SnapshotErr)
	}
}
