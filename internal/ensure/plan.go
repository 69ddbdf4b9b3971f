package ensure

import (
	"context"

	"github.com/aboutus/listsync/internal/apply"
	"github.com/aboutus/listsync/internal/diff"
	"github.com/aboutus/listsync/internal/remote"
)

// Plan is what Ensure would do, computed without writing anything.
type Plan struct {
	List string
	// Exists is false when Ensure would create the list.
	Exists  bool
	Entries []PlanEntry
}

// PlanEntry is one pending or settled entity.
type PlanEntry struct {
	Entity  apply.Entity
	Name    string
	Action  apply.Action
	Changed []string
}

// Pending returns the entries that would cause a write.
func (p *Plan) Pending() []PlanEntry {
	var out []PlanEntry
	for _, e := range p.Entries {
		if e.Action != apply.ActionUnchanged {
			out = append(out, e)
		}
	}
	return out
}

// Plan diffs the remote list against the template. It issues only reads.
func (o *Orchestrator) Plan(ctx context.Context, name string) (*Plan, error) {
	if err := ValidateName(name, nil).Err(); err != nil {
		return nil, err
	}
	if o.tokens != nil {
		if _, err := o.tokens.Get(ctx); err != nil {
			return nil, err
		}
	}

	p := &Plan{List: name}
	info, err := o.inspector.ListByTitle(ctx, name)
	switch {
	case remote.IsNotFound(err):
		if err := ValidateName(name, o.existing).Err(); err != nil {
			return nil, err
		}
		p.Entries = append(p.Entries, PlanEntry{Entity: apply.EntityList, Name: name, Action: apply.ActionCreated})
		for _, f := range o.tmpl.Fields {
			p.Entries = append(p.Entries, PlanEntry{Entity: apply.EntityField, Name: f.InternalName, Action: apply.ActionCreated})
		}
		for _, v := range o.tmpl.Views {
			action := apply.ActionCreated
			// New lists come with a default view, which gets updated instead.
			if v.Title == "All Items" {
				action = apply.ActionUpdated
			}
			p.Entries = append(p.Entries, PlanEntry{Entity: apply.EntityView, Name: v.Title, Action: action})
		}
		return p, nil
	case err != nil:
		return nil, err
	}
	p.Exists = true

	fields, err := o.inspector.ListFields(ctx, info.ID)
	if err != nil {
		return nil, err
	}
	views, err := o.inspector.ListViews(ctx, info.ID)
	if err != nil {
		return nil, err
	}

	listEntry := PlanEntry{Entity: apply.EntityList, Name: name, Action: apply.ActionUnchanged}
	if updates := diff.List(o.tmpl.List, info); len(updates) > 0 {
		listEntry.Action = apply.ActionUpdated
		listEntry.Changed = diff.SortedKeys(updates)
	}
	p.Entries = append(p.Entries, listEntry)

	for _, t := range o.tmpl.Fields {
		e := PlanEntry{Entity: apply.EntityField, Name: t.InternalName, Action: apply.ActionUnchanged}
		d := diff.Field(t, fields)
		switch {
		case !d.Exists:
			e.Action = apply.ActionCreated
		case d.TypeChange != "":
			e.Action = apply.ActionSkipped
			e.Changed = []string{"TypeAsString"}
		case d.NeedsUpdate():
			e.Action = apply.ActionUpdated
			e.Changed = diff.SortedKeys(d.Updates)
		}
		p.Entries = append(p.Entries, e)
	}

	for _, t := range o.tmpl.Views {
		e := PlanEntry{Entity: apply.EntityView, Name: t.Title, Action: apply.ActionUnchanged}
		d := diff.View(t, views)
		switch {
		case !d.Exists:
			e.Action = apply.ActionCreated
		default:
			e.Changed = diff.SortedKeys(d.Updates)
			if !d.FieldsMatch {
				e.Changed = append(e.Changed, "ViewFields")
			}
			if len(e.Changed) > 0 {
				e.Action = apply.ActionUpdated
			}
		}
		p.Entries = append(p.Entries, e)
	}
	return p, nil
}
