// Package apply converges a remote list towards a schema template.
//
// The applier walks the template in order and issues one remote call per
// change, never in parallel. Every entity is independent: a field or view
// that fails is logged and reported, and the walk continues with the next
// one. Nothing is retried beyond what the settle policy allows, so a
// subsequent run picks up whatever is left.
package apply

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/aboutus/listsync/internal/diff"
	"github.com/aboutus/listsync/internal/remote"
	"github.com/aboutus/listsync/internal/schema"
	"github.com/aboutus/listsync/internal/settle"
)

// Options configures an Applier.
type Options struct {
	// Policy governs pauses and transient retries. Defaults to settle.Default().
	Policy *settle.Policy
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
	// Observer, if set, sees every result.
	Observer Observer
}

// Applier issues the create/update calls that converge a list.
type Applier struct {
	store    remote.Store
	policy   *settle.Policy
	logger   *zap.Logger
	observer Observer
}

// New creates an Applier writing to store.
func New(store remote.Store, opts Options) *Applier {
	if opts.Policy == nil {
		opts.Policy = settle.Default()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Applier{
		store:    store,
		policy:   opts.Policy,
		logger:   opts.Logger,
		observer: opts.Observer,
	}
}

// List converges the list's own metadata.
func (a *Applier) List(ctx context.Context, list remote.ListInfo, t schema.ListSettings) Result {
	r := Result{Entity: EntityList, Name: list.Title, Action: ActionUnchanged}

	updates := diff.List(t, list)
	if len(updates) > 0 {
		err := a.policy.Do(ctx, settle.OpListUpdate, func(ctx context.Context) error {
			return a.store.UpdateList(ctx, list.ID, updates)
		})
		if err != nil {
			r.Action = ActionFailed
			r.Err = fmt.Errorf("failed to update list: %w", err)
		} else {
			r.Action = ActionUpdated
			r.Changed = diff.SortedKeys(updates)
		}
	}

	a.report(list, r)
	return r
}

// Fields converges every field template, in template order.
func (a *Applier) Fields(ctx context.Context, list remote.ListInfo, templates []schema.FieldTemplate, fields []remote.RemoteField) []Result {
	results := make([]Result, 0, len(templates))
	for _, t := range templates {
		r := a.field(ctx, list, t, fields)
		a.report(list, r)
		results = append(results, r)
	}
	return results
}

func (a *Applier) field(ctx context.Context, list remote.ListInfo, t schema.FieldTemplate, fields []remote.RemoteField) Result {
	d := diff.Field(t, fields)

	switch {
	case !d.Exists:
		return a.createField(ctx, list, t)

	case d.TypeChange != "":
		return Result{
			Entity: EntityField,
			Name:   t.InternalName,
			Action: ActionSkipped,
			Err:    fmt.Errorf("%w: %s is %s, want %s", ErrTypeChange, t.InternalName, d.Remote.TypeName, d.TypeChange),
		}

	case d.NeedsUpdate():
		r := Result{Entity: EntityField, Name: t.InternalName}
		err := a.policy.Do(ctx, settle.OpFieldUpdate, func(ctx context.Context) error {
			return a.store.UpdateField(ctx, list.ID, *d.Remote, d.Updates)
		})
		if err != nil {
			r.Action = ActionFailed
			r.Err = fmt.Errorf("failed to update field: %w", err)
			return r
		}
		r.Action = ActionUpdated
		r.Changed = diff.SortedKeys(d.Updates)
		return r

	default:
		return Result{Entity: EntityField, Name: t.InternalName, Action: ActionUnchanged}
	}
}

// createField adds a missing field, then corrects its title when the store
// titled it differently.
func (a *Applier) createField(ctx context.Context, list remote.ListInfo, t schema.FieldTemplate) Result {
	r := Result{Entity: EntityField, Name: t.InternalName}

	spec, err := a.buildField(ctx, list, t)
	if err != nil {
		r.Action = ActionSkipped
		r.Err = err
		return r
	}

	var created remote.RemoteField
	err = a.policy.Do(ctx, settle.OpFieldCreate, func(ctx context.Context) error {
		var err error
		created, err = a.store.AddField(ctx, list.ID, spec)
		return err
	})
	if err != nil {
		r.Action = ActionFailed
		r.Err = fmt.Errorf("failed to create field: %w", err)
		return r
	}
	r.Action = ActionCreated

	want := t.DisplayTitle()
	if created.Title != want {
		updates := map[string]any{"Title": want}
		err := a.policy.Do(ctx, settle.OpFieldUpdate, func(ctx context.Context) error {
			return a.store.UpdateField(ctx, list.ID, created, updates)
		})
		if err != nil {
			r.Err = fmt.Errorf("created but failed to set title %q: %w", want, err)
			return r
		}
		r.Changed = []string{"Title"}
	}
	return r
}

// Views converges every view template, in template order.
func (a *Applier) Views(ctx context.Context, list remote.ListInfo, templates []schema.ViewTemplate, views []remote.RemoteView) []Result {
	results := make([]Result, 0, len(templates))
	for _, t := range templates {
		r := a.view(ctx, list, t, views)
		a.report(list, r)
		results = append(results, r)
	}
	return results
}

func (a *Applier) view(ctx context.Context, list remote.ListInfo, t schema.ViewTemplate, views []remote.RemoteView) Result {
	r := Result{Entity: EntityView, Name: t.Title}
	d := diff.View(t, views)

	if !d.Exists {
		var created remote.RemoteView
		err := a.policy.Do(ctx, settle.OpViewCreate, func(ctx context.Context) error {
			var err error
			created, err = a.store.AddView(ctx, list.ID, t.Title, t.Personal, t.Settings)
			return err
		})
		if err != nil {
			r.Action = ActionFailed
			r.Err = fmt.Errorf("failed to create view: %w", err)
			return r
		}
		r.Action = ActionCreated
		if _, err := a.viewFields(ctx, list, created, t.Fields); err != nil {
			r.Err = err
		}
		return r
	}

	var errs []error
	if d.NeedsUpdate() {
		err := a.policy.Do(ctx, settle.OpViewUpdate, func(ctx context.Context) error {
			return a.store.UpdateView(ctx, list.ID, d.Remote.ID, d.Updates)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to update view: %w", err))
		} else {
			r.Changed = append(r.Changed, diff.SortedKeys(d.Updates)...)
		}
	}

	reset, err := a.viewFields(ctx, list, *d.Remote, t.Fields)
	if err != nil {
		errs = append(errs, err)
	}
	if reset {
		r.Changed = append(r.Changed, "ViewFields")
	}

	r.Err = errors.Join(errs...)
	switch {
	case r.Err != nil && len(r.Changed) == 0:
		r.Action = ActionFailed
	case len(r.Changed) > 0:
		r.Action = ActionUpdated
	default:
		r.Action = ActionUnchanged
	}
	return r
}

// viewFields makes the view show exactly want, in order. The store has no
// reorder call, so any difference empties the view and re-adds every field
// one call at a time. Reports whether the reset happened.
func (a *Applier) viewFields(ctx context.Context, list remote.ListInfo, view remote.RemoteView, want []string) (bool, error) {
	if diff.SameFields(want, view.Fields) {
		return false, nil
	}

	err := a.policy.Do(ctx, settle.OpViewFieldsReset, func(ctx context.Context) error {
		return a.store.RemoveAllViewFields(ctx, list.ID, view.ID)
	})
	if err != nil {
		return false, fmt.Errorf("failed to clear view fields: %w", err)
	}

	var errs []error
	for _, name := range want {
		err := a.policy.Do(ctx, settle.OpViewFieldAdd, func(ctx context.Context) error {
			return a.store.AddViewField(ctx, list.ID, view.ID, name)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to add view field %s: %w", name, err))
		}
	}
	return true, errors.Join(errs...)
}

func (a *Applier) report(list remote.ListInfo, r Result) {
	fields := []zap.Field{
		zap.String("list", list.Title),
		zap.String("entity", string(r.Entity)),
		zap.String("name", r.Name),
		zap.String("action", string(r.Action)),
	}
	if len(r.Changed) > 0 {
		fields = append(fields, zap.Strings("changed", r.Changed))
	}

	switch {
	case r.Err != nil:
		a.logger.Warn("entity not converged", append(fields, zap.Error(r.Err))...)
	case r.Action == ActionUnchanged:
		a.logger.Debug("entity up to date", fields...)
	default:
		a.logger.Info("entity converged", fields...)
	}

	if a.observer != nil {
		a.observer(list.Title, r)
	}
}
