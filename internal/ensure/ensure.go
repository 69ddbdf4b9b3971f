// Package ensure guarantees that a named list exists remotely and matches a
// schema template.
//
// An Orchestrator runs Inspector -> Differ -> Applier once per Ensure call.
// Calls are idempotent: every call re-reads the remote state and only issues
// writes for actual differences, so a partially converged list is finished
// by simply calling Ensure again.
//
// Ensure calls for the same list must not overlap. Nothing here locks
// against that; the remote service gives no way to serialize schema writes
// across clients anyway.
package ensure

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aboutus/listsync/internal/apply"
	"github.com/aboutus/listsync/internal/inspect"
	"github.com/aboutus/listsync/internal/remote"
	"github.com/aboutus/listsync/internal/schema"
	"github.com/aboutus/listsync/internal/settle"
)

// Options configures an Orchestrator.
type Options struct {
	Policy *settle.Policy
	Logger *zap.Logger
	// Tokens, if set, is made fresh before any remote call.
	Tokens *remote.TokenCache
	// Observer sees every apply result as it happens.
	Observer apply.Observer
	// ExistingListNames are names a new list must not take. Only consulted
	// when the list does not exist yet.
	ExistingListNames []string
	// Now defaults to time.Now.
	Now func() time.Time
}

// Orchestrator converges one remote list at a time towards a template.
type Orchestrator struct {
	store     remote.Store
	tmpl      *schema.Template
	inspector *inspect.Inspector
	applier   *apply.Applier
	policy    *settle.Policy
	logger    *zap.Logger
	tokens    *remote.TokenCache
	existing  []string
	now       func() time.Time

	mu     sync.RWMutex
	list   remote.ListInfo
	fields []remote.RemoteField
	views  []remote.RemoteView
}

// New creates an Orchestrator for tmpl over store.
func New(store remote.Store, tmpl *schema.Template, opts Options) *Orchestrator {
	if opts.Policy == nil {
		opts.Policy = settle.Default()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{
		store:     store,
		tmpl:      tmpl,
		inspector: inspect.New(store),
		applier: apply.New(store, apply.Options{
			Policy:   opts.Policy,
			Logger:   opts.Logger,
			Observer: opts.Observer,
		}),
		policy:   opts.Policy,
		logger:   opts.Logger,
		tokens:   opts.Tokens,
		existing: opts.ExistingListNames,
		now:      opts.Now,
	}
}

// Template returns the template being enforced.
func (o *Orchestrator) Template() *schema.Template {
	return o.tmpl
}

// Ensure makes the list called name exist and match the template.
//
// Only failures that leave nothing to converge are returned: an invalid
// name, a token that cannot be obtained, a list that can be neither found
// nor created, or an initial snapshot that cannot be read. Everything else
// is reported per entity in the returned Report, which is never nil.
func (o *Orchestrator) Ensure(ctx context.Context, name string) (*Report, error) {
	rep := newReport(name, o.tmpl.Version, o.now())
	log := o.logger.With(zap.String("run_id", rep.RunID), zap.String("list", name))
	log.Info("ensure started", zap.String("template_version", o.tmpl.Version))

	err := o.ensure(ctx, name, rep, log)
	rep.FinishedAt = o.now()
	if err != nil {
		log.Error("ensure failed", zap.Error(err))
		return rep, err
	}

	counts := rep.Counts()
	log.Info("ensure finished",
		zap.Bool("created", rep.Created),
		zap.Int("created_entities", counts[apply.ActionCreated]),
		zap.Int("updated", counts[apply.ActionUpdated]),
		zap.Int("unchanged", counts[apply.ActionUnchanged]),
		zap.Int("failed", len(rep.Failed())),
		zap.Duration("duration", rep.Duration()),
	)
	return rep, nil
}

func (o *Orchestrator) ensure(ctx context.Context, name string, rep *Report, log *zap.Logger) error {
	if err := ValidateName(name, nil).Err(); err != nil {
		return err
	}

	if o.tokens != nil {
		if _, err := o.tokens.Get(ctx); err != nil {
			return err
		}
	}

	info, created, err := o.ensureList(ctx, name)
	if err != nil {
		if remote.IsFatal(err) && o.tokens != nil {
			o.tokens.Invalidate()
		}
		return err
	}
	rep.ListID = info.ID
	rep.Created = created
	o.setList(info)

	fields, err := o.inspector.ListFields(ctx, info.ID)
	if err != nil {
		return err
	}
	views, err := o.inspector.ListViews(ctx, info.ID)
	if err != nil {
		return err
	}
	o.setSnapshot(info, fields, views)

	rep.Results = append(rep.Results, o.applier.List(ctx, info, o.tmpl.List))
	rep.Results = append(rep.Results, o.applier.Fields(ctx, info, o.tmpl.Fields, fields)...)
	rep.Results = append(rep.Results, o.applier.Views(ctx, info, o.tmpl.Views, views)...)

	if err := o.refresh(ctx, name); err != nil {
		log.Warn("failed to refresh snapshot", zap.Error(err))
		rep.SnapshotErr = err
	}
	return nil
}

// ensureList returns the list, creating it when it does not exist.
func (o *Orchestrator) ensureList(ctx context.Context, name string) (remote.ListInfo, bool, error) {
	info, err := o.inspector.ListByTitle(ctx, name)
	if err == nil {
		return info, false, nil
	}
	if !remote.IsNotFound(err) {
		return remote.ListInfo{}, false, err
	}

	if err := ValidateName(name, o.existing).Err(); err != nil {
		return remote.ListInfo{}, false, err
	}

	spec := remote.ListCreate{
		Title:               name,
		Description:         o.tmpl.List.Description,
		BaseTemplate:        o.tmpl.List.BaseTemplate,
		ContentTypesEnabled: o.tmpl.List.ContentTypesEnabled,
		Settings:            o.tmpl.List.Settings,
	}
	err = o.policy.Do(ctx, settle.OpListCreate, func(ctx context.Context) error {
		var err error
		info, err = o.store.CreateList(ctx, spec)
		return err
	})
	if err != nil {
		return remote.ListInfo{}, false, fmt.Errorf("failed to create list %q: %w", name, err)
	}
	o.logger.Info("list created", zap.String("list", name), zap.String("list_id", info.ID))
	return info, true, nil
}

// refresh re-reads the list, its fields and its views after applying.
func (o *Orchestrator) refresh(ctx context.Context, name string) error {
	info, err := o.inspector.ListByTitle(ctx, name)
	if err != nil {
		return err
	}
	fields, err := o.inspector.ListFields(ctx, info.ID)
	if err != nil {
		return err
	}
	views, err := o.inspector.ListViews(ctx, info.ID)
	if err != nil {
		return err
	}
	o.setSnapshot(info, fields, views)
	return nil
}

func (o *Orchestrator) setList(info remote.ListInfo) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.list = info
}

func (o *Orchestrator) setSnapshot(info remote.ListInfo, fields []remote.RemoteField, views []remote.RemoteView) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.list = info
	o.fields = fields
	o.views = views
}

// List returns the list as of the last snapshot.
func (o *Orchestrator) List() remote.ListInfo {
	o.mu.RLock()
	defer o.mu.RUnlock()
	info := o.list
	info.Settings = copyMap(o.list.Settings)
	return info
}

// Fields returns the managed fields as of the last snapshot.
func (o *Orchestrator) Fields() []remote.RemoteField {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]remote.RemoteField, len(o.fields))
	for i, f := range o.fields {
		f.Attrs = copyMap(f.Attrs)
		out[i] = f
	}
	return out
}

// Views returns the views as of the last snapshot.
func (o *Orchestrator) Views() []remote.RemoteView {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]remote.RemoteView, len(o.views))
	for i, v := range o.views {
		v.Settings = copyMap(v.Settings)
		v.Fields = append([]string(nil), v.Fields...)
		out[i] = v
	}
	return out
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
