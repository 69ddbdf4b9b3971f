// Package remotetest provides an in-memory remote.Store that records every
// call, for use in tests.
package remotetest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aboutus/listsync/internal/remote"
)

// Operation names recorded by Store.
const (
	OpListTitles          = "ListTitles"
	OpGetList             = "GetList"
	OpCreateList          = "CreateList"
	OpUpdateList          = "UpdateList"
	OpFields              = "Fields"
	OpAddField            = "AddField"
	OpUpdateField         = "UpdateField"
	OpViews               = "Views"
	OpAddView             = "AddView"
	OpUpdateView          = "UpdateView"
	OpRemoveAllViewFields = "RemoveAllViewFields"
	OpAddViewField        = "AddViewField"
)

// Call is one recorded Store call.
type Call struct {
	Op string
	// Target is the entity the call acted on (list title, field internal
	// name, view title or "view/field" for view field adds).
	Target  string
	Updates map[string]any
}

type list struct {
	info   remote.ListInfo
	fields []remote.RemoteField
	views  []remote.RemoteView
}

// Store is an in-memory remote.Store. It titles new fields after their
// internal name, like the real service does.
type Store struct {
	mu     sync.Mutex
	lists  map[string]*list // by id
	nextID int
	calls  []Call
	fail   map[string]error
}

// New creates an empty store.
func New() *Store {
	return &Store{
		lists: make(map[string]*list),
		fail:  make(map[string]error),
	}
}

// FailOn makes every call of op against target return err. An empty target
// matches every target.
func (s *Store) FailOn(op, target string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[op+"|"+target] = err
}

// ClearFailures removes every injected failure.
func (s *Store) ClearFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = make(map[string]error)
}

// Calls returns the recorded calls of op, or every call when op is empty.
func (s *Store) Calls(op string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Call
	for _, c := range s.calls {
		if op == "" || c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// ResetCalls forgets the recorded calls.
func (s *Store) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// SeedList adds a list with the usual system fields and an "All Items" view
// and returns its info. It is not recorded as a call.
func (s *Store) SeedList(title string) remote.ListInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.newList(remote.ListCreate{Title: title, BaseTemplate: 100})
	return l.info
}

// SeedField adds a field directly, bypassing call recording.
func (s *Store) SeedField(listID string, f remote.RemoteField) remote.RemoteField {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.lists[listID]
	if f.ID == "" {
		f.ID = s.id("field")
	}
	if f.Attrs == nil {
		f.Attrs = map[string]any{}
	}
	f.CanBeDeleted = true
	l.fields = append(l.fields, f)
	return f
}

// SeedView adds a view directly, bypassing call recording.
func (s *Store) SeedView(listID string, v remote.RemoteView) remote.RemoteView {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.lists[listID]
	if v.ID == "" {
		v.ID = s.id("view")
	}
	if v.Settings == nil {
		v.Settings = map[string]any{}
	}
	l.views = append(l.views, v)
	return v
}

func (s *Store) id(prefix string) string {
	s.nextID++
	return fmt.Sprintf("%s-%d", prefix, s.nextID)
}

func (s *Store) newList(spec remote.ListCreate) *list {
	l := &list{info: remote.ListInfo{
		ID:                  s.id("list"),
		Title:               spec.Title,
		Description:         spec.Description,
		BaseTemplate:        spec.BaseTemplate,
		ContentTypesEnabled: spec.ContentTypesEnabled,
		Settings:            copyMap(spec.Settings),
	}}
	if l.info.Settings == nil {
		l.info.Settings = map[string]any{}
	}
	for _, name := range []string{"Title", "ID", "Created", "Modified", "Author", "Editor"} {
		l.fields = append(l.fields, remote.RemoteField{
			ID:           s.id("field"),
			InternalName: name,
			Title:        name,
			TypeName:     "Text",
			CanBeDeleted: false,
			Attrs:        map[string]any{"Required": name == "Title", "Hidden": false, "MaxLength": 255},
		})
	}
	l.views = append(l.views, remote.RemoteView{
		ID:       s.id("view"),
		Title:    "All Items",
		Settings: map[string]any{"RowLimit": 30, "DefaultView": true},
		Fields:   []string{"LinkTitle"},
	})
	s.lists[l.info.ID] = l
	return l
}

// record logs a call and returns any injected failure. Callers hold s.mu.
func (s *Store) record(op, target string, updates map[string]any) error {
	s.calls = append(s.calls, Call{Op: op, Target: target, Updates: copyMap(updates)})
	if err, ok := s.fail[op+"|"+target]; ok {
		return err
	}
	if err, ok := s.fail[op+"|"]; ok {
		return err
	}
	return nil
}

func (s *Store) list(listID string) (*list, error) {
	l, ok := s.lists[listID]
	if !ok {
		return nil, fmt.Errorf("list %s: %w", listID, remote.ErrListNotFound)
	}
	return l, nil
}

// ListTitles implements remote.Store.
func (s *Store) ListTitles(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(OpListTitles, "", nil); err != nil {
		return nil, err
	}
	var titles []string
	for _, l := range s.lists {
		titles = append(titles, l.info.Title)
	}
	sort.Strings(titles)
	return titles, nil
}

// GetList implements remote.Store.
func (s *Store) GetList(ctx context.Context, title string) (remote.ListInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(OpGetList, title, nil); err != nil {
		return remote.ListInfo{}, err
	}
	for _, l := range s.lists {
		if strings.EqualFold(l.info.Title, title) {
			info := l.info
			info.Settings = copyMap(l.info.Settings)
			return info, nil
		}
	}
	return remote.ListInfo{}, fmt.Errorf("list %q: %w", title, remote.ErrListNotFound)
}

// CreateList implements remote.Store.
func (s *Store) CreateList(ctx context.Context, spec remote.ListCreate) (remote.ListInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(OpCreateList, spec.Title, nil); err != nil {
		return remote.ListInfo{}, err
	}
	return s.newList(spec).info, nil
}

// UpdateList implements remote.Store.
func (s *Store) UpdateList(ctx context.Context, listID string, updates map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.list(listID)
	if err != nil {
		return err
	}
	if err := s.record(OpUpdateList, l.info.Title, updates); err != nil {
		return err
	}
	for k, v := range updates {
		switch k {
		case "Description":
			l.info.Description, _ = v.(string)
		case "ContentTypesEnabled":
			l.info.ContentTypesEnabled, _ = v.(bool)
		case "BaseTemplate":
		default:
			l.info.Settings[k] = v
		}
	}
	return nil
}

// Fields implements remote.Store.
func (s *Store) Fields(ctx context.Context, listID string) ([]remote.RemoteField, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.list(listID)
	if err != nil {
		return nil, err
	}
	if err := s.record(OpFields, l.info.Title, nil); err != nil {
		return nil, err
	}
	out := make([]remote.RemoteField, len(l.fields))
	for i, f := range l.fields {
		f.Attrs = copyMap(f.Attrs)
		out[i] = f
	}
	return out, nil
}

// AddField implements remote.Store.
func (s *Store) AddField(ctx context.Context, listID string, spec remote.FieldCreate) (remote.RemoteField, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.list(listID)
	if err != nil {
		return remote.RemoteField{}, err
	}
	if err := s.record(OpAddField, spec.InternalName, spec.Attrs); err != nil {
		return remote.RemoteField{}, err
	}
	for _, f := range l.fields {
		if f.InternalName == spec.InternalName {
			return remote.RemoteField{}, fmt.Errorf("field %s already exists: %w", spec.InternalName, remote.ErrConflict)
		}
	}
	attrs := copyMap(spec.Attrs)
	delete(attrs, "Title")
	f := remote.RemoteField{
		ID:           s.id("field"),
		InternalName: spec.InternalName,
		Title:        spec.InternalName,
		TypeName:     spec.TypeName,
		CanBeDeleted: true,
		Attrs:        attrs,
	}
	l.fields = append(l.fields, f)
	f.Attrs = copyMap(attrs)
	return f, nil
}

// UpdateField implements remote.Store.
func (s *Store) UpdateField(ctx context.Context, listID string, field remote.RemoteField, updates map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.list(listID)
	if err != nil {
		return err
	}
	if err := s.record(OpUpdateField, field.InternalName, updates); err != nil {
		return err
	}
	for i := range l.fields {
		if l.fields[i].ID != field.ID {
			continue
		}
		for k, v := range updates {
			if k == "Title" {
				l.fields[i].Title, _ = v.(string)
				continue
			}
			l.fields[i].Attrs[k] = v
		}
		return nil
	}
	return fmt.Errorf("field %s: %w", field.ID, remote.ErrFieldNotFound)
}

// Views implements remote.Store.
func (s *Store) Views(ctx context.Context, listID string) ([]remote.RemoteView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.list(listID)
	if err != nil {
		return nil, err
	}
	if err := s.record(OpViews, l.info.Title, nil); err != nil {
		return nil, err
	}
	out := make([]remote.RemoteView, len(l.views))
	for i, v := range l.views {
		v.Settings = copyMap(v.Settings)
		v.Fields = append([]string(nil), v.Fields...)
		out[i] = v
	}
	return out, nil
}

// AddView implements remote.Store. New views show LinkTitle, like the real
// service.
func (s *Store) AddView(ctx context.Context, listID, title string, personal bool, settings map[string]any) (remote.RemoteView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.list(listID)
	if err != nil {
		return remote.RemoteView{}, err
	}
	if err := s.record(OpAddView, title, settings); err != nil {
		return remote.RemoteView{}, err
	}
	v := remote.RemoteView{
		ID:       s.id("view"),
		Title:    title,
		Personal: personal,
		Settings: copyMap(settings),
		Fields:   []string{"LinkTitle"},
	}
	if v.Settings == nil {
		v.Settings = map[string]any{}
	}
	l.views = append(l.views, v)
	v.Settings = copyMap(v.Settings)
	v.Fields = []string{"LinkTitle"}
	return v, nil
}

func (s *Store) view(l *list, viewID string) (*remote.RemoteView, error) {
	for i := range l.views {
		if l.views[i].ID == viewID {
			return &l.views[i], nil
		}
	}
	return nil, fmt.Errorf("view %s: %w", viewID, remote.ErrViewNotFound)
}

// UpdateView implements remote.Store.
func (s *Store) UpdateView(ctx context.Context, listID, viewID string, updates map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.list(listID)
	if err != nil {
		return err
	}
	v, err := s.view(l, viewID)
	if err != nil {
		return err
	}
	if err := s.record(OpUpdateView, v.Title, updates); err != nil {
		return err
	}
	for k, val := range updates {
		v.Settings[k] = val
	}
	return nil
}

// RemoveAllViewFields implements remote.Store.
func (s *Store) RemoveAllViewFields(ctx context.Context, listID, viewID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.list(listID)
	if err != nil {
		return err
	}
	v, err := s.view(l, viewID)
	if err != nil {
		return err
	}
	if err := s.record(OpRemoveAllViewFields, v.Title, nil); err != nil {
		return err
	}
	v.Fields = nil
	return nil
}

// AddViewField implements remote.Store.
func (s *Store) AddViewField(ctx context.Context, listID, viewID, fieldName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.list(listID)
	if err != nil {
		return err
	}
	v, err := s.view(l, viewID)
	if err != nil {
		return err
	}
	if err := s.record(OpAddViewField, v.Title+"/"+fieldName, nil); err != nil {
		return err
	}
	v.Fields = append(v.Fields, fieldName)
	return nil
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

var _ remote.Store = (*Store)(nil)
