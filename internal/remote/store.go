// Package remote defines the contract between reconciliation and the list
// service that hosts the About-Us list.
//
// The Store interface is deliberately thin: one method per remote operation.
// Reconciliation never batches schema edits, so each method changes at most
// one entity.
package remote

import (
	"context"

	"github.com/aboutus/listsync/internal/schema"
)

// PrimaryFieldName is the one non-deletable system field that reconciliation
// still manages.
const PrimaryFieldName = "Title"

// ListInfo is a snapshot of the list container.
type ListInfo struct {
	ID                  string
	Title               string
	Description         string
	BaseTemplate        int
	ContentTypesEnabled bool
	// Settings holds every other list property the store reported.
	Settings map[string]any
}

// Attributes returns the list metadata keyed by remote property name.
func (l ListInfo) Attributes() map[string]any {
	attrs := make(map[string]any, len(l.Settings)+3)
	for k, v := range l.Settings {
		attrs[k] = v
	}
	attrs["Description"] = l.Description
	attrs["BaseTemplate"] = l.BaseTemplate
	attrs["ContentTypesEnabled"] = l.ContentTypesEnabled
	return attrs
}

// RemoteField is a column as reported by the store.
type RemoteField struct {
	// ID is assigned by the store at creation and required for updates.
	ID           string
	InternalName string
	Title        string
	TypeName     string
	CanBeDeleted bool
	// Attrs holds every property the store reported, keyed by property name.
	Attrs map[string]any
}

// Attr returns a property, treating Title specially since it is also a
// struct field.
func (f RemoteField) Attr(name string) (any, bool) {
	if name == "Title" {
		return f.Title, true
	}
	v, ok := f.Attrs[name]
	return v, ok
}

// RemoteView is a view as reported by the store.
type RemoteView struct {
	ID       string
	Title    string
	Personal bool
	Settings map[string]any
	// Fields are the internal names shown by the view, in order.
	Fields []string
}

// FieldCreate is everything needed to add one field.
type FieldCreate struct {
	InternalName string
	// Title is the desired display title. Stores may ignore it and title
	// the new field after its internal name.
	Title    string
	Kind     schema.Kind
	TypeName string
	Attrs    map[string]any
}

// ListCreate is everything needed to add a list.
type ListCreate struct {
	Title               string
	Description         string
	BaseTemplate        int
	ContentTypesEnabled bool
	Settings            map[string]any
}

// Store is the list/field/view CRUD surface of the list service.
//
// Every method reflects the store's state at call time; implementations must
// not cache reads across calls.
type Store interface {
	// ListTitles returns the titles of every list on the site.
	ListTitles(ctx context.Context) ([]string, error)

	// GetList looks a list up by title. Returns ErrListNotFound when the
	// list does not exist.
	GetList(ctx context.Context, title string) (ListInfo, error)

	// CreateList adds a new list.
	CreateList(ctx context.Context, spec ListCreate) (ListInfo, error)

	// UpdateList merges the given properties into the list.
	UpdateList(ctx context.Context, listID string, updates map[string]any) error

	// Fields returns every field of the list, system fields included.
	Fields(ctx context.Context, listID string) ([]RemoteField, error)

	// AddField creates a field and returns it as stored.
	AddField(ctx context.Context, listID string, spec FieldCreate) (RemoteField, error)

	// UpdateField merges the given properties into a field.
	UpdateField(ctx context.Context, listID string, field RemoteField, updates map[string]any) error

	// Views returns every view of the list with its field list.
	Views(ctx context.Context, listID string) ([]RemoteView, error)

	// AddView creates a view with the given settings.
	AddView(ctx context.Context, listID, title string, personal bool, settings map[string]any) (RemoteView, error)

	// UpdateView merges the given settings into a view.
	UpdateView(ctx context.Context, listID, viewID string, updates map[string]any) error

	// RemoveAllViewFields empties the field list of a view.
	RemoveAllViewFields(ctx context.Context, listID, viewID string) error

	// AddViewField appends one field to the end of a view's field list.
	AddViewField(ctx context.Context, listID, viewID, fieldName string) error
}
