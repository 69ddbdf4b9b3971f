// Package inspect reads the current schema of a remote list.
package inspect

import (
	"context"
	"fmt"

	"github.com/aboutus/listsync/internal/remote"
)

// Inspector fetches fresh snapshots from a store. It keeps no state between
// calls.
type Inspector struct {
	store remote.Store
}

// New creates an Inspector over store.
func New(store remote.Store) *Inspector {
	return &Inspector{store: store}
}

// ListByTitle returns the list with the given title. A missing list is
// reported as remote.ErrListNotFound so callers can take the create path.
func (in *Inspector) ListByTitle(ctx context.Context, title string) (remote.ListInfo, error) {
	info, err := in.store.GetList(ctx, title)
	if err != nil {
		return remote.ListInfo{}, fmt.Errorf("failed to get list %q: %w", title, err)
	}
	return info, nil
}

// ListFields returns the managed fields of a list: everything the user could
// delete, plus the primary Title field.
func (in *Inspector) ListFields(ctx context.Context, listID string) ([]remote.RemoteField, error) {
	all, err := in.store.Fields(ctx, listID)
	if err != nil {
		return nil, fmt.Errorf("failed to list fields: %w", err)
	}
	return Managed(all), nil
}

// ListViews returns every view of a list.
func (in *Inspector) ListViews(ctx context.Context, listID string) ([]remote.RemoteView, error) {
	views, err := in.store.Views(ctx, listID)
	if err != nil {
		return nil, fmt.Errorf("failed to list views: %w", err)
	}
	return views, nil
}

// Managed filters out non-deletable system fields except the primary field.
func Managed(fields []remote.RemoteField) []remote.RemoteField {
	out := make([]remote.RemoteField, 0, len(fields))
	for _, f := range fields {
		if f.CanBeDeleted || f.InternalName == remote.PrimaryFieldName {
			out = append(out, f)
		}
	}
	return out
}
