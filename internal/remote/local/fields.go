package local

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/aboutus/listsync/internal/remote"
	"github.com/aboutus/listsync/internal/schema"
)

func (s *Store) fields(ctx context.Context, q querier, listID string) ([]remote.RemoteField, error) {
	if _, err := s.getListByID(ctx, q, listID); err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, `
		SELECT id, internal_name, title, type_name, can_be_deleted, attrs
		FROM fields WHERE list_id = ? ORDER BY position`, listID)
	if err != nil {
		return nil, fmt.Errorf("failed to query fields: %w", err)
	}
	defer rows.Close()

	var fields []remote.RemoteField
	for rows.Next() {
		var f remote.RemoteField
		var attrs string
		if err := rows.Scan(&f.ID, &f.InternalName, &f.Title, &f.TypeName, &f.CanBeDeleted, &attrs); err != nil {
			return nil, fmt.Errorf("failed to scan field: %w", err)
		}
		if f.Attrs, err = decode(attrs); err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fields: %w", err)
	}
	return fields, nil
}

// Fields implements remote.Store.
func (s *Store) Fields(ctx context.Context, listID string) ([]remote.RemoteField, error) {
	return s.fields(ctx, s.db.RawDB(), listID)
}

// AddField implements remote.Store. The field is titled after its internal
// name whatever spec.Title says, like the hosted service does.
func (s *Store) AddField(ctx context.Context, listID string, spec remote.FieldCreate) (remote.RemoteField, error) {
	attrs := make(map[string]any, len(spec.Attrs))
	for k, v := range spec.Attrs {
		if k != "Title" {
			attrs[k] = v
		}
	}

	field := remote.RemoteField{
		ID:           uuid.NewString(),
		InternalName: spec.InternalName,
		Title:        spec.InternalName,
		TypeName:     spec.TypeName,
		CanBeDeleted: true,
		Attrs:        attrs,
	}

	err := s.db.Tx(ctx, func(tx *sql.Tx) error {
		if _, err := s.getListByID(ctx, tx, listID); err != nil {
			return err
		}
		if spec.Kind == schema.KindLookup {
			target := stringValue(attrs["LookupList"])
			if _, err := s.getListByID(ctx, tx, target); err != nil {
				return fmt.Errorf("lookup target: %w", err)
			}
		}

		var n, pos int
		err := tx.QueryRowContext(ctx, `
			SELECT COUNT(CASE WHEN internal_name = ? THEN 1 END), COALESCE(MAX(position), -1) + 1
			FROM fields WHERE list_id = ?`, spec.InternalName, listID).Scan(&n, &pos)
		if err != nil {
			return fmt.Errorf("failed to check field: %w", err)
		}
		if n > 0 {
			return fmt.Errorf("field %s already exists: %w", spec.InternalName, remote.ErrConflict)
		}

		encoded, err := encode(attrs)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO fields (id, list_id, position, internal_name, title, type_name, can_be_deleted, attrs)
			VALUES (?, ?, ?, ?, ?, ?, 1, ?)`,
			field.ID, listID, pos, field.InternalName, field.Title, field.TypeName, encoded)
		if err != nil {
			return fmt.Errorf("failed to insert field: %w", err)
		}
		return nil
	})
	if err != nil {
		return remote.RemoteField{}, err
	}

	// Round-trip through JSON so callers see what a later read returns.
	stored, err := encode(attrs)
	if err != nil {
		return remote.RemoteField{}, err
	}
	field.Attrs, err = decode(stored)
	return field, err
}

// UpdateField implements remote.Store.
func (s *Store) UpdateField(ctx context.Context, listID string, field remote.RemoteField, updates map[string]any) error {
	return s.db.Tx(ctx, func(tx *sql.Tx) error {
		var title, attrs string
		err := tx.QueryRowContext(ctx, `SELECT title, attrs FROM fields WHERE id = ? AND list_id = ?`,
			field.ID, listID).Scan(&title, &attrs)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("field %s: %w", field.ID, remote.ErrFieldNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to get field: %w", err)
		}

		current, err := decode(attrs)
		if err != nil {
			return err
		}
		for k, v := range updates {
			if k == "Title" {
				title = stringValue(v)
				continue
			}
			current[k] = v
		}

		encoded, err := encode(current)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE fields SET title = ?, attrs = ? WHERE id = ?`, title, encoded, field.ID)
		if err != nil {
			return fmt.Errorf("failed to update field: %w", err)
		}
		return nil
	})
}
