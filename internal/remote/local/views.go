package local

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/aboutus/listsync/internal/remote"
)

// Views implements remote.Store.
func (s *Store) Views(ctx context.Context, listID string) ([]remote.RemoteView, error) {
	q := s.db.RawDB()
	if _, err := s.getListByID(ctx, q, listID); err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, `
		SELECT id, title, personal, settings FROM views
		WHERE list_id = ? ORDER BY position`, listID)
	if err != nil {
		return nil, fmt.Errorf("failed to query views: %w", err)
	}
	var views []remote.RemoteView
	for rows.Next() {
		var v remote.RemoteView
		var settings string
		if err := rows.Scan(&v.ID, &v.Title, &v.Personal, &settings); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan view: %w", err)
		}
		if v.Settings, err = decode(settings); err != nil {
			rows.Close()
			return nil, err
		}
		views = append(views, v)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating views: %w", err)
	}

	for i := range views {
		if views[i].Fields, err = s.viewFields(ctx, q, views[i].ID); err != nil {
			return nil, err
		}
	}
	return views, nil
}

func (s *Store) viewFields(ctx context.Context, q querier, viewID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT field_name FROM view_fields WHERE view_id = ? ORDER BY position`, viewID)
	if err != nil {
		return nil, fmt.Errorf("failed to query view fields: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan view field: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// AddView implements remote.Store. New views show LinkTitle.
func (s *Store) AddView(ctx context.Context, listID, title string, personal bool, settings map[string]any) (remote.RemoteView, error) {
	encoded, err := encode(settings)
	if err != nil {
		return remote.RemoteView{}, err
	}

	v := remote.RemoteView{ID: uuid.NewString(), Title: title, Personal: personal, Fields: []string{"LinkTitle"}}
	err = s.db.Tx(ctx, func(tx *sql.Tx) error {
		if _, err := s.getListByID(ctx, tx, listID); err != nil {
			return err
		}

		var n, pos int
		err := tx.QueryRowContext(ctx, `
			SELECT COUNT(CASE WHEN title = ? THEN 1 END), COALESCE(MAX(position), -1) + 1
			FROM views WHERE list_id = ?`, title, listID).Scan(&n, &pos)
		if err != nil {
			return fmt.Errorf("failed to check view: %w", err)
		}
		if n > 0 {
			return fmt.Errorf("view %q already exists: %w", title, remote.ErrConflict)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO views (id, list_id, position, title, personal, settings)
			VALUES (?, ?, ?, ?, ?, ?)`, v.ID, listID, pos, title, personal, encoded); err != nil {
			return fmt.Errorf("failed to insert view: %w", err)
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO view_fields (view_id, position, field_name) VALUES (?, 0, 'LinkTitle')`, v.ID)
		return err
	})
	if err != nil {
		return remote.RemoteView{}, err
	}

	v.Settings, err = decode(encoded)
	return v, err
}

// UpdateView implements remote.Store.
func (s *Store) UpdateView(ctx context.Context, listID, viewID string, updates map[string]any) error {
	return s.db.Tx(ctx, func(tx *sql.Tx) error {
		var personal bool
		var settings string
		err := tx.QueryRowContext(ctx, `SELECT personal, settings FROM views WHERE id = ? AND list_id = ?`,
			viewID, listID).Scan(&personal, &settings)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("view %s: %w", viewID, remote.ErrViewNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to get view: %w", err)
		}

		current, err := decode(settings)
		if err != nil {
			return err
		}
		for k, v := range updates {
			if k == "PersonalView" {
				personal, _ = v.(bool)
				continue
			}
			current[k] = v
		}

		encoded, err := encode(current)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE views SET personal = ?, settings = ? WHERE id = ?`, personal, encoded, viewID)
		if err != nil {
			return fmt.Errorf("failed to update view: %w", err)
		}
		return nil
	})
}

func checkView(ctx context.Context, tx *sql.Tx, listID, viewID string) error {
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM views WHERE id = ? AND list_id = ?`, viewID, listID).Scan(&n); err != nil {
		return fmt.Errorf("failed to check view: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("view %s: %w", viewID, remote.ErrViewNotFound)
	}
	return nil
}

// RemoveAllViewFields implements remote.Store.
func (s *Store) RemoveAllViewFields(ctx context.Context, listID, viewID string) error {
	return s.db.Tx(ctx, func(tx *sql.Tx) error {
		if err := checkView(ctx, tx, listID, viewID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM view_fields WHERE view_id = ?`, viewID); err != nil {
			return fmt.Errorf("failed to clear view fields: %w", err)
		}
		return nil
	})
}

// AddViewField implements remote.Store. The field must exist in the list
// unless it is one of the computed fields.
func (s *Store) AddViewField(ctx context.Context, listID, viewID, fieldName string) error {
	return s.db.Tx(ctx, func(tx *sql.Tx) error {
		if err := checkView(ctx, tx, listID, viewID); err != nil {
			return err
		}
		if !computedFields[fieldName] {
			var n int
			err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM fields WHERE list_id = ? AND internal_name = ?`,
				listID, fieldName).Scan(&n)
			if err != nil {
				return fmt.Errorf("failed to check field: %w", err)
			}
			if n == 0 {
				return fmt.Errorf("field %s: %w", fieldName, remote.ErrFieldNotFound)
			}
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO view_fields (view_id, position, field_name)
			SELECT ?, COALESCE(MAX(position), -1) + 1, ? FROM view_fields WHERE view_id = ?`,
			viewID, fieldName, viewID)
		if err != nil {
			return fmt.Errorf("failed to add view field: %w", err)
		}
		return nil
	})
}
