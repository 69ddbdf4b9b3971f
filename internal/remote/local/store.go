// Package local emulates the list service on top of an SQLite file.
//
// It behaves like the hosted service where reconciliation can tell: a new
// list comes with the system fields and an "All Items" view, a new field is
// titled after its internal name, lookups must point at an existing list,
// and a view can only show fields its list has. It is used for dry runs
// against a scratch site and for end-to-end tests.
package local

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aboutus/listsync/internal/db"
	"github.com/aboutus/listsync/internal/remote"
	"github.com/aboutus/listsync/internal/schema"
)

const ddl = `
CREATE TABLE IF NOT EXISTS lists (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL UNIQUE COLLATE NOCASE,
	description TEXT NOT NULL DEFAULT '',
	base_template INTEGER NOT NULL DEFAULT 100,
	content_types_enabled INTEGER NOT NULL DEFAULT 0,
	settings TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS fields (
	id TEXT PRIMARY KEY,
	list_id TEXT NOT NULL REFERENCES lists(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	internal_name TEXT NOT NULL,
	title TEXT NOT NULL,
	type_name TEXT NOT NULL,
	can_be_deleted INTEGER NOT NULL DEFAULT 1,
	attrs TEXT NOT NULL DEFAULT '{}',
	UNIQUE (list_id, internal_name)
);

CREATE TABLE IF NOT EXISTS views (
	id TEXT PRIMARY KEY,
	list_id TEXT NOT NULL REFERENCES lists(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	title TEXT NOT NULL,
	personal INTEGER NOT NULL DEFAULT 0,
	settings TEXT NOT NULL DEFAULT '{}',
	UNIQUE (list_id, title)
);

CREATE TABLE IF NOT EXISTS view_fields (
	view_id TEXT NOT NULL REFERENCES views(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	field_name TEXT NOT NULL,
	PRIMARY KEY (view_id, position)
);

CREATE INDEX IF NOT EXISTS idx_fields_list ON fields(list_id, position);
CREATE INDEX IF NOT EXISTS idx_views_list ON views(list_id, position);
`

// systemFields are created with every list. Only Title is managed by
// reconciliation; the rest cannot be deleted.
var systemFields = []struct {
	name     string
	typeName string
}{
	{"Title", "Text"},
	{"ID", "Counter"},
	{"Created", "DateTime"},
	{"Modified", "DateTime"},
	{"Author", "User"},
	{"Editor", "User"},
}

// computedFields can be shown in views although they are not list fields.
var computedFields = map[string]bool{
	"LinkTitle":        true,
	"LinkTitleNoMenu":  true,
	"Edit":             true,
	"DocIcon":          true,
	"Attachments":      true,
	"SelectTitle":      true,
	"LinkTitle2":       true,
	"ContentType":      true,
	"_UIVersionString": true,
}

// Store is a remote.Store backed by SQLite.
type Store struct {
	db  *db.DB
	now func() time.Time
}

// Open opens or creates the emulated site at path.
func Open(ctx context.Context, path string) (*Store, error) {
	d, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	if err := d.InitSchema(ctx, ddl); err != nil {
		_ = d.Close()
		return nil, err
	}
	return &Store{db: d, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ListTitles implements remote.Store.
func (s *Store) ListTitles(ctx context.Context) ([]string, error) {
	rows, err := s.db.RawDB().QueryContext(ctx, `SELECT title FROM lists ORDER BY title`)
	if err != nil {
		return nil, fmt.Errorf("failed to query lists: %w", err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("failed to scan list: %w", err)
		}
		titles = append(titles, title)
	}
	return titles, rows.Err()
}

const listColumns = `id, title, description, base_template, content_types_enabled, settings`

func scanList(row interface{ Scan(...any) error }) (remote.ListInfo, error) {
	var info remote.ListInfo
	var settings string
	err := row.Scan(&info.ID, &info.Title, &info.Description, &info.BaseTemplate, &info.ContentTypesEnabled, &settings)
	if err != nil {
		return remote.ListInfo{}, err
	}
	info.Settings, err = decode(settings)
	return info, err
}

// GetList implements remote.Store.
func (s *Store) GetList(ctx context.Context, title string) (remote.ListInfo, error) {
	row := s.db.RawDB().QueryRowContext(ctx, `SELECT `+listColumns+` FROM lists WHERE title = ?`, title)
	info, err := scanList(row)
	if errors.Is(err, sql.ErrNoRows) {
		return remote.ListInfo{}, fmt.Errorf("list %q: %w", title, remote.ErrListNotFound)
	}
	if err != nil {
		return remote.ListInfo{}, fmt.Errorf("failed to get list %q: %w", title, err)
	}
	return info, nil
}

func (s *Store) getListByID(ctx context.Context, q querier, listID string) (remote.ListInfo, error) {
	row := q.QueryRowContext(ctx, `SELECT `+listColumns+` FROM lists WHERE id = ?`, listID)
	info, err := scanList(row)
	if errors.Is(err, sql.ErrNoRows) {
		return remote.ListInfo{}, fmt.Errorf("list %s: %w", listID, remote.ErrListNotFound)
	}
	if err != nil {
		return remote.ListInfo{}, fmt.Errorf("failed to get list %s: %w", listID, err)
	}
	return info, nil
}

// CreateList implements remote.Store.
func (s *Store) CreateList(ctx context.Context, spec remote.ListCreate) (remote.ListInfo, error) {
	if strings.TrimSpace(spec.Title) == "" {
		return remote.ListInfo{}, fmt.Errorf("list title is required")
	}
	if spec.BaseTemplate == 0 {
		spec.BaseTemplate = schema.GenericListTemplate
	}
	settings, err := encode(spec.Settings)
	if err != nil {
		return remote.ListInfo{}, err
	}

	listID := uuid.NewString()
	err = s.db.Tx(ctx, func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM lists WHERE title = ?`, spec.Title).Scan(&n); err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("list %q already exists: %w", spec.Title, remote.ErrConflict)
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO lists (id, title, description, base_template, content_types_enabled, settings, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			listID, spec.Title, spec.Description, spec.BaseTemplate, spec.ContentTypesEnabled, settings,
			s.now().UTC().Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("failed to insert list: %w", err)
		}

		for i, f := range systemFields {
			attrs, _ := encode(map[string]any{
				"Required":  f.name == "Title",
				"Hidden":    false,
				"MaxLength": 255,
			})
			_, err := tx.ExecContext(ctx, `
				INSERT INTO fields (id, list_id, position, internal_name, title, type_name, can_be_deleted, attrs)
				VALUES (?, ?, ?, ?, ?, ?, 0, ?)`,
				uuid.NewString(), listID, i, f.name, f.name, f.typeName, attrs)
			if err != nil {
				return fmt.Errorf("failed to insert system field %s: %w", f.name, err)
			}
		}

		viewID := uuid.NewString()
		viewSettings, _ := encode(map[string]any{"RowLimit": 30, "DefaultView": true})
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO views (id, list_id, position, title, personal, settings)
			VALUES (?, ?, 0, 'All Items', 0, ?)`, viewID, listID, viewSettings); err != nil {
			return fmt.Errorf("failed to insert default view: %w", err)
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO view_fields (view_id, position, field_name) VALUES (?, 0, 'LinkTitle')`, viewID)
		return err
	})
	if err != nil {
		return remote.ListInfo{}, err
	}
	return s.getListByID(ctx, s.db.RawDB(), listID)
}

// UpdateList implements remote.Store. BaseTemplate cannot change and is
// ignored.
func (s *Store) UpdateList(ctx context.Context, listID string, updates map[string]any) error {
	return s.db.Tx(ctx, func(tx *sql.Tx) error {
		info, err := s.getListByID(ctx, tx, listID)
		if err != nil {
			return err
		}
		for k, v := range updates {
			switch k {
			case "Title":
				info.Title = fmt.Sprint(v)
			case "Description":
				info.Description = stringValue(v)
			case "ContentTypesEnabled":
				info.ContentTypesEnabled, _ = v.(bool)
			case "BaseTemplate":
			default:
				info.Settings[k] = v
			}
		}
		settings, err := encode(info.Settings)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE lists SET title = ?, description = ?, content_types_enabled = ?, settings = ?
			WHERE id = ?`, info.Title, info.Description, info.ContentTypesEnabled, settings, listID)
		if err != nil {
			return fmt.Errorf("failed to update list: %w", err)
		}
		return nil
	})
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func encode(m map[string]any) (string, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to encode properties: %w", err)
	}
	return string(data), nil
}

func decode(s string) (map[string]any, error) {
	m := make(map[string]any)
	if s == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("failed to decode properties: %w", err)
	}
	return m, nil
}

func stringValue(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

var _ remote.Store = (*Store)(nil)
