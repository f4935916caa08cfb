package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"budget/internal/core"
)

const categoryColumns = "id, name, metadata, created_at"

// CategoryStore reads and writes the categories of one tenant database.
type CategoryStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewCategoryStore binds a store to a borrowed handle.
func NewCategoryStore(h Handle) *CategoryStore {
	return &CategoryStore{db: h.DB(), now: time.Now}
}

func scanCategory(row rowScanner) (core.Category, error) {
	var (
		c         core.Category
		metadata  sql.NullString
		createdAt int64
	)
	if err := row.Scan(&c.ID, &c.Name, &metadata, &createdAt); err != nil {
		return core.Category{}, err
	}
	if metadata.Valid {
		c.Metadata = json.RawMessage(metadata.String)
	}
	c.CreatedAt = unixTime(createdAt)
	return c, nil
}

func nullableMetadata(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 || string(raw) == "null" {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

// nameTaken reports whether another category already uses key.
func nameTaken(ctx context.Context, tx *sql.Tx, key, exceptID string) error {
	var one int
	err := tx.QueryRowContext(ctx,
		"SELECT 1 FROM categories WHERE name_key = ? AND id <> ?", key, exceptID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return unavailable("check category name", err)
	}
	return fmt.Errorf("category %q: %w", key, core.ErrDuplicateName)
}

// Create inserts a category. Names are unique per tenant ignoring case.
func (s *CategoryStore) Create(ctx context.Context, draft core.CategoryDraft) (core.Category, error) {
	if err := draft.Normalize(); err != nil {
		return core.Category{}, err
	}

	cat := core.Category{
		ID:        newID(),
		Name:      draft.Name,
		CreatedAt: core.Timestamp(s.now()),
	}
	meta := nullableMetadata(draft.Metadata)
	if meta.Valid {
		cat.Metadata = draft.Metadata
	}
	key := core.NameKey(cat.Name)

	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := nameTaken(ctx, tx, key, ""); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO categories (id, name, name_key, metadata, created_at) VALUES (?, ?, ?, ?, ?)",
			cat.ID, cat.Name, key, meta, cat.CreatedAt.Unix())
		if err != nil {
			if isConstraint(err) {
				return fmt.Errorf("category %q: %w", key, core.ErrDuplicateName)
			}
			return unavailable("insert category", err)
		}
		return nil
	})
	if err != nil {
		return core.Category{}, err
	}
	return cat, nil
}

// Get returns one category by id.
func (s *CategoryStore) Get(ctx context.Context, id string) (core.Category, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+categoryColumns+" FROM categories WHERE id = ?", id)
	cat, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, fmt.Errorf("category %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Category{}, unavailable("get category", err)
	}
	return cat, nil
}

// Exists reports whether a category with this id exists.
func (s *CategoryStore) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM categories WHERE id = ?)", id).Scan(&exists)
	if err != nil {
		return false, unavailable("check category", err)
	}
	return exists, nil
}

// escapeLike escapes LIKE wildcards with a backslash.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// List returns categories ordered by name, optionally filtered by a
// case-insensitive substring.
func (s *CategoryStore) List(ctx context.Context, q core.CategoryQuery) (core.CategoryPage, error) {
	if err := q.Normalize(); err != nil {
		return core.CategoryPage{}, err
	}

	var (
		filter string
		args   []any
	)
	if q.Search != "" {
		filter = ` WHERE name_key LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(core.NameKey(q.Search))+"%")
	}

	var (
		page core.CategoryPage
		cats []core.Category
	)
	err := withReadTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM categories"+filter, args...).Scan(&page.Total); err != nil {
			return unavailable("count categories", err)
		}

		rows, err := tx.QueryContext(ctx,
			"SELECT "+categoryColumns+" FROM categories"+filter+" ORDER BY name_key ASC, id ASC LIMIT ? OFFSET ?",
			append(args, q.Limit+1, q.Offset)...)
		if err != nil {
			return unavailable("list categories", err)
		}
		defer rows.Close()

		cats = make([]core.Category, 0, min(q.Limit, 64))
		for rows.Next() {
			c, err := scanCategory(rows)
			if err != nil {
				return unavailable("scan category", err)
			}
			cats = append(cats, c)
		}
		if err := rows.Err(); err != nil {
			return unavailable("list categories", err)
		}
		return nil
	})
	if err != nil {
		return core.CategoryPage{}, err
	}

	if len(cats) > q.Limit {
		cats = cats[:q.Limit]
		page.HasMore = true
	}
	page.Categories = cats
	return page, nil
}

// Update renames a category and/or replaces its metadata.
func (s *CategoryStore) Update(ctx context.Context, id string, patch core.CategoryPatch) (core.Category, error) {
	if err := patch.Normalize(); err != nil {
		return core.Category{}, err
	}

	var updated core.Category
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, "SELECT "+categoryColumns+" FROM categories WHERE id = ?", id)
		cat, err := scanCategory(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("category %s: %w", id, core.ErrNotFound)
		}
		if err != nil {
			return unavailable("load category", err)
		}

		if patch.Name != nil {
			key := core.NameKey(*patch.Name)
			if err := nameTaken(ctx, tx, key, id); err != nil {
				return err
			}
			cat.Name = *patch.Name
		}
		if patch.Metadata != nil {
			cat.Metadata = nil
			if nullableMetadata(*patch.Metadata).Valid {
				cat.Metadata = *patch.Metadata
			}
		}

		_, err = tx.ExecContext(ctx,
			"UPDATE categories SET name = ?, name_key = ?, metadata = ? WHERE id = ?",
			cat.Name, core.NameKey(cat.Name), nullableMetadata(cat.Metadata), id)
		if err != nil {
			if isConstraint(err) {
				return fmt.Errorf("category %q: %w", core.NameKey(cat.Name), core.ErrDuplicateName)
			}
			return unavailable("update category", err)
		}
		updated = cat
		return nil
	})
	if err != nil {
		return core.Category{}, err
	}
	return updated, nil
}

// Rename is Update with only a new name.
func (s *CategoryStore) Rename(ctx context.Context, id, name string) (core.Category, error) {
	return s.Update(ctx, id, core.CategoryPatch{Name: &name})
}

// Delete removes a category that no record references.
func (s *CategoryStore) Delete(ctx context.Context, id string) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		var inUse bool
		err := tx.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM records WHERE category_id = ?)", id).Scan(&inUse)
		if err != nil {
			return unavailable("check category references", err)
		}

		if inUse {
			return fmt.Errorf("category %s: %w", id, core.ErrCategoryInUse)
		}

		res, err := tx.ExecContext(ctx, "DELETE FROM categories WHERE id = ?", id)
		if err != nil {
			if isConstraint(err) {
				return fmt.Errorf("category %s: %w", id, core.ErrCategoryInUse)
			}
			return unavailable("delete category", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return unavailable("delete category", err)
		}
		if n == 0 {
			return fmt.Errorf("category %s: %w", id, core.ErrNotFound)
		}
		return nil
	})
}
