package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"budget/internal/core"
)

// suggestionWindow caps how many recent records of a category feed the
// prediction engine.
const suggestionWindow = 5000

const recordColumns = "id, name, amount_cents, category_id, occurred_at, created_at"

// RecordStore reads and writes the records of one tenant database.
type RecordStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewRecordStore binds a store to a borrowed handle. The store must not
// outlive the handle.
func NewRecordStore(h Handle) *RecordStore {
	return &RecordStore{db: h.DB(), now: time.Now}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (core.Record, error) {
	var (
		r                     core.Record
		occurredAt, createdAt int64
	)
	if err := row.Scan(&r.ID, &r.Name, &r.Amount.Cents, &r.CategoryID, &occurredAt, &createdAt); err != nil {
		return core.Record{}, err
	}
	r.OccurredAt = unixTime(occurredAt)
	r.CreatedAt = unixTime(createdAt)
	return r, nil
}

func requireCategory(ctx context.Context, tx *sql.Tx, categoryID string) error {
	var one int
	err := tx.QueryRowContext(ctx, "SELECT 1 FROM categories WHERE id = ?", categoryID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Invalid("category_id", "does not reference an existing category")
	}
	if err != nil {
		return unavailable("check category", err)
	}
	return nil
}

// Create validates the draft and inserts a new record.
func (s *RecordStore) Create(ctx context.Context, draft core.RecordDraft) (core.Record, error) {
	if err := draft.Normalize(s.now()); err != nil {
		return core.Record{}, err
	}

	rec := core.Record{
		ID:         newID(),
		Name:       draft.Name,
		Amount:     draft.Amount,
		CategoryID: draft.CategoryID,
		OccurredAt: draft.OccurredAt,
		CreatedAt:  core.Timestamp(s.now()),
	}

	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := requireCategory(ctx, tx, rec.CategoryID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO records ("+recordColumns+") VALUES (?, ?, ?, ?, ?, ?)",
			rec.ID, rec.Name, rec.Amount.Cents, rec.CategoryID, rec.OccurredAt.Unix(), rec.CreatedAt.Unix())
		if err != nil {
			if isConstraint(err) {
				return core.Invalid("category_id", "does not reference an existing category")
			}
			return unavailable("insert record", err)
		}
		return nil
	})
	if err != nil {
		return core.Record{}, err
	}
	return rec, nil
}

// Get returns one record by id.
func (s *RecordStore) Get(ctx context.Context, id string) (core.Record, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+recordColumns+" FROM records WHERE id = ?", id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Record{}, fmt.Errorf("record %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Record{}, unavailable("get record", err)
	}
	return rec, nil
}

// List returns a page of records ordered by occurred_at, ties broken by id
// ascending. The total counts every record matching the time range.
func (s *RecordStore) List(ctx context.Context, q core.RecordQuery) (core.RecordPage, error) {
	if err := q.Normalize(); err != nil {
		return core.RecordPage{}, err
	}

	var (
		conds []string
		args  []any
	)
	if q.From != nil {
		conds = append(conds, "occurred_at >= ?")
		args = append(args, q.From.Unix())
	}
	if q.To != nil {
		conds = append(conds, "occurred_at <= ?")
		args = append(args, q.To.Unix())
	}

	cmp := "<"
	order := "occurred_at DESC, id ASC"
	if q.Order == core.SortAsc {
		cmp = ">"
		order = "occurred_at ASC, id ASC"
	}
	countSQL := "SELECT COUNT(*) FROM records" + where(conds)
	countArgs := args
	if q.Cursor != "" {
		c, err := core.DecodeCursor(q.Cursor)
		if err != nil {
			return core.RecordPage{}, err
		}
		conds = append(conds, "(occurred_at "+cmp+" ? OR (occurred_at = ? AND id > ?))")
		args = append(args[:len(args):len(args)], c.OccurredAt, c.OccurredAt, c.ID)
	}
	listSQL := "SELECT " + recordColumns + " FROM records" + where(conds) +
		" ORDER BY " + order + " LIMIT ? OFFSET ?"
	args = append(args, q.Limit+1, q.Offset)

	var (
		page    core.RecordPage
		records []core.Record
	)
	// Count and page come from one snapshot so Total agrees with HasMore.
	err := withReadTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, countSQL, countArgs...).Scan(&page.Total); err != nil {
			return unavailable("count records", err)
		}

		rows, err := tx.QueryContext(ctx, listSQL, args...)
		if err != nil {
			return unavailable("list records", err)
		}
		defer rows.Close()

		records = make([]core.Record, 0, q.Limit)
		for rows.Next() {
			rec, err := scanRecord(rows)
			if err != nil {
				return unavailable("scan record", err)
			}
			records = append(records, rec)
		}
		if err := rows.Err(); err != nil {
			return unavailable("list records", err)
		}
		return nil
	})
	if err != nil {
		return core.RecordPage{}, err
	}

	if len(records) > q.Limit {
		records = records[:q.Limit]
		page.HasMore = true
		last := records[len(records)-1]
		page.NextCursor = core.Cursor{OccurredAt: last.OccurredAt.Unix(), ID: last.ID}.Encode()
	}
	page.Records = records
	return page, nil
}

// Update merges the patch into the stored record. A failed update leaves
// the stored record untouched.
func (s *RecordStore) Update(ctx context.Context, id string, patch core.RecordPatch) (core.Record, error) {
	var updated core.Record
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, "SELECT "+recordColumns+" FROM records WHERE id = ?", id)
		current, err := scanRecord(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("record %s: %w", id, core.ErrNotFound)
		}
		if err != nil {
			return unavailable("load record", err)
		}

		merged, err := patch.Apply(current)
		if err != nil {
			return err
		}
		if merged.CategoryID != current.CategoryID {
			if err := requireCategory(ctx, tx, merged.CategoryID); err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx,
			"UPDATE records SET name = ?, amount_cents = ?, category_id = ?, occurred_at = ? WHERE id = ?",
			merged.Name, merged.Amount.Cents, merged.CategoryID, merged.OccurredAt.Unix(), id)
		if err != nil {
			if isConstraint(err) {
				return core.Invalid("category_id", "does not reference an existing category")
			}
			return unavailable("update record", err)
		}
		updated = merged
		return nil
	})
	if err != nil {
		return core.Record{}, err
	}
	return updated, nil
}

// Delete removes one record.
func (s *RecordStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM records WHERE id = ?", id)
	if err != nil {
		return unavailable("delete record", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("delete record", err)
	}
	if n == 0 {
		return fmt.Errorf("record %s: %w", id, core.ErrNotFound)
	}
	return nil
}

// SuggestionCandidates returns the most recent records of a category, the
// input of the prediction engine.
func (s *RecordStore) SuggestionCandidates(ctx context.Context, categoryID string) ([]core.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+recordColumns+" FROM records WHERE category_id = ? ORDER BY occurred_at DESC, id DESC LIMIT ?",
		categoryID, suggestionWindow)
	if err != nil {
		return nil, unavailable("query suggestion candidates", err)
	}
	defer rows.Close()

	var out []core.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, unavailable("scan suggestion candidate", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("query suggestion candidates", err)
	}
	return out, nil
}

func where(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}
