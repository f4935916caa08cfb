package storage

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"budget/internal/core"
)

var baseTime = time.Date(2025, 1, 10, 9, 30, 0, 0, time.UTC)

func TestRecordCreateGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := newTenantDB(t)
	cat := mustCategory(t, db, "Food")
	store := NewRecordStore(dbHandle{db})

	created, err := store.Create(ctx, core.RecordDraft{
		Name:       "  Coffee ",
		Amount:     core.Money{Cents: 350},
		CategoryID: cat.ID,
		OccurredAt: baseTime.Add(123 * time.Millisecond),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" || created.CreatedAt.IsZero() {
		t.Fatalf("expected server-assigned id and created_at, got %+v", created)
	}

	for i := 0; i < 2; i++ {
		got, err := store.Get(ctx, created.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if !sameRecord(got, created) {
			t.Fatalf("round trip mismatch:\n got  %+v\n want %+v", got, created)
		}
	}
	if created.Name != "Coffee" || !created.OccurredAt.Equal(baseTime) {
		t.Fatalf("expected normalized fields, got %+v", created)
	}
}

func TestRecordCreateDefaultsOccurredAt(t *testing.T) {
	db := newTenantDB(t)
	cat := mustCategory(t, db, "Food")
	store := NewRecordStore(dbHandle{db})
	store.now = func() time.Time { return baseTime }

	rec, err := store.Create(context.Background(), core.RecordDraft{Name: "Tea", Amount: core.Money{Cents: 100}, CategoryID: cat.ID})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !rec.OccurredAt.Equal(baseTime) {
		t.Fatalf("expected occurred_at %v, got %v", baseTime, rec.OccurredAt)
	}
}

func TestRecordCreateUnknownCategory(t *testing.T) {
	db := newTenantDB(t)
	store := NewRecordStore(dbHandle{db})

	_, err := store.Create(context.Background(), core.RecordDraft{
		Name: "Coffee", Amount: core.Money{Cents: 100}, CategoryID: "0190f5b4-3c7a-7cc2-9a53-52b1c0a4e001",
	})
	var verr *core.ValidationError
	if !errors.As(err, &verr) || verr.Field != "category_id" {
		t.Fatalf("expected category_id validation error, got %v", err)
	}
}

func TestRecordUpdateToMissingCategoryLeavesRecord(t *testing.T) {
	ctx := context.Background()
	db := newTenantDB(t)
	cat := mustCategory(t, db, "Food")
	store := NewRecordStore(dbHandle{db})

	rec, err := store.Create(ctx, core.RecordDraft{Name: "Coffee", Amount: core.Money{Cents: 100}, CategoryID: cat.ID, OccurredAt: baseTime})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	missing := "0190f5b4-3c7a-7cc2-9a53-52b1c0a4e001"
	name := "Changed"
	_, err = store.Update(ctx, rec.ID, core.RecordPatch{Name: &name, CategoryID: &missing})
	if !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	got, err := store.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !sameRecord(got, rec) {
		t.Fatalf("record changed after failed update:\n got  %+v\n want %+v", got, rec)
	}
}

func TestRecordUpdate(t *testing.T) {
	ctx := context.Background()
	db := newTenantDB(t)
	food := mustCategory(t, db, "Food")
	fun := mustCategory(t, db, "Fun")
	store := NewRecordStore(dbHandle{db})

	rec, err := store.Create(ctx, core.RecordDraft{Name: "Coffee", Amount: core.Money{Cents: 100}, CategoryID: food.ID, OccurredAt: baseTime})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	amount := core.Money{Cents: -250}
	updated, err := store.Update(ctx, rec.ID, core.RecordPatch{Amount: &amount, CategoryID: &fun.ID})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Amount != amount || updated.CategoryID != fun.ID || updated.Name != "Coffee" {
		t.Fatalf("unexpected update result: %+v", updated)
	}
	if !updated.CreatedAt.Equal(rec.CreatedAt) || updated.ID != rec.ID {
		t.Fatalf("id and created_at must not change")
	}

	if _, err := store.Update(ctx, rec.ID, core.RecordPatch{}); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected empty patch to fail, got %v", err)
	}
	if _, err := store.Update(ctx, "nope", core.RecordPatch{Amount: &amount}); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRecordDelete(t *testing.T) {
	ctx := context.Background()
	db := newTenantDB(t)
	cat := mustCategory(t, db, "Food")
	store := NewRecordStore(dbHandle{db})

	rec, err := store.Create(ctx, core.RecordDraft{Name: "Coffee", Amount: core.Money{Cents: 100}, CategoryID: cat.ID})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Delete(ctx, rec.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, rec.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := store.Delete(ctx, rec.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

// seedRecords inserts n records, three per occurred_at value so ties occur.
func seedRecords(t *testing.T, store *RecordStore, categoryID string, n int) []core.Record {
	t.Helper()
	out := make([]core.Record, 0, n)
	for i := 0; i < n; i++ {
		rec, err := store.Create(context.Background(), core.RecordDraft{
			Name:       "item",
			Amount:     core.Money{Cents: int64(i + 1)},
			CategoryID: categoryID,
			OccurredAt: baseTime.Add(time.Duration(i/3) * time.Hour),
		})
		if err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
		out = append(out, rec)
	}
	return out
}

func sortRecords(records []core.Record, order core.SortOrder) {
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.OccurredAt.Equal(b.OccurredAt) {
			if order == core.SortAsc {
				return a.OccurredAt.Before(b.OccurredAt)
			}
			return a.OccurredAt.After(b.OccurredAt)
		}
		return a.ID < b.ID
	})
}

func TestRecordListOffsetPagination(t *testing.T) {
	ctx := context.Background()
	db := newTenantDB(t)
	cat := mustCategory(t, db, "Food")
	store := NewRecordStore(dbHandle{db})

	const n, pageSize = 23, 5
	want := seedRecords(t, store, cat.ID, n)
	sortRecords(want, core.SortAsc)

	var (
		got   []core.Record
		pages int
	)
	for offset := 0; ; offset += pageSize {
		page, err := store.List(ctx, core.RecordQuery{Order: core.SortAsc, Limit: pageSize, Offset: offset})
		if err != nil {
			t.Fatalf("list offset %d: %v", offset, err)
		}
		if page.Total != n {
			t.Fatalf("expected total %d, got %d", n, page.Total)
		}
		pages++
		got = append(got, page.Records...)
		if !page.HasMore {
			break
		}
	}

	if pages != (n+pageSize-1)/pageSize {
		t.Fatalf("expected %d pages, got %d", (n+pageSize-1)/pageSize, pages)
	}
	assertSameOrder(t, got, want)
}

func TestRecordListCursorWithConcurrentInserts(t *testing.T) {
	ctx := context.Background()
	db := newTenantDB(t)
	cat := mustCategory(t, db, "Food")
	store := NewRecordStore(dbHandle{db})

	const n, pageSize = 20, 6
	want := seedRecords(t, store, cat.ID, n)
	sortRecords(want, core.SortDesc)

	var (
		got    []core.Record
		cursor string
		pages  int
	)
	for {
		page, err := store.List(ctx, core.RecordQuery{Order: core.SortDesc, Limit: pageSize, Cursor: cursor})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		pages++
		got = append(got, page.Records...)

		// A newer record sorts before every cursor position in descending order.
		_, err = store.Create(ctx, core.RecordDraft{
			Name: "late", Amount: core.Money{Cents: 1}, CategoryID: cat.ID,
			OccurredAt: baseTime.Add(time.Duration(100+pages) * time.Hour),
		})
		if err != nil {
			t.Fatalf("interleaved insert: %v", err)
		}

		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}

	if pages != (n+pageSize-1)/pageSize {
		t.Fatalf("expected %d pages, got %d", (n+pageSize-1)/pageSize, pages)
	}
	assertSameOrder(t, got, want)
}

func TestRecordListTotalMatchesPageUnderWrites(t *testing.T) {
	ctx := context.Background()
	db := newTenantDB(t)
	cat := mustCategory(t, db, "Food")
	store := NewRecordStore(dbHandle{db})
	seedRecords(t, store, cat.ID, 2)

	const pageSize = 2
	stop := make(chan struct{})
	writerErr := make(chan error, 1)
	go func() {
		defer close(writerErr)
		for {
			select {
			case <-stop:
				return
			default:
			}
			rec, err := store.Create(ctx, core.RecordDraft{
				Name: "churn", Amount: core.Money{Cents: 1}, CategoryID: cat.ID, OccurredAt: baseTime,
			})
			if err != nil {
				writerErr <- err
				return
			}
			if err := store.Delete(ctx, rec.ID); err != nil {
				writerErr <- err
				return
			}
		}
	}()

	for i := 0; i < 200; i++ {
		page, err := store.List(ctx, core.RecordQuery{Limit: pageSize})
		if err != nil {
			close(stop)
			t.Fatalf("list: %v", err)
		}
		if want := min(page.Total, pageSize); len(page.Records) != want {
			close(stop)
			t.Fatalf("total %d but %d records on the page", page.Total, len(page.Records))
		}
		if page.HasMore != (page.Total > pageSize) {
			close(stop)
			t.Fatalf("total %d disagrees with has_more=%v", page.Total, page.HasMore)
		}
	}
	close(stop)
	if err := <-writerErr; err != nil {
		t.Fatalf("writer: %v", err)
	}
}

func TestRecordListTimeRangeInclusive(t *testing.T) {
	ctx := context.Background()
	db := newTenantDB(t)
	cat := mustCategory(t, db, "Food")
	store := NewRecordStore(dbHandle{db})
	seedRecords(t, store, cat.ID, 12) // hours 0..3

	from := baseTime.Add(1 * time.Hour)
	to := baseTime.Add(2 * time.Hour)
	page, err := store.List(ctx, core.RecordQuery{From: &from, To: &to})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 6 || len(page.Records) != 6 {
		t.Fatalf("expected 6 records in range, got total=%d len=%d", page.Total, len(page.Records))
	}
	for _, r := range page.Records {
		if r.OccurredAt.Before(from) || r.OccurredAt.After(to) {
			t.Fatalf("record outside range: %v", r.OccurredAt)
		}
	}
	if !page.Records[0].OccurredAt.Equal(to) {
		t.Fatalf("expected descending order by default")
	}
}

func TestSuggestionCandidatesScopedToCategory(t *testing.T) {
	ctx := context.Background()
	db := newTenantDB(t)
	food := mustCategory(t, db, "Food")
	fun := mustCategory(t, db, "Fun")
	store := NewRecordStore(dbHandle{db})
	seedRecords(t, store, food.ID, 4)
	seedRecords(t, store, fun.ID, 2)

	got, err := store.SuggestionCandidates(ctx, fun.ID)
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	for _, r := range got {
		if r.CategoryID != fun.ID {
			t.Fatalf("candidate from wrong category: %+v", r)
		}
	}
}

func assertSameOrder(t *testing.T, got, want []core.Record) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(got))
	}
	seen := make(map[string]bool, len(got))
	for i := range want {
		if seen[got[i].ID] {
			t.Fatalf("duplicate record %s at %d", got[i].ID, i)
		}
		seen[got[i].ID] = true
		if got[i].ID != want[i].ID {
			t.Fatalf("position %d: got %s, want %s", i, got[i].ID, want[i].ID)
		}
	}
}

func sameRecord(a, b core.Record) bool {
	return a.ID == b.ID && a.Name == b.Name && a.Amount == b.Amount && a.CategoryID == b.CategoryID &&
		a.OccurredAt.Equal(b.OccurredAt) && a.CreatedAt.Equal(b.CreatedAt)
}
