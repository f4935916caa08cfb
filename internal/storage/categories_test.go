package storage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"budget/internal/core"
)

func TestCategoryCreateDuplicateIgnoresCase(t *testing.T) {
	ctx := context.Background()
	db := newTenantDB(t)
	store := NewCategoryStore(dbHandle{db})

	if _, err := store.Create(ctx, core.CategoryDraft{Name: "Groceries"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, name := range []string{"groceries", " GROCERIES "} {
		if _, err := store.Create(ctx, core.CategoryDraft{Name: name}); !errors.Is(err, core.ErrDuplicateName) {
			t.Fatalf("%q: expected duplicate name, got %v", name, err)
		}
	}
}

func TestCategoryMetadataPassThrough(t *testing.T) {
	ctx := context.Background()
	db := newTenantDB(t)
	store := NewCategoryStore(dbHandle{db})

	meta := json.RawMessage(`{"color":"#ff0000","icon":"cart"}`)
	created, err := store.Create(ctx, core.CategoryDraft{Name: "Food", Metadata: meta})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := store.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got.Metadata) != string(meta) {
		t.Fatalf("expected metadata %s, got %s", meta, got.Metadata)
	}

	empty := json.RawMessage(nil)
	cleared, err := store.Update(ctx, created.ID, core.CategoryPatch{Metadata: &empty})
	if err != nil {
		t.Fatalf("clear metadata: %v", err)
	}
	if cleared.Metadata != nil || cleared.Name != "Food" {
		t.Fatalf("unexpected category after clearing metadata: %+v", cleared)
	}
}

func TestCategoryRename(t *testing.T) {
	ctx := context.Background()
	db := newTenantDB(t)
	store := NewCategoryStore(dbHandle{db})
	food := mustCategory(t, db, "Food")
	mustCategory(t, db, "Fun")

	if _, err := store.Rename(ctx, food.ID, "fun"); !errors.Is(err, core.ErrDuplicateName) {
		t.Fatalf("expected duplicate name, got %v", err)
	}

	renamed, err := store.Rename(ctx, food.ID, "FOOD")
	if err != nil {
		t.Fatalf("case-only rename should succeed: %v", err)
	}
	if renamed.Name != "FOOD" {
		t.Fatalf("expected new name, got %q", renamed.Name)
	}

	if _, err := store.Rename(ctx, "missing", "Other"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCategoryDeleteInUse(t *testing.T) {
	ctx := context.Background()
	db := newTenantDB(t)
	store := NewCategoryStore(dbHandle{db})
	cat := mustCategory(t, db, "Food")

	rec, err := NewRecordStore(dbHandle{db}).Create(ctx, core.RecordDraft{Name: "Coffee", Amount: core.Money{Cents: 100}, CategoryID: cat.ID})
	if err != nil {
		t.Fatalf("create record: %v", err)
	}

	if err := store.Delete(ctx, cat.ID); !errors.Is(err, core.ErrCategoryInUse) {
		t.Fatalf("expected category in use, got %v", err)
	}
	if _, err := store.Get(ctx, cat.ID); err != nil {
		t.Fatalf("category must survive: %v", err)
	}
	got, err := NewRecordStore(dbHandle{db}).Get(ctx, rec.ID)
	if err != nil || got.CategoryID != cat.ID {
		t.Fatalf("record must be unchanged, got %+v (err=%v)", got, err)
	}

	if err := NewRecordStore(dbHandle{db}).Delete(ctx, rec.ID); err != nil {
		t.Fatalf("delete record: %v", err)
	}
	if err := store.Delete(ctx, cat.ID); err != nil {
		t.Fatalf("delete unreferenced category: %v", err)
	}
	if err := store.Delete(ctx, cat.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCategoryListSearch(t *testing.T) {
	ctx := context.Background()
	db := newTenantDB(t)
	store := NewCategoryStore(dbHandle{db})
	for _, n := range []string{"Utilities", "Food", "Fast food", "Fun", "100%_off"} {
		mustCategory(t, db, n)
	}

	page, err := store.List(ctx, core.CategoryQuery{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 5 || page.Categories[0].Name != "100%_off" || page.Categories[4].Name != "Utilities" {
		t.Fatalf("unexpected listing: %+v", page)
	}

	cases := []struct {
		search string
		want   int
	}{
		{"FOOD", 2},
		{"fu", 1},
		{"%", 1},
		{"_", 1},
		{"nothing", 0},
	}
	for _, tc := range cases {
		page, err := store.List(ctx, core.CategoryQuery{Search: tc.search})
		if err != nil {
			t.Fatalf("search %q: %v", tc.search, err)
		}
		if page.Total != tc.want || len(page.Categories) != tc.want {
			t.Fatalf("search %q: expected %d, got total=%d len=%d", tc.search, tc.want, page.Total, len(page.Categories))
		}
	}

	page, err = store.List(ctx, core.CategoryQuery{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("paged list: %v", err)
	}
	if len(page.Categories) != 2 || !page.HasMore || page.Categories[0].Name != "Food" {
		t.Fatalf("unexpected page: %+v", page)
	}
}
