package core

import (
	"errors"
	"strings"
	"testing"
	"time"
)

const testCategoryID = "0190f5b4-3c7a-7cc2-9a53-52b1c0a4e001"

func TestRecordDraftNormalize(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 500, time.UTC)
	d := RecordDraft{Name: "  Coffee ", Amount: Money{Cents: 350}, CategoryID: testCategoryID}
	if err := d.Normalize(now); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if d.Name != "Coffee" {
		t.Fatalf("expected trimmed name, got %q", d.Name)
	}
	if !d.OccurredAt.Equal(now.Truncate(time.Second)) {
		t.Fatalf("expected occurred_at to default to now, got %v", d.OccurredAt)
	}

	bads := []RecordDraft{
		{Name: "", Amount: Money{Cents: 1}, CategoryID: testCategoryID},
		{Name: "   ", Amount: Money{Cents: 1}, CategoryID: testCategoryID},
		{Name: strings.Repeat("a", 256), Amount: Money{Cents: 1}, CategoryID: testCategoryID},
		{Name: "a", Amount: Money{Cents: 0}, CategoryID: testCategoryID},
		{Name: "a", Amount: Money{Cents: 1}, CategoryID: ""},
		{Name: "a", Amount: Money{Cents: 1}, CategoryID: "../../etc"},
	}
	for i, b := range bads {
		if err := b.Normalize(now); !errors.Is(err, ErrValidation) {
			t.Fatalf("case %d expected validation error, got %v", i, err)
		}
	}
}

func TestRecordPatchApply(t *testing.T) {
	base := Record{ID: "r1", Name: "Coffee", Amount: Money{Cents: 100}, CategoryID: testCategoryID}

	if _, err := (RecordPatch{}).Apply(base); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected empty patch to be rejected, got %v", err)
	}

	name := " Tea "
	got, err := RecordPatch{Name: &name}.Apply(base)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "Tea" || got.Amount != base.Amount || got.CategoryID != base.CategoryID {
		t.Fatalf("unexpected merge result: %+v", got)
	}
	if base.Name != "Coffee" {
		t.Fatalf("apply must not modify the input")
	}

	bad := "not-a-uuid"
	if _, err := (RecordPatch{CategoryID: &bad}).Apply(base); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRecordQueryNormalize(t *testing.T) {
	q := RecordQuery{}
	if err := q.Normalize(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Limit != DefaultRecordLimit || q.Order != SortDesc {
		t.Fatalf("unexpected defaults: %+v", q)
	}

	from := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(-time.Hour)
	cases := []struct {
		name string
		q    RecordQuery
	}{
		{"limit too large", RecordQuery{Limit: 1001}},
		{"negative limit", RecordQuery{Limit: -1}},
		{"offset too large", RecordQuery{Offset: MaxPageOffset + 1}},
		{"bad order", RecordQuery{Order: "sideways"}},
		{"from after to", RecordQuery{From: &from, To: &to}},
		{"cursor with offset", RecordQuery{Offset: 5, Cursor: "x"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.q.Normalize(); !errors.Is(err, ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCategoryValidation(t *testing.T) {
	d := CategoryDraft{Name: " Food ", Metadata: []byte(`{"color":"red"}`)}
	if err := d.Normalize(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if d.Name != "Food" {
		t.Fatalf("expected trimmed name, got %q", d.Name)
	}

	bads := []CategoryDraft{
		{Name: ""},
		{Name: strings.Repeat("x", MaxCategoryNameLength+1)},
		{Name: "ok", Metadata: []byte(`[1,2]`)},
		{Name: "ok", Metadata: []byte(`{broken`)},
	}
	for i, b := range bads {
		if err := b.Normalize(); !errors.Is(err, ErrValidation) {
			t.Fatalf("case %d expected validation error, got %v", i, err)
		}
	}

	q := CategoryQuery{Search: strings.Repeat("s", MaxSearchTermLength+1)}
	if err := q.Normalize(); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected search term limit, got %v", err)
	}
}

func TestNameKey(t *testing.T) {
	cases := map[string]string{
		"Coffee":         "coffee",
		"  Coffee  Shop": "coffee shop",
		"CAFÉ":           "café",
	}
	for in, want := range cases {
		if got := NameKey(in); got != want {
			t.Fatalf("NameKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCursorRoundTrip(t *testing.T) {
	c := Cursor{OccurredAt: 1700000000, ID: "abc"}
	got, err := DecodeCursor(c.Encode())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != c {
		t.Fatalf("expected %+v, got %+v", c, got)
	}
	if _, err := DecodeCursor("%%%"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestValidateCredentials(t *testing.T) {
	if _, err := ValidateCredentials("alice", "secret"); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if _, err := ValidateCredentials("bob", "secret"); err == nil {
		t.Fatalf("expected short username to fail")
	}
	if _, err := ValidateCredentials("alice", "12345"); err == nil {
		t.Fatalf("expected short password to fail")
	}
}
