package core

import (
	"encoding/json"
	"strings"
	"time"
)

// SortOrder is the direction of a record listing on occurred_at.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

type (
	// Record is one expense entry of a tenant.
	Record struct {
		ID         string
		Name       string
		Amount     Money
		CategoryID string
		OccurredAt time.Time
		CreatedAt  time.Time
	}

	// RecordDraft is the client-supplied part of a new record.
	RecordDraft struct {
		Name       string
		Amount     Money
		CategoryID string
		OccurredAt time.Time // zero means now
	}

	// RecordPatch carries the fields to change; nil fields are kept.
	RecordPatch struct {
		Name       *string
		Amount     *Money
		CategoryID *string
		OccurredAt *time.Time
	}

	// RecordQuery selects a page of records. From and To are inclusive.
	RecordQuery struct {
		From   *time.Time
		To     *time.Time
		Order  SortOrder
		Limit  int
		Offset int
		Cursor string
	}

	RecordPage struct {
		Records    []Record
		Total      int
		HasMore    bool
		NextCursor string
	}

	// Category groups records. Metadata is opaque JSON.
	Category struct {
		ID        string
		Name      string
		Metadata  json.RawMessage
		CreatedAt time.Time
	}

	CategoryDraft struct {
		Name     string
		Metadata json.RawMessage
	}

	// CategoryPatch changes the name and/or the metadata. A non-nil
	// Metadata pointing at an empty value clears it.
	CategoryPatch struct {
		Name     *string
		Metadata *json.RawMessage
	}

	CategoryQuery struct {
		Search string
		Limit  int
		Offset int
	}

	CategoryPage struct {
		Categories []Category
		Total      int
		HasMore    bool
	}

	// SuggestQuery asks for likely record names within a category.
	SuggestQuery struct {
		CategoryID string
		Prefix     string
		Limit      int
	}

	// Suggestion is one ranked candidate name.
	Suggestion struct {
		Name       string
		Count      int
		LastUsed   time.Time
		LastAmount Money
	}

	// User is an entry of the shared registry. Its ID is the tenant identifier.
	User struct {
		ID           string
		Username     string
		PasswordHash string
		CreatedAt    time.Time
	}
)

// Timestamp normalizes an instant to the stored precision.
func Timestamp(t time.Time) time.Time {
	return t.Truncate(time.Second).UTC()
}

// Normalize trims and validates the draft in place, defaulting OccurredAt to now.
func (d *RecordDraft) Normalize(now time.Time) error {
	name, err := ValidateRecordName(d.Name)
	if err != nil {
		return err
	}
	d.Name = name
	if err := d.Amount.Validate(); err != nil {
		return err
	}
	if err := ValidateID("category_id", d.CategoryID); err != nil {
		return err
	}
	if d.OccurredAt.IsZero() {
		d.OccurredAt = now
	}
	d.OccurredAt = Timestamp(d.OccurredAt)
	return nil
}

// IsEmpty reports whether the patch changes nothing.
func (p RecordPatch) IsEmpty() bool {
	return p.Name == nil && p.Amount == nil && p.CategoryID == nil && p.OccurredAt == nil
}

// Apply returns r with the patch merged in and validated. r is not modified.
func (p RecordPatch) Apply(r Record) (Record, error) {
	if p.IsEmpty() {
		return Record{}, Invalid("", "at least one field must be provided")
	}
	if p.Name != nil {
		name, err := ValidateRecordName(*p.Name)
		if err != nil {
			return Record{}, err
		}
		r.Name = name
	}
	if p.Amount != nil {
		if err := p.Amount.Validate(); err != nil {
			return Record{}, err
		}
		r.Amount = *p.Amount
	}
	if p.CategoryID != nil {
		if err := ValidateID("category_id", *p.CategoryID); err != nil {
			return Record{}, err
		}
		r.CategoryID = *p.CategoryID
	}
	if p.OccurredAt != nil {
		if p.OccurredAt.IsZero() {
			return Record{}, Invalid("occurred_at", "must not be empty")
		}
		r.OccurredAt = Timestamp(*p.OccurredAt)
	}
	return r, nil
}

// ParseSortOrder accepts "", "asc" and "desc" in any case. Empty means descending.
func ParseSortOrder(s string) (SortOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(SortDesc):
		return SortDesc, nil
	case string(SortAsc):
		return SortAsc, nil
	default:
		return "", Invalid("order", "must be asc or desc")
	}
}

// Normalize applies defaults and validates the query in place.
func (q *RecordQuery) Normalize() error {
	order, err := ParseSortOrder(string(q.Order))
	if err != nil {
		return err
	}
	q.Order = order

	q.Limit, q.Offset, err = ValidatePage(q.Limit, q.Offset, DefaultRecordLimit)
	if err != nil {
		return err
	}
	if q.Cursor != "" && q.Offset != 0 {
		return Invalid("cursor", "cannot be combined with offset")
	}
	if q.From != nil {
		t := Timestamp(*q.From)
		q.From = &t
	}
	if q.To != nil {
		t := Timestamp(*q.To)
		q.To = &t
	}
	if q.From != nil && q.To != nil && q.From.After(*q.To) {
		return Invalid("from", "must not be after to")
	}
	return nil
}

// Normalize trims and validates the draft in place.
func (d *CategoryDraft) Normalize() error {
	name, err := ValidateCategoryName(d.Name)
	if err != nil {
		return err
	}
	d.Name = name
	return ValidateMetadata(d.Metadata)
}

// Normalize validates the patch in place.
func (p *CategoryPatch) Normalize() error {
	if p.Name == nil && p.Metadata == nil {
		return Invalid("", "at least one field must be provided")
	}
	if p.Name != nil {
		name, err := ValidateCategoryName(*p.Name)
		if err != nil {
			return err
		}
		p.Name = &name
	}
	if p.Metadata != nil {
		return ValidateMetadata(*p.Metadata)
	}
	return nil
}

// Normalize applies defaults and validates the query in place.
func (q *CategoryQuery) Normalize() error {
	q.Search = strings.TrimSpace(q.Search)
	if len(q.Search) > MaxSearchTermLength {
		return Invalid("search", "is too long")
	}
	var err error
	q.Limit, q.Offset, err = ValidatePage(q.Limit, q.Offset, DefaultCategoryLimit)
	return err
}

// Normalize validates the query against the configured maximum k.
func (q *SuggestQuery) Normalize(max int) error {
	if err := ValidateID("category_id", q.CategoryID); err != nil {
		return err
	}
	if len(q.Prefix) > MaxSearchTermLength {
		return Invalid("prefix", "is too long")
	}
	if max <= 0 {
		max = DefaultSuggestionLimit
	}
	if q.Limit == 0 || q.Limit > max {
		q.Limit = max
	}
	if q.Limit < 0 {
		return Invalid("limit", "must be positive")
	}
	return nil
}
