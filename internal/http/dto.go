package http

import (
	"encoding/json"
	"time"

	"budget/internal/core"
)

type recordJSON struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Amount      string    `json:"amount"`
	AmountCents int64     `json:"amount_cents"`
	CategoryID  string    `json:"category_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	CreatedAt   time.Time `json:"created_at"`
}

func toRecordJSON(r core.Record) recordJSON {
	return recordJSON{
		ID:          r.ID,
		Name:        r.Name,
		Amount:      r.Amount.String(),
		AmountCents: r.Amount.Cents,
		CategoryID:  r.CategoryID,
		OccurredAt:  r.OccurredAt,
		CreatedAt:   r.CreatedAt,
	}
}

// recordInput is the body of POST and PUT /records. Absent fields stay nil.
type recordInput struct {
	Name       *string      `json:"name"`
	Amount     *amountValue `json:"amount"`
	CategoryID *string      `json:"category_id"`
	OccurredAt *flexTime    `json:"occurred_at"`
}

func (in recordInput) draft() (core.RecordDraft, error) {
	var d core.RecordDraft
	if in.Name != nil {
		d.Name = *in.Name
	}
	if in.Amount == nil {
		return d, core.Invalid("amount", "is required")
	}
	m, err := core.ParseAmount(string(*in.Amount))
	if err != nil {
		return d, err
	}
	d.Amount = m
	if in.CategoryID != nil {
		d.CategoryID = *in.CategoryID
	}
	if in.OccurredAt != nil {
		d.OccurredAt = time.Time(*in.OccurredAt)
	}
	return d, nil
}

func (in recordInput) patch() (core.RecordPatch, error) {
	p := core.RecordPatch{Name: in.Name, CategoryID: in.CategoryID}
	if in.Amount != nil {
		m, err := core.ParseAmount(string(*in.Amount))
		if err != nil {
			return p, err
		}
		p.Amount = &m
	}
	if in.OccurredAt != nil {
		t := time.Time(*in.OccurredAt)
		p.OccurredAt = &t
	}
	return p, nil
}

type recordPageJSON struct {
	Records    []recordJSON `json:"records"`
	Total      int          `json:"total"`
	HasMore    bool         `json:"has_more"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

func toRecordPageJSON(p core.RecordPage) recordPageJSON {
	out := recordPageJSON{
		Records:    make([]recordJSON, 0, len(p.Records)),
		Total:      p.Total,
		HasMore:    p.HasMore,
		NextCursor: p.NextCursor,
	}
	for _, r := range p.Records {
		out.Records = append(out.Records, toRecordJSON(r))
	}
	return out
}

type categoryJSON struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func toCategoryJSON(c core.Category) categoryJSON {
	return categoryJSON{ID: c.ID, Name: c.Name, Metadata: c.Metadata, CreatedAt: c.CreatedAt}
}

// categoryInput is the body of POST and PUT /categories. A JSON null
// metadata on PUT clears it.
type categoryInput struct {
	Name     *string         `json:"name"`
	Metadata json.RawMessage `json:"metadata"`
}

func (in categoryInput) draft() core.CategoryDraft {
	d := core.CategoryDraft{Metadata: nullToEmpty(in.Metadata)}
	if in.Name != nil {
		d.Name = *in.Name
	}
	return d
}

func (in categoryInput) patch() core.CategoryPatch {
	p := core.CategoryPatch{Name: in.Name}
	if in.Metadata != nil {
		md := nullToEmpty(in.Metadata)
		p.Metadata = &md
	}
	return p
}

func nullToEmpty(raw json.RawMessage) json.RawMessage {
	if string(raw) == "null" {
		return json.RawMessage{}
	}
	return raw
}

type categoryPageJSON struct {
	Categories []categoryJSON `json:"categories"`
	Total      int            `json:"total"`
	HasMore    bool           `json:"has_more"`
}

func toCategoryPageJSON(p core.CategoryPage) categoryPageJSON {
	out := categoryPageJSON{
		Categories: make([]categoryJSON, 0, len(p.Categories)),
		Total:      p.Total,
		HasMore:    p.HasMore,
	}
	for _, c := range p.Categories {
		out.Categories = append(out.Categories, toCategoryJSON(c))
	}
	return out
}

type suggestionJSON struct {
	Name       string    `json:"name"`
	Count      int       `json:"count"`
	LastUsed   time.Time `json:"last_used"`
	LastAmount string    `json:"last_amount"`
}

type suggestionsJSON struct {
	Suggestions []suggestionJSON `json:"suggestions"`
}

func toSuggestionsJSON(in []core.Suggestion) suggestionsJSON {
	out := suggestionsJSON{Suggestions: make([]suggestionJSON, 0, len(in))}
	for _, s := range in {
		out.Suggestions = append(out.Suggestions, suggestionJSON{
			Name:       s.Name,
			Count:      s.Count,
			LastUsed:   s.LastUsed,
			LastAmount: s.LastAmount.String(),
		})
	}
	return out
}

type userJSON struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserJSON(u core.User) userJSON {
	return userJSON{ID: u.ID, Username: u.Username, CreatedAt: u.CreatedAt}
}

type credentialsInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionJSON struct {
	User      userJSON  `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
