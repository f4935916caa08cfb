// Package predict ranks likely record names from a tenant's history.
//
// Suggest is a pure function over a snapshot of records; it never touches
// storage, so callers decide where the snapshot comes from.
package predict

import (
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"budget/internal/core"
)

type group struct {
	key      string
	name     string
	count    int
	lastUsed time.Time
	lastID   string
	amount   core.Money
}

// prefixKey normalizes a typed prefix like a name, but keeps one trailing
// space so that "coffee " only matches names with a further word.
func prefixKey(prefix string) string {
	key := core.NameKey(prefix)
	if key == "" {
		return key
	}
	if r, _ := utf8.DecodeLastRuneInString(prefix); unicode.IsSpace(r) {
		key += " "
	}
	return key
}

// Suggest returns at most limit suggestions for records whose normalized
// name starts with prefix. Candidates are grouped by normalized name and
// ranked by frequency, then by most recent use, then by name.
func Suggest(candidates []core.Record, prefix string, limit int) []core.Suggestion {
	if limit <= 0 {
		return []core.Suggestion{}
	}
	prefix = prefixKey(prefix)

	groups := make(map[string]*group)
	for _, rec := range candidates {
		key := core.NameKey(rec.Name)
		if key == "" || !strings.HasPrefix(key, prefix) {
			continue
		}
		g, ok := groups[key]
		if !ok {
			g = &group{key: key}
			groups[key] = g
		}
		g.count++
		if g.count == 1 || newer(rec, g) {
			g.name = strings.TrimSpace(rec.Name)
			g.lastUsed = rec.OccurredAt
			g.lastID = rec.ID
			g.amount = rec.Amount
		}
	}

	ranked := make([]*group, 0, len(groups))
	for _, g := range groups {
		ranked = append(ranked, g)
	}
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.count != b.count {
			return a.count > b.count
		}
		if !a.lastUsed.Equal(b.lastUsed) {
			return a.lastUsed.After(b.lastUsed)
		}
		return a.key < b.key
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]core.Suggestion, 0, len(ranked))
	for _, g := range ranked {
		out = append(out, core.Suggestion{
			Name:       g.name,
			Count:      g.count,
			LastUsed:   g.lastUsed,
			LastAmount: g.amount,
		})
	}
	return out
}

// newer reports whether rec is more recent than the group's current representative.
func newer(rec core.Record, g *group) bool {
	if !rec.OccurredAt.Equal(g.lastUsed) {
		return rec.OccurredAt.After(g.lastUsed)
	}
	return rec.ID > g.lastID
}
