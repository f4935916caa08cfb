package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"budget/internal/core"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 64 << 10

// decodeJSON reads one JSON object from the body. Unknown fields and
// trailing data are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		var typeErr *json.UnmarshalTypeError
		var fieldErr *fieldError
		switch {
		case errors.As(err, &maxErr):
			return core.Invalid("", "request body too large")
		case errors.Is(err, io.EOF):
			return core.Invalid("", "request body is empty")
		case errors.As(err, &typeErr):
			return core.Invalid(typeErr.Field, "has the wrong type")
		case errors.As(err, &fieldErr):
			return core.Invalid(fieldErr.field, fieldErr.msg)
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			return core.Invalid(strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), `"`), "is not allowed")
		default:
			return core.Invalid("", "malformed JSON")
		}
	}
	if dec.More() {
		return core.Invalid("", "request body must contain a single JSON object")
	}
	return nil
}

// fieldError lets custom unmarshalers report which field was bad.
type fieldError struct {
	field, msg string
}

func (e *fieldError) Error() string { return e.field + ": " + e.msg }

// Accepted instant layouts, tried in order. Values without a zone are UTC.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTime accepts RFC 3339, a naive date-time, a date or Unix seconds.
func parseTime(field, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, core.Invalid(field, "is not a valid date or time")
}

// flexTime is an instant accepted in any parseTime form, as a JSON string or number.
type flexTime time.Time

func (t *flexTime) UnmarshalJSON(b []byte) error {
	s := string(b)
	if unq, err := strconv.Unquote(s); err == nil {
		s = unq
	}
	parsed, err := parseTime("occurred_at", s)
	if err != nil {
		return &fieldError{field: "occurred_at", msg: "is not a valid date or time"}
	}
	*t = flexTime(parsed)
	return nil
}

// amountValue is a decimal amount given as a JSON string or number.
type amountValue string

func (a *amountValue) UnmarshalJSON(b []byte) error {
	s := string(b)
	if unq, err := strconv.Unquote(s); err == nil {
		s = unq
	}
	*a = amountValue(s)
	return nil
}

func queryInt(q url.Values, key string) (int, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, core.Invalid(key, "must be an integer")
	}
	return n, nil
}

func queryTime(q url.Values, key string) (*time.Time, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return nil, nil
	}
	t, err := parseTime(key, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// parseRecordQuery reads from, to, order, limit, offset and cursor.
func parseRecordQuery(q url.Values) (core.RecordQuery, error) {
	var (
		rq  core.RecordQuery
		err error
	)
	if rq.From, err = queryTime(q, "from"); err != nil {
		return rq, err
	}
	if rq.To, err = queryTime(q, "to"); err != nil {
		return rq, err
	}
	if rq.Limit, err = queryInt(q, "limit"); err != nil {
		return rq, err
	}
	if rq.Offset, err = queryInt(q, "offset"); err != nil {
		return rq, err
	}
	rq.Order = core.SortOrder(q.Get("order"))
	rq.Cursor = strings.TrimSpace(q.Get("cursor"))
	return rq, nil
}

// parseCategoryQuery reads search, limit and offset.
func parseCategoryQuery(q url.Values) (core.CategoryQuery, error) {
	var (
		cq  core.CategoryQuery
		err error
	)
	cq.Search = q.Get("search")
	if cq.Limit, err = queryInt(q, "limit"); err != nil {
		return cq, err
	}
	if cq.Offset, err = queryInt(q, "offset"); err != nil {
		return cq, err
	}
	return cq, nil
}

// parseSuggestQuery reads category_id, prefix and limit.
func parseSuggestQuery(q url.Values) (core.SuggestQuery, error) {
	sq := core.SuggestQuery{
		CategoryID: strings.TrimSpace(q.Get("category_id")),
		Prefix:     q.Get("prefix"),
	}
	limit, err := queryInt(q, "limit")
	if err != nil {
		return sq, err
	}
	if limit < 0 {
		return sq, core.Invalid("limit", fmt.Sprintf("must be between 1 and %d", core.MaxSuggestionLimit))
	}
	sq.Limit = limit
	return sq, nil
}
