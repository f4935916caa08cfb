package core

import (
	"encoding/base64"
	"encoding/json"
)

// Cursor is the keyset position after the last record of a page.
type Cursor struct {
	OccurredAt int64  `json:"t"`
	ID         string `json:"id"`
}

// Encode returns the opaque form handed to clients.
func (c Cursor) Encode() string {
	b, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeCursor parses a value produced by Cursor.Encode.
func DecodeCursor(s string) (Cursor, error) {
	var c Cursor
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return c, Invalid("cursor", "is malformed")
	}
	if err := json.Unmarshal(b, &c); err != nil || c.ID == "" {
		return c, Invalid("cursor", "is malformed")
	}
	return c, nil
}
