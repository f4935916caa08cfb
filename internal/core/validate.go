package core

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Input limits.
const (
	MaxRecordNameLength   = 255
	MaxCategoryNameLength = 100
	MaxSearchTermLength   = 100
	MaxMetadataBytes      = 4096

	DefaultRecordLimit   = 500
	DefaultCategoryLimit = 100
	MaxPageLimit         = 1000
	MaxPageOffset        = 1_000_000

	DefaultSuggestionLimit = 5
	MaxSuggestionLimit     = 20

	MinUsernameLength = 4
	MaxUsernameLength = 50
	MinPasswordLength = 6
)

// NameKey is the comparison form of a name: trimmed, inner whitespace
// collapsed, lower-cased. Category uniqueness and suggestion grouping use it.
func NameKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

func validateName(field, name string, max int) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", Invalid(field, "must not be empty")
	}
	if !utf8.ValidString(name) {
		return "", Invalid(field, "must be valid UTF-8")
	}
	if len(name) > max {
		return "", Invalid(field, "is too long")
	}
	return name, nil
}

// ValidateRecordName trims and checks a record name.
func ValidateRecordName(name string) (string, error) {
	return validateName("name", name, MaxRecordNameLength)
}

// ValidateCategoryName trims and checks a category name.
func ValidateCategoryName(name string) (string, error) {
	return validateName("name", name, MaxCategoryNameLength)
}

// ValidateMetadata accepts an empty value or a JSON object.
func ValidateMetadata(raw json.RawMessage) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if len(raw) > MaxMetadataBytes {
		return Invalid("metadata", "is too large")
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return Invalid("metadata", "must be a JSON object")
	}
	return nil
}

// ValidateID checks that id is a canonical UUID.
func ValidateID(field, id string) error {
	if id == "" {
		return Invalid(field, "is required")
	}
	if _, err := uuid.Parse(id); err != nil {
		return Invalid(field, "is not a valid identifier")
	}
	return nil
}

// ValidatePage applies defaults and bounds to limit/offset.
func ValidatePage(limit, offset, defaultLimit int) (int, int, error) {
	if limit == 0 {
		limit = defaultLimit
	}
	if limit < 1 || limit > MaxPageLimit {
		return 0, 0, Invalid("limit", "must be between 1 and 1000")
	}
	if offset < 0 || offset > MaxPageOffset {
		return 0, 0, Invalid("offset", "must be between 0 and 1000000")
	}
	return limit, offset, nil
}

// ValidateCredentials checks registration input.
func ValidateCredentials(username, password string) (string, error) {
	username = strings.TrimSpace(username)
	if n := len(username); n < MinUsernameLength || n > MaxUsernameLength {
		return "", Invalid("username", "must be between 4 and 50 characters")
	}
	if len(password) < MinPasswordLength {
		return "", Invalid("password", "must be at least 6 characters")
	}
	return username, nil
}
