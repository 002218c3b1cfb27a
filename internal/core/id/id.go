// Package id provides time-ordered UUID identifiers for all entities.
package id

import (
	"github.com/google/uuid"

	"crmflow/internal/core/apperror"
)

// ID is a type alias for UUID, used across all entities.
type ID = uuid.UUID

// New generates a new UUIDv7, falling back to v4.
func New() ID {
	v, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return v
}

// Parse converts string to ID.
func Parse(s string) (ID, error) {
	return uuid.Parse(s)
}

// ParseParam parses a request-supplied identifier, returning a validation error
// that names the offending field.
func ParseParam(field, s string) (ID, error) {
	v, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, apperror.NewFieldValidation(field, "invalid identifier")
	}
	return v, nil
}

// ParseList parses a list of identifiers, failing on the first bad entry.
func ParseList(field string, values []string) ([]ID, error) {
	out := make([]ID, 0, len(values))
	for _, s := range values {
		v, err := ParseParam(field, s)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// MustParse converts string to ID, panics on error. Tests and constants only.
func MustParse(s string) ID {
	return uuid.MustParse(s)
}

// IsNil checks if ID is zero-value.
func IsNil(v ID) bool {
	return v == uuid.Nil
}

// Ptr returns a pointer to v, or nil for the zero ID.
func Ptr(v ID) *ID {
	if v == uuid.Nil {
		return nil
	}
	return &v
}

// Equal compares an optional ID with a concrete one.
func Equal(p *ID, v ID) bool {
	return p != nil && *p == v
}
