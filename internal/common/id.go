package common

import (
	"github.com/google/uuid"
)

// NewID generates a new RFC 4122 UUID string.
// Supplier, product and job identifiers are UUIDs end-to-end.
func NewID() string {
	return uuid.New().String()
}

// IsValidID reports whether s parses as an RFC 4122 UUID
func IsValidID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
