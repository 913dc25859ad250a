package middleware

import (
	"errors"
	"strconv"
)

const maxIDLength = 32

// ValidatePageID validates a Facebook page id.
func ValidatePageID(id string) error {
	if !numericID(id) {
		return errors.New("invalid page ID format")
	}
	return nil
}

// ValidateSenderID validates a page-scoped sender id.
func ValidateSenderID(id string) error {
	if !numericID(id) {
		return errors.New("invalid sender ID format")
	}
	return nil
}

func numericID(id string) bool {
	if id == "" || len(id) > maxIDLength {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ParseLimit parses a positive limit query value, falling back to def and
// capping at max.
func ParseLimit(raw string, def, max int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	if n > max {
		n = max
	}
	return n, nil
}
