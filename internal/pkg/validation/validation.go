// Package validation parses and checks request input shared by the HTTP handlers and
// the job CLI.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

const DateLayout = "2006-01-02"

var currencyRe = regexp.MustCompile(`^[A-Z]{3}$`)

var ErrNoIDs = errors.New("at least one id is required")

// IsValidCurrency accepts upper-case ISO 4217 style codes.
func IsValidCurrency(code string) bool {
	return currencyRe.MatchString(code)
}

// ParseUUIDs parses every id, rejecting an empty list and reporting the first bad id.
func ParseUUIDs(raw []string) ([]uuid.UUID, error) {
	if len(raw) == 0 {
		return nil, ErrNoIDs
	}
	out := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", s)
		}
		out = append(out, id)
	}
	return out, nil
}

// ParseDate reads a YYYY-MM-DD date as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}
