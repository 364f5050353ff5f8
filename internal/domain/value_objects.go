package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// identifierPattern accepts slugs ("go-basics", "m1.l2") and UUIDs.
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:\-]{0,127}$`)

// ValidateID checks that s is a well-formed identifier. The field name is
// included in the returned error.
func ValidateID(field, s string) error {
	if !identifierPattern.MatchString(s) {
		return fmt.Errorf("%w: %s %q", ErrInvalidIdentifier, field, s)
	}
	return nil
}

// ValidateIDs validates field/value pairs and returns the first failure.
func ValidateIDs(pairs ...string) error {
	if len(pairs)%2 != 0 {
		return fmt.Errorf("%w: odd number of arguments", ErrInvalidIdentifier)
	}
	for i := 0; i < len(pairs); i += 2 {
		if err := ValidateID(pairs[i], pairs[i+1]); err != nil {
			return err
		}
	}
	return nil
}

// NewID generates a random identifier.
func NewID() string {
	return uuid.New().String()
}

// CalendarDay truncates t to midnight UTC.
func CalendarDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of whole calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(CalendarDay(b).Sub(CalendarDay(a)).Hours() / 24)
}

// normalizeAnswer trims whitespace for exact-match comparisons.
func normalizeAnswer(s string) string {
	return strings.TrimSpace(s)
}

// AnswersEqual compares two free-text answers after trimming.
func AnswersEqual(a, b string) bool {
	return normalizeAnswer(a) == normalizeAnswer(b)
}
