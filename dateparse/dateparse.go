// Package dateparse normalizes the heterogeneous publication-date strings
// found on the listing site into plain calendar dates.
package dateparse

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseError reports a string that matched none of the recognized formats.
// The original string is preserved so callers can log and skip the record.
type ParseError struct {
	Raw string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unrecognized date format: %q", e.Raw)
}

// The site writes month names in Indonesian for its long-form dates.
var monthNames = map[string]time.Month{
	"januari":   time.January,
	"februari":  time.February,
	"maret":     time.March,
	"april":     time.April,
	"mei":       time.May,
	"juni":      time.June,
	"juli":      time.July,
	"agustus":   time.August,
	"september": time.September,
	"oktober":   time.October,
	"november":  time.November,
	"desember":  time.December,
}

// Parse converts a raw publication-date string into a calendar date (midnight
// UTC). Three formats are attempted in order, first success wins:
//
//  1. "DD/MM/YY HH:MM" (the site's primary format)
//  2. "DD/MM/YY" with or without trailing text, two-digit year pivoting at 50
//  3. "DD <Indonesian month name> YYYY"
//
// The site sometimes separates date and time with " - "; that separator is
// collapsed to a single space before any attempt. A *ParseError carrying the
// original string is returned when nothing matches.
func Parse(raw string) (time.Time, error) {
	clean := strings.ReplaceAll(strings.TrimSpace(raw), " - ", " ")

	if t, err := time.Parse("2/1/06 15:04", clean); err == nil {
		return midnight(t), nil
	}

	if t, ok := parseSlashDate(clean); ok {
		return t, nil
	}

	if t, ok := parseLongForm(clean); ok {
		return t, nil
	}

	return time.Time{}, &ParseError{Raw: raw}
}

// parseSlashDate handles "DD/MM/YY" with the time of day (or anything else)
// already split off. Two-digit years below 50 map to the 2000s, the rest to
// the 1900s.
func parseSlashDate(clean string) (time.Time, bool) {
	if !strings.Contains(clean, "/") {
		return time.Time{}, false
	}

	datePart := strings.Fields(clean)[0]
	parts := strings.Split(datePart, "/")
	if len(parts) != 3 {
		return time.Time{}, false
	}

	day, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, false
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil {
		return time.Time{}, false
	}
	year, err := strconv.Atoi(parts[2])
	if err != nil {
		return time.Time{}, false
	}

	if year < 100 {
		if year < 50 {
			year += 2000
		} else {
			year += 1900
		}
	}

	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}

	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
}

// parseLongForm handles "DD <month name> YYYY", e.g. "26 Mei 2025".
func parseLongForm(clean string) (time.Time, bool) {
	parts := strings.Fields(clean)
	if len(parts) < 3 {
		return time.Time{}, false
	}

	day, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, false
	}

	month, ok := monthNames[strings.ToLower(parts[1])]
	if !ok {
		return time.Time{}, false
	}

	year, err := strconv.Atoi(parts[2])
	if err != nil {
		return time.Time{}, false
	}

	if day < 1 || day > 31 {
		return time.Time{}, false
	}

	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), true
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
