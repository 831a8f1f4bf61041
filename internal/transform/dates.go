package transform

import (
	"fmt"
	"strings"
	"time"
)

// DefaultDateLayouts are tried in order when parsing source dates
var DefaultDateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// OutputDateLayout formats parsed dates in the published table
const OutputDateLayout = "2006-01-02"

func parseDate(value string, layouts []string) (time.Time, error) {
	s := strings.TrimSpace(value)
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", value)
}

// stayDays returns the whole days between admission and discharge, floored
func stayDays(admitted, discharged time.Time) int {
	d := discharged.Sub(admitted)
	days := int(d / (24 * time.Hour))
	if d < 0 && d%(24*time.Hour) != 0 {
		days--
	}
	return days
}
