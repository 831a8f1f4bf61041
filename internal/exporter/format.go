package exporter

import (
	"strconv"
	"time"

	"healthetl/pkg/contracts/domain"
)

// DateLayout formats parsed dates in exported tables
const DateLayout = "2006-01-02"

// formatInt formats a nullable int; null is an empty cell
func formatInt(v domain.Null[int]) string {
	if v.IsNull() {
		return ""
	}
	return strconv.Itoa(v.Value)
}

// formatString formats a nullable string; null is an empty cell
func formatString(v domain.Null[string]) string {
	if v.IsNull() {
		return ""
	}
	return v.Value
}

// formatDate prefers the parsed date and falls back to the raw source value
func formatDate(parsed domain.Null[time.Time], raw domain.Null[string]) string {
	if parsed.Valid {
		return parsed.Value.Format(DateLayout)
	}
	return formatString(raw)
}
