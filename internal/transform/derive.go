package transform

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"healthetl/pkg/contracts/domain"
)

// AgeGroupFor buckets an age into [0,18), [18,35), [35,60) and [60,120].
// Ages outside [MinAge, MaxAge] have no group.
func AgeGroupFor(age int) domain.Null[domain.AgeGroup] {
	switch {
	case age < domain.MinAge || age > domain.MaxAge:
		return domain.None[domain.AgeGroup]()
	case age < 18:
		return domain.Some(domain.AgeGroupChild)
	case age < 35:
		return domain.Some(domain.AgeGroupYoungAdult)
	case age < 60:
		return domain.Some(domain.AgeGroupAdult)
	default:
		return domain.Some(domain.AgeGroupSenior)
	}
}

// ReadmittedFor maps "Yes" to 1 and "No" to 0; anything else is null
func ReadmittedFor(status string) domain.Null[int] {
	switch status {
	case domain.ReadmissionYes:
		return domain.Some(1)
	case domain.ReadmissionNo:
		return domain.Some(0)
	default:
		return domain.None[int]()
	}
}

// Capitalize upper-cases the first character and lower-cases the rest
func Capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return strings.ToLower(s)
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}
