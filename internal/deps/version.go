package deps

import (
	"strconv"
	"strings"
)

// CompareVersions compares two dotted version strings.
// Returns -1 if a < b, 0 if a == b, 1 if a > b.
func CompareVersions(a, b string) int {
	aParts := ParseVersion(a)
	bParts := ParseVersion(b)

	for i := range aParts {
		switch {
		case aParts[i] < bParts[i]:
			return -1
		case aParts[i] > bParts[i]:
			return 1
		}
	}
	return 0
}

// ParseVersion parses "X.Y.Z" into [3]int. Missing parts are 0 and a
// trailing letter suffix is ignored, so "3.3a" parses as 3.3.0.
func ParseVersion(v string) [3]int {
	var parts [3]int
	split := strings.Split(strings.TrimPrefix(strings.TrimSpace(v), "v"), ".")
	for i := 0; i < 3 && i < len(split); i++ {
		digits := strings.TrimRightFunc(split[i], func(r rune) bool { return r < '0' || r > '9' })
		parts[i], _ = strconv.Atoi(digits)
	}
	return parts
}
