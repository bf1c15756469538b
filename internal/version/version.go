// Package version orders version strings from any ecosystem and evaluates
// constraints against them.
//
// Comparison only looks at maximal runs of ASCII digits; every other byte is
// a separator. "1.2.10", "1_2_10" and "v1.2.10" therefore compare equal, and
// "2.0" is greater than "1.99". Epochs ("1:2.0-3") and alphanumeric suffixes
// are not special-cased.
package version

import (
	"strings"

	"github.com/ralt/unipkg/internal/models"
)

// Components splits v into its digit runs with leading zeros stripped. An
// all-zero run normalizes to "0".
func Components(v string) []string {
	var parts []string
	start := -1
	for i := 0; i <= len(v); i++ {
		isDigit := i < len(v) && v[i] >= '0' && v[i] <= '9'
		switch {
		case isDigit && start < 0:
			start = i
		case !isDigit && start >= 0:
			parts = append(parts, normalizeRun(v[start:i]))
			start = -1
		}
	}
	return parts
}

func normalizeRun(run string) string {
	run = strings.TrimLeft(run, "0")
	if run == "" {
		return "0"
	}
	return run
}

// compareRun compares two normalized digit runs as unsigned integers of
// arbitrary size.
func compareRun(a, b string) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

// Compare returns -1, 0 or 1 as a is less than, equal to, or greater than b.
// Components are compared index by index; when all shared positions are equal
// the version with more components is greater.
func Compare(a, b string) int {
	va := Components(a)
	vb := Components(b)

	for i := 0; i < len(va) && i < len(vb); i++ {
		if c := compareRun(va[i], vb[i]); c != 0 {
			return c
		}
	}

	switch {
	case len(va) < len(vb):
		return -1
	case len(va) > len(vb):
		return 1
	default:
		return 0
	}
}

// Equal reports whether a and b normalize to the same digit sequence.
func Equal(a, b string) bool {
	return Compare(a, b) == 0
}

// Satisfies reports whether v satisfies c. A nil constraint accepts anything.
func Satisfies(v string, c *models.Constraint) bool {
	if c == nil {
		return true
	}
	return Apply(c.Op, Compare(v, c.Version))
}

// Apply evaluates op against a comparison result.
func Apply(op models.Op, cmp int) bool {
	switch op {
	case models.OpEq:
		return cmp == 0
	case models.OpLt:
		return cmp < 0
	case models.OpLe:
		return cmp <= 0
	case models.OpGt:
		return cmp > 0
	case models.OpGe:
		return cmp >= 0
	default:
		return false
	}
}
