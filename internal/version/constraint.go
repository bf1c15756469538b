package version

import (
	"fmt"
	"strings"

	"github.com/ralt/unipkg/internal/models"
)

// operator spellings, longest first so ">=" wins over ">"
var opSpellings = []struct {
	token string
	op    models.Op
}{
	{">=", models.OpGe},
	{"<=", models.OpLe},
	{"=>", models.OpGe},
	{"=<", models.OpLe},
	{">>", models.OpGt},
	{"<<", models.OpLt},
	{"==", models.OpEq},
	{">", models.OpGt},
	{"<", models.OpLt},
	{"=", models.OpEq},
}

// ParseOp parses an operator token, accepting Debian (<<, >>) and RPM-style
// spellings as well as the canonical ones.
func ParseOp(s string) (models.Op, error) {
	s = strings.TrimSpace(s)
	for _, sp := range opSpellings {
		if s == sp.token {
			return sp.op, nil
		}
	}
	switch strings.ToUpper(s) {
	case "EQ":
		return models.OpEq, nil
	case "LT":
		return models.OpLt, nil
	case "LE":
		return models.OpLe, nil
	case "GT":
		return models.OpGt, nil
	case "GE":
		return models.OpGe, nil
	}
	return 0, fmt.Errorf("unknown version operator %q", s)
}

// ParseConstraint parses ">= 1.0" style text.
func ParseConstraint(s string) (*models.Constraint, error) {
	s = strings.TrimSpace(s)
	for _, sp := range opSpellings {
		if strings.HasPrefix(s, sp.token) {
			v := strings.TrimSpace(s[len(sp.token):])
			if v == "" {
				return nil, fmt.Errorf("constraint %q has no version", s)
			}
			return &models.Constraint{Op: sp.op, Version: v}, nil
		}
	}
	return nil, fmt.Errorf("constraint %q has no operator", s)
}

// ParseDependency parses "name", "name>=1.0", "name >= 1.0" or "name (>= 1.0)".
func ParseDependency(s string) (models.Dependency, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return models.Dependency{}, fmt.Errorf("empty dependency")
	}

	idx := strings.IndexAny(s, "<>=(")
	if idx < 0 {
		return models.Dependency{Name: s}, nil
	}

	name := strings.TrimSpace(s[:idx])
	if name == "" {
		return models.Dependency{}, fmt.Errorf("dependency %q has no name", s)
	}

	rest := strings.Trim(strings.TrimSpace(s[idx:]), "()")
	c, err := ParseConstraint(rest)
	if err != nil {
		return models.Dependency{}, fmt.Errorf("dependency %q: %w", s, err)
	}
	return models.Dependency{Name: name, Constraint: c}, nil
}

// ParseDependencies parses every entry of list, failing on the first bad one.
func ParseDependencies(list []string) ([]models.Dependency, error) {
	deps := make([]models.Dependency, 0, len(list))
	for _, s := range list {
		d, err := ParseDependency(s)
		if err != nil {
			return nil, err
		}
		deps = append(deps, d)
	}
	return deps, nil
}
