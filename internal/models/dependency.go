package models

import "fmt"

// Op is a version comparison operator.
type Op int

const (
	OpEq Op = iota
	OpLt
	OpLe
	OpGt
	OpGe
)

// String returns the canonical spelling of the operator
func (o Op) String() string {
	switch o {
	case OpEq:
		return "="
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	default:
		return "?"
	}
}

// Constraint is an operator plus the version a candidate is compared against.
type Constraint struct {
	Op      Op
	Version string
}

// String renders the constraint as e.g. ">=2.0".
func (c Constraint) String() string {
	return c.Op.String() + c.Version
}

// Dependency names a required package. A nil Constraint means any version
// satisfies it.
type Dependency struct {
	Name       string
	Constraint *Constraint
}

// String renders the dependency as e.g. "lib>=2.0".
func (d Dependency) String() string {
	if d.Constraint == nil {
		return d.Name
	}
	return fmt.Sprintf("%s%s", d.Name, d.Constraint)
}

// DependencyNames returns the bare names of deps in order.
func DependencyNames(deps []Dependency) []string {
	names := make([]string, 0, len(deps))
	for _, d := range deps {
		names = append(names, d.Name)
	}
	return names
}
