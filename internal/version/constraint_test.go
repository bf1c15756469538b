package version

import (
	"testing"

	"github.com/ralt/unipkg/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOp(t *testing.T) {
	tests := map[string]models.Op{
		"=":  models.OpEq,
		"==": models.OpEq,
		"<":  models.OpLt,
		"<<": models.OpLt,
		"<=": models.OpLe,
		">":  models.OpGt,
		">>": models.OpGt,
		">=": models.OpGe,
		"EQ": models.OpEq,
		"GE": models.OpGe,
		"lt": models.OpLt,
	}

	for in, want := range tests {
		got, err := ParseOp(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseOp("~>")
	assert.Error(t, err)
}

func TestParseDependency(t *testing.T) {
	tests := []struct {
		in   string
		name string
		c    *models.Constraint
	}{
		{"libc", "libc", nil},
		{"lib>=2.0", "lib", &models.Constraint{Op: models.OpGe, Version: "2.0"}},
		{"glibc>=2.17", "glibc", &models.Constraint{Op: models.OpGe, Version: "2.17"}},
		{"lib >= 2.0", "lib", &models.Constraint{Op: models.OpGe, Version: "2.0"}},
		{"libssl3 (>= 3.0.2)", "libssl3", &models.Constraint{Op: models.OpGe, Version: "3.0.2"}},
		{"dpkg (<< 1.20)", "dpkg", &models.Constraint{Op: models.OpLt, Version: "1.20"}},
		{"foo=1.0-1", "foo", &models.Constraint{Op: models.OpEq, Version: "1.0-1"}},
	}

	for _, tt := range tests {
		dep, err := ParseDependency(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.name, dep.Name, tt.in)
		assert.Equal(t, tt.c, dep.Constraint, tt.in)
	}
}

func TestParseDependencyErrors(t *testing.T) {
	for _, in := range []string{"", ">=1.0", "lib>=", "lib (~ 1)"} {
		_, err := ParseDependency(in)
		assert.Error(t, err, "%q", in)
	}
}

func TestDependencyStringRoundTrip(t *testing.T) {
	dep, err := ParseDependency("lib (>= 2.0)")
	require.NoError(t, err)
	assert.Equal(t, "lib>=2.0", dep.String())
}
