// Package ledger records which packages are installed and which files they
// own.
package ledger

import (
	"sort"

	"github.com/ralt/unipkg/internal/models"
)

// Ledger maps installed package names to their records and every owned file
// to its package. A Ledger is not safe for concurrent mutation; the
// transaction runner serializes writers.
type Ledger struct {
	packages map[string]models.Package
	files    map[string]string
}

// New creates an empty ledger
func New() *Ledger {
	return &Ledger{
		packages: make(map[string]models.Package),
		files:    make(map[string]string),
	}
}

// Len returns the number of installed packages.
func (l *Ledger) Len() int {
	return len(l.packages)
}

// IsInstalled reports whether name is installed.
func (l *Ledger) IsInstalled(name string) bool {
	_, ok := l.packages[name]
	return ok
}

// Get returns the installed record for name.
func (l *Ledger) Get(name string) (models.Package, bool) {
	pkg, ok := l.packages[name]
	return pkg, ok
}

// List returns every installed record sorted by name.
func (l *Ledger) List() []models.Package {
	pkgs := make([]models.Package, 0, len(l.packages))
	for _, name := range l.Names() {
		pkgs = append(pkgs, l.packages[name])
	}
	return pkgs
}

// Names returns the installed package names, sorted.
func (l *Ledger) Names() []string {
	names := make([]string, 0, len(l.packages))
	for name := range l.packages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FileOwner returns the package owning path.
func (l *Ledger) FileOwner(path string) (string, bool) {
	owner, ok := l.files[path]
	return owner, ok
}

// Register records pkg as installed along with its files. Re-registering a
// name replaces the previous record and its file entries. A file already owned
// by a different package is a conflict and leaves the ledger unchanged.
func (l *Ledger) Register(pkg models.Package) error {
	for _, f := range pkg.Files {
		if owner, ok := l.files[f]; ok && owner != pkg.Name {
			return models.NewError(models.ErrConflict, []string{pkg.Name, owner},
				"file %s is already owned by %s", f, owner)
		}
	}

	if _, ok := l.packages[pkg.Name]; ok {
		l.dropFiles(pkg.Name)
	}

	l.packages[pkg.Name] = pkg
	for _, f := range pkg.Files {
		l.files[f] = pkg.Name
	}
	return nil
}

// Unregister removes name and all of its file entries, returning the record
// that was installed.
func (l *Ledger) Unregister(name string) (models.Package, error) {
	pkg, ok := l.packages[name]
	if !ok {
		return models.Package{}, models.NewError(models.ErrNotInstalled, []string{name}, "package is not installed")
	}

	l.dropFiles(name)
	delete(l.packages, name)
	return pkg, nil
}

func (l *Ledger) dropFiles(name string) {
	for _, f := range l.packages[name].Files {
		if l.files[f] == name {
			delete(l.files, f)
		}
	}
}

// Clone returns an independent copy. Records are values and are shared.
func (l *Ledger) Clone() *Ledger {
	c := &Ledger{
		packages: make(map[string]models.Package, len(l.packages)),
		files:    make(map[string]string, len(l.files)),
	}
	for k, v := range l.packages {
		c.packages[k] = v
	}
	for k, v := range l.files {
		c.files[k] = v
	}
	return c
}

// Provider returns the installed record answering to name: the package of
// that name, else the first (by name) that provides or replaces it.
func (l *Ledger) Provider(name string) (models.Package, bool) {
	if pkg, ok := l.packages[name]; ok {
		return pkg, true
	}
	for _, n := range l.Names() {
		pkg := l.packages[n]
		if pkg.ProvidesName(name) || pkg.ReplacesName(name) {
			return pkg, true
		}
	}
	return models.Package{}, false
}
