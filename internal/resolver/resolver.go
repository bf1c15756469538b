// Package resolver turns a set of requested dependencies into an ordered,
// conflict-checked list of records to install.
package resolver

import (
	"fmt"

	"github.com/ralt/unipkg/internal/models"
	"github.com/ralt/unipkg/internal/version"
	"github.com/sirupsen/logrus"
)

// Catalog is the read side of the package catalog a resolution runs against.
// *catalog.Snapshot implements it.
type Catalog interface {
	Has(name string) bool
	BestVersion(name string) (models.Package, bool)
	FindSatisfying(name string, c *models.Constraint) (models.Package, bool)
	Providers(name string) []models.Package
}

// Installed is the installed-package view a resolution runs against.
// *ledger.Ledger implements it.
type Installed interface {
	Get(name string) (models.Package, bool)
	Provider(name string) (models.Package, bool)
	List() []models.Package
}

// State is the progress of one package name through a resolution.
type State int

const (
	Pending State = iota
	Visited
	Planned
	Ordered
	Unsatisfiable
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Visited:
		return "visited"
	case Planned:
		return "planned"
	case Ordered:
		return "ordered"
	case Unsatisfiable:
		return "unsatisfiable"
	default:
		return "unknown"
	}
}

// Resolution is the outcome of a successful resolution.
type Resolution struct {
	// Packages to install, dependencies before dependents.
	Packages []models.Package
	// Replaced lists installed names superseded by a planned record.
	Replaced []string
	// CycleBroken lists the records appended without a valid order because
	// they sit on or behind a dependency cycle.
	CycleBroken []string
	// States holds the final state of every name the resolution touched.
	States map[string]State
}

// Resolver resolves requests against one catalog and installed view. It holds
// no mutable state, so concurrent calls to Resolve are safe as long as the
// views are not mutated underneath.
type Resolver struct {
	catalog   Catalog
	installed Installed
}

// New creates a resolver
func New(cat Catalog, installed Installed) *Resolver {
	return &Resolver{catalog: cat, installed: installed}
}

// demand is a dependency waiting in the worklist, with the name that asked
// for it ("" for the user's request).
type demand struct {
	dep  models.Dependency
	from string
}

// node is one planned record in the arena. edges index the planned nodes
// satisfying its dependencies.
type node struct {
	pkg   models.Package
	edges []int
}

type run struct {
	*Resolver

	queue    []demand
	seen     map[string]bool
	states   map[string]State
	nodes    []*node
	byName   map[string]int
	virtual  map[string]int
	replaced map[string]bool
	order    []string
}

// Resolve expands requests into the closed set of records that must be
// installed and orders it. Any unresolvable name, unsatisfied constraint or
// conflict aborts the whole resolution.
func (r *Resolver) Resolve(requests []models.Dependency) (*Resolution, error) {
	rn := &run{
		Resolver: r,
		seen:     make(map[string]bool),
		states:   make(map[string]State),
		byName:   make(map[string]int),
		virtual:  make(map[string]int),
		replaced: make(map[string]bool),
	}

	for _, req := range requests {
		rn.queue = append(rn.queue, demand{dep: req})
		if _, ok := rn.states[req.Name]; !ok {
			rn.states[req.Name] = Pending
		}
	}

	for len(rn.queue) > 0 {
		d := rn.queue[0]
		rn.queue = rn.queue[1:]

		done, err := rn.alreadySatisfied(d)
		if err != nil {
			return nil, err
		}
		if done || rn.seen[d.dep.Name] {
			continue
		}
		rn.seen[d.dep.Name] = true

		if err := rn.expand(d); err != nil {
			return nil, err
		}
	}

	if err := rn.link(); err != nil {
		return nil, err
	}
	if err := rn.checkConflicts(); err != nil {
		return nil, err
	}

	res := &Resolution{States: rn.states}
	for _, idx := range rn.topoSort(res) {
		res.Packages = append(res.Packages, rn.nodes[idx].pkg)
	}
	for _, name := range rn.order {
		if rn.replaced[name] {
			res.Replaced = append(res.Replaced, name)
		}
	}
	return res, nil
}

// alreadySatisfied reports whether d is met by an installed or planned
// record. A literally named record that fails the demanded constraint is an
// error rather than a reason to pick another version.
func (rn *run) alreadySatisfied(d demand) (bool, error) {
	name := d.dep.Name

	if pkg, ok := rn.installed.Get(name); ok {
		if !version.Satisfies(pkg.Version, d.dep.Constraint) {
			rn.states[name] = Unsatisfiable
			return false, models.NewError(models.ErrDependency, culprits(d.from, name),
				"installed %s does not satisfy %s%s", pkg, d.dep, requiredBy(d.from))
		}
		return true, nil
	}

	if idx, ok := rn.byName[name]; ok {
		planned := rn.nodes[idx].pkg
		if !version.Satisfies(planned.Version, d.dep.Constraint) {
			rn.states[name] = Unsatisfiable
			return false, models.NewError(models.ErrDependency, culprits(d.from, name),
				"%s was selected but %s%s", planned, d.dep, requiredBy(d.from))
		}
		return true, nil
	}

	// Provided names carry no version of their own; any provider will do.
	if _, ok := rn.virtual[name]; ok {
		return true, nil
	}
	if _, ok := rn.installed.Provider(name); ok {
		return true, nil
	}
	return false, nil
}

// expand picks a record for d, plans it and enqueues its dependencies.
func (rn *run) expand(d demand) error {
	pkg, err := rn.choose(d)
	if err != nil {
		rn.states[d.dep.Name] = Unsatisfiable
		return err
	}

	rn.states[pkg.Name] = Visited
	logrus.WithFields(logrus.Fields{"package": pkg.String(), "for": d.dep.String()}).Debug("Selected candidate")

	idx := len(rn.nodes)
	rn.nodes = append(rn.nodes, &node{pkg: pkg})
	rn.byName[pkg.Name] = idx
	rn.seen[pkg.Name] = true

	for _, virt := range append(append([]string{}, pkg.Provides...), pkg.Replaces...) {
		if _, taken := rn.virtual[virt]; !taken && virt != pkg.Name {
			rn.virtual[virt] = idx
		}
	}
	for _, old := range pkg.Replaces {
		if _, ok := rn.installed.Get(old); ok && !rn.replaced[old] {
			rn.replaced[old] = true
			rn.order = append(rn.order, old)
		}
	}

	for _, dep := range pkg.Dependencies {
		next := demand{dep: dep, from: pkg.Name}
		done, err := rn.alreadySatisfied(next)
		if err != nil {
			return err
		}
		if !done && !rn.seen[dep.Name] {
			rn.queue = append(rn.queue, next)
			if _, ok := rn.states[dep.Name]; !ok {
				rn.states[dep.Name] = Pending
			}
		}
	}

	rn.states[pkg.Name] = Planned
	return nil
}

// choose resolves a demand through the catalog: the named package first, then
// the best provider of the name.
func (rn *run) choose(d demand) (models.Package, error) {
	name := d.dep.Name

	var (
		pkg models.Package
		ok  bool
	)
	if d.dep.Constraint != nil {
		pkg, ok = rn.catalog.FindSatisfying(name, d.dep.Constraint)
	} else {
		pkg, ok = rn.catalog.BestVersion(name)
	}
	if ok {
		return pkg, nil
	}

	if rn.catalog.Has(name) {
		return models.Package{}, models.NewError(models.ErrDependency, culprits(d.from, name),
			"no version of %s satisfies %s%s", name, d.dep, requiredBy(d.from))
	}

	for _, provider := range rn.catalog.Providers(name) {
		if _, installed := rn.installed.Get(provider.Name); installed {
			continue
		}
		if _, planned := rn.byName[provider.Name]; planned {
			continue
		}
		logrus.WithFields(logrus.Fields{"virtual": name, "provider": provider.String()}).Debug("Resolved virtual package")
		return provider, nil
	}

	return models.Package{}, models.NewError(models.ErrPackageNotFound, culprits(d.from, name),
		"package %s not found%s", name, requiredBy(d.from))
}

// link builds the arena edges and verifies every planned dependency is met by
// a planned or installed record.
func (rn *run) link() error {
	for _, n := range rn.nodes {
		for _, dep := range n.pkg.Dependencies {
			if idx, ok := rn.byName[dep.Name]; ok {
				n.edges = appendEdge(n.edges, idx)
				continue
			}
			if idx, ok := rn.virtual[dep.Name]; ok {
				n.edges = appendEdge(n.edges, idx)
				continue
			}
			if _, ok := rn.installed.Provider(dep.Name); ok {
				continue
			}
			return models.NewError(models.ErrDependency, []string{n.pkg.Name, dep.Name},
				"dependency %s of %s is not satisfied", dep, n.pkg)
		}
	}
	return nil
}

func appendEdge(edges []int, idx int) []int {
	for _, e := range edges {
		if e == idx {
			return edges
		}
	}
	return append(edges, idx)
}

// checkConflicts rejects any planned record that conflicts with another
// planned record or with an installed record it does not replace.
func (rn *run) checkConflicts() error {
	var installed []models.Package
	for _, pkg := range rn.installed.List() {
		if !rn.replaced[pkg.Name] {
			installed = append(installed, pkg)
		}
	}

	for i, n := range rn.nodes {
		a := n.pkg
		for _, m := range rn.nodes[i+1:] {
			if a.ConflictsWith(m.pkg) || m.pkg.ConflictsWith(a) {
				return conflictError(a, m.pkg)
			}
		}
		for _, b := range installed {
			if a.ReplacesName(b.Name) {
				continue
			}
			if a.ConflictsWith(b) || b.ConflictsWith(a) {
				return conflictError(a, b)
			}
		}
	}
	return nil
}

func conflictError(a, b models.Package) error {
	return models.NewError(models.ErrConflict, []string{a.Name, b.Name},
		"%s conflicts with %s", a, b)
}

// topoSort orders the arena. Each pass walks the remaining nodes in planned
// order and extracts every node whose dependencies are ordered, counting
// nodes extracted earlier in the same pass. A pass that extracts nothing
// appends everything left in planned order.
func (rn *run) topoSort(res *Resolution) []int {
	ordered := make([]bool, len(rn.nodes))
	out := make([]int, 0, len(rn.nodes))

	remaining := make([]int, len(rn.nodes))
	for i := range remaining {
		remaining[i] = i
	}

	for len(remaining) > 0 {
		next := remaining[:0:0]
		for _, idx := range remaining {
			if rn.ready(idx, ordered) {
				ordered[idx] = true
				out = append(out, idx)
			} else {
				next = append(next, idx)
			}
		}

		if len(next) == len(remaining) {
			for _, idx := range next {
				name := rn.nodes[idx].pkg.Name
				res.CycleBroken = append(res.CycleBroken, name)
				out = append(out, idx)
			}
			logrus.WithField("packages", res.CycleBroken).Warn("Dependency cycle detected, install order is not guaranteed")
			break
		}
		remaining = next
	}

	for _, idx := range out {
		rn.states[rn.nodes[idx].pkg.Name] = Ordered
	}
	return out
}

func (rn *run) ready(idx int, ordered []bool) bool {
	for _, e := range rn.nodes[idx].edges {
		if e != idx && !ordered[e] {
			return false
		}
	}
	return true
}

func culprits(from, name string) []string {
	if from == "" || from == name {
		return []string{name}
	}
	return []string{from, name}
}

func requiredBy(from string) string {
	if from == "" {
		return ""
	}
	return fmt.Sprintf(" (required by %s)", from)
}
