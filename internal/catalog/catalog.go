// Package catalog merges the package records of every configured source and
// answers best-version queries over them.
package catalog

import (
	"sort"
	"strings"
	"sync"

	"github.com/ralt/unipkg/internal/models"
	"github.com/ralt/unipkg/internal/utils"
	"github.com/ralt/unipkg/internal/version"
	"github.com/sirupsen/logrus"
)

// Entry is one record as offered by one source.
type Entry struct {
	Package  models.Package
	Source   string
	Priority int

	seq int
}

type sourceRecords struct {
	source  models.Source
	entries []Entry
}

// Catalog holds the records of all sources. Reads go through an immutable
// Snapshot which every mutation rebuilds, so resolutions running on an older
// snapshot are never disturbed by a concurrent sync.
type Catalog struct {
	mu      sync.RWMutex
	sources map[string]*sourceRecords
	order   []string
	nextSeq int
	snap    *Snapshot
}

// New creates an empty catalog
func New() *Catalog {
	c := &Catalog{sources: make(map[string]*sourceRecords)}
	c.snap = c.buildSnapshot()
	return c
}

// Ingest appends records under src. Records already offered by another source
// are kept side by side.
func (c *Catalog) Ingest(src models.Source, records []models.Package) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sr, ok := c.sources[src.Name]
	if !ok {
		sr = &sourceRecords{}
		c.sources[src.Name] = sr
		c.order = append(c.order, src.Name)
	}
	sr.source = src

	c.logDuplicates(src.Name, records)
	sr.entries = append(sr.entries, c.newEntries(src, records)...)
	c.snap = c.buildSnapshot()

	logrus.WithFields(logrus.Fields{"source": src.Name, "records": len(records)}).Debug("Ingested records")
}

// Replace swaps every record of src for records, discarding stale entries from
// a previous sync.
func (c *Catalog) Replace(src models.Source, records []models.Package) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.sources[src.Name]; !ok {
		c.order = append(c.order, src.Name)
	}
	c.sources[src.Name] = &sourceRecords{source: src}
	c.logDuplicates(src.Name, records)
	c.sources[src.Name].entries = c.newEntries(src, records)
	c.snap = c.buildSnapshot()

	logrus.WithFields(logrus.Fields{"source": src.Name, "records": len(records)}).Debug("Replaced source records")
}

// Remove drops a source and all its records.
func (c *Catalog) Remove(sourceName string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.sources[sourceName]; !ok {
		return
	}
	delete(c.sources, sourceName)
	for i, name := range c.order {
		if name == sourceName {
			c.order = append(c.order[:i:i], c.order[i+1:]...)
			break
		}
	}
	c.snap = c.buildSnapshot()
}

// Snapshot returns the current immutable view.
func (c *Catalog) Snapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// BestVersion is Snapshot().BestVersion.
func (c *Catalog) BestVersion(name string) (models.Package, bool) {
	return c.Snapshot().BestVersion(name)
}

// FindSatisfying is Snapshot().FindSatisfying.
func (c *Catalog) FindSatisfying(name string, constraint *models.Constraint) (models.Package, bool) {
	return c.Snapshot().FindSatisfying(name, constraint)
}

// Providers is Snapshot().Providers.
func (c *Catalog) Providers(name string) []models.Package {
	return c.Snapshot().Providers(name)
}

// Versions is Snapshot().Versions.
func (c *Catalog) Versions(name string) []Entry {
	return c.Snapshot().Versions(name)
}

// Search is Snapshot().Search.
func (c *Catalog) Search(query string) []models.Package {
	return c.Snapshot().Search(query)
}

func (c *Catalog) newEntries(src models.Source, records []models.Package) []Entry {
	entries := make([]Entry, 0, len(records))
	for _, pkg := range records {
		pkg.Source = src.Name
		if pkg.Format == models.FormatUnknown {
			pkg.Format = src.Format
		}
		entries = append(entries, Entry{
			Package:  pkg,
			Source:   src.Name,
			Priority: src.Priority,
			seq:      c.nextSeq,
		})
		c.nextSeq++
	}
	return entries
}

func (c *Catalog) logDuplicates(sourceName string, records []models.Package) {
	if !logrus.IsLevelEnabled(logrus.DebugLevel) {
		return
	}
	for _, name := range c.order {
		if name == sourceName {
			continue
		}
		sr := c.sources[name]
		existing := make([]models.Package, len(sr.entries))
		for i, e := range sr.entries {
			existing[i] = e.Package
		}
		for _, dup := range utils.DetectDuplicates(existing, records) {
			logrus.WithFields(logrus.Fields{
				"package": dup.String(),
				"source":  sourceName,
				"also_in": name,
			}).Debug("Package offered by several sources")
		}
	}
}

func (c *Catalog) buildSnapshot() *Snapshot {
	s := &Snapshot{
		byName:    make(map[string][]Entry),
		providers: make(map[string][]Entry),
		sources:   make([]models.Source, 0, len(c.order)),
	}

	for _, name := range c.order {
		sr := c.sources[name]
		s.sources = append(s.sources, sr.source)
		for _, e := range sr.entries {
			s.byName[e.Package.Name] = append(s.byName[e.Package.Name], e)
			for _, virt := range virtualNames(e.Package) {
				s.providers[virt] = append(s.providers[virt], e)
			}
			s.count++
		}
	}

	for name := range s.byName {
		sortEntries(s.byName[name])
	}
	for name := range s.providers {
		sortEntries(s.providers[name])
	}

	s.names = make([]string, 0, len(s.byName))
	for name := range s.byName {
		s.names = append(s.names, name)
	}
	sort.Strings(s.names)

	return s
}

// virtualNames lists the names other than its own a record answers to.
func virtualNames(p models.Package) []string {
	var names []string
	seen := map[string]bool{p.Name: true}
	for _, n := range append(append([]string{}, p.Provides...), p.Replaces...) {
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	return names
}

// sortEntries orders candidates best first: highest version, then highest
// source priority, then earliest ingested.
func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if c := version.Compare(entries[i].Package.Version, entries[j].Package.Version); c != 0 {
			return c > 0
		}
		if entries[i].Priority != entries[j].Priority {
			return entries[i].Priority > entries[j].Priority
		}
		return entries[i].seq < entries[j].seq
	})
}

// Snapshot is an immutable view of the catalog. It is safe for concurrent use.
type Snapshot struct {
	byName    map[string][]Entry
	providers map[string][]Entry
	names     []string
	sources   []models.Source
	count     int
}

// Len returns the number of records across all sources.
func (s *Snapshot) Len() int {
	return s.count
}

// Sources returns the sources the snapshot was built from, in ingestion order.
func (s *Snapshot) Sources() []models.Source {
	return append([]models.Source(nil), s.sources...)
}

// Names returns every package name, sorted.
func (s *Snapshot) Names() []string {
	return append([]string(nil), s.names...)
}

// Versions returns every candidate for name, best first.
func (s *Snapshot) Versions(name string) []Entry {
	return append([]Entry(nil), s.byName[name]...)
}

// Has reports whether any source offers a record named name.
func (s *Snapshot) Has(name string) bool {
	return len(s.byName[name]) > 0
}

// BestVersion returns the highest version of name, preferring the higher
// priority source on an exact version tie.
func (s *Snapshot) BestVersion(name string) (models.Package, bool) {
	entries := s.byName[name]
	if len(entries) == 0 {
		return models.Package{}, false
	}
	return entries[0].Package, true
}

// FindSatisfying returns the best candidate for name satisfying constraint.
func (s *Snapshot) FindSatisfying(name string, constraint *models.Constraint) (models.Package, bool) {
	for _, e := range s.byName[name] {
		if version.Satisfies(e.Package.Version, constraint) {
			return e.Package, true
		}
	}
	return models.Package{}, false
}

// Providers returns records that provide or replace name, best first.
func (s *Snapshot) Providers(name string) []models.Package {
	entries := s.providers[name]
	pkgs := make([]models.Package, 0, len(entries))
	for _, e := range entries {
		pkgs = append(pkgs, e.Package)
	}
	return pkgs
}

// Search returns the best version of every package whose name or description
// contains query, case-insensitively, sorted by name.
func (s *Snapshot) Search(query string) []models.Package {
	q := strings.ToLower(query)
	var results []models.Package
	for _, name := range s.names {
		best := s.byName[name][0].Package
		if strings.Contains(strings.ToLower(name), q) ||
			strings.Contains(strings.ToLower(best.Description), q) {
			results = append(results, best)
		}
	}
	return results
}

// Duplicates maps package identities offered by more than one source to the
// names of those sources.
func (s *Snapshot) Duplicates() map[string][]string {
	seen := make(map[string][]string)
	for _, name := range s.names {
		for _, e := range s.byName[name] {
			id := utils.PackageIdentity(e.Package)
			seen[id] = append(seen[id], e.Source)
		}
	}

	dups := make(map[string][]string)
	for id, srcs := range seen {
		if len(srcs) > 1 {
			sort.Strings(srcs)
			dups[id] = srcs
		}
	}
	return dups
}
