package models

// Source describes one configured repository.
type Source struct {
	Name     string
	URL      string
	Format   Format
	Enabled  bool
	Priority int // higher wins version ties
	GPGKey   string

	// Layout hints, only meaningful for some formats
	Distribution string   // Debian suite/codename (dists/<distribution>)
	Components   []string // Debian components (main, contrib, etc.)
	Arches       []string // Architectures to fetch indexes for
	Index        string   // Index path relative to URL, overrides the format default
}

// FirstArch returns the first configured architecture or def.
func (s Source) FirstArch(def string) string {
	if len(s.Arches) > 0 && s.Arches[0] != "" {
		return s.Arches[0]
	}
	return def
}
