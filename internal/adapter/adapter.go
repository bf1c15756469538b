// Package adapter turns ecosystem-specific repository indexes and package
// archives into normalized package records.
package adapter

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/ralt/unipkg/internal/fetch"
	"github.com/ralt/unipkg/internal/models"
	"github.com/ralt/unipkg/internal/utils"
	"github.com/sirupsen/logrus"
)

// Adapter is implemented once per package format.
type Adapter interface {
	// Format returns the format tag this adapter handles
	Format() models.Format

	// Parse decodes a raw (already fetched and decompressed) index
	Parse(raw []byte) ([]models.Package, error)

	// ParseFile reads the metadata embedded in a local package archive
	ParseFile(path string) (*models.Package, error)

	// Sync fetches and parses the index of a remote source
	Sync(ctx context.Context, src models.Source, get fetch.Getter) ([]models.Package, error)
}

// Registry dispatches on format tags.
type Registry struct {
	mu       sync.RWMutex
	adapters map[models.Format]Adapter
}

// NewRegistry creates a registry holding the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[models.Format]Adapter)}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds or replaces the adapter for a.Format().
func (r *Registry) Register(a Adapter) {
	r.RegisterAs(a.Format(), a)
}

// RegisterAs binds a under an additional format tag, for adapters that
// serve more than one (winget covers msi and msix).
func (r *Registry) RegisterAs(format models.Format, a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[format] = a
}

// Get returns the adapter for format, or an UnsupportedFormat error.
func (r *Registry) Get(format models.Format) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[format]
	if !ok {
		return nil, models.NewError(models.ErrUnsupportedFormat, nil, "no adapter for format %s", format)
	}
	return a, nil
}

// Formats lists the registered formats in a stable order.
func (r *Registry) Formats() []models.Format {
	r.mu.RLock()
	defer r.mu.RUnlock()
	formats := make([]models.Format, 0, len(r.adapters))
	for f := range r.adapters {
		formats = append(formats, f)
	}
	sort.Slice(formats, func(i, j int) bool { return formats[i] < formats[j] })
	return formats
}

// JoinURL appends path elements to a base URL.
func JoinURL(base string, elems ...string) string {
	parts := []string{strings.TrimRight(base, "/")}
	for _, e := range elems {
		e = strings.Trim(e, "/")
		if e != "" {
			parts = append(parts, e)
		}
	}
	return strings.Join(parts, "/")
}

// GetFirst fetches the first of urls that exists. Only a not-found answer
// moves on to the next candidate; any other failure is returned as is.
func GetFirst(ctx context.Context, get fetch.Getter, urls []string) ([]byte, string, error) {
	for _, u := range urls {
		data, err := get.Get(ctx, u)
		if err == nil {
			return data, u, nil
		}
		if !errors.Is(err, fetch.ErrNotFound) {
			return nil, u, err
		}
		logrus.WithField("url", u).Debug("Index candidate not found")
	}
	return nil, "", &models.PkgError{
		Type: models.ErrNetwork,
		Err:  fmt.Errorf("none of %s found: %w", strings.Join(urls, ", "), fetch.ErrNotFound),
	}
}

// WalkTar iterates the members of a possibly compressed tar stream.
// Compression is detected from magic bytes.
func WalkTar(r io.Reader, fn func(hdr *tar.Header, body io.Reader) error) error {
	dr, err := utils.NewDecompressReader(r)
	if err != nil {
		return err
	}
	defer dr.Close()

	tr := tar.NewReader(dr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read tar: %w", err)
		}
		if err := fn(hdr, tr); err != nil {
			return err
		}
	}
}

// errStop ends a WalkTar early without reporting failure.
var errStop = errors.New("stop")

// ReadTarMember returns the content of the first regular member accepted by
// match.
func ReadTarMember(r io.Reader, match func(name string) bool) ([]byte, error) {
	var found []byte
	err := WalkTar(r, func(hdr *tar.Header, body io.Reader) error {
		if hdr.Typeflag != tar.TypeReg || !match(hdr.Name) {
			return nil
		}
		data, err := io.ReadAll(body)
		if err != nil {
			return err
		}
		found = data
		return errStop
	})
	if err != nil && !errors.Is(err, errStop) {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("member not found in archive")
	}
	return found, nil
}

// MemberNamed matches a tar member by name, ignoring a leading "./".
func MemberNamed(name string) func(string) bool {
	return func(n string) bool {
		return strings.TrimPrefix(n, "./") == name
	}
}

// NameOnly strips a version constraint from a provides-style entry such as
// "libfoo.so=1-64".
func NameOnly(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, "<>=~ "); i >= 0 {
		return s[:i]
	}
	return s
}

// ParseError wraps err as a Parse error naming what failed to parse.
func ParseError(what string, err error) error {
	return &models.PkgError{Type: models.ErrParse, Packages: []string{what}, Err: err}
}

// FileChecksums fills in size and SHA256 of a local archive.
func FileChecksums(pkg *models.Package, path string) error {
	sums, err := utils.CalculateChecksums(path)
	if err != nil {
		return fmt.Errorf("failed to calculate checksums: %w", err)
	}
	pkg.Size = sums.Size
	pkg.Checksum = sums.SHA256
	pkg.ChecksumType = "sha256"
	return nil
}
