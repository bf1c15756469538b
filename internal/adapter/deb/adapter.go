// Package deb reads Debian repositories: Packages indexes, InRelease files
// and .deb archives.
package deb

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ralt/unipkg/internal/adapter"
	"github.com/ralt/unipkg/internal/fetch"
	"github.com/ralt/unipkg/internal/models"
	"github.com/ralt/unipkg/internal/utils"
	"github.com/sirupsen/logrus"
)

// DefaultArch is used when a source lists no architectures
const DefaultArch = "amd64"

// Adapter implements adapter.Adapter for Debian repositories
type Adapter struct{}

// New creates a Debian adapter
func New() *Adapter {
	return &Adapter{}
}

// Format returns models.FormatDeb
func (a *Adapter) Format() models.Format {
	return models.FormatDeb
}

// Parse parses a Packages index, compressed or not
func (a *Adapter) Parse(raw []byte) ([]models.Package, error) {
	data, err := utils.Decompress(raw)
	if err != nil {
		return nil, adapter.ParseError("Packages", err)
	}
	pkgs, err := parseStanzas(bytes.NewReader(data))
	if err != nil {
		return nil, adapter.ParseError("Packages", err)
	}
	return pkgs, nil
}

// ParseFile reads the control file of a local .deb
func (a *Adapter) ParseFile(path string) (*models.Package, error) {
	pkg, err := ParsePackage(path)
	if err != nil {
		return nil, adapter.ParseError(path, err)
	}
	return pkg, nil
}

// indexTarget is one Packages index to fetch, relative to the Release file
type indexTarget struct {
	base string // directory holding the Release file
	dir  string // index directory relative to base
}

// Sync downloads and parses every configured Packages index of src.
func (a *Adapter) Sync(ctx context.Context, src models.Source, get fetch.Getter) ([]models.Package, error) {
	verifier, err := adapter.LoadVerifier(src)
	if err != nil {
		return nil, err
	}

	targets := a.targets(src)
	releases := make(map[string]*Release)

	var all []models.Package
	for _, t := range targets {
		var rel *Release
		if verifier != nil {
			if rel = releases[t.base]; rel == nil {
				rel, err = fetchRelease(ctx, get, t.base, verifier)
				if err != nil {
					return nil, adapter.SignatureError(src, err)
				}
				releases[t.base] = rel
			}
		}

		candidates := []string{"Packages.xz", "Packages.gz", "Packages"}
		if src.Index != "" {
			candidates = []string{src.Index}
		}
		urls := make([]string, 0, len(candidates))
		for _, c := range candidates {
			urls = append(urls, adapter.JoinURL(t.base, t.dir, c))
		}

		raw, got, err := adapter.GetFirst(ctx, get, urls)
		if err != nil {
			return nil, err
		}

		if rel != nil {
			relPath := strings.TrimPrefix(strings.TrimPrefix(got, t.base), "/")
			if err := checkIndex(rel, relPath, raw); err != nil {
				return nil, adapter.SignatureError(src, err)
			}
		}

		pkgs, err := a.Parse(raw)
		if err != nil {
			return nil, err
		}
		for i := range pkgs {
			pkgs[i].URL = adapter.JoinURL(src.URL, pkgs[i].Filename)
		}

		logrus.WithFields(logrus.Fields{
			"source":   src.Name,
			"index":    got,
			"packages": len(pkgs),
		}).Debug("Parsed Packages index")
		all = append(all, pkgs...)
	}

	return all, nil
}

// targets lists the Packages directories to fetch. A source with a
// distribution uses the dists/ layout, anything else is a flat repository.
func (a *Adapter) targets(src models.Source) []indexTarget {
	if src.Distribution == "" {
		return []indexTarget{{base: src.URL}}
	}

	base := adapter.JoinURL(src.URL, "dists", src.Distribution)
	components := src.Components
	if len(components) == 0 {
		components = []string{"main"}
	}
	arches := src.Arches
	if len(arches) == 0 {
		arches = []string{DefaultArch}
	}

	var targets []indexTarget
	for _, comp := range components {
		for _, arch := range arches {
			targets = append(targets, indexTarget{
				base: base,
				dir:  fmt.Sprintf("%s/binary-%s", comp, arch),
			})
		}
	}
	return targets
}

type clearsignVerifier interface {
	VerifyClearsigned(data []byte) ([]byte, error)
}

// fetchRelease downloads and verifies InRelease under base
func fetchRelease(ctx context.Context, get fetch.Getter, base string, v clearsignVerifier) (*Release, error) {
	data, err := get.Get(ctx, adapter.JoinURL(base, "InRelease"))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch InRelease: %w", err)
	}
	body, err := v.VerifyClearsigned(data)
	if err != nil {
		return nil, fmt.Errorf("InRelease signature: %w", err)
	}
	return ParseRelease(body)
}

// checkIndex compares a fetched index against its Release entry
func checkIndex(rel *Release, relPath string, raw []byte) error {
	info, ok := rel.Files[relPath]
	if !ok {
		return fmt.Errorf("%s is not listed in InRelease", relPath)
	}
	if int64(len(raw)) != info.Size {
		return fmt.Errorf("%s: size %d, InRelease says %d", relPath, len(raw), info.Size)
	}
	return utils.VerifyChecksum(raw, "sha256", info.SHA256)
}
