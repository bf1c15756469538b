// Package syncer refreshes the catalog from every enabled source.
package syncer

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/ralt/unipkg/internal/adapter"
	"github.com/ralt/unipkg/internal/catalog"
	"github.com/ralt/unipkg/internal/fetch"
	"github.com/ralt/unipkg/internal/models"
	"github.com/ralt/unipkg/internal/scanner"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DefaultParallel bounds concurrent source syncs when unset
const DefaultParallel = 4

// Result reports the outcome of one source
type Result struct {
	Source   string
	Packages int
	Err      error
}

// Syncer fetches source indexes through format adapters and merges them
// into a catalog.
type Syncer struct {
	catalog  *catalog.Catalog
	cache    *catalog.Cache
	registry *adapter.Registry
	getter   fetch.Getter
	scanner  scanner.Scanner
	parallel int
}

// Option configures a Syncer
type Option func(*Syncer)

// WithCache persists each synced source
func WithCache(c *catalog.Cache) Option {
	return func(s *Syncer) { s.cache = c }
}

// WithParallel sets how many sources sync at once
func WithParallel(n int) Option {
	return func(s *Syncer) {
		if n > 0 {
			s.parallel = n
		}
	}
}

// WithScanner overrides the scanner used for local directory sources
func WithScanner(sc scanner.Scanner) Option {
	return func(s *Syncer) { s.scanner = sc }
}

// New creates a Syncer
func New(cat *catalog.Catalog, reg *adapter.Registry, getter fetch.Getter, opts ...Option) *Syncer {
	s := &Syncer{
		catalog:  cat,
		registry: reg,
		getter:   getter,
		scanner:  scanner.NewFileSystemScanner(),
		parallel: DefaultParallel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SyncAll syncs every enabled source, at most parallel at a time. A failing
// source does not stop the others; failures come back aggregated.
func (s *Syncer) SyncAll(ctx context.Context, sources []models.Source) ([]Result, error) {
	var (
		mu      sync.Mutex
		results []Result
		errs    *multierror.Error
	)

	var g errgroup.Group
	g.SetLimit(s.parallel)

	for _, src := range sources {
		if !src.Enabled {
			logrus.WithField("source", src.Name).Debug("Skipping disabled source")
			continue
		}
		src := src

		g.Go(func() error {
			pkgs, err := s.SyncSource(ctx, src)

			mu.Lock()
			defer mu.Unlock()
			results = append(results, Result{Source: src.Name, Packages: len(pkgs), Err: err})
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("source %s: %w", src.Name, err))
			}
			return nil
		})
	}
	g.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Source < results[j].Source })

	if errs != nil {
		for _, err := range errs.Errors {
			logrus.WithError(err).Warn("Source sync failed")
		}
		return results, errs.ErrorOrNil()
	}
	return results, nil
}

// SyncSource fetches one source and replaces its records in the catalog.
func (s *Syncer) SyncSource(ctx context.Context, src models.Source) ([]models.Package, error) {
	a, err := s.registry.Get(src.Format)
	if err != nil {
		return nil, err
	}

	var pkgs []models.Package
	if isLocalDir(src.URL) {
		pkgs, err = s.scanLocal(ctx, src)
	} else {
		pkgs, err = a.Sync(ctx, src, s.getter)
	}
	if err != nil {
		return nil, err
	}

	s.catalog.Replace(src, pkgs)

	if s.cache != nil {
		if err := s.cache.Save(src.Name, pkgs); err != nil {
			// The catalog is already updated; a stale cache only costs a resync
			logrus.WithError(err).WithField("source", src.Name).Warn("Failed to write catalog cache")
		}
	}

	logrus.WithFields(logrus.Fields{
		"source":   src.Name,
		"format":   src.Format,
		"packages": len(pkgs),
	}).Info("Synced source")
	return pkgs, nil
}

// isLocalDir reports URLs that are plain absolute paths
func isLocalDir(url string) bool {
	return !strings.Contains(url, "://") && filepath.IsAbs(url)
}

// scanLocal builds records from the archives found under a local directory
func (s *Syncer) scanLocal(ctx context.Context, src models.Source) ([]models.Package, error) {
	found, err := s.scanner.Scan(ctx, src.URL)
	if err != nil {
		return nil, &models.PkgError{Type: models.ErrIO, Packages: []string{src.Name}, Err: err}
	}

	a, err := s.registry.Get(src.Format)
	if err != nil {
		return nil, err
	}

	var pkgs []models.Package
	for _, f := range found {
		if !scanner.Compatible(f.Format, src.Format) {
			logrus.WithFields(logrus.Fields{
				"source": src.Name,
				"file":   f.Path,
				"format": f.Format,
			}).Debug("Skipping file of another format")
			continue
		}

		pkg, err := a.ParseFile(f.Path)
		if err != nil {
			logrus.WithError(err).WithField("file", f.Path).Warn("Skipping unreadable package")
			continue
		}
		if pkg.URL == "" {
			pkg.URL = "file://" + f.Path
		}
		pkgs = append(pkgs, *pkg)
	}
	return pkgs, nil
}
