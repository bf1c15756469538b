// Package pacman reads Arch Linux sync databases and .pkg.tar.* archives.
package pacman

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ralt/unipkg/internal/adapter"
	"github.com/ralt/unipkg/internal/fetch"
	"github.com/ralt/unipkg/internal/models"
	"github.com/sirupsen/logrus"
)

// Adapter implements adapter.Adapter for pacman repositories
type Adapter struct{}

// New creates a pacman adapter
func New() *Adapter {
	return &Adapter{}
}

// Format returns models.FormatPacman
func (a *Adapter) Format() models.Format {
	return models.FormatPacman
}

// Parse reads a sync database in any supported compression
func (a *Adapter) Parse(raw []byte) ([]models.Package, error) {
	pkgs, err := parseDB(bytes.NewReader(raw))
	if err != nil {
		return nil, adapter.ParseError("pacman db", err)
	}
	return pkgs, nil
}

// ParseFile reads .PKGINFO from a local package
func (a *Adapter) ParseFile(path string) (*models.Package, error) {
	pkg, err := ParsePackage(path)
	if err != nil {
		return nil, adapter.ParseError(path, err)
	}
	return pkg, nil
}

// repoName is the database name: the distribution field when set (as in
// "core" or "extra"), the source name otherwise.
func repoName(src models.Source) string {
	if src.Distribution != "" {
		return src.Distribution
	}
	return src.Name
}

// Sync fetches <repo>.db from the source URL.
func (a *Adapter) Sync(ctx context.Context, src models.Source, get fetch.Getter) ([]models.Package, error) {
	verifier, err := adapter.LoadVerifier(src)
	if err != nil {
		return nil, err
	}

	repo := repoName(src)
	candidates := []string{repo + ".db", repo + ".db.tar.zst", repo + ".db.tar.xz", repo + ".db.tar.gz"}
	if src.Index != "" {
		candidates = []string{src.Index}
	}
	urls := make([]string, 0, len(candidates))
	for _, c := range candidates {
		urls = append(urls, adapter.JoinURL(src.URL, c))
	}

	raw, got, err := adapter.GetFirst(ctx, get, urls)
	if err != nil {
		return nil, err
	}

	if verifier != nil {
		sig, err := get.Get(ctx, got+".sig")
		if err != nil {
			return nil, adapter.SignatureError(src, fmt.Errorf("failed to fetch database signature: %w", err))
		}
		if err := verifier.VerifyDetached(raw, sig); err != nil {
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
		"database": got,
		"packages": len(pkgs),
	}).Debug("Parsed pacman database")
	return pkgs, nil
}
