// Package native reads unipkg's own repositories: a packages.json index next
// to .pkg.tar.zst archives carrying a .PKGINFO file.
package native

import (
	"context"
	"fmt"
	"os"

	"github.com/ralt/unipkg/internal/adapter"
	"github.com/ralt/unipkg/internal/fetch"
	"github.com/ralt/unipkg/internal/models"
	"github.com/sirupsen/logrus"
)

// IndexName is the index file at the root of a native repository
const IndexName = "packages.json"

// Adapter implements adapter.Adapter for native repositories
type Adapter struct{}

// New creates a native adapter
func New() *Adapter {
	return &Adapter{}
}

// Format returns models.FormatNative
func (a *Adapter) Format() models.Format {
	return models.FormatNative
}

// Parse decodes packages.json
func (a *Adapter) Parse(raw []byte) ([]models.Package, error) {
	pkgs, err := parseIndex(raw)
	if err != nil {
		return nil, adapter.ParseError(IndexName, err)
	}
	return pkgs, nil
}

// ParseFile reads .PKGINFO from a local archive
func (a *Adapter) ParseFile(path string) (*models.Package, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, adapter.ParseError(path, err)
	}
	defer f.Close()

	data, err := adapter.ReadTarMember(f, adapter.MemberNamed(adapter.PKGINFOName))
	if err != nil {
		return nil, adapter.ParseError(path, fmt.Errorf("failed to extract .PKGINFO: %w", err))
	}
	pkg, err := adapter.ParsePKGINFO(data)
	if err != nil {
		return nil, adapter.ParseError(path, err)
	}

	pkg.Format = models.FormatNative
	pkg.Filename = path
	if err := adapter.FileChecksums(pkg, path); err != nil {
		return nil, err
	}
	return pkg, nil
}

// Sync fetches packages.json and, when the source has a key, its detached
// packages.json.sig.
func (a *Adapter) Sync(ctx context.Context, src models.Source, get fetch.Getter) ([]models.Package, error) {
	verifier, err := adapter.LoadVerifier(src)
	if err != nil {
		return nil, err
	}

	name := IndexName
	if src.Index != "" {
		name = src.Index
	}
	indexURL := adapter.JoinURL(src.URL, name)

	raw, err := get.Get(ctx, indexURL)
	if err != nil {
		return nil, &models.PkgError{Type: models.ErrNetwork, Packages: []string{src.Name}, Err: err}
	}

	if verifier != nil {
		sig, err := get.Get(ctx, indexURL+".sig")
		if err != nil {
			return nil, adapter.SignatureError(src, fmt.Errorf("failed to fetch index signature: %w", err))
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
		"packages": len(pkgs),
	}).Debug("Parsed packages.json")
	return pkgs, nil
}
