// Package winget reads winget-style YAML manifests published as a single
// multi-document index.
package winget

import (
	"context"
	"fmt"
	"os"

	"github.com/ralt/unipkg/internal/adapter"
	"github.com/ralt/unipkg/internal/fetch"
	"github.com/ralt/unipkg/internal/models"
	"github.com/sirupsen/logrus"
)

// IndexName is the manifest index at the root of a source
const IndexName = "index.yaml"

// DefaultArch is the installer architecture preferred when a source lists
// none
const DefaultArch = "x64"

// Adapter implements adapter.Adapter for winget manifests
type Adapter struct {
	arch string
}

// New creates a winget adapter preferring DefaultArch installers
func New() *Adapter {
	return &Adapter{arch: DefaultArch}
}

// Format returns models.FormatMsi; the adapter is also registered for msix
func (a *Adapter) Format() models.Format {
	return models.FormatMsi
}

// Parse decodes a multi-document manifest index
func (a *Adapter) Parse(raw []byte) ([]models.Package, error) {
	return a.parse(raw, a.arch)
}

func (a *Adapter) parse(raw []byte, arch string) ([]models.Package, error) {
	manifests, err := decodeManifests(raw)
	if err != nil {
		return nil, adapter.ParseError(IndexName, err)
	}

	pkgs := make([]models.Package, 0, len(manifests))
	for _, m := range manifests {
		pkg, err := m.toPackage(arch)
		if err != nil {
			return nil, adapter.ParseError(IndexName, err)
		}
		pkgs = append(pkgs, pkg)
	}
	return pkgs, nil
}

// ParseFile reads a single local manifest file
func (a *Adapter) ParseFile(path string) (*models.Package, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, adapter.ParseError(path, err)
	}
	pkgs, err := a.Parse(data)
	if err != nil {
		return nil, adapter.ParseError(path, err)
	}
	if len(pkgs) != 1 {
		return nil, adapter.ParseError(path, fmt.Errorf("expected one manifest, found %d", len(pkgs)))
	}
	return &pkgs[0], nil
}

// Sync fetches index.yaml from src.
func (a *Adapter) Sync(ctx context.Context, src models.Source, get fetch.Getter) ([]models.Package, error) {
	name := IndexName
	if src.Index != "" {
		name = src.Index
	}

	raw, err := get.Get(ctx, adapter.JoinURL(src.URL, name))
	if err != nil {
		return nil, &models.PkgError{Type: models.ErrNetwork, Packages: []string{src.Name}, Err: err}
	}

	pkgs, err := a.parse(raw, src.FirstArch(a.arch))
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"source":   src.Name,
		"packages": len(pkgs),
	}).Debug("Parsed winget manifests")
	return pkgs, nil
}
