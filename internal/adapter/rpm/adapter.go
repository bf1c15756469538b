// Package rpm reads dnf/yum repositories (repomd.xml and primary.xml) and
// .rpm headers.
package rpm

import (
	"context"
	"fmt"

	"github.com/ralt/unipkg/internal/adapter"
	"github.com/ralt/unipkg/internal/fetch"
	"github.com/ralt/unipkg/internal/models"
	"github.com/ralt/unipkg/internal/utils"
	"github.com/sirupsen/logrus"
)

// Adapter implements adapter.Adapter for RPM repositories
type Adapter struct{}

// New creates an RPM adapter
func New() *Adapter {
	return &Adapter{}
}

// Format returns models.FormatRpm
func (a *Adapter) Format() models.Format {
	return models.FormatRpm
}

// Parse decodes primary.xml, compressed or not
func (a *Adapter) Parse(raw []byte) ([]models.Package, error) {
	data, err := utils.Decompress(raw)
	if err != nil {
		return nil, adapter.ParseError("primary.xml", err)
	}
	pkgs, err := parsePrimary(data)
	if err != nil {
		return nil, adapter.ParseError("primary.xml", err)
	}
	return pkgs, nil
}

// ParseFile reads the header of a local .rpm
func (a *Adapter) ParseFile(path string) (*models.Package, error) {
	pkg, err := ParsePackage(path)
	if err != nil {
		return nil, adapter.ParseError(path, err)
	}
	return pkg, nil
}

// Sync follows repodata/repomd.xml to the primary index of src.
func (a *Adapter) Sync(ctx context.Context, src models.Source, get fetch.Getter) ([]models.Package, error) {
	verifier, err := adapter.LoadVerifier(src)
	if err != nil {
		return nil, err
	}

	repomdURL := adapter.JoinURL(src.URL, "repodata", "repomd.xml")
	repomd, err := get.Get(ctx, repomdURL)
	if err != nil {
		return nil, &models.PkgError{Type: models.ErrNetwork, Packages: []string{src.Name}, Err: err}
	}

	if verifier != nil {
		sig, err := get.Get(ctx, repomdURL+".asc")
		if err != nil {
			return nil, adapter.SignatureError(src, fmt.Errorf("failed to fetch repomd.xml.asc: %w", err))
		}
		if err := verifier.VerifyDetached(repomd, sig); err != nil {
			return nil, adapter.SignatureError(src, err)
		}
	}

	primary, err := primaryLocation(repomd)
	if err != nil {
		return nil, adapter.ParseError("repomd.xml", err)
	}

	primaryURL := adapter.JoinURL(src.URL, primary.Location.Href)
	if src.Index != "" {
		primaryURL = adapter.JoinURL(src.URL, src.Index)
	}
	raw, err := get.Get(ctx, primaryURL)
	if err != nil {
		return nil, &models.PkgError{Type: models.ErrNetwork, Packages: []string{src.Name}, Err: err}
	}

	if primary.Checksum.Value != "" && src.Index == "" {
		if err := utils.VerifyChecksum(raw, primary.Checksum.Type, primary.Checksum.Value); err != nil {
			return nil, adapter.SignatureError(src, fmt.Errorf("primary index: %w", err))
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
	}).Debug("Parsed primary index")
	return pkgs, nil
}
