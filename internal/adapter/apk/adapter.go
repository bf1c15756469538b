// Package apk reads Alpine repositories (APKINDEX.tar.gz) and .apk files.
package apk

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ralt/unipkg/internal/adapter"
	"github.com/ralt/unipkg/internal/fetch"
	"github.com/ralt/unipkg/internal/models"
	"github.com/ralt/unipkg/internal/signer"
	"github.com/sirupsen/logrus"
)

const indexName = "APKINDEX.tar.gz"

// Adapter implements adapter.Adapter for Alpine repositories
type Adapter struct{}

// New creates an APK adapter
func New() *Adapter {
	return &Adapter{}
}

// Format returns models.FormatApk
func (a *Adapter) Format() models.Format {
	return models.FormatApk
}

// Parse reads the APKINDEX member out of APKINDEX.tar.gz. Plain APKINDEX
// text is accepted too.
func (a *Adapter) Parse(raw []byte) ([]models.Package, error) {
	text := raw
	if !looksLikeIndexText(raw) {
		member, err := adapter.ReadTarMember(bytes.NewReader(raw), adapter.MemberNamed("APKINDEX"))
		if err != nil {
			return nil, adapter.ParseError(indexName, err)
		}
		text = member
	}

	pkgs, err := parseIndex(text)
	if err != nil {
		return nil, adapter.ParseError(indexName, err)
	}
	return pkgs, nil
}

func looksLikeIndexText(raw []byte) bool {
	return len(raw) > 1 && raw[1] == ':' && (raw[0] == 'C' || raw[0] == 'P')
}

// ParseFile reads .PKGINFO from a local .apk
func (a *Adapter) ParseFile(path string) (*models.Package, error) {
	pkg, err := ParsePackage(path)
	if err != nil {
		return nil, adapter.ParseError(path, err)
	}
	return pkg, nil
}

// Sync fetches APKINDEX.tar.gz for each configured architecture. Packages
// live next to the index they are listed in.
func (a *Adapter) Sync(ctx context.Context, src models.Source, get fetch.Getter) ([]models.Package, error) {
	var verifier signer.RSAVerifier
	if src.GPGKey != "" {
		v, err := signer.NewAlpineRSAVerifier(strings.TrimPrefix(src.GPGKey, "file://"))
		if err != nil {
			return nil, adapter.SignatureError(src, err)
		}
		verifier = v
	}

	bases := []string{src.URL}
	if len(src.Arches) > 0 {
		bases = bases[:0]
		for _, arch := range src.Arches {
			bases = append(bases, adapter.JoinURL(src.URL, arch))
		}
	}

	var all []models.Package
	for _, base := range bases {
		name := indexName
		if src.Index != "" {
			name = src.Index
		}
		indexURL := adapter.JoinURL(base, name)

		raw, err := get.Get(ctx, indexURL)
		if err != nil {
			return nil, &models.PkgError{Type: models.ErrNetwork, Packages: []string{src.Name}, Err: err}
		}

		if verifier != nil {
			sigURL := fmt.Sprintf("%s.SIGN.RSA.%s.pub", indexURL, verifier.KeyName())
			sig, err := get.Get(ctx, sigURL)
			if err != nil {
				return nil, adapter.SignatureError(src, fmt.Errorf("failed to fetch %s: %w", filepath.Base(sigURL), err))
			}
			if err := verifier.VerifyRSA(raw, sig); err != nil {
				return nil, adapter.SignatureError(src, err)
			}
		}

		pkgs, err := a.Parse(raw)
		if err != nil {
			return nil, err
		}
		for i := range pkgs {
			pkgs[i].URL = adapter.JoinURL(base, pkgs[i].Filename)
		}

		logrus.WithFields(logrus.Fields{
			"source":   src.Name,
			"index":    indexURL,
			"packages": len(pkgs),
		}).Debug("Parsed APKINDEX")
		all = append(all, pkgs...)
	}

	return all, nil
}
