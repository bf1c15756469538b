package winget

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/ralt/unipkg/internal/fetch"
	"github.com/ralt/unipkg/internal/models"
)

const manifests = `PackageIdentifier: Contoso.App
PackageVersion: 1.2.0
PackageName: Contoso App
Publisher: Contoso
License: MIT
ShortDescription: An application
Dependencies:
  PackageDependencies:
    - PackageIdentifier: Contoso.Runtime
      MinimumVersion: 6.0
Installers:
  - Architecture: x86
    InstallerType: msi
    InstallerUrl: https://example.com/app-x86.msi
    InstallerSha256: AAAA
  - Architecture: x64
    InstallerType: msi
    InstallerUrl: https://example.com/app-x64.msi
    InstallerSha256: BBBB
    Dependencies:
      PackageDependencies:
        - PackageIdentifier: Contoso.VCRedist
ManifestType: singleton
---
PackageIdentifier: Contoso.Runtime
PackageVersion: 6.0.5
Installers:
  - Architecture: neutral
    InstallerType: msix
    InstallerUrl: https://example.com/runtime.msix
ManifestType: singleton
---
`

type mapGetter map[string][]byte

func (m mapGetter) Get(ctx context.Context, url string) ([]byte, error) {
	if data, ok := m[url]; ok {
		return data, nil
	}
	return nil, fmt.Errorf("%s: %w", url, fetch.ErrNotFound)
}

func TestParseManifests(t *testing.T) {
	pkgs, err := New().Parse([]byte(manifests))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(pkgs) != 2 {
		t.Fatalf("Expected 2 packages, got %d", len(pkgs))
	}

	app := pkgs[0]
	if app.Name != "Contoso.App" || app.Version != "1.2.0" || app.Format != models.FormatMsi {
		t.Errorf("Unexpected record %s (%s)", app, app.Format)
	}
	if app.URL != "https://example.com/app-x64.msi" || app.Checksum != "bbbb" {
		t.Errorf("Expected the x64 installer, got %s %s", app.URL, app.Checksum)
	}
	if app.Filename != "app-x64.msi" {
		t.Errorf("Unexpected filename %s", app.Filename)
	}
	if len(app.Dependencies) != 2 {
		t.Fatalf("Expected manifest and installer dependencies, got %v", app.Dependencies)
	}
	if app.Dependencies[0].String() != "Contoso.Runtime>=6.0" || app.Dependencies[1].Constraint != nil {
		t.Errorf("Unexpected dependencies %v", app.Dependencies)
	}

	if pkgs[1].Format != models.FormatMsix {
		t.Errorf("msix installer should map to msix, got %s", pkgs[1].Format)
	}
}

func TestSyncPrefersSourceArch(t *testing.T) {
	get := mapGetter{"https://winget.example.com/index.yaml": []byte(manifests)}
	src := models.Source{Name: "winget", URL: "https://winget.example.com", Format: models.FormatMsi, Arches: []string{"x86"}}

	pkgs, err := New().Sync(context.Background(), src, get)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if pkgs[0].URL != "https://example.com/app-x86.msi" {
		t.Errorf("Expected x86 installer, got %s", pkgs[0].URL)
	}
}

func TestParseInvalidManifest(t *testing.T) {
	_, err := New().Parse([]byte("PackageIdentifier: [unterminated"))
	if !models.IsType(err, models.ErrParse) {
		t.Fatalf("Expected parse error, got %v", err)
	}
	_, err = New().Parse([]byte("PackageIdentifier: NoVersion\n"))
	if !models.IsType(err, models.ErrParse) {
		t.Fatalf("Expected parse error for missing version, got %v", err)
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Contoso.Runtime.yaml")
	os.WriteFile(path, []byte("PackageIdentifier: Contoso.Runtime\nPackageVersion: 6.0.5\n"), 0644)

	pkg, err := New().ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}
	if pkg.Name != "Contoso.Runtime" || pkg.Version != "6.0.5" {
		t.Errorf("Unexpected record %s", pkg)
	}
}
