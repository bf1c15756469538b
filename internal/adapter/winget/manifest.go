package winget

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ralt/unipkg/internal/models"
	"gopkg.in/yaml.v2"
)

// Manifest is the subset of a winget singleton/installer manifest the
// catalog needs
type Manifest struct {
	PackageIdentifier string       `yaml:"PackageIdentifier"`
	PackageVersion    string       `yaml:"PackageVersion"`
	PackageName       string       `yaml:"PackageName"`
	Publisher         string       `yaml:"Publisher"`
	License           string       `yaml:"License"`
	ShortDescription  string       `yaml:"ShortDescription"`
	PackageURL        string       `yaml:"PackageUrl"`
	InstallerType     string       `yaml:"InstallerType"`
	Dependencies      Dependencies `yaml:"Dependencies"`
	Installers        []Installer  `yaml:"Installers"`
	ManifestType      string       `yaml:"ManifestType"`
}

// Installer is one downloadable installer of a manifest
type Installer struct {
	Architecture    string       `yaml:"Architecture"`
	InstallerType   string       `yaml:"InstallerType"`
	InstallerURL    string       `yaml:"InstallerUrl"`
	InstallerSha256 string       `yaml:"InstallerSha256"`
	Dependencies    Dependencies `yaml:"Dependencies"`
}

// Dependencies lists other winget packages a manifest needs
type Dependencies struct {
	PackageDependencies []PackageDependency `yaml:"PackageDependencies"`
}

// PackageDependency is a dependency on another package identifier
type PackageDependency struct {
	PackageIdentifier string `yaml:"PackageIdentifier"`
	MinimumVersion    string `yaml:"MinimumVersion"`
}

// decodeManifests reads every YAML document in data
func decodeManifests(data []byte) ([]Manifest, error) {
	var manifests []Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	for {
		var m Manifest
		err := dec.Decode(&m)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode manifest %d: %w", len(manifests)+1, err)
		}
		// Empty documents (a trailing "---") decode to the zero value
		if m.PackageIdentifier == "" && m.PackageVersion == "" {
			continue
		}
		manifests = append(manifests, m)
	}
	return manifests, nil
}

// formatFor maps an installer type onto a package format
func formatFor(installerType string) models.Format {
	switch strings.ToLower(installerType) {
	case "msix", "appx":
		return models.FormatMsix
	default:
		return models.FormatMsi
	}
}

// pickInstaller prefers the installer for arch, then a neutral one, then
// the first listed.
func pickInstaller(installers []Installer, arch string) (Installer, bool) {
	if len(installers) == 0 {
		return Installer{}, false
	}
	for _, in := range installers {
		if strings.EqualFold(in.Architecture, arch) {
			return in, true
		}
	}
	for _, in := range installers {
		if strings.EqualFold(in.Architecture, "neutral") {
			return in, true
		}
	}
	return installers[0], true
}

// toPackage converts a manifest into a record for arch
func (m Manifest) toPackage(arch string) (models.Package, error) {
	if m.PackageIdentifier == "" || m.PackageVersion == "" {
		return models.Package{}, fmt.Errorf("manifest without PackageIdentifier or PackageVersion")
	}

	pkg := models.Package{
		Name:        m.PackageIdentifier,
		Version:     m.PackageVersion,
		Format:      formatFor(m.InstallerType),
		Description: m.ShortDescription,
		Maintainer:  m.Publisher,
		Homepage:    m.PackageURL,
		License:     m.License,
		Metadata:    make(map[string]interface{}),
	}
	if m.PackageName != "" {
		pkg.Metadata["PackageName"] = m.PackageName
	}

	deps := m.Dependencies.PackageDependencies
	if in, ok := pickInstaller(m.Installers, arch); ok {
		pkg.Architecture = in.Architecture
		pkg.URL = in.InstallerURL
		pkg.Filename = in.InstallerURL[strings.LastIndex(in.InstallerURL, "/")+1:]
		if in.InstallerSha256 != "" {
			pkg.Checksum = strings.ToLower(in.InstallerSha256)
			pkg.ChecksumType = "sha256"
		}
		if in.InstallerType != "" {
			pkg.Format = formatFor(in.InstallerType)
		}
		deps = append(deps, in.Dependencies.PackageDependencies...)
	}

	seen := make(map[string]bool)
	for _, d := range deps {
		if d.PackageIdentifier == "" || seen[d.PackageIdentifier] {
			continue
		}
		seen[d.PackageIdentifier] = true
		dep := models.Dependency{Name: d.PackageIdentifier}
		if d.MinimumVersion != "" {
			dep.Constraint = &models.Constraint{Op: models.OpGe, Version: d.MinimumVersion}
		}
		pkg.Dependencies = append(pkg.Dependencies, dep)
	}

	return pkg, nil
}
