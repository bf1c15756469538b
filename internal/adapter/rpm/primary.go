package rpm

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/ralt/unipkg/internal/models"
	"github.com/ralt/unipkg/internal/version"
)

// repomd.xml

type repoMD struct {
	XMLName xml.Name     `xml:"repomd"`
	Data    []repoMDData `xml:"data"`
}

type repoMDData struct {
	Type     string      `xml:"type,attr"`
	Checksum xmlChecksum `xml:"checksum"`
	Location xmlLocation `xml:"location"`
	Size     int64       `xml:"size"`
}

type xmlChecksum struct {
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

type xmlLocation struct {
	Href string `xml:"href,attr"`
}

// primary.xml

type primaryMetadata struct {
	XMLName  xml.Name         `xml:"metadata"`
	Packages []primaryPackage `xml:"package"`
}

type primaryPackage struct {
	Type        string      `xml:"type,attr"`
	Name        string      `xml:"name"`
	Arch        string      `xml:"arch"`
	Version     xmlVersion  `xml:"version"`
	Checksum    xmlChecksum `xml:"checksum"`
	Summary     string      `xml:"summary"`
	Description string      `xml:"description"`
	Packager    string      `xml:"packager"`
	URL         string      `xml:"url"`
	Size        struct {
		Package   int64 `xml:"package,attr"`
		Installed int64 `xml:"installed,attr"`
	} `xml:"size"`
	Location xmlLocation `xml:"location"`
	Format   struct {
		License   string     `xml:"license"`
		Provides  []xmlEntry `xml:"provides>entry"`
		Requires  []xmlEntry `xml:"requires>entry"`
		Conflicts []xmlEntry `xml:"conflicts>entry"`
		Obsoletes []xmlEntry `xml:"obsoletes>entry"`
		Files     []string   `xml:"file"`
	} `xml:"format"`
}

type xmlVersion struct {
	Epoch string `xml:"epoch,attr"`
	Ver   string `xml:"ver,attr"`
	Rel   string `xml:"rel,attr"`
}

type xmlEntry struct {
	Name  string `xml:"name,attr"`
	Flags string `xml:"flags,attr"`
	Epoch string `xml:"epoch,attr"`
	Ver   string `xml:"ver,attr"`
	Rel   string `xml:"rel,attr"`
}

// EVR renders an epoch/version/release triple as [epoch:]version[-release].
// A zero epoch is omitted.
func EVR(epoch, ver, rel string) string {
	s := ver
	if rel != "" {
		s += "-" + rel
	}
	if epoch != "" && epoch != "0" {
		s = epoch + ":" + s
	}
	return s
}

// skipRequirement reports requirements that never name a package:
// rpmlib features and file paths.
func skipRequirement(name string) bool {
	return strings.HasPrefix(name, "rpmlib(") || strings.HasPrefix(name, "/")
}

func (e xmlEntry) dependency() (models.Dependency, error) {
	dep := models.Dependency{Name: e.Name}
	if e.Flags == "" {
		return dep, nil
	}
	op, err := version.ParseOp(e.Flags)
	if err != nil {
		return dep, fmt.Errorf("requirement %s: %w", e.Name, err)
	}
	dep.Constraint = &models.Constraint{Op: op, Version: EVR(e.Epoch, e.Ver, e.Rel)}
	return dep, nil
}

func entryNames(entries []xmlEntry, self string) []string {
	var names []string
	for _, e := range entries {
		if e.Name == self || skipRequirement(e.Name) {
			continue
		}
		names = append(names, e.Name)
	}
	return names
}

// parsePrimary decodes an uncompressed primary.xml
func parsePrimary(data []byte) ([]models.Package, error) {
	var md primaryMetadata
	if err := xml.Unmarshal(data, &md); err != nil {
		return nil, fmt.Errorf("failed to decode primary.xml: %w", err)
	}

	packages := make([]models.Package, 0, len(md.Packages))
	for _, p := range md.Packages {
		if p.Type != "" && p.Type != "rpm" {
			continue
		}
		// Source packages are not installable
		if p.Arch == "src" || p.Arch == "nosrc" {
			continue
		}

		pkg := models.Package{
			Name:          p.Name,
			Version:       EVR(p.Version.Epoch, p.Version.Ver, p.Version.Rel),
			Architecture:  p.Arch,
			Format:        models.FormatRpm,
			Description:   strings.TrimSpace(p.Summary),
			Maintainer:    p.Packager,
			Homepage:      p.URL,
			License:       p.Format.License,
			Filename:      p.Location.Href,
			Size:          p.Size.Package,
			InstalledSize: p.Size.Installed,
			Checksum:      strings.TrimSpace(p.Checksum.Value),
			ChecksumType:  p.Checksum.Type,
			Files:         p.Format.Files,
			Provides:      entryNames(p.Format.Provides, p.Name),
			Conflicts:     entryNames(p.Format.Conflicts, p.Name),
			Replaces:      entryNames(p.Format.Obsoletes, p.Name),
			Metadata:      make(map[string]interface{}),
		}
		if desc := strings.TrimSpace(p.Description); desc != "" {
			pkg.Metadata["Description"] = desc
		}

		for _, req := range p.Format.Requires {
			if skipRequirement(req.Name) {
				continue
			}
			dep, err := req.dependency()
			if err != nil {
				return nil, fmt.Errorf("package %s: %w", p.Name, err)
			}
			pkg.Dependencies = append(pkg.Dependencies, dep)
		}

		if pkg.Name == "" || p.Version.Ver == "" {
			return nil, fmt.Errorf("package entry without name or version")
		}
		packages = append(packages, pkg)
	}

	return packages, nil
}

// primaryLocation finds the primary index in repomd.xml
func primaryLocation(data []byte) (*repoMDData, error) {
	var md repoMD
	if err := xml.Unmarshal(data, &md); err != nil {
		return nil, fmt.Errorf("failed to decode repomd.xml: %w", err)
	}
	for i := range md.Data {
		if md.Data[i].Type == "primary" {
			return &md.Data[i], nil
		}
	}
	return nil, fmt.Errorf("repomd.xml has no primary data")
}
