package pacman

import (
	"archive/tar"
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/ralt/unipkg/internal/adapter"
	"github.com/ralt/unipkg/internal/models"
	"github.com/ralt/unipkg/internal/version"
)

// ParsePackage parses a Pacman package file and extracts metadata
func ParsePackage(path string) (*models.Package, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// Compression is detected from magic bytes, so .zst, .xz, .gz and plain
	// tars are all accepted
	pkginfo, err := adapter.ReadTarMember(f, adapter.MemberNamed(adapter.PKGINFOName))
	if err != nil {
		return nil, fmt.Errorf("failed to extract .PKGINFO: %w", err)
	}

	pkg, err := adapter.ParsePKGINFO(pkginfo)
	if err != nil {
		return nil, fmt.Errorf("failed to parse .PKGINFO: %w", err)
	}

	pkg.Format = models.FormatPacman
	pkg.Filename = path
	if err := adapter.FileChecksums(pkg, path); err != nil {
		return nil, err
	}
	return pkg, nil
}

// parseDB reads a sync database: a tar with one directory per package,
// holding a desc file and optionally a files file.
func parseDB(r io.Reader) ([]models.Package, error) {
	byDir := make(map[string]*models.Package)
	files := make(map[string][]string)
	var order []string

	err := adapter.WalkTar(r, func(hdr *tar.Header, body io.Reader) error {
		if hdr.Typeflag != tar.TypeReg {
			return nil
		}
		dir, base := path.Split(hdr.Name)
		switch base {
		case "desc":
			data, err := io.ReadAll(body)
			if err != nil {
				return err
			}
			pkg, err := parseDescFile(data)
			if err != nil {
				return fmt.Errorf("%s: %w", hdr.Name, err)
			}
			byDir[dir] = pkg
			order = append(order, dir)
		case "files":
			data, err := io.ReadAll(body)
			if err != nil {
				return err
			}
			files[dir] = descSections(data)["FILES"]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	packages := make([]models.Package, 0, len(order))
	for _, dir := range order {
		pkg := byDir[dir]
		for _, f := range files[dir] {
			// Directory entries end in "/"
			if !strings.HasSuffix(f, "/") {
				pkg.Files = append(pkg.Files, f)
			}
		}
		packages = append(packages, *pkg)
	}
	return packages, nil
}

// descSections splits a desc/files document into %FIELD% sections
func descSections(data []byte) map[string][]string {
	sections := make(map[string][]string)
	var currentField string

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()

		// Field marker: %FIELDNAME%
		if len(line) > 2 && strings.HasPrefix(line, "%") && strings.HasSuffix(line, "%") {
			currentField = strings.Trim(line, "%")
			continue
		}

		if line == "" {
			currentField = ""
			continue
		}

		if currentField != "" {
			sections[currentField] = append(sections[currentField], line)
		}
	}
	return sections
}

func parseDescFile(data []byte) (*models.Package, error) {
	pkg := &models.Package{
		Format:   models.FormatPacman,
		Metadata: make(map[string]interface{}),
	}

	for field, values := range descSections(data) {
		first := values[0]
		switch field {
		case "FILENAME":
			pkg.Filename = first
		case "NAME":
			pkg.Name = first
		case "VERSION":
			pkg.Version = first
		case "DESC":
			pkg.Description = strings.Join(values, "\n")
		case "CSIZE":
			size, err := strconv.ParseInt(first, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid %%CSIZE%% %q", first)
			}
			pkg.Size = size
		case "ISIZE":
			size, err := strconv.ParseInt(first, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid %%ISIZE%% %q", first)
			}
			pkg.InstalledSize = size
		case "SHA256SUM":
			pkg.Checksum = first
			pkg.ChecksumType = "sha256"
		case "ARCH":
			pkg.Architecture = first
		case "PACKAGER":
			pkg.Maintainer = first
		case "URL":
			pkg.Homepage = first
		case "LICENSE":
			pkg.License = strings.Join(values, " AND ")
		case "BUILDDATE":
			pkg.Metadata["BuildDate"] = first
		case "DEPENDS":
			deps, err := version.ParseDependencies(values)
			if err != nil {
				return nil, err
			}
			pkg.Dependencies = deps
		case "CONFLICTS":
			pkg.Conflicts = namesOnly(values)
		case "PROVIDES":
			pkg.Provides = namesOnly(values)
		case "REPLACES":
			pkg.Replaces = namesOnly(values)
		case "GROUPS":
			pkg.Metadata["Groups"] = values
		default:
			pkg.Metadata[field] = strings.Join(values, "\n")
		}
	}

	if pkg.Checksum == "" {
		if md5, ok := pkg.Metadata["MD5SUM"].(string); ok {
			pkg.Checksum = md5
			pkg.ChecksumType = "md5"
		}
	}

	if pkg.Name == "" || pkg.Version == "" {
		return nil, fmt.Errorf("desc without %%NAME%% or %%VERSION%%")
	}
	return pkg, nil
}

func namesOnly(values []string) []string {
	names := make([]string, 0, len(values))
	for _, v := range values {
		names = append(names, adapter.NameOnly(v))
	}
	return names
}
