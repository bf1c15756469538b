package adapter

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/ralt/unipkg/internal/models"
	"github.com/ralt/unipkg/internal/version"
)

// PKGINFOName is the metadata member shared by pacman, apk and native
// archives.
const PKGINFOName = ".PKGINFO"

// ParsePKGINFO parses the "key = value" metadata file found at the root of
// pacman, apk and native package archives.
func ParsePKGINFO(data []byte) (*models.Package, error) {
	pkg := &models.Package{
		Metadata: make(map[string]interface{}),
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		switch key {
		case "pkgname":
			pkg.Name = value
		case "pkgver":
			pkg.Version = value
		case "pkgdesc":
			pkg.Description = value
		case "url":
			pkg.Homepage = value
		case "license":
			pkg.License = value
		case "arch":
			pkg.Architecture = value
		case "packager", "maintainer":
			pkg.Maintainer = value
		case "size":
			size, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid size %q: %w", value, err)
			}
			pkg.InstalledSize = size
		case "depend":
			if strings.HasPrefix(value, "!") {
				pkg.Conflicts = append(pkg.Conflicts, NameOnly(value[1:]))
				continue
			}
			dep, err := version.ParseDependency(value)
			if err != nil {
				return nil, err
			}
			pkg.Dependencies = append(pkg.Dependencies, dep)
		case "conflict":
			pkg.Conflicts = append(pkg.Conflicts, NameOnly(value))
		case "provides":
			pkg.Provides = append(pkg.Provides, NameOnly(value))
		case "replaces":
			pkg.Replaces = append(pkg.Replaces, NameOnly(value))
		case "builddate":
			pkg.Metadata["BuildDate"] = value
		default:
			pkg.Metadata[key] = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if pkg.Name == "" || pkg.Version == "" {
		return nil, fmt.Errorf("%s lacks pkgname or pkgver", PKGINFOName)
	}
	return pkg, nil
}
