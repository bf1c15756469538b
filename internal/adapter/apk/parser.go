package apk

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ralt/unipkg/internal/adapter"
	"github.com/ralt/unipkg/internal/models"
	"github.com/ralt/unipkg/internal/version"
)

// ParsePackage parses an APK file and extracts metadata
func ParsePackage(path string) (*models.Package, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// APK files are gzipped tar archives, possibly several gzip streams
	// concatenated (signature, control, data)
	pkginfo, err := adapter.ReadTarMember(f, adapter.MemberNamed(adapter.PKGINFOName))
	if err != nil {
		return nil, fmt.Errorf("failed to extract PKGINFO: %w", err)
	}

	pkg, err := adapter.ParsePKGINFO(pkginfo)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PKGINFO: %w", err)
	}

	pkg.Format = models.FormatApk
	pkg.Filename = path
	if err := adapter.FileChecksums(pkg, path); err != nil {
		return nil, err
	}
	return pkg, nil
}

// parseIndex parses the text of an APKINDEX file: blank-line separated
// records of single-letter fields.
func parseIndex(data []byte) ([]models.Package, error) {
	var packages []models.Package
	var current *models.Package

	flush := func() error {
		if current == nil {
			return nil
		}
		if current.Name == "" || current.Version == "" {
			return fmt.Errorf("APKINDEX record without P: or V:")
		}
		current.Filename = fmt.Sprintf("%s-%s.apk", current.Name, current.Version)
		packages = append(packages, *current)
		current = nil
		return nil
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}

		if len(line) < 2 || line[1] != ':' {
			continue
		}
		key, value := line[0], line[2:]

		if current == nil {
			current = &models.Package{
				Format:   models.FormatApk,
				Metadata: make(map[string]interface{}),
			}
		}

		if err := setField(current, key, value); err != nil {
			return nil, fmt.Errorf("package %s: %w", current.Name, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}

	return packages, nil
}

func setField(pkg *models.Package, key byte, value string) error {
	switch key {
	case 'P':
		pkg.Name = value
	case 'V':
		pkg.Version = value
	case 'A':
		pkg.Architecture = value
	case 'S':
		size, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid S: %q", value)
		}
		pkg.Size = size
	case 'I':
		size, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid I: %q", value)
		}
		pkg.InstalledSize = size
	case 'T':
		pkg.Description = value
	case 'U':
		pkg.Homepage = value
	case 'L':
		pkg.License = value
	case 'm':
		pkg.Maintainer = value
	case 'C':
		// Q1-prefixed base64 SHA1 of the control segment, not of the file
		pkg.Metadata["ControlChecksum"] = value
	case 'D':
		for _, d := range strings.Fields(value) {
			if strings.HasPrefix(d, "!") {
				pkg.Conflicts = append(pkg.Conflicts, adapter.NameOnly(d[1:]))
				continue
			}
			// File dependencies are satisfied through cmd:/so: provides
			if strings.HasPrefix(d, "/") {
				continue
			}
			dep, err := parseDep(d)
			if err != nil {
				return err
			}
			pkg.Dependencies = append(pkg.Dependencies, dep)
		}
	case 'p':
		for _, p := range strings.Fields(value) {
			pkg.Provides = append(pkg.Provides, adapter.NameOnly(p))
		}
	case 'r':
		for _, r := range strings.Fields(value) {
			pkg.Replaces = append(pkg.Replaces, adapter.NameOnly(r))
		}
	case 'o':
		pkg.Metadata["Origin"] = value
	case 't':
		pkg.Metadata["BuildDate"] = value
	default:
		pkg.Metadata[string(key)] = value
	}
	return nil
}

// parseDep accepts apk's fuzzy "~" operator as a lower bound
func parseDep(s string) (models.Dependency, error) {
	if i := strings.Index(s, "~"); i > 0 && !strings.ContainsAny(s[:i], "<>=") {
		s = s[:i] + ">=" + s[i+1:]
	}
	return version.ParseDependency(s)
}
