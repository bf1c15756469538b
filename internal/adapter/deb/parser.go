package deb

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ralt/unipkg/internal/adapter"
	"github.com/ralt/unipkg/internal/models"
	"github.com/ralt/unipkg/internal/version"
)

// ParsePackage parses a .deb file and extracts metadata
func ParsePackage(path string) (*models.Package, error) {
	// Extract control file from the .deb
	control, err := extractControl(path)
	if err != nil {
		return nil, fmt.Errorf("failed to extract control: %w", err)
	}

	pkgs, err := parseStanzas(bytes.NewReader(control))
	if err != nil {
		return nil, fmt.Errorf("failed to parse control: %w", err)
	}
	if len(pkgs) == 0 {
		return nil, fmt.Errorf("empty control file")
	}

	pkg := &pkgs[0]
	pkg.Format = models.FormatDeb
	pkg.Filename = path
	if err := adapter.FileChecksums(pkg, path); err != nil {
		return nil, err
	}

	return pkg, nil
}

// ArMember is one entry of an ar archive.
type ArMember struct {
	Name string
	Size int64
}

// WalkAr calls fn for each member of the ar archive at path, with a reader
// limited to the member's data. Returning true from fn stops the walk.
func WalkAr(path string, fn func(m ArMember, r io.Reader) (bool, error)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	// .deb files are ar archives
	magic := make([]byte, 8)
	if _, err := io.ReadFull(f, magic); err != nil {
		return err
	}
	if string(magic) != "!<arch>\n" {
		return fmt.Errorf("not an ar archive")
	}

	for {
		// Read ar header (60 bytes)
		arHeader := make([]byte, 60)
		_, err := io.ReadFull(f, arHeader)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read ar header: %w", err)
		}

		// Filename is space-padded and may carry a trailing slash
		name := strings.TrimRight(strings.TrimSpace(string(arHeader[0:16])), "/")
		size, err := strconv.ParseInt(strings.TrimSpace(string(arHeader[48:58])), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid ar member size for %s", name)
		}

		start, err := f.Seek(0, io.SeekCurrent)
		if err != nil {
			return err
		}
		// Every member must move the walk forward and end inside the file
		if size < 0 || size > info.Size()-start {
			return fmt.Errorf("invalid ar member size %d for %s", size, name)
		}

		done, err := fn(ArMember{Name: name, Size: size}, io.LimitReader(f, size))
		if err != nil || done {
			return err
		}

		// Members are 2-byte aligned
		next := start + size
		if size%2 != 0 {
			next++
		}
		if _, err := f.Seek(next, io.SeekStart); err != nil {
			return err
		}
	}
}

// extractControl extracts the control file from a .deb package
func extractControl(path string) ([]byte, error) {
	var control []byte
	err := WalkAr(path, func(m ArMember, r io.Reader) (bool, error) {
		if !strings.HasPrefix(m.Name, "control.tar") {
			return false, nil
		}
		data, err := adapter.ReadTarMember(r, adapter.MemberNamed("control"))
		if err != nil {
			return true, fmt.Errorf("control file not found in %s: %w", m.Name, err)
		}
		control = data
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if control == nil {
		return nil, fmt.Errorf("control.tar not found in package")
	}
	return control, nil
}

// parseStanzas parses a Packages index or a control file: RFC822-like
// stanzas separated by blank lines.
func parseStanzas(r io.Reader) ([]models.Package, error) {
	var packages []models.Package
	fields := make(map[string]string)
	var order []string
	var currentKey string

	flush := func() error {
		if len(fields) == 0 {
			return nil
		}
		pkg, err := stanzaToPackage(fields, order)
		if err != nil {
			return err
		}
		packages = append(packages, *pkg)
		fields = make(map[string]string)
		order = nil
		currentKey = ""
		return nil
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()

		// Empty line = end of package entry
		if strings.TrimSpace(line) == "" {
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}

		// Handle continuation lines (start with space)
		if line[0] == ' ' || line[0] == '\t' {
			if currentKey != "" {
				cont := strings.TrimSpace(line)
				if cont == "." {
					cont = ""
				}
				fields[currentKey] += "\n" + cont
			}
			continue
		}

		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		currentKey = strings.TrimSpace(parts[0])
		if _, seen := fields[currentKey]; !seen {
			order = append(order, currentKey)
		}
		fields[currentKey] = strings.TrimSpace(parts[1])
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}

	return packages, nil
}

// stanzaToPackage maps control fields onto a package record
func stanzaToPackage(fields map[string]string, order []string) (*models.Package, error) {
	pkg := &models.Package{
		Format:   models.FormatDeb,
		Metadata: make(map[string]interface{}),
	}

	for _, key := range order {
		value := fields[key]
		switch key {
		case "Package":
			pkg.Name = value
		case "Version":
			pkg.Version = value
		case "Architecture":
			pkg.Architecture = value
		case "Description":
			pkg.Description = value
		case "Maintainer":
			pkg.Maintainer = value
		case "Homepage":
			pkg.Homepage = value
		case "License":
			pkg.License = value
		case "Filename":
			pkg.Filename = value
		case "Size":
			size, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("package %s: invalid Size %q", fields["Package"], value)
			}
			pkg.Size = size
		case "Installed-Size":
			// Debian reports kibibytes
			kb, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("package %s: invalid Installed-Size %q", fields["Package"], value)
			}
			pkg.InstalledSize = kb * 1024
		case "SHA256":
			pkg.Checksum = value
			pkg.ChecksumType = "sha256"
		case "Depends", "Pre-Depends":
			deps, err := parseRelations(value)
			if err != nil {
				return nil, fmt.Errorf("package %s: %w", fields["Package"], err)
			}
			pkg.Dependencies = append(pkg.Dependencies, deps...)
		case "Conflicts", "Breaks":
			pkg.Conflicts = append(pkg.Conflicts, relationNames(value)...)
		case "Provides":
			pkg.Provides = append(pkg.Provides, relationNames(value)...)
		case "Replaces":
			pkg.Replaces = append(pkg.Replaces, relationNames(value)...)
		default:
			pkg.Metadata[key] = value
		}
	}

	// Keep the weakest available checksum when no SHA256 is published
	if pkg.Checksum == "" {
		if md5, ok := fields["MD5sum"]; ok {
			pkg.Checksum = md5
			pkg.ChecksumType = "md5"
		}
	}

	if pkg.Name == "" || pkg.Version == "" {
		return nil, fmt.Errorf("stanza without Package or Version")
	}
	return pkg, nil
}

// parseRelations parses a Depends-style field: comma separated relations,
// each possibly a "|" list of alternatives of which the first is used.
func parseRelations(value string) ([]models.Dependency, error) {
	var deps []models.Dependency
	for _, rel := range strings.Split(value, ",") {
		rel = firstAlternative(rel)
		if rel == "" {
			continue
		}
		dep, err := version.ParseDependency(rel)
		if err != nil {
			return nil, err
		}
		dep.Name = stripArchQualifier(dep.Name)
		deps = append(deps, dep)
	}
	return deps, nil
}

// relationNames returns bare names from a relation field, ignoring versions.
func relationNames(value string) []string {
	var names []string
	for _, rel := range strings.Split(value, ",") {
		rel = firstAlternative(rel)
		if rel == "" {
			continue
		}
		names = append(names, stripArchQualifier(adapter.NameOnly(strings.Split(rel, "(")[0])))
	}
	return names
}

func firstAlternative(rel string) string {
	rel = strings.TrimSpace(strings.SplitN(rel, "|", 2)[0])
	// Drop architecture restrictions such as "[amd64]"
	if i := strings.Index(rel, "["); i >= 0 {
		rel = strings.TrimSpace(rel[:i])
	}
	return rel
}

// stripArchQualifier removes multiarch suffixes like ":any".
func stripArchQualifier(name string) string {
	if i := strings.Index(name, ":"); i >= 0 {
		return name[:i]
	}
	return name
}
