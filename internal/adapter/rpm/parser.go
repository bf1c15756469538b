package rpm

import (
	"fmt"
	"os"
	"strings"

	"github.com/ralt/unipkg/internal/adapter"
	"github.com/ralt/unipkg/internal/models"
	"github.com/ralt/unipkg/internal/version"
	"github.com/sassoftware/go-rpmutils"
)

// RPMSENSE comparison bits
const (
	senseLess    = 0x02
	senseGreater = 0x04
	senseEqual   = 0x08
)

// ParsePackage parses an RPM file and extracts metadata
func ParsePackage(path string) (*models.Package, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// Read RPM header
	rpm, err := rpmutils.ReadRpm(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read RPM: %w", err)
	}

	name := getStringTag(rpm, rpmutils.NAME)
	pkg := &models.Package{
		Name: name,
		Version: EVR(
			getStringTag(rpm, rpmutils.EPOCH),
			getStringTag(rpm, rpmutils.VERSION),
			getStringTag(rpm, rpmutils.RELEASE),
		),
		Architecture:  getStringTag(rpm, rpmutils.ARCH),
		Format:        models.FormatRpm,
		Description:   getStringTag(rpm, rpmutils.SUMMARY),
		Maintainer:    getStringTag(rpm, rpmutils.PACKAGER),
		Homepage:      getStringTag(rpm, rpmutils.URL),
		License:       getStringTag(rpm, rpmutils.LICENSE),
		InstalledSize: getIntTag(rpm, rpmutils.SIZE),
		Provides:      withoutSelf(getStringSliceTag(rpm, rpmutils.PROVIDENAME), name),
		Conflicts:     withoutSelf(getStringSliceTag(rpm, rpmutils.CONFLICTNAME), name),
		Replaces:      withoutSelf(getStringSliceTag(rpm, rpmutils.OBSOLETENAME), name),
		Filename:      path,
		Metadata:      make(map[string]interface{}),
	}
	if name == "" {
		return nil, fmt.Errorf("RPM header has no name")
	}

	pkg.Dependencies = requirements(rpm)

	if files, err := rpm.Header.GetFiles(); err == nil {
		for _, fi := range files {
			pkg.Files = append(pkg.Files, fi.Name())
		}
	}

	pkg.Metadata["Group"] = getStringTag(rpm, rpmutils.GROUP)
	pkg.Metadata["BuildTime"] = getIntTag(rpm, rpmutils.BUILDTIME)

	if err := adapter.FileChecksums(pkg, path); err != nil {
		return nil, err
	}
	return pkg, nil
}

// requirements zips REQUIRENAME, REQUIREFLAGS and REQUIREVERSION
func requirements(rpm *rpmutils.Rpm) []models.Dependency {
	names := getRawStringSlice(rpm, rpmutils.REQUIRENAME)
	versions := getRawStringSlice(rpm, rpmutils.REQUIREVERSION)
	flags := getIntSliceTag(rpm, rpmutils.REQUIREFLAGS)

	var deps []models.Dependency
	seen := make(map[string]bool)
	for i, name := range names {
		if skipRequirement(name) {
			continue
		}
		dep := models.Dependency{Name: name}
		if i < len(versions) && versions[i] != "" && i < len(flags) {
			op, ok := senseOp(flags[i])
			if ok {
				dep.Constraint = &models.Constraint{Op: op, Version: versions[i]}
			}
		}
		key := dep.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		deps = append(deps, dep)
	}
	return deps
}

// senseOp maps RPMSENSE flag bits onto a comparison operator
func senseOp(flags int64) (models.Op, bool) {
	var token string
	switch flags & (senseLess | senseGreater | senseEqual) {
	case senseLess:
		token = "LT"
	case senseLess | senseEqual:
		token = "LE"
	case senseGreater:
		token = "GT"
	case senseGreater | senseEqual:
		token = "GE"
	case senseEqual:
		token = "EQ"
	default:
		return 0, false
	}
	op, err := version.ParseOp(token)
	return op, err == nil
}

func withoutSelf(names []string, self string) []string {
	var out []string
	for _, n := range names {
		if n != self && !skipRequirement(n) {
			out = append(out, n)
		}
	}
	return out
}

// getStringTag safely gets a string tag from RPM
func getStringTag(rpm *rpmutils.Rpm, tag int) string {
	val, err := rpm.Header.Get(tag)
	if err != nil {
		return ""
	}

	// Handle different types that might be returned
	switch v := val.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case []string:
		if len(v) > 0 {
			return v[0]
		}
	case []int:
		if len(v) > 0 {
			return fmt.Sprintf("%d", v[0])
		}
	case []uint32:
		if len(v) > 0 {
			return fmt.Sprintf("%d", v[0])
		}
	default:
		return fmt.Sprintf("%v", v)
	}

	return ""
}

// getIntTag safely gets an integer tag from RPM
func getIntTag(rpm *rpmutils.Rpm, tag int) int64 {
	vals := getIntSliceTag(rpm, tag)
	if len(vals) == 0 {
		return 0
	}
	return vals[0]
}

// getIntSliceTag returns integer tags whatever width the header stores
func getIntSliceTag(rpm *rpmutils.Rpm, tag int) []int64 {
	val, err := rpm.Header.Get(tag)
	if err != nil {
		return nil
	}
	var out []int64
	switch v := val.(type) {
	case int:
		out = append(out, int64(v))
	case int64:
		out = append(out, v)
	case []int:
		for _, i := range v {
			out = append(out, int64(i))
		}
	case []int32:
		for _, i := range v {
			out = append(out, int64(i))
		}
	case []uint32:
		for _, i := range v {
			out = append(out, int64(i))
		}
	case []int64:
		out = v
	case []uint64:
		for _, i := range v {
			out = append(out, int64(i))
		}
	}
	return out
}

// getRawStringSlice returns a string array tag keeping positions intact
func getRawStringSlice(rpm *rpmutils.Rpm, tag int) []string {
	val, err := rpm.Header.Get(tag)
	if err != nil {
		return nil
	}
	if slice, ok := val.([]string); ok {
		return slice
	}
	return nil
}

// getStringSliceTag safely gets a string slice tag from RPM
func getStringSliceTag(rpm *rpmutils.Rpm, tag int) []string {
	var result []string
	for _, s := range getRawStringSlice(rpm, tag) {
		s = strings.TrimSpace(s)
		if s != "" {
			result = append(result, s)
		}
	}
	return result
}
