package native

import (
	"fmt"
	"strings"

	"github.com/ralt/unipkg/internal/models"
	"github.com/ralt/unipkg/internal/version"
	"github.com/valyala/fastjson"
	"github.com/xeipuuv/gojsonschema"
)

// indexSchema describes packages.json
const indexSchema = `{
	"type": "object",
	"required": ["packages"],
	"properties": {
		"packages": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["name", "version"],
				"properties": {
					"name": {"type": "string", "minLength": 1},
					"version": {"type": "string", "minLength": 1},
					"arch": {"type": "string"},
					"description": {"type": "string"},
					"url": {"type": "string"},
					"license": {"type": "string"},
					"maintainer": {"type": "string"},
					"depends": {"type": "array", "items": {"type": "string"}},
					"conflicts": {"type": "array", "items": {"type": "string"}},
					"provides": {"type": "array", "items": {"type": "string"}},
					"replaces": {"type": "array", "items": {"type": "string"}},
					"files": {"type": "array", "items": {"type": "string"}},
					"size": {"type": "integer", "minimum": 0},
					"installed_size": {"type": "integer", "minimum": 0},
					"sha256": {"type": "string", "pattern": "^[0-9a-fA-F]{64}$"},
					"filename": {"type": "string"}
				}
			}
		}
	}
}`

var schema *gojsonschema.Schema

func init() {
	var err error
	schema, err = gojsonschema.NewSchema(gojsonschema.NewStringLoader(indexSchema))
	if err != nil {
		panic(fmt.Sprintf("invalid packages.json schema: %v", err))
	}
}

// validateIndex checks data against the packages.json schema
func validateIndex(data []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("failed to validate packages.json: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("invalid packages.json: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// parseIndex decodes a validated packages.json
func parseIndex(data []byte) ([]models.Package, error) {
	if err := validateIndex(data); err != nil {
		return nil, err
	}

	var p fastjson.Parser
	root, err := p.ParseBytes(data)
	if err != nil {
		return nil, err
	}

	entries := root.GetArray("packages")
	packages := make([]models.Package, 0, len(entries))
	for _, e := range entries {
		pkg := models.Package{
			Name:          string(e.GetStringBytes("name")),
			Version:       string(e.GetStringBytes("version")),
			Architecture:  string(e.GetStringBytes("arch")),
			Format:        models.FormatNative,
			Description:   string(e.GetStringBytes("description")),
			Homepage:      string(e.GetStringBytes("url")),
			License:       string(e.GetStringBytes("license")),
			Maintainer:    string(e.GetStringBytes("maintainer")),
			Conflicts:     stringList(e, "conflicts"),
			Provides:      stringList(e, "provides"),
			Replaces:      stringList(e, "replaces"),
			Files:         stringList(e, "files"),
			Size:          e.GetInt64("size"),
			InstalledSize: e.GetInt64("installed_size"),
			Filename:      string(e.GetStringBytes("filename")),
		}
		if sum := e.GetStringBytes("sha256"); len(sum) > 0 {
			pkg.Checksum = strings.ToLower(string(sum))
			pkg.ChecksumType = "sha256"
		}
		if pkg.Filename == "" {
			pkg.Filename = DefaultFilename(pkg)
		}

		deps, err := version.ParseDependencies(stringList(e, "depends"))
		if err != nil {
			return nil, fmt.Errorf("package %s: %w", pkg.Name, err)
		}
		pkg.Dependencies = deps

		packages = append(packages, pkg)
	}
	return packages, nil
}

func stringList(v *fastjson.Value, key string) []string {
	arr := v.GetArray(key)
	if len(arr) == 0 {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		out = append(out, string(item.GetStringBytes()))
	}
	return out
}

// DefaultFilename is the archive name a native repository publishes a
// record under: name-version-arch.pkg.tar.zst.
func DefaultFilename(pkg models.Package) string {
	arch := pkg.Architecture
	if arch == "" {
		arch = "any"
	}
	return fmt.Sprintf("%s-%s-%s.pkg.tar.zst", pkg.Name, pkg.Version, arch)
}
