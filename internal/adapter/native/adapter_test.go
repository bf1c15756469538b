package native

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/ralt/unipkg/internal/fetch"
	"github.com/ralt/unipkg/internal/models"
)

const index = `{
  "packages": [
    {
      "name": "app",
      "version": "1.0",
      "arch": "x86_64",
      "description": "An application",
      "license": "MIT",
      "depends": ["lib>=2.0", "base"],
      "provides": ["app-virtual"],
      "size": 2048,
      "installed_size": 8192,
      "sha256": "9F86D081884C7D659A2FEAA0C55AD015A3BF4F1B2B0B822CD15D6C15B0F00A08"
    },
    {
      "name": "lib",
      "version": "2.1",
      "filename": "pool/lib-2.1.pkg.tar.zst"
    }
  ]
}`

type mapGetter map[string][]byte

func (m mapGetter) Get(ctx context.Context, url string) ([]byte, error) {
	if data, ok := m[url]; ok {
		return data, nil
	}
	return nil, fmt.Errorf("%s: %w", url, fetch.ErrNotFound)
}

func TestParseIndex(t *testing.T) {
	pkgs, err := New().Parse([]byte(index))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(pkgs) != 2 {
		t.Fatalf("Expected 2 packages, got %d", len(pkgs))
	}

	app := pkgs[0]
	if app.Filename != "app-1.0-x86_64.pkg.tar.zst" {
		t.Errorf("Expected default filename, got %s", app.Filename)
	}
	if app.Checksum != strings.ToLower(app.Checksum) || app.ChecksumType != "sha256" {
		t.Errorf("Checksum should be normalized: %s/%s", app.ChecksumType, app.Checksum)
	}
	if len(app.Dependencies) != 2 || app.Dependencies[0].String() != "lib>=2.0" {
		t.Errorf("Unexpected dependencies %v", app.Dependencies)
	}
	if !app.ProvidesName("app-virtual") || app.InstalledSize != 8192 {
		t.Errorf("Unexpected record %+v", app)
	}
	if pkgs[1].Filename != "pool/lib-2.1.pkg.tar.zst" {
		t.Errorf("Explicit filename should win, got %s", pkgs[1].Filename)
	}
}

func TestParseIndexSchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{"packages": [`},
		{"missing packages", `{"items": []}`},
		{"missing version", `{"packages": [{"name": "app"}]}`},
		{"negative size", `{"packages": [{"name": "app", "version": "1", "size": -1}]}`},
		{"bad checksum", `{"packages": [{"name": "app", "version": "1", "sha256": "xyz"}]}`},
		{"depends not strings", `{"packages": [{"name": "app", "version": "1", "depends": [1]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New().Parse([]byte(tt.data)); !models.IsType(err, models.ErrParse) {
				t.Errorf("Expected parse error, got %v", err)
			}
		})
	}
}

func TestSync(t *testing.T) {
	get := mapGetter{"file:///srv/repo/packages.json": []byte(index)}
	src := models.Source{Name: "local", URL: "file:///srv/repo", Format: models.FormatNative}

	pkgs, err := New().Sync(context.Background(), src, get)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if pkgs[0].URL != "file:///srv/repo/app-1.0-x86_64.pkg.tar.zst" {
		t.Errorf("Unexpected URL %s", pkgs[0].URL)
	}
}

func TestSyncMissingIndex(t *testing.T) {
	src := models.Source{Name: "gone", URL: "https://example.com/repo", Format: models.FormatNative}
	if _, err := New().Sync(context.Background(), src, mapGetter{}); !models.IsType(err, models.ErrNetwork) {
		t.Fatalf("Expected network error, got %v", err)
	}
}

func TestParseFile(t *testing.T) {
	var buf bytes.Buffer
	zw, _ := zstd.NewWriter(&buf)
	tw := tar.NewWriter(zw)
	pkginfo := "pkgname = tool\npkgver = 0.3\narch = any\ndepend = lib>=2.0\nreplaces = tool-old\n"
	tw.WriteHeader(&tar.Header{Name: ".PKGINFO", Mode: 0644, Size: int64(len(pkginfo)), Typeflag: tar.TypeReg})
	tw.Write([]byte(pkginfo))
	tw.Close()
	zw.Close()

	path := filepath.Join(t.TempDir(), "tool-0.3-any.pkg.tar.zst")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	pkg, err := New().ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}
	if pkg.Name != "tool" || pkg.Format != models.FormatNative || !pkg.ReplacesName("tool-old") {
		t.Errorf("Unexpected record %+v", pkg)
	}
}
