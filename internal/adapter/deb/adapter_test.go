package deb

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/ralt/unipkg/internal/fetch"
	"github.com/ralt/unipkg/internal/models"
)

const packagesIndex = `Package: app
Version: 1.0-1
Architecture: amd64
Maintainer: Jane Doe <jane@example.com>
Installed-Size: 12
Depends: libfoo (>= 2.0), libc6:any (>= 2.34) | libc-alt, dpkg
Pre-Depends: init-system-helpers (>= 1.54~)
Conflicts: app-legacy (<< 1.0)
Provides: app-virtual
Replaces: app-old
Filename: pool/main/a/app/app_1.0-1_amd64.deb
Size: 4096
SHA256: deadbeef
Homepage: https://example.com/app
Description: An application
 Longer description line.
 .
 Final paragraph.

Package: libfoo
Version: 2.1
Architecture: amd64
Filename: pool/main/l/libfoo/libfoo_2.1_amd64.deb
Size: 100
MD5sum: 0123
Description: foo library
`

type mapGetter map[string][]byte

func (m mapGetter) Get(ctx context.Context, url string) ([]byte, error) {
	if data, ok := m[url]; ok {
		return data, nil
	}
	return nil, fmt.Errorf("%s: %w", url, fetch.ErrNotFound)
}

func gz(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		t.Fatalf("gzip: %v", err)
	}
	zw.Close()
	return buf.Bytes()
}

func TestParsePackagesIndex(t *testing.T) {
	pkgs, err := New().Parse([]byte(packagesIndex))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(pkgs) != 2 {
		t.Fatalf("Expected 2 packages, got %d", len(pkgs))
	}

	app := pkgs[0]
	if app.Name != "app" || app.Version != "1.0-1" {
		t.Errorf("Unexpected identity %s", app)
	}
	if app.InstalledSize != 12*1024 {
		t.Errorf("Installed-Size should be converted to bytes, got %d", app.InstalledSize)
	}
	if app.Size != 4096 || app.Checksum != "deadbeef" || app.ChecksumType != "sha256" {
		t.Errorf("Unexpected file info: size=%d checksum=%s/%s", app.Size, app.ChecksumType, app.Checksum)
	}

	want := []string{"libfoo>=2.0", "libc6>=2.34", "dpkg", "init-system-helpers>=1.54~"}
	if len(app.Dependencies) != len(want) {
		t.Fatalf("Expected %d dependencies, got %v", len(want), app.Dependencies)
	}
	for i, w := range want {
		if got := app.Dependencies[i].String(); got != w {
			t.Errorf("Dependency %d: expected %s, got %s", i, w, got)
		}
	}

	if len(app.Conflicts) != 1 || app.Conflicts[0] != "app-legacy" {
		t.Errorf("Unexpected conflicts %v", app.Conflicts)
	}
	if !app.ProvidesName("app-virtual") || !app.ReplacesName("app-old") {
		t.Errorf("Provides/Replaces not parsed: %v %v", app.Provides, app.Replaces)
	}
	if app.Description != "An application\nLonger description line.\n\nFinal paragraph." {
		t.Errorf("Unexpected description %q", app.Description)
	}

	lib := pkgs[1]
	if lib.ChecksumType != "md5" || lib.Checksum != "0123" {
		t.Errorf("Expected md5 fallback, got %s/%s", lib.ChecksumType, lib.Checksum)
	}
}

func TestParseCompressedIndex(t *testing.T) {
	pkgs, err := New().Parse(gz(t, []byte(packagesIndex)))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(pkgs) != 2 {
		t.Errorf("Expected 2 packages, got %d", len(pkgs))
	}
}

func TestParseRejectsBadStanza(t *testing.T) {
	_, err := New().Parse([]byte("Package: x\nVersion: 1\nSize: big\n"))
	if !models.IsType(err, models.ErrParse) {
		t.Fatalf("Expected parse error, got %v", err)
	}
}

func TestSyncDistsLayout(t *testing.T) {
	index := gz(t, []byte(packagesIndex))
	get := mapGetter{
		"https://deb.example.com/dists/stable/main/binary-amd64/Packages.gz": index,
	}
	src := models.Source{
		Name:         "main",
		URL:          "https://deb.example.com/",
		Format:       models.FormatDeb,
		Distribution: "stable",
	}

	pkgs, err := New().Sync(context.Background(), src, get)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if len(pkgs) != 2 {
		t.Fatalf("Expected 2 packages, got %d", len(pkgs))
	}
	if pkgs[0].URL != "https://deb.example.com/pool/main/a/app/app_1.0-1_amd64.deb" {
		t.Errorf("Unexpected download URL %s", pkgs[0].URL)
	}
}

func TestSyncFlatMissingIndex(t *testing.T) {
	src := models.Source{Name: "flat", URL: "https://deb.example.com/flat", Format: models.FormatDeb}
	_, err := New().Sync(context.Background(), src, mapGetter{})
	if !models.IsType(err, models.ErrNetwork) {
		t.Fatalf("Expected network error, got %v", err)
	}
}

func TestParseReleaseAndCheckIndex(t *testing.T) {
	index := []byte(packagesIndex)
	sum := sha256.Sum256(index)
	release := fmt.Sprintf("Origin: Test\nCodename: stable\nSHA256:\n %s %d main/binary-amd64/Packages\n",
		hex.EncodeToString(sum[:]), len(index))

	rel, err := ParseRelease([]byte(release))
	if err != nil {
		t.Fatalf("ParseRelease failed: %v", err)
	}
	if rel.Fields["Codename"] != "stable" {
		t.Errorf("Codename not parsed: %v", rel.Fields)
	}
	if err := checkIndex(rel, "main/binary-amd64/Packages", index); err != nil {
		t.Errorf("Index should verify: %v", err)
	}
	if err := checkIndex(rel, "main/binary-amd64/Packages", append(index, 'x')); err == nil {
		t.Errorf("Tampered index should fail")
	}
	if err := checkIndex(rel, "main/binary-i386/Packages", index); err == nil {
		t.Errorf("Unlisted index should fail")
	}
}

// buildDeb writes a minimal .deb with the given control file
func buildDeb(t *testing.T, control string) string {
	t.Helper()

	var tarBuf bytes.Buffer
	zw := gzip.NewWriter(&tarBuf)
	tw := tar.NewWriter(zw)
	hdr := &tar.Header{Name: "./control", Mode: 0644, Size: int64(len(control)), Typeflag: tar.TypeReg}
	if err := tw.WriteHeader(hdr); err != nil {
		t.Fatalf("tar header: %v", err)
	}
	tw.Write([]byte(control))
	tw.Close()
	zw.Close()

	var ar bytes.Buffer
	ar.WriteString("!<arch>\n")
	writeMember := func(name string, data []byte) {
		fmt.Fprintf(&ar, "%-16s%-12s%-6s%-6s%-8s%-10d`\n", name, "0", "0", "0", "100644", len(data))
		ar.Write(data)
		if len(data)%2 != 0 {
			ar.WriteByte('\n')
		}
	}
	writeMember("debian-binary", []byte("2.0\n"))
	writeMember("control.tar.gz", tarBuf.Bytes())
	writeMember("data.tar.gz", gz(t, nil))

	path := filepath.Join(t.TempDir(), "app_1.0_amd64.deb")
	if err := os.WriteFile(path, ar.Bytes(), 0644); err != nil {
		t.Fatalf("write deb: %v", err)
	}
	return path
}

func TestParseFile(t *testing.T) {
	path := buildDeb(t, "Package: app\nVersion: 1.0\nArchitecture: amd64\nDepends: libfoo (>= 2)\nDescription: test\n")

	pkg, err := New().ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}
	if pkg.Name != "app" || pkg.Version != "1.0" {
		t.Errorf("Unexpected identity %s", pkg)
	}
	if pkg.Format != models.FormatDeb {
		t.Errorf("Expected deb format, got %s", pkg.Format)
	}
	if pkg.Filename != path || pkg.Size == 0 || pkg.ChecksumType != "sha256" {
		t.Errorf("File info not set: %+v", pkg)
	}
	if len(pkg.Dependencies) != 1 || pkg.Dependencies[0].String() != "libfoo>=2" {
		t.Errorf("Unexpected dependencies %v", pkg.Dependencies)
	}
}

func TestParseFileNotDeb(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bogus.deb")
	os.WriteFile(path, []byte("not an archive"), 0644)
	if _, err := New().ParseFile(path); err == nil {
		t.Fatal("Expected error for non-ar file")
	}
}

func TestWalkArRejectsBadMemberSizes(t *testing.T) {
	for _, size := range []string{"-60", "4096"} {
		var ar bytes.Buffer
		ar.WriteString("!<arch>\n")
		fmt.Fprintf(&ar, "%-16s%-12s%-6s%-6s%-8s%-10s`\n", "debian-binary", "0", "0", "0", "100644", size)
		ar.WriteString("2.0\n")

		path := filepath.Join(t.TempDir(), "broken.deb")
		if err := os.WriteFile(path, ar.Bytes(), 0644); err != nil {
			t.Fatalf("write deb: %v", err)
		}

		calls := 0
		err := WalkAr(path, func(m ArMember, r io.Reader) (bool, error) {
			calls++
			return false, nil
		})
		if err == nil {
			t.Errorf("size %s: expected an error", size)
		}
		if calls != 0 {
			t.Errorf("size %s: callback invoked %d times", size, calls)
		}
		if _, err := New().ParseFile(path); err == nil {
			t.Errorf("size %s: ParseFile should fail", size)
		}
	}
}
