package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ralt/unipkg/internal/models"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDetectFormat(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		data []byte
		want models.Format
	}{
		{"app_1.0_amd64.deb", []byte("!<arch>\ndebian-binary   "), models.FormatDeb},
		{"app.bin", []byte{0xED, 0xAB, 0xEE, 0xDB, 0x03}, models.FormatRpm},
		{"app-1.0-r0.apk", []byte{0x1F, 0x8B, 0x08}, models.FormatApk},
		{"app-1.0-1-x86_64.pkg.tar.zst", []byte{0x28, 0xB5, 0x2F, 0xFD}, models.FormatPacman},
		{"app-1.0-1-x86_64.pkg.tar.xz", []byte{0xFD, 0x37, 0x7A, 0x58, 0x5A, 0x00}, models.FormatPacman},
		{"Contoso.App.yaml", []byte("PackageIdentifier: Contoso.App\nPackageVersion: 1.0\n"), models.FormatMsi},
		{"config.yaml", []byte("key: value\n"), models.FormatUnknown},
		{"README", []byte("hello"), models.FormatUnknown},
		{"data.gz", []byte{0x1F, 0x8B, 0x08}, models.FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, tt.name, tt.data)
			got, err := DetectFormat(path)
			if err != nil {
				t.Fatalf("DetectFormat failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("DetectFormat(%s) = %s, want %s", tt.name, got, tt.want)
			}
		})
	}
}

func TestDetectFormatMissingFile(t *testing.T) {
	if _, err := DetectFormat(filepath.Join(t.TempDir(), "nope.deb")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestCompatible(t *testing.T) {
	if !Compatible(models.FormatPacman, models.FormatNative) {
		t.Error("pacman archives should be readable by native sources")
	}
	if !Compatible(models.FormatDeb, models.FormatDeb) {
		t.Error("identical formats are compatible")
	}
	if Compatible(models.FormatDeb, models.FormatRpm) {
		t.Error("deb is not rpm")
	}
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "pool/app_1.0_amd64.deb", []byte("!<arch>\ndebian-binary   "))
	writeFile(t, dir, "pool/nested/lib.rpm", []byte{0xED, 0xAB, 0xEE, 0xDB})
	writeFile(t, dir, "notes.txt", []byte("not a package"))

	found, err := NewFileSystemScanner().Scan(context.Background(), dir)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("Expected 2 packages, got %d: %+v", len(found), found)
	}
	for _, p := range found {
		if p.Size == 0 || p.Format == models.FormatUnknown {
			t.Errorf("Incomplete scan result %+v", p)
		}
	}
}

func TestScanCancelled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "app_1.0_amd64.deb", []byte("!<arch>\ndebian-binary   "))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewFileSystemScanner().Scan(ctx, dir); err == nil {
		t.Error("Expected cancellation error")
	}
}

func TestScanSkipsHiddenAndSorts(t *testing.T) {
	dir := t.TempDir()
	deb := []byte("!<arch>\ndebian-binary   ")
	writeFile(t, dir, "b_1.0_amd64.deb", deb)
	writeFile(t, dir, "a_1.0_amd64.deb", deb)
	writeFile(t, dir, ".c_1.0_amd64.deb.tmp-123", deb)
	writeFile(t, dir, ".cache/d_1.0_amd64.deb", deb)

	found, err := NewFileSystemScanner().Scan(context.Background(), dir)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("Expected 2 packages, got %+v", found)
	}
	if filepath.Base(found[0].Path) != "a_1.0_amd64.deb" || filepath.Base(found[1].Path) != "b_1.0_amd64.deb" {
		t.Errorf("Results not sorted: %+v", found)
	}
}
