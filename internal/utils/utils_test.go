package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/ralt/unipkg/internal/models"
	"github.com/ulikunitz/xz"
)

func TestDecompressByMagic(t *testing.T) {
	payload := []byte("Package: curl\nVersion: 7.88.1\n")

	gz, err := GzipCompress(payload)
	if err != nil {
		t.Fatalf("GzipCompress failed: %v", err)
	}
	zs, err := ZstdCompress(payload)
	if err != nil {
		t.Fatalf("ZstdCompress failed: %v", err)
	}
	var xzBuf bytes.Buffer
	xw, err := xz.NewWriter(&xzBuf)
	if err != nil {
		t.Fatalf("xz.NewWriter failed: %v", err)
	}
	xw.Write(payload)
	xw.Close()

	inputs := map[string][]byte{
		"plain": payload,
		"gzip":  gz,
		"zstd":  zs,
		"xz":    xzBuf.Bytes(),
	}

	for name, data := range inputs {
		got, err := Decompress(data)
		if err != nil {
			t.Fatalf("%s: Decompress failed: %v", name, err)
		}
		if !bytes.Equal(got, payload) {
			t.Errorf("%s: got %q, want %q", name, got, payload)
		}
	}
}

func TestDecompressShortInput(t *testing.T) {
	got, err := Decompress([]byte("ab"))
	if err != nil {
		t.Fatalf("Decompress failed: %v", err)
	}
	if string(got) != "ab" {
		t.Errorf("got %q", got)
	}
}

func TestVerifyChecksum(t *testing.T) {
	data := []byte("hello")
	sum, err := CalculateChecksum(data, "sha256")
	if err != nil {
		t.Fatalf("CalculateChecksum failed: %v", err)
	}
	if sum != "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824" {
		t.Errorf("unexpected sha256 %s", sum)
	}

	if err := VerifyChecksum(data, "SHA256", sum); err != nil {
		t.Errorf("VerifyChecksum failed: %v", err)
	}
	if err := VerifyChecksum([]byte("other"), "sha256", sum); err == nil {
		t.Errorf("expected mismatch error")
	}
	if _, err := CalculateChecksum(data, "crc32"); err == nil {
		t.Errorf("expected unsupported checksum type error")
	}
}

func TestVerifyFileChecksum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	sums, err := CalculateChecksums(path)
	if err != nil {
		t.Fatalf("CalculateChecksums failed: %v", err)
	}
	if sums.Size != 5 {
		t.Errorf("size = %d, want 5", sums.Size)
	}
	if err := VerifyFileChecksum(path, "md5", sums.MD5); err != nil {
		t.Errorf("md5 verify failed: %v", err)
	}
	if err := VerifyFileChecksum(path, "sha512", sums.SHA256); err == nil {
		t.Errorf("expected mismatch for wrong digest")
	}
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "state.json")

	if err := WriteFileAtomic(path, []byte("one"), 0644); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if err := WriteFileAtomic(path, []byte("two"), 0644); err != nil {
		t.Fatalf("second write failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "two" {
		t.Errorf("content = %q, want two", data)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("expected no leftover temp files, found %d entries", len(entries))
	}
}

func TestSafeJoin(t *testing.T) {
	root := "/tmp/root"
	good := map[string]string{
		"usr/bin/curl":   "/tmp/root/usr/bin/curl",
		"./etc/conf":     "/tmp/root/etc/conf",
		"/opt/x":         "/tmp/root/opt/x",
		"a/../b":         "/tmp/root/b",
		"../../etc/pass": "/tmp/root/etc/pass",
	}
	for in, want := range good {
		got, err := SafeJoin(root, in)
		if err != nil {
			t.Errorf("SafeJoin(%q) failed: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("SafeJoin(%q) = %q, want %q", in, got, want)
		}
	}

	if _, err := SafeJoin(root, "./"); err == nil {
		t.Errorf("expected error for empty member name")
	}
}

func TestCheckParents(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "usr/lib"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(outside, filepath.Join(root, "usr/link")); err != nil {
		t.Fatal(err)
	}

	for _, ok := range []string{"top", "usr/lib/libfoo.so", "usr/lib/new/dir/file", "usr/link"} {
		if err := CheckParents(root, filepath.Join(root, ok)); err != nil {
			t.Errorf("CheckParents(%q) failed: %v", ok, err)
		}
	}
	for _, bad := range []string{"usr/link/pwned", "usr/link/a/b"} {
		if err := CheckParents(root, filepath.Join(root, bad)); err == nil {
			t.Errorf("CheckParents(%q) should fail", bad)
		}
	}
}

func TestDetectDuplicates(t *testing.T) {
	existing := []models.Package{
		{Name: "curl", Version: "7.88.1", Architecture: "amd64", Format: models.FormatDeb},
	}
	incoming := []models.Package{
		{Name: "curl", Version: "7.88.1", Architecture: "amd64", Format: models.FormatDeb},
		{Name: "curl", Version: "7.88.1", Architecture: "arm64", Format: models.FormatDeb},
	}

	dups := DetectDuplicates(existing, incoming)
	if len(dups) != 1 || dups[0].Architecture != "amd64" {
		t.Errorf("unexpected duplicates: %+v", dups)
	}
}
