package installer

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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	name     string
	body     string
	typeflag byte
	link     string
}

func gzipTar(t *testing.T, entries ...entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(zw)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: 0644, Size: int64(len(e.body)), Typeflag: e.typeflag, Linkname: e.link}
		if e.typeflag == 0 {
			hdr.Typeflag = tar.TypeReg
		}
		if hdr.Typeflag != tar.TypeReg {
			hdr.Size = 0
			hdr.Mode = 0755
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if hdr.Typeflag == tar.TypeReg {
			_, err := tw.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func writeArchive(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, data, 0644))
	return p
}

func TestTarInstallAndRemove(t *testing.T) {
	root := t.TempDir()
	archive := writeArchive(t, "app.pkg.tar.gz", gzipTar(t,
		entry{name: ".PKGINFO", body: "pkgname = app\n"},
		entry{name: ".MTREE", body: "x"},
		entry{name: "usr/", typeflag: tar.TypeDir},
		entry{name: "usr/bin/", typeflag: tar.TypeDir},
		entry{name: "usr/bin/app", body: "#!/bin/sh\necho hi\n"},
		entry{name: "usr/share/app/data.txt", body: "data"},
		entry{name: "usr/bin/app-link", typeflag: tar.TypeSymlink, link: "app"},
	))

	inst := NewTarInstaller(root)
	pkg := models.Package{Name: "app", Version: "1.0", Format: models.FormatPacman}

	files, err := inst.Install(context.Background(), pkg, archive)
	require.NoError(t, err)
	assert.Equal(t, []string{"usr/bin/app", "usr/share/app/data.txt", "usr/bin/app-link"}, files)

	assert.NoFileExists(t, filepath.Join(root, ".PKGINFO"))
	data, err := os.ReadFile(filepath.Join(root, "usr/bin/app"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "echo hi")
	target, err := os.Readlink(filepath.Join(root, "usr/bin/app-link"))
	require.NoError(t, err)
	assert.Equal(t, "app", target)

	// A file from another package keeps usr/ alive
	require.NoError(t, os.WriteFile(filepath.Join(root, "usr/other"), []byte("x"), 0644))

	pkg.Files = files
	require.NoError(t, inst.Remove(context.Background(), pkg))

	assert.NoFileExists(t, filepath.Join(root, "usr/bin/app"))
	assert.NoDirExists(t, filepath.Join(root, "usr/share"))
	assert.NoDirExists(t, filepath.Join(root, "usr/bin"))
	assert.FileExists(t, filepath.Join(root, "usr/other"))
	assert.DirExists(t, root)
}

func TestTarInstallConfinesHardLinks(t *testing.T) {
	// The link target is resolved inside root, where it does not exist
	root := t.TempDir()
	archive := writeArchive(t, "evil.apk", gzipTar(t,
		entry{name: "etc/passwd", typeflag: tar.TypeLink, link: "../../../etc/passwd"},
	))
	_, err := NewTarInstaller(root).Install(context.Background(), models.Package{Name: "evil", Version: "1"}, archive)
	assert.True(t, models.IsType(err, models.ErrIO))
}

func TestTarInstallRefusesWritesThroughSymlinks(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	archive := writeArchive(t, "evil.apk", gzipTar(t,
		entry{name: "usr/bin/tool", body: "tool"},
		entry{name: "lnk", typeflag: tar.TypeSymlink, link: outside},
		entry{name: "lnk/pwned", body: "owned"},
	))

	_, err := NewTarInstaller(root).Install(context.Background(), models.Package{Name: "evil", Version: "1"}, archive)
	assert.True(t, models.IsType(err, models.ErrIO), "got %v", err)
	assert.NoFileExists(t, filepath.Join(outside, "pwned"))

	// what was written before the failure is gone again
	assert.NoFileExists(t, filepath.Join(root, "usr/bin/tool"))
	_, err = os.Lstat(filepath.Join(root, "lnk"))
	assert.True(t, os.IsNotExist(err))
}

func TestTarInstallRejectsEscapingSymlinks(t *testing.T) {
	root := t.TempDir()
	archive := writeArchive(t, "evil.apk", gzipTar(t,
		entry{name: "usr/lib/up", typeflag: tar.TypeSymlink, link: "../../../etc"},
	))

	_, err := NewTarInstaller(root).Install(context.Background(), models.Package{Name: "evil", Version: "1"}, archive)
	assert.True(t, models.IsType(err, models.ErrIO), "got %v", err)
	_, err = os.Lstat(filepath.Join(root, "usr/lib/up"))
	assert.True(t, os.IsNotExist(err))
}

func TestTarListMatchesInstall(t *testing.T) {
	root := t.TempDir()
	archive := writeArchive(t, "app.apk", gzipTar(t,
		entry{name: ".PKGINFO", body: "pkgname = app\n"},
		entry{name: "usr/bin/", typeflag: tar.TypeDir},
		entry{name: "usr/bin/app", body: "app"},
		entry{name: "./usr/bin/app-link", typeflag: tar.TypeSymlink, link: "app"},
	))
	inst := NewTarInstaller(root)
	pkg := models.Package{Name: "app", Version: "1"}

	listed, err := inst.List(context.Background(), pkg, archive)
	require.NoError(t, err)
	assert.Equal(t, []string{"usr/bin/app", "usr/bin/app-link"}, listed)
	assert.NoDirExists(t, filepath.Join(root, "usr"))

	files, err := inst.Install(context.Background(), pkg, archive)
	require.NoError(t, err)
	assert.Equal(t, listed, files)
}

func TestRemoveMissingFilesIsNotAnError(t *testing.T) {
	pkg := models.Package{Name: "ghost", Version: "1", Files: []string{"usr/bin/ghost"}}
	assert.NoError(t, NewTarInstaller(t.TempDir()).Remove(context.Background(), pkg))
}

func buildDeb(t *testing.T, data []byte) string {
	t.Helper()
	var ar bytes.Buffer
	ar.WriteString("!<arch>\n")
	member := func(name string, body []byte) {
		fmt.Fprintf(&ar, "%-16s%-12s%-6s%-6s%-8s%-10d`\n", name, "0", "0", "0", "100644", len(body))
		ar.Write(body)
		if len(body)%2 != 0 {
			ar.WriteByte('\n')
		}
	}
	member("debian-binary", []byte("2.0\n"))
	member("control.tar.gz", gzipTar(t, entry{name: "./control", body: "Package: tool\nVersion: 1\n"}))
	member("data.tar.gz", data)
	return writeArchive(t, "tool_1_amd64.deb", ar.Bytes())
}

func TestDebInstall(t *testing.T) {
	root := t.TempDir()
	archive := buildDeb(t, gzipTar(t,
		entry{name: "./usr/bin/tool", body: "binary"},
	))

	files, err := NewDebInstaller(root).Install(context.Background(), models.Package{Name: "tool", Version: "1"}, archive)
	require.NoError(t, err)
	assert.Equal(t, []string{"usr/bin/tool"}, files)
	assert.FileExists(t, filepath.Join(root, "usr/bin/tool"))
}

func TestForRoot(t *testing.T) {
	installers := ForRoot("/tmp/root")
	for _, f := range []models.Format{models.FormatNative, models.FormatPacman, models.FormatApk, models.FormatDeb, models.FormatRpm} {
		assert.Contains(t, installers, f)
	}
	assert.NotContains(t, installers, models.FormatMsi)
}

// mapOpener serves URLs from memory
type mapOpener struct {
	data  map[string][]byte
	calls int
}

func (m *mapOpener) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	m.calls++
	d, ok := m.data[url]
	if !ok {
		return nil, fetch.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(d)), nil
}

func sha(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func TestDownloaderVerifiesAndCaches(t *testing.T) {
	body := []byte("archive bytes")
	op := &mapOpener{data: map[string][]byte{"https://example.com/app.pkg": body}}
	dl := NewDownloader(t.TempDir(), op)

	pkg := models.Package{
		Name: "app", Version: "1.0", Source: "main",
		URL: "https://example.com/app.pkg", Filename: "pool/app.pkg",
		Size: int64(len(body)), Checksum: sha(body), ChecksumType: "sha256",
	}

	p, err := dl.Download(context.Background(), pkg)
	require.NoError(t, err)
	assert.Equal(t, dl.Path(pkg), p)
	assert.Equal(t, "app.pkg", filepath.Base(p))

	_, err = dl.Download(context.Background(), pkg)
	require.NoError(t, err)
	assert.Equal(t, 1, op.calls, "second download should hit the cache")
}

func TestDownloaderChecksumMismatch(t *testing.T) {
	op := &mapOpener{data: map[string][]byte{"https://example.com/app.pkg": []byte("tampered")}}
	dl := NewDownloader(t.TempDir(), op)
	pkg := models.Package{
		Name: "app", Version: "1.0", Source: "main", URL: "https://example.com/app.pkg",
		Checksum: sha([]byte("original")), ChecksumType: "sha256",
	}

	_, err := dl.Download(context.Background(), pkg)
	assert.True(t, models.IsType(err, models.ErrSignature))
	assert.NoFileExists(t, dl.Path(pkg))
}

func TestDownloaderErrors(t *testing.T) {
	dl := NewDownloader(t.TempDir(), &mapOpener{})

	_, err := dl.Download(context.Background(), models.Package{Name: "nourl", Version: "1"})
	assert.True(t, models.IsType(err, models.ErrInvalidRequest))

	_, err = dl.Download(context.Background(), models.Package{Name: "gone", Version: "1", URL: "https://example.com/gone"})
	assert.True(t, models.IsType(err, models.ErrNetwork))
}
