package cli

import (
	"archive/tar"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/ralt/unipkg/internal/ledger"
	"github.com/ralt/unipkg/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeNativePackage builds name-ver-any.pkg.tar.zst in dir holding a
// .PKGINFO plus the given files.
func writeNativePackage(t *testing.T, dir, name, ver, pkginfoExtra string, files map[string]string) {
	t.Helper()

	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	tw := tar.NewWriter(zw)

	add := func(path, content string) {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     path,
			Mode:     0644,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}

	add(".PKGINFO", fmt.Sprintf("pkgname = %s\npkgver = %s\npkgdesc = %s package\narch = any\nlicense = MIT\n%s",
		name, ver, name, pkginfoExtra))
	for path, content := range files {
		add(path, content)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, zw.Close())

	file := filepath.Join(dir, fmt.Sprintf("%s-%s-any.pkg.tar.zst", name, ver))
	require.NoError(t, os.WriteFile(file, buf.Bytes(), 0644))
}

type env struct {
	root   string
	config string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	base := t.TempDir()
	pkgs := filepath.Join(base, "pkgs")
	require.NoError(t, os.MkdirAll(pkgs, 0755))

	writeNativePackage(t, pkgs, "lib", "2.1", "", map[string]string{"usr/lib/libfoo.so": "lib 2.1"})
	writeNativePackage(t, pkgs, "lib", "1.9", "", map[string]string{"usr/lib/libfoo.so": "lib 1.9"})
	writeNativePackage(t, pkgs, "app", "1.0", "depend = lib>=2.0\n", map[string]string{"usr/bin/app": "#!/bin/sh\n"})

	root := filepath.Join(base, "root")
	config := filepath.Join(base, "unipkg.toml")
	require.NoError(t, os.WriteFile(config, []byte(fmt.Sprintf(`
root = %q
cache_dir = "/var/cache/unipkg"
db_dir = "/var/lib/unipkg"
parallel_downloads = 2

[[source]]
name = "local"
url = %q
format = "native"
`, root, pkgs)), 0644))

	return &env{root: root, config: config}
}

func (e *env) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", e.config}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestEndToEnd(t *testing.T) {
	e := newEnv(t)

	out, err := e.run(t, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "3 packages")

	out, err = e.run(t, "search", "APP")
	require.NoError(t, err)
	assert.Contains(t, out, "local/app 1.0")
	assert.NotContains(t, out, "lib")

	out, err = e.run(t, "install", "--dry-run", "app")
	require.NoError(t, err)
	assert.Contains(t, out, "install  lib 2.1")
	assert.Contains(t, out, "install  app 1.0")
	assert.NoFileExists(t, filepath.Join(e.root, "usr/bin/app"))

	out, err = e.run(t, "install", "app")
	require.NoError(t, err)
	assert.Contains(t, out, "Done.")

	content, err := os.ReadFile(filepath.Join(e.root, "usr/lib/libfoo.so"))
	require.NoError(t, err)
	assert.Equal(t, "lib 2.1", string(content))
	assert.FileExists(t, filepath.Join(e.root, "usr/bin/app"))

	out, err = e.run(t, "list")
	require.NoError(t, err)
	assert.Equal(t, "app 1.0 (native)\nlib 2.1 (native)\n", out)

	out, err = e.run(t, "info", "app")
	require.NoError(t, err)
	assert.Contains(t, out, "Depends:         lib>=2.0")
	assert.Contains(t, out, "Installed:       1.0 (1 files)")
	assert.Contains(t, out, "PURL:")

	out, err = e.run(t, "upgrade")
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing to do.")

	_, err = e.run(t, "remove", "lib")
	assert.True(t, models.IsType(err, models.ErrDependency), "got %v", err)

	_, err = e.run(t, "remove", "app", "lib")
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(e.root, "usr/bin/app"))
	assert.NoDirExists(t, filepath.Join(e.root, "usr/lib"))

	out, err = e.run(t, "list")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestInstallUnknownPackage(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, "sync")
	require.NoError(t, err)

	_, err = e.run(t, "install", "nope")
	assert.True(t, models.IsType(err, models.ErrPackageNotFound), "got %v", err)
}

func TestInstallBadRequest(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, "install", "app>=")
	assert.True(t, models.IsType(err, models.ErrInvalidRequest), "got %v", err)
}

func TestRemoveNotInstalled(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, "remove", "app")
	assert.True(t, models.IsType(err, models.ErrNotInstalled), "got %v", err)
}

func TestSources(t *testing.T) {
	e := newEnv(t)

	out, err := e.run(t, "sources")
	require.NoError(t, err)
	assert.Contains(t, out, "not synced")

	_, err = e.run(t, "update")
	require.NoError(t, err)

	out, err = e.run(t, "sources")
	require.NoError(t, err)
	assert.Contains(t, out, "local")
	assert.Contains(t, out, "native")
	assert.Contains(t, out, "3 packages")
}

func TestRootFlagOverridesConfig(t *testing.T) {
	e := newEnv(t)
	other := t.TempDir()

	_, err := e.run(t, "--root", other, "sync")
	require.NoError(t, err)
	_, err = e.run(t, "--root", other, "install", "lib")
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(other, "usr/lib/libfoo.so"))
	assert.NoFileExists(t, filepath.Join(e.root, "usr/lib/libfoo.so"))
}

func TestMissingConfig(t *testing.T) {
	e := &env{config: filepath.Join(t.TempDir(), "absent.toml")}
	_, err := e.run(t, "list")
	assert.True(t, models.IsType(err, models.ErrInvalidConfig), "got %v", err)
}

func TestInfoUnknownPackage(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, "info", "nope")
	assert.True(t, models.IsType(err, models.ErrPackageNotFound), "got %v", err)
}

func TestInstallFailsWhileLocked(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, "sync")
	require.NoError(t, err)

	lock, err := ledger.AcquireLock(filepath.Join(e.root, "var/lib/unipkg"))
	require.NoError(t, err)

	// planning alone does not need the lock
	_, err = e.run(t, "install", "--dry-run", "lib")
	require.NoError(t, err)

	_, err = e.run(t, "install", "lib")
	assert.True(t, models.IsType(err, models.ErrIO), "got %v", err)
	assert.NoFileExists(t, filepath.Join(e.root, "usr/lib/libfoo.so"))

	require.NoError(t, lock.Release())
	_, err = e.run(t, "install", "lib")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(e.root, "usr/lib/libfoo.so"))
}
