// Package installer downloads package archives and applies them to a root
// directory.
package installer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/ralt/unipkg/internal/models"
	"github.com/ralt/unipkg/internal/utils"
	"github.com/sirupsen/logrus"
)

// Opener streams a URL. fetch.Fetcher and fetch.BreakerGetter satisfy it.
type Opener interface {
	Open(ctx context.Context, rawURL string) (io.ReadCloser, error)
}

// Downloader stores archives under <cacheDir>/<source>/ and verifies their
// checksum.
type Downloader struct {
	cacheDir string
	opener   Opener
}

// NewDownloader creates a Downloader
func NewDownloader(cacheDir string, opener Opener) *Downloader {
	return &Downloader{cacheDir: cacheDir, opener: opener}
}

// Path returns where pkg's archive is cached
func (d *Downloader) Path(pkg models.Package) string {
	name := path.Base(pkg.Filename)
	if pkg.Filename == "" {
		name = path.Base(pkg.URL)
	}
	source := pkg.Source
	if source == "" {
		source = "local"
	}
	return filepath.Join(d.cacheDir, source, name)
}

// Download fetches pkg unless a verified copy is already cached.
func (d *Downloader) Download(ctx context.Context, pkg models.Package) (string, error) {
	if pkg.URL == "" {
		return "", models.NewError(models.ErrInvalidRequest, []string{pkg.String()}, "record has no download URL")
	}

	dest := d.Path(pkg)
	if _, err := os.Stat(dest); err == nil {
		if err := d.verify(pkg, dest); err == nil {
			logrus.WithField("package", pkg.String()).Debug("Using cached archive")
			return dest, nil
		}
		os.Remove(dest)
	}

	if err := utils.EnsureDir(filepath.Dir(dest)); err != nil {
		return "", &models.PkgError{Type: models.ErrIO, Packages: []string{pkg.String()}, Err: err}
	}

	rc, err := d.opener.Open(ctx, pkg.URL)
	if err != nil {
		return "", &models.PkgError{Type: models.ErrNetwork, Packages: []string{pkg.String()}, Err: err}
	}
	defer rc.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return "", &models.PkgError{Type: models.ErrIO, Packages: []string{pkg.String()}, Err: err}
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	n, err := io.Copy(tmp, rc)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", &models.PkgError{Type: models.ErrNetwork, Packages: []string{pkg.String()}, Err: fmt.Errorf("failed to download %s: %w", pkg.URL, err)}
	}

	if err := d.verify(pkg, tmpName); err != nil {
		return "", &models.PkgError{Type: models.ErrSignature, Packages: []string{pkg.String()}, Err: err}
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return "", &models.PkgError{Type: models.ErrIO, Packages: []string{pkg.String()}, Err: err}
	}

	logrus.WithFields(logrus.Fields{
		"package": pkg.String(),
		"bytes":   n,
	}).Debug("Downloaded archive")
	return dest, nil
}

// verify checks size and checksum when the record declares them
func (d *Downloader) verify(pkg models.Package, file string) error {
	if pkg.Size > 0 {
		info, err := os.Stat(file)
		if err != nil {
			return err
		}
		if info.Size() != pkg.Size {
			return fmt.Errorf("size mismatch: got %d, want %d", info.Size(), pkg.Size)
		}
	}
	if pkg.Checksum == "" {
		return nil
	}
	return utils.VerifyFileChecksum(file, pkg.ChecksumType, pkg.Checksum)
}
