package installer

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ralt/unipkg/internal/adapter/deb"
	"github.com/ralt/unipkg/internal/models"
)

// DebInstaller extracts data.tar.* of a .deb under root. Maintainer
// scripts are not run.
type DebInstaller struct {
	root string
}

// NewDebInstaller creates a Debian installer
func NewDebInstaller(root string) *DebInstaller {
	return &DebInstaller{root: root}
}

// Install extracts the data member of the archive
func (d *DebInstaller) Install(ctx context.Context, pkg models.Package, archivePath string) ([]string, error) {
	files, err := withData(archivePath, func(r io.Reader) ([]string, error) {
		return extractTar(ctx, r, d.root, nil)
	})
	if err != nil {
		return nil, &models.PkgError{Type: models.ErrIO, Packages: []string{pkg.String()}, Err: err}
	}
	return files, nil
}

// List returns the files of the data member without extracting them
func (d *DebInstaller) List(ctx context.Context, pkg models.Package, archivePath string) ([]string, error) {
	files, err := withData(archivePath, func(r io.Reader) ([]string, error) {
		return listTar(ctx, r, nil)
	})
	if err != nil {
		return nil, &models.PkgError{Type: models.ErrParse, Packages: []string{pkg.String()}, Err: err}
	}
	return files, nil
}

// withData runs fn on the data.tar.* member of a .deb
func withData(archivePath string, fn func(r io.Reader) ([]string, error)) ([]string, error) {
	var files []string
	found := false
	err := deb.WalkAr(archivePath, func(m deb.ArMember, r io.Reader) (bool, error) {
		if !strings.HasPrefix(m.Name, "data.tar") {
			return false, nil
		}
		found = true
		var err error
		files, err = fn(r)
		return true, err
	})
	if err == nil && !found {
		err = fmt.Errorf("data.tar not found in package")
	}
	return files, err
}

// Remove deletes the files recorded for pkg
func (d *DebInstaller) Remove(ctx context.Context, pkg models.Package) error {
	return removeFiles(ctx, d.root, pkg)
}
