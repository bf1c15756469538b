package installer

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ralt/unipkg/internal/models"
	"github.com/sassoftware/go-rpmutils"
)

// RpmInstaller expands the cpio payload of an .rpm under root. Scriptlets
// are not run.
type RpmInstaller struct {
	root string
}

// NewRpmInstaller creates an RPM installer
func NewRpmInstaller(root string) *RpmInstaller {
	return &RpmInstaller{root: root}
}

// Install expands the payload and returns the header's file list
func (i *RpmInstaller) Install(ctx context.Context, pkg models.Package, archivePath string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return nil, &models.PkgError{Type: models.ErrIO, Packages: []string{pkg.String()}, Err: err}
	}
	defer f.Close()

	rpm, err := rpmutils.ReadRpm(f)
	if err != nil {
		return nil, &models.PkgError{Type: models.ErrParse, Packages: []string{pkg.String()}, Err: fmt.Errorf("failed to read RPM: %w", err)}
	}

	files, err := headerFiles(rpm.Header)
	if err != nil {
		return nil, &models.PkgError{Type: models.ErrParse, Packages: []string{pkg.String()}, Err: err}
	}

	if err := rpm.ExpandPayload(i.root); err != nil {
		return nil, &models.PkgError{Type: models.ErrIO, Packages: []string{pkg.String()}, Err: fmt.Errorf("failed to expand payload: %w", err)}
	}
	return files, nil
}

// List returns the header's file list without expanding the payload
func (i *RpmInstaller) List(ctx context.Context, pkg models.Package, archivePath string) ([]string, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, &models.PkgError{Type: models.ErrIO, Packages: []string{pkg.String()}, Err: err}
	}
	defer f.Close()

	hdr, err := rpmutils.ReadHeader(f)
	if err != nil {
		return nil, &models.PkgError{Type: models.ErrParse, Packages: []string{pkg.String()}, Err: fmt.Errorf("failed to read RPM: %w", err)}
	}
	files, err := headerFiles(hdr)
	if err != nil {
		return nil, &models.PkgError{Type: models.ErrParse, Packages: []string{pkg.String()}, Err: err}
	}
	return files, nil
}

// headerFiles lists the non-directory entries of an RPM header, relative
// to root
func headerFiles(hdr *rpmutils.RpmHeader) ([]string, error) {
	entries, err := hdr.GetFiles()
	if err != nil {
		return nil, err
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Mode()&0170000 == 0040000 {
			continue
		}
		files = append(files, strings.TrimPrefix(e.Name(), "/"))
	}
	return files, nil
}

// Remove deletes the files recorded for pkg
func (i *RpmInstaller) Remove(ctx context.Context, pkg models.Package) error {
	return removeFiles(ctx, i.root, pkg)
}
