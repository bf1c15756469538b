package installer

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ralt/unipkg/internal/adapter"
	"github.com/ralt/unipkg/internal/models"
	"github.com/ralt/unipkg/internal/utils"
	"github.com/sirupsen/logrus"
)

// TarInstaller installs archives that are (compressed) tars with metadata
// members at their root: native, pacman and apk packages.
type TarInstaller struct {
	root string
}

// NewTarInstaller creates an installer extracting under root
func NewTarInstaller(root string) *TarInstaller {
	return &TarInstaller{root: root}
}

// isMetadata reports archive members that describe the package rather than
// belong to the installed system
func isMetadata(name string) bool {
	name = strings.TrimPrefix(name, "./")
	return !strings.Contains(strings.TrimSuffix(name, "/"), "/") && strings.HasPrefix(name, ".")
}

// Install extracts the archive at archivePath
func (t *TarInstaller) Install(ctx context.Context, pkg models.Package, archivePath string) ([]string, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, &models.PkgError{Type: models.ErrIO, Packages: []string{pkg.String()}, Err: err}
	}
	defer f.Close()

	files, err := extractTar(ctx, f, t.root, isMetadata)
	if err != nil {
		return nil, &models.PkgError{Type: models.ErrIO, Packages: []string{pkg.String()}, Err: err}
	}
	return files, nil
}

// List returns the files Install would create, without touching root
func (t *TarInstaller) List(ctx context.Context, pkg models.Package, archivePath string) ([]string, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, &models.PkgError{Type: models.ErrIO, Packages: []string{pkg.String()}, Err: err}
	}
	defer f.Close()

	files, err := listTar(ctx, f, isMetadata)
	if err != nil {
		return nil, &models.PkgError{Type: models.ErrParse, Packages: []string{pkg.String()}, Err: err}
	}
	return files, nil
}

// Remove deletes the files recorded for pkg
func (t *TarInstaller) Remove(ctx context.Context, pkg models.Package) error {
	return removeFiles(ctx, t.root, pkg)
}

// memberName normalizes an archive member name to a path relative to root.
// It is empty for the root itself.
func memberName(name string) string {
	return strings.TrimPrefix(path.Clean("/"+name), "/")
}

// recorded reports the member types that end up in a package's file list
func recorded(typeflag byte) bool {
	return typeflag == tar.TypeReg || typeflag == tar.TypeSymlink || typeflag == tar.TypeLink
}

// listTar returns the relative paths extractTar would record for r
func listTar(ctx context.Context, r io.Reader, skip func(string) bool) ([]string, error) {
	var files []string
	err := adapter.WalkTar(r, func(hdr *tar.Header, body io.Reader) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if skip != nil && skip(hdr.Name) {
			return nil
		}
		if name := memberName(hdr.Name); name != "" && recorded(hdr.Typeflag) {
			files = append(files, name)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list archive: %w", err)
	}
	return files, nil
}

// linkInside reports whether a symlink named name pointing at link stays
// under root. Absolute links are taken relative to root.
func linkInside(name, link string) bool {
	if path.IsAbs(link) {
		return true
	}
	resolved := path.Join(path.Dir(name), link)
	return resolved != ".." && !strings.HasPrefix(resolved, "../")
}

// extractTar writes the members of a possibly compressed tar under root and
// returns the relative paths of the files and links it created. Nothing is
// ever written through a symlink, and on failure the files already written
// are removed again.
func extractTar(ctx context.Context, r io.Reader, root string, skip func(string) bool) ([]string, error) {
	var files []string
	err := adapter.WalkTar(r, func(hdr *tar.Header, body io.Reader) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if skip != nil && skip(hdr.Name) {
			return nil
		}

		name := memberName(hdr.Name)
		if name == "" {
			return nil
		}
		target, err := utils.SafeJoin(root, name)
		if err != nil {
			return err
		}
		if err := utils.CheckParents(root, target); err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			return os.MkdirAll(target, dirMode(hdr))
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			if err := writeMember(target, body, os.FileMode(hdr.Mode).Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if !linkInside(name, hdr.Linkname) {
				return fmt.Errorf("symlink %s points outside root: %s", name, hdr.Linkname)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return err
			}
		case tar.TypeLink:
			src, err := utils.SafeJoin(root, memberName(hdr.Linkname))
			if err != nil {
				return err
			}
			if err := utils.CheckParents(root, src); err != nil {
				return err
			}
			os.Remove(target)
			if err := os.Link(src, target); err != nil {
				return err
			}
		default:
			logrus.WithField("member", hdr.Name).Debug("Skipping special archive member")
			return nil
		}

		files = append(files, name)
		return nil
	})
	if err != nil {
		if len(files) > 0 {
			removeFiles(context.Background(), root, models.Package{Files: files})
		}
		return nil, fmt.Errorf("failed to extract archive: %w", err)
	}
	return files, nil
}

func dirMode(hdr *tar.Header) os.FileMode {
	if m := os.FileMode(hdr.Mode).Perm(); m != 0 {
		return m
	}
	return 0755
}

func writeMember(target string, r io.Reader, perm os.FileMode) error {
	os.Remove(target)
	out, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// removeFiles deletes pkg's files in reverse order and prunes directories
// left empty, never climbing above root.
func removeFiles(ctx context.Context, root string, pkg models.Package) error {
	dirs := make(map[string]bool)
	for i := len(pkg.Files) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return err
		}
		target, err := utils.SafeJoin(root, strings.TrimPrefix(pkg.Files[i], "/"))
		if err != nil {
			return &models.PkgError{Type: models.ErrIO, Packages: []string{pkg.String()}, Err: err}
		}
		if err := utils.CheckParents(root, target); err != nil {
			logrus.WithError(err).Warn("Leaving file behind")
			continue
		}
		if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
			return &models.PkgError{Type: models.ErrIO, Packages: []string{pkg.String()}, Err: err}
		}
		for d := filepath.Dir(target); d != filepath.Clean(root) && strings.HasPrefix(d, filepath.Clean(root)); d = filepath.Dir(d) {
			dirs[d] = true
		}
	}

	// Deepest first, so parents are considered after their children
	ordered := make([]string, 0, len(dirs))
	for d := range dirs {
		ordered = append(ordered, d)
	}
	sort.Slice(ordered, func(i, j int) bool { return len(ordered[i]) > len(ordered[j]) })
	for _, d := range ordered {
		// Remove fails on non-empty directories, which is what we want
		os.Remove(d)
	}
	return nil
}
