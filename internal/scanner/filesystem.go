package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ralt/unipkg/internal/models"
	"github.com/sirupsen/logrus"
)

// FileSystemScanner walks a local directory source.
type FileSystemScanner struct{}

// NewFileSystemScanner creates a new filesystem scanner
func NewFileSystemScanner() *FileSystemScanner {
	return &FileSystemScanner{}
}

// Scan walks dir and returns every recognized package archive sorted by
// path. Hidden files and directories are skipped, which also leaves out
// partially written downloads.
func (s *FileSystemScanner) Scan(ctx context.Context, dir string) ([]ScannedPackage, error) {
	var packages []ScannedPackage

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if path != dir && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		format, err := s.DetectFormat(path)
		if err != nil {
			logrus.Warnf("Failed to detect format for %s: %v", path, err)
			return nil
		}
		if format == models.FormatUnknown {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		logrus.WithFields(logrus.Fields{
			"format": format,
			"path":   path,
		}).Debug("Found package")

		packages = append(packages, ScannedPackage{
			Path:   path,
			Format: format,
			Size:   info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}

	sort.Slice(packages, func(i, j int) bool { return packages[i].Path < packages[j].Path })

	logrus.Debugf("Found %d packages in %s", len(packages), dir)
	return packages, nil
}

// DetectFormat determines the package format of a file
func (s *FileSystemScanner) DetectFormat(path string) (models.Format, error) {
	return DetectFormat(path)
}
