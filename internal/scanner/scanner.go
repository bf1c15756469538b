// Package scanner finds package archives in local directories, for sources
// that point at a directory instead of a published index.
package scanner

import (
	"context"

	"github.com/ralt/unipkg/internal/models"
)

// ScannedPackage represents a package file found during scanning
type ScannedPackage struct {
	Path   string
	Format models.Format
	Size   int64
}

// Scanner interface for detecting and scanning packages
type Scanner interface {
	// Scan recursively scans a directory for packages
	Scan(ctx context.Context, dir string) ([]ScannedPackage, error)

	// DetectFormat determines the package format of a file
	DetectFormat(path string) (models.Format, error)
}
