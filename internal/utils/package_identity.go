package utils

import (
	"fmt"

	"github.com/ralt/unipkg/internal/models"
)

// PackageIdentity returns a unique identifier for a package based on format
func PackageIdentity(pkg models.Package) string {
	switch pkg.Format {
	case models.FormatDeb, models.FormatRpm, models.FormatApk, models.FormatPacman, models.FormatNative:
		return fmt.Sprintf("%s:%s:%s", pkg.Name, pkg.Version, pkg.Architecture)
	default:
		return fmt.Sprintf("%s:%s", pkg.Name, pkg.Version)
	}
}

// DetectDuplicates returns packages from newPackages whose identity is
// already present in existing.
func DetectDuplicates(existing, newPackages []models.Package) []models.Package {
	existingMap := make(map[string]bool)
	for _, pkg := range existing {
		existingMap[PackageIdentity(pkg)] = true
	}

	var dups []models.Package
	for _, pkg := range newPackages {
		if existingMap[PackageIdentity(pkg)] {
			dups = append(dups, pkg)
		}
	}
	return dups
}
