package models

import (
	"strings"

	"github.com/github/go-spdx/v2/spdxexp"
)

// NormalizeLicense trims a license field and reports whether every part of it
// is a valid SPDX identifier. Debian and Arch spell licenses freely, so an
// invalid result is kept verbatim rather than rejected.
func NormalizeLicense(license string) (string, bool) {
	license = strings.TrimSpace(license)
	if license == "" {
		return "", false
	}

	parts := strings.FieldsFunc(license, func(r rune) bool {
		return r == ' ' || r == ','
	})
	var ids []string
	for _, part := range parts {
		switch strings.ToUpper(part) {
		case "AND", "OR", "WITH", "(", ")":
			continue
		}
		ids = append(ids, strings.Trim(part, "()"))
	}
	if len(ids) == 0 {
		return license, false
	}

	valid, _ := spdxexp.ValidateLicenses(ids)
	return license, valid
}
