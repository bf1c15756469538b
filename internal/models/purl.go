package models

import (
	packageurl "github.com/package-url/packageurl-go"
)

// purlTypes maps formats to Package URL types.
var purlTypes = map[Format]string{
	FormatDeb:     "deb",
	FormatRpm:     "rpm",
	FormatApk:     "apk",
	FormatPacman:  "alpm",
	FormatNative:  "generic",
	FormatMsi:     "generic",
	FormatMsix:    "generic",
	FormatAndroid: "generic",
}

// PURL returns the Package URL identifying this record, e.g.
// pkg:deb/debian/curl@7.88.1?arch=amd64.
func (p Package) PURL() string {
	purlType, ok := purlTypes[p.Format]
	if !ok {
		purlType = "generic"
	}

	qualifiers := map[string]string{}
	if p.Architecture != "" {
		qualifiers["arch"] = p.Architecture
	}
	if p.Source != "" {
		qualifiers["repository_id"] = p.Source
	}

	namespace := ""
	if purlType != "generic" && p.Source != "" {
		namespace = p.Source
	}

	u := packageurl.NewPackageURL(purlType, namespace, p.Name, p.Version,
		packageurl.QualifiersFromMap(qualifiers), "")
	return u.ToString()
}
