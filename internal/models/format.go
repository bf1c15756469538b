package models

import (
	"fmt"
	"strings"
)

// Format is the closed set of package ecosystems a record can come from.
// It decides which adapter parses a source and which installer applies a record.
type Format int

const (
	FormatUnknown Format = iota
	FormatNative
	FormatDeb
	FormatRpm
	FormatApk
	FormatPacman
	FormatMsi
	FormatMsix
	FormatAndroid
)

// String returns the string representation of Format
func (f Format) String() string {
	switch f {
	case FormatNative:
		return "native"
	case FormatDeb:
		return "deb"
	case FormatRpm:
		return "rpm"
	case FormatApk:
		return "apk"
	case FormatPacman:
		return "pacman"
	case FormatMsi:
		return "msi"
	case FormatMsix:
		return "msix"
	case FormatAndroid:
		return "android"
	default:
		return "unknown"
	}
}

// ParseFormat maps a configuration tag to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "native", "pkg":
		return FormatNative, nil
	case "deb", "apt", "debian":
		return FormatDeb, nil
	case "rpm", "dnf", "yum":
		return FormatRpm, nil
	case "apk", "alpine":
		return FormatApk, nil
	case "pacman", "arch", "alpm":
		return FormatPacman, nil
	case "msi", "winget":
		return FormatMsi, nil
	case "msix":
		return FormatMsix, nil
	case "android", "fdroid":
		return FormatAndroid, nil
	default:
		return FormatUnknown, fmt.Errorf("unknown package format %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler so formats serialize by name.
func (f Format) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Format) UnmarshalText(text []byte) error {
	parsed, err := ParseFormat(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}
