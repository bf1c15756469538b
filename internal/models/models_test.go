package models

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{
		"deb":    FormatDeb,
		"APT":    FormatDeb,
		"dnf":    FormatRpm,
		"alpine": FormatApk,
		"arch":   FormatPacman,
		"winget": FormatMsi,
		"msix":   FormatMsix,
		"native": FormatNative,
		"fdroid": FormatAndroid,
	}
	for in, want := range tests {
		got, err := ParseFormat(in)
		if err != nil {
			t.Errorf("ParseFormat(%q) failed: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseFormat(%q) = %s, want %s", in, got, want)
		}
	}

	if _, err := ParseFormat("snap"); err == nil {
		t.Error("Expected error for unknown format")
	}
}

func TestFormatText(t *testing.T) {
	var f Format
	if err := f.UnmarshalText([]byte("pacman")); err != nil {
		t.Fatalf("UnmarshalText failed: %v", err)
	}
	text, _ := f.MarshalText()
	if string(text) != "pacman" {
		t.Errorf("Expected pacman, got %s", text)
	}
}

func TestPkgError(t *testing.T) {
	inner := errors.New("boom")
	err := fmt.Errorf("failed to plan: %w", &PkgError{Type: ErrConflict, Packages: []string{"a", "b"}, Err: inner})

	if !IsType(err, ErrConflict) {
		t.Error("IsType should see through wrapping")
	}
	if IsType(err, ErrDependency) {
		t.Error("IsType matched the wrong kind")
	}
	if !errors.Is(err, inner) {
		t.Error("PkgError should unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "[ConflictError] a, b: boom") {
		t.Errorf("Unexpected message %q", err.Error())
	}
}

func TestRelations(t *testing.T) {
	mta := Package{Name: "postfix", Provides: []string{"mail-transport-agent"}, Replaces: []string{"sendmail-bin"}}
	exim := Package{Name: "exim", Conflicts: []string{"mail-transport-agent"}}

	if !mta.ProvidesName("postfix") || !mta.ProvidesName("mail-transport-agent") {
		t.Error("ProvidesName should match the name and provides")
	}
	if !mta.ReplacesName("sendmail-bin") || mta.ReplacesName("postfix") {
		t.Error("ReplacesName mismatch")
	}
	if !exim.ConflictsWith(mta) {
		t.Error("Conflict against a provided name should match")
	}
	if mta.ConflictsWith(exim) {
		t.Error("ConflictsWith is one-sided")
	}
}

func TestPURL(t *testing.T) {
	p := Package{Name: "curl", Version: "7.88.1", Architecture: "amd64", Format: FormatDeb, Source: "debian"}
	if got := p.PURL(); !strings.HasPrefix(got, "pkg:deb/debian/curl@7.88.1?") || !strings.Contains(got, "arch=amd64") {
		t.Errorf("Unexpected PURL %s", got)
	}

	local := Package{Name: "tool", Version: "1.0", Format: FormatNative}
	if got := local.PURL(); got != "pkg:generic/tool@1.0" {
		t.Errorf("Unexpected PURL %s", got)
	}
}

func TestNormalizeLicense(t *testing.T) {
	if l, ok := NormalizeLicense(" MIT "); l != "MIT" || !ok {
		t.Errorf("MIT should be valid, got %q %v", l, ok)
	}
	if _, ok := NormalizeLicense("GPL-2.0-only OR Apache-2.0"); !ok {
		t.Error("Compound expression should be valid")
	}
	if l, ok := NormalizeLicense("custom:Proprietary"); ok || l != "custom:Proprietary" {
		t.Errorf("Free-form license should be kept and flagged, got %q %v", l, ok)
	}
	if _, ok := NormalizeLicense(""); ok {
		t.Error("Empty license is not valid")
	}
}
