package models

import "fmt"

// Package represents one normalized package record: a name+version offered by
// one source, whatever ecosystem it came from. Records are immutable once a
// format adapter has produced them.
type Package struct {
	// Core metadata
	Name         string
	Version      string
	Architecture string
	Format       Format
	Description  string
	Maintainer   string
	Homepage     string
	License      string

	// Relations
	Dependencies []Dependency
	Conflicts    []string
	Provides     []string
	Replaces     []string

	// File information
	Filename      string
	URL           string
	Source        string
	Size          int64
	InstalledSize int64
	Checksum      string
	ChecksumType  string
	Files         []string

	// Type-specific metadata
	Metadata map[string]interface{}
}

// String renders the record as name@version.
func (p Package) String() string {
	return fmt.Sprintf("%s@%s", p.Name, p.Version)
}

// ProvidesName reports whether the record answers to name, either literally
// or through its provides list.
func (p Package) ProvidesName(name string) bool {
	if p.Name == name {
		return true
	}
	for _, prov := range p.Provides {
		if prov == name {
			return true
		}
	}
	return false
}

// ReplacesName reports whether the record supersedes name.
func (p Package) ReplacesName(name string) bool {
	for _, r := range p.Replaces {
		if r == name {
			return true
		}
	}
	return false
}

// ConflictsWith reports whether p declares a conflict against other's name or
// any name other provides.
func (p Package) ConflictsWith(other Package) bool {
	for _, c := range p.Conflicts {
		if other.ProvidesName(c) {
			return true
		}
	}
	return false
}
