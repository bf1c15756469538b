package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/ralt/unipkg/internal/models"
	"github.com/spf13/cobra"
)

// NewSearchCmd creates the search command
func NewSearchCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search package names and descriptions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			snap, err := a.loadCatalog()
			if err != nil {
				return err
			}
			l, err := a.store.Load()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, pkg := range snap.Search(args[0]) {
				marker := ""
				if l.IsInstalled(pkg.Name) {
					marker = " [installed]"
				}
				fmt.Fprintf(out, "%s/%s %s%s\n", pkg.Source, pkg.Name, pkg.Version, marker)
				if pkg.Description != "" {
					fmt.Fprintf(out, "    %s\n", firstLine(pkg.Description))
				}
			}
			return nil
		},
	}
}

// NewInfoCmd creates the info command
func NewInfoCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "info <name>",
		Short: "Show details about a package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			snap, err := a.loadCatalog()
			if err != nil {
				return err
			}
			l, err := a.store.Load()
			if err != nil {
				return err
			}

			name := args[0]
			installed, isInstalled := l.Get(name)
			best, available := snap.BestVersion(name)
			if !available && !isInstalled {
				return models.NewError(models.ErrPackageNotFound, []string{name}, "no such package")
			}

			pkg := best
			if !available {
				pkg = installed
			}

			out := cmd.OutOrStdout()
			printInfo(out, pkg)
			if isInstalled {
				fmt.Fprintf(out, "%-16s %s (%d files)\n", "Installed:", installed.Version, len(installed.Files))
			} else {
				fmt.Fprintf(out, "%-16s no\n", "Installed:")
			}
			for _, e := range snap.Versions(name) {
				fmt.Fprintf(out, "%-16s %s from %s (priority %d)\n", "Available:", e.Package.Version, e.Source, e.Priority)
			}
			return nil
		},
	}
}

func printInfo(out io.Writer, pkg models.Package) {
	field := func(label, value string) {
		if value != "" {
			fmt.Fprintf(out, "%-16s %s\n", label+":", value)
		}
	}

	field("Name", pkg.Name)
	field("Version", pkg.Version)
	field("Architecture", pkg.Architecture)
	field("Format", pkg.Format.String())
	field("Source", pkg.Source)
	field("Description", firstLine(pkg.Description))
	field("Maintainer", pkg.Maintainer)
	field("Homepage", pkg.Homepage)
	if license, valid := models.NormalizeLicense(pkg.License); license != "" {
		if !valid {
			license += " (not a valid SPDX expression)"
		}
		field("License", license)
	}
	field("Depends", joinDeps(pkg.Dependencies))
	field("Provides", strings.Join(pkg.Provides, " "))
	field("Conflicts", strings.Join(pkg.Conflicts, " "))
	field("Replaces", strings.Join(pkg.Replaces, " "))
	if pkg.Size > 0 {
		field("Download size", humanize.Bytes(uint64(pkg.Size)))
	}
	if pkg.InstalledSize > 0 {
		field("Installed size", humanize.Bytes(uint64(pkg.InstalledSize)))
	}
	field("PURL", pkg.PURL())
}

// NewListCmd creates the list command
func NewListCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List installed packages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			l, err := a.store.Load()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, pkg := range l.List() {
				fmt.Fprintf(out, "%s %s (%s)\n", pkg.Name, pkg.Version, pkg.Format)
			}
			return nil
		},
	}
}

// NewSourcesCmd creates the sources command
func NewSourcesCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List configured sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, src := range a.sources {
				state := "enabled"
				if !src.Enabled {
					state = "disabled"
				}
				cached := "not synced"
				if records, err := a.cache.Load(src.Name); err == nil {
					cached = fmt.Sprintf("%d packages", len(records))
				}
				fmt.Fprintf(out, "%-20s %-7s %-8s priority=%-3d %-12s %s\n",
					src.Name, src.Format, state, src.Priority, cached, src.URL)
			}
			return nil
		},
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

func joinDeps(deps []models.Dependency) string {
	parts := make([]string, 0, len(deps))
	for _, d := range deps {
		parts = append(parts, d.String())
	}
	return strings.Join(parts, " ")
}
