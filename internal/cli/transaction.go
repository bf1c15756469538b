package cli

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/ralt/unipkg/internal/ledger"
	"github.com/ralt/unipkg/internal/models"
	"github.com/ralt/unipkg/internal/transaction"
	"github.com/ralt/unipkg/internal/version"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewInstallCmd creates the install command
func NewInstallCmd(opts *globalOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "install <package...>",
		Short: "Install packages and their dependencies",
		Long: `Installs the named packages. A name may carry a version constraint,
for example "lib>=2.0" or "app=1.0-1".`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := version.ParseDependencies(args)
			if err != nil {
				return &models.PkgError{Type: models.ErrInvalidRequest, Packages: args, Err: err}
			}
			return runTransaction(cmd, opts, transaction.Request{Install: deps}, dryRun)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show the plan without applying it")
	return cmd
}

// NewRemoveCmd creates the remove command
func NewRemoveCmd(opts *globalOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:     "remove <package...>",
		Aliases: []string{"uninstall"},
		Short:   "Remove installed packages",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransaction(cmd, opts, transaction.Request{Remove: args}, dryRun)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show the plan without applying it")
	return cmd
}

// NewUpgradeCmd creates the upgrade command
func NewUpgradeCmd(opts *globalOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "upgrade [package...]",
		Short: "Upgrade the named packages, or everything installed",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := transaction.Request{Upgrade: args, UpgradeAll: len(args) == 0}
			return runTransaction(cmd, opts, req, dryRun)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show the plan without applying it")
	return cmd
}

func runTransaction(cmd *cobra.Command, opts *globalOptions, req transaction.Request, dryRun bool) error {
	a, err := newApp(opts)
	if err != nil {
		return err
	}
	snap, err := a.loadCatalog()
	if err != nil {
		return err
	}

	// The lock covers loading, planning and execution so that no other
	// process commits in between.
	if !dryRun {
		lock, err := ledger.AcquireLock(a.cfg.DBPath())
		if err != nil {
			return err
		}
		defer lock.Release()
	}

	l, err := a.store.Load()
	if err != nil {
		return err
	}

	tx, err := transaction.NewPlanner(snap, l).Plan(req)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printPlan(out, tx)
	if tx.IsEmpty() || dryRun {
		return nil
	}

	f, getter := newFetcher()
	defer f.Close()

	report, err := a.newRunner(l, getter).Execute(cmd.Context(), tx)
	if report != nil {
		logrus.WithField("transaction", tx.ID).Debugf("Applied %v, skipped %v", report.Applied, report.Skipped)
	}
	if err != nil {
		return fmt.Errorf("transaction failed: %w", err)
	}

	fmt.Fprintln(out, "Done.")
	return nil
}

func printPlan(out io.Writer, tx *transaction.Transaction) {
	if tx.IsEmpty() {
		fmt.Fprintln(out, "Nothing to do.")
		return
	}

	for _, pkg := range tx.Install {
		fmt.Fprintf(out, "  install  %s %s (%s)\n", pkg.Name, pkg.Version, pkg.Source)
	}
	for _, name := range tx.Remove {
		fmt.Fprintf(out, "  remove   %s\n", name)
	}
	for _, u := range tx.Upgrade {
		fmt.Fprintf(out, "  upgrade  %s %s -> %s\n", u.Old.Name, u.Old.Version, u.New.Version)
	}

	fmt.Fprintf(out, "Download size: %s\n", humanize.Bytes(uint64(tx.DownloadSize)))
	change := humanize.Bytes(uint64(abs(tx.SizeChange)))
	if tx.SizeChange < 0 {
		change = "-" + change
	}
	fmt.Fprintf(out, "Installed size change: %s\n", change)
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
