package cli

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	root       string
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "unipkg",
		Short: "Install packages from deb, rpm, pacman, apk and native repositories",
		Long: `Unipkg resolves and installs packages from heterogeneous repositories
through a single dependency resolver and installed-package database.

Supported repository formats:
  - Debian/APT (Packages indexes, .deb)
  - RPM (repodata, .rpm)
  - Arch/pacman (.db, .pkg.tar.*)
  - Alpine/APK (APKINDEX, .apk)
  - Native (packages.json, .pkg.tar.zst)
  - Winget manifests (catalog only)`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Setup logging
			verbose, _ := cmd.Flags().GetBool("verbose")
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			} else {
				logrus.SetLevel(logrus.InfoLevel)
			}
		},
	}

	// Global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to the configuration file (default "+defaultConfigPath()+")")
	rootCmd.PersistentFlags().StringVar(&opts.root, "root", "", "Operate on an alternative root directory")

	// Add subcommands
	rootCmd.AddCommand(
		NewSyncCmd(opts),
		NewSearchCmd(opts),
		NewInfoCmd(opts),
		NewListCmd(opts),
		NewSourcesCmd(opts),
		NewInstallCmd(opts),
		NewRemoveCmd(opts),
		NewUpgradeCmd(opts),
	)

	return rootCmd
}
