package cli

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewSyncCmd creates the sync command
func NewSyncCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "sync",
		Aliases: []string{"update"},
		Short:   "Refresh package indexes from all enabled sources",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}

			f, getter := newFetcher()
			defer f.Close()

			logrus.Infof("Syncing %d sources...", a.enabledSources())
			results, syncErr := a.newSyncer(getter).SyncAll(cmd.Context(), a.sources)

			out := cmd.OutOrStdout()
			for _, r := range results {
				if r.Err != nil {
					fmt.Fprintf(out, "%-20s failed\n", r.Source)
					continue
				}
				fmt.Fprintf(out, "%-20s %d packages\n", r.Source, r.Packages)
			}

			for host, state := range getter.States() {
				if state == "open" {
					logrus.WithField("host", host).Warn("Mirror marked unavailable")
				}
			}
			return syncErr
		},
	}
}
