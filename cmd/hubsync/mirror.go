package main

import (
	"github.com/spf13/cobra"

	"github.com/johnwards/hubsync/internal/mirror"
	"github.com/johnwards/hubsync/internal/tablesync"
)

var mirrorCmd = &cobra.Command{
	Use:   "mirror",
	Short: "Copy HubSpot deals, tickets, contacts, owners and pipelines into hb_* tables",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := setup(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.close()

		m := mirror.New(a.client, a.discoverer(), tablesync.New(a.db), a.metrics)
		_, err = m.Run(cmd.Context())
		return err
	},
}

func init() {
	rootCmd.AddCommand(mirrorCmd)
}
