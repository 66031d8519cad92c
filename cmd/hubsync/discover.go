package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var discoverCmd = &cobra.Command{
	Use:   "discover <objectType>",
	Short: "Print the properties of an object type that hold data",
	Example: `  hubsync discover contacts
  hubsync discover tickets`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.close()

		res, err := a.discoverer().DiscoverOrFallback(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, name := range res.Properties {
			_, _ = fmt.Fprintln(out, name)
		}
		if res.Fallback {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "metadata unavailable, printed the built-in %s properties\n", res.ObjectType)
			return nil
		}
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%d of %d properties hold data\n", len(res.Properties), res.Total)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(discoverCmd)
}
