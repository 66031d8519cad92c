package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/johnwards/hubsync/internal/source"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Test the HubSpot and database connections",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := setup(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.close()

		out := cmd.OutOrStdout()
		var errs []error

		if err := a.client.Ping(cmd.Context()); err != nil {
			errs = append(errs, fmt.Errorf("hubspot: %w", err))
			_, _ = fmt.Fprintf(out, "hubspot   FAIL  %v\n", err)
		} else {
			_, _ = fmt.Fprintln(out, "hubspot   ok")
		}

		err = a.openDB(cmd.Context())
		if err == nil {
			err = source.NewReader(a.db).Ping(cmd.Context())
		}
		if err != nil {
			errs = append(errs, err)
			_, _ = fmt.Fprintf(out, "database  FAIL  %v\n", err)
		} else {
			_, _ = fmt.Fprintln(out, "database  ok")
		}

		return errors.Join(errs...)
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
