package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"lifesync/internal/appstate"
)

var appsCmd = &cobra.Command{
	Use:   "apps",
	Short: "List the apps you may open",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, err := signedIn(cmd.Context())
		if err != nil {
			return err
		}
		apps := appstate.Available(s.perm)
		if len(apps) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no apps granted yet, ask an admin")
			return nil
		}
		for _, a := range apps {
			fmt.Fprintln(cmd.OutOrStdout(), a)
		}
		return nil
	},
}
