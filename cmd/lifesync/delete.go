package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"lifesync/internal/core"
)

// appOf names the app that owns each deletable collection.
var appOf = map[string]string{
	core.CollectionTasks:         core.AppTasks,
	core.CollectionExpenses:      core.AppExpenses,
	core.CollectionInvestments:   core.AppInvestments,
	core.CollectionPrescriptions: core.AppMedical,
	core.CollectionChanges:       core.AppIT,
	core.CollectionIncidents:     core.AppIT,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <collection> <id>",
	Short: "Delete one of your records",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, ok := appOf[args[0]]
		if !ok {
			return core.NewValidationError("collection", "unknown collection "+args[0])
		}
		s, err := openApp(cmd, app)
		if err != nil {
			return err
		}
		if s.state, err = s.state.Detail(args[1]); err != nil {
			return err
		}
		if err := s.gw.Delete(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s/%s\n", args[0], args[1])
		return nil
	},
}
