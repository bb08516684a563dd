// Command lifesync is the command-line client: sign in, record tasks,
// expenses, investments, prescriptions and IT events, and read the
// summaries built from them.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"lifesync/internal/cli"
	"lifesync/internal/log"
)

// rt is set by the root pre-run hook for every subcommand.
var rt *cli.Runtime

var rootCmd = &cobra.Command{
	Use:   "lifesync",
	Short: "LifeSync: personal tasks, money, health and IT records",
	Long: `lifesync keeps tasks, expenses, investments, prescriptions and IT
change/incident logs in one document store and summarizes them.
Configuration comes from the environment, .env or LIFESYNC_CONFIG.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		r, err := cli.Bootstrap(cmd.Context(), log.ComponentApp)
		if err != nil {
			return err
		}
		rt = r
		return nil
	},
}

func init() {
	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(expenseCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(investCmd)
	rootCmd.AddCommand(medCmd)
	rootCmd.AddCommand(itCmd)
	rootCmd.AddCommand(adminCmd)
	rootCmd.AddCommand(appsCmd)
	rootCmd.AddCommand(dashboardCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(deleteCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if rt != nil {
		if cerr := rt.Close(); cerr != nil {
			rt.Logger.Warn("close store", log.FieldError, cerr)
		}
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
