package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"lifesync/internal/core"
	"lifesync/internal/export"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage who may use which app",
}

var (
	adminRole string
	adminApps string
)

var adminBootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Make the signed-in user the first admin",
	Long:  "Works only while no permission records exist.",
	Args:  cobra.NoArgs,
	RunE:  runAdminBootstrap,
}

var adminGrantCmd = &cobra.Command{
	Use:   "grant <user-id> <email>",
	Short: "Set a user's role and apps",
	Args:  cobra.ExactArgs(2),
	RunE:  runAdminGrant,
}

var adminRevokeCmd = &cobra.Command{
	Use:   "revoke <user-id>",
	Short: "Remove a user's permission record",
	Args:  cobra.ExactArgs(1),
	RunE:  runAdminRevoke,
}

var adminListCmd = &cobra.Command{
	Use:   "list",
	Short: "List permission records",
	Args:  cobra.NoArgs,
	RunE:  runAdminList,
}

func init() {
	adminGrantCmd.Flags().StringVar(&adminRole, "role", string(core.RoleUser), "admin or user")
	adminGrantCmd.Flags().StringVar(&adminApps, "apps", "", "Comma-separated apps: "+strings.Join(core.AllApps, ","))
	adminCmd.AddCommand(adminBootstrapCmd, adminGrantCmd, adminRevokeCmd, adminListCmd)
}

func runAdminBootstrap(cmd *cobra.Command, _ []string) error {
	s, err := signedIn(cmd.Context())
	if err != nil {
		return err
	}
	if err := s.gw.Bootstrap(cmd.Context(), s.user.Email); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s is now admin\n", s.user.Email)
	return nil
}

func runAdminGrant(cmd *cobra.Command, args []string) error {
	s, err := openApp(cmd, core.AppAdmin)
	if err != nil {
		return err
	}
	return s.gw.SetPermission(cmd.Context(), core.Permission{
		UserID: args[0],
		Email:  args[1],
		Role:   core.Role(adminRole),
		Apps:   splitTags(adminApps),
	})
}

func runAdminRevoke(cmd *cobra.Command, args []string) error {
	s, err := openApp(cmd, core.AppAdmin)
	if err != nil {
		return err
	}
	return s.gw.RevokePermission(cmd.Context(), args[0])
}

func runAdminList(cmd *cobra.Command, _ []string) error {
	s, err := openApp(cmd, core.AppAdmin)
	if err != nil {
		return err
	}
	perms, err := s.gw.Permissions(cmd.Context())
	if err != nil {
		return err
	}
	t := export.Table{Name: "permissions", Header: []string{"user", "email", "role", "apps"}}
	for _, p := range perms {
		t.Rows = append(t.Rows, []string{p.UserID, p.Email, string(p.Role), strings.Join(p.Apps, ",")})
	}
	return printTable(cmd.OutOrStdout(), t)
}
