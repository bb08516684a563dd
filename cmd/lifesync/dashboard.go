package main

import (
	"github.com/spf13/cobra"

	"lifesync/internal/cache"
	"lifesync/internal/dashboard"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show the overview across your apps",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, err := signedIn(cmd.Context())
		if err != nil {
			return err
		}
		svc, _ := dashboardService()
		o, err := svc.Overview(cmd.Context(), s.user.ID, s.perm, today())
		if err != nil {
			return err
		}
		printOverview(cmd.OutOrStdout(), o)
		return nil
	},
}

func dashboardService() (*dashboard.Service, *cache.LRUCache[dashboard.Overview]) {
	c := cache.NewLRUCache[dashboard.Overview](rt.Config.CacheSize, rt.Config.CacheTTL)
	return dashboard.NewService(rt.Store, rt.Codec, rt.Config.Location(), c, rt.Logger), c
}
