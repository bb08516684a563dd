package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"lifesync/internal/cache"
	"lifesync/internal/core"
	"lifesync/internal/log"
	"lifesync/internal/store"
	"lifesync/internal/subscriber"
)

// watched maps each collection the overview reads to the app that owns it.
var watched = []struct {
	collection string
	app        string
}{
	{core.CollectionTasks, core.AppTasks},
	{core.CollectionExpenses, core.AppExpenses},
	{core.CollectionInvestments, core.AppInvestments},
	{core.CollectionChanges, core.AppIT},
	{core.CollectionIncidents, core.AppIT},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Reprint the overview whenever one of your records changes",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func runWatch(cmd *cobra.Command, _ []string) error {
	s, err := signedIn(cmd.Context())
	if err != nil {
		return err
	}
	logger := rt.Logger.WithComponent(log.ComponentSubscriber)
	ctx, cancel := context.WithCancel(log.WithContext(cmd.Context(), logger))
	defer cancel()

	svc, c := dashboardService()
	m := cache.NewManager(rt.Logger)
	m.Register(c)
	go m.Run(ctx, rt.Config.CacheTTL)

	changed := make(chan struct{}, 1)
	failed := make(chan error, len(watched))
	var subs []*subscriber.Subscription[string]
	defer func() {
		for _, sub := range subs {
			sub.Close()
		}
	}()
	for _, w := range watched {
		if !s.perm.Allows(w.app) {
			continue
		}
		sub, err := subscriber.ForUser(ctx, rt.Store, s.user.ID, w.collection,
			func(d store.Document) string { return d.ID })
		if err != nil {
			return err
		}
		subs = append(subs, sub)
		go func() {
			for v := range sub.Updates() {
				if v.Err != nil {
					failed <- fmt.Errorf("%s: %w", sub.Path(), v.Err)
					return
				}
				select {
				case changed <- struct{}{}:
				default:
				}
			}
		}()
	}
	if len(subs) == 0 {
		return fmt.Errorf("nothing to watch: %w", core.ErrForbidden)
	}

	out := cmd.OutOrStdout()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-failed:
			return err
		case <-changed:
			o, err := svc.Overview(ctx, s.user.ID, s.perm, today())
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "----")
			printOverview(out, o)
		}
	}
}
