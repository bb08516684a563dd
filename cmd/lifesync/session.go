package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"lifesync/internal/appstate"
	"lifesync/internal/auth"
	"lifesync/internal/core"
	"lifesync/internal/gateway"
	"lifesync/internal/store"
)

// session is a signed-in user with the gateway and permission that go with
// them.
type session struct {
	user  auth.User
	gw    *gateway.Gateway
	perm  core.Permission
	state appstate.State
}

func signedIn(ctx context.Context) (*session, error) {
	a, err := rt.Auth()
	if err != nil {
		return nil, err
	}
	u, ok := a.CurrentUser()
	if !ok {
		return nil, fmt.Errorf("not signed in, run 'lifesync auth signin': %w", core.ErrUnauthorized)
	}
	gw, err := rt.Gateway(u.ID)
	if err != nil {
		return nil, err
	}
	perm, err := gw.MyPermission(ctx)
	if err != nil {
		return nil, err
	}
	return &session{user: u, gw: gw, perm: perm, state: appstate.Home()}, nil
}

// openApp signs in and switches to app, failing when the user may not use
// it.
func openApp(cmd *cobra.Command, app string) (*session, error) {
	s, err := signedIn(cmd.Context())
	if err != nil {
		return nil, err
	}
	s.state, err = s.state.Open(s.perm, app)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *session) docs(ctx context.Context, collection string, filters ...store.Filter) ([]store.Document, error) {
	return rt.Store.List(ctx, store.UserPath(s.user.ID, collection), filters...)
}

func today() core.Day {
	return core.DayOf(time.Now(), rt.Config.Location())
}

// dayFlag parses a YYYY-MM-DD flag value, defaulting to today.
func dayFlag(v string) (core.Day, error) {
	if v == "" {
		return today(), nil
	}
	d, err := core.ParseDay(v)
	if err != nil {
		return core.Day{}, core.NewValidationError("date", "must be YYYY-MM-DD")
	}
	return d, nil
}

// monthFlag parses YYYY-MM, defaulting to the current month.
func monthFlag(v string) (core.MonthKey, error) {
	if v == "" {
		return today().MonthKey(), nil
	}
	t, err := time.Parse("2006-01", v)
	if err != nil {
		return core.MonthKey{}, core.NewValidationError("month", "must be YYYY-MM")
	}
	return core.MonthKey{Year: t.Year(), Month: t.Month()}, nil
}
