// Package appstate holds which app and view the user is looking at. State
// is a plain value; every transition returns a new State or an error and
// never touches the receiver.
package appstate

import (
	"errors"
	"fmt"
	"slices"

	"lifesync/internal/core"
)

type View string

const (
	ViewHome    View = "home"
	ViewList    View = "list"
	ViewSummary View = "summary"
	ViewForm    View = "form"
	ViewDetail  View = "detail"
)

var ErrInvalidTransition = errors.New("invalid transition")

// summaryless apps have no aggregate view.
var summaryless = []string{core.AppAdmin}

type State struct {
	App      string
	View     View
	Selected string // record id shown in detail or edited in form
}

// Home is the state after sign-in.
func Home() State { return State{View: ViewHome} }

// Available returns the apps p may open, in menu order. The admin app
// follows the role, not the apps list.
func Available(p core.Permission) []string {
	var out []string
	for _, app := range core.AllApps {
		if allowed(p, app) {
			out = append(out, app)
		}
	}
	return out
}

func allowed(p core.Permission, app string) bool {
	if app == core.AppAdmin {
		return p.Role == core.RoleAdmin
	}
	return p.Allows(app)
}

// Open switches to app and shows its list.
func (s State) Open(p core.Permission, app string) (State, error) {
	if !slices.Contains(core.AllApps, app) {
		return s, fmt.Errorf("open %q: unknown app: %w", app, ErrInvalidTransition)
	}
	if !allowed(p, app) {
		return s, fmt.Errorf("open %q: %w", app, core.ErrForbidden)
	}
	return State{App: app, View: ViewList}, nil
}

func (s State) Show(v View) (State, error) {
	if s.App == "" {
		return s, fmt.Errorf("show %s with no app open: %w", v, ErrInvalidTransition)
	}
	switch v {
	case ViewList:
	case ViewSummary:
		if slices.Contains(summaryless, s.App) {
			return s, fmt.Errorf("%s has no summary: %w", s.App, ErrInvalidTransition)
		}
	default:
		return s, fmt.Errorf("show %s: %w", v, ErrInvalidTransition)
	}
	return State{App: s.App, View: v}, nil
}

// New opens an empty form.
func (s State) New() (State, error) {
	return s.withRecord(ViewForm, "")
}

func (s State) Edit(id string) (State, error) {
	if id == "" {
		return s, fmt.Errorf("edit needs a record: %w", ErrInvalidTransition)
	}
	return s.withRecord(ViewForm, id)
}

func (s State) Detail(id string) (State, error) {
	if id == "" {
		return s, fmt.Errorf("detail needs a record: %w", ErrInvalidTransition)
	}
	return s.withRecord(ViewDetail, id)
}

func (s State) withRecord(v View, id string) (State, error) {
	if s.App == "" {
		return s, fmt.Errorf("%s with no app open: %w", v, ErrInvalidTransition)
	}
	if s.View != ViewList && s.View != ViewDetail {
		return s, fmt.Errorf("%s from %s: %w", v, s.View, ErrInvalidTransition)
	}
	return State{App: s.App, View: v, Selected: id}, nil
}

// Back leaves a form or detail for the list, and anything else for home.
func (s State) Back() State {
	switch s.View {
	case ViewForm, ViewDetail:
		return State{App: s.App, View: ViewList}
	default:
		return Home()
	}
}

// Revalidate drops back to home when p no longer allows the open app.
func (s State) Revalidate(p core.Permission) State {
	if s.App != "" && !allowed(p, s.App) {
		return Home()
	}
	return s
}

func (s State) String() string {
	if s.App == "" {
		return string(s.View)
	}
	if s.Selected != "" {
		return s.App + "/" + string(s.View) + "/" + s.Selected
	}
	return s.App + "/" + string(s.View)
}
