package gateway

import (
	"context"
	"fmt"

	"lifesync/internal/core"
	"lifesync/internal/log"
	"lifesync/internal/normalize"
	"lifesync/internal/store"
)

// MyPermission returns the caller's permission record. A user without one
// gets the default role with no apps.
func (g *Gateway) MyPermission(ctx context.Context) (core.Permission, error) {
	if err := g.requireUser(); err != nil {
		return core.Permission{}, err
	}
	p, found, err := g.permissionOf(ctx, g.uid)
	if err != nil {
		return core.Permission{}, err
	}
	if !found {
		return core.Permission{UserID: g.uid, Role: core.RoleUser, Apps: []string{}}, nil
	}
	return p, nil
}

func (g *Gateway) permissionOf(ctx context.Context, uid string) (core.Permission, bool, error) {
	docs, err := g.store.List(ctx, core.CollectionPermissions, store.Eq("userId", uid))
	if err != nil {
		return core.Permission{}, false, fmt.Errorf("load permission: %w", err)
	}
	if len(docs) == 0 {
		return core.Permission{}, false, nil
	}
	return g.norm.Permission(docs[0]), true, nil
}

func (g *Gateway) requireAdmin(ctx context.Context) error {
	p, err := g.MyPermission(ctx)
	if err != nil {
		return err
	}
	if p.Role != core.RoleAdmin {
		return core.ErrForbidden
	}
	return nil
}

// Bootstrap makes the caller admin when no permission records exist yet.
func (g *Gateway) Bootstrap(ctx context.Context, email string) error {
	if err := g.requireUser(); err != nil {
		return err
	}
	docs, err := g.store.List(ctx, core.CollectionPermissions)
	if err != nil {
		return g.fail(ctx, log.OpCreate, core.CollectionPermissions, "", err)
	}
	if len(docs) > 0 {
		return g.fail(ctx, log.OpCreate, core.CollectionPermissions, "", core.ErrForbidden)
	}
	_, err = g.create(ctx, core.CollectionPermissions, encodePermission(core.Permission{
		UserID: g.uid, Email: email, Role: core.RoleAdmin, Apps: core.AllApps,
	}))
	return err
}

// Permissions lists every permission record. Admins only.
func (g *Gateway) Permissions(ctx context.Context) ([]core.Permission, error) {
	if err := g.requireAdmin(ctx); err != nil {
		return nil, err
	}
	docs, err := g.store.List(ctx, core.CollectionPermissions)
	if err != nil {
		return nil, err
	}
	return normalize.All(docs, g.norm.Permission), nil
}

// SetPermission creates or replaces the permission record of p.UserID.
// Admins only.
func (g *Gateway) SetPermission(ctx context.Context, p core.Permission) error {
	if err := g.requireAdmin(ctx); err != nil {
		return g.fail(ctx, log.OpUpdate, core.CollectionPermissions, p.UserID, err)
	}
	if p.Role == "" {
		p.Role = core.RoleUser
	}
	if p.Apps == nil {
		p.Apps = []string{}
	}
	if err := p.Validate(); err != nil {
		return g.fail(ctx, log.OpUpdate, core.CollectionPermissions, p.UserID, err)
	}
	if p.UserID == g.uid && p.Role != core.RoleAdmin {
		return g.fail(ctx, log.OpUpdate, core.CollectionPermissions, p.UserID,
			core.NewValidationError("role", "admins cannot demote themselves"))
	}
	existing, found, err := g.permissionOf(ctx, p.UserID)
	if err != nil {
		return g.fail(ctx, log.OpUpdate, core.CollectionPermissions, p.UserID, err)
	}
	if !found {
		_, err := g.create(ctx, core.CollectionPermissions, encodePermission(p))
		return err
	}
	return g.update(ctx, core.CollectionPermissions, existing.ID, encodePermission(p))
}

// RevokePermission deletes the permission record of uid. Admins only.
func (g *Gateway) RevokePermission(ctx context.Context, uid string) error {
	if err := g.requireAdmin(ctx); err != nil {
		return g.fail(ctx, log.OpDelete, core.CollectionPermissions, uid, err)
	}
	if uid == g.uid {
		return g.fail(ctx, log.OpDelete, core.CollectionPermissions, uid,
			core.NewValidationError("userId", "admins cannot revoke themselves"))
	}
	existing, found, err := g.permissionOf(ctx, uid)
	if err != nil {
		return g.fail(ctx, log.OpDelete, core.CollectionPermissions, uid, err)
	}
	if !found {
		return g.fail(ctx, log.OpDelete, core.CollectionPermissions, uid, core.ErrNotFound)
	}
	path := g.path(core.CollectionPermissions)
	if err := g.store.Delete(ctx, path, existing.ID); err != nil {
		return g.fail(ctx, log.OpDelete, core.CollectionPermissions, uid, err)
	}
	g.announce(ctx, store.Change{Path: path, ID: existing.ID, Op: store.OpDelete})
	return nil
}
