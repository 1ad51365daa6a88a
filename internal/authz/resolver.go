package authz

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/atlas-portal/atlas-portal/internal/shared"
)

// ErrNotFound indicates that the requested record does not exist.
var ErrNotFound = fmt.Errorf("authz: %w", shared.ErrNotFound)

// Store is the persistence surface the resolver reads from.
type Store interface {
	GetUser(ctx context.Context, id int64) (User, error)
	RolePermissionCodes(ctx context.Context, roleID int64) ([]string, error)
	UserOverrides(ctx context.Context, userID int64) (map[string]Override, error)
}

// Resolver computes effective permission decisions. Pure reads; resolution
// failures deny everything rather than failing open.
type Resolver struct {
	store Store
}

// NewResolver constructs a Resolver backed by the provided store.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve reports whether the user holds the given permission code.
func (r *Resolver) Resolve(ctx context.Context, user User, code string) (bool, error) {
	if user.IsSuperAdmin() {
		return true, nil
	}
	set, err := r.computeSet(ctx, user)
	if err != nil {
		return false, err
	}
	_, ok := set[code]
	return ok, nil
}

// ResolveAll computes the full effective permission set once, intended for
// session start. The snapshot is deliberately not invalidated when role or
// override rows change elsewhere; callers refresh explicitly.
func (r *Resolver) ResolveAll(ctx context.Context, user User) (*PermissionSet, error) {
	ps := &PermissionSet{resolver: r, user: user}
	if err := ps.Refresh(ctx); err != nil {
		return nil, err
	}
	return ps, nil
}

func (r *Resolver) computeSet(ctx context.Context, user User) (map[string]struct{}, error) {
	granted := make(map[string]struct{})
	if user.RoleID != nil {
		codes, err := r.store.RolePermissionCodes(ctx, *user.RoleID)
		if err != nil {
			return nil, fmt.Errorf("authz: role permissions: %w", err)
		}
		for _, code := range codes {
			granted[code] = struct{}{}
		}
	}
	overrides, err := r.store.UserOverrides(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("authz: overrides: %w", err)
	}
	for code, ov := range overrides {
		switch ov {
		case OverrideGrant:
			granted[code] = struct{}{}
		case OverrideDeny:
			delete(granted, code)
		}
	}
	return granted, nil
}

// PermissionSet is a session-scoped snapshot of a user's effective
// permissions. Two concurrent sessions of the same user can observe
// different sets after an admin edit until each calls Refresh.
type PermissionSet struct {
	resolver *Resolver
	user     User

	mu    sync.RWMutex
	super bool
	codes map[string]struct{}
}

// Has reports membership against the snapshot.
func (ps *PermissionSet) Has(code string) bool {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	if ps.super {
		return true
	}
	_, ok := ps.codes[code]
	return ok
}

// Codes returns the snapshot codes sorted, for rendering.
func (ps *PermissionSet) Codes() []string {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	out := make([]string, 0, len(ps.codes))
	for code := range ps.codes {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// User returns the identity the snapshot was computed for.
func (ps *PermissionSet) User() User {
	return ps.user
}

// Refresh recomputes the snapshot from the store.
func (ps *PermissionSet) Refresh(ctx context.Context) error {
	if ps.user.IsSuperAdmin() {
		ps.mu.Lock()
		ps.super = true
		ps.codes = nil
		ps.mu.Unlock()
		return nil
	}
	codes, err := ps.resolver.computeSet(ctx, ps.user)
	if err != nil {
		return err
	}
	ps.mu.Lock()
	ps.super = false
	ps.codes = codes
	ps.mu.Unlock()
	return nil
}
