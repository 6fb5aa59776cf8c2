package auth

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// MaxRoleDepth is the ceiling on role parent-chain expansion. Exceeding it,
// or encountering a cycle, is an administrative configuration error.
const MaxRoleDepth = 8

// ResolvedSet is the effective permission set of one request. It is computed
// per call and never persisted or reused across requests, since role
// membership may change between requests. Denials and the optional credential
// scope are kept alongside the grants so that wildcard interactions are
// evaluated at check time rather than materialized.
type ResolvedSet struct {
	grants map[string]struct{}
	denies map[string]struct{}
	scope  map[string]struct{} // nil when the credential carries no restriction
}

// NewResolvedSet builds a set from explicit grant strings. Used by validators
// whose permissions come from configured scopes rather than roles.
func NewResolvedSet(grants []string) *ResolvedSet {
	return &ResolvedSet{grants: toSet(grants), denies: map[string]struct{}{}}
}

// Has reports whether the set satisfies resource:action. A matching denial
// always wins; with a credential scope present, both the owner grant and the
// scope must cover the permission: a credential restricts, never escalates.
func (s *ResolvedSet) Has(resource, action string) bool {
	if s == nil {
		return false
	}
	if covers(s.denies, resource, action) {
		return false
	}
	if !covers(s.grants, resource, action) {
		return false
	}
	if s.scope != nil && !covers(s.scope, resource, action) {
		return false
	}
	return true
}

// HasPermission applies the standard matching and implication rules against a
// resolved set. Every authorization check in the hosting system goes through
// here.
func HasPermission(set *ResolvedSet, resource, action string) bool {
	return set.Has(resource, action)
}

// Slice materializes the effective permission strings: the intersection of
// grants and credential scope, minus denials. Sorted for stable output.
func (s *ResolvedSet) Slice() []string {
	if s == nil {
		return nil
	}
	seen := map[string]struct{}{}
	var out []string
	add := func(p string) {
		if _, ok := seen[p]; ok {
			return
		}
		res, act := splitPermission(p)
		if covers(s.denies, res, act) {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	for g := range s.grants {
		if s.scope == nil {
			add(g)
			continue
		}
		for _, p := range narrow(g, s.scope) {
			add(p)
		}
	}
	sort.Strings(out)
	return out
}

// covers reports whether a permission set satisfies resource:action via exact
// match, resource wildcard, the universal wildcard, or the check-time
// implication that admin grants read and update.
func covers(set map[string]struct{}, resource, action string) bool {
	if len(set) == 0 {
		return false
	}
	if _, ok := set["*"]; ok {
		return true
	}
	if _, ok := set[resource+":*"]; ok {
		return true
	}
	if _, ok := set[resource+":"+action]; ok {
		return true
	}
	if action == "read" || action == "update" {
		if _, ok := set[resource+":admin"]; ok {
			return true
		}
	}
	return false
}

// narrow intersects a single grant with the scope set, returning the
// effective permission strings the pair admits.
func narrow(grant string, scope map[string]struct{}) []string {
	gRes, gAct := splitPermission(grant)
	var out []string
	for sc := range scope {
		sRes, sAct := splitPermission(sc)
		switch {
		case grant == sc:
			out = append(out, grant)
		case grant == "*", gRes == sRes && gAct == "*":
			out = append(out, sc)
		case sc == "*", sRes == gRes && sAct == "*":
			out = append(out, grant)
		}
	}
	return out
}

func splitPermission(p string) (resource, action string) {
	if i := strings.IndexByte(p, ':'); i >= 0 {
		return p[:i], p[i+1:]
	}
	return p, "*"
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		set[v] = struct{}{}
	}
	return set
}

// Resolver computes effective permissions from the role/permission graph.
type Resolver struct {
	roles RoleStore
}

func NewResolver(roles RoleStore) *Resolver {
	return &Resolver{roles: roles}
}

// Resolve collects the identity's active role assignments within the tenant,
// expands each role through its parent chain, unions direct grants, records
// direct denials, and attaches the optional credential scope. A nil credScope
// means the credential carries no restriction; a non-nil empty one grants
// nothing.
func (r *Resolver) Resolve(ctx context.Context, identityID, tenantID string, credScope []string) (*ResolvedSet, error) {
	assignments, err := r.roles.AssignmentsFor(ctx, identityID, tenantID)
	if err != nil {
		return nil, err
	}
	set := &ResolvedSet{
		grants: map[string]struct{}{},
		denies: map[string]struct{}{},
	}
	for _, a := range assignments {
		if a.Status != AssignmentStatusActive {
			continue
		}
		if a.RoleID != "" {
			perms, err := r.expand(ctx, a.RoleID)
			if err != nil {
				return nil, err
			}
			for _, p := range perms {
				set.grants[p] = struct{}{}
			}
		}
		for _, g := range a.DirectGrants {
			set.grants[g] = struct{}{}
		}
		for _, d := range a.DirectDenials {
			set.denies[d] = struct{}{}
		}
	}
	if credScope != nil {
		set.scope = toSet(credScope)
	}
	return set, nil
}

// expand walks the parent chain of a role. A visited set guards against
// cyclic parent pointers; either a cycle or a chain past MaxRoleDepth
// surfaces ErrRoleDepthExceeded rather than a partial result.
func (r *Resolver) expand(ctx context.Context, roleID string) ([]string, error) {
	var perms []string
	visited := map[string]struct{}{}
	id := roleID
	for depth := 0; id != ""; depth++ {
		if depth >= MaxRoleDepth {
			return nil, fmt.Errorf("%w: chain from role %s", ErrRoleDepthExceeded, roleID)
		}
		if _, ok := visited[id]; ok {
			return nil, fmt.Errorf("%w: cycle at role %s", ErrRoleDepthExceeded, id)
		}
		visited[id] = struct{}{}
		role, err := r.roles.RoleByID(ctx, id)
		if err != nil {
			return nil, err
		}
		perms = append(perms, role.Permissions...)
		id = role.ParentID
	}
	return perms, nil
}
