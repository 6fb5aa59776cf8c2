package auth

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestResolvedSetDenyWins(t *testing.T) {
	store := newFakeStore()
	store.assign(RoleAssignment{
		IdentityID:    "u1",
		TenantID:      "t1",
		Status:        AssignmentStatusActive,
		DirectGrants:  []string{"tracks:*"},
		DirectDenials: []string{"tracks:delete"},
	})
	r := NewResolver(store.roles)

	set, err := r.Resolve(context.Background(), "u1", "t1", nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !set.Has("tracks", "read") {
		t.Error("tracks:read should pass via wildcard grant")
	}
	if set.Has("tracks", "delete") {
		t.Error("tracks:delete should be denied despite the wildcard grant")
	}
}

func TestResolvedSetWildcards(t *testing.T) {
	set := NewResolvedSet([]string{"*"})
	if !set.Has("anything", "admin") {
		t.Error("universal wildcard should cover every permission")
	}

	set = NewResolvedSet([]string{"catalog:*"})
	if !set.Has("catalog", "delete") {
		t.Error("resource wildcard should cover every action on the resource")
	}
	if set.Has("royalties", "read") {
		t.Error("resource wildcard must not leak to other resources")
	}
}

func TestResolvedSetAdminImplication(t *testing.T) {
	set := NewResolvedSet([]string{"catalog:admin"})
	for _, action := range []string{"admin", "read", "update"} {
		if !set.Has("catalog", action) {
			t.Errorf("catalog:admin should imply catalog:%s", action)
		}
	}
	if set.Has("catalog", "delete") {
		t.Error("admin must not imply delete")
	}
}

func TestResolveRoleChain(t *testing.T) {
	store := newFakeStore()
	store.addRole(&Role{ID: "viewer", Permissions: []string{"tracks:read"}})
	store.addRole(&Role{ID: "editor", ParentID: "viewer", Permissions: []string{"tracks:update"}})
	store.assign(RoleAssignment{
		IdentityID: "u1", TenantID: "t1", RoleID: "editor",
		Status: AssignmentStatusActive,
	})
	r := NewResolver(store.roles)

	set, err := r.Resolve(context.Background(), "u1", "t1", nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !set.Has("tracks", "read") || !set.Has("tracks", "update") {
		t.Error("parent chain permissions should union into the set")
	}
}

func TestResolveIgnoresInactiveAssignments(t *testing.T) {
	store := newFakeStore()
	store.assign(RoleAssignment{
		IdentityID: "u1", TenantID: "t1", Status: "revoked",
		DirectGrants: []string{"tracks:read"},
	})
	r := NewResolver(store.roles)

	set, err := r.Resolve(context.Background(), "u1", "t1", nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if set.Has("tracks", "read") {
		t.Error("revoked assignment must contribute nothing")
	}
}

func TestResolveRoleCycle(t *testing.T) {
	store := newFakeStore()
	store.addRole(&Role{ID: "a", ParentID: "b"})
	store.addRole(&Role{ID: "b", ParentID: "a"})
	store.assign(RoleAssignment{
		IdentityID: "u1", TenantID: "t1", RoleID: "a",
		Status: AssignmentStatusActive,
	})
	r := NewResolver(store.roles)

	_, err := r.Resolve(context.Background(), "u1", "t1", nil)
	if !errors.Is(err, ErrRoleDepthExceeded) {
		t.Fatalf("err = %v, want ErrRoleDepthExceeded", err)
	}
}

func TestResolveRoleDepthCeiling(t *testing.T) {
	store := newFakeStore()
	ids := []string{"r0", "r1", "r2", "r3", "r4", "r5", "r6", "r7", "r8"}
	for i, id := range ids {
		parent := ""
		if i+1 < len(ids) {
			parent = ids[i+1]
		}
		store.addRole(&Role{ID: id, ParentID: parent})
	}
	store.assign(RoleAssignment{
		IdentityID: "u1", TenantID: "t1", RoleID: "r0",
		Status: AssignmentStatusActive,
	})
	r := NewResolver(store.roles)

	_, err := r.Resolve(context.Background(), "u1", "t1", nil)
	if !errors.Is(err, ErrRoleDepthExceeded) {
		t.Fatalf("err = %v, want ErrRoleDepthExceeded for a 9-deep chain", err)
	}
}

func TestCredentialScopeIntersection(t *testing.T) {
	store := newFakeStore()
	store.assign(RoleAssignment{
		IdentityID: "u1", TenantID: "t1", Status: AssignmentStatusActive,
		DirectGrants: []string{"tracks:read", "tracks:update", "royalties:read"},
	})
	r := NewResolver(store.roles)

	set, err := r.Resolve(context.Background(), "u1", "t1", []string{"tracks:read", "royalties:*"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !set.Has("tracks", "read") {
		t.Error("tracks:read is in both grant and scope")
	}
	if set.Has("tracks", "update") {
		t.Error("tracks:update is outside the credential scope")
	}
	if !set.Has("royalties", "read") {
		t.Error("royalties:read is granted and the scope wildcard covers it")
	}
	if set.Has("royalties", "update") {
		t.Error("scope wildcard must not escalate beyond the owner grant")
	}
}

func TestEmptyScopeGrantsNothing(t *testing.T) {
	store := newFakeStore()
	store.assign(RoleAssignment{
		IdentityID: "u1", TenantID: "t1", Status: AssignmentStatusActive,
		DirectGrants: []string{"*"},
	})
	r := NewResolver(store.roles)

	set, err := r.Resolve(context.Background(), "u1", "t1", []string{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if set.Has("tracks", "read") {
		t.Error("an explicit empty scope must grant nothing")
	}
}

func TestResolvedSetSlice(t *testing.T) {
	store := newFakeStore()
	store.assign(RoleAssignment{
		IdentityID: "u1", TenantID: "t1", Status: AssignmentStatusActive,
		DirectGrants:  []string{"tracks:*", "royalties:read"},
		DirectDenials: []string{"royalties:read"},
	})
	r := NewResolver(store.roles)

	set, err := r.Resolve(context.Background(), "u1", "t1", []string{"tracks:read"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	got := set.Slice()
	want := []string{"tracks:read"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Slice = %v, want %v", got, want)
	}
}

func TestNilResolvedSet(t *testing.T) {
	var set *ResolvedSet
	if set.Has("tracks", "read") {
		t.Error("nil set must deny everything")
	}
	if set.Slice() != nil {
		t.Error("nil set slice should be nil")
	}
}
