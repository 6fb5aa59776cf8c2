package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"rightshub.io/internal/auth"
)

type roleStore struct{ db *sql.DB }

func (s *roleStore) AssignmentsFor(ctx context.Context, identityID, tenantID string) ([]auth.RoleAssignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		select identity_id, role_id, tenant_id, status, direct_grants, direct_denials, created_at
		from role_assignments
		where identity_id=$1 and tenant_id=$2`,
		identityID, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []auth.RoleAssignment
	for rows.Next() {
		var (
			a       auth.RoleAssignment
			roleID  sql.NullString
			grants  []byte
			denials []byte
		)
		if err := rows.Scan(&a.IdentityID, &roleID, &a.TenantID, &a.Status, &grants, &denials, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.RoleID = roleID.String
		if len(grants) > 0 {
			_ = json.Unmarshal(grants, &a.DirectGrants)
		}
		if len(denials) > 0 {
			_ = json.Unmarshal(denials, &a.DirectDenials)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *roleStore) RoleByID(ctx context.Context, roleID string) (*auth.Role, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, tenant_id, name, parent_id, scope_tag, permissions, created_at, updated_at
		from roles where id=$1`, roleID)

	var (
		role     auth.Role
		tenantID sql.NullString
		parentID sql.NullString
		perms    []byte
	)
	err := row.Scan(&role.ID, &tenantID, &role.Name, &parentID, &role.ScopeTag, &perms,
		&role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	role.TenantID = tenantID.String
	role.ParentID = parentID.String
	if len(perms) > 0 {
		_ = json.Unmarshal(perms, &role.Permissions)
	}
	return &role, nil
}
