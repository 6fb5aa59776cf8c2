package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"rightshub.io/internal/auth"
	"rightshub.io/internal/ids"
)

const credentialColumns = `id, kind, identity_id, tenant_id, name, digest, suffix, state,
	expires_at, scopes, inherit_owner_perms, rotation_deadline, rotated_to_id, revoked_reason,
	total_requests, last_used_at, last_used_origin, last_used_user_agent, created_at, updated_at`

type credentialStore struct{ db *sql.DB }

func (s *credentialStore) Insert(ctx context.Context, cred *auth.Credential) error {
	if cred.ID == "" {
		cred.ID = ids.New()
	}
	scopes, _ := json.Marshal(cred.Scopes)
	_, err := s.db.ExecContext(ctx, `
		insert into credentials(id, kind, identity_id, tenant_id, name, digest, suffix, state,
			expires_at, scopes, inherit_owner_perms)
		values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		cred.ID, cred.Kind, cred.IdentityID, nullString(cred.TenantID), cred.Name,
		cred.Digest, cred.Suffix, cred.State, cred.ExpiresAt, scopes, cred.InheritOwnerPerms,
	)
	if isUniqueViolation(err) {
		return auth.ErrConflict
	}
	return err
}

func (s *credentialStore) FindByID(ctx context.Context, id string) (*auth.Credential, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+credentialColumns+` from credentials where id=$1`, id)
	return scanCredential(row)
}

func (s *credentialStore) FindByDigest(ctx context.Context, digest string) (*auth.Credential, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+credentialColumns+` from credentials where digest=$1`, digest)
	return scanCredential(row)
}

// Transition applies the change in one statement guarded on the current
// state, so concurrent transitions race safely: the loser sees ErrConflict
// and a terminal state is never overwritten.
func (s *credentialStore) Transition(ctx context.Context, id string, from []auth.State, change auth.StateChange) (*auth.Credential, error) {
	if len(from) == 0 {
		return nil, auth.ErrInvalidInput
	}
	args := []any{id, change.To, nullString(change.Reason), change.RotationDeadline, nullString(change.RotatedToID)}
	holders := make([]string, len(from))
	for i, st := range from {
		args = append(args, st)
		holders[i] = fmt.Sprintf("$%d", len(args))
	}
	row := s.db.QueryRowContext(ctx, `
		update credentials set
			state=$2,
			revoked_reason=coalesce($3, revoked_reason),
			rotation_deadline=coalesce($4, rotation_deadline),
			rotated_to_id=coalesce($5, rotated_to_id),
			updated_at=now()
		where id=$1 and state in (`+strings.Join(holders, ",")+`)
		returning `+credentialColumns, args...)

	cred, err := scanCredential(row)
	if errors.Is(err, auth.ErrNotFound) {
		// Either the id is unknown or the guard failed; one more read
		// distinguishes the two.
		if _, lookupErr := s.FindByID(ctx, id); lookupErr == nil {
			return nil, auth.ErrConflict
		}
		return nil, auth.ErrNotFound
	}
	return cred, err
}

func (s *credentialStore) RecordUsage(ctx context.Context, id string, origin auth.Origin, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update credentials set
			total_requests = total_requests + 1,
			last_used_at = $2,
			last_used_origin = $3,
			last_used_user_agent = $4
		where id=$1`,
		id, at, origin.IP, origin.UserAgent,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *credentialStore) MarkExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		update credentials set state=$1, updated_at=now()
		where expires_at is not null and expires_at < $2 and state not in ($3,$4)`,
		auth.StateExpired, now, auth.StateRevoked, auth.StateExpired,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *credentialStore) ListByIdentity(ctx context.Context, identityID string) ([]auth.Credential, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+credentialColumns+` from credentials where identity_id=$1 order by created_at`, identityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []auth.Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *cred)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (*auth.Credential, error) {
	var (
		cred      auth.Credential
		tenantID  sql.NullString
		scopes    []byte
		rotatedTo sql.NullString
		reason    sql.NullString
		origin    sql.NullString
		userAgent sql.NullString
	)
	err := row.Scan(
		&cred.ID, &cred.Kind, &cred.IdentityID, &tenantID, &cred.Name,
		&cred.Digest, &cred.Suffix, &cred.State,
		&cred.ExpiresAt, &scopes, &cred.InheritOwnerPerms,
		&cred.RotationDeadline, &rotatedTo, &reason,
		&cred.TotalRequests, &cred.LastUsedAt, &origin, &userAgent,
		&cred.CreatedAt, &cred.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	cred.TenantID = tenantID.String
	cred.RotatedToID = rotatedTo.String
	cred.RevokedReason = reason.String
	cred.LastUsedOrigin = origin.String
	cred.LastUsedUserAgent = userAgent.String
	if len(scopes) > 0 {
		_ = json.Unmarshal(scopes, &cred.Scopes)
	}
	return &cred, nil
}
