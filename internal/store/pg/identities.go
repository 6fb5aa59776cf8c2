package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"rightshub.io/internal/auth"
)

const identityColumns = `id, kind, email, password_hash, status, failed_logins, locked_until,
	scopes, created_at, updated_at`

type identityStore struct{ db *sql.DB }

func (s *identityStore) FindByID(ctx context.Context, id string) (*auth.Identity, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+identityColumns+` from identities where id=$1`, id)
	return scanIdentity(row)
}

func (s *identityStore) FindByEmail(ctx context.Context, email string) (*auth.Identity, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+identityColumns+` from identities where email=$1`, email)
	return scanIdentity(row)
}

func (s *identityStore) RecordLoginSuccess(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update identities set failed_logins=0, locked_until=null, updated_at=$2
		where id=$1`, id, at)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

// RecordLoginFailure bumps the counter and stamps the lock in one statement,
// so concurrent failures cannot under-count past the threshold.
func (s *identityStore) RecordLoginFailure(ctx context.Context, id string, lockAfter int, lockFor time.Duration, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update identities set
			failed_logins = failed_logins + 1,
			locked_until = case when failed_logins + 1 >= $2 then $3 else locked_until end,
			updated_at = $4
		where id=$1`,
		id, lockAfter, at.Add(lockFor), at,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func scanIdentity(row rowScanner) (*auth.Identity, error) {
	var (
		identity auth.Identity
		hash     sql.NullString
		scopes   []byte
	)
	err := row.Scan(
		&identity.ID, &identity.Kind, &identity.Email, &hash, &identity.Status,
		&identity.FailedLogins, &identity.LockedUntil,
		&scopes, &identity.CreatedAt, &identity.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	identity.PasswordHash = hash.String
	if len(scopes) > 0 {
		_ = json.Unmarshal(scopes, &identity.Scopes)
	}
	return &identity, nil
}
