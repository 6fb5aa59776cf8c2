// Package pg implements the identity store on PostgreSQL.
package pg

import (
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"rightshub.io/internal/auth"
)

// Store implements auth.Store over a shared connection pool.
type Store struct {
	db *sql.DB
}

var _ auth.Store = (*Store)(nil)

// Open connects to PostgreSQL via the pgx stdlib driver.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing pool; used by tests with sqlmock.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Credentials() auth.CredentialStore { return &credentialStore{db: s.db} }
func (s *Store) Identities() auth.IdentityStore    { return &identityStore{db: s.db} }
func (s *Store) Roles() auth.RoleStore             { return &roleStore{db: s.db} }
