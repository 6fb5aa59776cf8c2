// Package migrate applies on-disk SQL migrations and seed files.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	migrationsTable = "schema_migrations"
	seedsTable      = "schema_seeds"
)

// Manager runs SQL files from a migrations directory and records what it has
// applied. Each file runs inside one transaction.
type Manager struct {
	db            *sql.DB
	migrationsDir string
	seedsDir      string
}

func NewManager(db *sql.DB, migrationsDir, seedsDir string) *Manager {
	return &Manager{db: db, migrationsDir: migrationsDir, seedsDir: seedsDir}
}

// Up applies every pending *.up.sql in lexical order.
func (m *Manager) Up(ctx context.Context) error {
	if err := m.ensureTables(ctx); err != nil {
		return err
	}
	applied, err := m.applied(ctx, migrationsTable)
	if err != nil {
		return err
	}
	files, err := listSQL(m.migrationsDir, ".up.sql")
	if err != nil {
		return err
	}
	for _, f := range files {
		if applied[filepath.Base(f)] {
			continue
		}
		if err := m.execFile(ctx, f); err != nil {
			return fmt.Errorf("apply %s: %w", filepath.Base(f), err)
		}
		if err := m.record(ctx, migrationsTable, filepath.Base(f)); err != nil {
			return err
		}
	}
	return nil
}

// Down rolls back the most recently applied migration using its *.down.sql
// counterpart.
func (m *Manager) Down(ctx context.Context) error {
	if err := m.ensureTables(ctx); err != nil {
		return err
	}
	history, err := m.history(ctx)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		return errors.New("no migrations applied")
	}
	last := history[len(history)-1]
	down := filepath.Join(m.migrationsDir, strings.TrimSuffix(last, ".up.sql")+".down.sql")
	if _, err := os.Stat(down); err != nil {
		return fmt.Errorf("missing down migration for %s", last)
	}
	if err := m.execFile(ctx, down); err != nil {
		return fmt.Errorf("rollback %s: %w", last, err)
	}
	_, err = m.db.ExecContext(ctx,
		fmt.Sprintf(`delete from %s where name=$1`, migrationsTable), last)
	return err
}

// Status lists applied migrations in order.
func (m *Manager) Status(ctx context.Context) ([]string, error) {
	if err := m.ensureTables(ctx); err != nil {
		return nil, err
	}
	return m.history(ctx)
}

// Seed applies seed files once each.
func (m *Manager) Seed(ctx context.Context) error {
	if err := m.ensureTables(ctx); err != nil {
		return err
	}
	applied, err := m.applied(ctx, seedsTable)
	if err != nil {
		return err
	}
	files, err := listSQL(m.seedsDir, ".sql")
	if err != nil {
		return err
	}
	for _, f := range files {
		if applied[filepath.Base(f)] {
			continue
		}
		if err := m.execFile(ctx, f); err != nil {
			return fmt.Errorf("seed %s: %w", filepath.Base(f), err)
		}
		if err := m.record(ctx, seedsTable, filepath.Base(f)); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) ensureTables(ctx context.Context) error {
	for _, table := range []string{migrationsTable, seedsTable} {
		ddl := fmt.Sprintf(`
			create table if not exists %s (
				name text primary key,
				applied_at timestamptz not null default now()
			)`, table)
		if _, err := m.db.ExecContext(ctx, ddl); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) execFile(ctx context.Context, path string) error {
	body, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, string(body)); err != nil {
		return err
	}
	return tx.Commit()
}

func (m *Manager) record(ctx context.Context, table, name string) error {
	_, err := m.db.ExecContext(ctx,
		fmt.Sprintf(`insert into %s(name, applied_at) values($1,$2)`, table),
		name, time.Now().UTC())
	return err
}

func (m *Manager) applied(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := m.db.QueryContext(ctx, fmt.Sprintf(`select name from %s`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out[name] = true
	}
	return out, rows.Err()
}

func (m *Manager) history(ctx context.Context) ([]string, error) {
	rows, err := m.db.QueryContext(ctx,
		fmt.Sprintf(`select name from %s order by applied_at asc`, migrationsTable))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func listSQL(dir, suffix string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), suffix) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}
