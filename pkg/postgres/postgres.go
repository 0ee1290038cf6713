// Package postgres implements the persistence collaborator on PostgreSQL.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackney-volunteers/shift-signup/pkg/core/model"
	"github.com/hackney-volunteers/shift-signup/pkg/db"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// lockTimeoutSQLState is the SQLSTATE postgres reports when lock_timeout expires.
const lockTimeoutSQLState = "55P03"

// DB provides database operations using PostgreSQL.
type DB struct {
	pool     *pgxpool.Pool
	lockWait time.Duration
}

// NewDB creates a new PostgreSQL database connection. lockWait bounds how
// long a signup attempt blocks on the serializing row locks.
func NewDB(ctx context.Context, connString string, lockWait time.Duration) (*DB, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if lockWait <= 0 {
		lockWait = db.DefaultLockWait
	}
	return &DB{pool: pool, lockWait: lockWait}, nil
}

// Close closes the database connection pool.
func (d *DB) Close() {
	d.pool.Close()
}

// RunMigrations executes all pending SQL migration files in order. It tracks
// which migrations have been applied in a schema_migrations table.
func (d *DB) RunMigrations(ctx context.Context) error {
	_, err := d.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	rows, err := d.pool.Query(ctx, `SELECT filename FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("failed to query applied migrations: %w", err)
	}
	applied := make(map[string]bool)
	for rows.Next() {
		var filename string
		if err := rows.Scan(&filename); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration filename: %w", err)
		}
		applied[filename] = true
	}
	rows.Close()

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var sqlFiles []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			sqlFiles = append(sqlFiles, entry.Name())
		}
	}
	sort.Strings(sqlFiles)

	for _, filename := range sqlFiles {
		if applied[filename] {
			continue
		}

		content, err := fs.ReadFile(migrationsFS, "migrations/"+filename)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", filename, err)
		}

		tx, err := d.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for %s: %w", filename, err)
		}

		if _, err := tx.Exec(ctx, string(content)); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("failed to execute migration %s: %w", filename, err)
		}

		if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, filename); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("failed to record migration %s: %w", filename, err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", filename, err)
		}
	}

	return nil
}

// View runs fn in a read-only transaction without entity locks.
func (d *DB) View(ctx context.Context, fn func(db.Tx) error) error {
	return d.inTransaction(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx})
	})
}

// Update runs fn in a read-write transaction without entity locks.
func (d *DB) Update(ctx context.Context, fn func(db.Tx) error) error {
	return d.inTransaction(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx})
	})
}

// UpdateLocked runs fn while holding FOR UPDATE locks on the participant's
// account row (registered owners only) and the shift row, acquired in that
// fixed order so two attempts touching the same pair can never deadlock.
// lock_timeout bounds the wait; expiry surfaces as db.ErrLockTimeout.
func (d *DB) UpdateLocked(ctx context.Context, owner model.Owner, shiftID string, fn func(db.Tx) error) error {
	err := d.inTransaction(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		timeout := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", d.lockWait.Milliseconds())
		if _, err := tx.Exec(ctx, timeout); err != nil {
			return fmt.Errorf("failed to set lock timeout: %w", err)
		}

		// Lock order: participant account first, then shift. The upsert takes
		// the row lock whether or not the account row existed beforehand.
		if !owner.IsPlaceholder() {
			_, err := tx.Exec(ctx, `
				INSERT INTO accounts (id, display_name) VALUES ($1, $2)
				ON CONFLICT (id) DO UPDATE SET id = EXCLUDED.id
			`, owner.UserID, owner.DisplayName)
			if err != nil {
				return fmt.Errorf("failed to lock account: %w", err)
			}
		}
		var id string
		if err := tx.QueryRow(ctx, `SELECT id FROM shifts WHERE id = $1 FOR UPDATE`, shiftID).Scan(&id); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("shift %s: %w", shiftID, db.ErrNotFound)
			}
			return fmt.Errorf("failed to lock shift: %w", err)
		}

		return fn(&pgTx{tx: tx})
	})

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == lockTimeoutSQLState {
		return db.ErrLockTimeout
	}
	return err
}

func (d *DB) inTransaction(ctx context.Context, opts pgx.TxOptions, fn func(pgx.Tx) error) error {
	tx, err := d.pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
