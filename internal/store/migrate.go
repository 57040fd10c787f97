package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/lifeline/internal/apperr"
	"github.com/starford/lifeline/internal/checksum"
)

// Migration is one forward step of the persisted schema. Shipped steps are
// never edited, renumbered or reordered; schema changes are appended.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Checksum fingerprints the step's SQL so that a mutated step is detected on
// stores where it was already applied.
func (m Migration) Checksum() string {
	return checksum.SumString(m.SQL)
}

// Registry is an ordered, append-only list of migration steps.
type Registry struct {
	steps []Migration
}

// NewRegistry validates that steps are numbered 1, 2, 3, ... in order and
// carry a description.
func NewRegistry(steps ...Migration) (*Registry, error) {
	for i, m := range steps {
		if m.Version != i+1 {
			return nil, fmt.Errorf("store: migration at position %d has version %d, want %d", i, m.Version, i+1)
		}
		if m.Description == "" {
			return nil, fmt.Errorf("store: migration %d has no description", m.Version)
		}
	}
	return &Registry{steps: steps}, nil
}

// MustRegistry is NewRegistry for package-level step lists.
func MustRegistry(steps ...Migration) *Registry {
	r, err := NewRegistry(steps...)
	if err != nil {
		panic(err)
	}
	return r
}

// Latest returns the version the registry migrates to.
func (r *Registry) Latest() int {
	return len(r.steps)
}

// Steps returns a copy of the registered steps.
func (r *Registry) Steps() []Migration {
	return append([]Migration(nil), r.steps...)
}

const versionTableSQL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version     INTEGER PRIMARY KEY,
	description TEXT NOT NULL,
	checksum    TEXT NOT NULL,
	applied_at  TEXT NOT NULL
);`

// Current returns the highest applied version, 0 for a new store.
func (r *Registry) Current(ctx context.Context, conn *sql.DB) (int, error) {
	if _, err := conn.ExecContext(ctx, versionTableSQL); err != nil {
		return 0, fmt.Errorf("create version table: %w", err)
	}
	var v int
	if err := conn.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&v); err != nil {
		return 0, fmt.Errorf("read version: %w", err)
	}
	return v, nil
}

// Apply brings conn to the latest version. Each pending step runs in its own
// transaction together with its version record, so a failing step leaves the
// store at the previous version. Applying to an up-to-date store is a no-op.
func (r *Registry) Apply(ctx context.Context, conn *sql.DB, logger *slog.Logger) (int, error) {
	current, err := r.Current(ctx, conn)
	if err != nil {
		return 0, &apperr.MigrationError{Err: err}
	}
	if current > r.Latest() {
		return 0, &apperr.MigrationError{
			Err: fmt.Errorf("store is at version %d but this build only knows %d", current, r.Latest()),
		}
	}
	if err := r.verifyApplied(ctx, conn); err != nil {
		return 0, err
	}

	applied := 0
	for _, m := range r.steps[current:] {
		start := time.Now()
		if err := applyStep(ctx, conn, m); err != nil {
			logger.Error("migration failed",
				slog.Int("version", m.Version),
				slog.String("description", m.Description),
				slog.String("error", err.Error()))
			return applied, &apperr.MigrationError{Version: m.Version, Description: m.Description, Err: err}
		}
		applied++
		logger.Info("migration applied",
			slog.Int("version", m.Version),
			slog.String("description", m.Description),
			slog.Duration("took", time.Since(start)))
	}
	return applied, nil
}

func applyStep(ctx context.Context, conn *sql.DB, m Migration) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, description, checksum, applied_at) VALUES (?, ?, ?, ?)`,
		m.Version, m.Description, m.Checksum(), Instant(time.Now()),
	); err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	return tx.Commit()
}

// verifyApplied rejects stores whose recorded steps differ from the shipped ones.
func (r *Registry) verifyApplied(ctx context.Context, conn *sql.DB) error {
	rows, err := conn.QueryContext(ctx, `SELECT version, description, checksum FROM schema_migrations ORDER BY version`)
	if err != nil {
		return &apperr.MigrationError{Err: fmt.Errorf("read applied steps: %w", err)}
	}
	defer rows.Close()

	for rows.Next() {
		var (
			version           int
			description, hash string
		)
		if err := rows.Scan(&version, &description, &hash); err != nil {
			return &apperr.MigrationError{Err: err}
		}
		if version < 1 || version > len(r.steps) {
			return &apperr.MigrationError{Version: version, Description: description, Err: errors.New("unknown step recorded")}
		}
		m := r.steps[version-1]
		if m.Description != description || m.Checksum() != hash {
			return &apperr.MigrationError{Version: version, Description: description, Err: errors.New("shipped step was modified after it was applied")}
		}
	}
	if err := rows.Err(); err != nil {
		return &apperr.MigrationError{Err: err}
	}
	return nil
}
