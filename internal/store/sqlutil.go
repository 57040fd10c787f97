package store

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"time"

	"github.com/starford/lifeline/internal/models"
)

// Querier is satisfied by *sql.DB and *sql.Tx so that read helpers can run
// either on the pool or inside a write transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Scanner is the subset of *sql.Row and *sql.Rows used by row decoders.
type Scanner interface {
	Scan(dest ...any) error
}

// Seq runs query lazily: nothing touches the database until the sequence is
// ranged over, and every range re-runs the query. Breaking out of the range
// closes the rows.
func Seq[T any](ctx context.Context, q Querier, scan func(Scanner) (T, error), query string, args ...any) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		rows, err := q.QueryContext(ctx, query, args...)
		if err != nil {
			yield(zero, err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			v, err := scan(rows)
			if err != nil {
				yield(zero, err)
				return
			}
			if !yield(v, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(zero, err)
		}
	}
}

// Collect drains seq into a slice, stopping at the first error.
func Collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	var out []T
	for v, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// NullString maps "" to NULL.
func NullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Instant encodes t for storage.
func Instant(t time.Time) string {
	return models.FormatInstant(t)
}

// NullInstant encodes an optional instant.
func NullInstant(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: models.FormatInstant(*t), Valid: true}
}

// ParseStored decodes an instant read back from storage.
func ParseStored(s string) (time.Time, error) {
	t, err := models.ParseInstant(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("store: corrupt instant: %w", err)
	}
	return t, nil
}

// ParseStoredNull decodes an optional stored instant.
func ParseStoredNull(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := ParseStored(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
