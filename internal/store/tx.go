package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/lifeline/internal/apperr"
)

// TxFunc is a unit of work. It must only use the given tx and ctx; calling
// Tx again from inside a TxFunc deadlocks the writer.
type TxFunc func(ctx context.Context, tx *sql.Tx) error

type writeJob struct {
	ctx  context.Context
	name string
	fn   TxFunc
	done chan error
}

// Tx runs fn inside one transaction on the writer goroutine. The transaction
// commits only when fn returns nil; any error, panic or time-budget overrun
// rolls it back completely. name labels the job in errors and logs.
func (db *DB) Tx(ctx context.Context, name string, fn TxFunc) error {
	if db.closed.Load() {
		return ErrClosed
	}
	if db.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, db.writeTimeout)
		defer cancel()
	}

	job := writeJob{ctx: ctx, name: name, fn: fn, done: make(chan error, 1)}
	select {
	case db.jobs <- job:
	case <-ctx.Done():
		return db.ctxErr(ctx, name)
	case <-db.stopped:
		return ErrClosed
	}

	// The job observes ctx itself, so waiting here is bounded by the budget.
	return <-job.done
}

// writer owns the only write path. Jobs run strictly one after another.
func (db *DB) writer() {
	defer close(db.stopped)
	for {
		select {
		case <-db.stopCh:
			return
		case job := <-db.jobs:
			job.done <- db.run(job)
		}
	}
}

func (db *DB) run(job writeJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("store: %s: panic: %v", job.name, r)
			db.logger.Error("transaction panicked", slog.String("tx", job.name), slog.Any("panic", r))
		}
	}()

	if job.ctx.Err() != nil {
		return db.ctxErr(job.ctx, job.name)
	}

	tx, err := db.conn.BeginTx(job.ctx, nil)
	if err != nil {
		if job.ctx.Err() != nil {
			return db.ctxErr(job.ctx, job.name)
		}
		return fmt.Errorf("store: %s: begin tx: %w", job.name, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := job.fn(job.ctx, tx); err != nil {
		if job.ctx.Err() != nil {
			return db.ctxErr(job.ctx, job.name)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		if job.ctx.Err() != nil {
			return db.ctxErr(job.ctx, job.name)
		}
		return fmt.Errorf("store: %s: commit: %w", job.name, err)
	}
	return nil
}

func (db *DB) ctxErr(ctx context.Context, name string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		db.logger.Warn("transaction timed out", slog.String("tx", name), slog.Duration("budget", db.writeTimeout))
		return fmt.Errorf("%w: %s exceeded its time budget", apperr.ErrTimeout, name)
	}
	return fmt.Errorf("store: %s: %w", name, ctx.Err())
}
