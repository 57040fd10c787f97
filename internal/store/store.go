// Package store owns the SQLite handle of a lifeline store: it opens the file,
// brings the schema to the latest version and serializes every write through
// a single writer goroutine.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultWriteTimeout bounds a single write transaction unless overridden.
const DefaultWriteTimeout = 5 * time.Second

// ErrClosed is returned by Tx after Close.
var ErrClosed = errors.New("store: closed")

// Option configures Open.
type Option func(*options)

type options struct {
	logger       *slog.Logger
	writeTimeout time.Duration
	registry     *Registry
}

// WithLogger sets the logger used for migrations and transaction failures.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithWriteTimeout sets the per-transaction time budget. Zero disables it.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) { o.writeTimeout = d }
}

// WithRegistry replaces the shipped migration steps.
func WithRegistry(r *Registry) Option {
	return func(o *options) { o.registry = r }
}

// DB is an open lifeline store. It is safe for concurrent use; writes are
// executed one at a time in submission order.
type DB struct {
	conn         *sql.DB
	logger       *slog.Logger
	writeTimeout time.Duration
	version      int

	jobs    chan writeJob
	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// Open opens (or creates) the store file at path and applies every pending
// migration before returning.
//
// Connections run in WAL mode with foreign keys on and take the write lock
// at BEGIN (_txlock=immediate), so readers never block behind the writer.
func Open(ctx context.Context, path string, opts ...Option) (*DB, error) {
	o := options{
		logger:       slog.Default(),
		writeTimeout: DefaultWriteTimeout,
		registry:     Migrations,
	}
	for _, opt := range opts {
		opt(&o)
	}

	conn, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	applied, err := o.registry.Apply(ctx, conn, o.logger)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	version, err := o.registry.Current(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: read schema version: %w", err)
	}
	o.logger.Info("store opened",
		slog.String("path", path),
		slog.Int("schema_version", version),
		slog.Int("migrations_applied", applied))

	db := &DB{
		conn:         conn,
		logger:       o.logger,
		writeTimeout: o.writeTimeout,
		version:      version,
		jobs:         make(chan writeJob),
		stopCh:       make(chan struct{}),
		stopped:      make(chan struct{}),
	}
	go db.writer()
	return db, nil
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate"
}

// SQL returns the pooled handle for reads. Writes must go through Tx.
func (db *DB) SQL() *sql.DB {
	return db.conn
}

// Version returns the schema version the store was opened at.
func (db *DB) Version() int {
	return db.version
}

// Close stops the writer and closes the underlying connections.
func (db *DB) Close() error {
	if db.closed.CompareAndSwap(false, true) {
		close(db.stopCh)
		<-db.stopped
	}
	return db.conn.Close()
}
