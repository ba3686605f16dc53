package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("database is closed")

const defaultBusyTimeout = 5 * time.Second

// Option configures optional DB features.
type Option func(*options)

type options struct {
	passphrase  string
	busyTimeout time.Duration
}

// WithPassphrase opens the password-protected variant of the database.
func WithPassphrase(passphrase string) Option {
	return func(o *options) { o.passphrase = passphrase }
}

// WithBusyTimeout sets how long the engine waits on a locked database file.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.busyTimeout = d
		}
	}
}

// DB manages a single SQLite database file.
//
// Every exported method holds mu for its whole duration, so at most one
// statement is in flight per DB. Each operation runs on a connection of its
// own which is closed when the operation returns; the pool keeps no idle
// connections.
type DB struct {
	mu     sync.Mutex
	path   string
	conn   *sqlx.DB
	inited bool
	closed bool
}

// Open resolves path to an absolute file name, creates its directory if
// missing and prepares a handle. The database file itself is created by the
// engine on first use.
func Open(path string, opts ...Option) (*DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("database path is required")
	}

	o := options{busyTimeout: defaultBusyTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path %q: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}

	conn, err := sqlx.Open(driverName, dataSourceName(abs, o))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(0)

	return &DB{path: abs, conn: conn}, nil
}

// Path returns the absolute database file name.
func (d *DB) Path() string { return d.path }

// Close releases the handle. Further calls return ErrClosed.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	return d.conn.Close()
}

// Initialize creates the reserved table_version table if needed. It is safe
// to call repeatedly; only the first successful call does any work.
func (d *DB) Initialize() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.initLocked()
}

// initLocked requires d.mu.
func (d *DB) initLocked() error {
	if d.closed {
		return ErrClosed
	}
	if d.inited {
		return nil
	}

	if err := d.conn.Ping(); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	if err := migrate(d.conn.DB); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	d.inited = true
	log.WithField("path", d.path).Info("database initialized")
	return nil
}

// withConn runs fn on a dedicated connection that is closed afterwards.
// Caller must hold d.mu.
func (d *DB) withConn(fn func(ctx context.Context, c *sqlx.Conn) error) error {
	if d.closed {
		return ErrClosed
	}

	ctx := context.Background()
	c, err := d.conn.Connx(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer c.Close() //nolint:errcheck

	return fn(ctx, c)
}

// TableExists reports whether a table of the given name exists.
func (d *DB) TableExists(name string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	st, err := Translate(NewTemplate(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, Text(name)))
	if err != nil {
		return false, err
	}

	var exists bool
	err = d.withConn(func(ctx context.Context, c *sqlx.Conn) error {
		v, err := scalar(ctx, c, st)
		if err != nil {
			return err
		}
		n, _ := v.AsInt()
		exists = n > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("table exists %q: %w", name, err)
	}
	return exists, nil
}
