package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/movies-api/internal/store"
)

var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict indicates a write collided with a concurrent change to a
	// record that still exists.
	ErrConflict = errors.New("repository: write conflict")
)

// dbtx is the subset of pgx shared by pools, pooled connections and
// transactions.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Session is the persistence context of a single request. It owns one pooled
// connection for its lifetime and must be closed when the request ends.
type Session struct {
	Movies *MoviesRepository
	conn   *pgxpool.Conn
}

// Open starts a session against the store. It fails with store.ErrUnavailable
// when the store is missing, not migrated, or out of connections.
func Open(ctx context.Context, st *store.Store) (*Session, error) {
	conn, err := st.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &Session{
		Movies: &MoviesRepository{db: conn},
		conn:   conn,
	}, nil
}

// Close releases the session's connection back to the pool. Calling it more
// than once is safe.
func (s *Session) Close() {
	if s == nil || s.conn == nil {
		return
	}
	s.conn.Release()
	s.conn = nil
}
