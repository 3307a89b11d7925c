// Package pgx implements graph storage on PostgreSQL with pgvector for
// similarity search over entity embeddings.
package pgx

import (
	"context"
	"sync"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// GraphDBStorage implements the store.GraphStorage interface using
// PostgreSQL with pgvector. Snapshot writes are serialized with a mutex so
// two concurrent saves of the same graph cannot interleave their
// delete-and-insert transactions.
//
// A GraphDBStorage should be created using NewGraphDBStorageWithConnection.
type GraphDBStorage struct {
	conn   pgxIConn
	dbLock sync.Mutex
}

// NewGraphDBStorageWithConnection creates a new GraphDBStorage using an
// existing database connection or pool. The schema must already be
// migrated.
func NewGraphDBStorageWithConnection(conn pgxIConn) *GraphDBStorage {
	return &GraphDBStorage{
		conn:   conn,
		dbLock: sync.Mutex{},
	}
}
