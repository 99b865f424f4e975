// internal/db/db.go
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Engine identifies the backing database of a Store.
type Engine string

const (
	EngineSQLite   Engine = "sqlite"
	EnginePostgres Engine = "postgres"
)

// Store is a thin handle over a resource database. Each resource type
// lives in its own table named after the lowercased type, with columns
// id (primary key) and resource (the JSON document).
type Store struct {
	*sql.DB
	engine Engine
}

// OpenSQLite opens (or creates) a SQLite resource store at path.
func OpenSQLite(path string) (*Store, error) {
	handle, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for concurrent reads
	if _, err := handle.Exec("PRAGMA journal_mode=WAL"); err != nil {
		handle.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := handle.Exec("PRAGMA foreign_keys=ON"); err != nil {
		handle.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return &Store{DB: handle, engine: EngineSQLite}, nil
}

// OpenPostgres connects to a PostgreSQL resource store.
func OpenPostgres(ctx context.Context, dsn string) (*Store, error) {
	handle, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := handle.PingContext(ctx); err != nil {
		handle.Close()
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	return &Store{DB: handle, engine: EnginePostgres}, nil
}

// Open dispatches on engine name. SQLite stores take a file path,
// PostgreSQL stores a connection string.
func Open(ctx context.Context, engine Engine, target string) (*Store, error) {
	switch engine {
	case EngineSQLite:
		return OpenSQLite(target)
	case EnginePostgres:
		return OpenPostgres(ctx, target)
	default:
		return nil, fmt.Errorf("unknown engine %q", engine)
	}
}

// Engine reports which database backs the store.
func (s *Store) Engine() Engine {
	return s.engine
}

// ResourceTable returns the table name for a resource type.
func ResourceTable(resourceType string) string {
	return strings.ToLower(resourceType)
}
