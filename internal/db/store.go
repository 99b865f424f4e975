// internal/db/store.go
package db

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
)

// resourceEnvelope is the slice of a FHIR resource the loader needs.
type resourceEnvelope struct {
	ResourceType string `json:"resourceType"`
	ID           string `json:"id"`
}

// CreateResourceTable creates the table for a resource type if it does
// not exist yet. PostgreSQL stores the document as jsonb, SQLite as
// validated JSON text.
func (s *Store) CreateResourceTable(ctx context.Context, resourceType string) error {
	table := ResourceTable(resourceType)
	var stmt string
	if s.engine == EnginePostgres {
		stmt = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS "%s" (
    id       TEXT PRIMARY KEY,
    resource JSONB NOT NULL
)`, table)
	} else {
		stmt = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS "%s" (
    id       TEXT PRIMARY KEY,
    resource TEXT NOT NULL CHECK (json_valid(resource))
)`, table)
	}
	if _, err := s.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}
	return nil
}

// Put upserts a single resource document into its type table.
func (s *Store) Put(ctx context.Context, resourceType, id string, resource []byte) error {
	table := ResourceTable(resourceType)
	var stmt string
	if s.engine == EnginePostgres {
		stmt = fmt.Sprintf(`INSERT INTO "%s" (id, resource) VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET resource = EXCLUDED.resource`, table)
	} else {
		stmt = fmt.Sprintf(`INSERT INTO "%s" (id, resource) VALUES (?, ?)
ON CONFLICT (id) DO UPDATE SET resource = excluded.resource`, table)
	}
	if _, err := s.ExecContext(ctx, stmt, id, string(resource)); err != nil {
		return fmt.Errorf("failed to store %s/%s: %w", resourceType, id, err)
	}
	return nil
}

// LoadNDJSON reads newline-delimited JSON resources and stores each one
// in the table for its resourceType, creating tables as needed. It
// returns the number of resources loaded.
func (s *Store) LoadNDJSON(ctx context.Context, r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	created := make(map[string]bool)
	loaded := 0
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var env resourceEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return loaded, fmt.Errorf("line %d: invalid JSON: %w", line, err)
		}
		if env.ResourceType == "" {
			return loaded, fmt.Errorf("line %d: missing resourceType", line)
		}
		if env.ID == "" {
			return loaded, fmt.Errorf("line %d: missing id", line)
		}
		if !created[env.ResourceType] {
			if err := s.CreateResourceTable(ctx, env.ResourceType); err != nil {
				return loaded, err
			}
			created[env.ResourceType] = true
		}
		if err := s.Put(ctx, env.ResourceType, env.ID, raw); err != nil {
			return loaded, err
		}
		loaded++
	}
	if err := scanner.Err(); err != nil {
		return loaded, fmt.Errorf("failed to read input: %w", err)
	}
	return loaded, nil
}

// Row is one result of an executed query: the resource id and the
// evaluated value, NULL when the expression produced no value for a
// position.
type Row struct {
	ID    string
	Value sql.NullString
}

// Query runs a compiled SQL statement and collects its (id, value)
// rows in order.
func (s *Store) Query(ctx context.Context, query string) ([]Row, error) {
	rows, err := s.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var row Row
		if err := rows.Scan(&row.ID, &row.Value); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return out, nil
}
