// internal/db/db_test.go
package db

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markb/fhirsql/internal/dialect"
	"github.com/markb/fhirsql/internal/sqlgen"
)

func TestOpenSQLite(t *testing.T) {
	path := t.TempDir() + "/test.db"
	store, err := OpenSQLite(path)
	require.NoError(t, err)
	defer store.Close()

	// Verify WAL mode is enabled
	var journalMode string
	err = store.QueryRow("PRAGMA journal_mode").Scan(&journalMode)
	require.NoError(t, err)
	assert.Equal(t, "wal", journalMode)
	assert.Equal(t, EngineSQLite, store.Engine())
}

func TestOpenUnknownEngine(t *testing.T) {
	_, err := Open(context.Background(), Engine("oracle"), "whatever")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown engine")
}

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenSQLite(t.TempDir() + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCreateResourceTable(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateResourceTable(ctx, "Patient"))

	var count int
	err := store.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='patient'").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "patient table should exist")

	// Creating again is a no-op
	require.NoError(t, store.CreateResourceTable(ctx, "Patient"))

	// Invalid JSON is rejected by the check constraint
	_, err = store.Exec(`INSERT INTO "patient" (id, resource) VALUES ('x', 'not json')`)
	assert.Error(t, err)
}

func TestPutUpserts(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateResourceTable(ctx, "Patient"))

	require.NoError(t, store.Put(ctx, "Patient", "p1", []byte(`{"resourceType":"Patient","id":"p1","active":true}`)))
	require.NoError(t, store.Put(ctx, "Patient", "p1", []byte(`{"resourceType":"Patient","id":"p1","active":false}`)))

	var count int
	require.NoError(t, store.QueryRow(`SELECT COUNT(*) FROM "patient"`).Scan(&count))
	assert.Equal(t, 1, count)

	var active string
	require.NoError(t, store.QueryRow(`SELECT json_extract(resource, '$.active') FROM "patient" WHERE id = 'p1'`).Scan(&active))
	assert.Equal(t, "0", active)
}

func TestLoadNDJSON(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	bundle := strings.Join([]string{
		`{"resourceType":"Patient","id":"p1","name":[{"family":"Chalmers","given":["Peter","James"]}]}`,
		`{"resourceType":"Patient","id":"p2","name":[{"family":"Levin","given":["Henry"]}]}`,
		``,
		`{"resourceType":"Observation","id":"o1","status":"final"}`,
	}, "\n")

	n, err := store.LoadNDJSON(ctx, strings.NewReader(bundle))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	var patients, observations int
	require.NoError(t, store.QueryRow(`SELECT COUNT(*) FROM "patient"`).Scan(&patients))
	require.NoError(t, store.QueryRow(`SELECT COUNT(*) FROM "observation"`).Scan(&observations))
	assert.Equal(t, 2, patients)
	assert.Equal(t, 1, observations)
}

func TestLoadNDJSONRejectsBadLines(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.LoadNDJSON(ctx, strings.NewReader(`{"id":"p1"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing resourceType")

	_, err = store.LoadNDJSON(ctx, strings.NewReader(`{"resourceType":"Patient"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing id")

	_, err = store.LoadNDJSON(ctx, strings.NewReader(`{broken`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid JSON")
}

func TestQueryRunsCompiledSQL(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	bundle := strings.Join([]string{
		`{"resourceType":"Patient","id":"p1","name":[{"family":"Chalmers","given":["Peter","James"]}]}`,
		`{"resourceType":"Patient","id":"p2","name":[{"family":"Levin","given":["Henry"]}]}`,
		`{"resourceType":"Patient","id":"p3"}`,
	}, "\n")
	_, err := store.LoadNDJSON(ctx, strings.NewReader(bundle))
	require.NoError(t, err)

	query, err := sqlgen.Compile("Patient.name.given", "Patient", dialect.SQLite{})
	require.NoError(t, err)

	rows, err := store.Query(ctx, query)
	require.NoError(t, err)

	var got []string
	for _, row := range rows {
		require.True(t, row.Value.Valid)
		got = append(got, row.ID+":"+row.Value.String)
	}
	assert.Equal(t, []string{"p1:Peter", "p1:James", "p2:Henry"}, got)
}

func TestQueryCountPerPatient(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	bundle := strings.Join([]string{
		`{"resourceType":"Patient","id":"p1","name":[{"given":["Peter","James"]},{"given":["Jim"]}]}`,
		`{"resourceType":"Patient","id":"p2"}`,
	}, "\n")
	_, err := store.LoadNDJSON(ctx, strings.NewReader(bundle))
	require.NoError(t, err)

	query, err := sqlgen.Compile("Patient.name.given.count()", "Patient", dialect.SQLite{})
	require.NoError(t, err)

	rows, err := store.Query(ctx, query)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "3", rows[0].Value.String)
	assert.Equal(t, "0", rows[1].Value.String)
}
