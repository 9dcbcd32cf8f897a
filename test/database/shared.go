package database

import (
	"context"
	stdsql "database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sentinelstream/newsflow/pkg/database"
	"github.com/sentinelstream/newsflow/test/util"
)

// SharedTestDB creates a single PostgreSQL schema that can be shared by
// multiple test clients. Each client gets its own connection pool, but all
// pools point at the same schema — enabling tests where independent
// processes contend for the same rows and locks, e.g. two ingestion runners
// racing for the advisory lock or two worker pools claiming one queue.
type SharedTestDB struct {
	connStrWithSchema string
	baseConnStr       string
	schemaName        string
}

// NewSharedTestDB creates a shared test schema, runs migrations once, and
// registers t.Cleanup to drop the schema. Call NewClient to create an
// independent database client per simulated process.
func NewSharedTestDB(t *testing.T) *SharedTestDB {
	t.Helper()
	ctx := context.Background()

	baseConnStr := util.GetBaseConnectionString(t)
	schemaName := util.GenerateSchemaName(t)

	// Create the schema.
	db, err := stdsql.Open("pgx", baseConnStr)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA %s", schemaName))
	require.NoError(t, err)
	t.Logf("SharedTestDB: created schema %s", schemaName)
	_ = db.Close()

	// Connect with search_path and run migrations once, then close: each
	// simulated process creates its own client.
	connStrWithSchema := util.AddSearchPathToConnString(baseConnStr, schemaName)
	migrateClient, err := database.NewClientWithDSN(ctx, connStrWithSchema)
	require.NoError(t, err)
	require.NoError(t, migrateClient.Close())

	s := &SharedTestDB{
		connStrWithSchema: connStrWithSchema,
		baseConnStr:       baseConnStr,
		schemaName:        schemaName,
	}

	// Drop the schema after all clients have shut down (LIFO order
	// guarantees client cleanups run before this one).
	t.Cleanup(func() {
		cleanDB, err := stdsql.Open("pgx", baseConnStr)
		if err != nil {
			t.Logf("SharedTestDB: warning: could not connect to drop schema %s: %v", schemaName, err)
			return
		}
		defer func() { _ = cleanDB.Close() }()
		_, err = cleanDB.ExecContext(context.Background(), fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schemaName))
		if err != nil {
			t.Logf("SharedTestDB: warning: failed to drop schema %s: %v", schemaName, err)
		}
	})

	return s
}

// NewClient creates an independent *database.Client backed by a fresh
// connection pool to the shared schema. Migrations already ran, so the
// second pass is a no-op. The client's connections are closed via t.Cleanup.
func (s *SharedTestDB) NewClient(t *testing.T) *database.Client {
	t.Helper()

	client, err := database.NewClientWithDSN(context.Background(), s.connStrWithSchema)
	require.NoError(t, err)

	t.Cleanup(func() { _ = client.Close() })

	return client
}

// ConnString returns the schema-scoped connection string, for components
// that open their own connections.
func (s *SharedTestDB) ConnString() string {
	return s.connStrWithSchema
}
