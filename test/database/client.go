package database

import (
	"testing"

	"github.com/sentinelstream/newsflow/pkg/database"
	"github.com/sentinelstream/newsflow/test/util"
)

// NewTestClient creates a test database client on a schema of its own.
// In CI (when CI_DATABASE_URL is set): connects to external PostgreSQL service container.
// In local dev: spins up a testcontainer with PostgreSQL.
// The schema and connections are automatically cleaned up when the test ends.
func NewTestClient(t *testing.T) *database.Client {
	return util.SetupTestDatabase(t)
}
