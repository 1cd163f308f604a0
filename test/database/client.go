// Package database provides database client helpers for integration tests.
package database

import (
	"testing"

	"github.com/lexroom/reviewd/pkg/database"
	"github.com/lexroom/reviewd/test/util"
)

// NewTestClient creates a test database client.
// In CI (when CI_DATABASE_URL is set): connects to external PostgreSQL service container.
// In local dev: spins up a testcontainer with PostgreSQL.
// The container/connection is automatically cleaned up when the test ends.
func NewTestClient(t *testing.T) *database.Client {
	pool := util.SetupTestDatabase(t)
	return database.NewClientFromPool(pool)
}
