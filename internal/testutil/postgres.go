// Package testutil starts throwaway infrastructure for integration tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"storefront/internal/store"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// IntegrationEnv must be "1" for tests that start containers
const IntegrationEnv = "STOREFRONT_INTEGRATION"

// StartPostgres runs a migrated Postgres container for the test. It returns the
// store under test and a raw connection for seeding fixtures.
func StartPostgres(t *testing.T) (*store.Store, *sqlx.DB) {
	t.Helper()
	if os.Getenv(IntegrationEnv) != "1" {
		t.Skipf("Integration test - set %s=1 to run against a Postgres container", IntegrationEnv)
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:15-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "app",
				"POSTGRES_PASSWORD": "secret",
				"POSTGRES_DB":       "storefront_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	url := fmt.Sprintf("postgres://app:secret@%s:%s/storefront_test?sslmode=disable", host, port.Port())

	s, err := store.NewStore(url, 20, 5)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(ctx))

	db, err := sqlx.Connect("postgres", url)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return s, db
}

// SeedUser inserts a user with the given role
func SeedUser(t *testing.T, db *sqlx.DB, email, role string) int64 {
	t.Helper()
	var id int64
	require.NoError(t, db.Get(&id,
		"INSERT INTO users (email, name, role) VALUES ($1, $1, $2) RETURNING id", email, role))
	return id
}

// SeedAddress inserts an address owned by userID
func SeedAddress(t *testing.T, db *sqlx.DB, userID int64) int64 {
	t.Helper()
	var id int64
	require.NoError(t, db.Get(&id,
		"INSERT INTO addresses (user_id, line1, city) VALUES ($1, '1 Main St', 'Makati') RETURNING id", userID))
	return id
}

// SeedVariant inserts an active product with one variant and returns the variant id
func SeedVariant(t *testing.T, db *sqlx.DB, sku, price string, inventory int) int64 {
	t.Helper()
	var productID, variantID int64
	require.NoError(t, db.Get(&productID,
		"INSERT INTO products (name, slug) VALUES ($1, $2) RETURNING id", "Product "+sku, "product-"+sku))
	require.NoError(t, db.Get(&variantID, `
		INSERT INTO product_variants (product_id, sku, price, inventory, size, color)
		VALUES ($1, $2, $3, $4, 'M', 'Black') RETURNING id`, productID, sku, price, inventory))
	return variantID
}
