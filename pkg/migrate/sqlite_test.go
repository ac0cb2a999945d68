package migrate_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/stockengine/pkg/db/dbtest"
	"github.com/angelmondragon/stockengine/pkg/migrate"
)

func TestApplySQLiteSchemaIsIdempotent(t *testing.T) {
	conn := dbtest.Open(t)
	require.NoError(t, migrate.ApplySQLiteSchema(context.Background(), conn))
}

func TestSQLiteSchemaRejectsNegativeStock(t *testing.T) {
	conn := dbtest.Open(t)

	err := conn.Exec(
		"INSERT INTO products (id, sku, title, price_cents, is_active, stock) VALUES (?, ?, ?, ?, ?, ?)",
		uuid.NewString(), "SKU-NEG", "Negative", 100, true, -1,
	).Error
	require.Error(t, err)
}

func TestSQLiteSchemaRejectsBrokenLogIdentity(t *testing.T) {
	conn := dbtest.Open(t)
	productID := uuid.NewString()
	require.NoError(t, conn.Exec(
		"INSERT INTO products (id, sku, title, price_cents, is_active, stock) VALUES (?, ?, ?, ?, ?, ?)",
		productID, "SKU-LOG", "Logged", 100, true, 10,
	).Error)

	err := conn.Exec(
		"INSERT INTO stock_logs (product_id, operation_type, quantity_delta, stock_before, stock_after, reason) VALUES (?, ?, ?, ?, ?, ?)",
		productID, "DECREMENT", -3, 10, 8, "bad_math",
	).Error
	require.Error(t, err)

	require.NoError(t, conn.Exec(
		"INSERT INTO stock_logs (product_id, operation_type, quantity_delta, stock_before, stock_after, reason) VALUES (?, ?, ?, ?, ?, ?)",
		productID, "RESERVE", -3, 10, 10, "reservation_created",
	).Error)
}
