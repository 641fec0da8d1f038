package order_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/order-management/internal/config"
	"github.com/vasiliy-maslov/order-management/internal/db"
	"github.com/vasiliy-maslov/order-management/internal/order"
)

var testDB *db.Postgres

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func TestMain(m *testing.M) {
	cfg := config.PostgresConfig{
		Host:            envOr("DB_HOST_TEST", "localhost"),
		Port:            envOr("DB_PORT_TEST", "5432"),
		User:            envOr("DB_USER_TEST", "postgres"),
		Password:        envOr("DB_PASSWORD_TEST", "123456"),
		DBName:          envOr("DB_NAME_TEST", "orders_test"),
		SSLMode:         envOr("DB_SSLMODE_TEST", "disable"),
		MaxConns:        5,
		MinConns:        1,
		MaxConnLifetime: 5 * time.Minute,
		MigrationsPath:  "../../migrations",
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pg, err := db.New(ctx, cfg)
	cancel()
	if err != nil {
		log.Warn().Err(err).Str("db_host", cfg.Host).Msg("Test database unavailable, repository tests will be skipped")
	} else {
		testDB = pg
	}

	exitCode := m.Run()

	if testDB != nil {
		testDB.Close()
	}
	os.Exit(exitCode)
}

func setupRepository(t *testing.T) order.Repository {
	t.Helper()
	if testDB == nil {
		t.Skip("test database is not available")
	}

	truncate := func() {
		_, err := testDB.Pool.Exec(context.Background(), "TRUNCATE TABLE details, orders RESTART IDENTITY")
		require.NoError(t, err, "failed to truncate tables")
	}
	truncate()
	t.Cleanup(truncate)

	return order.NewRepository(testDB.Pool, testDB.DB)
}

func countDetails(t *testing.T, orderID int64) int {
	t.Helper()
	var n int
	err := testDB.Pool.QueryRow(context.Background(), "SELECT count(*) FROM details WHERE order_id = $1", orderID).Scan(&n)
	require.NoError(t, err)
	return n
}

func TestPostgresRepository_CreateAndGet(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	o := &order.Order{
		OrderDate:   now,
		TableNumber: 12,
		Details: []order.Detail{
			{MenuName: "Soup", Price: decimal.RequireFromString("5.50")},
		},
	}

	id, err := repo.Create(ctx, o)
	require.NoError(t, err)
	require.NotZero(t, id)
	assert.Equal(t, id, o.ID)
	assert.NotZero(t, o.Details[0].ID)
	assert.Equal(t, id, o.Details[0].OrderID)

	got, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 12, got.TableNumber)
	assert.WithinDuration(t, now, got.OrderDate, time.Millisecond)
	require.Len(t, got.Details, 1)
	assert.Equal(t, "Soup", got.Details[0].MenuName)
	assert.True(t, decimal.RequireFromString("5.50").Equal(got.Details[0].Price))
}

func TestPostgresRepository_GetByID_NotFound(t *testing.T) {
	repo := setupRepository(t)

	got, err := repo.GetByID(context.Background(), 12345)
	require.ErrorIs(t, err, order.ErrOrderNotFound)
	assert.Nil(t, got)
}

func TestPostgresRepository_Update_AppendsOnly(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	o := &order.Order{
		OrderDate:   time.Now().UTC(),
		TableNumber: 12,
		Details:     []order.Detail{{MenuName: "Soup", Price: decimal.RequireFromString("5.50")}},
	}
	_, err := repo.Create(ctx, o)
	require.NoError(t, err)
	soupID := o.Details[0].ID

	o.TableNumber = 15
	added := []order.Detail{{MenuName: "Bread", Price: decimal.RequireFromString("2.00"), OrderID: o.ID}}
	require.NoError(t, repo.Update(ctx, o, added))
	assert.NotZero(t, added[0].ID)

	got, err := repo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 15, got.TableNumber)
	require.Len(t, got.Details, 2)
	assert.Equal(t, soupID, got.Details[0].ID)
	assert.Equal(t, "Soup", got.Details[0].MenuName)
	assert.Equal(t, "Bread", got.Details[1].MenuName)
}

func TestPostgresRepository_Update_NotFound(t *testing.T) {
	repo := setupRepository(t)

	missing := &order.Order{ID: 999, TableNumber: 1}
	added := []order.Detail{{MenuName: "Tea", Price: decimal.NewFromInt(1), OrderID: 999}}

	err := repo.Update(context.Background(), missing, added)
	require.ErrorIs(t, err, order.ErrOrderNotFound)
	assert.Equal(t, 0, countDetails(t, 999))
}

func TestPostgresRepository_Delete(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	o := &order.Order{
		OrderDate:   time.Now().UTC(),
		TableNumber: 4,
		Details: []order.Detail{
			{MenuName: "Soup", Price: decimal.RequireFromString("5.50")},
			{MenuName: "Bread", Price: decimal.RequireFromString("2.00")},
		},
	}
	_, err := repo.Create(ctx, o)
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, o.ID))
	assert.Equal(t, 0, countDetails(t, o.ID))

	_, err = repo.GetByID(ctx, o.ID)
	require.ErrorIs(t, err, order.ErrOrderNotFound)

	err = repo.Delete(ctx, o.ID)
	require.ErrorIs(t, err, order.ErrOrderNotFound)
}

func TestPostgresRepository_List(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	empty, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	first := &order.Order{OrderDate: time.Now().UTC(), TableNumber: 1,
		Details: []order.Detail{{MenuName: "Soup", Price: decimal.RequireFromString("5.50")}}}
	second := &order.Order{OrderDate: time.Now().UTC(), TableNumber: 2, Details: []order.Detail{}}
	_, err = repo.Create(ctx, first)
	require.NoError(t, err)
	_, err = repo.Create(ctx, second)
	require.NoError(t, err)

	orders, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, first.ID, orders[0].ID)
	require.Len(t, orders[0].Details, 1)
	assert.Equal(t, "Soup", orders[0].Details[0].MenuName)
	assert.Empty(t, orders[1].Details)
}

func TestPostgresRepository_List_ManyOrders(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	const bulk = 70000
	_, err := testDB.Pool.Exec(ctx, `
		INSERT INTO orders (order_date, table_number)
		SELECT now(), (n % 9) + 1 FROM generate_series(1, $1) AS n
	`, bulk)
	require.NoError(t, err)

	err = repo.Update(ctx, &order.Order{ID: 2, TableNumber: 3}, []order.Detail{
		{MenuName: "Tea", Price: decimal.RequireFromString("1.20"), OrderID: 2},
	})
	require.NoError(t, err)
	err = repo.Update(ctx, &order.Order{ID: bulk, TableNumber: 4}, []order.Detail{
		{MenuName: "Cake", Price: decimal.RequireFromString("3.00"), OrderID: bulk},
		{MenuName: "Coffee", Price: decimal.RequireFromString("2.10"), OrderID: bulk},
	})
	require.NoError(t, err)

	orders, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, orders, bulk)

	assert.Empty(t, orders[0].Details)
	require.Len(t, orders[1].Details, 1)
	assert.Equal(t, "Tea", orders[1].Details[0].MenuName)

	last := orders[bulk-1]
	assert.Equal(t, int64(bulk), last.ID)
	require.Len(t, last.Details, 2)
	assert.Equal(t, "Cake", last.Details[0].MenuName)
	assert.Equal(t, "Coffee", last.Details[1].MenuName)
}
