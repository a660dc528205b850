package database

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restockd/restockd/internal/models"
)

// setupTestDB connects to the database named by TEST_DB_* env vars. Tests
// are skipped when no test database is configured. The schema from
// migrations/001_init.sql must be applied.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	host := os.Getenv("TEST_DB_HOST")
	if host == "" {
		t.Skip("test database not configured (set TEST_DB_HOST)")
	}

	port := 5432
	if v := os.Getenv("TEST_DB_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			port = p
		}
	}

	db, err := New(context.Background(), Config{
		Host:     host,
		Port:     port,
		User:     getenvDefault("TEST_DB_USER", "postgres"),
		Password: os.Getenv("TEST_DB_PASSWORD"),
		Database: getenvDefault("TEST_DB_NAME", "restockd_test"),
		MaxConns: 4,
	})
	require.NoError(t, err)
	return db
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func createTestLink(t *testing.T, ctx context.Context, db *DB) *models.ProductRetailerLink {
	t.Helper()

	product := &models.Product{Name: "Test Product " + uuid.NewString()}
	require.NoError(t, db.InsertProduct(ctx, product))

	retailer, err := db.UpsertRetailer(ctx, "Test Retailer "+uuid.NewString())
	require.NoError(t, err)

	link := &models.ProductRetailerLink{
		ProductID:  product.ID,
		RetailerID: retailer.ID,
		URL:        "https://shop.example.com/" + uuid.NewString(),
	}
	require.NoError(t, db.InsertLink(ctx, link))
	return link
}

func TestProductLinkRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	link := createTestLink(t, ctx, db)
	assert.NotEqual(t, uuid.Nil, link.ID)

	product, err := db.GetProduct(ctx, link.ProductID)
	require.NoError(t, err)
	require.NotNil(t, product)

	links, err := db.ListLinks(ctx)
	require.NoError(t, err)

	var found bool
	for _, l := range links {
		if l.ID == link.ID {
			found = true
		}
	}
	assert.True(t, found)

	deleted, err := db.DeleteLink(ctx, link.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = db.DeleteLink(ctx, link.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestGetProductMissing(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	product, err := db.GetProduct(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, product)
}

func TestLatestCheckOrdering(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	link := createTestLink(t, ctx, db)

	latest, err := db.LatestCheck(ctx, link.ID)
	require.NoError(t, err)
	assert.Nil(t, latest)

	first := &models.AvailabilityCheck{
		LinkID:    link.ID,
		ProductID: link.ProductID,
		Status:    models.StatusOutOfStock,
	}
	require.NoError(t, db.InsertCheck(ctx, first))

	price := int64(1999)
	second := &models.AvailabilityCheck{
		LinkID:     link.ID,
		ProductID:  link.ProductID,
		Status:     models.StatusInStock,
		PriceMinor: &price,
		Currency:   "EUR",
		RawPrice:   "19.99",
	}
	require.NoError(t, db.InsertCheck(ctx, second))

	latest, err = db.LatestCheck(ctx, link.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, models.StatusInStock, latest.Status)
	require.NotNil(t, latest.PriceMinor)
	assert.Equal(t, int64(1999), *latest.PriceMinor)

	checks, err := db.ListChecks(ctx, link.ID, 10)
	require.NoError(t, err)
	require.Len(t, checks, 2)
	assert.Equal(t, models.StatusInStock, checks[0].Status)
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	domain := "session-test-" + uuid.NewString() + ".example.com"
	cookies := json.RawMessage(`[{"name":"cf_clearance","value":"abc"}]`)

	session, err := db.UpsertSession(ctx, domain, cookies, "test-agent", 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, domain, session.Domain)

	found, err := db.FindSession(ctx, domain)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "test-agent", found.UserAgent)

	// A later verification for the same domain supersedes the stored row.
	replaced, err := db.UpsertSession(ctx, domain, cookies, "other-agent", 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, session.ID, replaced.ID)

	require.NoError(t, db.DeleteSession(ctx, domain))

	found, err = db.FindSession(ctx, domain)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestExpiredSessionNotReturned(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	domain := "expired-" + uuid.NewString() + ".example.com"
	_, err := db.Exec(ctx, `
		INSERT INTO verified_sessions (id, domain, cookies, user_agent, created_at, expires_at)
		VALUES ($1, $2, '[]', 'test-agent', NOW() - INTERVAL '2 days', NOW() - INTERVAL '1 day')`,
		uuid.New(), domain)
	require.NoError(t, err)

	// The row still exists but lookup must not return it.
	found, err := db.FindSession(ctx, domain)
	require.NoError(t, err)
	assert.Nil(t, found)

	swept, err := db.DeleteExpiredSessions(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, swept, int64(1))
}

func TestRatePrecedence(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	require.NoError(t, db.UpsertRate(ctx, "USD", "EUR", 0.95, models.RateSourceAPI))

	rate, ok, err := db.FindRate(ctx, "USD", "EUR")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 0.95, rate, 1e-9)

	// The pair is unique, so a manual write overwrites the api row.
	require.NoError(t, db.UpsertRate(ctx, "USD", "EUR", 0.90, models.RateSourceManual))

	rate, ok, err = db.FindRate(ctx, "USD", "EUR")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 0.90, rate, 1e-9)

	_, ok, err = db.FindRate(ctx, "USD", "XXX")
	require.NoError(t, err)
	assert.False(t, ok)
}
