package testutils

import (
	"context"
	"os"
	"testing"

	"github.com/krew-solutions/ascetic-query-go/asceticquery/session"
	pgxsession "github.com/krew-solutions/ascetic-query-go/asceticquery/session/pgx"
)

const (
	PgDsnEnv      = "ASCETICQUERY_PG_DSN"
	MongoUriEnv   = "ASCETICQUERY_MONGO_URI"
	ElasticUrlEnv = "ASCETICQUERY_ELASTIC_URL"
)

// NewPgSessionPool connects to the database named by ASCETICQUERY_PG_DSN and
// skips the test when it is not set.
func NewPgSessionPool(t testing.TB) session.SessionPool {
	t.Helper()
	dsn := RequireEnv(t, PgDsnEnv)
	pool, err := pgxsession.Connect(context.Background(), dsn)
	if err != nil {
		t.Fatalf("unable to connect to %s: %v", PgDsnEnv, err)
	}
	t.Cleanup(pool.Close)
	return pool
}

// RequireEnv returns the value of key or skips the test.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		t.Skipf("%s is not set", key)
	}
	return value
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}

	return fallback
}

// MongoDatabase is the database used by integration tests.
func MongoDatabase() string {
	return getEnv("ASCETICQUERY_MONGO_DATABASE", "asceticquery_test")
}

// ElasticIndexPrefix prefixes the indices created by integration tests.
func ElasticIndexPrefix() string {
	return getEnv("ASCETICQUERY_ELASTIC_INDEX_PREFIX", "asceticquery_test_")
}
