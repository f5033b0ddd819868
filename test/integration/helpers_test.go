//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/envsync/envsync/internal/config"
)

const testSchema = "envsync_e2e"

func pgParams(t *testing.T) config.ConnectionParameters {
	t.Helper()
	var port int
	fmt.Sscanf(envOrDefault("ENVSYNC_TEST_PG_PORT", "5432"), "%d", &port)
	return config.ConnectionParameters{
		Username:    envOrDefault("ENVSYNC_TEST_PG_USER", "postgres"),
		Password:    envOrDefault("ENVSYNC_TEST_PG_PASSWORD", "postgres"),
		Host:        envOrDefault("ENVSYNC_TEST_PG_HOST", "localhost"),
		Port:        port,
		ServiceName: envOrDefault("ENVSYNC_TEST_PG_DB", "envsync_test"),
		Schema:      testSchema,
	}
}

func pgConnString(p config.ConnectionParameters) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		p.Username, p.Password, p.Host, p.Port, p.ServiceName)
}

// pgPool connects to the test instance, skipping the test when none is
// configured or reachable.
func pgPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if os.Getenv("ENVSYNC_TEST_PG_HOST") == "" && os.Getenv("ENVSYNC_TEST_PG_PORT") == "" {
		t.Skip("skipping: ENVSYNC_TEST_PG_HOST/PORT not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, pgConnString(pgParams(t)))
	if err != nil {
		t.Skipf("skipping: cannot connect to PostgreSQL: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("skipping: cannot ping PostgreSQL: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func exec(t *testing.T, pool *pgxpool.Pool, stmts ...string) {
	t.Helper()
	for _, stmt := range stmts {
		if _, err := pool.Exec(context.Background(), stmt); err != nil {
			t.Fatalf("%q: %v", stmt, err)
		}
	}
}

func count(t *testing.T, pool *pgxpool.Pool, table string) int64 {
	t.Helper()
	var n int64
	if err := pool.QueryRow(context.Background(), "SELECT count(*) FROM "+testSchema+"."+table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
