package testutil

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	// Registers the pgx database/sql driver.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/target/engagement-ledger/internal/migrate"
)

// TestingTB is the subset of testing.TB the helpers need.
type TestingTB interface {
	Helper()
	Skip(args ...any)
	Skipf(format string, args ...any)
	Fatal(args ...any)
	Fatalf(format string, args ...any)
	Logf(format string, args ...any)
	Cleanup(func())
}

// TestDBConfig locates the integration database.
type TestDBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// DefaultTestDBConfig reads TEST_DB_*; the defaults match the compose test profile.
func DefaultTestDBConfig() TestDBConfig {
	return TestDBConfig{
		Host:     envOr("TEST_DB_HOST", "localhost"),
		Port:     envOr("TEST_DB_PORT", "55432"),
		User:     envOr("TEST_DB_USER", "ledger"),
		Password: envOr("TEST_DB_PASSWORD", "ledger"),
		DBName:   envOr("TEST_DB_NAME", "ledger_test"),
	}
}

// DSN renders the config as a pgx URL, optionally pinned to a search_path.
func (c TestDBConfig) DSN(schema string) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, c.Port),
		Path:   "/" + c.DBName,
	}
	q := url.Values{}
	q.Set("sslmode", envOr("DB_SSL_MODE", "disable"))
	if schema != "" {
		q.Set("search_path", schema+",public")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Tables in child to parent order, so DELETE never trips a foreign key.
var ledgerTables = []string{
	"payment_time_entries",
	"time_entries",
	"payments",
	"milestones",
	"contracts",
	"applications",
	"job_posts",
	"jobs",
}

// SkipIfNoTestDB skips (or fails, under TEST_REQUIRE_DB) when Postgres is unreachable.
func SkipIfNoTestDB(t TestingTB) {
	t.Helper()
	db, err := open(DefaultTestDBConfig().DSN(""), 2*time.Second)
	if err != nil {
		unavailable(t, requireDB(), "test database", err)
		return
	}
	_ = db.Close()
}

// WithAutoDB hands fn a migrated, empty database. TEST_DB_EPHEMERAL selects a
// throwaway schema per test instead of truncating the shared one.
func WithAutoDB(t TestingTB, fn func(*sql.DB)) {
	t.Helper()
	SkipIfNoTestDB(t)
	if envBool("TEST_DB_EPHEMERAL") {
		fn(ephemeralDB(t))
		return
	}
	fn(sharedDB(t))
}

func sharedDB(t TestingTB) *sql.DB {
	t.Helper()
	db, err := open(DefaultTestDBConfig().DSN(""), 5*time.Second)
	if err != nil {
		t.Fatal("open test database:", err)
	}
	t.Cleanup(func() {
		truncate(t, db)
		_ = db.Close()
	})
	migrateOrFail(t, db)
	truncate(t, db)
	return db
}

func ephemeralDB(t TestingTB) *sql.DB {
	t.Helper()
	cfg := DefaultTestDBConfig()

	admin, err := open(cfg.DSN(""), 5*time.Second)
	if err != nil {
		t.Fatal("open admin connection:", err)
	}
	schema := schemaName()
	if _, err := admin.Exec("CREATE SCHEMA " + schema); err != nil {
		_ = admin.Close()
		t.Fatalf("create schema %s: %v", schema, err)
	}

	db, err := open(cfg.DSN(schema), 10*time.Second)
	t.Cleanup(func() {
		if db != nil {
			_ = db.Close()
		}
		if _, derr := admin.Exec("DROP SCHEMA IF EXISTS " + schema + " CASCADE"); derr != nil {
			t.Logf("drop schema %s: %v", schema, derr)
		}
		_ = admin.Close()
	})
	if err != nil {
		t.Fatal("open schema connection:", err)
	}
	db.SetMaxOpenConns(10)
	t.Logf("using schema %s", schema)
	migrateOrFail(t, db)
	return db
}

func open(dsn string, timeout time.Duration) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func migrateOrFail(t TestingTB, db *sql.DB) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := migrate.Run(ctx, db); err != nil {
		t.Fatal("run migrations:", err)
	}
}

func truncate(t TestingTB, db *sql.DB) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, table := range ledgerTables {
		if _, err := db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			t.Fatalf("clean %s: %v", table, err)
		}
	}
}

func schemaName() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("t_%d", time.Now().UnixNano())
	}
	return "t_" + hex.EncodeToString(b)
}

func unavailable(t TestingTB, required bool, what string, err error) {
	t.Helper()
	if required {
		t.Fatalf("%s not available: %v", what, err)
	}
	t.Skipf("%s not available: %v", what, err)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}

func requireDB() bool    { return envBool("TEST_REQUIRE_DB") || envBool("TEST_REQUIRE_INFRA") }
func requireRedis() bool { return envBool("TEST_REQUIRE_REDIS") || envBool("TEST_REQUIRE_INFRA") }
