package testutil

import (
	"net/url"
	"testing"
)

func TestDefaultTestDBConfig(t *testing.T) {
	t.Run("defaults to the compose test profile", func(t *testing.T) {
		for _, k := range []string{"TEST_DB_HOST", "TEST_DB_PORT", "TEST_DB_USER", "TEST_DB_PASSWORD", "TEST_DB_NAME"} {
			t.Setenv(k, "")
		}

		cfg := DefaultTestDBConfig()
		want := TestDBConfig{
			Host:     "localhost",
			Port:     "55432",
			User:     "ledger",
			Password: "ledger",
			DBName:   "ledger_test",
		}
		if cfg != want {
			t.Errorf("DefaultTestDBConfig() = %+v, want %+v", cfg, want)
		}
	})

	t.Run("respects TEST_DB_* environment variables", func(t *testing.T) {
		t.Setenv("TEST_DB_HOST", "postgres")
		t.Setenv("TEST_DB_PORT", "5432")
		t.Setenv("TEST_DB_USER", "ci")
		t.Setenv("TEST_DB_PASSWORD", "secret")
		t.Setenv("TEST_DB_NAME", "ledger_ci")

		cfg := DefaultTestDBConfig()
		if cfg.Host != "postgres" || cfg.Port != "5432" {
			t.Errorf("expected postgres:5432, got %s:%s", cfg.Host, cfg.Port)
		}
		if cfg.User != "ci" || cfg.Password != "secret" || cfg.DBName != "ledger_ci" {
			t.Errorf("unexpected credentials %+v", cfg)
		}
	})
}

func TestTestDBConfig_DSN(t *testing.T) {
	t.Setenv("DB_SSL_MODE", "")
	cfg := TestDBConfig{Host: "db", Port: "5432", User: "u", Password: "p@ss", DBName: "ledger"}

	u, err := url.Parse(cfg.DSN("t_abc"))
	if err != nil {
		t.Fatal(err)
	}
	if u.Host != "db:5432" || u.Path != "/ledger" {
		t.Errorf("unexpected target %s%s", u.Host, u.Path)
	}
	if pw, _ := u.User.Password(); pw != "p@ss" {
		t.Errorf("password not round-tripped: %q", pw)
	}
	q := u.Query()
	if q.Get("sslmode") != "disable" || q.Get("search_path") != "t_abc,public" {
		t.Errorf("unexpected query %v", q)
	}

	if got := cfg.DSN(""); must(url.Parse(got)).Query().Has("search_path") {
		t.Errorf("search_path set without a schema: %s", got)
	}
}

func must(u *url.URL, err error) *url.URL {
	if err != nil {
		panic(err)
	}
	return u
}
