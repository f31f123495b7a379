package ledger

import (
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/texsearch/texsearch/pkg/config"
	"github.com/texsearch/texsearch/pkg/postgres"
)

func TestNilLedgerRecordIsNoop(t *testing.T) {
	var l *Ledger
	l.Record(t.Context(), DocumentOutcome{DocID: "doc1", Seq: 1, Status: StatusIndexed, AppliedAt: time.Now()})
}

func TestNilDBRecordIsNoop(t *testing.T) {
	l := New(nil)
	l.Record(t.Context(), DocumentOutcome{DocID: "doc1", Seq: 1, Status: StatusFailed, AppliedAt: time.Now()})
}

// TestRecordAndRecentFailures exercises the real Postgres path; it is
// skipped when no test database is reachable.
func TestRecordAndRecentFailures(t *testing.T) {
	db := skipIfNoPostgres(t)
	l := New(db)

	now := time.Now().UTC()
	l.Record(t.Context(), DocumentOutcome{DocID: "doc-ledger-test", Seq: 1, Status: StatusFailed, AppliedAt: now, Reason: "preprocessor timeout"})

	failures, err := l.RecentFailures(t.Context(), 10)
	if err != nil {
		t.Fatalf("RecentFailures: %v", err)
	}
	found := false
	for _, f := range failures {
		if f.DocID == "doc-ledger-test" && f.Reason == "preprocessor timeout" {
			found = true
		}
	}
	if !found {
		t.Fatalf("recorded outcome not found in RecentFailures: %+v", failures)
	}
}

func skipIfNoPostgres(t *testing.T) *postgres.Client {
	t.Helper()
	cfg := config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            envOrDefaultInt("TEST_POSTGRES_PORT", 5432),
		Database:        envOrDefault("TEST_POSTGRES_DB", "texsearch_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "texsearch"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
	db, err := postgres.New(cfg)
	if err != nil {
		t.Skipf("skipping: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
