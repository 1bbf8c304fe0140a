//go:build e2e

// test/e2e/e2e_test.go
package e2e

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relationship-metrics/internal/analysis"
	"relationship-metrics/internal/cache"
	"relationship-metrics/internal/common/config"
	"relationship-metrics/internal/common/database"
	"relationship-metrics/internal/common/logger"
	"relationship-metrics/pkg/registry"

	crm "relationship-metrics/internal/workers/analytics/compute-relationship-metrics"
	ssd "relationship-metrics/internal/workers/communication/send-score-digest"
)

// Run with:
//
//	E2E_POSTGRES_DSN=postgres://... E2E_REDIS_ADDR=localhost:6379 go test -tags e2e ./test/e2e/...

type capturedMail struct {
	to      []string
	subject string
	body    string
}

type captureMailer struct {
	sent []capturedMail
}

func (c *captureMailer) Send(_ context.Context, to []string, subject, body string) (string, error) {
	c.sent = append(c.sent, capturedMail{to: to, subject: subject, body: body})
	return fmt.Sprintf("mail-%d", len(c.sent)), nil
}

func requireEnv(t *testing.T, name string) string {
	t.Helper()
	v := os.Getenv(name)
	if v == "" {
		t.Skipf("%s not set", name)
	}
	return v
}

func seedCheckouts(t *testing.T, db *sql.DB, table string) {
	t.Helper()
	_, err := db.Exec(`CREATE TABLE ` + table + ` (
		country_code  TEXT,
		phone_number  TEXT,
		location      TEXT,
		provider      TEXT,
		checkout_at   TIMESTAMPTZ,
		service_item  TEXT,
		checkout_kind TEXT,
		requested     BOOLEAN
	)`)
	require.NoError(t, err)
	t.Cleanup(func() { db.Exec(`DROP TABLE IF EXISTS ` + table) })

	base := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	rows := []struct {
		phone, location, provider string
		day                       int
		item                      string
	}{
		{"0912000001", "North", "Amy", 0, "剪髮 60分鐘"},
		{"0912000002", "North", "Amy", 4, "洗髮 30分鐘"},
		{"0912000001", "North", "Amy", 35, "剪髮 60分鐘"},
		{"0912000003", "South", "Ben", 10, "染髮 90分鐘"},
		{"0912000003", "South", "Ben", 100, "染髮 90分鐘"},
		{"0912000004", "South", "Ben", 120, "剪髮 60分鐘"},
	}
	for _, r := range rows {
		_, err := db.Exec(
			`INSERT INTO `+table+` VALUES ('886', $1, $2, $3, $4, $5, '服務', false)`,
			r.phone, r.location, r.provider, base.AddDate(0, 0, r.day), r.item,
		)
		require.NoError(t, err)
	}
}

func TestComputeAndDigest(t *testing.T) {
	dsn := requireEnv(t, "E2E_POSTGRES_DSN")
	redisAddr := requireEnv(t, "E2E_REDIS_ADDR")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	log := logger.NewTestLogger(t)

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.PingContext(ctx))

	table := fmt.Sprintf("e2e_checkouts_%d", time.Now().UnixNano())
	seedCheckouts(t, db, table)

	source, err := database.NewSnapshotSource(db, database.DialectPostgres, database.SourceTables{Checkouts: table}, 30*time.Second)
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer rdb.Close()
	require.NoError(t, rdb.Ping(ctx).Err())
	scores := cache.NewScoreCache(rdb, 10*time.Minute, log)

	catalog, err := registry.Default()
	require.NoError(t, err)
	engine, err := analysis.NewEngine(analysis.DefaultParams(), catalog, config.DefaultAnalysis().ReliabilityN0, log)
	require.NoError(t, err)

	// --- compute-relationship-metrics ---
	compute := crm.NewHandler(crm.DefaultConfig(), crm.Dependencies{
		Sources: map[string]crm.SnapshotLoader{crm.SourcePostgres: source},
		Engine:  engine,
		Cache:   scores,
	}, log)

	input := &crm.Input{Source: crm.SourcePostgres, From: "2024-01-01"}
	first, err := compute.Execute(ctx, input)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, 6, first.AcceptedRows)
	assert.Equal(t, 2, first.Providers)
	t.Cleanup(func() { scores.Delete(context.Background(), first.CacheKey) })

	second, err := compute.Execute(ctx, input)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.RunID, second.RunID)

	// --- send-score-digest ---
	mailer := &captureMailer{}
	digest := ssd.NewHandler(ssd.DefaultConfig(), ssd.Dependencies{
		Results: scores,
		Email:   mailer,
	}, log)

	out, err := digest.Execute(ctx, &ssd.Input{CacheKey: first.CacheKey, Recipients: []string{"ops@example.com"}})
	require.NoError(t, err)
	assert.Equal(t, first.RunID, out.RunID)
	require.Len(t, mailer.sent, 1)
	assert.True(t, strings.Contains(mailer.sent[0].body, first.RunID))
}
