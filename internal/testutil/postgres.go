// Package testutil provides test helpers including container management.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cory-johannsen/quizrace/internal/config"
	"github.com/cory-johannsen/quizrace/internal/storage/postgres"
)

// PostgresContainer wraps a testcontainers PostgreSQL instance.
type PostgresContainer struct {
	container testcontainers.Container
	Pool      *postgres.Pool
	RawPool   *pgxpool.Pool
	Config    config.DatabaseConfig
}

// NewPostgresContainer starts a PostgreSQL test container and returns
// a connected Pool.
//
// Precondition: Docker must be available.
// Postcondition: Returns a running container with a connected pool,
// or fails the test.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()
	ctx := context.Background()
	start := time.Now()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(30 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("starting postgres container: %v [%s]", err, time.Since(start))
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("getting container host: %v", err)
	}

	mappedPort, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("getting mapped port: %v", err)
	}

	dbCfg := config.DatabaseConfig{
		Host:            host,
		Port:            mappedPort.Int(),
		User:            "test",
		Password:        "test",
		Name:            "test",
		SSLMode:         "disable",
		MaxConns:        5,
		MinConns:        1,
		MaxConnLifetime: 5 * time.Minute,
	}

	pool, err := postgres.NewPool(ctx, dbCfg)
	if err != nil {
		t.Fatalf("connecting to test postgres: %v [%s]", err, time.Since(start))
	}

	t.Logf("postgres container started [%s]", time.Since(start))

	pc := &PostgresContainer{
		container: container,
		Pool:      pool,
		RawPool:   pool.DB(),
		Config:    dbCfg,
	}

	t.Cleanup(func() {
		pool.Close()
		_ = container.Terminate(ctx)
	})

	return pc
}

// ApplyMigrations runs the schema creation SQL directly for tests.
// This avoids requiring the migrate tool in the test environment.
//
// Precondition: Pool must be connected.
// Postcondition: The questions, game_results, and user_stats tables exist
// in the test database.
func (pc *PostgresContainer) ApplyMigrations(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	start := time.Now()

	schema := `
		CREATE TABLE IF NOT EXISTS questions (
			id             BIGSERIAL   PRIMARY KEY,
			subject        VARCHAR(64) NOT NULL,
			difficulty     VARCHAR(32) NOT NULL,
			prompt         TEXT        NOT NULL,
			option_a       TEXT        NOT NULL,
			option_b       TEXT        NOT NULL,
			option_c       TEXT        NOT NULL,
			option_d       TEXT        NOT NULL,
			correct_option SMALLINT    NOT NULL CHECK (correct_option BETWEEN 0 AND 3),
			weight         INTEGER     NOT NULL DEFAULT 1 CHECK (weight >= 1),
			time_limit_ms  BIGINT      NOT NULL CHECK (time_limit_ms > 0),
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_questions_subject_difficulty
			ON questions (subject, difficulty);

		CREATE TABLE IF NOT EXISTS game_results (
			id                 BIGSERIAL   PRIMARY KEY,
			uid                VARCHAR(64) NOT NULL,
			room_id            VARCHAR(64) NOT NULL,
			subject            VARCHAR(64) NOT NULL,
			difficulty         VARCHAR(32) NOT NULL,
			score              INTEGER     NOT NULL,
			rank               INTEGER     NOT NULL,
			winner             BOOLEAN     NOT NULL,
			position           INTEGER     NOT NULL,
			questions_answered INTEGER     NOT NULL,
			created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_game_results_uid ON game_results (uid);
		CREATE INDEX IF NOT EXISTS idx_game_results_room_id ON game_results (room_id);

		CREATE TABLE IF NOT EXISTS user_stats (
			uid            VARCHAR(64) PRIMARY KEY,
			games          INTEGER     NOT NULL DEFAULT 0,
			wins           INTEGER     NOT NULL DEFAULT 0,
			total_score    INTEGER     NOT NULL DEFAULT 0,
			subject_scores JSONB       NOT NULL DEFAULT '{}'::jsonb,
			updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`

	_, err := pc.RawPool.Exec(ctx, schema)
	if err != nil {
		t.Fatalf("applying migrations: %v", err)
	}
	t.Logf("migrations applied [%s]", time.Since(start))
}

// DSN returns the connection string for the test database.
func (pc *PostgresContainer) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		pc.Config.User, pc.Config.Password,
		pc.Config.Host, pc.Config.Port,
		pc.Config.Name, pc.Config.SSLMode,
	)
}
