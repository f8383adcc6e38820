// Package testutil starts a throwaway Postgres for integration tests and
// seeds the per-tenant data the chat pipeline reads.
//
//	func TestMain(m *testing.M) {
//	    tc := testutil.MustStartPostgres()
//	    defer tc.Terminate()
//	    testDB, _ = tc.NewTestDB(context.Background(), testutil.TestLogger())
//	    os.Exit(m.Run())
//	}
package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/aurum-labs/aurum/internal/storage"
	"github.com/aurum-labs/aurum/migrations"
)

const (
	pgImage = "postgres:17-alpine"
	pgUser  = "aurum"
	pgDB    = "aurum"
)

// TestContainer is a running Postgres and the DSN that reaches it.
type TestContainer struct {
	Container testcontainers.Container
	DSN       string
}

// MustStartPostgres starts Postgres or exits the process. Meant for TestMain,
// where there is no *testing.T to fail.
func MustStartPostgres() *TestContainer {
	tc, err := StartPostgres(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "testutil: %v\n", err)
		os.Exit(1)
	}
	return tc
}

// StartPostgres starts a Postgres container and waits until it accepts
// connections.
func StartPostgres(ctx context.Context) (*TestContainer, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        pgImage,
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     pgUser,
				"POSTGRES_PASSWORD": pgUser,
				"POSTGRES_DB":       pgDB,
			},
			// initdb restarts the server once, so the first ready line is premature.
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", pgImage, err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("container port: %w", err)
	}

	return &TestContainer{
		Container: container,
		DSN:       fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", pgUser, pgUser, host, port.Port(), pgDB),
	}, nil
}

// NewTestDB connects to the container and applies the schema. The DSN also
// serves as the LISTEN connection so handoff notifications work in tests.
func (tc *TestContainer) NewTestDB(ctx context.Context, logger *slog.Logger) (*storage.DB, error) {
	db, err := storage.New(ctx, storage.Options{PoolDSN: tc.DSN, NotifyDSN: tc.DSN}, logger)
	if err != nil {
		return nil, fmt.Errorf("testutil: connect: %w", err)
	}
	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		db.Close(ctx)
		return nil, fmt.Errorf("testutil: migrate: %w", err)
	}
	return db, nil
}

// Terminate stops and removes the container.
func (tc *TestContainer) Terminate() {
	_ = tc.Container.Terminate(context.Background())
}

// SeedConfirmedPrice stores a confirmed catalog price for a tenant so the
// price guardrail lets the bot quote it.
func SeedConfirmedPrice(ctx context.Context, db *storage.DB, tenantID uuid.UUID, productID string, amount float64) error {
	return db.UpsertProduct(ctx, tenantID, storage.ProductPrice{
		ProductID: productID,
		Name:      productID,
		Price:     &amount,
		Confirmed: true,
	})
}

// TestLogger logs warnings and above to stderr.
func TestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}
