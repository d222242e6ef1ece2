//go:build integration

package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/greenfelt/casino/internal/auth"
	"github.com/greenfelt/casino/internal/callbackserver"
	"github.com/greenfelt/casino/internal/ledger"
	"github.com/greenfelt/casino/internal/provider"
	"github.com/greenfelt/casino/internal/repository"
	"github.com/greenfelt/casino/internal/session"
	"github.com/greenfelt/casino/internal/signature"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	TestProviderSecret = "test-provider-secret"
	TestCasinoSecret   = "test-casino-secret"
	TestJWTSecret      = "integration-test-jwt-secret-0123456789"
	TestDBHost         = "localhost"
	TestDBPort         = 5435
	TestDBUser         = "casino"
	TestDBPass         = "casino"
	TestDBName         = "casino_test"
)

// TestEnv holds all resources for a callback-server integration test.
type TestEnv struct {
	Server *httptest.Server
	Pool   *pgxpool.Pool
	JWTMgr *auth.JWTManager
	t      *testing.T
}

var (
	sharedPool *pgxpool.Pool
	poolOnce   sync.Once
	poolErr    error
)

func testDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		TestDBUser, TestDBPass, TestDBHost, TestDBPort, TestDBName)
}

func bootstrapDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		TestDBUser, TestDBPass, TestDBHost, TestDBPort, "casino")
}

func ensureTestDB() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	bPool, err := pgxpool.New(ctx, bootstrapDSN())
	if err != nil {
		return fmt.Errorf("connect bootstrap db: %w", err)
	}
	defer bPool.Close()

	var exists bool
	err = bPool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", TestDBName).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check db exists: %w", err)
	}

	if !exists {
		_, err = bPool.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s", TestDBName))
		if err != nil {
			return fmt.Errorf("create test db: %w", err)
		}
	}

	return nil
}

func runMigrations() error {
	migratePath := fmt.Sprintf("file://%s/db/migrations", findProjectRoot())

	m, err := newMigrate(migratePath, testDSN())
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err.Error() != "no change" {
		return fmt.Errorf("migrate up: %w", err)
	}

	return nil
}

// findProjectRoot walks up from cwd looking for go.mod.
func findProjectRoot() string {
	dir, _ := os.Getwd()
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "."
		}
		dir = parent
	}
}

func getSharedPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	poolOnce.Do(func() {
		if err := ensureTestDB(); err != nil {
			poolErr = err
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		poolCfg, err := pgxpool.ParseConfig(testDSN())
		if err != nil {
			poolErr = fmt.Errorf("parse pool config: %w", err)
			return
		}
		poolCfg.MaxConns = 10
		poolCfg.MinConns = 1

		sharedPool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			poolErr = fmt.Errorf("create pool: %w", err)
			return
		}

		if err := runMigrations(); err != nil {
			poolErr = fmt.Errorf("run migrations: %w", err)
			sharedPool.Close()
			sharedPool = nil
			return
		}
	})

	if poolErr != nil {
		t.Fatalf("failed to initialize test pool: %v", poolErr)
	}
	return sharedPool
}

// NewTestEnv creates a test environment with an httptest.Server backed
// by the real router and test DB.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	pool := getSharedPool(t)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	catalogRepo := repository.NewCatalogRepository()
	walletRepo := repository.NewWalletRepository()
	sessionRepo := repository.NewSessionRepository()
	txRepo := repository.NewTransactionRepository()
	outboxRepo := repository.NewOutboxRepository()

	engine := ledger.NewEngine(pool, walletRepo, sessionRepo, txRepo, outboxRepo, logger)
	registry := session.NewRegistry(pool, catalogRepo, walletRepo, sessionRepo, outboxRepo, logger)
	providerClient := provider.NewClient(signature.New(TestCasinoSecret), logger)
	jwtMgr := auth.NewJWTManager(TestJWTSecret, 24*time.Hour)

	server := callbackserver.NewServer(
		pool, engine, registry, providerClient, txRepo,
		signature.New(TestProviderSecret), jwtMgr, logger)

	ts := httptest.NewServer(server.Router())

	env := &TestEnv{
		Server: ts,
		Pool:   pool,
		JWTMgr: jwtMgr,
		t:      t,
	}

	t.Cleanup(func() {
		ts.Close()
		env.CleanAll()
	})

	// Clean before the test to ensure isolation
	env.CleanAll()

	return env
}
