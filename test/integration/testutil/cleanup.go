//go:build integration

package testutil

import (
	"context"
	"time"
)

// CleanAll truncates all tables in reverse-dependency order.
func (env *TestEnv) CleanAll() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tables := []string{
		"casino_event_outbox",
		"casino_transactions",
		"casino_game_sessions",
		"casino_games",
		"casino_game_providers",
		"casino_wallets",
		"casino_users",
	}
	for _, table := range tables {
		_, _ = env.Pool.Exec(ctx, "TRUNCATE TABLE "+table+" CASCADE")
	}
}
