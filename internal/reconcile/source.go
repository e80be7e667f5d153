package reconcile

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// LegacyBalance is a scalar balance the pre-ledger system kept on the owner
// record, in minor units.
type LegacyBalance struct {
	OwnerID string
	Balance int64
}

// LegacySource lists the legacy balances awaiting migration into the ledger.
type LegacySource interface {
	LegacyBalances(ctx context.Context) ([]LegacyBalance, error)
}

// PostgresSource reads legacy balances from the legacy_balances table.
type PostgresSource struct {
	db *pgxpool.Pool
}

// NewPostgresSource builds a legacy source backed by PostgreSQL.
func NewPostgresSource(db *pgxpool.Pool) *PostgresSource {
	return &PostgresSource{db: db}
}

// LegacyBalances returns every owner with a positive legacy balance.
func (s *PostgresSource) LegacyBalances(ctx context.Context) ([]LegacyBalance, error) {
	rows, err := s.db.Query(ctx, `SELECT owner_id, balance FROM legacy_balances WHERE balance > 0`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var balances []LegacyBalance
	for rows.Next() {
		var lb LegacyBalance
		if err := rows.Scan(&lb.OwnerID, &lb.Balance); err != nil {
			return nil, err
		}
		balances = append(balances, lb)
	}
	return balances, rows.Err()
}

// StaticSource serves a fixed set of legacy balances. Useful for tests and dev mode.
type StaticSource []LegacyBalance

// LegacyBalances returns the configured balances.
func (s StaticSource) LegacyBalances(_ context.Context) ([]LegacyBalance, error) {
	return s, nil
}
