package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lotto-pay/lotto_wallet/internal/ledger"
)

// Service migrates legacy scalar balances into the ledger. Each migrated owner
// receives exactly one migration credit equal to the legacy balance; owners
// whose wallets already hold transactions are skipped, so the procedure is
// safe to re-run.
type Service struct {
	store    ledger.Store
	source   LegacySource
	logger   *slog.Logger
	currency string
}

// NewService builds the reconciliation service.
func NewService(store ledger.Store, source LegacySource, logger *slog.Logger, currency string) *Service {
	return &Service{store: store, source: source, logger: logger, currency: currency}
}

// Report summarizes one reconciliation run.
type Report struct {
	Migrated      int
	Skipped       int
	Failed        int
	TotalLegacy   int64
	TotalMigrated int64
}

// Run migrates every pending legacy balance. A failure is fatal for that owner
// only; remaining owners are still processed. The returned error is non-nil
// when the migrated wallet balances do not sum to the legacy balances they
// replaced, which indicates a data-integrity problem requiring manual review.
func (s *Service) Run(ctx context.Context) (Report, error) {
	balances, err := s.source.LegacyBalances(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list legacy balances: %w", err)
	}

	var report Report
	for _, lb := range balances {
		if lb.Balance <= 0 {
			continue
		}

		balance, migrated, err := s.migrateOwner(ctx, lb)
		if err != nil {
			report.Failed++
			s.logger.Error("legacy balance migration failed", "owner_id", lb.OwnerID, "balance", lb.Balance, "error", err)
			continue
		}
		if !migrated {
			report.Skipped++
			continue
		}

		report.Migrated++
		report.TotalLegacy += lb.Balance
		report.TotalMigrated += balance
	}

	if report.TotalMigrated != report.TotalLegacy {
		return report, fmt.Errorf("%w: migrated %d, legacy %d", ledger.ErrMigrationIntegrity, report.TotalMigrated, report.TotalLegacy)
	}

	s.logger.Info("reconciliation complete",
		"migrated", report.Migrated, "skipped", report.Skipped, "failed", report.Failed,
		"total_migrated", report.TotalMigrated)
	return report, nil
}

// migrateOwner moves one legacy balance into the ledger. It returns the wallet
// balance after migration, or migrated=false when the wallet already has
// history and was left untouched.
func (s *Service) migrateOwner(ctx context.Context, lb LegacyBalance) (balance int64, migrated bool, err error) {
	w, err := s.store.Ensure(ctx, lb.OwnerID, s.currency)
	if err != nil {
		return 0, false, fmt.Errorf("ensure wallet: %w", err)
	}

	count, err := s.store.TransactionCount(ctx, lb.OwnerID)
	if err != nil {
		return 0, false, fmt.Errorf("count transactions: %w", err)
	}
	if count > 0 {
		// Already migrated or already active.
		return 0, false, nil
	}

	txn := ledger.Transaction{
		ID:          uuid.NewString(),
		WalletID:    w.ID,
		Kind:        ledger.KindCredit,
		Subtype:     ledger.SubtypeMigration,
		Amount:      lb.Balance,
		Description: "legacy balance migration",
		Reference:   "MIGRATION-" + uuid.NewString(),
		Status:      ledger.StatusCompleted,
		CreatedAt:   time.Now().UTC(),
	}

	updated, _, err := s.store.Append(ctx, lb.OwnerID, txn)
	if err != nil {
		return 0, false, fmt.Errorf("append migration transaction: %w", err)
	}

	// The append already produced this balance; the comparison is a
	// consistency assertion, not a second source of truth.
	if updated.Balance != lb.Balance {
		return 0, false, fmt.Errorf("%w: wallet balance %d, legacy balance %d", ledger.ErrMigrationIntegrity, updated.Balance, lb.Balance)
	}

	return updated.Balance, true, nil
}
