package wallet

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/lotto-pay/lotto_wallet/internal/ledger"
)

func TestListTransactionsPagination(t *testing.T) {
	store := ledger.NewInMemory()
	svc := NewService(store, nil, Options{})
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		_, err := svc.Deposit(ctx, OperationInput{OwnerID: "owner-1", Amount: int64(i + 1), Reference: fmt.Sprintf("dep-%d", i)})
		require.NoError(t, err)
	}

	page, err := svc.ListTransactions(ctx, "owner-1", ledger.Filter{Page: 2, PageSize: 10})
	require.NoError(t, err)

	require.Len(t, page.Items, 10)
	require.EqualValues(t, 25, page.Total)
	require.True(t, page.HasNext)
	require.True(t, page.HasPrev)

	// Reverse chronological: page 2 starts at the 15th deposit.
	require.Equal(t, "dep-14", page.Items[0].Reference)
	require.Equal(t, "dep-5", page.Items[9].Reference)

	last, err := svc.ListTransactions(ctx, "owner-1", ledger.Filter{Page: 3, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, last.Items, 5)
	require.False(t, last.HasNext)
	require.True(t, last.HasPrev)

	first, err := svc.ListTransactions(ctx, "owner-1", ledger.Filter{Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.True(t, first.HasNext)
	require.False(t, first.HasPrev)
	require.Equal(t, "dep-24", first.Items[0].Reference)
}

func TestListTransactionsFilters(t *testing.T) {
	svc := NewService(ledger.NewInMemory(), nil, Options{})
	ctx := context.Background()

	_, err := svc.Deposit(ctx, OperationInput{OwnerID: "owner-1", Amount: 1_000})
	require.NoError(t, err)
	_, err = svc.Payment(ctx, OperationInput{OwnerID: "owner-1", Amount: 200, Description: "picks"})
	require.NoError(t, err)
	_, err = svc.Bonus(ctx, OperationInput{OwnerID: "owner-1", Amount: 50, Description: "welcome"})
	require.NoError(t, err)

	credits, err := svc.ListTransactions(ctx, "owner-1", ledger.Filter{Kind: ledger.KindCredit})
	require.NoError(t, err)
	require.EqualValues(t, 2, credits.Total)

	payments, err := svc.ListTransactions(ctx, "owner-1", ledger.Filter{Subtype: ledger.SubtypePayment})
	require.NoError(t, err)
	require.EqualValues(t, 1, payments.Total)
	require.Equal(t, int64(200), payments.Items[0].Amount)

	completed, err := svc.ListTransactions(ctx, "owner-1", ledger.Filter{Status: ledger.StatusCompleted})
	require.NoError(t, err)
	require.EqualValues(t, 3, completed.Total)
}

func TestListTransactionsUnknownOwner(t *testing.T) {
	svc := NewService(ledger.NewInMemory(), nil, Options{})
	_, err := svc.ListTransactions(context.Background(), "ghost", ledger.Filter{})
	require.ErrorIs(t, err, ledger.ErrWalletNotFound)
}

func TestMonthlyStatsBuckets(t *testing.T) {
	store := ledger.NewInMemory()
	svc := NewService(store, nil, Options{})
	ctx := context.Background()

	now := time.Now().UTC()
	thisMonthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	lastMonth := thisMonthStart.AddDate(0, -1, 0).Add(12 * time.Hour)
	twoMonthsAgo := thisMonthStart.AddDate(0, -2, 0).Add(12 * time.Hour)

	seeded := func(kind ledger.Kind, subtype ledger.Subtype, amount int64, at time.Time) ledger.Transaction {
		return ledger.Transaction{
			ID:        uuid.NewString(),
			Kind:      kind,
			Subtype:   subtype,
			Amount:    amount,
			Reference: uuid.NewString(),
			Status:    ledger.StatusCompleted,
			CreatedAt: at,
		}
	}

	history := []ledger.Transaction{
		seeded(ledger.KindCredit, ledger.SubtypeDeposit, 5_000, twoMonthsAgo),
		seeded(ledger.KindCredit, ledger.SubtypeDeposit, 1_000, lastMonth),
		seeded(ledger.KindDebit, ledger.SubtypePayment, 300, lastMonth.Add(time.Hour)),
		seeded(ledger.KindCredit, ledger.SubtypeBonus, 200, thisMonthStart.Add(time.Hour)),
	}

	ledger.SeedHistory(store, ledger.Wallet{
		ID:               uuid.NewString(),
		OwnerID:          "owner-1",
		Currency:         "EUR",
		Balance:          5_900,
		TotalDeposited:   6_200,
		TotalWithdrawn:   300,
		TransactionCount: int64(len(history)),
		CreatedAt:        twoMonthsAgo,
	}, history)

	stats, err := svc.MonthlyStats(ctx, "owner-1")
	require.NoError(t, err)

	require.EqualValues(t, 1, stats.ThisMonth.Count)
	require.EqualValues(t, 200, stats.ThisMonth.Credited)
	require.EqualValues(t, 0, stats.ThisMonth.Debited)

	require.EqualValues(t, 2, stats.LastMonth.Count)
	require.EqualValues(t, 1_000, stats.LastMonth.Credited)
	require.EqualValues(t, 300, stats.LastMonth.Debited)
}

func TestSummaryReflectsSnapshot(t *testing.T) {
	svc := NewService(ledger.NewInMemory(), nil, Options{Currency: "EUR"})
	ctx := context.Background()

	_, err := svc.Deposit(ctx, OperationInput{OwnerID: "owner-1", Amount: 750})
	require.NoError(t, err)
	_, err = svc.Withdraw(ctx, OperationInput{OwnerID: "owner-1", Amount: 250})
	require.NoError(t, err)

	w, err := svc.Summary(ctx, "owner-1")
	require.NoError(t, err)
	require.EqualValues(t, 500, w.Balance)
	require.EqualValues(t, 750, w.TotalDeposited)
	require.EqualValues(t, 250, w.TotalWithdrawn)
	require.EqualValues(t, 2, w.TransactionCount)
	require.Equal(t, "EUR", w.Currency)
	require.False(t, w.LastTransactionAt.IsZero())
}
