package wallet

import (
	"context"
	"errors"
	"testing"

	"github.com/lotto-pay/lotto_wallet/internal/ledger"
	"github.com/lotto-pay/lotto_wallet/internal/notification"
)

type testNotifier struct {
	last  notification.Message
	count int
}

func (n *testNotifier) Send(_ context.Context, msg notification.Message) error {
	n.last = msg
	n.count++
	return nil
}

func TestDepositCreatesWalletLazily(t *testing.T) {
	notifier := &testNotifier{}
	svc := NewService(ledger.NewInMemory(), notifier, Options{Currency: "EUR"})
	ctx := context.Background()

	res, err := svc.Deposit(ctx, OperationInput{OwnerID: "owner-1", Amount: 500, Description: "top-up"})
	if err != nil {
		t.Fatalf("deposit failed: %v", err)
	}

	if res.Wallet.Balance != 500 {
		t.Fatalf("expected balance 500, got %d", res.Wallet.Balance)
	}
	if res.Wallet.TotalDeposited != 500 {
		t.Fatalf("expected total deposited 500, got %d", res.Wallet.TotalDeposited)
	}
	if res.Wallet.TransactionCount != 1 {
		t.Fatalf("expected 1 transaction, got %d", res.Wallet.TransactionCount)
	}
	if res.Transaction.Kind != ledger.KindCredit || res.Transaction.Subtype != ledger.SubtypeDeposit {
		t.Fatalf("unexpected transaction classification: %+v", res.Transaction)
	}
	if res.Transaction.Status != ledger.StatusCompleted {
		t.Fatalf("expected completed status, got %s", res.Transaction.Status)
	}
	if res.Transaction.Reference == "" {
		t.Fatal("expected a generated reference")
	}
	if notifier.last.Kind != notification.KindWalletCredit {
		t.Fatalf("expected credit notification, got %q", notifier.last.Kind)
	}
}

func TestWithdrawInsufficientFunds(t *testing.T) {
	svc := NewService(ledger.NewInMemory(), nil, Options{})
	ctx := context.Background()

	if _, err := svc.Deposit(ctx, OperationInput{OwnerID: "owner-1", Amount: 500}); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}

	if _, err := svc.Withdraw(ctx, OperationInput{OwnerID: "owner-1", Amount: 600}); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}

	w, err := svc.Summary(ctx, "owner-1")
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if w.Balance != 500 || w.TransactionCount != 1 {
		t.Fatalf("failed withdrawal mutated wallet: %+v", w)
	}
}

func TestWithdrawRoundTrip(t *testing.T) {
	svc := NewService(ledger.NewInMemory(), nil, Options{})
	ctx := context.Background()

	if _, err := svc.Deposit(ctx, OperationInput{OwnerID: "owner-1", Amount: 100}); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	res, err := svc.Withdraw(ctx, OperationInput{OwnerID: "owner-1", Amount: 100})
	if err != nil {
		t.Fatalf("withdraw failed: %v", err)
	}

	if res.Wallet.Balance != 0 {
		t.Fatalf("expected balance 0 after round trip, got %d", res.Wallet.Balance)
	}
	if res.Wallet.TransactionCount != 2 {
		t.Fatalf("expected exactly 2 transactions, got %d", res.Wallet.TransactionCount)
	}
	if res.Wallet.TotalWithdrawn != 100 {
		t.Fatalf("expected total withdrawn 100, got %d", res.Wallet.TotalWithdrawn)
	}
}

func TestPaymentWithDuplicateReference(t *testing.T) {
	svc := NewService(ledger.NewInMemory(), nil, Options{})
	ctx := context.Background()

	if _, err := svc.Deposit(ctx, OperationInput{OwnerID: "owner-1", Amount: 1_000}); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}

	first, err := svc.Payment(ctx, OperationInput{OwnerID: "owner-1", Amount: 150, Description: "service fee", Reference: "ORDER-1"})
	if err != nil {
		t.Fatalf("payment failed: %v", err)
	}
	if first.Wallet.Balance != 850 {
		t.Fatalf("expected balance 850, got %d", first.Wallet.Balance)
	}

	replay, err := svc.Payment(ctx, OperationInput{OwnerID: "owner-1", Amount: 150, Description: "service fee", Reference: "ORDER-1"})
	if !errors.Is(err, ledger.ErrDuplicateReference) {
		t.Fatalf("expected duplicate reference signal, got %v", err)
	}
	if replay.Transaction.ID != first.Transaction.ID {
		t.Fatalf("expected original transaction back, got %s", replay.Transaction.ID)
	}
	if replay.Wallet.Balance != 850 {
		t.Fatalf("duplicate payment was applied: balance %d", replay.Wallet.Balance)
	}

	page, err := svc.ListTransactions(ctx, "owner-1", ledger.Filter{Subtype: ledger.SubtypePayment})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if page.Total != 1 {
		t.Fatalf("expected exactly one payment on record, got %d", page.Total)
	}
}

func TestPaymentRequiresDescription(t *testing.T) {
	svc := NewService(ledger.NewInMemory(), nil, Options{})
	ctx := context.Background()

	if _, err := svc.Payment(ctx, OperationInput{OwnerID: "owner-1", Amount: 100}); !errors.Is(err, ledger.ErrDescriptionRequired) {
		t.Fatalf("expected description requirement, got %v", err)
	}
	if _, err := svc.Bonus(ctx, OperationInput{OwnerID: "owner-1", Amount: 100, Description: "   "}); !errors.Is(err, ledger.ErrDescriptionRequired) {
		t.Fatalf("expected description requirement for bonus, got %v", err)
	}
}

func TestInvalidAmountRejected(t *testing.T) {
	svc := NewService(ledger.NewInMemory(), nil, Options{})
	ctx := context.Background()

	for _, amount := range []int64{0, -50} {
		if _, err := svc.Deposit(ctx, OperationInput{OwnerID: "owner-1", Amount: amount}); !errors.Is(err, ledger.ErrInvalidAmount) {
			t.Fatalf("expected invalid amount for %d, got %v", amount, err)
		}
	}
}

func TestRefundUnlinked(t *testing.T) {
	svc := NewService(ledger.NewInMemory(), nil, Options{})
	ctx := context.Background()

	if _, err := svc.Deposit(ctx, OperationInput{OwnerID: "owner-1", Amount: 200}); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	res, err := svc.Refund(ctx, OperationInput{OwnerID: "owner-1", Amount: 75, Description: "goodwill"})
	if err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	if res.Wallet.Balance != 275 {
		t.Fatalf("expected balance 275, got %d", res.Wallet.Balance)
	}
}

func TestRefundLinkedToPayment(t *testing.T) {
	svc := NewService(ledger.NewInMemory(), nil, Options{})
	ctx := context.Background()

	if _, err := svc.Deposit(ctx, OperationInput{OwnerID: "owner-1", Amount: 1_000}); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	payment, err := svc.Payment(ctx, OperationInput{OwnerID: "owner-1", Amount: 400, Description: "weekly picks"})
	if err != nil {
		t.Fatalf("payment failed: %v", err)
	}

	refund, err := svc.Refund(ctx, OperationInput{
		OwnerID:  "owner-1",
		Amount:   400,
		Metadata: map[string]string{MetadataRefundOf: payment.Transaction.ID},
	})
	if err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	if refund.Wallet.Balance != 1_000 {
		t.Fatalf("expected balance restored to 1000, got %d", refund.Wallet.Balance)
	}
	if refund.Transaction.Metadata[MetadataRefundOf] != payment.Transaction.ID {
		t.Fatalf("refund link lost: %+v", refund.Transaction.Metadata)
	}
}

// conflictStore fails the first appends with ErrConflict before delegating.
type conflictStore struct {
	ledger.Store
	remaining int
}

func (s *conflictStore) Append(ctx context.Context, ownerID string, txn ledger.Transaction) (ledger.Wallet, ledger.Transaction, error) {
	if s.remaining > 0 {
		s.remaining--
		return ledger.Wallet{}, ledger.Transaction{}, ledger.ErrConflict
	}
	return s.Store.Append(ctx, ownerID, txn)
}

func TestAppendRetriesOnConflict(t *testing.T) {
	store := &conflictStore{Store: ledger.NewInMemory(), remaining: 2}
	svc := NewService(store, nil, Options{AppendRetries: 3})
	ctx := context.Background()

	res, err := svc.Deposit(ctx, OperationInput{OwnerID: "owner-1", Amount: 500})
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if res.Wallet.Balance != 500 {
		t.Fatalf("expected balance 500, got %d", res.Wallet.Balance)
	}
}

func TestAppendConflictRetriesExhausted(t *testing.T) {
	store := &conflictStore{Store: ledger.NewInMemory(), remaining: 5}
	svc := NewService(store, nil, Options{AppendRetries: 3})
	ctx := context.Background()

	if _, err := svc.Deposit(ctx, OperationInput{OwnerID: "owner-1", Amount: 500}); !errors.Is(err, ledger.ErrConflict) {
		t.Fatalf("expected conflict after exhausted retries, got %v", err)
	}
}
