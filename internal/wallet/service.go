package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lotto-pay/lotto_wallet/internal/ledger"
	"github.com/lotto-pay/lotto_wallet/internal/money"
	"github.com/lotto-pay/lotto_wallet/internal/notification"
)

const (
	defaultCurrency      = "EUR"
	defaultAppendRetries = 3
)

// MetadataRefundOf is the metadata key conventionally linking a refund to the
// payment it reverses. The link is advisory and not enforced.
const MetadataRefundOf = "refund_of"

// Service is the sole mutation surface over the ledger store. Each operation
// fixes the transaction kind and subtype so callers cannot construct invalid
// records directly.
type Service struct {
	store    ledger.Store
	notifier notification.Notifier
	currency string
	retries  int
}

// Options tunes service defaults.
type Options struct {
	// Currency assigned to wallets created lazily by operations.
	Currency string
	// AppendRetries bounds internal retries on persistence conflicts.
	AppendRetries int
}

// NewService builds the wallet ledger operations service.
func NewService(store ledger.Store, notifier notification.Notifier, opts Options) *Service {
	currency := opts.Currency
	if currency == "" {
		currency = defaultCurrency
	}
	retries := opts.AppendRetries
	if retries < 1 {
		retries = defaultAppendRetries
	}
	return &Service{store: store, notifier: notifier, currency: currency, retries: retries}
}

// OperationInput carries the caller-supplied fields common to all operations.
// Amount is in minor units of the wallet currency.
type OperationInput struct {
	OwnerID     string
	Amount      int64
	Description string
	Reference   string
	Metadata    map[string]string
}

// OperationResult is the outcome of a ledger operation: the updated wallet
// snapshot and the transaction that was appended (or, on a duplicate
// reference, the original one).
type OperationResult struct {
	Wallet      ledger.Wallet
	Transaction ledger.Transaction
	CompletedAt time.Time
}

// Deposit credits funds into the owner's wallet.
func (s *Service) Deposit(ctx context.Context, in OperationInput) (OperationResult, error) {
	return s.execute(ctx, in, ledger.KindCredit, ledger.SubtypeDeposit, false)
}

// Withdraw debits funds from the owner's wallet, failing when the balance is insufficient.
func (s *Service) Withdraw(ctx context.Context, in OperationInput) (OperationResult, error) {
	return s.execute(ctx, in, ledger.KindDebit, ledger.SubtypeWithdrawal, false)
}

// Payment debits funds for a purchase. A description is required.
func (s *Service) Payment(ctx context.Context, in OperationInput) (OperationResult, error) {
	return s.execute(ctx, in, ledger.KindDebit, ledger.SubtypePayment, true)
}

// Bonus credits promotional funds. A description is required.
func (s *Service) Bonus(ctx context.Context, in OperationInput) (OperationResult, error) {
	return s.execute(ctx, in, ledger.KindCredit, ledger.SubtypeBonus, true)
}

// Refund credits funds back to the wallet, conventionally linked to a prior
// payment through the refund_of metadata key.
func (s *Service) Refund(ctx context.Context, in OperationInput) (OperationResult, error) {
	return s.execute(ctx, in, ledger.KindCredit, ledger.SubtypeRefund, false)
}

func (s *Service) execute(ctx context.Context, in OperationInput, kind ledger.Kind, subtype ledger.Subtype, requireDescription bool) (OperationResult, error) {
	if in.Amount <= 0 {
		return OperationResult{}, ledger.ErrInvalidAmount
	}
	if requireDescription && strings.TrimSpace(in.Description) == "" {
		return OperationResult{}, fmt.Errorf("%w for %s", ledger.ErrDescriptionRequired, subtype)
	}
	if in.OwnerID == "" {
		return OperationResult{}, fmt.Errorf("owner id is required")
	}

	w, err := s.store.Ensure(ctx, in.OwnerID, s.currency)
	if err != nil {
		return OperationResult{}, err
	}

	reference := in.Reference
	if reference == "" {
		reference = uuid.NewString()
	}

	txn := ledger.Transaction{
		ID:          uuid.NewString(),
		WalletID:    w.ID,
		Kind:        kind,
		Subtype:     subtype,
		Amount:      in.Amount,
		Description: in.Description,
		Reference:   reference,
		Status:      ledger.StatusCompleted,
		Metadata:    in.Metadata,
		CreatedAt:   time.Now().UTC(),
	}

	updated, applied, err := s.append(ctx, in.OwnerID, txn)
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateReference) {
			// Replay: hand back the original transaction so retried requests
			// are indistinguishable from their first submission.
			return OperationResult{Wallet: updated, Transaction: applied, CompletedAt: applied.CreatedAt}, err
		}
		return OperationResult{}, err
	}

	s.notify(ctx, updated, applied)

	return OperationResult{Wallet: updated, Transaction: applied, CompletedAt: applied.CreatedAt}, nil
}

// append retries the store append on retryable conflicts up to the configured bound.
func (s *Service) append(ctx context.Context, ownerID string, txn ledger.Transaction) (ledger.Wallet, ledger.Transaction, error) {
	var lastErr error
	for attempt := 0; attempt < s.retries; attempt++ {
		w, applied, err := s.store.Append(ctx, ownerID, txn)
		if err != nil && errors.Is(err, ledger.ErrConflict) {
			lastErr = err
			continue
		}
		return w, applied, err
	}
	return ledger.Wallet{}, ledger.Transaction{}, lastErr
}

func (s *Service) notify(ctx context.Context, w ledger.Wallet, txn ledger.Transaction) {
	if s.notifier == nil {
		return
	}
	kind := notification.KindWalletCredit
	if txn.Kind == ledger.KindDebit {
		kind = notification.KindWalletDebit
	}
	amount := money.Format(txn.Amount, money.Exponent(w.Currency))
	// Notification failures never fail the ledger operation.
	_ = s.notifier.Send(ctx, notification.Message{
		Kind:    kind,
		OwnerID: w.OwnerID,
		Body:    fmt.Sprintf("%s of %s %s", txn.Subtype, amount, w.Currency),
	})
}

// Summary returns the persisted wallet snapshot for the owner.
func (s *Service) Summary(ctx context.Context, ownerID string) (ledger.Wallet, error) {
	return s.store.Load(ctx, ownerID)
}

// ListTransactions returns one reverse-chronological page of the owner's history.
func (s *Service) ListTransactions(ctx context.Context, ownerID string, filter ledger.Filter) (ledger.TransactionPage, error) {
	return s.store.ListTransactions(ctx, ownerID, filter)
}

// MonthlyStats aggregates this month's and last month's completed activity.
func (s *Service) MonthlyStats(ctx context.Context, ownerID string) (ledger.MonthlyStats, error) {
	return s.store.Monthly(ctx, ownerID, time.Now().UTC())
}

// Currency reports the currency assigned to lazily created wallets.
func (s *Service) Currency() string {
	return s.currency
}
