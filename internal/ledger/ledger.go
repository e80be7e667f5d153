package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidAmount occurs when an operation is requested with a zero or
	// negative amount.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrDescriptionRequired occurs when an operation subtype mandates a
	// description and none was provided.
	ErrDescriptionRequired = errors.New("description is required")

	// ErrInsufficientFunds occurs when a debit exceeds the wallet's available balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDuplicateReference indicates the provided reference already exists for
	// the wallet. Append returns the original transaction alongside this error
	// so callers can treat retried requests as already processed.
	ErrDuplicateReference = errors.New("duplicate reference")

	// ErrWalletNotFound occurs when loading a wallet that was never created.
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrConflict signals a retryable persistence conflict between concurrent appends.
	ErrConflict = errors.New("persistence conflict")

	// ErrMigrationIntegrity indicates a migrated wallet balance diverged from
	// the legacy balance it was built from. Fatal for that owner, never retried.
	ErrMigrationIntegrity = errors.New("migration integrity violation")
)

// Kind is the storage-level sign class of a transaction.
type Kind string

const (
	// KindCredit increases the wallet balance.
	KindCredit Kind = "credit"
	// KindDebit decreases the wallet balance.
	KindDebit Kind = "debit"
)

// Subtype identifies the business event behind a transaction.
type Subtype string

const (
	SubtypeDeposit    Subtype = "deposit"
	SubtypeWithdrawal Subtype = "withdrawal"
	SubtypePayment    Subtype = "payment"
	SubtypeBonus      Subtype = "bonus"
	SubtypeRefund     Subtype = "refund"
	SubtypeMigration  Subtype = "migration"
)

// Transaction status values. Ledger operations write completed records;
// reversals are offsetting transactions, history is never rewritten.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Transaction is one immutable balance-affecting event. Amounts are integer
// minor units in the wallet currency.
type Transaction struct {
	ID          string
	WalletID    string
	Kind        Kind
	Subtype     Subtype
	Amount      int64
	Description string
	Reference   string
	Status      string
	Metadata    map[string]string
	CreatedAt   time.Time
}

// Signed returns the transaction's contribution to the wallet balance.
func (t Transaction) Signed() int64 {
	if t.Kind == KindDebit {
		return -t.Amount
	}
	return t.Amount
}

// Wallet holds the authoritative balance and running totals for one owner.
// Balance always equals TotalDeposited - TotalWithdrawn, which in turn equal
// the signed sums over the wallet's completed transactions.
type Wallet struct {
	ID                string
	OwnerID           string
	Currency          string
	Balance           int64
	TotalDeposited    int64
	TotalWithdrawn    int64
	TransactionCount  int64
	LastTransactionAt time.Time
	CreatedAt         time.Time
}

// Filter narrows and pages a transaction listing.
type Filter struct {
	Kind     Kind
	Subtype  Subtype
	Status   string
	Page     int
	PageSize int
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Limits returns the normalized page and page size for the filter.
func (f Filter) Limits() (page, pageSize int) {
	page = f.Page
	if page < 1 {
		page = 1
	}
	pageSize = f.PageSize
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

// TransactionPage is one reverse-chronological page of wallet history.
type TransactionPage struct {
	Items    []Transaction
	Total    int64
	Page     int
	PageSize int
	HasNext  bool
	HasPrev  bool
}

// MonthBucket aggregates one calendar month of completed activity.
type MonthBucket struct {
	Count    int64
	Credited int64
	Debited  int64
}

// MonthlyStats reports the current and previous calendar month, UTC.
type MonthlyStats struct {
	ThisMonth MonthBucket
	LastMonth MonthBucket
}

// Store defines the contract implemented by ledger backends (e.g. Postgres).
//
// Append is the only mutation: it validates the transaction, checks reference
// uniqueness and funds for debits, applies the signed contribution to the
// wallet summary and persists summary plus transaction as a single atomic unit
// with respect to other appends on the same wallet. Either everything is
// applied or nothing is.
type Store interface {
	Load(ctx context.Context, ownerID string) (Wallet, error)
	Ensure(ctx context.Context, ownerID, currency string) (Wallet, error)
	Append(ctx context.Context, ownerID string, txn Transaction) (Wallet, Transaction, error)
	TransactionCount(ctx context.Context, ownerID string) (int64, error)
	ListTransactions(ctx context.Context, ownerID string, filter Filter) (TransactionPage, error)
	Monthly(ctx context.Context, ownerID string, now time.Time) (MonthlyStats, error)
}

func validate(txn Transaction) error {
	if txn.Amount <= 0 {
		return ErrInvalidAmount
	}
	if txn.Kind != KindCredit && txn.Kind != KindDebit {
		return fmt.Errorf("unknown transaction kind %q", txn.Kind)
	}
	if txn.Status != StatusCompleted {
		return fmt.Errorf("only completed transactions can be appended, got %q", txn.Status)
	}
	if txn.Reference == "" {
		return fmt.Errorf("transaction reference is required")
	}
	return nil
}

// apply folds a completed transaction into the wallet summary fields.
func apply(w Wallet, txn Transaction) Wallet {
	w.Balance += txn.Signed()
	if txn.Kind == KindCredit {
		w.TotalDeposited += txn.Amount
	} else {
		w.TotalWithdrawn += txn.Amount
	}
	w.TransactionCount++
	w.LastTransactionAt = txn.CreatedAt
	return w
}
