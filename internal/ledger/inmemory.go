package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type inMemoryStore struct {
	mu      sync.Mutex
	wallets map[string]Wallet        // keyed by owner id
	history map[string][]Transaction // append order per owner
	byRef   map[string]map[string]int
}

// NewInMemory creates a concurrency-safe in-memory store useful for unit tests
// and for running the API without a database.
func NewInMemory() Store {
	return &inMemoryStore{
		wallets: make(map[string]Wallet),
		history: make(map[string][]Transaction),
		byRef:   make(map[string]map[string]int),
	}
}

func (s *inMemoryStore) Load(_ context.Context, ownerID string) (Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[ownerID]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	return w, nil
}

func (s *inMemoryStore) Ensure(_ context.Context, ownerID, currency string) (Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.wallets[ownerID]; ok {
		return w, nil
	}
	w := Wallet{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Currency:  currency,
		CreatedAt: time.Now().UTC(),
	}
	s.wallets[ownerID] = w
	s.byRef[ownerID] = make(map[string]int)
	return w, nil
}

func (s *inMemoryStore) Append(_ context.Context, ownerID string, txn Transaction) (Wallet, Transaction, error) {
	if err := validate(txn); err != nil {
		return Wallet{}, Transaction{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[ownerID]
	if !ok {
		return Wallet{}, Transaction{}, ErrWalletNotFound
	}

	if idx, exists := s.byRef[ownerID][txn.Reference]; exists {
		return w, s.history[ownerID][idx], ErrDuplicateReference
	}

	if txn.Kind == KindDebit && w.Balance < txn.Amount {
		return Wallet{}, Transaction{}, ErrInsufficientFunds
	}

	txn.WalletID = w.ID
	w = apply(w, txn)

	s.wallets[ownerID] = w
	s.history[ownerID] = append(s.history[ownerID], txn)
	s.byRef[ownerID][txn.Reference] = len(s.history[ownerID]) - 1

	return w, txn, nil
}

func (s *inMemoryStore) TransactionCount(_ context.Context, ownerID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.wallets[ownerID]; !ok {
		return 0, ErrWalletNotFound
	}
	return int64(len(s.history[ownerID])), nil
}

func (s *inMemoryStore) ListTransactions(_ context.Context, ownerID string, filter Filter) (TransactionPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.wallets[ownerID]; !ok {
		return TransactionPage{}, ErrWalletNotFound
	}

	// Newest first: walk the append-ordered history backwards.
	all := s.history[ownerID]
	matched := make([]Transaction, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if matches(all[i], filter) {
			matched = append(matched, all[i])
		}
	}

	page, pageSize := filter.Limits()
	total := int64(len(matched))
	start := (page - 1) * pageSize
	end := start + pageSize
	if start > len(matched) {
		start = len(matched)
	}
	if end > len(matched) {
		end = len(matched)
	}

	items := make([]Transaction, end-start)
	copy(items, matched[start:end])

	return TransactionPage{
		Items:    items,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		HasNext:  int64(end) < total,
		HasPrev:  page > 1,
	}, nil
}

func (s *inMemoryStore) Monthly(_ context.Context, ownerID string, now time.Time) (MonthlyStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.wallets[ownerID]; !ok {
		return MonthlyStats{}, ErrWalletNotFound
	}

	thisStart, lastStart, nextStart := monthBounds(now)

	var stats MonthlyStats
	for _, txn := range s.history[ownerID] {
		if txn.Status != StatusCompleted {
			continue
		}
		at := txn.CreatedAt.UTC()
		switch {
		case !at.Before(thisStart) && at.Before(nextStart):
			bucketAdd(&stats.ThisMonth, txn)
		case !at.Before(lastStart) && at.Before(thisStart):
			bucketAdd(&stats.LastMonth, txn)
		}
	}
	return stats, nil
}

func matches(txn Transaction, filter Filter) bool {
	if filter.Kind != "" && txn.Kind != filter.Kind {
		return false
	}
	if filter.Subtype != "" && txn.Subtype != filter.Subtype {
		return false
	}
	if filter.Status != "" && txn.Status != filter.Status {
		return false
	}
	return true
}

func bucketAdd(b *MonthBucket, txn Transaction) {
	b.Count++
	if txn.Kind == KindCredit {
		b.Credited += txn.Amount
	} else {
		b.Debited += txn.Amount
	}
}

// monthBounds returns the UTC starts of the current month, the previous month
// and the next month for the given instant.
func monthBounds(now time.Time) (thisStart, lastStart, nextStart time.Time) {
	now = now.UTC()
	thisStart = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	lastStart = thisStart.AddDate(0, -1, 0)
	nextStart = thisStart.AddDate(0, 1, 0)
	return thisStart, lastStart, nextStart
}
