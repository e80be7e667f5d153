package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists wallets and their transaction history in PostgreSQL.
//
// The per-wallet critical section is the row lock taken with
// SELECT ... FOR UPDATE inside each append transaction; the unique index on
// (wallet_id, reference) closes the idempotency race at the storage layer.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed ledger store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const walletColumns = `id, owner_id, currency, balance, total_deposited, total_withdrawn,
        transaction_count, last_transaction_at, created_at`

const transactionColumns = `id, wallet_id, kind, subtype, amount, description, reference,
        status, metadata, created_at`

// Load fetches the wallet snapshot for an owner.
func (s *PostgresStore) Load(ctx context.Context, ownerID string) (Wallet, error) {
	row := s.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE owner_id = $1`, ownerID)
	return scanWallet(row)
}

// Ensure creates an empty wallet for the owner unless one already exists.
// The insert races safely: ON CONFLICT guarantees at most one creation write.
func (s *PostgresStore) Ensure(ctx context.Context, ownerID, currency string) (Wallet, error) {
	_, err := s.db.Exec(ctx, `INSERT INTO wallets (id, owner_id, currency, created_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (owner_id) DO NOTHING`, uuid.New(), ownerID, currency, time.Now().UTC())
	if err != nil {
		return Wallet{}, mapPgError(err)
	}
	return s.Load(ctx, ownerID)
}

// Append validates and applies one transaction to the owner's wallet. The
// wallet row lock serializes concurrent appends on the same wallet, so the
// funds check and the insert form one atomic step.
func (s *PostgresStore) Append(ctx context.Context, ownerID string, txn Transaction) (Wallet, Transaction, error) {
	if err := validate(txn); err != nil {
		return Wallet{}, Transaction{}, err
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Wallet{}, Transaction{}, mapPgError(err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	row := tx.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE owner_id = $1 FOR UPDATE`, ownerID)
	w, err := scanWallet(row)
	if err != nil {
		return Wallet{}, Transaction{}, err
	}

	existing, err := transactionByReference(ctx, tx, w.ID, txn.Reference)
	if err == nil {
		return w, existing, ErrDuplicateReference
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Wallet{}, Transaction{}, mapPgError(err)
	}

	if txn.Kind == KindDebit && w.Balance < txn.Amount {
		return Wallet{}, Transaction{}, ErrInsufficientFunds
	}

	txn.WalletID = w.ID
	metadata, err := json.Marshal(txn.Metadata)
	if err != nil {
		return Wallet{}, Transaction{}, fmt.Errorf("encode metadata: %w", err)
	}

	if _, err := tx.Exec(ctx, `INSERT INTO wallet_transactions
        (id, wallet_id, kind, subtype, amount, description, reference, status, metadata, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		txn.ID, txn.WalletID, string(txn.Kind), string(txn.Subtype), txn.Amount,
		txn.Description, txn.Reference, txn.Status, metadata, txn.CreatedAt); err != nil {
		return s.resolveAppendError(ctx, ownerID, txn.Reference, err)
	}

	w = apply(w, txn)
	if _, err := tx.Exec(ctx, `UPDATE wallets SET balance = $2, total_deposited = $3,
        total_withdrawn = $4, transaction_count = $5, last_transaction_at = $6
        WHERE id = $1`,
		w.ID, w.Balance, w.TotalDeposited, w.TotalWithdrawn, w.TransactionCount, w.LastTransactionAt); err != nil {
		return Wallet{}, Transaction{}, mapPgError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Wallet{}, Transaction{}, mapPgError(err)
	}

	return w, txn, nil
}

// resolveAppendError turns a failed transaction insert into the contract
// errors. A unique violation means another append with the same reference won
// the race, so the original transaction is fetched and returned.
func (s *PostgresStore) resolveAppendError(ctx context.Context, ownerID, reference string, err error) (Wallet, Transaction, error) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		w, loadErr := s.Load(ctx, ownerID)
		if loadErr != nil {
			return Wallet{}, Transaction{}, loadErr
		}
		existing, findErr := transactionByReference(ctx, s.db, w.ID, reference)
		if findErr != nil {
			return Wallet{}, Transaction{}, mapPgError(findErr)
		}
		return w, existing, ErrDuplicateReference
	}
	return Wallet{}, Transaction{}, mapPgError(err)
}

// TransactionCount reports how many transactions the owner's wallet holds.
func (s *PostgresStore) TransactionCount(ctx context.Context, ownerID string) (int64, error) {
	w, err := s.Load(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	var count int64
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM wallet_transactions WHERE wallet_id = $1`, w.ID).Scan(&count); err != nil {
		return 0, mapPgError(err)
	}
	return count, nil
}

// ListTransactions returns one reverse-chronological page of wallet history.
func (s *PostgresStore) ListTransactions(ctx context.Context, ownerID string, filter Filter) (TransactionPage, error) {
	w, err := s.Load(ctx, ownerID)
	if err != nil {
		return TransactionPage{}, err
	}

	where := "wallet_id = $1"
	args := []any{w.ID}
	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		where += fmt.Sprintf(" AND kind = $%d", len(args))
	}
	if filter.Subtype != "" {
		args = append(args, string(filter.Subtype))
		where += fmt.Sprintf(" AND subtype = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	var total int64
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM wallet_transactions WHERE `+where, args...).Scan(&total); err != nil {
		return TransactionPage{}, mapPgError(err)
	}

	page, pageSize := filter.Limits()
	offset := (page - 1) * pageSize
	args = append(args, pageSize, offset)
	query := fmt.Sprintf(`SELECT %s FROM wallet_transactions WHERE %s
        ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		transactionColumns, where, len(args)-1, len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return TransactionPage{}, mapPgError(err)
	}
	defer rows.Close()

	items := make([]Transaction, 0, pageSize)
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return TransactionPage{}, err
		}
		items = append(items, txn)
	}
	if err := rows.Err(); err != nil {
		return TransactionPage{}, mapPgError(err)
	}

	return TransactionPage{
		Items:    items,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		HasNext:  int64(offset+len(items)) < total,
		HasPrev:  page > 1,
	}, nil
}

// Monthly aggregates completed activity for the current and previous UTC month.
func (s *PostgresStore) Monthly(ctx context.Context, ownerID string, now time.Time) (MonthlyStats, error) {
	w, err := s.Load(ctx, ownerID)
	if err != nil {
		return MonthlyStats{}, err
	}

	thisStart, lastStart, nextStart := monthBounds(now)

	var stats MonthlyStats
	if stats.ThisMonth, err = s.monthBucket(ctx, w.ID, thisStart, nextStart); err != nil {
		return MonthlyStats{}, err
	}
	if stats.LastMonth, err = s.monthBucket(ctx, w.ID, lastStart, thisStart); err != nil {
		return MonthlyStats{}, err
	}
	return stats, nil
}

func (s *PostgresStore) monthBucket(ctx context.Context, walletID string, from, to time.Time) (MonthBucket, error) {
	const query = `
        SELECT COUNT(*),
               COALESCE(SUM(amount) FILTER (WHERE kind = 'credit'), 0),
               COALESCE(SUM(amount) FILTER (WHERE kind = 'debit'), 0)
        FROM wallet_transactions
        WHERE wallet_id = $1 AND status = $2 AND created_at >= $3 AND created_at < $4`
	var b MonthBucket
	if err := s.db.QueryRow(ctx, query, walletID, StatusCompleted, from, to).Scan(&b.Count, &b.Credited, &b.Debited); err != nil {
		return MonthBucket{}, mapPgError(err)
	}
	return b, nil
}

type queryRunner interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func transactionByReference(ctx context.Context, q queryRunner, walletID, reference string) (Transaction, error) {
	row := q.QueryRow(ctx, `SELECT `+transactionColumns+` FROM wallet_transactions
        WHERE wallet_id = $1 AND reference = $2`, walletID, reference)
	return scanTransaction(row)
}

func scanWallet(row pgx.Row) (Wallet, error) {
	var w Wallet
	var last *time.Time
	if err := row.Scan(&w.ID, &w.OwnerID, &w.Currency, &w.Balance, &w.TotalDeposited,
		&w.TotalWithdrawn, &w.TransactionCount, &last, &w.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrWalletNotFound
		}
		return Wallet{}, mapPgError(err)
	}
	if last != nil {
		w.LastTransactionAt = last.UTC()
	}
	w.CreatedAt = w.CreatedAt.UTC()
	return w, nil
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var txn Transaction
	var kind, subtype string
	var metadata []byte
	if err := row.Scan(&txn.ID, &txn.WalletID, &kind, &subtype, &txn.Amount,
		&txn.Description, &txn.Reference, &txn.Status, &metadata, &txn.CreatedAt); err != nil {
		return Transaction{}, err
	}
	txn.Kind = Kind(kind)
	txn.Subtype = Subtype(subtype)
	txn.CreatedAt = txn.CreatedAt.UTC()
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &txn.Metadata); err != nil {
			return Transaction{}, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return txn, nil
}

// mapPgError converts retryable SQLSTATEs into ErrConflict so the service can
// re-attempt the append within its bounded retry budget.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization failure, deadlock detected
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.Message)
		case "23505":
			return ErrDuplicateReference
		}
	}
	return err
}
