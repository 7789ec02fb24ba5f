package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tindahan-erp/tindahan/internal/platform/db"
)

// Repository encapsulates DB operations for the ledger. Mutations go through
// WithTx; the storage layer must provide an atomic read-modify-write
// transaction primitive, which the pgx implementation satisfies with
// RepeatableRead transactions.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	List(ctx context.Context, limit int) ([]JournalEntry, error)
	GetEntryWithLines(ctx context.Context, entryID int64) (JournalEntry, error)
	GetAccountByCode(ctx context.Context, code string) (Account, error)
	TrialBalance(ctx context.Context) ([]AccountBalance, error)
}

// TxRepository exposes ledger writes available within a transaction.
type TxRepository interface {
	InsertEntry(ctx context.Context, in PostingInput, reversalOf *int64) (JournalEntry, error)
	InsertLines(ctx context.Context, entryID int64, lines []PostingLineInput) error
	LinkSource(ctx context.Context, module string, sourceID uuid.UUID, entryID int64) error
	GetEntryWithLines(ctx context.Context, entryID int64) (JournalEntry, error)
	GetAccount(ctx context.Context, accountID int64) (Account, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds the pgx-backed ledger repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

func (r *repository) List(ctx context.Context, limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `SELECT id, number, date, source_module, source_id, memo, status, reversal_of, posted_at, created_at
FROM journal_entries ORDER BY number DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		var e JournalEntry
		if err := rows.Scan(&e.ID, &e.Number, &e.Date, &e.SourceModule, &e.SourceID, &e.Memo, &e.Status, &e.ReversalOf, &e.PostedAt, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *repository) GetEntryWithLines(ctx context.Context, entryID int64) (JournalEntry, error) {
	return getEntryWithLines(ctx, r.db, entryID)
}

func (r *repository) GetAccountByCode(ctx context.Context, code string) (Account, error) {
	var a Account
	err := r.db.QueryRow(ctx, `SELECT id, code, name, type, created_at FROM accounts WHERE code=$1`, code).
		Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func (r *repository) TrialBalance(ctx context.Context) ([]AccountBalance, error) {
	rows, err := r.db.Query(ctx, `SELECT a.id, a.code, a.name, a.type,
COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0)
FROM accounts a
LEFT JOIN journal_lines l ON l.entry_id IN (SELECT id FROM journal_entries WHERE status='POSTED') AND l.account_id = a.id
GROUP BY a.id, a.code, a.name, a.type
ORDER BY a.code ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var balances []AccountBalance
	for rows.Next() {
		var b AccountBalance
		if err := rows.Scan(&b.AccountID, &b.Code, &b.Name, &b.Type, &b.Debit, &b.Credit); err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

// queryer covers both pool and tx for shared read helpers.
type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getEntryWithLines(ctx context.Context, q queryer, entryID int64) (JournalEntry, error) {
	var e JournalEntry
	err := q.QueryRow(ctx, `SELECT id, number, date, source_module, source_id, memo, status, reversal_of, posted_at, created_at
FROM journal_entries WHERE id=$1`, entryID).
		Scan(&e.ID, &e.Number, &e.Date, &e.SourceModule, &e.SourceID, &e.Memo, &e.Status, &e.ReversalOf, &e.PostedAt, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, ErrEntryNotFound
		}
		return JournalEntry{}, err
	}
	rows, err := q.Query(ctx, `SELECT id, entry_id, account_id, debit, credit, memo
FROM journal_lines WHERE entry_id=$1 ORDER BY id ASC`, entryID)
	if err != nil {
		return JournalEntry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line JournalLine
		if err := rows.Scan(&line.ID, &line.EntryID, &line.AccountID, &line.Debit, &line.Credit, &line.Memo); err != nil {
			return JournalEntry{}, err
		}
		e.Lines = append(e.Lines, line)
	}
	return e, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps an open pgx transaction so composed services (sales,
// purchases) can post journal entries inside their own atomic unit.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

func (r *txRepository) InsertEntry(ctx context.Context, in PostingInput, reversalOf *int64) (JournalEntry, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (date, source_module, source_id, memo, status, reversal_of)
VALUES ($1,$2,$3,$4,'POSTED',$5) RETURNING id, number, posted_at, created_at`,
		in.Date, in.SourceModule, in.SourceID, in.Memo, reversalOf)
	entry := JournalEntry{
		Date:         in.Date,
		SourceModule: in.SourceModule,
		SourceID:     in.SourceID,
		Memo:         in.Memo,
		Status:       EntryStatusPosted,
		ReversalOf:   reversalOf,
	}
	if err := row.Scan(&entry.ID, &entry.Number, &entry.PostedAt, &entry.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_journal_reversal_of" {
			return JournalEntry{}, ErrAlreadyReversed
		}
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) InsertLines(ctx context.Context, entryID int64, lines []PostingLineInput) error {
	for _, line := range lines {
		debit, credit := decimal.Zero, decimal.Zero
		if line.Side == SideDebit {
			debit = line.Amount
		} else {
			credit = line.Amount
		}
		if _, err := r.tx.Exec(ctx, `INSERT INTO journal_lines (entry_id, account_id, debit, credit, memo)
VALUES ($1,$2,$3,$4,$5)`, entryID, line.AccountID, debit, credit, line.Memo); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) LinkSource(ctx context.Context, module string, sourceID uuid.UUID, entryID int64) error {
	if _, err := r.tx.Exec(ctx, `INSERT INTO journal_source_links (module, source_id, entry_id) VALUES ($1,$2,$3)`, module, sourceID, entryID); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_journal_source_links" {
			return ErrSourceAlreadyLinked
		}
		return err
	}
	return nil
}

func (r *txRepository) GetEntryWithLines(ctx context.Context, entryID int64) (JournalEntry, error) {
	return getEntryWithLines(ctx, r.tx, entryID)
}

func (r *txRepository) GetAccount(ctx context.Context, accountID int64) (Account, error) {
	var a Account
	err := r.tx.QueryRow(ctx, `SELECT id, code, name, type, created_at FROM accounts WHERE id=$1`, accountID).
		Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}
