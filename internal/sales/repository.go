package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tindahan-erp/tindahan/internal/inventory"
	"github.com/tindahan-erp/tindahan/internal/ledger"
	"github.com/tindahan-erp/tindahan/internal/platform/db"
)

// Repository abstracts sale persistence. WithTx hands the callback a
// TxRepository that also exposes ledger and inventory transaction views over
// the same database transaction, so a sale's stock movement, journal entry
// and document row commit or roll back together.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSale(ctx context.Context, saleID int64) (Sale, error)
	ListSales(ctx context.Context, limit int) ([]Sale, error)
}

// TxRepository exposes sale mutations plus the sibling domains' transaction
// views, all bound to one open transaction.
type TxRepository interface {
	Ledger() ledger.TxRepository
	Inventory() inventory.TxRepository
	NextDocumentNumber(ctx context.Context, kind DocumentKind) (string, error)
	InsertSale(ctx context.Context, sale Sale) (int64, error)
	InsertLines(ctx context.Context, saleID int64, lines []SaleLine) error
	GetSaleForUpdate(ctx context.Context, saleID int64) (Sale, error)
	MarkVoided(ctx context.Context, saleID int64, at time.Time) error
	InsertSettlement(ctx context.Context, s Settlement) (int64, error)
	AddSettled(ctx context.Context, saleID int64, amount decimal.Decimal) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds the pgx-backed sales repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{
			tx:        tx,
			ledger:    ledger.NewTxRepository(tx),
			inventory: inventory.NewTxRepository(tx),
		})
	})
}

const saleColumns = `id, document_kind, document_no, customer_name, payment_method,
discount_kind, discount_value, gross, discount, net, vat, total, cogs,
settled_amount, status, journal_entry_id, source_id, created_at, voided_at`

func scanSale(row pgx.Row) (Sale, error) {
	var s Sale
	err := row.Scan(&s.ID, &s.DocumentKind, &s.DocumentNo, &s.CustomerName, &s.PaymentMethod,
		&s.DiscountKind, &s.DiscountValue, &s.Gross, &s.Discount, &s.Net, &s.VAT, &s.Total, &s.COGS,
		&s.SettledAmount, &s.Status, &s.JournalEntryID, &s.SourceID, &s.CreatedAt, &s.VoidedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sale{}, ErrSaleNotFound
		}
		return Sale{}, err
	}
	return s, nil
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func loadLines(ctx context.Context, q queryer, saleID int64) ([]SaleLine, error) {
	rows, err := q.Query(ctx, `SELECT id, sale_id, product_id, qty, unit_price, line_total
FROM sale_lines WHERE sale_id=$1 ORDER BY id ASC`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []SaleLine
	for rows.Next() {
		var l SaleLine
		if err := rows.Scan(&l.ID, &l.SaleID, &l.ProductID, &l.Qty, &l.UnitPrice, &l.LineTotal); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *repository) GetSale(ctx context.Context, saleID int64) (Sale, error) {
	sale, err := scanSale(r.db.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id=$1`, saleID))
	if err != nil {
		return Sale{}, err
	}
	sale.Lines, err = loadLines(ctx, r.db, saleID)
	if err != nil {
		return Sale{}, err
	}
	return sale, nil
}

func (r *repository) ListSales(ctx context.Context, limit int) ([]Sale, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `SELECT `+saleColumns+` FROM sales ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sales []Sale
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, s)
	}
	return sales, rows.Err()
}

type txRepository struct {
	tx        pgx.Tx
	ledger    ledger.TxRepository
	inventory inventory.TxRepository
}

func (r *txRepository) Ledger() ledger.TxRepository       { return r.ledger }
func (r *txRepository) Inventory() inventory.TxRepository { return r.inventory }

// NextDocumentNumber advances the per-kind counter row under lock and
// formats it into the series, e.g. OR-000042.
func (r *txRepository) NextDocumentNumber(ctx context.Context, kind DocumentKind) (string, error) {
	var n int64
	err := r.tx.QueryRow(ctx, `UPDATE document_sequences SET next = next + 1
WHERE kind=$1 RETURNING next - 1`, string(kind)).Scan(&n)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrInvalidDocumentKind
		}
		return "", err
	}
	return fmt.Sprintf("%s-%06d", kind, n), nil
}

func (r *txRepository) InsertSale(ctx context.Context, sale Sale) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO sales
(document_kind, document_no, customer_name, payment_method, discount_kind, discount_value,
 gross, discount, net, vat, total, cogs, settled_amount, status, journal_entry_id, source_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17) RETURNING id`,
		sale.DocumentKind, sale.DocumentNo, sale.CustomerName, sale.PaymentMethod,
		sale.DiscountKind, sale.DiscountValue, sale.Gross, sale.Discount, sale.Net,
		sale.VAT, sale.Total, sale.COGS, sale.SettledAmount, sale.Status,
		sale.JournalEntryID, sale.SourceID, sale.CreatedAt).Scan(&id)
	return id, err
}

func (r *txRepository) InsertLines(ctx context.Context, saleID int64, lines []SaleLine) error {
	for _, l := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO sale_lines (sale_id, product_id, qty, unit_price, line_total)
VALUES ($1,$2,$3,$4,$5)`, saleID, l.ProductID, l.Qty, l.UnitPrice, l.LineTotal); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) GetSaleForUpdate(ctx context.Context, saleID int64) (Sale, error) {
	sale, err := scanSale(r.tx.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id=$1 FOR UPDATE`, saleID))
	if err != nil {
		return Sale{}, err
	}
	sale.Lines, err = loadLines(ctx, r.tx, saleID)
	if err != nil {
		return Sale{}, err
	}
	return sale, nil
}

func (r *txRepository) MarkVoided(ctx context.Context, saleID int64, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE sales SET status=$2, voided_at=$3 WHERE id=$1`,
		saleID, StatusVoided, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrSaleNotFound
	}
	return nil
}

func (r *txRepository) InsertSettlement(ctx context.Context, s Settlement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO sale_settlements (sale_id, amount, cwt, journal_entry_id, created_at)
VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		s.SaleID, s.Amount, s.CWT, s.JournalEntryID, s.CreatedAt).Scan(&id)
	return id, err
}

func (r *txRepository) AddSettled(ctx context.Context, saleID int64, amount decimal.Decimal) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE sales SET settled_amount = settled_amount + $2 WHERE id=$1`, saleID, amount)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrSaleNotFound
	}
	return nil
}
