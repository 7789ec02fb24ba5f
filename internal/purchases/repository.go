package purchases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tindahan-erp/tindahan/internal/inventory"
	"github.com/tindahan-erp/tindahan/internal/ledger"
	"github.com/tindahan-erp/tindahan/internal/platform/db"
)

// Repository abstracts purchase persistence. Like the sales repository, the
// transaction view also carries ledger and inventory views over the same
// database transaction.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPurchase(ctx context.Context, purchaseID int64) (Purchase, error)
	ListPurchases(ctx context.Context, limit int) ([]Purchase, error)
}

// TxRepository exposes purchase mutations bound to one open transaction.
type TxRepository interface {
	Ledger() ledger.TxRepository
	Inventory() inventory.TxRepository
	NextDocumentNumber(ctx context.Context) (string, error)
	InsertPurchase(ctx context.Context, p Purchase) (int64, error)
	InsertLines(ctx context.Context, purchaseID int64, lines []PurchaseLine) error
	GetPurchaseForUpdate(ctx context.Context, purchaseID int64) (Purchase, error)
	MarkVoided(ctx context.Context, purchaseID int64, at time.Time) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds the pgx-backed purchases repository.
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

const purchaseColumns = `id, document_no, supplier_name, payment_method, vatable,
subtotal, vat, total, status, journal_entry_id, source_id, created_at, voided_at`

func scanPurchase(row pgx.Row) (Purchase, error) {
	var p Purchase
	err := row.Scan(&p.ID, &p.DocumentNo, &p.SupplierName, &p.PaymentMethod, &p.VATable,
		&p.Subtotal, &p.VAT, &p.Total, &p.Status, &p.JournalEntryID, &p.SourceID, &p.CreatedAt, &p.VoidedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Purchase{}, ErrPurchaseNotFound
		}
		return Purchase{}, err
	}
	return p, nil
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadLines(ctx context.Context, q queryer, purchaseID int64) ([]PurchaseLine, error) {
	rows, err := q.Query(ctx, `SELECT id, purchase_id, product_id, qty, unit_cost, line_total, lot_id
FROM purchase_lines WHERE purchase_id=$1 ORDER BY id ASC`, purchaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []PurchaseLine
	for rows.Next() {
		var l PurchaseLine
		if err := rows.Scan(&l.ID, &l.PurchaseID, &l.ProductID, &l.Qty, &l.UnitCost, &l.LineTotal, &l.LotID); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *repository) GetPurchase(ctx context.Context, purchaseID int64) (Purchase, error) {
	p, err := scanPurchase(r.db.QueryRow(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE id=$1`, purchaseID))
	if err != nil {
		return Purchase{}, err
	}
	p.Lines, err = loadLines(ctx, r.db, purchaseID)
	if err != nil {
		return Purchase{}, err
	}
	return p, nil
}

func (r *repository) ListPurchases(ctx context.Context, limit int) ([]Purchase, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `SELECT `+purchaseColumns+` FROM purchases ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var purchases []Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		purchases = append(purchases, p)
	}
	return purchases, rows.Err()
}

type txRepository struct {
	tx        pgx.Tx
	ledger    ledger.TxRepository
	inventory inventory.TxRepository
}

func (r *txRepository) Ledger() ledger.TxRepository       { return r.ledger }
func (r *txRepository) Inventory() inventory.TxRepository { return r.inventory }

func (r *txRepository) NextDocumentNumber(ctx context.Context) (string, error) {
	var n int64
	err := r.tx.QueryRow(ctx, `UPDATE document_sequences SET next = next + 1
WHERE kind='PUR' RETURNING next - 1`).Scan(&n)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("PUR-%06d", n), nil
}

func (r *txRepository) InsertPurchase(ctx context.Context, p Purchase) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO purchases
(document_no, supplier_name, payment_method, vatable, subtotal, vat, total, status, journal_entry_id, source_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id`,
		p.DocumentNo, p.SupplierName, p.PaymentMethod, p.VATable, p.Subtotal, p.VAT, p.Total,
		p.Status, p.JournalEntryID, p.SourceID, p.CreatedAt).Scan(&id)
	return id, err
}

func (r *txRepository) InsertLines(ctx context.Context, purchaseID int64, lines []PurchaseLine) error {
	for _, l := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO purchase_lines (purchase_id, product_id, qty, unit_cost, line_total, lot_id)
VALUES ($1,$2,$3,$4,$5,$6)`, purchaseID, l.ProductID, l.Qty, l.UnitCost, l.LineTotal, l.LotID); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) GetPurchaseForUpdate(ctx context.Context, purchaseID int64) (Purchase, error) {
	p, err := scanPurchase(r.tx.QueryRow(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE id=$1 FOR UPDATE`, purchaseID))
	if err != nil {
		return Purchase{}, err
	}
	p.Lines, err = loadLines(ctx, r.tx, purchaseID)
	if err != nil {
		return Purchase{}, err
	}
	return p, nil
}

func (r *txRepository) MarkVoided(ctx context.Context, purchaseID int64, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE purchases SET status=$2, voided_at=$3 WHERE id=$1`,
		purchaseID, StatusVoided, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrPurchaseNotFound
	}
	return nil
}
