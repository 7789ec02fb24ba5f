package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tindahan-erp/tindahan/internal/platform/db"
)

// Repository abstracts storage for the cost engine. The storage layer must
// provide an atomic read-modify-write transaction primitive with row locking
// on lots; two concurrent sales must not both drain the same lot below zero.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetProduct(ctx context.Context, productID int64) (Product, error)
	GetProductBySKU(ctx context.Context, sku string) (Product, error)
	OpenLots(ctx context.Context, productID int64) ([]Lot, error)
	OnHand(ctx context.Context, productID int64) (int64, error)
	LowStock(ctx context.Context) ([]StockLevel, error)
}

// TxRepository exposes lot mutations available within a transaction.
type TxRepository interface {
	GetProduct(ctx context.Context, productID int64) (Product, error)
	GetProductBySKU(ctx context.Context, sku string) (Product, error)
	OpenLotsForUpdate(ctx context.Context, productID int64) ([]Lot, error)
	GetLotForUpdate(ctx context.Context, lotID int64) (Lot, error)
	NextReceiptSeq(ctx context.Context, productID int64) (int64, error)
	InsertLot(ctx context.Context, lot Lot) (int64, error)
	UpdateLotRemaining(ctx context.Context, lotID, remaining int64) error
	VoidLot(ctx context.Context, lotID int64, at time.Time) error
	InsertTransaction(ctx context.Context, txn Transaction) (int64, error)
	TransactionsBySource(ctx context.Context, module string, sourceID uuid.UUID) ([]Transaction, error)
	DeleteTransactionsBySource(ctx context.Context, module string, sourceID uuid.UUID) error
}

// StockLevel pairs a product with its derived on-hand quantity.
type StockLevel struct {
	Product Product
	OnHand  int64
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds the pgx-backed inventory repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

const productColumns = `id, sku, name, sale_price, cost_price, reorder_threshold, active, created_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.SalePrice, &p.CostPrice, &p.ReorderThreshold, &p.Active, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, err
	}
	return p, nil
}

func (r *repository) GetProduct(ctx context.Context, productID int64) (Product, error) {
	return scanProduct(r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, productID))
}

func (r *repository) GetProductBySKU(ctx context.Context, sku string) (Product, error) {
	return scanProduct(r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE sku=$1`, sku))
}

const lotColumns = `id, product_id, receipt_seq, original_qty, remaining_qty, unit_cost, source_module, source_id, received_at, voided_at`

func scanLots(rows pgx.Rows) ([]Lot, error) {
	defer rows.Close()
	var lots []Lot
	for rows.Next() {
		var l Lot
		if err := rows.Scan(&l.ID, &l.ProductID, &l.ReceiptSeq, &l.OriginalQty, &l.RemainingQty, &l.UnitCost, &l.SourceModule, &l.SourceID, &l.ReceivedAt, &l.VoidedAt); err != nil {
			return nil, err
		}
		lots = append(lots, l)
	}
	return lots, rows.Err()
}

func (r *repository) OpenLots(ctx context.Context, productID int64) ([]Lot, error) {
	rows, err := r.db.Query(ctx, `SELECT `+lotColumns+` FROM inventory_lots
WHERE product_id=$1 AND remaining_qty > 0 AND voided_at IS NULL
ORDER BY receipt_seq ASC`, productID)
	if err != nil {
		return nil, err
	}
	return scanLots(rows)
}

func (r *repository) OnHand(ctx context.Context, productID int64) (int64, error) {
	var qty int64
	err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(remaining_qty), 0) FROM inventory_lots
WHERE product_id=$1 AND voided_at IS NULL`, productID).Scan(&qty)
	return qty, err
}

func (r *repository) LowStock(ctx context.Context) ([]StockLevel, error) {
	rows, err := r.db.Query(ctx, `SELECT p.id, p.sku, p.name, p.sale_price, p.cost_price, p.reorder_threshold, p.active, p.created_at,
COALESCE(SUM(l.remaining_qty), 0) AS on_hand
FROM products p
LEFT JOIN inventory_lots l ON l.product_id = p.id AND l.voided_at IS NULL
WHERE p.active
GROUP BY p.id
HAVING COALESCE(SUM(l.remaining_qty), 0) <= p.reorder_threshold
ORDER BY p.sku ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var levels []StockLevel
	for rows.Next() {
		var lvl StockLevel
		p := &lvl.Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.SalePrice, &p.CostPrice, &p.ReorderThreshold, &p.Active, &p.CreatedAt, &lvl.OnHand); err != nil {
			return nil, err
		}
		levels = append(levels, lvl)
	}
	return levels, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps an open pgx transaction so composed services can
// move stock inside their own atomic unit.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

func (r *txRepository) GetProduct(ctx context.Context, productID int64) (Product, error) {
	return scanProduct(r.tx.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, productID))
}

func (r *txRepository) GetProductBySKU(ctx context.Context, sku string) (Product, error) {
	return scanProduct(r.tx.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE sku=$1`, sku))
}

func (r *txRepository) OpenLotsForUpdate(ctx context.Context, productID int64) ([]Lot, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+lotColumns+` FROM inventory_lots
WHERE product_id=$1 AND remaining_qty > 0 AND voided_at IS NULL
ORDER BY receipt_seq ASC FOR UPDATE`, productID)
	if err != nil {
		return nil, err
	}
	return scanLots(rows)
}

func (r *txRepository) GetLotForUpdate(ctx context.Context, lotID int64) (Lot, error) {
	var l Lot
	err := r.tx.QueryRow(ctx, `SELECT `+lotColumns+` FROM inventory_lots WHERE id=$1 FOR UPDATE`, lotID).
		Scan(&l.ID, &l.ProductID, &l.ReceiptSeq, &l.OriginalQty, &l.RemainingQty, &l.UnitCost, &l.SourceModule, &l.SourceID, &l.ReceivedAt, &l.VoidedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lot{}, ErrLotNotFound
		}
		return Lot{}, err
	}
	return l, nil
}

// NextReceiptSeq derives the next per-product counter from stored lots, so
// ordering survives restarts instead of living in process state.
func (r *txRepository) NextReceiptSeq(ctx context.Context, productID int64) (int64, error) {
	var seq int64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(MAX(receipt_seq), 0) + 1 FROM inventory_lots WHERE product_id=$1`, productID).Scan(&seq)
	return seq, err
}

func (r *txRepository) InsertLot(ctx context.Context, lot Lot) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_lots (product_id, receipt_seq, original_qty, remaining_qty, unit_cost, source_module, source_id, received_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		lot.ProductID, lot.ReceiptSeq, lot.OriginalQty, lot.RemainingQty, lot.UnitCost, lot.SourceModule, lot.SourceID, lot.ReceivedAt).Scan(&id)
	return id, err
}

func (r *txRepository) UpdateLotRemaining(ctx context.Context, lotID, remaining int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE inventory_lots SET remaining_qty=$2 WHERE id=$1`, lotID, remaining)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrLotNotFound
	}
	return nil
}

func (r *txRepository) VoidLot(ctx context.Context, lotID int64, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE inventory_lots SET remaining_qty=0, voided_at=$2 WHERE id=$1 AND voided_at IS NULL`, lotID, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrLotNotFound
	}
	return nil
}

func (r *txRepository) InsertTransaction(ctx context.Context, txn Transaction) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_transactions (lot_id, product_id, qty_used, unit_cost, total_cost, source_module, source_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		txn.LotID, txn.ProductID, txn.QtyUsed, txn.UnitCost, txn.TotalCost, txn.SourceModule, txn.SourceID, txn.CreatedAt).Scan(&id)
	return id, err
}

func (r *txRepository) TransactionsBySource(ctx context.Context, module string, sourceID uuid.UUID) ([]Transaction, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, lot_id, product_id, qty_used, unit_cost, total_cost, source_module, source_id, created_at
FROM inventory_transactions WHERE source_module=$1 AND source_id=$2 ORDER BY id ASC`, module, sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var txns []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.LotID, &t.ProductID, &t.QtyUsed, &t.UnitCost, &t.TotalCost, &t.SourceModule, &t.SourceID, &t.CreatedAt); err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

func (r *txRepository) DeleteTransactionsBySource(ctx context.Context, module string, sourceID uuid.UUID) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM inventory_transactions WHERE source_module=$1 AND source_id=$2`, module, sourceID)
	return err
}
