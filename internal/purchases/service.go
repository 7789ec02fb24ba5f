package purchases

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tindahan-erp/tindahan/internal/inventory"
	"github.com/tindahan-erp/tindahan/internal/ledger"
)

// Accounts holds the resolved chart-of-accounts ids the purchase flows post
// to.
type Accounts struct {
	Cash            int64
	AccountsPayable int64
	Inventory       int64
	VATInput        int64
}

// Service composes the cost engine and the ledger poster into the receiving
// flows. A purchase creates one inventory lot per line and one journal entry,
// all in a single transaction.
type Service struct {
	repo     Repository
	poster   *ledger.Poster
	engine   *inventory.Engine
	accounts Accounts
	vatRate  decimal.Decimal
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds the purchases service.
func NewService(repo Repository, poster *ledger.Poster, engine *inventory.Engine, accounts Accounts, vatRate decimal.Decimal, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		poster:   poster,
		engine:   engine,
		accounts: accounts,
		vatRate:  vatRate,
		logger:   logger,
		now:      time.Now,
	}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// RecordPurchase receives stock: one lot per line at its unit cost, plus the
// journal entry booking inventory and input VAT against cash or payables.
func (s *Service) RecordPurchase(ctx context.Context, in RecordPurchaseInput) (Purchase, error) {
	if err := in.Validate(); err != nil {
		return Purchase{}, err
	}
	at := in.Date
	if at.IsZero() {
		at = s.now().UTC()
	}

	var purchase Purchase
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sourceID := uuid.New()

		subtotal := decimal.Zero
		lines := make([]PurchaseLine, 0, len(in.Lines))
		for _, li := range in.Lines {
			lot, err := s.engine.ReceiveIn(ctx, tx.Inventory(), inventory.ReceiveInput{
				ProductID:    li.ProductID,
				Qty:          li.Qty,
				UnitCost:     li.UnitCost,
				SourceModule: "purchases",
				SourceID:     sourceID,
				AsOf:         at,
			})
			if err != nil {
				return err
			}
			lineTotal := li.UnitCost.Mul(decimal.NewFromInt(li.Qty)).RoundBank(2)
			subtotal = subtotal.Add(lineTotal)
			lines = append(lines, PurchaseLine{
				ProductID: li.ProductID,
				Qty:       li.Qty,
				UnitCost:  lot.UnitCost,
				LineTotal: lineTotal,
				LotID:     lot.ID,
			})
		}
		subtotal = subtotal.RoundBank(2)

		vat := decimal.Zero
		if in.VATable {
			vat = subtotal.Mul(s.vatRate).RoundBank(2)
		}
		total := subtotal.Add(vat)

		docNo, err := tx.NextDocumentNumber(ctx)
		if err != nil {
			return err
		}

		settleAccount := s.accounts.Cash
		if in.PaymentMethod == PaymentOnAccount {
			settleAccount = s.accounts.AccountsPayable
		}
		postingLines := []ledger.PostingLineInput{
			{AccountID: s.accounts.Inventory, Side: ledger.SideDebit, Amount: subtotal},
		}
		if vat.IsPositive() {
			postingLines = append(postingLines, ledger.PostingLineInput{
				AccountID: s.accounts.VATInput, Side: ledger.SideDebit, Amount: vat,
			})
		}
		postingLines = append(postingLines, ledger.PostingLineInput{
			AccountID: settleAccount, Side: ledger.SideCredit, Amount: total,
		})

		entry, err := s.poster.PostIn(ctx, tx.Ledger(), ledger.PostingInput{
			Date:         at,
			SourceModule: "purchases",
			SourceID:     sourceID,
			Memo:         fmt.Sprintf("Purchase %s", docNo),
			Lines:        postingLines,
		})
		if err != nil {
			return err
		}

		purchase = Purchase{
			DocumentNo:     docNo,
			SupplierName:   in.SupplierName,
			PaymentMethod:  in.PaymentMethod,
			VATable:        in.VATable,
			Subtotal:       subtotal,
			VAT:            vat,
			Total:          total,
			Status:         StatusCompleted,
			JournalEntryID: entry.ID,
			SourceID:       sourceID,
			CreatedAt:      at,
			Lines:          lines,
		}
		purchase.ID, err = tx.InsertPurchase(ctx, purchase)
		if err != nil {
			return err
		}
		for i := range purchase.Lines {
			purchase.Lines[i].PurchaseID = purchase.ID
		}
		return tx.InsertLines(ctx, purchase.ID, purchase.Lines)
	})
	if err != nil {
		return Purchase{}, err
	}
	if s.logger != nil {
		s.logger.Info("purchase recorded",
			slog.Int64("purchase_id", purchase.ID),
			slog.String("document_no", purchase.DocumentNo),
			slog.String("total", purchase.Total.StringFixed(2)))
	}
	return purchase, nil
}

// VoidPurchase undoes a purchase: every lot it created is voided and the
// journal entry reversed. A lot that sales already drew from blocks the void
// with ErrLotPartiallyConsumed; the caller must correct by adjustment
// instead.
func (s *Service) VoidPurchase(ctx context.Context, purchaseID int64) (Purchase, error) {
	var purchase Purchase
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		purchase, err = tx.GetPurchaseForUpdate(ctx, purchaseID)
		if err != nil {
			return err
		}
		if purchase.Status == StatusVoided {
			return ErrAlreadyVoided
		}
		for _, line := range purchase.Lines {
			if err := s.engine.ReverseReceiptIn(ctx, tx.Inventory(), line.LotID); err != nil {
				return err
			}
		}
		if _, err := s.poster.ReverseIn(ctx, tx.Ledger(), ledger.ReverseInput{
			EntryID: purchase.JournalEntryID,
			Memo:    fmt.Sprintf("Void of %s", purchase.DocumentNo),
		}); err != nil {
			return err
		}
		at := s.now().UTC()
		if err := tx.MarkVoided(ctx, purchaseID, at); err != nil {
			return err
		}
		purchase.Status = StatusVoided
		purchase.VoidedAt = &at
		return nil
	})
	if err != nil {
		return Purchase{}, err
	}
	if s.logger != nil {
		s.logger.Info("purchase voided",
			slog.Int64("purchase_id", purchase.ID),
			slog.String("document_no", purchase.DocumentNo))
	}
	return purchase, nil
}

// GetPurchase loads one purchase with its lines.
func (s *Service) GetPurchase(ctx context.Context, purchaseID int64) (Purchase, error) {
	return s.repo.GetPurchase(ctx, purchaseID)
}

// ListPurchases returns recent purchases, newest first.
func (s *Service) ListPurchases(ctx context.Context, limit int) ([]Purchase, error) {
	return s.repo.ListPurchases(ctx, limit)
}
