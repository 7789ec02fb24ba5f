package sales

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

// Accounts holds the resolved chart-of-accounts ids the sale flows post to.
// Resolved once at startup from account codes.
type Accounts struct {
	Cash               int64
	AccountsReceivable int64
	SalesRevenue       int64
	VATPayable         int64
	DiscountsAllowed   int64
	COGS               int64
	Inventory          int64
	CWTReceivable      int64
}

// Service composes the cost engine and the ledger poster into the
// point-of-sale flows. Every flow runs as one database transaction: stock
// movement, journal entry and sale document commit together or not at all.
type Service struct {
	repo     Repository
	poster   *ledger.Poster
	engine   *inventory.Engine
	accounts Accounts
	policy   TaxPolicy
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds the sales service.
func NewService(repo Repository, poster *ledger.Poster, engine *inventory.Engine, accounts Accounts, policy TaxPolicy, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		poster:   poster,
		engine:   engine,
		accounts: accounts,
		policy:   policy,
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

// RecordSale rings up a sale: prices the lines, consumes stock FIFO, posts
// the journal entry and persists the document, all in one transaction. Any
// failure, including insufficient stock, leaves no trace.
func (s *Service) RecordSale(ctx context.Context, in RecordSaleInput) (Sale, error) {
	if err := in.Validate(); err != nil {
		return Sale{}, err
	}
	at := in.Date
	if at.IsZero() {
		at = s.now().UTC()
	}

	var sale Sale
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sourceID := uuid.New()

		gross := decimal.Zero
		lines := make([]SaleLine, 0, len(in.Lines))
		for _, li := range in.Lines {
			product, err := tx.Inventory().GetProduct(ctx, li.ProductID)
			if err != nil {
				return err
			}
			price := li.UnitPrice
			if price.IsZero() {
				price = product.SalePrice
			}
			lineTotal := price.Mul(decimal.NewFromInt(li.Qty)).RoundBank(2)
			gross = gross.Add(lineTotal)
			lines = append(lines, SaleLine{
				ProductID: li.ProductID,
				Qty:       li.Qty,
				UnitPrice: price,
				LineTotal: lineTotal,
			})
		}

		totals, err := s.policy.Compute(gross, in.DiscountKind, in.DiscountValue)
		if err != nil {
			return err
		}

		cogs := decimal.Zero
		for _, li := range in.Lines {
			cons, err := s.engine.ConsumeIn(ctx, tx.Inventory(), inventory.ConsumeInput{
				ProductID:    li.ProductID,
				Qty:          li.Qty,
				SourceModule: "sales",
				SourceID:     sourceID,
				AsOf:         at,
			})
			if err != nil {
				return err
			}
			cogs = cogs.Add(cons.Total)
		}
		cogs = cogs.RoundBank(2)

		docNo, err := tx.NextDocumentNumber(ctx, in.DocumentKind)
		if err != nil {
			return err
		}

		entry, err := s.poster.PostIn(ctx, tx.Ledger(), ledger.PostingInput{
			Date:         at,
			SourceModule: "sales",
			SourceID:     sourceID,
			Memo:         fmt.Sprintf("Sale %s", docNo),
			Lines:        s.journalLines(in.PaymentMethod, totals, cogs),
		})
		if err != nil {
			return err
		}

		sale = Sale{
			DocumentKind:   in.DocumentKind,
			DocumentNo:     docNo,
			CustomerName:   in.CustomerName,
			PaymentMethod:  in.PaymentMethod,
			DiscountKind:   in.DiscountKind,
			DiscountValue:  in.DiscountValue,
			Gross:          totals.Gross,
			Discount:       totals.Discount,
			Net:            totals.Net,
			VAT:            totals.VAT,
			Total:          totals.Total,
			COGS:           cogs,
			SettledAmount:  decimal.Zero,
			Status:         StatusCompleted,
			JournalEntryID: entry.ID,
			SourceID:       sourceID,
			CreatedAt:      at,
			Lines:          lines,
		}
		sale.ID, err = tx.InsertSale(ctx, sale)
		if err != nil {
			return err
		}
		for i := range sale.Lines {
			sale.Lines[i].SaleID = sale.ID
		}
		return tx.InsertLines(ctx, sale.ID, sale.Lines)
	})
	if err != nil {
		return Sale{}, err
	}
	if s.logger != nil {
		s.logger.Info("sale recorded",
			slog.Int64("sale_id", sale.ID),
			slog.String("document_no", sale.DocumentNo),
			slog.String("total", sale.Total.StringFixed(2)))
	}
	return sale, nil
}

// journalLines builds the posting for a sale. Debits: settlement account for
// the amount tendered plus discounts allowed for the concession given.
// Credits: net revenue and output VAT. COGS against inventory rides along at
// cost.
func (s *Service) journalLines(method PaymentMethod, totals Totals, cogs decimal.Decimal) []ledger.PostingLineInput {
	settleAccount := s.accounts.Cash
	if method == PaymentOnAccount {
		settleAccount = s.accounts.AccountsReceivable
	}
	lines := []ledger.PostingLineInput{
		{AccountID: settleAccount, Side: ledger.SideDebit, Amount: totals.Total},
	}
	if totals.Discount.IsPositive() {
		lines = append(lines, ledger.PostingLineInput{
			AccountID: s.accounts.DiscountsAllowed, Side: ledger.SideDebit, Amount: totals.Discount,
		})
	}
	lines = append(lines,
		ledger.PostingLineInput{AccountID: s.accounts.SalesRevenue, Side: ledger.SideCredit, Amount: totals.Gross},
	)
	if totals.VAT.IsPositive() {
		lines = append(lines, ledger.PostingLineInput{
			AccountID: s.accounts.VATPayable, Side: ledger.SideCredit, Amount: totals.VAT,
		})
	}
	if cogs.IsPositive() {
		lines = append(lines,
			ledger.PostingLineInput{AccountID: s.accounts.COGS, Side: ledger.SideDebit, Amount: cogs},
			ledger.PostingLineInput{AccountID: s.accounts.Inventory, Side: ledger.SideCredit, Amount: cogs},
		)
	}
	return lines
}

// VoidSale undoes a sale with compensating records: the journal entry is
// reversed, the consumed stock is restored lot by lot, and the document is
// marked void. The original rows are never mutated.
func (s *Service) VoidSale(ctx context.Context, saleID int64) (Sale, error) {
	var sale Sale
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		sale, err = tx.GetSaleForUpdate(ctx, saleID)
		if err != nil {
			return err
		}
		if sale.Status == StatusVoided {
			return ErrAlreadyVoided
		}
		// Settlement entries would keep crediting AR for a sale that no
		// longer exists. Void the payments first.
		if sale.SettledAmount.IsPositive() {
			return ErrSaleSettled
		}
		if _, err := s.poster.ReverseIn(ctx, tx.Ledger(), ledger.ReverseInput{
			EntryID: sale.JournalEntryID,
			Memo:    fmt.Sprintf("Void of %s", sale.DocumentNo),
		}); err != nil {
			return err
		}
		if _, err := s.engine.ReverseConsumptionIn(ctx, tx.Inventory(), "sales", sale.SourceID); err != nil {
			return err
		}
		at := s.now().UTC()
		if err := tx.MarkVoided(ctx, saleID, at); err != nil {
			return err
		}
		sale.Status = StatusVoided
		sale.VoidedAt = &at
		return nil
	})
	if err != nil {
		return Sale{}, err
	}
	if s.logger != nil {
		s.logger.Info("sale voided",
			slog.Int64("sale_id", sale.ID),
			slog.String("document_no", sale.DocumentNo))
	}
	return sale, nil
}

// SettleSale records a payment against an on-account sale. CWT is the
// withholding the customer kept back; it reduces the receivable alongside
// the cash received. Paying past the sale total is rejected.
func (s *Service) SettleSale(ctx context.Context, in SettleSaleInput) (Settlement, error) {
	if !in.Amount.IsPositive() {
		return Settlement{}, ErrInvalidAmount
	}
	if in.CWT.IsNegative() {
		return Settlement{}, ErrInvalidAmount
	}
	var settlement Settlement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sale, err := tx.GetSaleForUpdate(ctx, in.SaleID)
		if err != nil {
			return err
		}
		if sale.Status == StatusVoided {
			return ErrAlreadyVoided
		}
		if sale.PaymentMethod != PaymentOnAccount {
			return ErrNotOnAccount
		}
		applied := in.Amount.Add(in.CWT).RoundBank(2)
		if sale.SettledAmount.Add(applied).GreaterThan(sale.Total) {
			return ErrOverSettlement
		}

		lines := []ledger.PostingLineInput{
			{AccountID: s.accounts.Cash, Side: ledger.SideDebit, Amount: in.Amount},
		}
		if in.CWT.IsPositive() {
			lines = append(lines, ledger.PostingLineInput{
				AccountID: s.accounts.CWTReceivable, Side: ledger.SideDebit, Amount: in.CWT,
			})
		}
		lines = append(lines, ledger.PostingLineInput{
			AccountID: s.accounts.AccountsReceivable, Side: ledger.SideCredit, Amount: applied,
		})

		at := s.now().UTC()
		entry, err := s.poster.PostIn(ctx, tx.Ledger(), ledger.PostingInput{
			Date:         at,
			SourceModule: "sales:SETTLEMENT",
			SourceID:     uuid.New(),
			Memo:         fmt.Sprintf("Payment on %s", sale.DocumentNo),
			Lines:        lines,
		})
		if err != nil {
			return err
		}

		settlement = Settlement{
			SaleID:         sale.ID,
			Amount:         in.Amount.RoundBank(2),
			CWT:            in.CWT.RoundBank(2),
			JournalEntryID: entry.ID,
			CreatedAt:      at,
		}
		settlement.ID, err = tx.InsertSettlement(ctx, settlement)
		if err != nil {
			return err
		}
		return tx.AddSettled(ctx, sale.ID, applied)
	})
	if err != nil {
		return Settlement{}, err
	}
	if s.logger != nil {
		s.logger.Info("sale settled",
			slog.Int64("sale_id", settlement.SaleID),
			slog.String("amount", settlement.Amount.StringFixed(2)))
	}
	return settlement, nil
}

// GetSale loads one sale with its lines.
func (s *Service) GetSale(ctx context.Context, saleID int64) (Sale, error) {
	return s.repo.GetSale(ctx, saleID)
}

// ListSales returns recent sales, newest first.
func (s *Service) ListSales(ctx context.Context, limit int) ([]Sale, error) {
	return s.repo.ListSales(ctx, limit)
}
