package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PostingLineInput describes one line of a posting request. Amount is always
// positive; Side selects the column it lands in.
type PostingLineInput struct {
	AccountID int64
	Side      Side
	Amount    decimal.Decimal
	Memo      string
}

// PostingInput groups fields required to create a journal entry.
type PostingInput struct {
	Date         time.Time
	SourceModule string
	SourceID     uuid.UUID
	Memo         string
	Lines        []PostingLineInput
}

// Validate ensures the posting balances at currency precision before any
// write happens.
func (in PostingInput) Validate() error {
	if in.SourceModule == "" {
		return errors.New("ledger: source module required")
	}
	if in.SourceID == uuid.Nil {
		return errors.New("ledger: source id required")
	}
	if len(in.Lines) < 2 {
		return ErrTooFewLines
	}
	debit := decimal.Zero
	credit := decimal.Zero
	for idx, line := range in.Lines {
		if line.AccountID == 0 {
			return fmt.Errorf("ledger: line %d missing account", idx)
		}
		if !line.Amount.IsPositive() {
			return fmt.Errorf("ledger: line %d amount must be positive", idx)
		}
		switch line.Side {
		case SideDebit:
			debit = debit.Add(line.Amount)
		case SideCredit:
			credit = credit.Add(line.Amount)
		default:
			return fmt.Errorf("ledger: line %d has unknown side %q", idx, line.Side)
		}
	}
	if !debit.RoundBank(2).Equal(credit.RoundBank(2)) {
		return ErrUnbalancedEntry
	}
	return nil
}

// ReverseInput wraps parameters for reversing a posted entry.
type ReverseInput struct {
	EntryID int64
	Memo    string
}
