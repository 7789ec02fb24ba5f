package ledger

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountType classifies chart-of-accounts entries.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// Side identifies the debit or credit column of a line.
type Side string

const (
	SideDebit  Side = "DEBIT"
	SideCredit Side = "CREDIT"
)

// NormalSide returns the side on which this account type carries its balance.
func (t AccountType) NormalSide() Side {
	switch t {
	case AccountTypeAsset, AccountTypeExpense:
		return SideDebit
	default:
		return SideCredit
	}
}

// Account is an immutable chart-of-accounts entry. The type never changes
// once journal lines reference the account.
type Account struct {
	ID        int64
	Code      string
	Name      string
	Type      AccountType
	CreatedAt time.Time
}

// EntryStatus enumerates journal lifecycle values.
type EntryStatus string

const (
	EntryStatusPosted EntryStatus = "POSTED"
	EntryStatusVoid   EntryStatus = "VOID"
)

// JournalEntry captures a balanced set of postings recorded as one unit.
// ReversalOf points back to the original entry when this entry compensates it.
type JournalEntry struct {
	ID           int64
	Number       int64
	Date         time.Time
	SourceModule string
	SourceID     uuid.UUID
	Memo         string
	Status       EntryStatus
	ReversalOf   *int64
	PostedAt     time.Time
	CreatedAt    time.Time
	Lines        []JournalLine
}

// JournalLine stores a debit or credit amount for an account. Exactly one of
// Debit/Credit is non-zero; both are kept at currency precision (2dp).
type JournalLine struct {
	ID        int64
	EntryID   int64
	AccountID int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
	Memo      string
}

// AccountBalance aggregates posted activity for one account.
type AccountBalance struct {
	AccountID int64
	Code      string
	Name      string
	Type      AccountType
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// Net returns the balance on the account's normal side.
func (b AccountBalance) Net() decimal.Decimal {
	if b.Type.NormalSide() == SideDebit {
		return b.Debit.Sub(b.Credit)
	}
	return b.Credit.Sub(b.Debit)
}

var (
	// ErrUnbalancedEntry indicates debits != credits at currency precision.
	ErrUnbalancedEntry = errors.New("ledger: journal lines must balance")
	// ErrTooFewLines indicates fewer than two lines.
	ErrTooFewLines = errors.New("ledger: journal requires at least two lines")
	// ErrAlreadyReversed indicates a reversal already exists for the entry.
	ErrAlreadyReversed = errors.New("ledger: entry already reversed")
	// ErrEntryNotFound indicates a missing journal entry.
	ErrEntryNotFound = errors.New("ledger: journal entry not found")
	// ErrAccountNotFound indicates a missing account.
	ErrAccountNotFound = errors.New("ledger: account not found")
	// ErrInvalidStatus indicates the entry is not in a state allowing the action.
	ErrInvalidStatus = errors.New("ledger: invalid status for operation")
	// ErrSourceAlreadyLinked indicates the source document already posted an entry.
	ErrSourceAlreadyLinked = errors.New("ledger: source already linked")
)
