package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Poster records balanced journal entries and their reversals. It is the only
// write path into the general ledger; every transaction-producing flow (sales,
// purchases, payments, voids) goes through Post or Reverse.
type Poster struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewPoster builds a Poster.
func NewPoster(repo Repository, logger *slog.Logger) *Poster {
	return &Poster{repo: repo, logger: logger, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (p *Poster) WithNow(now func() time.Time) {
	if now != nil {
		p.now = now
	}
}

// Post validates and persists a journal entry with all its lines as one
// atomic unit. Rejected input leaves the ledger untouched.
func (p *Poster) Post(ctx context.Context, in PostingInput) (JournalEntry, error) {
	var entry JournalEntry
	err := p.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = p.PostIn(ctx, tx, in)
		return err
	})
	if err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

// PostIn posts within an already-open transaction. Composed flows use this to
// keep inventory mutation and journal posting in a single atomic unit.
func (p *Poster) PostIn(ctx context.Context, tx TxRepository, in PostingInput) (JournalEntry, error) {
	if err := in.Validate(); err != nil {
		return JournalEntry{}, err
	}
	if in.Date.IsZero() {
		in.Date = p.now().UTC()
	}
	for idx := range in.Lines {
		in.Lines[idx].Amount = in.Lines[idx].Amount.RoundBank(2)
	}
	entry, err := tx.InsertEntry(ctx, in, nil)
	if err != nil {
		return JournalEntry{}, err
	}
	if err := tx.InsertLines(ctx, entry.ID, in.Lines); err != nil {
		return JournalEntry{}, err
	}
	if err := tx.LinkSource(ctx, in.SourceModule, in.SourceID, entry.ID); err != nil {
		return JournalEntry{}, err
	}
	entry.Lines = linesFromInput(entry.ID, in.Lines)
	if p.logger != nil {
		p.logger.Info("journal posted",
			slog.Int64("entry_id", entry.ID),
			slog.String("source", in.SourceModule),
			slog.Int("lines", len(in.Lines)))
	}
	return entry, nil
}

// Reverse posts a compensating entry with every line's side flipped. A second
// reversal of the same entry is rejected with ErrAlreadyReversed rather than
// silently ignored, so callers notice double voids.
func (p *Poster) Reverse(ctx context.Context, in ReverseInput) (JournalEntry, error) {
	var reversal JournalEntry
	err := p.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		reversal, err = p.ReverseIn(ctx, tx, in)
		return err
	})
	if err != nil {
		return JournalEntry{}, err
	}
	return reversal, nil
}

// ReverseIn reverses within an already-open transaction.
func (p *Poster) ReverseIn(ctx context.Context, tx TxRepository, in ReverseInput) (JournalEntry, error) {
	if in.EntryID == 0 {
		return JournalEntry{}, errors.New("ledger: entry id required")
	}
	original, err := tx.GetEntryWithLines(ctx, in.EntryID)
	if err != nil {
		return JournalEntry{}, err
	}
	if original.Status != EntryStatusPosted {
		return JournalEntry{}, ErrInvalidStatus
	}
	posting := PostingInput{
		Date:         p.now().UTC(),
		SourceModule: original.SourceModule + ":REVERSAL",
		SourceID:     uuid.New(),
		Memo:         reversalMemo(in.Memo, original.Number),
		Lines:        flipLines(original.Lines),
	}
	entry, err := tx.InsertEntry(ctx, posting, &original.ID)
	if err != nil {
		return JournalEntry{}, err
	}
	if err := tx.InsertLines(ctx, entry.ID, posting.Lines); err != nil {
		return JournalEntry{}, err
	}
	if err := tx.LinkSource(ctx, posting.SourceModule, posting.SourceID, entry.ID); err != nil {
		return JournalEntry{}, err
	}
	entry.Lines = linesFromInput(entry.ID, posting.Lines)
	if p.logger != nil {
		p.logger.Info("journal reversed",
			slog.Int64("original_id", original.ID),
			slog.Int64("reversal_id", entry.ID))
	}
	return entry, nil
}

// List returns recent journal entries, newest first.
func (p *Poster) List(ctx context.Context, limit int) ([]JournalEntry, error) {
	return p.repo.List(ctx, limit)
}

// GetEntry loads one entry with its lines.
func (p *Poster) GetEntry(ctx context.Context, entryID int64) (JournalEntry, error) {
	return p.repo.GetEntryWithLines(ctx, entryID)
}

// TrialBalance aggregates posted activity per account.
func (p *Poster) TrialBalance(ctx context.Context) ([]AccountBalance, error) {
	return p.repo.TrialBalance(ctx)
}

func flipLines(lines []JournalLine) []PostingLineInput {
	out := make([]PostingLineInput, 0, len(lines))
	for _, line := range lines {
		flipped := PostingLineInput{AccountID: line.AccountID, Memo: line.Memo}
		if line.Debit.IsPositive() {
			flipped.Side = SideCredit
			flipped.Amount = line.Debit
		} else {
			flipped.Side = SideDebit
			flipped.Amount = line.Credit
		}
		out = append(out, flipped)
	}
	return out
}

func linesFromInput(entryID int64, lines []PostingLineInput) []JournalLine {
	out := make([]JournalLine, 0, len(lines))
	for _, line := range lines {
		jl := JournalLine{EntryID: entryID, AccountID: line.AccountID, Memo: line.Memo}
		if line.Side == SideDebit {
			jl.Debit = line.Amount
		} else {
			jl.Credit = line.Amount
		}
		out = append(out, jl)
	}
	return out
}

func reversalMemo(memo string, number int64) string {
	if memo != "" {
		return memo
	}
	return fmt.Sprintf("Reversal of JE %d", number)
}
