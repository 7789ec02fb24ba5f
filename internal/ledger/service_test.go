package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	entries  map[int64]JournalEntry
	links    map[string]int64
	reversed map[int64]int64
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		entries:  make(map[int64]JournalEntry),
		links:    make(map[string]int64),
		reversed: make(map[int64]int64),
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	staged := &memoryTx{repo: newMemoryRepo()}
	staged.repo.nextID = r.nextID
	for k, v := range r.entries {
		staged.repo.entries[k] = v
	}
	for k, v := range r.links {
		staged.repo.links[k] = v
	}
	for k, v := range r.reversed {
		staged.repo.reversed[k] = v
	}
	if err := fn(ctx, staged); err != nil {
		return err
	}
	r.nextID = staged.repo.nextID
	r.entries = staged.repo.entries
	r.links = staged.repo.links
	r.reversed = staged.repo.reversed
	return nil
}

func (r *memoryRepo) List(ctx context.Context, limit int) ([]JournalEntry, error) {
	out := make([]JournalEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	return out, nil
}

func (r *memoryRepo) GetEntryWithLines(ctx context.Context, entryID int64) (JournalEntry, error) {
	e, ok := r.entries[entryID]
	if !ok {
		return JournalEntry{}, ErrEntryNotFound
	}
	return e, nil
}

func (r *memoryRepo) GetAccountByCode(ctx context.Context, code string) (Account, error) {
	return Account{}, ErrAccountNotFound
}

func (r *memoryRepo) TrialBalance(ctx context.Context) ([]AccountBalance, error) {
	totals := make(map[int64]*AccountBalance)
	for _, e := range r.entries {
		if e.Status != EntryStatusPosted {
			continue
		}
		for _, l := range e.Lines {
			b, ok := totals[l.AccountID]
			if !ok {
				b = &AccountBalance{AccountID: l.AccountID, Type: AccountTypeAsset}
				totals[l.AccountID] = b
			}
			b.Debit = b.Debit.Add(l.Debit)
			b.Credit = b.Credit.Add(l.Credit)
		}
	}
	out := make([]AccountBalance, 0, len(totals))
	for _, b := range totals {
		out = append(out, *b)
	}
	return out, nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (tx *memoryTx) InsertEntry(ctx context.Context, in PostingInput, reversalOf *int64) (JournalEntry, error) {
	if reversalOf != nil {
		if _, exists := tx.repo.reversed[*reversalOf]; exists {
			return JournalEntry{}, ErrAlreadyReversed
		}
	}
	tx.repo.nextID++
	entry := JournalEntry{
		ID:           tx.repo.nextID,
		Number:       tx.repo.nextID,
		Date:         in.Date,
		SourceModule: in.SourceModule,
		SourceID:     in.SourceID,
		Memo:         in.Memo,
		Status:       EntryStatusPosted,
		ReversalOf:   reversalOf,
		PostedAt:     time.Now().UTC(),
	}
	tx.repo.entries[entry.ID] = entry
	if reversalOf != nil {
		tx.repo.reversed[*reversalOf] = entry.ID
	}
	return entry, nil
}

func (tx *memoryTx) InsertLines(ctx context.Context, entryID int64, lines []PostingLineInput) error {
	entry := tx.repo.entries[entryID]
	entry.Lines = linesFromInput(entryID, lines)
	tx.repo.entries[entryID] = entry
	return nil
}

func (tx *memoryTx) LinkSource(ctx context.Context, module string, sourceID uuid.UUID, entryID int64) error {
	key := module + ":" + sourceID.String()
	if _, exists := tx.repo.links[key]; exists {
		return ErrSourceAlreadyLinked
	}
	tx.repo.links[key] = entryID
	return nil
}

func (tx *memoryTx) GetEntryWithLines(ctx context.Context, entryID int64) (JournalEntry, error) {
	return tx.repo.GetEntryWithLines(ctx, entryID)
}

func (tx *memoryTx) GetAccount(ctx context.Context, accountID int64) (Account, error) {
	return Account{ID: accountID, Type: AccountTypeAsset}, nil
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func balancedInput() PostingInput {
	return PostingInput{
		SourceModule: "sales",
		SourceID:     uuid.New(),
		Memo:         "Cash sale",
		Lines: []PostingLineInput{
			{AccountID: 1, Side: SideDebit, Amount: money("112.00")},
			{AccountID: 4, Side: SideCredit, Amount: money("100.00")},
			{AccountID: 5, Side: SideCredit, Amount: money("12.00")},
		},
	}
}

func TestPostBalancedEntry(t *testing.T) {
	repo := newMemoryRepo()
	poster := NewPoster(repo, nil)
	ctx := context.Background()

	entry, err := poster.Post(ctx, balancedInput())
	require.NoError(t, err)
	require.NotZero(t, entry.ID)
	require.Len(t, entry.Lines, 3)
	require.Equal(t, EntryStatusPosted, entry.Status)

	stored, err := repo.GetEntryWithLines(ctx, entry.ID)
	require.NoError(t, err)
	require.True(t, stored.Lines[0].Debit.Equal(money("112.00")))
	require.True(t, stored.Lines[1].Credit.Equal(money("100.00")))
}

func TestPostRejectsUnbalanced(t *testing.T) {
	repo := newMemoryRepo()
	poster := NewPoster(repo, nil)
	ctx := context.Background()

	in := balancedInput()
	in.Lines[0].Amount = money("111.99")
	_, err := poster.Post(ctx, in)
	require.ErrorIs(t, err, ErrUnbalancedEntry)

	entries, err := repo.List(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, entries, "rejected posting must not create an entry")
}

func TestPostRejectsSingleLine(t *testing.T) {
	poster := NewPoster(newMemoryRepo(), nil)
	in := balancedInput()
	in.Lines = in.Lines[:1]
	_, err := poster.Post(context.Background(), in)
	require.ErrorIs(t, err, ErrTooFewLines)
}

func TestPostRejectsNonPositiveAmount(t *testing.T) {
	poster := NewPoster(newMemoryRepo(), nil)
	in := balancedInput()
	in.Lines[0].Amount = decimal.Zero
	_, err := poster.Post(context.Background(), in)
	require.Error(t, err)
}

func TestReverseFlipsLines(t *testing.T) {
	repo := newMemoryRepo()
	poster := NewPoster(repo, nil)
	ctx := context.Background()

	entry, err := poster.Post(ctx, balancedInput())
	require.NoError(t, err)

	reversal, err := poster.Reverse(ctx, ReverseInput{EntryID: entry.ID})
	require.NoError(t, err)
	require.NotNil(t, reversal.ReversalOf)
	require.Equal(t, entry.ID, *reversal.ReversalOf)
	require.Len(t, reversal.Lines, len(entry.Lines))
	for i, line := range reversal.Lines {
		require.True(t, line.Debit.Equal(entry.Lines[i].Credit), "line %d debit", i)
		require.True(t, line.Credit.Equal(entry.Lines[i].Debit), "line %d credit", i)
	}

	// Net effect on every account is zero after both entries.
	balances, err := repo.TrialBalance(ctx)
	require.NoError(t, err)
	for _, b := range balances {
		require.True(t, b.Debit.Equal(b.Credit), "account %d not netted out", b.AccountID)
	}
}

func TestReverseTwiceRejected(t *testing.T) {
	repo := newMemoryRepo()
	poster := NewPoster(repo, nil)
	ctx := context.Background()

	entry, err := poster.Post(ctx, balancedInput())
	require.NoError(t, err)

	_, err = poster.Reverse(ctx, ReverseInput{EntryID: entry.ID})
	require.NoError(t, err)
	_, err = poster.Reverse(ctx, ReverseInput{EntryID: entry.ID})
	require.ErrorIs(t, err, ErrAlreadyReversed)
}

func TestReverseMissingEntry(t *testing.T) {
	poster := NewPoster(newMemoryRepo(), nil)
	_, err := poster.Reverse(context.Background(), ReverseInput{EntryID: 99})
	require.ErrorIs(t, err, ErrEntryNotFound)
}

func TestDuplicateSourceRejected(t *testing.T) {
	repo := newMemoryRepo()
	poster := NewPoster(repo, nil)
	ctx := context.Background()

	in := balancedInput()
	_, err := poster.Post(ctx, in)
	require.NoError(t, err)
	_, err = poster.Post(ctx, in)
	require.ErrorIs(t, err, ErrSourceAlreadyLinked)
}
