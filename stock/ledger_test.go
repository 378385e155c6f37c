package stock_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tollgate/stock-engine/stock"
	"github.com/tollgate/stock-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestLedger(t *testing.T) (*stock.Ledger, *sqlite.Store) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return stock.NewLedger(store, stock.DefaultFaceValue, testLogger()), store
}

func creditEntry(station string, amount int64) stock.LedgerEntry {
	return stock.LedgerEntry{
		Station:   stock.StationID(station),
		Direction: stock.DirectionCredit,
		Category:  stock.CategorySupply,
		Amount:    decimal.NewFromInt(amount),
		Actor:     "tester",
		Reference: "SUP-20260826-120000-001",
	}
}

func debitEntry(station string, amount int64) stock.LedgerEntry {
	return stock.LedgerEntry{
		Station:   stock.StationID(station),
		Direction: stock.DirectionDebit,
		Category:  stock.CategoryTransfer,
		Amount:    decimal.NewFromInt(amount),
		Actor:     "tester",
		Reference: "TR-20260826-120000-001",
	}
}

// =============================================================================
// APPEND TESTS
// =============================================================================

func TestLedger_Append_ZeroInitOnFirstMovement(t *testing.T) {
	// GIVEN: a station with no history at all
	// WHEN: appending its first credit
	// THEN: the chain starts from an explicit zero balance

	l, _ := newTestLedger(t)

	saved, err := l.Append(context.Background(), creditEntry("st-a", 500000))
	require.NoError(t, err)

	assert.True(t, saved.BalanceBefore.IsZero(), "first entry must start from zero")
	assert.Equal(t, "500000", saved.BalanceAfter.String())
	assert.NotZero(t, saved.ID)
	assert.False(t, saved.OccurredAt.IsZero())
}

func TestLedger_Append_ChainsBalances(t *testing.T) {
	// GIVEN: a station credited 500,000
	// WHEN: debiting 50,500 then crediting 1,000
	// THEN: each entry's before equals the previous entry's after

	l, _ := newTestLedger(t)

	first, err := l.Append(context.Background(), creditEntry("st-a", 500000))
	require.NoError(t, err)

	second, err := l.Append(context.Background(), debitEntry("st-a", 50500))
	require.NoError(t, err)
	assert.True(t, second.BalanceBefore.Equal(first.BalanceAfter))
	assert.Equal(t, "449500", second.BalanceAfter.String())

	third, err := l.Append(context.Background(), creditEntry("st-a", 1000))
	require.NoError(t, err)
	assert.True(t, third.BalanceBefore.Equal(second.BalanceAfter))
	assert.Equal(t, "450500", third.BalanceAfter.String())

	bal, err := l.CurrentBalance(context.Background(), "st-a")
	require.NoError(t, err)
	assert.Equal(t, "450500", bal.Value.String())
	assert.Equal(t, int64(901), bal.Tickets(stock.DefaultFaceValue))
}

func TestLedger_Append_RejectsOverdraw(t *testing.T) {
	// GIVEN: a station holding 1,000
	// WHEN: debiting 1,500
	// THEN: rejected with NegativeBalanceError and nothing is written

	l, _ := newTestLedger(t)

	_, err := l.Append(context.Background(), creditEntry("st-a", 1000))
	require.NoError(t, err)

	_, err = l.Append(context.Background(), debitEntry("st-a", 1500))
	require.Error(t, err)

	var negErr *stock.NegativeBalanceError
	require.ErrorAs(t, err, &negErr)
	assert.ErrorIs(t, err, stock.ErrNegativeBalance)
	assert.Equal(t, "1000", negErr.Available.String())
	assert.Equal(t, "1500", negErr.Requested.String())

	entries, err := l.Entries(context.Background(), "st-a")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "rejected debit must leave no trace")

	bal, err := l.CurrentBalance(context.Background(), "st-a")
	require.NoError(t, err)
	assert.Equal(t, "1000", bal.Value.String())
}

func TestLedger_Append_RejectsBadInput(t *testing.T) {
	l, _ := newTestLedger(t)

	e := creditEntry("st-a", 0)
	_, err := l.Append(context.Background(), e)
	assert.Error(t, err, "zero amount")

	e = creditEntry("st-a", 100)
	e.Direction = "sideways"
	_, err = l.Append(context.Background(), e)
	assert.ErrorIs(t, err, stock.ErrUnknownDirection)

	e = creditEntry("st-a", 100)
	e.Category = "mystery"
	_, err = l.Append(context.Background(), e)
	assert.ErrorIs(t, err, stock.ErrUnknownCategory)
}

// =============================================================================
// POINT-IN-TIME BALANCE
// =============================================================================

func TestLedger_BalanceAt_UsesEndOfDay(t *testing.T) {
	// GIVEN: a credit on the 10th and a debit on the 20th
	// WHEN: asking for the balance on the 10th, 15th and 20th
	// THEN: the 10th and 15th see only the credit, the 20th sees both

	l, _ := newTestLedger(t)

	e := creditEntry("st-a", 500000)
	e.OccurredAt = time.Date(2026, 8, 10, 9, 30, 0, 0, time.UTC)
	_, err := l.Append(context.Background(), e)
	require.NoError(t, err)

	d := debitEntry("st-a", 50500)
	d.OccurredAt = time.Date(2026, 8, 20, 16, 0, 0, 0, time.UTC)
	_, err = l.Append(context.Background(), d)
	require.NoError(t, err)

	for _, day := range []int{10, 15} {
		v, err := l.BalanceAt(context.Background(), "st-a", time.Date(2026, 8, day, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		assert.Equal(t, "500000", v.String(), "day %d", day)
	}

	v, err := l.BalanceAt(context.Background(), "st-a", time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "449500", v.String())
}

func TestLedger_BalanceAt_BeforeAnyMovementIsZero(t *testing.T) {
	l, _ := newTestLedger(t)

	v, err := l.BalanceAt(context.Background(), "st-a", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, v.IsZero())
}

// =============================================================================
// REBUILD TESTS
// =============================================================================

func TestLedger_Rebuild_HealthyChainIsUntouched(t *testing.T) {
	// GIVEN: a consistent three-entry chain
	// WHEN: rebuilding
	// THEN: every entry is scanned, none corrected

	l, _ := newTestLedger(t)
	for _, amount := range []int64{500000, 1000, 2500} {
		_, err := l.Append(context.Background(), creditEntry("st-a", amount))
		require.NoError(t, err)
	}

	report, err := l.Rebuild(context.Background(), "st-a")
	require.NoError(t, err)

	assert.Equal(t, 3, report.Scanned)
	assert.Equal(t, 0, report.Corrected)
	assert.Equal(t, "503500", report.FinalBalance.String())
}

func TestLedger_Rebuild_RepairsCorruptedChain(t *testing.T) {
	// GIVEN: a chain whose middle entry carries wrong running balances
	// WHEN: rebuilding
	// THEN: the entry is rewritten from replay and the cache matches;
	//       a second rebuild finds nothing left to fix

	l, store := newTestLedger(t)

	_, err := l.Append(context.Background(), creditEntry("st-a", 500000))
	require.NoError(t, err)
	second, err := l.Append(context.Background(), debitEntry("st-a", 50500))
	require.NoError(t, err)

	// Corrupt the second entry's running balances directly.
	err = store.UpdateEntryBalances(context.Background(), second.ID,
		decimal.NewFromInt(999), decimal.NewFromInt(111))
	require.NoError(t, err)

	report, err := l.Rebuild(context.Background(), "st-a")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 1, report.Corrected)
	assert.Equal(t, "449500", report.FinalBalance.String())

	entries, err := l.Entries(context.Background(), "st-a")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "500000", entries[1].BalanceBefore.String())
	assert.Equal(t, "449500", entries[1].BalanceAfter.String())

	bal, err := l.CurrentBalance(context.Background(), "st-a")
	require.NoError(t, err)
	assert.Equal(t, "449500", bal.Value.String())

	again, err := l.Rebuild(context.Background(), "st-a")
	require.NoError(t, err)
	assert.Equal(t, 0, again.Corrected, "rebuild must be idempotent")
}

func TestLedger_Rebuild_SkipsCancelledEntries(t *testing.T) {
	// GIVEN: a cancelled debit sitting between two live entries
	// WHEN: rebuilding
	// THEN: the replay ignores it and the final balance reflects live
	//       entries only

	l, store := newTestLedger(t)

	_, err := l.Append(context.Background(), creditEntry("st-a", 500000))
	require.NoError(t, err)

	cancelled := debitEntry("st-a", 50500)
	cancelled.BalanceBefore = decimal.NewFromInt(500000)
	cancelled.BalanceAfter = decimal.NewFromInt(449500)
	cancelled.TicketCount = 101
	cancelled.OccurredAt = time.Now().UTC()
	cancelled.Cancelled = true
	_, err = store.InsertEntry(context.Background(), cancelled)
	require.NoError(t, err)

	report, err := l.Rebuild(context.Background(), "st-a")
	require.NoError(t, err)
	assert.Equal(t, "500000", report.FinalBalance.String())
}
