package sqlite_test

import (
	"context"
	"errors"
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

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func inStockSeries(station string, first, last int64) stock.Series {
	count := last - first + 1
	return stock.Series{
		Station:     stock.StationID(station),
		Color:       "red",
		First:       first,
		Last:        last,
		TicketCount: count,
		Value:       stock.ValueFor(count, stock.DefaultFaceValue),
		Status:      stock.StatusInStock,
		Origin:      stock.OriginSupply,
		ReceivedAt:  time.Now().UTC(),
		ReceivedBy:  "tester",
	}
}

func insertSeries(t *testing.T, store *sqlite.Store, sr stock.Series) stock.Series {
	t.Helper()
	saved, err := store.InsertSeries(context.Background(), sr)
	require.NoError(t, err)
	require.NotZero(t, saved.ID)
	return saved
}

// =============================================================================
// SERIES QUERIES
// =============================================================================

func TestStore_SeriesRoundTrip(t *testing.T) {
	store := newTestStore(t)

	saved := insertSeries(t, store, inStockSeries("st-a", 1, 100))

	rows, err := store.StationSeries(context.Background(), "st-a", stock.StatusInStock)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	got := rows[0]
	assert.Equal(t, saved.ID, got.ID)
	assert.Equal(t, int64(100), got.TicketCount)
	assert.True(t, got.Value.Equal(stock.ValueFor(100, stock.DefaultFaceValue)))
	assert.Equal(t, stock.OriginSupply, got.Origin)
	assert.Equal(t, "tester", got.ReceivedBy)
}

func TestStore_CoveringSeriesOrderedAndScoped(t *testing.T) {
	// GIVEN: three in-stock ranges at st-a plus noise at st-b and a
	//        transferred record overlapping the probe
	// WHEN: querying coverage for #150-#450 at st-a
	// THEN: only st-a's overlapping in-stock rows return, ordered by first

	store := newTestStore(t)
	insertSeries(t, store, inStockSeries("st-a", 400, 500))
	insertSeries(t, store, inStockSeries("st-a", 100, 200))
	insertSeries(t, store, inStockSeries("st-a", 600, 700))
	insertSeries(t, store, inStockSeries("st-b", 150, 450))

	transferred := inStockSeries("st-a", 250, 350)
	transferred.Status = stock.StatusTransferred
	insertSeries(t, store, transferred)

	rows, err := store.CoveringSeries(context.Background(), "st-a", "red", 150, 450)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(100), rows[0].First)
	assert.Equal(t, int64(400), rows[1].First)
}

func TestStore_SeriesOverlappingFiltersByStatus(t *testing.T) {
	store := newTestStore(t)
	insertSeries(t, store, inStockSeries("st-a", 1, 100))
	used := inStockSeries("st-b", 101, 200)
	used.Status = stock.StatusUsed
	insertSeries(t, store, used)

	inStock, err := store.SeriesOverlapping(context.Background(), "red", 1, 300, stock.StatusInStock)
	require.NoError(t, err)
	assert.Len(t, inStock, 1)

	all, err := store.SeriesOverlapping(context.Background(), "red", 1, 300)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestStore_AdjacencyLookups(t *testing.T) {
	// Adjacency is exact: #1-#100 is adjacent before a range starting at
	// #101, and only for the same station, color and live status.

	store := newTestStore(t)
	left := insertSeries(t, store, inStockSeries("st-a", 1, 100))
	right := insertSeries(t, store, inStockSeries("st-a", 201, 300))

	before, err := store.AdjacentBefore(context.Background(), "st-a", "red", 101)
	require.NoError(t, err)
	require.NotNil(t, before)
	assert.Equal(t, left.ID, before.ID)

	after, err := store.AdjacentAfter(context.Background(), "st-a", "red", 200)
	require.NoError(t, err)
	require.NotNil(t, after)
	assert.Equal(t, right.ID, after.ID)

	none, err := store.AdjacentBefore(context.Background(), "st-a", "red", 50)
	require.NoError(t, err)
	assert.Nil(t, none)

	otherStation, err := store.AdjacentBefore(context.Background(), "st-b", "red", 101)
	require.NoError(t, err)
	assert.Nil(t, otherStation)

	otherColor, err := store.AdjacentBefore(context.Background(), "st-a", "blue", 101)
	require.NoError(t, err)
	assert.Nil(t, otherColor)
}

func TestStore_UpdateAndDeleteSeries(t *testing.T) {
	store := newTestStore(t)
	saved := insertSeries(t, store, inStockSeries("st-a", 1, 100))

	saved.Status = stock.StatusTransferred
	saved.Destination = "st-b"
	require.NoError(t, store.UpdateSeries(context.Background(), saved))

	inStock, err := store.StationSeries(context.Background(), "st-a", stock.StatusInStock)
	require.NoError(t, err)
	assert.Empty(t, inStock)

	moved, err := store.StationSeries(context.Background(), "st-a", stock.StatusTransferred)
	require.NoError(t, err)
	require.Len(t, moved, 1)
	assert.Equal(t, stock.StationID("st-b"), moved[0].Destination)

	require.NoError(t, store.DeleteSeries(context.Background(), saved.ID))
	moved, err = store.StationSeries(context.Background(), "st-a", stock.StatusTransferred)
	require.NoError(t, err)
	assert.Empty(t, moved)
}

// =============================================================================
// LEDGER QUERIES
// =============================================================================

func TestStore_LatestEntryBeforeSkipsCancelled(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	live := stock.LedgerEntry{
		Station:      "st-a",
		Direction:    stock.DirectionCredit,
		Category:     stock.CategorySupply,
		Amount:       decimal.NewFromInt(1000),
		BalanceAfter: decimal.NewFromInt(1000),
		OccurredAt:   base,
		Actor:        "tester",
		Reference:    "SUP-x",
	}
	_, err := store.InsertEntry(ctx, live)
	require.NoError(t, err)

	cancelled := live
	cancelled.OccurredAt = base.Add(time.Hour)
	cancelled.BalanceAfter = decimal.NewFromInt(2000)
	cancelled.Cancelled = true
	_, err = store.InsertEntry(ctx, cancelled)
	require.NoError(t, err)

	latest, err := store.LatestEntryBefore(ctx, "st-a", base.Add(2*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "1000", latest.BalanceAfter.String())

	nothing, err := store.LatestEntryBefore(ctx, "st-a", base.Add(-time.Hour))
	require.NoError(t, err)
	assert.Nil(t, nothing)
}

func TestStore_EntryDetailRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	saved, err := store.InsertEntry(ctx, stock.LedgerEntry{
		Station:        "st-a",
		Direction:      stock.DirectionDebit,
		Category:       stock.CategoryTransfer,
		Amount:         decimal.NewFromInt(50500),
		TicketCount:    101,
		BalanceBefore:  decimal.NewFromInt(500000),
		BalanceAfter:   decimal.NewFromInt(449500),
		OccurredAt:     time.Now().UTC(),
		Actor:          "tester",
		Reference:      "TR-20260826-120000-001",
		CounterStation: "st-b",
		Detail: []stock.SeriesDetail{
			{Color: "red", First: 200, Last: 300, Count: 101, Value: decimal.NewFromInt(50500)},
		},
		SeriesIDs: []stock.SeriesID{42},
		Comment:   "monthly rebalance",
	})
	require.NoError(t, err)

	rows, err := store.EntriesByReference(ctx, "TR-20260826-120000-001")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	got := rows[0]
	assert.Equal(t, saved.ID, got.ID)
	assert.Equal(t, stock.StationID("st-b"), got.CounterStation)
	require.Len(t, got.Detail, 1)
	assert.Equal(t, int64(200), got.Detail[0].First)
	assert.Equal(t, []stock.SeriesID{42}, got.SeriesIDs)
	assert.Equal(t, "monthly rebalance", got.Comment)
}

// =============================================================================
// SEQUENCES
// =============================================================================

func TestStore_NextSequenceCountsPerCategoryAndDay(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	n1, err := store.NextSequence(ctx, stock.CategoryTransfer, "20260826")
	require.NoError(t, err)
	n2, err := store.NextSequence(ctx, stock.CategoryTransfer, "20260826")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n1)
	assert.Equal(t, int64(2), n2)

	other, err := store.NextSequence(ctx, stock.CategorySupply, "20260826")
	require.NoError(t, err)
	assert.Equal(t, int64(1), other, "categories count independently")

	nextDay, err := store.NextSequence(ctx, stock.CategoryTransfer, "20260827")
	require.NoError(t, err)
	assert.Equal(t, int64(1), nextDay, "days count independently")
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestStore_WithTxRollsBackOnError(t *testing.T) {
	// GIVEN: a transaction that inserts a series and then fails
	// WHEN: WithTx returns the error
	// THEN: the insert is gone

	store := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(s stock.Store) error {
		if _, err := s.InsertSeries(ctx, inStockSeries("st-a", 1, 100)); err != nil {
			return err
		}
		if _, err := s.NextSequence(ctx, stock.CategoryTransfer, "20260826"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	rows, err := store.StationSeries(ctx, "st-a", stock.StatusInStock)
	require.NoError(t, err)
	assert.Empty(t, rows)

	// The sequence was rolled back too; the next caller gets 1.
	n, err := store.NextSequence(ctx, stock.CategoryTransfer, "20260826")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestStore_WithTxCommits(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(s stock.Store) error {
		_, err := s.InsertSeries(ctx, inStockSeries("st-a", 1, 100))
		return err
	})
	require.NoError(t, err)

	rows, err := store.StationSeries(ctx, "st-a", stock.StatusInStock)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

// =============================================================================
// STATIONS
// =============================================================================

func TestStore_StationRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	st := stock.Station{ID: "st-a", Name: "North Gate", Active: true, Staff: []string{"amara", "kofi"}}
	require.NoError(t, store.SaveStation(ctx, st))

	got, err := store.Station(ctx, "st-a")
	require.NoError(t, err)
	assert.Equal(t, "North Gate", got.Name)
	assert.Equal(t, []string{"amara", "kofi"}, got.Staff)

	_, err = store.Station(ctx, "st-ghost")
	assert.ErrorIs(t, err, stock.ErrStationNotFound)

	st.Active = false
	require.NoError(t, store.SaveStation(ctx, st))
	active, err := store.ActiveStations(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

// =============================================================================
// REVENUES
// =============================================================================

func TestStore_LatestLossRateSkipsNullRates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rated := decimal.NewFromInt(-12)
	require.NoError(t, store.SaveDailyRevenue(ctx, sqlite.DailyRevenue{
		Station: "st-a", Day: time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC),
		Declared: decimal.NewFromInt(10000), LossRate: &rated,
	}))
	// A later declaration without a rate must not shadow the older rate.
	require.NoError(t, store.SaveDailyRevenue(ctx, sqlite.DailyRevenue{
		Station: "st-a", Day: time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC),
		Declared: decimal.NewFromInt(9000),
	}))

	rate, err := store.LatestLossRate(ctx, "st-a", time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, rate)
	assert.Equal(t, "-12", rate.String())
}

func TestStore_RevenueStatsSumsAndCountsDays(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for d := 10; d <= 12; d++ {
		require.NoError(t, store.SaveDailyRevenue(ctx, sqlite.DailyRevenue{
			Station: "st-a", Day: time.Date(2026, 8, d, 0, 0, 0, 0, time.UTC),
			Declared: decimal.NewFromInt(10000),
		}))
	}
	// Re-declaring a day replaces it, not doubles it.
	require.NoError(t, store.SaveDailyRevenue(ctx, sqlite.DailyRevenue{
		Station: "st-a", Day: time.Date(2026, 8, 11, 0, 0, 0, 0, time.UTC),
		Declared: decimal.NewFromInt(12500),
	}))

	total, days, err := store.RevenueStats(ctx, "st-a",
		time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "32500", total.String())
	assert.Equal(t, 3, days)
}
