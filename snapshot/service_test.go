package snapshot_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tollgate/stock-engine/snapshot"
	"github.com/tollgate/stock-engine/stock"
	"github.com/tollgate/stock-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testEnv struct {
	store   *sqlite.Store
	ledger  *stock.Ledger
	service *snapshot.Service
}

func newTestService(t *testing.T) *testEnv {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	log := logrus.New()
	log.SetOutput(io.Discard)

	ledger := stock.NewLedger(store, stock.DefaultFaceValue, log)
	service := snapshot.NewService(store, ledger, store, store, stock.DefaultFaceValue, log)

	return &testEnv{store: store, ledger: ledger, service: service}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (env *testEnv) declare(t *testing.T, station string, on time.Time, declared int64, lossRate *int64) {
	t.Helper()
	rev := sqlite.DailyRevenue{
		Station:  stock.StationID(station),
		Day:      on,
		Declared: decimal.NewFromInt(declared),
	}
	if lossRate != nil {
		rate := decimal.NewFromInt(*lossRate)
		rev.LossRate = &rate
	}
	require.NoError(t, env.store.SaveDailyRevenue(context.Background(), rev))
}

func (env *testEnv) credit(t *testing.T, station string, on time.Time, amount int64) {
	t.Helper()
	_, err := env.ledger.Append(context.Background(), stock.LedgerEntry{
		Station:    stock.StationID(station),
		Direction:  stock.DirectionCredit,
		Category:   stock.CategorySupply,
		Amount:     decimal.NewFromInt(amount),
		OccurredAt: on,
		Actor:      "tester",
		Reference:  "SUP-test",
	})
	require.NoError(t, err)
}

func i64(v int64) *int64 { return &v }

// =============================================================================
// LOSS RATE
// =============================================================================

func TestService_Build_LossRateIsSticky(t *testing.T) {
	// GIVEN: the last declared loss rate is ten days old
	// WHEN: building a snapshot for today
	// THEN: the stale rate still applies

	env := newTestService(t)
	asOf := day(2026, 8, 25)
	env.declare(t, "st-a", asOf.AddDate(0, 0, -10), 10000, i64(-12))

	snap, err := env.service.Build(context.Background(), "st-a", asOf)
	require.NoError(t, err)

	require.NotNil(t, snap.LossRate)
	assert.Equal(t, "-12", snap.LossRate.String())
}

func TestService_Build_NoLossRateEverIsNil(t *testing.T) {
	env := newTestService(t)
	env.declare(t, "st-a", day(2026, 8, 20), 10000, nil)

	snap, err := env.service.Build(context.Background(), "st-a", day(2026, 8, 25))
	require.NoError(t, err)
	assert.Nil(t, snap.LossRate)
}

func TestService_Build_FutureLossRateIgnored(t *testing.T) {
	// GIVEN: a rate declared after the snapshot day
	// WHEN: building for the earlier day
	// THEN: the future declaration is invisible

	env := newTestService(t)
	env.declare(t, "st-a", day(2026, 8, 30), 10000, i64(-40))

	snap, err := env.service.Build(context.Background(), "st-a", day(2026, 8, 25))
	require.NoError(t, err)
	assert.Nil(t, snap.LossRate)
}

// =============================================================================
// YEAR-OVER-YEAR TREND
// =============================================================================

func TestService_Build_YoYRiskFlagsDropBeyondThreshold(t *testing.T) {
	// GIVEN: 100,000 declared last year-to-date, 90,000 this year (-10%)
	// WHEN: building the snapshot
	// THEN: flagged as YoY risk with delta -10

	env := newTestService(t)
	env.declare(t, "st-a", day(2025, 3, 10), 100000, nil)
	env.declare(t, "st-a", day(2026, 3, 10), 90000, nil)

	snap, err := env.service.Build(context.Background(), "st-a", day(2026, 8, 25))
	require.NoError(t, err)

	assert.Equal(t, "90000", snap.RevenueYTD.String())
	assert.Equal(t, "100000", snap.RevenueYTDPrior.String())
	require.NotNil(t, snap.YoYDeltaPct)
	assert.Equal(t, "-10", snap.YoYDeltaPct.String())
	assert.True(t, snap.YoYRisk)
}

func TestService_Build_YoYSmallDropNotFlagged(t *testing.T) {
	// -4% is within tolerance.
	env := newTestService(t)
	env.declare(t, "st-a", day(2025, 3, 10), 100000, nil)
	env.declare(t, "st-a", day(2026, 3, 10), 96000, nil)

	snap, err := env.service.Build(context.Background(), "st-a", day(2026, 8, 25))
	require.NoError(t, err)
	assert.False(t, snap.YoYRisk)
}

func TestService_Build_YoYWindowExcludesLateRevenue(t *testing.T) {
	// GIVEN: prior-year revenue declared AFTER the matching calendar day
	// WHEN: building for Aug 25
	// THEN: the prior window ends Aug 25 of last year, so the September
	//       declaration does not count

	env := newTestService(t)
	env.declare(t, "st-a", day(2025, 9, 1), 100000, nil)
	env.declare(t, "st-a", day(2026, 3, 10), 50000, nil)

	snap, err := env.service.Build(context.Background(), "st-a", day(2026, 8, 25))
	require.NoError(t, err)

	assert.True(t, snap.RevenueYTDPrior.IsZero())
	assert.Nil(t, snap.YoYDeltaPct, "no prior revenue means no comparison")
	assert.False(t, snap.YoYRisk)
}

// =============================================================================
// EXHAUSTION PROJECTION
// =============================================================================

func TestService_Build_ExhaustionFromTrailingMean(t *testing.T) {
	// GIVEN: stock worth 50,000 and 10,000/day declared on 5 of the last
	//        30 days (mean 10,000 over days WITH data)
	// WHEN: building the snapshot
	// THEN: exhaustion is projected 5 days out, well inside the year

	env := newTestService(t)
	asOf := day(2026, 8, 25)
	env.credit(t, "st-a", asOf.AddDate(0, 0, -1), 50000)
	for i := 1; i <= 5; i++ {
		env.declare(t, "st-a", asOf.AddDate(0, 0, -i), 10000, nil)
	}

	snap, err := env.service.Build(context.Background(), "st-a", asOf)
	require.NoError(t, err)

	assert.Equal(t, "50000", snap.StockValue.String())
	assert.Equal(t, int64(100), snap.StockTickets)
	assert.Equal(t, 5, snap.RevenueDays)
	require.NotNil(t, snap.ExhaustionDate)
	assert.Equal(t, day(2026, 8, 30), *snap.ExhaustionDate)
	assert.False(t, snap.OverstockRisk)
}

func TestService_Build_OverstockWhenExhaustionPastYearEnd(t *testing.T) {
	// GIVEN: stock worth 5,000,000 selling at 10,000/day (500 days left)
	// WHEN: building an August snapshot
	// THEN: projected exhaustion lands next year, overstock is flagged

	env := newTestService(t)
	asOf := day(2026, 8, 25)
	env.credit(t, "st-a", asOf.AddDate(0, 0, -1), 5000000)
	env.declare(t, "st-a", asOf.AddDate(0, 0, -1), 10000, nil)

	snap, err := env.service.Build(context.Background(), "st-a", asOf)
	require.NoError(t, err)

	require.NotNil(t, snap.ExhaustionDate)
	assert.True(t, snap.ExhaustionDate.After(day(2026, 12, 31)))
	assert.True(t, snap.OverstockRisk)
}

func TestService_Build_NoRevenueMeansNoProjection(t *testing.T) {
	env := newTestService(t)
	asOf := day(2026, 8, 25)
	env.credit(t, "st-a", asOf.AddDate(0, 0, -1), 50000)

	snap, err := env.service.Build(context.Background(), "st-a", asOf)
	require.NoError(t, err)

	assert.Nil(t, snap.ExhaustionDate)
	assert.False(t, snap.OverstockRisk)
	assert.Equal(t, 0, snap.RevenueDays)
}

func TestService_Build_EmptyStockMeansNoProjection(t *testing.T) {
	env := newTestService(t)
	env.declare(t, "st-a", day(2026, 8, 24), 10000, nil)

	snap, err := env.service.Build(context.Background(), "st-a", day(2026, 8, 25))
	require.NoError(t, err)

	assert.True(t, snap.StockValue.IsZero())
	assert.Nil(t, snap.ExhaustionDate)
}

// =============================================================================
// CACHING AND BACKFILL
// =============================================================================

func TestService_GetOrBuild_ReturnsStoredSnapshot(t *testing.T) {
	// GIVEN: a snapshot built while the station had stock
	// WHEN: the underlying revenue data changes and GetOrBuild runs again
	// THEN: the stored row is served, not a recomputation

	env := newTestService(t)
	asOf := day(2026, 8, 25)
	env.declare(t, "st-a", asOf, 10000, i64(-12))

	first, err := env.service.GetOrBuild(context.Background(), "st-a", asOf)
	require.NoError(t, err)
	require.NotNil(t, first.LossRate)

	env.declare(t, "st-a", asOf, 10000, i64(-40))

	second, err := env.service.GetOrBuild(context.Background(), "st-a", asOf)
	require.NoError(t, err)
	assert.Equal(t, "-12", second.LossRate.String(), "cached snapshot must win")
}

func TestService_BuildRange_CoversEveryStationDay(t *testing.T) {
	// GIVEN: two active stations and a three-day window
	// WHEN: backfilling with no explicit station list
	// THEN: six snapshots are built with zero errors

	env := newTestService(t)
	for _, id := range []string{"st-a", "st-b"} {
		require.NoError(t, env.store.SaveStation(context.Background(), stock.Station{
			ID: stock.StationID(id), Name: "Post " + id, Active: true,
		}))
	}
	// An inactive station must not be visited.
	require.NoError(t, env.store.SaveStation(context.Background(), stock.Station{
		ID: "st-closed", Name: "Closed", Active: false,
	}))

	report, err := env.service.BuildRange(context.Background(), day(2026, 8, 23), day(2026, 8, 25), nil)
	require.NoError(t, err)

	assert.Equal(t, 6, report.Created)
	assert.Equal(t, 0, report.Updated)
	assert.Equal(t, 0, report.Errors)

	// A second pass over the same window recomputes in place.
	report, err = env.service.BuildRange(context.Background(), day(2026, 8, 23), day(2026, 8, 25), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Created)
	assert.Equal(t, 6, report.Updated)

	snap, err := env.store.Snapshot(context.Background(), "st-a", day(2026, 8, 24))
	require.NoError(t, err)
	assert.NotNil(t, snap)

	missing, err := env.store.Snapshot(context.Background(), "st-closed", day(2026, 8, 24))
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestService_Build_WrapsFailures(t *testing.T) {
	env := newTestService(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.service.Build(ctx, "st-a", day(2026, 8, 25))
	assert.ErrorIs(t, err, snapshot.ErrSnapshotCompute)
}

func TestService_BuildRange_StopsOnCancelledContext(t *testing.T) {
	env := newTestService(t)
	require.NoError(t, env.store.SaveStation(context.Background(), stock.Station{
		ID: "st-a", Name: "Post A", Active: true,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.service.BuildRange(ctx, day(2026, 8, 23), day(2026, 8, 25), nil)
	assert.ErrorIs(t, err, context.Canceled)
}
