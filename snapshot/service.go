/*
service.go - Snapshot computation and backfill

PURPOSE:
  Builds the per-day indicator set from three sources: the stock ledger
  (balance at date), the revenue declarations (trends, loss rate) and the
  calendar (year-to-date windows). GetOrBuild makes snapshots lazy: the
  first read of a missing (station, day) computes and stores it.

INDICATORS:
  - Loss rate: the latest declared rate on or before the day. Rates are
    sticky; a station that stopped declaring keeps its last known rate.
  - YoY risk: year-to-date revenue vs the same window one year earlier.
    A drop worse than -5% flags the station.
  - Exhaustion: stock value divided by the mean daily revenue over the
    trailing 30 days (mean over days that HAVE data, not over 30).
  - Overstock risk: projected exhaustion lands past Dec 31 of the
    snapshot year, meaning the station holds more than it can sell.

BACKFILL:
  BuildRange walks day by day, station by station, counting failures
  and moving on. One corrupt station must not abort a month-long
  backfill; the report says what failed.
*/
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/tollgate/stock-engine/stock"
)

// ErrSnapshotCompute wraps every failure inside a snapshot build. It is
// non-fatal: bulk backfills count it and move on.
var ErrSnapshotCompute = errors.New("snapshot compute failed")

// yoyRiskThresholdPct flags stations whose year-to-date revenue dropped
// more than 5% against the prior year.
var yoyRiskThresholdPct = decimal.NewFromInt(-5)

// trailingWindowDays is the lookback for the mean daily revenue used by
// the exhaustion projection.
const trailingWindowDays = 30

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	store    Store
	balances BalanceReader
	revenues RevenueSource
	stations StationSource
	face     decimal.Decimal
	log      *logrus.Entry
	now      func() time.Time
}

func NewService(store Store, balances BalanceReader, revenues RevenueSource, stations StationSource, face decimal.Decimal, log *logrus.Logger) *Service {
	return &Service{
		store:    store,
		balances: balances,
		revenues: revenues,
		stations: stations,
		face:     face,
		log:      log.WithField("component", "snapshot"),
		now:      time.Now,
	}
}

// GetOrBuild returns the stored snapshot for (station, date), computing and
// storing it first if absent.
func (s *Service) GetOrBuild(ctx context.Context, station stock.StationID, date time.Time) (*Snapshot, error) {
	existing, err := s.store.Snapshot(ctx, station, date)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	return s.Build(ctx, station, date)
}

// Build computes the snapshot for (station, date) and upserts it,
// overwriting any prior value for the same day. Failures come back wrapped
// in ErrSnapshotCompute.
func (s *Service) Build(ctx context.Context, station stock.StationID, date time.Time) (*Snapshot, error) {
	snap, err := s.build(ctx, station, date)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSnapshotCompute, err)
	}
	return snap, nil
}

func (s *Service) build(ctx context.Context, station stock.StationID, date time.Time) (*Snapshot, error) {
	day := truncateDay(date)
	snap := &Snapshot{
		Station: station,
		Date:    day,
		BuiltAt: s.now(),
	}

	// Loss rate: latest declaration on or before the day.
	rate, err := s.revenues.LatestLossRate(ctx, station, day)
	if err != nil {
		return nil, err
	}
	snap.LossRate = rate

	// Year-over-year trend on matching calendar windows.
	if err := s.fillYoY(ctx, snap, station, day); err != nil {
		return nil, err
	}

	// Stock level from the ledger.
	value, err := s.balances.BalanceAt(ctx, station, day)
	if err != nil {
		return nil, err
	}
	snap.StockValue = value
	snap.StockTickets = stock.TicketsFor(value, s.face)

	// Exhaustion projection from the trailing revenue window.
	if err := s.fillExhaustion(ctx, snap, station, day); err != nil {
		return nil, err
	}

	if err := s.store.SaveSnapshot(ctx, *snap); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"station":   station,
		"date":      day.Format("2006-01-02"),
		"stock":     snap.StockValue,
		"yoy_risk":  snap.YoYRisk,
		"overstock": snap.OverstockRisk,
	}).Debug("snapshot built")
	return snap, nil
}

// =============================================================================
// BACKFILL
// =============================================================================

// RangeReport tallies a BuildRange run.
type RangeReport struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Errors  int `json:"errors"`
}

// BuildRange builds snapshots for every station on every day in [from, to].
// With no stations given it covers all active stations. Failures are
// counted and logged, never fatal: the rest of the range still builds.
func (s *Service) BuildRange(ctx context.Context, from, to time.Time, stations []stock.StationID) (RangeReport, error) {
	var report RangeReport

	if len(stations) == 0 {
		all, err := s.stations.ActiveStations(ctx)
		if err != nil {
			return report, err
		}
		for _, st := range all {
			stations = append(stations, st.ID)
		}
	}

	for day := truncateDay(from); !day.After(truncateDay(to)); day = day.AddDate(0, 0, 1) {
		for _, station := range stations {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			existing, err := s.store.Snapshot(ctx, station, day)
			if err == nil {
				_, err = s.Build(ctx, station, day)
			}
			if err != nil {
				report.Errors++
				s.log.WithError(err).WithFields(logrus.Fields{
					"station": station,
					"date":    day.Format("2006-01-02"),
				}).Error("snapshot build failed")
				continue
			}
			if existing != nil {
				report.Updated++
			} else {
				report.Created++
			}
		}
	}

	s.log.WithFields(logrus.Fields{
		"created": report.Created,
		"updated": report.Updated,
		"errors":  report.Errors,
	}).Info("snapshot backfill finished")
	return report, nil
}

// =============================================================================
// INDICATOR COMPUTATION
// =============================================================================

func (s *Service) fillYoY(ctx context.Context, snap *Snapshot, station stock.StationID, day time.Time) error {
	yearStart := time.Date(day.Year(), 1, 1, 0, 0, 0, 0, day.Location())
	current, _, err := s.revenues.RevenueStats(ctx, station, yearStart, day)
	if err != nil {
		return err
	}

	priorStart := time.Date(day.Year()-1, 1, 1, 0, 0, 0, 0, day.Location())
	priorEnd := sameDayPriorYear(day)
	prior, _, err := s.revenues.RevenueStats(ctx, station, priorStart, priorEnd)
	if err != nil {
		return err
	}

	snap.RevenueYTD = current
	snap.RevenueYTDPrior = prior
	if prior.IsPositive() {
		delta := current.Sub(prior).Div(prior).Mul(decimal.NewFromInt(100))
		snap.YoYDeltaPct = &delta
		snap.YoYRisk = delta.LessThan(yoyRiskThresholdPct)
	}
	return nil
}

func (s *Service) fillExhaustion(ctx context.Context, snap *Snapshot, station stock.StationID, day time.Time) error {
	if !snap.StockValue.IsPositive() {
		return nil
	}

	windowStart := day.AddDate(0, 0, -trailingWindowDays)
	total, days, err := s.revenues.RevenueStats(ctx, station, windowStart, day)
	if err != nil {
		return err
	}
	snap.RevenueDays = days
	if days == 0 || !total.IsPositive() {
		return nil
	}

	// Mean over days that have data, not over the window length.
	meanDaily := total.Div(decimal.NewFromInt(int64(days)))
	if !meanDaily.IsPositive() {
		return nil
	}

	remaining := snap.StockValue.Div(meanDaily).IntPart()
	exhaustion := day.AddDate(0, 0, int(remaining))
	snap.ExhaustionDate = &exhaustion

	yearEnd := time.Date(day.Year(), 12, 31, 0, 0, 0, 0, day.Location())
	snap.OverstockRisk = exhaustion.After(yearEnd)
	return nil
}

// =============================================================================
// CALENDAR HELPERS
// =============================================================================

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// sameDayPriorYear returns the same month/day one year earlier, clamped to
// the month's last day when it does not exist (Feb 29).
func sameDayPriorYear(t time.Time) time.Time {
	y := t.Year() - 1
	m := t.Month()
	d := t.Day()
	last := time.Date(y, m+1, 0, 0, 0, 0, 0, t.Location()).Day()
	if d > last {
		d = last
	}
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
