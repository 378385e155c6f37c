/*
types.go - Snapshot domain types and collaborator boundaries

A snapshot freezes one station's risk indicators for one calendar day:
stock level, loss rate, year-over-year revenue trend and projected stock
exhaustion. Snapshots are cached per (station, day) and rebuilt on demand,
so dashboards read precomputed rows instead of replaying ledgers.
*/
package snapshot

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tollgate/stock-engine/stock"
)

// =============================================================================
// SNAPSHOT
// =============================================================================

// Snapshot is the frozen indicator set of one station at end of one day.
//
// LossRate is negative when tickets leak (e.g. -35 means 35% lost); nil
// means no rate was ever recorded on or before the day. YoYDeltaPct is nil
// when the prior-year window had no revenue to compare against.
type Snapshot struct {
	Station stock.StationID `json:"station"`
	Date    time.Time       `json:"date"`

	StockValue   decimal.Decimal `json:"stock_value"`
	StockTickets int64           `json:"stock_tickets"`

	LossRate *decimal.Decimal `json:"loss_rate,omitempty"`

	RevenueYTD      decimal.Decimal  `json:"revenue_ytd"`
	RevenueYTDPrior decimal.Decimal  `json:"revenue_ytd_prior"`
	YoYDeltaPct     *decimal.Decimal `json:"yoy_delta_pct,omitempty"`
	YoYRisk         bool             `json:"yoy_risk"`

	// ExhaustionDate projects when the stock runs out at the trailing
	// 30-day mean daily revenue. Nil when stock is empty or no revenue
	// was recorded in the window.
	ExhaustionDate *time.Time `json:"exhaustion_date,omitempty"`
	OverstockRisk  bool       `json:"overstock_risk"`

	// RevenueDays is how many days in the trailing window actually had
	// revenue data. Low values mean the exhaustion projection is shaky.
	RevenueDays int `json:"revenue_days"`

	BuiltAt time.Time `json:"built_at"`
}

// =============================================================================
// COLLABORATOR BOUNDARIES
// =============================================================================

// BalanceReader reconstructs a station's stock value at end of a given day.
// Satisfied by *stock.Ledger.
type BalanceReader interface {
	BalanceAt(ctx context.Context, station stock.StationID, date time.Time) (decimal.Decimal, error)
}

// RevenueSource exposes the declared daily revenues the indicators are
// computed from.
type RevenueSource interface {
	// LatestLossRate returns the most recent recorded loss rate on or
	// before the date, or nil if none exists.
	LatestLossRate(ctx context.Context, station stock.StationID, date time.Time) (*decimal.Decimal, error)

	// RevenueStats sums declared revenue over [from, to] and reports how
	// many days in the range had a declaration.
	RevenueStats(ctx context.Context, station stock.StationID, from, to time.Time) (total decimal.Decimal, days int, err error)
}

// Store persists snapshots keyed by (station, day).
type Store interface {
	// Snapshot returns the stored snapshot or nil.
	Snapshot(ctx context.Context, station stock.StationID, date time.Time) (*Snapshot, error)

	// SaveSnapshot upserts by (station, day).
	SaveSnapshot(ctx context.Context, snap Snapshot) error
}

// StationSource lists the stations a backfill should cover.
type StationSource interface {
	ActiveStations(ctx context.Context) ([]stock.Station, error)
}
