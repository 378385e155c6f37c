/*
store.go - Persistence interfaces for series, ledger and balances

PURPOSE:
  Defines the interface between the domain logic and the database. The
  four logical collections from the data model (series, ledger entries,
  balance cache, reference sequences) each get a narrow interface; the
  Store interface aggregates them, and TxStore adds the transactional
  wrapper every multi-table mutation runs under.

APPEND-ONLY CONTRACT:
  Ledger entries have no delete operation, and the only update is the
  balance overwrite used by the rebuild/reconciliation pass. Series rows
  ARE mutable (narrowed, merged, deleted) - the ledger, not the series
  table, is the audit trail.

ATOMICITY:
  WithTx(fn) runs fn against a Store bound to one database transaction.
  A transfer's five steps (validate, consume, receive, two ledger
  appends) all happen inside a single WithTx call; any error rolls back
  every mutation so no partial transfer is ever observable.

IMPLEMENTATIONS:
  - store/sqlite: production SQLite store

SEE ALSO:
  - ledger.go, series.go, transfer.go: consumers of these interfaces
*/
package stock

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SERIES STORE
// =============================================================================

type SeriesStore interface {
	// InsertSeries persists a new series and returns it with its ID set.
	InsertSeries(ctx context.Context, s Series) (Series, error)

	// UpdateSeries overwrites an existing series row.
	UpdateSeries(ctx context.Context, s Series) error

	// DeleteSeries removes a series row. Used only when a merge collapses
	// neighbors into one record.
	DeleteSeries(ctx context.Context, id SeriesID) error

	// CoveringSeries returns the in_stock series at (station, color) that
	// overlap [first, last], ordered by first number ascending.
	CoveringSeries(ctx context.Context, station StationID, color ColorID, first, last int64) ([]Series, error)

	// SeriesOverlapping returns series of the given color, at any station,
	// whose range overlaps [first, last] and whose status is one of statuses.
	SeriesOverlapping(ctx context.Context, color ColorID, first, last int64, statuses ...SeriesStatus) ([]Series, error)

	// AdjacentBefore returns the in_stock series at (station, color) ending
	// exactly at first-1, or nil.
	AdjacentBefore(ctx context.Context, station StationID, color ColorID, first int64) (*Series, error)

	// AdjacentAfter returns the in_stock series at (station, color) starting
	// exactly at last+1, or nil.
	AdjacentAfter(ctx context.Context, station StationID, color ColorID, last int64) (*Series, error)

	// StationSeries returns all series held by a station with the given
	// status, ordered by color then first number.
	StationSeries(ctx context.Context, station StationID, status SeriesStatus) ([]Series, error)
}

// =============================================================================
// LEDGER STORE
// =============================================================================

type LedgerStore interface {
	// InsertEntry persists a ledger entry and returns it with its ID set.
	InsertEntry(ctx context.Context, e LedgerEntry) (LedgerEntry, error)

	// EntriesByStation returns all entries for a station in chronological
	// order (ties broken by insertion order).
	EntriesByStation(ctx context.Context, station StationID) ([]LedgerEntry, error)

	// EntriesByReference returns the entries sharing one transfer reference.
	EntriesByReference(ctx context.Context, reference string) ([]LedgerEntry, error)

	// LatestEntryBefore returns the latest non-cancelled entry for a station
	// with OccurredAt <= cutoff, or nil if none exists.
	LatestEntryBefore(ctx context.Context, station StationID, cutoff time.Time) (*LedgerEntry, error)

	// UpdateEntryBalances overwrites the stored before/after balances of one
	// entry. Reserved for the rebuild/reconciliation pass.
	UpdateEntryBalances(ctx context.Context, id EntryID, before, after decimal.Decimal) error
}

// =============================================================================
// BALANCE STORE
// =============================================================================

type BalanceStore interface {
	// Balance returns the station's cached balance, or nil if the station
	// has never had a movement. A read never creates the row.
	Balance(ctx context.Context, station StationID) (*Balance, error)

	// SaveBalance upserts the cached balance.
	SaveBalance(ctx context.Context, b Balance) error
}

// =============================================================================
// REFERENCE SEQUENCES
// =============================================================================

type SequenceStore interface {
	// NextSequence atomically reserves and returns the next sequence number
	// for (category, day). Must be called inside the same transaction as
	// the ledger write so a rolled-back transfer never burns a visible
	// reference.
	NextSequence(ctx context.Context, category Category, day string) (int64, error)
}

// =============================================================================
// AGGREGATE STORE
// =============================================================================

// Store aggregates all persistence concerns of the stock engine.
type Store interface {
	SeriesStore
	LedgerStore
	BalanceStore
	SequenceStore
}

// TxStore wraps Store with transaction support. If fn returns an error the
// transaction is rolled back, otherwise committed.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}
