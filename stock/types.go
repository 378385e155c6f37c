/*
Package stock provides the core stock ledger and ticket-series engine.

PURPOSE:
  This package contains the domain types and algorithms for tracking
  pre-printed, serially numbered toll/weighbridge tickets across stations:
  the numbered-series registry (split/merge), the append-only stock ledger
  with running balances, the balance cache, and the cross-station transfer
  engine that ties them together.

KEY CONCEPTS IN THIS FILE (types.go):
  - Series: a contiguous numbered range of same-color tickets at one station
  - LedgerEntry: an immutable signed stock movement with before/after balances
  - Balance: the denormalized current balance for one station
  - Direction/Category: closed enumerations validated at the boundary

DESIGN PRINCIPLES:
  1. Immutability: ledger entries are never edited, only appended
  2. Precision: uses decimal.Decimal for all monetary values
  3. Type Safety: strong typing for station/color/series identifiers
  4. Auditability: every entry carries actor, reference and structured detail

SEE ALSO:
  - series.go: series registry with split/merge semantics
  - ledger.go: ledger append, rebuild and point-in-time balance
  - transfer.go: the cross-station transfer engine
*/
package stock

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type StationID string
type ColorID string
type SeriesID int64
type EntryID int64

// =============================================================================
// FACE VALUE - Monetary value of a single ticket
// =============================================================================

// DefaultFaceValue is the face value of one ticket in currency units.
// Every ticket in the system carries the same face value.
var DefaultFaceValue = decimal.NewFromInt(500)

// TicketsFor derives a ticket count from a monetary value by truncating
// integer division. The truncation mirrors the balance-cache derivation:
// ticket counts on balances are always value / faceValue rounded down.
func TicketsFor(value, faceValue decimal.Decimal) int64 {
	if faceValue.IsZero() {
		return 0
	}
	return value.Div(faceValue).IntPart()
}

// ValueFor computes the monetary value of a ticket count.
func ValueFor(count int64, faceValue decimal.Decimal) decimal.Decimal {
	return faceValue.Mul(decimal.NewFromInt(count))
}

// =============================================================================
// DIRECTION & CATEGORY - Closed enumerations for ledger movements
// =============================================================================

type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

// ParseDirection validates a direction at the boundary.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case DirectionCredit, DirectionDebit:
		return Direction(s), nil
	default:
		return "", ErrUnknownDirection
	}
}

type Category string

const (
	// CategorySupply is an initial supply from the national printer.
	CategorySupply Category = "supply"
	// CategoryTransfer is an inter-station transfer (one debit + one credit).
	CategoryTransfer Category = "transfer"
	// CategoryRegularization is a manual stock regularization.
	CategoryRegularization Category = "regularization"
)

// ParseCategory validates a movement category at the boundary.
func ParseCategory(s string) (Category, error) {
	switch Category(s) {
	case CategorySupply, CategoryTransfer, CategoryRegularization:
		return Category(s), nil
	default:
		return "", ErrUnknownCategory
	}
}

// =============================================================================
// SERIES - Contiguous numbered range of same-color tickets
// =============================================================================

type SeriesStatus string

const (
	StatusInStock     SeriesStatus = "in_stock"
	StatusTransferred SeriesStatus = "transferred"
	StatusUsed        SeriesStatus = "used"
)

// SeriesOrigin records how a series entered a station's stock.
type SeriesOrigin string

const (
	OriginSupply         SeriesOrigin = "supply"
	OriginRegularization SeriesOrigin = "regularization"
	OriginTransferIn     SeriesOrigin = "transfer_in"
)

// Series is a contiguous numbered range of identical-value tickets of one
// color held by one station.
//
// INVARIANT: for a given (station, color), two series with status in_stock
// never overlap in number range. The Registry owns this invariant.
type Series struct {
	ID          SeriesID
	Station     StationID
	Color       ColorID
	First       int64
	Last        int64
	TicketCount int64
	Value       decimal.Decimal
	Status      SeriesStatus
	Origin      SeriesOrigin
	ReceivedAt  time.Time
	ReceivedBy  string

	// Destination is set when Status is transferred: the station the
	// range was ceded to.
	Destination StationID
	Comment     string
}

// Contains reports whether [first, last] lies entirely within the series.
func (s Series) Contains(first, last int64) bool {
	return first >= s.First && last <= s.Last
}

// Overlaps reports whether [first, last] shares any number with the series.
func (s Series) Overlaps(first, last int64) bool {
	return s.First <= last && s.Last >= first
}

// Range returns the series' number range.
func (s Series) Range() SeriesRange {
	return SeriesRange{First: s.First, Last: s.Last}
}

// SeriesRange is a bare number range, used in availability diagnostics.
type SeriesRange struct {
	First int64
	Last  int64
}

func (r SeriesRange) Count() int64 { return r.Last - r.First + 1 }

// =============================================================================
// LEDGER ENTRY - One immutable, signed stock movement for one station
// =============================================================================

// SeriesDetail is the tagged, structured detail record attached to a ledger
// entry: which color/range/count/value the movement covered. It replaces the
// open-ended metadata maps the paper trail used to rely on, so the detail
// schema is checkable.
type SeriesDetail struct {
	Color ColorID         `json:"color"`
	First int64           `json:"first"`
	Last  int64           `json:"last"`
	Count int64           `json:"count"`
	Value decimal.Decimal `json:"value"`
}

// LedgerEntry is one signed movement of monetary stock for one station.
//
// INVARIANTS:
//   - BalanceAfter = BalanceBefore + signed amount (debit negative).
//   - Entries are append-only: never mutated after creation except by an
//     explicit rebuild pass, never deleted. Corrections are new entries.
type LedgerEntry struct {
	ID        EntryID
	Station   StationID
	Direction Direction
	Category  Category

	// Amount is the positive magnitude of the movement; the sign comes
	// from Direction.
	Amount        decimal.Decimal
	TicketCount   int64
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal

	OccurredAt time.Time
	Actor      string

	// Reference is the movement's document number. The two entries of one
	// transfer share the same reference.
	Reference string

	// CounterStation is the other end of a transfer: the destination for a
	// debit, the origin for a credit. Empty otherwise.
	CounterStation StationID

	Detail    []SeriesDetail
	SeriesIDs []SeriesID
	Comment   string

	// Cancelled entries are skipped by balance reconstruction. Flagged only
	// by administrative reconciliation, never by ordinary operations.
	Cancelled bool
}

// SignedAmount returns the amount with its direction applied.
func (e LedgerEntry) SignedAmount() decimal.Decimal {
	if e.Direction == DirectionDebit {
		return e.Amount.Neg()
	}
	return e.Amount
}

// =============================================================================
// BALANCE - Denormalized current balance per station
// =============================================================================

// Balance is the cached current monetary stock of one station. It is mutated
// only inside the same transaction as the ledger entry it mirrors, and is
// initialized to zero on a station's first movement (never as a side effect
// of a read).
type Balance struct {
	Station   StationID
	Value     decimal.Decimal
	UpdatedAt time.Time
}

// Tickets derives the ticket count at the given face value.
func (b Balance) Tickets(faceValue decimal.Decimal) int64 {
	return TicketsFor(b.Value, faceValue)
}

// =============================================================================
// STATION DIRECTORY - External collaborator boundary
// =============================================================================

// Station is the directory view of a toll/weighbridge post: identity, active
// flag and the staff to notify on stock movements.
type Station struct {
	ID     StationID
	Name   string
	Active bool
	Staff  []string
}

// StationDirectory resolves station identity and notification recipients.
// The directory itself (creation, staffing) is an external collaborator.
type StationDirectory interface {
	// Station returns the station or ErrStationNotFound.
	Station(ctx context.Context, id StationID) (*Station, error)
}
