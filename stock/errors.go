/*
errors.go - Centralized error types for the stock engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The API layer classifies these to decide status codes; administrative
  failures (ledger integrity) are kept distinct from operator-correctable
  validation failures.

ERROR CATEGORIES:
  1. Validation errors - recoverable by resubmission with corrected input
  2. Integrity errors  - ledger/reconciliation bugs, fatal, never retried
  3. Batch errors      - counted and skipped during bulk snapshot backfill

SEE ALSO:
  - series.go: RangeUnavailableError construction
  - ledger.go: ErrNegativeBalance, rebuild corrections
*/
package stock

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrRangeUnavailable is returned when a requested ticket range is not
	// fully held in stock at the origin station. Recoverable: the operator
	// corrects the range and resubmits.
	ErrRangeUnavailable = errors.New("ticket range unavailable")

	// ErrSameStationTransfer is returned when origin equals destination.
	ErrSameStationTransfer = errors.New("origin and destination stations must differ")

	// ErrNegativeBalance is returned when a debit would drive a station's
	// balance below zero. If the series registry and ledger are consistent
	// this never happens; when it does, it signals a reconciliation bug and
	// is treated as fatal, never retried automatically.
	ErrNegativeBalance = errors.New("debit would drive balance below zero")

	// ErrInvalidRange is returned for malformed ranges (first > last, or
	// numbers below 1). Rejected at input validation.
	ErrInvalidRange = errors.New("invalid ticket range")

	// ErrUnknownDirection is returned for a direction outside the closed enum.
	ErrUnknownDirection = errors.New("unknown movement direction")

	// ErrUnknownCategory is returned for a category outside the closed enum.
	ErrUnknownCategory = errors.New("unknown movement category")

	// ErrStationNotFound is returned when a referenced station doesn't exist
	// in the directory.
	ErrStationNotFound = errors.New("station not found")

	// ErrStationInactive is returned when a transfer names a deactivated station.
	ErrStationInactive = errors.New("station is not active")

	// ErrReconciliationMismatch marks drift between a stored balance-after
	// and the recomputed running total. Rebuild logs and corrects it; it is
	// never silently ignored.
	ErrReconciliationMismatch = errors.New("stored balance disagrees with recomputed total")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// BlockedRange describes one offending sub-range found during availability
// checking: either a hole in the station's stock or numbers already used
// elsewhere.
type BlockedRange struct {
	First   int64
	Last    int64
	Status  SeriesStatus // status of the conflicting series; empty for gaps
	Station StationID    // station holding the conflicting series; empty for gaps
}

func (b BlockedRange) String() string {
	if b.Status == "" {
		return fmt.Sprintf("#%d-%d (not in stock)", b.First, b.Last)
	}
	return fmt.Sprintf("#%d-%d (%s at %s)", b.First, b.Last, b.Status, b.Station)
}

// RangeUnavailableError reports why a requested range cannot be consumed,
// listing the blocking sub-ranges so the operator can correct the request.
type RangeUnavailableError struct {
	Station  StationID
	Color    ColorID
	First    int64
	Last     int64
	Reason   string
	Blocking []BlockedRange
}

func (e *RangeUnavailableError) Error() string {
	msg := fmt.Sprintf("range %s #%d-%d unavailable at %s: %s",
		e.Color, e.First, e.Last, e.Station, e.Reason)
	if len(e.Blocking) > 0 {
		parts := make([]string, len(e.Blocking))
		for i, b := range e.Blocking {
			parts[i] = b.String()
		}
		msg += " [" + strings.Join(parts, ", ") + "]"
	}
	return msg
}

func (e *RangeUnavailableError) Unwrap() error { return ErrRangeUnavailable }

// NegativeBalanceError reports the balance shortfall of a rejected debit.
type NegativeBalanceError struct {
	Station   StationID
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *NegativeBalanceError) Error() string {
	return fmt.Sprintf("debit of %s at %s exceeds available balance %s",
		e.Requested, e.Station, e.Available)
}

func (e *NegativeBalanceError) Unwrap() error { return ErrNegativeBalance }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid operator input
// and recoverable by resubmission.
func IsClientError(err error) bool {
	return errors.Is(err, ErrRangeUnavailable) ||
		errors.Is(err, ErrSameStationTransfer) ||
		errors.Is(err, ErrStationInactive) ||
		errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrUnknownDirection) ||
		errors.Is(err, ErrUnknownCategory)
}

// IsFatal returns true if the error signals a ledger integrity violation
// requiring operator investigation; it must never be retried automatically.
func IsFatal(err error) bool {
	return errors.Is(err, ErrNegativeBalance) ||
		errors.Is(err, ErrReconciliationMismatch)
}

// IsNotFound returns true if the error indicates a missing station.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrStationNotFound)
}
