/*
series.go - Numbered ticket series registry

PURPOSE:
  Tracks which exact ticket numbers each station holds, per color. A
  series is a contiguous range [first, last]. The registry answers one
  question (is [first, last] fully available at this station?) and
  performs two mutations:

    Consume: carve [first, last] out of the holder's stock. The covered
             portion becomes a single "transferred" record; leftover
             numbers on either side stay in stock as residual series.

    Receive: add [first, last] to a station's stock, merging with any
             adjacent in-stock series so stock never fragments more
             than physical handling requires.

NON-OVERLAP INVARIANT:
  At any moment, the in_stock series of a given color never overlap,
  across all stations. Consume preserves this by narrowing before the
  receiver widens; Receive checks it before inserting.

SPLIT / MERGE SYMMETRY:
  Consuming the middle of a series splits it in at most two residuals.
  Receiving a range flanked by two in-stock neighbors collapses all
  three into one row. Transferring a sub-range away and straight back
  restores a single series covering the original range.

SEE ALSO:
  - transfer.go: composes Consume + Receive inside one transaction
  - ledger.go: the value-level ledger fed by the same transaction
*/
package stock

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// =============================================================================
// REGISTRY
// =============================================================================

// Registry manages numbered ticket series. All mutations run inside the
// provided TxStore so callers (notably the transfer engine) can compose
// them with ledger writes in a single transaction.
type Registry struct {
	store TxStore
	face  decimal.Decimal
	log   *logrus.Entry
	now   func() time.Time
}

func NewRegistry(store TxStore, face decimal.Decimal, log *logrus.Logger) *Registry {
	return &Registry{
		store: store,
		face:  face,
		log:   log.WithField("component", "registry"),
		now:   time.Now,
	}
}

// FindAvailable verifies that [first, last] is fully covered by in-stock
// series at the station and returns the covering series, ordered by first
// number. Coverage must be gap-free; any hole or foreign holder yields a
// RangeUnavailableError describing what blocks the range.
func (r *Registry) FindAvailable(ctx context.Context, station StationID, color ColorID, first, last int64) ([]Series, error) {
	return r.findAvailableIn(ctx, r.store, station, color, first, last)
}

// Consume removes [first, last] from the station's stock. Returns the
// transferred record covering exactly the consumed range.
func (r *Registry) Consume(ctx context.Context, station StationID, color ColorID, first, last int64, destination StationID, actor string) (Series, error) {
	var out Series
	err := r.store.WithTx(ctx, func(s Store) error {
		var err error
		out, err = r.consumeIn(ctx, s, station, color, first, last, destination, actor)
		return err
	})
	return out, err
}

// Receive adds [first, last] to the station's stock, merging with adjacent
// in-stock series where possible. Returns the resulting series (which may
// cover more than [first, last] after a merge).
func (r *Registry) Receive(ctx context.Context, station StationID, color ColorID, first, last int64, origin SeriesOrigin, actor, comment string) (Series, error) {
	var out Series
	err := r.store.WithTx(ctx, func(s Store) error {
		var err error
		out, err = r.receiveIn(ctx, s, station, color, first, last, origin, actor, comment)
		return err
	})
	return out, err
}

// InStock lists the station's in-stock series, ordered by color then first
// number.
func (r *Registry) InStock(ctx context.Context, station StationID) ([]Series, error) {
	return r.store.StationSeries(ctx, station, StatusInStock)
}

// =============================================================================
// TRANSACTION-SCOPED CORES
// =============================================================================
// The *In methods take an explicit Store so the transfer engine can run
// them against its own transaction. The exported wrappers above just bind
// them to the registry's store.

func (r *Registry) findAvailableIn(ctx context.Context, s Store, station StationID, color ColorID, first, last int64) ([]Series, error) {
	if err := validateRange(first, last); err != nil {
		return nil, err
	}

	// Sold tickets are gone for good: a range touching a used series is
	// never transferable, no matter who holds the rest of it.
	sold, err := s.SeriesOverlapping(ctx, color, first, last, StatusUsed)
	if err != nil {
		return nil, err
	}
	if len(sold) > 0 {
		var blocking []BlockedRange
		for _, sr := range sold {
			blocking = append(blocking, BlockedRange{
				First:   sr.First,
				Last:    sr.Last,
				Status:  sr.Status,
				Station: sr.Station,
			})
		}
		return nil, &RangeUnavailableError{
			Station:  station,
			Color:    color,
			First:    first,
			Last:     last,
			Reason:   "range contains sold tickets",
			Blocking: blocking,
		}
	}

	covering, err := s.CoveringSeries(ctx, station, color, first, last)
	if err != nil {
		return nil, err
	}

	// Walk the covering series and collect every hole.
	var gaps []BlockedRange
	cursor := first
	for _, sr := range covering {
		if sr.First > cursor {
			gaps = append(gaps, BlockedRange{First: cursor, Last: sr.First - 1})
		}
		if sr.Last >= cursor {
			cursor = sr.Last + 1
		}
		if cursor > last {
			break
		}
	}
	if cursor <= last {
		gaps = append(gaps, BlockedRange{First: cursor, Last: last})
	}
	if len(gaps) == 0 {
		return covering, nil
	}

	// Not covered. Explain why: anything overlapping the range that is not
	// in stock here (held elsewhere, already transferred, already used),
	// plus the holes no series accounts for at all.
	blocking, err := r.blockingRanges(ctx, s, station, color, first, last)
	if err != nil {
		return nil, err
	}
	reason := "range not registered in stock"
	if len(blocking) > 0 {
		reason = "range blocked by existing series"
	}
	for _, gap := range gaps {
		if !overlapsAny(blocking, gap) {
			blocking = append(blocking, gap)
		}
	}
	return nil, &RangeUnavailableError{
		Station:  station,
		Color:    color,
		First:    first,
		Last:     last,
		Reason:   reason,
		Blocking: blocking,
	}
}

func overlapsAny(blocking []BlockedRange, gap BlockedRange) bool {
	for _, b := range blocking {
		if b.First <= gap.Last && b.Last >= gap.First {
			return true
		}
	}
	return false
}

func (r *Registry) blockingRanges(ctx context.Context, s Store, station StationID, color ColorID, first, last int64) ([]BlockedRange, error) {
	overlapping, err := s.SeriesOverlapping(ctx, color, first, last, StatusInStock, StatusTransferred, StatusUsed)
	if err != nil {
		return nil, err
	}
	var blocking []BlockedRange
	for _, sr := range overlapping {
		if sr.Station == station && sr.Status == StatusInStock {
			continue // that part is fine, the hole is elsewhere
		}
		blocking = append(blocking, BlockedRange{
			First:   sr.First,
			Last:    sr.Last,
			Status:  sr.Status,
			Station: sr.Station,
		})
	}
	return blocking, nil
}

func (r *Registry) consumeIn(ctx context.Context, s Store, station StationID, color ColorID, first, last int64, destination StationID, actor string) (Series, error) {
	covering, err := r.findAvailableIn(ctx, s, station, color, first, last)
	if err != nil {
		return Series{}, err
	}

	head := covering[0]
	tail := covering[len(covering)-1]

	// Residual before the consumed range keeps the head's provenance.
	if head.First < first {
		residual := head
		residual.ID = 0
		residual.First = head.First
		residual.Last = first - 1
		r.resize(&residual)
		if _, err := s.InsertSeries(ctx, residual); err != nil {
			return Series{}, err
		}
	}

	// Residual after the consumed range keeps the tail's provenance.
	if tail.Last > last {
		residual := tail
		residual.ID = 0
		residual.First = last + 1
		residual.Last = tail.Last
		r.resize(&residual)
		if _, err := s.InsertSeries(ctx, residual); err != nil {
			return Series{}, err
		}
	}

	// The head row is repurposed as the transferred record; any further
	// covering rows are fully absorbed and deleted.
	transferred := head
	transferred.First = first
	transferred.Last = last
	transferred.Status = StatusTransferred
	transferred.Destination = destination
	r.resize(&transferred)
	if err := s.UpdateSeries(ctx, transferred); err != nil {
		return Series{}, err
	}
	for _, sr := range covering[1:] {
		if err := s.DeleteSeries(ctx, sr.ID); err != nil {
			return Series{}, err
		}
	}

	r.log.WithFields(logrus.Fields{
		"station": station,
		"color":   color,
		"first":   first,
		"last":    last,
		"actor":   actor,
	}).Debug("series consumed")
	return transferred, nil
}

func (r *Registry) receiveIn(ctx context.Context, s Store, station StationID, color ColorID, first, last int64, origin SeriesOrigin, actor, comment string) (Series, error) {
	if err := validateRange(first, last); err != nil {
		return Series{}, err
	}

	// The incoming range must not overlap anyone's live stock.
	conflicts, err := s.SeriesOverlapping(ctx, color, first, last, StatusInStock)
	if err != nil {
		return Series{}, err
	}
	if len(conflicts) > 0 {
		blocking := make([]BlockedRange, 0, len(conflicts))
		for _, sr := range conflicts {
			blocking = append(blocking, BlockedRange{First: sr.First, Last: sr.Last, Status: sr.Status, Station: sr.Station})
		}
		return Series{}, &RangeUnavailableError{
			Station:  station,
			Color:    color,
			First:    first,
			Last:     last,
			Reason:   "range overlaps existing stock",
			Blocking: blocking,
		}
	}

	before, err := s.AdjacentBefore(ctx, station, color, first)
	if err != nil {
		return Series{}, err
	}
	after, err := s.AdjacentAfter(ctx, station, color, last)
	if err != nil {
		return Series{}, err
	}

	switch {
	case before != nil && after != nil:
		// Triple merge: extend the left neighbor over the incoming range and
		// the right neighbor, then drop the right neighbor's row.
		merged := *before
		merged.Last = after.Last
		r.resize(&merged)
		if err := s.UpdateSeries(ctx, merged); err != nil {
			return Series{}, err
		}
		if err := s.DeleteSeries(ctx, after.ID); err != nil {
			return Series{}, err
		}
		r.logReceive(station, color, first, last, "merge_both")
		return merged, nil

	case before != nil:
		merged := *before
		merged.Last = last
		r.resize(&merged)
		if err := s.UpdateSeries(ctx, merged); err != nil {
			return Series{}, err
		}
		r.logReceive(station, color, first, last, "merge_before")
		return merged, nil

	case after != nil:
		merged := *after
		merged.First = first
		r.resize(&merged)
		if err := s.UpdateSeries(ctx, merged); err != nil {
			return Series{}, err
		}
		r.logReceive(station, color, first, last, "merge_after")
		return merged, nil

	default:
		created := Series{
			Station:    station,
			Color:      color,
			First:      first,
			Last:       last,
			Status:     StatusInStock,
			Origin:     origin,
			ReceivedAt: r.now(),
			ReceivedBy: actor,
			Comment:    comment,
		}
		r.resize(&created)
		created, err := s.InsertSeries(ctx, created)
		if err != nil {
			return Series{}, err
		}
		r.logReceive(station, color, first, last, "create")
		return created, nil
	}
}

// resize recomputes the derived count and value fields after any range
// change.
func (r *Registry) resize(sr *Series) {
	sr.TicketCount = sr.Last - sr.First + 1
	sr.Value = ValueFor(sr.TicketCount, r.face)
}

func (r *Registry) logReceive(station StationID, color ColorID, first, last int64, mode string) {
	r.log.WithFields(logrus.Fields{
		"station": station,
		"color":   color,
		"first":   first,
		"last":    last,
		"mode":    mode,
	}).Debug("series received")
}

func validateRange(first, last int64) error {
	if first < 1 || last < first {
		return fmt.Errorf("%w: [%d, %d]", ErrInvalidRange, first, last)
	}
	return nil
}
