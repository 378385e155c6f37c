/*
ledger.go - Append-only stock movement ledger with balance snapshots

PURPOSE:
  The ledger is the source of truth for every value movement (supplies,
  transfers, regularizations). Each entry stores the balance before and
  after it applied, so any row is self-auditing: the history is a chain
  of (before, delta, after) triples that must line up.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: entries are never deleted. A mistaken entry is marked
     cancelled, never removed, and contributes nothing to balances.
  2. CHAINED: entry N's balance_after equals entry N+1's balance_before
     (over non-cancelled entries).
  3. NON-NEGATIVE: an append that would drive the balance below zero is
     rejected up front. Only the Rebuild repair path clamps, because it
     has to make sense of historical data it cannot reject.

BALANCE CACHE:
  The balances table is a pure cache of the latest chain value. It is
  written in the same transaction as every ledger insert and can be
  thrown away and rebuilt from the ledger at any time (Rebuild).

POINT-IN-TIME:
  BalanceAt(station, date) is the balance_after of the latest
  non-cancelled entry dated on or before end-of-day(date). No replay
  needed: the chain invariant makes the latest entry sufficient.

SEE ALSO:
  - transfer.go: appends the paired debit/credit of a transfer
  - series.go: number-level bookkeeping behind the same movements
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
// LEDGER
// =============================================================================

type Ledger struct {
	store TxStore
	face  decimal.Decimal
	log   *logrus.Entry
	now   func() time.Time
}

func NewLedger(store TxStore, face decimal.Decimal, log *logrus.Logger) *Ledger {
	return &Ledger{
		store: store,
		face:  face,
		log:   log.WithField("component", "ledger"),
		now:   time.Now,
	}
}

// Append records one movement. The entry's Amount is a positive magnitude;
// Direction decides the sign. Balance bookkeeping (before/after, ticket
// count, cache update) is filled in here, all inside one transaction.
func (l *Ledger) Append(ctx context.Context, e LedgerEntry) (LedgerEntry, error) {
	var out LedgerEntry
	err := l.store.WithTx(ctx, func(s Store) error {
		var err error
		out, err = l.appendIn(ctx, s, e)
		return err
	})
	return out, err
}

// CurrentBalance returns the station's cached balance. A station with no
// movements yet reads as zero; the cache row is only created by the first
// movement.
func (l *Ledger) CurrentBalance(ctx context.Context, station StationID) (Balance, error) {
	b, err := l.store.Balance(ctx, station)
	if err != nil {
		return Balance{}, err
	}
	if b == nil {
		return Balance{Station: station, Value: decimal.Zero}, nil
	}
	return *b, nil
}

// BalanceAt reconstructs the station's balance as of end of day on the
// given date. Stations with no entries by then read as zero.
func (l *Ledger) BalanceAt(ctx context.Context, station StationID, date time.Time) (decimal.Decimal, error) {
	cutoff := endOfDay(date)
	latest, err := l.store.LatestEntryBefore(ctx, station, cutoff)
	if err != nil {
		return decimal.Zero, err
	}
	if latest == nil {
		return decimal.Zero, nil
	}
	return latest.BalanceAfter, nil
}

// Entries returns the station's full movement history, oldest first.
func (l *Ledger) Entries(ctx context.Context, station StationID) ([]LedgerEntry, error) {
	return l.store.EntriesByStation(ctx, station)
}

// EntriesByReference returns the entries sharing one reference, e.g. the
// debit/credit pair of a transfer.
func (l *Ledger) EntriesByReference(ctx context.Context, reference string) ([]LedgerEntry, error) {
	return l.store.EntriesByReference(ctx, reference)
}

// =============================================================================
// REBUILD
// =============================================================================

// RebuildReport summarizes a reconciliation pass.
type RebuildReport struct {
	Station      StationID       `json:"station"`
	Scanned      int             `json:"scanned"`
	Corrected    int             `json:"corrected"`
	FinalBalance decimal.Decimal `json:"final_balance"`
}

// Rebuild replays the station's full ledger from zero, rewriting any entry
// whose stored before/after balances disagree with the recomputed chain,
// then overwrites the balance cache with the final value. Running it twice
// in a row corrects nothing the second time.
//
// Historical data may contain sequences that would now be rejected; the
// replay clamps the running balance at zero rather than failing, and counts
// the clamp as a correction.
func (l *Ledger) Rebuild(ctx context.Context, station StationID) (RebuildReport, error) {
	report := RebuildReport{Station: station}
	err := l.store.WithTx(ctx, func(s Store) error {
		entries, err := s.EntriesByStation(ctx, station)
		if err != nil {
			return err
		}

		running := decimal.Zero
		for _, e := range entries {
			report.Scanned++
			if e.Cancelled {
				continue
			}
			before := running
			after := running.Add(e.SignedAmount())
			if after.IsNegative() {
				after = decimal.Zero
			}
			if !e.BalanceBefore.Equal(before) || !e.BalanceAfter.Equal(after) {
				if err := s.UpdateEntryBalances(ctx, e.ID, before, after); err != nil {
					return err
				}
				l.log.WithError(ErrReconciliationMismatch).WithFields(logrus.Fields{
					"entry":        e.ID,
					"station":      station,
					"stored_after": e.BalanceAfter,
					"replay_after": after,
				}).Warn("balance corrected")
				report.Corrected++
			}
			running = after
		}

		report.FinalBalance = running
		return s.SaveBalance(ctx, Balance{
			Station:   station,
			Value:     running,
			UpdatedAt: l.now(),
		})
	})
	if err != nil {
		return RebuildReport{}, err
	}

	l.log.WithFields(logrus.Fields{
		"station":   station,
		"scanned":   report.Scanned,
		"corrected": report.Corrected,
		"balance":   report.FinalBalance,
	}).Info("ledger rebuilt")
	return report, nil
}

// =============================================================================
// TRANSACTION-SCOPED CORE
// =============================================================================

func (l *Ledger) appendIn(ctx context.Context, s Store, e LedgerEntry) (LedgerEntry, error) {
	if _, err := ParseDirection(string(e.Direction)); err != nil {
		return LedgerEntry{}, err
	}
	if _, err := ParseCategory(string(e.Category)); err != nil {
		return LedgerEntry{}, err
	}
	if !e.Amount.IsPositive() {
		return LedgerEntry{}, fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidRange, e.Amount)
	}

	cached, err := s.Balance(ctx, e.Station)
	if err != nil {
		return LedgerEntry{}, err
	}
	before := decimal.Zero
	if cached != nil {
		before = cached.Value
	}

	after := before.Add(e.SignedAmount())
	if after.IsNegative() {
		return LedgerEntry{}, &NegativeBalanceError{
			Station:   e.Station,
			Available: before,
			Requested: e.Amount,
		}
	}

	e.BalanceBefore = before
	e.BalanceAfter = after
	e.TicketCount = TicketsFor(e.Amount, l.face)
	if e.OccurredAt.IsZero() {
		e.OccurredAt = l.now()
	}

	inserted, err := s.InsertEntry(ctx, e)
	if err != nil {
		return LedgerEntry{}, err
	}
	if err := s.SaveBalance(ctx, Balance{
		Station:   e.Station,
		Value:     after,
		UpdatedAt: e.OccurredAt,
	}); err != nil {
		return LedgerEntry{}, err
	}
	return inserted, nil
}

// endOfDay returns the last representable instant of the given calendar day
// in the date's location.
func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}
