/*
transfer.go - Inter-station transfer engine and supply intake

PURPOSE:
  The Engine composes the Registry and the Ledger into atomic business
  operations. A transfer moves a numbered range from one station to
  another in five steps, all inside one transaction:

    1. validate   - stations exist and are active, range is sane,
                    source actually holds every number
    2. consume    - carve the range out of the source's series
    3. receive    - add the range to the destination, merging neighbors
    4. record     - append a debit at the source and a credit at the
                    destination, sharing one freshly reserved reference
    5. notify     - tell both stations (after commit, best effort)

  Either all of 1-4 happen or none do. Step 5 is advisory: a failed
  notification is logged and swallowed.

CONCURRENCY:
  Two concurrent transfers touching the same station must not interleave
  their balance reads. The engine serializes per station with striped
  mutexes, always acquired in stripe order so A->B and B->A cannot
  deadlock. The transaction provides the hard guarantee; the locks keep
  busy-retry noise out of the database.

SUPPLY INTAKE:
  RecordSupply is the single-station sibling: register a new series from
  the printer and credit the station's ledger in one transaction.

SEE ALSO:
  - series.go: consume/receive mechanics
  - ledger.go: append mechanics, balance chain
*/
package stock

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// =============================================================================
// REQUESTS AND RESULTS
// =============================================================================

// TransferRequest describes one requested inter-station transfer.
type TransferRequest struct {
	From    StationID
	To      StationID
	Color   ColorID
	First   int64
	Last    int64
	Actor   string
	Comment string
}

func (r TransferRequest) count() int64 { return r.Last - r.First + 1 }

// TransferQuote is the dry-run answer: what the transfer would move.
type TransferQuote struct {
	From        StationID       `json:"from"`
	To          StationID       `json:"to"`
	Color       ColorID         `json:"color"`
	First       int64           `json:"first"`
	Last        int64           `json:"last"`
	TicketCount int64           `json:"ticket_count"`
	Value       decimal.Decimal `json:"value"`

	// Covering lists the source series the range would be carved from.
	Covering []SeriesRange `json:"covering"`
}

// TransferResult reports a completed transfer.
type TransferResult struct {
	Reference   string          `json:"reference"`
	From        StationID       `json:"from"`
	To          StationID       `json:"to"`
	Color       ColorID         `json:"color"`
	First       int64           `json:"first"`
	Last        int64           `json:"last"`
	TicketCount int64           `json:"ticket_count"`
	Value       decimal.Decimal `json:"value"`
	Debit       LedgerEntry     `json:"-"`
	Credit      LedgerEntry     `json:"-"`
	CompletedAt time.Time       `json:"completed_at"`
}

// SupplyRequest describes a new series arriving from the printer.
type SupplyRequest struct {
	Station StationID
	Color   ColorID
	First   int64
	Last    int64
	Actor   string
	Comment string
}

// SupplyResult reports a recorded supply.
type SupplyResult struct {
	Reference   string          `json:"reference"`
	Station     StationID       `json:"station"`
	Series      Series          `json:"-"`
	TicketCount int64           `json:"ticket_count"`
	Value       decimal.Decimal `json:"value"`
	Entry       LedgerEntry     `json:"-"`
}

// =============================================================================
// ENGINE
// =============================================================================

const lockStripes = 64

type Engine struct {
	store    TxStore
	registry *Registry
	ledger   *Ledger
	stations StationDirectory
	notifier Notifier
	face     decimal.Decimal
	log      *logrus.Entry
	now      func() time.Time

	locks [lockStripes]sync.Mutex
}

func NewEngine(store TxStore, registry *Registry, ledger *Ledger, stations StationDirectory, notifier Notifier, face decimal.Decimal, log *logrus.Logger) *Engine {
	return &Engine{
		store:    store,
		registry: registry,
		ledger:   ledger,
		stations: stations,
		notifier: notifier,
		face:     face,
		log:      log.WithField("component", "engine"),
		now:      time.Now,
	}
}

// Validate answers "would this transfer succeed right now?" without side
// effects. The same checks run again inside Execute's transaction; a quote
// is advisory, not a reservation.
func (e *Engine) Validate(ctx context.Context, req TransferRequest) (*TransferQuote, error) {
	if err := e.checkStations(ctx, req.From, req.To); err != nil {
		return nil, err
	}
	covering, err := e.registry.FindAvailable(ctx, req.From, req.Color, req.First, req.Last)
	if err != nil {
		return nil, err
	}
	value := ValueFor(req.count(), e.face)

	bal, err := e.ledger.CurrentBalance(ctx, req.From)
	if err != nil {
		return nil, err
	}
	if bal.Value.LessThan(value) {
		return nil, &NegativeBalanceError{Station: req.From, Available: bal.Value, Requested: value}
	}

	quote := &TransferQuote{
		From:        req.From,
		To:          req.To,
		Color:       req.Color,
		First:       req.First,
		Last:        req.Last,
		TicketCount: req.count(),
		Value:       value,
	}
	for _, sr := range covering {
		quote.Covering = append(quote.Covering, sr.Range())
	}
	return quote, nil
}

// Execute performs the transfer atomically and, on success, notifies both
// stations. Any error before commit leaves no trace: no series change, no
// ledger entry, no balance movement, no burned reference.
func (e *Engine) Execute(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	if err := e.checkStations(ctx, req.From, req.To); err != nil {
		return nil, err
	}

	unlock := e.lockStations(req.From, req.To)
	defer unlock()

	at := e.now()
	value := ValueFor(req.count(), e.face)
	result := &TransferResult{
		From:        req.From,
		To:          req.To,
		Color:       req.Color,
		First:       req.First,
		Last:        req.Last,
		TicketCount: req.count(),
		Value:       value,
		CompletedAt: at,
	}

	err := e.store.WithTx(ctx, func(s Store) error {
		// Step 2: carve the range out of the source's stock.
		transferred, err := e.registry.consumeIn(ctx, s, req.From, req.Color, req.First, req.Last, req.To, req.Actor)
		if err != nil {
			return err
		}

		// Step 3: hand it to the destination.
		received, err := e.registry.receiveIn(ctx, s, req.To, req.Color, req.First, req.Last, OriginTransferIn, req.Actor, req.Comment)
		if err != nil {
			return err
		}

		// Step 4: paired ledger entries under one reference.
		reference, err := nextReference(ctx, s, CategoryTransfer, at)
		if err != nil {
			return err
		}
		result.Reference = reference

		detail := []SeriesDetail{{
			Color: req.Color,
			First: req.First,
			Last:  req.Last,
			Count: req.count(),
			Value: value,
		}}

		result.Debit, err = e.ledger.appendIn(ctx, s, LedgerEntry{
			Station:        req.From,
			Direction:      DirectionDebit,
			Category:       CategoryTransfer,
			Amount:         value,
			OccurredAt:     at,
			Actor:          req.Actor,
			Reference:      reference,
			CounterStation: req.To,
			Detail:         detail,
			SeriesIDs:      []SeriesID{transferred.ID},
			Comment:        req.Comment,
		})
		if err != nil {
			return err
		}

		result.Credit, err = e.ledger.appendIn(ctx, s, LedgerEntry{
			Station:        req.To,
			Direction:      DirectionCredit,
			Category:       CategoryTransfer,
			Amount:         value,
			OccurredAt:     at,
			Actor:          req.Actor,
			Reference:      reference,
			CounterStation: req.From,
			Detail:         detail,
			SeriesIDs:      []SeriesID{received.ID},
			Comment:        req.Comment,
		})
		return err
	})
	if err != nil {
		e.log.WithFields(logrus.Fields{
			"from":  req.From,
			"to":    req.To,
			"color": req.Color,
			"first": req.First,
			"last":  req.Last,
		}).WithError(err).Warn("transfer rejected")
		return nil, err
	}

	e.log.WithFields(logrus.Fields{
		"reference": result.Reference,
		"from":      req.From,
		"to":        req.To,
		"value":     result.Value,
		"tickets":   result.TicketCount,
	}).Info("transfer completed")

	// Step 5: advisory only, never unwinds the committed transfer.
	e.notifyTransfer(ctx, req, result)
	return result, nil
}

// RecordSupply registers a series delivered by the printer and credits the
// station's ledger in one transaction.
func (e *Engine) RecordSupply(ctx context.Context, req SupplyRequest) (*SupplyResult, error) {
	station, err := e.stations.Station(ctx, req.Station)
	if err != nil {
		return nil, err
	}
	if !station.Active {
		return nil, fmt.Errorf("%w: %s", ErrStationInactive, req.Station)
	}

	unlock := e.lockStations(req.Station, req.Station)
	defer unlock()

	at := e.now()
	count := req.Last - req.First + 1
	value := ValueFor(count, e.face)
	result := &SupplyResult{
		Station:     req.Station,
		TicketCount: count,
		Value:       value,
	}

	err = e.store.WithTx(ctx, func(s Store) error {
		series, err := e.registry.receiveIn(ctx, s, req.Station, req.Color, req.First, req.Last, OriginSupply, req.Actor, req.Comment)
		if err != nil {
			return err
		}
		result.Series = series

		reference, err := nextReference(ctx, s, CategorySupply, at)
		if err != nil {
			return err
		}
		result.Reference = reference

		result.Entry, err = e.ledger.appendIn(ctx, s, LedgerEntry{
			Station:    req.Station,
			Direction:  DirectionCredit,
			Category:   CategorySupply,
			Amount:     value,
			OccurredAt: at,
			Actor:      req.Actor,
			Reference:  reference,
			Detail: []SeriesDetail{{
				Color: req.Color,
				First: req.First,
				Last:  req.Last,
				Count: count,
				Value: value,
			}},
			SeriesIDs: []SeriesID{series.ID},
			Comment:   req.Comment,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	e.log.WithFields(logrus.Fields{
		"reference": result.Reference,
		"station":   req.Station,
		"value":     value,
		"tickets":   count,
	}).Info("supply recorded")

	e.notify(ctx, Notification{
		Station:   req.Station,
		Title:     "Stock supply received",
		Body:      fmt.Sprintf("Series %s #%d-#%d (%d tickets, %s) added to stock.", req.Color, req.First, req.Last, count, value),
		Severity:  SeverityInfo,
		Reference: result.Reference,
		At:        at,
	})
	return result, nil
}

// =============================================================================
// INTERNALS
// =============================================================================

func (e *Engine) checkStations(ctx context.Context, from, to StationID) error {
	if from == to {
		return fmt.Errorf("%w: %s", ErrSameStationTransfer, from)
	}
	for _, id := range []StationID{from, to} {
		st, err := e.stations.Station(ctx, id)
		if err != nil {
			return err
		}
		if !st.Active {
			return fmt.Errorf("%w: %s", ErrStationInactive, id)
		}
	}
	return nil
}

// lockStations acquires the stripes of both stations in stripe order and
// returns the matching unlock. Same stripe means one lock.
func (e *Engine) lockStations(a, b StationID) func() {
	i, j := stripeOf(a), stripeOf(b)
	if i > j {
		i, j = j, i
	}
	e.locks[i].Lock()
	if j != i {
		e.locks[j].Lock()
	}
	return func() {
		if j != i {
			e.locks[j].Unlock()
		}
		e.locks[i].Unlock()
	}
}

func stripeOf(id StationID) int {
	h := fnv.New32a()
	h.Write([]byte(id))
	return int(h.Sum32() % lockStripes)
}

func (e *Engine) notifyTransfer(ctx context.Context, req TransferRequest, result *TransferResult) {
	e.notify(ctx, Notification{
		Station:   req.From,
		Title:     "Stock transfer sent",
		Body:      fmt.Sprintf("Transferred %s #%d-#%d (%d tickets, %s) to %s.", req.Color, req.First, req.Last, result.TicketCount, result.Value, req.To),
		Severity:  SeverityInfo,
		Reference: result.Reference,
		At:        result.CompletedAt,
	})
	e.notify(ctx, Notification{
		Station:   req.To,
		Title:     "Stock transfer received",
		Body:      fmt.Sprintf("Received %s #%d-#%d (%d tickets, %s) from %s.", req.Color, req.First, req.Last, result.TicketCount, result.Value, req.From),
		Severity:  SeverityInfo,
		Reference: result.Reference,
		At:        result.CompletedAt,
	})
}

func (e *Engine) notify(ctx context.Context, n Notification) {
	if err := e.notifier.Notify(ctx, n); err != nil {
		e.log.WithError(err).WithField("station", n.Station).Warn("notification delivery failed")
	}
}
