/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements stock.TxStore (series, ledger, balances, sequences) plus the
  station directory, snapshot and revenue stores, all on one database. In
  production the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

APPEND-ONLY ENFORCEMENT:
  The ledger_entries table has no DELETE path and exactly one UPDATE
  path: the rebuild pass rewriting before/after balances. Everything
  else is INSERT and SELECT.

KEY TABLES:
  series:          Numbered ticket ranges with status and provenance
  ledger_entries:  Immutable movement log with balance snapshots
  balances:        Cached current balance per station
  ref_sequences:   Per-day per-category reference counters
  stations:        Station directory (identity, active flag, staff)
  snapshots:       Cached daily indicator sets
  daily_revenues:  Declared revenue and loss rate per station per day

TRANSACTIONS:
  WithTx(fn) wraps fn in a database transaction. All row-level methods
  are written against a queryer (either *sql.DB or *sql.Tx), so the
  transaction-scoped store reuses them with zero duplicated SQL and
  without touching the store mutex it already holds.

WAL MODE:
  SQLite is opened with WAL for better concurrency: readers don't block,
  single writer at a time, better crash recovery.

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - stock/store.go: interface definitions
  - stations.go, analytics.go: directory, snapshot and revenue stores
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/tollgate/stock-engine/stock"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ stock.TxStore = (*Store)(nil)

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Numbered ticket series
	CREATE TABLE IF NOT EXISTS series (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		station_id TEXT NOT NULL,
		color TEXT NOT NULL,
		first_number INTEGER NOT NULL,
		last_number INTEGER NOT NULL,
		ticket_count INTEGER NOT NULL,
		value TEXT NOT NULL,
		status TEXT NOT NULL,
		origin TEXT NOT NULL,
		received_at TEXT NOT NULL,
		received_by TEXT,
		destination TEXT,
		comment TEXT
	);

	-- Availability lookups (hot path for transfers)
	CREATE INDEX IF NOT EXISTS idx_series_station_color_status
		ON series(station_id, color, status);
	-- Overlap and adjacency scans
	CREATE INDEX IF NOT EXISTS idx_series_color_range
		ON series(color, first_number, last_number);

	-- Movement ledger (append-only)
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		station_id TEXT NOT NULL,
		direction TEXT NOT NULL,
		category TEXT NOT NULL,
		amount TEXT NOT NULL,
		ticket_count INTEGER NOT NULL,
		balance_before TEXT NOT NULL,
		balance_after TEXT NOT NULL,
		occurred_at TEXT NOT NULL,
		actor TEXT,
		reference TEXT,
		counter_station TEXT,
		detail_json TEXT,
		series_ids_json TEXT,
		comment TEXT,
		cancelled BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	-- Balance reconstruction (hot path)
	CREATE INDEX IF NOT EXISTS idx_ledger_station_date
		ON ledger_entries(station_id, occurred_at DESC, id DESC);
	-- Transfer pair lookups
	CREATE INDEX IF NOT EXISTS idx_ledger_reference
		ON ledger_entries(reference) WHERE reference IS NOT NULL;

	-- Balance cache (one row per station, written with each ledger insert)
	CREATE TABLE IF NOT EXISTS balances (
		station_id TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Per-day per-category reference counters
	CREATE TABLE IF NOT EXISTS ref_sequences (
		category TEXT NOT NULL,
		day TEXT NOT NULL,
		value INTEGER NOT NULL,
		PRIMARY KEY (category, day)
	);

	-- Station directory
	CREATE TABLE IF NOT EXISTS stations (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		staff_json TEXT,
		created_at TEXT NOT NULL
	);

	-- Daily indicator snapshots
	CREATE TABLE IF NOT EXISTS snapshots (
		station_id TEXT NOT NULL,
		day TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		built_at TEXT NOT NULL,
		PRIMARY KEY (station_id, day)
	);

	-- Declared daily revenues
	CREATE TABLE IF NOT EXISTS daily_revenues (
		station_id TEXT NOT NULL,
		day TEXT NOT NULL,
		declared TEXT NOT NULL,
		loss_rate TEXT,
		PRIMARY KEY (station_id, day)
	);

	CREATE INDEX IF NOT EXISTS idx_revenues_station_day
		ON daily_revenues(station_id, day DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SERIES STORE (stock.SeriesStore interface)
// =============================================================================

const seriesColumns = `id, station_id, color, first_number, last_number, ticket_count,
	value, status, origin, received_at, received_by, destination, comment`

func (s *Store) InsertSeries(ctx context.Context, sr stock.Series) (stock.Series, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertSeries(ctx, s.db, sr)
}

func (s *Store) UpdateSeries(ctx context.Context, sr stock.Series) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateSeries(ctx, s.db, sr)
}

func (s *Store) DeleteSeries(ctx context.Context, id stock.SeriesID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteSeries(ctx, s.db, id)
}

func (s *Store) CoveringSeries(ctx context.Context, station stock.StationID, color stock.ColorID, first, last int64) ([]stock.Series, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return coveringSeries(ctx, s.db, station, color, first, last)
}

func (s *Store) SeriesOverlapping(ctx context.Context, color stock.ColorID, first, last int64, statuses ...stock.SeriesStatus) ([]stock.Series, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return seriesOverlapping(ctx, s.db, color, first, last, statuses...)
}

func (s *Store) AdjacentBefore(ctx context.Context, station stock.StationID, color stock.ColorID, first int64) (*stock.Series, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return adjacentSeries(ctx, s.db, station, color, "last_number = ?", first-1)
}

func (s *Store) AdjacentAfter(ctx context.Context, station stock.StationID, color stock.ColorID, last int64) (*stock.Series, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return adjacentSeries(ctx, s.db, station, color, "first_number = ?", last+1)
}

func (s *Store) StationSeries(ctx context.Context, station stock.StationID, status stock.SeriesStatus) ([]stock.Series, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return stationSeries(ctx, s.db, station, status)
}

func insertSeries(ctx context.Context, q queryer, sr stock.Series) (stock.Series, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO series
		(station_id, color, first_number, last_number, ticket_count, value,
		 status, origin, received_at, received_by, destination, comment)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sr.Station, sr.Color, sr.First, sr.Last, sr.TicketCount, sr.Value.String(),
		sr.Status, sr.Origin, sr.ReceivedAt.Format(time.RFC3339),
		sr.ReceivedBy, string(sr.Destination), sr.Comment,
	)
	if err != nil {
		return stock.Series{}, fmt.Errorf("failed to insert series: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return stock.Series{}, err
	}
	sr.ID = stock.SeriesID(id)
	return sr, nil
}

func updateSeries(ctx context.Context, q queryer, sr stock.Series) error {
	_, err := q.ExecContext(ctx, `
		UPDATE series SET
			station_id = ?, color = ?, first_number = ?, last_number = ?,
			ticket_count = ?, value = ?, status = ?, origin = ?,
			received_at = ?, received_by = ?, destination = ?, comment = ?
		WHERE id = ?`,
		sr.Station, sr.Color, sr.First, sr.Last,
		sr.TicketCount, sr.Value.String(), sr.Status, sr.Origin,
		sr.ReceivedAt.Format(time.RFC3339), sr.ReceivedBy, string(sr.Destination), sr.Comment,
		sr.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update series %d: %w", sr.ID, err)
	}
	return nil
}

func deleteSeries(ctx context.Context, q queryer, id stock.SeriesID) error {
	_, err := q.ExecContext(ctx, "DELETE FROM series WHERE id = ?", id)
	return err
}

func coveringSeries(ctx context.Context, q queryer, station stock.StationID, color stock.ColorID, first, last int64) ([]stock.Series, error) {
	query := `SELECT ` + seriesColumns + ` FROM series
		WHERE station_id = ? AND color = ? AND status = ?
		  AND first_number <= ? AND last_number >= ?
		ORDER BY first_number ASC`
	return querySeries(ctx, q, query, station, color, stock.StatusInStock, last, first)
}

func seriesOverlapping(ctx context.Context, q queryer, color stock.ColorID, first, last int64, statuses ...stock.SeriesStatus) ([]stock.Series, error) {
	query := `SELECT ` + seriesColumns + ` FROM series
		WHERE color = ? AND first_number <= ? AND last_number >= ?`
	args := []any{color, last, first}

	// No statuses means every status; an empty IN () would match nothing.
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, st := range statuses {
			placeholders[i] = "?"
			args = append(args, st)
		}
		query += ` AND status IN (` + strings.Join(placeholders, ", ") + `)`
	}

	query += ` ORDER BY first_number ASC`
	return querySeries(ctx, q, query, args...)
}

func adjacentSeries(ctx context.Context, q queryer, station stock.StationID, color stock.ColorID, cond string, boundary int64) (*stock.Series, error) {
	query := `SELECT ` + seriesColumns + ` FROM series
		WHERE station_id = ? AND color = ? AND status = ? AND ` + cond + `
		LIMIT 1`
	out, err := querySeries(ctx, q, query, station, color, stock.StatusInStock, boundary)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return &out[0], nil
}

func stationSeries(ctx context.Context, q queryer, station stock.StationID, status stock.SeriesStatus) ([]stock.Series, error) {
	query := `SELECT ` + seriesColumns + ` FROM series
		WHERE station_id = ? AND status = ?
		ORDER BY color ASC, first_number ASC`
	return querySeries(ctx, q, query, station, status)
}

func querySeries(ctx context.Context, q queryer, query string, args ...any) ([]stock.Series, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query series: %w", err)
	}
	defer rows.Close()

	var out []stock.Series
	for rows.Next() {
		sr, err := scanSeries(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sr)
	}
	return out, rows.Err()
}

func scanSeries(rows *sql.Rows) (stock.Series, error) {
	var (
		sr          stock.Series
		value       string
		receivedAt  string
		receivedBy  sql.NullString
		destination sql.NullString
		comment     sql.NullString
	)
	err := rows.Scan(
		&sr.ID, &sr.Station, &sr.Color, &sr.First, &sr.Last, &sr.TicketCount,
		&value, &sr.Status, &sr.Origin, &receivedAt, &receivedBy, &destination, &comment,
	)
	if err != nil {
		return sr, fmt.Errorf("failed to scan series: %w", err)
	}
	sr.Value, _ = decimal.NewFromString(value)
	sr.ReceivedAt, _ = time.Parse(time.RFC3339, receivedAt)
	sr.ReceivedBy = receivedBy.String
	sr.Destination = stock.StationID(destination.String)
	sr.Comment = comment.String
	return sr, nil
}

// =============================================================================
// LEDGER STORE (stock.LedgerStore interface)
// =============================================================================

const entryColumns = `id, station_id, direction, category, amount, ticket_count,
	balance_before, balance_after, occurred_at, actor, reference, counter_station,
	detail_json, series_ids_json, comment, cancelled`

func (s *Store) InsertEntry(ctx context.Context, e stock.LedgerEntry) (stock.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertEntry(ctx, s.db, e)
}

func (s *Store) EntriesByStation(ctx context.Context, station stock.StationID) ([]stock.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return entriesByStation(ctx, s.db, station)
}

func (s *Store) EntriesByReference(ctx context.Context, reference string) ([]stock.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return entriesByReference(ctx, s.db, reference)
}

func (s *Store) LatestEntryBefore(ctx context.Context, station stock.StationID, cutoff time.Time) (*stock.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return latestEntryBefore(ctx, s.db, station, cutoff)
}

func (s *Store) UpdateEntryBalances(ctx context.Context, id stock.EntryID, before, after decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateEntryBalances(ctx, s.db, id, before, after)
}

func insertEntry(ctx context.Context, q queryer, e stock.LedgerEntry) (stock.LedgerEntry, error) {
	detailJSON, _ := json.Marshal(e.Detail)
	seriesJSON, _ := json.Marshal(e.SeriesIDs)

	res, err := q.ExecContext(ctx, `
		INSERT INTO ledger_entries
		(station_id, direction, category, amount, ticket_count, balance_before,
		 balance_after, occurred_at, actor, reference, counter_station,
		 detail_json, series_ids_json, comment, cancelled, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Station, e.Direction, e.Category, e.Amount.String(), e.TicketCount,
		e.BalanceBefore.String(), e.BalanceAfter.String(),
		e.OccurredAt.Format(time.RFC3339), e.Actor, nullString(e.Reference),
		string(e.CounterStation), string(detailJSON), string(seriesJSON),
		e.Comment, e.Cancelled, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return stock.LedgerEntry{}, fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return stock.LedgerEntry{}, err
	}
	e.ID = stock.EntryID(id)
	return e, nil
}

func entriesByStation(ctx context.Context, q queryer, station stock.StationID) ([]stock.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries
		WHERE station_id = ?
		ORDER BY occurred_at ASC, id ASC`
	return queryEntries(ctx, q, query, station)
}

func entriesByReference(ctx context.Context, q queryer, reference string) ([]stock.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries
		WHERE reference = ?
		ORDER BY id ASC`
	return queryEntries(ctx, q, query, reference)
}

func latestEntryBefore(ctx context.Context, q queryer, station stock.StationID, cutoff time.Time) (*stock.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries
		WHERE station_id = ? AND occurred_at <= ? AND cancelled = FALSE
		ORDER BY occurred_at DESC, id DESC
		LIMIT 1`
	out, err := queryEntries(ctx, q, query, station, cutoff.Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return &out[0], nil
}

func updateEntryBalances(ctx context.Context, q queryer, id stock.EntryID, before, after decimal.Decimal) error {
	_, err := q.ExecContext(ctx,
		"UPDATE ledger_entries SET balance_before = ?, balance_after = ? WHERE id = ?",
		before.String(), after.String(), id,
	)
	return err
}

func queryEntries(ctx context.Context, q queryer, query string, args ...any) ([]stock.LedgerEntry, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var out []stock.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEntry(rows *sql.Rows) (stock.LedgerEntry, error) {
	var (
		e              stock.LedgerEntry
		amount         string
		before, after  string
		occurredAt     string
		actor          sql.NullString
		reference      sql.NullString
		counterStation sql.NullString
		detailJSON     sql.NullString
		seriesJSON     sql.NullString
		comment        sql.NullString
	)
	err := rows.Scan(
		&e.ID, &e.Station, &e.Direction, &e.Category, &amount, &e.TicketCount,
		&before, &after, &occurredAt, &actor, &reference, &counterStation,
		&detailJSON, &seriesJSON, &comment, &e.Cancelled,
	)
	if err != nil {
		return e, fmt.Errorf("failed to scan ledger entry: %w", err)
	}
	e.Amount, _ = decimal.NewFromString(amount)
	e.BalanceBefore, _ = decimal.NewFromString(before)
	e.BalanceAfter, _ = decimal.NewFromString(after)
	e.OccurredAt, _ = time.Parse(time.RFC3339, occurredAt)
	e.Actor = actor.String
	e.Reference = reference.String
	e.CounterStation = stock.StationID(counterStation.String)
	e.Comment = comment.String
	if detailJSON.Valid && detailJSON.String != "" {
		json.Unmarshal([]byte(detailJSON.String), &e.Detail)
	}
	if seriesJSON.Valid && seriesJSON.String != "" {
		json.Unmarshal([]byte(seriesJSON.String), &e.SeriesIDs)
	}
	return e, nil
}

// =============================================================================
// BALANCE STORE (stock.BalanceStore interface)
// =============================================================================

func (s *Store) Balance(ctx context.Context, station stock.StationID) (*stock.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return readBalance(ctx, s.db, station)
}

func (s *Store) SaveBalance(ctx context.Context, b stock.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveBalance(ctx, s.db, b)
}

func readBalance(ctx context.Context, q queryer, station stock.StationID) (*stock.Balance, error) {
	var value, updatedAt string
	err := q.QueryRowContext(ctx,
		"SELECT value, updated_at FROM balances WHERE station_id = ?",
		station,
	).Scan(&value, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	b := stock.Balance{Station: station}
	b.Value, _ = decimal.NewFromString(value)
	b.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &b, nil
}

func saveBalance(ctx context.Context, q queryer, b stock.Balance) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO balances (station_id, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(station_id) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		b.Station, b.Value.String(), b.UpdatedAt.Format(time.RFC3339),
	)
	return err
}

// =============================================================================
// SEQUENCE STORE (stock.SequenceStore interface)
// =============================================================================

func (s *Store) NextSequence(ctx context.Context, category stock.Category, day string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return nextSequence(ctx, s.db, category, day)
}

func nextSequence(ctx context.Context, q queryer, category stock.Category, day string) (int64, error) {
	_, err := q.ExecContext(ctx, `
		INSERT INTO ref_sequences (category, day, value)
		VALUES (?, ?, 1)
		ON CONFLICT(category, day) DO UPDATE SET value = value + 1`,
		category, day,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to advance sequence: %w", err)
	}

	var value int64
	err = q.QueryRowContext(ctx,
		"SELECT value FROM ref_sequences WHERE category = ? AND day = ?",
		category, day,
	).Scan(&value)
	return value, err
}

// =============================================================================
// TRANSACTIONAL STORE (stock.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction. The store mutex is held
// for the duration; the transaction-scoped store never locks.
func (s *Store) WithTx(ctx context.Context, fn func(stock.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

type txStore struct {
	tx *sql.Tx
}

var _ stock.Store = (*txStore)(nil)

func (ts *txStore) InsertSeries(ctx context.Context, sr stock.Series) (stock.Series, error) {
	return insertSeries(ctx, ts.tx, sr)
}

func (ts *txStore) UpdateSeries(ctx context.Context, sr stock.Series) error {
	return updateSeries(ctx, ts.tx, sr)
}

func (ts *txStore) DeleteSeries(ctx context.Context, id stock.SeriesID) error {
	return deleteSeries(ctx, ts.tx, id)
}

func (ts *txStore) CoveringSeries(ctx context.Context, station stock.StationID, color stock.ColorID, first, last int64) ([]stock.Series, error) {
	return coveringSeries(ctx, ts.tx, station, color, first, last)
}

func (ts *txStore) SeriesOverlapping(ctx context.Context, color stock.ColorID, first, last int64, statuses ...stock.SeriesStatus) ([]stock.Series, error) {
	return seriesOverlapping(ctx, ts.tx, color, first, last, statuses...)
}

func (ts *txStore) AdjacentBefore(ctx context.Context, station stock.StationID, color stock.ColorID, first int64) (*stock.Series, error) {
	return adjacentSeries(ctx, ts.tx, station, color, "last_number = ?", first-1)
}

func (ts *txStore) AdjacentAfter(ctx context.Context, station stock.StationID, color stock.ColorID, last int64) (*stock.Series, error) {
	return adjacentSeries(ctx, ts.tx, station, color, "first_number = ?", last+1)
}

func (ts *txStore) StationSeries(ctx context.Context, station stock.StationID, status stock.SeriesStatus) ([]stock.Series, error) {
	return stationSeries(ctx, ts.tx, station, status)
}

func (ts *txStore) InsertEntry(ctx context.Context, e stock.LedgerEntry) (stock.LedgerEntry, error) {
	return insertEntry(ctx, ts.tx, e)
}

func (ts *txStore) EntriesByStation(ctx context.Context, station stock.StationID) ([]stock.LedgerEntry, error) {
	return entriesByStation(ctx, ts.tx, station)
}

func (ts *txStore) EntriesByReference(ctx context.Context, reference string) ([]stock.LedgerEntry, error) {
	return entriesByReference(ctx, ts.tx, reference)
}

func (ts *txStore) LatestEntryBefore(ctx context.Context, station stock.StationID, cutoff time.Time) (*stock.LedgerEntry, error) {
	return latestEntryBefore(ctx, ts.tx, station, cutoff)
}

func (ts *txStore) UpdateEntryBalances(ctx context.Context, id stock.EntryID, before, after decimal.Decimal) error {
	return updateEntryBalances(ctx, ts.tx, id, before, after)
}

func (ts *txStore) Balance(ctx context.Context, station stock.StationID) (*stock.Balance, error) {
	return readBalance(ctx, ts.tx, station)
}

func (ts *txStore) SaveBalance(ctx context.Context, b stock.Balance) error {
	return saveBalance(ctx, ts.tx, b)
}

func (ts *txStore) NextSequence(ctx context.Context, category stock.Category, day string) (int64, error) {
	return nextSequence(ctx, ts.tx, category, day)
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"series", "ledger_entries", "balances", "ref_sequences", "stations", "snapshots", "daily_revenues"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
