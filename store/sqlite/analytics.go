/*
analytics.go - Snapshot cache and revenue declarations

Implements snapshot.Store, snapshot.StationSource and snapshot.RevenueSource.
Snapshots are stored as one JSON payload per (station, day); the indicator
set evolves faster than the table schema should.
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tollgate/stock-engine/snapshot"
	"github.com/tollgate/stock-engine/stock"
)

var (
	_ snapshot.Store         = (*Store)(nil)
	_ snapshot.RevenueSource = (*Store)(nil)
	_ snapshot.StationSource = (*Store)(nil)
)

const dayFormat = "2006-01-02"

// =============================================================================
// SNAPSHOT STORE (snapshot.Store interface)
// =============================================================================

// Snapshot returns the stored snapshot for (station, day), or nil.
func (s *Store) Snapshot(ctx context.Context, station stock.StationID, date time.Time) (*snapshot.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var payload string
	err := s.db.QueryRowContext(ctx,
		"SELECT payload_json FROM snapshots WHERE station_id = ? AND day = ?",
		station, date.Format(dayFormat),
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var snap snapshot.Snapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s/%s: %w", station, date.Format(dayFormat), err)
	}
	return &snap, nil
}

// SaveSnapshot upserts by (station, day).
func (s *Store) SaveSnapshot(ctx context.Context, snap snapshot.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (station_id, day, payload_json, built_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(station_id, day) DO UPDATE SET
			payload_json = excluded.payload_json,
			built_at = excluded.built_at`,
		snap.Station, snap.Date.Format(dayFormat), string(payload),
		snap.BuiltAt.Format(time.RFC3339),
	)
	return err
}

// =============================================================================
// REVENUE SOURCE (snapshot.RevenueSource interface)
// =============================================================================

// DailyRevenue is one station's declared takings for one day. The loss
// rate (declared vs expected, a negative percentage) is optional: not
// every declaration includes one.
type DailyRevenue struct {
	Station  stock.StationID
	Day      time.Time
	Declared decimal.Decimal
	LossRate *decimal.Decimal
}

// SaveDailyRevenue upserts one declaration.
func (s *Store) SaveDailyRevenue(ctx context.Context, r DailyRevenue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var lossRate *string
	if r.LossRate != nil {
		v := r.LossRate.String()
		lossRate = &v
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_revenues (station_id, day, declared, loss_rate)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(station_id, day) DO UPDATE SET
			declared = excluded.declared,
			loss_rate = excluded.loss_rate`,
		r.Station, r.Day.Format(dayFormat), r.Declared.String(), lossRate,
	)
	return err
}

// LatestLossRate returns the most recent declared loss rate on or before
// the date, or nil if the station never declared one.
func (s *Store) LatestLossRate(ctx context.Context, station stock.StationID, date time.Time) (*decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var raw string
	err := s.db.QueryRowContext(ctx, `
		SELECT loss_rate FROM daily_revenues
		WHERE station_id = ? AND day <= ? AND loss_rate IS NOT NULL
		ORDER BY day DESC
		LIMIT 1`,
		station, date.Format(dayFormat),
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse loss rate %q: %w", raw, err)
	}
	return &rate, nil
}

// RevenueStats sums declared revenue over [from, to] and counts the days
// that had a declaration.
func (s *Store) RevenueStats(ctx context.Context, station stock.StationID, from, to time.Time) (decimal.Decimal, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT declared FROM daily_revenues
		WHERE station_id = ? AND day >= ? AND day <= ?`,
		station, from.Format(dayFormat), to.Format(dayFormat),
	)
	if err != nil {
		return decimal.Zero, 0, err
	}
	defer rows.Close()

	// Sum in Go: the column is decimal text, SQLite would sum it as float.
	total := decimal.Zero
	days := 0
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return decimal.Zero, 0, err
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, 0, fmt.Errorf("failed to parse declared revenue %q: %w", raw, err)
		}
		total = total.Add(v)
		days++
	}
	return total, days, rows.Err()
}
