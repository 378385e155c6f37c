/*
stations.go - Station directory persistence

Implements stock.StationDirectory plus the CRUD the admin API needs. The
directory is authoritative for which stations exist and who staffs them;
movement validation and notification fan-out both read it.
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tollgate/stock-engine/stock"
)

var _ stock.StationDirectory = (*Store)(nil)

// SaveStation upserts a station record.
func (s *Store) SaveStation(ctx context.Context, st stock.Station) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	staffJSON, _ := json.Marshal(st.Staff)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stations (id, name, active, staff_json, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			active = excluded.active,
			staff_json = excluded.staff_json`,
		st.ID, st.Name, st.Active, string(staffJSON),
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// Station returns the station or stock.ErrStationNotFound.
func (s *Store) Station(ctx context.Context, id stock.StationID) (*stock.Station, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		st        stock.Station
		staffJSON sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, active, staff_json FROM stations WHERE id = ?",
		id,
	).Scan(&st.ID, &st.Name, &st.Active, &staffJSON)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", stock.ErrStationNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	if staffJSON.Valid && staffJSON.String != "" {
		json.Unmarshal([]byte(staffJSON.String), &st.Staff)
	}
	return &st, nil
}

// Stations returns all stations ordered by name.
func (s *Store) Stations(ctx context.Context) ([]stock.Station, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryStations(ctx, "SELECT id, name, active, staff_json FROM stations ORDER BY name ASC")
}

// ActiveStations returns the stations eligible for movements and snapshots.
func (s *Store) ActiveStations(ctx context.Context) ([]stock.Station, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryStations(ctx, "SELECT id, name, active, staff_json FROM stations WHERE active = TRUE ORDER BY name ASC")
}

func (s *Store) queryStations(ctx context.Context, query string, args ...any) ([]stock.Station, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []stock.Station
	for rows.Next() {
		var (
			st        stock.Station
			staffJSON sql.NullString
		)
		if err := rows.Scan(&st.ID, &st.Name, &st.Active, &staffJSON); err != nil {
			return nil, err
		}
		if staffJSON.Valid && staffJSON.String != "" {
			json.Unmarshal([]byte(staffJSON.String), &st.Staff)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
