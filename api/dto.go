/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data
  carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/tollgate/stock-engine/stock"
)

// =============================================================================
// STATIONS
// =============================================================================

// StationDTO represents a station in API responses.
type StationDTO struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Active bool     `json:"active"`
	Staff  []string `json:"staff,omitempty"`
}

// SaveStationRequest creates or updates a station.
type SaveStationRequest struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Active *bool    `json:"active,omitempty"`
	Staff  []string `json:"staff,omitempty"`
}

// =============================================================================
// BALANCES
// =============================================================================

// BalanceDTO is a station's monetary stock at a point in time.
type BalanceDTO struct {
	Station   string `json:"station"`
	Value     string `json:"value"`
	Tickets   int64  `json:"tickets"`
	AsOf      string `json:"as_of"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// =============================================================================
// SERIES
// =============================================================================

// SeriesDTO represents one numbered series.
type SeriesDTO struct {
	ID          int64  `json:"id"`
	Station     string `json:"station"`
	Color       string `json:"color"`
	First       int64  `json:"first"`
	Last        int64  `json:"last"`
	TicketCount int64  `json:"ticket_count"`
	Value       string `json:"value"`
	Status      string `json:"status"`
	Origin      string `json:"origin"`
	ReceivedAt  string `json:"received_at"`
	Destination string `json:"destination,omitempty"`
}

func toSeriesDTO(sr stock.Series) SeriesDTO {
	return SeriesDTO{
		ID:          int64(sr.ID),
		Station:     string(sr.Station),
		Color:       string(sr.Color),
		First:       sr.First,
		Last:        sr.Last,
		TicketCount: sr.TicketCount,
		Value:       sr.Value.String(),
		Status:      string(sr.Status),
		Origin:      string(sr.Origin),
		ReceivedAt:  sr.ReceivedAt.Format(time.RFC3339),
		Destination: string(sr.Destination),
	}
}

// =============================================================================
// LEDGER
// =============================================================================

// EntryDTO represents one ledger entry.
type EntryDTO struct {
	ID             int64               `json:"id"`
	Station        string              `json:"station"`
	Direction      string              `json:"direction"`
	Category       string              `json:"category"`
	Amount         string              `json:"amount"`
	TicketCount    int64               `json:"ticket_count"`
	BalanceBefore  string              `json:"balance_before"`
	BalanceAfter   string              `json:"balance_after"`
	OccurredAt     string              `json:"occurred_at"`
	Actor          string              `json:"actor,omitempty"`
	Reference      string              `json:"reference,omitempty"`
	CounterStation string              `json:"counter_station,omitempty"`
	Detail         []stock.SeriesDetail `json:"detail,omitempty"`
	Comment        string              `json:"comment,omitempty"`
	Cancelled      bool                `json:"cancelled,omitempty"`
}

func toEntryDTO(e stock.LedgerEntry) EntryDTO {
	return EntryDTO{
		ID:             int64(e.ID),
		Station:        string(e.Station),
		Direction:      string(e.Direction),
		Category:       string(e.Category),
		Amount:         e.Amount.String(),
		TicketCount:    e.TicketCount,
		BalanceBefore:  e.BalanceBefore.String(),
		BalanceAfter:   e.BalanceAfter.String(),
		OccurredAt:     e.OccurredAt.Format(time.RFC3339),
		Actor:          e.Actor,
		Reference:      e.Reference,
		CounterStation: string(e.CounterStation),
		Detail:         e.Detail,
		Comment:        e.Comment,
		Cancelled:      e.Cancelled,
	}
}

// =============================================================================
// TRANSFERS AND SUPPLIES
// =============================================================================

// TransferRequestDTO is the body for POST /api/transfers and its validate
// sibling.
type TransferRequestDTO struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Color   string `json:"color"`
	First   int64  `json:"first"`
	Last    int64  `json:"last"`
	Actor   string `json:"actor,omitempty"`
	Comment string `json:"comment,omitempty"`
}

// SupplyRequestDTO is the body for POST /api/supplies.
type SupplyRequestDTO struct {
	Station string `json:"station"`
	Color   string `json:"color"`
	First   int64  `json:"first"`
	Last    int64  `json:"last"`
	Actor   string `json:"actor,omitempty"`
	Comment string `json:"comment,omitempty"`
}

// =============================================================================
// REVENUES
// =============================================================================

// DeclareRevenueRequest records one day's declared takings for a station.
type DeclareRevenueRequest struct {
	Station  string  `json:"station"`
	Date     string  `json:"date"`
	Declared string  `json:"declared"`
	LossRate *string `json:"loss_rate,omitempty"`
}

// =============================================================================
// ADMIN
// =============================================================================

// BackfillRequest is the body for POST /api/admin/snapshots/backfill.
type BackfillRequest struct {
	From     string   `json:"from"`
	To       string   `json:"to"`
	Stations []string `json:"stations,omitempty"`
}

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
