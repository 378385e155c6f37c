/*
handlers.go - HTTP API handlers for the ticket stock engine

PURPOSE:
  Exposes the stock engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Stations:
    GET    /api/stations                    List stations
    POST   /api/stations                    Create or update a station
    GET    /api/stations/{id}               Station details
    GET    /api/stations/{id}/balance       Current or dated balance
    GET    /api/stations/{id}/series        In-stock series
    GET    /api/stations/{id}/ledger        Movement history (JSON or CSV)
    GET    /api/stations/{id}/snapshot      Daily indicator snapshot
    GET    /api/stations/{id}/snapshot/diff Compare two snapshot days

  Movements:
    POST   /api/transfers                   Execute a transfer
    POST   /api/transfers/validate          Dry-run a transfer
    GET    /api/transfers/{reference}       Entries of one transfer
    POST   /api/supplies                    Record a printer supply
    POST   /api/revenues                    Declare daily revenue

  Admin:
    POST   /api/admin/snapshots/backfill    Rebuild snapshots over a range
    POST   /api/admin/stations/{id}/rebuild Replay and repair one ledger

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Station or transfer not found
  - 409: Range unavailable, insufficient balance
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/tollgate/stock-engine/snapshot"
	"github.com/tollgate/stock-engine/stock"
	"github.com/tollgate/stock-engine/store/sqlite"
)

const dateFormat = "2006-01-02"

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     *sqlite.Store
	Registry  *stock.Registry
	Ledger    *stock.Ledger
	Engine    *stock.Engine
	Snapshots *snapshot.Service
	Face      decimal.Decimal
	Log       *logrus.Logger
}

// =============================================================================
// STATION HANDLERS
// =============================================================================

// ListStations returns all stations.
func (h *Handler) ListStations(w http.ResponseWriter, r *http.Request) {
	stations, err := h.Store.Stations(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list stations", err)
		return
	}

	dtos := make([]StationDTO, len(stations))
	for i, st := range stations {
		dtos[i] = StationDTO{ID: string(st.ID), Name: st.Name, Active: st.Active, Staff: st.Staff}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetStation returns a single station.
func (h *Handler) GetStation(w http.ResponseWriter, r *http.Request) {
	id := stock.StationID(chi.URLParam(r, "id"))

	st, err := h.Store.Station(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get station", err)
		return
	}
	writeJSON(w, http.StatusOK, StationDTO{ID: string(st.ID), Name: st.Name, Active: st.Active, Staff: st.Staff})
}

// SaveStation creates or updates a station.
func (h *Handler) SaveStation(w http.ResponseWriter, r *http.Request) {
	var req SaveStationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	st := stock.Station{
		ID:     stock.StationID(req.ID),
		Name:   req.Name,
		Active: active,
		Staff:  req.Staff,
	}
	if err := h.Store.SaveStation(r.Context(), st); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save station", err)
		return
	}
	writeJSON(w, http.StatusCreated, StationDTO{ID: req.ID, Name: req.Name, Active: active, Staff: req.Staff})
}

// =============================================================================
// BALANCE HANDLERS
// =============================================================================

// GetBalance returns the station's current balance, or the balance at end
// of day for ?date=YYYY-MM-DD.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := stock.StationID(chi.URLParam(r, "id"))

	if _, err := h.Store.Station(ctx, id); err != nil {
		writeDomainError(w, "Failed to get station", err)
		return
	}

	if raw := r.URL.Query().Get("date"); raw != "" {
		date, err := time.Parse(dateFormat, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
			return
		}
		value, err := h.Ledger.BalanceAt(ctx, id, date)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to compute balance", err)
			return
		}
		writeJSON(w, http.StatusOK, BalanceDTO{
			Station: string(id),
			Value:   value.String(),
			Tickets: stock.TicketsFor(value, h.Face),
			AsOf:    raw,
		})
		return
	}

	bal, err := h.Ledger.CurrentBalance(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read balance", err)
		return
	}
	dto := BalanceDTO{
		Station: string(id),
		Value:   bal.Value.String(),
		Tickets: bal.Tickets(h.Face),
		AsOf:    time.Now().Format(dateFormat),
	}
	if !bal.UpdatedAt.IsZero() {
		dto.UpdatedAt = bal.UpdatedAt.Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// SERIES HANDLERS
// =============================================================================

// GetSeries returns the station's in-stock series.
func (h *Handler) GetSeries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := stock.StationID(chi.URLParam(r, "id"))

	if _, err := h.Store.Station(ctx, id); err != nil {
		writeDomainError(w, "Failed to get station", err)
		return
	}

	series, err := h.Registry.InStock(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list series", err)
		return
	}
	dtos := make([]SeriesDTO, len(series))
	for i, sr := range series {
		dtos[i] = toSeriesDTO(sr)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

// GetLedger returns the station's full movement history. With ?format=csv
// the response is a CSV export suitable for audit spreadsheets.
func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := stock.StationID(chi.URLParam(r, "id"))

	if _, err := h.Store.Station(ctx, id); err != nil {
		writeDomainError(w, "Failed to get station", err)
		return
	}

	entries, err := h.Ledger.Entries(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read ledger", err)
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		writeLedgerCSV(w, id, entries)
		return
	}

	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func writeLedgerCSV(w http.ResponseWriter, station stock.StationID, entries []stock.LedgerEntry) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="ledger-%s-%s.csv"`, station, time.Now().Format(dateFormat)))

	cw := csv.NewWriter(w)
	cw.Write([]string{
		"reference", "occurred_at", "direction", "category", "amount",
		"ticket_count", "balance_before", "balance_after", "counter_station",
		"actor", "comment", "cancelled",
	})
	for _, e := range entries {
		cw.Write([]string{
			e.Reference,
			e.OccurredAt.Format(time.RFC3339),
			string(e.Direction),
			string(e.Category),
			e.Amount.String(),
			strconv.FormatInt(e.TicketCount, 10),
			e.BalanceBefore.String(),
			e.BalanceAfter.String(),
			string(e.CounterStation),
			e.Actor,
			e.Comment,
			strconv.FormatBool(e.Cancelled),
		})
	}
	cw.Flush()
}

// =============================================================================
// TRANSFER HANDLERS
// =============================================================================

// CreateTransfer executes a transfer.
func (h *Handler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeTransfer(w, r)
	if !ok {
		return
	}

	result, err := h.Engine.Execute(r.Context(), req)
	if err != nil {
		writeDomainError(w, "Transfer failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// ValidateTransfer dry-runs a transfer without side effects.
func (h *Handler) ValidateTransfer(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeTransfer(w, r)
	if !ok {
		return
	}

	quote, err := h.Engine.Validate(r.Context(), req)
	if err != nil {
		writeDomainError(w, "Transfer would fail", err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// GetTransfer returns the paired entries of one transfer reference.
func (h *Handler) GetTransfer(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")

	entries, err := h.Ledger.EntriesByReference(r.Context(), reference)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to look up transfer", err)
		return
	}
	if len(entries) == 0 {
		writeError(w, http.StatusNotFound, "Transfer not found", nil)
		return
	}

	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func decodeTransfer(w http.ResponseWriter, r *http.Request) (stock.TransferRequest, bool) {
	var dto TransferRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return stock.TransferRequest{}, false
	}
	if dto.From == "" || dto.To == "" || dto.Color == "" {
		writeError(w, http.StatusBadRequest, "from, to and color are required", nil)
		return stock.TransferRequest{}, false
	}
	return stock.TransferRequest{
		From:    stock.StationID(dto.From),
		To:      stock.StationID(dto.To),
		Color:   stock.ColorID(dto.Color),
		First:   dto.First,
		Last:    dto.Last,
		Actor:   dto.Actor,
		Comment: dto.Comment,
	}, true
}

// =============================================================================
// SUPPLY AND REVENUE HANDLERS
// =============================================================================

// CreateSupply records a new series from the printer.
func (h *Handler) CreateSupply(w http.ResponseWriter, r *http.Request) {
	var dto SupplyRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if dto.Station == "" || dto.Color == "" {
		writeError(w, http.StatusBadRequest, "station and color are required", nil)
		return
	}

	result, err := h.Engine.RecordSupply(r.Context(), stock.SupplyRequest{
		Station: stock.StationID(dto.Station),
		Color:   stock.ColorID(dto.Color),
		First:   dto.First,
		Last:    dto.Last,
		Actor:   dto.Actor,
		Comment: dto.Comment,
	})
	if err != nil {
		writeDomainError(w, "Supply failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// DeclareRevenue records one day's declared takings.
func (h *Handler) DeclareRevenue(w http.ResponseWriter, r *http.Request) {
	var dto DeclareRevenueRequest
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	day, err := time.Parse(dateFormat, dto.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}
	declared, err := decimal.NewFromString(dto.Declared)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid declared amount", err)
		return
	}
	rec := sqlite.DailyRevenue{
		Station:  stock.StationID(dto.Station),
		Day:      day,
		Declared: declared,
	}
	if dto.LossRate != nil {
		rate, err := decimal.NewFromString(*dto.LossRate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid loss rate", err)
			return
		}
		rec.LossRate = &rate
	}

	if _, err := h.Store.Station(r.Context(), rec.Station); err != nil {
		writeDomainError(w, "Failed to get station", err)
		return
	}
	if err := h.Store.SaveDailyRevenue(r.Context(), rec); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save revenue", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "recorded"})
}

// =============================================================================
// SNAPSHOT HANDLERS
// =============================================================================

// GetSnapshot returns (building if needed) the station's snapshot for
// ?date=YYYY-MM-DD, defaulting to today.
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := stock.StationID(chi.URLParam(r, "id"))

	if _, err := h.Store.Station(ctx, id); err != nil {
		writeDomainError(w, "Failed to get station", err)
		return
	}

	date := time.Now()
	if raw := r.URL.Query().Get("date"); raw != "" {
		var err error
		date, err = time.Parse(dateFormat, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
			return
		}
	}

	snap, err := h.Snapshots.GetOrBuild(ctx, id, date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to build snapshot", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// DiffSnapshots compares the station's snapshots for ?from= and ?to=.
func (h *Handler) DiffSnapshots(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := stock.StationID(chi.URLParam(r, "id"))

	if _, err := h.Store.Station(ctx, id); err != nil {
		writeDomainError(w, "Failed to get station", err)
		return
	}

	from, err := time.Parse(dateFormat, r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from date (use YYYY-MM-DD)", err)
		return
	}
	to, err := time.Parse(dateFormat, r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to date (use YYYY-MM-DD)", err)
		return
	}

	initial, err := h.Snapshots.GetOrBuild(ctx, id, from)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to build initial snapshot", err)
		return
	}
	current, err := h.Snapshots.GetOrBuild(ctx, id, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to build current snapshot", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"initial": initial,
		"current": current,
		"diff":    snapshot.Diff(current, initial),
	})
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// BackfillSnapshots rebuilds snapshots for a date range.
func (h *Handler) BackfillSnapshots(w http.ResponseWriter, r *http.Request) {
	var dto BackfillRequest
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	from, err := time.Parse(dateFormat, dto.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from date (use YYYY-MM-DD)", err)
		return
	}
	to, err := time.Parse(dateFormat, dto.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to date (use YYYY-MM-DD)", err)
		return
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "to must not precede from", nil)
		return
	}

	var stations []stock.StationID
	for _, id := range dto.Stations {
		stations = append(stations, stock.StationID(id))
	}

	report, err := h.Snapshots.BuildRange(r.Context(), from, to, stations)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Backfill failed", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// RebuildLedger replays one station's ledger and repairs its balances.
func (h *Handler) RebuildLedger(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := stock.StationID(chi.URLParam(r, "id"))

	if _, err := h.Store.Station(ctx, id); err != nil {
		writeDomainError(w, "Failed to get station", err)
		return
	}

	report, err := h.Ledger.Rebuild(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Rebuild failed", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain errors onto HTTP statuses. Contested
// ranges and integrity violations are conflicts; the rest of the client
// error class is a plain bad request.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case stock.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, stock.ErrRangeUnavailable), stock.IsFatal(err):
		writeError(w, http.StatusConflict, message, err)
	case stock.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
