package listing_api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/charleschow/listing-sniper/internal/config"
	"github.com/charleschow/listing-sniper/internal/core/schedule"
	"github.com/charleschow/listing-sniper/internal/core/tracking"
	"github.com/charleschow/listing-sniper/internal/core/trading"
	"github.com/charleschow/listing-sniper/internal/telemetry"
)

const maxBodyBytes = 64 << 10

// Scheduler is the part of *schedule.Scheduler the API drives.
type Scheduler interface {
	Add(intent trading.TradeIntent) (schedule.Listing, error)
	Remove(id string) error
	List() ([]schedule.Listing, error)
}

type RunLister interface {
	Recent(limit int) ([]tracking.RunRecord, error)
}

var (
	_ Scheduler = (*schedule.Scheduler)(nil)
	_ RunLister = (*tracking.Store)(nil)
)

// Handler serves the listing API.
//
// Routes:
//
//	POST   /listings       -> schedule a listing (body: trade intent JSON)
//	GET    /listings       -> all listings, credentials redacted
//	DELETE /listings/{id}  -> cancel a pending listing
//	GET    /runs?limit=N   -> recent finished runs
//	GET    /health         -> 200 OK
//	GET    /metrics        -> Prometheus
type Handler struct {
	scheduler        Scheduler
	runs             RunLister
	defaultProfitPct decimal.Decimal

	// The store has a single connection; polling dashboards share reads.
	runsGroup singleflight.Group
}

func NewHandler(s Scheduler, runs RunLister, defaultProfitPct decimal.Decimal) *Handler {
	return &Handler{scheduler: s, runs: runs, defaultProfitPct: defaultProfitPct}
}

// RegisterRoutes wires HTTP routes onto the provided mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /listings", h.addListing)
	mux.HandleFunc("GET /listings", h.listListings)
	mux.HandleFunc("DELETE /listings/{id}", h.removeListing)
	mux.HandleFunc("GET /runs", h.recentRuns)
	mux.HandleFunc("GET /health", h.healthCheck)
	mux.Handle("GET /metrics", telemetry.Handler())
}

// Routes returns the API with permissive CORS so a local dashboard can
// call it from the browser.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(mux)
}

func (h *Handler) addListing(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}

	intent, err := config.ParseTradeIntent(body, h.defaultProfitPct)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	l, err := h.scheduler.Add(intent)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	telemetry.Infof("listing_api: scheduled %s %s opens %s", l.ID, l.Intent.Symbol, l.Intent.ListingTime.Format("2006-01-02 15:04:05Z07:00"))
	writeJSON(w, http.StatusCreated, l.View())
}

func (h *Handler) listListings(w http.ResponseWriter, _ *http.Request) {
	listings, err := h.scheduler.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	views := make([]schedule.View, 0, len(listings))
	for _, l := range listings {
		views = append(views, l.View())
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) removeListing(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.scheduler.Remove(id); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) recentRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = min(n, 500)
	}
	v, err, _ := h.runsGroup.Do(strconv.Itoa(limit), func() (any, error) {
		return h.runs.Recent(limit)
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	runs, _ := v.([]tracking.RunRecord)
	if runs == nil {
		runs = []tracking.RunRecord{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *Handler) healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok","adapter":"listing_api"}`))
}

func statusFor(err error) int {
	var cfgErr *trading.ConfigurationError
	switch {
	case errors.As(err, &cfgErr):
		return http.StatusBadRequest
	case errors.Is(err, schedule.ErrTooLate):
		return http.StatusUnprocessableEntity
	case errors.Is(err, schedule.ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		telemetry.Warnf("listing_api: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		telemetry.Errorf("listing_api: %v", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
