// Package api serves the read-only JSON view of the outage database.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/wanops/outagewatch/internal/cache"
	"github.com/wanops/outagewatch/internal/classify"
	"github.com/wanops/outagewatch/internal/outage"
	"github.com/wanops/outagewatch/internal/server"
)

// Query window bounds, in hours.
const (
	defaultHistoryHours = 168
	defaultRecentHours  = 24
	maxHours            = 24 * 90
)

// Options tunes the read API.
type Options struct {
	// Report is the property-wide threshold applied by the read endpoints.
	Report   classify.Threshold
	CacheTTL time.Duration
}

// Handler serves /api/v1 read endpoints.
type Handler struct {
	store      *outage.Store
	classifier *classify.Classifier
	analyses   *cache.Memo[*classify.Analysis]
	clock      clockwork.Clock
	logger     *zap.Logger
	report     classify.Threshold
}

// Compile-time interface guard.
var _ server.SimpleRouteRegistrar = (*Handler)(nil)

// NewHandler returns a Handler over st.
func NewHandler(st *outage.Store, clock clockwork.Clock, logger *zap.Logger, opts Options) *Handler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Report.Fraction == 0 {
		opts.Report = classify.Reporting
	}
	return &Handler{
		store:      st,
		classifier: classify.New(st, clock, nil, logger),
		analyses:   cache.New[*classify.Analysis](opts.CacheTTL, clock),
		clock:      clock,
		logger:     logger,
		report:     opts.Report,
	}
}

// RegisterRoutes mounts the read endpoints on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/stats", h.handleStats)
	mux.HandleFunc("GET /api/v1/properties", h.handleProperties)
	mux.HandleFunc("GET /api/v1/properties/{id}", h.handleProperty)
	mux.HandleFunc("GET /api/v1/properties/{id}/hourly", h.handlePropertyHourly)
	mux.HandleFunc("GET /api/v1/properties/{id}/networks", h.handlePropertyNetworks)
	mux.HandleFunc("GET /api/v1/properties/{id}/ongoing", h.handlePropertyOngoing)
	mux.HandleFunc("GET /api/v1/networks/{id}/hourly", h.handleNetworkHourly)
	mux.HandleFunc("GET /api/v1/networks/{id}/outages", h.handleNetworkOutages)
	mux.HandleFunc("GET /api/v1/ongoing", h.handleOngoing)
	mux.HandleFunc("GET /api/v1/ongoing/count", h.handleOngoingCount)
	mux.HandleFunc("GET /api/v1/property-wide", h.handlePropertyWide)
	mux.HandleFunc("GET /api/v1/analysis", h.handleAnalysis)
	mux.HandleFunc("GET /api/v1/speedtest", h.handleSpeedtest)
	mux.HandleFunc("GET /api/v1/equipment/shelves", h.handleShelves)
	mux.HandleFunc("GET /api/v1/equipment/routers", h.handleRouters)
	mux.HandleFunc("GET /api/v1/runs", h.handleRuns)
}

// PropertyDetail is a property with its equipment links.
type PropertyDetail struct {
	outage.Property
	Shelves []outage.ShelfLink  `json:"xpon_shelves"`
	Routers []outage.RouterLink `json:"routers"`
}

// OpenOutageView is an open outage with its age at response time.
type OpenOutageView struct {
	outage.OpenOutage
	HoursOpen float64 `json:"hours_open"`
}

// AnalysisResponse wraps a memoized analysis.
type AnalysisResponse struct {
	*classify.Analysis
	ComputedAt time.Time `json:"computed_at"`
	Cached     bool      `json:"cached"`
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		h.fail(w, r, "failed to load stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleProperties(w http.ResponseWriter, r *http.Request) {
	props, err := h.store.Properties(r.Context())
	if err != nil {
		h.fail(w, r, "failed to list properties", err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(props))
}

func (h *Handler) handleProperty(w http.ResponseWriter, r *http.Request) {
	p, ok := h.property(w, r)
	if !ok {
		return
	}
	shelves, routers, err := h.store.PropertyEquipment(r.Context(), p.ID)
	if err != nil {
		h.fail(w, r, "failed to load equipment", err)
		return
	}
	writeJSON(w, http.StatusOK, PropertyDetail{Property: p, Shelves: orEmpty(shelves), Routers: orEmpty(routers)})
}

func (h *Handler) handlePropertyHourly(w http.ResponseWriter, r *http.Request) {
	p, ok := h.property(w, r)
	if !ok {
		return
	}
	since, ok := h.since(w, r, defaultHistoryHours)
	if !ok {
		return
	}
	rows, err := h.store.PropertyHourly(r.Context(), p.ID, since)
	if err != nil {
		h.fail(w, r, "failed to load hourly outages", err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(rows))
}

func (h *Handler) handlePropertyNetworks(w http.ResponseWriter, r *http.Request) {
	p, ok := h.property(w, r)
	if !ok {
		return
	}
	nets, err := h.store.PropertyNetworks(r.Context(), p.ID)
	if err != nil {
		h.fail(w, r, "failed to list networks", err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(nets))
}

func (h *Handler) handlePropertyOngoing(w http.ResponseWriter, r *http.Request) {
	p, ok := h.property(w, r)
	if !ok {
		return
	}
	h.writeOpen(w, r, p.ID)
}

func (h *Handler) handleNetworkHourly(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	since, ok := h.since(w, r, defaultHistoryHours)
	if !ok {
		return
	}
	rows, err := h.store.NetworkHourly(r.Context(), id, since)
	if err != nil {
		h.fail(w, r, "failed to load hourly outages", err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(rows))
}

func (h *Handler) handleNetworkOutages(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	outs, err := h.store.Outages(r.Context(), id)
	if err != nil {
		h.fail(w, r, "failed to list outages", err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(outs))
}

func (h *Handler) handleOngoing(w http.ResponseWriter, r *http.Request) {
	h.writeOpen(w, r, 0)
}

func (h *Handler) handleOngoingCount(w http.ResponseWriter, r *http.Request) {
	open, err := h.store.ListOpen(r.Context(), 0)
	if err != nil {
		h.fail(w, r, "failed to count ongoing outages", err)
		return
	}
	props := make(map[int64]bool)
	for _, o := range open {
		props[o.PropertyID] = true
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"ongoing_outages":     len(open),
		"affected_properties": len(props),
	})
}

func (h *Handler) writeOpen(w http.ResponseWriter, r *http.Request, propertyID int64) {
	open, err := h.store.ListOpen(r.Context(), propertyID)
	if err != nil {
		h.fail(w, r, "failed to list ongoing outages", err)
		return
	}
	now := h.clock.Now()
	views := make([]OpenOutageView, 0, len(open))
	for _, o := range open {
		v := OpenOutageView{OpenOutage: o}
		if start, err := outage.ParseStamp(o.Start); err == nil {
			v.HoursOpen = roundHours(now.Sub(start))
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) handlePropertyWide(w http.ResponseWriter, r *http.Request) {
	alerts, ok := h.recentAlerts(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(alerts))
}

func (h *Handler) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	alerts, ok := h.recentAlerts(w, r)
	if !ok {
		return
	}
	entry, hit, err := h.analyses.Get(r.Context(), classify.DataHash(alerts), func(ctx context.Context) (*classify.Analysis, error) {
		return classify.Analyze(ctx, h.store, alerts)
	})
	if err != nil {
		h.fail(w, r, "failed to analyze outages", err)
		return
	}
	writeJSON(w, http.StatusOK, AnalysisResponse{Analysis: entry.Value, ComputedAt: entry.ComputedAt, Cached: hit})
}

func (h *Handler) recentAlerts(w http.ResponseWriter, r *http.Request) ([]classify.Alert, bool) {
	hours, ok := hoursParam(w, r, defaultRecentHours)
	if !ok {
		return nil, false
	}
	alerts, err := h.classifier.Recent(r.Context(), time.Duration(hours)*time.Hour, h.report)
	if err != nil {
		h.fail(w, r, "failed to classify outages", err)
		return nil, false
	}
	return alerts, true
}

func (h *Handler) handleSpeedtest(w http.ResponseWriter, r *http.Request) {
	rows, err := h.store.Speedtest(r.Context())
	if err != nil {
		h.fail(w, r, "failed to load speed tests", err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(rows))
}

func (h *Handler) handleShelves(w http.ResponseWriter, r *http.Request) {
	rows, err := h.store.Shelves(r.Context())
	if err != nil {
		h.fail(w, r, "failed to list shelves", err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(rows))
}

func (h *Handler) handleRouters(w http.ResponseWriter, r *http.Request) {
	rows, err := h.store.Routers(r.Context())
	if err != nil {
		h.fail(w, r, "failed to list routers", err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(rows))
}

func (h *Handler) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 500 {
			server.BadRequest(w, "limit must be between 1 and 500", r.URL.Path)
			return
		}
		limit = n
	}
	runs, err := h.store.RecentRuns(r.Context(), limit)
	if err != nil {
		h.fail(w, r, "failed to list runs", err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(runs))
}

// property resolves the {id} path value, writing 400 or 404 on failure.
func (h *Handler) property(w http.ResponseWriter, r *http.Request) (outage.Property, bool) {
	id, ok := pathID(w, r)
	if !ok {
		return outage.Property{}, false
	}
	p, err := h.store.Property(r.Context(), id)
	if errors.Is(err, outage.ErrNotFound) {
		server.NotFound(w, "property not found", r.URL.Path)
		return p, false
	}
	if err != nil {
		h.fail(w, r, "failed to load property", err)
		return p, false
	}
	return p, true
}

func (h *Handler) since(w http.ResponseWriter, r *http.Request, def int) (time.Time, bool) {
	hours, ok := hoursParam(w, r, def)
	if !ok {
		return time.Time{}, false
	}
	return h.clock.Now().Add(-time.Duration(hours) * time.Hour), true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, detail string, err error) {
	h.logger.Warn(detail,
		zap.String("path", r.URL.Path),
		zap.String("request_id", server.RequestID(r.Context())),
		zap.Error(err))
	server.InternalError(w, detail, r.URL.Path)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		server.BadRequest(w, "id must be a positive integer", r.URL.Path)
		return 0, false
	}
	return id, true
}

func hoursParam(w http.ResponseWriter, r *http.Request, def int) (int, bool) {
	s := r.URL.Query().Get("hours")
	if s == "" {
		return def, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > maxHours {
		server.BadRequest(w, "hours must be between 1 and "+strconv.Itoa(maxHours), r.URL.Path)
		return 0, false
	}
	return n, true
}

func roundHours(d time.Duration) float64 {
	return float64(d.Round(time.Minute)/time.Minute) / 60
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
