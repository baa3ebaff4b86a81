package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/meteolab/meteod/internal/geocode"
	"github.com/meteolab/meteod/internal/metrics"
	"github.com/meteolab/meteod/internal/resolver"
	"github.com/meteolab/meteod/internal/scheduler"
	"github.com/meteolab/meteod/internal/store"
)

// Geocoder fills in the missing half of a location admin request:
// coordinates from a name, or a name from coordinates.
type Geocoder interface {
	Forward(ctx context.Context, name string) (geocode.Point, string, error)
	Reverse(ctx context.Context, lat, lon float64) (string, error)
}

// Config wires the control surface to the daemon's components.
// APIToken, when set, guards mutating routes with a bearer token.
type Config struct {
	Store     store.Store
	Scheduler *scheduler.Scheduler
	Resolver  *resolver.Resolver
	Geocoder  Geocoder
	BasePath  string
	APIToken  string
	Metrics   bool
}

// Router provides the embeddable HTTP control surface.
// Endpoints (relative to basePath):
//
//	GET    /status              scheduler snapshot
//	POST   /scheduler/pause     stop future fires
//	POST   /scheduler/resume    schedule anew
//	POST   /collect             trigger one collection pass now
//	GET    /settings            read the settings row
//	PUT    /settings            partial update, reconciles the scheduler
//	GET    /live                resolve every location
//	GET    /live/:name          resolve one location
//	GET    /locations           list locations
//	POST   /locations           add/upsert, geocoding the missing half
//	DELETE /locations/:id       delete by id
//	GET    /history             raw rows or per-location min/max extremes
//	GET    /healthz             liveness + store ping
//	GET    /metrics             prometheus (when enabled)
type Router struct {
	cfg Config
}

func NewRouter(cfg Config) *Router {
	cfg.BasePath = sanitizeBase(cfg.BasePath)
	return &Router{cfg: cfg}
}

// Handler returns an http.Handler powered by gin that can be mounted in
// any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.cfg.BasePath)

	group.GET("/status", r.handleStatus)
	group.GET("/settings", r.handleGetSettings)
	group.GET("/live", r.handleLive)
	group.GET("/live/:name", r.handleLiveOne)
	group.GET("/locations", r.handleListLocations)
	group.GET("/history", r.handleHistory)
	group.GET("/healthz", r.handleHealthz)
	if r.cfg.Metrics {
		group.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	mutating := group.Group("", r.authRequired())
	mutating.POST("/scheduler/pause", r.handleToggle("pause"))
	mutating.POST("/scheduler/resume", r.handleToggle("resume"))
	mutating.POST("/collect", r.handleCollect)
	mutating.PUT("/settings", r.handlePutSettings)
	mutating.POST("/locations", r.handleAddLocation)
	mutating.DELETE("/locations/:id", r.handleDeleteLocation)

	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// Shut it down via http.Server's Shutdown or Close.
func NewServer(addr string, cfg Config) *http.Server {
	r := NewRouter(cfg)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}

// authRequired rejects mutating requests without the configured bearer
// token. With no token configured it passes everything through.
func (r *Router) authRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if r.cfg.APIToken == "" {
			return
		}
		if c.GetHeader("Authorization") != "Bearer "+r.cfg.APIToken {
			writeJSON(c, http.StatusUnauthorized, errorResp{Error: "invalid or missing api token"})
			c.Abort()
		}
	}
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.cfg.Scheduler.Status())
}

func (r *Router) handleToggle(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := r.cfg.Scheduler.Toggle(action); err != nil {
			writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
			return
		}
		writeJSON(c, http.StatusOK, r.cfg.Scheduler.Status())
	}
}

type collectResp struct {
	OK bool `json:"ok"`
	// Started is false when a pass was already in flight and the
	// trigger was skipped.
	Started bool `json:"started"`
}

func (r *Router) handleCollect(c *gin.Context) {
	started := r.cfg.Scheduler.TriggerNow()
	writeJSON(c, http.StatusOK, collectResp{OK: true, Started: started})
}

func (r *Router) handleGetSettings(c *gin.Context) {
	settings, err := r.cfg.Store.ReadSettings(c.Request.Context())
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, settings)
}

type settingsUpdate struct {
	IntervalMinutes  *int `json:"interval_minutes"`
	RefreshSeconds   *int `json:"refresh_seconds"`
	FreshnessMinutes *int `json:"freshness_minutes"`
}

func (r *Router) handlePutSettings(c *gin.Context) {
	var upd settingsUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}

	ctx := c.Request.Context()
	settings, err := r.cfg.Store.ReadSettings(ctx)
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}

	// Partial update: absent fields keep their current values.
	if upd.IntervalMinutes != nil {
		settings.IntervalMinutes = *upd.IntervalMinutes
	}
	if upd.RefreshSeconds != nil {
		settings.RefreshSeconds = *upd.RefreshSeconds
	}
	if upd.FreshnessMinutes != nil {
		settings.FreshnessMinutes = *upd.FreshnessMinutes
	}

	saved, err := r.cfg.Store.WriteSettings(ctx, settings)
	if err != nil {
		// Validation failures leave the stored row untouched.
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}

	if err := r.cfg.Scheduler.Configure(saved.IntervalMinutes); err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, saved)
}

type liveEntry struct {
	Location        string     `json:"location"`
	Temperature     float64    `json:"temperature"`
	Humidity        int        `json:"humidity"`
	AQI             int        `json:"aqi"`
	RainProbability int        `json:"rain_probability"`
	RainMM          float64    `json:"rain_mm"`
	CreatedAt       *time.Time `json:"created_at"`
	Source          string     `json:"source,omitempty"`
	Stale           bool       `json:"stale,omitempty"`
	Error           string     `json:"error,omitempty"`
}

func newLiveEntry(location string, res resolver.Result, err error) liveEntry {
	if err != nil {
		return liveEntry{Location: location, Error: err.Error()}
	}
	m := res.Measurement
	created := m.CreatedAt
	return liveEntry{
		Location:        location,
		Temperature:     m.Temperature,
		Humidity:        m.Humidity,
		AQI:             m.AQI,
		RainProbability: m.RainProbability,
		RainMM:          m.RainMM,
		CreatedAt:       &created,
		Source:          res.Source,
		Stale:           res.Stale,
	}
}

func (r *Router) handleLive(c *gin.Context) {
	results, err := r.cfg.Resolver.ResolveAll(c.Request.Context())
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	feed := make([]liveEntry, 0, len(results))
	for _, lr := range results {
		feed = append(feed, newLiveEntry(lr.Location, lr.Result, lr.Err))
	}
	writeJSON(c, http.StatusOK, feed)
}

func (r *Router) handleLiveOne(c *gin.Context) {
	name := c.Param("name")
	res, err := r.cfg.Resolver.Resolve(c.Request.Context(), name)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(c, http.StatusNotFound, errorResp{Error: err.Error()})
	case errors.Is(err, store.ErrNoCoordinates):
		writeJSON(c, http.StatusUnprocessableEntity, errorResp{Error: err.Error()})
	case err != nil:
		writeJSON(c, http.StatusBadGateway, errorResp{Error: err.Error()})
	default:
		writeJSON(c, http.StatusOK, newLiveEntry(name, res, nil))
	}
}

func (r *Router) handleListLocations(c *gin.Context) {
	locs, err := r.cfg.Store.ListLocations(c.Request.Context())
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, locs)
}

type locationReq struct {
	Name string   `json:"name"`
	Lat  *float64 `json:"lat"`
	Lon  *float64 `json:"lon"`
}

// handleAddLocation upserts a location, geocoding whichever half of the
// request is missing: a bare name gains coordinates via forward lookup, a
// bare coordinate pair gains a name via reverse lookup.
func (r *Router) handleAddLocation(c *gin.Context) {
	var req locationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}

	ctx := c.Request.Context()
	hasCoords := req.Lat != nil && req.Lon != nil
	switch {
	case req.Name != "" && hasCoords:
		// Complete request, nothing to geocode.
	case req.Name != "":
		point, _, err := r.cfg.Geocoder.Forward(ctx, req.Name)
		if err != nil {
			writeJSON(c, geocodeStatus(err), errorResp{Error: err.Error()})
			return
		}
		req.Lat, req.Lon = &point.Lat, &point.Lon
	case hasCoords:
		name, err := r.cfg.Geocoder.Reverse(ctx, *req.Lat, *req.Lon)
		if err != nil {
			writeJSON(c, geocodeStatus(err), errorResp{Error: err.Error()})
			return
		}
		req.Name = name
	default:
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "name or coordinates required"})
		return
	}

	loc, err := r.cfg.Store.UpsertLocation(ctx, store.Location{Name: req.Name, Lat: req.Lat, Lon: req.Lon})
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, loc)
}

func geocodeStatus(err error) int {
	if errors.Is(err, geocode.ErrNoMatch) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadGateway
}

func (r *Router) handleDeleteLocation(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid location id"})
		return
	}
	if err := r.cfg.Store.DeleteLocation(c.Request.Context(), id); err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

const (
	defaultHistoryHours = 24
	maxHistoryHours     = 24 * 365
)

// handleHistory returns raw measurement rows for the last N hours, or,
// with metric set, the per-location MIN/MAX of that metric.
func (r *Router) handleHistory(c *gin.Context) {
	location := c.Query("location")
	hours := defaultHistoryHours
	if hs := c.Query("hours"); hs != "" {
		h, err := strconv.Atoi(hs)
		if err != nil || h < 1 || h > maxHistoryHours {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "hours must be an integer between 1 and " + strconv.Itoa(maxHistoryHours)})
			return
		}
		hours = h
	}

	ctx := c.Request.Context()
	to := time.Now().UTC()
	from := to.Add(-time.Duration(hours) * time.Hour)

	if metric := c.Query("metric"); metric != "" {
		if _, ok := store.MetricColumn(metric); !ok {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "unknown metric " + metric})
			return
		}
		extremes, err := r.cfg.Store.MetricExtremes(ctx, location, metric, from, to)
		if err != nil {
			writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
			return
		}
		writeJSON(c, http.StatusOK, extremes)
		return
	}

	rows, err := r.cfg.Store.MeasurementsBetween(ctx, location, from, to)
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, rows)
}

func (r *Router) handleHealthz(c *gin.Context) {
	if err := r.cfg.Store.Ping(c.Request.Context()); err != nil {
		writeJSON(c, http.StatusServiceUnavailable, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}
