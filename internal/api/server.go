// Package api serves the race-state read interface over HTTP. Every handler
// loads the latest published snapshot and never touches the live aggregate.
package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/pitwall/internal/httputil"
	"github.com/banshee-data/pitwall/internal/monitoring"
	"github.com/banshee-data/pitwall/internal/telemetry/racestate"
	"github.com/banshee-data/pitwall/internal/telemetry/standings"
	"github.com/banshee-data/pitwall/internal/telemetry/trackmap"
	"github.com/banshee-data/pitwall/internal/timeutil"
	"github.com/banshee-data/pitwall/internal/units"
	"github.com/banshee-data/pitwall/internal/version"
)

var logf = monitoring.Component("http")

// ANSI escape codes for request logging.
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

// Config configures a Server.
type Config struct {
	Store      racestate.Reader
	Clock      timeutil.Clock
	StaleAfter time.Duration
	// Width, Height and Padding are the track-map defaults when a request
	// does not give its own.
	Width      int
	Height     int
	Padding    float64
	SpeedUnits string
}

// Server answers read-only queries against published snapshots.
type Server struct {
	store      racestate.Reader
	clock      timeutil.Clock
	staleAfter time.Duration
	width      int
	height     int
	padding    float64
	units      string
}

// NewServer creates a server with defaults filled in.
func NewServer(cfg Config) *Server {
	s := &Server{
		store:      cfg.Store,
		clock:      cfg.Clock,
		staleAfter: cfg.StaleAfter,
		width:      cfg.Width,
		height:     cfg.Height,
		padding:    cfg.Padding,
		units:      cfg.SpeedUnits,
	}
	if s.clock == nil {
		s.clock = timeutil.RealClock{}
	}
	if s.staleAfter <= 0 {
		s.staleAfter = 2 * time.Second
	}
	if s.width <= 0 {
		s.width = 1280
	}
	if s.height <= 0 {
		s.height = 720
	}
	if !units.IsValid(s.units) {
		s.units = units.KPH
	}
	return s
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		logf("[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the public routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.getOnly(s.handleHealth))
	mux.HandleFunc("/api/state", s.getOnly(s.handleState))
	mux.HandleFunc("/api/standings", s.getOnly(s.handleStandings))
	mux.HandleFunc("/api/telemetry", s.getOnly(s.handleTelemetry))
	mux.HandleFunc("/api/engineer", s.getOnly(s.handleEngineer))
	mux.HandleFunc("/api/health", s.getOnly(s.handlePacketHealth))
	mux.HandleFunc("/api/trackmap", s.getOnly(s.handleTrackMap))
	mux.HandleFunc("/api/cars/{index}", s.getOnly(s.handleCar))
	return mux
}

func (s *Server) getOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			httputil.MethodNotAllowed(w)
			return
		}
		h(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Load()
	httputil.WriteJSONOK(w, map[string]interface{}{
		"status":     "ok",
		"session_id": snap.SessionID,
		"sequence":   snap.Sequence,
		"version":    version.String(),
	})
}

type stateResponse struct {
	SessionID   string                    `json:"session_id"`
	Sequence    uint64                    `json:"sequence"`
	PublishedAt time.Time                 `json:"published_at"`
	PlayerIndex *int                      `json:"player_index"`
	Player      racestate.PlayerTelemetry `json:"player"`
	Cars        []racestate.CarState      `json:"cars"`
	Standings   []standingRow             `json:"standings"`
	Track       trackSummary              `json:"track"`
	Health      []racestate.HealthEntry   `json:"health"`
}

type trackSummary struct {
	Samples int             `json:"samples"`
	Bounds  trackmap.Bounds `json:"bounds"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Load()
	resp := stateResponse{
		SessionID:   snap.SessionID,
		Sequence:    snap.Sequence,
		PublishedAt: snap.PublishedAt,
		Player:      snap.Player,
		Cars:        snap.SeenCars(),
		Standings:   standingRows(snap),
		Track:       trackSummary{Samples: len(snap.Track.Samples), Bounds: snap.Track.Bounds},
		Health:      snap.Health.Entries(s.clock.Now(), s.staleAfter),
	}
	if snap.HasPlayer() {
		idx := snap.PlayerIndex
		resp.PlayerIndex = &idx
	}
	httputil.WriteJSONOK(w, resp)
}

type standingRow struct {
	standings.Entry
	Name     string `json:"name"`
	TeamID   int    `json:"team_id"`
	GapText  string `json:"gap_text"`
	IsPlayer bool   `json:"is_player"`
}

func standingRows(snap *racestate.Snapshot) []standingRow {
	entries := snap.Standings()
	rows := make([]standingRow, len(entries))
	for i, e := range entries {
		car := snap.Cars[e.CarIndex]
		rows[i] = standingRow{
			Entry:    e,
			Name:     car.Name,
			TeamID:   car.TeamID,
			GapText:  standings.FormatGap(e),
			IsPlayer: e.CarIndex == snap.PlayerIndex,
		}
	}
	return rows
}

func (s *Server) handleStandings(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, standingRows(s.store.Load()))
}

type telemetryResponse struct {
	racestate.PlayerTelemetry
	Speed      float64 `json:"speed"`
	SpeedUnits string  `json:"speed_units"`
	HasPlayer  bool    `json:"has_player"`
}

func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Load()
	httputil.WriteJSONOK(w, telemetryResponse{
		PlayerTelemetry: snap.Player,
		Speed:           units.FromKPH(float64(snap.Player.SpeedKPH), s.units),
		SpeedUnits:      s.units,
		HasPlayer:       snap.HasPlayer(),
	})
}

func (s *Server) handleEngineer(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, s.store.Load().Engineer())
}

func (s *Server) handlePacketHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Load()
	httputil.WriteJSONOK(w, snap.Health.Entries(s.clock.Now(), s.staleAfter))
}

type trackMapResponse struct {
	Rect          trackmap.Rect     `json:"rect"`
	Padding       float64           `json:"padding"`
	Bounds        trackmap.Bounds   `json:"bounds"`
	Samples       []trackmap.Sample `json:"samples"`
	Points        []trackmap.Point  `json:"points"`
	SectorMarkers []int             `json:"sector_markers"`
	Cars          []carPoint        `json:"cars"`
}

type carPoint struct {
	Index    int            `json:"index"`
	Name     string         `json:"name"`
	IsPlayer bool           `json:"is_player"`
	Point    trackmap.Point `json:"point"`
}

// handleTrackMap projects the raw samples with the bounds of this snapshot.
// Projections are never cached because the bounds may widen.
func (s *Server) handleTrackMap(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	width, err := intParam(q.Get("w"), s.width)
	if err != nil || width <= 0 {
		httputil.BadRequest(w, "w must be a positive integer")
		return
	}
	height, err := intParam(q.Get("h"), s.height)
	if err != nil || height <= 0 {
		httputil.BadRequest(w, "h must be a positive integer")
		return
	}
	padding := s.padding
	if v := q.Get("pad"); v != "" {
		padding, err = strconv.ParseFloat(v, 64)
		if err != nil || !(padding >= 0 && padding <= trackmap.MaxPadding) {
			httputil.BadRequest(w, fmt.Sprintf("pad must be a number in [0, %g]", trackmap.MaxPadding))
			return
		}
	}

	snap := s.store.Load()
	rect := trackmap.Rect{W: float64(width), H: float64(height)}
	resp := trackMapResponse{
		Rect:          rect,
		Padding:       padding,
		Bounds:        snap.Track.Bounds,
		Samples:       snap.Track.Samples,
		Points:        snap.Track.ProjectAll(rect, padding),
		SectorMarkers: snap.Track.SectorMarkers(),
	}
	if resp.Samples == nil {
		resp.Samples = []trackmap.Sample{}
	}
	for _, c := range snap.SeenCars() {
		resp.Cars = append(resp.Cars, carPoint{
			Index:    c.Index,
			Name:     c.Name,
			IsPlayer: c.Index == snap.PlayerIndex,
			Point:    trackmap.Project(snap.Track.Bounds, c.X, c.Z, rect, padding),
		})
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) handleCar(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(r.PathValue("index"))
	if err != nil || idx < 0 || idx >= racestate.NumCars {
		httputil.BadRequest(w, "car index must be between 0 and 21")
		return
	}
	car := s.store.Load().Cars[idx]
	if !car.Seen {
		httputil.NotFound(w, "car has not appeared in a motion packet")
		return
	}
	httputil.WriteJSONOK(w, car)
}

func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
