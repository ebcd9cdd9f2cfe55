// Package api implements the dashboard's HTTP surface: recent crashes,
// exception-type groups, aggregate stats, and an on-demand symbolication
// endpoint. It is the only component that should ever see an inbound HTTP
// request; everything else in the pipeline is relay-driven.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/bugstr-dev/bugstr/internal/observability"
	"github.com/bugstr-dev/bugstr/internal/ratelimit"
	"github.com/bugstr-dev/bugstr/internal/store"
	"github.com/bugstr-dev/bugstr/internal/symbolicate"
)

const (
	recentCrashesLimit = 100
	groupsLimit        = 50
)

// Server holds the dependencies the HTTP handlers need. Symbolicator is nil
// when no mapping store was configured, in which case /api/symbolicate
// answers 503 rather than panicking.
type Server struct {
	Store        *store.Store
	Symbolicator *symbolicate.Symbolicator
	Logger       *observability.Logger
	Metrics      *observability.Metrics

	// SymbolicateLimiter bounds the rate of (CPU-heavy, regex-driven)
	// symbolication requests so a burst of dashboard traffic cannot starve
	// the relay-subscription tasks sharing the process.
	SymbolicateLimiter *ratelimit.TokenBucket

	// startedAt records process start for /api/health's uptime field; set
	// lazily on first Router() call so a zero-value Server still works.
	startedAt time.Time
}

// Router builds the mux.Router serving every handler in this package, plus
// the Prometheus metrics endpoint when Metrics is set.
func (s *Server) Router() *mux.Router {
	if s.startedAt.IsZero() {
		s.startedAt = time.Now()
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/crashes", s.handleListCrashes).Methods(http.MethodGet)
	r.HandleFunc("/api/crashes/{id}", s.handleGetCrash).Methods(http.MethodGet)
	r.HandleFunc("/api/groups", s.handleGroups).Methods(http.MethodGet)
	r.HandleFunc("/api/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/api/symbolicate", s.handleSymbolicate).Methods(http.MethodPost)
	r.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	if s.Metrics != nil {
		r.Handle("/metrics", s.Metrics.Handler())
	}
	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// crashView is the JSON shape a crash record is rendered as; field names are
// the dashboard's public contract, independent of the store's column names.
type crashView struct {
	ID            int64   `json:"id"`
	EventID       string  `json:"event_id"`
	SenderPubkey  string  `json:"sender_pubkey"`
	SentAt        *int64  `json:"sent_at,omitempty"`
	ReceivedAt    int64   `json:"received_at"`
	AppName       string  `json:"app_name"`
	AppVersion    string  `json:"app_version"`
	ExceptionType string  `json:"exception_type"`
	Message       string  `json:"message"`
	StackTrace    string  `json:"stack_trace"`
	Environment   string  `json:"environment"`
	Release       string  `json:"release"`
}

func toCrashView(c *store.Crash) crashView {
	v := crashView{
		ID:            c.ID,
		EventID:       c.EventID,
		SenderPubkey:  c.SenderPubkey,
		ReceivedAt:    c.ReceivedAt.Unix(),
		AppName:       c.AppName,
		AppVersion:    c.AppVersion,
		ExceptionType: c.ExceptionType,
		Message:       c.Message,
		StackTrace:    c.StackTrace,
		Environment:   c.Environment,
		Release:       c.Release,
	}
	if c.SentAt != nil {
		unix := c.SentAt.Unix()
		v.SentAt = &unix
	}
	return v
}

func (s *Server) handleListCrashes(w http.ResponseWriter, r *http.Request) {
	rows, err := s.Store.ListRecent(r.Context(), recentCrashesLimit)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Error(err, "list crashes failed")
		}
		writeError(w, http.StatusInternalServerError, "failed to list crashes")
		return
	}

	views := make([]crashView, 0, len(rows))
	for _, c := range rows {
		views = append(views, toCrashView(c))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetCrash(w http.ResponseWriter, r *http.Request) {
	idStr := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid crash id")
		return
	}

	c, err := s.Store.GetByID(r.Context(), id)
	if err == store.ErrNotFound {
		writeError(w, http.StatusNotFound, "crash not found")
		return
	}
	if err != nil {
		if s.Logger != nil {
			s.Logger.Error(err, "get crash failed")
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch crash")
		return
	}
	writeJSON(w, http.StatusOK, toCrashView(c))
}

type groupView struct {
	ExceptionType string `json:"exception_type"`
	Count         int    `json:"count"`
	FirstSeen     int64  `json:"first_seen"`
	LastSeen      int64  `json:"last_seen"`
	AppVersions   string `json:"app_versions"`
}

func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.Store.Groups(r.Context(), groupsLimit)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Error(err, "groups query failed")
		}
		writeError(w, http.StatusInternalServerError, "failed to list groups")
		return
	}

	views := make([]groupView, 0, len(groups))
	for _, g := range groups {
		views = append(views, groupView{
			ExceptionType: g.ExceptionType,
			Count:         g.Count,
			FirstSeen:     g.FirstSeen.Unix(),
			LastSeen:      g.LastSeen.Unix(),
			AppVersions:   g.AppVersions,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	n, err := s.Store.Count(r.Context())
	if err != nil {
		if s.Logger != nil {
			s.Logger.Error(err, "stats query failed")
		}
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"total_crashes": n})
}

// handleHealth reports process uptime and the number of currently
// connected relays, beyond what spec §6 lists, mirroring the teacher's
// relay liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": time.Since(s.startedAt).Seconds(),
	}
	if s.Metrics != nil {
		resp["relays_connected"] = testutil.ToFloat64(s.Metrics.RelaysConnected)
	}
	writeJSON(w, http.StatusOK, resp)
}

type symbolicateRequest struct {
	StackTrace string `json:"stack_trace"`
	Platform   string `json:"platform"`
	AppID      string `json:"app_id,omitempty"`
	Version    string `json:"version,omitempty"`
	BuildID    string `json:"build_id,omitempty"`
}

type frameView struct {
	Raw          string `json:"raw"`
	Function     string `json:"function"`
	File         string `json:"file"`
	Line         int    `json:"line"`
	Column       int    `json:"column"`
	Symbolicated bool   `json:"symbolicated"`
}

type symbolicateResponse struct {
	SymbolicatedCount int         `json:"symbolicated_count"`
	TotalCount        int         `json:"total_count"`
	Percentage        float64     `json:"percentage"`
	Display           string      `json:"display"`
	Frames            []frameView `json:"frames"`
}

// handleSymbolicate dispatches a stack trace through the symbolicator on
// the request's own goroutine: the platform parsers are synchronous and
// regex/file-read bound, not async, so unlike the relay tasks there is no
// suspension point to yield at here — the net/http handler pool already
// gives each request its own goroutine, which plays the same role as a
// dedicated blocking-task pool would.
func (s *Server) handleSymbolicate(w http.ResponseWriter, r *http.Request) {
	if s.Symbolicator == nil {
		writeError(w, http.StatusServiceUnavailable, "no mapping store configured")
		return
	}
	if s.SymbolicateLimiter != nil && !s.SymbolicateLimiter.Allow(1) {
		writeError(w, http.StatusTooManyRequests, "symbolication rate limit exceeded")
		return
	}

	var req symbolicateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	platform, err := symbolicate.ParsePlatform(req.Platform)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	stack, err := s.Symbolicator.Symbolicate(req.StackTrace, symbolicate.Context{
		Platform: platform,
		AppID:    req.AppID,
		Version:  req.Version,
	})
	if s.Metrics != nil {
		resolved, unresolved := 0, 0
		if stack != nil {
			resolved, unresolved = stack.SymbolicatedCount, stack.TotalCount-stack.SymbolicatedCount
		}
		s.Metrics.RecordSymbolication(string(platform), err == nil, time.Since(start).Seconds(), resolved, unresolved)
	}
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	frames := make([]frameView, 0, len(stack.Frames))
	for _, f := range stack.Frames {
		frames = append(frames, frameView{
			Raw:          f.Raw,
			Function:     f.Function,
			File:         f.File,
			Line:         f.Line,
			Column:       f.Column,
			Symbolicated: f.Symbolicated,
		})
	}

	writeJSON(w, http.StatusOK, symbolicateResponse{
		SymbolicatedCount: stack.SymbolicatedCount,
		TotalCount:        stack.TotalCount,
		Percentage:        stack.Percentage(),
		Display:           stack.Display(),
		Frames:            frames,
	})
}
