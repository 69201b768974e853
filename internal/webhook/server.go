// internal/webhook/server.go
package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/user/marketradar/internal/aggregate"
	"github.com/user/marketradar/internal/mission"
	"github.com/user/marketradar/internal/missionapi"
	"github.com/user/marketradar/internal/radar"
	"github.com/user/marketradar/internal/report"
	"github.com/user/marketradar/internal/state"
	"github.com/user/marketradar/internal/types"
)

// Launcher starts and stops watched missions. Launch waits for a free slot
// only as long as admit allows and runs the mission under ctx.
type Launcher interface {
	Launch(admit, ctx context.Context, req radar.Request, observers ...mission.Observer) (*radar.Watch, error)
	Active() []types.MissionID
	Stop(ctx context.Context, id types.MissionID) error
}

// Server is the HTTP API: launch missions ad hoc or from named tasks, and
// read back what missions produced.
type Server struct {
	store    *state.TaskStore
	launcher Launcher
	archive  *radar.Archive
	defaults radar.Request
	token    string
	base     context.Context
	now      func() time.Time
	logger   *slog.Logger
	mux      *http.ServeMux
}

type Option func(*Server)

// WithToken requires "Authorization: Bearer <token>" on every POST and
// DELETE route.
func WithToken(token string) Option {
	return func(s *Server) { s.token = token }
}

// WithDefaults sets the request fields missions inherit when the caller
// leaves them out.
func WithDefaults(req radar.Request) Option {
	return func(s *Server) { s.defaults = req }
}

// WithContext sets the context missions launched over HTTP run under. It
// outlives the request that launched them.
func WithContext(ctx context.Context) Option {
	return func(s *Server) { s.base = ctx }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewServer creates a new webhook Server with the given task store, launcher and archive.
func NewServer(store *state.TaskStore, launcher Launcher, archive *radar.Archive, opts ...Option) *Server {
	s := &Server{
		store:    store,
		launcher: launcher,
		archive:  archive,
		defaults: radar.Request{MaxIterations: 50, Headless: true},
		base:     context.Background(),
		now:      time.Now,
		logger:   slog.Default(),
		mux:      http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /missions", s.authorize(s.handleLaunch))
	s.mux.HandleFunc("DELETE /missions/{id}", s.authorize(s.handleStop))
	s.mux.HandleFunc("POST /webhook/{task}", s.authorize(s.handleNamedTask))
	s.mux.HandleFunc("GET /api/missions", s.handleAPIMissions)
	s.mux.HandleFunc("GET /api/missions/{id}", s.handleAPIMission)
	s.mux.HandleFunc("GET /api/missions/{id}/log", s.handleAPILog)
	s.mux.HandleFunc("GET /api/missions/{id}/records", s.handleAPIRecords)
	s.mux.HandleFunc("GET /api/missions/{id}/sources", s.handleAPISources)
	s.mux.HandleFunc("GET /api/missions/{id}/series", s.handleAPISeries)
	s.mux.HandleFunc("GET /api/missions/{id}/report", s.handleAPIReport)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) authorize(next http.HandlerFunc) http.HandlerFunc {
	if s.token == "" {
		return next
	}
	want := []byte("Bearer " + s.token)
	return func(w http.ResponseWriter, r *http.Request) {
		got := []byte(r.Header.Get("Authorization"))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"active": len(s.launcher.Active()),
	})
}

// launchRequest is the JSON body for POST /missions. Pointer fields fall
// back to the server defaults when absent.
type launchRequest struct {
	Goal          string `json:"goal"`
	MaxIterations *int   `json:"max_iterations"`
	Headless      *bool  `json:"headless"`
	Notify        string `json:"notify"`
}

type launchResponse struct {
	MissionID    types.MissionID `json:"mission_id"`
	WebSocketURL string          `json:"websocket_url"`
	Goal         string          `json:"goal"`
}

func (s *Server) handleLaunch(w http.ResponseWriter, r *http.Request) {
	var body launchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(body.Goal) == "" {
		http.Error(w, `{"error":"goal is required"}`, http.StatusBadRequest)
		return
	}

	req := s.defaults
	req.Goal = strings.TrimSpace(body.Goal)
	req.Source = "webhook"
	if body.MaxIterations != nil {
		if n := *body.MaxIterations; n < missionapi.MinIterations || n > missionapi.MaxIterations {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("max_iterations must be between %d and %d", missionapi.MinIterations, missionapi.MaxIterations))
			return
		}
		req.MaxIterations = *body.MaxIterations
	}
	if body.Headless != nil {
		req.Headless = *body.Headless
	}
	if body.Notify != "" {
		req.Notify = types.NotifyTarget(body.Notify)
	}
	s.launch(w, r, req)
}

// namedTaskRequest is the optional JSON body for POST /webhook/{task}.
type namedTaskRequest struct {
	Goal string `json:"goal"`
}

func (s *Server) handleNamedTask(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("task")

	task, err := s.store.Get(name)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			http.Error(w, `{"error":"task not found"}`, http.StatusNotFound)
			return
		}
		s.logger.Error("load task failed", "task", name, "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	if !task.Enabled {
		http.Error(w, `{"error":"task is disabled"}`, http.StatusForbidden)
		return
	}

	// Allow body to override the goal
	var body namedTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err == nil && body.Goal != "" {
		task.Goal = body.Goal
	}
	s.launch(w, r, radar.TaskRequest(*task, "webhook", s.defaults))
}

// launch waits for a mission slot while the request is alive. The mission
// itself runs under the server's context.
func (s *Server) launch(w http.ResponseWriter, r *http.Request, req radar.Request) {
	start := missionapi.StartRequest{Goal: req.Goal, Headless: req.Headless, MaxIterations: req.MaxIterations}
	if err := start.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Goal, req.MaxIterations = start.Goal, start.MaxIterations

	watch, err := s.launcher.Launch(r.Context(), s.base, req)
	if err != nil && r.Context().Err() != nil {
		s.logger.Info("webhook launch abandoned", "goal", req.Goal, "error", err)
		writeError(w, http.StatusServiceUnavailable, "no mission slot available")
		return
	}
	if err != nil {
		s.logger.Error("webhook launch failed", "goal", req.Goal, "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, launchResponse{
		MissionID:    watch.Handle.ID,
		WebSocketURL: watch.Handle.Endpoint,
		Goal:         watch.Goal,
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	id := types.MissionID(r.PathValue("id"))
	if err := s.launcher.Stop(r.Context(), id); err != nil {
		s.logger.Warn("webhook stop failed", "mission", id.Short(), "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": radar.StatusStopped})
}

type missionResponse struct {
	*types.MissionIndex
	Active bool `json:"active"`
}

func (s *Server) handleAPIMissions(w http.ResponseWriter, r *http.Request) {
	missions, err := s.archive.Missions.List(r.Context())
	if err != nil {
		s.logger.Error("list missions failed", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	active := make(map[types.MissionID]bool)
	for _, id := range s.launcher.Active() {
		active[id] = true
	}
	result := make([]missionResponse, 0, len(missions))
	for _, m := range missions {
		result = append(result, missionResponse{MissionIndex: m, Active: active[m.MissionID]})
	}
	writeJSON(w, http.StatusOK, result)
}

// mission resolves the {id} path value, writing the error response itself
// when it cannot.
func (s *Server) mission(w http.ResponseWriter, r *http.Request) (*types.MissionIndex, bool) {
	idx, err := s.archive.Mission(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			http.Error(w, `{"error":"mission not found"}`, http.StatusNotFound)
		} else {
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return nil, false
	}
	return idx, true
}

func (s *Server) handleAPIMission(w http.ResponseWriter, r *http.Request) {
	idx, ok := s.mission(w, r)
	if !ok {
		return
	}
	active := false
	for _, id := range s.launcher.Active() {
		if id == idx.MissionID {
			active = true
		}
	}
	writeJSON(w, http.StatusOK, missionResponse{MissionIndex: idx, Active: active})
}

func (s *Server) handleAPILog(w http.ResponseWriter, r *http.Request) {
	idx, ok := s.mission(w, r)
	if !ok {
		return
	}

	limit := 200
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := s.archive.Entries(r.Context(), idx.MissionID, limit)
	if err != nil {
		s.logger.Error("tail log failed", "mission", idx.MissionID.Short(), "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleAPIRecords(w http.ResponseWriter, r *http.Request) {
	idx, ok := s.mission(w, r)
	if !ok {
		return
	}
	records, err := s.archive.RecordSet(r.Context(), idx.MissionID)
	if err != nil {
		s.internal(w, idx, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleAPISources(w http.ResponseWriter, r *http.Request) {
	idx, ok := s.mission(w, r)
	if !ok {
		return
	}
	records, err := s.archive.RecordSet(r.Context(), idx.MissionID)
	if err != nil {
		s.internal(w, idx, err)
		return
	}
	sources := aggregate.Sources(records)
	if sources == nil {
		sources = []aggregate.SourceView{}
	}
	writeJSON(w, http.StatusOK, sources)
}

type seriesResponse struct {
	Points  []aggregate.PricePoint `json:"points"`
	Average *float64               `json:"average"`
}

func (s *Server) handleAPISeries(w http.ResponseWriter, r *http.Request) {
	idx, ok := s.mission(w, r)
	if !ok {
		return
	}
	records, err := s.archive.RecordSet(r.Context(), idx.MissionID)
	if err != nil {
		s.internal(w, idx, err)
		return
	}
	resp := seriesResponse{Points: aggregate.Series(records, s.now())}
	if resp.Points == nil {
		resp.Points = []aggregate.PricePoint{}
	}
	if avg, ok := aggregate.SeriesAverage(resp.Points); ok {
		resp.Average = &avg
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAPIReport(w http.ResponseWriter, r *http.Request) {
	idx, ok := s.mission(w, r)
	if !ok {
		return
	}
	now := s.now()
	rep, err := s.archive.Report(r.Context(), idx, now)
	if err != nil {
		s.internal(w, idx, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+report.FileName(now)+`"`)
	w.Write([]byte(report.Markdown(rep)))
}

func (s *Server) internal(w http.ResponseWriter, idx *types.MissionIndex, err error) {
	s.logger.Error("read mission failed", "mission", idx.MissionID.Short(), "error", err)
	http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
}
