// Package server couples the game domain to storage, runs the flow
// orchestrator with its AI drain loop, and serves the HTTP snapshot/mutation
// surface with ETag-based concurrency control.
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/decred/slog"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/robpatriot/nommie-server/pkg/ai"
	"github.com/robpatriot/nommie-server/pkg/server/db"
)

// UserIDExtractor resolves the authenticated user of a request. The default
// reads the X-User-Id header; production deployments plug their JWT
// middleware in here.
type UserIDExtractor func(r *http.Request) string

// Server owns the process-wide state: database pool, snapshot cache,
// broadcaster and the AI registry, all initialized at bootstrap and handed to
// requests explicitly.
type Server struct {
	db          *db.DB
	log         slog.Logger
	flow        *Flow
	cache       *SnapshotCache
	broadcaster *Broadcaster
	registry    *ai.Registry
	metrics     *Metrics
	extractUser UserIDExtractor
}

// New wires a Server from its collaborators.
func New(database *db.DB, logBackend *slog.Backend, cfg Config) (*Server, error) {
	log := logBackend.Logger("SRVR")
	cacheLog := logBackend.Logger("CACH")
	eventLog := logBackend.Logger("BCST")
	flowLog := logBackend.Logger("FLOW")

	metrics := NewMetrics()
	cache, err := NewSnapshotCache(cacheLog, cfg.SnapshotCacheSize)
	if err != nil {
		return nil, err
	}
	cache.metrics = metrics
	broadcaster := NewBroadcaster(eventLog, cfg.BroadcastQueueSize, cfg.BroadcastWorkers)
	broadcaster.metrics = metrics
	registry := ai.DefaultRegistry()
	flow := NewFlow(database, flowLog, cache, broadcaster, registry, metrics)

	return &Server{
		db:          database,
		log:         log,
		flow:        flow,
		cache:       cache,
		broadcaster: broadcaster,
		registry:    registry,
		metrics:     metrics,
		extractUser: func(r *http.Request) string { return r.Header.Get("X-User-Id") },
	}, nil
}

// SetUserIDExtractor replaces the authentication hook.
func (s *Server) SetUserIDExtractor(fn UserIDExtractor) {
	s.extractUser = fn
}

// Broadcaster exposes the event bus for transport adapters (websocket hub,
// long-poll wakers).
func (s *Server) Broadcaster() *Broadcaster {
	return s.broadcaster
}

// Shutdown stops background workers.
func (s *Server) Shutdown() {
	s.broadcaster.Stop()
}

// Router builds the chi HTTP router for the game API.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "If-None-Match", "X-User-Id"},
		ExposedHeaders: []string{"ETag"},
	}))

	r.Handle("/metrics", s.metrics.Handler())
	r.Route("/games", func(r chi.Router) {
		r.Post("/", s.handleCreateGame)
		r.Route("/{gameID}", func(r chi.Router) {
			r.Get("/snapshot", s.handleSnapshot)
			r.Get("/history", s.handleHistory)
			r.Post("/join", s.handleJoin)
			r.Post("/spectate", s.handleSpectate)
			r.Delete("/leave", s.handleLeave)
			r.Post("/rejoin", s.handleRejoin)
			r.Post("/ready", s.handleReady)
			r.Post("/bid", s.handleBid)
			r.Post("/trump", s.handleTrump)
			r.Post("/play", s.handlePlay)
			r.Post("/ai/add", s.handleAIAdd)
			r.Post("/ai/update", s.handleAIUpdate)
			r.Post("/ai/remove", s.handleAIRemove)
			r.Delete("/", s.handleDeleteGame)
		})
	})
	return r
}

// problemDetails is the error body shape.
type problemDetails struct {
	Code    string `json:"code"`
	Detail  string `json:"detail"`
	Status  int    `json:"status"`
	TraceID string `json:"trace_id"`
}

// writeError renders an error as Problem-Details JSON with a trace id.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := MapError(err)
	traceID := middleware.GetReqID(r.Context())
	if traceID == "" {
		traceID = uuid.NewString()
	}
	if appErr.Status >= http.StatusInternalServerError {
		s.log.Errorf("request %s failed: %v (trace %s)", r.URL.Path, err, traceID)
	} else {
		s.log.Debugf("request %s rejected: %v (trace %s)", r.URL.Path, appErr, traceID)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.Status)
	json.NewEncoder(w).Encode(problemDetails{
		Code:    appErr.Code,
		Detail:  appErr.Detail,
		Status:  appErr.Status,
		TraceID: traceID,
	})
}

// writeJSON renders a 200 JSON body.
func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// requireUser extracts the authenticated user or fails 401.
func (s *Server) requireUser(r *http.Request) (string, error) {
	userID := s.extractUser(r)
	if userID == "" {
		return "", NewAppError(CodeUnauthorized, http.StatusUnauthorized, "authentication required")
	}
	return userID, nil
}

// gameHeader assembles the public header block for a game row plus its
// memberships.
func gameHeader(ctx context.Context, tx *sql.Tx, row *db.GameRow) (GameHeader, error) {
	players, err := db.GetPlayers(ctx, tx, row.ID)
	if err != nil {
		return GameHeader{}, err
	}
	header := GameHeader{
		ID:         row.ID,
		Name:       row.Name,
		State:      row.State,
		Visibility: row.Visibility,
		Version:    row.Version,
	}
	for _, p := range players {
		if p.Role != db.RolePlayer || !p.Seat.Valid {
			continue
		}
		info := SeatInfo{
			Seat:        int(p.Seat.Int64),
			DisplayName: p.DisplayName,
			IsReady:     p.IsReady,
			IsAI:        p.Kind == db.KindAI,
		}
		if p.UserID.Valid {
			uid := p.UserID.String
			info.UserID = &uid
			info.HostSeat = uid == row.CreatedBy
		}
		if p.OriginalUserID.Valid {
			orig := p.OriginalUserID.String
			info.OriginalUserID = &orig
		}
		if p.AIProfileID.Valid {
			profile, err := db.GetProfile(ctx, tx, p.AIProfileID.Int64)
			if err == nil {
				name := profile.RegistryName
				info.AIProfile = &name
			}
		}
		header.Seating = append(header.Seating, info)
	}
	return header, nil
}
