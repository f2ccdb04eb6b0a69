package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/goodtune/kclinic/internal/remote"
	"github.com/goodtune/kclinic/internal/session"
	"github.com/goodtune/kclinic/internal/storage"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// QueueLister returns the clinic's check-in queue for a day.
type QueueLister interface {
	ListQueue(ctx context.Context, day time.Time) ([]remote.QueueEntry, error)
}

// Server is the HTTP API over the session tracker.
type Server struct {
	config   Config
	tracker  *session.Tracker
	archive  storage.ArchiveStore
	queue    QueueLister // nil when no remote API is configured
	hub      *Hub
	auth     *AuthService
	router   *mux.Router
	server   *http.Server
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
	logger   zerolog.Logger
	now      func() time.Time
}

// NewServer creates a new API server.
func NewServer(cfg Config, tracker *session.Tracker, archive storage.ArchiveStore, queue QueueLister, hub *Hub, logger zerolog.Logger) *Server {
	s := &Server{
		config:  cfg,
		tracker: tracker,
		archive: archive,
		queue:   queue,
		hub:     hub,
		auth:    NewAuthService(cfg.JWTSecret, cfg.TokenExpiration),
		router:  mux.NewRouter(),
		logger:  logger.With().Str("component", "api").Logger(),
		now:     time.Now,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Use(LoggingMiddleware(s.logger))

	if len(s.config.AllowedOrigins) > 0 {
		s.router.Use(CORSMiddleware(s.config.AllowedOrigins))
		// Preflight requests never carry credentials
		s.router.PathPrefix("/api/").Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	}

	// Public routes
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/ready", s.handleReady).Methods("GET")

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(AuthMiddleware(s.auth))

	api.HandleFunc("/sessions", s.handleListSessions).Methods("GET")
	api.HandleFunc("/archive", s.handleListArchive).Methods("GET")
	api.HandleFunc("/archive/{id}", s.handleGetArchive).Methods("GET")
	api.HandleFunc("/queue", s.handleQueue).Methods("GET")
	api.HandleFunc("/ws", s.hub.ServeWS).Methods("GET")

	practitioner := api.PathPrefix("/practitioners/{id}").Subrouter()
	practitioner.Use(PractitionerMiddleware())
	practitioner.Use(HydrationMiddleware(s.tracker.IsHydrated))

	practitioner.HandleFunc("/session", s.handleGetSession).Methods("GET")
	practitioner.HandleFunc("/session", s.handleStartSession).Methods("POST")
	practitioner.HandleFunc("/session", s.handleClearSession).Methods("DELETE")
	practitioner.HandleFunc("/session/end", s.handleEndSession).Methods("POST")
	practitioner.HandleFunc("/session/pause", s.handleTogglePause).Methods("POST")
	practitioner.HandleFunc("/session/elapsed", s.handleElapsed).Methods("GET")
	practitioner.HandleFunc("/session/notes", s.handleAddNote).Methods("POST")
	practitioner.HandleFunc("/session/photos", s.handleAddPhoto).Methods("POST")
	practitioner.HandleFunc("/session/photos/{photoId}", s.handleRemovePhoto).Methods("DELETE")
	practitioner.HandleFunc("/session/voice-notes", s.handleAddVoiceNote).Methods("POST")
	practitioner.HandleFunc("/session/side-effects", s.handleAddSideEffect).Methods("POST")
	practitioner.HandleFunc("/session/details", s.handleUpdateDetails).Methods("PATCH")

	practitioner.HandleFunc("/pending-zones", s.handleGetPendingZones).Methods("GET")
	practitioner.HandleFunc("/pending-zones", s.handleSetPendingZones).Methods("PUT")
	practitioner.HandleFunc("/pending-zones", s.handleClearPendingZones).Methods("DELETE")
	practitioner.HandleFunc("/pending-zones/next", s.handlePopNextZone).Methods("POST")
}

// Handler returns the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Auth returns the token service backing the API.
func (s *Server) Auth() *AuthService {
	return s.auth
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the API server.
func (s *Server) Start() error {
	s.logger.Info().
		Str("addr", s.config.ListenAddr).
		Bool("auth", s.auth.Enabled()).
		Msg("Starting API server")

	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated API listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("API server error")
		}
	}()

	return nil
}

// Stop disconnects live clients and gracefully stops the API server.
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping API server")

	s.hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}

	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "ok",
		"live_clients": s.hub.ClientCount(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.tracker.IsHydrated() {
		writeError(w, http.StatusServiceUnavailable, "Session state is still loading")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
