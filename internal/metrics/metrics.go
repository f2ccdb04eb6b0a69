package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Session tracker metrics
	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kclinic_active_sessions",
			Help: "Number of treatment sessions currently in progress",
		},
	)

	PendingZones = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kclinic_pending_zones",
			Help: "Number of zones queued across all practitioners",
		},
	)

	SessionsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kclinic_sessions_started_total",
			Help: "Total treatment sessions started",
		},
	)

	SessionsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kclinic_sessions_finished_total",
			Help: "Total treatment sessions finished",
		},
		[]string{"outcome"}, // ended, cleared, replaced
	)

	SessionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kclinic_session_duration_seconds",
			Help:    "Elapsed treatment time of ended sessions, pauses excluded",
			Buckets: []float64{60, 300, 600, 900, 1200, 1800, 2700, 3600, 5400},
		},
	)

	StatePersistFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kclinic_state_persist_failures_total",
			Help: "Tracker state writes that failed and were dropped",
		},
	)

	PatientSessionConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kclinic_patient_session_conflicts_total",
			Help: "Lookups that found more than one active session for a patient",
		},
	)

	// Remote API metrics
	CheckinEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kclinic_checkin_events_total",
			Help: "Server-sent events received from the queue stream",
		},
		[]string{"event"},
	)

	QueryCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kclinic_query_cache_total",
			Help: "Remote query cache lookups",
		},
		[]string{"result"}, // hit, miss, invalidated
	)

	// API metrics
	APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kclinic_api_requests_total",
			Help: "Total API requests handled",
		},
		[]string{"route", "status"},
	)

	LiveClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kclinic_live_clients",
			Help: "Number of connected WebSocket clients",
		},
	)
)

func init() {
	prometheus.MustRegister(
		ActiveSessions,
		PendingZones,
		SessionsStarted,
		SessionsFinished,
		SessionDuration,
		StatePersistFailures,
		PatientSessionConflicts,
		CheckinEvents,
		QueryCache,
		APIRequests,
		LiveClients,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
