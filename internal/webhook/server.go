// Package webhook exposes the HTTP endpoints: liveness, the Telegram webhook,
// health and metrics.
package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-telegram/bot/models"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"dinner_recipe_bot/internal/logging"
	"dinner_recipe_bot/internal/metrics"
)

const (
	storePingTimeout  = 2 * time.Second
	readHeaderTimeout = 2 * time.Second
	maxUpdateBytes    = 1 << 20
	listenPrefix      = ":"

	// SecretHeader carries the secret token configured with setWebhook.
	SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

	livenessText = "Bot is running!"
)

// Enqueuer accepts decoded updates for asynchronous processing.
type Enqueuer interface {
	Enqueue(update *models.Update) error
}

// StoreChecker reports settings store health.
type StoreChecker interface {
	Ping(ctx context.Context) error
}

// Options configures the HTTP server.
type Options struct {
	Port   int
	Token  string
	Secret string
}

// Server owns the HTTP server and its routes.
type Server struct {
	server  *http.Server
	token   string
	secret  string
	queue   Enqueuer
	checker StoreChecker
	logger  *logrus.Entry
}

type healthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store,omitempty"`
}

// NewServer constructs the server. The webhook route is POST /{token}.
func NewServer(opts Options, queue Enqueuer, checker StoreChecker, logger *logrus.Entry) *Server {
	srv := &Server{
		token:   opts.Token,
		secret:  opts.Secret,
		queue:   queue,
		checker: checker,
		logger:  logging.Component(logger, "http"),
	}

	srv.server = &http.Server{
		Addr:              fmt.Sprintf("%s%d", listenPrefix, opts.Port),
		Handler:           srv.routes(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return srv
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleLiveness)
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Post("/{token}", s.handleUpdate)

	return r
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// ListenAndServe starts the server and blocks until shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.WithFields(logging.Fields{
		"event": "http_listen",
		"addr":  s.server.Addr,
	}).Info("starting http server")

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server listen: %w", err)
	}

	s.logger.WithField("event", "http_stopped").Info("http server stopped")
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}

	return s.server.Shutdown(ctx)
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, livenessText)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if !equalSecret(chi.URLParam(r, "token"), s.token) {
		http.NotFound(w, r)
		return
	}

	if s.secret != "" && !equalSecret(r.Header.Get(SecretHeader), s.secret) {
		metrics.IncUpdate("forbidden")
		s.logger.WithField("event", "webhook_forbidden").Warn("webhook secret mismatch")
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var update models.Update
	body := http.MaxBytesReader(w, r.Body, maxUpdateBytes)
	if err := json.NewDecoder(body).Decode(&update); err != nil {
		metrics.IncUpdate("malformed")
		s.logger.WithField("event", "webhook_malformed").WithError(err).Warn("failed to decode update")
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if err := s.queue.Enqueue(&update); err != nil {
		s.logger.WithFields(logging.Fields{
			"event":     "webhook_rejected",
			"update_id": update.ID,
		}).WithError(err).Warn("failed to enqueue update")
		http.Error(w, "busy", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}

	if s.checker == nil {
		resp.Status = "degraded"
		resp.Store = "error"
		s.logger.WithField("event", "health_store_missing").Warn("store checker is not configured for health endpoint")
	} else {
		pingCtx, cancel := context.WithTimeout(r.Context(), storePingTimeout)
		err := s.checker.Ping(pingCtx)
		cancel()

		if err != nil {
			resp.Status = "degraded"
			resp.Store = "error"
			s.logger.WithField("event", "health_store_error").WithError(err).Warn("store ping failed during health check")
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.WithField("event", "health_write_error").WithError(err).Error("failed to encode health response")
	}
}

func equalSecret(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
