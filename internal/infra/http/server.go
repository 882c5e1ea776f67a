package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"mentorium-bot/internal/config"
	"mentorium-bot/internal/infra/metrics"
	"mentorium-bot/internal/infra/payment/click"
	"mentorium-bot/internal/infra/payment/payme"
)

// Server exposes the provider webhook endpoints. PayMe posts JSON-RPC to a
// single URL; Click calls prepare and complete with form or query params.
type Server struct {
	cfg        *config.Config
	payme      *payme.Provider
	paymeRPC   *payme.Dispatcher
	clickProv  *click.Provider
	clickHndl  *click.Handler
	log        *zerolog.Logger
	httpServer *http.Server
}

func NewServer(
	cfg *config.Config,
	paymeProv *payme.Provider,
	paymeRPC *payme.Dispatcher,
	clickProv *click.Provider,
	clickHndl *click.Handler,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "http").Logger()
	return &Server{
		cfg:       cfg,
		payme:     paymeProv,
		paymeRPC:  paymeRPC,
		clickProv: clickProv,
		clickHndl: clickHndl,
		log:       &l,
	}
}

func (s *Server) Start() error {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Post("/webhooks/payme", s.handlePayme)
	r.HandleFunc("/webhooks/click/prepare", s.handleClickPrepare)
	r.HandleFunc("/webhooks/click/complete", s.handleClickComplete)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.HTTP.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.log.Info().Int("port", s.cfg.HTTP.Port).Msg("http server listening")
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// handlePayme authenticates the merchant call before touching the body.
// Everything past auth is a JSON-RPC exchange over HTTP 200.
func (s *Server) handlePayme(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	auth := r.Header.Get("Authorization")
	if auth == "" {
		metrics.IncWebhook("payme", "unauthorized")
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if !s.payme.Enabled() {
		metrics.IncWebhook("payme", "disabled")
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	if !s.payme.VerifyRequest(auth) {
		s.log.Warn().Str("remote", r.RemoteAddr).Msg("payme auth rejected")
		metrics.IncWebhook("payme", "forbidden")
		w.WriteHeader(http.StatusForbidden)
		return
	}

	var req payme.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, payme.ErrorResponse(nil, payme.CodeParseError, "parse error"))
		metrics.IncWebhook("payme", "parse_error")
		return
	}

	resp := s.paymeRPC.Handle(r.Context(), req)
	s.writeJSON(w, resp)

	outcome := "ok"
	if resp.Error != nil {
		outcome = "error"
	}
	metrics.IncWebhook("payme", outcome)
	metrics.ObserveWebhookLatency("payme", float64(time.Since(start).Milliseconds()))
}

func (s *Server) handleClickPrepare(w http.ResponseWriter, r *http.Request) {
	s.handleClick(w, r, s.clickHndl.Prepare)
}

func (s *Server) handleClickComplete(w http.ResponseWriter, r *http.Request) {
	s.handleClick(w, r, s.clickHndl.Complete)
}

// handleClick always answers HTTP 200; outcomes ride in the body's error field.
func (s *Server) handleClick(w http.ResponseWriter, r *http.Request, fn func(context.Context, click.CallbackParams) click.Response) {
	start := time.Now()

	if err := r.ParseForm(); err != nil {
		s.log.Warn().Err(err).Msg("click form parse failed")
	}
	params := click.ParseCallback(r.Form)

	resp := fn(r.Context(), params)
	s.writeJSON(w, resp)

	outcome := "ok"
	if resp.Error != 0 {
		outcome = fmt.Sprintf("error_%d", resp.Error)
	}
	metrics.IncWebhook("click", outcome)
	metrics.ObserveWebhookLatency("click", float64(time.Since(start).Milliseconds()))
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("encode response")
	}
}
