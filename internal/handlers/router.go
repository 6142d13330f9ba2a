package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	gorillaws "github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"wallet/internal/config"
	"wallet/internal/middleware"
	"wallet/internal/websocket"
)

type Handler struct {
	cfg        config.Config
	transfers  TransferService
	statements StatementService
	hub        *websocket.Hub
	upgrader   gorillaws.Upgrader
	logger     *zap.Logger
}

func New(cfg config.Config, transfers TransferService, statements StatementService, hub *websocket.Hub, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		cfg:        cfg,
		transfers:  transfers,
		statements: statements,
		hub:        hub,
		upgrader:   websocket.NewUpgrader(cfg.Origins()),
		logger:     logger,
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.RequestLogger(h.logger))
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Metrics)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.cfg.Origins(),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "Idempotency-Key"},
		ExposedHeaders:   []string{"Retry-After", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.Post("/accounts", h.OpenAccount)
		r.Get("/balance", h.GetBalance)
		r.Post("/transfer", h.Transfer)
		r.Get("/transactions", h.ListTransactions)
		r.Get("/statement", h.Statement)
		r.Get("/invoice", h.Statement)
		r.Get("/self-check", h.SelfCheck)
	})
	router.With(middleware.Auth(h.cfg.JWTSecret)).Get("/ws/balances", h.WSBalances)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Handle("/metrics", promhttp.Handler())
	return router
}
