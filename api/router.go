// Package api is the HTTP surface of the ledger.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/yashasviy/bank-ledger-api/middleware"
	"github.com/yashasviy/bank-ledger-api/models"
)

// Ledger is the set of account operations the handlers drive.
type Ledger interface {
	CreateAccount(ctx context.Context, firstName, lastName string) (*models.AccountView, error)
	GetAccount(ctx context.Context, lastName string) (*models.AccountView, error)
	Deposit(ctx context.Context, lastName string, amount decimal.Decimal) (*models.AccountView, error)
	Withdraw(ctx context.Context, lastName string, amount decimal.Decimal) (*models.AccountView, error)
	Transfer(ctx context.Context, source, destination string, amount decimal.Decimal) (*models.AccountView, error)
}

// Handler serves the account and transaction routes on top of a Ledger.
type Handler struct {
	ledger Ledger
	logger *zap.Logger
}

// NewHandler returns a Handler. A nil logger discards output.
func NewHandler(ledger Ledger, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{ledger: ledger, logger: logger}
}

// RouterConfig carries the optional collaborators of the router.
type RouterConfig struct {
	// Redis enables idempotent replays on transaction routes. Nil disables them.
	Redis          *redis.Client
	IdempotencyTTL time.Duration
	Logger         *zap.Logger
	// Gatherer backs /metrics. Nil means prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
}

// NewRouter mounts the API, /health and /metrics on a chi router.
func NewRouter(ledger Ledger, cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	h := NewHandler(ledger, logger)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.RequestLogger(logger.Named("http")))
	r.Use(chimw.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/account", h.CreateAccount)
		r.Get("/account/{lastName}", h.GetAccount)

		r.Route("/transaction/{lastName}", func(r chi.Router) {
			if cfg.Redis != nil {
				r.Use(middleware.Idempotency(cfg.Redis, middleware.IdempotencyConfig{
					CacheTTL: cfg.IdempotencyTTL,
					Logger:   logger.Named("idempotency"),
				}))
			}
			r.Post("/deposit", h.Deposit)
			r.Post("/withdraw", h.Withdraw)
			r.Post("/transfer", h.Transfer)
		})
	})

	return r
}
