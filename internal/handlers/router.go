package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/trademate/api/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

type routerConfig struct {
	basePath    string
	legacyPath  string
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers
	metrics     http.Handler

	cart         RouteRegistrar
	me           RouteRegistrar
	transactions RouteRegistrar
	orders       RouteRegistrar
	payments     RouteRegistrar
	credit       RouteRegistrar
	reports      RouteRegistrar
	internal     RouteRegistrar
	legacy       RouteRegistrar

	internalMiddlewares []func(http.Handler) http.Handler
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

const (
	defaultAPIPrefix    = "/api/v1"
	defaultLegacyPrefix = "/legacy"
	defaultTimeout      = 60 * time.Second
)

// NewRouter constructs the chi router with shared middleware and expected route groups.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		basePath:   defaultAPIPrefix,
		legacyPath: defaultLegacyPrefix,
		middlewares: []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Timeout(defaultTimeout),
		},
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	r := chi.NewRouter()

	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteFailure(req.Context(), w, httpx.NotFound(fmt.Sprintf("no route for %s", req.URL.Path)))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteFailure(req.Context(), w, httpx.NewFailure(http.StatusMethodNotAllowed, "Method not allowed",
			fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path)))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)
	if cfg.metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.metrics)
	}

	r.Route(cfg.basePath, func(api chi.Router) {
		mount := func(path string, registrar RouteRegistrar, name string, groupMW []func(http.Handler) http.Handler) {
			api.Route(path, func(group chi.Router) {
				for _, mw := range groupMW {
					if mw != nil {
						group.Use(mw)
					}
				}
				if registrar != nil {
					registrar(group)
					return
				}
				registerNotImplemented(group, name)
			})
		}

		mount("/cart", cfg.cart, "cart", nil)
		mount("/me", cfg.me, "me", nil)
		mount("/transactions", cfg.transactions, "transactions", nil)
		mount("/orders", cfg.orders, "orders", nil)
		mount("/payments", cfg.payments, "payments", nil)
		mount("/credit", cfg.credit, "credit", nil)
		mount("/reports", cfg.reports, "reports", nil)
		mount("/internal", cfg.internal, "internal", cfg.internalMiddlewares)
	})

	if cfg.legacy != nil {
		r.Route(cfg.legacyPath, func(legacy chi.Router) {
			cfg.legacy(legacy)
		})
	}

	return r
}

// WithMiddlewares appends additional global middleware to the router.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithHealthHandlers overrides the handlers used for /healthz and /readyz endpoints.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

// WithMetricsHandler exposes h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.metrics = h
	}
}

// WithCartRoutes configures the registrar responsible for cart endpoints.
func WithCartRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.cart = reg
	}
}

// WithMeRoutes configures the registrar responsible for user scoped endpoints.
func WithMeRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.me = reg
	}
}

// WithTransactionRoutes configures the registrar responsible for merchant transaction endpoints.
func WithTransactionRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.transactions = reg
	}
}

// WithOrderRoutes configures the registrar responsible for order endpoints.
func WithOrderRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.orders = reg
	}
}

// WithPaymentRoutes configures the registrar responsible for the payment ledger.
func WithPaymentRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.payments = reg
	}
}

// WithCreditRoutes configures the registrar responsible for credit endpoints.
func WithCreditRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.credit = reg
	}
}

// WithReportRoutes configures the registrar responsible for report endpoints.
func WithReportRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.reports = reg
	}
}

// WithInternalRoutes configures the registrar responsible for internal endpoints.
func WithInternalRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.internal = reg
	}
}

// WithInternalMiddlewares configures middlewares applied to the /internal group.
func WithInternalMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.internalMiddlewares = append(cfg.internalMiddlewares, mw...)
	}
}

// WithLegacyRoutes mounts the pre-v1 endpoints under /legacy.
func WithLegacyRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.legacy = reg
	}
}

func registerNotImplemented(r chi.Router, name string) {
	handler := func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteFailure(req.Context(), w, httpx.NewFailure(http.StatusNotImplemented, "Not implemented",
			fmt.Sprintf("%s routes not implemented", name)))
	}
	r.HandleFunc("/*", handler)
	r.HandleFunc("/", handler)
	r.NotFound(handler)
	r.MethodNotAllowed(handler)
}
