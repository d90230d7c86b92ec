package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lathermill/api/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

type routerConfig struct {
	basePath    string
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers

	shipping RouteRegistrar
	checkout RouteRegistrar
	webhooks RouteRegistrar
	admin    RouteRegistrar

	checkoutMiddlewares []func(http.Handler) http.Handler
	adminMiddlewares    []func(http.Handler) http.Handler
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

const (
	defaultAPIPrefix  = "/api/v1"
	defaultTimeout    = 60 * time.Second
	errorNotFoundCode = "route_not_found"
)

// NewRouter constructs the chi router with shared middleware and the route groups.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		basePath: defaultAPIPrefix,
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
		httpx.WriteError(req.Context(), w, httpx.NewError(errorNotFoundCode, fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	r.Route(cfg.basePath, func(api chi.Router) {
		mount := func(path string, registrar RouteRegistrar, groupMW []func(http.Handler) http.Handler) {
			api.Route(path, func(group chi.Router) {
				for _, mw := range groupMW {
					if mw != nil {
						group.Use(mw)
					}
				}
				if registrar != nil {
					registrar(group)
				}
			})
		}

		mount("/shipping", cfg.shipping, nil)
		mount("/checkout", cfg.checkout, cfg.checkoutMiddlewares)
		mount("/webhooks", cfg.webhooks, nil)
		mount("/admin", cfg.admin, cfg.adminMiddlewares)
	})

	return r
}

// WithMiddlewares appends additional global middleware to the router.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithHealth overrides the default health handlers.
func WithHealth(health *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = health
	}
}

// WithShippingRoutes mounts the /shipping group.
func WithShippingRoutes(registrar RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.shipping = registrar
	}
}

// WithCheckoutRoutes mounts the /checkout group.
func WithCheckoutRoutes(registrar RouteRegistrar, mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.checkout = registrar
		cfg.checkoutMiddlewares = mw
	}
}

// WithWebhookRoutes mounts the /webhooks group. Webhook requests authenticate
// with gateway signatures, so no extra middleware applies here.
func WithWebhookRoutes(registrar RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.webhooks = registrar
	}
}

// WithAdminRoutes mounts the /admin group behind the given middleware.
func WithAdminRoutes(registrar RouteRegistrar, mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.admin = registrar
		cfg.adminMiddlewares = mw
	}
}
