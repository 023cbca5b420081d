package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/daap14/hafgate/internal/api/handler"
	"github.com/daap14/hafgate/internal/api/middleware"
	"github.com/daap14/hafgate/internal/auth"
	"github.com/daap14/hafgate/internal/database"
	"github.com/daap14/hafgate/internal/k8s"
)

// RouterDeps holds all dependencies needed by the router.
type RouterDeps struct {
	Pools       handler.PoolSource
	Credentials handler.CredentialsUpdater
	Query       handler.QueryRunner
	Auth        *auth.Service

	// Tuning supplies timeouts, SSL mode and pool size for requested targets.
	Tuning  database.Config
	MaxDays int

	K8sChecker k8s.HealthChecker
	Cache      handler.Pinger

	Version     string
	OpenAPISpec []byte
	CORSOrigin  string
	StaticDir   string
}

// NewRouter creates and configures a Chi router with all middleware and routes.
func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery)
	r.Use(middleware.Tracing)
	r.Use(chimiddleware.Logger)
	r.Use(middleware.CORS(deps.CORSOrigin))

	var healthOpts []handler.HealthOption
	if deps.K8sChecker != nil {
		healthOpts = append(healthOpts, handler.WithKubernetes(deps.K8sChecker))
	}
	if deps.Cache != nil {
		healthOpts = append(healthOpts, handler.WithCache(deps.Cache))
	}
	healthHandler := handler.NewHealthHandler(deps.Pools, deps.Version, healthOpts...)
	r.Get("/health", healthHandler.ServeHTTP)

	if len(deps.OpenAPISpec) > 0 {
		openapiHandler := handler.NewOpenAPIHandler(deps.OpenAPISpec)
		r.Get("/openapi.json", openapiHandler.ServeHTTP)
	}

	queryHandler := handler.NewQueryHandler(deps.Pools, deps.Query, deps.MaxDays)
	r.Post("/query", queryHandler.Query)

	credentialsHandler := handler.NewCredentialsHandler(deps.Credentials, deps.Tuning)
	r.Group(func(r chi.Router) {
		if deps.Auth != nil {
			r.Use(middleware.AdminKey(deps.Auth))
		}
		r.Post("/update-credentials", credentialsHandler.Update)
	})

	if deps.StaticDir != "" {
		staticHandler := handler.NewStaticHandler(deps.StaticDir)
		r.Get("/", staticHandler.Index)
		r.Get("/*", staticHandler.ServeHTTP)
	}

	return r
}
