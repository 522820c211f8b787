package rest

import (
	"net/http"

	"qsportal-backend/interfaces/http/rest/handlers"
	"qsportal-backend/interfaces/http/rest/middleware"
	"qsportal-backend/pkg/auth"
	apperrors "qsportal-backend/pkg/errors"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Router creates and configures the HTTP router
type Router struct {
	exportHandler *handlers.ExportHandler
	cacheHandler  *handlers.CacheHandler
	validator     *auth.JWTValidator
	logger        *zap.Logger
}

// NewRouter creates a new router instance
func NewRouter(
	exportHandler *handlers.ExportHandler,
	cacheHandler *handlers.CacheHandler,
	validator *auth.JWTValidator,
	logger *zap.Logger,
) *Router {
	return &Router{
		exportHandler: exportHandler,
		cacheHandler:  cacheHandler,
		validator:     validator,
		logger:        logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(apperrors.NewErrorHandler(rt.logger).Middleware)
	router.Use(middleware.Logger(rt.logger))

	// CORS configuration
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)

	// API routes
	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Authenticate(rt.validator, rt.logger))

		// Export job lifecycle - mutations require the admin role
		r.Route("/export", func(r chi.Router) {
			r.With(middleware.RequireRole("admin")).Post("/", rt.exportHandler.StartExport)
			r.Get("/jobs/{jobID}", rt.exportHandler.GetJobStatus)
			r.Get("/jobs/{jobID}/logs", rt.exportHandler.GetJobLogs)
			r.With(middleware.RequireRole("admin")).Post("/jobs/{jobID}/stop", rt.exportHandler.StopJob)
		})

		// Cache read views
		r.Route("/cache", func(r chi.Router) {
			r.Get("/master", rt.cacheHandler.GetMasterCache)
			r.Get("/{assetType}", rt.cacheHandler.GetTypeCache)
		})

		// Individual asset documents
		r.Get("/assets/{assetType}/{assetID}", rt.cacheHandler.GetAssetDocument)
	})

	return router
}

// healthCheck handles health check requests
func (rt *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

// readinessCheck handles readiness check requests
func (rt *Router) readinessCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}
