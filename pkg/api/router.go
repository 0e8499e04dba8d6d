package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onchainfs/ledgerfs/internal/logger"
	"github.com/onchainfs/ledgerfs/pkg/api/handlers"
	apimw "github.com/onchainfs/ledgerfs/pkg/api/middleware"
	"github.com/onchainfs/ledgerfs/pkg/metrics"
	"github.com/onchainfs/ledgerfs/pkg/registry"
)

// NewRouter builds the chi router over reg: request-id/real-ip/recovery
// middleware, bearer-token auth on every file/quota route, and the full
// external-interface surface.
//
// Routes:
//   - GET  /health                    - liveness + component status, always 200
//   - GET  /metrics                   - Prometheus exposition, if metrics are enabled
//   - POST /files                     - upload
//   - GET  /files/{id}                - download
//   - GET  /files/{id}/info           - whole-file descriptor
//   - GET  /files/{id}/entities       - ledger entity-key index
//   - GET  /files/{id}/status         - session status by file id
//   - GET  /status/{idempotency_key}  - session status by idempotency key
//   - GET  /files/by-owner/{owner}    - query by owner
//   - GET  /files/by-extension/{ext}  - query by extension
//   - GET  /files/by-type/*           - query by content type
//   - GET  /quota                     - caller's quota usage
func NewRouter(reg *registry.Registry) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	healthHandler := handlers.NewHealthHandler(reg)
	r.Get("/health", healthHandler.Liveness)

	if metrics.IsEnabled() {
		r.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	}

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	filesHandler := handlers.NewFilesHandler(reg)
	queryHandler := handlers.NewQueryHandler(reg)
	quotaHandler := handlers.NewQuotaHandler(reg)

	bypassKey := reg.Config.JWT.BypassKey

	r.Group(func(r chi.Router) {
		r.Use(apimw.BearerAuth(reg.JWT, bypassKey))

		r.Post("/files", filesHandler.Upload)
		r.Get("/files/{id}", filesHandler.Download)
		r.Get("/files/{id}/info", filesHandler.Info)
		r.Get("/files/{id}/entities", filesHandler.Entities)
		r.Get("/files/{id}/status", filesHandler.StatusByFileID)
		r.Get("/status/{idempotency_key}", filesHandler.StatusByIdempotencyKey)

		r.Get("/files/by-owner/{owner}", queryHandler.ByOwner)
		r.Get("/files/by-extension/{ext}", queryHandler.ByExtension)
		r.Get("/files/by-type/*", queryHandler.ByContentType)

		r.Get("/quota", quotaHandler.Get)
	})

	return r
}

// requestLogger logs request start (DEBUG) and completion (INFO) through
// the internal logger instead of chi's default logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("API request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger.Info("API request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		)
	})
}
