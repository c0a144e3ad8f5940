package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/pedalworks/trainsync/internal/database"
	"github.com/pedalworks/trainsync/internal/handler"
	"github.com/pedalworks/trainsync/internal/integration"
	"github.com/pedalworks/trainsync/internal/logger"
	"github.com/pedalworks/trainsync/internal/maintenance"
	"github.com/pedalworks/trainsync/internal/metrics"
	"github.com/pedalworks/trainsync/internal/ratelimit"
	"github.com/pedalworks/trainsync/internal/webhook"
)

// Config carries the server's wiring inputs
type Config struct {
	Port           int
	APIKey         string
	TrustedProxies []string

	RateLimitPerWindow int
	RateLimitWindow    time.Duration
}

type Server struct {
	httpServer         *http.Server
	dbPool             database.Pool
	integrationService integration.Service
	webhookService     webhook.Service
	maintenanceService maintenance.Service
}

// NewServer creates a new Server instance
func NewServer(cfg Config, dbPool database.Pool, integrationService integration.Service, webhookService webhook.Service, maintenanceService maintenance.Service, limiter *ratelimit.Limiter) *Server {
	r := chi.NewRouter()

	// Middleware stack, outermost first
	detector := NewSuspiciousActivityDetector()

	r.Use(SecurityHeadersMiddleware())
	r.Use(AuthMiddleware(cfg.APIKey, cfg.TrustedProxies, detector))
	r.Use(SecurityLoggingMiddleware(cfg.TrustedProxies, detector))
	r.Use(RequestSizeLimitMiddleware(1 << 20)) // 1MB limit
	r.Use(metrics.MetricsMiddleware)
	r.Use(loggingMiddleware)

	// Health check routes (unversioned)
	r.Get("/healthz", handler.HandleHealthz())
	r.Get("/readyz", handler.HandleReadyz(dbPool))

	// Version endpoint (public, for deployment verification)
	r.Get("/version", handler.HandleVersion())

	// Metrics endpoint (public, for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		integrationHandlers := handler.NewIntegrationHandlers(integrationService, limiter, cfg.RateLimitPerWindow, cfg.RateLimitWindow)
		r.Route("/integrations", func(r chi.Router) {
			r.Get("/", integrationHandlers.HandleList())
			r.Delete("/", integrationHandlers.HandleRevokeAll())

			r.Route("/{provider}", func(r chi.Router) {
				r.Post("/connect", integrationHandlers.HandleConnect())
				r.Post("/callback", integrationHandlers.HandleCallback())
				r.Post("/refresh", integrationHandlers.HandleRefresh())
				r.Get("/status", integrationHandlers.HandleStatus())
				r.Delete("/", integrationHandlers.HandleDisconnect())
			})
		})

		webhookHandlers := handler.NewWebhookHandlers(webhookService, limiter, cfg.RateLimitPerWindow, cfg.RateLimitWindow)
		r.Route("/webhooks", func(r chi.Router) {
			r.Post("/{provider}", webhookHandlers.HandleIngest())
			r.Post("/events/processed", webhookHandlers.HandleMarkProcessed())
		})

		adminHandlers := handler.NewAdminHandlers(maintenanceService, webhookService)
		r.Route("/admin", func(r chi.Router) {
			r.Post("/maintenance/run", adminHandlers.HandleRunMaintenance())
			r.Get("/webhooks/stats", adminHandlers.HandleWebhookStats())
		})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.WrapHandler)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
		dbPool:             dbPool,
		integrationService: integrationService,
		webhookService:     webhookService,
		maintenanceService: maintenanceService,
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	if !rw.written {
		rw.statusCode = statusCode
		rw.written = true
		rw.ResponseWriter.WriteHeader(statusCode)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Skip logging for health check endpoints and metrics
		if strings.HasPrefix(r.URL.Path, "/healthz") ||
			strings.HasPrefix(r.URL.Path, "/readyz") ||
			strings.HasPrefix(r.URL.Path, "/metrics") {
			next.ServeHTTP(w, r)
			return
		}

		requestID := logger.GenerateRequestID()
		ctx := logger.WithRequestID(r.Context(), requestID)
		r = r.WithContext(ctx)

		log := logger.FromContext(ctx)

		log.Info(LogMsgRequestStarted,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"content_length", r.ContentLength,
			"user_agent", r.UserAgent())

		// Sanitize headers for logging
		sanitizedHeaders := make(http.Header)
		for k, v := range r.Header {
			if strings.EqualFold(k, HeaderAPIKey) || strings.EqualFold(k, HeaderAuthorization) {
				sanitizedHeaders[k] = []string{RedactedValue}
			} else {
				sanitizedHeaders[k] = v
			}
		}
		log.Debug(LogMsgRequestHeaders, "headers", sanitizedHeaders)

		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)

		duration := time.Since(start)
		log.Info(LogMsgRequestCompleted,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", duration.Milliseconds(),
			"duration", duration)
	})
}

// Start starts the server
func (s *Server) Start() error {
	slog.Default().Info(LogMsgServerStarting, "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Stop stops the server gracefully
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
