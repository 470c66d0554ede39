package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"MineSafetyAPI/internal/config"
	"MineSafetyAPI/internal/handler"
	"MineSafetyAPI/internal/logger"
	"MineSafetyAPI/internal/middleware"
	"MineSafetyAPI/internal/websocket"
)

type Server struct {
	httpServer *http.Server
	router     *mux.Router
	cfg        *config.Config
	log        *logger.Logger
}

func New(cfg *config.Config, log *logger.Logger) *Server {
	router := mux.NewRouter()

	return &Server{
		router: router,
		cfg:    cfg,
		log:    log,
		httpServer: &http.Server{
			Addr:           fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:        router,
			ReadTimeout:    cfg.Server.ReadTimeout,
			WriteTimeout:   cfg.Server.WriteTimeout,
			MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
		},
	}
}

// Handlers groups the route sets served under /api/v1.
type Handlers struct {
	Readings      *handler.ReadingHandler
	Zones         *handler.ZoneHandler
	Alerts        *handler.AlertHandler
	Notifications *handler.NotificationHandler
	Health        *handler.HealthHandler
}

func (s *Server) RegisterHandlers(h Handlers, hub *websocket.Hub) {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.Use(middleware.RequestLogger(s.log))
	api.Use(middleware.CORS(s.cfg.Security.CORSAllowedOrigins, s.cfg.Security.CORSAllowedMethods))
	api.Use(middleware.Recovery(s.log))

	if s.cfg.Security.EnableRateLimit {
		api.Use(middleware.RateLimit(s.cfg.Security.RateLimitPerMinute))
	}

	h.Readings.RegisterRoutes(api)
	h.Zones.RegisterRoutes(api)
	h.Alerts.RegisterRoutes(api)
	h.Notifications.RegisterRoutes(api)
	h.Health.RegisterRoutes(s.router)

	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	if hub != nil {
		s.router.HandleFunc("/ws/alerts", func(w http.ResponseWriter, r *http.Request) {
			websocket.ServeWs(hub, w, r, s.log)
		})
	}

	s.log.Info("All handlers registered")
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.log.Info("Starting HTTP server on %s", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed to start: %w", err)
	}

	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.log.Info("HTTP server stopped")
	return nil
}
