package server

import (
	"net/http"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/namelens/chatgate/internal/server/handlers"
	servermw "github.com/namelens/chatgate/internal/server/middleware"
)

func (s *Server) registerRoutes() {
	if !s.opts.DisableHealth {
		s.router.Route("/health", func(r chi.Router) {
			r.Get("/", s.health.HealthHandler)
			r.Get("/live", s.health.LivenessHandler)
			r.Get("/ready", s.health.ReadinessHandler)
			r.Get("/startup", s.health.StartupHandler)
		})
	}

	s.router.Get("/version", handlers.NewVersionHandler(s.opts.Service))
	s.router.Method(http.MethodGet, "/metrics", newMetricsProxy(s.logger))

	s.registerChatRoutes()
	s.registerAdminEndpoint()
}

func (s *Server) registerChatRoutes() {
	if s.opts.Service == nil {
		s.logger.Debug("Chat routes disabled (no service configured)")
		return
	}

	chat := handlers.NewChatHandler(s.opts.Service, s.logger, s.opts.MaxBodyBytes)
	s.router.Route("/v1", func(r chi.Router) {
		if s.opts.JWTSecret != "" {
			r.Use(servermw.BearerAuth([]byte(s.opts.JWTSecret), s.opts.Issuer))
		}
		r.Post("/chat", chat.Chat)
		r.Get("/budget", chat.Budget)
	})
}

// registerAdminEndpoint mounts the gofulmen signal handler when an admin
// token is configured.
func (s *Server) registerAdminEndpoint() {
	if s.opts.AdminToken == "" {
		s.logger.Debug("Admin signal endpoint disabled (no admin token set)")
		return
	}

	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: s.opts.AdminToken,
		RateLimit: 10,
		RateBurst: 5,
	})
	s.router.Post("/admin/signal", handler.ServeHTTP)

	s.logger.Info("Admin signal endpoint enabled",
		zap.String("path", "/admin/signal"),
		zap.String("rate_limit", "10/min, burst 5"))
	s.logger.Warn("Admin endpoint enabled - ensure this server is not exposed to public internet")
}
