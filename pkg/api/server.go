// Package api provides the tenant-facing HTTP/JSON API: business
// administration, stage/template CRUD, inbound messages, and conversation
// lookup (spec.md section 6.1), plus the webhook routes from pkg/webhook
// mounted on the same router.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/stagehand-run/stagehand/pkg/auth"
	"github.com/stagehand-run/stagehand/pkg/orchestrator"
	"github.com/stagehand-run/stagehand/pkg/webhook"
)

// messageProcessor is the slice of *orchestrator.Orchestrator the HTTP
// layer depends on, narrow enough for handleMessage's tests to supply a
// fake instead of wiring a real template/stage/LLM stack.
type messageProcessor interface {
	ProcessMessage(ctx context.Context, in orchestrator.Inbound) (orchestrator.Result, error)
}

// Server is the HTTP API server.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server

	store     apiStore
	orch      messageProcessor
	webhook   *webhook.Handler
	masterKey string

	// Three independent tiers (spec.md section 4.2/5): admin writes and
	// message ingress are limited per identity, global is limited per
	// caller IP regardless of route.
	adminLimiter   *auth.RateLimiter
	messageLimiter *auth.RateLimiter
	globalLimiter  *auth.RateLimiter
}

// NewServer wires the router: rate limiting, auth middleware, and every
// route in spec.md section 6.1 plus the webhook routes from section 6.2.
func NewServer(store apiStore, orch *orchestrator.Orchestrator, webhookHandler *webhook.Handler, masterKey string, adminLimiter, messageLimiter, globalLimiter *auth.RateLimiter) *Server {
	e := echo.New()

	s := &Server{
		echo:           e,
		store:          store,
		orch:           orch,
		webhook:        webhookHandler,
		masterKey:      masterKey,
		adminLimiter:   adminLimiter,
		messageLimiter: messageLimiter,
		globalLimiter:  globalLimiter,
	}

	s.setupRoutes()
	return s
}

// ValidateWiring checks that every required dependency was supplied,
// catching an incomplete wiring call in cmd/stagehand at startup instead
// of as a nil-pointer panic on the first request.
func (s *Server) ValidateWiring() error {
	var errs []error
	if s.store == nil {
		errs = append(errs, fmt.Errorf("store not set"))
	}
	if s.orch == nil {
		errs = append(errs, fmt.Errorf("orchestrator not set"))
	}
	if s.webhook == nil {
		errs = append(errs, fmt.Errorf("webhook handler not set"))
	}
	if s.adminLimiter == nil {
		errs = append(errs, fmt.Errorf("admin rate limiter not set"))
	}
	if s.messageLimiter == nil {
		errs = append(errs, fmt.Errorf("message rate limiter not set"))
	}
	if s.globalLimiter == nil {
		errs = append(errs, fmt.Errorf("global rate limiter not set"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("server wiring incomplete: %w", errors.Join(errs...))
	}
	return nil
}

func (s *Server) setupRoutes() {
	s.echo.Use(middleware.BodyLimit(2 * 1024 * 1024))
	s.echo.Use(securityHeaders())
	s.echo.Use(s.globalLimiter.Middleware(auth.RemoteAddrKey))

	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/ping", s.handlePing)

	s.echo.POST("/api/save-config", s.handleSaveConfig)

	masterOnly := auth.MasterKeyOnly(s.masterKey)
	businessAuth := auth.MasterOrBusinessKey(s.masterKey, s.store)
	adminWrite := s.adminLimiter.Middleware(auth.IdentityKey)
	messageRate := s.messageLimiter.Middleware(auth.IdentityKey)

	s.echo.POST("/businesses", s.handleCreateBusiness, masterOnly, adminWrite)
	s.echo.GET("/businesses/:id", s.handleGetBusiness, businessAuth)

	s.echo.POST("/stages", s.handleCreateStage, businessAuth, adminWrite)
	s.echo.GET("/stages", s.handleListStages, businessAuth)
	s.echo.GET("/stages/:id", s.handleGetStage, businessAuth)
	s.echo.PUT("/stages/:id", s.handleUpdateStage, businessAuth, adminWrite)
	s.echo.DELETE("/stages/:id", s.handleDeleteStage, businessAuth, adminWrite)

	s.echo.POST("/templates", s.handleCreateTemplate, businessAuth, adminWrite)
	s.echo.GET("/templates", s.handleListTemplates, businessAuth)
	s.echo.GET("/templates/:id", s.handleGetTemplate, businessAuth)
	s.echo.PUT("/templates/:id", s.handleUpdateTemplate, businessAuth, adminWrite)
	s.echo.DELETE("/templates/:id", s.handleDeleteTemplate, businessAuth, adminWrite)

	s.echo.POST("/message", s.handleMessage, businessAuth, messageRate)
	s.echo.GET("/conversations/:user_id", s.handleListConversations, businessAuth)

	s.echo.GET("/webhooks/:platform", s.webhook.VerifyChallenge)
	s.echo.POST("/webhooks/:platform", s.webhook.HandleEvent)
}

// Start starts the HTTP server on the given address (non-blocking from the
// caller's perspective once spawned in its own goroutine).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener, for
// tests that want a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// securityHeaders sets standard security response headers, following the
// teacher's own middleware.go.
func securityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			return next(c)
		}
	}
}
