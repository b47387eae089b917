package http

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/telagent/gateway/internal/auth"
	"github.com/telagent/gateway/internal/config"
	"github.com/telagent/gateway/internal/domain"
	"github.com/telagent/gateway/internal/service"
)

// SessionStore persists authenticated sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, session *domain.Session) error
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	UpdateSessionToken(ctx context.Context, sessionID string, token domain.TokenSet) error
	UpdateSessionThread(ctx context.Context, sessionID, threadID string) error
	DeleteSession(ctx context.Context, sessionID string) error
}

// SecuredBackend answers policy-scoped data queries.
type SecuredBackend interface {
	Query(ctx context.Context, role domain.Role, q domain.SecuredQuery) (*domain.SecuredResult, error)
}

// Handler handles HTTP requests.
type Handler struct {
	service  *service.Service
	authn    *auth.Authenticator
	roles    auth.RoleResolver
	sessions SessionStore
	secured  SecuredBackend
	config   *config.Config
}

// NewHandler creates a new handler.
func NewHandler(svc *service.Service, authn *auth.Authenticator, roles auth.RoleResolver, sessions SessionStore, secured SecuredBackend, cfg *config.Config) *Handler {
	return &Handler{
		service:  svc,
		authn:    authn,
		roles:    roles,
		sessions: sessions,
		secured:  secured,
		config:   cfg,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/chat", h.Chat)
	e.POST("/send-as-user", h.SendAsUser)
	e.POST("/schedule-as-user", h.ScheduleAsUser)
	e.POST("/secured-search", h.SecuredSearch)

	e.GET("/auth/login", h.Login)
	e.GET("/auth/callback", h.Callback)
	e.GET("/auth/token", h.SessionToken)
	e.POST("/auth/logout", h.Logout)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}
