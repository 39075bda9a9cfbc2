package modules

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/magic-code-auth/internal/container"
	handlers "github.com/oksasatya/magic-code-auth/internal/interface/http"
	"github.com/oksasatya/magic-code-auth/internal/interface/middleware"
)

// IssuerModule wires the issuer routes. Registered under /auth:
// GET /authorize, GET|POST /code/authorize, POST /token, GET /userinfo,
// GET /.well-known/oauth-authorization-server
type IssuerModule struct {
	Handler  *handlers.IssuerHandler
	Verifier middleware.TokenVerifier
	Allow    middleware.AllowFunc
}

func NewIssuerModule(h *handlers.IssuerHandler, v middleware.TokenVerifier, allow middleware.AllowFunc) *IssuerModule {
	return &IssuerModule{Handler: h, Verifier: v, Allow: allow}
}

func (m *IssuerModule) Register(rg *gin.RouterGroup) {
	rdb := container.GetRedis()
	authorizeLimiter := middleware.RateLimit(rdb, 30, time.Minute, middleware.KeyByIP(), m.Allow)
	codeLimiter := middleware.RateLimit(rdb, 30, time.Minute, middleware.KeyByIPAndPath(), m.Allow)
	pendingLimiter := middleware.RateLimit(rdb, 15, time.Minute, middleware.KeyByPending(), m.Allow)
	tokenLimiter := middleware.RateLimit(rdb, 60, time.Minute, middleware.KeyByIPAndPath(), m.Allow)

	rg.GET("/authorize", authorizeLimiter, m.Handler.Authorize)
	rg.GET("/code/authorize", m.Handler.CodePage)
	rg.POST("/code/authorize", codeLimiter, pendingLimiter, m.Handler.CodeAction)
	rg.POST("/token", tokenLimiter, m.Handler.Token)
	rg.GET("/userinfo", middleware.BearerAuth(m.Verifier), m.Handler.UserInfo)
	rg.GET("/.well-known/oauth-authorization-server", m.Handler.Metadata)
}

// HealthModule serves GET / on the engine root.
type HealthModule struct {
	Handler *handlers.IssuerHandler
}

func NewHealthModule(h *handlers.IssuerHandler) *HealthModule { return &HealthModule{Handler: h} }

func (m *HealthModule) Register(rg *gin.RouterGroup) {
	rg.GET("/", m.Handler.Health)
}
