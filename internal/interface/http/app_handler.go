package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/magic-code-auth/internal/interface/middleware"
	"github.com/oksasatya/magic-code-auth/pkg/authclient"
	"github.com/oksasatya/magic-code-auth/pkg/helpers"
)

// AppClient is satisfied by *authclient.Client.
type AppClient interface {
	Authorize(redirectURI string, opts ...authclient.AuthorizeOption) (*authclient.AuthorizeResult, error)
	Exchange(ctx context.Context, code, redirectURI, verifier string) (*authclient.Tokens, error)
}

// AppHandler is the demo relying party: a cookie session on top of the issuer.
type AppHandler struct {
	Client  AppClient
	Cookies *helpers.Manager
	Logger  *logrus.Logger
	Views   *Views
	// PublicURL overrides the origin derived from the request.
	PublicURL string
}

func NewAppHandler(client AppClient, cookies *helpers.Manager, logger *logrus.Logger, views *Views, publicURL string) *AppHandler {
	if logger == nil {
		logger = helpers.NopLogger()
	}
	return &AppHandler{Client: client, Cookies: cookies, Logger: logger, Views: views, PublicURL: strings.TrimRight(publicURL, "/")}
}

func (h *AppHandler) origin(c *gin.Context) string {
	if h.PublicURL != "" {
		return h.PublicURL
	}
	scheme := "http"
	if c.Request.TLS != nil || strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host
}

func (h *AppHandler) callbackURL(c *gin.Context) string { return h.origin(c) + "/callback" }

// Home GET /
func (h *AppHandler) Home(c *gin.Context) {
	sub, ok := middleware.SubjectFrom(c)
	if !ok {
		h.Views.Render(c, http.StatusOK, ViewAppLogin, nil)
		return
	}
	h.Views.Render(c, http.StatusOK, ViewAppHome, sub.Properties)
}

// Login POST /login
func (h *AppHandler) Login(c *gin.Context) {
	res, err := h.Client.Authorize(h.callbackURL(c))
	if err != nil {
		h.Logger.WithError(err).Error("build authorize url failed")
		c.String(http.StatusInternalServerError, "Login unavailable")
		return
	}
	c.Redirect(http.StatusFound, res.URL)
}

// Callback GET /callback
func (h *AppHandler) Callback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		c.String(http.StatusBadRequest, "Missing code")
		return
	}
	tokens, err := h.Client.Exchange(c.Request.Context(), code, h.callbackURL(c), "")
	if err != nil {
		h.Logger.WithError(err).WithField("request_id", c.GetString("request_id")).Warn("code exchange failed")
		c.String(http.StatusBadRequest, "Authentication failed")
		return
	}
	h.Cookies.SetPair(c, tokens.AccessToken, tokens.RefreshToken)
	c.Redirect(http.StatusFound, "/")
}

// Logout POST /logout
func (h *AppHandler) Logout(c *gin.Context) {
	h.Cookies.Clear(c)
	c.Redirect(http.StatusFound, "/")
}
