package helpers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
)

// Manager writes the token cookie pair. Both cookies share one max-age so a
// rotated refresh token never outlives its access token cookie.
type Manager struct {
	Domain string
	Secure bool
	MaxAge time.Duration
}

func NewCookie(domain string, secure bool, maxAge time.Duration) *Manager {
	return &Manager{Domain: domain, Secure: secure, MaxAge: maxAge}
}

func (m *Manager) SetPair(c *gin.Context, access, refresh string) {
	c.SetSameSite(http.SameSiteLaxMode)
	maxAge := int(m.MaxAge.Seconds())
	c.SetCookie(AccessTokenCookie, access, maxAge, "/", m.Domain, m.Secure, true)
	c.SetCookie(RefreshTokenCookie, refresh, maxAge, "/", m.Domain, m.Secure, true)
}

func (m *Manager) Clear(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(AccessTokenCookie, "", -1, "/", m.Domain, m.Secure, true)
	c.SetCookie(RefreshTokenCookie, "", -1, "/", m.Domain, m.Secure, true)
}

// Pair reads the token cookies; missing cookies come back empty.
func (m *Manager) Pair(c *gin.Context) (access, refresh string) {
	access, _ = c.Cookie(AccessTokenCookie)
	refresh, _ = c.Cookie(RefreshTokenCookie)
	return access, refresh
}
