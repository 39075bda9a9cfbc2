package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/magic-code-auth/pkg/helpers"
	"github.com/oksasatya/magic-code-auth/pkg/response"
)

// Context keys set by the auth middlewares.
const (
	CtxSubjectKey = "subject"
	CtxUserIDKey  = "userID"
	CtxEmailKey   = "userEmail"
)

// TokenVerifier is satisfied by *auth.Issuer.
type TokenVerifier interface {
	Verify(access string) (helpers.Subject, error)
}

// BearerAuth validates the access token from the Authorization header (or
// the access_token cookie) and puts the subject on the context.
func BearerAuth(v TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.Header("WWW-Authenticate", `Bearer`)
			response.Abort(c, http.StatusUnauthorized, "missing access token", nil)
			return
		}
		sub, err := v.Verify(token)
		if err != nil {
			c.Header("WWW-Authenticate", `Bearer error="invalid_token"`)
			// the parser's reason goes to the access log, not the client
			_ = c.Error(err)
			response.Abort(c, http.StatusUnauthorized, "invalid access token", nil)
			return
		}
		setSubject(c, sub)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	if tok, err := c.Cookie(helpers.AccessTokenCookie); err == nil {
		return tok
	}
	return ""
}

func setSubject(c *gin.Context, sub helpers.Subject) {
	c.Set(CtxSubjectKey, sub)
	c.Set(CtxUserIDKey, sub.Properties.ID)
	c.Set(CtxEmailKey, sub.Properties.Email)
}

// SubjectFrom returns the subject stored by BearerAuth or Session.
func SubjectFrom(c *gin.Context) (helpers.Subject, bool) {
	v, ok := c.Get(CtxSubjectKey)
	if !ok {
		return helpers.Subject{}, false
	}
	sub, ok := v.(helpers.Subject)
	return sub, ok
}
