package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/magic-code-auth/pkg/authclient"
	"github.com/oksasatya/magic-code-auth/pkg/helpers"
)

// SessionVerifier is satisfied by *authclient.Client.
type SessionVerifier interface {
	Verify(ctx context.Context, access, refresh string) (*authclient.VerifyResult, error)
}

// Session reads the token cookies, verifies them (refreshing when the access
// token is stale) and stores the subject. Requests without a valid session
// pass through anonymously.
func Session(v SessionVerifier, cookies *helpers.Manager, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		access, refresh := cookies.Pair(c)
		if access == "" && refresh == "" {
			c.Next()
			return
		}
		res, err := v.Verify(c.Request.Context(), access, refresh)
		if err != nil {
			if logger != nil {
				logger.WithError(err).WithField("request_id", c.GetString("request_id")).Debug("session rejected")
			}
			c.Next()
			return
		}
		if res.Tokens != nil {
			cookies.SetPair(c, res.Tokens.AccessToken, res.Tokens.RefreshToken)
		}
		setSubject(c, res.Subject)
		c.Next()
	}
}
