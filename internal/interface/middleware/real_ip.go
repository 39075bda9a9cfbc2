package middleware

import (
	"net"
	"strings"

	"github.com/gin-gonic/gin"
)

// CtxRealIPKey holds the resolved client address. Rate limit keys and the
// code emails ("requested from ...") both read it.
const CtxRealIPKey = "real_ip"

// DefaultIPHeaders is the lookup order used when RealIP gets no headers.
var DefaultIPHeaders = []string{"CF-Connecting-IP", "X-Real-IP", "X-Forwarded-For"}

// RealIP resolves the client address from proxy headers, first valid one
// wins. For X-Forwarded-For the left-most entry is used. Without a usable
// header it falls back to c.ClientIP().
func RealIP(headers ...string) gin.HandlerFunc {
	if len(headers) == 0 {
		headers = DefaultIPHeaders
	}
	return func(c *gin.Context) {
		ip := ""
		for _, h := range headers {
			if ip = headerIP(c.GetHeader(h)); ip != "" {
				break
			}
		}
		if ip == "" {
			ip = c.ClientIP()
		}
		c.Set(CtxRealIPKey, ip)
		c.Next()
	}
}

func headerIP(v string) string {
	if v == "" {
		return ""
	}
	first, _, _ := strings.Cut(v, ",")
	if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
		return ip.String()
	}
	return ""
}

// ClientIP returns the address RealIP resolved, or c.ClientIP() when the
// middleware is not installed.
func ClientIP(c *gin.Context) string {
	if ip := c.GetString(CtxRealIPKey); ip != "" {
		return ip
	}
	return c.ClientIP()
}
