package modules

import (
	"encoding/json"
	"expvar"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/magic-code-auth/internal/container"
	"github.com/oksasatya/magic-code-auth/internal/interface/middleware"
)

// DebugModule serves expvar counters at /debug/vars. With a Prefix only
// matching vars are shown (e.g. "auth_" for the login counters).
type DebugModule struct {
	Prefix string
}

func NewDebugModule(prefix string) *DebugModule { return &DebugModule{Prefix: prefix} }

func (m *DebugModule) Register(rg *gin.RouterGroup) {
	rl := middleware.RateLimit(container.GetRedis(), 120, time.Minute, middleware.KeyByIP(), nil)
	rg.GET("/debug/vars", rl, m.vars)
}

func (m *DebugModule) vars(c *gin.Context) {
	out := make(map[string]json.RawMessage)
	expvar.Do(func(kv expvar.KeyValue) {
		if m.Prefix == "" || strings.HasPrefix(kv.Key, m.Prefix) {
			out[kv.Key] = json.RawMessage(kv.Value.String())
		}
	})
	c.JSON(http.StatusOK, out)
}
