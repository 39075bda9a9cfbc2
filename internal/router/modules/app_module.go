package modules

import (
	"github.com/gin-gonic/gin"

	handlers "github.com/oksasatya/magic-code-auth/internal/interface/http"
)

// AppModule is the demo web app: GET /, POST /login, GET /callback, POST /logout.
// Session must run before the handlers so GET / sees the subject.
type AppModule struct {
	Handler *handlers.AppHandler
	Session gin.HandlerFunc
}

func NewAppModule(h *handlers.AppHandler, session gin.HandlerFunc) *AppModule {
	return &AppModule{Handler: h, Session: session}
}

func (m *AppModule) Register(rg *gin.RouterGroup) {
	rg.GET("/", m.Session, m.Handler.Home)
	rg.POST("/login", m.Handler.Login)
	rg.GET("/callback", m.Handler.Callback)
	rg.POST("/logout", m.Handler.Logout)
}
