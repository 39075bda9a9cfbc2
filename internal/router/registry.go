package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type Registry struct {
	Engine      *gin.Engine
	API         *gin.RouterGroup
	middlewares []gin.HandlerFunc
	preflight   bool
	modules     []Module
	rootModules []Module
}

// NewRegistry mounts API modules under prefix ("/auth" for the issuer, ""
// for the demo app).
func NewRegistry(engine *gin.Engine, prefix string) *Registry {
	api := engine.Group(prefix)
	return &Registry{Engine: engine, API: api}
}

// Use adds middleware to the API group only.
func (r *Registry) Use(mw ...gin.HandlerFunc) {
	r.middlewares = append(r.middlewares, mw...)
}

// UseCORS installs a CORS middleware on the API group and routes OPTIONS
// requests there, so preflights reach it instead of a 404.
func (r *Registry) UseCORS(mw gin.HandlerFunc) {
	r.Use(mw)
	r.preflight = true
}

func (r *Registry) Add(mod Module) {
	r.modules = append(r.modules, mod)
}

// AddRoot registers a module on the engine root, outside the API prefix.
func (r *Registry) AddRoot(mod Module) {
	r.rootModules = append(r.rootModules, mod)
}

func (r *Registry) RegisterAll() {
	for _, m := range r.rootModules {
		m.Register(&r.Engine.RouterGroup)
	}
	if len(r.middlewares) > 0 {
		r.API.Use(r.middlewares...)
	}
	if r.preflight {
		r.API.OPTIONS("/*path", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	}
	for _, m := range r.modules {
		m.Register(r.API)
	}
}
