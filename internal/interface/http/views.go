package handlers

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
)

//go:embed views/*.html
var viewsFS embed.FS

// View names.
const (
	ViewEmail    = "email.html"
	ViewCode     = "code.html"
	ViewError    = "error.html"
	ViewAppHome  = "app_home.html"
	ViewAppLogin = "app_login.html"
)

// Views holds one parsed template per page, each wrapped in the layout.
type Views struct {
	pages map[string]*template.Template
}

func NewViews() (*Views, error) {
	names := []string{ViewEmail, ViewCode, ViewError, ViewAppHome, ViewAppLogin}
	v := &Views{pages: make(map[string]*template.Template, len(names))}
	for _, n := range names {
		t, err := template.New(n).ParseFS(viewsFS, "views/layout.html", "views/"+n)
		if err != nil {
			return nil, fmt.Errorf("parse view %s: %w", n, err)
		}
		v.pages[n] = t
	}
	return v, nil
}

// MustViews panics when the embedded templates do not parse.
func MustViews() *Views {
	v, err := NewViews()
	if err != nil {
		panic(err)
	}
	return v
}

func (v *Views) Render(c *gin.Context, status int, name string, data any) {
	t, ok := v.pages[name]
	if !ok {
		c.String(http.StatusInternalServerError, "unknown view")
		return
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		_ = c.Error(err)
		c.String(http.StatusInternalServerError, "render failed")
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(status, "text/html; charset=utf-8", buf.Bytes())
}

type errorPage struct {
	Title   string
	Message string
}
