package main

import (
	"html/template"
	"net/http"
)

var pageTmpl = template.Must(template.New("page").Parse(`<!doctype html>
<html lang="en">
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<h1>{{.Title}}</h1>
{{if .Email}}<p>Signed in as <strong>{{.Email}}</strong>. You can close this window.</p>
{{else}}<p>{{.Message}}</p>{{end}}
</body>
</html>
`))

type pageData struct {
	Title   string
	Email   string
	Message string
}

func renderPage(w http.ResponseWriter, status int, d pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = pageTmpl.Execute(w, d)
}
