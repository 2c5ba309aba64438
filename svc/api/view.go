package api

import (
	"html/template"
	"net/http"
	"net/url"

	"pbnj/pkg/domain"
	"pbnj/svc/util"

	"github.com/go-chi/chi/v5"
)

var viewTmpl = template.Must(template.New("view").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta name="robots" content="noindex">
<title>{{.Title}}</title>
<style>
body{margin:0;background:{{.Background}};color:{{.Foreground}};font-family:ui-monospace,monospace}
header{display:flex;gap:1rem;padding:.5rem 1rem;font-size:.85rem;opacity:.8}
header a{color:inherit}
main pre{margin:0;padding:1rem;overflow-x:auto}
</style>
</head>
<body>
<header><span>{{.Title}}</span><span>{{.Language}}</span><a href="{{.RawURL}}">raw</a></header>
<main>{{.Code}}</main>
</body>
</html>
`))

type viewData struct {
	Title      string
	Language   string
	RawURL     string
	Background template.CSS
	Foreground template.CSS
	Code       template.HTML
}

// ViewPaste renders the highlighted page for a paste. The key rule is the
// same as RawPaste.
func (h *Hdl) ViewPaste(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	requestID := util.GetRequestID(r.Context())
	key := r.URL.Query().Get("key")
	paste, err := h.paste.Get(r.Context(), id, key)
	if err != nil {
		status := domain.Status(err)
		if status >= 500 {
			util.Error().Err(err).Str("id", id).Str("request_id", requestID).Msg("view failed")
		}
		http.Error(w, http.StatusText(status), status)
		return
	}
	raw := "/r/" + url.PathEscape(paste.ID)
	if key != "" {
		raw += "?key=" + url.QueryEscape(key)
	}
	title := paste.Filename
	if title == "" {
		title = paste.ID
	}
	theme := h.paste.Theme()
	data := viewData{
		Title:      title,
		Language:   paste.Language,
		RawURL:     raw,
		Background: template.CSS(theme.Background),
		Foreground: template.CSS(theme.Foreground),
		// renderer output is either chroma markup or escaped text
		Code: template.HTML(h.paste.Highlighted(paste)),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := viewTmpl.Execute(w, data); err != nil {
		util.Error().Err(err).Str("id", id).Str("request_id", requestID).Msg("view template failed")
	}
}
