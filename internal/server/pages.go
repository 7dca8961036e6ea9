package server

import (
	"bytes"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/maauso/episode-drop/internal/episode"
)

//go:embed templates/*.html
var templateFS embed.FS

func parsePages() *template.Template {
	funcs := template.FuncMap{
		"datetime": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.UTC().Format("2006-01-02 15:04 MST")
		},
	}
	return template.Must(template.New("pages").Funcs(funcs).ParseFS(templateFS, "templates/*.html"))
}

type adminPage struct {
	Submissions []episode.Submission
	Errors      []episode.ItemError
	Total       int
}

// Index handles GET / and serves the upload page.
func (h *Handlers) Index(w http.ResponseWriter, r *http.Request) {
	h.render(w, "index.html", nil)
}

// Admin handles GET /admin and renders every recorded submission.
func (h *Handlers) Admin(w http.ResponseWriter, r *http.Request) {
	listing := h.listSubmissions(r.Context())
	h.render(w, "admin.html", adminPage{
		Submissions: listing.Submissions,
		Errors:      listing.Errors,
		Total:       len(listing.Submissions),
	})
}

// render executes into a buffer so template errors still produce a clean 500.
func (h *Handlers) render(w http.ResponseWriter, name string, data any) {
	var buf bytes.Buffer
	if err := h.pages.ExecuteTemplate(&buf, name, data); err != nil {
		h.logger.Error("failed to render page",
			slog.String("page", name),
			slog.String("error", err.Error()),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}
