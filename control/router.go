// control/router.go
// Author: momentics <momentics@gmail.com>
//
// HTTP debug surface over probes, metrics and configuration.

package control

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

// NewDebugRouter mounts read-only debug endpoints under /debug.
// Any argument may be nil; the matching endpoint then answers 404.
func NewDebugRouter(probes *DebugProbes, metrics *MetricsRegistry, store *ConfigStore) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Route("/debug", func(r chi.Router) {
		r.Get("/state", func(w http.ResponseWriter, req *http.Request) {
			if probes == nil {
				notFound(w, req)
				return
			}
			render.JSON(w, req, probes.DumpState())
		})
		r.Get("/state/{probe}", func(w http.ResponseWriter, req *http.Request) {
			if probes == nil {
				notFound(w, req)
				return
			}
			name := chi.URLParam(req, "probe")
			state := probes.DumpState()
			v, ok := state[name]
			if !ok {
				notFound(w, req)
				return
			}
			render.JSON(w, req, map[string]any{name: v})
		})
		r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
			if metrics == nil {
				notFound(w, req)
				return
			}
			render.JSON(w, req, metrics.GetSnapshot())
		})
		r.Get("/config", func(w http.ResponseWriter, req *http.Request) {
			if store == nil {
				notFound(w, req)
				return
			}
			render.JSON(w, req, store.GetSnapshot())
		})
	})
	return r
}

func notFound(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusNotFound)
	render.JSON(w, r, map[string]string{"error": http.StatusText(http.StatusNotFound)})
}
