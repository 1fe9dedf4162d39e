package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Dylan-Perrill/Sora2-Tool/internal/http/handlers"
	"github.com/Dylan-Perrill/Sora2-Tool/internal/infra"
	"github.com/Dylan-Perrill/Sora2-Tool/internal/middleware"
)

// Options carries the router knobs that come from configuration.
type Options struct {
	AllowedOrigins  []string
	RateLimitPerMin int

	// StaticDir, when set, is served under /static/ so the filesystem
	// artifact store has a URL surface in development.
	StaticDir string

	Logger *infra.Logger
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		chimw.RealIP,
		chimw.Recoverer,
		middleware.RequestID,
		middleware.Logger(*opts.Logger),
		middleware.CORS(opts.AllowedOrigins),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/connectivity", app.Connectivity)

	r.Route("/v1/jobs", func(r chi.Router) {
		// Creation hits the paid upstream, so only it is rate limited.
		create := http.HandlerFunc(app.CreateJob)
		if opts.RateLimitPerMin > 0 {
			r.With(middleware.RateLimit(opts.RateLimitPerMin, time.Minute)).Post("/", create)
		} else {
			r.Post("/", create)
		}
		r.Get("/", app.ListJobs)
		r.Get("/{id}", app.GetJob)
		r.Post("/{id}/reconcile", app.ReconcileJob)
		r.Delete("/{id}", app.DeleteJob)
	})

	if opts.StaticDir != "" {
		files := http.StripPrefix("/static/", http.FileServer(http.Dir(opts.StaticDir)))
		r.Get("/static/*", files.ServeHTTP)
	}

	return r
}
