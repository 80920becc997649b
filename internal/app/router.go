package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/inkwell-cms/inkwell/internal/auth"
	"github.com/inkwell-cms/inkwell/internal/comments"
	"github.com/inkwell-cms/inkwell/internal/observability"
	"github.com/inkwell-cms/inkwell/internal/posts"
	"github.com/inkwell-cms/inkwell/internal/rbac"
	"github.com/inkwell-cms/inkwell/internal/stats"
	"github.com/inkwell-cms/inkwell/internal/users"
	"github.com/inkwell-cms/inkwell/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	AuthService     *auth.Service
	AuthHandler     *auth.Handler
	PostsHandler    *posts.Handler
	CommentsHandler *comments.Handler
	UsersHandler    *users.Handler
	RolesHandler    *rbac.Handler
	StatsHandler    *stats.Handler
	JobsHandler     *jobs.Handler
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with Inkwell defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:      params.Logger,
		Config:      params.Config,
		AuthService: params.AuthService,
		Metrics:     params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)
	r.Route("/posts", func(r chi.Router) {
		params.PostsHandler.MountRoutes(r)
		r.Route("/{postID}/comments", params.CommentsHandler.MountPostRoutes)
	})
	r.Route("/comments", params.CommentsHandler.MountRoutes)
	r.Route("/users", params.UsersHandler.MountRoutes)
	r.Route("/roles", params.RolesHandler.MountRoutes)
	r.Route("/permissions", params.RolesHandler.MountPermissionRoutes)
	r.Route("/stats", params.StatsHandler.MountRoutes)
	if params.JobsHandler != nil {
		r.Route("/jobs", params.JobsHandler.MountRoutes)
	}

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
