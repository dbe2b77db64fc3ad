package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/inventory-manager/inventory-manager/internal/assets"
	"github.com/inventory-manager/inventory-manager/internal/auth"
	"github.com/inventory-manager/inventory-manager/internal/invitations"
	"github.com/inventory-manager/inventory-manager/internal/observability"
	"github.com/inventory-manager/inventory-manager/internal/passwordreset"
	"github.com/inventory-manager/inventory-manager/internal/platform/httpx"
	"github.com/inventory-manager/inventory-manager/internal/rbac"
	"github.com/inventory-manager/inventory-manager/internal/roles"
	"github.com/inventory-manager/inventory-manager/internal/shared"
	"github.com/inventory-manager/inventory-manager/internal/users"
	"github.com/inventory-manager/inventory-manager/internal/view"
	"github.com/inventory-manager/inventory-manager/jobs"
	"github.com/inventory-manager/inventory-manager/report"
	"github.com/inventory-manager/inventory-manager/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Templates      *view.Engine
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	RBACMiddleware rbac.Middleware
	Metrics        *observability.Metrics

	AuthHandler          *auth.Handler
	UsersHandler         *users.Handler
	InvitationsHandler   *invitations.Handler
	PasswordResetHandler *passwordreset.Handler
	AssetsHandler        *assets.Handler
	ReportHandler        *report.Handler
	JobHandler           *jobs.Handler
}

// NewRouter constructs the chi.Router with the application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
		Errors:         params.Templates,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)
	r.Use(params.RBACMiddleware.LoadPrincipal)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	params.AssetsHandler.MountHome(r)
	params.AuthHandler.MountRoutes(r)
	params.InvitationsHandler.MountSignupRoutes(r)

	r.Route("/users", func(r chi.Router) {
		params.UsersHandler.MountRoutes(r)
		params.InvitationsHandler.MountInviteRoutes(r)
	})
	r.Route("/account", params.UsersHandler.MountAccountRoutes)
	r.Route("/password_reset", params.PasswordResetHandler.MountRoutes)
	r.Route("/assets", params.AssetsHandler.MountRoutes)

	if params.ReportHandler != nil {
		r.Route("/report", func(r chi.Router) {
			r.Use(params.RBACMiddleware.RequireRole(roles.ShortAdmin))
			params.ReportHandler.MountRoutes(r)
		})
	}
	if params.JobHandler != nil {
		r.Route("/jobs", func(r chi.Router) {
			r.Use(params.RBACMiddleware.RequireRole(roles.ShortAdmin))
			params.JobHandler.MountRoutes(r)
			params.JobHandler.MountAdminRoutes(r)
		})
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		if httpx.WantsJSON(r) {
			httpx.Problem(w, http.StatusNotFound, "Not found", "")
			return
		}
		params.Templates.RenderError(w, r, http.StatusNotFound, "Page not found")
	})

	return r
}

// staticCacheHandler wraps a file server with Cache-Control headers.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
