package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/inventory-manager/inventory-manager/internal/platform/httpx"
	"github.com/inventory-manager/inventory-manager/internal/shared"
)

// PrincipalLoader builds a principal for a session user id.
type PrincipalLoader interface {
	LoadPrincipal(ctx context.Context, userID int64) (*Principal, error)
}

// ErrorRenderer draws the HTML error page.
type ErrorRenderer interface {
	RenderError(w http.ResponseWriter, r *http.Request, status int, message string)
}

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Gate   *Gate
	Loader PrincipalLoader
	Errors ErrorRenderer
	Logger *slog.Logger
}

// LoadPrincipal resolves the session user into a Principal stored on the
// request context. Sessions pointing at deleted users are logged out.
func (m Middleware) LoadPrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil || m.Loader == nil {
			next.ServeHTTP(w, r)
			return
		}
		userID, ok := sess.UserID()
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		principal, err := m.Loader.LoadPrincipal(r.Context(), userID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				sess.ClearUser()
				next.ServeHTTP(w, r)
				return
			}
			m.logError("rbac load principal", err)
			m.fail(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
	})
}

// RequireLogin rejects anonymous requests before they reach a handler.
func (m Middleware) RequireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if PrincipalFromContext(r.Context()) == nil {
			m.fail(w, r, shared.NewError(shared.ErrUnauthenticated, "Please log in to access this page"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole allows only principals whose role is at least as privileged as
// the named role. It implies RequireLogin.
func (m Middleware) RequireRole(short string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return m.RequireLogin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := m.Gate.Authorize(r.Context(), PrincipalFromContext(r.Context()), short); err != nil {
				if !errors.Is(err, shared.ErrPermission) {
					m.logError("rbac require role", err)
				}
				m.fail(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

// GuestOnly sends logged-in users home, used by login, setup and sign-up.
func (m Middleware) GuestOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if PrincipalFromContext(r.Context()) != nil {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// LoginURL builds the login link that returns to the current page.
func LoginURL(r *http.Request) string {
	if r.Method != http.MethodGet {
		return "/login"
	}
	return "/login?next=" + url.QueryEscape(r.URL.RequestURI())
}

func (m Middleware) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := httpx.StatusFor(err)
	if httpx.WantsJSON(r) || m.Errors == nil {
		httpx.RespondError(w, err)
		return
	}
	m.Errors.RenderError(w, r, status, shared.UserSafeMessage(err))
}

func (m Middleware) logError(msg string, err error) {
	if m.Logger != nil {
		m.Logger.Error(msg, slog.Any("error", err))
	}
}
