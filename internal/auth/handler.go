package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/inventory-manager/inventory-manager/internal/rbac"
	"github.com/inventory-manager/inventory-manager/internal/shared"
	"github.com/inventory-manager/inventory-manager/internal/users"
	"github.com/inventory-manager/inventory-manager/internal/view"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	templates      *view.Engine
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	rbac           rbac.Middleware
	openSignup     bool
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, sessions *shared.SessionManager, csrf *shared.CSRFManager, rbac rbac.Middleware, openSignup bool) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		templates:      templates,
		sessionManager: sessions,
		csrfManager:    csrf,
		rbac:           rbac,
		openSignup:     openSignup,
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.GuestOnly)
		r.Get("/login", h.showLogin)
		r.Post("/login", h.handleLogin)
		r.Get("/auth/login", h.showLogin)
		r.Post("/auth/login", h.handleLogin)
		r.Get("/setup", h.showSetup)
		r.Post("/setup", h.handleSetup)
	})
	r.Post("/auth/logout", h.handleLogout)
	r.Get("/logout", h.handleLogout)
}

type loginForm struct {
	Email string
	Next  string
}

type loginPageData struct {
	Form       loginForm
	Errors     shared.ValidationErrors
	OpenSignup bool
}

type setupForm struct {
	Name  string
	Email string
}

type setupPageData struct {
	Form   setupForm
	Errors shared.ValidationErrors
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	if empty, err := h.service.NeedsSetup(r.Context()); err == nil && empty {
		http.Redirect(w, r, "/setup", http.StatusSeeOther)
		return
	}
	data := loginPageData{Form: loginForm{Next: safeNext(r.URL.Query().Get("next"))}, OpenSignup: h.openSignup}
	h.render(w, r, http.StatusOK, "pages/login.html", "Log in", data)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	input := LoginInput{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}
	data := loginPageData{
		Form:       loginForm{Email: input.Email, Next: safeNext(r.PostFormValue("next"))},
		OpenSignup: h.openSignup,
	}
	if verrs := shared.FormErrors(h.service.validate.Struct(input)); verrs != nil {
		data.Errors = verrs
		h.render(w, r, http.StatusBadRequest, "pages/login.html", "Log in", data)
		return
	}

	user, err := h.service.Authenticate(r.Context(), input.Email, input.Password)
	if err != nil {
		if !errors.Is(err, shared.ErrValidation) {
			h.logger.Error("authenticate", slog.Any("error", err))
		}
		data.Errors = shared.ValidationErrors{"general": shared.UserSafeMessage(err)}
		h.render(w, r, http.StatusBadRequest, "pages/login.html", "Log in", data)
		return
	}

	h.startSession(w, r, user, "Welcome back, "+user.DisplayName())
	target := data.Form.Next
	if target == "" {
		target = "/"
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
		h.sessionManager.Destroy(sess)
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *Handler) showSetup(w http.ResponseWriter, r *http.Request) {
	empty, err := h.service.NeedsSetup(r.Context())
	if err != nil {
		h.logger.Error("check setup", slog.Any("error", err))
		h.templates.RenderError(w, r, http.StatusInternalServerError, shared.UserSafeMessage(err))
		return
	}
	if !empty {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.render(w, r, http.StatusOK, "pages/setup.html", "Set up", setupPageData{})
}

func (h *Handler) handleSetup(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	input := SetupInput{
		Name:            r.PostFormValue("name"),
		Email:           r.PostFormValue("email"),
		Password:        r.PostFormValue("password"),
		PasswordConfirm: r.PostFormValue("password_confirm"),
	}
	id, err := h.service.Setup(r.Context(), input)
	if err != nil {
		if errors.Is(err, ErrAlreadySetup) {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		data := setupPageData{Form: setupForm{Name: input.Name, Email: input.Email}}
		var verrs shared.ValidationErrors
		switch {
		case errors.As(err, &verrs):
			data.Errors = verrs
		case errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrConflict):
			data.Errors = shared.ValidationErrors{"general": shared.UserSafeMessage(err)}
		default:
			h.logger.Error("setup", slog.Any("error", err))
			h.templates.RenderError(w, r, http.StatusInternalServerError, shared.UserSafeMessage(err))
			return
		}
		h.render(w, r, http.StatusBadRequest, "pages/setup.html", "Set up", data)
		return
	}
	h.startSession(w, r, users.User{ID: id, Name: input.Name, Email: input.Email}, "Your super admin account is ready")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// startSession rotates the session id, stores the user and records the login.
func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, user users.User, welcome string) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		return
	}
	h.sessionManager.Renew(sess)
	sess.SetUser(user.ID)
	sess.Flash(shared.FlashSuccess, welcome)
	err := h.service.RegisterSession(r.Context(), LoginSession{
		ID:        sess.ID,
		UserID:    user.ID,
		ExpiresAt: h.service.now().Add(h.sessionManager.TTL()),
		IP:        r.RemoteAddr,
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		h.logger.Warn("register session", slog.Any("error", err))
	}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, template, title string, data any) {
	viewData := view.NewTemplateData(r, h.csrfManager, title, data)
	if err := h.templates.RenderStatus(w, status, template, viewData); err != nil {
		h.logger.Error("render template", slog.String("template", template), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// safeNext keeps only same-site paths so the login form cannot be used as an
// open redirect.
func safeNext(next string) string {
	next = strings.TrimSpace(next)
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return ""
	}
	u, err := url.Parse(next)
	if err != nil || u.IsAbs() || u.Host != "" {
		return ""
	}
	return next
}

// ShowLoginForTest exposes the GET handler for tests.
func (h *Handler) ShowLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.showLogin(w, r)
}

// HandleLoginForTest exposes the POST handler for tests.
func (h *Handler) HandleLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.handleLogin(w, r)
}
