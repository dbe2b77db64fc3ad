package invitations

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/inventory-manager/inventory-manager/internal/platform/httpx"
	"github.com/inventory-manager/inventory-manager/internal/rbac"
	"github.com/inventory-manager/inventory-manager/internal/roles"
	"github.com/inventory-manager/inventory-manager/internal/shared"
	"github.com/inventory-manager/inventory-manager/internal/view"
)

// Handler serves the invite and sign-up pages.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	sessions  *shared.SessionManager
	csrf      *shared.CSRFManager
	rbac      rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, sessions *shared.SessionManager, csrf *shared.CSRFManager, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, templates: templates, sessions: sessions, csrf: csrf, rbac: rbac}
}

// MountInviteRoutes registers the routes living under /users.
func (h *Handler) MountInviteRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireRole(roles.ShortAdmin))
		r.Get("/invite", h.showInvite)
		r.Post("/invite", h.handleInvite)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.GuestOnly)
		r.Get("/signup", h.showSignup)
		r.Post("/signup", h.handleSignup)
	})
}

// MountSignupRoutes registers the top level sign-up routes.
func (h *Handler) MountSignupRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.GuestOnly)
		r.Get("/signup", h.showSignup)
		r.Post("/signup", h.handleSignup)
	})
}

type inviteForm struct {
	Email string
	Role  string
}

type invitePage struct {
	Form   inviteForm
	Errors shared.ValidationErrors
	Roles  []roles.Role
	Sent   []Invitation
}

type signupForm struct {
	Name   string
	Email  string
	Invite string
}

type signupPage struct {
	RoleTitle string
	Form      signupForm
	Errors    shared.ValidationErrors
}

func (h *Handler) showInvite(w http.ResponseWriter, r *http.Request) {
	h.renderInvite(w, r, http.StatusOK, invitePage{})
}

func (h *Handler) handleInvite(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sender := rbac.PrincipalFromContext(r.Context())
	form := inviteForm{Email: r.PostFormValue("email"), Role: r.PostFormValue("role")}
	inv, err := h.service.Invite(r.Context(), sender, InviteInput(form))
	if err != nil {
		if httpx.WantsJSON(r) {
			httpx.RespondError(w, err)
			return
		}
		page := invitePage{Form: form}
		var verrs shared.ValidationErrors
		switch {
		case errors.As(err, &verrs):
			page.Errors = verrs
		case errors.Is(err, shared.ErrEmailTaken):
			page.Errors = shared.ValidationErrors{"email": shared.UserSafeMessage(err)}
		case errors.Is(err, shared.ErrTransport):
			h.logger.Error("invitation mail", slog.Any("error", err))
			page.Errors = shared.ValidationErrors{"general": "The invitation email could not be sent, nothing was saved. Please try again."}
		case errors.Is(err, shared.ErrPermission), errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrConflict):
			page.Errors = shared.ValidationErrors{"general": shared.UserSafeMessage(err)}
		default:
			h.logger.Error("invite", slog.Any("error", err))
			h.templates.RenderError(w, r, http.StatusInternalServerError, shared.UserSafeMessage(err))
			return
		}
		h.renderInvite(w, r, httpx.StatusFor(err), page)
		return
	}
	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusCreated, map[string]any{"id": inv.PublicID, "email": inv.InviteeEmail, "role": inv.Role.Short})
		return
	}
	shared.AddFlash(r.Context(), shared.FlashSuccess, "Invitation sent to "+inv.InviteeEmail)
	http.Redirect(w, r, "/users/invite", http.StatusSeeOther)
}

func (h *Handler) renderInvite(w http.ResponseWriter, r *http.Request, status int, page invitePage) {
	sender := rbac.PrincipalFromContext(r.Context())
	var err error
	if page.Roles, err = h.service.GrantableRoles(r.Context(), sender); err != nil {
		h.fail(w, r, "list grantable roles", err)
		return
	}
	if page.Sent, err = h.service.ListSent(r.Context(), sender); err != nil {
		h.fail(w, r, "list invitations", err)
		return
	}
	if page.Form.Role == "" && len(page.Roles) > 0 {
		page.Form.Role = page.Roles[len(page.Roles)-1].Short
	}
	h.render(w, r, status, "pages/invite.html", "Invite a user", page)
}

func (h *Handler) showSignup(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("invite")
	page := signupPage{Form: signupForm{Invite: token}}
	if token == "" {
		if !h.service.AllowOpenSignup() {
			h.templates.RenderError(w, r, http.StatusForbidden, ErrSignupClosed.Message)
			return
		}
		h.render(w, r, http.StatusOK, "pages/signup.html", "Sign up", page)
		return
	}
	inv, err := h.service.Resolve(r.Context(), token)
	if err != nil {
		if errors.Is(err, ErrInvalidInvite) {
			shared.AddFlash(r.Context(), shared.FlashError, ErrInvalidInvite.Message)
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		h.fail(w, r, "resolve invitation", err)
		return
	}
	page.RoleTitle = inv.Role.Title
	page.Form.Email = inv.InviteeEmail
	h.render(w, r, http.StatusOK, "pages/signup.html", "Sign up", page)
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	invite := r.PostFormValue("invite")
	if invite == "" {
		invite = r.URL.Query().Get("invite")
	}
	input := SignupInput{
		Invite:          invite,
		Name:            r.PostFormValue("name"),
		Email:           r.PostFormValue("email"),
		Password:        r.PostFormValue("password"),
		PasswordConfirm: r.PostFormValue("password_confirm"),
	}
	userID, err := h.service.CompleteSignup(r.Context(), input)
	if err != nil {
		page := signupPage{Form: signupForm{Name: input.Name, Email: input.Email, Invite: invite}}
		var verrs shared.ValidationErrors
		switch {
		case errors.As(err, &verrs):
			page.Errors = verrs
		case errors.Is(err, shared.ErrEmailMismatch), errors.Is(err, shared.ErrEmailTaken):
			page.Errors = shared.ValidationErrors{"email": shared.UserSafeMessage(err)}
		case errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrPermission), errors.Is(err, shared.ErrConflict):
			page.Errors = shared.ValidationErrors{"general": shared.UserSafeMessage(err)}
		default:
			h.fail(w, r, "complete signup", err)
			return
		}
		h.render(w, r, httpx.StatusFor(err), "pages/signup.html", "Sign up", page)
		return
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		h.sessions.Renew(sess)
		sess.SetUser(userID)
		sess.Flash(shared.FlashSuccess, "Welcome to Inventory Manager")
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := httpx.StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, slog.Any("error", err))
	}
	h.templates.RenderError(w, r, status, shared.UserSafeMessage(err))
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, template, title string, data any) {
	viewData := view.NewTemplateData(r, h.csrf, title, data)
	if err := h.templates.RenderStatus(w, status, template, viewData); err != nil {
		h.logger.Error("render template", slog.String("template", template), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
