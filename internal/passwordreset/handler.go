package passwordreset

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/inventory-manager/inventory-manager/internal/platform/httpx"
	"github.com/inventory-manager/inventory-manager/internal/rbac"
	"github.com/inventory-manager/inventory-manager/internal/shared"
	"github.com/inventory-manager/inventory-manager/internal/view"
)

// Handler serves the password reset pages.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, rbac: rbac}
}

// MountRoutes registers reset routes under /password_reset.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.rbac.GuestOnly)
	r.Get("/", h.showRequest)
	r.Post("/", h.handleRequest)
	r.Get("/{token}", h.showPerform)
	r.Post("/{token}", h.handlePerform)
}

type emailForm struct {
	Email string
}

type requestPage struct {
	Sent   bool
	TTL    string
	Form   emailForm
	Errors shared.ValidationErrors
}

type performPage struct {
	Token  string
	Form   emailForm
	Errors shared.ValidationErrors
}

func (h *Handler) showRequest(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "pages/password_reset_request.html", requestPage{})
}

func (h *Handler) handleRequest(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := emailForm{Email: r.PostFormValue("email")}
	err := h.service.RequestReset(r.Context(), RequestInput(form))
	if err != nil {
		page := requestPage{Form: form}
		var verrs shared.ValidationErrors
		switch {
		case errors.As(err, &verrs):
			page.Errors = verrs
		case errors.Is(err, shared.ErrTransport):
			h.logger.Error("password reset mail", slog.Any("error", err))
			page.Errors = shared.ValidationErrors{"general": "The reset email could not be sent. Please try again."}
		default:
			h.fail(w, r, "request reset", err)
			return
		}
		h.render(w, r, httpx.StatusFor(err), "pages/password_reset_request.html", page)
		return
	}
	h.render(w, r, http.StatusOK, "pages/password_reset_request.html", requestPage{Sent: true, TTL: HumanTTL(h.service.TTL())})
}

func (h *Handler) showPerform(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if err := h.service.Inspect(r.Context(), token); err != nil {
		h.fail(w, r, "inspect reset token", err)
		return
	}
	h.render(w, r, http.StatusOK, "pages/password_reset_perform.html", performPage{Token: token})
}

func (h *Handler) handlePerform(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	token := chi.URLParam(r, "token")
	input := PerformInput{
		Email:           r.PostFormValue("email"),
		Password:        r.PostFormValue("password"),
		PasswordConfirm: r.PostFormValue("password_confirm"),
	}
	if err := h.service.PerformReset(r.Context(), token, input); err != nil {
		page := performPage{Token: token, Form: emailForm{Email: input.Email}}
		var verrs shared.ValidationErrors
		switch {
		case errors.As(err, &verrs):
			page.Errors = verrs
		case errors.Is(err, shared.ErrEmailMismatch):
			page.Errors = shared.ValidationErrors{"email": shared.UserSafeMessage(err)}
		case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrExpiredToken):
			h.fail(w, r, "perform reset", err)
			return
		case errors.Is(err, shared.ErrValidation):
			page.Errors = shared.ValidationErrors{"password": shared.UserSafeMessage(err)}
		default:
			h.fail(w, r, "perform reset", err)
			return
		}
		h.render(w, r, httpx.StatusFor(err), "pages/password_reset_perform.html", page)
		return
	}
	shared.AddFlash(r.Context(), shared.FlashSuccess, "Your password has been updated, you can now log in")
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := httpx.StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, slog.Any("error", err))
	}
	h.templates.RenderError(w, r, status, shared.UserSafeMessage(err))
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, template string, data any) {
	viewData := view.NewTemplateData(r, h.csrf, "Reset password", data)
	if err := h.templates.RenderStatus(w, status, template, viewData); err != nil {
		h.logger.Error("render template", slog.String("template", template), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
