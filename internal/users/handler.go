package users

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/inventory-manager/inventory-manager/internal/platform/httpx"
	"github.com/inventory-manager/inventory-manager/internal/rbac"
	"github.com/inventory-manager/inventory-manager/internal/roles"
	"github.com/inventory-manager/inventory-manager/internal/shared"
	"github.com/inventory-manager/inventory-manager/internal/view"
)

// HeldAssetLister lists the assets currently assigned to a user.
type HeldAssetLister interface {
	HeldBy(ctx context.Context, userID int64) ([]HeldAsset, error)
}

// Handler manages account and user profile endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	roles     *roles.Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      rbac.Middleware
	held      HeldAssetLister
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, roleSvc *roles.Service, templates *view.Engine, csrf *shared.CSRFManager, rbac rbac.Middleware, held HeldAssetLister) *Handler {
	return &Handler{logger: logger, service: service, roles: roleSvc, templates: templates, csrf: csrf, rbac: rbac, held: held}
}

// MountAccountRoutes registers the routes of the logged-in user's own account.
func (h *Handler) MountAccountRoutes(r chi.Router) {
	r.Use(h.rbac.RequireLogin)
	r.Get("/", h.showAccount)
	r.Get("/edit", h.showEdit)
	r.Post("/edit", h.handleEdit)
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireRole(roles.ShortAdmin))
		r.Get("/", h.listByRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireLogin)
		r.Get("/{id:[0-9]+}", h.showUser)
		r.Get("/{id:[0-9]+}/avatar", h.avatar)
	})
}

type profilePage struct {
	User   User
	Assets []HeldAsset
	IsSelf bool
}

type rolesPage struct {
	Roles []roles.WithMembers
}

type editForm struct {
	Name  string
	Email string
}

type editPage struct {
	Form   editForm
	Errors shared.ValidationErrors
}

func (h *Handler) listByRole(w http.ResponseWriter, r *http.Request) {
	grouped, err := h.roles.ListWithMembers(r.Context(), h.service)
	if err != nil {
		h.fail(w, r, "list users by role", err)
		return
	}
	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusOK, grouped)
		return
	}
	h.render(w, r, http.StatusOK, "pages/users.html", "Users", rolesPage{Roles: grouped})
}

func (h *Handler) showAccount(w http.ResponseWriter, r *http.Request) {
	viewer := rbac.PrincipalFromContext(r.Context())
	h.showProfile(w, r, viewer, viewer.ID)
}

func (h *Handler) showUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.templates.RenderError(w, r, http.StatusNotFound, ErrUserNotFound.Message)
		return
	}
	h.showProfile(w, r, rbac.PrincipalFromContext(r.Context()), id)
}

func (h *Handler) showProfile(w http.ResponseWriter, r *http.Request, viewer *rbac.Principal, id int64) {
	u, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, "load user", err)
		return
	}
	page := profilePage{User: u, IsSelf: viewer.ID == u.ID}
	if h.held != nil && (page.IsSelf || viewer.HasAdmin()) {
		page.Assets, err = h.held.HeldBy(r.Context(), u.ID)
		if err != nil {
			h.fail(w, r, "list held assets", err)
			return
		}
	}
	h.render(w, r, http.StatusOK, "pages/account_show.html", u.DisplayName(), page)
}

func (h *Handler) showEdit(w http.ResponseWriter, r *http.Request) {
	viewer := rbac.PrincipalFromContext(r.Context())
	h.render(w, r, http.StatusOK, "pages/account_edit.html", "Edit profile", editPage{Form: editForm{Name: viewer.Name, Email: viewer.Email}})
}

func (h *Handler) handleEdit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxAvatarBytes+(1<<20))
	if err := r.ParseMultipartForm(MaxAvatarBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		h.render(w, r, http.StatusBadRequest, "pages/account_edit.html", "Edit profile", editPage{
			Errors: shared.ValidationErrors{"profile_pic": "Profile picture must be 2 MB or smaller"},
		})
		return
	}
	viewer := rbac.PrincipalFromContext(r.Context())
	form := editForm{Name: r.PostFormValue("name"), Email: r.PostFormValue("email")}
	input := ProfileInput{Name: form.Name, Email: form.Email}

	file, header, err := r.FormFile("profile_pic")
	switch {
	case err == nil:
		defer file.Close()
		body, readErr := io.ReadAll(io.LimitReader(file, MaxAvatarBytes+1))
		if readErr != nil {
			h.fail(w, r, "read upload", readErr)
			return
		}
		input.Avatar = &Upload{Body: bytes.NewReader(body), ContentType: http.DetectContentType(body), Size: int64(len(body))}
		if header.Size > int64(len(body)) {
			input.Avatar.Size = header.Size
		}
	case errors.Is(err, http.ErrMissingFile):
	default:
		h.fail(w, r, "read upload", err)
		return
	}

	if _, err := h.service.UpdateProfile(r.Context(), viewer, input); err != nil {
		var verrs shared.ValidationErrors
		page := editPage{Form: form}
		switch {
		case errors.As(err, &verrs):
			page.Errors = verrs
		case errors.Is(err, shared.ErrEmailTaken):
			page.Errors = shared.ValidationErrors{"email": shared.UserSafeMessage(err)}
		case errors.Is(err, shared.ErrValidation):
			page.Errors = shared.ValidationErrors{"profile_pic": shared.UserSafeMessage(err)}
		default:
			h.fail(w, r, "update profile", err)
			return
		}
		h.render(w, r, httpx.StatusFor(err), "pages/account_edit.html", "Edit profile", page)
		return
	}
	h.redirectWithFlash(w, r, "/account", shared.FlashSuccess, "Your profile has been updated")
}

func (h *Handler) avatar(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	body, contentType, err := h.service.Avatar(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("load avatar", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	defer body.Close()
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=300")
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("write avatar", slog.Any("error", err))
	}
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

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	shared.AddFlash(r.Context(), kind, message)
	http.Redirect(w, r, location, http.StatusSeeOther)
}
