package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/inventory-manager/inventory-manager/internal/platform/httpx"
	"github.com/inventory-manager/inventory-manager/internal/rbac"
	"github.com/inventory-manager/inventory-manager/internal/roles"
	"github.com/inventory-manager/inventory-manager/internal/shared"
	"github.com/inventory-manager/inventory-manager/internal/users"
	"github.com/inventory-manager/inventory-manager/internal/view"
)

// UserLister provides the assignee choices on the detail page.
type UserLister interface {
	ListUsers(ctx context.Context) ([]users.User, error)
}

// Handler serves the asset pages, exports and the home dashboard.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	users     UserLister
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      rbac.Middleware
	pdf       PDFRenderer
}

// NewHandler builds Handler instance. pdf may be nil when no PDF service is
// configured.
func NewHandler(logger *slog.Logger, service *Service, userList UserLister, templates *view.Engine, csrf *shared.CSRFManager, rbac rbac.Middleware, pdf PDFRenderer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, users: userList, templates: templates, csrf: csrf, rbac: rbac, pdf: pdf}
}

// MountRoutes registers routes under /assets.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireLogin)
		r.Get("/", h.list)
		r.Get("/{id:[0-9]+}", h.detail)
		r.Post("/{id:[0-9]+}/report/{state:lost|found}", h.report)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireRole(roles.ShortAdmin))
		r.Get("/add", h.showAdd)
		r.Post("/add", h.handleAdd)
		r.Post("/{id:[0-9]+}/assign", h.assign)
		r.Post("/{id:[0-9]+}/reclaim", h.reclaim)
		r.Get("/export.xlsx", h.exportXLSX)
		r.Get("/export.pdf", h.exportPDF)
	})
}

// MountHome registers the dashboard at /.
func (h *Handler) MountHome(r chi.Router) {
	r.With(h.rbac.RequireLogin).Get("/", h.home)
}

type listPage struct {
	Filter  Filter
	Filters []Filter
	Assets  []Record
}

type addForm struct {
	Name          string
	Type          string
	Code          string
	SerialNo      string
	PurchasedDate string
	Description   string
}

type addPage struct {
	Form   addForm
	Errors shared.ValidationErrors
}

type detailPage struct {
	Asset     Record
	CanManage bool
	CanReport bool
	Users     []users.User
	History   []HistoryEntry
}

type homePage struct {
	Summary  *Summary
	MyAssets []Record
}

func (h *Handler) home(w http.ResponseWriter, r *http.Request) {
	viewer := rbac.PrincipalFromContext(r.Context())
	page := homePage{}
	if viewer.HasAdmin() {
		summary, err := h.service.Summary(r.Context(), viewer)
		if err != nil {
			h.fail(w, r, "asset summary", err)
			return
		}
		page.Summary = &summary
	}
	mine, err := h.service.HeldAssets(r.Context(), viewer)
	if err != nil {
		h.fail(w, r, "list own assets", err)
		return
	}
	page.MyAssets = h.records(mine, viewer)
	h.render(w, r, http.StatusOK, "pages/home.html", "Home", page)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	viewer := rbac.PrincipalFromContext(r.Context())
	filter, err := ParseFilter(r.URL.Query().Get("filter"))
	if err != nil {
		h.respondError(w, r, "parse filter", err)
		return
	}
	list, err := h.service.List(r.Context(), viewer, filter)
	if err != nil {
		h.respondError(w, r, "list assets", err)
		return
	}
	records := h.records(list, viewer)
	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusOK, records)
		return
	}
	h.render(w, r, http.StatusOK, "pages/assets_list.html", "Assets", listPage{Filter: filter, Filters: Filters, Assets: records})
}

func (h *Handler) showAdd(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "pages/asset_add.html", "Add asset", addPage{})
}

func (h *Handler) handleAdd(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := addForm{
		Name:          r.PostFormValue("name"),
		Type:          r.PostFormValue("type"),
		Code:          r.PostFormValue("code"),
		SerialNo:      r.PostFormValue("serial_no"),
		PurchasedDate: r.PostFormValue("purchased_date"),
		Description:   r.PostFormValue("description"),
	}
	viewer := rbac.PrincipalFromContext(r.Context())
	asset, err := h.service.Add(r.Context(), viewer, AddInput(form))
	if err != nil {
		if httpx.WantsJSON(r) {
			httpx.RespondError(w, err)
			return
		}
		page := addPage{Form: form}
		var verrs shared.ValidationErrors
		switch {
		case errors.As(err, &verrs):
			page.Errors = verrs
		case errors.Is(err, ErrDuplicateCode):
			page.Errors = shared.ValidationErrors{"code": ErrDuplicateCode.Message}
		default:
			h.fail(w, r, "add asset", err)
			return
		}
		h.render(w, r, httpx.StatusFor(err), "pages/asset_add.html", "Add asset", page)
		return
	}
	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusCreated, h.record(asset, viewer))
		return
	}
	shared.AddFlash(r.Context(), shared.FlashSuccess, fmt.Sprintf("Asset %s added", asset.Code))
	http.Redirect(w, r, assetURL(asset.ID), http.StatusSeeOther)
}

func (h *Handler) detail(w http.ResponseWriter, r *http.Request) {
	id, ok := h.assetID(w, r)
	if !ok {
		return
	}
	viewer := rbac.PrincipalFromContext(r.Context())
	asset, history, err := h.service.Get(r.Context(), viewer, id)
	if err != nil {
		h.respondError(w, r, "get asset", err)
		return
	}
	rec := h.record(asset, viewer)
	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusOK, rec)
		return
	}
	page := detailPage{
		Asset:     rec,
		CanManage: viewer.HasAdmin(),
		CanReport: viewer.HasAdmin() || rec.IsMine,
		History:   history,
	}
	if page.CanManage && !asset.IsAssigned() && h.users != nil {
		if page.Users, err = h.users.ListUsers(r.Context()); err != nil {
			h.fail(w, r, "list users", err)
			return
		}
	}
	h.render(w, r, http.StatusOK, "pages/asset_detail.html", asset.Name, page)
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	id, ok := h.assetID(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	userID, err := strconv.ParseInt(r.PostFormValue("user_id"), 10, 64)
	if err != nil {
		h.actionFailed(w, r, id, "assign asset", ErrUnknownAssignee)
		return
	}
	returnDate, err := ParseReturnDate(strings.TrimSpace(r.PostFormValue("return_date")), time.Local)
	if err != nil {
		h.actionFailed(w, r, id, "assign asset", err)
		return
	}
	viewer := rbac.PrincipalFromContext(r.Context())
	asset, err := h.service.Assign(r.Context(), viewer, id, AssignInput{UserID: userID, ReturnDate: returnDate})
	if err != nil {
		h.actionFailed(w, r, id, "assign asset", err)
		return
	}
	h.actionDone(w, r, asset, fmt.Sprintf("%s assigned to %s", asset.Code, asset.Assignee.Name))
}

func (h *Handler) reclaim(w http.ResponseWriter, r *http.Request) {
	id, ok := h.assetID(w, r)
	if !ok {
		return
	}
	asset, err := h.service.Reclaim(r.Context(), rbac.PrincipalFromContext(r.Context()), id)
	if err != nil {
		h.actionFailed(w, r, id, "reclaim asset", err)
		return
	}
	h.actionDone(w, r, asset, fmt.Sprintf("%s reclaimed", asset.Code))
}

func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	id, ok := h.assetID(w, r)
	if !ok {
		return
	}
	viewer := rbac.PrincipalFromContext(r.Context())
	var (
		asset Asset
		err   error
		msg   string
	)
	if chi.URLParam(r, "state") == "found" {
		asset, err = h.service.ReportFound(r.Context(), viewer, id)
		msg = "%s reported found"
	} else {
		asset, err = h.service.ReportLost(r.Context(), viewer, id)
		msg = "%s reported lost"
	}
	if err != nil {
		h.actionFailed(w, r, id, "report asset", err)
		return
	}
	h.actionDone(w, r, asset, fmt.Sprintf(msg, asset.Code))
}

func (h *Handler) exportXLSX(w http.ResponseWriter, r *http.Request) {
	filter, records, ok := h.exportRecords(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, records); err != nil {
		h.fail(w, r, "write xlsx", err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportName(filter, "xlsx", h.service.Now())))
	_, _ = buf.WriteTo(w)
}

func (h *Handler) exportPDF(w http.ResponseWriter, r *http.Request) {
	if h.pdf == nil {
		h.templates.RenderError(w, r, http.StatusServiceUnavailable, "PDF export is not configured")
		return
	}
	filter, records, ok := h.exportRecords(w, r)
	if !ok {
		return
	}
	pdf, err := RenderPDF(r.Context(), h.templates, h.pdf, filter, records, h.service.Now())
	if err != nil {
		h.fail(w, r, "render pdf", err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportName(filter, "pdf", h.service.Now())))
	_, _ = w.Write(pdf)
}

func (h *Handler) exportRecords(w http.ResponseWriter, r *http.Request) (Filter, []Record, bool) {
	filter, err := ParseFilter(r.URL.Query().Get("filter"))
	if err != nil {
		h.fail(w, r, "parse filter", err)
		return "", nil, false
	}
	viewer := rbac.PrincipalFromContext(r.Context())
	list, err := h.service.List(r.Context(), viewer, filter)
	if err != nil {
		h.fail(w, r, "export assets", err)
		return "", nil, false
	}
	return filter, h.records(list, viewer), true
}

func (h *Handler) actionDone(w http.ResponseWriter, r *http.Request, asset Asset, msg string) {
	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusOK, h.record(asset, rbac.PrincipalFromContext(r.Context())))
		return
	}
	shared.AddFlash(r.Context(), shared.FlashSuccess, msg)
	http.Redirect(w, r, assetURL(asset.ID), http.StatusSeeOther)
}

// actionFailed reports conflicts and bad input back on the detail page and
// anything else on the error page.
func (h *Handler) actionFailed(w http.ResponseWriter, r *http.Request, id int64, msg string, err error) {
	if httpx.WantsJSON(r) {
		h.respondError(w, r, msg, err)
		return
	}
	if errors.Is(err, shared.ErrConflict) || errors.Is(err, shared.ErrValidation) {
		shared.AddFlash(r.Context(), shared.FlashError, shared.UserSafeMessage(err))
		http.Redirect(w, r, assetURL(id), http.StatusSeeOther)
		return
	}
	h.fail(w, r, msg, err)
}

func (h *Handler) assetID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.respondError(w, r, "parse asset id", ErrAssetNotFound)
		return 0, false
	}
	return id, true
}

func (h *Handler) record(a Asset, viewer *rbac.Principal) Record {
	var viewerID int64
	if viewer != nil {
		viewerID = viewer.ID
	}
	return NewRecord(a, viewerID, h.service.Now(), h.service.ReturnNearDays())
}

func (h *Handler) records(list []Asset, viewer *rbac.Principal) []Record {
	var viewerID int64
	if viewer != nil {
		viewerID = viewer.ID
	}
	return NewRecords(list, viewerID, h.service.Now(), h.service.ReturnNearDays())
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if httpx.WantsJSON(r) {
		if httpx.StatusFor(err) >= http.StatusInternalServerError {
			h.logger.Error(msg, slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	h.fail(w, r, msg, err)
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

func assetURL(id int64) string {
	return "/assets/" + strconv.FormatInt(id, 10)
}

func exportName(filter Filter, ext string, now time.Time) string {
	return fmt.Sprintf("assets-%s-%s.%s", filter, now.Format("20060102"), ext)
}
