package rbac

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inventory-manager/inventory-manager/internal/roles"
	"github.com/inventory-manager/inventory-manager/internal/shared"
)

var (
	superRole = roles.Role{ID: 1, Short: roles.ShortSuperAdmin, Title: "Super Admins", Level: 0}
	adminRole = roles.Role{ID: 2, Short: roles.ShortAdmin, Title: "Admins", Level: 1}
	staffRole = roles.Role{ID: 3, Short: roles.ShortStaff, Title: "Staff", Level: 2}
)

type roleSource map[string]roles.Role

func (s roleSource) Get(_ context.Context, short string) (roles.Role, error) {
	r, ok := s[short]
	if !ok {
		return roles.Role{}, shared.NewError(shared.ErrNotFound, "Role not found")
	}
	return r, nil
}

func testGate() *Gate {
	return NewGate(roleSource{
		roles.ShortSuperAdmin: superRole,
		roles.ShortAdmin:      adminRole,
		roles.ShortStaff:      staffRole,
	})
}

type holder struct {
	id int64
	ok bool
}

func (h holder) AssigneeID() (int64, bool) { return h.id, h.ok }

func TestAuthorizeComparesRoleLevels(t *testing.T) {
	gate := testGate()
	ctx := context.Background()
	super := &Principal{ID: 1, Role: superRole}
	admin := &Principal{ID: 2, Role: adminRole}
	staff := &Principal{ID: 3, Role: staffRole}

	assert.NoError(t, gate.Authorize(ctx, super, roles.ShortAdmin))
	assert.NoError(t, gate.Authorize(ctx, admin, roles.ShortAdmin))
	assert.NoError(t, gate.Authorize(ctx, staff, roles.ShortStaff))

	err := gate.Authorize(ctx, staff, roles.ShortAdmin)
	require.ErrorIs(t, err, shared.ErrPermission)
	assert.Equal(t, "Only Admins are allowed to access this page", err.Error())

	assert.ErrorIs(t, gate.Authorize(ctx, admin, roles.ShortSuperAdmin), shared.ErrPermission)
	assert.ErrorIs(t, gate.Authorize(ctx, nil, roles.ShortStaff), shared.ErrUnauthenticated)
	assert.ErrorIs(t, gate.Authorize(ctx, admin, "auditor"), shared.ErrNotFound)
}

func TestAuthorizeOwnerOrAdmin(t *testing.T) {
	gate := testGate()
	staff := &Principal{ID: 3, Role: staffRole}

	assert.NoError(t, gate.AuthorizeOwnerOrAdmin(staff, holder{id: 3, ok: true}))
	assert.ErrorIs(t, gate.AuthorizeOwnerOrAdmin(staff, holder{id: 4, ok: true}), shared.ErrPermission)
	assert.ErrorIs(t, gate.AuthorizeOwnerOrAdmin(staff, holder{}), shared.ErrPermission)
	assert.NoError(t, gate.AuthorizeOwnerOrAdmin(&Principal{ID: 2, Role: adminRole}, holder{}))
	assert.ErrorIs(t, gate.AuthorizeOwnerOrAdmin(nil, holder{id: 3, ok: true}), shared.ErrUnauthenticated)
}

type recordingErrors struct {
	status  int
	message string
}

func (e *recordingErrors) RenderError(w http.ResponseWriter, _ *http.Request, status int, message string) {
	e.status, e.message = status, message
	w.WriteHeader(status)
}

type loaderFunc func(ctx context.Context, id int64) (*Principal, error)

func (f loaderFunc) LoadPrincipal(ctx context.Context, id int64) (*Principal, error) {
	return f(ctx, id)
}

func withPrincipal(p *Principal) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if p != nil {
				r = r.WithContext(ContextWithPrincipal(r.Context(), p))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func guardedRouter(m Middleware, p *Principal) http.Handler {
	r := chi.NewRouter()
	r.Use(withPrincipal(p))
	ok := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }
	r.With(m.RequireLogin).Get("/mine", ok)
	r.With(m.RequireRole(roles.ShortAdmin)).Get("/admin", ok)
	r.With(m.GuestOnly).Get("/login", ok)
	return r
}

func TestMiddlewareRequireLoginAndRole(t *testing.T) {
	errs := &recordingErrors{}
	m := Middleware{Gate: testGate(), Errors: errs}

	rec := httptest.NewRecorder()
	guardedRouter(m, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/mine", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Please log in to access this page", errs.message)

	rec = httptest.NewRecorder()
	guardedRouter(m, &Principal{ID: 3, Role: staffRole}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Only Admins are allowed to access this page", errs.message)

	rec = httptest.NewRecorder()
	guardedRouter(m, &Principal{ID: 1, Role: superRole}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestMiddlewareJSONClientsGetProblem(t *testing.T) {
	m := Middleware{Gate: testGate(), Errors: &recordingErrors{}}
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	guardedRouter(m, &Principal{ID: 3, Role: staffRole}).ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, http.StatusForbidden, body["status"])
}

func TestGuestOnlyRedirectsLoggedInUsers(t *testing.T) {
	m := Middleware{Gate: testGate()}
	rec := httptest.NewRecorder()
	guardedRouter(m, &Principal{ID: 3, Role: staffRole}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	rec = httptest.NewRecorder()
	guardedRouter(m, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestLoadPrincipalFromSession(t *testing.T) {
	sess := &shared.Session{}
	sess.SetUser(3)
	loader := loaderFunc(func(_ context.Context, id int64) (*Principal, error) {
		if id == 3 {
			return &Principal{ID: 3, Email: "alice@example.com", Role: staffRole}, nil
		}
		return nil, shared.NewError(shared.ErrNotFound, "User not found")
	})
	m := Middleware{Gate: testGate(), Loader: loader}

	var seen *Principal
	h := m.LoadPrincipal(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = PrincipalFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	h.ServeHTTP(httptest.NewRecorder(), req.WithContext(shared.ContextWithSession(req.Context(), sess)))
	require.NotNil(t, seen)
	assert.Equal(t, "alice@example.com", seen.Email)

	gone := &shared.Session{}
	gone.SetUser(99)
	seen = nil
	h.ServeHTTP(httptest.NewRecorder(), req.WithContext(shared.ContextWithSession(req.Context(), gone)))
	assert.Nil(t, seen)
	_, ok := gone.UserID()
	assert.False(t, ok)
}

func TestLoginURLKeepsGetTarget(t *testing.T) {
	assert.Equal(t, "/login?next=%2Fassets%3Ffilter%3Dmine", LoginURL(httptest.NewRequest(http.MethodGet, "/assets?filter=mine", nil)))
	assert.Equal(t, "/login", LoginURL(httptest.NewRequest(http.MethodPost, "/assets/1/assign", nil)))
}
