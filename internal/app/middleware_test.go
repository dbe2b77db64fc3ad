package app

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/inventory-manager/inventory-manager/internal/shared"
)

func newTestStack(t *testing.T) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	csrf := shared.NewCSRFManager("csrf-secret")
	cfg := MiddlewareConfig{
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config:         &Config{AppRequestTimeout: 5 * time.Second},
		SessionManager: shared.NewSessionManager(client, "inventory_session", "session-secret", time.Hour, false),
		CSRFManager:    csrf,
	}

	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(cfg) {
		r.Use(mw)
	}
	r.Get("/form", func(w http.ResponseWriter, r *http.Request) {
		token, err := csrf.EnsureToken(r.Context(), shared.SessionFromContext(r.Context()))
		require.NoError(t, err)
		_, _ = w.Write([]byte(token))
	})
	r.Post("/form", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

func TestMiddlewareSetsSecurityHeadersAndSession(t *testing.T) {
	h := newTestStack(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/form", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	require.NotEmpty(t, rec.Result().Cookies())
	require.NotEmpty(t, rec.Body.String())
}

func TestMiddlewareRejectsPostWithoutCSRFToken(t *testing.T) {
	h := newTestStack(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/form", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMiddlewareAcceptsSessionCSRFToken(t *testing.T) {
	h := newTestStack(t)

	get := httptest.NewRecorder()
	h.ServeHTTP(get, httptest.NewRequest(http.MethodGet, "/form", nil))
	token := get.Body.String()
	cookies := get.Result().Cookies()
	require.NotEmpty(t, cookies)

	form := url.Values{shared.CSRFFormField: {token}}
	req := httptest.NewRequest(http.MethodPost, "/form", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	bad := httptest.NewRequest(http.MethodPost, "/form", nil)
	bad.Header.Set(shared.CSRFHeader, "forged")
	for _, c := range cookies {
		bad.AddCookie(c)
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, bad)
	require.Equal(t, http.StatusForbidden, rec.Code)
}
