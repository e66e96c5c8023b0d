package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/example/citaplan/internal/tenancy"
)

func TestRequireBusinessID(t *testing.T) {
	r := chi.NewRouter()
	r.Route("/admin/negocios/{businessID}", func(r chi.Router) {
		r.Use(RequireBusinessID)
		r.Get("/leads", func(w http.ResponseWriter, req *http.Request) {
			businessID, ok := tenancy.BusinessIDFromContext(req.Context())
			if !ok || businessID != "biz-1" {
				t.Errorf("business id in context = %q, %v", businessID, ok)
			}
			w.WriteHeader(http.StatusOK)
		})
	})

	req := httptest.NewRequest(http.MethodGet, "/admin/negocios/biz-1/leads", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRequireBusinessIDRejectsOutOfScopeToken(t *testing.T) {
	r := chi.NewRouter()
	r.Route("/admin/negocios/{businessID}", func(r chi.Router) {
		r.Use(AdminJWT("secret"))
		r.Use(RequireBusinessID)
		r.Get("/leads", func(w http.ResponseWriter, req *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	req := httptest.NewRequest(http.MethodGet, "/admin/negocios/biz-2/leads", nil)
	req.Header.Set("Authorization", "Bearer "+signedAdminToken(t, "secret", "biz-1"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}
