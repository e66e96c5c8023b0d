package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/example/citaplan/internal/tenancy"
)

// RequireBusinessID lifts the {businessID} route parameter into the request
// context so downstream code can resolve the tenant without re-parsing the
// URL. Requests without one are rejected, and an admin token scoped to other
// tenants gets a 403.
func RequireBusinessID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		businessID := chi.URLParam(r, "businessID")
		if businessID == "" {
			http.Error(w, "missing business id", http.StatusBadRequest)
			return
		}
		if claims, ok := AdminClaimsFromContext(r.Context()); ok && !claims.AllowsBusiness(businessID) {
			http.Error(w, "token not valid for this business", http.StatusForbidden)
			return
		}
		ctx := tenancy.WithBusinessID(r.Context(), businessID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
