package middleware

import (
	"errors"
	"net/http"

	"loom/internal/domain"
	"loom/internal/domain/repositories"
	"loom/internal/httputil"
	"loom/internal/tenancy"
)

// orgHeader and orgCookie carry the caller's organization selection. The
// query parameter takes precedence over the header for one-off overrides.
const (
	orgHeader = "X-Organization-ID"
	orgCookie = "active_org"
	orgQuery  = "org"
)

// TenantMiddleware resolves the active organization for the authenticated
// user and attaches the tenant context to the request. Runs after
// AuthMiddleware; requests without a user ID pass through untouched so
// public paths keep working.
func TenantMiddleware(memberships repositories.MembershipRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := httputil.GetUserID(r)
			if userID == "" {
				next.ServeHTTP(w, r)
				return
			}

			param := r.URL.Query().Get(orgQuery)
			if param == "" {
				param = r.Header.Get(orgHeader)
			}
			var session string
			if c, err := r.Cookie(orgCookie); err == nil {
				session = c.Value
			}

			tc, err := tenancy.ResolveTenant(r.Context(), memberships, userID, param, session)
			if err != nil {
				var httpErr domain.HTTPError
				if errors.As(err, &httpErr) {
					httputil.RespondError(w, httpErr.StatusCode(), httpErr.Error())
					return
				}
				httputil.RespondError(w, http.StatusInternalServerError, "failed to resolve organization")
				return
			}

			next.ServeHTTP(w, r.WithContext(tenancy.WithTenant(r.Context(), tc)))
		})
	}
}
