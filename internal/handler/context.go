package handler

import (
	"net/http"

	"loom/internal/domain"
	"loom/internal/tenancy"
)

// tenantFrom extracts the tenant context resolved by the middleware.
// A missing context means the middleware chain was misconfigured, not a
// client mistake, but it still maps to 401 rather than leaking internals.
func tenantFrom(r *http.Request) (tenancy.TenantContext, error) {
	tc, ok := tenancy.FromContext(r.Context())
	if !ok {
		return tenancy.TenantContext{}, &domain.UnauthorizedError{Message: "no tenant context"}
	}
	return tc, nil
}
