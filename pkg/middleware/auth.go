package middleware

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/stafflink/engage-sdk/modules/engagement/permissions"
	"github.com/stafflink/engage-sdk/pkg/httpapi"
)

const (
	userIDHeader   = "X-User-Id"
	userRoleHeader = "X-User-Role"
)

// ProvideActor resolves the calling user from the gateway-trusted identity
// headers and stores it in the request context. Requests without a valid
// identity are rejected before any handler runs.
func ProvideActor() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := uuid.Parse(r.Header.Get(userIDHeader))
			if err != nil {
				_ = httpapi.WriteError(w, http.StatusUnauthorized, "ENG_UNAUTHENTICATED", "missing or invalid user id", nil)
				return
			}
			role := permissions.Role(r.Header.Get(userRoleHeader))
			if !role.IsValid() {
				_ = httpapi.WriteError(w, http.StatusUnauthorized, "ENG_UNAUTHENTICATED", "missing or invalid user role", nil)
				return
			}

			ctx := permissions.WithActor(r.Context(), permissions.Actor{ID: id, Role: role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
