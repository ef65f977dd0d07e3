package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/Jayanthmurala/EduAssist/internal/logger"
	"github.com/Jayanthmurala/EduAssist/internal/rbac"
	"github.com/Jayanthmurala/EduAssist/internal/store"
)

type RoleSource interface {
	UserRole(ctx context.Context, sub string) (string, error)
}

// AttachRoleFromDB replaces the token's role claim with the stored role.
// allowClaimFallback keeps the claim for subjects missing from the users
// table (dev tokens); otherwise only an admin claim survives.
func AttachRoleFromDB(users RoleSource, allowClaimFallback bool, log *logger.Logger) func(http.Handler) http.Handler {
	log = logger.OrNop(log)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sub := SubjectFromContext(ctx)
			claimRole := rbac.RoleFromContext(ctx)

			role, err := users.UserRole(ctx, sub)
			switch {
			case err == nil && role != "":
				next.ServeHTTP(w, r.WithContext(rbac.WithRole(ctx, role)))
			case err == nil || errors.Is(err, store.ErrNotFound):
				if claimRole == rbac.RoleAdmin || (allowClaimFallback && claimRole != "") {
					next.ServeHTTP(w, r)
					return
				}
				writeError(w, http.StatusForbidden, "forbidden")
			default:
				log.Error("role lookup", "sub", sub, "error", err)
				if allowClaimFallback && claimRole != "" {
					next.ServeHTTP(w, r)
					return
				}
				writeError(w, http.StatusForbidden, "forbidden")
			}
		})
	}
}
