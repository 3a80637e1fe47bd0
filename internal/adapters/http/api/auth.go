package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/ninahq/nina/internal/adapters/claims"
	"github.com/ninahq/nina/internal/domain/model"
)

type authenticator struct {
	deps Dependencies
}

// require authenticates the bearer token and admits callers whose resolved
// role is at least min. The identity is stored in the request context.
func (a *authenticator) require(min model.Role, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := a.deps.Authenticate(r.Context(), bearerToken(r))
		if err != nil {
			writeFailure(w, err)
			return
		}
		if role := a.deps.Role(id); !role.AtLeast(min) {
			writeFailure(w, fmt.Errorf("%w: %s requires role %s, caller is %s", claims.ErrPermissionDenied, r.URL.Path, min, role))
			return
		}
		next(w, r.WithContext(claims.WithIdentity(r.Context(), id)))
	}
}

func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
