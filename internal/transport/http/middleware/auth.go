package httpmw

import (
	"context"
	"net/http"
	"strings"

	"github.com/snippetlab/collab-service/internal/auth"
	"github.com/snippetlab/collab-service/internal/domain"
)

type ctxKey string

const ctxKeyIdentity ctxKey = "identity"

// AuthMiddleware требует Bearer-токен и резолвит его через общий Verifier —
// та же проверка, что на ws-подключении.
func AuthMiddleware(verifier *auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := r.Header.Get("Authorization")
			if !strings.HasPrefix(authz, "Bearer ") || len(authz) <= 7 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"missing bearer token"}`))
				return
			}

			ident, err := verifier.Verify(strings.TrimSpace(authz[7:]))
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyIdentity, ident)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func IdentityFromCtx(ctx context.Context) (domain.Identity, bool) {
	if v := ctx.Value(ctxKeyIdentity); v != nil {
		if ident, ok := v.(domain.Identity); ok {
			return ident, true
		}
	}
	return domain.Identity{}, false
}
