package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gearmarket/auth"
)

type authResultContextKey struct{}

// AuthResultFromContext returns the identity Guard stored for the request.
func AuthResultFromContext(ctx context.Context) (*auth.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*auth.AuthResult)
	return res, ok
}

// Guard rejects requests without a valid bearer access token and makes
// the verified identity available via [AuthResultFromContext].
func Guard(engine *auth.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			res, err := engine.VerifyAccess(r.Context(), token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), authResultContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
