package middleware

import (
	"net/http"
	"strings"

	"figmant/internal/auth"
	"figmant/internal/domain/models"
	"figmant/internal/domain/services"
	"figmant/internal/httputil"
)

// OwnerChecker decides whether verified claims grant owner access
type OwnerChecker interface {
	IsOwner(claims *models.SupabaseClaims) bool
}

// publicPaths skip authentication
var publicPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// AuthMiddleware verifies the bearer token and stores the caller in the
// request context (user id and services.Principal)
func AuthMiddleware(verifier auth.JWTVerifier, owners OwnerChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := bearerToken(r)
			if !ok {
				httputil.RespondError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			claims, err := verifier.VerifyToken(token)
			if err != nil {
				httputil.RespondError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			principal := services.Principal{
				UserID: claims.GetUserID(),
				Email:  claims.Email,
				Owner:  owners.IsOwner(claims),
			}
			r = httputil.WithUserID(r, principal.UserID)
			r = r.WithContext(services.WithPrincipal(r.Context(), principal))

			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
