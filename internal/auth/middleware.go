package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/inkwell-cms/inkwell/internal/platform/httpx"
	"github.com/inkwell-cms/inkwell/internal/shared"
)

// Middleware resolves the request principal from the Authorization
// header. Requests without a header proceed anonymously; public
// endpoints decide for themselves. A presented-but-invalid token is
// rejected outright.
func Middleware(service *Service, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			principal, err := service.PrincipalForToken(r.Context(), token)
			if errors.Is(err, ErrTokenUnknown) {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid or expired token")
				return
			}
			if err != nil {
				if logger != nil {
					logger.Error("resolve principal", slog.Any("error", err))
				}
				httpx.RespondError(w, httpx.ErrUnavailable)
				return
			}
			ctx := shared.ContextWithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}
