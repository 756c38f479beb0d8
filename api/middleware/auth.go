package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/storefront-backend/api/responses"
	pkgAuth "github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	GuestSessionHeader = "X-Guest-Session"

	maxGuestSessionLen = 128
)

// Shopper identifies the caller. A bearer token names a signed-in user;
// without one the X-Guest-Session header names a guest. A request with
// neither is rejected. An invalid token is rejected even when a guest
// session is also present.
func Shopper(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			shopper, err := resolveShopper(cfg, r)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			ctx := WithShopper(r.Context(), shopper)
			if logg != nil {
				ctx = logg.WithShopper(ctx, shopper.UserID, shopper.GuestSessionID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func resolveShopper(cfg config.JWTConfig, r *http.Request) (pkgAuth.Shopper, error) {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw != "" {
		token := raw
		if strings.HasPrefix(strings.ToLower(token), "bearer ") {
			token = strings.TrimSpace(token[7:])
		}
		if token == "" {
			return pkgAuth.Shopper{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
		}
		claims, err := pkgAuth.ParseAccessToken(cfg, token)
		if err != nil {
			return pkgAuth.Shopper{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
		}
		profile := claims.Profile()
		return pkgAuth.Shopper{UserID: profile.UserID, Profile: profile}, nil
	}

	session := strings.TrimSpace(r.Header.Get(GuestSessionHeader))
	if session == "" {
		return pkgAuth.Shopper{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	if len(session) > maxGuestSessionLen {
		return pkgAuth.Shopper{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid guest session")
	}
	return pkgAuth.Shopper{GuestSessionID: session}, nil
}
