package middleware

import (
	"context"
	"net/http"

	"github.com/angelmondragon/storefront-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type contextKey string

const ctxShopper contextKey = "shopper"

// ShopperFromContext returns the shopper resolved by the Shopper middleware.
func ShopperFromContext(ctx context.Context) (auth.Shopper, bool) {
	if ctx == nil {
		return auth.Shopper{}, false
	}
	s, ok := ctx.Value(ctxShopper).(auth.Shopper)
	return s, ok && s.Key() != ""
}

// WithShopper injects the shopper into the context.
func WithShopper(ctx context.Context, shopper auth.Shopper) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxShopper, shopper)
}

// RequireShopper returns the request's shopper or an unauthorized error.
func RequireShopper(r *http.Request) (auth.Shopper, error) {
	shopper, ok := ShopperFromContext(r.Context())
	if !ok {
		return auth.Shopper{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "shopper identity required")
	}
	return shopper, nil
}
