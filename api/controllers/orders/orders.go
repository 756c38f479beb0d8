package orders

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	internalorders "github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

type CustomerLookup interface {
	ForShopper(ctx context.Context, shopper auth.Shopper) (*models.Customer, error)
}

type OrderReader interface {
	Get(ctx context.Context, id, customerID uuid.UUID) (*models.Order, error)
	List(ctx context.Context, customerID uuid.UUID, params pagination.Params) (*internalorders.OrderList, error)
}

// List returns the shopper's orders, newest first. A shopper who has never
// ordered gets an empty page.
func List(customers CustomerLookup, svc OrderReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if customers == nil || svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		shopper, err := middleware.RequireShopper(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		customer, err := customers.ForShopper(r.Context(), shopper)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				responses.WriteSuccess(w, internalorders.OrderList{Orders: []internalorders.OrderView{}})
				return
			}
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.List(r.Context(), customer.ID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, list)
	}
}

// Detail returns one of the shopper's orders. Orders belonging to someone
// else are reported as not found.
func Detail(customers CustomerLookup, svc OrderReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if customers == nil || svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		shopper, err := middleware.RequireShopper(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		customer, err := customers.ForShopper(r.Context(), shopper)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				err = pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Get(r.Context(), orderID, customer.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, internalorders.NewOrderView(order))
	}
}
