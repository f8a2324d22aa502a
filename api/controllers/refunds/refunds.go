package refunds

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlement-engine/api/controllers/orders"
	"github.com/angelmondragon/settlement-engine/api/middleware"
	"github.com/angelmondragon/settlement-engine/api/responses"
	"github.com/angelmondragon/settlement-engine/api/validators"
	internalorders "github.com/angelmondragon/settlement-engine/internal/orders"
	internalrefunds "github.com/angelmondragon/settlement-engine/internal/refunds"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
)

type orderReader interface {
	GetOrder(ctx context.Context, id uuid.UUID) (*internalorders.OrderView, error)
}

type requestBody struct {
	AmountCents int64  `json:"amount_cents" validate:"required,gt=0"`
	Reason      string `json:"reason" validate:"required,max=500"`
}

type rejectBody struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// Request opens a refund request against a paid order.
func Request(svc internalrefunds.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "refunds service unavailable"))
			return
		}

		orderID, err := validators.ParseUUIDParam(r, "orderId", "order id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body requestBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		req, err := svc.Request(r.Context(), internalrefunds.RequestInput{
			OrderID:     orderID,
			AmountCents: body.AmountCents,
			Reason:      validators.SanitizeString(body.Reason, 500),
			Actor:       middleware.ActorFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, req)
	}
}

// ListByOrder returns every refund request filed against an order the caller
// can see.
func ListByOrder(svc internalrefunds.Service, ordersSvc orderReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || ordersSvc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "refunds service unavailable"))
			return
		}

		orderID, err := validators.ParseUUIDParam(r, "orderId", "order id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := ordersSvc.GetOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !orders.CanView(&view.Order, middleware.ActorFromContext(r.Context())) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "order not found"))
			return
		}

		list, err := svc.ListByOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// Approve approves a requested refund and processes it through the gateway.
func Approve(svc internalrefunds.Service, logg *logger.Logger) http.HandlerFunc {
	return decide(svc, logg, func(ctx context.Context, id uuid.UUID, r *http.Request) (any, error) {
		return svc.Approve(ctx, id, middleware.ActorIDFromContext(ctx))
	})
}

// Process retries the gateway refund of an approved request.
func Process(svc internalrefunds.Service, logg *logger.Logger) http.HandlerFunc {
	return decide(svc, logg, func(ctx context.Context, id uuid.UUID, r *http.Request) (any, error) {
		return svc.Process(ctx, id, middleware.ActorIDFromContext(ctx))
	})
}

// Reject closes a requested refund with a reason.
func Reject(svc internalrefunds.Service, logg *logger.Logger) http.HandlerFunc {
	return decide(svc, logg, func(ctx context.Context, id uuid.UUID, r *http.Request) (any, error) {
		var body rejectBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return nil, err
		}
		return svc.Reject(ctx, id, middleware.ActorIDFromContext(ctx), validators.SanitizeString(body.Reason, 500))
	})
}

func decide(svc internalrefunds.Service, logg *logger.Logger, fn func(ctx context.Context, id uuid.UUID, r *http.Request) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "refunds service unavailable"))
			return
		}

		refundID, err := validators.ParseUUIDParam(r, "refundId", "refund id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := fn(r.Context(), refundID, r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
