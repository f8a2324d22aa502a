package transactions

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlement-engine/api/controllers/orders"
	"github.com/angelmondragon/settlement-engine/api/middleware"
	"github.com/angelmondragon/settlement-engine/api/responses"
	"github.com/angelmondragon/settlement-engine/api/validators"
	"github.com/angelmondragon/settlement-engine/internal/ledger"
	internalorders "github.com/angelmondragon/settlement-engine/internal/orders"
	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
)

type transactionReader interface {
	GetTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Transaction, error)
	List(ctx context.Context, params ledger.ListParams) (*ledger.ListResult, error)
}

type orderReader interface {
	GetOrder(ctx context.Context, id uuid.UUID) (*internalorders.OrderView, error)
}

// Get returns one ledger row. Vendors see their own rows; customers see the
// rows of orders they placed.
func Get(svc transactionReader, ordersSvc orderReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || ordersSvc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger unavailable"))
			return
		}

		id, err := validators.ParseUUIDParam(r, "transactionId", "transaction id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		txn, err := svc.GetTransaction(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		allowed, err := canView(r.Context(), ordersSvc, txn)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !allowed {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found"))
			return
		}
		responses.WriteSuccess(w, txn)
	}
}

// ListByOrder returns the ledger history of an order in creation order.
func ListByOrder(svc transactionReader, ordersSvc orderReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || ordersSvc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger unavailable"))
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

		rows, err := svc.ListByOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

// List is the admin ledger search, filtered by vendor_id, order_id, type and status.
func List(svc transactionReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger unavailable"))
			return
		}

		params, err := parseListParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteList(w, result.Transactions, result.NextCursor)
	}
}

func canView(ctx context.Context, ordersSvc orderReader, txn *models.Transaction) (bool, error) {
	actor := middleware.ActorFromContext(ctx)
	switch actor.Role {
	case enums.RoleAdmin, enums.RoleSystem:
		return true, nil
	case enums.RoleVendor:
		return txn.VendorID == actor.ID, nil
	case enums.RoleCustomer:
		if txn.OrderID == nil {
			return false, nil
		}
		view, err := ordersSvc.GetOrder(ctx, *txn.OrderID)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				return false, nil
			}
			return false, err
		}
		return view.Order.CustomerID == actor.ID, nil
	default:
		return false, nil
	}
}

func parseListParams(r *http.Request) (ledger.ListParams, error) {
	page, err := validators.ParsePage(r)
	if err != nil {
		return ledger.ListParams{}, err
	}
	params := ledger.ListParams{Params: page}

	if params.VendorID, err = validators.ParseQueryUUID(r, "vendor_id"); err != nil {
		return ledger.ListParams{}, err
	}
	if params.OrderID, err = validators.ParseQueryUUID(r, "order_id"); err != nil {
		return ledger.ListParams{}, err
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("type")); raw != "" {
		txnType, err := enums.ParseTransactionType(strings.ToLower(raw))
		if err != nil {
			return ledger.ListParams{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid type filter")
		}
		params.Type = &txnType
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err := enums.ParseTransactionStatus(strings.ToLower(raw))
		if err != nil {
			return ledger.ListParams{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		params.Status = &status
	}
	return params, nil
}
