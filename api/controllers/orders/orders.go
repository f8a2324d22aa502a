package orders

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlement-engine/api/middleware"
	"github.com/angelmondragon/settlement-engine/api/responses"
	"github.com/angelmondragon/settlement-engine/api/validators"
	internalorders "github.com/angelmondragon/settlement-engine/internal/orders"
	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
	"github.com/angelmondragon/settlement-engine/pkg/types"
)

type createOrderRequest struct {
	ServiceID   uuid.UUID     `json:"service_id" validate:"required"`
	VendorID    uuid.UUID     `json:"vendor_id" validate:"required"`
	ScheduledAt time.Time     `json:"scheduled_at" validate:"required"`
	Address     types.Address `json:"address" validate:"required"`
	Notes       *string       `json:"notes,omitempty" validate:"omitempty,max=2000"`
	CouponCode  *string       `json:"coupon_code,omitempty" validate:"omitempty,max=64"`
}

type transitionRequest struct {
	To              string  `json:"to" validate:"required"`
	ExpectedVersion int     `json:"expected_version" validate:"required,gte=1"`
	Reason          *string `json:"reason,omitempty" validate:"omitempty,max=500"`
}

// Create books a service for the calling customer.
func Create(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		var req createOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		actor := middleware.ActorFromContext(r.Context())
		view, err := svc.CreateOrder(r.Context(), internalorders.CreateOrderInput{
			CustomerID:  actor.ID,
			ServiceID:   req.ServiceID,
			VendorID:    req.VendorID,
			ScheduledAt: req.ScheduledAt,
			Address:     req.Address,
			Notes:       sanitized(req.Notes, 2000),
			CouponCode:  sanitized(req.CouponCode, 64),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, view)
	}
}

// Detail returns an order with its pricing snapshot. Customers and vendors
// only see their own orders.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := validators.ParseUUIDParam(r, "orderId", "order id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.GetOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !CanView(&view.Order, middleware.ActorFromContext(r.Context())) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "order not found"))
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// Transition applies one lifecycle edge guarded by the caller's last seen version.
func Transition(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := validators.ParseUUIDParam(r, "orderId", "order id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req transitionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		to, err := enums.ParseOrderStatus(strings.ToLower(strings.TrimSpace(req.To)))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid target status"))
			return
		}

		view, err := svc.Transition(r.Context(), internalorders.TransitionInput{
			OrderID:         orderID,
			ExpectedVersion: req.ExpectedVersion,
			To:              to,
			Actor:           middleware.ActorFromContext(r.Context()),
			Reason:          sanitized(req.Reason, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// Archive hides a finished order from default listings.
func Archive(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := validators.ParseUUIDParam(r, "orderId", "order id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Archive(r.Context(), orderID, middleware.ActorFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// List pages through the caller's orders. Customers see orders they placed,
// vendors see orders placed with them. Admins pick a side with the
// customer_id or vendor_id query parameter.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		params, err := parseListParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		actor := middleware.ActorFromContext(r.Context())
		var list *internalorders.OrderList
		switch actor.Role {
		case enums.RoleCustomer:
			list, err = svc.ListForCustomer(r.Context(), actor.ID, params)
		case enums.RoleVendor:
			list, err = svc.ListForVendor(r.Context(), actor.ID, params)
		case enums.RoleAdmin, enums.RoleSystem:
			list, err = listForOperator(r, svc, params)
		default:
			err = pkgerrors.New(pkgerrors.CodeForbidden, "role cannot list orders")
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteList(w, list.Orders, list.NextCursor)
	}
}

// CanView reports whether actor may read order.
func CanView(order *models.Order, actor internalorders.Actor) bool {
	switch actor.Role {
	case enums.RoleAdmin, enums.RoleSystem:
		return true
	case enums.RoleCustomer:
		return order.CustomerID == actor.ID
	case enums.RoleVendor:
		return order.VendorID == actor.ID
	default:
		return false
	}
}

func listForOperator(r *http.Request, svc internalorders.Service, params internalorders.ListParams) (*internalorders.OrderList, error) {
	vendorID, err := validators.ParseQueryUUID(r, "vendor_id")
	if err != nil {
		return nil, err
	}
	customerID, err := validators.ParseQueryUUID(r, "customer_id")
	if err != nil {
		return nil, err
	}
	switch {
	case vendorID != nil && customerID != nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor_id and customer_id are mutually exclusive")
	case vendorID != nil:
		return svc.ListForVendor(r.Context(), *vendorID, params)
	case customerID != nil:
		return svc.ListForCustomer(r.Context(), *customerID, params)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor_id or customer_id is required")
	}
}

func parseListParams(r *http.Request) (internalorders.ListParams, error) {
	page, err := validators.ParsePage(r)
	if err != nil {
		return internalorders.ListParams{}, err
	}
	params := internalorders.ListParams{Params: page}

	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err := enums.ParseOrderStatus(strings.ToLower(raw))
		if err != nil {
			return internalorders.ListParams{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		params.Status = &status
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("include_archived")); raw != "" {
		include, err := strconv.ParseBool(raw)
		if err != nil {
			return internalorders.ListParams{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "include_archived must be a boolean")
		}
		params.IncludeArchived = include
	}
	return params, nil
}

func sanitized(value *string, maxLen int) *string {
	if value == nil {
		return nil
	}
	clean := validators.SanitizeString(*value, maxLen)
	if clean == "" {
		return nil
	}
	return &clean
}
