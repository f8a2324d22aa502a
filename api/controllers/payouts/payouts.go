package payouts

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/settlement-engine/api/middleware"
	"github.com/angelmondragon/settlement-engine/api/responses"
	"github.com/angelmondragon/settlement-engine/api/validators"
	internalpayouts "github.com/angelmondragon/settlement-engine/internal/payouts"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
)

type balanceReader interface {
	VendorAvailableBalance(ctx context.Context, vendorID uuid.UUID) (int64, error)
}

type requestBody struct {
	AmountCents int64 `json:"amount_cents" validate:"required,gt=0"`
}

type rejectBody struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type batchBody struct {
	PayoutIDs []uuid.UUID `json:"payout_ids" validate:"required,min=1,max=100"`
}

type balanceResponse struct {
	VendorID       uuid.UUID `json:"vendor_id"`
	AvailableCents int64     `json:"available_cents"`
}

// Request files a withdrawal of available balance for a vendor.
func Request(svc internalpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}

		vendorID, err := validators.ParseUUIDParam(r, "vendorId", "vendor id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body requestBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payout, err := svc.Request(r.Context(), internalpayouts.RequestInput{
			VendorID:    vendorID,
			AmountCents: body.AmountCents,
			ActorID:     middleware.ActorIDFromContext(r.Context()),
			ActorRole:   middleware.RoleFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, payout)
	}
}

// Balance reports the vendor's available balance.
func Balance(ledger balanceReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ledger == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger unavailable"))
			return
		}

		vendorID, err := ownVendor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		available, err := ledger.VendorAvailableBalance(r.Context(), vendorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, balanceResponse{VendorID: vendorID, AvailableCents: available})
	}
}

// ListByVendor pages through a vendor's payouts, newest first.
func ListByVendor(svc internalpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}

		vendorID, err := ownVendor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListByVendor(r.Context(), vendorID, page)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteList(w, list.Payouts, list.NextCursor)
	}
}

// ListPending is the admin review queue.
func ListPending(svc internalpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}

		page, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListPending(r.Context(), page)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteList(w, list.Payouts, list.NextCursor)
	}
}

func Approve(svc internalpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}

		payoutID, err := validators.ParseUUIDParam(r, "payoutId", "payout id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payout, err := svc.Approve(r.Context(), payoutID, middleware.ActorIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payout)
	}
}

func Reject(svc internalpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}

		payoutID, err := validators.ParseUUIDParam(r, "payoutId", "payout id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body rejectBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payout, err := svc.Reject(r.Context(), payoutID, middleware.ActorIDFromContext(r.Context()), validators.SanitizeString(body.Reason, 500))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payout)
	}
}

// ApproveBatch approves each payout independently and reports a result per id.
func ApproveBatch(svc internalpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}

		var body batchBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		results, err := svc.ApproveBatch(r.Context(), body.PayoutIDs, middleware.ActorIDFromContext(r.Context()))
		if results == nil && err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		failed := len(multierr.Errors(err))
		if failed > 0 && logg != nil {
			logg.Warn(logg.WithField(r.Context(), "failed", failed), "payouts.batch.partial")
		}
		responses.WriteSuccess(w, map[string]any{"results": results, "failed": failed})
	}
}

// ownVendor reads the vendor path parameter. Vendors may only address
// themselves; admins and the system may address anyone.
func ownVendor(r *http.Request) (uuid.UUID, error) {
	vendorID, err := validators.ParseUUIDParam(r, "vendorId", "vendor id")
	if err != nil {
		return uuid.Nil, err
	}
	switch middleware.RoleFromContext(r.Context()) {
	case enums.RoleAdmin, enums.RoleSystem:
		return vendorID, nil
	case enums.RoleVendor:
		if middleware.ActorIDFromContext(r.Context()) == vendorID {
			return vendorID, nil
		}
	}
	return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "vendor access denied")
}
