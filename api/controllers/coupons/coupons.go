package coupons

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/settlement-engine/api/middleware"
	"github.com/angelmondragon/settlement-engine/api/responses"
	"github.com/angelmondragon/settlement-engine/api/validators"
	"github.com/angelmondragon/settlement-engine/internal/catalog"
	internalcoupons "github.com/angelmondragon/settlement-engine/internal/coupons"
	"github.com/angelmondragon/settlement-engine/internal/pricing"
	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
)

type quoter interface {
	Quote(req pricing.Request) (pricing.Breakdown, error)
}

type validateRequest struct {
	Code      string    `json:"code" validate:"required,max=64"`
	ServiceID uuid.UUID `json:"service_id" validate:"required"`
}

type setActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

type validateResponse struct {
	Coupon  *models.Coupon    `json:"coupon"`
	Pricing pricing.Breakdown `json:"pricing"`
}

// Create registers a coupon.
func Create(svc internalcoupons.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "coupons service unavailable"))
			return
		}

		var input internalcoupons.CreateInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		coupon, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, coupon)
	}
}

func Get(svc internalcoupons.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "coupons service unavailable"))
			return
		}

		coupon, err := svc.Get(r.Context(), chi.URLParam(r, "code"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, coupon)
	}
}

// SetActive toggles whether a coupon can be redeemed.
func SetActive(svc internalcoupons.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "coupons service unavailable"))
			return
		}

		var req setActiveRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		code := chi.URLParam(r, "code")
		if err := svc.SetActive(r.Context(), code, *req.Active); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		coupon, err := svc.Get(r.Context(), code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, coupon)
	}
}

// Validate checks a code against a service for the calling customer and
// previews the price it would produce. No redemption slot is consumed.
func Validate(svc internalcoupons.Service, offerings catalog.Lookup, engine quoter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || offerings == nil || engine == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "coupons service unavailable"))
			return
		}

		var req validateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		offering, err := offerings.GetOffering(r.Context(), req.ServiceID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		coupon, err := svc.Validate(r.Context(), internalcoupons.ValidateInput{
			Code:        strings.TrimSpace(req.Code),
			OrderAmount: pricing.DiscountedBase(offering.BasePriceCents, offering.DiscountPercent),
			UserID:      middleware.ActorIDFromContext(r.Context()),
			ServiceID:   offering.ID,
			VendorID:    offering.VendorID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		quote, err := engine.Quote(pricing.Request{
			BasePriceCents:         offering.BasePriceCents,
			ServiceDiscountPercent: offering.DiscountPercent,
			DeliveryFeeCents:       offering.DeliveryFeeCents,
			Coupon:                 internalcoupons.Terms(coupon),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, validateResponse{Coupon: coupon, Pricing: quote})
	}
}
