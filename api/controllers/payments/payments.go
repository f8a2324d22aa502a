package payments

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/settlement-engine/api/middleware"
	"github.com/angelmondragon/settlement-engine/api/responses"
	"github.com/angelmondragon/settlement-engine/api/validators"
	internalpayments "github.com/angelmondragon/settlement-engine/internal/payments"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
)

type initiateRequest struct {
	Method string `json:"method" validate:"required"`
}

type confirmRequest struct {
	ExternalReference string `json:"external_reference" validate:"required,max=255"`
	Success           *bool  `json:"success" validate:"required"`
	AmountCents       int64  `json:"amount_cents" validate:"gte=0"`
	FailureReason     string `json:"failure_reason,omitempty" validate:"max=500"`
}

type proofRequest struct {
	ProofReference string `json:"proof_reference" validate:"required,max=512"`
}

type reviewRequest struct {
	Approve *bool  `json:"approve" validate:"required"`
	Note    string `json:"note,omitempty" validate:"max=500"`
}

// Methods lists the payment methods this deployment accepts.
func Methods(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		responses.WriteSuccess(w, map[string]any{"methods": svc.Methods()})
	}
}

// Initiate opens a payment attempt for an order and returns the client action
// for the chosen gateway.
func Initiate(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		orderID, err := validators.ParseUUIDParam(r, "orderId", "order id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req initiateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		method, err := enums.ParsePaymentMethod(strings.ToLower(strings.TrimSpace(req.Method)))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method"))
			return
		}

		result, err := svc.Initiate(r.Context(), internalpayments.InitiateInput{
			OrderID: orderID,
			Method:  method,
			Actor:   middleware.ActorFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, result)
	}
}

// Confirm records a gateway verdict reported by a trusted caller. Replays of
// an already settled reference answer 200 with replayed=true.
func Confirm(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		var req confirmRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Confirm(r.Context(), strings.TrimSpace(req.ExternalReference), internalpayments.Outcome{
			Success:       *req.Success,
			AmountCents:   req.AmountCents,
			FailureReason: validators.SanitizeString(req.FailureReason, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// SubmitProof attaches the customer's proof of transfer to a manual payment.
func SubmitProof(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		ref, err := parseReference(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req proofRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		txn, err := svc.SubmitProof(r.Context(), internalpayments.ProofInput{
			ExternalReference: ref,
			ProofReference:    validators.SanitizeString(req.ProofReference, 512),
			Actor:             middleware.ActorFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, txn)
	}
}

// Review settles a manual payment after an admin has checked the proof.
func Review(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		ref, err := parseReference(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req reviewRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ReviewManual(r.Context(), internalpayments.ReviewInput{
			ExternalReference: ref,
			Approve:           *req.Approve,
			ReviewerID:        middleware.ActorIDFromContext(r.Context()),
			Note:              validators.SanitizeString(req.Note, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func parseReference(r *http.Request) (string, error) {
	ref := strings.TrimSpace(chi.URLParam(r, "reference"))
	if ref == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "payment reference is required")
	}
	return ref, nil
}
