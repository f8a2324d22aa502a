package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/settlement-engine/api/middleware"
	internalpayments "github.com/angelmondragon/settlement-engine/internal/payments"
	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
)

type stubPaymentsService struct {
	initiateInput *internalpayments.InitiateInput
	confirmRef    string
	outcome       internalpayments.Outcome
	proofInput    *internalpayments.ProofInput
	reviewInput   *internalpayments.ReviewInput
	err           error
}

func (s *stubPaymentsService) Initiate(_ context.Context, input internalpayments.InitiateInput) (*internalpayments.InitiateResult, error) {
	s.initiateInput = &input
	if s.err != nil {
		return nil, s.err
	}
	return &internalpayments.InitiateResult{
		Transaction: &models.Transaction{ID: uuid.New()},
		Action:      internalpayments.ClientAction{Method: input.Method, ExternalReference: "cs_test_123", RedirectURL: "https://checkout.example/cs_test_123"},
	}, nil
}

func (s *stubPaymentsService) Confirm(_ context.Context, ref string, outcome internalpayments.Outcome) (*internalpayments.TransactionResult, error) {
	s.confirmRef = ref
	s.outcome = outcome
	if s.err != nil {
		return nil, s.err
	}
	return &internalpayments.TransactionResult{Transaction: &models.Transaction{ExternalReference: &ref}, Replayed: true}, nil
}

func (s *stubPaymentsService) SubmitProof(_ context.Context, input internalpayments.ProofInput) (*models.Transaction, error) {
	s.proofInput = &input
	ref := input.ExternalReference
	return &models.Transaction{ExternalReference: &ref}, s.err
}

func (s *stubPaymentsService) ReviewManual(_ context.Context, input internalpayments.ReviewInput) (*internalpayments.TransactionResult, error) {
	s.reviewInput = &input
	return &internalpayments.TransactionResult{}, s.err
}

func (s *stubPaymentsService) RefundPayment(context.Context, *models.Transaction, int64, string) error {
	return nil
}

func (s *stubPaymentsService) Methods() []enums.PaymentMethod {
	return []enums.PaymentMethod{enums.PaymentMethodRedirect, enums.PaymentMethodCard}
}

func withParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestInitiateReturnsClientAction(t *testing.T) {
	svc := &stubPaymentsService{}
	orderID := uuid.New()
	customerID := uuid.New()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"method":"Redirect"}`))
	req = withParam(req, "orderId", orderID.String())
	req = req.WithContext(middleware.WithActor(req.Context(), customerID, enums.RoleCustomer))
	resp := httptest.NewRecorder()

	Initiate(svc, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	require.NotNil(t, svc.initiateInput)
	assert.Equal(t, orderID, svc.initiateInput.OrderID)
	assert.Equal(t, enums.PaymentMethodRedirect, svc.initiateInput.Method)
	assert.Equal(t, customerID, svc.initiateInput.Actor.ID)

	var envelope struct {
		Data internalpayments.InitiateResult `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	assert.Equal(t, "cs_test_123", envelope.Data.Action.ExternalReference)
}

func TestInitiateRejectsUnknownMethod(t *testing.T) {
	svc := &stubPaymentsService{}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"method":"barter"}`))
	req = withParam(req, "orderId", uuid.NewString())
	resp := httptest.NewRecorder()

	Initiate(svc, nil).ServeHTTP(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Nil(t, svc.initiateInput)
}

func TestConfirmRequiresExplicitVerdict(t *testing.T) {
	svc := &stubPaymentsService{}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"external_reference":"pi_1"}`))
	resp := httptest.NewRecorder()

	Confirm(svc, nil).ServeHTTP(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Empty(t, svc.confirmRef)
}

func TestConfirmPassesOutcomeAndReportsReplay(t *testing.T) {
	svc := &stubPaymentsService{}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"external_reference":" pi_1 ","success":true,"amount_cents":10500}`))
	resp := httptest.NewRecorder()

	Confirm(svc, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, "pi_1", svc.confirmRef)
	assert.True(t, svc.outcome.Success)
	assert.Equal(t, int64(10500), svc.outcome.AmountCents)

	var envelope struct {
		Data internalpayments.TransactionResult `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	assert.True(t, envelope.Data.Replayed)
}

func TestConfirmSurfacesGatewayFailure(t *testing.T) {
	svc := &stubPaymentsService{err: pkgerrors.New(pkgerrors.CodeGatewayFailure, "gateway unavailable")}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"external_reference":"pi_1","success":false,"failure_reason":"card_declined"}`))
	resp := httptest.NewRecorder()

	Confirm(svc, nil).ServeHTTP(resp, req)

	assert.Equal(t, http.StatusBadGateway, resp.Code)
}

func TestReviewUsesCallerAsReviewer(t *testing.T) {
	svc := &stubPaymentsService{}
	adminID := uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"approve":false,"note":"blurry receipt"}`))
	req = withParam(req, "reference", "manual_abc")
	req = req.WithContext(middleware.WithActor(req.Context(), adminID, enums.RoleAdmin))
	resp := httptest.NewRecorder()

	Review(svc, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	require.NotNil(t, svc.reviewInput)
	assert.Equal(t, "manual_abc", svc.reviewInput.ExternalReference)
	assert.False(t, svc.reviewInput.Approve)
	assert.Equal(t, adminID, svc.reviewInput.ReviewerID)
	assert.Equal(t, "blurry receipt", svc.reviewInput.Note)
}

func TestSubmitProofRequiresReference(t *testing.T) {
	svc := &stubPaymentsService{}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"proof_reference":"uploads/1.png"}`))
	resp := httptest.NewRecorder()

	SubmitProof(svc, nil).ServeHTTP(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Nil(t, svc.proofInput)
}

func TestMethodsListsRegisteredGateways(t *testing.T) {
	resp := httptest.NewRecorder()
	Methods(&stubPaymentsService{}, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"redirect"`)
	assert.Contains(t, resp.Body.String(), `"card"`)
}
