package payouts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/settlement-engine/api/middleware"
	internalpayouts "github.com/angelmondragon/settlement-engine/internal/payouts"
	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
	"github.com/angelmondragon/settlement-engine/pkg/pagination"
)

type stubPayoutsService struct {
	approveBatch func(ctx context.Context, ids []uuid.UUID, adminID uuid.UUID) ([]internalpayouts.BatchResult, error)
	listByVendor func(ctx context.Context, vendorID uuid.UUID, params pagination.Params) (*internalpayouts.PayoutList, error)
	reject       func(ctx context.Context, id, adminID uuid.UUID, reason string) (*models.Payout, error)
}

func (s *stubPayoutsService) Request(context.Context, internalpayouts.RequestInput) (*models.Payout, error) {
	panic("not implemented")
}

func (s *stubPayoutsService) Approve(context.Context, uuid.UUID, uuid.UUID) (*models.Payout, error) {
	panic("not implemented")
}

func (s *stubPayoutsService) Reject(ctx context.Context, id, adminID uuid.UUID, reason string) (*models.Payout, error) {
	return s.reject(ctx, id, adminID, reason)
}

func (s *stubPayoutsService) ApproveBatch(ctx context.Context, ids []uuid.UUID, adminID uuid.UUID) ([]internalpayouts.BatchResult, error) {
	return s.approveBatch(ctx, ids, adminID)
}

func (s *stubPayoutsService) Get(context.Context, uuid.UUID) (*models.Payout, error) {
	panic("not implemented")
}

func (s *stubPayoutsService) ListPending(context.Context, pagination.Params) (*internalpayouts.PayoutList, error) {
	panic("not implemented")
}

func (s *stubPayoutsService) ListByVendor(ctx context.Context, vendorID uuid.UUID, params pagination.Params) (*internalpayouts.PayoutList, error) {
	return s.listByVendor(ctx, vendorID, params)
}

type stubBalance struct {
	balances map[uuid.UUID]int64
	calls    int
}

func (s *stubBalance) VendorAvailableBalance(_ context.Context, vendorID uuid.UUID) (int64, error) {
	s.calls++
	return s.balances[vendorID], nil
}

func withParam(req *http.Request, key string, value uuid.UUID) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value.String())
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func asActor(req *http.Request, id uuid.UUID, role enums.ActorRole) *http.Request {
	return req.WithContext(middleware.WithActor(req.Context(), id, role))
}

func errorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return envelope.Error.Code
}

func TestApproveBatchReportsPartialSuccess(t *testing.T) {
	adminID := uuid.New()
	paid, short := uuid.New(), uuid.New()
	svc := &stubPayoutsService{
		approveBatch: func(_ context.Context, ids []uuid.UUID, gotAdmin uuid.UUID) ([]internalpayouts.BatchResult, error) {
			if gotAdmin != adminID {
				t.Fatalf("unexpected admin %s", gotAdmin)
			}
			if len(ids) != 2 || ids[0] != paid || ids[1] != short {
				t.Fatalf("unexpected ids %v", ids)
			}
			failure := pkgerrors.New(pkgerrors.CodeBusinessRule, "insufficient balance")
			return []internalpayouts.BatchResult{
					{PayoutID: paid, Status: enums.PayoutPaid},
					{PayoutID: short, Status: enums.PayoutRejected, Error: failure.Error()},
				},
				multierr.Append(nil, fmt.Errorf("payout %s: %w", short, failure))
		},
	}

	body := `{"payout_ids":["` + paid.String() + `","` + short.String() + `"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/payouts/approve-batch", strings.NewReader(body))
	req = asActor(req, adminID, enums.RoleAdmin)
	resp := httptest.NewRecorder()
	ApproveBatch(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Data struct {
			Results []internalpayouts.BatchResult `json:"results"`
			Failed  int                           `json:"failed"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Failed != 1 {
		t.Fatalf("expected 1 failure got %d", envelope.Data.Failed)
	}
	if len(envelope.Data.Results) != 2 {
		t.Fatalf("expected 2 results got %d", len(envelope.Data.Results))
	}
	if envelope.Data.Results[0].Status != enums.PayoutPaid || envelope.Data.Results[0].Error != "" {
		t.Fatalf("unexpected first result %+v", envelope.Data.Results[0])
	}
	if envelope.Data.Results[1].Error == "" {
		t.Fatalf("expected failure detail on second result")
	}
}

func TestApproveBatchWholeFailureIsError(t *testing.T) {
	svc := &stubPayoutsService{
		approveBatch: func(context.Context, []uuid.UUID, uuid.UUID) ([]internalpayouts.BatchResult, error) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "batch exceeds 100 payouts")
		},
	}
	body := `{"payout_ids":["` + uuid.NewString() + `"]}`
	req := asActor(httptest.NewRequest(http.MethodPost, "/api/v1/admin/payouts/approve-batch", strings.NewReader(body)), uuid.New(), enums.RoleAdmin)
	resp := httptest.NewRecorder()
	ApproveBatch(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestApproveBatchRejectsEmptyList(t *testing.T) {
	svc := &stubPayoutsService{
		approveBatch: func(context.Context, []uuid.UUID, uuid.UUID) ([]internalpayouts.BatchResult, error) {
			t.Fatalf("service should not be called")
			return nil, nil
		},
	}
	req := asActor(httptest.NewRequest(http.MethodPost, "/api/v1/admin/payouts/approve-batch", strings.NewReader(`{"payout_ids":[]}`)), uuid.New(), enums.RoleAdmin)
	resp := httptest.NewRecorder()
	ApproveBatch(svc, nil).ServeHTTP(resp, req)
	if code := errorCode(t, resp); code != string(pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error got %s", code)
	}
}

func TestBalanceScopedToOwnVendor(t *testing.T) {
	vendorID := uuid.New()
	ledger := &stubBalance{balances: map[uuid.UUID]int64{vendorID: 560}}

	cases := []struct {
		name    string
		actorID uuid.UUID
		role    enums.ActorRole
		want    int
	}{
		{"own vendor", vendorID, enums.RoleVendor, http.StatusOK},
		{"admin", uuid.New(), enums.RoleAdmin, http.StatusOK},
		{"system", uuid.New(), enums.RoleSystem, http.StatusOK},
		{"other vendor", uuid.New(), enums.RoleVendor, http.StatusForbidden},
		{"customer", vendorID, enums.RoleCustomer, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/vendors/"+vendorID.String()+"/balance", nil)
			req = asActor(withParam(req, "vendorId", vendorID), tc.actorID, tc.role)
			resp := httptest.NewRecorder()
			Balance(ledger, nil).ServeHTTP(resp, req)
			if resp.Code != tc.want {
				t.Fatalf("expected %d got %d: %s", tc.want, resp.Code, resp.Body.String())
			}
			if tc.want != http.StatusOK {
				return
			}
			var envelope struct {
				Data balanceResponse `json:"data"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if envelope.Data.AvailableCents != 560 || envelope.Data.VendorID != vendorID {
				t.Fatalf("unexpected balance %+v", envelope.Data)
			}
		})
	}
	if ledger.calls != 3 {
		t.Fatalf("expected ledger to be read 3 times got %d", ledger.calls)
	}
}

func TestListByVendorForbidsOtherVendors(t *testing.T) {
	vendorID := uuid.New()
	svc := &stubPayoutsService{
		listByVendor: func(_ context.Context, got uuid.UUID, params pagination.Params) (*internalpayouts.PayoutList, error) {
			if got != vendorID {
				t.Fatalf("unexpected vendor %s", got)
			}
			return &internalpayouts.PayoutList{Payouts: []models.Payout{{VendorID: vendorID, AmountCents: 100}}}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/vendors/"+vendorID.String()+"/payouts", nil)
	req = asActor(withParam(req, "vendorId", vendorID), vendorID, enums.RoleVendor)
	resp := httptest.NewRecorder()
	ListByVendor(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/vendors/"+vendorID.String()+"/payouts", nil)
	req = asActor(withParam(req, "vendorId", vendorID), uuid.New(), enums.RoleVendor)
	resp = httptest.NewRecorder()
	ListByVendor(svc, nil).ServeHTTP(resp, req)
	if code := errorCode(t, resp); code != string(pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden got %s", code)
	}
}

func TestRejectRequiresReason(t *testing.T) {
	payoutID := uuid.New()
	adminID := uuid.New()
	svc := &stubPayoutsService{
		reject: func(_ context.Context, id, gotAdmin uuid.UUID, reason string) (*models.Payout, error) {
			if id != payoutID || gotAdmin != adminID {
				t.Fatalf("unexpected ids")
			}
			if reason != "bank details missing" {
				t.Fatalf("unexpected reason %q", reason)
			}
			return &models.Payout{ID: payoutID, Status: enums.PayoutRejected}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"reason":""}`))
	req = asActor(withParam(req, "payoutId", payoutID), adminID, enums.RoleAdmin)
	resp := httptest.NewRecorder()
	Reject(svc, nil).ServeHTTP(resp, req)
	if code := errorCode(t, resp); code != string(pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error got %s", code)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"reason":"  bank details missing "}`))
	req = asActor(withParam(req, "payoutId", payoutID), adminID, enums.RoleAdmin)
	resp = httptest.NewRecorder()
	Reject(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
}
