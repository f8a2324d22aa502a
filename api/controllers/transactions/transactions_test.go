package transactions

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/settlement-engine/api/middleware"
	"github.com/angelmondragon/settlement-engine/internal/ledger"
	internalorders "github.com/angelmondragon/settlement-engine/internal/orders"
	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
)

type stubLedger struct {
	txn        *models.Transaction
	listParams *ledger.ListParams
}

func (s *stubLedger) GetTransaction(context.Context, uuid.UUID) (*models.Transaction, error) {
	if s.txn == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
	}
	return s.txn, nil
}

func (s *stubLedger) ListByOrder(context.Context, uuid.UUID) ([]models.Transaction, error) {
	return []models.Transaction{*s.txn}, nil
}

func (s *stubLedger) List(_ context.Context, params ledger.ListParams) (*ledger.ListResult, error) {
	s.listParams = &params
	return &ledger.ListResult{NextCursor: "abc"}, nil
}

type stubOrders struct {
	order models.Order
}

func (s *stubOrders) GetOrder(_ context.Context, id uuid.UUID) (*internalorders.OrderView, error) {
	if s.order.ID != id {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return &internalorders.OrderView{Order: s.order}, nil
}

func getRequest(txnID, actorID uuid.UUID, role enums.ActorRole) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/transactions/"+txnID.String(), nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("transactionId", txnID.String())
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	return req.WithContext(middleware.WithActor(ctx, actorID, role))
}

func TestGetVisibility(t *testing.T) {
	orderID := uuid.New()
	customerID := uuid.New()
	vendorID := uuid.New()
	txn := &models.Transaction{ID: uuid.New(), OrderID: &orderID, VendorID: vendorID, Type: enums.TransactionPayment}
	orders := &stubOrders{order: models.Order{ID: orderID, CustomerID: customerID, VendorID: vendorID}}

	cases := []struct {
		name   string
		actor  uuid.UUID
		role   enums.ActorRole
		status int
	}{
		{name: "admin", actor: uuid.New(), role: enums.RoleAdmin, status: http.StatusOK},
		{name: "owning vendor", actor: vendorID, role: enums.RoleVendor, status: http.StatusOK},
		{name: "other vendor", actor: uuid.New(), role: enums.RoleVendor, status: http.StatusNotFound},
		{name: "ordering customer", actor: customerID, role: enums.RoleCustomer, status: http.StatusOK},
		{name: "other customer", actor: uuid.New(), role: enums.RoleCustomer, status: http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := httptest.NewRecorder()
			Get(&stubLedger{txn: txn}, orders, nil).ServeHTTP(resp, getRequest(txn.ID, tc.actor, tc.role))
			assert.Equal(t, tc.status, resp.Code)
		})
	}
}

func TestGetHidesPayoutRowsFromCustomers(t *testing.T) {
	txn := &models.Transaction{ID: uuid.New(), VendorID: uuid.New(), Type: enums.TransactionPayout}
	resp := httptest.NewRecorder()
	Get(&stubLedger{txn: txn}, &stubOrders{}, nil).ServeHTTP(resp, getRequest(txn.ID, uuid.New(), enums.RoleCustomer))
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestListParsesFilters(t *testing.T) {
	svc := &stubLedger{}
	vendorID := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/transactions?vendor_id="+vendorID.String()+"&type=REFUND&status=completed&limit=10", nil)
	resp := httptest.NewRecorder()

	List(svc, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	require.NotNil(t, svc.listParams)
	require.NotNil(t, svc.listParams.VendorID)
	assert.Equal(t, vendorID, *svc.listParams.VendorID)
	assert.Nil(t, svc.listParams.OrderID)
	require.NotNil(t, svc.listParams.Type)
	assert.Equal(t, enums.TransactionRefund, *svc.listParams.Type)
	require.NotNil(t, svc.listParams.Status)
	assert.Equal(t, enums.TransactionCompleted, *svc.listParams.Status)
	assert.Equal(t, 10, svc.listParams.Limit)
	assert.Contains(t, resp.Body.String(), `"next_cursor":"abc"`)
}

func TestListRejectsBadFilters(t *testing.T) {
	for _, query := range []string{"vendor_id=nope", "type=gift", "status=pending", "limit=0"} {
		resp := httptest.NewRecorder()
		List(&stubLedger{}, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/?"+query, nil))
		assert.Equal(t, http.StatusBadRequest, resp.Code, query)
	}
}
