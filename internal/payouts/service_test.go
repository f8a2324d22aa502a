package payouts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-engine/internal/ledger"
	"github.com/angelmondragon/settlement-engine/pkg/db/dbtest"
	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
	"github.com/angelmondragon/settlement-engine/pkg/outbox"
	"github.com/angelmondragon/settlement-engine/pkg/pagination"
	"github.com/angelmondragon/settlement-engine/pkg/types"
)

type fixture struct {
	db     *gorm.DB
	ledger ledger.Service
	svc    Service
	vendor uuid.UUID
	admin  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := dbtest.Client(t)
	conn := client.DB()
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn), client, nil, nil)
	require.NoError(t, err)
	emitter := outbox.NewService(outbox.NewRepository(conn), nil)
	svc, err := NewService(NewRepository(conn), client, ledgerSvc, emitter, "usd", nil, nil)
	require.NoError(t, err)
	return &fixture{db: conn, ledger: ledgerSvc, svc: svc, vendor: uuid.New(), admin: uuid.New()}
}

// earn records a paid order of total cents at a 30% commission.
func (f *fixture) earn(t *testing.T, total int64) *models.Order {
	t.Helper()
	order := &models.Order{
		CustomerID:     uuid.New(),
		VendorID:       f.vendor,
		ServiceID:      uuid.New(),
		Status:         enums.OrderAccepted,
		PaymentStatus:  enums.PaymentPending,
		Currency:       "USD",
		BasePriceCents: total,
		TotalCents:     total,
		ScheduledAt:    time.Now().Add(24 * time.Hour),
		Address:        types.Address{Line1: "1 Main St", City: "Austin", State: "TX", PostalCode: "78701", Country: "US"},
	}
	require.NoError(t, f.db.Create(order).Error)
	_, err := f.ledger.PostPayment(context.Background(), nil, ledger.PaymentPosting{
		OrderID:        order.ID,
		AmountCents:    total,
		Method:         enums.PaymentMethodCard,
		CommissionRate: decimal.RequireFromString("0.30"),
	})
	require.NoError(t, err)
	return order
}

func (f *fixture) refund(t *testing.T, order *models.Order, amount int64) {
	t.Helper()
	_, err := f.ledger.PostRefund(context.Background(), nil, ledger.RefundPosting{OrderID: order.ID, AmountCents: amount})
	require.NoError(t, err)
}

func (f *fixture) request(ctx context.Context, amount int64) (*models.Payout, error) {
	return f.svc.Request(ctx, RequestInput{
		VendorID:    f.vendor,
		AmountCents: amount,
		ActorID:     f.vendor,
		ActorRole:   enums.RoleVendor,
	})
}

func TestRequestBoundedByBalanceAfterRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.earn(t, 1000)
	f.refund(t, order, 200)

	// 700 - 200 * 0.7
	balance, err := f.ledger.VendorAvailableBalance(ctx, f.vendor)
	require.NoError(t, err)
	require.Equal(t, int64(560), balance)

	_, err = f.request(ctx, 561)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeBusinessRule))
	assert.True(t, errors.Is(err, ledger.ErrInsufficientBalance))

	payout, err := f.request(ctx, 560)
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutPending, payout.Status)
	assert.Equal(t, "USD", payout.Currency)
	assert.False(t, payout.RequestedAt.IsZero())
}

func TestRequestAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.earn(t, 1000)

	_, err := f.svc.Request(ctx, RequestInput{VendorID: f.vendor, AmountCents: 100, ActorID: uuid.New(), ActorRole: enums.RoleVendor})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	_, err = f.svc.Request(ctx, RequestInput{VendorID: f.vendor, AmountCents: 100, ActorID: uuid.New(), ActorRole: enums.RoleCustomer})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	_, err = f.svc.Request(ctx, RequestInput{VendorID: f.vendor, AmountCents: 0, ActorID: f.vendor, ActorRole: enums.RoleVendor})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestApprovePaysAndDebitsBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.earn(t, 1000)
	payout, err := f.request(ctx, 400)
	require.NoError(t, err)

	paid, err := f.svc.Approve(ctx, payout.ID, f.admin)
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutPaid, paid.Status)
	require.NotNil(t, paid.TransactionID)
	assert.Equal(t, f.admin, *paid.DecidedBy)

	txn, err := f.ledger.GetTransaction(ctx, *paid.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionPayout, txn.Type)
	assert.Equal(t, int64(400), txn.AmountCents)
	assert.Equal(t, payout.ID, *txn.PayoutID)

	balance, err := f.ledger.VendorAvailableBalance(ctx, f.vendor)
	require.NoError(t, err)
	assert.Equal(t, int64(300), balance)

	_, err = f.svc.Approve(ctx, payout.ID, f.admin)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestApproveRejectsWhenBalanceShrank(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.earn(t, 1000)
	payout, err := f.request(ctx, 500)
	require.NoError(t, err)

	// refund of 400 takes 280 of vendor share, leaving 420
	f.refund(t, order, 400)

	out, err := f.svc.Approve(ctx, payout.ID, f.admin)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ledger.ErrInsufficientBalance))
	require.NotNil(t, out)
	assert.Equal(t, enums.PayoutRejected, out.Status)

	stored, err := f.svc.Get(ctx, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutRejected, stored.Status)
	assert.Equal(t, ReasonInsufficientBalance, *stored.RejectionReason)
	assert.Nil(t, stored.TransactionID)

	balance, err := f.ledger.VendorAvailableBalance(ctx, f.vendor)
	require.NoError(t, err)
	assert.Equal(t, int64(420), balance)
}

func TestRejectPayout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.earn(t, 1000)
	payout, err := f.request(ctx, 100)
	require.NoError(t, err)

	rejected, err := f.svc.Reject(ctx, payout.ID, f.admin, "bank details missing")
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutRejected, rejected.Status)

	_, err = f.svc.Approve(ctx, payout.ID, f.admin)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	var events int64
	require.NoError(t, f.db.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventPayoutRejected).Count(&events).Error)
	assert.Equal(t, int64(1), events)
}

func TestApproveBatchAggregatesFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.earn(t, 1000)

	// each request fits the balance alone; the third no longer does once the
	// first two are paid
	first, err := f.request(ctx, 300)
	require.NoError(t, err)
	second, err := f.request(ctx, 300)
	require.NoError(t, err)
	third, err := f.request(ctx, 300)
	require.NoError(t, err)
	missing := uuid.New()

	results, err := f.svc.ApproveBatch(ctx, []uuid.UUID{first.ID, second.ID, third.ID, missing, first.ID}, f.admin)
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
	require.Len(t, results, 4)

	assert.Equal(t, enums.PayoutPaid, results[0].Status)
	assert.Empty(t, results[0].Error)
	assert.Equal(t, enums.PayoutPaid, results[1].Status)
	assert.Equal(t, enums.PayoutRejected, results[2].Status)
	assert.NotEmpty(t, results[2].Error)
	assert.Equal(t, missing, results[3].PayoutID)
	assert.NotEmpty(t, results[3].Error)

	balance, err := f.ledger.VendorAvailableBalance(ctx, f.vendor)
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)
}

func TestListPendingPaginates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.earn(t, 10000)
	for i := 0; i < 3; i++ {
		_, err := f.request(ctx, 100)
		require.NoError(t, err)
	}

	page, err := f.svc.ListPending(ctx, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Payouts, 2)
	require.NotEmpty(t, page.NextCursor)

	rest, err := f.svc.ListPending(ctx, pagination.Params{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	assert.Len(t, rest.Payouts, 1)
	assert.Empty(t, rest.NextCursor)

	mine, err := f.svc.ListByVendor(ctx, f.vendor, pagination.Params{})
	require.NoError(t, err)
	assert.Len(t, mine.Payouts, 3)

	_, err = f.svc.ListPending(ctx, pagination.Params{Cursor: "%%%"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
