package orders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-engine/internal/catalog"
	"github.com/angelmondragon/settlement-engine/internal/coupons"
	"github.com/angelmondragon/settlement-engine/internal/pricing"
	"github.com/angelmondragon/settlement-engine/pkg/db/dbtest"
	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
	"github.com/angelmondragon/settlement-engine/pkg/outbox"
	"github.com/angelmondragon/settlement-engine/pkg/pagination"
	"github.com/angelmondragon/settlement-engine/pkg/types"
)

type fixture struct {
	db       *gorm.DB
	svc      Service
	catalog  *catalog.Repository
	coupons  coupons.Service
	offering models.ServiceOffering
	vendor   Actor
	customer Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := dbtest.Client(t)
	conn := client.DB()

	engine, err := pricing.NewEngine(pricing.Rules{
		TaxRate:     decimal.RequireFromString("0.05"),
		PlatformFee: pricing.FeeRule{Type: enums.PlatformFeeFlat, Value: decimal.NewFromInt(2000)},
	})
	require.NoError(t, err)
	couponSvc, err := coupons.NewService(coupons.NewRepository(conn))
	require.NoError(t, err)
	lookup := catalog.NewRepository(conn)
	emitter := outbox.NewService(outbox.NewRepository(conn), nil)

	svc, err := NewService(NewRepository(conn), client, emitter, lookup, couponSvc, engine, "usd", nil, nil)
	require.NoError(t, err)

	vendorID := uuid.New()
	offering := models.ServiceOffering{
		VendorID:        vendorID,
		Name:            "Deep clean",
		BasePriceCents:  100000,
		DiscountPercent: decimal.NewFromInt(10),
		IsActive:        true,
	}
	require.NoError(t, lookup.Create(context.Background(), &offering))

	return &fixture{
		db:       conn,
		svc:      svc,
		catalog:  lookup,
		coupons:  couponSvc,
		offering: offering,
		vendor:   Actor{ID: vendorID, Role: enums.RoleVendor},
		customer: Actor{ID: uuid.New(), Role: enums.RoleCustomer},
	}
}

func (f *fixture) input() CreateOrderInput {
	return CreateOrderInput{
		CustomerID:  f.customer.ID,
		ServiceID:   f.offering.ID,
		VendorID:    f.offering.VendorID,
		ScheduledAt: time.Now().Add(48 * time.Hour),
		Address:     types.Address{Line1: "1 Main St", City: "Austin", State: "TX", PostalCode: "78701"},
	}
}

func (f *fixture) create(t *testing.T) *OrderView {
	t.Helper()
	view, err := f.svc.CreateOrder(context.Background(), f.input())
	require.NoError(t, err)
	return view
}

func (f *fixture) markPaid(t *testing.T, orderID uuid.UUID) {
	t.Helper()
	require.NoError(t, f.db.Model(&models.Order{}).Where("id = ?", orderID).Update("payment_status", enums.PaymentPaid).Error)
}

func (f *fixture) events(t *testing.T, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&count).Error)
	return count
}

func TestCreateOrderFreezesPricingSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.coupons.Create(ctx, coupons.CreateInput{
		Code:             "SAVE20",
		Type:             enums.CouponPercentage,
		Value:            decimal.NewFromInt(20),
		MaxDiscountCents: 15000,
		UsageLimit:       1,
	})
	require.NoError(t, err)

	input := f.input()
	code := "save20"
	input.CouponCode = &code
	view, err := f.svc.CreateOrder(ctx, input)
	require.NoError(t, err)

	order := view.Order
	assert.Equal(t, enums.OrderPending, order.Status)
	assert.Equal(t, enums.PaymentPending, order.PaymentStatus)
	assert.Equal(t, 1, order.Version)
	assert.Equal(t, "USD", order.Currency)
	assert.Equal(t, int64(10000), order.ServiceDiscountCents)
	assert.Equal(t, int64(15000), order.CouponDiscountCents)
	assert.Equal(t, int64(3750), order.TaxCents)
	assert.Equal(t, int64(2000), order.PlatformFeeCents)
	assert.Equal(t, int64(80750), order.TotalCents)
	require.NotNil(t, order.CouponCode)
	assert.Equal(t, "SAVE20", *order.CouponCode)
	assert.True(t, view.Pricing.Reconciles())
	assert.Equal(t, enums.OrderPending, view.Stage)
	assert.Equal(t, int64(1), f.events(t, enums.EventOrderCreated))

	// validation never consumes a redemption slot
	coupon, err := f.coupons.Get(ctx, "SAVE20")
	require.NoError(t, err)
	assert.Equal(t, 0, coupon.UsageCount)

	second, err := f.svc.CreateOrder(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, int64(80750), second.Order.TotalCents)
}

func TestCreateOrderRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	noAddress := f.input()
	noAddress.Address = types.Address{}
	_, err := f.svc.CreateOrder(ctx, noAddress)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	past := f.input()
	past.ScheduledAt = time.Now().Add(-time.Hour)
	_, err = f.svc.CreateOrder(ctx, past)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	wrongVendor := f.input()
	wrongVendor.VendorID = uuid.New()
	_, err = f.svc.CreateOrder(ctx, wrongVendor)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	unknown := f.input()
	unknown.ServiceID = uuid.New()
	_, err = f.svc.CreateOrder(ctx, unknown)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = f.coupons.Create(ctx, coupons.CreateInput{Code: "BIGSPEND", Type: enums.CouponFixed, Value: decimal.NewFromInt(500), MinOrderCents: 100000})
	require.NoError(t, err)
	withCoupon := f.input()
	code := "BIGSPEND"
	withCoupon.CouponCode = &code
	_, err = f.svc.CreateOrder(ctx, withCoupon)
	var rejection *coupons.Rejection
	require.True(t, errors.As(err, &rejection))
	assert.Equal(t, coupons.ReasonMinOrderNotMet, rejection.Reason)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeBusinessRule))

	var count int64
	require.NoError(t, f.db.Model(&models.Order{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestTransitionFollowsLifecycleEdges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.create(t)
	id := view.Order.ID

	accepted, err := f.svc.Accept(ctx, id, 1, f.vendor)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderAccepted, accepted.Order.Status)
	assert.Equal(t, 2, accepted.Order.Version)

	started, err := f.svc.Start(ctx, id, 2, f.vendor)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderInProgress, started.Order.Status)

	_, err = f.svc.Complete(ctx, id, 3, f.vendor)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeBusinessRule))
	unchanged, err := f.svc.GetOrder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderInProgress, unchanged.Order.Status)
	assert.Equal(t, 3, unchanged.Order.Version)

	f.markPaid(t, id)
	completed, err := f.svc.Complete(ctx, id, 3, f.vendor)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderCompleted, completed.Order.Status)
	assert.Equal(t, 4, completed.Order.Version)
	assert.Equal(t, int64(3), f.events(t, enums.EventOrderStatusChanged))
}

func TestTransitionRejectsIllegalEdges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.create(t).Order.ID
	f.markPaid(t, id)

	for _, to := range []enums.OrderStatus{enums.OrderInProgress, enums.OrderCompleted, enums.OrderPending} {
		_, err := f.svc.Transition(ctx, TransitionInput{OrderID: id, ExpectedVersion: 1, To: to, Actor: f.vendor})
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "to %s", to)
	}

	_, err := f.svc.Reject(ctx, id, 1, f.vendor, "fully booked")
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, id, 2, f.customer, "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	view, err := f.svc.GetOrder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderRejected, view.Order.Status)
	assert.Equal(t, 2, view.Order.Version)
}

func TestTransitionStaleVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.create(t).Order.ID

	_, err := f.svc.Accept(ctx, id, 1, f.vendor)
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, id, 1, f.customer, "changed plans")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConcurrentModification))
	assert.True(t, pkgerrors.MetadataFor(pkgerrors.As(err).Code()).Retryable)
}

func TestConcurrentAcceptAndCancelOnlyOneApplies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.create(t).Order.ID

	var wg sync.WaitGroup
	results := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, results[0] = f.svc.Accept(ctx, id, 1, f.vendor)
	}()
	go func() {
		defer wg.Done()
		_, results[1] = f.svc.Cancel(ctx, id, 1, f.customer, "")
	}()
	wg.Wait()

	failures := 0
	for _, err := range results {
		if err != nil {
			failures++
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConcurrentModification))
		}
	}
	assert.Equal(t, 1, failures)

	view, err := f.svc.GetOrder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, view.Order.Version)
}

func TestTransitionAuthorizesActor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.create(t).Order.ID

	_, err := f.svc.Accept(ctx, id, 1, f.customer)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = f.svc.Accept(ctx, id, 1, Actor{ID: uuid.New(), Role: enums.RoleVendor})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = f.svc.Accept(ctx, id, 1, Actor{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))

	view, err := f.svc.Cancel(ctx, id, 1, f.customer, "no longer needed")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderCancelled, view.Order.Status)
}

func TestArchiveTerminalOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := Actor{ID: uuid.New(), Role: enums.RoleAdmin}
	open := f.create(t).Order.ID
	closed := f.create(t).Order.ID

	_, err := f.svc.Archive(ctx, open, admin)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	_, err = f.svc.Archive(ctx, open, f.vendor)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = f.svc.Cancel(ctx, closed, 1, f.customer, "")
	require.NoError(t, err)
	archived, err := f.svc.Archive(ctx, closed, admin)
	require.NoError(t, err)
	assert.NotNil(t, archived.Order.ArchivedAt)

	again, err := f.svc.Archive(ctx, closed, admin)
	require.NoError(t, err)
	assert.Equal(t, archived.Order.ArchivedAt.Unix(), again.Order.ArchivedAt.Unix())
	assert.Equal(t, int64(1), f.events(t, enums.EventOrderArchived))

	visible, err := f.svc.ListForCustomer(ctx, f.customer.ID, ListParams{})
	require.NoError(t, err)
	require.Len(t, visible.Orders, 1)
	assert.Equal(t, open, visible.Orders[0].ID)

	all, err := f.svc.ListForCustomer(ctx, f.customer.ID, ListParams{IncludeArchived: true})
	require.NoError(t, err)
	assert.Len(t, all.Orders, 2)
}

func TestListForVendorPages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		f.create(t)
	}

	first, err := f.svc.ListForVendor(ctx, f.vendor.ID, ListParams{Params: pagination.Params{Limit: 2}})
	require.NoError(t, err)
	assert.Len(t, first.Orders, 2)
	require.NotEmpty(t, first.NextCursor)

	rest, err := f.svc.ListForVendor(ctx, f.vendor.ID, ListParams{Params: pagination.Params{Limit: 2, Cursor: first.NextCursor}})
	require.NoError(t, err)
	assert.Len(t, rest.Orders, 1)
	assert.Empty(t, rest.NextCursor)

	accepted := enums.OrderAccepted
	none, err := f.svc.ListForVendor(ctx, f.vendor.ID, ListParams{Status: &accepted})
	require.NoError(t, err)
	assert.Empty(t, none.Orders)
}
