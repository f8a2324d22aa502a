package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-engine/internal/coupons"
	"github.com/angelmondragon/settlement-engine/internal/ledger"
	"github.com/angelmondragon/settlement-engine/internal/orders"
	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
	"github.com/angelmondragon/settlement-engine/pkg/metrics"
	"github.com/angelmondragon/settlement-engine/pkg/outbox"
	"github.com/angelmondragon/settlement-engine/pkg/outbox/payloads"
)

const (
	reasonDuplicateCapture = "duplicate_capture"
	reasonProofRejected    = "proof_rejected"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type orderReader interface {
	GetOrder(ctx context.Context, id uuid.UUID) (*orders.OrderView, error)
}

type couponService interface {
	Validate(ctx context.Context, input coupons.ValidateInput) (*models.Coupon, error)
	Reserve(ctx context.Context, tx *gorm.DB, input coupons.ReserveInput) error
}

// ConfirmationCache remembers completed confirmations so webhook storms are
// answered without touching the ledger. The ledger stays authoritative.
type ConfirmationCache interface {
	LookupConfirmation(ctx context.Context, reference string) (string, bool, error)
	RememberConfirmation(ctx context.Context, reference, transactionID string, ttl time.Duration) error
}

// Service captures payments through the registered gateways and posts them
// to the ledger.
type Service interface {
	Initiate(ctx context.Context, input InitiateInput) (*InitiateResult, error)
	Confirm(ctx context.Context, externalReference string, outcome Outcome) (*TransactionResult, error)
	SubmitProof(ctx context.Context, input ProofInput) (*models.Transaction, error)
	ReviewManual(ctx context.Context, input ReviewInput) (*TransactionResult, error)
	RefundPayment(ctx context.Context, payment *models.Transaction, amountCents int64, idempotencyKey string) error
	Methods() []enums.PaymentMethod
}

type InitiateInput struct {
	OrderID uuid.UUID
	Method  enums.PaymentMethod
	Actor   orders.Actor
}

type InitiateResult struct {
	Transaction *models.Transaction `json:"transaction"`
	Action      ClientAction        `json:"action"`
}

// Outcome is the gateway's verdict on a payment attempt. AmountCents, when
// set, is the amount the gateway reports as captured.
type Outcome struct {
	Success       bool
	AmountCents   int64
	FailureReason string
}

// TransactionResult is a confirmed payment attempt. Replayed reports that the
// reference had already been settled and nothing new was written.
type TransactionResult struct {
	Transaction *models.Transaction `json:"transaction"`
	Replayed    bool                `json:"replayed"`
}

type ProofInput struct {
	ExternalReference string
	ProofReference    string
	Actor             orders.Actor
}

type ReviewInput struct {
	ExternalReference string
	Approve           bool
	ReviewerID        uuid.UUID
	Note              string
}

// ServiceParams carries the payment service dependencies. Cache, Logger and
// Metrics are optional.
type ServiceParams struct {
	Ledger         ledger.Service
	Orders         orderReader
	Coupons        couponService
	Gateways       *Registry
	Outbox         outbox.Emitter
	Tx             txRunner
	CommissionRate decimal.Decimal
	Cache          ConfirmationCache
	CacheTTL       time.Duration
	Logger         *logger.Logger
	Metrics        *metrics.Settlement
}

type service struct {
	ledger     ledger.Service
	orders     orderReader
	coupons    couponService
	gateways   *Registry
	outbox     outbox.Emitter
	tx         txRunner
	commission decimal.Decimal
	cache      ConfirmationCache
	cacheTTL   time.Duration
	logg       *logger.Logger
	metrics    *metrics.Settlement
}

func NewService(params ServiceParams) (Service, error) {
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order reader required")
	}
	if params.Coupons == nil {
		return nil, fmt.Errorf("coupon service required")
	}
	if params.Gateways == nil {
		return nil, fmt.Errorf("gateway registry required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.CommissionRate.IsNegative() || params.CommissionRate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("commission rate must be between 0 and 1")
	}
	ttl := params.CacheTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &service{
		ledger:     params.Ledger,
		orders:     params.Orders,
		coupons:    params.Coupons,
		gateways:   params.Gateways,
		outbox:     params.Outbox,
		tx:         params.Tx,
		commission: params.CommissionRate,
		cache:      params.Cache,
		cacheTTL:   ttl,
		logg:       params.Logger,
		metrics:    params.Metrics,
	}, nil
}

func (s *service) Methods() []enums.PaymentMethod {
	return s.gateways.Methods()
}

// Initiate opens a payment attempt. The coupon on the order is re-validated
// but not reserved; reservation happens when the payment is posted.
func (s *service) Initiate(ctx context.Context, input InitiateInput) (*InitiateResult, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	gw, ok := s.gateways.Lookup(input.Method)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("payment method %q is not available", input.Method))
	}

	view, err := s.orders.GetOrder(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	order := &view.Order
	if err := authorizePayer(order, input.Actor); err != nil {
		return nil, err
	}
	switch order.Status {
	case enums.OrderPending, enums.OrderAccepted, enums.OrderInProgress:
	default:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order in status %s cannot be paid", order.Status))
	}
	if !order.PaymentStatus.IsPayable() {
		return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, fmt.Sprintf("order payment status is %s", order.PaymentStatus))
	}
	if order.CouponCode != nil {
		if _, err := s.coupons.Validate(ctx, coupons.ValidateInput{
			Code:        *order.CouponCode,
			OrderAmount: order.BasePriceCents - order.ServiceDiscountCents,
			UserID:      order.CustomerID,
			ServiceID:   order.ServiceID,
			VendorID:    order.VendorID,
		}); err != nil {
			return nil, err
		}
	}

	action, err := gw.Initiate(ctx, Charge{
		AttemptID:   uuid.New(),
		OrderID:     order.ID,
		CustomerID:  order.CustomerID,
		AmountCents: order.TotalCents,
		Currency:    order.Currency,
		Description: fmt.Sprintf("Order %s", order.ID),
	})
	if err != nil {
		s.logError(ctx, order.ID, "payment initiation failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeGatewayFailure, err, "payment gateway unavailable")
	}
	if action.ExternalReference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeGatewayFailure, "gateway returned no reference")
	}

	var txn *models.Transaction
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		txn, err = s.ledger.AppendInitiated(ctx, tx, ledger.InitiatedPayment{
			Order:             order,
			Method:            gw.Method(),
			ExternalReference: action.ExternalReference,
		})
		if err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentInitiated,
			AggregateType: enums.AggregateTransaction,
			AggregateID:   txn.ID,
			Actor:         &outbox.ActorRef{ActorID: input.Actor.ID, Role: input.Actor.Role.String()},
			Data:          paymentPayload(txn, nil),
		})
	})
	if err != nil {
		return nil, err
	}
	return &InitiateResult{Transaction: txn, Action: action}, nil
}

// Confirm settles a payment attempt. It is idempotent on externalReference:
// a reference that is already completed returns the existing row with
// Replayed set. Manual attempts are settled through ReviewManual only.
func (s *service) Confirm(ctx context.Context, externalReference string, outcome Outcome) (*TransactionResult, error) {
	return s.confirm(ctx, strings.TrimSpace(externalReference), outcome, false)
}

func (s *service) confirm(ctx context.Context, ref string, outcome Outcome, reviewed bool) (*TransactionResult, error) {
	if ref == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "external reference is required")
	}
	if outcome.Success {
		if res, ok := s.cachedReplay(ctx, ref); ok {
			return res, nil
		}
	}

	var (
		result       *TransactionResult
		outcomeLabel string
		duplicate    bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txn, err := s.ledger.FindByExternalReference(ctx, tx, ref)
		if err != nil {
			return err
		}
		if txn.Type != enums.TransactionPayment || txn.PaymentMethod == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "reference does not identify a payment")
		}
		if *txn.PaymentMethod == enums.PaymentMethodManual && !reviewed && txn.Status == enums.TransactionInitiated {
			return pkgerrors.New(pkgerrors.CodeForbidden, "manual payments are settled by admin review")
		}

		switch txn.Status {
		case enums.TransactionCompleted:
			if !outcome.Success {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "payment already completed")
			}
			result = &TransactionResult{Transaction: txn, Replayed: true}
			outcomeLabel = "replayed"
			return nil
		case enums.TransactionFailed:
			if outcome.Success {
				s.logError(ctx, txn.OrderIDValue(), "gateway reported success for a failed attempt", fmt.Errorf("reference %s", ref))
				return pkgerrors.New(pkgerrors.CodeStateConflict, "payment attempt already failed; initiate a new payment")
			}
			result = &TransactionResult{Transaction: txn, Replayed: true}
			outcomeLabel = "replayed"
			return nil
		}

		if !outcome.Success {
			reason := strings.TrimSpace(outcome.FailureReason)
			if reason == "" {
				reason = "declined"
			}
			failed, err := s.ledger.MarkFailed(ctx, tx, txn.ID, reason)
			if err != nil {
				return err
			}
			result = &TransactionResult{Transaction: failed}
			outcomeLabel = "failed"
			return s.emitPayment(ctx, tx, enums.EventPaymentFailed, failed)
		}

		amount := outcome.AmountCents
		if amount == 0 {
			amount = txn.AmountCents
		}
		posted, err := s.ledger.PostPayment(ctx, tx, ledger.PaymentPosting{
			OrderID:           txn.OrderIDValue(),
			AmountCents:       amount,
			Method:            *txn.PaymentMethod,
			CommissionRate:    s.commission,
			ExternalReference: ref,
		})
		if errors.Is(err, ledger.ErrAlreadyPaid) {
			// the order was settled by another attempt; this capture must be
			// refunded out of band
			failed, ferr := s.ledger.MarkFailed(ctx, tx, txn.ID, reasonDuplicateCapture)
			if ferr != nil {
				return ferr
			}
			duplicate = true
			result = &TransactionResult{Transaction: failed}
			outcomeLabel = reasonDuplicateCapture
			return s.emitPayment(ctx, tx, enums.EventPaymentFailed, failed)
		}
		if err != nil {
			return err
		}
		result = &TransactionResult{Transaction: posted.Transaction, Replayed: posted.Replayed}
		if posted.Replayed {
			outcomeLabel = "replayed"
			return nil
		}
		outcomeLabel = "completed"
		if err := s.reserveCoupon(ctx, tx, posted.Transaction); err != nil {
			return err
		}
		return s.emitPayment(ctx, tx, enums.EventPaymentCompleted, posted.Transaction)
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeDependency) || pkgerrors.IsCode(err, pkgerrors.CodeInternal) {
			s.logError(s.withReference(ctx, ref), uuid.Nil, "payment confirmation failed", err)
		}
		return nil, err
	}

	method := enums.PaymentMethod("")
	if result.Transaction.PaymentMethod != nil {
		method = *result.Transaction.PaymentMethod
	}
	s.metrics.ObserveConfirmation(method, outcomeLabel)

	if s.logg != nil {
		ctx = s.logg.WithTransactionID(ctx, result.Transaction.ID.String())
	}
	switch {
	case duplicate:
		s.logError(ctx, result.Transaction.OrderIDValue(), "payment captured for an order that is already paid",
			fmt.Errorf("reference %s", ref))
		return nil, pkgerrors.Wrap(pkgerrors.CodeBusinessRule, ledger.ErrAlreadyPaid, "order already paid; capture requires a manual refund")
	case result.Transaction.Status == enums.TransactionFailed:
		return result, pkgerrors.New(pkgerrors.CodeGatewayFailure, "payment failed; the order remains payable").
			WithDetails(map[string]any{"transaction_id": result.Transaction.ID, "replayed": result.Replayed})
	}

	if s.cache != nil && !result.Replayed {
		if err := s.cache.RememberConfirmation(ctx, ref, result.Transaction.ID.String(), s.cacheTTL); err != nil && s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "confirmation cache write failed")
		}
	}
	return result, nil
}

func (s *service) cachedReplay(ctx context.Context, ref string) (*TransactionResult, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, ok, err := s.cache.LookupConfirmation(ctx, ref)
	if err != nil || !ok {
		return nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, false
	}
	txn, err := s.ledger.GetTransaction(ctx, id)
	if err != nil || txn.Status != enums.TransactionCompleted || txn.ExternalReference == nil || *txn.ExternalReference != ref {
		return nil, false
	}
	method := enums.PaymentMethod("")
	if txn.PaymentMethod != nil {
		method = *txn.PaymentMethod
	}
	s.metrics.ObserveConfirmation(method, "replayed")
	return &TransactionResult{Transaction: txn, Replayed: true}, true
}

// reserveCoupon consumes the order's coupon slot now that payment is posted.
// A slot lost to a concurrent checkout does not undo the payment; it is
// surfaced as a coupon_limit_exceeded event.
func (s *service) reserveCoupon(ctx context.Context, tx *gorm.DB, txn *models.Transaction) error {
	var order models.Order
	if err := tx.WithContext(ctx).First(&order, "id = ?", txn.OrderIDValue()).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order for coupon reservation")
	}
	if order.CouponCode == nil {
		return nil
	}
	err := s.coupons.Reserve(ctx, tx, coupons.ReserveInput{
		Code:    *order.CouponCode,
		UserID:  order.CustomerID,
		OrderID: order.ID,
	})
	rejection, ok := coupons.AsRejection(err)
	if !ok {
		return err
	}
	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, order.ID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{"coupon_code": rejection.Code, "reason": rejection.Reason})
		s.logg.Warn(logCtx, "coupon limit exceeded after payment")
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventCouponLimitExceeded,
		AggregateType: enums.AggregateCoupon,
		AggregateID:   order.ID,
		Data: payloads.CouponLimitExceeded{
			CouponCode: rejection.Code,
			OrderID:    order.ID,
			UserID:     order.CustomerID,
			Reason:     string(rejection.Reason),
		},
	})
}

// SubmitProof attaches an offline payment proof to a manual attempt.
func (s *service) SubmitProof(ctx context.Context, input ProofInput) (*models.Transaction, error) {
	ref := strings.TrimSpace(input.ExternalReference)
	proof := strings.TrimSpace(input.ProofReference)
	if ref == "" || proof == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference and proof are required")
	}
	txn, err := s.ledger.FindByExternalReference(ctx, nil, ref)
	if err != nil {
		return nil, err
	}
	if txn.PaymentMethod == nil || *txn.PaymentMethod != enums.PaymentMethodManual {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "proof can only be submitted for manual payments")
	}
	view, err := s.orders.GetOrder(ctx, txn.OrderIDValue())
	if err != nil {
		return nil, err
	}
	if err := authorizePayer(&view.Order, input.Actor); err != nil {
		return nil, err
	}

	var out *models.Transaction
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		out, err = s.ledger.AttachProof(ctx, tx, txn.ID, proof)
		if err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentProofAdded,
			AggregateType: enums.AggregateTransaction,
			AggregateID:   out.ID,
			Actor:         &outbox.ActorRef{ActorID: input.Actor.ID, Role: input.Actor.Role.String()},
			Data:          paymentPayload(out, nil),
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReviewManual is the admin decision on a manual attempt. Approval requires a
// submitted proof and then settles like any other confirmation.
func (s *service) ReviewManual(ctx context.Context, input ReviewInput) (*TransactionResult, error) {
	ref := strings.TrimSpace(input.ExternalReference)
	if ref == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "external reference is required")
	}
	if input.ReviewerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "reviewer identity missing")
	}
	txn, err := s.ledger.FindByExternalReference(ctx, nil, ref)
	if err != nil {
		return nil, err
	}
	if txn.PaymentMethod == nil || *txn.PaymentMethod != enums.PaymentMethodManual {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "only manual payments are reviewed")
	}
	if input.Approve && txn.Status == enums.TransactionInitiated && txn.ProofReference == nil {
		return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, "payment proof has not been submitted")
	}

	outcome := Outcome{Success: input.Approve}
	if !input.Approve {
		outcome.FailureReason = reasonProofRejected
		if note := strings.TrimSpace(input.Note); note != "" {
			outcome.FailureReason = reasonProofRejected + ": " + note
		}
	}
	if s.logg != nil {
		logCtx := s.logg.WithActorID(ctx, input.ReviewerID.String())
		logCtx = s.logg.WithTransactionID(logCtx, txn.ID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{"reference": ref, "approved": input.Approve})
		s.logg.Info(logCtx, "manual payment reviewed")
	}
	return s.confirm(ctx, ref, outcome, true)
}

// RefundPayment returns money through the gateway that captured payment.
func (s *service) RefundPayment(ctx context.Context, payment *models.Transaction, amountCents int64, idempotencyKey string) error {
	if payment == nil || payment.PaymentMethod == nil || payment.ExternalReference == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "refund requires a captured gateway payment")
	}
	gw, ok := s.gateways.Lookup(*payment.PaymentMethod)
	if !ok {
		return pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("no gateway for method %s", *payment.PaymentMethod))
	}
	if err := gw.Refund(ctx, RefundCharge{
		ExternalReference: *payment.ExternalReference,
		AmountCents:       amountCents,
		IdempotencyKey:    idempotencyKey,
	}); err != nil {
		s.logError(ctx, payment.OrderIDValue(), "gateway refund failed", err)
		return pkgerrors.Wrap(pkgerrors.CodeGatewayFailure, err, "gateway refund failed")
	}
	return nil
}

func (s *service) emitPayment(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, txn *models.Transaction) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateTransaction,
		AggregateID:   txn.ID,
		Actor:         &outbox.ActorRef{Role: enums.RoleSystem.String()},
		Data:          paymentPayload(txn, txn.FailureReason),
	})
}

func (s *service) withReference(ctx context.Context, ref string) context.Context {
	if s.logg == nil {
		return ctx
	}
	return s.logg.WithField(ctx, "external_reference", ref)
}

func (s *service) logError(ctx context.Context, orderID uuid.UUID, msg string, err error) {
	if s.logg == nil {
		return
	}
	if orderID != uuid.Nil {
		ctx = s.logg.WithOrderID(ctx, orderID.String())
	}
	s.logg.Error(ctx, msg, err)
}

func paymentPayload(txn *models.Transaction, failure *string) payloads.PaymentEvent {
	out := payloads.PaymentEvent{
		OrderID:         txn.OrderIDValue(),
		TransactionID:   txn.ID,
		AmountCents:     txn.AmountCents,
		CommissionCents: txn.CommissionCents,
		VendorCents:     txn.VendorCents,
		FailureReason:   failure,
	}
	if txn.PaymentMethod != nil {
		out.Method = txn.PaymentMethod.String()
	}
	if txn.ExternalReference != nil {
		out.ExternalReference = *txn.ExternalReference
	}
	return out
}

func authorizePayer(order *models.Order, actor orders.Actor) error {
	if actor.ID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}
	switch actor.Role {
	case enums.RoleAdmin, enums.RoleSystem:
		return nil
	case enums.RoleCustomer:
		if actor.ID != order.CustomerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to customer")
		}
		return nil
	default:
		return pkgerrors.New(pkgerrors.CodeForbidden, "only the customer can pay for an order")
	}
}
