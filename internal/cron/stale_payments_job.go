package cron

import (
	"context"
	"fmt"
	"time"
)

const defaultPaymentExpiry = 30 * time.Minute

type paymentExpirer interface {
	ExpireStalePayments(ctx context.Context, before time.Time, limit int) (int, error)
}

type StalePaymentsJobParams struct {
	Ledger    paymentExpirer
	Expiry    time.Duration
	BatchSize int
}

// NewStalePaymentsJob fails gateway payment attempts that stayed initiated
// longer than Expiry. The order keeps its pending payment status and can be
// paid again.
func NewStalePaymentsJob(params StalePaymentsJobParams) (Job, error) {
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	expiry := params.Expiry
	if expiry <= 0 {
		expiry = defaultPaymentExpiry
	}
	return &stalePaymentsJob{
		ledger: params.Ledger,
		expiry: expiry,
		batch:  params.BatchSize,
		now:    time.Now,
	}, nil
}

type stalePaymentsJob struct {
	ledger paymentExpirer
	expiry time.Duration
	batch  int
	now    func() time.Time
}

func (j *stalePaymentsJob) Name() string { return "stale-payments" }

func (j *stalePaymentsJob) Run(ctx context.Context) (int64, error) {
	expired, err := j.ledger.ExpireStalePayments(ctx, j.now().UTC().Add(-j.expiry), j.batch)
	if err != nil {
		return int64(expired), fmt.Errorf("expire stale payments: %w", err)
	}
	return int64(expired), nil
}
