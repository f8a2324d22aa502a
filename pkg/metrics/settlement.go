package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/settlement-engine/pkg/enums"
)

// Settlement counts ledger postings and the outcomes of money-moving flows.
// A nil *Settlement is a valid no-op recorder.
type Settlement struct {
	postings      *prometheus.CounterVec
	postedCents   *prometheus.CounterVec
	confirmations *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	decisions     *prometheus.CounterVec
}

// NewSettlement registers the settlement metrics on the provided registerer.
func NewSettlement(reg prometheus.Registerer) *Settlement {
	if reg == nil {
		return &Settlement{}
	}
	postings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_postings_total",
		Help: "Ledger rows written by type and status.",
	}, []string{"type", "status"})
	postedCents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_posted_cents_total",
		Help: "Money moved through completed ledger rows, in minor units.",
	}, []string{"type"})
	confirmations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_confirmations_total",
		Help: "Payment confirmations by method and outcome.",
	}, []string{"method", "outcome"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_total",
		Help: "Order lifecycle transitions by target status and outcome.",
	}, []string{"to", "outcome"})
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_decisions_total",
		Help: "Refund and payout decisions by kind and outcome.",
	}, []string{"kind", "outcome"})
	reg.MustRegister(postings, postedCents, confirmations, transitions, decisions)
	return &Settlement{
		postings:      postings,
		postedCents:   postedCents,
		confirmations: confirmations,
		transitions:   transitions,
		decisions:     decisions,
	}
}

// ObservePosting records a ledger row.
func (s *Settlement) ObservePosting(txnType enums.TransactionType, status enums.TransactionStatus, amountCents int64) {
	if s == nil || s.postings == nil {
		return
	}
	s.postings.WithLabelValues(txnType.String(), status.String()).Inc()
	if status == enums.TransactionCompleted && amountCents > 0 {
		s.postedCents.WithLabelValues(txnType.String()).Add(float64(amountCents))
	}
}

// ObserveConfirmation records a payment confirmation outcome such as
// "completed", "replayed" or "failed".
func (s *Settlement) ObserveConfirmation(method enums.PaymentMethod, outcome string) {
	if s == nil || s.confirmations == nil {
		return
	}
	s.confirmations.WithLabelValues(method.String(), normalizeLabel(outcome)).Inc()
}

// ObserveTransition records an order transition attempt.
func (s *Settlement) ObserveTransition(to enums.OrderStatus, outcome string) {
	if s == nil || s.transitions == nil {
		return
	}
	s.transitions.WithLabelValues(to.String(), normalizeLabel(outcome)).Inc()
}

// ObserveDecision records a refund or payout decision.
func (s *Settlement) ObserveDecision(kind, outcome string) {
	if s == nil || s.decisions == nil {
		return
	}
	s.decisions.WithLabelValues(normalizeLabel(kind), normalizeLabel(outcome)).Inc()
}
