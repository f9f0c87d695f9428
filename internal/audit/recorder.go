// Package audit keeps the payment trail: the API side publishes attempts to
// Kafka, the worker side stores every payment event in Postgres.
package audit

import (
	"context"

	"github.com/ariefcatur/go-ledger-checkout.git/internal/events"
	"github.com/ariefcatur/go-ledger-checkout.git/internal/payment"
)

// KafkaRecorder publishes a PaymentRequested event per built transaction.
type KafkaRecorder struct {
	Producer    events.Publisher
	ServiceName string
}

func (r *KafkaRecorder) RecordAttempt(_ context.Context, a payment.Attempt) error {
	ref := a.Reference.String()
	env := events.New(events.EventPaymentRequested, r.ServiceName, ref, events.PaymentRequestedPayload{
		Reference: ref,
		Buyer:     a.Buyer.String(),
		Mint:      a.Mint.String(),
		Amount:    a.Amount.String(),
		Units:     a.Units,
	})
	env.OccurredAt = a.CreatedAt
	return events.Emit(r.Producer, events.TopicPaymentRequested, env)
}

var _ payment.Recorder = (*KafkaRecorder)(nil)
