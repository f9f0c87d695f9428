package events

import (
	"encoding/json"
	"testing"

	kafkax "github.com/ariefcatur/go-ledger-checkout.git/internal/kafka"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	topic   string
	key     []byte
	value   []byte
	headers []kafkago.Header
}

type capturePublisher struct{ msgs []sent }

func (c *capturePublisher) Publish(topic string, key, value []byte, headers ...kafkago.Header) error {
	c.msgs = append(c.msgs, sent{topic, key, value, headers})
	return nil
}

func TestEmit(t *testing.T) {
	pub := &capturePublisher{}
	env := New(EventPaymentInvalid, "checkout-api", "REF", PaymentInvalidPayload{
		Reference: "REF", Signature: "SIG", Reason: "amount mismatch",
	})

	require.NoError(t, Emit(pub, TopicPaymentInvalid, env))

	require.Len(t, pub.msgs, 1)
	m := pub.msgs[0]
	assert.Equal(t, TopicPaymentInvalid, m.topic)
	assert.Equal(t, "REF", string(m.key))
	assert.Equal(t, kafkago.Header{Key: HeaderEventType, Value: []byte(EventPaymentInvalid)}, m.headers[0])
	assert.Equal(t, "1", string(m.headers[1].Value))

	var got Envelope
	require.NoError(t, json.Unmarshal(m.value, &got))
	assert.Equal(t, env.EventID, got.EventID)
	assert.Equal(t, "REF", got.CorrelationID)
	assert.Equal(t, 1, got.EventVersion)

	p, err := kafkax.UnwrapPayload[PaymentInvalidPayload](got.Payload)
	require.NoError(t, err)
	assert.Equal(t, "amount mismatch", p.Reason)
}

func TestNew_UniqueIDs(t *testing.T) {
	a := New(EventPaymentSettled, "svc", "R", struct{}{})
	b := New(EventPaymentSettled, "svc", "R", struct{}{})
	assert.NotEqual(t, a.EventID, b.EventID)
	assert.False(t, a.OccurredAt.IsZero())
}
