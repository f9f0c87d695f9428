package events

import (
	"strconv"
	"time"

	kafkax "github.com/ariefcatur/go-ledger-checkout.git/internal/kafka"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
)

const (
	HeaderEventType    = "x-event-type"
	HeaderEventVersion = "x-event-version"
	version            = 1
)

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(topic string, key, value []byte, headers ...kafkago.Header) error
}

func New(eventType, producer, reference string, payload any) Envelope {
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  version,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: reference,
		Payload:       kafkax.MustMarshal(payload),
	}
}

// Emit publish envelope ke topic dengan key = reference.
func Emit(p Publisher, topic string, env Envelope) error {
	return p.Publish(topic, PartitionKey(env.CorrelationID), kafkax.MustMarshal(env),
		kafkago.Header{Key: HeaderEventType, Value: []byte(env.EventType)},
		kafkago.Header{Key: HeaderEventVersion, Value: []byte(strconv.Itoa(env.EventVersion))},
	)
}
