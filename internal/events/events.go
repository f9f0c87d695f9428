package events

import (
	"encoding/json"
	"time"
)

const (
	EventPaymentRequested = "PaymentRequested"
	EventPaymentSettled   = "PaymentSettled"
	EventPaymentInvalid   = "PaymentInvalid"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // salah satu const di atas
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g., "checkout-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // reference checkout
	Payload       json.RawMessage `json:"payload"`                  // payload spesifik
}

// ---- Payload tipe per event ----

type PaymentRequestedPayload struct {
	Reference string `json:"reference"`
	Buyer     string `json:"buyer"`
	Mint      string `json:"mint"`
	Amount    string `json:"amount"` // decimal string, e.g. "595"
	Units     uint64 `json:"units"`
}

type PaymentSettledPayload struct {
	Reference string `json:"reference"`
	Signature string `json:"signature"`
	Recipient string `json:"recipient"`
	Mint      string `json:"mint"`
	Amount    string `json:"amount"`
	Slot      uint64 `json:"slot"`
}

type PaymentInvalidPayload struct {
	Reference string `json:"reference"`
	Signature string `json:"signature"`
	Reason    string `json:"reason"`
}
