package payment

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// Attempt is what a recorder gets for every transaction handed to a buyer.
type Attempt struct {
	Reference solana.PublicKey
	Buyer     solana.PublicKey
	Mint      solana.PublicKey
	Amount    decimal.Decimal
	Units     uint64
	CreatedAt time.Time
}

// Recorder keeps an audit trail of built payment requests. Errors are logged
// by the builder and never fail the request.
type Recorder interface {
	RecordAttempt(ctx context.Context, a Attempt) error
}

type NopRecorder struct{}

func (NopRecorder) RecordAttempt(context.Context, Attempt) error { return nil }
