package settlement

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidSettlement = errors.New("invalid settlement")
	ErrCancelled         = errors.New("settlement watch cancelled")
	ErrTimedOut          = errors.New("settlement watch timed out")
)

// InvalidSettlementError: a transaction carries the reference but does not
// pay what was asked. Terminal, never retried.
type InvalidSettlementError struct {
	Signature solana.Signature
	Reason    string
}

func (e *InvalidSettlementError) Error() string {
	return fmt.Sprintf("invalid settlement %s: %s", e.Signature, e.Reason)
}

func (e *InvalidSettlementError) Unwrap() error { return ErrInvalidSettlement }

type Status int

const (
	NotFound Status = iota
	Invalid
	Found
)

func (s Status) String() string {
	switch s {
	case NotFound:
		return "not_found"
	case Invalid:
		return "invalid"
	case Found:
		return "found"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Expected is what the payment request asked the buyer to pay.
type Expected struct {
	Recipient solana.PublicKey
	Token     solana.PublicKey
	Amount    decimal.Decimal
}

// Record is a transaction observed on the ledger that matches Expected.
type Record struct {
	Signature solana.Signature
	Slot      uint64
	Recipient solana.PublicKey
	Token     solana.PublicKey
	Amount    decimal.Decimal
}

// Result of one lookup. Record is set only for Found, Reason only for Invalid.
type Result struct {
	Status    Status
	Signature solana.Signature
	Record    *Record
	Reason    string
}
