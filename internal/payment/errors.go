package payment

import "errors"

var (
	ErrZeroAmount       = errors.New("cant checkout with charge of 0")
	ErrMissingReference = errors.New("no reference provided")
	ErrMissingBuyer     = errors.New("no account provided")
	ErrMisconfigured    = errors.New("shop private key not available")
	ErrInvalidKey       = errors.New("invalid public key")
	ErrAmountPrecision  = errors.New("amount not representable in token units")
)
