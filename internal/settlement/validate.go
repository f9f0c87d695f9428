package settlement

import (
	"fmt"
	"math/big"

	"github.com/ariefcatur/go-ledger-checkout.git/internal/ledger"
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// Validate checks that tx moved exactly exp.Amount of exp.Token into the
// recipient's holding account and carries ref. A non-empty reason means the
// transaction does not settle the request.
func Validate(tx *ledger.ConfirmedTransaction, ref solana.PublicKey, exp Expected) (*Record, string) {
	if tx.Failed {
		return nil, "transaction failed"
	}

	account, err := ledger.AssociatedAccount(exp.Recipient, exp.Token)
	if err != nil {
		return nil, fmt.Sprintf("derive recipient account: %v", err)
	}
	idx := tx.IndexOf(account)
	if idx < 0 {
		return nil, "recipient not found"
	}
	bal, ok := tx.BalanceAt(idx)
	if !ok {
		return nil, "recipient balance not found"
	}
	if !bal.Mint.Equals(exp.Token) {
		return nil, fmt.Sprintf("token mismatch: got %s", bal.Mint)
	}
	if bal.Post < bal.Pre {
		return nil, "amount not transferred"
	}

	delta := new(big.Int).SetUint64(bal.Post - bal.Pre)
	amount := decimal.NewFromBigInt(delta, -int32(bal.Decimals))
	if !amount.Equal(exp.Amount) {
		return nil, fmt.Sprintf("amount mismatch: got %s want %s", amount, exp.Amount)
	}

	if tx.IndexOf(ref) < 0 {
		return nil, "reference not found"
	}

	return &Record{
		Signature: tx.Signature,
		Slot:      tx.Slot,
		Recipient: exp.Recipient,
		Token:     exp.Token,
		Amount:    amount,
	}, ""
}
