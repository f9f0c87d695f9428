// Package ledger wraps the Solana JSON-RPC calls the checkout needs and
// flattens RPC results into small domain types.
package ledger

import (
	"errors"

	"github.com/gagliardetto/solana-go"
)

var ErrNotFound = errors.New("ledger: not found")

// Checkpoint is a recent blockhash. A transaction that references it is only
// accepted until the chain passes LastValidBlockHeight.
type Checkpoint struct {
	Blockhash            solana.Hash
	LastValidBlockHeight uint64
}

// TokenBalance is the pre/post balance of one token account touched by a
// transaction, in raw (integer) units.
type TokenBalance struct {
	AccountIndex int
	Mint         solana.PublicKey
	Owner        solana.PublicKey
	Decimals     uint8
	Pre          uint64
	Post         uint64
}

type ConfirmedTransaction struct {
	Signature     solana.Signature
	Slot          uint64
	Failed        bool
	AccountKeys   []solana.PublicKey
	TokenBalances []TokenBalance
}

func (t *ConfirmedTransaction) IndexOf(key solana.PublicKey) int {
	for i, k := range t.AccountKeys {
		if k.Equals(key) {
			return i
		}
	}
	return -1
}

func (t *ConfirmedTransaction) BalanceAt(index int) (TokenBalance, bool) {
	for _, b := range t.TokenBalances {
		if b.AccountIndex == index {
			return b, true
		}
	}
	return TokenBalance{}, false
}

// AssociatedAccount derives the per-token holding account of owner.
func AssociatedAccount(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	return addr, err
}
