package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/rpc"
	log "github.com/sirupsen/logrus"
)

type RPC struct {
	client         *rpc.Client
	pageSize       int // getSignaturesForAddress max is 1000
	confirmEvery   time.Duration
	confirmTimeout time.Duration
}

func NewRPC(endpoint string) *RPC {
	return &RPC{
		client:         rpc.New(endpoint),
		pageSize:       1000,
		confirmEvery:   500 * time.Millisecond,
		confirmTimeout: 30 * time.Second,
	}
}

func (c *RPC) LatestCheckpoint(ctx context.Context) (Checkpoint, error) {
	out, err := c.client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("get latest blockhash: %w", err)
	}
	if out == nil || out.Value == nil {
		return Checkpoint{}, fmt.Errorf("get latest blockhash: %w", ErrNotFound)
	}
	return Checkpoint{
		Blockhash:            out.Value.Blockhash,
		LastValidBlockHeight: out.Value.LastValidBlockHeight,
	}, nil
}

// TokenDecimals reads the mint's decimal precision from its supply metadata.
func (c *RPC) TokenDecimals(ctx context.Context, mint solana.PublicKey) (uint8, error) {
	out, err := c.client.GetTokenSupply(ctx, mint, rpc.CommitmentFinalized)
	if err != nil {
		return 0, fmt.Errorf("get token supply %s: %w", mint, err)
	}
	if out == nil || out.Value == nil {
		return 0, fmt.Errorf("get token supply %s: %w", mint, ErrNotFound)
	}
	return out.Value.Decimals, nil
}

// EnsureAssociatedAccount returns owner's holding account for mint, creating it
// at payer's expense when it does not exist yet. Creation waits for
// confirmation so later instructions can target the account.
func (c *RPC) EnsureAssociatedAccount(ctx context.Context, payer solana.PrivateKey, owner, mint solana.PublicKey) (solana.PublicKey, error) {
	ata, err := AssociatedAccount(owner, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive associated account: %w", err)
	}

	_, err = c.client.GetAccountInfo(ctx, ata)
	if err == nil {
		return ata, nil
	}
	if !errors.Is(err, rpc.ErrNotFound) {
		return solana.PublicKey{}, fmt.Errorf("get account %s: %w", ata, err)
	}

	ix, err := associatedtokenaccount.NewCreateInstruction(payer.PublicKey(), owner, mint).ValidateAndBuild()
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("build create account ix: %w", err)
	}
	cp, err := c.LatestCheckpoint(ctx)
	if err != nil {
		return solana.PublicKey{}, err
	}
	tx, err := solana.NewTransaction(
		[]solana.Instruction{ix},
		cp.Blockhash,
		solana.TransactionPayer(payer.PublicKey()),
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("build create account tx: %w", err)
	}
	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(payer.PublicKey()) {
			return &payer
		}
		return nil
	}); err != nil {
		return solana.PublicKey{}, fmt.Errorf("sign create account tx: %w", err)
	}

	sig, err := c.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("send create account tx: %w", err)
	}
	log.WithFields(log.Fields{"account": ata, "owner": owner, "mint": mint, "signature": sig}).
		Info("creating associated token account")

	if err := c.waitConfirmed(ctx, sig); err != nil {
		return solana.PublicKey{}, err
	}
	return ata, nil
}

func (c *RPC) waitConfirmed(ctx context.Context, sig solana.Signature) error {
	ctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(c.confirmEvery)
	defer ticker.Stop()

	for {
		out, err := c.client.GetSignatureStatuses(ctx, false, sig)
		if err == nil && out != nil && len(out.Value) > 0 && out.Value[0] != nil {
			st := out.Value[0]
			if st.Err != nil {
				return fmt.Errorf("tx %s failed: %v", sig, st.Err)
			}
			if st.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
				st.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("confirm %s: %w", sig, ctx.Err())
		case <-ticker.C:
		}
	}
}

// FindReference returns the oldest signature of a transaction that lists ref
// among its account keys. found=false just means nothing has landed yet.
func (c *RPC) FindReference(ctx context.Context, ref solana.PublicKey, commitment rpc.CommitmentType) (sig solana.Signature, found bool, err error) {
	var before solana.Signature
	for {
		limit := c.pageSize
		page, err := c.client.GetSignaturesForAddressWithOpts(ctx, ref, &rpc.GetSignaturesForAddressOpts{
			Limit:      &limit,
			Before:     before,
			Commitment: commitment,
		})
		if err != nil {
			return solana.Signature{}, false, fmt.Errorf("get signatures for %s: %w", ref, err)
		}
		if len(page) == 0 {
			return sig, found, nil
		}
		sig, found = page[len(page)-1].Signature, true
		if len(page) < limit {
			return sig, true, nil
		}
		before = sig
	}
}

func (c *RPC) FetchTransaction(ctx context.Context, sig solana.Signature, commitment rpc.CommitmentType) (*ConfirmedTransaction, error) {
	maxVersion := uint64(0)
	out, err := c.client.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     commitment,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if errors.Is(err, rpc.ErrNotFound) {
		return nil, fmt.Errorf("get transaction %s: %w", sig, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", sig, err)
	}
	if out == nil || out.Transaction == nil || out.Meta == nil {
		return nil, fmt.Errorf("get transaction %s: %w", sig, ErrNotFound)
	}

	tx, err := out.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("decode transaction %s: %w", sig, err)
	}

	ct := &ConfirmedTransaction{
		Signature:   sig,
		Slot:        out.Slot,
		Failed:      out.Meta.Err != nil,
		AccountKeys: append([]solana.PublicKey(nil), tx.Message.AccountKeys...),
	}
	ct.TokenBalances, err = mergeBalances(out.Meta.PreTokenBalances, out.Meta.PostTokenBalances)
	if err != nil {
		return nil, fmt.Errorf("token balances %s: %w", sig, err)
	}
	return ct, nil
}

// mergeBalances pairs pre and post entries by account index. An account that
// only shows up in post (created by the tx) starts from zero.
func mergeBalances(pre, post []rpc.TokenBalance) ([]TokenBalance, error) {
	byIndex := map[int]*TokenBalance{}
	order := []int{}
	get := func(b rpc.TokenBalance) *TokenBalance {
		idx := int(b.AccountIndex)
		tb, ok := byIndex[idx]
		if !ok {
			tb = &TokenBalance{AccountIndex: idx, Mint: b.Mint}
			if b.Owner != nil {
				tb.Owner = *b.Owner
			}
			if b.UiTokenAmount != nil {
				tb.Decimals = b.UiTokenAmount.Decimals
			}
			byIndex[idx] = tb
			order = append(order, idx)
		}
		return tb
	}

	for _, b := range pre {
		v, err := rawAmount(b.UiTokenAmount)
		if err != nil {
			return nil, err
		}
		get(b).Pre = v
	}
	for _, b := range post {
		v, err := rawAmount(b.UiTokenAmount)
		if err != nil {
			return nil, err
		}
		get(b).Post = v
	}

	out := make([]TokenBalance, 0, len(order))
	for _, idx := range order {
		out = append(out, *byIndex[idx])
	}
	return out, nil
}

func rawAmount(a *rpc.UiTokenAmount) (uint64, error) {
	if a == nil || a.Amount == "" {
		return 0, nil
	}
	return strconv.ParseUint(a.Amount, 10, 64)
}
