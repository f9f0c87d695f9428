package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-ledger-checkout.git/internal/ledger"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scenario struct {
	merchant  solana.PublicKey
	buyer     solana.PublicKey
	mint      solana.PublicKey
	reference solana.PublicKey
	sig       solana.Signature
	expected  Expected
}

func newScenario(t *testing.T) scenario {
	t.Helper()
	s := scenario{
		merchant:  solana.NewWallet().PublicKey(),
		buyer:     solana.NewWallet().PublicKey(),
		mint:      solana.NewWallet().PublicKey(),
		reference: solana.NewWallet().PublicKey(),
	}
	s.sig[0], s.sig[1] = 7, 7
	s.expected = Expected{Recipient: s.merchant, Token: s.mint, Amount: decimal.NewFromInt(595)}
	return s
}

// settledTx pays `raw` units of mint to the merchant's holding account, tagged with the reference.
func (s scenario) settledTx(t *testing.T, raw uint64) *ledger.ConfirmedTransaction {
	t.Helper()
	buyerATA, err := ledger.AssociatedAccount(s.buyer, s.mint)
	require.NoError(t, err)
	merchantATA, err := ledger.AssociatedAccount(s.merchant, s.mint)
	require.NoError(t, err)
	return &ledger.ConfirmedTransaction{
		Signature:   s.sig,
		Slot:        99,
		AccountKeys: []solana.PublicKey{s.buyer, s.merchant, buyerATA, merchantATA, s.mint, s.reference, token.ProgramID},
		TokenBalances: []ledger.TokenBalance{
			{AccountIndex: 2, Mint: s.mint, Owner: s.buyer, Decimals: 6, Pre: 1_000_000_000, Post: 1_000_000_000 - raw},
			{AccountIndex: 3, Mint: s.mint, Owner: s.merchant, Decimals: 6, Pre: 5, Post: 5 + raw},
		},
	}
}

type fakeLedger struct {
	mu        sync.Mutex
	finds     int
	fetches   int
	findFn    func(n int) (solana.Signature, bool, error)
	tx        *ledger.ConfirmedTransaction
	fetchErr  error
	onFind    func(n int)
	commitUse []rpc.CommitmentType
}

func (f *fakeLedger) FindReference(_ context.Context, _ solana.PublicKey, c rpc.CommitmentType) (solana.Signature, bool, error) {
	f.mu.Lock()
	f.finds++
	n := f.finds
	f.commitUse = append(f.commitUse, c)
	f.mu.Unlock()
	if f.onFind != nil {
		f.onFind(n)
	}
	if f.findFn == nil {
		return solana.Signature{}, false, nil
	}
	return f.findFn(n)
}

func (f *fakeLedger) FetchTransaction(context.Context, solana.Signature, rpc.CommitmentType) (*ledger.ConfirmedTransaction, error) {
	f.mu.Lock()
	f.fetches++
	f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.tx, nil
}

func (f *fakeLedger) findCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finds
}

// instant replaces the timer and records the requested intervals.
type instant struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (i *instant) sleep(ctx context.Context, d time.Duration) error {
	i.mu.Lock()
	i.waits = append(i.waits, d)
	i.mu.Unlock()
	return ctx.Err()
}

func newTestWatcher(l Ledger) (*Watcher, *instant) {
	w := NewWatcher(l, 500*time.Millisecond, 0, rpc.CommitmentConfirmed)
	clk := &instant{}
	w.sleep = clk.sleep
	return w, clk
}

func foundAt(sig solana.Signature) func(int) (solana.Signature, bool, error) {
	return func(int) (solana.Signature, bool, error) { return sig, true, nil }
}

func TestAwait_NoMatchKeepsPolling(t *testing.T) {
	s := newScenario(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fl := &fakeLedger{onFind: func(n int) {
		if n == 10 {
			cancel()
		}
	}}
	w, clk := newTestWatcher(fl)

	rec, err := w.Await(ctx, s.reference, s.expected)

	assert.Nil(t, rec)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, 10, fl.findCount(), "exactly one query per tick")
	assert.Zero(t, fl.fetches)
	require.GreaterOrEqual(t, len(clk.waits), 10)
	for _, d := range clk.waits[:10] {
		assert.Equal(t, 500*time.Millisecond, d)
	}
	for _, c := range fl.commitUse {
		assert.Equal(t, rpc.CommitmentConfirmed, c)
	}
}

func TestAwait_CancelledBeforeFirstTick(t *testing.T) {
	s := newScenario(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fl := &fakeLedger{}
	w, _ := newTestWatcher(fl)

	_, err := w.Await(ctx, s.reference, s.expected)

	assert.ErrorIs(t, err, ErrCancelled)
	assert.Zero(t, fl.findCount())
}

func TestAwait_NoQueryAfterCancel(t *testing.T) {
	s := newScenario(t)
	ctx, cancel := context.WithCancel(context.Background())
	fl := &fakeLedger{}
	w := NewWatcher(fl, time.Millisecond, 0, rpc.CommitmentConfirmed)

	done := make(chan error, 1)
	go func() {
		_, err := w.Await(ctx, s.reference, s.expected)
		done <- err
	}()

	require.Eventually(t, func() bool { return fl.findCount() >= 3 }, time.Second, time.Millisecond)
	cancel()
	err := <-done
	assert.ErrorIs(t, err, ErrCancelled)

	after := fl.findCount()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, fl.findCount())
}

func TestAwait_Settles(t *testing.T) {
	s := newScenario(t)
	fl := &fakeLedger{
		findFn: func(n int) (solana.Signature, bool, error) {
			if n < 3 {
				return solana.Signature{}, false, nil
			}
			return s.sig, true, nil
		},
		tx: s.settledTx(t, 595_000_000),
	}
	w, _ := newTestWatcher(fl)

	rec, err := w.Await(context.Background(), s.reference, s.expected)

	require.NoError(t, err)
	assert.Equal(t, s.sig, rec.Signature)
	assert.Equal(t, s.merchant, rec.Recipient)
	assert.Equal(t, s.mint, rec.Token)
	assert.True(t, decimal.NewFromInt(595).Equal(rec.Amount))
	assert.Equal(t, 3, fl.findCount())
	assert.Equal(t, 1, fl.fetches, "stops after the first match")
}

func TestAwait_InvalidIsTerminal(t *testing.T) {
	s := newScenario(t)
	fl := &fakeLedger{findFn: foundAt(s.sig), tx: s.settledTx(t, 1_000_000)}
	w, _ := newTestWatcher(fl)

	rec, err := w.Await(context.Background(), s.reference, s.expected)

	assert.Nil(t, rec)
	assert.ErrorIs(t, err, ErrInvalidSettlement)
	var inv *InvalidSettlementError
	require.True(t, errors.As(err, &inv))
	assert.Equal(t, s.sig, inv.Signature)
	assert.Contains(t, inv.Reason, "amount mismatch")
	assert.Equal(t, 1, fl.findCount(), "no retry after invalid")
}

func TestAwait_TransientErrorsRetried(t *testing.T) {
	s := newScenario(t)
	var seen []error
	fl := &fakeLedger{
		findFn: func(n int) (solana.Signature, bool, error) {
			if n <= 2 {
				return solana.Signature{}, false, errors.New("connection refused")
			}
			return s.sig, true, nil
		},
		tx: s.settledTx(t, 595_000_000),
	}
	w, _ := newTestWatcher(fl)
	w.OnPoll = func(_ Result, err error) { seen = append(seen, err) }

	rec, err := w.Await(context.Background(), s.reference, s.expected)

	require.NoError(t, err)
	assert.NotNil(t, rec)
	require.Len(t, seen, 3)
	assert.Error(t, seen[0])
	assert.Error(t, seen[1])
	assert.NoError(t, seen[2])
}

func TestAwait_TxNotServedYetIsNotFound(t *testing.T) {
	s := newScenario(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fl := &fakeLedger{
		findFn:   foundAt(s.sig),
		fetchErr: ledger.ErrNotFound,
		onFind: func(n int) {
			if n == 4 {
				cancel()
			}
		},
	}
	w, _ := newTestWatcher(fl)

	_, err := w.Await(ctx, s.reference, s.expected)

	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, 4, fl.findCount())
}

func TestAwait_TimesOut(t *testing.T) {
	s := newScenario(t)
	fl := &fakeLedger{}
	w := NewWatcher(fl, time.Millisecond, 30*time.Millisecond, rpc.CommitmentConfirmed)

	_, err := w.Await(context.Background(), s.reference, s.expected)

	assert.ErrorIs(t, err, ErrTimedOut)
	assert.Positive(t, fl.findCount())
}

func TestCheck_Tagged(t *testing.T) {
	s := newScenario(t)

	w, _ := newTestWatcher(&fakeLedger{})
	res, err := w.Check(context.Background(), s.reference, s.expected)
	require.NoError(t, err)
	assert.Equal(t, NotFound, res.Status)

	w, _ = newTestWatcher(&fakeLedger{findFn: foundAt(s.sig), tx: s.settledTx(t, 595_000_000)})
	res, err = w.Check(context.Background(), s.reference, s.expected)
	require.NoError(t, err)
	assert.Equal(t, Found, res.Status)
	assert.NotNil(t, res.Record)

	w, _ = newTestWatcher(&fakeLedger{findFn: foundAt(s.sig), tx: s.settledTx(t, 1)})
	res, err = w.Check(context.Background(), s.reference, s.expected)
	require.NoError(t, err)
	assert.Equal(t, Invalid, res.Status)
	assert.Nil(t, res.Record)

	w, _ = newTestWatcher(&fakeLedger{findFn: foundAt(s.sig), fetchErr: errors.New("503")})
	_, err = w.Check(context.Background(), s.reference, s.expected)
	assert.Error(t, err)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "not_found", NotFound.String())
	assert.Equal(t, "invalid", Invalid.String())
	assert.Equal(t, "found", Found.String())
}
