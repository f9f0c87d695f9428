// Package settlement polls the ledger for a transaction tagged with a checkout
// reference and decides whether it pays what was requested.
package settlement

import (
	"context"
	"errors"
	"time"

	"github.com/ariefcatur/go-ledger-checkout.git/internal/ledger"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	log "github.com/sirupsen/logrus"
)

type Ledger interface {
	FindReference(ctx context.Context, ref solana.PublicKey, commitment rpc.CommitmentType) (solana.Signature, bool, error)
	FetchTransaction(ctx context.Context, sig solana.Signature, commitment rpc.CommitmentType) (*ledger.ConfirmedTransaction, error)
}

type Watcher struct {
	Ledger     Ledger
	Interval   time.Duration
	Timeout    time.Duration // 0 = poll until cancelled
	Commitment rpc.CommitmentType

	// OnPoll, if set, sees every lookup outcome.
	OnPoll func(Result, error)

	sleep func(ctx context.Context, d time.Duration) error
}

func NewWatcher(l Ledger, interval, timeout time.Duration, commitment rpc.CommitmentType) *Watcher {
	if commitment == "" {
		commitment = rpc.CommitmentConfirmed
	}
	return &Watcher{
		Ledger:     l,
		Interval:   interval,
		Timeout:    timeout,
		Commitment: commitment,
		sleep:      sleepCtx,
	}
}

// Check is one lookup: find a signature for ref, fetch it, validate it.
// Errors are transient infrastructure failures only.
func (w *Watcher) Check(ctx context.Context, ref solana.PublicKey, exp Expected) (Result, error) {
	sig, found, err := w.Ledger.FindReference(ctx, ref, w.Commitment)
	if err != nil {
		return Result{}, err
	}
	if !found {
		return Result{Status: NotFound}, nil
	}

	tx, err := w.Ledger.FetchTransaction(ctx, sig, w.Commitment)
	if errors.Is(err, ledger.ErrNotFound) {
		// signature is indexed before the tx body is served at this commitment
		return Result{Status: NotFound, Signature: sig}, nil
	}
	if err != nil {
		return Result{}, err
	}

	rec, reason := Validate(tx, ref, exp)
	if reason != "" {
		return Result{Status: Invalid, Signature: sig, Reason: reason}, nil
	}
	return Result{Status: Found, Signature: sig, Record: rec}, nil
}

// Await polls every Interval until a matching transaction is found, the
// reference is taken by a non-matching one, or ctx ends. Lookup errors are
// logged and polling continues.
func (w *Watcher) Await(ctx context.Context, ref solana.PublicKey, exp Expected) (*Record, error) {
	watchCtx := ctx
	if w.Timeout > 0 {
		var cancel context.CancelFunc
		watchCtx, cancel = context.WithTimeout(ctx, w.Timeout)
		defer cancel()
	}
	sleep := w.sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	logger := log.WithField("reference", ref)

	for {
		if err := sleep(watchCtx, w.Interval); err != nil {
			return nil, stopReason(ctx, watchCtx)
		}
		if watchCtx.Err() != nil {
			return nil, stopReason(ctx, watchCtx)
		}

		res, err := w.Check(watchCtx, ref, exp)
		if w.OnPoll != nil {
			w.OnPoll(res, err)
		}
		if err != nil {
			if watchCtx.Err() == nil {
				logger.WithError(err).Warn("settlement lookup failed, retrying")
			}
			continue
		}

		switch res.Status {
		case NotFound:
			continue
		case Invalid:
			logger.WithFields(log.Fields{"signature": res.Signature, "reason": res.Reason}).
				Error("transaction is invalid")
			return nil, &InvalidSettlementError{Signature: res.Signature, Reason: res.Reason}
		case Found:
			logger.WithField("signature", res.Signature).Info("payment settled")
			return res.Record, nil
		}
	}
}

func stopReason(parent, watchCtx context.Context) error {
	if parent.Err() == nil && errors.Is(watchCtx.Err(), context.DeadlineExceeded) {
		return ErrTimedOut
	}
	return ErrCancelled
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
