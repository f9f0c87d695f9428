// Package checkout tracks checkout sessions: one reference per session, one
// settlement watcher per reference, and the status each one ends in.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ariefcatur/go-ledger-checkout.git/internal/catalog"
	"github.com/ariefcatur/go-ledger-checkout.git/internal/events"
	"github.com/ariefcatur/go-ledger-checkout.git/internal/metrics"
	"github.com/ariefcatur/go-ledger-checkout.git/internal/payment"
	"github.com/ariefcatur/go-ledger-checkout.git/internal/redisx"
	"github.com/ariefcatur/go-ledger-checkout.git/internal/settlement"
	"github.com/gagliardetto/solana-go"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

var (
	ErrUnknownCheckout = errors.New("checkout not found")
	ErrFinished        = errors.New("checkout already finished")
	ErrClosed          = errors.New("checkout manager closed")
)

// Awaiter is satisfied by *settlement.Watcher.
type Awaiter interface {
	Await(ctx context.Context, ref solana.PublicKey, exp settlement.Expected) (*settlement.Record, error)
}

type Config struct {
	Recipient   solana.PublicKey // merchant wallet
	Token       solana.PublicKey // value mint
	Label       string
	Message     string
	BaseURL     string
	ServiceName string
}

// View is the public shape of a session.
type View struct {
	Reference      string    `json:"reference"`
	Status         Status    `json:"status"`
	Amount         string    `json:"amount"`
	Recipient      string    `json:"recipient"`
	Token          string    `json:"token"`
	Signature      string    `json:"signature,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	TransferURL    string    `json:"transfer_url,omitempty"`
	TransactionURL string    `json:"transaction_url,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type session struct {
	view   View
	cancel context.CancelFunc
}

type Manager struct {
	cfg     Config
	watcher Awaiter
	redis   redis.Cmdable
	pub     events.Publisher
	metrics *metrics.Metrics

	newReference func() solana.PublicKey
	now          func() time.Time

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	sessions map[string]*session
}

func NewManager(cfg Config, w Awaiter, rdb redis.Cmdable, pub events.Publisher, m *metrics.Metrics) *Manager {
	ctx, stop := context.WithCancel(context.Background())
	return &Manager{
		cfg:          cfg,
		watcher:      w,
		redis:        rdb,
		pub:          pub,
		metrics:      m,
		newReference: NewReference,
		now:          time.Now,
		ctx:          ctx,
		stop:         stop,
		sessions:     make(map[string]*session),
	}
}

// NewReference returns a fresh random public key. 32 random bytes make
// collisions between concurrent checkouts practically impossible.
func NewReference() solana.PublicKey {
	return solana.NewWallet().PublicKey()
}

// Start prices cart, allocates a reference and starts watching for payment.
// The watcher outlives the caller's request; it stops on settlement,
// Cancel, Close or the watcher's own timeout.
func (m *Manager) Start(ctx context.Context, cart catalog.Cart) (View, error) {
	amount := catalog.Price(cart)
	if !amount.IsPositive() {
		return View{}, payment.ErrZeroAmount
	}

	ref := m.newReference()
	v := View{
		Reference: ref.String(),
		Status:    StatusPending,
		Amount:    amount.String(),
		Recipient: m.cfg.Recipient.String(),
		Token:     m.cfg.Token.String(),
		TransferURL: TransferURL(TransferRequest{
			Recipient: m.cfg.Recipient,
			Amount:    amount,
			Token:     m.cfg.Token,
			Reference: ref,
			Label:     m.cfg.Label,
			Message:   m.cfg.Message,
		}),
		TransactionURL: TransactionRequestURL(TransactionLink(m.cfg.BaseURL, cart, ref)),
		UpdatedAt:      m.now().UTC(),
	}

	// PENDING masuk cache sebelum session terlihat, jadi status terminal
	// yang ditulis belakangan tidak pernah tertimpa.
	m.cacheStatus(ctx, v)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.dropStatus(ctx, v.Reference)
		return View{}, ErrClosed
	}
	m.sweepLocked(m.now().UTC())
	if _, dup := m.sessions[v.Reference]; dup {
		m.mu.Unlock()
		return View{}, fmt.Errorf("reference collision: %s", v.Reference)
	}
	wctx, cancel := context.WithCancel(m.ctx)
	m.sessions[v.Reference] = &session{view: v, cancel: cancel}
	m.wg.Add(1)
	m.mu.Unlock()

	m.metrics.WatcherStarted()

	exp := settlement.Expected{Recipient: m.cfg.Recipient, Token: m.cfg.Token, Amount: amount}
	go m.watch(wctx, cancel, ref, exp)

	log.WithFields(log.Fields{"reference": v.Reference, "amount": v.Amount}).Info("checkout started")
	return v, nil
}

func (m *Manager) watch(ctx context.Context, cancel context.CancelFunc, ref solana.PublicKey, exp settlement.Expected) {
	defer m.wg.Done()
	defer m.metrics.WatcherStopped()
	defer cancel()

	rec, err := m.watcher.Await(ctx, ref, exp)
	m.finish(ref, exp.Amount, rec, err)
}

// finish moves the session to its terminal status exactly once and fans
// the outcome out to redis, kafka and metrics.
func (m *Manager) finish(ref solana.PublicKey, amount decimal.Decimal, rec *settlement.Record, err error) {
	var (
		to      Status
		sig     string
		reason  string
		outcome string
	)
	var invalid *settlement.InvalidSettlementError
	switch {
	case err == nil:
		to, sig, outcome = StatusSettled, rec.Signature.String(), metrics.OutcomeSettled
	case errors.As(err, &invalid):
		to, sig, reason, outcome = StatusInvalid, invalid.Signature.String(), invalid.Reason, metrics.OutcomeInvalid
	case errors.Is(err, settlement.ErrTimedOut):
		to, outcome = StatusExpired, metrics.OutcomeExpired
	default:
		to, outcome = StatusCancelled, metrics.OutcomeCancelled
	}

	v, changed := m.transition(ref.String(), to, sig, reason)
	if !changed {
		// Cancel sudah set status duluan
		return
	}
	m.metrics.Settlement(outcome)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if m.cacheStatus(ctx, v) {
		m.forget(v.Reference)
	}

	switch to {
	case StatusSettled:
		m.publishSettled(ctx, ref, amount, rec)
	case StatusInvalid:
		m.publishInvalid(ref, invalid)
	}
}

func (m *Manager) publishSettled(ctx context.Context, ref solana.PublicKey, amount decimal.Decimal, rec *settlement.Record) {
	if m.redis != nil {
		key := fmt.Sprintf(redisx.KeyDedupSettlement, ref)
		first, err := redisx.Claim(ctx, m.redis, key, rec.Signature.String(), redisx.TTLDedup)
		if err != nil {
			log.WithError(err).WithField("reference", ref).Warn("settlement dedup unavailable")
		} else if !first {
			log.WithField("reference", ref).Info("settlement already announced")
			return
		}
	}
	if m.pub == nil {
		return
	}
	env := events.New(events.EventPaymentSettled, m.cfg.ServiceName, ref.String(), events.PaymentSettledPayload{
		Reference: ref.String(),
		Signature: rec.Signature.String(),
		Recipient: rec.Recipient.String(),
		Mint:      rec.Token.String(),
		Amount:    amount.String(),
		Slot:      rec.Slot,
	})
	if err := events.Emit(m.pub, events.TopicPaymentSettled, env); err != nil {
		log.WithError(err).WithField("reference", ref).Error("publish payment settled")
	}
}

func (m *Manager) publishInvalid(ref solana.PublicKey, inv *settlement.InvalidSettlementError) {
	if m.pub == nil {
		return
	}
	env := events.New(events.EventPaymentInvalid, m.cfg.ServiceName, ref.String(), events.PaymentInvalidPayload{
		Reference: ref.String(),
		Signature: inv.Signature.String(),
		Reason:    inv.Reason,
	})
	if err := events.Emit(m.pub, events.TopicPaymentInvalid, env); err != nil {
		log.WithError(err).WithField("reference", ref).Error("publish payment invalid")
	}
}

func (m *Manager) transition(ref string, to Status, sig, reason string) (View, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[ref]
	if !ok || !CanTransition(s.view.Status, to) {
		return View{}, false
	}
	s.view.Status = to
	s.view.Signature = sig
	s.view.Reason = reason
	s.view.UpdatedAt = m.now().UTC()
	return s.view, true
}

// Cancel stops watching ref, e.g. when the buyer navigates away.
func (m *Manager) Cancel(ctx context.Context, ref string) (View, error) {
	m.mu.Lock()
	s, ok := m.sessions[ref]
	if !ok {
		m.mu.Unlock()
		// session terminal sudah dilepas dari memori, statusnya tinggal di cache
		if v, cached := m.cachedStatus(ctx, ref); cached && v.Status.Terminal() {
			return v, ErrFinished
		}
		return View{}, ErrUnknownCheckout
	}
	if s.view.Status.Terminal() {
		v := s.view
		m.mu.Unlock()
		return v, ErrFinished
	}
	s.view.Status = StatusCancelled
	s.view.UpdatedAt = m.now().UTC()
	v := s.view
	s.cancel()
	m.mu.Unlock()

	m.metrics.Settlement(metrics.OutcomeCancelled)
	if m.cacheStatus(ctx, v) {
		m.forget(ref)
	}
	log.WithField("reference", ref).Info("checkout cancelled")
	return v, nil
}

// Get reads the cached status first, then the in-memory session.
func (m *Manager) Get(ctx context.Context, ref string) (View, error) {
	if v, ok := m.cachedStatus(ctx, ref); ok {
		return v, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[ref]
	if !ok {
		return View{}, ErrUnknownCheckout
	}
	return s.view, nil
}

// Close cancels every live watcher and waits for them to finish.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.stop()
	m.wg.Wait()
}

// cacheStatus reports whether v landed in redis.
func (m *Manager) cacheStatus(ctx context.Context, v View) bool {
	if m.redis == nil {
		return false
	}
	b, err := json.Marshal(v)
	if err != nil {
		return false
	}
	key := fmt.Sprintf(redisx.KeyCheckoutStatus, v.Reference)
	if err := m.redis.Set(ctx, key, b, redisx.TTLStatusCache).Err(); err != nil {
		log.WithError(err).WithField("reference", v.Reference).Warn("cache checkout status")
		return false
	}
	return true
}

func (m *Manager) cachedStatus(ctx context.Context, ref string) (View, bool) {
	if m.redis == nil {
		return View{}, false
	}
	raw, err := m.redis.Get(ctx, fmt.Sprintf(redisx.KeyCheckoutStatus, ref)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.WithError(err).Warn("status cache read failed")
		}
		return View{}, false
	}
	var v View
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return View{}, false
	}
	return v, true
}

func (m *Manager) dropStatus(ctx context.Context, ref string) {
	if m.redis == nil {
		return
	}
	_ = m.redis.Del(ctx, fmt.Sprintf(redisx.KeyCheckoutStatus, ref)).Err()
}

// forget melepas session terminal dari memori. Tanpa redis session tetap
// disimpan sampai sweepLocked, karena Get tidak punya sumber lain.
func (m *Manager) forget(ref string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[ref]; ok && s.view.Status.Terminal() {
		delete(m.sessions, ref)
	}
}

// sweepLocked drops terminal sessions older than the status cache TTL.
// Caller holds m.mu.
func (m *Manager) sweepLocked(now time.Time) {
	for ref, s := range m.sessions {
		if s.view.Status.Terminal() && now.Sub(s.view.UpdatedAt) > redisx.TTLStatusCache {
			delete(m.sessions, ref)
		}
	}
}
