package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ariefcatur/go-ledger-checkout.git/internal/events"
	kafkax "github.com/ariefcatur/go-ledger-checkout.git/internal/kafka"
	"github.com/ariefcatur/go-ledger-checkout.git/internal/postgres"
	"github.com/ariefcatur/go-ledger-checkout.git/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"
)

type Store interface {
	InsertAudit(ctx context.Context, e postgres.AuditEntry) (bool, error)
}

type Service struct {
	Store       Store
	Redis       redis.Cmdable
	ServiceName string
}

// HandlePaymentEvent: dipasang sebagai handler consumer untuk ketiga topic pembayaran.
func (s *Service) HandlePaymentEvent(ctx context.Context, m kafkago.Message) error {
	// 1) decode envelope
	var env events.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		// pesan rusak tidak akan pernah sukses, commit saja
		log.WithError(err).WithFields(log.Fields{"topic": m.Topic, "offset": m.Offset}).
			Warn("drop undecodable payment event")
		return nil
	}

	entry, err := toEntry(env)
	if err != nil {
		return err
	}
	if entry == nil {
		return nil // event lain, abaikan
	}

	// 2) dedup via Redis (pakai event_id); DB tetap jadi kebenaran lewat ON CONFLICT
	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	claimed, err := redisx.Claim(ctx, s.Redis, dkey, "1", redisx.TTLDedup)
	if err != nil {
		log.WithError(err).Warn("dedup unavailable, relying on db")
		claimed = true
	}
	if !claimed {
		return nil
	}

	// 3) simpan
	inserted, err := s.Store.InsertAudit(ctx, *entry)
	if err != nil {
		_ = redisx.Release(ctx, s.Redis, dkey)
		return fmt.Errorf("insert audit %s: %w", env.EventID, err)
	}
	log.WithFields(log.Fields{
		"event_id":  env.EventID,
		"type":      env.EventType,
		"reference": entry.Reference,
		"inserted":  inserted,
	}).Debug("payment event audited")
	return nil
}

func toEntry(env events.Envelope) (*postgres.AuditEntry, error) {
	e := postgres.AuditEntry{
		EventID:    env.EventID,
		EventType:  env.EventType,
		Reference:  env.CorrelationID,
		OccurredAt: env.OccurredAt,
	}
	switch env.EventType {
	case events.EventPaymentRequested:
		p, err := kafkax.UnwrapPayload[events.PaymentRequestedPayload](env.Payload)
		if err != nil {
			return nil, err
		}
		e.Reference, e.Buyer, e.Amount = p.Reference, p.Buyer, p.Amount
	case events.EventPaymentSettled:
		p, err := kafkax.UnwrapPayload[events.PaymentSettledPayload](env.Payload)
		if err != nil {
			return nil, err
		}
		e.Reference, e.Amount, e.Signature = p.Reference, p.Amount, p.Signature
	case events.EventPaymentInvalid:
		p, err := kafkax.UnwrapPayload[events.PaymentInvalidPayload](env.Payload)
		if err != nil {
			return nil, err
		}
		e.Reference, e.Signature, e.Reason = p.Reference, p.Signature, p.Reason
	default:
		return nil, nil
	}
	return &e, nil
}
