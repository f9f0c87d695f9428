package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const auditSchema = `
CREATE TABLE IF NOT EXISTS payment_audit (
	event_id    UUID PRIMARY KEY,
	event_type  TEXT        NOT NULL,
	reference   TEXT        NOT NULL,
	buyer       TEXT        NOT NULL DEFAULT '',
	amount      NUMERIC     NULL,
	signature   TEXT        NOT NULL DEFAULT '',
	reason      TEXT        NOT NULL DEFAULT '',
	occurred_at TIMESTAMPTZ NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS payment_audit_reference_idx ON payment_audit (reference);
`

// AuditEntry satu baris jejak audit per event pembayaran.
type AuditEntry struct {
	EventID    string
	EventType  string
	Reference  string
	Buyer      string
	Amount     string // decimal string, kosong kalau event tidak bawa amount
	Signature  string
	Reason     string
	OccurredAt time.Time
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type AuditRepo struct{ DB execer }

func NewAuditRepo(db *pgxpool.Pool) *AuditRepo { return &AuditRepo{DB: db} }

func (r *AuditRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.DB.Exec(ctx, auditSchema)
	return err
}

// InsertAudit idempotent via event_id. false berarti event sudah pernah dicatat.
func (r *AuditRepo) InsertAudit(ctx context.Context, e AuditEntry) (bool, error) {
	var amount any
	if e.Amount != "" {
		amount = e.Amount
	}
	ct, err := r.DB.Exec(ctx, `
		INSERT INTO payment_audit(event_id, event_type, reference, buyer, amount, signature, reason, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event_id) DO NOTHING
	`, e.EventID, e.EventType, e.Reference, e.Buyer, amount, e.Signature, e.Reason, e.OccurredAt)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}
