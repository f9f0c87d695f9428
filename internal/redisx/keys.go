package redisx

import "time"

const (
	// Klaim settlement per checkout: dedup:settlement:{reference} -> signature
	KeyDedupSettlement = "dedup:settlement:%s"

	// Cache status checkout: checkout_status:{reference} -> {"reference": "...", "status": "...", ...}
	KeyCheckoutStatus = "checkout_status:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLStatusCache = 24 * time.Hour
	TTLDedup       = 48 * time.Hour
)
