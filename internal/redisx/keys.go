package redisx

import "time"

const (
	// Settled payment authorization per checkout attempt:
	// payauth:{idempotency_key} -> approved|declined
	KeyPaymentAuth = "payauth:%s"
)

var (
	TTLPaymentAuth = 24 * time.Hour
)
