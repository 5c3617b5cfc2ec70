// Package acme provides ACME protocol constants and shared defaults used
// across the engine's sub-packages.
package acme

import "time"

const (
	// The HTTP response header used by ACME to communicate a fresh nonce. See
	// https://ietf-wg-acme.github.io/acme/draft-ietf-acme-acme.html#rfc.section.6.5.1
	REPLAY_NONCE_HEADER = "Replay-Nonce"
	// RETRY_AFTER_HEADER carries a server hint for how long to wait before
	// polling a resource again.
	RETRY_AFTER_HEADER = "Retry-After"
)

// Challenge type identifiers recognized by the engine.
const (
	ChallengeHTTP01    = "http-01"
	ChallengeDNS01     = "dns-01"
	ChallengeTLSSNI01  = "tls-sni-01"
	ChallengeTLSALPN01 = "tls-alpn-01"
)

// Order and Authorization/Challenge status vocabulary. See
// https://tools.ietf.org/html/rfc8555#section-7.1.6
const (
	StatusPending      = "pending"
	StatusProcessing   = "processing"
	StatusValid        = "valid"
	StatusInvalid      = "invalid"
	StatusReady        = "ready"
	StatusDeactivated  = "deactivated"
	StatusExpired      = "expired"
	StatusRevoked      = "revoked"
)

// NonceMaxAge is how long a cached nonce may sit unused before it is
// discarded rather than risked against the server's own expiry window.
const NonceMaxAge = 15 * time.Minute

// NonceCacheLimit bounds the LIFO nonce cache so that a burst of harvested
// nonces without matching signs can't grow it unboundedly.
const NonceCacheLimit = 32

// Default polling/retry tuning, overridable via order.Config (spec §6).
const (
	DefaultRetryInterval  = 1000 * time.Millisecond
	DefaultMaxPoll        = 8
	DefaultMaxPending     = 4
	DefaultDeauthWait     = 10000 * time.Millisecond
	DefaultSetChallengeWait = 500 * time.Millisecond
)
