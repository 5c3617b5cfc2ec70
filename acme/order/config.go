// Package order implements the order and authorization drivers (spec
// §4.5): create an order, walk its authorizations serially publishing and
// accepting challenges, finalize with a CSR, poll to completion, and fetch
// the certificate.
//
// Grounded on the teacher's (*Client).CreateOrder/UpdateOrder/UpdateAuthz/
// UpdateChallenge in acme/client/resources.go for the shape of each
// individual request, and on shell/finalize.go + shell/getCert.go for the
// finalize-then-fetch sequence; the teacher leaves looping over
// authorizations and polling to a human operator driving one shell
// command at a time; this package is exactly that automation.
package order

import (
	"time"

	"github.com/go-acmeclient/engine/acme"
)

// Config holds the polling/retry tuning recognized by spec §6.
type Config struct {
	RetryInterval     time.Duration
	MaxPoll           int
	MaxPending        int
	DeauthWait        time.Duration
	SetChallengeWait  time.Duration
	SkipChallengeTest bool
}

// DefaultConfig returns the spec §6 documented defaults.
func DefaultConfig() Config {
	return Config{
		RetryInterval:     acme.DefaultRetryInterval,
		MaxPoll:           acme.DefaultMaxPoll,
		MaxPending:        acme.DefaultMaxPending,
		DeauthWait:        acme.DefaultDeauthWait,
		SetChallengeWait:  acme.DefaultSetChallengeWait,
		SkipChallengeTest: false,
	}
}

func (c *Config) normalize() {
	if c.RetryInterval <= 0 {
		c.RetryInterval = acme.DefaultRetryInterval
	}
	if c.MaxPoll <= 0 {
		c.MaxPoll = acme.DefaultMaxPoll
	}
	if c.MaxPending <= 0 {
		c.MaxPending = acme.DefaultMaxPending
	}
	if c.DeauthWait <= 0 {
		c.DeauthWait = acme.DefaultDeauthWait
	}
	if c.SetChallengeWait <= 0 {
		c.SetChallengeWait = acme.DefaultSetChallengeWait
	}
}
