// Package challenge derives, chooses, and self-tests ACME challenges
// (spec §4.3, §4.4, and Design Notes §9's "tagged variant" guidance).
//
// Grounded on the teacher's shell/solve.go (keyAuthorization/
// dnsAuthorization construction, the http-01/dns-01 dispatch by Type
// string) and shell/commands/challsrv.go (the challtestsrv wiring used in
// this package's tests). The teacher dispatches on Type string inline in
// one switch in solveHandler; this package turns the self-test dispatch
// into the per-type Verifier table (verifiers, in selftest.go), so adding
// a type is "plug in a table entry", not "find every switch statement".
package challenge

import (
	"crypto"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/go-acmeclient/engine/acme"
	"github.com/go-acmeclient/engine/acme/keys"
	"github.com/go-acmeclient/engine/acme/resources"
)

// Auth is the client-side fusion of an Authorization and a chosen
// Challenge with account-key-derived data (spec §3 Auth).
type Auth struct {
	Identifier resources.Identifier
	Hostname   string
	Altname    string
	Wildcard   bool

	Type   string
	Status string
	URL    string
	Token  string

	Thumbprint       string
	KeyAuthorization string

	// ChallengeURL is the well-known URL the http-01 provisioner must
	// serve the key authorization from.
	ChallengeURL string
	// DNSHost is the name the dns-01 provisioner must publish a TXT
	// record under.
	DNSHost string
	// DNSAuthorization is the TXT record value dns-01 expects.
	DNSAuthorization string

	// DryRun marks an Auth synthesized for the self-test (spec §4.4),
	// never submitted to the real ACME server.
	DryRun bool
}

// bareHostname strips a leading "*." wildcard prefix.
func bareHostname(identifierValue string) string {
	return strings.TrimPrefix(identifierValue, "*.")
}

// ToAuth derives the Auth value for authz+challenge, using dnsPrefix as
// the dns-01 host label prefix ("_acme-challenge" for real validation, or
// a randomized "greenlock-dryrun-XXXX" style label for the self-test so
// a failed dry run doesn't poison a recursive resolver's cache for the
// real name — spec §4.3, §4.4).
//
// Grounded on the key authorization math in the teacher's
// shell/solve.go solveHandler (token + "." + base64url(SHA256(JWK))) and
// dnsAuthorization as specified by spec §3 (base64url(SHA256(keyAuth))).
func ToAuth(authz resources.Authorization, ch resources.Challenge, accountKey crypto.Signer, dnsPrefix string, dryRun bool) (Auth, error) {
	hostname := bareHostname(authz.Identifier.Value)
	altname := hostname
	if authz.Wildcard {
		altname = "*." + hostname
	}

	thumbprint := keys.JWKThumbprint(accountKey)
	keyAuth := fmt.Sprintf("%s.%s", ch.Token, thumbprint)

	dnsSum := sha256.Sum256([]byte(keyAuth))
	dnsAuth := base64.RawURLEncoding.EncodeToString(dnsSum[:])

	if dnsPrefix == "" {
		dnsPrefix = "_acme-challenge"
	}

	return Auth{
		Identifier:       authz.Identifier,
		Hostname:         hostname,
		Altname:          altname,
		Wildcard:         authz.Wildcard,
		Type:             ch.Type,
		Status:           ch.Status,
		URL:              ch.URL,
		Token:            ch.Token,
		Thumbprint:       thumbprint,
		KeyAuthorization: keyAuth,
		ChallengeURL:     fmt.Sprintf("http://%s/.well-known/acme-challenge/%s", hostname, ch.Token),
		DNSHost:          fmt.Sprintf("%s.%s", dnsPrefix, hostname),
		DNSAuthorization: dnsAuth,
		DryRun:           dryRun,
	}, nil
}

// Choose returns the first challenge in authz.Challenges whose type
// appears in preferredTypes (iterated in the caller's preference order),
// matching spec §4.3's "iterate the caller's challengeTypes in preference
// order; return the first challenge offered by the server whose type
// matches". Wildcard identifiers only ever accept dns-01, filtered by the
// caller via AcceptableTypes before calling Choose.
func Choose(authz resources.Authorization, preferredTypes []string) (resources.Challenge, error) {
	for _, want := range preferredTypes {
		for _, offered := range authz.Challenges {
			if offered.Type == want {
				return offered, nil
			}
		}
	}
	return resources.Challenge{}, fmt.Errorf("%w: authorization for %q offered none of %v",
		acme.ErrNoChallengeChoice, authz.Identifier.Value, preferredTypes)
}

// AcceptableTypes filters preferredTypes down to what's legal for the
// given identifier: wildcard identifiers may only use dns-01 (spec §4.3,
// testable property 6).
func AcceptableTypes(preferredTypes []string, wildcard bool) []string {
	if !wildcard {
		return preferredTypes
	}
	var out []string
	for _, t := range preferredTypes {
		if t == acme.ChallengeDNS01 {
			out = append(out, t)
		}
	}
	return out
}
