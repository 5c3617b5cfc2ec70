package challenge

import (
	"crypto"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/go-acmeclient/engine/acme"
	"github.com/go-acmeclient/engine/acme/resources"
	"github.com/go-acmeclient/engine/acme/transport"
)

// SetChallengeFunc installs a challenge response (the HTTP token file or
// the DNS TXT record) so the server — or, during a dry run, this
// package's own self-test — can observe it (spec §6 setChallenge).
type SetChallengeFunc func(auth Auth) error

// RemoveChallengeFunc tears down whatever SetChallengeFunc installed.
// Errors are swallowed by callers (spec §7: "removeChallenge failures are
// explicitly swallowed").
type RemoveChallengeFunc func(auth Auth) error

// Verifier is the per-challenge-type self-test behavior (Design Notes §9:
// "Challenge = Http01 | Dns01 | ...; selfTest(transport, dns, auth)").
// New challenge types plug in here without touching the self-test driver.
type Verifier interface {
	Verify(http transport.HTTP, dnsResolver transport.DNS, auth Auth) error
}

type http01Verifier struct{}

func (http01Verifier) Verify(http transport.HTTP, _ transport.DNS, auth Auth) error {
	resp, err := http.Get(auth.ChallengeURL)
	if err != nil {
		return fmt.Errorf("%w: GET %q: %v; try `curl %s`", acme.ErrFailDryChallenge, auth.ChallengeURL, err, auth.ChallengeURL)
	}
	body := strings.TrimSpace(string(resp.Body))
	if resp.StatusCode != 200 || body != auth.KeyAuthorization {
		return fmt.Errorf("%w: GET %q returned status %d body %q, expected %q; try `curl %s`",
			acme.ErrFailDryChallenge, auth.ChallengeURL, resp.StatusCode, body, auth.KeyAuthorization, auth.ChallengeURL)
	}
	return nil
}

type dns01Verifier struct{}

func (dns01Verifier) Verify(_ transport.HTTP, dnsResolver transport.DNS, auth Auth) error {
	result, err := dnsResolver.LookupTXT(auth.DNSHost)
	if err != nil {
		return fmt.Errorf("%w: TXT lookup for %q: %v; try `dig TXT %s`", acme.ErrFailDryChallenge, auth.DNSHost, err, auth.DNSHost)
	}
	for _, rrset := range result.Answer {
		for _, data := range rrset.Data {
			if data == auth.DNSAuthorization {
				return nil
			}
		}
	}
	return fmt.Errorf("%w: TXT %q did not contain %q; try `dig TXT %s`",
		acme.ErrFailDryChallenge, auth.DNSHost, auth.DNSAuthorization, auth.DNSHost)
}

// verifiers is the exhaustive type -> self-test dispatch table (Design
// Notes §9): this is the one place a new challenge type needs wiring in.
var verifiers = map[string]Verifier{
	acme.ChallengeHTTP01: http01Verifier{},
	acme.ChallengeDNS01:  dns01Verifier{},
}

// randomDryRunSuffix produces the 8-hex-digit suffix used to namespace
// the dry-run DNS host away from the real "_acme-challenge" label (spec
// §4.3). The 4 random bytes are read from crypto/rand, although nothing
// here depends on them being cryptographically strong.
func randomDryRunSuffix() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("challenge: generating dry-run suffix: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// syntheticAuthorization builds the fake, all-four-types authorization
// the self-test validates against (spec §4.4 step 1): one challenge per
// known type, each with a random token, and Wildcard set to match the
// real identifier so the same acceptable-types filter applies.
func syntheticAuthorization(hostname string, wildcard bool) (resources.Authorization, error) {
	types := []string{acme.ChallengeHTTP01, acme.ChallengeDNS01, acme.ChallengeTLSSNI01, acme.ChallengeTLSALPN01}
	challenges := make([]resources.Challenge, 0, len(types))
	for _, t := range types {
		token, err := randomDryRunSuffix()
		if err != nil {
			return resources.Authorization{}, err
		}
		challenges = append(challenges, resources.Challenge{
			Type:   t,
			URL:    "",
			Token:  "dryrun-" + token,
			Status: acme.StatusPending,
		})
	}
	return resources.Authorization{
		Status:     acme.StatusPending,
		Identifier: resources.Identifier{Type: "dns", Value: hostname},
		Challenges: challenges,
		Wildcard:   wildcard,
	}, nil
}

// Run performs the self-test (dry run) for one domain (spec §4.4): build
// a synthetic authorization, pick a challenge the same way the real
// driver would, hand it to the caller's publisher, wait for propagation,
// then verify.
//
// Grounded on the teacher's shell/commands/challsrv.go wiring of
// letsencrypt/challtestsrv as the thing that actually serves HTTP-01/
// DNS-01 responses in tests; this function is the production code that
// drives any such responder (real or test) through setChallenge and then
// checks its own work before ever bothering the CA.
func Run(domain string, preferredTypes []string, accountKey crypto.Signer, set SetChallengeFunc, httpClient transport.HTTP, dnsResolver transport.DNS) error {
	wildcard := strings.HasPrefix(domain, "*.")
	hostname := bareHostname(domain)

	authz, err := syntheticAuthorization(hostname, wildcard)
	if err != nil {
		return err
	}

	acceptable := AcceptableTypes(preferredTypes, wildcard)
	chosen, err := Choose(authz, acceptable)
	if err != nil {
		return err
	}

	suffix, err := randomDryRunSuffix()
	if err != nil {
		return err
	}
	dnsPrefix := fmt.Sprintf("greenlock-dryrun-%s", suffix)

	auth, err := ToAuth(authz, chosen, accountKey, dnsPrefix, true)
	if err != nil {
		return err
	}

	if err := set(auth); err != nil {
		return fmt.Errorf("challenge: setChallenge during self-test: %w", err)
	}

	if hasDNS01(acceptable) {
		time.Sleep(1500 * time.Millisecond)
	}

	verifier, ok := verifiers[auth.Type]
	if !ok {
		return fmt.Errorf("%w: no self-test verifier registered for type %q", acme.ErrFailDryChallenge, auth.Type)
	}
	if err := verifier.Verify(httpClient, dnsResolver, auth); err != nil {
		return err
	}
	return nil
}

func hasDNS01(types []string) bool {
	for _, t := range types {
		if t == acme.ChallengeDNS01 {
			return true
		}
	}
	return false
}
