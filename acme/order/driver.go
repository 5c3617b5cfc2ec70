package order

import (
	"crypto"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-acmeclient/engine/acme"
	"github.com/go-acmeclient/engine/acme/challenge"
	"github.com/go-acmeclient/engine/acme/jws"
	"github.com/go-acmeclient/engine/acme/keys"
	"github.com/go-acmeclient/engine/acme/pemutil"
	"github.com/go-acmeclient/engine/acme/resources"
	"github.com/go-acmeclient/engine/acme/transport"
)

// CreateRequest bundles the inputs to Driver.Create (spec §4.5
// certificates.create).
type CreateRequest struct {
	// AccountSigner is the registered account's private key; AccountKID
	// is its server-assigned account URL.
	AccountSigner crypto.Signer
	AccountKID    string

	// DomainSigner signs the CSR; never transmitted, only its public key
	// appears in the CSR (spec §3 DomainKey).
	DomainSigner crypto.Signer

	Domains []string
	// Subject, if non-empty and present in Domains, becomes index 0 after
	// sorting (spec §4.5 step 4) and thus the CSR Common Name.
	Subject string

	// ChallengeTypes is the caller's preference order. ChallengeType is
	// accepted as a legacy singular alias (spec §6): if both are set,
	// ChallengeType must appear in ChallengeTypes and is moved to the front.
	ChallengeTypes []string
	ChallengeType  string

	SetChallenge    challenge.SetChallengeFunc
	RemoveChallenge challenge.RemoveChallengeFunc
}

func (r *CreateRequest) normalize() error {
	if len(r.Domains) == 0 {
		return fmt.Errorf("%w: Domains must not be empty", acme.ErrPreflight)
	}

	types := r.ChallengeTypes
	if r.ChallengeType != "" {
		if len(types) == 0 {
			types = []string{r.ChallengeType}
		} else {
			idx := -1
			for i, t := range types {
				if t == r.ChallengeType {
					idx = i
					break
				}
			}
			if idx < 0 {
				return fmt.Errorf("%w: ChallengeType %q is not one of ChallengeTypes %v",
					acme.ErrPreflight, r.ChallengeType, types)
			}
			reordered := append([]string{r.ChallengeType}, types[:idx]...)
			types = append(reordered, types[idx+1:]...)
		}
	}
	if len(types) == 0 {
		return fmt.Errorf("%w: no challenge types specified", acme.ErrPreflight)
	}
	r.ChallengeTypes = types

	if r.SetChallenge == nil {
		return fmt.Errorf("%w: SetChallenge callback must not be nil", acme.ErrPreflight)
	}
	return nil
}

// sortedDomains reorders domains so that subject (if present) is index 0,
// matching spec §4.5 step 4 ("this becomes the certificate Common Name").
func sortedDomains(domains []string, subject string) []string {
	out := make([]string, len(domains))
	copy(out, domains)

	if subject == "" {
		return out
	}
	idx := -1
	for i, d := range out {
		if d == subject {
			idx = i
			break
		}
	}
	if idx <= 0 {
		return out
	}
	out[0], out[idx] = out[idx], out[0]
	return out
}

// Driver drives the order + authorization state machines end to end.
type Driver struct {
	requester   *jws.Requester
	newOrderURL string
	httpClient  transport.HTTP
	dnsResolver transport.DNS
	config      Config
}

// New builds an order Driver.
func New(requester *jws.Requester, newOrderURL string, httpClient transport.HTTP, dnsResolver transport.DNS, config Config) *Driver {
	config.normalize()
	return &Driver{
		requester:   requester,
		newOrderURL: newOrderURL,
		httpClient:  httpClient,
		dnsResolver: dnsResolver,
		config:      config,
	}
}

// Create runs the full certificate issuance flow described in spec §4.5.
func (d *Driver) Create(req CreateRequest) (*resources.CertBundle, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}
	if req.AccountSigner == nil || req.AccountKID == "" {
		return nil, fmt.Errorf("%w: an account must already be registered (AccountSigner/AccountKID)", acme.ErrPreflight)
	}

	acctIdentity := jws.Identity{Signer: req.AccountSigner, KID: req.AccountKID}

	if !d.config.SkipChallengeTest {
		for _, domain := range req.Domains {
			if err := challenge.Run(domain, req.ChallengeTypes, req.AccountSigner, req.SetChallenge, d.httpClient, d.dnsResolver); err != nil {
				return nil, fmt.Errorf("order: self-test failed for %q: %w", domain, err)
			}
		}
	}

	domains := sortedDomains(req.Domains, req.Subject)

	order, err := d.createOrder(domains, acctIdentity)
	if err != nil {
		return nil, err
	}
	if len(order.Authorizations) == 0 {
		return nil, fmt.Errorf("order: %w", acme.ErrNoAuthorizations)
	}

	pending, err := d.publishAll(order, req, acctIdentity)
	if err != nil {
		return nil, err
	}

	for _, auth := range pending {
		if err := d.acceptAndPoll(auth, acctIdentity); err != nil {
			return nil, err
		}
		if req.RemoveChallenge != nil {
			_ = req.RemoveChallenge(auth)
		}
	}

	b64csr, err := keys.GenerateCSRWeb64(req.DomainSigner, domains)
	if err != nil {
		return nil, fmt.Errorf("order: generating CSR: %w", err)
	}

	if err := d.finalize(order, b64csr, acctIdentity); err != nil {
		return nil, err
	}

	if err := d.pollOrderValid(order, domains, acctIdentity); err != nil {
		return nil, err
	}

	return d.fetchCertificate(order, acctIdentity)
}

func (d *Driver) createOrder(domains []string, identity jws.Identity) (*resources.Order, error) {
	identifiers := make([]resources.Identifier, len(domains))
	for i, name := range domains {
		identifiers[i] = resources.Identifier{Type: "dns", Value: name}
	}

	body, err := json.Marshal(struct {
		Identifiers []resources.Identifier `json:"identifiers"`
	}{Identifiers: identifiers})
	if err != nil {
		return nil, fmt.Errorf("order: marshaling newOrder payload: %w", err)
	}

	result, err := d.requester.Do(d.newOrderURL, body, identity)
	if err != nil {
		return nil, fmt.Errorf("order: POST newOrder: %w", err)
	}
	if result.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("order: newOrder returned status %d: %s", result.StatusCode, string(result.Body))
	}

	var parsedOrder resources.Order
	if err := json.Unmarshal(result.Body, &parsedOrder); err != nil {
		return nil, fmt.Errorf("order: parsing newOrder response: %w", err)
	}
	parsedOrder.OrderURL = firstHeader(result.Headers, "Location")
	if parsedOrder.OrderURL == "" {
		return nil, fmt.Errorf("order: newOrder response had no Location header")
	}
	return &parsedOrder, nil
}

func firstHeader(headers map[string][]string, name string) string {
	for _, candidate := range []string{name, "location", "Location"} {
		if vals, ok := headers[candidate]; ok && len(vals) > 0 {
			return vals[0]
		}
	}
	return ""
}

func (d *Driver) fetchAuthorization(url string, identity jws.Identity) (resources.Authorization, error) {
	result, err := d.requester.Do(url, nil, identity)
	if err != nil {
		return resources.Authorization{}, fmt.Errorf("order: POST-as-GET authorization %q: %w", url, err)
	}
	var authz resources.Authorization
	if err := json.Unmarshal(result.Body, &authz); err != nil {
		return resources.Authorization{}, fmt.Errorf("order: parsing authorization %q: %w", url, err)
	}
	authz.ID = url
	return authz, nil
}

// publishAll is Pass A of spec §4.5 step 6: fetch each authorization,
// skip the ones already valid, else choose+derive+publish a challenge and
// queue it for Pass B.
func (d *Driver) publishAll(order *resources.Order, req CreateRequest, identity jws.Identity) ([]challenge.Auth, error) {
	var pending []challenge.Auth

	for _, authzURL := range order.Authorizations {
		authz, err := d.fetchAuthorization(authzURL, identity)
		if err != nil {
			return nil, err
		}

		if alreadyValid(authz) {
			continue
		}

		acceptable := challenge.AcceptableTypes(req.ChallengeTypes, authz.Wildcard)
		chosen, err := challenge.Choose(authz, acceptable)
		if err != nil {
			return nil, err
		}

		auth, err := challenge.ToAuth(authz, chosen, req.AccountSigner, "", false)
		if err != nil {
			return nil, err
		}

		if err := req.SetChallenge(auth); err != nil {
			return nil, fmt.Errorf("order: setChallenge for %q: %w", auth.Hostname, err)
		}

		time.Sleep(d.config.SetChallengeWait)
		pending = append(pending, auth)
	}

	return pending, nil
}

func alreadyValid(authz resources.Authorization) bool {
	for _, ch := range authz.Challenges {
		if ch.Status == acme.StatusValid {
			return true
		}
	}
	return false
}

func (d *Driver) finalize(order *resources.Order, b64csr string, identity jws.Identity) error {
	body, err := json.Marshal(struct {
		CSR string `json:"csr"`
	}{CSR: b64csr})
	if err != nil {
		return fmt.Errorf("order: marshaling finalize payload: %w", err)
	}

	result, err := d.requester.Do(order.Finalize, body, identity)
	if err != nil {
		return fmt.Errorf("order: POST finalize: %w", err)
	}
	if result.StatusCode != http.StatusOK {
		return fmt.Errorf("order: finalize returned status %d: %s", result.StatusCode, string(result.Body))
	}
	return json.Unmarshal(result.Body, order)
}

func (d *Driver) fetchCertificate(order *resources.Order, identity jws.Identity) (*resources.CertBundle, error) {
	if order.Certificate == "" {
		return nil, fmt.Errorf("order: order %q reached status valid with no certificate URL", order.OrderURL)
	}

	result, err := d.requester.Do(order.Certificate, nil, identity)
	if err != nil {
		return nil, fmt.Errorf("order: fetching certificate %q: %w", order.Certificate, err)
	}
	if result.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("order: GET certificate %q returned status %d", order.Certificate, result.StatusCode)
	}

	formatted := pemutil.FormatChain(string(result.Body))
	leaf, chain := pemutil.SplitLeafAndChain(formatted)

	return &resources.CertBundle{
		Expires:     order.Expires,
		Identifiers: order.Identifiers,
		Cert:        leaf,
		Chain:       chain,
	}, nil
}
