// Package account implements ACME account registration (spec §4.2).
//
// Grounded on the teacher's (*Client).CreateAccount in
// acme/client/resources.go: same Location-header-as-kid capture, same
// "sign with EmbedKey, POST to newAccount" shape. Extended with the
// agreeToTerms callback, external account binding, and contact handling
// spec.md §4.2/§6 call for and the teacher's unconditional-ToS-agreement
// shortcut skips (the teacher repo is explicit that it "always
// unconditionally agrees to the server's terms of service" since it is
// a development tool, not a production client).
package account

import (
	"crypto"
	"encoding/json"
	"fmt"
	"net/http"

	jose "github.com/go-jose/go-jose/v4"

	"github.com/go-acmeclient/engine/acme"
	"github.com/go-acmeclient/engine/acme/jws"
	"github.com/go-acmeclient/engine/acme/keys"
	"github.com/go-acmeclient/engine/acme/resources"
)

// Key is the account's asymmetric keypair plus, once registered, its
// server-assigned kid (spec §3 AccountKey).
type Key struct {
	Signer crypto.Signer
	// KID is the account resource URL. Empty until CreateOrLoad succeeds.
	KID string
}

// AgreeToTermsFunc is invoked with the directory's advertised
// termsOfService URL; it must return that same URL to indicate consent
// (spec §4.2 step 1, §6 agreeToTerms callback).
type AgreeToTermsFunc func(tosURL string) (string, error)

// ExternalAccount describes CA-issued EAB credentials (spec §6
// externalAccount option).
type ExternalAccount struct {
	ID     string
	Secret []byte
	// Alg defaults to HS256 when empty (spec §4.2 step 4).
	Alg jose.SignatureAlgorithm
}

// Request bundles the inputs to CreateOrLoad (spec §4.2
// accounts.create).
type Request struct {
	Key             *Key
	AgreeToTerms    AgreeToTermsFunc
	Contact         []string
	ExternalAccount *ExternalAccount
}

// CreateOrLoad registers req.Key with the ACME server (idempotently: per
// RFC 8555 the server returns the same account for a public key it has
// already seen, spec §4.2 "Idempotence"). On success req.Key.KID is
// populated and the parsed account resource is returned.
func CreateOrLoad(requester *jws.Requester, newAccountURL, termsOfService string, req Request) (*resources.Account, error) {
	if req.Key == nil || req.Key.Signer == nil {
		return nil, fmt.Errorf("account: Request.Key must have a Signer")
	}

	if req.AgreeToTerms != nil && termsOfService != "" {
		agreed, err := req.AgreeToTerms(termsOfService)
		if err != nil {
			return nil, fmt.Errorf("account: agreeToTerms callback failed: %w", err)
		}
		if agreed != termsOfService {
			return nil, fmt.Errorf("%w: directory advertised %q, caller agreed to %q",
				acme.ErrAgreeToS, termsOfService, agreed)
		}
	}

	payload := struct {
		TermsOfServiceAgreed   bool     `json:"termsOfServiceAgreed"`
		OnlyReturnExisting     bool     `json:"onlyReturnExisting"`
		Contact                []string `json:"contact,omitempty"`
		ExternalAccountBinding *jwsObj  `json:"externalAccountBinding,omitempty"`
	}{
		TermsOfServiceAgreed: true,
		OnlyReturnExisting:   false,
		Contact:              req.Contact,
	}

	if req.ExternalAccount != nil {
		eabJWS, err := buildEAB(*req.ExternalAccount, req.Key.Signer, newAccountURL)
		if err != nil {
			return nil, fmt.Errorf("account: building external account binding: %w", err)
		}
		payload.ExternalAccountBinding = eabJWS
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("account: marshaling newAccount payload: %w", err)
	}

	result, err := requester.Do(newAccountURL, body, jws.Identity{Signer: req.Key.Signer})
	if err != nil {
		return nil, fmt.Errorf("account: POST newAccount: %w", err)
	}

	if result.StatusCode != http.StatusCreated && result.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("account: newAccount returned status %d: %s", result.StatusCode, string(result.Body))
	}

	kid := firstHeader(result.Headers, "Location")
	if kid == "" {
		return nil, fmt.Errorf("account: newAccount response had no Location header")
	}
	req.Key.KID = kid

	var acct resources.Account
	if len(result.Body) == 0 {
		acct = resources.EmptyAccountResponse()
	} else if err := json.Unmarshal(result.Body, &acct); err != nil {
		return nil, fmt.Errorf("account: parsing account resource: %w", err)
	}
	return &acct, nil
}

func firstHeader(headers map[string][]string, name string) string {
	for _, candidate := range []string{name, "location", "Location"} {
		if vals, ok := headers[candidate]; ok && len(vals) > 0 {
			return vals[0]
		}
	}
	return ""
}

// jwsObj is a flattened-JSON JWS, matching the shape go-jose's
// FullSerialize produces and what externalAccountBinding expects on the
// wire.
type jwsObj = json.RawMessage

func buildEAB(eab ExternalAccount, accountSigner crypto.Signer, url string) (*jwsObj, error) {
	alg := eab.Alg
	if alg == "" {
		alg = jose.HS256
	}

	publicJWK := keys.PublicJWK(accountSigner)
	payload, err := json.Marshal(publicJWK)
	if err != nil {
		return nil, err
	}

	signer, err := jose.NewSigner(jose.SigningKey{
		Algorithm: alg,
		Key: jose.JSONWebKey{
			Key:   eab.Secret,
			KeyID: eab.ID,
		},
	}, &jose.SignerOptions{
		ExtraHeaders: map[jose.HeaderKey]interface{}{"url": url},
	})
	if err != nil {
		return nil, err
	}

	signed, err := signer.Sign(payload)
	if err != nil {
		return nil, err
	}

	raw := json.RawMessage(signed.FullSerialize())
	return &raw, nil
}
