// Package jws implements the signed request layer (spec §4.1): attach a
// fresh nonce, sign with either the account's kid or an embedded JWK,
// POST as application/jose+json, and harvest the reply nonce from every
// response.
//
// Grounded on the teacher's acme/client/jws.go (SigningOptions/Sign) and
// acme/client/resources.go (how CreateAccount/CreateOrder build and POST
// a signed body), generalized so the nonce source and HTTP transport are
// both injected rather than reached through a shell-oriented Client
// god-object.
package jws

import (
	"crypto"
	"encoding/json"
	"fmt"

	jose "github.com/go-jose/go-jose/v4"

	"github.com/go-acmeclient/engine/acme/keys"
	"github.com/go-acmeclient/engine/acme/transport"
)

// NonceSource supplies a fresh anti-replay nonce per spec §4.1 and accepts
// nonces harvested from response headers; satisfied by *nonce.Cache.
type NonceSource interface {
	Nonce() (string, error)
	Push(value string)
}

// Requester is the signed request layer (spec's exposed
// "signedRequest(url, protectedExtras, payload)").
type Requester struct {
	transport transport.HTTP
	nonces    NonceSource
}

// New builds a Requester over the given HTTP transport and nonce source.
func New(t transport.HTTP, nonces NonceSource) *Requester {
	return &Requester{transport: t, nonces: nonces}
}

// Result is the outcome of a signed request: the parsed HTTP status,
// headers, and body (auto-parsed as JSON when the response Content-Type
// says so, per spec §4.1).
type Result struct {
	StatusCode int
	Headers    map[string][]string
	Body       []byte
	// JSON holds the parsed response body when it decoded as JSON, else
	// nil. ACME problem documents and all 2xx ACME resource bodies are
	// JSON, so this is populated in the common case.
	JSON map[string]interface{}
}

func (r *Result) isJSONContentType() bool {
	for _, v := range r.Headers["Content-Type"] {
		if jsonContentType(v) {
			return true
		}
	}
	return false
}

func jsonContentType(contentType string) bool {
	for i := 0; i+3 < len(contentType); i++ {
		if contentType[i:i+4] == "json" {
			return true
		}
	}
	return false
}

// Identity describes which signing mode to use: kid-mode for every
// request after account registration, jwk-mode exclusively for
// new-account (spec §3 AccountKey invariant, §4.1 Signing).
type Identity struct {
	// Signer is the account key (or, for new-account, the about-to-be
	// registered key).
	Signer crypto.Signer
	// KID is the account resource URL. Empty means jwk-mode.
	KID string
}

func (id Identity) alg() jose.SignatureAlgorithm {
	return keys.AlgForKey(id.Signer)
}

// Do signs payload (nil for POST-as-GET) for url using identity, POSTs it,
// and harvests any Replay-Nonce header from the response into the nonce
// source before returning the result. Any non-2xx status is returned
// alongside the parsed body, not as an error — the caller decides whether
// a given status is fatal (spec §4.1 Failure).
func (r *Requester) Do(url string, payload []byte, identity Identity) (*Result, error) {
	signed, err := r.sign(url, payload, identity)
	if err != nil {
		return nil, fmt.Errorf("jws: signing request to %q: %w", url, err)
	}

	resp, err := r.transport.Post(url, "application/jose+json", signed)
	if err != nil {
		return nil, fmt.Errorf("jws: POST %q: %w", url, err)
	}

	return r.harvest(resp), nil
}

func (r *Requester) harvest(resp *transport.Response) *Result {
	if nonce := resp.Header("Replay-Nonce"); nonce != "" {
		r.nonces.Push(nonce)
	}

	result := &Result{
		StatusCode: resp.StatusCode,
		Headers:    map[string][]string(resp.Headers),
		Body:       resp.Body,
	}
	if result.isJSONContentType() && len(resp.Body) > 0 {
		var parsed map[string]interface{}
		if err := json.Unmarshal(resp.Body, &parsed); err == nil {
			result.JSON = parsed
		}
	}
	return result
}

func (r *Requester) sign(url string, payload []byte, identity Identity) ([]byte, error) {
	if identity.Signer == nil {
		return nil, fmt.Errorf("no signer provided")
	}

	extraHeaders := map[jose.HeaderKey]interface{}{"url": url}

	var signingKey jose.SigningKey
	var signerOpts jose.SignerOptions
	signerOpts.NonceSource = r.nonces
	signerOpts.ExtraHeaders = extraHeaders

	if identity.KID == "" {
		// jwk mode: embed the neutered public key, used exclusively for
		// new-account (spec §3 AccountKey invariant).
		jwk := keys.PublicJWK(identity.Signer)
		signingKey = jose.SigningKey{
			Key: jose.JSONWebKey{
				Key:       identity.Signer,
				Algorithm: jwk.Algorithm,
			},
			Algorithm: identity.alg(),
		}
		signerOpts.EmbedJWK = true
	} else {
		signingKey = keys.SigningKeyForSigner(identity.Signer, identity.KID)
	}

	signer, err := jose.NewSigner(signingKey, &signerOpts)
	if err != nil {
		return nil, err
	}

	if payload == nil {
		payload = []byte("")
	}

	signed, err := signer.Sign(payload)
	if err != nil {
		return nil, err
	}

	return []byte(signed.FullSerialize()), nil
}
