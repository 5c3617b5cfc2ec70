// package keys offers utility functions for working with crypto.Signers, JWS,
// JWKs and PEM serialization.
package keys

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"

	jose "github.com/go-jose/go-jose/v4"
)

func sigAlgForKey(signer crypto.Signer) jose.SignatureAlgorithm {
	switch signer.(type) {
	case *ecdsa.PrivateKey:
		return jose.ES256
	case *rsa.PrivateKey:
		return jose.RS256
	}
	return "unknown"
}

func algForKey(signer crypto.Signer) string {
	switch signer.(type) {
	case *ecdsa.PrivateKey:
		return "ECDSA"
	case *rsa.PrivateKey:
		return "RSA"
	}
	return "unknown"
}

func JWKThumbprintBytes(signer crypto.Signer) []byte {
	jwk := JWKForSigner(signer)
	thumbBytes, _ := jwk.Thumbprint(crypto.SHA256)
	return thumbBytes
}

func JWKThumbprint(signer crypto.Signer) string {
	thumbprintBytes := JWKThumbprintBytes(signer)
	return base64.RawURLEncoding.EncodeToString(thumbprintBytes)
}

func JWKForSigner(signer crypto.Signer) jose.JSONWebKey {
	return jose.JSONWebKey{
		Key:       signer.Public(),
		Algorithm: algForKey(signer),
	}
}

func SigningKeyForSigner(signer crypto.Signer, keyID string) jose.SigningKey {
	jwk := jose.JSONWebKey{
		Key:       signer,
		Algorithm: string(sigAlgForKey(signer)),
		KeyID:     keyID,
	}
	return jose.SigningKey{
		Key:       jwk,
		Algorithm: sigAlgForKey(signer),
	}
}

func SignerToPEM(signer crypto.Signer) (string, error) {
	var keyBytes []byte
	var keyHeader string
	var err error
	switch k := signer.(type) {
	case *ecdsa.PrivateKey:
		keyBytes, err = x509.MarshalECPrivateKey(k)
		keyHeader = "EC PRIVATE KEY"
	case *rsa.PrivateKey:
		keyBytes = x509.MarshalPKCS1PrivateKey(k)
		keyHeader = "RSA PRIVATE KEY"
	default:
		err = fmt.Errorf("unknown key type: %T", k)
	}
	if err != nil {
		return "", err
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{
		Type:  keyHeader,
		Bytes: keyBytes,
	})
	return string(pemBytes), nil
}

// AlgForKey returns the JWS signature algorithm to use for the given
// signer's key type: ES256 for EC keys, RS256 for everything else. This is
// the engine's sole alg-selection rule (spec §4.1, testable property 3).
func AlgForKey(signer crypto.Signer) jose.SignatureAlgorithm {
	if _, ok := signer.(*ecdsa.PrivateKey); ok {
		return jose.ES256
	}
	return jose.RS256
}

// Import parses a PEM encoded private key (EC or RSA, PKCS#1/SEC1 or
// PKCS#8) and returns a crypto.Signer. This is the engine's Crypto contract
// "import" operation (spec §6).
func Import(pemBytes []byte) (crypto.Signer, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("Import: no PEM block found")
	}

	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("Import: unrecognized private key encoding: %w", err)
	}
	switch k := key.(type) {
	case *ecdsa.PrivateKey:
		return k, nil
	case *rsa.PrivateKey:
		return k, nil
	default:
		return nil, fmt.Errorf("Import: unsupported key type %T", key)
	}
}

// Neuter strips any server-assigned or extraneous fields from a public JWK
// so it is safe to embed in a new-account request: no KeyID, no
// KeyOps/extension fields the server didn't ask for. This is the engine's
// Crypto contract "neuter" operation (spec §6, §4.2 step 2).
func Neuter(jwk jose.JSONWebKey) jose.JSONWebKey {
	jwk.KeyID = ""
	jwk.Use = ""
	jwk.KeyOps = nil
	jwk.Certificates = nil
	jwk.CertificateThumbprintSHA1 = nil
	jwk.CertificateThumbprintSHA256 = nil
	return jwk
}

// PublicJWK returns the neutered public JWK for a signer: the public key
// with no KeyID, ready to be embedded in a JWS protected header or an
// account registration payload.
func PublicJWK(signer crypto.Signer) jose.JSONWebKey {
	return Neuter(JWKForSigner(signer))
}
