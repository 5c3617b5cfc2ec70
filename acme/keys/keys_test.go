package keys

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"testing"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlgForKeyECDSA(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	assert.Equal(t, jose.ES256, AlgForKey(key))
}

func TestAlgForKeyRSA(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	assert.Equal(t, jose.RS256, AlgForKey(key))
}

func TestJWKThumbprintIsStableForSameKey(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	first := JWKThumbprint(key)
	second := JWKThumbprint(key)
	assert.Equal(t, first, second)
	assert.NotEmpty(t, first)
}

func TestNeuterStripsServerAssignedFields(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	jwk := JWKForSigner(key)
	jwk.KeyID = "https://ca.example/acct/1"
	jwk.Use = "sig"

	neutered := Neuter(jwk)
	assert.Empty(t, neutered.KeyID)
	assert.Empty(t, neutered.Use)
}

func TestSignerToPEMRoundTripsThroughImport(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	pemStr, err := SignerToPEM(key)
	require.NoError(t, err)

	imported, err := Import([]byte(pemStr))
	require.NoError(t, err)
	assert.Equal(t, JWKThumbprint(key), JWKThumbprint(imported))
}
