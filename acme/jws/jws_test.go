package jws

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-acmeclient/engine/acme/transport"
)

type recordingNonces struct {
	out     []string
	pushed  []string
	nextErr error
}

func (n *recordingNonces) Nonce() (string, error) {
	if n.nextErr != nil {
		return "", n.nextErr
	}
	v := n.out[0]
	n.out = n.out[1:]
	return v, nil
}
func (n *recordingNonces) Push(value string) { n.pushed = append(n.pushed, value) }

// httpTransport is a thin transport.HTTP over a real *http.Client, used so
// Requester.Do exercises a genuine serialize/POST/parse round trip against
// an httptest.Server.
type httpTransport struct{}

func (httpTransport) Get(url string) (*transport.Response, error) { return doReq("GET", url, nil) }
func (httpTransport) Head(url string) (*transport.Response, error) {
	return doReq("HEAD", url, nil)
}
func (httpTransport) Post(url, contentType string, body []byte) (*transport.Response, error) {
	return doReq("POST", url, body)
}

func doReq(method, url string, body []byte) (*transport.Response, error) {
	var reqBody io.Reader
	if body != nil {
		reqBody = &byteReader{body}
	}
	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &transport.Response{StatusCode: resp.StatusCode, Headers: resp.Header, Body: respBody}, nil
}

type byteReader struct{ b []byte }

func (r *byteReader) Read(p []byte) (int, error) {
	n := copy(p, r.b)
	r.b = r.b[n:]
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

func TestDoEmbedsJWKWhenKIDEmpty(t *testing.T) {
	signer, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	var capturedBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Replay-Nonce", "server-nonce-2")
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	nonces := &recordingNonces{out: []string{"client-nonce-1"}}
	requester := New(httpTransport{}, nonces)

	result, err := requester.Do(server.URL, []byte(`{"hello":"world"}`), Identity{Signer: signer})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, result.StatusCode)
	assert.Equal(t, []string{"server-nonce-2"}, nonces.pushed)

	parsed, err := jose.ParseSigned(string(capturedBody), []jose.SignatureAlgorithm{jose.ES256})
	require.NoError(t, err)
	require.Len(t, parsed.Signatures, 1)
	assert.NotNil(t, parsed.Signatures[0].Protected.JSONWebKey)
	assert.Empty(t, parsed.Signatures[0].Protected.KeyID)
}

func TestDoUsesKIDWhenProvided(t *testing.T) {
	signer, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	var capturedBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	nonces := &recordingNonces{out: []string{"client-nonce-1"}}
	requester := New(httpTransport{}, nonces)

	_, err = requester.Do(server.URL, nil, Identity{Signer: signer, KID: "https://ca.example/acct/9"})
	require.NoError(t, err)

	parsed, err := jose.ParseSigned(string(capturedBody), []jose.SignatureAlgorithm{jose.ES256})
	require.NoError(t, err)
	assert.Equal(t, "https://ca.example/acct/9", parsed.Signatures[0].Protected.KeyID)
	assert.Nil(t, parsed.Signatures[0].Protected.JSONWebKey)
}
