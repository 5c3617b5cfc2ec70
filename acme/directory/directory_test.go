package directory

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-acmeclient/engine/acme/transport"
)

func newTestTransport(t *testing.T, server *httptest.Server) transport.HTTP {
	t.Helper()
	tr, err := transport.NewDefault(transport.Config{})
	require.NoError(t, err)
	return tr
}

func TestLoadParsesDirectory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{
			"newNonce": "%[1]s/new-nonce",
			"newAccount": "%[1]s/new-account",
			"newOrder": "%[1]s/new-order",
			"meta": {"termsOfService": "%[1]s/tos"}
		}`, "http://example-ca.test")
	}))
	defer server.Close()

	tr := newTestTransport(t, server)
	dir, err := Load(tr, server.URL)
	require.NoError(t, err)
	assert.Equal(t, "http://example-ca.test/new-nonce", dir.NewNonce)
	assert.Equal(t, "http://example-ca.test/new-account", dir.NewAccount)
	assert.Equal(t, "http://example-ca.test/new-order", dir.NewOrder)
	assert.Equal(t, "http://example-ca.test/tos", dir.Meta.TermsOfService)
}

func TestLoadRejectsIncompleteDirectory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"newNonce": "https://ca/new-nonce"}`)
	}))
	defer server.Close()

	tr := newTestTransport(t, server)
	_, err := Load(tr, server.URL)
	assert.Error(t, err)
}

func TestNonceFetcherReadsReplayNonceHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Replay-Nonce", "abc123")
	}))
	defer server.Close()

	tr := newTestTransport(t, server)
	fetcher := &NonceFetcher{Transport: tr, Directory: &Directory{NewNonce: server.URL}}

	nonceValue, err := fetcher.FetchNonce()
	require.NoError(t, err)
	assert.Equal(t, "abc123", nonceValue)
}

func TestFromMapUsesProvidedObjectAsIs(t *testing.T) {
	raw := map[string]interface{}{
		"newNonce":   "https://ca/new-nonce",
		"newAccount": "https://ca/new-account",
		"newOrder":   "https://ca/new-order",
	}
	dir, err := FromMap(raw)
	require.NoError(t, err)
	assert.Equal(t, "https://ca/new-order", dir.NewOrder)
}
