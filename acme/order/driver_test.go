package order

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-acmeclient/engine/acme"
	"github.com/go-acmeclient/engine/acme/challenge"
	"github.com/go-acmeclient/engine/acme/jws"
	"github.com/go-acmeclient/engine/acme/transport"
)

type fixedNonces struct{}

func (fixedNonces) Nonce() (string, error) { return "nonce", nil }
func (fixedNonces) Push(string)            {}

// decodePayload extracts the "payload" field of a flattened-JSON JWS
// without verifying the signature -- sufficient for a test server that
// only needs to branch on what the client asked for.
func decodePayload(t *testing.T, body []byte) string {
	t.Helper()
	var flat struct {
		Payload string `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(body, &flat))
	if flat.Payload == "" {
		return ""
	}
	decoded, err := base64.RawURLEncoding.DecodeString(flat.Payload)
	require.NoError(t, err)
	return string(decoded)
}

func TestDriverCreateEndToEnd(t *testing.T) {
	accountSigner, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	domainSigner, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	var mux *http.ServeMux
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mux.ServeHTTP(w, r)
	}))
	defer server.Close()

	challengePollCount := int32(0)
	orderPollCount := int32(0)

	mux = http.NewServeMux()

	mux.HandleFunc("/new-order", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", server.URL+"/order/1")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":         "pending",
			"identifiers":    []map[string]string{{"type": "dns", "value": "example.org"}},
			"authorizations": []string{server.URL + "/authz/1"},
			"finalize":       server.URL + "/finalize/1",
		})
	})

	mux.HandleFunc("/authz/1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":     "pending",
			"identifier": map[string]string{"type": "dns", "value": "example.org"},
			"challenges": []map[string]string{
				{"type": acme.ChallengeHTTP01, "url": server.URL + "/chall/1", "token": "tok-1", "status": "pending"},
			},
		})
	})

	mux.HandleFunc("/chall/1", func(w http.ResponseWriter, r *http.Request) {
		body, _ := readAll(r)
		payload := decodePayload(t, body)
		w.Header().Set("Content-Type", "application/json")

		if payload == "{}" {
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"type": acme.ChallengeHTTP01, "url": server.URL + "/chall/1", "token": "tok-1", "status": "processing",
			})
			return
		}

		n := atomic.AddInt32(&challengePollCount, 1)
		status := "processing"
		if n >= 2 {
			status = "valid"
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"type": acme.ChallengeHTTP01, "url": server.URL + "/chall/1", "token": "tok-1", "status": status,
		})
	})

	mux.HandleFunc("/finalize/1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":   "processing",
			"finalize": server.URL + "/finalize/1",
		})
	})

	mux.HandleFunc("/order/1", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&orderPollCount, 1)
		status := "processing"
		body := map[string]interface{}{
			"status":   status,
			"finalize": server.URL + "/finalize/1",
		}
		if n >= 2 {
			body["status"] = "valid"
			body["certificate"] = server.URL + "/cert/1"
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(body)
	})

	mux.HandleFunc("/cert/1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pem-certificate-chain")
		fmt.Fprint(w, leafCertPEM+issuerCertPEM)
	})

	httpClient, err := transport.NewDefault(transport.Config{})
	require.NoError(t, err)

	requester := jws.New(httpClient, fixedNonces{})
	conf := DefaultConfig()
	conf.RetryInterval = 5 * time.Millisecond
	conf.SetChallengeWait = time.Millisecond
	conf.SkipChallengeTest = true

	driver := New(requester, server.URL+"/new-order", httpClient, nil, conf)

	var published []challenge.Auth
	bundle, err := driver.Create(CreateRequest{
		AccountSigner: accountSigner,
		AccountKID:    "https://ca.example/acct/1",
		DomainSigner:  domainSigner,
		Domains:       []string{"example.org"},
		ChallengeTypes: []string{acme.ChallengeHTTP01},
		SetChallenge: func(auth challenge.Auth) error {
			published = append(published, auth)
			return nil
		},
	})
	require.NoError(t, err)
	require.Len(t, published, 1)
	assert.Equal(t, "example.org", published[0].Hostname)

	assert.Equal(t, leafCertPEM, bundle.Cert)
	assert.Equal(t, issuerCertPEM, bundle.Chain)
}

const leafCertPEM = "-----BEGIN CERTIFICATE-----\nLEAF\n-----END CERTIFICATE-----\n"
const issuerCertPEM = "-----BEGIN CERTIFICATE-----\nISSUER\n-----END CERTIFICATE-----\n"

// TestAcceptAndPollDeactivatesAfterMaxPending drives the challenge
// accept/poll state machine through MaxPending consecutive "pending"
// polls and verifies the deactivate/re-accept recovery path spec §4.5
// step 6 and scenario S3 describe: once pendingCount reaches MaxPending,
// the driver POSTs {"status":"deactivated"}, waits DeauthWait, then
// re-POSTs the {} accept body before resuming polling.
func TestAcceptAndPollDeactivatesAfterMaxPending(t *testing.T) {
	accountSigner, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	var pollCount int32
	var deactivateCount int32
	var acceptCount int32

	const maxPending = 2

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := readAll(r)
		payload := decodePayload(t, body)
		w.Header().Set("Content-Type", "application/json")

		switch payload {
		case `{"status":"deactivated"}`:
			atomic.AddInt32(&deactivateCount, 1)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"type": acme.ChallengeHTTP01, "url": r.URL.String(), "token": "tok-s3", "status": "deactivated",
			})
		case "{}":
			atomic.AddInt32(&acceptCount, 1)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"type": acme.ChallengeHTTP01, "url": r.URL.String(), "token": "tok-s3", "status": "processing",
			})
		default:
			n := atomic.AddInt32(&pollCount, 1)
			status := "pending"
			if n > maxPending+1 {
				status = "valid"
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"type": acme.ChallengeHTTP01, "url": r.URL.String(), "token": "tok-s3", "status": status,
			})
		}
	}))
	defer server.Close()

	httpClient, err := transport.NewDefault(transport.Config{})
	require.NoError(t, err)

	requester := jws.New(httpClient, fixedNonces{})
	conf := DefaultConfig()
	conf.RetryInterval = time.Millisecond
	conf.DeauthWait = time.Millisecond
	conf.MaxPending = maxPending
	conf.MaxPoll = 10

	driver := New(requester, "", httpClient, nil, conf)
	identity := jws.Identity{Signer: accountSigner, KID: "https://ca.example/acct/1"}
	auth := challenge.Auth{URL: server.URL + "/chall/s3"}

	err = driver.acceptAndPoll(auth, identity)
	require.NoError(t, err)

	assert.EqualValues(t, 1, deactivateCount, "expected exactly one deactivate POST")
	assert.EqualValues(t, maxPending+2, acceptCount, "expected the initial accept, one re-accept per pending poll up to MaxPending, and the post-deactivate re-accept")
	assert.EqualValues(t, maxPending+2, pollCount, "expected MaxPending pending polls, one more pending poll that triggers deactivation, then one valid poll")
}

// TestDriverCreateSkipsAlreadyValidAuthorization covers spec §4.5 step 6
// pass A and scenario S4: an authorization whose challenges already
// contain a "valid" one is skipped entirely -- no accept POST, no poll --
// yet the driver still proceeds through finalize.
func TestDriverCreateSkipsAlreadyValidAuthorization(t *testing.T) {
	accountSigner, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	domainSigner, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	var mux *http.ServeMux
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mux.ServeHTTP(w, r)
	}))
	defer server.Close()

	var challengeRequests int32
	orderPollCount := int32(0)

	mux = http.NewServeMux()

	mux.HandleFunc("/new-order", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", server.URL+"/order/1")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":         "pending",
			"identifiers":    []map[string]string{{"type": "dns", "value": "example.org"}},
			"authorizations": []string{server.URL + "/authz/1"},
			"finalize":       server.URL + "/finalize/1",
		})
	})

	mux.HandleFunc("/authz/1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":     "valid",
			"identifier": map[string]string{"type": "dns", "value": "example.org"},
			"challenges": []map[string]string{
				{"type": acme.ChallengeHTTP01, "url": server.URL + "/chall/1", "token": "tok-1", "status": "valid"},
			},
		})
	})

	// The challenge URL must never be hit by an accept or a poll once its
	// authorization is already valid.
	mux.HandleFunc("/chall/1", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&challengeRequests, 1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	mux.HandleFunc("/finalize/1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":   "processing",
			"finalize": server.URL + "/finalize/1",
		})
	})

	mux.HandleFunc("/order/1", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&orderPollCount, 1)
		body := map[string]interface{}{
			"status":   "processing",
			"finalize": server.URL + "/finalize/1",
		}
		if n >= 2 {
			body["status"] = "valid"
			body["certificate"] = server.URL + "/cert/1"
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(body)
	})

	mux.HandleFunc("/cert/1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pem-certificate-chain")
		fmt.Fprint(w, leafCertPEM+issuerCertPEM)
	})

	httpClient, err := transport.NewDefault(transport.Config{})
	require.NoError(t, err)

	requester := jws.New(httpClient, fixedNonces{})
	conf := DefaultConfig()
	conf.RetryInterval = 5 * time.Millisecond
	conf.SetChallengeWait = time.Millisecond
	conf.SkipChallengeTest = true

	driver := New(requester, server.URL+"/new-order", httpClient, nil, conf)

	bundle, err := driver.Create(CreateRequest{
		AccountSigner:  accountSigner,
		AccountKID:     "https://ca.example/acct/1",
		DomainSigner:   domainSigner,
		Domains:        []string{"example.org"},
		ChallengeTypes: []string{acme.ChallengeHTTP01},
		SetChallenge: func(auth challenge.Auth) error {
			t.Fatal("setChallenge must not be called for an already-valid authorization")
			return nil
		},
	})
	require.NoError(t, err)

	assert.EqualValues(t, 0, challengeRequests, "an already-valid authorization's challenge URL must never be accepted or polled")
	assert.Equal(t, leafCertPEM, bundle.Cert)
	assert.Equal(t, issuerCertPEM, bundle.Chain)
}

func readAll(r *http.Request) ([]byte, error) {
	buf := make([]byte, 0, 1024)
	chunk := make([]byte, 512)
	for {
		n, err := r.Body.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if err != nil {
			break
		}
	}
	return buf, nil
}
