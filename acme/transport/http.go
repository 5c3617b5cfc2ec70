// Package transport defines the engine's external transport contracts
// (spec §6: Transport contract, DNS contract) and a default HTTP/DNS
// implementation for callers that don't want to inject their own.
//
// Grounded on the teacher's net/acme.go ACMENet client: same User-Agent
// convention, same reliance on a single *http.Client with a configurable
// CA bundle. Generalized into an interface so the engine core can be unit
// tested against a fake transport per spec §6 ("HTTP transport —
// injected; need only the ability to perform GET/HEAD/POST with headers
// and return body+status+headers").
package transport

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"
)

func readFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

const (
	version       = "1.0.0"
	userAgentBase = "go-acmeclient-engine"
	locale        = "en-us"
)

// Response is the transport-agnostic result of an HTTP request. Header
// keys are in net/http's canonical MIME form (e.g. "Replay-Nonce", via
// textproto.CanonicalMIMEHeaderKey), not lower case; callers should use
// Headers.Get or Header for case-insensitive lookup.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Header is a convenience accessor matching the spec's "headers
// (lowercased)" framing; http.Header.Get already does case-insensitive
// lookup, so this just documents the contract.
func (r *Response) Header(name string) string {
	return r.Headers.Get(name)
}

// HTTP is the Transport contract from spec §6: perform GET/HEAD/POST with
// headers and return body+status+headers.
type HTTP interface {
	Get(url string) (*Response, error)
	Head(url string) (*Response, error)
	Post(url string, contentType string, body []byte) (*Response, error)
}

// Config controls the default HTTP transport.
type Config struct {
	// CABundlePath is an optional file path to PEM encoded CA certificates
	// to trust in addition to (not instead of) the system roots. Empty
	// means use the system roots exactly as configured.
	CABundlePath string
}

// defaultHTTP is the engine's optional fallback transport (spec
// component table: "Default HTTP adapter").
type defaultHTTP struct {
	client *http.Client
}

// NewDefault builds the engine's default HTTP transport.
func NewDefault(conf Config) (HTTP, error) {
	client := &http.Client{}

	if conf.CABundlePath != "" {
		pemBundle, err := readFile(conf.CABundlePath)
		if err != nil {
			return nil, fmt.Errorf("transport: reading CA bundle: %w", err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pemBundle) {
			return nil, fmt.Errorf("transport: no certificates parsed from %q", conf.CABundlePath)
		}
		client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{RootCAs: pool},
		}
	}

	return &defaultHTTP{client: client}, nil
}

func (t *defaultHTTP) userAgent() string {
	return fmt.Sprintf("%s/%s (%s; %s)", userAgentBase, version, runtime.GOOS, runtime.GOARCH)
}

func (t *defaultHTTP) do(req *http.Request) (*Response, error) {
	req.Header.Set("User-Agent", t.userAgent())
	req.Header.Set("Accept-Language", locale)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
	}, nil
}

func (t *defaultHTTP) Get(url string) (*Response, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return t.do(req)
}

func (t *defaultHTTP) Head(url string) (*Response, error) {
	req, err := http.NewRequest(http.MethodHead, url, nil)
	if err != nil {
		return nil, err
	}
	return t.do(req)
}

func (t *defaultHTTP) Post(url string, contentType string, body []byte) (*Response, error) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return t.do(req)
}
