// Package directory loads and caches the ACME directory resource (spec
// §4.2 part 1): GET the directory URL once, cache newNonce, newAccount,
// newOrder, and meta.termsOfService.
//
// Grounded on the teacher's acme/client/directory.go, which re-fetches the
// directory lazily through Directory()/UpdateDirectory(); this module's
// driver only ever needs one directory per engine lifetime (spec §3:
// "Fetched once at init; immutable thereafter"), so Load is a one-shot
// constructor rather than a cached-getter pair.
package directory

import (
	"encoding/json"
	"fmt"

	"github.com/go-acmeclient/engine/acme"
	"github.com/go-acmeclient/engine/acme/transport"
)

// Directory is the immutable set of endpoint URLs and metadata the engine
// needs from the ACME server (spec §3 DirectoryUrls).
type Directory struct {
	NewNonce   string
	NewAccount string
	NewOrder   string
	KeyChange  string

	Meta struct {
		TermsOfService string
	}

	raw map[string]interface{}
}

type wireDirectory struct {
	NewNonce   string `json:"newNonce"`
	NewAccount string `json:"newAccount"`
	NewOrder   string `json:"newOrder"`
	KeyChange  string `json:"keyChange"`
	Meta       struct {
		TermsOfService string `json:"termsOfService"`
	} `json:"meta"`
}

// Load fetches and parses the directory resource at url.
func Load(t transport.HTTP, url string) (*Directory, error) {
	resp, err := t.Get(url)
	if err != nil {
		return nil, fmt.Errorf("directory: GET %q: %w", url, err)
	}
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("directory: GET %q returned status %d", url, resp.StatusCode)
	}

	var wire wireDirectory
	if err := json.Unmarshal(resp.Body, &wire); err != nil {
		return nil, fmt.Errorf("directory: parsing response from %q: %w", url, err)
	}

	var raw map[string]interface{}
	_ = json.Unmarshal(resp.Body, &raw)

	if wire.NewNonce == "" || wire.NewAccount == "" || wire.NewOrder == "" {
		return nil, fmt.Errorf("directory: %q missing one of newNonce/newAccount/newOrder", url)
	}

	dir := &Directory{
		NewNonce:   wire.NewNonce,
		NewAccount: wire.NewAccount,
		NewOrder:   wire.NewOrder,
		KeyChange:  wire.KeyChange,
		raw:        raw,
	}
	dir.Meta.TermsOfService = wire.Meta.TermsOfService
	return dir, nil
}

// FromMap builds a Directory from an already-loaded directory object,
// matching spec §4.2's "if given an already-loaded directory object, use
// as-is" branch of init().
func FromMap(raw map[string]interface{}) (*Directory, error) {
	body, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("directory: re-marshaling provided object: %w", err)
	}
	var wire wireDirectory
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("directory: parsing provided object: %w", err)
	}
	dir := &Directory{
		NewNonce:   wire.NewNonce,
		NewAccount: wire.NewAccount,
		NewOrder:   wire.NewOrder,
		KeyChange:  wire.KeyChange,
		raw:        raw,
	}
	dir.Meta.TermsOfService = wire.Meta.TermsOfService
	return dir, nil
}

// NonceFetcher adapts a Directory + transport into a nonce.Fetcher (HEAD
// newNonce, read Replay-Nonce), satisfying nonce.Fetcher without the
// nonce package needing to know about HTTP or directories.
type NonceFetcher struct {
	Transport transport.HTTP
	Directory *Directory
}

func (f *NonceFetcher) FetchNonce() (string, error) {
	resp, err := f.Transport.Head(f.Directory.NewNonce)
	if err != nil {
		return "", fmt.Errorf("directory: HEAD %q: %w", f.Directory.NewNonce, err)
	}
	if resp.StatusCode != 200 {
		return "", fmt.Errorf("directory: HEAD %q returned status %d", f.Directory.NewNonce, resp.StatusCode)
	}
	value := resp.Header(acme.REPLAY_NONCE_HEADER)
	if value == "" {
		return "", fmt.Errorf("directory: HEAD %q returned no %s header", f.Directory.NewNonce, acme.REPLAY_NONCE_HEADER)
	}
	return value, nil
}
