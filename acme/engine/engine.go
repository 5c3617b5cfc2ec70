// Package engine wires the directory loader, nonce cache, JWS layer,
// account registration, and order driver into the single entry point spec
// §4.5 calls certificates.create.
//
// Grounded on the teacher's acme/client/client.go NewClient(), which wires
// the same collaborators (net.ACMENet, directory, nonce, an active
// account) behind one constructor for a human-driven shell session; this
// package performs the equivalent wiring for one unattended certificate
// issuance run. Per the spec's Design Notes ("push legacy callback-arity
// shimming to a separate adapter — do not propagate arity sniffing into
// the core"), Engine accepts exactly the SetChallengeFunc/
// RemoveChallengeFunc shapes challenge.Run and order.Driver already use;
// any compatibility shimming for callers with older callback signatures
// belongs in a wrapper outside this package, not here.
package engine

import (
	"crypto"
	"fmt"
	"log"

	"github.com/go-acmeclient/engine/acme/account"
	"github.com/go-acmeclient/engine/acme/challenge"
	"github.com/go-acmeclient/engine/acme/directory"
	"github.com/go-acmeclient/engine/acme/jws"
	"github.com/go-acmeclient/engine/acme/nonce"
	"github.com/go-acmeclient/engine/acme/order"
	"github.com/go-acmeclient/engine/acme/resources"
	"github.com/go-acmeclient/engine/acme/transport"
)

// Config is the engine's full set of construction-time options (spec §6).
type Config struct {
	// DirectoryURL is the ACME server's directory endpoint. Required
	// unless Directory is set.
	DirectoryURL string
	// Directory, if non-nil, is used as-is instead of fetching
	// DirectoryURL (spec §4.2 "if given an already-loaded directory
	// object, use as-is").
	Directory map[string]interface{}

	// AccountSigner is the account's private key. Required.
	AccountSigner crypto.Signer
	AgreeToTerms  account.AgreeToTermsFunc
	Contact       []string
	ExternalAccount *account.ExternalAccount

	// HTTP overrides the default HTTP transport; CABundlePath configures
	// the default when HTTP is nil.
	HTTP         transport.HTTP
	CABundlePath string

	// DNS overrides the default TXT resolver; DNSServer configures the
	// default when DNS is nil (empty means use the system resolver).
	DNS       transport.DNS
	DNSServer string

	// Order carries the §4.5 polling/retry tuning. Zero value resolves to
	// order.DefaultConfig().
	Order order.Config

	// Debug gates verbose logging, mirroring the teacher's
	// OutputOptions-gated c.Printf (spec §6 debug option).
	Debug bool
}

func (c *Config) normalize() error {
	if c.DirectoryURL == "" && c.Directory == nil {
		return fmt.Errorf("engine: Config.DirectoryURL or Config.Directory is required")
	}
	if c.AccountSigner == nil {
		return fmt.Errorf("engine: Config.AccountSigner is required")
	}
	return nil
}

// Engine is the fully wired ACME client: a loaded directory, a shared
// nonce cache, a signed request layer, a registered account, and an order
// driver, ready to issue certificates (spec §4.5 certificates.create).
type Engine struct {
	conf      Config
	dir       *directory.Directory
	requester *jws.Requester
	driver    *order.Driver
	accountKey account.Key
}

// New loads the directory, registers (or resolves) the account, and
// builds the order driver. This is the one-shot equivalent of the
// teacher's NewClient auto-register flow.
func New(conf Config) (*Engine, error) {
	if err := conf.normalize(); err != nil {
		return nil, err
	}

	httpClient := conf.HTTP
	if httpClient == nil {
		var err error
		httpClient, err = transport.NewDefault(transport.Config{CABundlePath: conf.CABundlePath})
		if err != nil {
			return nil, fmt.Errorf("engine: building default HTTP transport: %w", err)
		}
	}

	dnsResolver := conf.DNS
	if dnsResolver == nil {
		var err error
		dnsResolver, err = transport.NewDefaultDNS(conf.DNSServer)
		if err != nil {
			return nil, fmt.Errorf("engine: building default DNS resolver: %w", err)
		}
	}

	var dir *directory.Directory
	var err error
	if conf.Directory != nil {
		dir, err = directory.FromMap(conf.Directory)
	} else {
		dir, err = directory.Load(httpClient, conf.DirectoryURL)
	}
	if err != nil {
		return nil, err
	}
	if conf.Debug {
		log.Printf("engine: loaded directory: newAccount=%s newOrder=%s", dir.NewAccount, dir.NewOrder)
	}

	fetcher := &directory.NonceFetcher{Transport: httpClient, Directory: dir}
	nonceCache := nonce.New(fetcher)
	requester := jws.New(httpClient, nonceCache)

	accountKey := account.Key{Signer: conf.AccountSigner}
	acct, err := account.CreateOrLoad(requester, dir.NewAccount, dir.Meta.TermsOfService, account.Request{
		Key:             &accountKey,
		AgreeToTerms:    conf.AgreeToTerms,
		Contact:         conf.Contact,
		ExternalAccount: conf.ExternalAccount,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: registering account: %w", err)
	}
	if conf.Debug {
		log.Printf("engine: account ready: kid=%s status=%s", accountKey.KID, acct.Status)
	}

	orderConfig := conf.Order
	driver := order.New(requester, dir.NewOrder, httpClient, dnsResolver, orderConfig)

	return &Engine{
		conf:       conf,
		dir:        dir,
		requester:  requester,
		driver:     driver,
		accountKey: accountKey,
	}, nil
}

// AccountKID returns the server-assigned account URL established by New.
func (e *Engine) AccountKID() string {
	return e.accountKey.KID
}

// IssueRequest bundles the per-certificate inputs to IssueCertificate; the
// account key, directory, and transports are already bound into the
// Engine.
type IssueRequest struct {
	DomainSigner    crypto.Signer
	Domains         []string
	Subject         string
	ChallengeTypes  []string
	SetChallenge    challenge.SetChallengeFunc
	RemoveChallenge challenge.RemoveChallengeFunc
}

// IssueCertificate runs the order + authorization + finalize flow for one
// certificate (spec §4.5 certificates.create), reusing this Engine's
// already-registered account.
func (e *Engine) IssueCertificate(req IssueRequest) (*resources.CertBundle, error) {
	if e.conf.Debug {
		log.Printf("engine: issuing certificate for %v (subject %q)", req.Domains, req.Subject)
	}

	bundle, err := e.driver.Create(order.CreateRequest{
		AccountSigner:   e.accountKey.Signer,
		AccountKID:      e.accountKey.KID,
		DomainSigner:    req.DomainSigner,
		Domains:         req.Domains,
		Subject:         req.Subject,
		ChallengeTypes:  req.ChallengeTypes,
		SetChallenge:    req.SetChallenge,
		RemoveChallenge: req.RemoveChallenge,
	})
	if err != nil {
		return nil, err
	}

	if e.conf.Debug {
		log.Printf("engine: issued certificate for %v, expires %s", req.Domains, bundle.Expires)
	}
	return bundle, nil
}
