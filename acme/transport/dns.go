package transport

import (
	"fmt"
	"strings"

	"github.com/miekg/dns"
)

// TXTRecord is one answer RRset's worth of TXT strings, matching the
// spec §6 DNS contract shape: `{ data: [string, ...] }`.
type TXTRecord struct {
	Data []string
}

// DNSResult is the outcome of a TXT lookup (spec §6 DNS contract):
// `dig({ type: "TXT", name }) -> { answer: [{ data: [...] }, ...] }`.
type DNSResult struct {
	Answer []TXTRecord
}

// DNS is the engine's DNS contract: TXT lookup, injected so the dns-01
// self-test (spec §4.4) can be driven against a test resolver.
type DNS interface {
	LookupTXT(name string) (*DNSResult, error)
}

// defaultDNS resolves TXT records with miekg/dns against a configured
// recursive resolver, defaulting to the system's.
//
// Grounded on github.com/miekg/dns, already present (indirectly, via
// letsencrypt/challtestsrv) in the teacher's dependency graph and the
// idiomatic Go DNS client library; promoted to a direct dependency here
// because the self-test component genuinely needs to issue TXT queries
// (spec §4.4 step 5, dns-01 branch).
type defaultDNS struct {
	client *dns.Client
	server string
}

// NewDefaultDNS builds a DNS resolver that queries server (host:port, e.g.
// "127.0.0.1:8053" for a local test resolver, or "" to use the first
// nameserver in the system's resolv.conf).
func NewDefaultDNS(server string) (DNS, error) {
	resolved := strings.TrimSpace(server)
	if resolved == "" {
		conf, err := dns.ClientConfigFromFile("/etc/resolv.conf")
		if err != nil || conf == nil || len(conf.Servers) == 0 {
			return nil, fmt.Errorf("transport: no DNS server configured and none found in /etc/resolv.conf")
		}
		resolved = conf.Servers[0] + ":" + conf.Port
	}

	return &defaultDNS{
		client: &dns.Client{},
		server: resolved,
	}, nil
}

func (d *defaultDNS) LookupTXT(name string) (*DNSResult, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), dns.TypeTXT)
	msg.RecursionDesired = true

	resp, _, err := d.client.Exchange(msg, d.server)
	if err != nil {
		return nil, fmt.Errorf("transport: TXT lookup for %q: %w", name, err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("transport: TXT lookup for %q: server returned %s", name, dns.RcodeToString[resp.Rcode])
	}

	result := &DNSResult{}
	for _, rr := range resp.Answer {
		if txt, ok := rr.(*dns.TXT); ok {
			result.Answer = append(result.Answer, TXTRecord{Data: txt.Txt})
		}
	}
	return result, nil
}
