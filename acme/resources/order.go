package resources

// Order represents a collection of identifiers that an account wishes to
// create a Certificate for.
//
// See https://tools.ietf.org/html/rfc8555#section-7.1.3 and, for the
// Status vocabulary, https://tools.ietf.org/html/rfc8555#section-7.1.6.
type Order struct {
	// OrderURL is the server-assigned order URL, captured by the engine
	// from the newOrder response's Location header (spec §3 Order,
	// "client-held additionally: orderUrl"). Not part of the JSON wire
	// format.
	OrderURL string `json:"-"`
	// Status is one of pending, ready, processing, valid, invalid.
	Status string `json:"status"`
	// Expires is an RFC 3339 timestamp for when the order is considered
	// expired by the server.
	Expires string `json:"expires,omitempty"`
	// Identifiers are the names the order wishes to finalize a
	// Certificate for.
	Identifiers []Identifier `json:"identifiers"`
	// Authorizations lists the URLs of Authorization resources the
	// server created for the order's identifiers.
	Authorizations []string `json:"authorizations"`
	// Finalize is the URL used to finalize the order with a CSR once the
	// order reaches status "ready".
	Finalize string `json:"finalize"`
	// Certificate is the URL used to fetch the issued certificate chain
	// once the order reaches status "valid".
	Certificate string `json:"certificate,omitempty"`
	// Error carries the server's problem document when Status is
	// "invalid".
	Error *Problem `json:"error,omitempty"`
}

// CertBundle is the artifact returned once an order has been finalized
// and the certificate fetched and split (spec §3 CertBundle, §4.6).
type CertBundle struct {
	Expires     string
	Identifiers []Identifier
	Cert        string
	Chain       string
}
