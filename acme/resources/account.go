package resources

// Account is the server-side ACME Account resource as returned by
// newAccount (spec §3 AccountKey / §4.2). Unlike the teacher's
// resources.Account, this type carries no private key material and no
// on-disk persistence: spec.md's non-goals explicitly exclude
// certbot-style persistent account state, so the engine's account key is
// tracked separately (see package account) and this struct is purely the
// server's wire representation, parsed from the newAccount response.
//
// See https://tools.ietf.org/html/rfc8555#section-7.1.2
type Account struct {
	// Status is the account's status, e.g. "valid", "deactivated",
	// "revoked".
	Status string `json:"status,omitempty"`
	// Contact is the account's mailto contact addresses.
	Contact []string `json:"contact,omitempty"`
	// TermsOfServiceAgreed mirrors what was sent at registration time.
	TermsOfServiceAgreed bool `json:"termsOfServiceAgreed,omitempty"`
	// Orders is a URL for the account's orders collection, when the
	// server advertises one.
	Orders string `json:"orders,omitempty"`
}

// EmptyAccountResponse synthesizes a minimal Account value for servers
// that return a 201 with no response body on newAccount (permitted by
// RFC 8555 §7.3), so callers always get a non-nil Account. The value is
// Account{Status: "valid"}: it carries no kid and no marker that the
// response body was empty; the kid is held only in account.Key.KID.
func EmptyAccountResponse() Account {
	return Account{Status: "valid"}
}
