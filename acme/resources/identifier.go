// Package resources provides the ACME protocol data model: the wire
// shapes exchanged with the directory, plus the client-side CertBundle
// the engine builds from them. The derived Auth type lives in package
// challenge.
//
// Grounded on the teacher's acme/resources package, extended with the
// fields spec.md's data model section (§3) names that the teacher's
// interactive-shell use case never needed (Problem.Subproblems, Order
// expiry/finalize polling fields, CertBundle).
package resources

// Identifier represents a subject identifier that can be included in
// a certificate.
//
// See https://tools.ietf.org/html/rfc8555#section-7.5 and
// https://tools.ietf.org/html/rfc8555#section-9.7.7.
//
// A DNS type identifier used in a newOrder request is allowed to carry
// a wildcard prefix (e.g. "*.example.org"). A DNS type identifier
// appearing in an Authorization resource is never wildcard-prefixed;
// instead the Authorization's Wildcard field is set and the identifier
// value is the bare domain.
type Identifier struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}
