// Package pemutil normalizes and splits PEM certificate chains (spec
// §4.6).
//
// Grounded on the teacher's shell/getCert.go, which fetches the raw PEM
// chain body and writes/prints it verbatim; this module needs to split
// the leaf away from the intermediate chain, which the teacher's
// interactive command never had to do.
package pemutil

import (
	"regexp"
	"strings"
)

var crlf = regexp.MustCompile(`\r\n?`)
var newlineRun = regexp.MustCompile(`[\r\n]+`)
var blockBoundary = regexp.MustCompile(`-\n-`)
var blankRun = regexp.MustCompile(`\n{2,}`)

// FormatChain collapses CRLF/LF runs to a single "\n", inserts a blank
// line between certificates that abut without one, and ensures a single
// trailing newline.
func FormatChain(s string) string {
	normalized := newlineRun.ReplaceAllString(s, "\n")
	normalized = blockBoundary.ReplaceAllString(normalized, "-\n\n-")
	normalized = strings.TrimRight(normalized, "\n") + "\n"
	return normalized
}

// SplitChain splits a multi-certificate PEM chain into its individual PEM
// blocks, each with exactly one trailing newline. The first returned
// block is the leaf certificate; the rest (if any) form the issuer
// chain, per spec §3 CertBundle / §4.6.
func SplitChain(s string) []string {
	trimmed := strings.TrimSpace(crlf.ReplaceAllString(s, "\n"))
	if trimmed == "" {
		return nil
	}

	parts := blankRun.Split(trimmed, -1)
	blocks := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		blocks = append(blocks, p+"\n")
	}
	return blocks
}

// SplitLeafAndChain is a convenience wrapper over SplitChain returning the
// leaf certificate and the joined intermediate chain separately, matching
// the CertBundle shape of spec §3.
func SplitLeafAndChain(s string) (leaf string, chain string) {
	blocks := SplitChain(s)
	if len(blocks) == 0 {
		return "", ""
	}
	leaf = blocks[0]
	if len(blocks) > 1 {
		chain = strings.Join(blocks[1:], "")
	}
	return leaf, chain
}
