package resources

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProblemErrorIncludesTypeAndDetail(t *testing.T) {
	p := Problem{Type: "urn:ietf:params:acme:error:malformed", Detail: "invalid CSR", Status: 400}
	assert.Equal(t, "urn:ietf:params:acme:error:malformed: invalid CSR (status 400)", p.Error())
}

func TestProblemErrorFallsBackWhenEmpty(t *testing.T) {
	p := Problem{Status: 500}
	assert.Equal(t, "acme problem (status 500)", p.Error())
}

func TestProblemCarriesSubproblems(t *testing.T) {
	p := Problem{
		Type: "urn:ietf:params:acme:error:compound",
		Subproblems: []Problem{
			{Type: "urn:ietf:params:acme:error:dns", Detail: "no such domain", Status: 400},
		},
	}
	require.Len(t, p.Subproblems, 1)
	assert.Equal(t, "no such domain", p.Subproblems[0].Detail)
}
