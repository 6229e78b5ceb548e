package normalization

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type policy string

const (
	policyFatal policy = "fatal"
	policyWarn  policy = "warn"
)

func newPolicyNormalizer() *Normalizer[policy] {
	return NewNormalizer("reference policy", map[string]policy{
		"fatal":   policyFatal,
		"warn":    policyWarn,
		"warning": policyWarn,
	}, policyFatal)
}

func TestNormalizer_Normalize(t *testing.T) {
	n := newPolicyNormalizer()
	tests := []struct {
		in   string
		want policy
	}{
		{"fatal", policyFatal},
		{"  WARN ", policyWarn},
		{"Warning", policyWarn},
		{"", policyFatal},
		{"nonsense", policyFatal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, n.Normalize(tt.in), tt.in)
	}
}

func TestNormalizer_NormalizeWithError(t *testing.T) {
	n := newPolicyNormalizer()

	v, err := n.NormalizeWithError("WARN")
	require.NoError(t, err)
	assert.Equal(t, policyWarn, v)

	v, err = n.NormalizeWithError("")
	require.NoError(t, err)
	assert.Equal(t, policyFatal, v)

	_, err = n.NormalizeWithError("loud")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid reference policy")
	assert.Contains(t, err.Error(), "[fatal warn warning]")
}

func TestNormalizer_UnderscoreFolding(t *testing.T) {
	n := NewNormalizer("mode", map[string]string{"line-numbers": "ln"}, "")
	assert.Equal(t, "ln", n.Normalize("LINE_NUMBERS"))
	assert.Equal(t, []string{"line-numbers"}, n.ValidKeys())
}
