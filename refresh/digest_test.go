package refresh

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSumMatches(t *testing.T) {
	d := Sum("token-a")
	assert.True(t, d.Matches("token-a"))
	assert.False(t, d.Matches("token-b"))
	assert.False(t, d.Matches(""))
}

func TestZeroDigestMatchesNothing(t *testing.T) {
	var d Digest
	assert.True(t, d.IsZero())
	assert.False(t, d.Matches(""))
	assert.False(t, d.Matches("anything"))
}

func TestParseDigestRoundTrip(t *testing.T) {
	d := Sum("token-a")
	parsed, err := ParseDigest(d.String())
	require.NoError(t, err)
	assert.True(t, d.Equal(parsed))

	fromBytes, err := DigestFromBytes(d.Bytes())
	require.NoError(t, err)
	assert.True(t, d.Equal(fromBytes))
}

func TestParseDigestRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "zz", "abcd"} {
		_, err := ParseDigest(in)
		assert.ErrorIs(t, err, ErrInvalidDigest, in)
	}
	_, err := DigestFromBytes([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidDigest)
}
