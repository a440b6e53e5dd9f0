package ids

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChainID_Key(t *testing.T) {
	assert.Equal(t, "123", ChainID(123).Key())
	assert.Equal(t, "0", ChainID(0).Key())
}

func TestNewAggregateID_CaseInsensitive(t *testing.T) {
	lower, err := NewAggregateID(123, "0xabcdef")
	require.NoError(t, err)
	upper, err := NewAggregateID(123, "0xABCDEF")
	require.NoError(t, err)

	assert.Equal(t, lower.Key(), upper.Key())
	assert.Equal(t, "123-0xabcdef", lower.Key())
}

func TestNewAggregateID_PrefixOptional(t *testing.T) {
	for _, addr := range []string{"ab", "AB", "0xab", "0XAB", "0xAb"} {
		id, err := NewAggregateID(1, addr)
		require.NoError(t, err)
		assert.Equal(t, "1-0xab", id.Key(), "address %q", addr)
	}
}

func TestNewAggregateID_DistinctChains(t *testing.T) {
	a := MustAggregateID(1, "0xab")
	b := MustAggregateID(2, "0xab")
	assert.NotEqual(t, a.Key(), b.Key())
}

func TestNewAggregateID_Malformed(t *testing.T) {
	for _, addr := range []string{"", "0x", "0xzz", "ab-cd", "0xab cd"} {
		_, err := NewAggregateID(1, addr)
		assert.ErrorIs(t, err, ErrMalformedAddress, "address %q", addr)
	}
}

func TestAggregateID_WithQualifier(t *testing.T) {
	base := MustAggregateID(10, "0xAA")

	q, err := base.WithQualifier("0xBEEF")
	require.NoError(t, err)
	assert.Equal(t, "10-0xaa-0xbeef", q.Key())
	assert.Equal(t, "10-0xaa", base.Key(), "base id must not change")

	bare, err := base.WithQualifier("BEEF")
	require.NoError(t, err)
	assert.Equal(t, q.Key(), bare.Key())

	_, err = base.WithQualifier("not-hex")
	assert.ErrorIs(t, err, ErrMalformedAddress)
}

func TestVersionID(t *testing.T) {
	agg := MustAggregateID(123, "0xAB")
	assert.Equal(t, "123-0xab-0", VersionID(agg.Key(), 0))
	assert.Equal(t, "123-0xab-12", VersionID(agg.Key(), 12))
	assert.NotEqual(t, VersionID(agg.Key(), 1), VersionID(agg.Key(), 11))
}

func TestNewTransactionID(t *testing.T) {
	id, err := NewTransactionID(7, "0xDEADbeef")
	require.NoError(t, err)
	assert.Equal(t, "7-0xdeadbeef", id.Key())
	assert.Equal(t, id.Key(), id.String())

	bare, err := NewTransactionID(7, "DEADBEEF")
	require.NoError(t, err)
	assert.Equal(t, id, bare)

	_, err = NewTransactionID(7, "")
	assert.ErrorIs(t, err, ErrMalformedTxHash)
}

func TestKeysDeterministic(t *testing.T) {
	for i := 0; i < 10; i++ {
		assert.Equal(t, "5-0x01", MustAggregateID(5, "0x01").Key())
	}
}
