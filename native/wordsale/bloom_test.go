package wordsale

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWordKeySumsCodePoints(t *testing.T) {
	require.Equal(t, uint64(0), WordKey(""))
	require.Equal(t, uint64('a'), WordKey("a"))
	require.Equal(t, uint64('a'+'b'+'c'), WordKey("abc"))
	// Words sharing a first character still derive distinct keys.
	require.NotEqual(t, WordKey("hey"), WordKey("hello"))
	// Multi-byte runes count as code points, not bytes.
	require.Equal(t, uint64('é'), WordKey("é"))
}

func TestBuildFilterDeterministic(t *testing.T) {
	words := []string{"i", "dont", "know"}
	a := BuildFilter(words, 3, 256)
	b := BuildFilter(words, 3, 256)
	require.Zero(t, a.Cmp(b), "repeated computation must be identical")
	require.True(t, a.Sign() > 0)
	require.LessOrEqual(t, a.BitLen(), 256)
}

func TestBuildFilterOrderAndDuplicates(t *testing.T) {
	base := BuildFilter([]string{"alpha", "beta", "gamma"}, 3, 256)
	shuffled := BuildFilter([]string{"gamma", "alpha", "beta"}, 3, 256)
	duplicated := BuildFilter([]string{"alpha", "alpha", "beta", "gamma", "beta"}, 3, 256)
	require.Zero(t, base.Cmp(shuffled))
	require.Zero(t, base.Cmp(duplicated))
}

func TestBuildFilterDistinguishesSets(t *testing.T) {
	committed := BuildFilter([]string{"i", "dont", "know"}, 3, 256)
	padded := BuildFilter([]string{"i", "dont", "know", "wrong", "words"}, 3, 256)
	require.NotZero(t, committed.Cmp(padded))
}

func TestFilterContains(t *testing.T) {
	f := NewFilter(256, 3)
	f.Add("hello")
	f.Add("world")
	require.True(t, f.Contains("hello"))
	require.True(t, f.Contains("world"))
	require.False(t, f.Contains("absent-from-the-set"))
}

func TestFilterBitsIsACopy(t *testing.T) {
	f := NewFilter(256, 3)
	f.Add("hello")
	bits := f.Bits()
	bits.SetInt64(0)
	require.True(t, f.Contains("hello"))
}

func TestFilterSetsAtMostHashesBitsPerWord(t *testing.T) {
	f := NewFilter(256, 3)
	f.Add("solo")
	count := 0
	bits := f.Bits()
	for i := 0; i < 256; i++ {
		if bits.Bit(i) == 1 {
			count++
		}
	}
	require.GreaterOrEqual(t, count, 1)
	require.LessOrEqual(t, count, 3)
}

func TestFitsFilter(t *testing.T) {
	require.True(t, fitsFilter(big.NewInt(0), 256))
	require.True(t, fitsFilter(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1)), 256))
	require.False(t, fitsFilter(new(big.Int).Lsh(big.NewInt(1), 256), 256))
	require.False(t, fitsFilter(big.NewInt(-1), 256))
	require.False(t, fitsFilter(nil, 256))
}

func TestSmallFilterPositionsInRange(t *testing.T) {
	f := NewFilter(8, 5)
	f.Add("anything")
	require.LessOrEqual(t, f.Bits().BitLen(), 8)
}
