package wordsale

import (
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// WordKey maps a word to its numeric key: the sum of the word's Unicode code
// points. The transform is deterministic and order-sensitive only in the sense
// that the same word always yields the same key.
func WordKey(word string) uint64 {
	var sum uint64
	for _, r := range word {
		sum += uint64(r)
	}
	return sum
}

// bitPosition computes the Bloom-filter bit index for one (key, hashIndex)
// pair: keccak256 of the two values encoded as 32-byte big-endian words,
// reduced modulo the filter size. hashIndex is domain separation between the
// k hash functions and runs 1..numberOfHashes.
func bitPosition(key uint64, hashIndex uint32, filterSize uint32) uint {
	var buf [64]byte
	new(big.Int).SetUint64(key).FillBytes(buf[:32])
	new(big.Int).SetUint64(uint64(hashIndex)).FillBytes(buf[32:])
	digest := ethcrypto.Keccak256(buf[:])
	pos := new(big.Int).SetBytes(digest)
	pos.Mod(pos, new(big.Int).SetUint64(uint64(filterSize)))
	return uint(pos.Uint64())
}

// Filter accumulates a Bloom-filter commitment over a word set. The filter for
// a set is the bitwise OR of the per-word filters, so insertion order is
// irrelevant and duplicate inserts are idempotent.
type Filter struct {
	bits   *big.Int
	size   uint32
	hashes uint32
}

// NewFilter creates an empty filter of size bits using the given number of
// hash functions.
func NewFilter(size, hashes uint32) *Filter {
	return &Filter{bits: new(big.Int), size: size, hashes: hashes}
}

// Add inserts a word into the filter.
func (f *Filter) Add(word string) {
	f.AddKey(WordKey(word))
}

// AddKey inserts a pre-computed numeric key into the filter.
func (f *Filter) AddKey(key uint64) {
	for i := uint32(1); i <= f.hashes; i++ {
		f.bits.SetBit(f.bits, int(bitPosition(key, i, f.size)), 1)
	}
}

// Contains reports whether every bit the word hashes to is set. This is the
// usual approximate membership test; dispute resolution never uses it, the
// commitment opening is a bit-exact equality check.
func (f *Filter) Contains(word string) bool {
	key := WordKey(word)
	for i := uint32(1); i <= f.hashes; i++ {
		if f.bits.Bit(int(bitPosition(key, i, f.size))) == 0 {
			return false
		}
	}
	return true
}

// Bits returns a copy of the filter's bit vector.
func (f *Filter) Bits() *big.Int {
	return new(big.Int).Set(f.bits)
}

// BuildFilter computes the Bloom-filter commitment for a word set.
func BuildFilter(words []string, hashes, size uint32) *big.Int {
	f := NewFilter(size, hashes)
	for _, w := range words {
		f.Add(w)
	}
	return f.Bits()
}

// fitsFilter reports whether the bit vector has no bits set at or above the
// filter size, i.e. it could have been produced by this sale's codec.
func fitsFilter(bits *big.Int, size uint32) bool {
	if bits == nil || bits.Sign() < 0 {
		return false
	}
	return bits.BitLen() <= int(size)
}
