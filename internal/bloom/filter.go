// Package bloom implements a bloom filter used as a membership
// prefilter over crosswalk identity sets. A negative answer is
// definite; a positive answer needs confirmation against the exact
// set.
package bloom

import (
	"math"

	"github.com/spaolacci/murmur3"
)

// Filter is a standard bloom filter with double hashing.
type Filter struct {
	bits    []uint64
	numBits uint64
	numHash uint64
}

// New creates a filter with the given bit and hash function counts.
func New(numBits, numHash uint64) *Filter {
	if numBits == 0 {
		numBits = 64
	}
	if numHash == 0 {
		numHash = 1
	}
	return &Filter{
		bits:    make([]uint64, (numBits+63)/64),
		numBits: numBits,
		numHash: numHash,
	}
}

// NewWithEstimates creates a filter sized for the expected number of
// items at the target false positive rate.
func NewWithEstimates(expectedItems uint64, falsePositiveRate float64) *Filter {
	m, k := OptimalParameters(expectedItems, falsePositiveRate)
	return New(m, k)
}

// OptimalParameters computes the optimal bit count and hash count for
// the expected item count and false positive rate.
func OptimalParameters(expectedItems uint64, falsePositiveRate float64) (numBits, numHash uint64) {
	if expectedItems == 0 {
		expectedItems = 1
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		falsePositiveRate = 0.01
	}
	n := float64(expectedItems)
	m := -n * math.Log(falsePositiveRate) / (math.Ln2 * math.Ln2)
	k := (m / n) * math.Ln2
	numBits = uint64(math.Ceil(m))
	numHash = uint64(math.Round(k))
	if numHash == 0 {
		numHash = 1
	}
	return numBits, numHash
}

// Add inserts a key into the filter.
func (f *Filter) Add(key []byte) {
	h1, h2 := murmur3.Sum128(key)
	for i := uint64(0); i < f.numHash; i++ {
		pos := (h1 + i*h2) % f.numBits
		f.bits[pos/64] |= 1 << (pos % 64)
	}
}

// AddString inserts a string key.
func (f *Filter) AddString(key string) {
	f.Add([]byte(key))
}

// Contains reports whether the key may be in the filter. False means
// definitely absent.
func (f *Filter) Contains(key []byte) bool {
	h1, h2 := murmur3.Sum128(key)
	for i := uint64(0); i < f.numHash; i++ {
		pos := (h1 + i*h2) % f.numBits
		if f.bits[pos/64]&(1<<(pos%64)) == 0 {
			return false
		}
	}
	return true
}

// ContainsString reports whether the string key may be in the filter.
func (f *Filter) ContainsString(key string) bool {
	return f.Contains([]byte(key))
}
