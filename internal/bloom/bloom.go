// Package bloom provides the probabilistic id set the ingestion pipeline
// uses to skip duplicate lookups for ids it has never seen.
package bloom

import (
	"math"
	"sync"

	"github.com/spaolacci/murmur3"
)

// Filter answers "definitely absent" or "maybe present" for event ids.
// It never reports a false negative: an added id always tests present.
//
// Thread-safety: All methods are safe for concurrent use.
type Filter struct {
	mu     sync.RWMutex
	words  []uint64
	nbits  uint64
	hashes uint64
	count  uint64
}

// New creates a filter with at least numBits bits and numHashes probes.
// Non-positive arguments fall back to 1024 bits and 7 probes.
func New(numBits, numHashes int) *Filter {
	if numBits <= 0 {
		numBits = 1024
	}
	if numHashes <= 0 {
		numHashes = 7
	}
	words := (numBits + 63) / 64
	return &Filter{
		words:  make([]uint64, words),
		nbits:  uint64(words) * 64,
		hashes: uint64(numHashes),
	}
}

// NewWithEstimates sizes a filter for expected ids at false positive rate fpr.
func NewWithEstimates(expected int, fpr float64) *Filter {
	return New(OptimalParameters(expected, fpr))
}

// OptimalParameters returns the bit and probe counts for expected items at
// false positive rate fpr:
//
//	m = -n ln(p) / ln(2)^2
//	k = (m/n) ln(2)
func OptimalParameters(expected int, fpr float64) (numBits, numHashes int) {
	if expected <= 0 {
		expected = 1000
	}
	if fpr <= 0 || fpr >= 1 {
		fpr = 0.01
	}
	n := float64(expected)
	m := -n * math.Log(fpr) / (math.Ln2 * math.Ln2)
	numBits = max(int(math.Ceil(m)), 64)
	numHashes = max(int(math.Ceil(m/n*math.Ln2)), 1)
	return numBits, numHashes
}

// Add records id.
func (f *Filter) Add(id [32]byte) {
	h1, h2 := murmur3.Sum128(id[:])

	f.mu.Lock()
	defer f.mu.Unlock()
	for i := uint64(0); i < f.hashes; i++ {
		pos := (h1 + i*h2) % f.nbits
		f.words[pos/64] |= 1 << (pos % 64)
	}
	f.count++
}

// MayContain reports false only when id was never added.
func (f *Filter) MayContain(id [32]byte) bool {
	h1, h2 := murmur3.Sum128(id[:])

	f.mu.RLock()
	defer f.mu.RUnlock()
	for i := uint64(0); i < f.hashes; i++ {
		pos := (h1 + i*h2) % f.nbits
		if f.words[pos/64]&(1<<(pos%64)) == 0 {
			return false
		}
	}
	return true
}

// NumBits returns the size of the bit array.
func (f *Filter) NumBits() int { return int(f.nbits) }

// NumHashes returns the number of probes per id.
func (f *Filter) NumHashes() int { return int(f.hashes) }

// Count returns the number of Add calls.
func (f *Filter) Count() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.count
}

// FalsePositiveRate estimates the current false positive rate from the
// fill level: (1 - e^(-kn/m))^k.
func (f *Filter) FalsePositiveRate() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.count == 0 {
		return 0
	}
	k := float64(f.hashes)
	n := float64(f.count)
	m := float64(f.nbits)
	return math.Pow(1-math.Exp(-k*n/m), k)
}
