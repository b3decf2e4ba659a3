package game

import (
	"encoding/binary"

	"golang.org/x/crypto/chacha20"
	"lukechampine.com/blake3"
)

// Domain-separation tags for seed derivation. The mix32 tag matches the
// historical value baked into recorded games; changing it reshuffles every
// seeded deal.
const (
	mixTagDeal   = "nommie/test/mix32/v1"
	mixTagMemory = "nommie/ai/memory/v1"
)

// Mix32 derives a 32-byte seed from a 64-bit master seed and a deal index
// using a domain-separated blake3 hash.
func Mix32(masterSeed, dealIndex uint64) [32]byte {
	h := blake3.New(32, nil)
	h.Write([]byte(mixTagDeal))
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], masterSeed)
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], dealIndex)
	h.Write(buf[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// DeriveMemorySeed derives the deterministic AI memory seed for a seat in a
// round. Distinct from the deal seed so memory degradation never correlates
// with the shuffle.
func DeriveMemorySeed(masterSeed uint64, roundNo uint8, seat Seat) [32]byte {
	h := blake3.New(32, nil)
	h.Write([]byte(mixTagMemory))
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], masterSeed)
	h.Write(buf[:])
	h.Write([]byte{roundNo, byte(seat)})
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Rand is a deterministic PRNG over a ChaCha20 keystream. For a fixed seed
// the draw sequence is a pure function, which is what the dealing and AI
// determinism contracts require.
type Rand struct {
	cipher *chacha20.Cipher
}

// NewRand creates a Rand from a 32-byte seed.
func NewRand(seed [32]byte) *Rand {
	var nonce [chacha20.NonceSize]byte
	c, err := chacha20.NewUnauthenticatedCipher(seed[:], nonce[:])
	if err != nil {
		// Key and nonce sizes are fixed; this cannot fail.
		panic(err)
	}
	return &Rand{cipher: c}
}

// NewRandFromUint64 creates a Rand seeded by expanding a 64-bit value.
func NewRandFromUint64(seed uint64) *Rand {
	return NewRand(Mix32(seed, 0))
}

// Uint32 returns the next 32 bits of the keystream.
func (r *Rand) Uint32() uint32 {
	var buf [4]byte
	r.cipher.XORKeyStream(buf[:], buf[:])
	return binary.LittleEndian.Uint32(buf[:])
}

// Uint64 returns the next 64 bits of the keystream.
func (r *Rand) Uint64() uint64 {
	var buf [8]byte
	r.cipher.XORKeyStream(buf[:], buf[:])
	return binary.LittleEndian.Uint64(buf[:])
}

// Intn returns a uniform value in [0, n). Uses rejection sampling so the
// distribution is exact.
func (r *Rand) Intn(n int) int {
	if n <= 0 {
		panic("game: Intn called with non-positive n")
	}
	bound := uint32(n)
	threshold := -bound % bound
	for {
		v := r.Uint32()
		if v >= threshold {
			return int(v % bound)
		}
	}
}

// Float64 returns a uniform value in [0, 1).
func (r *Rand) Float64() float64 {
	return float64(r.Uint64()>>11) / (1 << 53)
}

// Shuffle performs a Fisher-Yates shuffle of n elements via swap.
func (r *Rand) Shuffle(n int, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		j := r.Intn(i + 1)
		swap(i, j)
	}
}
