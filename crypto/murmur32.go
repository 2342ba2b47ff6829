package crypto

import (
	"encoding/binary"
	"hash"
)

// ---------------------------------------------------------------------------
// MurmurHash3 x86 32-bit
// ---------------------------------------------------------------------------

const (
	murmurC1 uint32 = 0xcc9e2d51
	murmurC2 uint32 = 0x1b873593
	murmurR1        = 15
	murmurR2        = 13
	murmurM  uint32 = 5
	murmurN  uint32 = 0xe6546b64
)

// Murmur32 computes the MurmurHash3 x86 32-bit digest of data with the
// given seed.
func Murmur32(data []byte, seed uint32) uint32 {
	h := seed
	n := len(data)
	for ; len(data) >= 4; data = data[4:] {
		k := binary.LittleEndian.Uint32(data)
		h ^= murmurScramble(k)
		h = (h<<murmurR2 | h>>(32-murmurR2))*murmurM + murmurN
	}
	var k uint32
	switch len(data) {
	case 3:
		k ^= uint32(data[2]) << 16
		fallthrough
	case 2:
		k ^= uint32(data[1]) << 8
		fallthrough
	case 1:
		k ^= uint32(data[0])
		h ^= murmurScramble(k)
	}
	return murmurFinalize(h, n)
}

func murmurScramble(k uint32) uint32 {
	k *= murmurC1
	k = k<<murmurR1 | k>>(32-murmurR1)
	return k * murmurC2
}

func murmurFinalize(h uint32, length int) uint32 {
	h ^= uint32(length)
	h ^= h >> 16
	h *= 0x85ebca6b
	h ^= h >> 13
	h *= 0xc2b2ae35
	h ^= h >> 16
	return h
}

// ---------------------------------------------------------------------------
// hash.Hash32 adapter
// ---------------------------------------------------------------------------

// murmur32 accumulates input for a one-shot digest. Murmur has no streaming
// form with this layout, so Write buffers.
type murmur32 struct {
	seed uint32
	buf  []byte
}

// NewMurmur32 returns a hash.Hash32 computing MurmurHash3 with seed.
func NewMurmur32(seed uint32) hash.Hash32 {
	return &murmur32{seed: seed}
}

func (m *murmur32) Write(p []byte) (int, error) {
	m.buf = append(m.buf, p...)
	return len(p), nil
}

func (m *murmur32) Sum(b []byte) []byte {
	var out [4]byte
	binary.LittleEndian.PutUint32(out[:], m.Sum32())
	return append(b, out[:]...)
}

func (m *murmur32) Sum32() uint32 {
	return Murmur32(m.buf, m.seed)
}

func (m *murmur32) Reset()         { m.buf = m.buf[:0] }
func (m *murmur32) Size() int      { return 4 }
func (m *murmur32) BlockSize() int { return 4 }
