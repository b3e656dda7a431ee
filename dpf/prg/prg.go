// Package prg provides the pseudorandom generator driving the GGM tree
// expansion. A PRG is AES-128 with a fixed key in a Matyas-Meyer-Oseas mode:
//
//	Expand(seed) = AES_K(seed) XOR seed
//
// Three instances with distinct, permanent keys exist: Left and Right expand
// the binary tree, Value masks the packed output values. Changing any of the
// key constants changes every key and share this module ever produces, so
// they are frozen.
package prg

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/klauspost/cpuid/v2"

	"github.com/jdapena/distributed-point-functions/dpf/block"
)

// Fixed 128-bit AES keys for the three PRG instances. Arbitrary but
// permanent; all three must stay pairwise distinct.
var (
	keyLeft = [block.Size]byte{
		0x33, 0x98, 0x5e, 0x12, 0xc0, 0x7a, 0xbb, 0xd4,
		0x09, 0x6f, 0x2e, 0x81, 0x57, 0xca, 0x14, 0x60,
	}
	keyRight = [block.Size]byte{
		0xa1, 0x0c, 0xe6, 0x45, 0x72, 0x9f, 0x38, 0x0b,
		0xde, 0x51, 0x84, 0xf3, 0x26, 0xb8, 0x4d, 0x97,
	}
	keyValue = [block.Size]byte{
		0x6b, 0xd0, 0x17, 0x8e, 0x49, 0x25, 0xfa, 0x63,
		0x90, 0x3b, 0xc2, 0x1d, 0x74, 0x0e, 0xa5, 0x5c,
	}
)

// PRG is a fixed-key length-preserving pseudorandom generator over 128-bit
// blocks. Safe for concurrent use: the underlying cipher is never rekeyed.
type PRG struct {
	cipher cipher.Block
}

func newPRG(key [block.Size]byte) (*PRG, error) {
	c, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("creating fixed-key AES cipher: %w", err)
	}
	return &PRG{cipher: c}, nil
}

// NewLeft returns the PRG instance for left tree children.
func NewLeft() (*PRG, error) { return newPRG(keyLeft) }

// NewRight returns the PRG instance for right tree children.
func NewRight() (*PRG, error) { return newPRG(keyRight) }

// NewValue returns the PRG instance for output value masks.
func NewValue() (*PRG, error) { return newPRG(keyValue) }

// Expand maps a seed block to a pseudorandom output block.
func (g *PRG) Expand(seed block.Block) block.Block {
	in := seed.Bytes()
	var out [block.Size]byte
	g.cipher.Encrypt(out[:], in[:])
	return block.FromBytes(out).Xor(seed)
}

// ExpandBatch expands every seed in src into the corresponding position of
// dst. dst and src must have the same length; dst may alias src. The result
// equals sequential Expand calls on each seed.
func (g *PRG) ExpandBatch(dst, src []block.Block) {
	if len(dst) != len(src) {
		panic("prg: ExpandBatch length mismatch")
	}
	for i, seed := range src {
		dst[i] = g.Expand(seed)
	}
}

// HasHardwareAES reports whether the CPU offers AES instructions, which is
// what keeps the tree expansion throughput-bound on the cipher.
func HasHardwareAES() bool {
	return cpuid.CPU.Supports(cpuid.AESNI)
}
