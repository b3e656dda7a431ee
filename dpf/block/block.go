// Package block implements the 128-bit block algebra the DPF tree is built
// on: XOR and AND, shifts, addition and negation modulo 2^128, and the
// extraction of the least-significant control bit. Blocks double as seeds,
// correction words, packed value vectors, and domain prefixes.
package block

import (
	"encoding/binary"
	"errors"
	"math/big"
	"math/bits"
)

// Size is the block size in bytes.
const Size = 16

// Block is a 128-bit value stored as two little-endian limbs:
// index 0 holds bits 0..63, index 1 holds bits 64..127.
type Block [2]uint64

// Zero is the all-zero block.
var Zero = Block{}

// FromUint64 returns a block holding v in the low limb.
func FromUint64(v uint64) Block {
	return Block{v, 0}
}

// FromUint64Pair returns a block with the given low and high limbs.
func FromUint64Pair(lo, hi uint64) Block {
	return Block{lo, hi}
}

// FromBytes interprets b as a little-endian 128-bit value.
func FromBytes(b [Size]byte) Block {
	return Block{
		binary.LittleEndian.Uint64(b[:8]),
		binary.LittleEndian.Uint64(b[8:]),
	}
}

// FromBigInt converts a non-negative big.Int of at most 128 bits.
func FromBigInt(v *big.Int) (Block, error) {
	if v.Sign() < 0 || v.BitLen() > 128 {
		return Zero, errors.New("value does not fit in 128 bits")
	}
	hi := new(big.Int).Rsh(v, 64)
	lo := new(big.Int).Sub(v, new(big.Int).Lsh(hi, 64))
	return Block{lo.Uint64(), hi.Uint64()}, nil
}

// Bytes returns the little-endian byte representation.
func (b Block) Bytes() [Size]byte {
	var out [Size]byte
	binary.LittleEndian.PutUint64(out[:8], b[0])
	binary.LittleEndian.PutUint64(out[8:], b[1])
	return out
}

// BigInt returns the block as a non-negative big.Int.
func (b Block) BigInt() *big.Int {
	hi := new(big.Int).SetUint64(b[1])
	hi.Lsh(hi, 64)
	return hi.Or(hi, new(big.Int).SetUint64(b[0]))
}

// Uint64 returns the low 64 bits.
func (b Block) Uint64() uint64 {
	return b[0]
}

// Xor returns b XOR o.
func (b Block) Xor(o Block) Block {
	return Block{b[0] ^ o[0], b[1] ^ o[1]}
}

// And returns b AND o.
func (b Block) And(o Block) Block {
	return Block{b[0] & o[0], b[1] & o[1]}
}

// Or returns b OR o.
func (b Block) Or(o Block) Block {
	return Block{b[0] | o[0], b[1] | o[1]}
}

// ControlBit returns the least-significant bit of the block. The GGM tree
// expansion reads it off every PRG output.
func (b Block) ControlBit() bool {
	return b[0]&1 == 1
}

// Bit returns bit i (0 = least significant) as 0 or 1.
func (b Block) Bit(i uint) uint64 {
	if i >= 128 {
		return 0
	}
	return (b[i/64] >> (i % 64)) & 1
}

// Shl returns b shifted left by n bits. Shifts of 128 or more yield zero.
func (b Block) Shl(n uint) Block {
	switch {
	case n == 0:
		return b
	case n >= 128:
		return Zero
	case n >= 64:
		return Block{0, b[0] << (n - 64)}
	default:
		return Block{b[0] << n, b[1]<<n | b[0]>>(64-n)}
	}
}

// Shr returns b shifted right by n bits. Shifts of 128 or more yield zero.
func (b Block) Shr(n uint) Block {
	switch {
	case n == 0:
		return b
	case n >= 128:
		return Zero
	case n >= 64:
		return Block{b[1] >> (n - 64), 0}
	default:
		return Block{b[0]>>n | b[1]<<(64-n), b[1] >> n}
	}
}

// Add returns b + o modulo 2^128.
func (b Block) Add(o Block) Block {
	lo, carry := bits.Add64(b[0], o[0], 0)
	hi, _ := bits.Add64(b[1], o[1], carry)
	return Block{lo, hi}
}

// Sub returns b - o modulo 2^128.
func (b Block) Sub(o Block) Block {
	lo, borrow := bits.Sub64(b[0], o[0], 0)
	hi, _ := bits.Sub64(b[1], o[1], borrow)
	return Block{lo, hi}
}

// Neg returns -b modulo 2^128.
func (b Block) Neg() Block {
	return Zero.Sub(b)
}

// AddUint64 returns b + v modulo 2^128.
func (b Block) AddUint64(v uint64) Block {
	return b.Add(FromUint64(v))
}

// IsZero reports whether all 128 bits are zero.
func (b Block) IsZero() bool {
	return b[0] == 0 && b[1] == 0
}

// Equal reports whether b and o hold the same value.
func (b Block) Equal(o Block) bool {
	return b == o
}

// FitsBits reports whether b is representable in n bits, i.e. all bits at
// position n and above are zero.
func (b Block) FitsBits(n int) bool {
	if n >= 128 {
		return true
	}
	if n < 0 {
		return false
	}
	return b.Shr(uint(n)).IsZero()
}

// Mask returns b with all bits at position n and above cleared.
func (b Block) Mask(n int) Block {
	switch {
	case n >= 128:
		return b
	case n <= 0:
		return Zero
	case n >= 64:
		return Block{b[0], b[1] & (^uint64(0) >> (128 - uint(n)))}
	default:
		return Block{b[0] & (^uint64(0) >> (64 - uint(n))), 0}
	}
}
