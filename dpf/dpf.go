// Package dpf implements a two-party Distributed Point Function with an
// incremental (hierarchical) variant, following the tree-based construction
// with correction words of "Function Secret Sharing: Improvements and
// Extensions" by Boyle, Gilboa and Ishai (https://eprint.iacr.org/2018/707)
// and its extension to multiple output levels.
//
// A point function f is defined by a secret index alpha and value beta:
// f(alpha) = beta and f(x) = 0 elsewhere. GenerateKeys splits f into two
// keys such that evaluating each key at x yields an additive secret share of
// f(x) modulo 2^element_bitsize. The incremental variant reveals shares of a
// separate beta_i for each prefix length of alpha configured in the
// hierarchy parameters.
package dpf

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/jdapena/distributed-point-functions/dpf/block"
	"github.com/jdapena/distributed-point-functions/dpf/prg"
	"github.com/jdapena/distributed-point-functions/internal/logger"
)

// DistributedPointFunction holds the validated hierarchy parameters, the
// derived tree mapping and the three PRG instances. It is immutable after
// construction and safe for concurrent use.
type DistributedPointFunction struct {
	params  []DpfParameters
	mapping treeMapping

	prgLeft  *prg.PRG
	prgRight *prg.PRG
	prgValue *prg.PRG

	rand io.Reader
}

type options struct {
	rand io.Reader
}

// Option configures DPF construction.
type Option func(*options)

// WithRandomSource injects the randomness used to sample the two root seeds
// during key generation. It defaults to crypto/rand.Reader and is consulted
// exactly twice per GenerateKeys call.
func WithRandomSource(r io.Reader) Option {
	return func(o *options) { o.rand = r }
}

// Create returns a DPF for a single hierarchy level.
func Create(param DpfParameters, opts ...Option) (*DistributedPointFunction, error) {
	return CreateIncremental([]DpfParameters{param}, opts...)
}

// CreateIncremental returns a DPF for the given hierarchy parameter list.
// The list must be non-empty, with log_domain_size strictly increasing in
// [0, 128] and element_bitsize a non-decreasing power of two in [1, 128].
func CreateIncremental(params []DpfParameters, opts ...Option) (*DistributedPointFunction, error) {
	if err := validateParameters(params); err != nil {
		return nil, err
	}
	o := options{rand: rand.Reader}
	for _, opt := range opts {
		opt(&o)
	}

	left, err := prg.NewLeft()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	right, err := prg.NewRight()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	value, err := prg.NewValue()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	d := &DistributedPointFunction{
		params:   append([]DpfParameters(nil), params...),
		mapping:  newTreeMapping(params),
		prgLeft:  left,
		prgRight: right,
		prgValue: value,
		rand:     o.rand,
	}

	log := logger.Logger()
	log.Debug().
		Int("hierarchies", len(params)).
		Int("treeLevels", d.mapping.treeLevelsNeeded).
		Int("logDomainSize", params[len(params)-1].LogDomainSize).
		Msg("created distributed point function")

	return d, nil
}

// Parameters returns a copy of the hierarchy parameter list.
func (d *DistributedPointFunction) Parameters() []DpfParameters {
	return append([]DpfParameters(nil), d.params...)
}

// GenerateKeys produces the key pair of a single-level DPF for the point
// function with special index alpha and value beta. It rejects incremental
// parameter lists; use GenerateKeysIncremental there.
func (d *DistributedPointFunction) GenerateKeys(alpha, beta block.Block) (DpfKey, DpfKey, error) {
	if len(d.params) != 1 {
		return DpfKey{}, DpfKey{}, fmt.Errorf(
			"%w: GenerateKeys requires a single-level DPF, this one has %d hierarchy levels",
			ErrInvalidArgument, len(d.params))
	}
	return d.GenerateKeysIncremental(alpha, []block.Block{beta})
}

// GenerateKeysIncremental produces the key pair for the incremental point
// function with special index alpha and one value per hierarchy level.
// alpha must fit the last level's domain and each betas[i] must fit
// element_bitsize_i.
func (d *DistributedPointFunction) GenerateKeysIncremental(alpha block.Block, betas []block.Block) (DpfKey, DpfKey, error) {
	lastDomain := d.params[len(d.params)-1].LogDomainSize
	if !alpha.FitsBits(lastDomain) {
		return DpfKey{}, DpfKey{}, fmt.Errorf(
			"%w: alpha does not fit the %d-bit domain", ErrInvalidArgument, lastDomain)
	}
	if len(betas) != len(d.params) {
		return DpfKey{}, DpfKey{}, fmt.Errorf(
			"%w: got %d beta values for %d hierarchy levels",
			ErrInvalidArgument, len(betas), len(d.params))
	}
	for i, beta := range betas {
		if !beta.FitsBits(d.params[i].ElementBitsize) {
			return DpfKey{}, DpfKey{}, fmt.Errorf(
				"%w: beta at level %d does not fit %d bits",
				ErrInvalidArgument, i, d.params[i].ElementBitsize)
		}
	}

	rootA, err := d.randomSeed()
	if err != nil {
		return DpfKey{}, DpfKey{}, err
	}
	rootB, err := d.randomSeed()
	if err != nil {
		return DpfKey{}, DpfKey{}, err
	}

	treeLevels := d.mapping.treeLevelsNeeded
	// The tree traverses the block index of alpha at full depth, MSB
	// first; the bits below select the slot inside the final block.
	alphaTree := alpha.Shr(uint(lastDomain - treeLevels))

	seedA, seedB := rootA, rootB
	cbA, cbB := false, true

	cws := make([]CorrectionWord, treeLevels)
	for t := 0; t < treeLevels; t++ {
		// A hierarchy bound at this depth reads its output from the
		// current, pre-expansion state of the alpha path.
		if i, ok := d.mapping.treeToHierarchy[t]; ok {
			vc := d.valueCorrection(i, seedA, seedB, cbB, alpha, betas[i])
			cws[t].ValueCorrection = &vc
		}

		sLA, sRA := d.prgLeft.Expand(seedA), d.prgRight.Expand(seedA)
		sLB, sRB := d.prgLeft.Expand(seedB), d.prgRight.Expand(seedB)
		cbLA, cbRA := sLA.ControlBit(), sRA.ControlBit()
		cbLB, cbRB := sLB.ControlBit(), sRB.ControlBit()

		alphaBit := alphaTree.Bit(uint(treeLevels-1-t)) == 1

		// The lose side is the sibling of the alpha path; the seed
		// correction equalizes it between the parties. != is XOR.
		loseA, loseB := sRA, sRB
		keepA, keepB := sLA, sLB
		keepCbA, keepCbB := cbLA, cbLB
		if alphaBit {
			loseA, loseB = sLA, sLB
			keepA, keepB = sRA, sRB
			keepCbA, keepCbB = cbRA, cbRB
		}
		cwSeed := loseA.Xor(loseB)
		cwLeft := cbLA != cbLB != alphaBit != true
		cwRight := cbRA != cbRB != alphaBit

		cws[t].Seed = cwSeed
		cws[t].ControlLeft = cwLeft
		cws[t].ControlRight = cwRight

		cwKeep := cwRight
		if !alphaBit {
			cwKeep = cwLeft
		}
		if cbA {
			keepA = keepA.Xor(cwSeed)
			keepCbA = keepCbA != cwKeep
		}
		if cbB {
			keepB = keepB.Xor(cwSeed)
			keepCbB = keepCbB != cwKeep
		}
		seedA, cbA = keepA, keepCbA
		seedB, cbB = keepB, keepCbB
	}

	last := len(d.params) - 1
	lastVC := d.valueCorrection(last, seedA, seedB, cbB, alpha, betas[last])

	keyA := DpfKey{
		Party:                    false,
		Seed:                     rootA,
		ControlBit:               false,
		CorrectionWords:          cws,
		LastLevelValueCorrection: lastVC,
	}
	keyB := DpfKey{
		Party:                    true,
		Seed:                     rootB,
		ControlBit:               true,
		CorrectionWords:          cws,
		LastLevelValueCorrection: lastVC,
	}
	return keyA, keyB.clone(), nil
}

// randomSeed draws one root seed from the injected random source.
func (d *DistributedPointFunction) randomSeed() (block.Block, error) {
	var buf [block.Size]byte
	if _, err := io.ReadFull(d.rand, buf[:]); err != nil {
		return block.Zero, fmt.Errorf("%w: sampling root seed: %v", ErrInternal, err)
	}
	return block.FromBytes(buf), nil
}

// valueCorrection computes the value correction word for hierarchy level i
// from the two parties' alpha-path states at the bound tree depth. Applying
// it during evaluation makes the parties' packed outputs additive shares of
// beta at alpha's prefix and of zero elsewhere:
//
//	cw = pack(beta, slot) + V(seedB) - V(seedA)   per slot, mod 2^bitsize
//
// negated per slot when party B carries the 1 control bit, so that the
// subtraction during evaluation stays consistent.
func (d *DistributedPointFunction) valueCorrection(i int, seedA, seedB block.Block, cbB bool, alpha, beta block.Block) block.Block {
	bitsize := d.params[i].ElementBitsize
	lastDomain := d.params[len(d.params)-1].LogDomainSize

	// Slot of alpha's level-i prefix inside its output block.
	alphaI := alpha.Shr(uint(lastDomain - d.params[i].LogDomainSize))
	slot := int(alphaI.Mask(d.mapping.slotBits[i]).Uint64())

	packed := writeSlot(block.Zero, slot, bitsize, beta)
	vA := d.prgValue.Expand(seedA)
	vB := d.prgValue.Expand(seedB)

	cw := addSlots(packed, subSlots(vB, vA, bitsize), bitsize)
	if cbB {
		cw = negSlots(cw, bitsize)
	}
	return cw
}
