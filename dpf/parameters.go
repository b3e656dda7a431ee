package dpf

import (
	"fmt"
	"math/bits"
)

// DpfParameters describes one hierarchy level of an incremental DPF: the
// log2 of the domain size at that level and the bit width of the output
// elements revealed there.
type DpfParameters struct {
	LogDomainSize  int `cbor:"log_domain_size"`
	ElementBitsize int `cbor:"element_bitsize"`
}

// supportedBitsize reports whether b is one of the eight supported element
// widths.
func supportedBitsize(b int) bool {
	switch b {
	case 1, 2, 4, 8, 16, 32, 64, 128:
		return true
	}
	return false
}

// log2Bitsize returns log2(b) for a supported bitsize.
func log2Bitsize(b int) int {
	return bits.TrailingZeros(uint(b))
}

// validateParameters checks the hierarchy parameter list against the rules
// of the construction. An element bitsize outside the supported set is an
// ErrUnimplemented; every other violation is an ErrInvalidArgument.
func validateParameters(params []DpfParameters) error {
	if len(params) == 0 {
		return fmt.Errorf("%w: parameter list must not be empty", ErrInvalidArgument)
	}
	for i, p := range params {
		if p.LogDomainSize < 0 || p.LogDomainSize > 128 {
			return fmt.Errorf("%w: log_domain_size must be in [0, 128], got %d at level %d",
				ErrInvalidArgument, p.LogDomainSize, i)
		}
		if i > 0 && p.LogDomainSize <= params[i-1].LogDomainSize {
			return fmt.Errorf("%w: log_domain_size must be strictly increasing, got %d after %d at level %d",
				ErrInvalidArgument, p.LogDomainSize, params[i-1].LogDomainSize, i)
		}
		if err := checkBitsize(p.ElementBitsize); err != nil {
			return fmt.Errorf("%w at level %d", err, i)
		}
		if i > 0 && p.ElementBitsize < params[i-1].ElementBitsize {
			return fmt.Errorf("%w: element_bitsize must be non-decreasing, got %d after %d at level %d",
				ErrInvalidArgument, p.ElementBitsize, params[i-1].ElementBitsize, i)
		}
	}
	return nil
}

// treeMapping binds the user-visible hierarchy levels to tree depths of the
// underlying binary tree. A block packs 128/element_bitsize output elements,
// so the tree for hierarchy i only needs depth log_domain_size - p_i with
// p_i = log2(128/element_bitsize_i); the low bits of an index select the
// slot inside the block at that depth.
type treeMapping struct {
	// hierarchyToTree[i] is the tree depth (number of expansions from the
	// root) at which hierarchy i's output blocks live.
	hierarchyToTree []int
	// treeToHierarchy maps a tree depth back to the hierarchy level bound
	// there. Defined for every hierarchy except the last, whose boundary
	// sits past the final correction word.
	treeToHierarchy map[int]int
	// treeLevelsNeeded is the total number of expansions, and therefore
	// the number of correction words in every key.
	treeLevelsNeeded int
	// slotBits[i] is the number of index bits selecting the slot inside a
	// hierarchy-i block: log_domain_size_i - hierarchyToTree[i].
	slotBits []int
}

// newTreeMapping computes the mapping for a validated parameter list.
// Depths are forced to be strictly increasing so that every hierarchy
// boundary owns its own tree level; a clamped level simply uses fewer slots
// of its block.
func newTreeMapping(params []DpfParameters) treeMapping {
	m := treeMapping{
		hierarchyToTree: make([]int, len(params)),
		treeToHierarchy: make(map[int]int, len(params)),
		slotBits:        make([]int, len(params)),
	}
	for i, p := range params {
		packing := 7 - log2Bitsize(p.ElementBitsize)
		depth := p.LogDomainSize - packing
		if depth < 0 {
			depth = 0
		}
		if i > 0 && depth <= m.hierarchyToTree[i-1] {
			depth = m.hierarchyToTree[i-1] + 1
		}
		m.hierarchyToTree[i] = depth
		m.slotBits[i] = p.LogDomainSize - depth
	}
	last := len(params) - 1
	m.treeLevelsNeeded = m.hierarchyToTree[last]
	for i := 0; i < last; i++ {
		m.treeToHierarchy[m.hierarchyToTree[i]] = i
	}
	return m
}
