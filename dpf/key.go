package dpf

import (
	"fmt"

	"github.com/jdapena/distributed-point-functions/dpf/block"
)

// CorrectionWord is the public per-tree-level value both parties fold into
// their state to cancel the divergence off the alpha path. ValueCorrection
// is set only on tree levels that terminate a hierarchy boundary.
type CorrectionWord struct {
	Seed         block.Block  `cbor:"seed"`
	ControlLeft  bool         `cbor:"control_left"`
	ControlRight bool         `cbor:"control_right"`
	// ValueCorrection holds the packed element corrections for the
	// hierarchy bound at this tree level, nil elsewhere.
	ValueCorrection *block.Block `cbor:"value_correction,omitempty"`
}

// DpfKey is one party's share of a point function. Both keys of a pair carry
// identical correction words; only the initial seed and the party bit
// differ. A key is immutable once generated.
type DpfKey struct {
	// Party is false for party A (0) and true for party B (1).
	Party bool `cbor:"party"`
	// Seed is the party's root seed of the GGM tree.
	Seed block.Block `cbor:"seed"`
	// ControlBit is the root control bit and always equals Party.
	ControlBit bool `cbor:"control_bit"`
	// CorrectionWords holds one entry per tree level.
	CorrectionWords []CorrectionWord `cbor:"correction_words"`
	// LastLevelValueCorrection is the value correction of the final
	// hierarchy level, which sits past the last correction word.
	LastLevelValueCorrection block.Block `cbor:"last_level_value_correction"`
}

// clone returns a deep copy of the key, so that the two keys of a pair and
// every evaluation context own their correction words independently.
func (k DpfKey) clone() DpfKey {
	out := k
	out.CorrectionWords = make([]CorrectionWord, len(k.CorrectionWords))
	for i, cw := range k.CorrectionWords {
		out.CorrectionWords[i] = cw
		if cw.ValueCorrection != nil {
			vc := *cw.ValueCorrection
			out.CorrectionWords[i].ValueCorrection = &vc
		}
	}
	return out
}

// validateKey checks that a key's layout is compatible with this DPF's
// parameters: correction word count and the placement of value corrections.
func (d *DistributedPointFunction) validateKey(key DpfKey) error {
	if key.ControlBit != key.Party {
		return fmt.Errorf("%w: key control bit does not match party bit", ErrInvalidArgument)
	}
	if len(key.CorrectionWords) != d.mapping.treeLevelsNeeded {
		return fmt.Errorf("%w: key has %d correction words, parameters need %d",
			ErrInvalidArgument, len(key.CorrectionWords), d.mapping.treeLevelsNeeded)
	}
	for t, cw := range key.CorrectionWords {
		_, boundary := d.mapping.treeToHierarchy[t]
		if boundary && cw.ValueCorrection == nil {
			return fmt.Errorf("%w: key is missing the value correction at tree level %d",
				ErrInvalidArgument, t)
		}
		if !boundary && cw.ValueCorrection != nil {
			return fmt.Errorf("%w: key has a stray value correction at tree level %d",
				ErrInvalidArgument, t)
		}
	}
	return nil
}
