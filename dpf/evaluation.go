package dpf

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
	"golang.org/x/exp/constraints"

	"github.com/jdapena/distributed-point-functions/dpf/block"
)

// maxExpansionBits bounds the number of new domain bits a single
// EvaluateNext call may expand per prefix, keeping every size computation in
// range. 2^62 output elements do not fit in memory anyway; callers evaluate
// larger gaps through a pruned prefix set at an intermediate hierarchy.
const maxExpansionBits = 62

// PartialEvaluation is the per-prefix state carried between EvaluateNext
// calls: the seed and control bit of the prefix's tree block.
type PartialEvaluation struct {
	Seed       block.Block `cbor:"seed"`
	ControlBit bool        `cbor:"control_bit"`
}

// EvaluationContext tracks the progress of evaluating one key through the
// hierarchy levels. It is single-owner mutable: concurrent EvaluateNext
// calls on the same context are not allowed. On error the context is left
// unchanged.
type EvaluationContext struct {
	params         []DpfParameters
	key            DpfKey
	hierarchyLevel int
	// partialEvaluations maps every prefix covered by the previous call
	// to the seed and control bit of its tree block. Before the first
	// call it holds the root state under the empty (zero) prefix.
	partialEvaluations map[block.Block]PartialEvaluation
}

// HierarchyLevel returns the last hierarchy level whose output was
// produced, or -1 before the first EvaluateNext call.
func (ctx *EvaluationContext) HierarchyLevel() int {
	return ctx.hierarchyLevel
}

// Key returns a copy of the key under evaluation.
func (ctx *EvaluationContext) Key() DpfKey {
	return ctx.key.clone()
}

// CreateEvaluationContext validates the key against this DPF's parameters
// and returns a fresh context positioned before the first hierarchy level.
func (d *DistributedPointFunction) CreateEvaluationContext(key DpfKey) (*EvaluationContext, error) {
	if err := d.validateKey(key); err != nil {
		return nil, err
	}
	return &EvaluationContext{
		params:         append([]DpfParameters(nil), d.params...),
		key:            key.clone(),
		hierarchyLevel: -1,
		partialEvaluations: map[block.Block]PartialEvaluation{
			block.Zero: {Seed: key.Seed, ControlBit: key.ControlBit},
		},
	}, nil
}

// checkContext verifies that ctx belongs to a DPF with the same parameters
// and still has hierarchy levels left.
func (d *DistributedPointFunction) checkContext(ctx *EvaluationContext) error {
	if len(ctx.params) != len(d.params) {
		return fmt.Errorf("%w: context parameters do not match this DPF", ErrInvalidArgument)
	}
	for i, p := range ctx.params {
		if p != d.params[i] {
			return fmt.Errorf("%w: context parameters do not match this DPF", ErrInvalidArgument)
		}
	}
	if ctx.hierarchyLevel+1 >= len(d.params) {
		return fmt.Errorf("%w: all hierarchy levels have been evaluated", ErrFailedPrecondition)
	}
	return nil
}

// expansion is the outcome of one EvaluateNext expansion, held back from the
// context until the caller-visible output has been produced successfully.
type expansion struct {
	// values holds one corrected output block per tree node at the
	// target depth, grouped per prefix in left-to-right order.
	values []block.Block

	extensionBits   int // domain bits gained per prefix
	log2SlotSpan    int // log2 of slots consumed per block
	blocksPerPrefix int
	slotStarts      []int // first slot used, per prefix
	newPartial      map[block.Block]PartialEvaluation
}

func (e *expansion) outputsPerPrefix() int {
	return 1 << e.extensionBits
}

// expandNext walks the tree from the previous hierarchy's stored states to
// the next hierarchy's depth and applies the value correction. It validates
// everything up front and never mutates ctx; commit does that.
func (d *DistributedPointFunction) expandNext(prefixes []block.Block, ctx *EvaluationContext) (*expansion, error) {
	i := ctx.hierarchyLevel + 1
	last := len(d.params) - 1
	first := i == 0

	if first && len(prefixes) > 0 {
		return nil, fmt.Errorf(
			"%w: the first EvaluateNext call must pass an empty prefix list", ErrFailedPrecondition)
	}

	prevDomain, prevDepth, prevSlotBits := 0, 0, 0
	if !first {
		prevDomain = d.params[i-1].LogDomainSize
		prevDepth = d.mapping.hierarchyToTree[i-1]
		prevSlotBits = d.mapping.slotBits[i-1]
	}
	depth := d.mapping.hierarchyToTree[i]
	domain := d.params[i].LogDomainSize
	slotBits := d.mapping.slotBits[i]
	bitsize := d.params[i].ElementBitsize

	extensionBits := domain - prevDomain
	if extensionBits > maxExpansionBits {
		return nil, fmt.Errorf(
			"%w: expanding %d new domain bits in one call is not supported; evaluate through an intermediate hierarchy with a pruned prefix set",
			ErrInvalidArgument, extensionBits)
	}

	steps := depth - prevDepth
	fixedSteps := steps
	if prevSlotBits < fixedSteps {
		fixedSteps = prevSlotBits
	}
	doublingSteps := steps - fixedSteps

	// Gather the starting states. Every prefix must have been covered by
	// the previous call; the first call starts from the stored root.
	var seeds []block.Block
	var cbs *bitset.BitSet
	if first {
		root, ok := ctx.partialEvaluations[block.Zero]
		if !ok {
			return nil, fmt.Errorf("%w: context is missing its root state", ErrInvalidArgument)
		}
		seeds = []block.Block{root.Seed}
		cbs = bitset.New(1)
		cbs.SetTo(0, root.ControlBit)
	} else {
		seeds = make([]block.Block, len(prefixes))
		cbs = bitset.New(uint(len(prefixes)))
		for j, p := range prefixes {
			if !p.FitsBits(prevDomain) {
				return nil, fmt.Errorf(
					"%w: prefix does not fit the previous hierarchy's %d-bit domain",
					ErrInvalidArgument, prevDomain)
			}
			pe, ok := ctx.partialEvaluations[p]
			if !ok {
				return nil, fmt.Errorf(
					"%w: prefix does not extend any prefix of the previous call", ErrInvalidArgument)
			}
			seeds[j] = pe.Seed
			cbs.SetTo(uint(j), pe.ControlBit)
		}
	}

	// Fixed descent: the high slot bits of each prefix select one child
	// per step, so the working set keeps its size.
	for s := 0; s < fixedSteps; s++ {
		cw := ctx.key.CorrectionWords[prevDepth+s]
		for j := range seeds {
			bit := prefixes[j].Bit(uint(prevSlotBits-1-s)) == 1
			g := d.prgLeft
			cwControl := cw.ControlLeft
			if bit {
				g = d.prgRight
				cwControl = cw.ControlRight
			}
			e := g.Expand(seeds[j])
			cb := e.ControlBit()
			if cbs.Test(uint(j)) {
				e = e.Xor(cw.Seed)
				cb = cb != cwControl
			}
			seeds[j] = e
			cbs.SetTo(uint(j), cb)
		}
	}

	// Doubling phase: both children of every node, left then right.
	for s := 0; s < doublingSteps; s++ {
		cw := ctx.key.CorrectionWords[prevDepth+fixedSteps+s]
		lefts := make([]block.Block, len(seeds))
		rights := make([]block.Block, len(seeds))
		d.prgLeft.ExpandBatch(lefts, seeds)
		d.prgRight.ExpandBatch(rights, seeds)

		next := make([]block.Block, 2*len(seeds))
		nextCbs := bitset.New(uint(2 * len(seeds)))
		for j := range seeds {
			l, r := lefts[j], rights[j]
			cbL, cbR := l.ControlBit(), r.ControlBit()
			if cbs.Test(uint(j)) {
				l = l.Xor(cw.Seed)
				r = r.Xor(cw.Seed)
				cbL = cbL != cw.ControlLeft
				cbR = cbR != cw.ControlRight
			}
			next[2*j] = l
			next[2*j+1] = r
			nextCbs.SetTo(uint(2*j), cbL)
			nextCbs.SetTo(uint(2*j+1), cbR)
		}
		seeds = next
		cbs = nextCbs
	}

	// Value layer: expand with the value PRG and fold in this level's
	// value correction under the control bit; party B negates.
	var vc block.Block
	if i < last {
		vc = *ctx.key.CorrectionWords[depth].ValueCorrection
	} else {
		vc = ctx.key.LastLevelValueCorrection
	}
	values := make([]block.Block, len(seeds))
	d.prgValue.ExpandBatch(values, seeds)
	for j := range values {
		if cbs.Test(uint(j)) {
			values[j] = addSlots(values[j], vc, bitsize)
		}
		if ctx.key.Party {
			values[j] = negSlots(values[j], bitsize)
		}
	}

	log2SlotSpan := extensionBits
	if slotBits < log2SlotSpan {
		log2SlotSpan = slotBits
	}
	res := &expansion{
		values:          values,
		extensionBits:   extensionBits,
		log2SlotSpan:    log2SlotSpan,
		blocksPerPrefix: 1 << doublingSteps,
		slotStarts:      make([]int, prefixCount(prefixes)),
	}
	// When a block carries extensions of several prefixes, each prefix
	// starts at its own slot offset inside the shared block.
	if extensionBits < slotBits {
		for j, p := range prefixes {
			res.slotStarts[j] = int(p.Mask(slotBits-extensionBits).Uint64()) << extensionBits
		}
	}

	// Partial evaluations for the next level map every covered extension
	// to its tree block's state. The last level needs none.
	if i < last {
		res.newPartial = make(map[block.Block]PartialEvaluation, prefixCount(prefixes)<<extensionBits)
		for j := 0; j < prefixCount(prefixes); j++ {
			var base block.Block
			if !first {
				base = prefixes[j].Shl(uint(extensionBits))
			}
			for s := 0; s < 1<<extensionBits; s++ {
				node := j*res.blocksPerPrefix + s>>log2SlotSpan
				res.newPartial[base.AddUint64(uint64(s))] = PartialEvaluation{
					Seed:       seeds[node],
					ControlBit: cbs.Test(uint(node)),
				}
			}
		}
	} else {
		res.newPartial = make(map[block.Block]PartialEvaluation)
	}
	return res, nil
}

func prefixCount(prefixes []block.Block) int {
	if len(prefixes) == 0 {
		return 1
	}
	return len(prefixes)
}

// commit advances the context past the expanded hierarchy level.
func (e *expansion) commit(ctx *EvaluationContext) {
	ctx.hierarchyLevel++
	ctx.partialEvaluations = e.newPartial
}

// value returns the output element for extension s of prefix j, still
// packed in a block.
func (e *expansion) value(j, s, bitsize int) block.Block {
	node := j*e.blocksPerPrefix + s>>e.log2SlotSpan
	slot := e.slotStarts[j] + s&(1<<e.log2SlotSpan-1)
	return readSlot(e.values[node], slot, bitsize)
}

// outputWidth maps a Go output type to its bit width.
func outputWidth[T constraints.Unsigned]() (int, error) {
	var zero T
	switch any(zero).(type) {
	case uint8:
		return 8, nil
	case uint16:
		return 16, nil
	case uint32:
		return 32, nil
	case uint64:
		return 64, nil
	default:
		return 0, fmt.Errorf("%w: output type must be uint8, uint16, uint32 or uint64", ErrInvalidArgument)
	}
}

// checkOutputWidth matches the requested Go type against the hierarchy's
// element bitsize. Widths below 8 are carried in a uint8.
func checkOutputWidth[T constraints.Unsigned](bitsize int) error {
	w, err := outputWidth[T]()
	if err != nil {
		return err
	}
	want := bitsize
	if want < 8 {
		want = 8
	}
	if want == 128 {
		return fmt.Errorf("%w: element bitsize 128 requires EvaluateNext128", ErrInvalidArgument)
	}
	if w != want {
		return fmt.Errorf("%w: output type has %d bits, hierarchy element bitsize is %d",
			ErrInvalidArgument, w, bitsize)
	}
	return nil
}

// EvaluateNext evaluates the next hierarchy level of ctx's key. On the
// first call prefixes must be empty and the whole level-0 domain is
// returned. On later calls every prefix is an element of the previous
// hierarchy's domain that was covered by the previous call, and the outputs
// are the shares of all its extensions at the new level, ordered by prefix
// and then by increasing extension.
//
// A non-first call with an empty prefix list returns an empty slice and
// does not advance the hierarchy level.
//
// The type parameter must match the level's element bitsize; bitsizes below
// 8 are returned in uint8. On error the context is unchanged.
func EvaluateNext[T constraints.Unsigned](d *DistributedPointFunction, prefixes []block.Block, ctx *EvaluationContext) ([]T, error) {
	if err := d.checkContext(ctx); err != nil {
		return nil, err
	}
	i := ctx.hierarchyLevel + 1
	bitsize := d.params[i].ElementBitsize
	if err := checkOutputWidth[T](bitsize); err != nil {
		return nil, err
	}
	if i > 0 && len(prefixes) == 0 {
		return []T{}, nil
	}
	e, err := d.expandNext(prefixes, ctx)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, prefixCount(prefixes)*e.outputsPerPrefix())
	for j := 0; j < prefixCount(prefixes); j++ {
		for s := 0; s < e.outputsPerPrefix(); s++ {
			out = append(out, T(e.value(j, s, bitsize).Uint64()))
		}
	}
	e.commit(ctx)
	return out, nil
}

// EvaluateNext128 is EvaluateNext for hierarchy levels with element bitsize
// 128, whose shares do not fit a machine integer.
func EvaluateNext128(d *DistributedPointFunction, prefixes []block.Block, ctx *EvaluationContext) ([]block.Block, error) {
	if err := d.checkContext(ctx); err != nil {
		return nil, err
	}
	i := ctx.hierarchyLevel + 1
	bitsize := d.params[i].ElementBitsize
	if bitsize != 128 {
		return nil, fmt.Errorf("%w: element bitsize is %d, EvaluateNext128 requires 128",
			ErrInvalidArgument, bitsize)
	}
	if i > 0 && len(prefixes) == 0 {
		return []block.Block{}, nil
	}
	e, err := d.expandNext(prefixes, ctx)
	if err != nil {
		return nil, err
	}
	out := make([]block.Block, 0, prefixCount(prefixes)*e.outputsPerPrefix())
	for j := 0; j < prefixCount(prefixes); j++ {
		for s := 0; s < e.outputsPerPrefix(); s++ {
			out = append(out, e.value(j, s, bitsize))
		}
	}
	e.commit(ctx)
	return out, nil
}

// EvaluateAll is a convenience around CreateEvaluationContext and a single
// empty EvaluateNext call: the full first-hierarchy expansion of key. For a
// single-level DPF this is the whole domain.
func EvaluateAll[T constraints.Unsigned](d *DistributedPointFunction, key DpfKey) ([]T, error) {
	ctx, err := d.CreateEvaluationContext(key)
	if err != nil {
		return nil, err
	}
	return EvaluateNext[T](d, nil, ctx)
}

// FullEvaluation expands a single-level key over its whole domain and
// returns one share per domain point, packed in a block regardless of the
// element bitsize.
func (d *DistributedPointFunction) FullEvaluation(key DpfKey) ([]block.Block, error) {
	if len(d.params) != 1 {
		return nil, fmt.Errorf("%w: FullEvaluation requires a single-level DPF, this one has %d hierarchy levels",
			ErrInvalidArgument, len(d.params))
	}
	ctx, err := d.CreateEvaluationContext(key)
	if err != nil {
		return nil, err
	}
	e, err := d.expandNext(nil, ctx)
	if err != nil {
		return nil, err
	}
	bitsize := d.params[0].ElementBitsize
	out := make([]block.Block, 0, e.outputsPerPrefix())
	for s := 0; s < e.outputsPerPrefix(); s++ {
		out = append(out, e.value(0, s, bitsize))
	}
	e.commit(ctx)
	return out, nil
}
