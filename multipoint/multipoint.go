// Package multipoint builds a multi-point function from several distributed
// point functions: a function that takes a non-zero value at t special
// points and zero everywhere else. Each special point gets its own DPF key
// pair over a shared single-level parameter set; the parties' outputs are
// additive shares per point.
package multipoint

import (
	"fmt"

	"github.com/jdapena/distributed-point-functions/dpf"
	"github.com/jdapena/distributed-point-functions/dpf/block"
)

// MultiPointFunction generates and evaluates the per-point DPF keys of a
// multi-point function over a fixed single-level domain.
type MultiPointFunction struct {
	base  *dpf.DistributedPointFunction
	param dpf.DpfParameters
}

// New returns a multi-point function factory over the given single-level
// parameters.
func New(param dpf.DpfParameters, opts ...dpf.Option) (*MultiPointFunction, error) {
	base, err := dpf.Create(param, opts...)
	if err != nil {
		return nil, err
	}
	return &MultiPointFunction{base: base, param: param}, nil
}

// Key holds one party's DPF keys, one per special point.
type Key struct {
	DpfKeys []dpf.DpfKey `cbor:"dpf_keys"`
}

// Gen generates the two parties' keys for the multi-point function defined
// by the given special points and their non-zero elements. The special
// points must be pairwise distinct.
func (m *MultiPointFunction) Gen(specialPoints, nonZeroElements []block.Block) (Key, Key, error) {
	if len(specialPoints) != len(nonZeroElements) {
		return Key{}, Key{}, fmt.Errorf(
			"%w: the number of special points and non-zero elements must match",
			dpf.ErrInvalidArgument)
	}
	seen := make(map[block.Block]struct{}, len(specialPoints))
	for _, sp := range specialPoints {
		if _, exists := seen[sp]; exists {
			return Key{}, Key{}, fmt.Errorf("%w: duplicate special point %s",
				dpf.ErrInvalidArgument, sp.BigInt().Text(10))
		}
		seen[sp] = struct{}{}
	}

	var keyA, keyB Key
	for i, sp := range specialPoints {
		k1, k2, err := m.base.GenerateKeys(sp, nonZeroElements[i])
		if err != nil {
			return Key{}, Key{}, err
		}
		keyA.DpfKeys = append(keyA.DpfKeys, k1)
		keyB.DpfKeys = append(keyB.DpfKeys, k2)
	}
	return keyA, keyB, nil
}

// EvalFull evaluates every DPF of the key over the whole domain. The result
// has one row per special point, one column per domain point, each entry a
// share packed in a block.
func (m *MultiPointFunction) EvalFull(key Key) ([][]block.Block, error) {
	rows := make([][]block.Block, len(key.DpfKeys))
	for i, k := range key.DpfKeys {
		row, err := m.base.FullEvaluation(k)
		if err != nil {
			return nil, err
		}
		rows[i] = row
	}
	return rows, nil
}

// EvalAt evaluates the key at a single domain point, returning one share
// per special point.
func (m *MultiPointFunction) EvalAt(key Key, x block.Block) ([]block.Block, error) {
	if !x.FitsBits(m.param.LogDomainSize) {
		return nil, fmt.Errorf("%w: evaluation point does not fit the %d-bit domain",
			dpf.ErrInvalidArgument, m.param.LogDomainSize)
	}
	rows, err := m.EvalFull(key)
	if err != nil {
		return nil, err
	}
	idx := x.Uint64()
	out := make([]block.Block, len(rows))
	for i, row := range rows {
		out[i] = row[idx]
	}
	return out, nil
}

// CombineResults adds the two parties' per-point shares modulo
// 2^element_bitsize and returns the combined values.
func (m *MultiPointFunction) CombineResults(ya, yb []block.Block) ([]block.Block, error) {
	if len(ya) != len(yb) {
		return nil, fmt.Errorf("%w: share vectors have different lengths", dpf.ErrInvalidArgument)
	}
	out := make([]block.Block, len(ya))
	for i := range ya {
		out[i] = ya[i].Add(yb[i]).Mask(m.param.ElementBitsize)
	}
	return out, nil
}
