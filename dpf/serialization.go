package dpf

import (
	"fmt"
	"sort"

	"github.com/fxamacker/cbor/v2"

	"github.com/jdapena/distributed-point-functions/dpf/block"
)

// Keys and evaluation contexts serialize to CBOR. The wire layout mirrors
// the record schemas of the construction; everything else about the
// encoding is opaque to callers. Serialization is deterministic, so
// serialize/deserialize round trips re-evaluate bit-identically.

// Serialize encodes the key for storage or transmission.
func (k DpfKey) Serialize() ([]byte, error) {
	data, err := cbor.Marshal(k)
	if err != nil {
		return nil, fmt.Errorf("serializing DPF key: %w", err)
	}
	return data, nil
}

// Deserialize populates the key from data produced by Serialize.
func (k *DpfKey) Deserialize(data []byte) error {
	if err := cbor.Unmarshal(data, k); err != nil {
		return fmt.Errorf("deserializing DPF key: %w", err)
	}
	return nil
}

type serializedPartialEvaluation struct {
	Prefix     block.Block `cbor:"prefix"`
	Seed       block.Block `cbor:"seed"`
	ControlBit bool        `cbor:"control_bit"`
}

type serializedContext struct {
	Parameters         []DpfParameters               `cbor:"parameters"`
	Key                DpfKey                        `cbor:"key"`
	HierarchyLevel     int                           `cbor:"hierarchy_level"`
	PartialEvaluations []serializedPartialEvaluation `cbor:"partial_evaluations"`
}

// Serialize encodes the context, including its partial evaluations, so that
// evaluation can resume in another process.
func (ctx *EvaluationContext) Serialize() ([]byte, error) {
	sc := serializedContext{
		Parameters:         ctx.params,
		Key:                ctx.key,
		HierarchyLevel:     ctx.hierarchyLevel,
		PartialEvaluations: make([]serializedPartialEvaluation, 0, len(ctx.partialEvaluations)),
	}
	for prefix, pe := range ctx.partialEvaluations {
		sc.PartialEvaluations = append(sc.PartialEvaluations, serializedPartialEvaluation{
			Prefix:     prefix,
			Seed:       pe.Seed,
			ControlBit: pe.ControlBit,
		})
	}
	// Map iteration order is random; fix it for a deterministic encoding.
	sort.Slice(sc.PartialEvaluations, func(a, b int) bool {
		pa, pb := sc.PartialEvaluations[a].Prefix, sc.PartialEvaluations[b].Prefix
		if pa[1] != pb[1] {
			return pa[1] < pb[1]
		}
		return pa[0] < pb[0]
	})
	data, err := cbor.Marshal(sc)
	if err != nil {
		return nil, fmt.Errorf("serializing evaluation context: %w", err)
	}
	return data, nil
}

// Deserialize populates the context from data produced by Serialize.
func (ctx *EvaluationContext) Deserialize(data []byte) error {
	var sc serializedContext
	if err := cbor.Unmarshal(data, &sc); err != nil {
		return fmt.Errorf("deserializing evaluation context: %w", err)
	}
	ctx.params = sc.Parameters
	ctx.key = sc.Key
	ctx.hierarchyLevel = sc.HierarchyLevel
	ctx.partialEvaluations = make(map[block.Block]PartialEvaluation, len(sc.PartialEvaluations))
	for _, pe := range sc.PartialEvaluations {
		ctx.partialEvaluations[pe.Prefix] = PartialEvaluation{
			Seed:       pe.Seed,
			ControlBit: pe.ControlBit,
		}
	}
	return nil
}
