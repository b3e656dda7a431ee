package prg_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdapena/distributed-point-functions/dpf/block"
	"github.com/jdapena/distributed-point-functions/dpf/prg"
)

func TestExpandDeterministic(t *testing.T) {
	g, err := prg.NewLeft()
	require.NoError(t, err)

	seed := block.FromUint64Pair(42, 7)
	assert.Equal(t, g.Expand(seed), g.Expand(seed))
}

func TestInstancesDiffer(t *testing.T) {
	left, err := prg.NewLeft()
	require.NoError(t, err)
	right, err := prg.NewRight()
	require.NoError(t, err)
	value, err := prg.NewValue()
	require.NoError(t, err)

	seed := block.FromUint64(1)
	l, r, v := left.Expand(seed), right.Expand(seed), value.Expand(seed)
	assert.NotEqual(t, l, r)
	assert.NotEqual(t, l, v)
	assert.NotEqual(t, r, v)
}

func TestExpandChangesSeed(t *testing.T) {
	g, err := prg.NewValue()
	require.NoError(t, err)

	seed := block.FromUint64(99)
	assert.NotEqual(t, seed, g.Expand(seed))
	assert.NotEqual(t, g.Expand(seed), g.Expand(seed.Xor(block.FromUint64(1))))
}

func TestExpandBatchMatchesSequential(t *testing.T) {
	g, err := prg.NewRight()
	require.NoError(t, err)

	src := make([]block.Block, 17)
	for i := range src {
		src[i] = block.FromUint64Pair(uint64(i), uint64(i*i))
	}
	dst := make([]block.Block, len(src))
	g.ExpandBatch(dst, src)

	for i, seed := range src {
		assert.Equal(t, g.Expand(seed), dst[i])
	}
}

func TestExpandBatchInPlace(t *testing.T) {
	g, err := prg.NewLeft()
	require.NoError(t, err)

	seeds := []block.Block{block.FromUint64(3), block.FromUint64(4)}
	want := []block.Block{g.Expand(seeds[0]), g.Expand(seeds[1])}
	g.ExpandBatch(seeds, seeds)
	assert.Equal(t, want, seeds)
}

func TestExpandBatchLengthMismatch(t *testing.T) {
	g, err := prg.NewLeft()
	require.NoError(t, err)

	assert.Panics(t, func() {
		g.ExpandBatch(make([]block.Block, 1), make([]block.Block, 2))
	})
}
