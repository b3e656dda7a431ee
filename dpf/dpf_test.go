package dpf_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdapena/distributed-point-functions/dpf"
	"github.com/jdapena/distributed-point-functions/dpf/block"
)

// countingReader counts how often the random source is consulted.
type countingReader struct {
	calls int
	next  byte
}

func (c *countingReader) Read(p []byte) (int, error) {
	c.calls++
	for i := range p {
		c.next += 0x9d
		p[i] = c.next
	}
	return len(p), nil
}

// allPrefixes returns every point of a 2^logDomain domain in order.
func allPrefixes(logDomain int) []block.Block {
	out := make([]block.Block, 1<<logDomain)
	for i := range out {
		out[i] = block.FromUint64(uint64(i))
	}
	return out
}

// evaluateLevel runs EvaluateNext with the output type matching the level's
// element bitsize and widens the shares to uint64.
func evaluateLevel(t *testing.T, d *dpf.DistributedPointFunction, prefixes []block.Block, ctx *dpf.EvaluationContext, bitsize int) []uint64 {
	t.Helper()
	widen := func(err error, n int, get func(int) uint64) []uint64 {
		require.NoError(t, err)
		out := make([]uint64, n)
		for i := range out {
			out[i] = get(i)
		}
		return out
	}
	switch bitsize {
	case 1, 2, 4, 8:
		v, err := dpf.EvaluateNext[uint8](d, prefixes, ctx)
		return widen(err, len(v), func(i int) uint64 { return uint64(v[i]) })
	case 16:
		v, err := dpf.EvaluateNext[uint16](d, prefixes, ctx)
		return widen(err, len(v), func(i int) uint64 { return uint64(v[i]) })
	case 32:
		v, err := dpf.EvaluateNext[uint32](d, prefixes, ctx)
		return widen(err, len(v), func(i int) uint64 { return uint64(v[i]) })
	case 64:
		v, err := dpf.EvaluateNext[uint64](d, prefixes, ctx)
		return widen(err, len(v), func(i int) uint64 { return v[i] })
	default:
		t.Fatalf("unsupported bitsize %d", bitsize)
		return nil
	}
}

// combined adds the two parties' shares modulo 2^bitsize.
func combined(a, b []uint64, bitsize int) []uint64 {
	out := make([]uint64, len(a))
	mask := ^uint64(0)
	if bitsize < 64 {
		mask = 1<<bitsize - 1
	}
	for i := range a {
		out[i] = (a[i] + b[i]) & mask
	}
	return out
}

func TestCreateRejectsInvalidParameters(t *testing.T) {
	_, err := dpf.CreateIncremental([]dpf.DpfParameters{
		{LogDomainSize: 4, ElementBitsize: 8},
		{LogDomainSize: 3, ElementBitsize: 8},
	})
	assert.ErrorIs(t, err, dpf.ErrInvalidArgument)

	_, err = dpf.CreateIncremental(nil)
	assert.ErrorIs(t, err, dpf.ErrInvalidArgument)

	_, err = dpf.Create(dpf.DpfParameters{LogDomainSize: 4, ElementBitsize: 24})
	assert.ErrorIs(t, err, dpf.ErrUnimplemented)
}

func TestGenerateKeysRequiresSingleLevel(t *testing.T) {
	d, err := dpf.CreateIncremental([]dpf.DpfParameters{
		{LogDomainSize: 2, ElementBitsize: 8},
		{LogDomainSize: 4, ElementBitsize: 8},
	})
	require.NoError(t, err)

	_, _, err = d.GenerateKeys(block.FromUint64(1), block.FromUint64(1))
	assert.ErrorIs(t, err, dpf.ErrInvalidArgument)
}

func TestGenerateKeysDomainChecks(t *testing.T) {
	d, err := dpf.Create(dpf.DpfParameters{LogDomainSize: 4, ElementBitsize: 8})
	require.NoError(t, err)

	_, _, err = d.GenerateKeys(block.FromUint64(16), block.FromUint64(1))
	assert.ErrorIs(t, err, dpf.ErrInvalidArgument, "alpha outside the domain")

	_, _, err = d.GenerateKeys(block.FromUint64(3), block.FromUint64(256))
	assert.ErrorIs(t, err, dpf.ErrInvalidArgument, "beta outside the element width")

	_, _, err = d.GenerateKeysIncremental(block.FromUint64(3), []block.Block{
		block.FromUint64(1), block.FromUint64(1),
	})
	assert.ErrorIs(t, err, dpf.ErrInvalidArgument, "wrong number of betas")
}

func TestRandomSourceConsultedTwicePerKeyPair(t *testing.T) {
	src := &countingReader{}
	d, err := dpf.Create(dpf.DpfParameters{LogDomainSize: 6, ElementBitsize: 16},
		dpf.WithRandomSource(src))
	require.NoError(t, err)

	_, _, err = d.GenerateKeys(block.FromUint64(10), block.FromUint64(1234))
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)

	_, _, err = d.GenerateKeys(block.FromUint64(11), block.FromUint64(99))
	require.NoError(t, err)
	assert.Equal(t, 4, src.calls)
}

func TestKeyGenerationDeterministicForFixedSource(t *testing.T) {
	gen := func() (dpf.DpfKey, dpf.DpfKey) {
		d, err := dpf.Create(dpf.DpfParameters{LogDomainSize: 5, ElementBitsize: 32},
			dpf.WithRandomSource(&countingReader{}))
		require.NoError(t, err)
		ka, kb, err := d.GenerateKeys(block.FromUint64(17), block.FromUint64(321))
		require.NoError(t, err)
		return ka, kb
	}
	ka1, kb1 := gen()
	ka2, kb2 := gen()
	assert.Equal(t, ka1, ka2)
	assert.Equal(t, kb1, kb2)
}

func TestKeyPairStructure(t *testing.T) {
	d, err := dpf.Create(dpf.DpfParameters{LogDomainSize: 4, ElementBitsize: 32})
	require.NoError(t, err)

	keyA, keyB, err := d.GenerateKeys(block.FromUint64(5), block.FromUint64(42))
	require.NoError(t, err)

	assert.False(t, keyA.Party)
	assert.True(t, keyB.Party)
	assert.False(t, keyA.ControlBit)
	assert.True(t, keyB.ControlBit)
	assert.NotEqual(t, keyA.Seed, keyB.Seed)

	// 2^4 domain with 32-bit elements: 4 elements per block, 2 tree
	// levels expanded, no intermediate hierarchy boundaries.
	require.Len(t, keyA.CorrectionWords, 2)
	assert.Equal(t, keyA.CorrectionWords, keyB.CorrectionWords)
	assert.Equal(t, keyA.LastLevelValueCorrection, keyB.LastLevelValueCorrection)
	for _, cw := range keyA.CorrectionWords {
		assert.Nil(t, cw.ValueCorrection)
	}
}

func TestSingleLevelAdditiveShares(t *testing.T) {
	// log_domain_size=4, element_bitsize=32, alpha=5, beta=42.
	d, err := dpf.Create(dpf.DpfParameters{LogDomainSize: 4, ElementBitsize: 32})
	require.NoError(t, err)

	keyA, keyB, err := d.GenerateKeys(block.FromUint64(5), block.FromUint64(42))
	require.NoError(t, err)

	sharesA, err := dpf.EvaluateAll[uint32](d, keyA)
	require.NoError(t, err)
	sharesB, err := dpf.EvaluateAll[uint32](d, keyB)
	require.NoError(t, err)
	require.Len(t, sharesA, 16)
	require.Len(t, sharesB, 16)

	for x := 0; x < 16; x++ {
		sum := sharesA[x] + sharesB[x]
		if x == 5 {
			assert.Equal(t, uint32(42), sum, "x=%d", x)
		} else {
			assert.Equal(t, uint32(0), sum, "x=%d", x)
		}
	}
}

func TestSingleBitPointFunction(t *testing.T) {
	// log_domain_size=1, element_bitsize=1, alpha=0, beta=1.
	d, err := dpf.Create(dpf.DpfParameters{LogDomainSize: 1, ElementBitsize: 1})
	require.NoError(t, err)

	keyA, keyB, err := d.GenerateKeys(block.Zero, block.FromUint64(1))
	require.NoError(t, err)

	sharesA, err := dpf.EvaluateAll[uint8](d, keyA)
	require.NoError(t, err)
	sharesB, err := dpf.EvaluateAll[uint8](d, keyB)
	require.NoError(t, err)

	assert.Equal(t, uint8(1), (sharesA[0]+sharesB[0])&1)
	assert.Equal(t, uint8(0), (sharesA[1]+sharesB[1])&1)
}

func TestZeroLogDomainSize(t *testing.T) {
	// A single-point domain: the whole function is one value.
	d, err := dpf.Create(dpf.DpfParameters{LogDomainSize: 0, ElementBitsize: 16})
	require.NoError(t, err)

	keyA, keyB, err := d.GenerateKeys(block.Zero, block.FromUint64(777))
	require.NoError(t, err)
	assert.Empty(t, keyA.CorrectionWords)

	sharesA, err := dpf.EvaluateAll[uint16](d, keyA)
	require.NoError(t, err)
	sharesB, err := dpf.EvaluateAll[uint16](d, keyB)
	require.NoError(t, err)
	require.Len(t, sharesA, 1)
	assert.Equal(t, uint16(777), sharesA[0]+sharesB[0])
}

func TestElementBitsize128(t *testing.T) {
	d, err := dpf.Create(dpf.DpfParameters{LogDomainSize: 3, ElementBitsize: 128})
	require.NoError(t, err)

	beta := block.FromUint64Pair(0xdeadbeefcafe, 1<<40)
	keyA, keyB, err := d.GenerateKeys(block.FromUint64(6), beta)
	require.NoError(t, err)

	ctxA, err := d.CreateEvaluationContext(keyA)
	require.NoError(t, err)
	ctxB, err := d.CreateEvaluationContext(keyB)
	require.NoError(t, err)

	sharesA, err := dpf.EvaluateNext128(d, nil, ctxA)
	require.NoError(t, err)
	sharesB, err := dpf.EvaluateNext128(d, nil, ctxB)
	require.NoError(t, err)
	require.Len(t, sharesA, 8)

	for x := 0; x < 8; x++ {
		sum := sharesA[x].Add(sharesB[x])
		if x == 6 {
			assert.Equal(t, beta, sum, "x=%d", x)
		} else {
			assert.Equal(t, block.Zero, sum, "x=%d", x)
		}
	}
}

func TestFullDomainKeygen(t *testing.T) {
	// log_domain_size=128 keys can be generated and their first level
	// evaluated; the single 126-bit jump to the last level is rejected.
	d, err := dpf.CreateIncremental([]dpf.DpfParameters{
		{LogDomainSize: 2, ElementBitsize: 8},
		{LogDomainSize: 128, ElementBitsize: 8},
	})
	require.NoError(t, err)

	alpha := block.FromUint64Pair(0x123456789abcdef0, 0xd00dfeed00c0ffee)
	keyA, keyB, err := d.GenerateKeysIncremental(alpha, []block.Block{
		block.FromUint64(9), block.FromUint64(200),
	})
	require.NoError(t, err)

	ctxA, err := d.CreateEvaluationContext(keyA)
	require.NoError(t, err)
	ctxB, err := d.CreateEvaluationContext(keyB)
	require.NoError(t, err)

	levelA := evaluateLevel(t, d, nil, ctxA, 8)
	levelB := evaluateLevel(t, d, nil, ctxB, 8)
	sums := combined(levelA, levelB, 8)

	alphaPrefix := alpha.Shr(126).Uint64()
	for p := uint64(0); p < 4; p++ {
		if p == alphaPrefix {
			assert.Equal(t, uint64(9), sums[p])
		} else {
			assert.Equal(t, uint64(0), sums[p])
		}
	}

	// Expanding 126 domain bits in one call cannot be represented.
	_, err = dpf.EvaluateNext[uint8](d, []block.Block{block.FromUint64(alphaPrefix)}, ctxA)
	assert.ErrorIs(t, err, dpf.ErrInvalidArgument)
}

func TestParametersAccessorCopies(t *testing.T) {
	d, err := dpf.Create(dpf.DpfParameters{LogDomainSize: 4, ElementBitsize: 8})
	require.NoError(t, err)

	params := d.Parameters()
	params[0].LogDomainSize = 99
	assert.Equal(t, 4, d.Parameters()[0].LogDomainSize)
}
