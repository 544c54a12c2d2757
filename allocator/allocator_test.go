package allocator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAllocator(t *testing.T, size int) *Allocator {
	t.Helper()
	a, err := New(make([]byte, size))
	require.NoError(t, err)
	return a
}

func TestAllocReturnsDistinctNonOverlappingBlocks(t *testing.T) {
	a := newTestAllocator(t, 4096)

	p1, err := a.Alloc(64)
	require.NoError(t, err)
	p2, err := a.Alloc(64)
	require.NoError(t, err)

	assert.NotEqual(t, p1, p2)
	b1 := a.Payload(p1)
	b2 := a.Payload(p2)
	copy(b1, []byte("hello-one-------"))
	copy(b2, []byte("hello-two-------"))
	assert.NotEqual(t, string(b1[:9]), string(b2[:9]))
}

func TestAllocOutOfMemory(t *testing.T) {
	a := newTestAllocator(t, 128)
	_, err := a.Alloc(10000)
	assert.ErrorIs(t, err, ErrOutOfMemory)
}

func TestFreeAllowsReuse(t *testing.T) {
	a := newTestAllocator(t, 256)
	p1, err := a.Alloc(32)
	require.NoError(t, err)
	require.NoError(t, a.Free(p1))

	p2, err := a.Alloc(32)
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
}

func TestFreeInvalidPointer(t *testing.T) {
	a := newTestAllocator(t, 256)
	err := a.Free(999999)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestFreeDoubleFreeRejected(t *testing.T) {
	a := newTestAllocator(t, 256)
	p1, err := a.Alloc(32)
	require.NoError(t, err)
	require.NoError(t, a.Free(p1))
	err = a.Free(p1)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestCoalescingReclaimsFullRegion(t *testing.T) {
	a := newTestAllocator(t, 512)

	var ptrs []uint64
	for i := 0; i < 4; i++ {
		p, err := a.Alloc(32)
		require.NoError(t, err)
		ptrs = append(ptrs, p)
	}
	for _, p := range ptrs {
		require.NoError(t, a.Free(p))
	}

	// After freeing everything (in order), adjacent blocks should have
	// coalesced back into (close to) the original single free span,
	// so a large allocation should now succeed.
	big, err := a.Alloc(300)
	assert.NoError(t, err)
	assert.NotZero(t, big)
}

func TestRootObjectRoundTrip(t *testing.T) {
	a := newTestAllocator(t, 256)
	assert.Zero(t, a.GetRootObject())

	p, err := a.Alloc(16)
	require.NoError(t, err)
	require.NoError(t, a.SetRootObject(p))
	assert.Equal(t, p, a.GetRootObject())

	require.NoError(t, a.SetRootObject(0))
	assert.Zero(t, a.GetRootObject())
}

func TestSetRootObjectRejectsInvalidPointer(t *testing.T) {
	a := newTestAllocator(t, 256)
	err := a.SetRootObject(123456)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestAllocRoundsUpSmallSizes(t *testing.T) {
	a := newTestAllocator(t, 256)
	p, err := a.Alloc(1)
	require.NoError(t, err)
	payload := a.Payload(p)
	assert.GreaterOrEqual(t, len(payload), minPayload)
}
