// Package allocator implements a first-fit, coalescing allocator over a
// fixed byte region (optionally memory-mapped, for cross-process sharing),
// protected by an in-region spin-lock, with a persistent root-object
// handle.
package allocator

import (
	"encoding/binary"
	"errors"
	"sync/atomic"
	"unsafe"

	"github.com/kogansys/substrate/timeutil"
)

// ErrInvalidArgument is returned by Free and SetRootObject when the given
// offset does not point at a live block payload inside the region.
var ErrInvalidArgument = errors.New("allocator: invalid argument")

// ErrOutOfMemory is returned by Alloc when no free block is large enough.
var ErrOutOfMemory = errors.New("allocator: out of memory")

const (
	// headerSize is the fixed, persisted region header: {lockWord int32,
	// freeListOffset uint64 at byte 4, rootObjectOffset uint64 at byte 12},
	// body starting at byte 20 - the layout a separate mapper must be able
	// to rediscover the canonical entry point from. binary.LittleEndian
	// reads/writes at unaligned offsets, so there is no reason to pad.
	headerSize = 4 + 8 + 8

	lockWordOff       = 0
	freeListOffsetOff = 4
	rootObjOffsetOff  = 12

	// blockHeaderSize is {size uint64, next uint64} immediately preceding
	// every block's payload.
	blockHeaderSize = 8 + 8

	// minPayload is the smallest payload Alloc will ever hand out,
	// mirroring Block::SMALLEST_BLOCK_SIZE: big enough that a freed
	// block's payload can always be reinterpreted to carry free-list
	// bookkeeping if a future layout needs it.
	minPayload = 16

	// freeBlockSize is the minimum remainder, after a split, required to
	// leave behind a usable free block instead of over-allocating.
	freeBlockSize = blockHeaderSize + minPayload
)

// Allocator manages a fixed-size byte region as a first-fit, coalescing
// heap. The zero value is not usable; construct with New or Open.
type Allocator struct {
	region []byte
}

// New formats a fresh region of the given total size (header + one large
// free block spanning the rest) and returns an Allocator over it.
func New(region []byte) (*Allocator, error) {
	if len(region) < headerSize+blockHeaderSize+minPayload {
		return nil, errors.New("allocator: region too small")
	}
	a := &Allocator{region: region}
	putU32(a.region, lockWordOff, 0)
	bodySize := uint64(len(region) - headerSize)
	a.setFreeListOffset(headerSize)
	a.setRootObjectOffset(0)
	a.writeBlock(headerSize, bodySize-blockHeaderSize, 0)
	return a, nil
}

// Open wraps an already-formatted region (e.g. one written by New and
// persisted, or mapped from another process via Mmap) without
// reinitializing it.
func Open(region []byte) (*Allocator, error) {
	if len(region) < headerSize {
		return nil, errors.New("allocator: region too small")
	}
	return &Allocator{region: region}, nil
}

func (a *Allocator) lockPtr() *int32 {
	return (*int32)(unsafe.Pointer(&a.region[lockWordOff]))
}

// lock acquires the in-region spin-lock with exponential back-off, usable
// across processes sharing the same mapping since it operates directly on
// the region's memory rather than a process-local mutex.
func (a *Allocator) lock() {
	p := a.lockPtr()
	if atomic.CompareAndSwapInt32(p, 0, 1) {
		return
	}
	var b timeutil.Backoff
	for !atomic.CompareAndSwapInt32(p, 0, 1) {
		b.Pause()
	}
}

func (a *Allocator) unlock() {
	atomic.StoreInt32(a.lockPtr(), 0)
}

func (a *Allocator) freeListOffset() uint64 {
	return getU64(a.region, freeListOffsetOff)
}

func (a *Allocator) setFreeListOffset(off uint64) {
	putU64(a.region, freeListOffsetOff, off)
}

func (a *Allocator) rootObjectOffset() uint64 {
	return getU64(a.region, rootObjOffsetOff)
}

func (a *Allocator) setRootObjectOffset(off uint64) {
	putU64(a.region, rootObjOffsetOff, off)
}

// block view: size/next live at off, payload at off+blockHeaderSize.
func (a *Allocator) blockSize(off uint64) uint64 { return getU64(a.region, off) }
func (a *Allocator) blockNext(off uint64) uint64 { return getU64(a.region, off+8) }
func (a *Allocator) setBlockSize(off, v uint64)  { putU64(a.region, off, v) }
func (a *Allocator) setBlockNext(off, v uint64)  { putU64(a.region, off+8, v) }

func (a *Allocator) writeBlock(off, size, next uint64) {
	a.setBlockSize(off, size)
	a.setBlockNext(off, next)
}

func payloadOffset(blockOff uint64) uint64 { return blockOff + blockHeaderSize }
func blockOffset(payloadOff uint64) uint64 { return payloadOff - blockHeaderSize }

func getU64(b []byte, off uint64) uint64 {
	return binary.LittleEndian.Uint64(b[off : off+8])
}
func putU64(b []byte, off, v uint64) {
	binary.LittleEndian.PutUint64(b[off:off+8], v)
}
func putU32(b []byte, off uint64, v uint32) {
	binary.LittleEndian.PutUint32(b[off:off+4], v)
}

// Alloc returns the payload offset of a newly allocated block of at least
// size bytes, or ErrOutOfMemory if no free block is large enough.
func (a *Allocator) Alloc(size uint64) (uint64, error) {
	if size < minPayload {
		size = minPayload
	}
	a.lock()
	defer a.unlock()

	var prevOff uint64 // 0 == "no predecessor"
	hasPrev := false
	for off := a.freeListOffset(); off != 0; {
		blkSize := a.blockSize(off)
		if blkSize >= size {
			remainder := blkSize - size
			var nextFree uint64
			if remainder >= freeBlockSize {
				freeOff := off + blockHeaderSize + size
				a.writeBlock(freeOff, remainder-blockHeaderSize, a.blockNext(off))
				a.setBlockSize(off, size)
				nextFree = freeOff
			} else {
				nextFree = a.blockNext(off)
			}
			if hasPrev {
				a.setBlockNext(prevOff, nextFree)
			} else {
				a.setFreeListOffset(nextFree)
			}
			return payloadOffset(off), nil
		}
		prevOff = off
		hasPrev = true
		off = a.blockNext(off)
	}
	return 0, ErrOutOfMemory
}

// Free returns the block at payloadOff to the free list, coalescing with
// physically adjacent neighbors.
func (a *Allocator) Free(payloadOff uint64) error {
	a.lock()
	defer a.unlock()

	blockToFree, err := a.validatePtr(payloadOff)
	if err != nil {
		return err
	}

	var prevOff uint64
	hasPrev := false
	for off := a.freeListOffset(); off != 0; off = a.blockNext(off) {
		if off > blockToFree {
			if hasPrev {
				if a.adjacentEnd(prevOff) == blockToFree {
					a.setBlockSize(prevOff, a.blockSize(prevOff)+a.trueBlockSize(blockToFree))
					if a.adjacentEnd(blockToFree) == off {
						a.setBlockNext(prevOff, a.blockNext(off))
						a.setBlockSize(prevOff, a.blockSize(prevOff)+a.trueBlockSize(off))
					}
				} else if a.adjacentEnd(blockToFree) == off {
					a.setBlockNext(prevOff, blockToFree)
					a.setBlockNext(blockToFree, a.blockNext(off))
					a.setBlockSize(blockToFree, a.blockSize(blockToFree)+a.trueBlockSize(off))
				} else {
					a.setBlockNext(prevOff, blockToFree)
					a.setBlockNext(blockToFree, off)
				}
			} else {
				a.setFreeListOffset(blockToFree)
				if a.adjacentEnd(blockToFree) == off {
					a.setBlockNext(blockToFree, a.blockNext(off))
					a.setBlockSize(blockToFree, a.blockSize(blockToFree)+a.trueBlockSize(off))
				} else {
					a.setBlockNext(blockToFree, off)
				}
			}
			return nil
		}
		prevOff = off
		hasPrev = true
	}

	if !hasPrev {
		a.setFreeListOffset(blockToFree)
		a.setBlockNext(blockToFree, 0)
	} else if a.adjacentEnd(prevOff) == blockToFree {
		a.setBlockSize(prevOff, a.blockSize(prevOff)+a.trueBlockSize(blockToFree))
	} else {
		a.setBlockNext(prevOff, blockToFree)
		a.setBlockNext(blockToFree, 0)
	}
	return nil
}

// trueBlockSize is the full span of a block, header included, used when
// merging a neighbor's bytes into a preceding block's size.
func (a *Allocator) trueBlockSize(off uint64) uint64 {
	return blockHeaderSize + a.blockSize(off)
}

// adjacentEnd returns the offset one past the end of the block at off -
// i.e. where a physically-adjacent following block would start.
func (a *Allocator) adjacentEnd(off uint64) uint64 {
	return off + a.trueBlockSize(off)
}

// validatePtr checks that payloadOff refers to a live (allocated, i.e. not
// on the free list) block inside the region, returning its block offset.
func (a *Allocator) validatePtr(payloadOff uint64) (uint64, error) {
	if payloadOff < headerSize+blockHeaderSize || payloadOff+minPayload > uint64(len(a.region)) {
		return 0, ErrInvalidArgument
	}
	blockOff := blockOffset(payloadOff)
	// Blocks tile the body back to back, so walking their headers from the
	// start of the body either lands on blockOff or proves it is no block.
	walk := uint64(headerSize)
	for walk < blockOff {
		walk = a.adjacentEnd(walk)
	}
	if walk != blockOff {
		return 0, ErrInvalidArgument
	}
	for off := a.freeListOffset(); off != 0; off = a.blockNext(off) {
		if off == blockOff {
			return 0, ErrInvalidArgument // already free
		}
	}
	return blockOff, nil
}

// SetRootObject stores payloadOff (or 0 to clear) as the region's root
// object handle.
func (a *Allocator) SetRootObject(payloadOff uint64) error {
	a.lock()
	defer a.unlock()
	if payloadOff != 0 {
		if _, err := a.validatePtr(payloadOff); err != nil {
			return err
		}
	}
	a.setRootObjectOffset(payloadOff)
	return nil
}

// GetRootObject returns the stored root object payload offset, or 0 if
// unset.
func (a *Allocator) GetRootObject() uint64 {
	a.lock()
	defer a.unlock()
	return a.rootObjectOffset()
}

// Payload returns the byte slice backing the allocated block at
// payloadOff, sized to its current payload length.
func (a *Allocator) Payload(payloadOff uint64) []byte {
	blockOff := blockOffset(payloadOff)
	size := a.blockSize(blockOff)
	return a.region[payloadOff : payloadOff+size]
}
