package heap

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/kernelkit/internal/utils"
	"github.com/vkngwrapper/kernelkit/memutils"
	"golang.org/x/exp/slog"
)

// BlockAllocationHandle is a numeric handle used to identify an individual allocation within the heap
type BlockAllocationHandle uint64

const (
	// NoAllocation is the empty handle. Releasing it is a no-op.
	NoAllocation BlockAllocationHandle = math.MaxUint64

	noNext uint64 = math.MaxUint64
)

// blockHeader is the decoded form of the header stored at the start of each block in the arena
type blockHeader struct {
	size int
	free bool
	next uint64
}

type allocationRecord struct {
	offset    int
	requested int
	live      bool
}

// Heap carves a fixed arena into blocks and serves first-fit allocations from them. The free-block
// chain is threaded through the arena: every block begins with a HeaderSize-byte header holding its
// payload size, its free flag and the offset of the next header.
//
// The block layout is fixed by Init. Allocating takes a whole block however small the request, and
// releasing never merges neighbors, so a block's offset and size never change between resets.
type Heap struct {
	mutex  utils.OptionalRWMutex
	logger *slog.Logger

	arena  []byte
	layout []int

	slabQuantum uint

	allocCount           int
	nextAllocationHandle BlockAllocationHandle
	handleKey            *swiss.Map[BlockAllocationHandle, *allocationRecord]
	blockOwner           *swiss.Map[int, BlockAllocationHandle]
}

var _ memutils.Validatable = &Heap{}

func (h *Heap) readHeader(offset int) blockHeader {
	header := h.arena[offset : offset+HeaderSize]
	return blockHeader{
		size: int(binary.LittleEndian.Uint64(header[0:8])),
		free: binary.LittleEndian.Uint32(header[8:12]) != 0,
		next: binary.LittleEndian.Uint64(header[16:24]),
	}
}

func (h *Heap) writeHeader(offset int, block blockHeader) {
	header := h.arena[offset : offset+HeaderSize]
	binary.LittleEndian.PutUint64(header[0:8], uint64(block.size))
	var free uint32
	if block.free {
		free = 1
	}
	binary.LittleEndian.PutUint32(header[8:12], free)
	binary.LittleEndian.PutUint32(header[12:16], 0)
	binary.LittleEndian.PutUint64(header[16:24], block.next)
}

func (h *Heap) setFree(offset int, free bool) {
	block := h.readHeader(offset)
	block.free = free
	h.writeHeader(offset, block)
}

// Init resets the arena to its initial layout with every block free. Every handle issued before the
// reset becomes invalid, so Init must not be called while allocations are still in use.
func (h *Heap) Init() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.init()
}

func (h *Heap) init() {
	offset := 0
	for index, size := range h.layout {
		next := noNext
		if index < len(h.layout)-1 {
			next = uint64(offset + HeaderSize + size)
		}

		h.writeHeader(offset, blockHeader{size: size, free: true, next: next})
		offset += HeaderSize + size
	}

	h.allocCount = 0
	h.handleKey, h.blockOwner = newHandleMaps(len(h.layout))
}

// Allocate returns a handle to the first free block, in arena order, whose payload can hold size bytes.
// The whole block is taken even when it is much larger than size. If no block fits, an error wrapping
// memutils.ErrOutOfMemory is returned and the heap is unchanged.
func (h *Heap) Allocate(size int) (BlockAllocationHandle, error) {
	if size < 0 {
		return NoAllocation, errors.Wrapf(memutils.ErrInvalidSize, "requested %d bytes", size)
	}

	memutils.DebugValidate(h)

	h.mutex.Lock()
	defer h.mutex.Unlock()

	for offset := 0; ; {
		block := h.readHeader(offset)
		if block.free && block.size >= size {
			block.free = false
			h.writeHeader(offset, block)
			return h.registerAllocation(offset, size), nil
		}

		if block.next == noNext {
			break
		}
		offset = int(block.next)
	}

	h.logger.Debug("Heap::Allocate exhausted", slog.Int("Size", size), slog.Int("AllocationCount", h.allocCount))
	return NoAllocation, errors.Wrapf(memutils.ErrOutOfMemory, "requested %d bytes", size)
}

func (h *Heap) registerAllocation(offset int, requested int) BlockAllocationHandle {
	// Retire the handle from the block's previous allocation so it can't release the new one
	previous, ok := h.blockOwner.Get(offset)
	if ok {
		h.handleKey.Delete(previous)
	}

	handle := h.nextAllocationHandle
	h.nextAllocationHandle++
	h.handleKey.Put(handle, &allocationRecord{offset: offset, requested: requested, live: true})
	h.blockOwner.Put(offset, handle)
	h.allocCount++

	h.logger.Debug("Heap::Allocate", slog.Int("Offset", offset), slog.Int("Size", requested), slog.Uint64("Handle", uint64(handle)))
	return handle
}

func (h *Heap) getAllocation(handle BlockAllocationHandle) (*allocationRecord, error) {
	record, ok := h.handleKey.Get(handle)
	if !ok {
		return nil, errors.Wrapf(memutils.ErrInvalidHandle, "handle %d", handle)
	}
	if !record.live {
		return nil, errors.Wrapf(memutils.ErrDoubleRelease, "handle %d at offset %d", handle, record.offset)
	}
	return record, nil
}

// Release marks the block behind handle as free again. Releasing NoAllocation is a no-op. A handle
// that this heap never issued, or issued before the last Init, fails with memutils.ErrInvalidHandle;
// releasing the same handle twice fails with memutils.ErrDoubleRelease.
func (h *Heap) Release(handle BlockAllocationHandle) error {
	if handle == NoAllocation {
		return nil
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	record, err := h.getAllocation(handle)
	if err != nil {
		return err
	}

	h.setFree(record.offset, true)
	record.live = false
	h.allocCount--

	h.logger.Debug("Heap::Release", slog.Int("Offset", record.offset), slog.Uint64("Handle", uint64(handle)))
	return nil
}

// UsedBytes is the sum of the payload sizes of every allocated block
func (h *Heap) UsedBytes() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	used := 0
	h.walk(func(offset int, block blockHeader) {
		if !block.free {
			used += block.size
		}
	})
	return used
}

// PoolAllocate serves a request on behalf of a memory pool. Pools take blocks from the arena exactly as
// Allocate does.
func (h *Heap) PoolAllocate(size int) (BlockAllocationHandle, error) {
	return h.Allocate(size)
}

// SlabAllocate rounds size up to a multiple of the heap's slab quantum before allocating
func (h *Heap) SlabAllocate(size int) (BlockAllocationHandle, error) {
	if size < 0 {
		return NoAllocation, errors.Wrapf(memutils.ErrInvalidSize, "requested %d bytes", size)
	}

	// Rounding would overflow, and no block could be that large anyway
	if size > math.MaxInt-int(h.slabQuantum)+1 {
		return NoAllocation, errors.Wrapf(memutils.ErrOutOfMemory, "requested %d bytes", size)
	}

	return h.Allocate(memutils.AlignUp(size, h.slabQuantum))
}

// Bytes returns the payload of the block behind handle. The slice aliases the arena and is only valid
// until the handle is released.
func (h *Heap) Bytes(handle BlockAllocationHandle) ([]byte, error) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	record, err := h.getAllocation(handle)
	if err != nil {
		return nil, err
	}

	start := record.offset + HeaderSize
	end := start + h.readHeader(record.offset).size
	return h.arena[start:end:end], nil
}

// BlockSize returns the payload capacity of the block behind handle, which may exceed the requested size
func (h *Heap) BlockSize(handle BlockAllocationHandle) (int, error) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	record, err := h.getAllocation(handle)
	if err != nil {
		return 0, err
	}

	return h.readHeader(record.offset).size, nil
}

// Size returns the arena capacity in bytes, headers included
func (h *Heap) Size() int { return len(h.arena) }

// BlockCount returns the number of blocks the arena is partitioned into
func (h *Heap) BlockCount() int { return len(h.layout) }

func (h *Heap) AllocationCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	return h.allocCount
}

// SumFreeSize returns the sum of the payload sizes of every free block
func (h *Heap) SumFreeSize() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	free := 0
	h.walk(func(offset int, block blockHeader) {
		if block.free {
			free += block.size
		}
	})
	return free
}

// IsEmpty returns true if the heap has no live allocations
func (h *Heap) IsEmpty() bool {
	return h.AllocationCount() == 0
}

// walk visits every header in chain order. It stops after Size()/HeaderSize steps so that a corrupted
// chain can't loop forever.
func (h *Heap) walk(visit func(offset int, block blockHeader)) {
	limit := len(h.arena) / HeaderSize
	for offset, steps := 0, 0; steps < limit; steps++ {
		block := h.readHeader(offset)
		visit(offset, block)

		if block.next == noNext {
			return
		}
		offset = int(block.next)
	}
}

// VisitAllBlocks will call the provided callback once for each block in arena order. handle is
// NoAllocation for free blocks.
func (h *Heap) VisitAllBlocks(handleBlock func(handle BlockAllocationHandle, offset int, size int, free bool) error) error {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	var err error
	h.walk(func(offset int, block blockHeader) {
		if err != nil {
			return
		}

		handle := NoAllocation
		if !block.free {
			handle, _ = h.blockOwner.Get(offset)
		}
		err = handleBlock(handle, offset, block.size, block.free)
	})
	return err
}

// Validate performs internal consistency checks on the arena: the blocks must tile it from offset 0 to
// the end with no gap or overlap, the chain must end in the sentinel, and the handle table must agree
// with the allocated blocks.
func (h *Heap) Validate() error {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	offset := 0
	blocks := 0
	allocated := 0

	for {
		if offset < 0 || offset+HeaderSize > len(h.arena) {
			return errors.Newf("block header at offset %d lies outside the %d-byte arena", offset, len(h.arena))
		}

		block := h.readHeader(offset)
		blocks++
		if blocks > len(h.arena)/HeaderSize {
			return errors.New("the block chain contains a cycle")
		}

		end := offset + HeaderSize + block.size
		if end > len(h.arena) {
			return errors.Newf("block at offset %d has size %d and runs past the end of the arena", offset, block.size)
		}

		if !block.free {
			allocated++
			handle, ok := h.blockOwner.Get(offset)
			if !ok {
				return errors.Newf("block at offset %d is allocated but has no handle", offset)
			}
			record, ok := h.handleKey.Get(handle)
			if !ok || !record.live || record.offset != offset {
				return errors.Newf("block at offset %d is allocated but handle %d does not map back to it", offset, handle)
			}
			if record.requested > block.size {
				return errors.Newf("block at offset %d holds %d bytes but was allocated for %d", offset, block.size, record.requested)
			}
		}

		if block.next == noNext {
			if end != len(h.arena) {
				return errors.Newf("the block chain ends at offset %d, but the arena is %d bytes", end, len(h.arena))
			}
			break
		}

		if int(block.next) != end {
			return errors.Newf("block at offset %d ends at %d, but the next block starts at %d", offset, end, block.next)
		}
		offset = end
	}

	if blocks != len(h.layout) {
		return errors.Newf("the arena was laid out with %d blocks, but the chain holds %d", len(h.layout), blocks)
	}

	if allocated != h.allocCount {
		return errors.Newf("the allocation count of the heap is %d, but the taken blocks only added up to %d", h.allocCount, allocated)
	}

	return nil
}
