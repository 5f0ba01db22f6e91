package heap

import (
	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/kernelkit/internal/utils"
	"github.com/vkngwrapper/kernelkit/memutils"
	"golang.org/x/exp/slog"
)

// CreateFlags indicate specific heap behaviors to activate or deactivate
type CreateFlags int32

const (
	// HeapCreateExternallySynchronized ensures that the heap will not be synchronized internally. The
	// consumer must guarantee it is used from only one goroutine at a time or is synchronized by some
	// other mechanism.
	HeapCreateExternallySynchronized CreateFlags = 1 << iota
)

var createFlagsMapping = map[CreateFlags]string{
	HeapCreateExternallySynchronized: "HeapCreateExternallySynchronized",
}

func (f CreateFlags) String() string {
	if f == 0 {
		return "None"
	}

	var str string
	for flag, name := range createFlagsMapping {
		if f&flag == 0 {
			continue
		}
		if str != "" {
			str += "|"
		}
		str += name
	}
	return str
}

const (
	// DefaultHeapSize is the arena capacity used when CreateOptions.Size is 0. It is equal to 1Mb.
	DefaultHeapSize int = 1024 * 1024
	// HeaderSize is the number of arena bytes taken by the header at the start of every block: an
	// 8-byte payload size, a 4-byte free flag, 4 bytes of padding and the 8-byte offset of the next header.
	HeaderSize int = 24
	// DefaultSlabQuantum is the size class that SlabAllocate rounds requests up to when
	// CreateOptions.SlabQuantum is 0
	DefaultSlabQuantum uint = 16
)

// CreateOptions contains optional settings when creating a heap
type CreateOptions struct {
	// Flags indicates specific heap behaviors to activate or deactivate
	Flags CreateFlags
	// Size is the total arena capacity in bytes, headers included. DefaultHeapSize is used when 0.
	Size int
	// BlockSizes can be left empty, in which case the arena is laid out as a single free block. If it is
	// provided, each entry is the payload size of one block, laid out in arena order at Init. Whatever
	// space is left over becomes one final block if it can hold a header, and is added to the last
	// listed block otherwise. Blocks are never split or merged after Init.
	BlockSizes []int
	// SlabQuantum is the size class SlabAllocate rounds requests up to. It must be a power of two.
	SlabQuantum uint
}

// New creates a new Heap and lays out its arena. The logger may not be nil.
func New(logger *slog.Logger, options CreateOptions) (*Heap, error) {
	if logger == nil {
		return nil, errors.New("attempted to create a heap with a nil logger")
	}

	size := options.Size
	if size == 0 {
		size = DefaultHeapSize
	}

	quantum := options.SlabQuantum
	if quantum == 0 {
		quantum = DefaultSlabQuantum
	}
	if err := memutils.CheckPow2(quantum, "SlabQuantum"); err != nil {
		return nil, err
	}

	layout, err := buildLayout(size, options.BlockSizes)
	if err != nil {
		return nil, err
	}

	h := &Heap{
		mutex:  utils.NewOptionalRWMutex(options.Flags&HeapCreateExternallySynchronized == 0),
		logger: logger,
		arena:  make([]byte, size),
		layout: layout,

		slabQuantum: quantum,
	}

	logger.Debug("Heap::New",
		slog.Int("Size", size),
		slog.Int("BlockCount", len(layout)),
		slog.String("Flags", options.Flags.String()))

	h.Init()
	return h, nil
}

func buildLayout(size int, blockSizes []int) ([]int, error) {
	if size < HeaderSize {
		return nil, errors.Wrapf(memutils.ErrInvalidSize, "arena size %d cannot hold a single %d-byte block header", size, HeaderSize)
	}

	if len(blockSizes) == 0 {
		return []int{size - HeaderSize}, nil
	}

	layout := make([]int, 0, len(blockSizes)+1)
	total := 0
	for index, blockSize := range blockSizes {
		if blockSize < 0 {
			return nil, errors.Wrapf(memutils.ErrInvalidSize, "block %d has negative size %d", index, blockSize)
		}

		total += HeaderSize + blockSize
		if total > size {
			return nil, errors.Wrapf(memutils.ErrInvalidSize, "blocks through index %d need %d bytes, but the arena is only %d bytes", index, total, size)
		}

		layout = append(layout, blockSize)
	}

	remainder := size - total
	if remainder >= HeaderSize {
		layout = append(layout, remainder-HeaderSize)
	} else {
		layout[len(layout)-1] += remainder
	}

	return layout, nil
}

func newHandleMaps(blockCount int) (*swiss.Map[BlockAllocationHandle, *allocationRecord], *swiss.Map[int, BlockAllocationHandle]) {
	return swiss.NewMap[BlockAllocationHandle, *allocationRecord](uint32(blockCount)),
		swiss.NewMap[int, BlockAllocationHandle](uint32(blockCount))
}
