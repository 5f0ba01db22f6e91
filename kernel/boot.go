package kernel

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/kernelkit/heap"
	"github.com/vkngwrapper/kernelkit/sched"
	"golang.org/x/exp/slog"
)

const (
	// MultibootMagic is the value a multiboot-compliant bootloader leaves in the header's Magic field
	MultibootMagic uint32 = 0x2BADB002

	// lowerMemoryKiB and upperMemoryKiB are reported for any valid multiboot header
	lowerMemoryKiB uint32 = 640
	upperMemoryKiB uint32 = 1024 * 1024
)

// MultibootHeader is the header handed over by the bootloader
type MultibootHeader struct {
	Magic    uint32
	Flags    uint32
	Checksum uint32
}

// BootInfo describes the machine as reported by the bootloader. Memory sizes are in KiB.
type BootInfo struct {
	MemLower   uint32
	MemUpper   uint32
	BootDevice uint32
}

// Kernel owns the subsystems brought up at boot
type Kernel struct {
	logger       *slog.Logger
	bootInfo     BootInfo
	heap         *heap.Heap
	scheduler    *sched.Scheduler
	bootComplete bool
}

// Boot parses the bootloader header, then brings up the heap and the scheduler, in that order. Each
// subsystem is initialized exactly once. An unrecognized header is not fatal: boot continues with
// empty BootInfo.
func Boot(logger *slog.Logger, header MultibootHeader, config Config) (*Kernel, error) {
	if logger == nil {
		return nil, errors.New("attempted to boot with a nil logger")
	}

	k := &Kernel{logger: logger}

	if header.Magic == MultibootMagic {
		k.bootInfo.MemLower = lowerMemoryKiB
		k.bootInfo.MemUpper = upperMemoryKiB
	} else {
		logger.Warn("unrecognized multiboot header, continuing without memory information",
			slog.Uint64("Magic", uint64(header.Magic)))
	}

	if err := k.startup(config); err != nil {
		return nil, err
	}

	logger.Info("boot complete",
		slog.Int("HeapSize", k.heap.Size()),
		slog.Int("HeapBlocks", k.heap.BlockCount()),
		slog.Int("MaxProcesses", k.scheduler.Capacity()))
	return k, nil
}

func (k *Kernel) startup(config Config) error {
	var err error
	k.heap, err = heap.New(k.logger, config.heapOptions())
	if err != nil {
		return errors.Wrap(err, "failed to initialize memory")
	}

	k.scheduler, err = sched.New(k.logger, config.schedulerOptions())
	if err != nil {
		return errors.Wrap(err, "failed to initialize scheduler")
	}

	k.bootComplete = true
	return nil
}

func (k *Kernel) BootInfo() BootInfo { return k.bootInfo }

func (k *Kernel) BootComplete() bool { return k.bootComplete }

func (k *Kernel) Heap() *heap.Heap { return k.heap }

func (k *Kernel) Scheduler() *sched.Scheduler { return k.scheduler }

// Malloc allocates size bytes from the kernel heap
func (k *Kernel) Malloc(size int) (heap.BlockAllocationHandle, error) {
	return k.heap.Allocate(size)
}

// Free returns an allocation made with Malloc to the kernel heap
func (k *Kernel) Free(handle heap.BlockAllocationHandle) error {
	return k.heap.Release(handle)
}
