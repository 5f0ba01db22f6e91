package kernel_test

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/kernelkit/heap"
	"github.com/vkngwrapper/kernelkit/kernel"
	"github.com/vkngwrapper/kernelkit/memutils"
	"github.com/vkngwrapper/kernelkit/sched"
	"github.com/vkngwrapper/kernelkit/sched/mocks"
	"go.uber.org/mock/gomock"
	"golang.org/x/exp/slog"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestBootValidHeader(t *testing.T) {
	k, err := kernel.Boot(discardLogger(), kernel.MultibootHeader{Magic: kernel.MultibootMagic}, kernel.DefaultConfig())
	require.NoError(t, err)

	require.True(t, k.BootComplete())
	require.Equal(t, kernel.BootInfo{MemLower: 640, MemUpper: 1024 * 1024}, k.BootInfo())

	require.Equal(t, heap.DefaultHeapSize, k.Heap().Size())
	require.Equal(t, 0, k.Heap().UsedBytes())
	require.Equal(t, sched.DefaultMaxProcesses, k.Scheduler().Capacity())
	require.Equal(t, 0, k.Scheduler().ProcessCount())
}

func TestBootInvalidHeader(t *testing.T) {
	k, err := kernel.Boot(discardLogger(), kernel.MultibootHeader{Magic: 0xDEADBEEF}, kernel.Config{})
	require.NoError(t, err)

	require.True(t, k.BootComplete())
	require.Equal(t, kernel.BootInfo{}, k.BootInfo())
	require.Equal(t, heap.DefaultHeapSize, k.Heap().Size())
}

func TestBootRejectsBadLayout(t *testing.T) {
	_, err := kernel.Boot(discardLogger(), kernel.MultibootHeader{Magic: kernel.MultibootMagic}, kernel.Config{
		HeapSize:   64,
		BlockSizes: []int{100},
	})
	require.ErrorIs(t, err, memutils.ErrInvalidSize)

	_, err = kernel.Boot(nil, kernel.MultibootHeader{}, kernel.Config{})
	require.Error(t, err)
}

func TestKernelMallocFree(t *testing.T) {
	k, err := kernel.Boot(discardLogger(), kernel.MultibootHeader{Magic: kernel.MultibootMagic}, kernel.Config{
		HeapSize:   1024,
		BlockSizes: []int{100, 100},
	})
	require.NoError(t, err)

	alloc, err := k.Malloc(80)
	require.NoError(t, err)
	require.Equal(t, 100, k.Heap().UsedBytes())

	require.NoError(t, k.Free(alloc))
	require.Equal(t, 0, k.Heap().UsedBytes())
	require.ErrorIs(t, k.Free(alloc), memutils.ErrDoubleRelease)
	require.NoError(t, k.Free(heap.NoAllocation))
}

func TestKernelSchedulerTransfer(t *testing.T) {
	ctrl := gomock.NewController(t)
	transfer := mocks.NewMockContextTransfer(ctrl)

	config := kernel.DefaultConfig()
	config.MaxProcesses = 2
	config.Transfer = transfer

	k, err := kernel.Boot(discardLogger(), kernel.MultibootHeader{Magic: kernel.MultibootMagic}, config)
	require.NoError(t, err)

	_, err = k.Scheduler().RegisterProcess(1)
	require.NoError(t, err)
	_, err = k.Scheduler().RegisterProcess(1)
	require.NoError(t, err)
	_, err = k.Scheduler().RegisterProcess(1)
	require.ErrorIs(t, err, sched.ErrTableFull)

	transfer.EXPECT().Transfer(gomock.Any(), gomock.Any()).Times(1)
	k.Scheduler().Yield()
	require.Equal(t, sched.Pid(1), k.Scheduler().CurrentPid())
}

func TestLoadConfig(t *testing.T) {
	config, err := kernel.LoadConfig("testdata/small.yaml")
	require.NoError(t, err)
	require.Equal(t, kernel.Config{
		HeapSize:     4096,
		BlockSizes:   []int{64, 64, 256},
		SlabQuantum:  heap.DefaultSlabQuantum,
		MaxProcesses: 4,
		Synchronized: true,
	}, config)

	k, err := kernel.Boot(discardLogger(), kernel.MultibootHeader{Magic: kernel.MultibootMagic}, config)
	require.NoError(t, err)
	require.Equal(t, 4, k.Heap().BlockCount())
	require.Equal(t, 4, k.Scheduler().Capacity())

	_, err = kernel.LoadConfig("testdata/missing.yaml")
	require.Error(t, err)
}

func TestParseConfig(t *testing.T) {
	config, err := kernel.ParseConfig([]byte("maxProcesses: 8\n"))
	require.NoError(t, err)
	require.Equal(t, heap.DefaultHeapSize, config.HeapSize)
	require.Equal(t, 8, config.MaxProcesses)
	require.False(t, config.Synchronized)

	_, err = kernel.ParseConfig([]byte("heapSize: -4\n"))
	require.Error(t, err)

	_, err = kernel.ParseConfig([]byte("maxProcesses: [1, 2]\n"))
	require.Error(t, err)
}
