package sched_test

import (
	"encoding/json"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/kernelkit/sched"
	"github.com/vkngwrapper/kernelkit/sched/mocks"
	"go.uber.org/mock/gomock"
	"golang.org/x/exp/slog"
)

func readyScheduler(t *testing.T, options sched.CreateOptions, priorities ...int) *sched.Scheduler {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	s, err := sched.New(logger, options)
	require.NoError(t, err)

	for i, priority := range priorities {
		pid, err := s.RegisterProcess(priority)
		require.NoError(t, err)
		require.Equal(t, sched.Pid(i), pid)
	}

	require.NoError(t, s.Validate())
	return s
}

func TestSchedulerRegisterUntilFull(t *testing.T) {
	s := readyScheduler(t, sched.CreateOptions{})
	require.Equal(t, sched.DefaultMaxProcesses, s.Capacity())

	for i := 0; i < sched.DefaultMaxProcesses; i++ {
		pid, err := s.RegisterProcess(i % 4)
		require.NoError(t, err)
		require.Equal(t, sched.Pid(i), pid)

		pcb, err := s.Process(pid)
		require.NoError(t, err)
		require.Equal(t, sched.ProcessReady, pcb.State)
		require.Equal(t, i%4, pcb.Priority)
	}

	pid, err := s.RegisterProcess(1)
	require.ErrorIs(t, err, sched.ErrTableFull)
	require.Equal(t, sched.NoProcess, pid)
	require.Equal(t, sched.DefaultMaxProcesses, s.ProcessCount())
	require.NoError(t, s.Validate())
}

func TestSchedulerRoundRobin(t *testing.T) {
	s := readyScheduler(t, sched.CreateOptions{}, 1, 1, 1)
	require.Equal(t, sched.Pid(0), s.CurrentPid())

	s.Advance()
	require.Equal(t, sched.Pid(1), s.CurrentPid())

	s.Advance()
	require.Equal(t, sched.Pid(2), s.CurrentPid())

	s.Yield()
	require.Equal(t, sched.Pid(0), s.CurrentPid())
	require.NoError(t, s.Validate())
}

func TestSchedulerIgnoresPriority(t *testing.T) {
	s := readyScheduler(t, sched.CreateOptions{}, 1, 1, 1)

	require.NoError(t, s.SetPriority(2, 100))
	pcb, err := s.Process(2)
	require.NoError(t, err)
	require.Equal(t, 100, pcb.Priority)

	s.Advance()
	require.Equal(t, sched.Pid(1), s.CurrentPid())
}

func TestSchedulerSingleProcess(t *testing.T) {
	ctrl := gomock.NewController(t)
	transfer := mocks.NewMockContextTransfer(ctrl)

	s := readyScheduler(t, sched.CreateOptions{Transfer: transfer}, 5)
	require.NoError(t, s.SetSavedContext(0, sched.SavedContext{StackPointer: 0x1000, BasePointer: 0x2000}))

	s.Advance()
	require.Equal(t, sched.Pid(0), s.CurrentPid())

	pcb, err := s.Process(0)
	require.NoError(t, err)
	require.Equal(t, sched.SavedContext{StackPointer: 0x1000, BasePointer: 0x2000}, pcb.Context)
}

func TestSchedulerNoProcesses(t *testing.T) {
	s := readyScheduler(t, sched.CreateOptions{})

	require.Equal(t, sched.NoProcess, s.CurrentPid())
	s.Advance()
	require.Equal(t, sched.NoProcess, s.CurrentPid())
	require.Equal(t, 0, s.ProcessCount())
}

func TestSchedulerAdvanceSwapsContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	transfer := mocks.NewMockContextTransfer(ctrl)

	s := readyScheduler(t, sched.CreateOptions{Transfer: transfer}, 3, 7)

	contextA := sched.SavedContext{StackPointer: 0xA000, BasePointer: 0xA100}
	contextB := sched.SavedContext{StackPointer: 0xB000, BasePointer: 0xB100}
	require.NoError(t, s.SetSavedContext(0, contextA))
	require.NoError(t, s.SetSavedContext(1, contextB))

	transfer.EXPECT().Transfer(
		sched.ProcessControlBlock{Pid: 0, Priority: 3, State: sched.ProcessReady, Context: contextB},
		sched.ProcessControlBlock{Pid: 1, Priority: 7, State: sched.ProcessReady, Context: contextA},
	).Times(1)

	s.Advance()
	require.Equal(t, sched.Pid(1), s.CurrentPid())

	from, err := s.Process(0)
	require.NoError(t, err)
	require.Equal(t, sched.ProcessControlBlock{Pid: 0, Priority: 3, State: sched.ProcessReady, Context: contextB}, from)

	to, err := s.Process(1)
	require.NoError(t, err)
	require.Equal(t, sched.ProcessControlBlock{Pid: 1, Priority: 7, State: sched.ProcessReady, Context: contextA}, to)
}

func TestSchedulerTransferMayQueryScheduler(t *testing.T) {
	ctrl := gomock.NewController(t)
	transfer := mocks.NewMockContextTransfer(ctrl)

	s := readyScheduler(t, sched.CreateOptions{Transfer: transfer}, 0, 0)

	transfer.EXPECT().Transfer(gomock.Any(), gomock.Any()).Do(func(from, to sched.ProcessControlBlock) {
		require.Equal(t, to.Pid, s.CurrentPid())
	}).Times(2)

	s.Advance()
	s.Advance()
	require.Equal(t, sched.Pid(0), s.CurrentPid())
}

func TestSchedulerSwapContext(t *testing.T) {
	s := readyScheduler(t, sched.CreateOptions{}, 0, 0, 0)

	require.NoError(t, s.SetSavedContext(0, sched.SavedContext{StackPointer: 1, BasePointer: 2}))
	require.NoError(t, s.SetSavedContext(2, sched.SavedContext{StackPointer: 5, BasePointer: 6}))

	require.NoError(t, s.SwapContext(0, 2))
	require.Equal(t, sched.Pid(0), s.CurrentPid())

	pcb, err := s.Process(0)
	require.NoError(t, err)
	require.Equal(t, sched.SavedContext{StackPointer: 5, BasePointer: 6}, pcb.Context)

	pcb, err = s.Process(2)
	require.NoError(t, err)
	require.Equal(t, sched.SavedContext{StackPointer: 1, BasePointer: 2}, pcb.Context)

	pcb, err = s.Process(1)
	require.NoError(t, err)
	require.Equal(t, sched.SavedContext{}, pcb.Context)

	require.ErrorIs(t, s.SwapContext(0, 3), sched.ErrInvalidPid)
	require.ErrorIs(t, s.SwapContext(-1, 0), sched.ErrInvalidPid)
}

func TestSchedulerInvalidPid(t *testing.T) {
	s := readyScheduler(t, sched.CreateOptions{}, 4, 4)

	require.ErrorIs(t, s.SetPriority(2, 1), sched.ErrInvalidPid)
	require.ErrorIs(t, s.SetPriority(-1, 1), sched.ErrInvalidPid)
	require.ErrorIs(t, s.SetSavedContext(9, sched.SavedContext{}), sched.ErrInvalidPid)

	_, err := s.Process(2)
	require.ErrorIs(t, err, sched.ErrInvalidPid)

	for pid := sched.Pid(0); pid < 2; pid++ {
		pcb, err := s.Process(pid)
		require.NoError(t, err)
		require.Equal(t, 4, pcb.Priority)
	}
}

func TestSchedulerInit(t *testing.T) {
	s := readyScheduler(t, sched.CreateOptions{MaxProcesses: 3}, 1, 2, 3)
	require.Equal(t, 3, s.Capacity())

	_, err := s.RegisterProcess(4)
	require.ErrorIs(t, err, sched.ErrTableFull)

	s.Advance()
	s.Init()

	require.Equal(t, 0, s.ProcessCount())
	require.Equal(t, sched.NoProcess, s.CurrentPid())
	require.NoError(t, s.Validate())

	pid, err := s.RegisterProcess(9)
	require.NoError(t, err)
	require.Equal(t, sched.Pid(0), pid)
}

func TestSchedulerCreateErrors(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	_, err := sched.New(logger, sched.CreateOptions{MaxProcesses: -1})
	require.Error(t, err)

	_, err = sched.New(nil, sched.CreateOptions{})
	require.Error(t, err)
}

func TestProcessStateString(t *testing.T) {
	require.Equal(t, "Unused", sched.ProcessUnused.String())
	require.Equal(t, "Ready", sched.ProcessReady.String())
	require.Equal(t, "Running", sched.ProcessRunning.String())
	require.Equal(t, "Blocked", sched.ProcessBlocked.String())
}

func TestCreateFlagsString(t *testing.T) {
	require.Equal(t, "None", sched.CreateFlags(0).String())
	require.Equal(t, "SchedulerCreateExternallySynchronized", sched.SchedulerCreateExternallySynchronized.String())
}

func TestSchedulerBuildStatsString(t *testing.T) {
	s := readyScheduler(t, sched.CreateOptions{MaxProcesses: 8}, 2, 9)
	require.NoError(t, s.SetSavedContext(1, sched.SavedContext{StackPointer: 64, BasePointer: 128}))
	s.Advance()

	var doc struct {
		Capacity     int
		ProcessCount int
		CurrentPid   int
		Processes    []struct {
			Pid          int
			Priority     int
			State        string
			StackPointer int
			BasePointer  int
		}
	}
	require.NoError(t, json.Unmarshal([]byte(s.BuildStatsString()), &doc))

	require.Equal(t, 8, doc.Capacity)
	require.Equal(t, 2, doc.ProcessCount)
	require.Equal(t, 1, doc.CurrentPid)
	require.Len(t, doc.Processes, 2)
	require.Equal(t, "Ready", doc.Processes[0].State)
	require.Equal(t, 64, doc.Processes[0].StackPointer)
	require.Equal(t, 9, doc.Processes[1].Priority)
	require.Equal(t, 0, doc.Processes[1].StackPointer)
}

func TestSchedulerConcurrentRegistration(t *testing.T) {
	s := readyScheduler(t, sched.CreateOptions{})

	var wg sync.WaitGroup
	pids := make(chan sched.Pid, 128)
	for worker := 0; worker < 16; worker++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 8; i++ {
				pid, err := s.RegisterProcess(i)
				if err == nil {
					pids <- pid
				}
				s.Advance()
			}
		}()
	}
	wg.Wait()
	close(pids)

	seen := map[sched.Pid]bool{}
	for pid := range pids {
		require.False(t, seen[pid])
		seen[pid] = true
	}
	require.Len(t, seen, sched.DefaultMaxProcesses)
	require.NoError(t, s.Validate())
}
