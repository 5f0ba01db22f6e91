package sched

import (
	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/kernelkit/internal/utils"
	"golang.org/x/exp/slog"
)

// Scheduler cycles execution among the processes of a fixed-capacity table in round-robin order.
// Scheduling is cooperative: the running task calls Advance (or Yield) to give up the processor.
// Priority is recorded for each process but never consulted when choosing the next one.
type Scheduler struct {
	mutex    utils.OptionalRWMutex
	logger   *slog.Logger
	transfer ContextTransfer

	table   []ProcessControlBlock
	current int
	count   int
}

// Init clears every table slot and forgets all registered processes
func (s *Scheduler) Init() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for i := range s.table {
		s.table[i] = ProcessControlBlock{Pid: NoProcess, State: ProcessUnused}
	}
	s.current = 0
	s.count = 0
}

// RegisterProcess places a new Ready process in the next free slot and returns its pid. Pids are
// assigned densely from 0 in registration order. When every slot is taken, ErrTableFull is returned.
func (s *Scheduler) RegisterProcess(priority int) (Pid, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.count >= len(s.table) {
		return NoProcess, errors.Wrapf(ErrTableFull, "capacity is %d", len(s.table))
	}

	pid := Pid(s.count)
	pcb := &s.table[pid]
	pcb.Pid = pid
	pcb.Priority = priority
	pcb.State = ProcessReady
	s.count++

	s.logger.Debug("Scheduler::RegisterProcess", slog.Int("Pid", int(pid)), slog.Int("Priority", priority))
	return pid, nil
}

// Advance switches to the next Ready process after the current one, wrapping around the registered
// slots. If no other Ready process exists, including when only one process or none is registered,
// nothing happens.
func (s *Scheduler) Advance() {
	s.mutex.Lock()

	if s.count == 0 {
		s.mutex.Unlock()
		return
	}

	next := (s.current + 1) % s.count
	for s.table[next].State != ProcessReady {
		next = (next + 1) % s.count
		if next == s.current {
			s.mutex.Unlock()
			return
		}
	}

	if next == s.current {
		s.mutex.Unlock()
		return
	}

	from := s.current
	s.swapContext(from, next)
	s.current = next
	fromPCB, toPCB := s.table[from], s.table[next]
	s.mutex.Unlock()

	s.logger.Debug("Scheduler::Advance", slog.Int("From", int(fromPCB.Pid)), slog.Int("To", int(toPCB.Pid)))

	if s.transfer != nil {
		s.transfer.Transfer(fromPCB, toPCB)
	}
}

// Yield gives up the processor on behalf of the running task, switching as Advance does
func (s *Scheduler) Yield() {
	s.Advance()
}

// SwapContext exchanges the saved contexts of two registered processes. Nothing else about either
// process changes, and the current process is not updated.
func (s *Scheduler) SwapContext(from, to Pid) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := s.checkPid(from); err != nil {
		return err
	}
	if err := s.checkPid(to); err != nil {
		return err
	}

	s.swapContext(int(from), int(to))
	return nil
}

func (s *Scheduler) swapContext(from, to int) {
	s.table[from].Context, s.table[to].Context = s.table[to].Context, s.table[from].Context
}

func (s *Scheduler) checkPid(pid Pid) error {
	if pid < 0 || int(pid) >= s.count {
		return errors.Wrapf(ErrInvalidPid, "pid %d with %d processes registered", pid, s.count)
	}
	return nil
}

// CurrentPid returns the pid of the process in the current slot. Before any process is registered
// this is NoProcess.
func (s *Scheduler) CurrentPid() Pid {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.table) == 0 {
		return NoProcess
	}
	return s.table[s.current].Pid
}

// SetPriority changes the recorded priority of a registered process. A pid outside the registered
// range is reported with ErrInvalidPid and the table is left unchanged.
func (s *Scheduler) SetPriority(pid Pid, priority int) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := s.checkPid(pid); err != nil {
		return err
	}

	s.table[pid].Priority = priority
	return nil
}

// SetSavedContext records the register values a process should resume with
func (s *Scheduler) SetSavedContext(pid Pid, context SavedContext) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := s.checkPid(pid); err != nil {
		return err
	}

	s.table[pid].Context = context
	return nil
}

// Process returns a copy of the record for a registered process
func (s *Scheduler) Process(pid Pid) (ProcessControlBlock, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if err := s.checkPid(pid); err != nil {
		return ProcessControlBlock{Pid: NoProcess}, err
	}
	return s.table[pid], nil
}

// ProcessCount returns the number of processes registered since the last Init
func (s *Scheduler) ProcessCount() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.count
}

// Capacity returns the fixed size of the process table
func (s *Scheduler) Capacity() int { return len(s.table) }

// Validate checks that every registered slot holds its own index as pid and a registered state, and
// that every slot past the registered count is unused.
func (s *Scheduler) Validate() error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if s.count > len(s.table) {
		return errors.Newf("%d processes are registered, but the table only holds %d", s.count, len(s.table))
	}
	if s.count > 0 && s.current >= s.count {
		return errors.Newf("current slot %d is past the %d registered processes", s.current, s.count)
	}

	for i, pcb := range s.table {
		if i < s.count {
			if pcb.Pid != Pid(i) {
				return errors.Newf("slot %d holds pid %d", i, pcb.Pid)
			}
			if pcb.State == ProcessUnused {
				return errors.Newf("slot %d is registered but unused", i)
			}
			continue
		}

		if pcb.Pid != NoProcess || pcb.State != ProcessUnused {
			return errors.Newf("slot %d is past the registered processes but holds pid %d in state %s", i, pcb.Pid, pcb.State)
		}
	}

	return nil
}

// BuildStatsString returns a json document describing the process table
func (s *Scheduler) BuildStatsString() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	writer := jwriter.NewWriter()
	obj := writer.Object()

	obj.Name("Capacity").Int(len(s.table))
	obj.Name("ProcessCount").Int(s.count)
	if s.count > 0 {
		obj.Name("CurrentPid").Int(int(s.table[s.current].Pid))
	}

	processes := obj.Name("Processes").Array()
	for _, pcb := range s.table[:s.count] {
		pcbObj := processes.Object()
		pcbObj.Name("Pid").Int(int(pcb.Pid))
		pcbObj.Name("Priority").Int(pcb.Priority)
		pcbObj.Name("State").String(pcb.State.String())
		pcbObj.Name("StackPointer").Int(int(pcb.Context.StackPointer))
		pcbObj.Name("BasePointer").Int(int(pcb.Context.BasePointer))
		pcbObj.End()
	}
	processes.End()

	obj.End()
	return string(writer.Bytes())
}
