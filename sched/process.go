package sched

//go:generate mockgen -source process.go -destination mocks/mock_transfer.go -package mocks

// Pid identifies a process by its slot in the process table
type Pid int

// NoProcess is the pid held by table slots that no process has been registered into
const NoProcess Pid = -1

// ProcessState is the scheduling state of a table slot
type ProcessState uint32

const (
	// ProcessUnused marks a slot that no process has been registered into
	ProcessUnused ProcessState = iota
	// ProcessReady marks a registered process that may be selected by Advance
	ProcessReady
	// ProcessRunning is reserved and never assigned by the round-robin policy
	ProcessRunning
	// ProcessBlocked is reserved and never assigned by the round-robin policy
	ProcessBlocked
)

var processStateMapping = map[ProcessState]string{
	ProcessUnused:  "Unused",
	ProcessReady:   "Ready",
	ProcessRunning: "Running",
	ProcessBlocked: "Blocked",
}

func (s ProcessState) String() string {
	return processStateMapping[s]
}

// SavedContext is the pair of register values exchanged when execution moves from one process to
// another. The values are opaque to the scheduler.
type SavedContext struct {
	StackPointer uint32
	BasePointer  uint32
}

// ProcessControlBlock is the scheduler's record for one table slot
type ProcessControlBlock struct {
	Pid      Pid
	Priority int
	State    ProcessState
	Context  SavedContext
}

// ContextTransfer is notified after every switch with copies of the outgoing and incoming process
// records, once their saved contexts have been exchanged and the current process has been updated.
// Implementations perform whatever actual transfer of control the host environment requires.
type ContextTransfer interface {
	Transfer(from, to ProcessControlBlock)
}
