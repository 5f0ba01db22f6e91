package sched

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/kernelkit/internal/utils"
	"golang.org/x/exp/slog"
)

// CreateFlags indicate specific scheduler behaviors to activate or deactivate
type CreateFlags int32

const (
	// SchedulerCreateExternallySynchronized ensures that the scheduler will not be synchronized
	// internally. The consumer must guarantee it is used from only one goroutine at a time.
	SchedulerCreateExternallySynchronized CreateFlags = 1 << iota
)

var createFlagsMapping = map[CreateFlags]string{
	SchedulerCreateExternallySynchronized: "SchedulerCreateExternallySynchronized",
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

// DefaultMaxProcesses is the process table capacity used when CreateOptions.MaxProcesses is 0
const DefaultMaxProcesses int = 64

// CreateOptions contains optional settings when creating a scheduler
type CreateOptions struct {
	// Flags indicates specific scheduler behaviors to activate or deactivate
	Flags CreateFlags
	// MaxProcesses is the fixed capacity of the process table
	MaxProcesses int
	// Transfer is an optional collaborator notified after every switch
	Transfer ContextTransfer
}

// New creates a new Scheduler with an empty process table. The logger may not be nil.
func New(logger *slog.Logger, options CreateOptions) (*Scheduler, error) {
	if logger == nil {
		return nil, errors.New("attempted to create a scheduler with a nil logger")
	}

	capacity := options.MaxProcesses
	if capacity == 0 {
		capacity = DefaultMaxProcesses
	}
	if capacity < 0 {
		return nil, errors.Newf("provided MaxProcesses %d was negative", capacity)
	}

	s := &Scheduler{
		mutex:    utils.NewOptionalRWMutex(options.Flags&SchedulerCreateExternallySynchronized == 0),
		logger:   logger,
		transfer: options.Transfer,
		table:    make([]ProcessControlBlock, capacity),
	}

	logger.Debug("Scheduler::New",
		slog.Int("MaxProcesses", capacity),
		slog.String("Flags", options.Flags.String()))

	s.Init()
	return s, nil
}
