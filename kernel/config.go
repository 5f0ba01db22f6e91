package kernel

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/kernelkit/heap"
	"github.com/vkngwrapper/kernelkit/sched"
	"gopkg.in/yaml.v3"
)

// Config sizes the kernel's subsystems. Zero values select the package defaults.
type Config struct {
	// HeapSize is the arena capacity in bytes, headers included
	HeapSize int `yaml:"heapSize"`
	// BlockSizes is the initial block layout of the arena, see heap.CreateOptions
	BlockSizes []int `yaml:"blockSizes"`
	// SlabQuantum is the size class used by slab allocations, a power of two
	SlabQuantum uint `yaml:"slabQuantum"`
	// MaxProcesses is the process table capacity
	MaxProcesses int `yaml:"maxProcesses"`
	// Synchronized guards the heap and scheduler with mutexes so they can be shared between goroutines
	Synchronized bool `yaml:"synchronized"`
	// Transfer is notified after every process switch. It can't be set from YAML.
	Transfer sched.ContextTransfer `yaml:"-"`
}

// DefaultConfig returns a Config with the default arena and table sizes
func DefaultConfig() Config {
	return Config{
		HeapSize:     heap.DefaultHeapSize,
		SlabQuantum:  heap.DefaultSlabQuantum,
		MaxProcesses: sched.DefaultMaxProcesses,
	}
}

// ParseConfig decodes a YAML document. Fields the document leaves out keep their defaults.
func ParseConfig(data []byte) (Config, error) {
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, errors.Wrap(err, "failed to decode kernel config")
	}

	if config.HeapSize < 0 {
		return Config{}, errors.Newf("heapSize %d is negative", config.HeapSize)
	}
	if config.MaxProcesses < 0 {
		return Config{}, errors.Newf("maxProcesses %d is negative", config.MaxProcesses)
	}

	return config, nil
}

// LoadConfig reads and decodes the YAML file at path
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "failed to read kernel config %s", path)
	}

	return ParseConfig(data)
}

func (c Config) heapOptions() heap.CreateOptions {
	var flags heap.CreateFlags
	if !c.Synchronized {
		flags |= heap.HeapCreateExternallySynchronized
	}

	return heap.CreateOptions{
		Flags:       flags,
		Size:        c.HeapSize,
		BlockSizes:  c.BlockSizes,
		SlabQuantum: c.SlabQuantum,
	}
}

func (c Config) schedulerOptions() sched.CreateOptions {
	var flags sched.CreateFlags
	if !c.Synchronized {
		flags |= sched.SchedulerCreateExternallySynchronized
	}

	return sched.CreateOptions{
		Flags:        flags,
		MaxProcesses: c.MaxProcesses,
		Transfer:     c.Transfer,
	}
}
