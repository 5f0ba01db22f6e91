package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/kernelkit/kernel"
	"github.com/vkngwrapper/kernelkit/memutils"
	"github.com/vkngwrapper/kernelkit/sched"
	"golang.org/x/exp/slog"
)

// loggingTransfer records each switch at debug level in place of a real transfer of control
type loggingTransfer struct {
	logger *slog.Logger
}

func (t loggingTransfer) Transfer(from, to sched.ProcessControlBlock) {
	t.logger.Debug("context transfer", slog.Int("From", int(from.Pid)), slog.Int("To", int(to.Pid)))
}

func run(logger *slog.Logger, configPath string, processes, rounds, allocSize int, detailed bool) error {
	config := kernel.DefaultConfig()
	if configPath != "" {
		var err error
		config, err = kernel.LoadConfig(configPath)
		if err != nil {
			return err
		}
	}
	config.Transfer = loggingTransfer{logger: logger}

	k, err := kernel.Boot(logger, kernel.MultibootHeader{Magic: kernel.MultibootMagic}, config)
	if err != nil {
		return err
	}

	for i := 0; i < processes; i++ {
		if _, err := k.Scheduler().RegisterProcess(i % 4); err != nil {
			if errors.Is(err, sched.ErrTableFull) {
				logger.Warn("process table full", slog.Int("Registered", k.Scheduler().ProcessCount()))
				break
			}
			return err
		}
	}

	// Each turn, the running task takes one slab and then yields
	for turn := 0; turn < rounds*k.Scheduler().ProcessCount(); turn++ {
		_, err := k.Heap().SlabAllocate(allocSize)
		if errors.Is(err, memutils.ErrOutOfMemory) {
			logger.Info("heap exhausted", slog.Int("Turn", turn), slog.Int("Pid", int(k.Scheduler().CurrentPid())))
		} else if err != nil {
			return err
		}
		k.Scheduler().Yield()
	}

	fmt.Println(k.Heap().BuildStatsString(detailed))
	fmt.Println(k.Scheduler().BuildStatsString())
	return nil
}

func main() {
	configPath := flag.String("config", "", "path to a YAML kernel config")
	processes := flag.Int("processes", 3, "number of processes to register")
	rounds := flag.Int("rounds", 2, "number of scheduling rounds to run")
	allocSize := flag.Int("alloc", 100, "bytes each task allocates per turn")
	detailed := flag.Bool("detailed", false, "list every heap block in the statistics")
	verbose := flag.Bool("v", false, "log at debug level")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(logger, *configPath, *processes, *rounds, *allocSize, *detailed); err != nil {
		logger.Error("boot failed", slog.Any("error", err))
		os.Exit(1)
	}
}
