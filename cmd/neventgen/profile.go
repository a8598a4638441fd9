package main

import (
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/spf13/cobra"
)

// profiler writes pprof profiles around a command.
type profiler struct {
	cpuFile string
	memFile string
	cpu     *os.File
}

func (p *profiler) register(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&p.cpuFile, "cpuprofile", "", "Write a CPU profile to file")
	cmd.PersistentFlags().StringVar(&p.memFile, "memprofile", "", "Write a heap profile to file on exit")
	cmd.PersistentPreRunE = func(*cobra.Command, []string) error { return p.start() }
	cmd.PersistentPostRunE = func(*cobra.Command, []string) error { return p.stop() }
}

func (p *profiler) start() error {
	if p.cpuFile == "" {
		return nil
	}
	f, err := os.Create(p.cpuFile)
	if err != nil {
		return fmt.Errorf("failed to create CPU profile: %w", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to start CPU profile: %w", err)
	}
	p.cpu = f
	return nil
}

func (p *profiler) stop() error {
	if p.cpu != nil {
		pprof.StopCPUProfile()
		if err := p.cpu.Close(); err != nil {
			return fmt.Errorf("failed to write CPU profile: %w", err)
		}
		p.cpu = nil
	}

	if p.memFile == "" {
		return nil
	}
	f, err := os.Create(p.memFile)
	if err != nil {
		return fmt.Errorf("failed to create memory profile: %w", err)
	}
	defer f.Close()

	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		return fmt.Errorf("failed to write memory profile: %w", err)
	}
	return nil
}
