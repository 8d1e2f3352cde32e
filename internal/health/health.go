// Package health runs the startup diagnostics: host load and whether the
// model server is reachable with the configured model pulled.
package health

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

// Memory above this is worth a warning; local models are memory hungry.
const memWarnPercent = 90.0

// swapped in tests
var (
	cpuPercent    = cpu.Percent
	virtualMemory = mem.VirtualMemory
)

// Prober checks that a backing service is usable.
type Prober interface {
	Probe(ctx context.Context) error
}

// HostStats is a point-in-time view of the machine.
type HostStats struct {
	CPUPercent float64
	MemPercent float64
}

// Report is the outcome of Check.
type Report struct {
	Host     HostStats
	HostErr  error
	ModelErr error // nil when the model server answered, or no prober was given
}

// GetCPUUsage returns the current CPU usage as a percentage.
func GetCPUUsage() (float64, error) {
	percentages, err := cpuPercent(0, false)
	if err != nil {
		return 0, err
	}
	if len(percentages) == 0 {
		return 0, fmt.Errorf("could not get CPU usage")
	}
	return percentages[0], nil
}

// GetMemoryUsage returns the current memory usage as a percentage.
func GetMemoryUsage() (float64, error) {
	vm, err := virtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}

// Check collects host stats and probes the model server. Neither failure
// stops startup; the first turn reports a missing model the normal way.
func Check(ctx context.Context, model Prober) Report {
	var r Report

	cpuPct, cpuErr := GetCPUUsage()
	memPct, memErr := GetMemoryUsage()
	r.Host = HostStats{CPUPercent: cpuPct, MemPercent: memPct}
	switch {
	case cpuErr != nil:
		r.HostErr = fmt.Errorf("cpu: %w", cpuErr)
	case memErr != nil:
		r.HostErr = fmt.Errorf("memory: %w", memErr)
	}

	if model != nil {
		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		r.ModelErr = model.Probe(probeCtx)
	}
	return r
}

// Log writes the report at a level matching its severity.
func (r Report) Log(logger *zap.Logger) {
	if r.HostErr != nil {
		logger.Warn("health: host stats unavailable", zap.Error(r.HostErr))
	} else {
		fields := []zap.Field{
			zap.Float64("cpu_percent", r.Host.CPUPercent),
			zap.Float64("mem_percent", r.Host.MemPercent),
		}
		if r.Host.MemPercent >= memWarnPercent {
			logger.Warn("health: memory nearly exhausted", fields...)
		} else {
			logger.Info("health: host", fields...)
		}
	}

	if r.ModelErr != nil {
		logger.Warn("health: model server check failed", zap.Error(r.ModelErr))
	} else {
		logger.Info("health: model server ready")
	}
}
