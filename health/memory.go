package health

import (
	"context"
	"fmt"
	"runtime"
)

// MemoryCheckerConfig configures the memory health checker.
type MemoryCheckerConfig struct {
	// WarningThreshold is the usage ratio reported as "high" in Info.
	// Value should be between 0 and 1. Default: 0.8 (80%)
	WarningThreshold float64

	// CriticalThreshold is the usage ratio at which Check fails.
	// Value should be between 0 and 1. Default: 0.95 (95%)
	CriticalThreshold float64

	// MaxAlloc is the maximum expected allocation in bytes.
	// If zero, the memory obtained from the OS is used.
	// Default: 0 (auto-detect)
	MaxAlloc uint64
}

// MemoryChecker checks heap usage against configured thresholds.
type MemoryChecker struct {
	config  MemoryCheckerConfig
	readMem func(*runtime.MemStats)
}

// NewMemoryChecker creates a new memory health checker.
func NewMemoryChecker(config MemoryCheckerConfig) *MemoryChecker {
	if config.WarningThreshold <= 0 || config.WarningThreshold >= 1 {
		config.WarningThreshold = 0.8
	}
	if config.CriticalThreshold <= 0 || config.CriticalThreshold >= 1 {
		config.CriticalThreshold = 0.95
	}
	if config.CriticalThreshold < config.WarningThreshold {
		config.CriticalThreshold = config.WarningThreshold + 0.1
		if config.CriticalThreshold > 1 {
			config.CriticalThreshold = 0.99
		}
	}

	return &MemoryChecker{config: config, readMem: runtime.ReadMemStats}
}

// Name returns the name of this checker.
func (m *MemoryChecker) Name() string {
	return "memory"
}

func (m *MemoryChecker) usage() (runtime.MemStats, uint64, float64) {
	var stats runtime.MemStats
	m.readMem(&stats)

	maxAlloc := m.config.MaxAlloc
	if maxAlloc == 0 {
		maxAlloc = stats.Sys
	}
	if maxAlloc == 0 {
		return stats, 0, 0
	}
	return stats, maxAlloc, float64(stats.Alloc) / float64(maxAlloc)
}

// Check fails when heap usage reaches the critical threshold.
func (m *MemoryChecker) Check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, _, ratio := m.usage()
	if ratio >= m.config.CriticalThreshold {
		return fmt.Errorf("%w: memory usage critical: %.1f%%", ErrCheckFailed, ratio*100)
	}
	return nil
}

// Info returns memory statistics for detailed health responses.
func (m *MemoryChecker) Info() map[string]any {
	stats, maxAlloc, ratio := m.usage()

	level := "normal"
	switch {
	case ratio >= m.config.CriticalThreshold:
		level = "critical"
	case ratio >= m.config.WarningThreshold:
		level = "high"
	}

	return map[string]any{
		"alloc_bytes":   stats.Alloc,
		"max_alloc":     maxAlloc,
		"usage_percent": ratio * 100,
		"usage_level":   level,
		"heap_in_use":   stats.HeapInuse,
		"heap_objects":  stats.HeapObjects,
		"num_gc":        stats.NumGC,
		"goroutines":    runtime.NumGoroutine(),
	}
}

// InfoProvider exposes Info as an InfoProvider named "memory".
func (m *MemoryChecker) InfoProvider() InfoProvider {
	return InfoProvider{Name: m.Name(), Resolve: m.Info}
}

var _ Checker = (*MemoryChecker)(nil)
