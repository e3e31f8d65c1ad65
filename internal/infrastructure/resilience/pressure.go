package resilience

import (
	"fmt"
	"log/slog"
	"time"
)

// PressureCache is the slice of the analysis cache the pressure handler
// needs.
type PressureCache interface {
	Len() int
	MemoryUsageBytes() int64
	CleanupOlderThan(age time.Duration) int
	ShrinkTo(target int) int
}

// RelieveMemoryPressure applies escalating cache relief: drop entries
// idle for an hour, then for thirty minutes, then force-evict down to
// half the pre-pressure entry count. Each stage stops the escalation as
// soon as usage falls below 80% of the threshold. Returns whether the
// pressure was relieved.
func (c *Controller) RelieveMemoryPressure(cache PressureCache, thresholdBytes int64) bool {
	if thresholdBytes <= 0 {
		return true
	}
	target := thresholdBytes * 80 / 100
	if cache.MemoryUsageBytes() < target {
		return true
	}

	startCount := cache.Len()
	for _, stage := range []struct {
		name string
		run  func() int
	}{
		{"idle_1h", func() int { return cache.CleanupOlderThan(time.Hour) }},
		{"idle_30m", func() int { return cache.CleanupOlderThan(30 * time.Minute) }},
		{"force_halve", func() int { return cache.ShrinkTo(startCount / 2) }},
	} {
		removed := stage.run()
		slog.Info("memory_pressure_stage",
			"stage", stage.name,
			"removed", removed,
			"usage_bytes", cache.MemoryUsageBytes(),
			"target_bytes", target,
		)
		if cache.MemoryUsageBytes() < target {
			return true
		}
	}

	relieved := cache.MemoryUsageBytes() < target
	if !relieved {
		c.stats.Record(CategoryMemory,
			fmt.Sprintf("pressure not relieved: %d bytes against target %d", cache.MemoryUsageBytes(), target),
			"memory_pressure")
	}
	return relieved
}
