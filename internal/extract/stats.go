// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"maps"
	"sync"
	"time"

	"github.com/pdiddy/brim-extract/internal/logger"
	"github.com/pdiddy/brim-extract/pkg/types"
)

// statsAccumulator is the single place batch counters change.
type statsAccumulator struct {
	mu    sync.Mutex
	stats types.BatchStatistics
}

func newStatsAccumulator(runID string, total int) *statsAccumulator {
	return &statsAccumulator{stats: types.BatchStatistics{
		RunID:            runID,
		Total:            total,
		ByPriority:       make(map[types.ExtractionPriority]int),
		FailedByPriority: make(map[types.ExtractionPriority]int),
	}}
}

// record folds one result into the counters and returns the completed count.
func (a *statsAccumulator) record(r types.ExtractionResult) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stats.Completed++
	a.stats.TotalExecutionSeconds += r.ExecutionTimeSeconds
	a.stats.ByPriority[r.Task.Priority]++
	if r.Success {
		a.stats.Succeeded++
	} else {
		a.stats.Failed++
		a.stats.FailedByPriority[r.Task.Priority]++
	}
	return a.stats.Completed
}

// snapshot returns a copy safe to hand to callers.
func (a *statsAccumulator) snapshot(wall time.Duration) types.BatchStatistics {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := a.stats
	out.WallClockSeconds = wall.Seconds()
	out.ByPriority = maps.Clone(a.stats.ByPriority)
	out.FailedByPriority = maps.Clone(a.stats.FailedByPriority)
	return out
}

func logSummary(log logger.Logger, s types.BatchStatistics) {
	byPriority := make(map[string]int, len(s.ByPriority))
	for _, p := range types.Priorities {
		if n := s.ByPriority[p]; n > 0 {
			byPriority[p.String()] = n
		}
	}

	log.Info("extraction batch finished",
		logger.Int("total", s.Total),
		logger.Int("succeeded", s.Succeeded),
		logger.Int("failed", s.Failed),
		logger.Float64("success_rate", s.SuccessRate()),
		logger.Float64("avg_execution_seconds", s.AverageExecutionSeconds()),
		logger.Float64("total_execution_seconds", s.TotalExecutionSeconds),
		logger.Float64("wall_clock_seconds", s.WallClockSeconds),
		logger.Any("by_priority", byPriority),
	)
}
