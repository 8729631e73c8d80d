// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/brim-extract/internal/logger"
	"github.com/pdiddy/brim-extract/internal/metrics"
	"github.com/pdiddy/brim-extract/pkg/types"
)

// --- mock extractor ---

// recordingExtractor records the order of calls (by document ID) and the
// prompts it saw. respond defaults to a fixed JSON object.
type recordingExtractor struct {
	mu      sync.Mutex
	order   []string
	prompts map[string]string
	respond func(ctx context.Context, req Request) (string, error)
}

func newRecordingExtractor() *recordingExtractor {
	return &recordingExtractor{prompts: make(map[string]string)}
}

func (r *recordingExtractor) Invoke(ctx context.Context, req Request) (string, error) {
	r.mu.Lock()
	r.order = append(r.order, req.DocumentID)
	r.prompts[req.DocumentID] = req.Prompt
	r.mu.Unlock()

	if r.respond != nil {
		return r.respond(ctx, req)
	}
	return `{"value": "ok"}`, nil
}

func (r *recordingExtractor) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

func task(id string, p types.ExtractionPriority) types.ExtractionTask {
	return types.ExtractionTask{
		Priority:    p,
		GapID:       id,
		GapType:     types.GapOther,
		DocumentID:  id,
		Instruction: "extract " + id,
	}
}

func newTestScheduler(ex Extractor, opts ...Option) *Scheduler {
	return NewScheduler(ex, logger.NewNop(), opts...)
}

// --- ordering ---

func TestExtractBatch_SerialRunsInPriorityOrder(t *testing.T) {
	ex := newRecordingExtractor()
	s := newTestScheduler(ex)

	tasks := []types.ExtractionTask{
		task("low", types.PriorityLow),
		task("critical", types.PriorityCritical),
		task("medium", types.PriorityMedium),
		task("high", types.PriorityHigh),
	}

	results, stats := s.ExtractBatch(context.Background(), tasks, BatchOptions{MaxConcurrent: 1})

	assert.Equal(t, []string{"critical", "high", "medium", "low"}, ex.calls())
	require.Len(t, results, 4)
	assert.Equal(t, 4, stats.Succeeded)
}

func TestExtractBatch_EqualPrioritiesKeepInputOrder(t *testing.T) {
	ex := newRecordingExtractor()
	s := newTestScheduler(ex)

	tasks := []types.ExtractionTask{
		task("m1", types.PriorityMedium),
		task("h1", types.PriorityHigh),
		task("m2", types.PriorityMedium),
		task("h2", types.PriorityHigh),
		task("m3", types.PriorityMedium),
	}

	s.ExtractBatch(context.Background(), tasks, BatchOptions{MaxConcurrent: 1})

	assert.Equal(t, []string{"h1", "h2", "m1", "m2", "m3"}, ex.calls())
}

func TestExtractBatch_HigherPriorityStartsFirstWhenParallel(t *testing.T) {
	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(2)

	ex := newRecordingExtractor()
	var first int32
	ex.respond = func(_ context.Context, _ Request) (string, error) {
		if atomic.AddInt32(&first, 1) <= 2 {
			started.Done()
			<-release
		}
		return `{}`, nil
	}
	s := newTestScheduler(ex)

	tasks := []types.ExtractionTask{
		task("low-1", types.PriorityLow),
		task("low-2", types.PriorityLow),
		task("critical", types.PriorityCritical),
		task("high", types.PriorityHigh),
	}

	done := make(chan struct{})
	go func() {
		s.ExtractBatch(context.Background(), tasks, BatchOptions{MaxConcurrent: 2})
		close(done)
	}()

	started.Wait()
	assert.ElementsMatch(t, []string{"critical", "high"}, ex.calls())
	close(release)
	<-done

	calls := ex.calls()
	require.Len(t, calls, 4)
	assert.ElementsMatch(t, []string{"low-1", "low-2"}, calls[2:])
}

// --- concurrency bound ---

func TestExtractBatch_NeverExceedsMaxConcurrent(t *testing.T) {
	var active, peak int32
	ex := newRecordingExtractor()
	ex.respond = func(_ context.Context, _ Request) (string, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return `{}`, nil
	}
	s := newTestScheduler(ex)

	var tasks []types.ExtractionTask
	for i := range 12 {
		tasks = append(tasks, task(fmt.Sprintf("t%02d", i), types.Priorities[i%4]))
	}

	results, _ := s.ExtractBatch(context.Background(), tasks, BatchOptions{MaxConcurrent: 3})

	assert.Len(t, results, 12)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&peak), int32(1))
}

// --- failure capture ---

func TestExtractBatch_TimeoutIsRecordedAndBatchContinues(t *testing.T) {
	ex := newRecordingExtractor()
	ex.respond = func(ctx context.Context, req Request) (string, error) {
		if req.DocumentID == "slow" {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return `{"value": 1}`, nil
	}
	s := newTestScheduler(ex)

	tasks := []types.ExtractionTask{
		task("a", types.PriorityHigh),
		task("slow", types.PriorityCritical),
		task("b", types.PriorityLow),
		task("c", types.PriorityMedium),
	}

	results, stats := s.ExtractBatch(context.Background(), tasks, BatchOptions{
		MaxConcurrent:  2,
		TimeoutPerTask: 30 * time.Millisecond,
	})

	require.Len(t, results, 4)
	byID := resultsByID(results)

	slow := byID["slow"]
	assert.False(t, slow.Success)
	assert.Contains(t, slow.ErrorMessage, "Timeout")
	assert.Nil(t, slow.ExtractedData)

	for _, id := range []string{"a", "b", "c"} {
		assert.True(t, byID[id].Success, id)
	}
	assert.Equal(t, 3, stats.Succeeded)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.FailedByPriority[types.PriorityCritical])
}

func TestExtractBatch_TimeoutAbandonsUncooperativeExtractor(t *testing.T) {
	ex := newRecordingExtractor()
	ex.respond = func(_ context.Context, _ Request) (string, error) {
		time.Sleep(500 * time.Millisecond)
		return `{}`, nil
	}
	s := newTestScheduler(ex)

	start := time.Now()
	results, _ := s.ExtractBatch(context.Background(), []types.ExtractionTask{task("stuck", types.PriorityHigh)}, BatchOptions{
		MaxConcurrent:  1,
		TimeoutPerTask: 20 * time.Millisecond,
	})

	assert.Less(t, time.Since(start), 400*time.Millisecond)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Equal(t, "Timeout: task stuck exceeded 20ms", results[0].ErrorMessage)
}

func TestExtractBatch_PanickingExtractorFailsOnlyItsTask(t *testing.T) {
	for _, timeout := range []time.Duration{0, time.Second} {
		t.Run(fmt.Sprint(timeout), func(t *testing.T) {
			ex := newRecordingExtractor()
			ex.respond = func(ctx context.Context, req Request) (string, error) {
				if req.DocumentID == "bad" {
					var m map[string]int
					m["boom"] = 1
				}
				return `{"value": "ok"}`, nil
			}
			s := newTestScheduler(ex)

			results, stats := s.ExtractBatch(context.Background(), []types.ExtractionTask{
				task("a", types.PriorityHigh),
				task("bad", types.PriorityHigh),
				task("c", types.PriorityLow),
			}, BatchOptions{MaxConcurrent: 2, TimeoutPerTask: timeout})

			require.Len(t, results, 3)
			assert.Equal(t, 1, stats.Failed)
			for _, r := range results {
				if r.Task.GapID == "bad" {
					assert.False(t, r.Success)
					assert.Nil(t, r.ExtractedData)
					assert.Contains(t, r.ErrorMessage, "extractor panicked")
					assert.Contains(t, r.ErrorMessage, "nil map")
				} else {
					assert.True(t, r.Success, r.Task.GapID)
				}
			}
		})
	}
}

func TestExpired_PrefersReplyThatAlreadyArrived(t *testing.T) {
	done := make(chan reply, 1)
	done <- reply{raw: `{"value": "ok"}`}

	raw, err := expired(context.Background(), "g1", time.Second, done)
	require.NoError(t, err)
	assert.Equal(t, `{"value": "ok"}`, raw)
}

func TestExpired_TimesOutWithoutReply(t *testing.T) {
	raw, err := expired(context.Background(), "g1", time.Second, make(chan reply, 1))
	assert.Empty(t, raw)
	assert.EqualError(t, err, "Timeout: task g1 exceeded 1s")
}

func TestExpired_ReportsCancelledBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := expired(ctx, "g1", time.Second, make(chan reply, 1))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtractBatch_ParseFailureKeepsRawResponse(t *testing.T) {
	ex := newRecordingExtractor()
	ex.respond = func(_ context.Context, _ Request) (string, error) {
		return "The surgery happened in March.", nil
	}
	s := newTestScheduler(ex)

	results, _ := s.ExtractBatch(context.Background(), []types.ExtractionTask{task("g", types.PriorityHigh)}, BatchOptions{})

	require.Len(t, results, 1)
	r := results[0]
	assert.False(t, r.Success)
	assert.True(t, strings.HasPrefix(r.ErrorMessage, "parse error: "), r.ErrorMessage)
	assert.Equal(t, "The surgery happened in March.", r.ExtractedData[RawResponseKey])
}

func TestExtractBatch_ExtractorErrorHasNoData(t *testing.T) {
	ex := newRecordingExtractor()
	ex.respond = func(_ context.Context, _ Request) (string, error) {
		return "", errors.New("service unavailable")
	}
	s := newTestScheduler(ex)

	results, stats := s.ExtractBatch(context.Background(), []types.ExtractionTask{task("g", types.PriorityLow)}, BatchOptions{})

	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Nil(t, results[0].ExtractedData)
	assert.Equal(t, "service unavailable", results[0].ErrorMessage)
	assert.Equal(t, 0.0, stats.SuccessRate())
}

func TestExtractBatch_SchemaViolationIsParseFailure(t *testing.T) {
	ex := newRecordingExtractor()
	ex.respond = func(_ context.Context, _ Request) (string, error) {
		return `{"surgery_date": 2021}`, nil
	}
	s := newTestScheduler(ex)

	tk := task("g", types.PriorityHigh)
	tk.OutputSchema = `{"type":"object","properties":{"surgery_date":{"type":"string"}}}`

	results, _ := s.ExtractBatch(context.Background(), []types.ExtractionTask{tk}, BatchOptions{})

	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].ErrorMessage, "parse error")
	assert.Equal(t, `{"surgery_date": 2021}`, results[0].ExtractedData[RawResponseKey])
}

func TestExtractBatch_CancelledContextStillYieldsEveryResult(t *testing.T) {
	ex := newRecordingExtractor()
	s := newTestScheduler(ex)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tasks := []types.ExtractionTask{
		task("a", types.PriorityHigh),
		task("b", types.PriorityLow),
		task("c", types.PriorityLow),
	}
	results, stats := s.ExtractBatch(ctx, tasks, BatchOptions{MaxConcurrent: 2})

	require.Len(t, results, 3)
	for _, r := range results {
		assert.False(t, r.Success)
		assert.Contains(t, r.ErrorMessage, "cancelled")
	}
	assert.Empty(t, ex.calls())
	assert.Equal(t, 3, stats.Failed)
}

func TestExtractBatch_Empty(t *testing.T) {
	s := newTestScheduler(newRecordingExtractor())
	results, stats := s.ExtractBatch(context.Background(), nil, BatchOptions{})
	assert.Empty(t, results)
	assert.Equal(t, 0, stats.Total)
	assert.NotEmpty(t, stats.RunID)
}

// --- context, progress, statistics ---

func TestExtractBatch_EnrichesFromBatchStartSnapshot(t *testing.T) {
	ex := newRecordingExtractor()
	s := newTestScheduler(ex)

	shared := types.SharedContext{
		Diagnosis:        "Medulloblastoma",
		MolecularMarkers: []string{"SHH"},
	}
	opts := BatchOptions{
		MaxConcurrent: 1,
		SharedContext: shared,
		OnResult: func(types.ExtractionResult) {
			shared.MolecularMarkers[0] = "CHANGED"
		},
	}

	tasks := []types.ExtractionTask{task("first", types.PriorityCritical), task("second", types.PriorityLow)}
	s.ExtractBatch(context.Background(), tasks, opts)

	for _, id := range []string{"first", "second"} {
		prompt := ex.prompts[id]
		assert.Contains(t, prompt, "Diagnosis: Medulloblastoma", id)
		assert.Contains(t, prompt, "Known molecular markers: SHH", id)
		assert.NotContains(t, prompt, "CHANGED", id)
		assert.True(t, strings.HasSuffix(prompt, "extract "+id), id)
	}
}

func TestExtractBatch_ProgressAndStatistics(t *testing.T) {
	ex := newRecordingExtractor()
	ex.respond = func(_ context.Context, req Request) (string, error) {
		if req.DocumentID == "bad" {
			return "", errors.New("boom")
		}
		return `{}`, nil
	}
	s := newTestScheduler(ex)

	var progress [][2]int
	tasks := []types.ExtractionTask{
		task("c", types.PriorityCritical),
		task("h", types.PriorityHigh),
		task("bad", types.PriorityHigh),
		task("l", types.PriorityLow),
	}
	results, stats := s.ExtractBatch(context.Background(), tasks, BatchOptions{
		MaxConcurrent: 2,
		Progress: func(completed, total int) {
			progress = append(progress, [2]int{completed, total})
		},
	})

	require.Len(t, results, 4)
	assert.Equal(t, [][2]int{{1, 4}, {2, 4}, {3, 4}, {4, 4}}, progress)

	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 4, stats.Completed)
	assert.Equal(t, 3, stats.Succeeded)
	assert.Equal(t, 1, stats.Failed)
	assert.InDelta(t, 0.75, stats.SuccessRate(), 1e-9)
	assert.Equal(t, 1, stats.ByPriority[types.PriorityCritical])
	assert.Equal(t, 2, stats.ByPriority[types.PriorityHigh])
	assert.Equal(t, 1, stats.ByPriority[types.PriorityLow])
	assert.Equal(t, 1, stats.FailedByPriority[types.PriorityHigh])
	assert.GreaterOrEqual(t, stats.TotalExecutionSeconds, 0.0)
	assert.True(t, stats.HasFailures())
}

func TestExtractBatch_ResultTimestampUsesClock(t *testing.T) {
	fixed := time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC)
	s := newTestScheduler(newRecordingExtractor(), WithClock(func() time.Time { return fixed }))

	results, _ := s.ExtractBatch(context.Background(), []types.ExtractionTask{task("g", types.PriorityLow)}, BatchOptions{})

	require.Len(t, results, 1)
	assert.Equal(t, "2026-05-04T03:02:01Z", results[0].Timestamp)
	assert.GreaterOrEqual(t, results[0].ExecutionTimeSeconds, 0.0)
}

func TestExtractBatch_RecordsMetrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	ex := newRecordingExtractor()
	ex.respond = func(_ context.Context, req Request) (string, error) {
		if req.DocumentID == "bad" {
			return "not json", nil
		}
		return `{}`, nil
	}
	s := newTestScheduler(ex, WithMetrics(m), WithRateLimit(1000, 10))

	tasks := []types.ExtractionTask{task("ok", types.PriorityCritical), task("bad", types.PriorityLow)}
	s.ExtractBatch(context.Background(), tasks, BatchOptions{MaxConcurrent: 2})

	assert.Equal(t, 0.0, testutil.ToFloat64(m.InFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BatchesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TasksTotal.WithLabelValues("critical", metrics.OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TasksTotal.WithLabelValues("low", metrics.OutcomeFailure)))
}

func TestWithRateLimit(t *testing.T) {
	assert.Nil(t, newTestScheduler(nil, WithRateLimit(0, 5)).limiter)
	s := newTestScheduler(nil, WithRateLimit(2, 0))
	require.NotNil(t, s.limiter)
	assert.Equal(t, 1, s.limiter.Burst())
}

func TestPrioritize_DoesNotMutateInput(t *testing.T) {
	in := []types.ExtractionTask{task("l", types.PriorityLow), task("c", types.PriorityCritical)}
	out := Prioritize(in)
	assert.Equal(t, "l", in[0].GapID)
	assert.Equal(t, "c", out[0].GapID)
}

func resultsByID(results []types.ExtractionResult) map[string]types.ExtractionResult {
	m := make(map[string]types.ExtractionResult, len(results))
	for _, r := range results {
		m[r.Task.GapID] = r
	}
	return m
}
