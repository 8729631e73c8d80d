// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package extract schedules extraction tasks against an external extractor
// and turns its responses into structured results.
package extract

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/pdiddy/brim-extract/internal/logger"
	"github.com/pdiddy/brim-extract/internal/metrics"
	"github.com/pdiddy/brim-extract/pkg/types"
)

const defaultMaxConcurrent = 4

// Request is one call to the external extractor.
type Request struct {
	DocumentID   string
	DocumentType string
	Prompt       string
}

// Extractor is the opaque, possibly slow, possibly failing extraction
// capability. Implementations should honour ctx cancellation when they can;
// the scheduler stops waiting at the task deadline either way.
type Extractor interface {
	Invoke(ctx context.Context, req Request) (string, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, req Request) (string, error)

// Invoke calls f.
func (f ExtractorFunc) Invoke(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// ProgressFunc is called after each result with the number completed so far.
type ProgressFunc func(completed, total int)

// BatchOptions configures one ExtractBatch call.
type BatchOptions struct {
	// MaxConcurrent caps tasks executing at once (default 4).
	MaxConcurrent int

	// TimeoutPerTask bounds each extractor call. Zero means no deadline.
	TimeoutPerTask time.Duration

	// SharedContext is snapshotted at batch start and prepended to every
	// instruction.
	SharedContext types.SharedContext

	Progress ProgressFunc

	// OnResult, when set, receives each result in completion order.
	OnResult func(types.ExtractionResult)
}

// TimeoutError is recorded when a task exceeds its deadline.
type TimeoutError struct {
	GapID   string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("Timeout: task %s exceeded %s", e.GapID, e.Timeout)
}

// Scheduler runs extraction batches on a bounded worker pool.
type Scheduler struct {
	extractor Extractor
	log       logger.Logger
	limiter   *rate.Limiter
	metrics   *metrics.Metrics
	now       func() time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithRateLimit caps extractor calls per second across all workers.
// A non-positive rps leaves calls unthrottled.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Scheduler) {
		if rps <= 0 {
			return
		}
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithMetrics records task outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithClock overrides the clock used for result timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// NewScheduler returns a Scheduler that sends every task to extractor.
func NewScheduler(extractor Extractor, log logger.Logger, opts ...Option) *Scheduler {
	if log == nil {
		log = logger.NewNop()
	}
	s := &Scheduler{
		extractor: extractor,
		log:       log,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExtractBatch runs every task and returns exactly one result per task, in
// completion order, with the batch statistics.
//
// Tasks are queued by priority (CRITICAL first, input order within a tier)
// and at most MaxConcurrent run at once. Priority governs start order only.
// A failing task never stops the batch, and nothing is retried.
func (s *Scheduler) ExtractBatch(ctx context.Context, tasks []types.ExtractionTask, opts BatchOptions) ([]types.ExtractionResult, types.BatchStatistics) {
	maxConcurrent := opts.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}

	ordered := Prioritize(tasks)
	shared := opts.SharedContext.Clone()
	runID := uuid.NewString()
	log := s.log.With(logger.String("run_id", runID))
	stats := newStatsAccumulator(runID, len(ordered))
	started := time.Now()

	s.metrics.BatchStarted()
	log.Info("extraction batch started",
		logger.Int("tasks", len(ordered)),
		logger.Int("max_concurrent", maxConcurrent),
		logger.Duration("timeout_per_task", opts.TimeoutPerTask),
	)

	queue := make(chan types.ExtractionTask, len(ordered))
	for _, t := range ordered {
		queue <- t
	}
	close(queue)

	results := make(chan types.ExtractionResult)

	var g errgroup.Group
	for range min(maxConcurrent, len(ordered)) {
		g.Go(func() error {
			for task := range queue {
				results <- s.runTask(ctx, log, task, shared, opts.TimeoutPerTask)
			}
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(results)
	}()

	collected := make([]types.ExtractionResult, 0, len(ordered))
	for r := range results {
		collected = append(collected, r)
		completed := stats.record(r)
		if opts.OnResult != nil {
			opts.OnResult(r)
		}
		if opts.Progress != nil {
			opts.Progress(completed, len(ordered))
		}
	}

	summary := stats.snapshot(time.Since(started))
	logSummary(log, summary)
	return collected, summary
}

// Prioritize returns a copy of tasks stably sorted by priority.
func Prioritize(tasks []types.ExtractionTask) []types.ExtractionTask {
	ordered := slices.Clone(tasks)
	slices.SortStableFunc(ordered, func(a, b types.ExtractionTask) int {
		return cmp.Compare(a.Priority, b.Priority)
	})
	return ordered
}

func (s *Scheduler) runTask(ctx context.Context, log logger.Logger, task types.ExtractionTask, shared types.SharedContext, timeout time.Duration) types.ExtractionResult {
	start := time.Now()
	s.metrics.TaskStarted()

	data, err := s.execute(ctx, task, shared, timeout)
	elapsed := time.Since(start)

	result := types.ExtractionResult{
		Task:                 task,
		Success:              err == nil,
		ExtractedData:        data,
		ExecutionTimeSeconds: elapsed.Seconds(),
		Timestamp:            s.now().UTC().Format(time.RFC3339Nano),
	}

	var perr *ParseError
	switch {
	case err == nil:
		log.Debug("task completed",
			logger.String("gap_id", task.GapID),
			logger.String("priority", task.Priority.String()),
			logger.Duration("elapsed", elapsed),
		)
	case errors.As(err, &perr):
		result.ExtractedData = map[string]any{RawResponseKey: perr.Raw}
		result.ErrorMessage = err.Error()
	default:
		result.ErrorMessage = err.Error()
	}
	if err != nil {
		log.Warn("task failed",
			logger.String("gap_id", task.GapID),
			logger.String("priority", task.Priority.String()),
			logger.Err(err),
		)
	}

	s.metrics.TaskFinished(task.Priority, result.Success, elapsed)
	return result
}

func (s *Scheduler) execute(ctx context.Context, task types.ExtractionTask, shared types.SharedContext, timeout time.Duration) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("batch cancelled before task %s started: %w", task.GapID, err)
	}

	req := Request{
		DocumentID:   task.DocumentID,
		DocumentType: task.DocumentType,
		Prompt:       Enrich(task.Instruction, shared),
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	raw, err := s.invoke(ctx, task.GapID, req, timeout)
	if err != nil {
		return nil, err
	}
	return ParseResponse(raw, task.OutputSchema)
}

type reply struct {
	raw string
	err error
}

// safeInvoke calls the extractor and turns a panic into an error so one
// misbehaving call fails its own task only.
func (s *Scheduler) safeInvoke(ctx context.Context, req Request) (raw string, err error) {
	defer func() {
		if r := recover(); r != nil {
			raw, err = "", fmt.Errorf("extractor panicked: %v", r)
		}
	}()
	return s.extractor.Invoke(ctx, req)
}

// invoke calls the extractor under the task deadline. When the deadline
// passes the call is abandoned: its context is cancelled and its eventual
// reply is dropped.
func (s *Scheduler) invoke(ctx context.Context, gapID string, req Request, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		return s.safeInvoke(ctx, req)
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan reply, 1)
	go func() {
		raw, err := s.safeInvoke(callCtx, req)
		done <- reply{raw: raw, err: err}
	}()

	select {
	case r := <-done:
		return settle(ctx, callCtx, gapID, timeout, r)
	case <-callCtx.Done():
		return expired(ctx, gapID, timeout, done)
	}
}

// settle interprets a reply that arrived before the deadline fired.
func settle(ctx, callCtx context.Context, gapID string, timeout time.Duration, r reply) (string, error) {
	if r.err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return "", &TimeoutError{GapID: gapID, Timeout: timeout}
	}
	return r.raw, r.err
}

// expired handles the deadline branch. A reply already sitting in done
// won the race and is returned as-is.
func expired(ctx context.Context, gapID string, timeout time.Duration, done <-chan reply) (string, error) {
	select {
	case r := <-done:
		if r.err == nil {
			return r.raw, nil
		}
	default:
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("batch cancelled during task %s: %w", gapID, err)
	}
	return "", &TimeoutError{GapID: gapID, Timeout: timeout}
}
