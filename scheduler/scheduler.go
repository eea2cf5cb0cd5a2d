package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/alexander-bruun/vitrine/models"
	"github.com/alexander-bruun/vitrine/pipeline"
)

// ErrShutdown is returned by Start once Shutdown has been called.
var ErrShutdown = errors.New("scheduler is shutting down")

// Processor runs one product job to completion.
type Processor interface {
	Process(ctx context.Context, product models.Product) pipeline.Result
}

// Source selects products for batch and repair runs.
type Source interface {
	GetSyncCandidates(ctx context.Context, limit int) ([]models.Product, error)
	FindProductsForRepair(ctx context.Context, filter models.RepairFilter) ([]models.Product, error)
	ResetSyncStatus(ctx context.Context, ids []string) (int64, error)
	RecordSkippedAttempt(ctx context.Context, productID string) error
}

// Options configures a Scheduler.
type Options struct {
	Concurrency int
	BatchSize   int
	RepairLimit int
}

// Counters are the progress counters of one batch.
type Counters struct {
	Total     int64 `json:"total"`
	Processed int64 `json:"processed"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	Skipped   int64 `json:"skipped"`
}

// Status is a snapshot of the most recent batch.
type Status struct {
	RunID      string     `json:"runId,omitempty"`
	Running    bool       `json:"running"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Error      string     `json:"error,omitempty"`
	Counters
}

// Ack acknowledges a trigger request.
type Ack struct {
	RunID   string `json:"runId"`
	Started bool   `json:"started"`
}

// RepairRequest selects products for a repair run. ProductIDs take precedence
// over Brand and Search.
type RepairRequest struct {
	ProductIDs []string `json:"productIds"`
	Brand      string   `json:"brand"`
	Search     string   `json:"search"`
	Limit      int      `json:"limit"`
}

// RepairReport is the outcome of a repair run.
type RepairReport struct {
	SuccessCount int      `json:"successCount"`
	FailCount    int      `json:"failCount"`
	SkippedCount int      `json:"skippedCount"`
	Logs         []string `json:"logs"`
}

type batchCounters struct {
	total, processed, succeeded, failed, skipped atomic.Int64
}

func (b *batchCounters) record(outcome pipeline.Outcome) {
	b.processed.Add(1)
	switch outcome {
	case pipeline.OutcomeSynced:
		b.succeeded.Add(1)
	case pipeline.OutcomeSkipped:
		b.skipped.Add(1)
	default:
		b.failed.Add(1)
	}
}

func (b *batchCounters) snapshot() Counters {
	return Counters{
		Total:     b.total.Load(),
		Processed: b.processed.Load(),
		Succeeded: b.succeeded.Load(),
		Failed:    b.failed.Load(),
		Skipped:   b.skipped.Load(),
	}
}

// Scheduler runs product jobs through a global bounded pool. Batch and repair
// runs share the same limit.
type Scheduler struct {
	source    Source
	processor Processor
	opts      Options
	sem       *semaphore.Weighted

	mu       sync.Mutex
	status   Status
	counters *batchCounters
	closed   bool
	wg       sync.WaitGroup
}

// New creates a scheduler.
func New(source Source, processor Processor, opts Options) *Scheduler {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = 200
	}
	if opts.RepairLimit < 1 {
		opts.RepairLimit = 20
	}
	return &Scheduler{
		source:    source,
		processor: processor,
		opts:      opts,
		sem:       semaphore.NewWeighted(int64(opts.Concurrency)),
		counters:  &batchCounters{},
	}
}

// Start begins a batch in the background and returns immediately. When a
// batch is already running its id is returned with Started=false.
func (s *Scheduler) Start() (Ack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Ack{}, ErrShutdown
	}
	if s.status.Running {
		return Ack{RunID: s.status.RunID, Started: false}, nil
	}

	runID := uuid.NewString()
	now := time.Now()
	counters := &batchCounters{}
	s.counters = counters
	s.status = Status{RunID: runID, Running: true, StartedAt: &now}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := s.runBatch(context.Background(), runID, s.opts.BatchSize, counters)

		s.mu.Lock()
		defer s.mu.Unlock()
		finished := time.Now()
		s.status.Running = false
		s.status.FinishedAt = &finished
		if err != nil {
			s.status.Error = err.Error()
		}
	}()

	log.Infof("Started sync run %s", runID)
	return Ack{RunID: runID, Started: true}, nil
}

// RunBatch runs one batch in the foreground and returns its counters.
func (s *Scheduler) RunBatch(ctx context.Context, limit int) (Counters, error) {
	if limit < 1 {
		limit = s.opts.BatchSize
	}
	counters := &batchCounters{}
	err := s.runBatch(ctx, uuid.NewString(), limit, counters)
	return counters.snapshot(), err
}

func (s *Scheduler) runBatch(ctx context.Context, runID string, limit int, counters *batchCounters) error {
	start := time.Now()

	products, err := s.source.GetSyncCandidates(ctx, limit)
	if err != nil {
		log.Errorf("Sync run %s aborted: %v", runID, err)
		return fmt.Errorf("select candidates: %w", err)
	}
	if err := s.resetFailed(ctx, products); err != nil {
		log.Errorf("Sync run %s aborted: %v", runID, err)
		return err
	}
	counters.total.Store(int64(len(products)))
	log.Infof("Sync run %s: %d products selected", runID, len(products))

	s.runAll(ctx, products, func(_ int, res pipeline.Result) {
		counters.record(res.Outcome)
	})

	c := counters.snapshot()
	log.Infof("Sync run %s finished in %v: %d processed, %d synced, %d failed, %d skipped",
		runID, time.Since(start).Round(time.Millisecond), c.Processed, c.Succeeded, c.Failed, c.Skipped)
	return ctx.Err()
}

// resetFailed moves failed candidates back to pending so the tracker accepts
// their outcome.
func (s *Scheduler) resetFailed(ctx context.Context, products []models.Product) error {
	var ids []string
	for _, p := range products {
		if p.SyncStatus != models.StatusPending {
			ids = append(ids, p.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.source.ResetSyncStatus(ctx, ids); err != nil {
		return fmt.Errorf("reset products to pending: %w", err)
	}
	for i := range products {
		products[i].SyncStatus = models.StatusPending
	}
	return nil
}

// runAll runs every product through the pool and blocks until all finish.
// A job never cancels its siblings.
func (s *Scheduler) runAll(ctx context.Context, products []models.Product, done func(int, pipeline.Result)) {
	var wg sync.WaitGroup
	for i, product := range products {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			log.Warnf("Stopped scheduling after %d of %d products: %v", i, len(products), err)
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer s.sem.Release(1)
			res := s.processor.Process(ctx, product)
			if res.Outcome == pipeline.OutcomeSkipped {
				// Skipped products stay pending; the marker keeps them from
				// crowding out the head of the next batch.
				if err := s.source.RecordSkippedAttempt(ctx, product.ID); err != nil {
					log.Warnf("Failed to record skipped attempt for product %s: %v", product.ID, err)
				}
			}
			done(i, res)
		}()
	}
	wg.Wait()
}

// Repair reprocesses a narrow selection synchronously, capped at the repair
// limit, and returns per-product log lines.
func (s *Scheduler) Repair(ctx context.Context, req RepairRequest) (RepairReport, error) {
	limit := req.Limit
	if limit < 1 || limit > s.opts.RepairLimit {
		limit = s.opts.RepairLimit
	}
	report := RepairReport{Logs: []string{}}

	products, err := s.source.FindProductsForRepair(ctx, models.RepairFilter{
		IDs:    req.ProductIDs,
		Brand:  req.Brand,
		Search: req.Search,
		Limit:  limit,
	})
	if err != nil {
		return report, fmt.Errorf("select products: %w", err)
	}
	if len(products) == 0 {
		report.Logs = append(report.Logs, "no products matched the repair filter")
		return report, nil
	}

	ids := make([]string, len(products))
	for i, p := range products {
		ids[i] = p.ID
	}
	if _, err := s.source.ResetSyncStatus(ctx, ids); err != nil {
		return report, fmt.Errorf("reset products to pending: %w", err)
	}
	for i := range products {
		products[i].SyncStatus = models.StatusPending
	}
	report.Logs = append(report.Logs, fmt.Sprintf("repairing %d products", len(products)))

	results := make([]pipeline.Result, len(products))
	ran := make([]bool, len(products))
	s.runAll(ctx, products, func(i int, res pipeline.Result) {
		results[i] = res
		ran[i] = true
	})

	for i, res := range results {
		if !ran[i] {
			report.FailCount++
			report.Logs = append(report.Logs, fmt.Sprintf("product %s not processed: %v", products[i].ID, ctx.Err()))
			continue
		}
		switch res.Outcome {
		case pipeline.OutcomeSynced:
			report.SuccessCount++
		case pipeline.OutcomeSkipped:
			report.SkippedCount++
		default:
			report.FailCount++
		}
		report.Logs = append(report.Logs, res.Summary())
	}

	log.Infof("Repair finished: %d synced, %d failed, %d skipped", report.SuccessCount, report.FailCount, report.SkippedCount)
	return report, nil
}

// Status returns a snapshot of the current or most recent batch.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := s.status
	status.Counters = s.counters.snapshot()
	return status
}

// Shutdown refuses new batches and waits for the running one to finish.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
